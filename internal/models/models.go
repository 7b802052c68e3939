// Package models defines the persistent entities of the enrollment program.
// JSON tags follow the legacy export contract and must not be renamed.
package models

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Stream is the academic stream a student enrolls into.
type Stream string

const (
	StreamNatural Stream = "natural"
	StreamSocial  Stream = "social"
)

// AccountStatus is the lifecycle state of a student account.
type AccountStatus string

const (
	AccountPending AccountStatus = "pending"
	AccountActive  AccountStatus = "active"
	AccountBlocked AccountStatus = "blocked"
)

// ResolutionStatus is shared by payments and withdrawals.
type ResolutionStatus string

const (
	StatusPending  ResolutionStatus = "pending"
	StatusApproved ResolutionStatus = "approved"
	StatusRejected ResolutionStatus = "rejected"
)

// PayoutMethod identifies how withdrawal funds are delivered.
type PayoutMethod string

const (
	MethodTelebirr PayoutMethod = "telebirr"
	MethodCBE      PayoutMethod = "cbe"
)

// JUIDPattern is the institutional id format. It is an external contract;
// exports and duplicate checks depend on it bit-exact.
var JUIDPattern = regexp.MustCompile(`^[A-Z]{2}\d{4}/\d{2}$`)

// PhonePattern builds the payout phone validator for the configured country prefix.
func PhonePattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `\d{9}$`)
}

// Account is a registered participant's profile plus financial and referral state.
//
// Invariants, enforced by the ledger:
//
//	Balance == TotalEarned - TotalWithdrawn
//	PaidReferrals + UnpaidReferrals == TotalReferrals
type Account struct {
	TelegramID       int64         `db:"telegram_id" json:"telegramId"`
	Username         string        `db:"username" json:"username"`
	FirstName        string        `db:"first_name" json:"firstName"`
	LastName         string        `db:"last_name" json:"lastName"`
	FullName         string        `db:"full_name" json:"fullName"`
	ContactNumber    string        `db:"contact_number" json:"contactNumber"`
	JUID             string        `db:"ju_id" json:"juId"`
	Stream           Stream        `db:"stream" json:"stream"`
	Status           AccountStatus `db:"status" json:"status"`
	ReferralCode     string        `db:"referral_code" json:"referralCode"`
	ReferredBy       *int64        `db:"referred_by" json:"referredBy,omitempty"`
	Balance          int64         `db:"balance" json:"balance"`
	TotalEarned      int64         `db:"total_earned" json:"totalEarned"`
	TotalWithdrawn   int64         `db:"total_withdrawn" json:"totalWithdrawn"`
	PaidReferrals    int           `db:"paid_referrals" json:"paidReferrals"`
	UnpaidReferrals  int           `db:"unpaid_referrals" json:"unpaidReferrals"`
	TotalReferrals   int           `db:"total_referrals" json:"totalReferrals"`
	BlockReason      string        `db:"block_reason" json:"blockReason,omitempty"`
	RegistrationDate time.Time     `db:"registration_date" json:"registrationDate"`
	LastSeen         time.Time     `db:"last_seen" json:"lastSeen"`
}

// Payment is one registration-fee submission. Terminal once resolved.
type Payment struct {
	PaymentID        string           `db:"payment_id" json:"paymentId"`
	UserID           int64            `db:"user_id" json:"userId"`
	ScreenshotFileID string           `db:"screenshot_file_id" json:"screenshotFileId"`
	Amount           int64            `db:"amount" json:"amount"`
	Status           ResolutionStatus `db:"status" json:"status"`
	SubmittedAt      time.Time        `db:"submitted_at" json:"submittedAt"`
	VerifiedBy       string           `db:"verified_by" json:"verifiedBy,omitempty"`
	VerifiedAt       *time.Time       `db:"verified_at" json:"verifiedAt,omitempty"`
	RejectionReason  string           `db:"rejection_reason" json:"rejectionReason,omitempty"`
}

// Withdrawal is one payout request. Terminal once resolved.
type Withdrawal struct {
	WithdrawalID    string           `db:"withdrawal_id" json:"withdrawalId"`
	UserID          int64            `db:"user_id" json:"userId"`
	Amount          int64            `db:"amount" json:"amount"`
	PaymentMethod   PayoutMethod     `db:"payment_method" json:"paymentMethod"`
	Phone           string           `db:"phone" json:"phone,omitempty"`
	AccountNumber   string           `db:"account_number" json:"accountNumber,omitempty"`
	AccountName     string           `db:"account_name" json:"accountName,omitempty"`
	Status          ResolutionStatus `db:"status" json:"status"`
	RequestedAt     time.Time        `db:"requested_at" json:"requestedAt"`
	ProcessedBy     string           `db:"processed_by" json:"processedBy,omitempty"`
	ProcessedAt     *time.Time       `db:"processed_at" json:"processedAt,omitempty"`
	RejectionReason string           `db:"rejection_reason" json:"rejectionReason,omitempty"`
}

// Referral records one granted commission. Immutable after creation.
type Referral struct {
	ReferralID       uuid.UUID `db:"referral_id" json:"referralId"`
	ReferrerID       int64     `db:"referrer_id" json:"referrerId"`
	ReferredID       int64     `db:"referred_id" json:"referredUserId"`
	Status           string    `db:"status" json:"status"`
	CommissionAmount int64     `db:"commission_amount" json:"commissionAmount"`
	CreatedAt        time.Time `db:"created_at" json:"date"`
}

// ReferralCompleted is the only referral status this model records:
// a referral row exists exactly when its commission was granted.
const ReferralCompleted = "completed"

// NewPaymentID builds the admin-visible payment identifier. The random
// suffix keeps a resubmission within the same millisecond distinct.
func NewPaymentID(userID int64, at time.Time) string {
	return fmt.Sprintf("PAY_%d_%d_%s", userID, at.UnixMilli(), idSuffix())
}

// NewWithdrawalID builds the admin-visible withdrawal identifier.
func NewWithdrawalID(userID int64, at time.Time) string {
	return fmt.Sprintf("WD_%d_%d_%s", userID, at.UnixMilli(), idSuffix())
}

func idSuffix() string {
	return uuid.NewString()[:8]
}

// StreamLabel renders the human-readable stream name used in messages.
func StreamLabel(s Stream) string {
	if s == StreamNatural {
		return "🔬 Natural Science"
	}
	return "📚 Social Science"
}
