// Package store is the persistence layer for accounts, payments,
// withdrawals, and referral records. The Postgres implementation is the
// production one; the in-memory implementation backs tests.
package store

import (
	"context"
	"errors"

	"github.com/jutclasses/enrollbot/internal/models"
)

var (
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict means a guarded update lost to an earlier writer:
	// a duplicate key on insert, a second resolution of the same
	// payment or withdrawal, or a debit exceeding the balance.
	ErrConflict = errors.New("store: conflict")
)

// AccountFilter narrows account listings. Zero values mean "any".
type AccountFilter struct {
	Status models.AccountStatus
	Stream models.Stream
	Limit  int
}

// Totals is the aggregate snapshot behind the admin analytics view.
type Totals struct {
	Students        int   `db:"students"`
	ActiveStudents  int   `db:"active_students"`
	PendingStudents int   `db:"pending_students"`
	BlockedStudents int   `db:"blocked_students"`
	NaturalStream   int   `db:"natural_stream"`
	SocialStream    int   `db:"social_stream"`
	PendingPayments int   `db:"pending_payments"`
	PendingPayouts  int   `db:"pending_payouts"`
	TotalEarned     int64 `db:"total_earned"`
	TotalWithdrawn  int64 `db:"total_withdrawn"`
	TotalReferrals  int   `db:"total_referrals"`
}

// AccountStore holds student accounts and their referral counters.
//
// The counter mutations are expressed as atomic increments so that
// concurrent commissions and debits never lose updates.
type AccountStore interface {
	// CreateAccount inserts a new account. Returns ErrConflict when the
	// telegram id, institutional id, or referral code is already taken.
	CreateAccount(ctx context.Context, a *models.Account) error
	Account(ctx context.Context, telegramID int64) (*models.Account, error)
	AccountByReferralCode(ctx context.Context, code string) (*models.Account, error)
	JUIDExists(ctx context.Context, juID string) (bool, error)
	ReferralCodeExists(ctx context.Context, code string) (bool, error)

	// SetAccountStatus moves an account between pending, active, and
	// blocked. The reason is kept only for blocks.
	SetAccountStatus(ctx context.Context, telegramID int64, status models.AccountStatus, reason string) error
	TouchLastSeen(ctx context.Context, telegramID int64) error
	// DeleteAccount removes the account together with its payments and
	// withdrawals.
	DeleteAccount(ctx context.Context, telegramID int64) error

	// RecordPendingReferral bumps the referrer's unpaid and total
	// counters when a referred user registers.
	RecordPendingReferral(ctx context.Context, referrerID int64) error
	// CreditCommission adds the commission to the referrer's balance and
	// earnings and moves one referral from unpaid to paid. The unpaid
	// counter never goes below zero.
	CreditCommission(ctx context.Context, referrerID int64, amount int64) error
	// DebitWithdrawal subtracts the amount from balance and adds it to
	// total withdrawn, only if the balance covers it. Returns ErrConflict
	// when it does not.
	DebitWithdrawal(ctx context.Context, telegramID int64, amount int64) error

	ListAccounts(ctx context.Context, f AccountFilter) ([]models.Account, error)
	SearchAccounts(ctx context.Context, query string, limit int) ([]models.Account, error)
	TopReferrers(ctx context.Context, limit int) ([]models.Account, error)
	// ReferrerRank reports the account's 1-based leaderboard position by
	// paid referrals. Accounts without paid referrals share the bottom.
	ReferrerRank(ctx context.Context, telegramID int64) (int, error)
}

// PaymentStore holds registration-fee submissions.
type PaymentStore interface {
	CreatePayment(ctx context.Context, p *models.Payment) error
	Payment(ctx context.Context, paymentID string) (*models.Payment, error)
	HasPendingPayment(ctx context.Context, userID int64) (bool, error)
	// ListPayments returns submissions with the status, oldest first.
	// A non-positive limit means no limit.
	ListPayments(ctx context.Context, status models.ResolutionStatus, limit int) ([]models.Payment, error)
	// ResolvePayment finalizes a pending payment. Returns ErrConflict if
	// the payment was already resolved, ErrNotFound if it does not exist.
	ResolvePayment(ctx context.Context, paymentID string, status models.ResolutionStatus, by string, reason string) (*models.Payment, error)
}

// WithdrawalStore holds payout requests.
type WithdrawalStore interface {
	CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error
	Withdrawal(ctx context.Context, withdrawalID string) (*models.Withdrawal, error)
	HasPendingWithdrawal(ctx context.Context, userID int64) (bool, error)
	ListWithdrawals(ctx context.Context, status models.ResolutionStatus, limit int) ([]models.Withdrawal, error)
	// ResolveWithdrawal finalizes a pending withdrawal. Same contract as
	// ResolvePayment.
	ResolveWithdrawal(ctx context.Context, withdrawalID string, status models.ResolutionStatus, by string, reason string) (*models.Withdrawal, error)
}

// ReferralStore holds granted-commission records.
type ReferralStore interface {
	CreateReferral(ctx context.Context, r *models.Referral) error
	ReferralsByReferrer(ctx context.Context, referrerID int64, limit int) ([]models.Referral, error)
}

// Store is the full persistence surface the services compose over.
type Store interface {
	AccountStore
	PaymentStore
	WithdrawalStore
	ReferralStore

	Totals(ctx context.Context) (*Totals, error)
}
