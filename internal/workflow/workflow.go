// Package workflow drives the payment verification and withdrawal
// approval flows. It owns the eligibility rules and the single-
// resolution guarantee; money movement is delegated to the ledger.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jutclasses/enrollbot/internal/config"
	"github.com/jutclasses/enrollbot/internal/ledger"
	"github.com/jutclasses/enrollbot/internal/logger"
	"github.com/jutclasses/enrollbot/internal/models"
	"github.com/jutclasses/enrollbot/internal/store"
)

var (
	// ErrAlreadyResolved means another admin resolved the record first.
	ErrAlreadyResolved = errors.New("workflow: already resolved")
	// ErrDuplicatePending means the user already has a pending submission.
	ErrDuplicatePending = errors.New("workflow: pending submission exists")
	// ErrNotActive means the account has not been activated yet.
	ErrNotActive = errors.New("workflow: account not active")
	// ErrMinReferrals means the paid-referral threshold is not met.
	ErrMinReferrals = errors.New("workflow: not enough paid referrals")
	// ErrBelowMinimum means the requested amount is under the floor.
	ErrBelowMinimum = errors.New("workflow: amount below minimum")
	// ErrExceedsBalance means the requested amount exceeds the balance.
	ErrExceedsBalance = errors.New("workflow: amount exceeds balance")
)

// Service coordinates submissions and admin resolutions.
type Service struct {
	st     store.Store
	ledger *ledger.Service
	prog   config.ProgramConfig
}

func NewService(st store.Store, led *ledger.Service, prog config.ProgramConfig) *Service {
	return &Service{st: st, ledger: led, prog: prog}
}

// SubmitPayment records a registration-fee screenshot for review.
// Rejected payments may be resubmitted; a pending one may not.
func (s *Service) SubmitPayment(ctx context.Context, userID int64, screenshotFileID string) (*models.Payment, error) {
	if _, err := s.st.Account(ctx, userID); err != nil {
		return nil, fmt.Errorf("submit payment: %w", err)
	}
	pending, err := s.st.HasPendingPayment(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("submit payment: %w", err)
	}
	if pending {
		return nil, ErrDuplicatePending
	}

	now := time.Now().UTC()
	p := &models.Payment{
		PaymentID:        models.NewPaymentID(userID, now),
		UserID:           userID,
		ScreenshotFileID: screenshotFileID,
		Amount:           s.prog.RegistrationFee,
		Status:           models.StatusPending,
		SubmittedAt:      now,
	}
	if err := s.st.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("submit payment: %w", err)
	}

	logger.SVCWorkflow.Info("payment submitted",
		slog.String("event", "workflow.payment.submit"),
		slog.String("payment_id", p.PaymentID),
		slog.Int64("user_id", userID),
		slog.Int64("amount", p.Amount),
	)
	return p, nil
}

// ApprovePayment verifies a payment, activates the account, and grants
// the referral commission when the student was referred. The second
// admin to act on the same payment gets ErrAlreadyResolved.
//
// Returns the resolved payment and the activated account.
func (s *Service) ApprovePayment(ctx context.Context, paymentID, adminName string) (*models.Payment, *models.Account, error) {
	p, err := s.st.ResolvePayment(ctx, paymentID, models.StatusApproved, adminName, "")
	switch {
	case errors.Is(err, store.ErrConflict):
		return nil, nil, ErrAlreadyResolved
	case err != nil:
		return nil, nil, fmt.Errorf("approve payment: %w", err)
	}

	if err := s.st.SetAccountStatus(ctx, p.UserID, models.AccountActive, ""); err != nil {
		return nil, nil, fmt.Errorf("activate account: %w", err)
	}
	acc, err := s.st.Account(ctx, p.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("approve payment: %w", err)
	}

	if acc.ReferredBy != nil {
		if err := s.ledger.CreditCommission(ctx, *acc.ReferredBy, acc.TelegramID, s.prog.CommissionPerReferral); err != nil {
			return nil, nil, fmt.Errorf("approve payment: %w", err)
		}
	}

	logger.SVCWorkflow.Info("payment approved",
		slog.String("event", "workflow.payment.approve"),
		slog.String("payment_id", p.PaymentID),
		slog.Int64("user_id", p.UserID),
		slog.String("by", adminName),
		slog.Bool("referred", acc.ReferredBy != nil),
	)
	return p, acc, nil
}

// RejectPayment declines a pending payment with a reason. The account
// stays pending so the student can resubmit.
func (s *Service) RejectPayment(ctx context.Context, paymentID, adminName, reason string) (*models.Payment, error) {
	p, err := s.st.ResolvePayment(ctx, paymentID, models.StatusRejected, adminName, reason)
	switch {
	case errors.Is(err, store.ErrConflict):
		return nil, ErrAlreadyResolved
	case err != nil:
		return nil, fmt.Errorf("reject payment: %w", err)
	}
	logger.SVCWorkflow.Info("payment rejected",
		slog.String("event", "workflow.payment.reject"),
		slog.String("payment_id", p.PaymentID),
		slog.Int64("user_id", p.UserID),
		slog.String("by", adminName),
	)
	return p, nil
}

// WithdrawalRequest carries the payout details collected by the chat flow.
type WithdrawalRequest struct {
	UserID        int64
	Amount        int64
	Method        models.PayoutMethod
	Phone         string
	AccountNumber string
	AccountName   string
}

// CheckEligibility verifies the account may request a payout at all.
// The amount checks happen later, in SubmitWithdrawal.
func (s *Service) CheckEligibility(ctx context.Context, userID int64) (*models.Account, error) {
	acc, err := s.st.Account(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check eligibility: %w", err)
	}
	if acc.Status != models.AccountActive {
		return nil, ErrNotActive
	}
	if acc.PaidReferrals < s.prog.MinPaidReferrals {
		return acc, ErrMinReferrals
	}
	pending, err := s.st.HasPendingWithdrawal(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check eligibility: %w", err)
	}
	if pending {
		return acc, ErrDuplicatePending
	}
	return acc, nil
}

// SubmitWithdrawal validates the request against the program rules and
// records it for admin review. Funds stay on the balance until approval.
func (s *Service) SubmitWithdrawal(ctx context.Context, req WithdrawalRequest) (*models.Withdrawal, error) {
	acc, err := s.CheckEligibility(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if req.Amount < s.prog.MinWithdrawal {
		return nil, ErrBelowMinimum
	}
	if req.Amount > acc.Balance {
		return nil, ErrExceedsBalance
	}

	now := time.Now().UTC()
	w := &models.Withdrawal{
		WithdrawalID:  models.NewWithdrawalID(req.UserID, now),
		UserID:        req.UserID,
		Amount:        req.Amount,
		PaymentMethod: req.Method,
		Phone:         req.Phone,
		AccountNumber: req.AccountNumber,
		AccountName:   req.AccountName,
		Status:        models.StatusPending,
		RequestedAt:   now,
	}
	if err := s.st.CreateWithdrawal(ctx, w); err != nil {
		return nil, fmt.Errorf("submit withdrawal: %w", err)
	}

	logger.SVCWorkflow.Info("withdrawal requested",
		slog.String("event", "workflow.withdrawal.submit"),
		slog.String("withdrawal_id", w.WithdrawalID),
		slog.Int64("user_id", req.UserID),
		slog.Int64("amount", req.Amount),
		slog.String("method", string(req.Method)),
	)
	return w, nil
}

// ApproveWithdrawal marks the request paid out and debits the balance.
// The conditional resolution is the serialization point, so only one
// admin ever reaches the debit. A user has at most one pending request,
// which keeps the balance from being spent out from under it; should
// the debit still come up short, the failure is surfaced loudly.
func (s *Service) ApproveWithdrawal(ctx context.Context, withdrawalID, adminName string) (*models.Withdrawal, error) {
	w, err := s.st.ResolveWithdrawal(ctx, withdrawalID, models.StatusApproved, adminName, "")
	switch {
	case errors.Is(err, store.ErrConflict):
		return nil, ErrAlreadyResolved
	case err != nil:
		return nil, fmt.Errorf("approve withdrawal: %w", err)
	}

	if err := s.ledger.DebitWithdrawal(ctx, w.UserID, w.Amount); err != nil {
		logger.SVCWorkflow.Error("debit failed after approval",
			slog.String("event", "workflow.withdrawal.approve"),
			slog.String("withdrawal_id", w.WithdrawalID),
			slog.Int64("user_id", w.UserID),
			slog.Int64("amount", w.Amount),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("approve withdrawal: %w", err)
	}

	logger.SVCWorkflow.Info("withdrawal approved",
		slog.String("event", "workflow.withdrawal.approve"),
		slog.String("withdrawal_id", w.WithdrawalID),
		slog.Int64("user_id", w.UserID),
		slog.Int64("amount", w.Amount),
		slog.String("by", adminName),
	)
	return w, nil
}

// RejectWithdrawal declines a pending request with a reason. The
// balance is untouched.
func (s *Service) RejectWithdrawal(ctx context.Context, withdrawalID, adminName, reason string) (*models.Withdrawal, error) {
	w, err := s.st.ResolveWithdrawal(ctx, withdrawalID, models.StatusRejected, adminName, reason)
	switch {
	case errors.Is(err, store.ErrConflict):
		return nil, ErrAlreadyResolved
	case err != nil:
		return nil, fmt.Errorf("reject withdrawal: %w", err)
	}
	logger.SVCWorkflow.Info("withdrawal rejected",
		slog.String("event", "workflow.withdrawal.reject"),
		slog.String("withdrawal_id", w.WithdrawalID),
		slog.Int64("user_id", w.UserID),
		slog.String("by", adminName),
	)
	return w, nil
}
