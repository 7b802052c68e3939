// Package ledger owns the money and referral-counter movements.
// Every mutation goes through the store's atomic increments, so
// concurrent commissions and debits cannot lose updates.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jutclasses/enrollbot/internal/logger"
	"github.com/jutclasses/enrollbot/internal/models"
	"github.com/jutclasses/enrollbot/internal/store"
)

// ErrInsufficientBalance is returned when a debit exceeds the balance.
var ErrInsufficientBalance = errors.New("ledger: insufficient balance")

// Service applies commission credits and withdrawal debits.
type Service struct {
	st store.Store
}

func NewService(st store.Store) *Service {
	return &Service{st: st}
}

// RecordPendingReferral notes that a referred user has registered but
// not yet paid. Missing referrers are tolerated: the referral link may
// point at a deleted account.
func (s *Service) RecordPendingReferral(ctx context.Context, referrerID int64) error {
	err := s.st.RecordPendingReferral(ctx, referrerID)
	if errors.Is(err, store.ErrNotFound) {
		logger.SVCLedger.Warn("referrer missing, pending referral skipped",
			slog.String("event", "ledger.referral.pending"),
			slog.Int64("referrer_id", referrerID),
		)
		return nil
	}
	return err
}

// CreditCommission grants the referral commission to the referrer and
// records the grant. Called exactly once per approved payment of a
// referred user. A missing referrer account makes this a logged no-op.
func (s *Service) CreditCommission(ctx context.Context, referrerID, referredID int64, amount int64) error {
	err := s.st.CreditCommission(ctx, referrerID, amount)
	if errors.Is(err, store.ErrNotFound) {
		logger.SVCLedger.Warn("referrer missing, commission skipped",
			slog.String("event", "ledger.commission"),
			slog.Int64("referrer_id", referrerID),
			slog.Int64("referred_id", referredID),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("credit commission: %w", err)
	}

	rec := &models.Referral{
		ReferralID:       uuid.New(),
		ReferrerID:       referrerID,
		ReferredID:       referredID,
		Status:           models.ReferralCompleted,
		CommissionAmount: amount,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.st.CreateReferral(ctx, rec); err != nil {
		return fmt.Errorf("record referral: %w", err)
	}

	logger.SVCLedger.Info("commission credited",
		slog.String("event", "ledger.commission"),
		slog.Int64("referrer_id", referrerID),
		slog.Int64("referred_id", referredID),
		slog.Int64("amount", amount),
	)
	return nil
}

// DebitWithdrawal moves funds out of the balance into total withdrawn.
// The store enforces that the balance covers the amount.
func (s *Service) DebitWithdrawal(ctx context.Context, userID int64, amount int64) error {
	err := s.st.DebitWithdrawal(ctx, userID, amount)
	switch {
	case errors.Is(err, store.ErrConflict):
		return ErrInsufficientBalance
	case err != nil:
		return fmt.Errorf("debit withdrawal: %w", err)
	}
	logger.SVCLedger.Info("withdrawal debited",
		slog.String("event", "ledger.debit"),
		slog.Int64("user_id", userID),
		slog.Int64("amount", amount),
	)
	return nil
}
