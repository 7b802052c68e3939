package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jutclasses/enrollbot/internal/logger"
	"github.com/jutclasses/enrollbot/internal/models"
)

// Postgres implements Store on top of sqlx.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

const pgUniqueViolation = "23505"

func translateInsertErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
		return ErrConflict
	}
	return err
}

func (s *Postgres) CreateAccount(ctx context.Context, a *models.Account) error {
	const q = `
		INSERT INTO students (
			telegram_id, username, first_name, last_name, full_name,
			contact_number, ju_id, stream, status, referral_code, referred_by,
			balance, total_earned, total_withdrawn,
			paid_referrals, unpaid_referrals, total_referrals,
			block_reason, registration_date, last_seen
		) VALUES (
			:telegram_id, :username, :first_name, :last_name, :full_name,
			:contact_number, :ju_id, :stream, :status, :referral_code, :referred_by,
			:balance, :total_earned, :total_withdrawn,
			:paid_referrals, :unpaid_referrals, :total_referrals,
			:block_reason, :registration_date, :last_seen
		)`
	if _, err := s.db.NamedExecContext(ctx, q, a); err != nil {
		return fmt.Errorf("create account: %w", translateInsertErr(err))
	}
	logger.DB.Debug("account created",
		slog.String("event", "store.account.create"),
		slog.Int64("user_id", a.TelegramID),
		slog.String("referral_code", a.ReferralCode),
	)
	return nil
}

func (s *Postgres) Account(ctx context.Context, telegramID int64) (*models.Account, error) {
	var a models.Account
	err := s.db.GetContext(ctx, &a,
		`SELECT * FROM students WHERE telegram_id = $1`, telegramID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &a, nil
}

func (s *Postgres) AccountByReferralCode(ctx context.Context, code string) (*models.Account, error) {
	var a models.Account
	err := s.db.GetContext(ctx, &a,
		`SELECT * FROM students WHERE referral_code = $1`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account by code: %w", err)
	}
	return &a, nil
}

func (s *Postgres) JUIDExists(ctx context.Context, juID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM students WHERE ju_id = $1)`, juID)
	if err != nil {
		return false, fmt.Errorf("ju id exists: %w", err)
	}
	return exists, nil
}

func (s *Postgres) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM students WHERE referral_code = $1)`, code)
	if err != nil {
		return false, fmt.Errorf("referral code exists: %w", err)
	}
	return exists, nil
}

func (s *Postgres) SetAccountStatus(ctx context.Context, telegramID int64, status models.AccountStatus, reason string) error {
	if status != models.AccountBlocked {
		reason = ""
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE students SET status = $2, block_reason = $3 WHERE telegram_id = $1`,
		telegramID, status, reason)
	if err != nil {
		return fmt.Errorf("set account status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	logger.DB.Debug("account status changed",
		slog.String("event", "store.account.status"),
		slog.Int64("user_id", telegramID),
		slog.String("status", string(status)),
	)
	return nil
}

func (s *Postgres) TouchLastSeen(ctx context.Context, telegramID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE students SET last_seen = $2 WHERE telegram_id = $1`,
		telegramID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("touch last seen: %w", err)
	}
	return nil
}

func (s *Postgres) DeleteAccount(ctx context.Context, telegramID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM students WHERE telegram_id = $1`, telegramID)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) RecordPendingReferral(ctx context.Context, referrerID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE students SET
			unpaid_referrals = unpaid_referrals + 1,
			total_referrals  = total_referrals + 1
		WHERE telegram_id = $1`, referrerID)
	if err != nil {
		return fmt.Errorf("record pending referral: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) CreditCommission(ctx context.Context, referrerID int64, amount int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE students SET
			balance          = balance + $2,
			total_earned     = total_earned + $2,
			paid_referrals   = paid_referrals + 1,
			unpaid_referrals = GREATEST(unpaid_referrals - 1, 0)
		WHERE telegram_id = $1`, referrerID, amount)
	if err != nil {
		return fmt.Errorf("credit commission: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) DebitWithdrawal(ctx context.Context, telegramID int64, amount int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE students SET
			balance         = balance - $2,
			total_withdrawn = total_withdrawn + $2
		WHERE telegram_id = $1 AND balance >= $2`, telegramID, amount)
	if err != nil {
		return fmt.Errorf("debit withdrawal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, accErr := s.Account(ctx, telegramID); errors.Is(accErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (s *Postgres) ListAccounts(ctx context.Context, f AccountFilter) ([]models.Account, error) {
	q := `SELECT * FROM students WHERE 1=1`
	args := []any{}
	if f.Status != "" {
		args = append(args, f.Status)
		q += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Stream != "" {
		args = append(args, f.Stream)
		q += fmt.Sprintf(" AND stream = $%d", len(args))
	}
	q += " ORDER BY registration_date DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	var out []models.Account
	if err := s.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return out, nil
}

func (s *Postgres) SearchAccounts(ctx context.Context, query string, limit int) ([]models.Account, error) {
	pattern := "%" + query + "%"
	var out []models.Account
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM students
		WHERE full_name ILIKE $1
		   OR username ILIKE $1
		   OR ju_id ILIKE $1
		   OR CAST(telegram_id AS TEXT) = $2
		ORDER BY registration_date DESC
		LIMIT $3`, pattern, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search accounts: %w", err)
	}
	return out, nil
}

func (s *Postgres) TopReferrers(ctx context.Context, limit int) ([]models.Account, error) {
	var out []models.Account
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM students
		WHERE paid_referrals > 0
		ORDER BY paid_referrals DESC, total_earned DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("top referrers: %w", err)
	}
	return out, nil
}

func (s *Postgres) ReferrerRank(ctx context.Context, telegramID int64) (int, error) {
	var rank int
	err := s.db.GetContext(ctx, &rank, `
		SELECT COUNT(*) + 1 FROM students
		WHERE paid_referrals > (
			SELECT paid_referrals FROM students WHERE telegram_id = $1
		)`, telegramID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("referrer rank: %w", err)
	}
	return rank, nil
}

func (s *Postgres) CreatePayment(ctx context.Context, p *models.Payment) error {
	const q = `
		INSERT INTO payments (
			payment_id, user_id, screenshot_file_id, amount, status,
			submitted_at, verified_by, verified_at, rejection_reason
		) VALUES (
			:payment_id, :user_id, :screenshot_file_id, :amount, :status,
			:submitted_at, :verified_by, :verified_at, :rejection_reason
		)`
	if _, err := s.db.NamedExecContext(ctx, q, p); err != nil {
		return fmt.Errorf("create payment: %w", translateInsertErr(err))
	}
	return nil
}

func (s *Postgres) Payment(ctx context.Context, paymentID string) (*models.Payment, error) {
	var p models.Payment
	err := s.db.GetContext(ctx, &p,
		`SELECT * FROM payments WHERE payment_id = $1`, paymentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return &p, nil
}

func (s *Postgres) HasPendingPayment(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM payments WHERE user_id = $1 AND status = 'pending'
		)`, userID)
	if err != nil {
		return false, fmt.Errorf("has pending payment: %w", err)
	}
	return exists, nil
}

func (s *Postgres) ListPayments(ctx context.Context, status models.ResolutionStatus, limit int) ([]models.Payment, error) {
	var out []models.Payment
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM payments
		WHERE status = $1
		ORDER BY submitted_at ASC
		LIMIT NULLIF($2, 0)`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return out, nil
}

func (s *Postgres) ResolvePayment(ctx context.Context, paymentID string, status models.ResolutionStatus, by string, reason string) (*models.Payment, error) {
	var p models.Payment
	err := s.db.GetContext(ctx, &p, `
		UPDATE payments SET
			status           = $2,
			verified_by      = $3,
			verified_at      = $4,
			rejection_reason = $5
		WHERE payment_id = $1 AND status = 'pending'
		RETURNING *`,
		paymentID, status, by, time.Now().UTC(), reason)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.Payment(ctx, paymentID); errors.Is(getErr, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("resolve payment: %w", err)
	}
	return &p, nil
}

func (s *Postgres) CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	const q = `
		INSERT INTO withdrawals (
			withdrawal_id, user_id, amount, payment_method, phone,
			account_number, account_name, status, requested_at,
			processed_by, processed_at, rejection_reason
		) VALUES (
			:withdrawal_id, :user_id, :amount, :payment_method, :phone,
			:account_number, :account_name, :status, :requested_at,
			:processed_by, :processed_at, :rejection_reason
		)`
	if _, err := s.db.NamedExecContext(ctx, q, w); err != nil {
		return fmt.Errorf("create withdrawal: %w", translateInsertErr(err))
	}
	return nil
}

func (s *Postgres) Withdrawal(ctx context.Context, withdrawalID string) (*models.Withdrawal, error) {
	var w models.Withdrawal
	err := s.db.GetContext(ctx, &w,
		`SELECT * FROM withdrawals WHERE withdrawal_id = $1`, withdrawalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get withdrawal: %w", err)
	}
	return &w, nil
}

func (s *Postgres) HasPendingWithdrawal(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM withdrawals WHERE user_id = $1 AND status = 'pending'
		)`, userID)
	if err != nil {
		return false, fmt.Errorf("has pending withdrawal: %w", err)
	}
	return exists, nil
}

func (s *Postgres) ListWithdrawals(ctx context.Context, status models.ResolutionStatus, limit int) ([]models.Withdrawal, error) {
	var out []models.Withdrawal
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM withdrawals
		WHERE status = $1
		ORDER BY requested_at ASC
		LIMIT NULLIF($2, 0)`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}
	return out, nil
}

func (s *Postgres) ResolveWithdrawal(ctx context.Context, withdrawalID string, status models.ResolutionStatus, by string, reason string) (*models.Withdrawal, error) {
	var w models.Withdrawal
	err := s.db.GetContext(ctx, &w, `
		UPDATE withdrawals SET
			status           = $2,
			processed_by     = $3,
			processed_at     = $4,
			rejection_reason = $5
		WHERE withdrawal_id = $1 AND status = 'pending'
		RETURNING *`,
		withdrawalID, status, by, time.Now().UTC(), reason)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.Withdrawal(ctx, withdrawalID); errors.Is(getErr, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("resolve withdrawal: %w", err)
	}
	return &w, nil
}

func (s *Postgres) CreateReferral(ctx context.Context, r *models.Referral) error {
	const q = `
		INSERT INTO referrals (
			referral_id, referrer_id, referred_id, status,
			commission_amount, created_at
		) VALUES (
			:referral_id, :referrer_id, :referred_id, :status,
			:commission_amount, :created_at
		)`
	if _, err := s.db.NamedExecContext(ctx, q, r); err != nil {
		return fmt.Errorf("create referral: %w", translateInsertErr(err))
	}
	return nil
}

func (s *Postgres) ReferralsByReferrer(ctx context.Context, referrerID int64, limit int) ([]models.Referral, error) {
	var out []models.Referral
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM referrals
		WHERE referrer_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, referrerID, limit)
	if err != nil {
		return nil, fmt.Errorf("referrals by referrer: %w", err)
	}
	return out, nil
}

func (s *Postgres) Totals(ctx context.Context) (*Totals, error) {
	var t Totals
	err := s.db.GetContext(ctx, &t, `
		SELECT
			(SELECT COUNT(*) FROM students)                                            AS students,
			(SELECT COUNT(*) FROM students WHERE status = 'active')                    AS active_students,
			(SELECT COUNT(*) FROM students WHERE status = 'pending')                   AS pending_students,
			(SELECT COUNT(*) FROM students WHERE status = 'blocked')                   AS blocked_students,
			(SELECT COUNT(*) FROM students WHERE stream = 'natural')                   AS natural_stream,
			(SELECT COUNT(*) FROM students WHERE stream = 'social')                    AS social_stream,
			(SELECT COUNT(*) FROM payments WHERE status = 'pending')                   AS pending_payments,
			(SELECT COUNT(*) FROM withdrawals WHERE status = 'pending')                AS pending_payouts,
			(SELECT COALESCE(SUM(total_earned), 0) FROM students)                      AS total_earned,
			(SELECT COALESCE(SUM(total_withdrawn), 0) FROM students)                   AS total_withdrawn,
			(SELECT COALESCE(SUM(total_referrals), 0) FROM students)                   AS total_referrals`)
	if err != nil {
		return nil, fmt.Errorf("totals: %w", err)
	}
	return &t, nil
}

var _ Store = (*Postgres)(nil)
