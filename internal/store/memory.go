package store

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jutclasses/enrollbot/internal/models"
)

// Memory is a mutex-guarded in-memory Store used by tests. It mirrors
// the Postgres implementation's contract, including the conditional
// updates that return ErrConflict.
type Memory struct {
	mu          sync.Mutex
	accounts    map[int64]*models.Account
	payments    map[string]*models.Payment
	withdrawals map[string]*models.Withdrawal
	referrals   []models.Referral
}

func NewMemory() *Memory {
	return &Memory{
		accounts:    make(map[int64]*models.Account),
		payments:    make(map[string]*models.Payment),
		withdrawals: make(map[string]*models.Withdrawal),
	}
}

func (m *Memory) CreateAccount(_ context.Context, a *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[a.TelegramID]; ok {
		return ErrConflict
	}
	for _, existing := range m.accounts {
		if existing.JUID == a.JUID || existing.ReferralCode == a.ReferralCode {
			return ErrConflict
		}
	}
	cp := *a
	m.accounts[a.TelegramID] = &cp
	return nil
}

func (m *Memory) Account(_ context.Context, telegramID int64) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[telegramID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) AccountByReferralCode(_ context.Context, code string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.ReferralCode == code {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) JUIDExists(_ context.Context, juID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.JUID == juID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ReferralCodeExists(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.ReferralCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) SetAccountStatus(_ context.Context, telegramID int64, status models.AccountStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[telegramID]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	if status == models.AccountBlocked {
		a.BlockReason = reason
	} else {
		a.BlockReason = ""
	}
	return nil
}

func (m *Memory) TouchLastSeen(_ context.Context, telegramID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[telegramID]; ok {
		a.LastSeen = time.Now().UTC()
	}
	return nil
}

func (m *Memory) DeleteAccount(_ context.Context, telegramID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[telegramID]; !ok {
		return ErrNotFound
	}
	delete(m.accounts, telegramID)
	for id, p := range m.payments {
		if p.UserID == telegramID {
			delete(m.payments, id)
		}
	}
	for id, w := range m.withdrawals {
		if w.UserID == telegramID {
			delete(m.withdrawals, id)
		}
	}
	return nil
}

func (m *Memory) RecordPendingReferral(_ context.Context, referrerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[referrerID]
	if !ok {
		return ErrNotFound
	}
	a.UnpaidReferrals++
	a.TotalReferrals++
	return nil
}

func (m *Memory) CreditCommission(_ context.Context, referrerID int64, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[referrerID]
	if !ok {
		return ErrNotFound
	}
	a.Balance += amount
	a.TotalEarned += amount
	a.PaidReferrals++
	if a.UnpaidReferrals > 0 {
		a.UnpaidReferrals--
	}
	return nil
}

func (m *Memory) DebitWithdrawal(_ context.Context, telegramID int64, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[telegramID]
	if !ok {
		return ErrNotFound
	}
	if a.Balance < amount {
		return ErrConflict
	}
	a.Balance -= amount
	a.TotalWithdrawn += amount
	return nil
}

func (m *Memory) ListAccounts(_ context.Context, f AccountFilter) ([]models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Account
	for _, a := range m.accounts {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Stream != "" && a.Stream != f.Stream {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RegistrationDate.After(out[j].RegistrationDate)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) SearchAccounts(_ context.Context, query string, limit int) ([]models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	needle := strings.ToLower(query)
	var out []models.Account
	for _, a := range m.accounts {
		switch {
		case strings.Contains(strings.ToLower(a.FullName), needle),
			strings.Contains(strings.ToLower(a.Username), needle),
			strings.Contains(strings.ToLower(a.JUID), needle),
			strconv.FormatInt(a.TelegramID, 10) == query:
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RegistrationDate.After(out[j].RegistrationDate)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) TopReferrers(_ context.Context, limit int) ([]models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Account
	for _, a := range m.accounts {
		if a.PaidReferrals > 0 {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PaidReferrals != out[j].PaidReferrals {
			return out[i].PaidReferrals > out[j].PaidReferrals
		}
		return out[i].TotalEarned > out[j].TotalEarned
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ReferrerRank(_ context.Context, telegramID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[telegramID]
	if !ok {
		return 0, ErrNotFound
	}
	rank := 1
	for _, other := range m.accounts {
		if other.PaidReferrals > a.PaidReferrals {
			rank++
		}
	}
	return rank, nil
}

func (m *Memory) CreatePayment(_ context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.PaymentID]; ok {
		return ErrConflict
	}
	cp := *p
	m.payments[p.PaymentID] = &cp
	return nil
}

func (m *Memory) Payment(_ context.Context, paymentID string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) HasPendingPayment(_ context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.UserID == userID && p.Status == models.StatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ListPayments(_ context.Context, status models.ResolutionStatus, limit int) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payment
	for _, p := range m.payments {
		if p.Status == status {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ResolvePayment(_ context.Context, paymentID string, status models.ResolutionStatus, by string, reason string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Status != models.StatusPending {
		return nil, ErrConflict
	}
	now := time.Now().UTC()
	p.Status = status
	p.VerifiedBy = by
	p.VerifiedAt = &now
	p.RejectionReason = reason
	cp := *p
	return &cp, nil
}

func (m *Memory) CreateWithdrawal(_ context.Context, w *models.Withdrawal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.withdrawals[w.WithdrawalID]; ok {
		return ErrConflict
	}
	cp := *w
	m.withdrawals[w.WithdrawalID] = &cp
	return nil
}

func (m *Memory) Withdrawal(_ context.Context, withdrawalID string) (*models.Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.withdrawals[withdrawalID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *Memory) HasPendingWithdrawal(_ context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.withdrawals {
		if w.UserID == userID && w.Status == models.StatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ListWithdrawals(_ context.Context, status models.ResolutionStatus, limit int) ([]models.Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Withdrawal
	for _, w := range m.withdrawals {
		if w.Status == status {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ResolveWithdrawal(_ context.Context, withdrawalID string, status models.ResolutionStatus, by string, reason string) (*models.Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.withdrawals[withdrawalID]
	if !ok {
		return nil, ErrNotFound
	}
	if w.Status != models.StatusPending {
		return nil, ErrConflict
	}
	now := time.Now().UTC()
	w.Status = status
	w.ProcessedBy = by
	w.ProcessedAt = &now
	w.RejectionReason = reason
	cp := *w
	return &cp, nil
}

func (m *Memory) CreateReferral(_ context.Context, r *models.Referral) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.referrals = append(m.referrals, *r)
	return nil
}

func (m *Memory) ReferralsByReferrer(_ context.Context, referrerID int64, limit int) ([]models.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Referral
	for _, r := range m.referrals {
		if r.ReferrerID == referrerID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Totals(_ context.Context) (*Totals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &Totals{}
	for _, a := range m.accounts {
		t.Students++
		switch a.Status {
		case models.AccountActive:
			t.ActiveStudents++
		case models.AccountPending:
			t.PendingStudents++
		case models.AccountBlocked:
			t.BlockedStudents++
		}
		switch a.Stream {
		case models.StreamNatural:
			t.NaturalStream++
		case models.StreamSocial:
			t.SocialStream++
		}
		t.TotalEarned += a.TotalEarned
		t.TotalWithdrawn += a.TotalWithdrawn
		t.TotalReferrals += a.TotalReferrals
	}
	for _, p := range m.payments {
		if p.Status == models.StatusPending {
			t.PendingPayments++
		}
	}
	for _, w := range m.withdrawals {
		if w.Status == models.StatusPending {
			t.PendingPayouts++
		}
	}
	return t, nil
}

var _ Store = (*Memory)(nil)
