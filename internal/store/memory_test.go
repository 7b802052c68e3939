package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jutclasses/enrollbot/internal/models"
)

func testAccount(id int64, juID, code string) *models.Account {
	return &models.Account{
		TelegramID:       id,
		FullName:         "Test Student",
		ContactNumber:    "251911000000",
		JUID:             juID,
		Stream:           models.StreamNatural,
		Status:           models.AccountPending,
		ReferralCode:     code,
		RegistrationDate: time.Now().UTC(),
		LastSeen:         time.Now().UTC(),
	}
}

func TestMemoryCreateAccountConflicts(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.CreateAccount(ctx, testAccount(1, "RU1234/18", "JAN123")))
	require.ErrorIs(t, m.CreateAccount(ctx, testAccount(1, "RU9999/18", "XYZ111")), ErrConflict)
	require.ErrorIs(t, m.CreateAccount(ctx, testAccount(2, "RU1234/18", "XYZ111")), ErrConflict)
	require.ErrorIs(t, m.CreateAccount(ctx, testAccount(2, "RU5678/18", "JAN123")), ErrConflict)
	require.NoError(t, m.CreateAccount(ctx, testAccount(2, "RU5678/18", "XYZ111")))
}

func TestMemoryDebitGuard(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.CreateAccount(ctx, testAccount(1, "RU1234/18", "JAN123")))

	require.NoError(t, m.CreditCommission(ctx, 1, 30))
	require.NoError(t, m.CreditCommission(ctx, 1, 30))

	require.ErrorIs(t, m.DebitWithdrawal(ctx, 1, 100), ErrConflict)
	require.NoError(t, m.DebitWithdrawal(ctx, 1, 50))

	a, err := m.Account(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(10), a.Balance)
	require.Equal(t, int64(60), a.TotalEarned)
	require.Equal(t, int64(50), a.TotalWithdrawn)
	require.Equal(t, a.TotalEarned-a.TotalWithdrawn, a.Balance)
}

func TestMemoryReferralCounters(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.CreateAccount(ctx, testAccount(1, "RU1234/18", "JAN123")))

	require.NoError(t, m.RecordPendingReferral(ctx, 1))
	require.NoError(t, m.RecordPendingReferral(ctx, 1))

	a, err := m.Account(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 2, a.UnpaidReferrals)
	require.Equal(t, 2, a.TotalReferrals)

	require.NoError(t, m.CreditCommission(ctx, 1, 30))
	a, err = m.Account(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, a.PaidReferrals)
	require.Equal(t, 1, a.UnpaidReferrals)
	require.Equal(t, a.PaidReferrals+a.UnpaidReferrals, a.TotalReferrals)

	// Unpaid never goes negative even if credits outrun pending records.
	require.NoError(t, m.CreditCommission(ctx, 1, 30))
	require.NoError(t, m.CreditCommission(ctx, 1, 30))
	a, err = m.Account(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 0, a.UnpaidReferrals)
}

func TestMemoryDeleteAccountCascades(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.CreateAccount(ctx, testAccount(1, "RU1234/18", "JAN123")))

	require.NoError(t, m.CreatePayment(ctx, &models.Payment{
		PaymentID:        models.NewPaymentID(1, time.Now()),
		UserID:           1,
		ScreenshotFileID: "shot",
		Amount:           500,
		Status:           models.StatusPending,
		SubmittedAt:      time.Now().UTC(),
	}))
	require.NoError(t, m.CreateWithdrawal(ctx, &models.Withdrawal{
		WithdrawalID:  models.NewWithdrawalID(1, time.Now()),
		UserID:        1,
		Amount:        50,
		PaymentMethod: models.MethodTelebirr,
		Phone:         "251912345678",
		Status:        models.StatusPending,
		RequestedAt:   time.Now().UTC(),
	}))

	require.NoError(t, m.DeleteAccount(ctx, 1))

	_, err := m.Account(ctx, 1)
	require.ErrorIs(t, err, ErrNotFound)

	payments, err := m.ListPayments(ctx, models.StatusPending, 0)
	require.NoError(t, err)
	require.Empty(t, payments)

	withdrawals, err := m.ListWithdrawals(ctx, models.StatusPending, 0)
	require.NoError(t, err)
	require.Empty(t, withdrawals)
}

func TestMemoryReferrerRank(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.CreateAccount(ctx, testAccount(1, "RU1111/18", "AAA111")))
	require.NoError(t, m.CreateAccount(ctx, testAccount(2, "RU2222/18", "BBB222")))
	require.NoError(t, m.CreateAccount(ctx, testAccount(3, "RU3333/18", "CCC333")))

	require.NoError(t, m.CreditCommission(ctx, 1, 30))
	require.NoError(t, m.CreditCommission(ctx, 1, 30))
	require.NoError(t, m.CreditCommission(ctx, 2, 30))

	rank, err := m.ReferrerRank(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, rank)

	rank, err = m.ReferrerRank(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 2, rank)

	rank, err = m.ReferrerRank(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, 3, rank)

	_, err = m.ReferrerRank(ctx, 404)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryResolvePaymentOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.CreateAccount(ctx, testAccount(1, "RU1234/18", "JAN123")))

	p := &models.Payment{
		PaymentID:        models.NewPaymentID(1, time.Now()),
		UserID:           1,
		ScreenshotFileID: "file-1",
		Amount:           500,
		Status:           models.StatusPending,
		SubmittedAt:      time.Now().UTC(),
	}
	require.NoError(t, m.CreatePayment(ctx, p))

	resolved, err := m.ResolvePayment(ctx, p.PaymentID, models.StatusApproved, "admin", "")
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, resolved.Status)
	require.NotNil(t, resolved.VerifiedAt)

	_, err = m.ResolvePayment(ctx, p.PaymentID, models.StatusRejected, "admin", "dup")
	require.ErrorIs(t, err, ErrConflict)

	_, err = m.ResolvePayment(ctx, "PAY_missing", models.StatusApproved, "admin", "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryResolveWithdrawalOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.CreateAccount(ctx, testAccount(1, "RU1234/18", "JAN123")))

	w := &models.Withdrawal{
		WithdrawalID:  models.NewWithdrawalID(1, time.Now()),
		UserID:        1,
		Amount:        50,
		PaymentMethod: models.MethodTelebirr,
		Phone:         "251912345678",
		Status:        models.StatusPending,
		RequestedAt:   time.Now().UTC(),
	}
	require.NoError(t, m.CreateWithdrawal(ctx, w))

	has, err := m.HasPendingWithdrawal(ctx, 1)
	require.NoError(t, err)
	require.True(t, has)

	_, err = m.ResolveWithdrawal(ctx, w.WithdrawalID, models.StatusRejected, "admin", "busy")
	require.NoError(t, err)

	_, err = m.ResolveWithdrawal(ctx, w.WithdrawalID, models.StatusApproved, "admin", "")
	require.ErrorIs(t, err, ErrConflict)
}

func TestMemoryTotals(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	a := testAccount(1, "RU1234/18", "JAN123")
	a.Status = models.AccountActive
	require.NoError(t, m.CreateAccount(ctx, a))

	b := testAccount(2, "RU5678/18", "BOB456")
	b.Stream = models.StreamSocial
	require.NoError(t, m.CreateAccount(ctx, b))

	require.NoError(t, m.RecordPendingReferral(ctx, 1))
	require.NoError(t, m.CreditCommission(ctx, 1, 30))

	tot, err := m.Totals(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, tot.Students)
	require.Equal(t, 1, tot.ActiveStudents)
	require.Equal(t, 1, tot.PendingStudents)
	require.Equal(t, 1, tot.NaturalStream)
	require.Equal(t, 1, tot.SocialStream)
	require.Equal(t, int64(30), tot.TotalEarned)
	require.Equal(t, 1, tot.TotalReferrals)
}
