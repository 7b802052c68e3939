package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jutclasses/enrollbot/internal/models"
	"github.com/jutclasses/enrollbot/internal/store"
)

func seedAccount(t *testing.T, st store.Store, id int64, juID, code string) {
	t.Helper()
	err := st.CreateAccount(context.Background(), &models.Account{
		TelegramID:       id,
		FullName:         "Test Student",
		ContactNumber:    "251911000000",
		JUID:             juID,
		Stream:           models.StreamNatural,
		Status:           models.AccountActive,
		ReferralCode:     code,
		RegistrationDate: time.Now().UTC(),
		LastSeen:         time.Now().UTC(),
	})
	require.NoError(t, err)
}

func TestCreditCommissionRecordsReferral(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := NewService(st)

	seedAccount(t, st, 1, "RU1111/18", "AAA111")
	require.NoError(t, svc.RecordPendingReferral(ctx, 1))
	require.NoError(t, svc.CreditCommission(ctx, 1, 2, 30))

	a, err := st.Account(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(30), a.Balance)
	require.Equal(t, int64(30), a.TotalEarned)
	require.Equal(t, 1, a.PaidReferrals)
	require.Equal(t, 0, a.UnpaidReferrals)
	require.Equal(t, 1, a.TotalReferrals)

	recs, err := st.ReferralsByReferrer(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, int64(2), recs[0].ReferredID)
	require.Equal(t, int64(30), recs[0].CommissionAmount)
	require.Equal(t, models.ReferralCompleted, recs[0].Status)
}

func TestCreditCommissionMissingReferrerIsNoop(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := NewService(st)

	require.NoError(t, svc.CreditCommission(ctx, 404, 2, 30))

	recs, err := st.ReferralsByReferrer(ctx, 404, 10)
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestConcurrentCreditsSum(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := NewService(st)
	seedAccount(t, st, 1, "RU1111/18", "AAA111")

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(referred int64) {
			defer wg.Done()
			require.NoError(t, svc.CreditCommission(ctx, 1, referred, 30))
		}(int64(100 + i))
	}
	wg.Wait()

	a, err := st.Account(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(n*30), a.Balance)
	require.Equal(t, int64(n*30), a.TotalEarned)
	require.Equal(t, n, a.PaidReferrals)
}

func TestDebitWithdrawal(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := NewService(st)
	seedAccount(t, st, 1, "RU1111/18", "AAA111")

	require.NoError(t, svc.CreditCommission(ctx, 1, 2, 30))
	require.NoError(t, svc.CreditCommission(ctx, 1, 3, 30))

	require.ErrorIs(t, svc.DebitWithdrawal(ctx, 1, 100), ErrInsufficientBalance)
	require.NoError(t, svc.DebitWithdrawal(ctx, 1, 50))

	a, err := st.Account(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(10), a.Balance)
	require.Equal(t, int64(50), a.TotalWithdrawn)
	require.Equal(t, a.TotalEarned-a.TotalWithdrawn, a.Balance)
}
