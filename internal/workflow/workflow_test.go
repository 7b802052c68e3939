package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jutclasses/enrollbot/internal/config"
	"github.com/jutclasses/enrollbot/internal/ledger"
	"github.com/jutclasses/enrollbot/internal/models"
	"github.com/jutclasses/enrollbot/internal/store"
)

func testProgram() config.ProgramConfig {
	return config.ProgramConfig{
		RegistrationFee:       500,
		CommissionPerReferral: 30,
		MinWithdrawal:         30,
		MinPaidReferrals:      4,
		PhonePrefix:           "251",
		Currency:              "ETB",
	}
}

func newService(st store.Store) *Service {
	return NewService(st, ledger.NewService(st), testProgram())
}

func seed(t *testing.T, st store.Store, a *models.Account) {
	t.Helper()
	if a.RegistrationDate.IsZero() {
		a.RegistrationDate = time.Now().UTC()
		a.LastSeen = a.RegistrationDate
	}
	require.NoError(t, st.CreateAccount(context.Background(), a))
}

func TestSubmitPaymentDuplicatePending(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := newService(st)
	seed(t, st, &models.Account{
		TelegramID: 1, FullName: "Jane Doe", JUID: "RU1234/18",
		Stream: models.StreamNatural, Status: models.AccountPending, ReferralCode: "JAN123",
	})

	p, err := svc.SubmitPayment(ctx, 1, "file-1")
	require.NoError(t, err)
	require.Equal(t, int64(500), p.Amount)
	require.Equal(t, models.StatusPending, p.Status)

	_, err = svc.SubmitPayment(ctx, 1, "file-2")
	require.ErrorIs(t, err, ErrDuplicatePending)
}

func TestApprovePaymentActivatesAndCredits(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := newService(st)

	seed(t, st, &models.Account{
		TelegramID: 1, FullName: "Jane Doe", JUID: "RU1234/18",
		Stream: models.StreamNatural, Status: models.AccountActive, ReferralCode: "JAN123",
	})
	referrer := int64(1)
	seed(t, st, &models.Account{
		TelegramID: 2, FullName: "John Smith", JUID: "RU5678/18",
		Stream: models.StreamSocial, Status: models.AccountPending,
		ReferralCode: "JOH456", ReferredBy: &referrer,
	})
	require.NoError(t, st.RecordPendingReferral(ctx, 1))

	p, err := svc.SubmitPayment(ctx, 2, "file-1")
	require.NoError(t, err)

	resolved, acc, err := svc.ApprovePayment(ctx, p.PaymentID, "admin")
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, resolved.Status)
	require.Equal(t, models.AccountActive, acc.Status)

	ref, err := st.Account(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(30), ref.Balance)
	require.Equal(t, 1, ref.PaidReferrals)
	require.Equal(t, 0, ref.UnpaidReferrals)

	recs, err := st.ReferralsByReferrer(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestApprovePaymentSecondAdminConflicts(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := newService(st)
	seed(t, st, &models.Account{
		TelegramID: 1, FullName: "Jane Doe", JUID: "RU1234/18",
		Stream: models.StreamNatural, Status: models.AccountPending, ReferralCode: "JAN123",
	})

	p, err := svc.SubmitPayment(ctx, 1, "file-1")
	require.NoError(t, err)

	_, _, err = svc.ApprovePayment(ctx, p.PaymentID, "admin-a")
	require.NoError(t, err)

	_, _, err = svc.ApprovePayment(ctx, p.PaymentID, "admin-b")
	require.ErrorIs(t, err, ErrAlreadyResolved)

	_, err = svc.RejectPayment(ctx, p.PaymentID, "admin-b", "late")
	require.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestRejectPaymentAllowsResubmission(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := newService(st)
	seed(t, st, &models.Account{
		TelegramID: 1, FullName: "Jane Doe", JUID: "RU1234/18",
		Stream: models.StreamNatural, Status: models.AccountPending, ReferralCode: "JAN123",
	})

	p, err := svc.SubmitPayment(ctx, 1, "file-1")
	require.NoError(t, err)

	rejected, err := svc.RejectPayment(ctx, p.PaymentID, "admin", "unreadable screenshot")
	require.NoError(t, err)
	require.Equal(t, "unreadable screenshot", rejected.RejectionReason)

	acc, err := st.Account(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, models.AccountPending, acc.Status)

	_, err = svc.SubmitPayment(ctx, 1, "file-2")
	require.NoError(t, err)
}

func activeWithBalance(t *testing.T, st store.Store, id int64, paid int, balance int64) {
	t.Helper()
	seed(t, st, &models.Account{
		TelegramID: id, FullName: "Jane Doe", JUID: "RU1234/18",
		Stream: models.StreamNatural, Status: models.AccountActive, ReferralCode: "JAN123",
	})
	for i := 0; i < paid; i++ {
		require.NoError(t, st.CreditCommission(context.Background(), id, balance/int64(paid)))
	}
}

func TestSubmitWithdrawalEligibility(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := newService(st)

	// Three paid referrals: under the threshold of four.
	activeWithBalance(t, st, 1, 3, 90)
	_, err := svc.SubmitWithdrawal(ctx, WithdrawalRequest{
		UserID: 1, Amount: 50, Method: models.MethodTelebirr, Phone: "251912345678",
	})
	require.ErrorIs(t, err, ErrMinReferrals)
}

func TestWithdrawalLifecycle(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := newService(st)
	activeWithBalance(t, st, 1, 4, 100)

	_, err := svc.SubmitWithdrawal(ctx, WithdrawalRequest{
		UserID: 1, Amount: 10, Method: models.MethodTelebirr, Phone: "251912345678",
	})
	require.ErrorIs(t, err, ErrBelowMinimum)

	_, err = svc.SubmitWithdrawal(ctx, WithdrawalRequest{
		UserID: 1, Amount: 500, Method: models.MethodTelebirr, Phone: "251912345678",
	})
	require.ErrorIs(t, err, ErrExceedsBalance)

	w, err := svc.SubmitWithdrawal(ctx, WithdrawalRequest{
		UserID: 1, Amount: 50, Method: models.MethodTelebirr, Phone: "251912345678",
	})
	require.NoError(t, err)

	// Only one pending request at a time.
	_, err = svc.SubmitWithdrawal(ctx, WithdrawalRequest{
		UserID: 1, Amount: 30, Method: models.MethodTelebirr, Phone: "251912345678",
	})
	require.ErrorIs(t, err, ErrDuplicatePending)

	approved, err := svc.ApproveWithdrawal(ctx, w.WithdrawalID, "admin")
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, approved.Status)

	acc, err := st.Account(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(50), acc.Balance)
	require.Equal(t, int64(50), acc.TotalWithdrawn)

	_, err = svc.ApproveWithdrawal(ctx, w.WithdrawalID, "admin-b")
	require.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestRejectWithdrawalKeepsBalance(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := newService(st)
	activeWithBalance(t, st, 1, 4, 100)

	w, err := svc.SubmitWithdrawal(ctx, WithdrawalRequest{
		UserID: 1, Amount: 50, Method: models.MethodCBE,
		AccountNumber: "1000123456789", AccountName: "Jane Doe",
	})
	require.NoError(t, err)

	rejected, err := svc.RejectWithdrawal(ctx, w.WithdrawalID, "admin", "details mismatch")
	require.NoError(t, err)
	require.Equal(t, "details mismatch", rejected.RejectionReason)

	acc, err := st.Account(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(100), acc.Balance)
	require.Equal(t, int64(0), acc.TotalWithdrawn)
}
