package flows

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jutclasses/enrollbot/internal/config"
	"github.com/jutclasses/enrollbot/internal/ledger"
	"github.com/jutclasses/enrollbot/internal/models"
	"github.com/jutclasses/enrollbot/internal/session"
	"github.com/jutclasses/enrollbot/internal/store"
	"github.com/jutclasses/enrollbot/internal/workflow"
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

type env struct {
	st  store.Store
	reg *Registration
	wd  *Withdrawal
	wf  *workflow.Service
	ses session.Manager
}

func newEnv() *env {
	st := store.NewMemory()
	led := ledger.NewService(st)
	wf := workflow.NewService(st, led, testProgram())
	ses := session.NewMemoryManager()
	return &env{
		st:  st,
		reg: NewRegistration(st, ses, led, testProgram()),
		wd:  NewWithdrawal(wf, ses, testProgram()),
		wf:  wf,
		ses: ses,
	}
}

func register(t *testing.T, e *env, userID int64, name, juID string, stream models.Stream, code string) *models.Account {
	t.Helper()
	ctx := context.Background()
	_, err := e.reg.Start(ctx, userID, code)
	require.NoError(t, err)
	require.NoError(t, e.reg.HandleName(userID, name))
	require.NoError(t, e.reg.HandleContact(userID, "251911000000"))
	require.NoError(t, e.reg.HandleJUID(ctx, userID, juID))
	acc, err := e.reg.Complete(ctx, userID, stream, Profile{Username: "user"})
	require.NoError(t, err)
	return acc
}

func TestRegistrationHappyPath(t *testing.T) {
	e := newEnv()
	acc := register(t, e, 1, "Jane Doe", "RU1234/18", models.StreamNatural, "")

	require.Equal(t, models.AccountPending, acc.Status)
	require.Equal(t, "JANE DOE", strings.ToUpper(acc.FullName))
	require.Equal(t, models.StreamNatural, acc.Stream)
	require.True(t, strings.HasPrefix(acc.ReferralCode, "JAN"), acc.ReferralCode)
	require.Len(t, acc.ReferralCode, 6)
	require.False(t, e.ses.InFlow(1))
}

func TestRegistrationValidation(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	_, err := e.reg.Start(ctx, 1, "")
	require.NoError(t, err)

	require.ErrorIs(t, e.reg.HandleName(1, " J "), ErrInvalidName)
	require.NoError(t, e.reg.HandleName(1, "Jane Doe"))
	require.NoError(t, e.reg.HandleContact(1, "251911000000"))

	require.ErrorIs(t, e.reg.HandleJUID(ctx, 1, "bad-id"), ErrInvalidID)
	require.ErrorIs(t, e.reg.HandleJUID(ctx, 1, "R1234/18"), ErrInvalidID)
	// Lowercase input is uppercased before matching.
	require.NoError(t, e.reg.HandleJUID(ctx, 1, "ru1234/18"))

	acc, err := e.reg.Complete(ctx, 1, models.StreamSocial, Profile{})
	require.NoError(t, err)
	require.Equal(t, "RU1234/18", acc.JUID)
}

func TestRegistrationDuplicateID(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	register(t, e, 1, "Jane Doe", "RU1234/18", models.StreamNatural, "")

	_, err := e.reg.Start(ctx, 2, "")
	require.NoError(t, err)
	require.NoError(t, e.reg.HandleName(2, "John Smith"))
	require.NoError(t, e.reg.HandleContact(2, "251922000000"))
	require.ErrorIs(t, e.reg.HandleJUID(ctx, 2, "RU1234/18"), ErrIDTaken)
}

func TestRegistrationViaReferralLink(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	referrer := register(t, e, 1, "Jane Doe", "RU1234/18", models.StreamNatural, "")

	ref, err := e.reg.Start(ctx, 2, referrer.ReferralCode)
	require.NoError(t, err)
	require.NotNil(t, ref)
	require.Equal(t, int64(1), ref.TelegramID)

	require.NoError(t, e.reg.HandleName(2, "John Smith"))
	require.NoError(t, e.reg.HandleContact(2, "251922000000"))
	require.NoError(t, e.reg.HandleJUID(ctx, 2, "RU5678/18"))
	acc, err := e.reg.Complete(ctx, 2, models.StreamSocial, Profile{})
	require.NoError(t, err)
	require.NotNil(t, acc.ReferredBy)
	require.Equal(t, int64(1), *acc.ReferredBy)

	// Registration only marks the referral pending; money waits for payment.
	refAcc, err := e.st.Account(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, refAcc.UnpaidReferrals)
	require.Equal(t, 1, refAcc.TotalReferrals)
	require.Equal(t, int64(0), refAcc.Balance)
}

func TestSelfReferralIgnored(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	// An unknown code resolves to no referrer.
	ref, err := e.reg.Start(ctx, 1, "ZZZ999")
	require.NoError(t, err)
	require.Nil(t, ref)
}

func TestStartAgainDiscardsDraft(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	_, err := e.reg.Start(ctx, 1, "")
	require.NoError(t, err)
	require.NoError(t, e.reg.HandleName(1, "Jane Doe"))

	_, err = e.reg.Start(ctx, 1, "")
	require.NoError(t, err)
	require.Equal(t, session.StepName, e.ses.Get(1).Step)
	require.Empty(t, e.ses.Get(1).Registration.FullName)
}

// activate pays the user's fee and, for referral tests, credits the
// referrer via payment approval.
func activate(t *testing.T, e *env, userID int64) {
	t.Helper()
	ctx := context.Background()
	p, err := e.wf.SubmitPayment(ctx, userID, "shot")
	require.NoError(t, err)
	_, _, err = e.wf.ApprovePayment(ctx, p.PaymentID, "admin")
	require.NoError(t, err)
}

func TestWithdrawalTelebirrEndToEnd(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	jane := register(t, e, 1, "Jane Doe", "RU1234/18", models.StreamNatural, "")
	activate(t, e, 1)

	// Four referred students register and pay; Jane earns 30 each.
	// A 20 debit brings the balance to a round 100.
	ids := []string{"RU1111/18", "RU2222/18", "RU3333/18", "RU4444/18"}
	for i, juID := range ids {
		uid := int64(10 + i)
		register(t, e, uid, "Referred Student", juID, models.StreamSocial, jane.ReferralCode)
		activate(t, e, uid)
	}
	require.NoError(t, e.st.DebitWithdrawal(ctx, 1, 20))

	acc, err := e.st.Account(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 4, acc.PaidReferrals)
	require.Equal(t, int64(100), acc.Balance)

	started, err := e.wd.Start(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(100), started.Balance)
	require.Equal(t, session.StepMethod, e.ses.Get(1).Step)

	require.ErrorIs(t, e.wd.ChooseMethod(1, "paypal"), ErrInvalidInput)
	require.NoError(t, e.wd.ChooseMethod(1, models.MethodTelebirr))
	require.Equal(t, session.StepAmount, e.ses.Get(1).Step)

	require.ErrorIs(t, e.wd.HandleAmount(ctx, 1, "abc"), ErrInvalidAmount)
	require.NoError(t, e.wd.HandleAmount(ctx, 1, "50"))
	require.Equal(t, session.StepPhone, e.ses.Get(1).Step)

	_, err = e.wd.HandlePhone(ctx, 1, "0912345678")
	require.ErrorIs(t, err, ErrInvalidPhone)

	wd, err := e.wd.HandlePhone(ctx, 1, "251912345678")
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, wd.Status)
	require.False(t, e.ses.InFlow(1))

	_, err = e.wf.ApproveWithdrawal(ctx, wd.WithdrawalID, "admin")
	require.NoError(t, err)

	acc, err = e.st.Account(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(50), acc.Balance)
}

func TestWithdrawalRequiresReferrals(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	register(t, e, 1, "Jane Doe", "RU1234/18", models.StreamNatural, "")
	activate(t, e, 1)

	_, err := e.wd.Start(ctx, 1)
	require.ErrorIs(t, err, workflow.ErrMinReferrals)
}

func TestWithdrawalCBECollectsAccount(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	jane := register(t, e, 1, "Jane Doe", "RU1234/18", models.StreamNatural, "")
	activate(t, e, 1)
	for i, juID := range []string{"RU1111/18", "RU2222/18", "RU3333/18", "RU4444/18"} {
		uid := int64(10 + i)
		register(t, e, uid, "Referred Student", juID, models.StreamSocial, jane.ReferralCode)
		activate(t, e, uid)
	}

	_, err := e.wd.Start(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, e.wd.ChooseMethod(1, models.MethodCBE))
	require.NoError(t, e.wd.HandleAmount(ctx, 1, "60"))
	require.Equal(t, session.StepAccountNumber, e.ses.Get(1).Step)

	// Any non-empty account number is stored as typed.
	require.ErrorIs(t, e.wd.HandleAccountNumber(1, "   "), ErrInvalidInput)
	require.NoError(t, e.wd.HandleAccountNumber(1, "1234567"))

	wd, err := e.wd.HandleAccountName(ctx, 1, "Jane Doe")
	require.NoError(t, err)
	require.Equal(t, models.MethodCBE, wd.PaymentMethod)
	require.Equal(t, "1234567", wd.AccountNumber)
	require.Equal(t, "Jane Doe", wd.AccountName)
}

func TestCodePrefixPadding(t *testing.T) {
	require.Equal(t, "JAN", codePrefix("Jane Doe"))
	require.Equal(t, "ALX", codePrefix("Al x"))
	require.Equal(t, "AXX", codePrefix("A"))
	require.Equal(t, "XXX", codePrefix("123"))
}

func seedAt(t *testing.T, e *env, id int64) {
	t.Helper()
	require.NoError(t, e.st.CreateAccount(context.Background(), &models.Account{
		TelegramID: id, FullName: "Seed", JUID: "ZZ0000/18", Stream: models.StreamNatural,
		Status: models.AccountActive, ReferralCode: "SEE100",
		RegistrationDate: time.Now().UTC(), LastSeen: time.Now().UTC(),
	}))
}

func TestStartRejectsExistingAccount(t *testing.T) {
	e := newEnv()
	seedAt(t, e, 1)
	_, err := e.reg.Start(context.Background(), 1, "")
	require.ErrorIs(t, err, ErrAlreadyRegistered)
}
