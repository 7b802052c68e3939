package telegram

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/jutclasses/enrollbot/internal/config"
	"github.com/jutclasses/enrollbot/internal/flows"
	"github.com/jutclasses/enrollbot/internal/ledger"
	"github.com/jutclasses/enrollbot/internal/session"
	"github.com/jutclasses/enrollbot/internal/store"
)

// stubContext implements the slice of tele.Context the text and contact
// handlers touch. Unused methods panic through the embedded nil interface.
type stubContext struct {
	tele.Context
	user  *tele.User
	msg   *tele.Message
	store map[string]interface{}
	sent  []interface{}
}

func newStubContext(user *tele.User, msg *tele.Message) *stubContext {
	return &stubContext{user: user, msg: msg, store: map[string]interface{}{}}
}

func (c *stubContext) Sender() *tele.User { return c.user }

func (c *stubContext) Chat() *tele.Chat {
	if c.msg != nil && c.msg.Chat != nil {
		return c.msg.Chat
	}
	return &tele.Chat{ID: c.user.ID}
}

func (c *stubContext) Update() tele.Update { return tele.Update{ID: 1, Message: c.msg} }

func (c *stubContext) Message() *tele.Message { return c.msg }

func (c *stubContext) Text() string {
	if c.msg == nil {
		return ""
	}
	return c.msg.Text
}

func (c *stubContext) Get(key string) interface{} { return c.store[key] }

func (c *stubContext) Set(key string, val interface{}) { c.store[key] = val }

func (c *stubContext) Send(what interface{}, _ ...interface{}) error {
	c.sent = append(c.sent, what)
	return nil
}

func newFlowBot() *Bot {
	st := store.NewMemory()
	led := ledger.NewService(st)
	ses := session.NewMemoryManager()
	prog := config.ProgramConfig{
		RegistrationFee:       500,
		CommissionPerReferral: 30,
		MinWithdrawal:         30,
		MinPaidReferrals:      4,
		PhonePrefix:           "251",
		Currency:              "ETB",
	}
	return &Bot{
		cfg:      &config.Config{Program: prog},
		st:       st,
		sessions: ses,
		regFlow:  flows.NewRegistration(st, ses, led, prog),
	}
}

func atContactStep(t *testing.T, b *Bot, userID int64) {
	t.Helper()
	ctx := context.Background()
	_, err := b.regFlow.Start(ctx, userID, "")
	require.NoError(t, err)
	require.NoError(t, b.regFlow.HandleName(userID, "Jane Doe"))
	require.Equal(t, session.StepContact, b.sessions.Get(userID).Step)
}

func TestContactStepRepromptsOnTypedText(t *testing.T) {
	b := newFlowBot()
	atContactStep(t, b, 1)

	c := newStubContext(&tele.User{ID: 1}, &tele.Message{Text: "hello i am not a phone number"})
	require.NoError(t, b.registrationText(c, b.sessions.Get(1), c.Text()))

	sess := b.sessions.Get(1)
	require.Equal(t, session.StepContact, sess.Step)
	require.Empty(t, sess.Registration.Contact)
	require.Len(t, c.sent, 1)
	require.Equal(t, MsgAskContact(), c.sent[0])
}

func TestContactStepAdvancesOnSharedContact(t *testing.T) {
	b := newFlowBot()
	atContactStep(t, b, 1)

	msg := &tele.Message{Contact: &tele.Contact{PhoneNumber: "251911000000"}}
	c := newStubContext(&tele.User{ID: 1}, msg)
	require.NoError(t, b.handleContact(c))

	sess := b.sessions.Get(1)
	require.Equal(t, session.StepJUID, sess.Step)
	require.Equal(t, "251911000000", sess.Registration.Contact)
}

func TestSharedContactIgnoredOutsideRegistration(t *testing.T) {
	b := newFlowBot()

	msg := &tele.Message{Contact: &tele.Contact{PhoneNumber: "251911000000"}}
	c := newStubContext(&tele.User{ID: 1}, msg)
	require.NoError(t, b.handleContact(c))
	require.Empty(t, c.sent)
	require.False(t, b.sessions.InFlow(1))
}
