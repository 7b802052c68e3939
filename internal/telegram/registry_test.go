package telegram

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/jutclasses/enrollbot/internal/logger"
)

func TestMain(m *testing.M) {
	if err := logger.InitLogger(nil); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func noopHandler(tele.Context) error { return nil }

func TestRegistryCommands(t *testing.T) {
	r := NewRegistry()

	r.RegisterCommand("/start", Command{Handler: noopHandler, Description: "start"})
	r.RegisterCommand("/balance", Command{
		Handler:     noopHandler,
		Description: "balance",
		Aliases:     []string{"wallet"},
	})
	r.RegisterCommand("/admin", Command{
		Handler:     noopHandler,
		Description: "admin",
		AdminOnly:   true,
		Hidden:      true,
	})

	key, _, ok := r.LookupCommand("wallet")
	require.True(t, ok)
	require.Equal(t, "/balance", key)

	key, _, ok = r.LookupCommand("/start")
	require.True(t, ok)
	require.Equal(t, "/start", key)

	_, _, ok = r.LookupCommand("/nope")
	require.False(t, ok)

	visible := r.ListCommands(true)
	require.Len(t, visible, 2)
	for _, c := range visible {
		require.NotEqual(t, "/admin", c.Text)
	}
	require.Len(t, r.ListCommands(false), 3)
}

func TestRegistryCommandValidation(t *testing.T) {
	r := NewRegistry()

	r.RegisterCommand("start", Command{Handler: noopHandler, Description: "no slash"})
	r.RegisterCommand("/x", Command{Handler: nil, Description: "nil handler"})
	r.RegisterCommand("/y", Command{Handler: noopHandler})
	require.Empty(t, r.Commands())

	r.RegisterCommand("/dup", Command{Handler: noopHandler, Description: "first"})
	r.RegisterCommand("/dup", Command{Handler: noopHandler, Description: "second"})
	require.Equal(t, "first", r.Commands()["/dup"].Description)
}

func TestRegistryCallbacks(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterCallback("pay_approve", noopHandler))
	require.Error(t, r.RegisterCallback("pay_approve", noopHandler))
	require.Error(t, r.RegisterCallback("", noopHandler))
	require.Error(t, r.RegisterCallback("key", nil))

	h, ok := r.GetCallback("pay_approve")
	require.True(t, ok)
	require.NotNil(t, h)

	_, ok = r.GetCallback("missing")
	require.False(t, ok)

	require.NoError(t, r.RegisterCallback("adm_back", noopHandler))
	require.Equal(t, []string{"adm_back", "pay_approve"}, r.ListCallbacks())
}

func TestParseCallbackData(t *testing.T) {
	unique, payload := ParseCallbackData(&tele.Callback{Data: "\\fpay_approve|PAY_42_1700000000000"})
	require.Equal(t, "pay_approve", unique)
	require.Equal(t, "PAY_42_1700000000000", payload)

	unique, payload = ParseCallbackData(&tele.Callback{Data: "adm_stats"})
	require.Equal(t, "adm_stats", unique)
	require.Empty(t, payload)

	unique, payload = ParseCallbackData(nil)
	require.Empty(t, unique)
	require.Empty(t, payload)
}
