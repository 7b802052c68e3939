package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPaymentIDsDistinctWithinMillisecond(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := NewPaymentID(1, at)
		require.True(t, strings.HasPrefix(id, "PAY_1_1700000000000_"), id)
		_, dup := seen[id]
		require.False(t, dup, id)
		seen[id] = struct{}{}
	}
}

func TestWithdrawalIDsDistinctWithinMillisecond(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	a := NewWithdrawalID(1, at)
	b := NewWithdrawalID(1, at)
	require.True(t, strings.HasPrefix(a, "WD_1_1700000000000_"), a)
	require.NotEqual(t, a, b)
}
