package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBeginReplacesSession(t *testing.T) {
	m := NewMemoryManager()

	require.False(t, m.InFlow(1))
	require.Equal(t, FlowNone, m.Get(1).Flow)

	m.Begin(1, FlowRegistration)
	require.True(t, m.InFlow(1))

	m.Mutate(1, func(s *Session) {
		s.Registration.FullName = "Jane Doe"
		s.Step = StepContact
	})

	// Starting over discards the draft.
	m.Begin(1, FlowRegistration)
	s := m.Get(1)
	require.Equal(t, StepName, s.Step)
	require.Empty(t, s.Registration.FullName)
}

func TestMutateStepsThroughFlow(t *testing.T) {
	m := NewMemoryManager()
	m.Begin(7, FlowWithdrawal)

	m.Mutate(7, func(s *Session) {
		s.Withdrawal.Amount = 50
		s.Step = StepMethod
	})
	m.Mutate(7, func(s *Session) {
		s.Withdrawal.Method = "telebirr"
		s.Step = StepPhone
	})

	s := m.Get(7)
	require.Equal(t, FlowWithdrawal, s.Flow)
	require.Equal(t, StepPhone, s.Step)
	require.Equal(t, int64(50), s.Withdrawal.Amount)

	m.Clear(7)
	require.False(t, m.InFlow(7))
}

func TestSessionsAreIndependentAcrossUsers(t *testing.T) {
	m := NewMemoryManager()

	var wg sync.WaitGroup
	for i := int64(1); i <= 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			m.Begin(id, FlowRegistration)
			m.Mutate(id, func(s *Session) { s.Registration.ReferrerID = id * 10 })
		}(i)
	}
	wg.Wait()

	for i := int64(1); i <= 20; i++ {
		require.Equal(t, i*10, m.Get(i).Registration.ReferrerID)
	}
}
