package telegram

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jutclasses/enrollbot/internal/config"
)

func TestSettingsMaintenance(t *testing.T) {
	s := NewSettings(config.FeatureConfig{})

	require.False(t, s.Maintenance())
	require.True(t, s.ToggleMaintenance())
	require.True(t, s.Maintenance())
	require.False(t, s.ToggleMaintenance())

	require.True(t, s.SetMaintenance(true))
	require.True(t, s.Maintenance())
}

func TestSettingsFeatures(t *testing.T) {
	s := NewSettings(config.FeatureConfig{
		Registration: true,
		Payments:     true,
		Withdrawals:  true,
	})

	f := s.Features()
	require.True(t, f.Registration)
	require.False(t, f.Referrals)

	s.SetFeature("withdrawals", false)
	s.SetFeature("referrals", true)
	s.SetFeature("unknown", true)

	f = s.Features()
	require.False(t, f.Withdrawals)
	require.True(t, f.Referrals)
	require.True(t, f.Registration)
}
