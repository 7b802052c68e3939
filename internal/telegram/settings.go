package telegram

import (
	"sync"

	"github.com/jutclasses/enrollbot/internal/config"
)

// Settings holds runtime-togglable bot state: maintenance mode and the
// per-feature switches. Admins flip these from the dashboard without a
// restart; the zero value of each feature comes from configuration.
type Settings struct {
	mu          sync.RWMutex
	maintenance bool
	features    config.FeatureConfig
}

func NewSettings(features config.FeatureConfig) *Settings {
	return &Settings{features: features}
}

// Maintenance reports whether the bot is closed to non-admin traffic.
func (s *Settings) Maintenance() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maintenance
}

// SetMaintenance toggles maintenance mode and returns the new value.
func (s *Settings) SetMaintenance(on bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maintenance = on
	return s.maintenance
}

// ToggleMaintenance flips maintenance mode and returns the new value.
func (s *Settings) ToggleMaintenance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maintenance = !s.maintenance
	return s.maintenance
}

// Features returns a copy of the current feature switches.
func (s *Settings) Features() config.FeatureConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.features
}

// SetFeature flips one named feature switch. Unknown names are ignored.
func (s *Settings) SetFeature(name string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch name {
	case "registration":
		s.features.Registration = on
	case "screenshot_upload":
		s.features.ScreenshotUpload = on
	case "payments":
		s.features.Payments = on
	case "referrals":
		s.features.Referrals = on
	case "withdrawals":
		s.features.Withdrawals = on
	}
}
