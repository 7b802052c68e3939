package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot transport settings.
type TelegramConfig struct {
	Token    string  `yaml:"token" envconfig:"BOT_TOKEN"`
	Username string  `yaml:"username" envconfig:"BOT_USERNAME"`
	AdminIDs []int64 `yaml:"admin_ids" envconfig:"TELEGRAM_ADMIN_IDS"`
	RunMode  string  `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// RateLimitConfig holds settings for inbound per-user rate limiting.
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// ProgramConfig carries the financial constants of the enrollment program.
// Amounts are whole birr.
type ProgramConfig struct {
	RegistrationFee       int64  `yaml:"registration_fee" envconfig:"PROGRAM_REGISTRATION_FEE"`
	CommissionPerReferral int64  `yaml:"commission_per_referral" envconfig:"PROGRAM_COMMISSION"`
	MinWithdrawal         int64  `yaml:"min_withdrawal" envconfig:"PROGRAM_MIN_WITHDRAWAL"`
	MinPaidReferrals      int    `yaml:"min_paid_referrals" envconfig:"PROGRAM_MIN_PAID_REFERRALS"`
	PhonePrefix           string `yaml:"phone_prefix" envconfig:"PROGRAM_PHONE_PREFIX"`
	Currency              string `yaml:"currency"`
	BroadcastDelayMS      int    `yaml:"broadcast_delay_ms" envconfig:"PROGRAM_BROADCAST_DELAY_MS"`
}

// FeatureConfig enables or disables user-facing flows at runtime start.
type FeatureConfig struct {
	Registration     bool `yaml:"registration"`
	ScreenshotUpload bool `yaml:"screenshot_upload"`
	Payments         bool `yaml:"payments"`
	Referrals        bool `yaml:"referrals"`
	Withdrawals      bool `yaml:"withdrawals"`
}

// PaymentMethod describes one way students can pay the registration fee.
type PaymentMethod struct {
	AccountName   string `yaml:"account_name"`
	AccountNumber string `yaml:"account_number"`
	Active        bool   `yaml:"active"`
	Instructions  string `yaml:"instructions"`
}

// Config aggregates the full bot configuration.
type Config struct {
	Telegram           TelegramConfig           `yaml:"telegram"`
	Webhook            WebhookConfig            `yaml:"webhook"`
	Database           DatabaseConfig           `yaml:"database"`
	Logging            LoggingConfig            `yaml:"logging"`
	RateLimit          RateLimitConfig          `yaml:"rate_limit"`
	Program            ProgramConfig            `yaml:"program"`
	Features           FeatureConfig            `yaml:"features"`
	PaymentMethods     map[string]PaymentMethod `yaml:"payment_methods"`
	MaintenanceMessage string                   `yaml:"maintenance_message"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
)

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates required fields and fills program defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" || rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	allowed := map[string]struct{}{
		UpdateCallback: {},
		UpdateMessage:  {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}

	normalizeProgram(&cfg.Program)

	if cfg.MaintenanceMessage == "" {
		cfg.MaintenanceMessage = "🚧 Bot is under maintenance. Please try again later."
	}
	return nil
}

func normalizeProgram(p *ProgramConfig) {
	if p.RegistrationFee <= 0 {
		p.RegistrationFee = 500
	}
	if p.CommissionPerReferral <= 0 {
		p.CommissionPerReferral = 30
	}
	if p.MinWithdrawal <= 0 {
		p.MinWithdrawal = 30
	}
	if p.MinPaidReferrals <= 0 {
		p.MinPaidReferrals = 4
	}
	if strings.TrimSpace(p.PhonePrefix) == "" {
		p.PhonePrefix = "251"
	}
	if strings.TrimSpace(p.Currency) == "" {
		p.Currency = "ETB"
	}
	if p.BroadcastDelayMS <= 0 {
		p.BroadcastDelayMS = 100
	}
}

// IsAdmin reports whether the given Telegram user id is configured as admin.
func (t TelegramConfig) IsAdmin(id int64) bool {
	for _, a := range t.AdminIDs {
		if a == id {
			return true
		}
	}
	return false
}
