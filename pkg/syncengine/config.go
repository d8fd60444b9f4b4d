package syncengine

import (
	"fmt"
	"time"
)

const (
	defaultRequestTimeout      = 15 * time.Second
	defaultSessionTimeout      = 10 * time.Second
	defaultReadRetries         = 3
	defaultMutationRetries     = 1
	defaultBackoffBase         = 2 * time.Second
	defaultBookingsCooldown    = 30 * time.Second
	defaultBankDetailsCooldown = 60 * time.Second
	defaultPollInterval        = 60 * time.Second
	defaultSuccessIndicatorTTL = 5 * time.Second
	defaultReconnectBackoffMax = 30 * time.Second
)

// Config aggregates every externally tunable knob of the engine. A zero value
// is usable after Validate fills in defaults.
type Config struct {
	// RequestTimeout bounds each individual remote attempt.
	RequestTimeout time.Duration
	// SessionTimeout bounds the identity probe.
	SessionTimeout time.Duration
	// ReadRetries caps automatic retries for read calls.
	ReadRetries int
	// MutationRetries caps automatic retries for state-changing calls. Kept low
	// so a non-idempotent server never sees the same side effect twice.
	MutationRetries int
	// BackoffBase scales the linear retry delay (attempt * base).
	BackoffBase time.Duration
	// BookingsCooldown suppresses redundant booking fetches.
	BookingsCooldown time.Duration
	// BankDetailsCooldown suppresses redundant bank-detail fetches. Longer than
	// the bookings window so the secondary resource never competes for the
	// primary rate budget.
	BankDetailsCooldown time.Duration
	// PollInterval drives the pull backstop while push delivery is best-effort.
	PollInterval time.Duration
	// SuccessIndicatorTTL bounds how long a mutation success marker stays lit.
	SuccessIndicatorTTL time.Duration
	// ReconnectBackoffMax caps the push transport's reconnect delay.
	ReconnectBackoffMax time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	cfg := Config{}
	_ = cfg.Validate()
	return cfg
}

// Validate fills defaults and rejects nonsensical settings.
func (cfg *Config) Validate() error {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = defaultSessionTimeout
	}
	if cfg.ReadRetries == 0 {
		cfg.ReadRetries = defaultReadRetries
	}
	if cfg.MutationRetries == 0 {
		cfg.MutationRetries = defaultMutationRetries
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.BookingsCooldown <= 0 {
		cfg.BookingsCooldown = defaultBookingsCooldown
	}
	if cfg.BankDetailsCooldown <= 0 {
		cfg.BankDetailsCooldown = defaultBankDetailsCooldown
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.SuccessIndicatorTTL <= 0 {
		cfg.SuccessIndicatorTTL = defaultSuccessIndicatorTTL
	}
	if cfg.ReconnectBackoffMax <= 0 {
		cfg.ReconnectBackoffMax = defaultReconnectBackoffMax
	}
	if cfg.ReadRetries < 0 {
		return fmt.Errorf("%w: read retries must not be negative", ErrInvalidEngineConfig)
	}
	if cfg.MutationRetries < 0 {
		return fmt.Errorf("%w: mutation retries must not be negative", ErrInvalidEngineConfig)
	}
	return nil
}
