package stubserver

import (
	"fmt"
	"time"
)

// Config drives the stub dashboard API.
type Config struct {
	ListenAddr        string
	AllowedOrigins    []string
	SessionSigningKey string
	SessionCookieName string
	SessionTTL        time.Duration
	ProviderID        string
	ProviderEmail     string
}

// Validate fills defaults and rejects unusable values.
func (cfg *Config) Validate() error {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8084"
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if cfg.SessionSigningKey == "" {
		return fmt.Errorf("stub server requires a session signing key")
	}
	if cfg.SessionCookieName == "" {
		cfg.SessionCookieName = "connectsa_session"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 12 * time.Hour
	}
	if cfg.ProviderID == "" {
		cfg.ProviderID = "provider-demo"
	}
	if cfg.ProviderEmail == "" {
		cfg.ProviderEmail = "provider@example.test"
	}
	return nil
}
