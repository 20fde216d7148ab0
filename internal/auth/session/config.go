package session

import (
	"os"
	"strings"
	"time"

	"ledgerisland/internal/security/token"
)

// Config defines all runtime configuration for the session subsystem.
//
// It controls the lazy idle-expiry window, the default absolute TTL used
// by login completion, and the server-held control-tag secret.
//
// This struct is intentionally explicit and environment-driven so that
// production deployments can tune security parameters without code changes.
type Config struct {
	// IdleTimeout is the maximum gap between successive validations
	// before a session is lazily expired.
	IdleTimeout time.Duration

	// DefaultTTL is the absolute session lifetime applied at login
	// completion. Zero means unbounded.
	DefaultTTL time.Duration

	// ControlSecret is the key for control-tag computation, accepted as
	// base64 or raw bytes (see token.DecodeControlKey).
	ControlSecret string
}

// DefaultConfig returns the policy defaults: a 15-minute idle window and a
// 12-hour session lifetime.
func DefaultConfig() Config {
	return Config{
		IdleTimeout: 15 * time.Minute,
		DefaultTTL:  12 * time.Hour,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - LEDGER_CONTROL_SECRET
//
// Optional (durations must be valid Go duration strings):
//   - LEDGER_SESSION_IDLE_TIMEOUT
//   - LEDGER_SESSION_DEFAULT_TTL
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("LEDGER_SESSION_IDLE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.IdleTimeout = d
	}

	if v := os.Getenv("LEDGER_SESSION_DEFAULT_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.DefaultTTL = d
	}

	cfg.ControlSecret = strings.TrimSpace(os.Getenv("LEDGER_CONTROL_SECRET"))
	if cfg.ControlSecret == "" {
		return Config{}, ErrConfig
	}
	if _, err := token.DecodeControlKey(cfg.ControlSecret); err != nil {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
