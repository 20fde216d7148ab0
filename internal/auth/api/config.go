package authapi

import (
	"os"
	"strconv"
	"strings"
)

// Config controls the auth HTTP surface.
type Config struct {
	// TrustProxy enables X-Forwarded-For / X-Real-IP for client IPs.
	// Only set behind a proxy that strips these headers from clients.
	TrustProxy bool

	// DevLoginEnabled mounts POST /auth/dev-login, which completes a login
	// from a JSON body instead of an external identity provider. Dev only.
	DevLoginEnabled bool
}

// LoadConfigFromEnv reads the auth surface configuration.
//
// Variables:
//   - LEDGER_TRUST_PROXY (default false)
//   - LEDGER_AUTH_DEV_LOGIN (default false)
func LoadConfigFromEnv() Config {
	return Config{
		TrustProxy:      envBool("LEDGER_TRUST_PROXY", false),
		DevLoginEnabled: envBool("LEDGER_AUTH_DEV_LOGIN", false),
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
