package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("LEDGER_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("LEDGER_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("LEDGER_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("LEDGER_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("LEDGER_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("LEDGER_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("LEDGER_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("LEDGER_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("LEDGER_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("LEDGER_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("LEDGER_READINESS_REQUIRE_DB", false),
	}
}
