package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"chainquiz"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`

	Postgres Postgres
	Redis    Redis
	Security Security
	Timelock Timelock
	Archive  Archive
	Subsets  Subsets
}

// Postgres captures connection info for the SQL database.
type Postgres struct {
	Host     string `env:"PG_HOST,notEmpty"`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER,notEmpty"`
	Password string `env:"PG_PASSWORD,notEmpty"`
	Database string `env:"PG_DATABASE,notEmpty"`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`
}

// Redis holds cache configuration.
type Redis struct {
	Addr     string `env:"REDIS_ADDR,notEmpty"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
}

// Security stores secrets for signing and key derivation.
type Security struct {
	JWTSecret string `env:"JWT_SECRET,notEmpty"`
	// KeySalt is mixed into the HKDF derivation of per-quiz cipher keys so a
	// leaked quiz id alone cannot reconstruct the key.
	KeySalt string `env:"QUIZ_KEY_SALT,notEmpty"`
}

// Timelock configures the drand beacon used for time-lock encryption and the
// release-height oracle.
type Timelock struct {
	DrandBaseURL     string        `env:"DRAND_BASE_URL" envDefault:"https://api.drand.sh"`
	ChainHash        string        `env:"DRAND_CHAIN_HASH" envDefault:"52db9ba70e0cc0f6eaf7803dd07447a1f5477735fd3f661792ba94600c84e971"`
	SecondsPerHeight int           `env:"TIMELOCK_SECONDS_PER_HEIGHT" envDefault:"3"`
	MinLeadTime      time.Duration `env:"TIMELOCK_MIN_LEAD_TIME" envDefault:"5m"`
	OracleTimeout    time.Duration `env:"TIMELOCK_ORACLE_TIMEOUT" envDefault:"5s"`
}

// Archive points at the content-addressed pinning service for attempt payloads.
type Archive struct {
	PinURL string `env:"ARCHIVE_PIN_URL"`
	Token  string `env:"ARCHIVE_TOKEN"`
}

// Subsets governs the named question subsets generated at quiz creation.
type Subsets struct {
	Names []string `env:"SUBSET_NAMES" envSeparator:"," envDefault:"A,B,C,D,E,F,G"`
	Size  int      `env:"SUBSET_SIZE" envDefault:"10"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
