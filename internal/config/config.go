// Package config loads application configuration from environment
// variables.  Values are declared with struct tags and parsed by
// caarlos0/env; cmd/server loads a .env file first when one is present.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env  string `env:"APP_ENV"  envDefault:"dev"`  // application environment (dev/test/prod)
	Port string `env:"APP_PORT" envDefault:"8080"` // HTTP port to listen on

	DBDriver string `env:"DB_DRIVER" envDefault:"mysql"` // mysql, postgres or sqlite
	DBUser   string `env:"DB_USER"`
	DBPass   string `env:"DB_PASS"` // empty allowed
	DBHost   string `env:"DB_HOST"`
	DBPort   string `env:"DB_PORT"`
	DBName   string `env:"DB_NAME"`
	DBPath   string `env:"DB_PATH" envDefault:"ledger.db"` // sqlite only

	Auth AuthConfig

	// Catalog lookups done while building a projection share this budget.
	CatalogTimeout time.Duration `env:"CATALOG_TIMEOUT" envDefault:"2s"`

	AMQPURL   string `env:"AMQP_URL"` // empty disables event publishing
	AMQPQueue string `env:"AMQP_QUEUE" envDefault:"registration.events"`

	AuditConsumerEnabled bool   `env:"AUDIT_CONSUMER_ENABLED" envDefault:"false"`
	AuditLogDir          string `env:"AUDIT_LOG_DIR"          envDefault:"logs"`
}

// Load parses the environment into a Config and checks the values that
// depend on each other.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports configuration that cannot work, such as a network
// database without a host.
func (c Config) Validate() error {
	driver := strings.ToLower(strings.TrimSpace(c.DBDriver))
	if driver != "sqlite" {
		var missing []string
		for k, v := range map[string]string{"DB_USER": c.DBUser, "DB_HOST": c.DBHost, "DB_PORT": c.DBPort, "DB_NAME": c.DBName} {
			if strings.TrimSpace(v) == "" {
				missing = append(missing, k)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return fmt.Errorf("missing required env vars for %s: %s", driver, strings.Join(missing, ", "))
		}
	}
	if c.CatalogTimeout <= 0 {
		return fmt.Errorf("CATALOG_TIMEOUT must be positive")
	}
	return c.Auth.Validate()
}

// IsProd reports whether the service runs in production mode.
func (c Config) IsProd() bool { return strings.EqualFold(c.Env, "prod") }

// AuthConfig holds the token settings shared by the server, which verifies
// tokens, and cmd/token, which mints them.
type AuthConfig struct {
	JWTSecret    string `env:"JWT_SECRET,notEmpty"`
	AccessTTLMin int    `env:"ACCESS_TOKEN_TTL_MIN" envDefault:"15"`
}

// LoadAuth parses only the token settings, so tools that mint tokens do not
// need database configuration.
func LoadAuth() (AuthConfig, error) {
	var cfg AuthConfig
	if err := env.Parse(&cfg); err != nil {
		return AuthConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return AuthConfig{}, err
	}
	return cfg, nil
}

// Validate rejects a non-positive token lifetime.
func (a AuthConfig) Validate() error {
	if a.AccessTTLMin <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_TTL_MIN must be positive")
	}
	return nil
}

// AccessTTL is the lifetime of minted access tokens.
func (a AuthConfig) AccessTTL() time.Duration {
	return time.Duration(a.AccessTTLMin) * time.Minute
}
