package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// CatalogCacheConfig controls the Redis cache in front of the event
// catalog.  When Enabled is false or no Redis client is available, catalog
// reads go straight to the database.
type CatalogCacheConfig struct {
	Enabled bool          `env:"CATALOG_CACHE_ENABLED" envDefault:"true"`
	TTL     time.Duration `env:"CATALOG_CACHE_TTL"     envDefault:"30s"`
	Prefix  string        `env:"CATALOG_CACHE_PREFIX"  envDefault:"catalog"`
}

// LoadCatalogCacheConfig reads the CATALOG_CACHE_* variables.
func LoadCatalogCacheConfig() (CatalogCacheConfig, error) {
	var cfg CatalogCacheConfig
	if err := env.Parse(&cfg); err != nil {
		return CatalogCacheConfig{}, err
	}
	return cfg, nil
}
