package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/example/catalog-sync/modules/api"
	"github.com/example/catalog-sync/modules/async"
	"github.com/example/catalog-sync/modules/media"
	productmod "github.com/example/catalog-sync/modules/product"
	"github.com/example/catalog-sync/modules/recordstore"
)

// Config is the application configuration, read from the environment.
type Config struct {
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	Async       async.Config       `envPrefix:"ASYNC_"`
	RecordStore recordstore.Config `envPrefix:"STORE_"`
	Media       media.Config       `envPrefix:"MEDIA_"`
	Product     productmod.Config  `envPrefix:"PRODUCT_"`
	API         api.Config         `envPrefix:"API_"`
}

// loadConfig parses Config from the process environment.
func loadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
