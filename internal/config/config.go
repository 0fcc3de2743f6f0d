package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr      string        `env:"ADDR" envDefault:":3001"`
	RollDelay time.Duration `env:"ROLL_DELAY" envDefault:"3s"`
	WSOrigins []string      `env:"WS_ORIGINS" envSeparator:","`
}

// Load reads .env if present, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
