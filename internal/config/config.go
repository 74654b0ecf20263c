package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	AppEnv        string `env:"APP_ENV" envDefault:"development"`
	APIAddr       string `env:"API_ADDR" envDefault:":8080"`
	PostgresDSN   string `env:"POSTGRES_DSN,notEmpty"`
	RedisAddr     string `env:"REDIS_ADDR"` // empty disables wake-ups
	RedisPassword string `env:"REDIS_PASSWORD"`
	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"false"`

	Workers        int           `env:"WORKERS" envDefault:"4"`
	ClaimBatchSize int           `env:"CLAIM_BATCH_SIZE" envDefault:"10"`
	PollInterval   time.Duration `env:"POLL_INTERVAL" envDefault:"5s"`
	MaxAttempts    int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	StaleAfter     time.Duration `env:"STALE_AFTER" envDefault:"10m"`

	EmailProviderURL string `env:"EMAIL_PROVIDER_URL"` // empty disables sending
	EmailAPIKey      string `env:"EMAIL_API_KEY"`
	EmailFrom        string `env:"EMAIL_FROM" envDefault:"noreply@elevate.test"`

	ExpiryScanCron   string        `env:"EXPIRY_SCAN_CRON" envDefault:"0 6 * * *"`
	ExpiryScanWindow time.Duration `env:"EXPIRY_SCAN_WINDOW" envDefault:"336h"`
}

func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}
