// config/config.go
package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the service configuration, read from the environment.
type Config struct {
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseURL    string `env:"DATABASE_URL,required,notEmpty"`
	ListenAddr     string `env:"LISTEN_ADDR" envDefault:":5200"`
	ServiceToken   string `env:"GAME_SERVICE_TOKEN,required,notEmpty"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:3000"`

	// Optional YAML content file; the embedded tables are used when empty.
	ContentPath string `env:"CONTENT_PATH"`

	Bank Bank

	ShopRestockInterval time.Duration `env:"SHOP_RESTOCK_INTERVAL" envDefault:"6h"`

	Archive Archive
	Otel    Otel
}

// Bank holds deposit tunables.
type Bank struct {
	DepositCap    int64   `env:"BANK_DEPOSIT_CAP" envDefault:"100000000"`
	DailyInterest float64 `env:"BANK_DAILY_INTEREST" envDefault:"0.001"`
}

// Archive configures the R2 upload of the daily ledger log.
type Archive struct {
	AccountID       string `env:"CLOUDFLARE_ACCOUNT_ID"`
	AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"R2_ACCESS_KEY_SECRET"`
	Bucket          string `env:"R2_BUCKET_NAME"`
}

// Enabled reports whether every credential needed for uploads is present.
func (a Archive) Enabled() bool {
	return a.AccountID != "" && a.AccessKeyID != "" && a.AccessKeySecret != "" && a.Bucket != ""
}

// Otel configures trace export.
type Otel struct {
	Enabled  bool   `env:"OTEL_ENABLED" envDefault:"true"`
	Endpoint string `env:"OTEL_ENDPOINT"`
}

// Load reads an optional .env file and parses the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	return Parse()
}

// Parse parses the current environment without touching .env files.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	switch cfg.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}
	if cfg.Bank.DepositCap <= 0 {
		return nil, fmt.Errorf("BANK_DEPOSIT_CAP must be positive")
	}
	return &cfg, nil
}
