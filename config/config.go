package config

import (
	"fmt"
	"log"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type AppConfig struct {
	BotToken        string  `env:"TELEGRAM_TOKEN,required,notEmpty"`
	CryptoBotToken  string  `env:"CRYPTO_BOT_TOKEN,required,notEmpty"`
	AdminIDs        []int64 `env:"ADMIN_IDS,required,notEmpty" envSeparator:","`
	DatabaseURL     string  `env:"DATABASE_URL" envDefault:"sqlite://bot.db"`
	CryptoBotAPIURL string  `env:"CRYPTO_BOT_API_URL" envDefault:"https://pay.crypt.bot/api"`
	RateAPIURL      string  `env:"RATE_API_URL" envDefault:"https://api.binance.com/api/v3/ticker/price"`
	HTTPAddr        string  `env:"HTTP_ADDR" envDefault:":2500"`
	LogLevel        string  `env:"LOG_LEVEL" envDefault:"info"`
	LogFile         string  `env:"LOG_FILE" envDefault:"bot.log"`
	Timezone        string  `env:"TIMEZONE" envDefault:"Europe/Moscow"`
	BackupDir       string  `env:"BACKUP_DIR" envDefault:"backups"`
	MinTopUp        int64   `env:"MIN_TOPUP" envDefault:"100"`

	PaymentCheckInterval time.Duration `env:"PAYMENT_CHECK_INTERVAL" envDefault:"5m"`
	KeepAliveInterval    time.Duration `env:"KEEP_ALIVE_INTERVAL" envDefault:"5m"`
	RateUpdateInterval   time.Duration `env:"RATE_UPDATE_INTERVAL" envDefault:"1h"`
	GatewayTimeout       time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`
	SessionTTL           time.Duration `env:"SESSION_TTL" envDefault:"30m"`
}

// LoadConfig читает .env (если есть) и переменные окружения
func LoadConfig() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Println(".env file not found, relying on environment variables")
	}
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.MinTopUp <= 0 {
		return nil, fmt.Errorf("MIN_TOPUP must be positive, got %d", cfg.MinTopUp)
	}
	for name, d := range map[string]time.Duration{
		"PAYMENT_CHECK_INTERVAL": cfg.PaymentCheckInterval,
		"KEEP_ALIVE_INTERVAL":    cfg.KeepAliveInterval,
		"RATE_UPDATE_INTERVAL":   cfg.RateUpdateInterval,
		"GATEWAY_TIMEOUT":        cfg.GatewayTimeout,
		"SESSION_TTL":            cfg.SessionTTL,
	} {
		if d <= 0 {
			return nil, fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Часовой пояс, в котором пользователь выбирает дату и время стрима
func (c *AppConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *AppConfig) MinTopUpAmount() decimal.Decimal {
	return decimal.NewFromInt(c.MinTopUp)
}
