package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	AllowedOrigin  string        `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`
	DatabaseURL    string        `envconfig:"DATABASE_URL"`
	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD"`
	RedisDB        int           `envconfig:"REDIS_DB" default:"0"`
	StoreID        string        `envconfig:"DEFAULT_STORE_ID" default:"main-store"`
	AuthSecret     string        `envconfig:"AUTH_SECRET"`
	AccessTokenTTL time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"8h"`
	Timezone       string        `envconfig:"BUSINESS_TIMEZONE" default:"Asia/Manila"`

	FallbackPageSize  int             `envconfig:"FALLBACK_PAGE_SIZE" default:"100"`
	FallbackMaxPages  int             `envconfig:"FALLBACK_MAX_PAGES" default:"20"`
	TopProductsLimit  int             `envconfig:"TOP_PRODUCTS_LIMIT" default:"10"`
	LowStockThreshold int             `envconfig:"LOW_STOCK_THRESHOLD" default:"5"`
	OperatingExpenses decimal.Decimal `envconfig:"OPERATING_EXPENSES" default:"0"`
	ZReadingLockTTL   time.Duration   `envconfig:"ZREADING_LOCK_TTL" default:"36h"`

	LoginPerMinute   int  `envconfig:"LOGIN_RATE_PER_MINUTE" default:"5"`
	ReportsPerMinute int  `envconfig:"REPORTS_RATE_PER_MINUTE" default:"120"`
	Development      bool `envconfig:"DEVELOPMENT" default:"false"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}

	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 8 * time.Hour
	}
	if cfg.FallbackPageSize < 1 {
		cfg.FallbackPageSize = 100
	}
	if cfg.FallbackMaxPages < 1 {
		cfg.FallbackMaxPages = 20
	}
	if cfg.TopProductsLimit < 1 {
		cfg.TopProductsLimit = 10
	}
	if cfg.ZReadingLockTTL <= 0 {
		cfg.ZReadingLockTTL = 36 * time.Hour
	}
	if _, err := cfg.Location(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location resolves the business timezone used for calendar dates.
func (c Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		name = "Asia/Manila"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("BUSINESS_TIMEZONE %q: %w", name, err)
	}
	return loc, nil
}
