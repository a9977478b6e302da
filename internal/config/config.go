package config

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/crypto/bcrypt"
)

// devAdminPassword is only accepted outside production when no credential is configured.
const devAdminPassword = "admin"

// Config holds application configuration values.
type Config struct {
	AppEnv         string        `envconfig:"APP_ENV" default:"development"`
	HTTPAddr       string        `envconfig:"HTTP_ADDR" default:":8080"`
	ReadTimeout    time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout   time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"20s"`
	CORSOrigins    []string      `envconfig:"CORS_ALLOWED_ORIGINS"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	DBDriver    string `envconfig:"DB_DRIVER" default:"sqlite"`
	DatabaseDSN string `envconfig:"DATABASE_DSN" default:"stockledger.db"`

	LedgerTimezone string `envconfig:"LEDGER_TIMEZONE" default:"Local"`

	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	ReportCacheTTL time.Duration `envconfig:"REPORT_CACHE_TTL" default:"10m"`

	Secret            string        `envconfig:"SECRET"`
	TokenTTL          time.Duration `envconfig:"TOKEN_TTL" default:"168h"`
	AdminUsername     string        `envconfig:"ADMIN_USERNAME" default:"admin"`
	AdminPasswordHash string        `envconfig:"ADMIN_PASSWORD_HASH"`
	AdminPassword     string        `envconfig:"ADMIN_PASSWORD"`

	SeedProductsCSV string `envconfig:"SEED_PRODUCTS_CSV"`

	AuditCron  string `envconfig:"AUDIT_CRON" default:"0 2 * * *"`
	WarmupCron string `envconfig:"WARMUP_CRON" default:"*/15 * * * *"`
}

// Load reads configuration from environment variables with reasonable defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "sqlite", "pgx":
	default:
		return fmt.Errorf("config: unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.DatabaseDSN == "" {
		return errors.New("config: DATABASE_DSN must be provided")
	}
	if _, err := time.LoadLocation(c.LedgerTimezone); err != nil {
		return fmt.Errorf("config: LEDGER_TIMEZONE: %w", err)
	}
	if c.IsProduction() {
		if c.Secret == "" {
			return errors.New("config: SECRET must be provided in production")
		}
		if c.AdminPasswordHash == "" {
			return errors.New("config: ADMIN_PASSWORD_HASH must be provided in production")
		}
	}
	if c.Secret == "" {
		c.Secret = "dev_secret"
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// Location resolves the ledger time zone used for calendar-month windows.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.LedgerTimezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// AdminCredential returns the bcrypt hash the login endpoint checks against.
// A plain ADMIN_PASSWORD is hashed on the fly; outside production a dev password is used when nothing is set.
func (c *Config) AdminCredential() ([]byte, error) {
	if c.AdminPasswordHash != "" {
		if _, err := bcrypt.Cost([]byte(c.AdminPasswordHash)); err != nil {
			return nil, fmt.Errorf("config: ADMIN_PASSWORD_HASH: %w", err)
		}
		return []byte(c.AdminPasswordHash), nil
	}
	password := c.AdminPassword
	if password == "" {
		if c.IsProduction() {
			return nil, errors.New("config: admin credential missing")
		}
		password = devAdminPassword
	}
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}
