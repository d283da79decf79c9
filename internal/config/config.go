// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Email backends.
const (
	EmailBackendFile = "file"
	EmailBackendSMTP = "smtp"
	EmailBackendLog  = "log"
)

// Config holds the application configuration.
type Config struct {
	Addr            string        `env:"YAMDB_ADDR"             envDefault:":8080"`
	DBPath          string        `env:"YAMDB_DB_PATH"          envDefault:"./data/yamdb.db"`
	SecretKey       string        `env:"YAMDB_SECRET_KEY"`
	AccessTokenTTL  time.Duration `env:"YAMDB_ACCESS_TOKEN_TTL"  envDefault:"24h"`
	ConfirmationTTL time.Duration `env:"YAMDB_CONFIRMATION_TTL"  envDefault:"24h"`
	PageSize        int           `env:"YAMDB_PAGE_SIZE"        envDefault:"10"`

	Mail Mail
}

// Mail configures confirmation code delivery.
type Mail struct {
	Backend  string `env:"YAMDB_EMAIL_BACKEND"   envDefault:"file"`
	From     string `env:"YAMDB_EMAIL_FROM"      envDefault:"support@yamdb.ru"`
	FilePath string `env:"YAMDB_EMAIL_FILE_PATH" envDefault:"./data/sent_emails"`
	SMTPHost string `env:"YAMDB_SMTP_HOST"       envDefault:"localhost"`
	SMTPPort int    `env:"YAMDB_SMTP_PORT"       envDefault:"25"`
	SMTPUser string `env:"YAMDB_SMTP_USERNAME"`
	SMTPPass string `env:"YAMDB_SMTP_PASSWORD"`
}

// Load reads the configuration from environment variables and validates it.
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

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.SecretKey) == "" {
		return fmt.Errorf("YAMDB_SECRET_KEY is required")
	}
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("access token ttl must be positive")
	}
	if c.ConfirmationTTL <= 0 {
		return fmt.Errorf("confirmation ttl must be positive")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive")
	}
	switch c.Mail.Backend {
	case EmailBackendFile, EmailBackendSMTP, EmailBackendLog:
	default:
		return fmt.Errorf("unknown email backend %q", c.Mail.Backend)
	}
	return nil
}

// Limits are the field constraints shared by validation and storage.
// Obtain one with DefaultLimits and pass it by value.
type Limits struct {
	NameMax     int
	SlugMax     int
	UsernameMax int
	EmailMax    int
	PersonMax   int
	ScoreMin    int
	ScoreMax    int

	slug     *regexp.Regexp
	username *regexp.Regexp
}

// DefaultLimits returns the limits used by the service.
func DefaultLimits() Limits {
	return Limits{
		NameMax:     256,
		SlugMax:     50,
		UsernameMax: 150,
		EmailMax:    254,
		PersonMax:   150,
		ScoreMin:    1,
		ScoreMax:    10,
		slug:        regexp.MustCompile(`^[-a-zA-Z0-9_]+$`),
		username:    regexp.MustCompile(`^[\w.@+-]+$`),
	}
}

// ValidSlug reports whether s is a well formed slug.
func (l Limits) ValidSlug(s string) bool {
	return l.slug.MatchString(s)
}

// ValidUsername reports whether s only uses allowed username characters.
func (l Limits) ValidUsername(s string) bool {
	return l.username.MatchString(s)
}
