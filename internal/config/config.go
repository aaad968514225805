package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port           string `env:"PORT" envDefault:"3000"`
	Environment    string `env:"ENVIRONMENT" envDefault:"development"` // development, production
	AllowedOrigins string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:80,http://localhost:5173"`
	EnableWorkers  bool   `env:"ENABLE_WORKERS" envDefault:"true"`

	// Storage
	DatabasePath    string `env:"DATABASE_PATH" envDefault:"./data/sunwatch.db"`
	DBEncryptionKey string `env:"DB_ENCRYPTION_KEY"`
	PrefsBackend    string `env:"PREFS_BACKEND" envDefault:"sqlite"` // sqlite, bolt, memory
	BoltPath        string `env:"BOLT_PATH" envDefault:"./data/prefs.bolt"`

	// Solar time
	Timezone string `env:"TIMEZONE"` // empty follows the coordinate, "Local" uses the host zone

	// Location
	LocationMode          string  `env:"LOCATION_MODE" envDefault:"reported"` // reported, fixed
	FixedLatitude         float64 `env:"FIXED_LATITUDE" envDefault:"37.7749"`
	FixedLongitude        float64 `env:"FIXED_LONGITUDE" envDefault:"-122.4194"`
	DesiredAccuracyMeters int     `env:"LOCATION_ACCURACY_METERS" envDefault:"3000"`

	// Notifications
	NotificationBundle string        `env:"NOTIFICATION_BUNDLE" envDefault:"io.sunwatch"`
	NotifyBackend      string        `env:"NOTIFY_BACKEND" envDefault:"outbox"` // outbox, memory
	DispatchInterval   time.Duration `env:"DISPATCH_INTERVAL" envDefault:"15s"`
	VapidSubject       string        `env:"VAPID_SUBJECT"`
	VapidPublicKey     string        `env:"VAPID_PUBLIC_KEY"`
	VapidPrivateKey    string        `env:"VAPID_PRIVATE_KEY"`
	SMTPHost           string        `env:"SMTP_HOST"`
	SMTPPort           int           `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser           string        `env:"SMTP_USER"`
	SMTPPass           string        `env:"SMTP_PASS"`
	SMTPFrom           string        `env:"SMTP_FROM" envDefault:"noreply@sunwatch.local"`
	SMTPTo             []string      `env:"SMTP_TO" envSeparator:","`

	// Auth
	JWTSecret          string `env:"JWT_SECRET"`
	AccessTokenMinutes int    `env:"ACCESS_TOKEN_MINUTES" envDefault:"60"`
	AdminUsername      string `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminPasswordHash  string `env:"ADMIN_PASSWORD_HASH"`

	// Logging
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.PrefsBackend {
	case "sqlite", "bolt", "memory":
	default:
		return fmt.Errorf("PREFS_BACKEND must be sqlite, bolt or memory, got %q", c.PrefsBackend)
	}
	switch c.LocationMode {
	case "reported", "fixed":
	default:
		return fmt.Errorf("LOCATION_MODE must be reported or fixed, got %q", c.LocationMode)
	}
	switch c.NotifyBackend {
	case "outbox", "memory":
	default:
		return fmt.Errorf("NOTIFY_BACKEND must be outbox or memory, got %q", c.NotifyBackend)
	}
	if c.DispatchInterval <= 0 {
		return errors.New("DISPATCH_INTERVAL must be positive")
	}
	if c.AdminPasswordHash != "" && len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters when ADMIN_PASSWORD_HASH is set")
	}
	if c.AccessTokenMinutes <= 0 {
		c.AccessTokenMinutes = 60
	}
	if c.DesiredAccuracyMeters <= 0 {
		c.DesiredAccuracyMeters = 3000
	}
	return nil
}

// Location resolves Timezone. A nil location means the calendar day is
// taken at the coordinate, which is also the fallback for unknown names.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return nil, nil
	}
	if strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

func (c *Config) AuthEnabled() bool {
	return c.AdminPasswordHash != "" && c.JWTSecret != ""
}

func (c *Config) WebPushConfigured() bool {
	return c.VapidPublicKey != "" && c.VapidPrivateKey != "" && c.VapidSubject != ""
}

func (c *Config) EmailConfigured() bool {
	return c.SMTPHost != "" && len(c.SMTPTo) > 0
}

// Origins normalizes the comma-separated ALLOWED_ORIGINS list.
func (c *Config) Origins() string {
	origins := strings.TrimSpace(c.AllowedOrigins)
	if origins == "*" {
		return origins
	}
	parts := strings.Split(origins, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return strings.Join(parts, ",")
}
