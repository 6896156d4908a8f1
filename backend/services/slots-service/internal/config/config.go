package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "chargegrid/backend/libs/config"
	"chargegrid/backend/libs/logging"
)

// Config represents service configuration loaded from YAML/env.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Log       logging.Options `yaml:"log" env:"-"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Stripe    StripeConfig    `yaml:"stripe"`
	Holds     HoldsConfig     `yaml:"holds"`
	Numbering NumberingConfig `yaml:"numbering"`
	JWT       JWTConfig       `yaml:"jwt"`
	Password  PasswordConfig  `yaml:"password"`
}

// HTTPConfig configures the listener.
type HTTPConfig struct {
	Port           string        `yaml:"port" env:"SLOTS_HTTP_PORT"`
	RequestTimeout time.Duration `yaml:"requestTimeout" env:"SLOTS_HTTP_REQUEST_TIMEOUT"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	DSN          string        `yaml:"dsn" env:"SLOTS_POSTGRES_DSN"`
	MaxOpenConns int           `yaml:"maxOpenConns" env:"SLOTS_POSTGRES_MAX_OPEN_CONNS"`
	StoreTimeout time.Duration `yaml:"storeTimeout" env:"SLOTS_STORE_TIMEOUT"`
}

// RedisConfig configures the event bus.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"SLOTS_REDIS_ADDR"`
	Password string `yaml:"password" env:"SLOTS_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"SLOTS_REDIS_DB"`
	Channel  string `yaml:"channel" env:"SLOTS_REDIS_CHANNEL"`
}

// StripeConfig configures the payment gateway.
type StripeConfig struct {
	APIKey        string        `yaml:"apiKey" env:"SLOTS_STRIPE_API_KEY"`
	BaseURL       string        `yaml:"baseURL" env:"SLOTS_STRIPE_BASE_URL"`
	Currency      string        `yaml:"currency" env:"SLOTS_STRIPE_CURRENCY"`
	SuccessURL    string        `yaml:"successURL" env:"SLOTS_STRIPE_SUCCESS_URL"`
	CancelURL     string        `yaml:"cancelURL" env:"SLOTS_STRIPE_CANCEL_URL"`
	WebhookSecret string        `yaml:"webhookSecret" env:"SLOTS_STRIPE_WEBHOOK_SECRET"`
	Timeout       time.Duration `yaml:"timeout" env:"SLOTS_STRIPE_TIMEOUT"`
}

// HoldsConfig configures slot holds during checkout.
type HoldsConfig struct {
	TTL           time.Duration `yaml:"ttl" env:"SLOTS_HOLD_TTL"`
	SweepInterval time.Duration `yaml:"sweepInterval" env:"SLOTS_HOLD_SWEEP_INTERVAL"`
	SweepBatch    int           `yaml:"sweepBatch" env:"SLOTS_HOLD_SWEEP_BATCH"`
}

// NumberingConfig configures per-station slot numbers.
type NumberingConfig struct {
	Policy             string `yaml:"policy" env:"SLOTS_NUMBERING_POLICY"`
	MaxSlotsPerStation int    `yaml:"maxSlotsPerStation" env:"SLOTS_MAX_PER_STATION"`
}

// JWTConfig configures login tokens.
type JWTConfig struct {
	Secret           string `yaml:"secret" env:"SLOTS_JWT_SECRET"`
	ExpiresInMinutes int    `yaml:"expiresInMinutes" env:"SLOTS_JWT_EXPIRES_MINUTES"`
}

// PasswordConfig configures stored password hashes. Hashes of another cost are upgraded on login.
type PasswordConfig struct {
	BcryptCost int `yaml:"bcryptCost" env:"SLOTS_BCRYPT_COST"`
}

// Default returns the configuration before file and environment overrides.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{Port: "8084", RequestTimeout: 30 * time.Second},
		Database: DatabaseConfig{
			MaxOpenConns: 10,
			StoreTimeout: 5 * time.Second,
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			Channel: "slots:availability",
		},
		Stripe: StripeConfig{
			Currency:   "gbp",
			SuccessURL: "http://localhost:3000/payment-success",
			CancelURL:  "http://localhost:3000/payment-cancel",
			Timeout:    10 * time.Second,
		},
		Holds: HoldsConfig{
			TTL:           15 * time.Minute,
			SweepInterval: time.Minute,
			SweepBatch:    100,
		},
		Numbering: NumberingConfig{
			Policy:             "wrap",
			MaxSlotsPerStation: 10,
		},
		JWT:      JWTConfig{ExpiresInMinutes: 60},
		Password: PasswordConfig{BcryptCost: 12},
	}
}

// Load reads configuration using the shared config loader.
func Load() (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and repairs out-of-range values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("config: database DSN is required")
	}
	if strings.TrimSpace(c.Stripe.APIKey) == "" {
		return errors.New("config: stripe api key is required")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return errors.New("config: jwt secret is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.Numbering.Policy)) {
	case "", "wrap", "lowest-free", "reject":
	default:
		return fmt.Errorf("config: unknown numbering policy %q", c.Numbering.Policy)
	}

	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Holds.TTL <= 0 {
		c.Holds.TTL = 15 * time.Minute
	}
	if c.Holds.SweepInterval <= 0 {
		c.Holds.SweepInterval = time.Minute
	}
	if c.Numbering.MaxSlotsPerStation <= 0 {
		c.Numbering.MaxSlotsPerStation = 10
	}
	if c.JWT.ExpiresInMinutes <= 0 {
		c.JWT.ExpiresInMinutes = 60
	}
	return nil
}

// HTTPAddress ensures we always return host:port formatted string.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8084"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// JWTExpiration converts configured expiry to duration.
func (c *Config) JWTExpiration() time.Duration {
	if c.JWT.ExpiresInMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.JWT.ExpiresInMinutes) * time.Minute
}
