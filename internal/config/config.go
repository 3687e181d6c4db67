// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// XRPL settings
	XRPLURL          string // Websocket endpoint
	NGOWalletAddress string // Classic address funds are escrowed from
	NGOWalletSeed    string // Family seed (s...) used for sign-and-submit; empty enables stub ledger
	LedgerTimeout    time.Duration

	// Escrow policy
	FinishGrace  time.Duration // Delay after creation before EscrowFinish becomes legal
	CancelBuffer time.Duration // Gap between the local deadline and the ledger CancelAfter

	// Observability
	OTLPEndpoint string

	// Security
	RateLimitRPM int
}

// XRPL testnet defaults
const (
	DefaultXRPLURL       = "wss://s.altnet.rippletest.net:51233"
	DefaultPort          = "8080"
	DefaultEnv           = "development"
	DefaultLogLevel      = "info"
	DefaultLedgerTimeout = 30 * time.Second
	DefaultFinishGrace   = 5 * time.Minute
	DefaultCancelBuffer  = 5 * time.Minute
	DefaultRateLimit     = 120
)

// Load reads configuration from environment variables.
// It loads a .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", DefaultPort),
		Env:              getEnv("ENV", DefaultEnv),
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		XRPLURL:          getEnv("XRPL_URL", DefaultXRPLURL),
		NGOWalletAddress: os.Getenv("NGO_WALLET_ADDRESS"),
		NGOWalletSeed:    os.Getenv("NGO_WALLET_SEED"),
		LedgerTimeout:    getEnvDuration("LEDGER_TIMEOUT", DefaultLedgerTimeout),
		FinishGrace:      getEnvDuration("FINISH_GRACE", DefaultFinishGrace),
		CancelBuffer:     getEnvDuration("CANCEL_BUFFER", DefaultCancelBuffer),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPM:     getEnvInt("RATE_LIMIT_RPM", DefaultRateLimit),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is coherent.
func (c *Config) Validate() error {
	if c.NGOWalletSeed != "" {
		if !strings.HasPrefix(c.NGOWalletSeed, "s") {
			return fmt.Errorf("NGO_WALLET_SEED must be an XRPL family seed (s...)")
		}
		if c.NGOWalletAddress == "" {
			return fmt.Errorf("NGO_WALLET_ADDRESS is required when NGO_WALLET_SEED is set")
		}
		if !strings.HasPrefix(c.NGOWalletAddress, "r") {
			return fmt.Errorf("NGO_WALLET_ADDRESS must be an XRPL classic address (r...)")
		}
		if c.XRPLURL == "" {
			return fmt.Errorf("XRPL_URL is required when NGO_WALLET_SEED is set")
		}
	}

	if c.LedgerTimeout <= 0 {
		return fmt.Errorf("LEDGER_TIMEOUT must be positive")
	}
	if c.FinishGrace <= 0 || c.CancelBuffer <= 0 {
		return fmt.Errorf("FINISH_GRACE and CANCEL_BUFFER must be positive")
	}

	return nil
}

// LedgerEnabled reports whether a real XRPL connection should be used.
// Without a funded NGO wallet the server runs against a stub ledger.
func (c *Config) LedgerEnabled() bool {
	return c.NGOWalletSeed != ""
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
