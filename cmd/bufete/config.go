package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/bufete/internal/logger"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProduction
	defaultAccessTTL    = 15 * time.Minute
	defaultRefreshTTL   = 24 * time.Hour
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key
	// Some internal parts (like signing JWT tokens) uses symmetric encryption, so this key is used for that purpose
	SecretKey string

	// Environment
	Environment string

	// Token lifetimes
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Set Secure flag on refresh cookie
	SecureCookie bool

	// Office printed as invoice issuer
	IssuerName  string
	IssuerTaxID string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:    defaultLoggingLevel,
		ListenAddr:  defaultListenAddr,
		Environment: defaultEnvironment,
		AccessTTL:   defaultAccessTTL,
		RefreshTTL:  defaultRefreshTTL,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}
	setBool := func(o *bool) func(value string) error {
		return func(value string) error {
			switch value {
			case "":
			case "1", "true", "yes":
				*o = true
			case "0", "false", "no":
				*o = false
			default:
				return fmt.Errorf("not a boolean '%s'", value)
			}
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":       setString(&c.ListenAddr),
		"DATABASE_URI":      setString(&c.DatabaseDSN),
		"SECRET_KEY":        setString(&c.SecretKey),
		"LOG_LEVEL":         setString(&c.LogLevel),
		"ENVIRONMENT":       setString(&c.Environment),
		"ACCESS_TOKEN_TTL":  setDuration(&c.AccessTTL),
		"REFRESH_TOKEN_TTL": setDuration(&c.RefreshTTL),
		"SECURE_COOKIE":     setBool(&c.SecureCookie),
		"ISSUER_NAME":       setString(&c.IssuerName),
		"ISSUER_TAX_ID":     setString(&c.IssuerTaxID),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s. Err: %w", key, err)
		}
	}

	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("bufete", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.DurationVar(&c.AccessTTL, "access-ttl", c.AccessTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTTL, "refresh-ttl", c.RefreshTTL, "Refresh token lifetime")
	fs.BoolVar(&c.SecureCookie, "secure-cookie", c.SecureCookie, "Send refresh cookie over https only")
	fs.StringVar(&c.IssuerName, "issuer-name", c.IssuerName, "Office name printed on invoices")
	fs.StringVar(&c.IssuerTaxID, "issuer-tax-id", c.IssuerTaxID, "Office tax id printed on invoices")

	return fs.Parse(args)
}

// Load config from defaults, then '.env' file, then environment, then flags
func LoadConfig(getenv func(string) string, getwd func() (string, error), args []string) (*Config, error) {
	c := NewConfig()

	if err := c.LoadDotEnv(getwd); err != nil {
		return nil, fmt.Errorf("can't read .env file. Err: %w", err)
	}
	if err := c.LoadEnv(getenv); err != nil {
		return nil, err
	}
	if err := c.ParseFlags(args); err != nil {
		return nil, err
	}

	return c, nil
}
