// Package config loads the application settings from the environment and
// the contract catalog from CSV.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/contactkeval/iv-tracker/internal/logger"
)

// Prefix of every environment variable, e.g. IVT_GATEWAY.
const Prefix = "IVT"

// AppConfig is the whole process configuration.
type AppConfig struct {
	Gateway  string        `envconfig:"GATEWAY" default:"synthetic" validate:"oneof=fyers massive synthetic local"`
	Fallback string        `envconfig:"FALLBACK" validate:"omitempty,oneof=fyers massive local,nefield=Gateway"`
	Fyers    FyersConfig   `envconfig:"FYERS"`
	Massive  MassiveConfig `envconfig:"MASSIVE"`
	DataDir  string        `envconfig:"DATA_DIR" default:"data" validate:"required"`
	StoreDir string        `envconfig:"STORE_DIR" default:"series" validate:"required"`

	ContractsFile string  `envconfig:"CONTRACTS_FILE" default:"SymbolSetting.csv"`
	Rate          float64 `envconfig:"RATE" default:"0.10" validate:"gte=0,lte=1"`
	Verbosity     string  `envconfig:"VERBOSITY" default:"info"`
	Addr          string  `envconfig:"ADDR" default:":8080" validate:"required"`

	Cache    CacheConfig   `envconfig:"CACHE"`
	Loop     LoopConfig    `envconfig:"LOOP"`
	Lookback time.Duration `envconfig:"LOOKBACK" default:"2160h" validate:"gt=0"`
	Holidays []string      `envconfig:"HOLIDAYS"`
}

// FyersConfig holds the REST credentials.
type FyersConfig struct {
	AppID       string `envconfig:"APP_ID"`
	AccessToken string `envconfig:"ACCESS_TOKEN"`
	BaseURL     string `envconfig:"BASE_URL" default:"https://api-t1.fyers.in" validate:"url"`
}

// MassiveConfig holds the Massive API key.
type MassiveConfig struct {
	APIKey string `envconfig:"API_KEY"`
}

// CacheConfig selects the result cache backend.
type CacheConfig struct {
	Backend  string        `envconfig:"BACKEND" default:"memory" validate:"oneof=memory redis"`
	Addr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0" validate:"gte=0"`
	Prefix   string        `envconfig:"REDIS_PREFIX" default:"ivseries:"`
	TTL      time.Duration `envconfig:"TTL" default:"0s" validate:"gte=0"`
}

// LoopConfig is the polling policy.
type LoopConfig struct {
	Tick   time.Duration `envconfig:"TICK" default:"1s" validate:"gt=0"`
	Retry  time.Duration `envconfig:"RETRY" default:"5s" validate:"gt=0"`
	Closed time.Duration `envconfig:"CLOSED" default:"60s" validate:"gt=0"`
	Join   time.Duration `envconfig:"JOIN" default:"5s" validate:"gt=0"`
}

var validate = validator.New()

// Load reads envFile when it exists, then the environment.
func Load(envFile string) (*AppConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: %s: %w", envFile, err)
		}
	}

	var cfg AppConfig
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and gateway credentials. All failures
// are reported together.
func (c *AppConfig) Validate() error {
	var errs []error
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Errorf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
	}
	if _, err := logger.ParseLevel(c.Verbosity); err != nil {
		errs = append(errs, fmt.Errorf("AppConfig.Verbosity: %w", err))
	}
	for _, gw := range []string{c.Gateway, c.Fallback} {
		switch gw {
		case "fyers":
			if strings.TrimSpace(c.Fyers.AppID) == "" || strings.TrimSpace(c.Fyers.AccessToken) == "" {
				errs = append(errs, errors.New("AppConfig.Fyers: app id and access token are required for the fyers gateway"))
			}
		case "massive":
			if strings.TrimSpace(c.Massive.APIKey) == "" {
				errs = append(errs, errors.New("AppConfig.Massive.APIKey: required for the massive gateway"))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: invalid: %w", errors.Join(errs...))
	}
	return nil
}
