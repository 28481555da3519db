package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config is the complete service configuration.
type Config struct {
	AppEnv       string             `toml:"app_env"`
	Port         int                `toml:"port"`
	DatabaseURL  string             `toml:"database_url"`
	Redis        RedisConfig        `toml:"redis"`
	Minio        MinioConfig        `toml:"minio"`
	Gateway      GatewayConfig      `toml:"gateway"`
	Subscription SubscriptionConfig `toml:"subscription"`
	Sweep        SweepConfig        `toml:"sweep"`
	Operator     OperatorConfig     `toml:"operator"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// MinioConfig configures the raw callback archive. An empty endpoint
// disables archiving.
type MinioConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
	Bucket    string `toml:"bucket"`
}

type GatewayConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout Duration `toml:"timeout"`
}

type SubscriptionConfig struct {
	Plan       string `toml:"plan"`
	PeriodDays int    `toml:"period_days"`
}

type SweepConfig struct {
	Interval   Duration `toml:"interval"`
	PendingAge Duration `toml:"pending_age"`
	BatchSize  int      `toml:"batch_size"`
}

// OperatorConfig authenticates the ops endpoints: an HMAC secret, or a JWKS
// URL when tokens come from an external identity provider.
type OperatorConfig struct {
	JWTSecret string `toml:"jwt_secret"`
	JWKSURL   string `toml:"jwks_url"`
}

// Duration decodes TOML strings such as "5m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func Default() *Config {
	return &Config{
		AppEnv: "development",
		Port:   8080,
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Minio: MinioConfig{
			Bucket: "agendafacil-webhooks",
		},
		Gateway: GatewayConfig{
			BaseURL: "https://api.mercadopago.com",
			Timeout: Duration{10 * time.Second},
		},
		Subscription: SubscriptionConfig{
			Plan:       "PROFISSIONAL",
			PeriodDays: 30,
		},
		Sweep: SweepConfig{
			Interval:   Duration{5 * time.Minute},
			PendingAge: Duration{10 * time.Minute},
			BatchSize:  100,
		},
	}
}

// Load reads .env when present, then the TOML file named by CONFIG_FILE, then
// environment variables. Later sources win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *Duration) {
		if v, ok := lookup(key); ok && v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				errs = append(errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
			}
		}
	}

	str("APP_ENV", &c.AppEnv)
	num("PORT", &c.Port)
	str("DATABASE_URL", &c.DatabaseURL)

	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	num("REDIS_DB", &c.Redis.DB)

	str("MINIO_ENDPOINT", &c.Minio.Endpoint)
	str("MINIO_ACCESS_KEY", &c.Minio.AccessKey)
	str("MINIO_SECRET_KEY", &c.Minio.SecretKey)
	str("MINIO_BUCKET", &c.Minio.Bucket)
	if v, ok := lookup("MINIO_USE_SSL"); ok && v != "" {
		c.Minio.UseSSL = v == "true"
	}

	str("MERCADOPAGO_BASE_URL", &c.Gateway.BaseURL)
	dur("GATEWAY_TIMEOUT", &c.Gateway.Timeout)

	str("SUBSCRIPTION_PLAN", &c.Subscription.Plan)
	num("SUBSCRIPTION_PERIOD_DAYS", &c.Subscription.PeriodDays)

	dur("SWEEP_INTERVAL", &c.Sweep.Interval)
	dur("SWEEP_PENDING_AGE", &c.Sweep.PendingAge)
	num("SWEEP_BATCH_SIZE", &c.Sweep.BatchSize)

	str("JWT_SECRET", &c.Operator.JWTSecret)
	str("OPERATOR_JWKS_URL", &c.Operator.JWKSURL)

	return errors.Join(errs...)
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Subscription.PeriodDays <= 0 {
		return fmt.Errorf("subscription period must be positive, got %d days", c.Subscription.PeriodDays)
	}
	if c.Sweep.Interval.Duration <= 0 {
		return errors.New("sweep interval must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
