package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App       AppConfig
	JWT       JWTConfig
	Redis     RedisConfig
	Remote    RemoteConfig
	Cart      CartConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Remote.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Cart.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"WISDOM_APP_ENV" required:"true"`
	Port         string `envconfig:"WISDOM_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"WISDOM_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"WISDOM_LOG_WARN_STACK" default:"false"`

	// CORSOrigins is a comma separated list of storefront origins.
	CORSOrigins []string `envconfig:"WISDOM_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// JWTConfig validates the storefront access tokens; minting happens in the auth service.
type JWTConfig struct {
	Secret string `envconfig:"WISDOM_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"WISDOM_JWT_ISSUER" required:"true"`
}

type RedisConfig struct {
	URL          string        `envconfig:"WISDOM_REDIS_URL"`
	Address      string        `envconfig:"WISDOM_REDIS_ADDR"`
	Password     string        `envconfig:"WISDOM_REDIS_PASSWORD"`
	DB           int           `envconfig:"WISDOM_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"WISDOM_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"WISDOM_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"WISDOM_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"WISDOM_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"WISDOM_REDIS_WRITE_TIMEOUT" default:"3s"`
}

// Enabled reports whether a Redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

// RemoteConfig points at the bookstore cart service.
type RemoteConfig struct {
	BaseURL        string        `envconfig:"WISDOM_REMOTE_BASE_URL" required:"true"`
	Timeout        time.Duration `envconfig:"WISDOM_REMOTE_TIMEOUT" default:"10s"`
	MaxRetries     uint64        `envconfig:"WISDOM_REMOTE_MAX_RETRIES" default:"2"`
	RetryBaseDelay time.Duration `envconfig:"WISDOM_REMOTE_RETRY_BASE_DELAY" default:"100ms"`
}

func (r RemoteConfig) validate() error {
	parsed, err := url.Parse(strings.TrimSpace(r.BaseURL))
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", EnvRemoteBaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) url", EnvRemoteBaseURL)
	}
	return nil
}

// CartConfig tunes the debounce windows of the cart controllers.
type CartConfig struct {
	QuantityDebounce  time.Duration `envconfig:"WISDOM_CART_QUANTITY_DEBOUNCE" default:"400ms"`
	SelectionDebounce time.Duration `envconfig:"WISDOM_CART_SELECTION_DEBOUNCE" default:"300ms"`
	SelectAllDebounce time.Duration `envconfig:"WISDOM_CART_SELECT_ALL_DEBOUNCE" default:"300ms"`
	DiscardStale      bool          `envconfig:"WISDOM_CART_DISCARD_STALE" default:"true"`
	NoticeBuffer      int           `envconfig:"WISDOM_CART_NOTICE_BUFFER" default:"50"`
}

func (c CartConfig) validate() error {
	if c.QuantityDebounce <= 0 || c.SelectionDebounce <= 0 || c.SelectAllDebounce <= 0 {
		return fmt.Errorf("cart debounce windows must be positive")
	}
	return nil
}

type SessionConfig struct {
	IdleTTL        time.Duration `envconfig:"WISDOM_SESSION_IDLE_TTL" default:"30m"`
	SweepInterval  time.Duration `envconfig:"WISDOM_SESSION_SWEEP_INTERVAL" default:"1m"`
	DrainTimeout   time.Duration `envconfig:"WISDOM_SESSION_DRAIN_TIMEOUT" default:"5s"`
	AddGuardWindow time.Duration `envconfig:"WISDOM_SESSION_ADD_GUARD_WINDOW" default:"2s"`
}

type RateLimitConfig struct {
	Window    time.Duration `envconfig:"WISDOM_RATE_LIMIT_WINDOW" default:"1m"`
	UserLimit int           `envconfig:"WISDOM_RATE_LIMIT_USER_LIMIT" default:"600"`
}
