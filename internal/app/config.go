package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"HTTP listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Redis       RedisConfig
	Session     SessionConfig
	Identity    IdentityConfig
	Admin       AdminConfig
	Outbox      OutboxConfig
	RateLimit   RateLimitConfig
	Graceful    GracefulConfig
}

// RedisConfig locates the session store.
type RedisConfig struct {
	URL string `default:"redis://localhost:6379/0" usage:"Redis URL (SHOP_REDIS_URL or REDIS_URL)"`
}

// SessionConfig controls the storefront session cookie.
type SessionConfig struct {
	Cookie string        `default:"shop_session" usage:"Session cookie name"`
	TTL    time.Duration `default:"72h" usage:"Idle session lifetime"`
	Secure bool          `default:"false" usage:"Mark the session cookie Secure"`
}

// IdentityConfig names the header the upstream auth layer sets.
type IdentityConfig struct {
	Header string `default:"X-User-ID" usage:"Trusted header carrying the numeric user id"`
}

// AdminConfig controls the administrative API.
type AdminConfig struct {
	APIKeyPepper string   `usage:"HMAC pepper for API key hashing (SHOP_ADMIN_APIKEYPEPPER)" flag:"api-key-pepper"`
	CORSOrigins  []string `default:"*" usage:"Origins allowed to call the admin API"`
}

// OutboxConfig controls publishing of order events. Publishing is off when
// Brokers is empty; events still accumulate in the outbox table.
type OutboxConfig struct {
	Brokers   []string      `usage:"Kafka bootstrap brokers"`
	Topic     string        `default:"shop.orders" usage:"Kafka topic for order events"`
	Interval  time.Duration `default:"2s" usage:"Outbox poll interval"`
	BatchSize int           `default:"100" usage:"Events published per poll"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/shop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	}
	if cfg.Admin.APIKeyPepper == "" {
		return nil, errors.New("admin API key pepper is required: set SHOP_ADMIN_APIKEYPEPPER")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's SHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" && os.Getenv("SHOP_REDIS_URL") == "" {
		c.Redis.URL = v
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
