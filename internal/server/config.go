package server

import (
	"net"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the relay's runtime settings. Every field is loaded from the
// environment; a .env file, when present, is folded in by main before
// processing.
//
// AdminRoom and AdminUser gate the in-band "/save-all" export command. That
// pair is a minimal placeholder rather than an authorization scheme — the
// sender name is client-supplied and unverified — so it is at least
// configurable per deployment instead of baked in.
type Config struct {
	Port string `envconfig:"PORT" default:"8080"`
	Host string `envconfig:"HOSTNAME" default:""`

	// AllowedOrigins is the CORS allow-list for WebSocket upgrades.
	// A single "*" entry allows every origin.
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost,https://localhost"`

	// MaxMessageSize bounds a single inbound frame. Images travel inline
	// as base64 data URLs, so the default is a megabyte rather than the
	// few hundred bytes a text-only relay would need.
	MaxMessageSize int64 `envconfig:"MAX_MESSAGE_SIZE" default:"1048576"`

	RateLimitBurst          int           `envconfig:"RATE_LIMIT_BURST" default:"20"`
	RateLimitRefillInterval time.Duration `envconfig:"RATE_LIMIT_REFILL_INTERVAL" default:"1s"`

	AdminRoom string `envconfig:"ADMIN_ROOM" default:"Dev"`
	AdminUser string `envconfig:"ADMIN_USER" default:"aisakq"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig reads the configuration from the environment and normalizes
// out-of-range values back to their defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	cfg.sanitize()
	return &cfg, nil
}

func (c *Config) sanitize() {
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 1 << 20
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 20
	}
	if c.RateLimitRefillInterval <= 0 {
		c.RateLimitRefillInterval = time.Second
	}
}

// Addr returns the listen address in host:port form. An empty Host binds all
// interfaces.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}
