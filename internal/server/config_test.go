package server

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// clearConfigEnv unsets every variable the config reads so defaults apply,
// restoring the original values when the test ends. HOSTNAME in particular is
// routinely set by the OS.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT", "HOSTNAME", "ALLOWED_ORIGINS", "MAX_MESSAGE_SIZE",
		"RATE_LIMIT_BURST", "RATE_LIMIT_REFILL_INTERVAL",
		"ADMIN_ROOM", "ADMIN_USER", "LOG_LEVEL",
	}
	for _, key := range keys {
		t.Setenv(key, "") // registers restoration of the prior value
		os.Unsetenv(key)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	req := require.New(t)
	clearConfigEnv(t)

	cfg, err := LoadConfig()
	req.NoError(err)

	req.Equal("8080", cfg.Port)
	req.Empty(cfg.Host)
	req.Equal([]string{"http://localhost:3000", "http://localhost", "https://localhost"}, cfg.AllowedOrigins)
	req.Equal(int64(1<<20), cfg.MaxMessageSize)
	req.Equal(20, cfg.RateLimitBurst)
	req.Equal(time.Second, cfg.RateLimitRefillInterval)
	req.Equal("Dev", cfg.AdminRoom)
	req.Equal("aisakq", cfg.AdminUser)
}

func TestLoadConfig_ReadsEnvironment(t *testing.T) {
	req := require.New(t)
	clearConfigEnv(t)
	t.Setenv("PORT", "9100")
	t.Setenv("HOSTNAME", "chat.internal")
	t.Setenv("ALLOWED_ORIGINS", "https://chat.example.com,https://admin.example.com")
	t.Setenv("MAX_MESSAGE_SIZE", "2048")
	t.Setenv("RATE_LIMIT_BURST", "5")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("ADMIN_ROOM", "Ops")
	t.Setenv("ADMIN_USER", "root")

	cfg, err := LoadConfig()
	req.NoError(err)

	req.Equal("9100", cfg.Port)
	req.Equal("chat.internal", cfg.Host)
	req.Equal([]string{"https://chat.example.com", "https://admin.example.com"}, cfg.AllowedOrigins)
	req.Equal(int64(2048), cfg.MaxMessageSize)
	req.Equal(5, cfg.RateLimitBurst)
	req.Equal(2*time.Second, cfg.RateLimitRefillInterval)
	req.Equal("Ops", cfg.AdminRoom)
	req.Equal("root", cfg.AdminUser)
}

func TestConfig_SanitizeRestoresDefaults(t *testing.T) {
	req := require.New(t)

	cfg := Config{Port: "", MaxMessageSize: -1, RateLimitBurst: 0, RateLimitRefillInterval: -time.Second}
	cfg.sanitize()

	req.Equal("8080", cfg.Port)
	req.Equal(int64(1<<20), cfg.MaxMessageSize)
	req.Equal(20, cfg.RateLimitBurst)
	req.Equal(time.Second, cfg.RateLimitRefillInterval)
}

func TestConfig_Addr(t *testing.T) {
	req := require.New(t)

	cfg := Config{Port: "8080"}
	req.Equal(":8080", cfg.Addr())

	cfg.Host = "127.0.0.1"
	req.Equal("127.0.0.1:8080", cfg.Addr())
}
