package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: defaults + env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values. Secrets are env-only.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("ZAPAGENT_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("ZAPAGENT_SQLITE_PATH", &c.Database.SQLitePath)
	envStr("ZAPAGENT_DB_MODE", &c.Database.Mode)

	envStr("ZAPAGENT_ANTHROPIC_API_KEY", &c.Providers.Anthropic.APIKey)
	envStr("ZAPAGENT_OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	envStr("ZAPAGENT_GEMINI_API_KEY", &c.Providers.Gemini.APIKey)

	envStr("ZAPAGENT_GATEWAY_URL", &c.Gateway.BaseURL)
	envStr("ZAPAGENT_GATEWAY_TOKEN", &c.Gateway.Token)
	envStr("ZAPAGENT_BRIDGE_URL", &c.Bridge.URL)
	envStr("ZAPAGENT_BRIDGE_TOKEN", &c.Bridge.Token)

	if v := os.Getenv("ZAPAGENT_SEND_RATE_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Gateway.SendRatePerMinute = n
		}
	}

	// Postgres DSN present implies managed mode unless explicitly overridden.
	if c.Database.PostgresDSN != "" && c.Database.Mode == "standalone" && os.Getenv("ZAPAGENT_DB_MODE") == "" {
		c.Database.Mode = "managed"
	}
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
