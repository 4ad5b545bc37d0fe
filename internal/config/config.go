package config

import (
	"time"

	"github.com/google/uuid"
)

// Config is the root configuration for the zapagent worker.
// Loaded once at startup; secrets come from env only, never from the file.
type Config struct {
	Database  DatabaseConfig  `json:"database,omitempty"`
	Providers ProvidersConfig `json:"providers"`
	Gateway   GatewayConfig   `json:"gateway"`
	Bridge    BridgeConfig    `json:"bridge"`
	Scoring   ScoringConfig   `json:"scoring,omitempty"`
	FollowUps FollowUpsConfig `json:"follow_ups,omitempty"`
	Summary   SummaryConfig   `json:"summary,omitempty"`
	Ingest    IngestConfig    `json:"ingest,omitempty"`
}

// DatabaseConfig selects the storage backend.
// PostgresDSN is NEVER read from the config file (secret); env ZAPAGENT_POSTGRES_DSN only.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`
	SQLitePath  string `json:"sqlite_path,omitempty"`
	Mode        string `json:"mode,omitempty"` // "standalone" (sqlite, default) or "managed" (postgres)
}

// IsManagedMode returns true when the worker persists to Postgres.
func (c *Config) IsManagedMode() bool {
	return c.Database.Mode == "managed" && c.Database.PostgresDSN != ""
}

// ProvidersConfig holds LLM backend settings. API keys from env only.
type ProvidersConfig struct {
	Anthropic ProviderConfig `json:"anthropic,omitempty"`
	OpenAI    ProviderConfig `json:"openai,omitempty"`
	Gemini    ProviderConfig `json:"gemini,omitempty"`
}

// ProviderConfig configures one LLM backend.
type ProviderConfig struct {
	APIKey  string `json:"-"`
	APIBase string `json:"api_base,omitempty"`
	Model   string `json:"model,omitempty"`
}

// GatewayConfig configures the outbound WhatsApp gateway client.
type GatewayConfig struct {
	BaseURL           string `json:"base_url"`
	Token             string `json:"-"` // global admin token, env ZAPAGENT_GATEWAY_TOKEN
	SendRatePerMinute int    `json:"send_rate_per_minute,omitempty"`
	TimeoutSeconds    int    `json:"timeout_seconds,omitempty"`
}

// BridgeConfig configures the inbound websocket bridge connection.
type BridgeConfig struct {
	URL   string `json:"url"`
	Token string `json:"-"` // env ZAPAGENT_BRIDGE_TOKEN
}

// ScoringConfig holds the lead temperature bucket boundaries.
// A score s maps to: cold when s < Warm, warm when s < Hot, hot otherwise.
type ScoringConfig struct {
	WarmThreshold int `json:"warm_threshold,omitempty"`
	HotThreshold  int `json:"hot_threshold,omitempty"`
}

// FollowUpsConfig configures the follow-up sweeper.
type FollowUpsConfig struct {
	SweepSchedule string `json:"sweep_schedule,omitempty"` // cron expression
	BatchSize     int    `json:"batch_size,omitempty"`
}

// SummaryConfig configures the background conversation digests.
type SummaryConfig struct {
	HistoryLimit    int `json:"history_limit,omitempty"`
	MaxOutputTokens int `json:"max_output_tokens,omitempty"`
	TimeoutSeconds  int `json:"timeout_seconds,omitempty"`
}

// IngestConfig bounds inbound event handling.
type IngestConfig struct {
	RateLimitPerMinute int `json:"rate_limit_per_minute,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Mode:       "standalone",
			SQLitePath: "~/.zapagent/zapagent.db",
		},
		Gateway: GatewayConfig{
			SendRatePerMinute: 30,
			TimeoutSeconds:    30,
		},
		Scoring: ScoringConfig{
			WarmThreshold: 40,
			HotThreshold:  70,
		},
		FollowUps: FollowUpsConfig{
			SweepSchedule: "* * * * *",
			BatchSize:     20,
		},
		Summary: SummaryConfig{
			HistoryLimit:    50,
			MaxOutputTokens: 512,
			TimeoutSeconds:  30,
		},
		Ingest: IngestConfig{
			RateLimitPerMinute: 30,
		},
	}
}

// AgentConfig is the per-channel-instance agent configuration. It is loaded
// once per pipeline execution from the store and threaded explicitly through
// every stage; never read from ambient state or mutated after Normalize.
type AgentConfig struct {
	InstanceID     string
	OrganizationID uuid.UUID

	// Persona
	AgentName string
	AgentRole string
	Tone      string

	// Model selection
	Provider        string // "anthropic", "openai", "gemini"
	Model           string
	MaxOutputTokens int

	// Pipeline behaviour
	HistoryLimit                int // messages of history fed to the extractor/responder
	MaxMessages                 int // agent-sent messages before escalation; 0 = unlimited
	MaxFollowUps                int // active follow-ups per conversation
	DefaultFollowUpDelayMinutes int
	ResponseDelaySeconds        int // simulated typing latency before dispatch
	SummaryEvery                int // digest every Nth inbound message

	// Canned texts
	TransferMessage     string
	OutsideHoursMessage string

	// Working hours, "15:04" in the configured timezone. Empty = always active.
	WorkingHoursStart string
	WorkingHoursEnd   string
	Timezone          string

	// Instance credentials at the outbound gateway.
	GatewayToken       string
	GatewayClientToken string
}

// Normalize fills zero fields with defaults. Stores call this before
// handing the config to the pipeline.
func (c *AgentConfig) Normalize() {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 20
	}
	if c.MaxFollowUps <= 0 {
		c.MaxFollowUps = 3
	}
	if c.DefaultFollowUpDelayMinutes <= 0 {
		c.DefaultFollowUpDelayMinutes = 60
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = 1024
	}
	if c.SummaryEvery <= 0 {
		c.SummaryEvery = 10
	}
}

// Location resolves the configured timezone, falling back to UTC.
func (c *AgentConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// WithinWorkingHours reports whether now falls inside the configured window.
// An unset window means the agent is always active. Overnight windows
// (start > end, e.g. 22:00–06:00) are supported.
func (c *AgentConfig) WithinWorkingHours(now time.Time) bool {
	if c.WorkingHoursStart == "" || c.WorkingHoursEnd == "" {
		return true
	}
	start, err := time.Parse("15:04", c.WorkingHoursStart)
	if err != nil {
		return true
	}
	end, err := time.Parse("15:04", c.WorkingHoursEnd)
	if err != nil {
		return true
	}

	local := now.In(c.Location())
	minute := local.Hour()*60 + local.Minute()
	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()

	if startMin <= endMin {
		return minute >= startMin && minute < endMin
	}
	// Overnight window
	return minute >= startMin || minute < endMin
}
