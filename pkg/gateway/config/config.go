package config

import (
	"fmt"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string

	// PublicHost is the externally reachable host:port Twilio uses to call
	// back into the gateway (TwiML stream URL, status callbacks).
	PublicHost string

	// Twilio
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	TwilioBaseURL    string

	// ElevenLabs conversational agent
	AgentAPIKey string
	AgentID     string
	AgentWSURL  string

	// Gemini extraction
	GeminiAPIKey string
	GeminiModel  string

	// Google Calendar + OAuth
	GoogleClientID     string
	GoogleClientSecret string
	CalendarID         string
	CalendarTimeZone   string

	// Postgres token store. Empty means in-memory (dev only).
	DatabaseURL string

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Media stream pacing
	BridgeWriteTimeout time.Duration
	BridgePollInterval time.Duration

	// How many completed call outcomes stay queryable after close.
	OutcomeHistoryLimit int

	// Deadline for the post-call extraction and booking pipeline.
	PipelineTimeout time.Duration

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("VOXSCHED_ADDR", ":8080"),
		PublicHost:          envOr("VOXSCHED_PUBLIC_HOST", ""),
		TwilioAccountSID:    envOr("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:     envOr("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:    envOr("TWILIO_FROM_NUMBER", ""),
		TwilioBaseURL:       envOr("VOXSCHED_TWILIO_BASE_URL", "https://api.twilio.com"),
		AgentAPIKey:         envOr("ELEVENLABS_API_KEY", ""),
		AgentID:             envOr("ELEVENLABS_AGENT_ID", ""),
		AgentWSURL:          envOr("VOXSCHED_AGENT_WS_URL", ""),
		GeminiAPIKey:        envOr("GEMINI_API_KEY", ""),
		GeminiModel:         envOr("VOXSCHED_GEMINI_MODEL", "gemini-2.0-flash"),
		GoogleClientID:      envOr("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:  envOr("GOOGLE_CLIENT_SECRET", ""),
		CalendarID:          envOr("VOXSCHED_CALENDAR_ID", "primary"),
		CalendarTimeZone:    envOr("VOXSCHED_CALENDAR_TIMEZONE", "UTC"),
		DatabaseURL:         envOr("DATABASE_URL", ""),
		CORSAllowedOrigins:  make(map[string]struct{}),
		BridgeWriteTimeout:  envDurationOr("VOXSCHED_BRIDGE_WRITE_TIMEOUT", 5*time.Second),
		BridgePollInterval:  envDurationOr("VOXSCHED_BRIDGE_POLL_INTERVAL", 200*time.Millisecond),
		OutcomeHistoryLimit: envIntOr("VOXSCHED_OUTCOME_HISTORY_LIMIT", 256),
		PipelineTimeout:     envDurationOr("VOXSCHED_PIPELINE_TIMEOUT", 45*time.Second),
		ReadHeaderTimeout:   envDurationOr("VOXSCHED_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:         envDurationOr("VOXSCHED_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod: envDurationOr("VOXSCHED_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("VOXSCHED_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if strings.TrimSpace(cfg.PublicHost) == "" {
		return Config{}, fmt.Errorf("VOXSCHED_PUBLIC_HOST must be set")
	}
	if strings.TrimSpace(cfg.TwilioAccountSID) == "" {
		return Config{}, fmt.Errorf("TWILIO_ACCOUNT_SID must be set")
	}
	if strings.TrimSpace(cfg.TwilioAuthToken) == "" {
		return Config{}, fmt.Errorf("TWILIO_AUTH_TOKEN must be set")
	}
	if strings.TrimSpace(cfg.TwilioFromNumber) == "" {
		return Config{}, fmt.Errorf("TWILIO_FROM_NUMBER must be set")
	}
	if strings.TrimSpace(cfg.AgentAPIKey) == "" {
		return Config{}, fmt.Errorf("ELEVENLABS_API_KEY must be set")
	}
	if strings.TrimSpace(cfg.AgentID) == "" {
		return Config{}, fmt.Errorf("ELEVENLABS_AGENT_ID must be set")
	}
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY must be set")
	}
	if cfg.BridgeWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXSCHED_BRIDGE_WRITE_TIMEOUT must be > 0")
	}
	if cfg.BridgePollInterval <= 0 {
		return Config{}, fmt.Errorf("VOXSCHED_BRIDGE_POLL_INTERVAL must be > 0")
	}
	if cfg.OutcomeHistoryLimit <= 0 {
		return Config{}, fmt.Errorf("VOXSCHED_OUTCOME_HISTORY_LIMIT must be > 0")
	}
	if cfg.PipelineTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXSCHED_PIPELINE_TIMEOUT must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXSCHED_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("VOXSCHED_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VOXSCHED_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

// ValidEmail reports whether s looks like an address tokens can be keyed on.
func ValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
