// Package config loads process settings from .env and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/vthunder/chorebot/internal/profiling"
)

// Provider names accepted by LLM_PROVIDER
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderNone   = "none"
)

// Config is everything the bot reads from the environment
type Config struct {
	DiscordToken     string
	DiscordChannelID string // optional: only answer in this channel (plus DMs)
	StatePath        string

	LLMProvider   string
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
	GeminiKey     string
	GeminiModel   string
	LLMTimeout    time.Duration

	HistorySize    int
	HistoryIdleTTL time.Duration

	RetentionDays int
	SweepInterval time.Duration

	ClearScope         string // owner or global
	UniqueActiveTitles bool
	DBDriver           string // sqlite or sqlite3

	Debug        bool
	ProfileLevel profiling.Level
}

// Retention returns RetentionDays as a duration
func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Load reads .env if present, then the environment
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to read .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, applying defaults and
// validating values
func FromEnv(getenv func(string) string) (Config, error) {
	p := parser{getenv: getenv}

	cfg := Config{
		DiscordToken:     p.str("DISCORD_TOKEN", ""),
		DiscordChannelID: p.str("DISCORD_CHANNEL_ID", ""),
		StatePath:        p.str("STATE_PATH", "state"),
		LLMProvider:      strings.ToLower(p.str("LLM_PROVIDER", "")),
		OpenAIKey:        p.str("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    p.str("OPENAI_BASE_URL", ""),
		OpenAIModel:      p.str("OPENAI_MODEL", ""),
		GeminiKey:        p.str("GEMINI_API_KEY", ""),
		GeminiModel:      p.str("GEMINI_MODEL", ""),

		LLMTimeout:     p.duration("LLM_TIMEOUT", 20*time.Second),
		HistorySize:    p.integer("HISTORY_SIZE", 12),
		HistoryIdleTTL: p.duration("HISTORY_IDLE_TTL", 2*time.Hour),
		RetentionDays:  p.integer("RETENTION_DAYS", 30),
		SweepInterval:  p.duration("SWEEP_INTERVAL", 24*time.Hour),

		ClearScope:         strings.ToLower(p.str("CLEAR_SCOPE", "owner")),
		UniqueActiveTitles: p.boolean("UNIQUE_ACTIVE_TITLES", true),
		DBDriver:           strings.ToLower(p.str("DB_DRIVER", "sqlite")),
		Debug:              p.boolean("DEBUG", false),
	}

	level, ok := profiling.ParseLevel(p.str("PROFILE_LEVEL", "off"))
	if !ok {
		p.errs = append(p.errs, errors.New("PROFILE_LEVEL must be off, stages or detailed"))
	}
	cfg.ProfileLevel = level

	// Pick a provider from whichever key is set
	if cfg.LLMProvider == "" {
		switch {
		case cfg.OpenAIKey != "" || cfg.OpenAIBaseURL != "":
			cfg.LLMProvider = ProviderOpenAI
		case cfg.GeminiKey != "":
			cfg.LLMProvider = ProviderGemini
		default:
			cfg.LLMProvider = ProviderNone
		}
	}

	if len(p.errs) > 0 {
		return cfg, errors.Join(p.errs...)
	}
	return cfg, cfg.Validate()
}

// Validate checks values that parse but make no sense
func (c Config) Validate() error {
	var errs []error
	switch c.LLMProvider {
	case ProviderOpenAI:
		if c.OpenAIKey == "" && c.OpenAIBaseURL == "" {
			errs = append(errs, errors.New("LLM_PROVIDER=openai needs OPENAI_API_KEY or OPENAI_BASE_URL"))
		}
	case ProviderGemini:
		if c.GeminiKey == "" {
			errs = append(errs, errors.New("LLM_PROVIDER=gemini needs GEMINI_API_KEY"))
		}
	case ProviderNone:
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider))
	}
	if c.ClearScope != "owner" && c.ClearScope != "global" {
		errs = append(errs, fmt.Errorf("CLEAR_SCOPE must be owner or global, got %q", c.ClearScope))
	}
	if c.DBDriver != "sqlite" && c.DBDriver != "sqlite3" {
		errs = append(errs, fmt.Errorf("DB_DRIVER must be sqlite or sqlite3, got %q", c.DBDriver))
	}
	if c.HistorySize < 1 {
		errs = append(errs, fmt.Errorf("HISTORY_SIZE must be at least 1, got %d", c.HistorySize))
	}
	if c.RetentionDays < 1 {
		errs = append(errs, fmt.Errorf("RETENTION_DAYS must be at least 1, got %d", c.RetentionDays))
	}
	if c.LLMTimeout <= 0 {
		errs = append(errs, errors.New("LLM_TIMEOUT must be positive"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) boolean(key string, def bool) bool {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

// duration accepts Go durations ("90s", "2h") or a bare number of seconds
func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
