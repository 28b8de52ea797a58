// Package app wires the task store, interpreter and maintenance together so
// every binary builds them the same way.
package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/vthunder/chorebot/internal/activity"
	"github.com/vthunder/chorebot/internal/bot"
	"github.com/vthunder/chorebot/internal/config"
	"github.com/vthunder/chorebot/internal/ingest"
	"github.com/vthunder/chorebot/internal/intent"
	"github.com/vthunder/chorebot/internal/intent/gemini"
	"github.com/vthunder/chorebot/internal/intent/openai"
	"github.com/vthunder/chorebot/internal/logging"
	"github.com/vthunder/chorebot/internal/memory"
	"github.com/vthunder/chorebot/internal/profiling"
	"github.com/vthunder/chorebot/internal/reflex"
	"github.com/vthunder/chorebot/internal/resolver"
	"github.com/vthunder/chorebot/internal/sweep"
	"github.com/vthunder/chorebot/internal/tasks"
	"github.com/vthunder/chorebot/internal/vocab"
)

// App holds the long-lived components
type App struct {
	Config   config.Config
	DB       *tasks.DB
	Vocab    *vocab.Vocabulary
	Reflex   *reflex.Engine
	Ingester *ingest.Ingester
	Resolver *resolver.Resolver
	Memory   *memory.Sessions
	Sweeper  *sweep.Sweeper
	Profiler *profiling.Profiler
	Activity *activity.Log

	// Interpreter is nil when no provider is configured
	Interpreter intent.Interpreter
}

// New opens the store and builds every component from cfg
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logging.SetDebug(cfg.Debug)

	db, err := tasks.Open(cfg.StatePath, tasks.Options{
		Driver:             cfg.DBDriver,
		UniqueActiveTitles: cfg.UniqueActiveTitles,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open task store: %w", err)
	}

	a := &App{Config: cfg, DB: db}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	a.Vocab, err = vocab.Load(cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load vocabulary: %w", err)
	}

	a.Reflex = reflex.NewEngine(cfg.StatePath)
	if err := a.Reflex.Load(); err != nil {
		return nil, fmt.Errorf("failed to load reflexes: %w", err)
	}

	a.Ingester = ingest.New(db, a.Vocab)
	a.Resolver = resolver.New(db, a.Vocab, nil, resolver.Policy{
		ClearScope: resolver.ClearScope(cfg.ClearScope),
	})
	a.Memory = memory.New(db, cfg.HistorySize, cfg.HistoryIdleTTL)
	a.Sweeper = sweep.New(db, db, sweep.NewJSONLArchiver(cfg.StatePath), cfg.Retention())

	a.Activity = activity.New(cfg.StatePath)
	a.Profiler, err = profiling.Open(cfg.ProfileLevel, filepath.Join(cfg.StatePath, "system", "profiling.jsonl"))
	if err != nil {
		return nil, err
	}

	provider, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if provider != nil {
		a.Interpreter = intent.NewLLM(provider, cfg.LLMTimeout)
		logging.Info("app", "Interpreting with %s", provider.Name())
	} else {
		logging.Warn("app", "No language model configured, using reflex rules only")
	}

	ok = true
	return a, nil
}

// NewProvider builds the configured language model provider; nil when none
func NewProvider(ctx context.Context, cfg config.Config) (intent.Provider, error) {
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		p, err := openai.New(openai.Config{
			APIKey:  cfg.OpenAIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI provider: %w", err)
		}
		return p, nil
	case config.ProviderGemini:
		p, err := gemini.New(ctx, cfg.GeminiKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini provider: %w", err)
		}
		return p, nil
	}
	return nil, nil
}

// Handler builds the chat message handler
func (a *App) Handler() *bot.Handler {
	deps := bot.Deps{
		Fallback: a.Reflex,
		Store:    a.DB,
		Memory:   a.Memory,
		Ingester: a.Ingester,
		Resolver: a.Resolver,
		Profiler: a.Profiler,
		Activity: a.Activity,
	}
	// Keep the interface nil rather than wrapping a nil pointer
	if a.Interpreter != nil {
		deps.Interpreter = a.Interpreter
	}
	return bot.New(deps)
}

// Close releases the store and profiler
func (a *App) Close() error {
	if err := a.Profiler.Close(); err != nil {
		logging.Warn("app", "failed to close profiler: %v", err)
	}
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
