// Package app wires configuration into a ready engine.
package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"

	"taskqueue/internal/config"
	"taskqueue/internal/db"
	"taskqueue/internal/engine"
	"taskqueue/internal/events"
	"taskqueue/internal/llm"
	"taskqueue/internal/logging"
	"taskqueue/internal/migrate"
	"taskqueue/internal/repo"
)

type App struct {
	Config    *config.Config
	Engine    engine.Engine
	Generator llm.Generator
	Logger    *slog.Logger
	// Events is nil for the JSON backend, which only logs events.
	Events events.Reader

	db       *sql.DB
	closeLog func() error
}

// Open builds the logger, opens the configured store and returns the engine on
// top of it. logOut receives terminal logs; nil means stderr.
func Open(ctx context.Context, cfg *config.Config, logOut io.Writer) (*App, error) {
	logger, closeLog, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		File:    cfg.Log.File,
		Journal: cfg.Log.Journal,
		Writer:  logOut,
	})
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger, closeLog: closeLog}

	var store repo.Store
	var sink events.Sink
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		conn, err := db.Open(db.Config{Path: cfg.Store.Path})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.db = conn
		applied, err := migrate.Migrate(ctx, conn)
		if err != nil {
			a.Close()
			return nil, err
		}
		if len(applied) > 0 {
			logger.InfoContext(ctx, "migrations applied", "path", cfg.Store.Path, "migrations", applied)
		}
		store = repo.SQLStore{DB: conn}
		w := events.Writer{DB: conn}
		sink, a.Events = w, w
	default:
		store = repo.NewFileStore(cfg.Store.Path)
		sink = events.LogSink{Logger: logger.With("component", "events")}
	}

	eng := engine.New(store)
	eng.Events = sink
	eng.Logger = logger.With("component", "engine")
	if cfg.IDs == config.IDsUUID {
		eng.IDs = engine.UUIDIDs{}
	}
	a.Engine = eng
	a.Generator = NewGenerator(cfg, logger)
	logger.DebugContext(ctx, "store opened", "backend", cfg.Store.Backend, "path", cfg.Store.Path)
	return a, nil
}

// NewGenerator builds the plan generator from the llm section.
func NewGenerator(cfg *config.Config, logger *slog.Logger) *llm.Client {
	provider := func(p config.ProviderConfig) llm.ProviderConfig {
		return llm.ProviderConfig{APIKey: p.APIKey, BaseURL: p.BaseURL, Model: p.Model}
	}
	c := &llm.Client{
		DefaultProvider: cfg.LLM.Provider,
		Providers: map[string]llm.ProviderConfig{
			llm.ProviderOpenAI:   provider(cfg.LLM.OpenAI),
			llm.ProviderGoogle:   provider(cfg.LLM.Google),
			llm.ProviderDeepseek: provider(cfg.LLM.Deepseek),
		},
	}
	if logger != nil {
		c.Logger = logger.With("component", "llm")
	}
	if cfg.LLM.Model != "" && cfg.LLM.Provider != "" {
		pc := c.Providers[cfg.LLM.Provider]
		if pc.Model == "" {
			pc.Model = cfg.LLM.Model
			c.Providers[cfg.LLM.Provider] = pc
		}
	}
	return c
}

func (a *App) Close() error {
	var errs []error
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.closeLog != nil {
		errs = append(errs, a.closeLog())
	}
	return errors.Join(errs...)
}
