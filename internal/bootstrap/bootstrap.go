// Package bootstrap is the composition root shared by the binaries.
package bootstrap

import (
	"io"
	"net/http"

	"emperror.dev/errors"
	"github.com/sirupsen/logrus"

	"github.com/pollwave/backend/internal/config"
	"github.com/pollwave/backend/internal/database"
	"github.com/pollwave/backend/internal/feed"
	"github.com/pollwave/backend/internal/generator"
	"github.com/pollwave/backend/internal/handlers"
	"github.com/pollwave/backend/internal/logging"
	"github.com/pollwave/backend/internal/pipeline"
	"github.com/pollwave/backend/internal/polls"
	"github.com/pollwave/backend/internal/quota"
	"github.com/pollwave/backend/internal/risk"
	"github.com/pollwave/backend/internal/server"
	"github.com/pollwave/backend/internal/state"
	"github.com/pollwave/backend/internal/store"
	"github.com/pollwave/backend/internal/store/memory"
	"github.com/pollwave/backend/internal/store/postgres"
	"github.com/pollwave/backend/internal/voting"
)

type App struct {
	Config    config.Config
	Log       *logrus.Entry
	State     *state.File
	Gate      *quota.Gate
	Generator *generator.Generator
	Evaluator *risk.Evaluator

	store   store.Store
	closers []io.Closer
}

// Build wires the quota gate and the generation client. The poll store is
// opened lazily by Store because pollctl quota does not need it.
func Build(cfg config.Config, process string) (*App, error) {
	logging.Setup(cfg.LogLevel, cfg.LogFile)
	app := &App{
		Config: cfg,
		Log:    logging.Module(process),
	}

	file, err := state.Open(cfg.QuotaFile)
	if err != nil {
		return nil, err
	}
	app.State = file
	app.closers = append(app.closers, file)

	var quotaStore quota.Store = quota.NewFileStore(file)
	if cfg.QuotaBackend == "redis" {
		redisStore, err := quota.NewRedisStore(cfg.RedisAddr)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		app.closers = append(app.closers, redisStore)
		quotaStore = redisStore
	}
	app.Gate = quota.NewGate(quotaStore, quota.Limits{PerMinute: cfg.QuotaPerMinute, PerDay: cfg.QuotaPerDay})

	client := generator.NewGeminiClient(cfg.GeminiBaseURL, cfg.GeminiModel, cfg.GeminiAPIKey)
	app.Generator = generator.New(client, app.Gate, cfg.GenerationTimeout)
	app.Evaluator = risk.NewEvaluator(app.Generator)

	return app, nil
}

// Store opens the configured poll store on first use.
func (a *App) Store() (store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}

	switch a.Config.StoreDriver {
	case "memory":
		a.Log.Warn("using in-memory store, data is lost on exit")
		a.store = memory.NewStore()
	default:
		level, err := logrus.ParseLevel(a.Config.LogLevel)
		if err != nil {
			level = logrus.InfoLevel
		}
		svc, err := database.New(a.Config.DSN(), level)
		if err != nil {
			return nil, err
		}
		a.store = postgres.NewStore(svc)
	}
	a.closers = append(a.closers, a.store)
	return a.store, nil
}

// RequireGeneration fails when no model API key is configured.
func (a *App) RequireGeneration() error {
	if a.Config.GeminiAPIKey == "" {
		return errors.New("GEMINI_API_KEY is required")
	}
	return nil
}

func (a *App) Pipeline() (*pipeline.Pipeline, error) {
	s, err := a.Store()
	if err != nil {
		return nil, err
	}
	topics := pipeline.NewRotatingTopics(a.State, pipeline.DefaultTopics)
	return pipeline.New(topics, a.Generator, a.Evaluator, s), nil
}

func (a *App) HTTPServer() (*http.Server, error) {
	if a.Config.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	s, err := a.Store()
	if err != nil {
		return nil, err
	}

	var evaluator polls.Evaluator
	if a.Config.RequireModerationForUserContent {
		if err := a.RequireGeneration(); err != nil {
			return nil, errors.WithMessage(err, "user content moderation is enabled")
		}
		evaluator = a.Evaluator
	}

	srv := server.New(a.Config, handlers.Deps{
		Store:     s,
		Feed:      feed.NewRanker(s),
		Votes:     voting.NewEngine(s),
		Polls:     polls.NewService(s, evaluator, a.Config.RequireModerationForUserContent),
		Quota:     a.Gate,
		JWTSecret: []byte(a.Config.JWTSecret),
	})
	return srv.HTTPServer(), nil
}

// Close releases everything in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Combine(errs...)
}
