// Package bootstrap builds the service graph from a loaded config. The API
// server and the operator CLI share it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/aadhaar-drishti/backend/internal/aggregation"
	"github.com/aadhaar-drishti/backend/internal/auth"
	rediscache "github.com/aadhaar-drishti/backend/internal/cache/redis"
	"github.com/aadhaar-drishti/backend/internal/citizen"
	"github.com/aadhaar-drishti/backend/internal/importer"
	"github.com/aadhaar-drishti/backend/internal/llm"
	"github.com/aadhaar-drishti/backend/internal/reporting"
	"github.com/aadhaar-drishti/backend/internal/storage"
	"github.com/aadhaar-drishti/backend/internal/storage/memory"
	"github.com/aadhaar-drishti/backend/internal/storage/mongodb"
	"github.com/aadhaar-drishti/backend/internal/storage/sqlite"
	"github.com/aadhaar-drishti/backend/pkg/config"
	"github.com/aadhaar-drishti/backend/pkg/logger"
	"github.com/aadhaar-drishti/backend/pkg/retry"
)

type App struct {
	Store    storage.Store
	Importer *importer.Importer
	Engine   *aggregation.Engine
	Reports  *reporting.Service
	Advisor  *llm.Advisor
	Tokens   *auth.TokenIssuer
	OTPs     *auth.Service
	Citizens *citizen.Service

	closers []func() error
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, store.Close)

	var reportOpts []reporting.Option
	if cfg.Redis.Enabled {
		cache, err := rediscache.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.closers = append(app.closers, cache.Close)

		reportOpts = append(reportOpts, reporting.WithCache(cache, time.Duration(cfg.Redis.CacheTTLSec)*time.Second))
		if cfg.Redis.OTPStore {
			store = storage.WithOTPStore(store, cache)
		}
	}
	app.Store = store

	app.Reports = reporting.NewService(store, reportOpts...)

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.Import.MaxAttempts
	retryCfg.Logger = logger.Named("importer")

	app.Importer = importer.New(store,
		importer.NewSources(importer.SourceConfig{
			S3Region:           cfg.Sources.S3.Region,
			S3Endpoint:         cfg.Sources.S3.Endpoint,
			GCSCredentialsFile: cfg.Sources.GCS.CredentialsFile,
		}),
		importer.WithBatchSize(cfg.Import.BatchSize),
		importer.WithConcurrency(cfg.Import.Concurrency),
		importer.WithRetry(retryCfg),
	)

	app.Engine = aggregation.NewEngine(store, store,
		aggregation.WithWorkers(cfg.Aggregation.Workers),
		aggregation.WithBiometricOnly(cfg.Aggregation.BiometricOnly),
		aggregation.WithAfterRun(app.Reports.Invalidate),
	)

	gen, err := NewGenerator(ctx, cfg.LLM)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Advisor = llm.NewAdvisor(gen)

	app.Tokens = auth.NewTokenIssuer(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLHours)*time.Hour)

	var codes auth.CodeGenerator = auth.FixedCode(cfg.Auth.FixedOTP)
	if cfg.Auth.OTPMode == "random" {
		codes = auth.RandomCode{Digits: 6}
	}
	app.OTPs = auth.NewService(store, app.Tokens,
		auth.WithCodeGenerator(codes),
		auth.WithOTPTTL(time.Duration(cfg.Auth.OTPTTLMinutes)*time.Minute),
		auth.WithRegion(cfg.Auth.Region),
	)

	app.Citizens = citizen.NewService(citizen.NewRandomDistrictLookup(store, 0), app.Reports, app.Advisor)

	return app, nil
}

// Close releases every backend opened by New, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// OpenStore connects the configured document store and makes sure its schema
// exists.
func OpenStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	var (
		store storage.Store
		err   error
	)

	switch cfg.Storage.Driver {
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		store, err = sqlite.NewClient(cfg.SQLite.Path)
	case "mongo":
		store, err = mongodb.NewClient(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	case "memory":
		logger.Warn("Using in-memory store; data is lost on exit")
		store = memory.New()
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Storage.Driver, err)
	}

	if err := store.InitSchema(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("Store ready", zap.String("driver", cfg.Storage.Driver))
	return store, nil
}

// NewGenerator returns the configured AI provider, or nil when no API key is
// set. A nil generator makes every AI answer use its fallback.
func NewGenerator(ctx context.Context, cfg config.LLMConfig) (llm.Generator, error) {
	if cfg.APIKey == "" {
		logger.Warn("No LLM API key configured; AI answers will use fallbacks")
		return nil, nil
	}

	timeout := time.Duration(cfg.TimeoutSec) * time.Second

	switch cfg.Provider {
	case "openai":
		return llm.NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.Temperature, cfg.MaxTokens, timeout), nil
	case "gemini":
		client, err := llm.NewGeminiClient(ctx, cfg.APIKey, cfg.Model, cfg.Temperature, cfg.MaxTokens, timeout)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
