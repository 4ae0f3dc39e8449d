// Package app wires the application together: configuration, storage,
// services and handlers are constructed explicitly here, in dependency
// order, with no package-level singletons.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/macropulse/internal/common"
	"github.com/ternarybob/macropulse/internal/handlers"
	"github.com/ternarybob/macropulse/internal/interfaces"
	"github.com/ternarybob/macropulse/internal/marketdata"
	"github.com/ternarybob/macropulse/internal/models"
	"github.com/ternarybob/macropulse/internal/services/analysiscache"
	"github.com/ternarybob/macropulse/internal/services/commentary"
	"github.com/ternarybob/macropulse/internal/services/events"
	"github.com/ternarybob/macropulse/internal/services/llm"
	"github.com/ternarybob/macropulse/internal/services/scheduler"
	"github.com/ternarybob/macropulse/internal/services/similarity"
	"github.com/ternarybob/macropulse/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage
	BadgerDB      *badger.BadgerDB
	KVStorage     interfaces.KeyValueStorage
	AnalysisStore interfaces.AnalysisStore

	// Services
	EventService     interfaces.EventService
	LLMService       *llm.Service
	CacheService     *analysiscache.Service
	AnalysisService  interfaces.AnalysisService
	MarketClient     *marketdata.Client
	IndicatorSource  interfaces.IndicatorSource
	SchedulerService interfaces.SchedulerService

	// HTTP handlers
	APIHandler        *handlers.APIHandler
	AnalysisHandler   *handlers.AnalysisHandler
	IndicatorsHandler *handlers.IndicatorsHandler
	CacheHandler      *handlers.CacheHandler
	WSHandler         *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Storage
	db, err := badger.NewBadgerDB(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.BadgerDB = db
	app.KVStorage = badger.NewKVStorage(db, logger)
	app.AnalysisStore = badger.NewAnalysisStore(db, logger)

	// Events
	app.EventService = events.NewService(logger)

	// Core analysis pipeline
	app.LLMService = llm.NewService(&cfg.Claude, &cfg.Gemini, app.KVStorage, logger)
	app.CacheService = analysiscache.NewService(
		app.AnalysisStore,
		cfg.IndicatorSteps(),
		cfg.Cache.TTL(),
		cfg.Cache.FallbackLogSize,
		logger,
	)
	scorer := similarity.NewService(similarity.Options{
		MinThresholds:    cfg.MinThresholds(),
		SimilarityWeight: cfg.Cache.SimilarityWeight,
		RecencyWeight:    cfg.Cache.RecencyWeight,
		RecencyWindow:    cfg.Cache.TTL(),
	}, logger)
	app.AnalysisService = commentary.NewService(app.CacheService, scorer, app.LLMService, logger)

	// Market data
	apiKey, err := resolveMarketDataKey(app, cfg)
	if err != nil {
		return nil, err
	}
	app.MarketClient = marketdata.NewClient(apiKey,
		marketdata.WithBaseURL(cfg.MarketData.BaseURL),
		marketdata.WithRateLimit(cfg.MarketData.RateLimit),
		marketdata.WithLogger(logger),
	)
	app.IndicatorSource = marketdata.NewSource(app.MarketClient, cfg.Indicators, logger)

	// Scheduler
	variants, err := enabledVariants(cfg)
	if err != nil {
		return nil, err
	}
	app.SchedulerService = scheduler.NewService(
		app.IndicatorSource,
		app.AnalysisService,
		app.EventService,
		variants,
		cfg.Scheduler.Schedule,
		logger,
	)

	// Handlers
	defaultVariant, err := models.ParseVariant(cfg.Analysis.DefaultVariant)
	if err != nil {
		return nil, fmt.Errorf("invalid default variant: %w", err)
	}
	app.APIHandler = handlers.NewAPIHandler()
	app.WSHandler = handlers.NewWebSocketHandler(app.EventService, logger)
	app.AnalysisHandler = handlers.NewAnalysisHandler(app.AnalysisService, app.SchedulerService, app.IndicatorSource, defaultVariant, logger)
	app.IndicatorsHandler = handlers.NewIndicatorsHandler(app.SchedulerService, logger)
	app.CacheHandler = handlers.NewCacheHandler(app.CacheService, logger)

	logger.Info().
		Int("indicators", len(cfg.Indicators)).
		Int("variants", len(variants)).
		Msg("Application initialized")

	return app, nil
}

// Start begins background processing.
func (a *App) Start() error {
	if a.Config.Scheduler.Enabled {
		if err := a.SchedulerService.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	} else {
		a.Logger.Info().Msg("Scheduler disabled by configuration")
	}
	return nil
}

// Close shuts down services and storage in reverse dependency order.
func (a *App) Close() error {
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Scheduler stop failed")
		}
	}
	if a.LLMService != nil {
		a.LLMService.Close()
	}
	if a.EventService != nil {
		a.EventService.Close()
	}
	if a.BadgerDB != nil {
		if err := a.BadgerDB.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}
	return nil
}

// resolveMarketDataKey resolves the market data API key at startup so a
// missing key fails fast instead of on the first poll.
func resolveMarketDataKey(app *App, cfg *common.Config) (string, error) {
	ctx, cancel := contextWithStartupTimeout()
	defer cancel()

	apiKey, err := common.ResolveAPIKey(ctx, app.KVStorage, "market_data_api_key", cfg.MarketData.APIKey)
	if err != nil {
		return "", fmt.Errorf("market data API key unavailable: %w", err)
	}
	return apiKey, nil
}

// enabledVariants parses the configured variant names into the closed enum.
func enabledVariants(cfg *common.Config) ([]models.Variant, error) {
	names := cfg.EnabledVariants()
	variants := make([]models.Variant, 0, len(names))
	for _, name := range names {
		v, err := models.ParseVariant(name)
		if err != nil {
			return nil, fmt.Errorf("invalid enabled variant: %w", err)
		}
		variants = append(variants, v)
	}
	return variants, nil
}

func contextWithStartupTimeout() (ctx context.Context, cancel context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}
