package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/murphlabs/murph/backend/internal/backend"
	"github.com/murphlabs/murph/backend/internal/config"
	"github.com/murphlabs/murph/backend/internal/handler"
	authHandler "github.com/murphlabs/murph/backend/internal/handler/auth"
	listingHandler "github.com/murphlabs/murph/backend/internal/handler/listing"
	reviewHandler "github.com/murphlabs/murph/backend/internal/handler/review"
	sessionHandler "github.com/murphlabs/murph/backend/internal/handler/session"
	walletHandler "github.com/murphlabs/murph/backend/internal/handler/wallet"
	"github.com/murphlabs/murph/backend/internal/model/listing"
	"github.com/murphlabs/murph/backend/internal/service/ai"
	"github.com/murphlabs/murph/backend/internal/service/review"
	"github.com/murphlabs/murph/backend/internal/service/session"
	"github.com/murphlabs/murph/backend/internal/service/wallet"
	"github.com/murphlabs/murph/backend/internal/storage"
	"github.com/murphlabs/murph/backend/internal/telemetry"
)

// listingFeedLimit is how many listings the cache keeps per refresh.
const listingFeedLimit = 100

// App 持有进程内的全部依赖，由 New 显式构造，Close 负责释放。
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Backend  *backend.Client
	Listings *listing.CachedStore
	Storage  storage.Repository
	Sessions *session.Manager
	Reviews  *review.Service
	Wallet   *wallet.Service
	Router   http.Handler

	telemetry *telemetry.Providers
}

// New builds the application. On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	providers := telemetry.Disabled()
	if cfg.Telemetry.Enabled {
		p, err := telemetry.InitTelemetry(ctx, cfg.Telemetry.Dir, 0)
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
		providers = p
		logger.Info("telemetry enabled", "dir", cfg.Telemetry.Dir)
	}
	a.telemetry = providers

	client, err := backend.New(cfg.Backend.BaseURL, cfg.Backend.Timeout, logger, backend.WithTracer(providers.Tracer))
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("init backend client: %w", err)
	}
	a.Backend = client

	repo, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.Storage = repo

	a.Listings = listing.NewCachedStore(client, cfg.Session.ListingTTL, listingFeedLimit)

	metrics, err := session.NewMetrics(providers.Meter)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("init session metrics: %w", err)
	}

	a.Sessions = session.NewManager(session.ManagerConfig{
		Backend:         client,
		Listings:        a.Listings,
		Sink:            repo,
		Logger:          logger.With("component", "session"),
		Metrics:         metrics,
		TickInterval:    cfg.Session.TickInterval,
		Retention:       cfg.Session.Retention,
		CleanupInterval: cfg.Session.CleanupInterval,
	})

	var grader review.Grader
	if g, err := newGrader(ctx, cfg.AI, logger); err != nil {
		// 评分模型不可用时回退到启发式评分
		logger.Warn("review grader unavailable, using heuristic", "error", err)
	} else {
		grader = g
	}

	a.Reviews = review.NewService(review.Config{
		Backend: client,
		Store:   repo,
		Grader:  grader,
		Logger:  logger.With("component", "review"),
	})
	a.Wallet = wallet.NewService(client, repo, client, logger.With("component", "wallet"))

	a.Router = handler.NewRouter(handler.Routes{
		Listings: listingHandler.New(a.Listings, client),
		Auth:     authHandler.New(client, logger),
		Sessions: sessionHandler.New(a.Sessions, repo, client, logger.With("component", "http")),
		Reviews:  reviewHandler.New(a.Reviews),
		Wallet:   walletHandler.New(a.Wallet),
	}, cfg.Server.AllowedOrigins)

	return a, nil
}

func newGrader(ctx context.Context, cfg config.AIConfig, logger *slog.Logger) (*ai.Grader, error) {
	if !cfg.GraderEnabled || !cfg.Enabled() {
		logger.Info("Ark 凭证未配置，评价预览使用启发式评分")
		return ai.NewGrader(ctx, nil, logger)
	}

	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, err
	}
	grader, err := ai.NewGrader(ctx, chatModel, logger.With("component", "grader"))
	if err != nil {
		return nil, err
	}
	logger.Info("review grader enabled", "model", cfg.Model)
	return grader, nil
}

// Close stops controllers, closes storage and flushes telemetry.
func (a *App) Close(ctx context.Context) error {
	var errs []error

	if a.Sessions != nil {
		a.Sessions.Shutdown()
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
	}

	return errors.Join(errs...)
}
