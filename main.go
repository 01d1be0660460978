package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/icco/moviematch/handlers"
	"github.com/icco/moviematch/lib/config"
	"github.com/icco/moviematch/lib/db"
	"github.com/icco/moviematch/lib/health"
	"github.com/icco/moviematch/lib/llm"
	"github.com/icco/moviematch/lib/omdb"
	"github.com/icco/moviematch/lib/recommend"
	"github.com/icco/moviematch/lib/search"
	"github.com/icco/moviematch/lib/tmdb"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type App struct {
	cfg    config.Config
	store  *db.Store
	router *chi.Mux
	logger *slog.Logger
}

func NewApp(cfg config.Config, logger *slog.Logger) (*App, error) {
	gormDB, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{
		Logger: db.NewGormLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.RunMigrations(gormDB, logger); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	store := db.NewStore(gormDB, logger)

	providerClient := &http.Client{
		Timeout: time.Duration(cfg.ProviderTimeoutSecs) * time.Second,
	}
	catalog := tmdb.NewClient(cfg.TMDBAPIKey, providerClient, cfg.ProviderRatePerSec, logger)
	ratings := omdb.NewClient(cfg.OMDBAPIKey, providerClient, cfg.ProviderRatePerSec, logger)
	oracle := llm.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, logger)

	recommender := recommend.New(store, catalog, ratings, oracle, logger, recommend.Options{
		WatchRegion:       cfg.WatchRegion,
		CatalogPages:      cfg.CatalogPages,
		CandidateLimit:    cfg.EnrichCandidateLimit,
		EnrichConcurrency: cfg.EnrichConcurrency,
	})
	searcher := search.New(catalog, oracle, cfg.WatchRegion, logger)

	app := &App{
		cfg:    cfg,
		store:  store,
		router: chi.NewRouter(),
		logger: logger,
	}

	app.setupRoutes(recommender, searcher)
	return app, nil
}

func (a *App) setupRoutes(recommender *recommend.Recommender, searcher *search.Searcher) {
	a.router.Use(middleware.RequestID)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Timeout(time.Duration(a.cfg.RequestTimeoutSecs) * time.Second))

	a.router.Post("/api/recommend", handlers.HandleRecommend(recommender))
	a.router.Post("/api/search", handlers.HandleSearch(searcher))
	a.router.Get("/api/landing", handlers.HandleLanding(a.store))
	a.router.Get("/api/stats", handlers.HandleStats(a.store))
	a.router.Get("/health", health.Check(a.store.DB()))
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	app, err := NewApp(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize app", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("Starting server", slog.String("port", cfg.Port))
	if err := http.ListenAndServe(":"+cfg.Port, app.router); err != nil {
		logger.Error("Server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
