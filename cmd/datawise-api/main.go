package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/datawise/datawise/internal/api"
	"github.com/datawise/datawise/internal/auth"
	"github.com/datawise/datawise/internal/catalog"
	"github.com/datawise/datawise/internal/chat"
	"github.com/datawise/datawise/internal/completion"
	"github.com/datawise/datawise/internal/config"
	"github.com/datawise/datawise/internal/conversation"
	"github.com/datawise/datawise/internal/maintenance"
	"github.com/datawise/datawise/internal/metadata"
	metadatapostgres "github.com/datawise/datawise/internal/metadata/postgres"
	"github.com/datawise/datawise/internal/nl2sql"
	"github.com/datawise/datawise/internal/observability"
	"github.com/datawise/datawise/internal/pipeline"
	duckdbengine "github.com/datawise/datawise/internal/query/duckdb"
	"github.com/datawise/datawise/internal/semantic"
	"github.com/datawise/datawise/internal/storage"
	s3store "github.com/datawise/datawise/internal/storage/s3"
)

func main() {
	envFileErr := godotenv.Load()

	cfg, err := config.LoadFromEnv("datawise-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	if envFileErr != nil {
		logger.Debug("no .env file loaded, using process environment")
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	checks := make([]api.ReadinessCheck, 0, 3)

	var (
		records  metadata.DatasetRepository
		messages conversation.MessageStore
		recorder pipeline.QueryRecorder
	)
	if cfg.Metadata.Enabled {
		db, err := metadatapostgres.Open(startupCtx, cfg.Metadata)
		if err != nil {
			logger.Error("failed to open metadata db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		repo := metadatapostgres.NewRepository(db)
		records, messages, recorder = repo, repo, repo
		checks = append(checks, repo.Check)
	}

	var objectStore storage.ObjectStore
	if cfg.ObjectStore.Endpoint != "" {
		store, err := s3store.New(startupCtx, cfg.ObjectStore)
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		objectStore = store
		checks = append(checks, store.Check)
	}

	var index semantic.Store
	if cfg.Semantic.Enabled {
		var embedder semantic.Embedder
		if cfg.AI.Provider == config.ProviderGemini && cfg.AI.APIKey != "" {
			genaiEmbedder, err := semantic.NewGenAIEmbedder(startupCtx, cfg.AI.APIKey, cfg.Semantic.EmbeddingModel)
			if err != nil {
				logger.Warn("embeddings disabled, semantic search falls back to keywords", slog.Any("error", err))
			} else {
				embedder = genaiEmbedder
			}
		}
		store, err := semantic.OpenSQLite(startupCtx, cfg.Semantic.Path, embedder, logger)
		if err != nil {
			logger.Error("failed to open semantic store", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = store.Close() }()
		index = store
	}

	service, err := completion.New(startupCtx, cfg.AI, logger)
	if err != nil {
		logger.Error("failed to initialize completion service", slog.Any("error", err))
		os.Exit(1)
	}
	if !service.Available() {
		logger.Warn("completion service unavailable, answers fall back to built-in defaults", slog.String("provider", cfg.AI.Provider))
	}
	checks = append(checks, api.CheckCompletion(service))

	engine := duckdbengine.NewEngine(
		duckdbengine.WithTimeout(cfg.Query.Timeout),
		duckdbengine.WithLogger(logger),
	)
	queries := pipeline.New(nl2sql.NewSynthesizer(service, logger), engine, pipeline.Config{
		Alias:    cfg.Query.TableAlias,
		RowCap:   cfg.Query.RowCap,
		Recorder: recorder,
		Logger:   logger,
	})
	datasets := catalog.NewService(catalog.Options{
		Loader:  engine,
		Store:   objectStore,
		Records: records,
		Logger:  logger,
	})
	sessions := api.NewSessionRegistry(conversation.Options{
		MaxMessages: cfg.Chat.WindowSize,
		Store:       messages,
		Index:       index,
		Logger:      logger,
	}, cfg.Chat.MaxSessions)

	deps := api.Dependencies{
		Logger:            logger,
		Readiness:         api.CombineReadinessChecks(checks...),
		DependencyTimeout: 2 * time.Second,
		TurnTimeout:       cfg.TurnTimeout(),
		Datasets:          datasets,
		Sessions:          sessions,
		Chat: chat.NewOrchestrator(queries, service, chat.Config{
			QueryContextEntries: cfg.Chat.QueryContextEntries,
			ChatContextEntries:  cfg.Chat.ChatContextEntries,
			Logger:              logger,
		}),
		Queries:   queries,
		Assistant: nl2sql.NewAssistant(service, logger),
	}
	var maintenanceSvc *maintenance.Service
	if records != nil && objectStore != nil {
		maintenanceSvc = &maintenance.Service{
			Records:     records,
			ObjectStore: objectStore,
			Config: maintenance.Config{
				IntegrityInterval: cfg.Maintenance.IntegrityInterval,
				DatasetLimit:      cfg.Maintenance.DatasetLimit,
			},
			Logger: logger,
		}
		deps.Maintenance = maintenanceSvc
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		if validator.Len() == 0 {
			logger.Error("auth required but DATAWISE_AUTH_STATIC_KEYS is empty")
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if maintenanceSvc != nil && cfg.Maintenance.IntegrityInterval > 0 {
		go func() {
			_ = maintenanceSvc.Run(ctx)
		}()
	}

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
