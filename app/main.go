package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/debunkd/app/api"
	"github.com/lysyi3m/debunkd/app/cfg"
	"github.com/lysyi3m/debunkd/app/content"
	"github.com/lysyi3m/debunkd/app/database"
	"github.com/lysyi3m/debunkd/app/gateway"
	"github.com/lysyi3m/debunkd/app/ratelimit"
	"github.com/lysyi3m/debunkd/app/search"
	"github.com/lysyi3m/debunkd/app/topics"
	"github.com/lysyi3m/debunkd/app/worker"
)

func main() {
	appCfg, err := cfg.Load(os.Args[1:])
	if errors.Is(err, cfg.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	setupLogging(appCfg.Debug)

	if err := run(appCfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func run(appCfg *cfg.Cfg) error {
	slog.Info("Starting Debunkd server", "version", appCfg.Version, "port", appCfg.Port)

	topicSet, err := topics.Load(appCfg.TopicsFile)
	if err != nil {
		return fmt.Errorf("failed to load topics: %w", err)
	}
	slog.Info("Sections loaded", "count", topicSet.Len(), "names", topicSet.Names())

	if appCfg.GeminiAPIKey == "" {
		slog.Warn("GEMINI_API_KEY not set, article generation will fail")
	}

	store := content.NewStore()
	sections := content.NewSections(store, topicSet.Names(), appCfg.MaxArticlesPerSection)
	limiter := ratelimit.NewLimiter(appCfg.RateLimitMaxCalls, appCfg.RateLimitInterval)

	httpClient := &http.Client{Timeout: appCfg.RequestTimeout}
	gw := gateway.NewService(gateway.Config{
		GeminiEndpoint:  appCfg.GeminiEndpoint,
		GeminiModel:     appCfg.GeminiModel,
		GeminiAPIKey:    appCfg.GeminiAPIKey,
		NewsAPIEndpoint: appCfg.NewsAPIEndpoint,
		NewsAPIKey:      appCfg.NewsAPIKey,
		UserAgent:       appCfg.UserAgent,
		SourceTextLimit: appCfg.SourceTextLimit,
	}, httpClient)

	var archive worker.Archive
	var archiveReader api.ArchiveInterface
	if appCfg.ArchivePath != "" {
		db, err := database.Open(appCfg.ArchivePath)
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer db.Close()

		version, dirty, err := database.RunMigrations(db)
		if err != nil {
			return fmt.Errorf("failed to migrate archive: %w", err)
		}
		slog.Info("Archive ready", "path", appCfg.ArchivePath, "schema_version", version, "dirty", dirty)

		repo := database.NewArticleRepository(db)
		archive = repo
		archiveReader = repo
	} else {
		slog.Info("Article archive disabled (ARCHIVE_PATH not set)")
	}

	generationWorker := worker.NewWorker(worker.Config{
		MaxHeadlinesPerBatch: appCfg.MaxHeadlinesPerBatch,
		InitialExpandCount:   appCfg.InitialExpandCount,
		InitialArticleTarget: appCfg.InitialArticleTarget,
		CreationBatches:      appCfg.CreationBatches,
		RefreshBatch:         appCfg.RefreshBatch,
		StarvationTopUp:      appCfg.StarvationTopUp,
		SearchSources:        appCfg.SearchSources,
		StepCooldown:         appCfg.StepCooldown,
		IdleSleep:            appCfg.IdleSleep,
		ErrorBackoff:         appCfg.ErrorBackoff,
		FailureSleep:         appCfg.FailureSleep,
		RefreshInterval:      appCfg.RefreshInterval,
	}, topicSet, sections, gw, limiter, archive)

	searches := search.NewQueue(appCfg.SearchQueueSize, appCfg.SearchRetention)
	generationWorker.EnableSearch(searches, gw)

	baseURL := appCfg.BaseUrl
	if baseURL == "" {
		baseURL = "http://localhost:" + appCfg.Port
	}

	handler := api.NewHandler(sections, store, topicSet, generationWorker.State(), limiter, archiveReader, searches, baseURL, appCfg.Version)
	router := api.NewServer(handler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	generationWorker.Start()

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr, "base_url", baseURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case runErr = <-serverErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	generationWorker.Stop()
	slog.Info("Debunkd server shutdown complete")

	return runErr
}
