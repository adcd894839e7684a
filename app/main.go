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

	"github.com/gin-gonic/gin"
	_ "golang.org/x/crypto/x509roots/fallback"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/lysyi3m/rss-hoard/app/api"
	"github.com/lysyi3m/rss-hoard/app/cfg"
	"github.com/lysyi3m/rss-hoard/app/database"
	"github.com/lysyi3m/rss-hoard/app/feed"
	"github.com/lysyi3m/rss-hoard/app/logger"
	"github.com/lysyi3m/rss-hoard/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		return
	}

	slog.SetDefault(logger.New(os.Stdout, appCfg.LogFormat, appCfg.Debug))
	if !appCfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	slog.Info("Starting RSS Hoard", "version", appCfg.Version)

	if err := run(appCfg); err != nil {
		slog.Error("RSS Hoard stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("RSS Hoard shutdown complete")
}

func run(appCfg *cfg.Cfg) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(appCfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		return err
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	feedRepo := database.NewFeedRepository(db)
	articleRepo := database.NewArticleRepository(db)
	contentRepo := database.NewContentRepository(db)

	configCache := feed.NewConfigCache(appCfg.FeedsDir, int(appCfg.GetFetchTimeout()/time.Second))
	if err := configCache.Run(); err != nil {
		return err
	}
	slog.Info("Feed configurations loaded", "dir", appCfg.FeedsDir, "count", configCache.GetConfigCount())

	limiter := rate.NewLimiter(rate.Inf, 0)
	if appCfg.FetchRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(appCfg.FetchRate), 1)
	}
	httpClient := &http.Client{}

	adapter := feed.NewAdapter(feed.NewParser(), feed.AdapterOptions{
		HTTPClient: httpClient,
		UserAgent:  appCfg.UserAgent,
		ScriptsDir: appCfg.ScriptsDir,
		Limiter:    limiter,
		Retries:    appCfg.FetchRetries,
		RetryDelay: 2 * time.Second,
	})
	pageFetcher := &feed.PageFetcher{Client: httpClient, UserAgent: appCfg.UserAgent, Limiter: limiter}

	tracker := tasks.NewTracker()
	orchestrator := tasks.NewOrchestrator(adapter, feedRepo, articleRepo, contentRepo, tracker,
		appCfg.WorkerCount, appCfg.GetFetchTimeout())

	scheduler := tasks.NewScheduler(configCache, orchestrator, feedRepo, articleRepo, contentRepo,
		pageFetcher, feed.NewContentExtractor(), appCfg.GetSchedulerInterval(), appCfg.WorkerCount)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(configCache, feedRepo, articleRepo, contentRepo, orchestrator, tracker, scheduler)
	// fresh-content requests fetch the feed inline; definitions added later keep this bound
	writeTimeout := 2*configCache.MaxTimeout() + 30*time.Second
	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler, appCfg.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		watcher := feed.NewWatcher(appCfg.FeedsDir, scheduler.ReloadFeedConfig, scheduler.RemoveFeedConfig)
		return watcher.Run(gctx)
	})

	g.Go(func() error {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down server gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
