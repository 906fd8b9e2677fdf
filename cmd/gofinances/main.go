package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"gofinances/internal/api"
	"gofinances/internal/backend"
	"gofinances/internal/cache"
	"gofinances/internal/cli"
	"gofinances/internal/dashboard"
	apphttp "gofinances/internal/http"
	applog "gofinances/internal/log"
)

func main() {
	bootstrap := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentApp)
	cli.LoadEnvFile(bootstrap)

	cfg := cli.LoadAndValidateConfig(bootstrap)
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentApp)

	formatter, err := cfg.Formatter()
	if err != nil {
		logger.Error("Failed to build formatter", applog.FieldError, err)
		os.Exit(1)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()

	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, applog.FieldSource, cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	}()

	loader := dashboard.NewLoader(res.Source, formatter,
		dashboard.WithObservers(res.Observers...),
		dashboard.WithFetchTimeout(cfg.APITimeout),
		dashboard.WithLogger(logger.WithComponent(applog.ComponentDashboard)))

	opts := apphttp.Options{
		Addr:            ":" + cfg.Port,
		Loader:          loader,
		Formatter:       formatter,
		RefreshInterval: cfg.RefreshInterval,
		Logger:          logger,
	}
	if res.Journal != nil {
		opts.Journal = res.Journal
	}
	if cached, ok := res.Source.(*api.CachedSource); ok {
		opts.Cache = cached.Cache()
		caches := cache.NewManager()
		caches.Register("statement", cached.Cache())
		caches.StartCleanup(cfg.TransactionCacheTTL)
		defer caches.Stop()
	}
	srv := apphttp.NewServer(opts)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting gofinances server",
			"port", cfg.Port,
			applog.FieldSource, cfg.DataBackend,
			"locale", formatter.Name(),
			"currency", formatter.CurrencyCode(),
			"refresh_interval", cfg.RefreshInterval.String(),
			"journal", cfg.JournalEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.RefreshInterval > 0 {
		poller := dashboard.NewPoller(loader, cfg.RefreshInterval)
		g.Go(func() error { return poller.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		logger.Info("Shutting down server", applog.FieldOperation, applog.OpShutdown)
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
