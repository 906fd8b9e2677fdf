// Command gofinances-render runs the dashboard pipeline once and writes the
// rendered page (or its JSON view) to stdout or a file.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"gofinances/internal/backend"
	"gofinances/internal/cli"
	"gofinances/internal/config"
	"gofinances/internal/dashboard"
	apphttp "gofinances/internal/http"
	applog "gofinances/internal/log"
)

func main() {
	var (
		out     = flag.String("o", "", "output file (default stdout)")
		asJSON  = flag.Bool("json", false, "write the JSON view instead of HTML")
		partial = flag.Bool("partial", false, "write only the cards and table fragment")
		timeout = flag.Duration("timeout", 30*time.Second, "overall timeout")
	)
	flag.Parse()

	bootstrap := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentApp)
	cli.LoadEnvFile(bootstrap)
	cfg := cli.LoadAndValidateConfig(bootstrap)
	// Logs go to stderr so stdout carries only the rendered output.
	logCfg := applog.DefaultConfig()
	logCfg.Output = os.Stderr
	if lvl, err := applog.ParseLevel(cfg.LogLevel); err == nil {
		logCfg.Level = lvl
	}
	logger := applog.New(logCfg)

	if err := run(cfg, *out, *asJSON, *partial, *timeout, logger); err != nil {
		logger.Error("Render failed", applog.FieldError, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, out string, asJSON, partial bool, timeout time.Duration, logger *applog.Logger) error {
	formatter, err := cfg.Formatter()
	if err != nil {
		return err
	}
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return fmt.Errorf("create backend: %w", err)
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
	srv := apphttp.NewServer(apphttp.Options{Loader: loader, Formatter: formatter, Logger: logger})
	defer srv.Shutdown(ctx)

	path := "/"
	switch {
	case asJSON:
		path = "/api/dashboard"
	case partial:
		path = "/ui/dashboard"
	}

	req := httptest.NewRequest(http.MethodGet, path, nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	var w io.Writer = os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	if _, err := io.Copy(w, bytes.NewReader(rec.Body.Bytes())); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if rec.Code != http.StatusOK {
		return fmt.Errorf("dashboard rendered with status %d", rec.Code)
	}
	return nil
}
