package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"gofinances/internal/dashboard"
	"gofinances/internal/storage"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	})
}

// handleReady reports whether the server can render the dashboard: templates
// parsed, journal reachable when configured, and, with a poller, a first load
// completed.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})
	notReady := func() {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		notReady()
	} else {
		checks["templates"] = "ok"
	}

	if s.journal != nil {
		if err := s.journal.Ping(ctx); err != nil {
			checks["journal"] = fmt.Sprintf("failed: %v", err)
			notReady()
		} else {
			checks["journal"] = "ok"
		}
	} else {
		checks["journal"] = "not_configured"
	}

	stats := s.loader.Stats()
	checks["dashboard"] = map[string]interface{}{
		"status":   string(stats.Status),
		"loads":    stats.Loads,
		"failures": stats.Failures,
	}
	if s.refresh > 0 && stats.Status == dashboard.StatusUnloaded {
		notReady()
	}

	checks["rate_limiter"] = map[string]interface{}{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	writeJSON(w, httpStatus, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()
	loaderStats := s.loader.Stats()
	uptime := time.Since(s.appMetrics.uptime)

	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP http_server_errors_total Responses with a 5xx status\n")
	fmt.Fprintf(w, "# TYPE http_server_errors_total counter\n")
	fmt.Fprintf(w, "http_server_errors_total %d\n\n", traceMetrics.ServerErrors)

	fmt.Fprintf(w, "# HELP http_response_time_avg_microseconds Average response time\n")
	fmt.Fprintf(w, "# TYPE http_response_time_avg_microseconds gauge\n")
	fmt.Fprintf(w, "http_response_time_avg_microseconds %d\n\n", traceMetrics.AverageResponseTime)

	fmt.Fprintf(w, "# HELP dashboard_loads_total Upstream loads performed\n")
	fmt.Fprintf(w, "# TYPE dashboard_loads_total counter\n")
	fmt.Fprintf(w, "dashboard_loads_total %d\n\n", loaderStats.Loads)

	fmt.Fprintf(w, "# HELP dashboard_load_failures_total Upstream loads that failed\n")
	fmt.Fprintf(w, "# TYPE dashboard_load_failures_total counter\n")
	fmt.Fprintf(w, "dashboard_load_failures_total %d\n\n", loaderStats.Failures)

	fmt.Fprintf(w, "# HELP dashboard_shared_loads_total Loads served by an in-flight request\n")
	fmt.Fprintf(w, "# TYPE dashboard_shared_loads_total counter\n")
	fmt.Fprintf(w, "dashboard_shared_loads_total %d\n\n", loaderStats.Shared)

	fmt.Fprintf(w, "# HELP dashboard_status Current view status\n")
	fmt.Fprintf(w, "# TYPE dashboard_status gauge\n")
	for _, st := range []dashboard.Status{dashboard.StatusUnloaded, dashboard.StatusLoaded, dashboard.StatusFailed} {
		v := 0
		if loaderStats.Status == st {
			v = 1
		}
		fmt.Fprintf(w, "dashboard_status{status=%q} %d\n", st, v)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP dashboard_renders_total Dashboard pages and partials rendered\n")
	fmt.Fprintf(w, "# TYPE dashboard_renders_total counter\n")
	fmt.Fprintf(w, "dashboard_renders_total %d\n\n", s.appMetrics.pageRenders.Load())

	fmt.Fprintf(w, "# HELP dashboard_render_errors_total Template executions that failed\n")
	fmt.Fprintf(w, "# TYPE dashboard_render_errors_total counter\n")
	fmt.Fprintf(w, "dashboard_render_errors_total %d\n\n", s.appMetrics.renderErrors.Load())

	if s.cache != nil {
		cs := s.cache.Stats()
		fmt.Fprintf(w, "# HELP cache_hits_total Total cache hits\n")
		fmt.Fprintf(w, "# TYPE cache_hits_total counter\n")
		fmt.Fprintf(w, "cache_hits_total %d\n\n", cs.Hits)

		fmt.Fprintf(w, "# HELP cache_misses_total Total cache misses\n")
		fmt.Fprintf(w, "# TYPE cache_misses_total counter\n")
		fmt.Fprintf(w, "cache_misses_total %d\n\n", cs.Misses)

		fmt.Fprintf(w, "# HELP cache_entries Current cache entries\n")
		fmt.Fprintf(w, "# TYPE cache_entries gauge\n")
		fmt.Fprintf(w, "cache_entries %d\n\n", cs.Entries)
	}

	if s.journal != nil {
		fmt.Fprintf(w, "# HELP snapshots Journal snapshots by sync status\n")
		fmt.Fprintf(w, "# TYPE snapshots gauge\n")
		for _, st := range []string{storage.SyncPending, storage.SyncExporting, storage.SyncSynced, storage.SyncError} {
			n, err := s.journal.CountByStatus(r.Context(), st)
			if err != nil {
				s.logger.WarnContext(r.Context(), "Snapshot count failed", "sync_status", st, "error", err)
				continue
			}
			fmt.Fprintf(w, "snapshots{sync_status=%q} %d\n", st, n)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", rateLimitMetrics.TotalHits)

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", securityMetrics.SuspiciousRequests)

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", rateLimitMetrics.ClientCount)

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", uptime.Seconds())
}
