package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"gofinances/internal/cache"
	"gofinances/internal/core"
	"gofinances/internal/dashboard"
	"gofinances/internal/locale"
	applog "gofinances/internal/log"
	"gofinances/internal/middleware/ratelimit"
	"gofinances/internal/middleware/security"
	"gofinances/internal/middleware/trace"
	appweb "gofinances/web"
)

// Journal is the optional snapshot store checked by readiness and metrics.
type Journal interface {
	Ping(ctx context.Context) error
	CountByStatus(ctx context.Context, status string) (int64, error)
}

// Options configures NewServer. Loader and Formatter are required.
type Options struct {
	Addr      string
	Loader    *dashboard.Loader
	Formatter *locale.Formatter

	// RefreshInterval > 0 means a poller owns loading: page requests render
	// the held state and the partial re-polls itself at this interval.
	RefreshInterval time.Duration

	Journal   Journal
	Cache     *cache.LRUCache[core.Statement]
	Logger    *applog.Logger
	RateLimit ratelimit.Config
}

// Server is the dashboard HTTP server.
type Server struct {
	http.Server
	templates *template.Template
	loader    *dashboard.Loader
	formatter *locale.Formatter
	refresh   time.Duration
	journal   Journal
	cache     *cache.LRUCache[core.Statement]
	logger    *applog.Logger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	headers          *security.HeadersMiddleware
	appMetrics       *appMetrics

	shutdownOnce sync.Once
}

type appMetrics struct {
	uptime       time.Time
	pageRenders  atomic.Int64
	renderErrors atomic.Int64
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	mux := http.NewServeMux()
	detector := security.NewDetector()

	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		loader:           opts.Loader,
		formatter:        opts.Formatter,
		refresh:          opts.RefreshInterval,
		journal:          opts.Journal,
		cache:            opts.Cache,
		logger:           logger,
		rateLimiter:      ratelimit.NewLimiter(opts.RateLimit),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(logger, detector.ExtractClientIP),
		headers:          security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", applog.FieldError, err)
	}
	s.templates = t

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	// Dashboard routes trigger an upstream fetch and are rate limited.
	mux.Handle("/", s.wrap(s.handleIndex, true))
	mux.Handle("/ui/dashboard", s.wrap(s.handleDashboardPartial, true))
	mux.Handle("/api/dashboard", s.wrap(s.handleDashboardJSON, true))

	mux.Handle("/healthz", s.wrap(s.handleHealth, false))
	mux.Handle("/readyz", s.wrap(s.handleReady, false))
	mux.Handle("/metrics", s.wrap(s.handleMetrics, false))

	return s
}

// wrap applies tracing, security headers, probe detection and, for dashboard
// routes, rate limiting.
func (s *Server) wrap(next http.HandlerFunc, limited bool) http.Handler {
	var h http.Handler = next
	if limited {
		h = s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.handleRateLimited)(h)
	}
	h = s.detectSuspicious(h)
	h = s.headers.Middleware(h)
	return s.traceMiddleware.Middleware(h)
}

func (s *Server) detectSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.securityDetector.DetectSuspiciousRequest(r) {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request detected",
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path,
				applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
				applog.FieldUserAgent, r.UserAgent())
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		applog.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.").Write(w)
}

// Shutdown stops background goroutines and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
