package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/cors"

	"accountbook/internal/auth"
	applog "accountbook/internal/log"
	"accountbook/internal/middleware/ratelimit"
	"accountbook/internal/middleware/security"
	"accountbook/internal/middleware/trace"
	"accountbook/internal/services"
)

// Pinger reports whether the backing store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the server to its collaborators. Every field except
// the limits, proxy and origin lists, Locale and Logger is required.
type Options struct {
	Addr              string
	Auth              auth.Provider
	Ledger            *services.LedgerService
	Budgets           *services.BudgetService
	Reports           *services.ReportService
	Dashboards        *services.ViewRefresher[services.Dashboard]
	Store             Pinger
	Locale            string
	RequestsPerMinute int
	TrustedProxies    []string
	// AllowedOrigins enables CORS for a frontend served from another origin.
	AllowedOrigins    []string
	Logger            *applog.Logger
}

// Server is the JSON API of the account book.
type Server struct {
	http.Server

	auth       auth.Provider
	ledger     *services.LedgerService
	budgets    *services.BudgetService
	reports    *services.ReportService
	dashboards *services.ViewRefresher[services.Dashboard]
	store      Pinger
	locale     string
	logger     *applog.Logger

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	started  time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.Discard()
	}
	locale := opts.Locale
	if locale == "" {
		locale = auth.LocaleKorean
	}

	s := &Server{
		auth:       opts.Auth,
		ledger:     opts.Ledger,
		budgets:    opts.Budgets,
		reports:    opts.Reports,
		dashboards: opts.Dashboards,
		store:      opts.Store,
		locale:     locale,
		logger:     logger.WithComponent(applog.ComponentHTTP),
		limiter:    ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RequestsPerMinute}),
		detector:   security.NewDetector(),
		started:    time.Now(),
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			s.logger.Warn("Ignoring trusted proxy", applog.FieldError, err)
		}
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/auth/signup", s.handleSignUp)
	api.HandleFunc("POST /api/auth/signin", s.handleSignIn)
	api.HandleFunc("GET /api/auth/google/start", s.handleGoogleStart)
	api.HandleFunc("GET /api/auth/google/callback", s.handleGoogleCallback)
	api.HandleFunc("POST /api/auth/signout", s.handleSignOut)
	api.HandleFunc("POST /api/auth/password-reset", s.handlePasswordReset)
	api.HandleFunc("POST /api/auth/password-reset/confirm", s.handlePasswordResetConfirm)

	api.HandleFunc("GET /api/entries", s.requireAuth(s.handleListEntries))
	api.HandleFunc("POST /api/entries", s.requireAuth(s.handleCreateEntry))
	api.HandleFunc("GET /api/entries/{id}", s.requireAuth(s.handleGetEntry))
	api.HandleFunc("PUT /api/entries/{id}", s.requireAuth(s.handleUpdateEntry))
	api.HandleFunc("DELETE /api/entries/{id}", s.requireAuth(s.handleDeleteEntry))
	api.HandleFunc("GET /api/categories", s.requireAuth(s.handleCategories))

	api.HandleFunc("GET /api/budgets", s.requireAuth(s.handleListBudgets))
	api.HandleFunc("PUT /api/budgets", s.requireAuth(s.handleUpsertBudget))
	api.HandleFunc("DELETE /api/budgets/{category}", s.requireAuth(s.handleDeleteBudget))
	api.HandleFunc("GET /api/alerts", s.requireAuth(s.handleAlerts))

	api.HandleFunc("GET /api/dashboard", s.requireAuth(s.handleDashboard))
	api.HandleFunc("GET /api/reports/month", s.requireAuth(s.handleMonthReport))
	api.HandleFunc("GET /api/reports/compare", s.requireAuth(s.handleCompare))
	api.HandleFunc("GET /api/export/csv", s.requireAuth(s.handleExport(services.FormatCSV)))
	api.HandleFunc("GET /api/export/xlsx", s.requireAuth(s.handleExport(services.FormatXLSX)))

	limited := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldClientIP, s.detector.ExtractClientIP(r),
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path)
		NewResponse().Status(http.StatusTooManyRequests).
			JSON(ErrorBody{Error: auth.Message(auth.CodeTooManyRequests, auth.OpSignIn, s.locale), Code: auth.CodeTooManyRequests}).
			Write(w)
	})(api)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", s.handleHealth)
	root.HandleFunc("GET /readyz", s.handleReady)
	root.Handle("/api/", limited)

	var handler http.Handler = root
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	if len(opts.AllowedOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", trace.HeaderRequestID},
			ExposedHeaders: []string{"Content-Disposition", "Location", "Retry-After", trace.HeaderRequestID},
			MaxAge:         600,
		}).Handler(handler)
	}
	handler = applog.ComponentMiddleware(applog.ComponentHTTP)(handler)
	handler = s.tracer.Middleware(handler)
	handler = s.detector.Middleware(logger)(handler)
	handler = applog.Middleware(s.logger)(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown stops accepting requests, waits for in-flight ones and stops
// the limiter sweeper.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
