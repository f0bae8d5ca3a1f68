package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"finwatch/internal/core"
	applog "finwatch/internal/log"
	"finwatch/internal/middleware/ratelimit"
	"finwatch/internal/middleware/trace"
	"finwatch/internal/realtime"
	"finwatch/internal/services"
)

// Ingestor is what the import and sync endpoints need from the ingestor.
type Ingestor interface {
	Ingest(ctx context.Context, userID string, items []core.RawTransaction) (services.IngestResult, error)
	Sync(ctx context.Context, userID, connectionToken string) (services.IngestResult, error)
}

// SyncRequester queues a bank sync for a worker instead of running it inline.
type SyncRequester interface {
	PublishSyncRequest(ctx context.Context, userID, connectionToken string) error
}

// Notifications lists and acknowledges stored notifications.
type Notifications interface {
	List(ctx context.Context, userID string, unreadOnly bool) ([]core.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
}

// Deps are the collaborators the server routes to. SyncQueue, Registry and
// Ready may be nil.
type Deps struct {
	Expenses      *services.ExpenseService
	Budgets       *services.BudgetService
	Goals         *services.GoalService
	Reports       *services.ReportService
	Notifications Notifications
	Ingestor      Ingestor
	SyncQueue     SyncRequester
	Registry      *realtime.Registry
	// Ready reports whether the backing store answers.
	Ready func(ctx context.Context) error

	SyncRatePerMinute int
	OutboxSize        int
}

type Server struct {
	http.Server
	deps Deps

	logger          *applog.Logger
	traceMiddleware *trace.Middleware
	syncLimiter     *ratelimit.Limiter
	startedAt       time.Time
	now             func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		deps:            deps,
		logger:          applog.New(applog.Config{Component: applog.ComponentHTTP, Handler: slog.Default().Handler()}),
		traceMiddleware: trace.NewMiddleware(extractClientIP, userFromRequest),
		syncLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerWindow: deps.SyncRatePerMinute,
			Window:            time.Minute,
		}),
		startedAt: time.Now(),
		now:       time.Now,
	}

	withLogger := applog.Middleware(s.logger)
	api := func(h http.HandlerFunc) http.Handler {
		return s.traceMiddleware.Middleware(withLogger(withSecurityHeaders(h)))
	}
	limitSync := s.syncLimiter.Middleware(userFromRequest, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate_limited", "too many sync requests, try again later").Write(w)
	})

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.Handle("POST /expenses", api(s.handleCreateExpense))
	mux.Handle("GET /expenses", api(s.handleListExpenses))
	mux.Handle("PATCH /expenses/{id}", api(s.handleAmendExpense))
	mux.Handle("POST /transactions/import", api(s.handleImportTransactions))
	mux.Handle("POST /sync", s.traceMiddleware.Middleware(withLogger(limitSync(withSecurityHeaders(http.HandlerFunc(s.handleSync))))))

	mux.Handle("POST /budgets", api(s.handleCreateBudget))
	mux.Handle("GET /budgets", api(s.handleListBudgets))
	mux.Handle("GET /budgets/performance", api(s.handleBudgetPerformance))
	mux.Handle("PUT /budgets/{id}", api(s.handleUpdateBudget))
	mux.Handle("DELETE /budgets/{id}", api(s.handleDeleteBudget))
	mux.Handle("POST /goals", api(s.handleCreateGoal))
	mux.Handle("GET /goals", api(s.handleListGoals))
	mux.Handle("PUT /goals/{id}", api(s.handleUpdateGoal))
	mux.Handle("DELETE /goals/{id}", api(s.handleDeleteGoal))

	mux.Handle("GET /reports/categories", api(s.handleCategorySummary))
	mux.Handle("GET /reports/trends", api(s.handleMonthlyTrends))

	mux.Handle("GET /notifications", api(s.handleListNotifications))
	mux.Handle("POST /notifications/{id}/read", api(s.handleMarkRead))

	if deps.Registry != nil {
		mux.Handle("GET /ws", s.traceMiddleware.Middleware(realtime.NewHandler(deps.Registry, userFromRequest, deps.OutboxSize)))
	}

	return s
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.syncLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// currentPeriod is the period budget flags are reported against.
func (s *Server) currentPeriod() core.Period {
	return core.PeriodOf(s.now())
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]any{}

	if s.deps.Ready != nil {
		if err := s.deps.Ready(ctx); err != nil {
			checks["store"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["store"] = "ok"
		}
	}
	checks["rate_limiter"] = map[string]any{"active_clients": s.syncLimiter.ActiveClients()}
	if s.deps.Registry != nil {
		checks["realtime"] = map[string]any{"connections": s.deps.Registry.Total()}
	}

	NewJSONResponse().Status(httpStatus).Data(map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides request and connection metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.traceMiddleware.GetMetrics()
	limitMetrics := s.syncLimiter.GetMetrics()
	connections := 0
	if s.deps.Registry != nil {
		connections = s.deps.Registry.Total()
	}

	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP http_server_errors_total Responses with a 5xx status\n")
	fmt.Fprintf(w, "# TYPE http_server_errors_total counter\n")
	fmt.Fprintf(w, "http_server_errors_total %d\n\n", traceMetrics.ServerErrors)

	fmt.Fprintf(w, "# HELP sync_rate_limit_hits_total Sync requests rejected by the rate limiter\n")
	fmt.Fprintf(w, "# TYPE sync_rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "sync_rate_limit_hits_total %d\n\n", limitMetrics.TotalHits)

	fmt.Fprintf(w, "# HELP realtime_connections Live WebSocket connections on this node\n")
	fmt.Fprintf(w, "# TYPE realtime_connections gauge\n")
	fmt.Fprintf(w, "realtime_connections %d\n\n", connections)

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.startedAt).Seconds())
}

// requireUser writes a 401 and returns "" when the request has no identity.
func requireUser(w http.ResponseWriter, r *http.Request) string {
	userID := userFromRequest(r)
	if userID == "" {
		writeError(w, r, core.ErrMissingUser)
	}
	return userID
}

// writeJSON is shorthand for a JSON body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).Data(v).Write(w)
}
