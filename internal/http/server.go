package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"piano/internal/core"
	"piano/internal/log"
	"piano/internal/middleware/ratelimit"
	"piano/internal/middleware/security"
	"piano/internal/middleware/trace"
	"piano/internal/services"
)

// RuleRepository is the persistence surface the rule handlers need.
type RuleRepository interface {
	CreateRule(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error)
	GetRule(ctx context.Context, id string) (core.RecurringRule, error)
	ListRules(ctx context.Context, scenarioID string) ([]core.RecurringRule, error)
	UpdateRule(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error)
	DeleteRule(ctx context.Context, id string) error
}

// GoalRepository is the persistence surface the goal handlers need.
type GoalRepository interface {
	CreateGoal(ctx context.Context, goal core.SavingsGoal) (core.SavingsGoal, error)
	GetGoal(ctx context.Context, id string) (core.SavingsGoal, error)
	ListGoals(ctx context.Context) ([]core.SavingsGoal, error)
	UpdateGoal(ctx context.Context, goal core.SavingsGoal) (core.SavingsGoal, error)
	DeleteGoal(ctx context.Context, id string) error
}

type Server struct {
	http.Server

	rules   RuleRepository
	goals   GoalRepository
	planner *services.Planner
	logger  *log.Logger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	started      time.Time
	shutdownOnce sync.Once
}

// NewServer wires the API routes and the middleware chain, returning a
// ready-to-run server.
func NewServer(addr string, rules RuleRepository, goals GoalRepository, planner *services.Planner, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Config{Component: log.ComponentHTTP})
	}

	s := &Server{
		rules:            rules,
		goals:            goals,
		planner:          planner,
		logger:           logger.WithComponent(log.ComponentHTTP),
		securityDetector: security.NewDetector(),
		started:          time.Now(),
	}
	s.rateLimiter = ratelimit.NewLimiter(ratelimit.DefaultConfig(), s.logger)
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP, s.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /api/rules", s.handleCreateRule)
	mux.HandleFunc("GET /api/rules", s.handleListRules)
	mux.HandleFunc("GET /api/rules/{id}", s.handleGetRule)
	mux.HandleFunc("PUT /api/rules/{id}", s.handleUpdateRule)
	mux.HandleFunc("DELETE /api/rules/{id}", s.handleDeleteRule)

	mux.HandleFunc("POST /api/goals", s.handleCreateGoal)
	mux.HandleFunc("GET /api/goals", s.handleListGoals)
	mux.HandleFunc("GET /api/goals/{id}", s.handleGetGoal)
	mux.HandleFunc("PUT /api/goals/{id}", s.handleUpdateGoal)
	mux.HandleFunc("DELETE /api/goals/{id}", s.handleDeleteGoal)
	mux.HandleFunc("GET /api/goals/{id}/projection", s.handleGoalProjection)

	mux.HandleFunc("GET /api/forecast", s.handleForecast)
	mux.HandleFunc("GET /api/outlook", s.handleOutlook)
	mux.HandleFunc("GET /api/scenarios/{id}/delta", s.handleScenarioDelta)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// middleware assembles the request chain: context logger, security headers,
// suspicious-request screening, rate limiting on expensive work, then tracing.
func (s *Server) middleware(next http.Handler) http.Handler {
	headers := security.NewHeadersMiddleware(security.APIHeadersConfig())

	screened := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := s.securityDetector.ExtractClientIP(r)

		if s.securityDetector.DetectSuspiciousRequest(r) {
			s.logger.WarnContext(r.Context(), "suspicious request rejected",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
			writeError(w, http.StatusBadRequest, "bad request")
			return
		}

		// Writes and projection reads draw from per-client budgets;
		// cheap reads are never throttled.
		if class, limited := requestClass(r); limited && !s.rateLimiter.Allow(clientIP, class) {
			s.logger.WarnContext(r.Context(), "rate limit exceeded",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				"class", class.String())
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})

	chain := s.traceMiddleware.Middleware(headers.Middleware(screened))
	return log.Middleware(s.logger)(chain)
}

// requestClass maps a request to its rate limit class. The second return is
// false for requests that are never throttled.
func requestClass(r *http.Request) (ratelimit.Class, bool) {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodDelete:
		return ratelimit.Mutation, true
	case http.MethodGet:
		p := r.URL.Path
		if p == "/api/forecast" || p == "/api/outlook" ||
			strings.HasSuffix(p, "/projection") || strings.HasSuffix(p, "/delta") {
			return ratelimit.Projection, true
		}
	}
	return 0, false
}

// Shutdown stops the background cleanup goroutines, then drains the HTTP
// server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	})
}

// handleReady verifies the storage dependency with a cheap list call.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if _, err := s.rules.ListRules(ctx, ""); err != nil {
		checks["storage"] = "failed: " + err.Error()
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["storage"] = "ok"
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}
	if s.planner != nil {
		checks["expansion_cache"] = map[string]any{
			"entries": s.planner.ExpansionCache().Size(),
			"status":  "ok",
		}
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

type metricsPayload struct {
	TotalRequests        int64 `json:"http_requests_total"`
	AverageResponseTime  int64 `json:"http_response_time_us"`
	SuspiciousRequests   int64 `json:"suspicious_requests_total"`
	RateLimitClients     int64 `json:"rate_limit_active_clients"`
	RateLimitDenials     int64 `json:"rate_limit_denials_total"`
	ExpansionCacheSize   int   `json:"expansion_cache_entries"`
	ExpansionCacheHits   int64 `json:"expansion_cache_hits_total"`
	ExpansionCacheMisses int64 `json:"expansion_cache_misses_total"`
	UptimeSeconds        int64 `json:"uptime_seconds"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	traceMetrics := s.traceMiddleware.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.Metrics()

	m := metricsPayload{
		TotalRequests:       traceMetrics.TotalRequests,
		AverageResponseTime: traceMetrics.AverageResponseTime,
		SuspiciousRequests:  securityMetrics.SuspiciousRequests,
		RateLimitClients:    rateLimitMetrics.ClientCount,
		RateLimitDenials:    rateLimitMetrics.Denials,
		UptimeSeconds:       int64(time.Since(s.started).Seconds()),
	}
	if s.planner != nil {
		cacheStats := s.planner.ExpansionCache().Stats()
		m.ExpansionCacheSize = s.planner.ExpansionCache().Size()
		m.ExpansionCacheHits = cacheStats.Hits
		m.ExpansionCacheMisses = cacheStats.Misses
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(m)
}
