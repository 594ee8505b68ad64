// Package http exposes the service as a JSON API: group ledgers with computed
// balances, and personal ledgers with recurrence insights.
package http

import (
	"context"
	"net/http"
	"sync"

	"conti/internal/auth"
	"conti/internal/config"
	"conti/internal/middleware/ratelimit"
	"conti/internal/middleware/security"
	"conti/internal/middleware/trace"
	"conti/internal/services"
)

type Server struct {
	http.Server

	groups   *services.GroupService
	personal *services.InsightsService
	jwt      *auth.JWTManager

	limiter  *ratelimit.Limiter
	resolver *security.Resolver
	tracer   *trace.Middleware
	metrics  *metrics

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(cfg *config.Config, groups *services.GroupService, personal *services.InsightsService, jwtManager *auth.JWTManager) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    ":" + cfg.Port,
			Handler: mux,
		},
		groups:   groups,
		personal: personal,
		jwt:      jwtManager,
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimitPerMinute,
		}),
		resolver: security.NewResolver(),
		metrics:  newMetrics(),
	}
	s.tracer = trace.NewMiddleware(s.resolver.ExtractClientIP)

	s.routes(mux)
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	// Unauthenticated operational endpoints.
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", s.metrics.handler())

	// Group ledger.
	s.handle(mux, "POST /api/groups", s.handleCreateGroup)
	s.handle(mux, "GET /api/groups", s.handleListGroups)
	s.handle(mux, "GET /api/groups/{id}", s.handleGetGroup)
	s.handle(mux, "POST /api/groups/{id}/members", s.handleAddMember)
	s.handle(mux, "GET /api/groups/{id}/expenses", s.handleListGroupExpenses)
	s.handle(mux, "POST /api/groups/{id}/expenses", s.handleAddGroupExpense)
	s.handle(mux, "DELETE /api/groups/{id}/expenses/{expenseID}", s.handleDeleteGroupExpense)
	s.handle(mux, "GET /api/groups/{id}/settlements", s.handleListSettlements)
	s.handle(mux, "POST /api/groups/{id}/settlements", s.handleAddSettlement)
	s.handle(mux, "GET /api/groups/{id}/balances", s.handleBalances)

	// Personal ledger.
	s.handle(mux, "GET /api/personal/expenses", s.handleListPersonalExpenses)
	s.handle(mux, "POST /api/personal/expenses", s.handleAddPersonalExpense)
	s.handle(mux, "DELETE /api/personal/expenses/{id}", s.handleDeletePersonalExpense)
	s.handle(mux, "POST /api/personal/capture", s.handleCaptureExpense)
	s.handle(mux, "GET /api/personal/recurring", s.handleRecurring)
}

// handle chains the standard middleware around an authenticated API handler.
func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	var handler http.Handler = h
	handler = auth.RequireAuth(s.jwt, handler)
	handler = s.limiter.Middleware(s.resolver.ExtractClientIP, nil)(handler)
	handler = s.metrics.instrument(pattern, handler)
	handler = s.tracer.Middleware(handler)
	handler = security.Headers(security.DefaultHeadersConfig())(handler)
	mux.Handle(pattern, handler)
}

// Shutdown gracefully shuts down the server and its cleanup goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
