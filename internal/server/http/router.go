// Package httpserver exposes the guard service over HTTP with chi.
package httpserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/and161185/riskguard/internal/logging"
	"github.com/and161185/riskguard/internal/service"
)

// RequestChecker is the part of the guard used by the rate-limit middleware.
type RequestChecker interface {
	CheckRequest(ctx context.Context, ip, route string) error
}

// Options configure NewRouter.
type Options struct {
	// AdminKey is the HS256 key for admin tokens. Empty disables admin routes.
	AdminKey []byte
	// TrustProxy enables X-Forwarded-For and X-Real-IP.
	TrustProxy bool
	// Backend is reported by /healthz.
	Backend string
}

// NewRouter builds the HTTP surface. /healthz is not rate limited; every /api
// route is limited per (client ip, route pattern).
func NewRouter(guard service.Guard, log *zap.Logger, opts Options) http.Handler {
	log = logging.OrNop(log)
	h := &handlers{guard: guard, backend: opts.Backend, log: log}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		clientIP(opts.TrustProxy),
		recoverer(log),
		requestLogger(log),
	)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeError(req.Context(), w, newError("route_not_found", fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeError(req.Context(), w, newError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", h.healthz)

	r.Route("/api", func(api chi.Router) {
		api.Group(func(g chi.Router) {
			g.Use(rateLimit(guard))

			admin := g.With(adminOnly(opts.AdminKey))
			admin.Get("/admin/rate-limit", h.getRateLimit)
			admin.Post("/admin/rate-limit", h.setRateLimit)

			g.Post("/ratelimit/check", h.checkRoute)
			g.Post("/auth/failures", h.recordFailure)
			g.Delete("/auth/failures", h.resetFailures)
			g.Post("/comments/screen", h.screenComment)
			g.Post("/analyses", h.startAnalysis)
			g.Post("/heuristics/classify", h.classify)
		})
	})

	return r
}
