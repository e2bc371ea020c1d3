// Package server implements the HTTP Surface: routing, the
// auth/rate-limit middleware chain, and the handlers that compose
// Cache, SingleFlight, LoadBalancer, and StreamingProxy for the chat
// endpoints.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/Nash0810/gobalance/internal/auth"
	"github.com/Nash0810/gobalance/internal/backend"
	"github.com/Nash0810/gobalance/internal/cache"
	"github.com/Nash0810/gobalance/internal/dispatch"
	"github.com/Nash0810/gobalance/internal/logging"
	"github.com/Nash0810/gobalance/internal/metrics"
	"github.com/Nash0810/gobalance/internal/proxy"
	"github.com/Nash0810/gobalance/internal/ratelimit"
	"github.com/Nash0810/gobalance/internal/store"
)

// Deps bundles every component the HTTP surface composes. Built once
// at startup and threaded through handlers, per spec's "inject via an
// application-state struct" design note.
type Deps struct {
	Registry      *backend.Registry
	Proxy         *proxy.Proxy
	Cache         cache.Cache
	Gate          *dispatch.Gate
	Limiter       ratelimit.Limiter
	Limits        ratelimit.Limits
	Auth          *auth.Gate
	Collector     *metrics.Collector
	Conversations store.ConversationStore
	Users         store.UserStore

	DefaultModel string
	Temperature  float64
	MaxTokens    int
	CacheTTL     time.Duration

	Logger *logging.Logger
}

// Server is the HTTP Surface component.
type Server struct {
	deps   Deps
	mux    *http.ServeMux
	corsOrigins map[string]bool
}

func NewServer(deps Deps, corsOrigins []string) *Server {
	s := &Server{deps: deps, mux: http.NewServeMux(), corsOrigins: make(map[string]bool, len(corsOrigins))}
	for _, o := range corsOrigins {
		s.corsOrigins[o] = true
	}
	s.routes()
	return s
}

// Handler returns the fully wired http.Handler, CORS-wrapped.
func (s *Server) Handler() http.Handler {
	return s.withCORS(s.mux)
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (s.corsOrigins["*"] || s.corsOrigins[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// identityKey carries the authenticated identity into a handler.
type identityKey struct{}

func withIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func identityFromContext(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(auth.Identity)
	return id, ok
}
