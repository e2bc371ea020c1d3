package server

import (
	"net"
	"net/http"
	"strconv"

	"github.com/Nash0810/gobalance/internal/auth"
	"github.com/Nash0810/gobalance/internal/ratelimit"
)

// withAuth resolves the bearer token into an Identity and stores it on
// the request context, rejecting the request otherwise. Matches spec's
// ordered acceptance modes via auth.Gate.Authenticate.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bearer := bearerToken(r)
		id, err := s.deps.Auth.Authenticate(bearer)
		if err != nil {
			renderError(w, err)
			return
		}
		next(w, r.WithContext(withIdentity(r.Context(), id)))
	}
}

// withAdmin additionally requires the identity to be an admin. Must be
// chained after withAuth.
func (s *Server) withAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identityFromContext(r.Context())
		if !ok {
			renderError(w, badRequest("missing identity"))
			return
		}
		if err := auth.RequireAdmin(id); err != nil {
			renderError(w, err)
			return
		}
		next(w, r)
	}
}

// withRateLimit enforces the per-endpoint-class bucket and attaches
// the X-RateLimit-* response headers on every outcome, per spec §4.7.
func (s *Server) withRateLimit(class ratelimit.EndpointClass, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := s.deps.Limits.LimitFor(class)
		decision := s.deps.Limiter.Allow(clientIP(r), class, limit)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetUnix, 10))

		if !decision.Allowed {
			s.deps.Collector.RateLimitRejectedTotal.WithLabelValues(string(class)).Inc()
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}
