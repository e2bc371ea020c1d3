package server

import (
	"encoding/json"
	"net/http"

	"github.com/Nash0810/gobalance/internal/auth"
	"github.com/Nash0810/gobalance/internal/balancer"
)

// apiError is the taxonomy the HTTP layer renders against, matching
// spec's error handling design: every non-2xx body is {"detail": ...}.
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string { return e.message }

func badRequest(msg string) *apiError    { return &apiError{http.StatusBadRequest, msg} }
func notFound(msg string) *apiError      { return &apiError{http.StatusNotFound, msg} }
func internalError(msg string) *apiError { return &apiError{http.StatusInternalServerError, msg} }
func notImplemented(msg string) *apiError { return &apiError{http.StatusNotImplemented, msg} }

// classify maps a component error into the status/body the HTTP layer
// must render, per spec §7's propagation policy.
func classify(err error) *apiError {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*apiError); ok {
		return ae
	}
	if authErr, ok := err.(*auth.Error); ok {
		switch authErr.Kind {
		case auth.InactiveUser:
			return badRequest(authErr.Message)
		case auth.Forbidden:
			return &apiError{http.StatusForbidden, authErr.Message}
		default:
			return &apiError{http.StatusUnauthorized, authErr.Message}
		}
	}
	if err == balancer.ErrNoHealthyBackend {
		return &apiError{http.StatusServiceUnavailable, "no healthy backend available"}
	}
	return internalError(err.Error())
}

func renderError(w http.ResponseWriter, err error) {
	ae := classify(err)
	if ae.status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ae.status)
	json.NewEncoder(w).Encode(map[string]string{"detail": ae.message})
}

func renderJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
