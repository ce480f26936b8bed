package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sakif/time-estimator/internal/router"
)

// NavigationResponse is the body of a blocked non-GET request.
type NavigationResponse struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	Redirect string `json:"redirect"`
}

// Navigation runs every request for a page (or a page's sub-resource)
// through the router, so the router's guards decide who gets in.
//
//   - allowed                → the handler runs
//   - redirected, GET/HEAD   → 303 See Other to the redirect target's path
//   - redirected, any other  → 401 JSON naming the redirect path
//
// Paths outside the navigation model (/metrics, /ws, /healthz) are passed
// through untouched.
func Navigation(r *router.Router, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			// the escaped path keeps a "/" inside a member id in one segment
			to, ok := router.Resolve(req.URL.EscapedPath())
			if !ok {
				next.ServeHTTP(w, req)
				return
			}

			nav, err := r.Push(to)
			if err != nil {
				logger.ErrorContext(req.Context(), "navigation failed", "to", to.String(), "error", err)
				writeNavigationError(w, http.StatusInternalServerError, NavigationResponse{
					Error:   "internal_error",
					Message: "An internal error occurred",
				})
				return
			}
			if !nav.Redirected {
				next.ServeHTTP(w, req)
				return
			}

			target := nav.To.Path()
			logger.DebugContext(req.Context(), "navigation redirected",
				"requested", nav.Requested.String(), "redirect", target)

			if req.Method == http.MethodGet || req.Method == http.MethodHead {
				http.Redirect(w, req, target, http.StatusSeeOther)
				return
			}
			writeNavigationError(w, http.StatusUnauthorized, NavigationResponse{
				Error:    "unauthenticated",
				Message:  "sign in to continue",
				Redirect: target,
			})
		})
	}
}

func writeNavigationError(w http.ResponseWriter, status int, body NavigationResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
