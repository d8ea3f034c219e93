package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/taskcache/internal/auth"
)

// publicPaths do not require authentication.
var publicPaths = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

// eventStreamPath is the only path whose WebSocket upgrade is public.
const eventStreamPath = "/ws"

// Auth authenticates requests and rejects mutations from read-scoped
// callers. Public paths, CORS preflights and the event stream upgrade are
// not authenticated.
func Auth(authenticator auth.Authenticator, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) || r.Method == http.MethodOptions || isEventStreamUpgrade(r) {
				next.ServeHTTP(w, r)
				return
			}

			id, err := authenticator.Authenticate(r)
			if err != nil {
				logger.Warn("authentication failed",
					zap.String("path", r.URL.Path),
					zap.String("method", r.Method),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeAuthError(w, http.StatusUnauthorized, err)
				return
			}
			recordIdentity(r.Context(), id)

			if isMutation(r.Method) && !id.CanWrite() {
				logger.Warn("mutation rejected for read-only caller",
					zap.String("subject", id.Subject),
					zap.String("path", r.URL.Path),
					zap.String("method", r.Method),
				)
				writeAuthError(w, http.StatusForbidden, auth.ErrForbidden)
				return
			}

			logger.Debug("authentication successful",
				zap.String("subject", id.Subject),
				zap.String("auth_method", string(id.Method)),
				zap.String("scope", string(id.Scope)),
			)

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

// isPublicPath matches public paths and their sub-paths, but not paths that
// only share a prefix (/healthz is not public).
func isPublicPath(path string) bool {
	if publicPaths[path] {
		return true
	}
	for p := range publicPaths {
		if strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func isEventStreamUpgrade(r *http.Request) bool {
	return r.URL.Path == eventStreamPath && strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

type authErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeAuthError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		setWWWAuthenticateHeader(w, err)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(authErrorResponse{Code: status, Message: err.Error()})
}

func setWWWAuthenticateHeader(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		w.Header().Set("WWW-Authenticate", "Basic, API-Key")
	case errors.Is(err, auth.ErrInvalidCredentials):
		w.Header().Set("WWW-Authenticate", `Basic realm="tasks"`)
	case errors.Is(err, auth.ErrInvalidAPIKey):
		w.Header().Set("WWW-Authenticate", "API-Key")
	}
}
