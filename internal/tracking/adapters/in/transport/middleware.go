package transport

import (
	"context"
	"net/http"
	"strings"
	"time"

	"fastfare/internal/shared/auth"
	"fastfare/internal/shared/logger"
	"fastfare/internal/shared/utils"
)

type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyUserID    contextKey = "user_id"
	ContextKeyUserRole  contextKey = "user_role"
)

const headerRequestID = "X-Request-Id"

// NoAuth leaves a handler unwrapped.
func NoAuth(next http.HandlerFunc) http.HandlerFunc { return next }

// AuthMiddleware requires a bearer token carrying ADMIN or DISPATCHER. A
// DRIVER token is accepted only for its own location reports.
func AuthMiddleware(jwtService *auth.JWTService, log *logger.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				log.Warn(logger.Entry{
					Action:    "tracking_auth_missing_token",
					Message:   "missing or malformed authorization header",
					RequestID: RequestIDFromContext(r.Context()),
				})
				respondError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			claims, err := jwtService.ValidateToken(token)
			if err != nil {
				log.Warn(logger.Entry{
					Action:    "tracking_auth_invalid_token",
					Message:   err.Error(),
					RequestID: RequestIDFromContext(r.Context()),
					Error:     &logger.ErrObj{Msg: err.Error()},
				})
				respondError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			if !allowed(claims, r) {
				log.Warn(logger.Entry{
					Action:    "tracking_auth_forbidden",
					Message:   "insufficient permissions",
					RequestID: RequestIDFromContext(r.Context()),
					Additional: map[string]any{
						"user_id": claims.UserID,
						"role":    claims.Role,
						"path":    r.URL.Path,
					},
				})
				respondError(w, http.StatusForbidden, "access denied")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUserID, claims.UserID)
			ctx = context.WithValue(ctx, ContextKeyUserRole, claims.Role)
			next(w, r.WithContext(ctx))
		}
	}
}

func allowed(claims *auth.Claims, r *http.Request) bool {
	if claims.HasRole(auth.RoleAdmin, auth.RoleDispatcher) {
		return true
	}
	if !claims.HasRole(auth.RoleDriver) || r.Method != http.MethodPost {
		return false
	}
	return strings.HasSuffix(r.URL.Path, "/location") && r.PathValue("driver_id") == claims.UserID
}

// RequestIDMiddleware propagates a caller-supplied UUID request id or mints one.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if !utils.IsUUID(id) {
			id = utils.NewUUID()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ContextKeyRequestID, id)))
	})
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ContextKeyRequestID).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware writes one line per request. Upgraded WebSocket
// requests are passed through untouched.
func LoggingMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			log.Debug(logger.Entry{
				Action:    "http_request",
				Message:   r.Method + " " + r.URL.Path,
				RequestID: RequestIDFromContext(r.Context()),
				Additional: map[string]any{
					"status":      rec.status,
					"duration_ms": time.Since(start).Milliseconds(),
				},
			})
		})
	}
}
