package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/jclararobles/AppListVideos/infrastructure/identity"
)

// DevUserHeader lets local clients pick an identity when no validator is
// configured.
const DevUserHeader = "X-User-ID"

// Authenticate validates the bearer token and stores its subject as the
// request identity. With a nil validator, the identity comes from
// DevUserHeader or falls back to devIdentity; that mode is only wired
// outside production.
func Authenticate(validator *identity.JWTValidator, devIdentity string, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validator == nil {
				userID := r.Header.Get(DevUserHeader)
				if userID == "" {
					userID = devIdentity
				}
				if userID == "" {
					respondUnauthorized(w, "Missing user identity")
					return
				}
				next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), userID)))
				return
			}

			token := extractToken(r)
			if token == "" {
				respondUnauthorized(w, "Missing authentication token")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.Warn("Invalid token",
					zap.Error(err),
					zap.String("path", r.URL.Path),
				)
				switch {
				case errors.Is(err, identity.ErrExpiredToken):
					respondUnauthorized(w, "Token has expired")
				case errors.Is(err, identity.ErrInvalidSignature):
					respondUnauthorized(w, "Invalid token signature")
				default:
					respondUnauthorized(w, "Invalid token")
				}
				return
			}

			logger.Debug("Request authenticated",
				zap.String("user_id", claims.UserID),
				zap.String("path", r.URL.Path),
				zap.String("method", r.Method),
			)
			next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), claims.UserID)))
		})
	}
}

// extractToken reads the bearer token from the Authorization header, or
// from the token query parameter for websocket upgrades where browsers
// cannot set headers.
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func respondUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   true,
		"message": message,
		"code":    http.StatusUnauthorized,
		"type":    "UNAUTHENTICATED",
	})
}
