package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/cardroute/cardroute/internal/api/models"
	"github.com/cardroute/cardroute/internal/session"
)

// sessionKey is the context key for the validated session claims.
type sessionKey struct{}

// SessionAuth creates middleware that validates payment-session bearer
// tokens. The token's payment scope is checked by the handler against the
// payment id in the route.
func SessionAuth(sessions *session.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Extract bearer token from Authorization header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, r, "missing authorization header")
				return
			}

			// Check for Bearer prefix (case-insensitive)
			const bearerPrefix = "Bearer "
			if len(authHeader) < len(bearerPrefix) ||
				!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
				writeUnauthorized(w, r, "invalid authorization header format")
				return
			}

			tokenString := authHeader[len(bearerPrefix):]
			if tokenString == "" {
				writeUnauthorized(w, r, "missing bearer token")
				return
			}

			claims, err := sessions.Validate(tokenString)
			if err != nil {
				switch {
				case errors.Is(err, session.ErrTokenExpired):
					writeUnauthorized(w, r, "session token has expired")
				case errors.Is(err, session.ErrInvalidToken):
					writeUnauthorized(w, r, "invalid session token")
				default:
					writeUnauthorized(w, r, "authentication failed")
				}
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeUnauthorized writes a 401 Unauthorized response.
// This is implemented directly here to avoid import cycle with response package.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := GetRequestID(r.Context())
	problem := models.NewUnauthorized(traceID, detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetSessionClaims retrieves the validated session claims from the context.
// Returns nil when the request carries no session.
func GetSessionClaims(ctx context.Context) *session.Claims {
	if claims, ok := ctx.Value(sessionKey{}).(*session.Claims); ok {
		return claims
	}
	return nil
}

// GetSessionPaymentID retrieves the payment id the session is scoped to.
// Returns an empty string when the request carries no session.
func GetSessionPaymentID(ctx context.Context) string {
	if claims := GetSessionClaims(ctx); claims != nil {
		return claims.PaymentID
	}
	return ""
}
