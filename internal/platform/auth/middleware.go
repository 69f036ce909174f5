package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

type sessionKey struct{}

// Session is the verified identity of the caller.
type Session struct {
	UserID    string
	Role      string
	TokenID   string
	ExpiresAt time.Time
}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session set by the JWT middleware.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}

// JWTMiddleware rejects requests without a valid Bearer token.
func JWTMiddleware(issuer *TokenIssuer) echo.MiddlewareFunc {
	return jwtMiddleware(issuer, true)
}

// OptionalJWTMiddleware attaches a session when a token is present and lets
// anonymous requests through. A malformed or expired token is still rejected.
func OptionalJWTMiddleware(issuer *TokenIssuer) echo.MiddlewareFunc {
	return jwtMiddleware(issuer, false)
}

func jwtMiddleware(issuer *TokenIssuer, required bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				if required {
					return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
				}
				return next(c)
			}

			scheme, tokenStr, ok := strings.Cut(authHeader, " ")
			tokenStr = strings.TrimSpace(tokenStr)
			if !ok || !strings.EqualFold(scheme, "bearer") || tokenStr == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims, err := issuer.Parse(tokenStr)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			revoked, err := issuer.IsRevoked(c.Request().Context(), claims)
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
			}
			if revoked {
				return echo.NewHTTPError(http.StatusUnauthorized, "token has been revoked")
			}

			s := Session{UserID: claims.Subject, Role: claims.Role, TokenID: claims.ID}
			if claims.ExpiresAt != nil {
				s.ExpiresAt = claims.ExpiresAt.Time
			}
			ctx := WithSession(c.Request().Context(), s)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
