package auth

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hospital/hospital/internal/platform/apperr"
)

type contextKey string

const claimsKey contextKey = "session_claims"

type MiddlewareConfig struct {
	Sessions    *SessionManager
	Revocations RevocationStore
	// Skipper bypasses authentication for matching requests. Defaults to AuthSkipper.
	Skipper func(c echo.Context) bool
}

// SessionMiddleware validates the bearer token and places its claims on the
// request context. Authorization decisions downstream read only the claims.
func SessionMiddleware(cfg MiddlewareConfig) echo.MiddlewareFunc {
	if cfg.Skipper == nil {
		cfg.Skipper = AuthSkipper
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper(c) {
				return next(c)
			}

			token, err := BearerToken(c)
			if err != nil {
				return err
			}

			claims, err := cfg.Sessions.Validate(token)
			if err != nil {
				return err
			}

			if cfg.Revocations != nil {
				revoked, err := cfg.Revocations.IsRevoked(c.Request().Context(), claims.ID)
				if err != nil {
					return apperr.Unavailable("revocation", err)
				}
				if revoked {
					return apperr.New(apperr.KindUnauthenticated, "session has been revoked")
				}
			}

			c.Set("staff_id", claims.StaffID)
			c.SetRequest(c.Request().WithContext(WithClaims(c.Request().Context(), claims)))
			return next(c)
		}
	}
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(c echo.Context) (string, error) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return "", apperr.New(apperr.KindUnauthenticated, "missing authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", apperr.New(apperr.KindUnauthenticated, "invalid authorization format")
	}
	return strings.TrimSpace(token), nil
}

func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}

// StaffIDFromContext returns 0 when the request is unauthenticated.
func StaffIDFromContext(ctx context.Context) int64 {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.StaffID
	}
	return 0
}
