package auth

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hospital/hospital/internal/platform/apperr"
)

// RequireCapability returns middleware that admits a session holding at
// least one of caps. Administrators pass every check.
func RequireCapability(caps ...Capability) echo.MiddlewareFunc {
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = string(c)
	}
	required := strings.Join(names, " or ")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := ClaimsFromContext(c.Request().Context())
			if claims == nil {
				return apperr.New(apperr.KindUnauthenticated, "authentication required")
			}
			for _, cap := range caps {
				if claims.Capabilities.Allows(cap) {
					return next(c)
				}
			}
			return apperr.Newf(apperr.KindForbidden, "required capability: %s", required).
				WithDetail("role", claims.Role)
		}
	}
}
