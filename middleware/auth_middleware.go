// middleware/auth_middleware.go
package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lvanfai123/moving-service-sub001/models"
)

// RequireUserType checks if the authenticated user has one of the allowed user types
func RequireUserType(allowedTypes ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userType := ExtractUserType(c)
			if userType == "" {
				return c.JSON(http.StatusUnauthorized, models.Failure(
					models.NewError(models.ErrUnauthorized, "authentication failed: user type not found")))
			}

			for _, allowed := range allowedTypes {
				if userType == allowed {
					return next(c)
				}
			}

			return c.JSON(http.StatusForbidden, models.Failure(
				models.NewError(models.ErrUnauthorized, "access denied for your user type")))
		}
	}
}
