package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lvanfai123/moving-service-sub001/controllers"
	"github.com/lvanfai123/moving-service-sub001/middleware"
)

// Dependencies are the controllers and settings the routes are built from
type Dependencies struct {
	Payments  *controllers.PaymentController
	Credits   *controllers.CreditController
	Referrals *controllers.ReferralController
	JWTSecret string
	// Ping reports storage health. Nil means the service runs on in-process storage.
	Ping   func(ctx context.Context) error
	Logger *zap.Logger
}

// SetupRoutes configures all API routes by calling individual route registration functions
func SetupRoutes(e *echo.Echo, deps Dependencies) {
	auth := middleware.JWTMiddleware(deps.JWTSecret, deps.Logger)

	RegisterHealthRoutes(e, deps.Ping)
	RegisterPaymentRoutes(e, deps.Payments, auth)
	RegisterCreditRoutes(e, deps.Credits, auth)
	RegisterReferralRoutes(e, deps.Referrals, auth)
	RegisterAdminRoutes(e, deps.Payments, auth)
}

// RegisterHealthRoutes exposes /health and the prometheus /metrics endpoint
func RegisterHealthRoutes(e *echo.Echo, ping func(ctx context.Context) error) {
	e.Match([]string{"GET", "HEAD"}, "/health", func(c echo.Context) error {
		database := "memory"
		if ping != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{
					"status":   "unhealthy",
					"database": "disconnected",
				})
			}
			database = "connected"
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":   "healthy",
			"database": database,
		})
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}
