package routes

import (
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/lvanfai123/moving-service-sub001/middleware"
)

// CustomValidator is a custom validator for Echo
type CustomValidator struct {
	validator *validator.Validate
}

// Validate validates the request body
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

// NewServer creates the echo instance with the global middleware chain. A nil
// limiter disables rate limiting. corsOrigins extend the development origins.
func NewServer(logger *zap.Logger, limiter *middleware.RateLimiter, corsOrigins []string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()

	e.Use(echoMiddleware.Recover())
	e.Use(middleware.RequestLogger(logger))
	e.Use(middleware.GlobalCORS(corsOrigins))
	e.Use(middleware.SecurityHeaders())
	if limiter != nil {
		e.Use(limiter.RateLimit())
	}
	return e
}
