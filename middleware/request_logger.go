package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/lvanfai123/moving-service-sub001/monitoring"
)

// RequestLogger logs every request through zap and records the HTTP metrics
func RequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			latency := time.Since(start)
			req := c.Request()
			status := c.Response().Status

			// route pattern keeps label cardinality bounded
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			monitoring.HttpRequestsTotal.WithLabelValues(req.Method, path, strconv.Itoa(status)).Inc()
			monitoring.ResponseTimeHistogram.WithLabelValues(req.Method, path).Observe(latency.Seconds())

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("status", status),
				zap.Duration("latency", latency),
				zap.String("ip", c.RealIP()),
			}
			if userID, ok := c.Get("userId").(string); ok && userID != "" {
				fields = append(fields, zap.String("userId", userID))
			}

			switch {
			case status >= 500:
				logger.Error("request", fields...)
			case status >= 400:
				logger.Warn("request", fields...)
			default:
				logger.Info("request", fields...)
			}
			return nil
		}
	}
}
