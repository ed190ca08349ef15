package middleware

import (
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
)

// defaultOrigins are the local development frontends
var defaultOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://localhost:8080",
}

// AllowedOrigins returns the default origins plus the configured extras
func AllowedOrigins(extra []string) []string {
	origins := append([]string(nil), defaultOrigins...)
	for _, origin := range extra {
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// GlobalCORS creates the CORS middleware used by every route
func GlobalCORS(extra []string) echo.MiddlewareFunc {
	return echoMiddleware.CORSWithConfig(echoMiddleware.CORSConfig{
		AllowOrigins:     AllowedOrigins(extra),
		AllowMethods:     []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		AllowCredentials: true,
		ExposeHeaders:    []string{"Content-Length", "Content-Type"},
		MaxAge:           86400,
	})
}
