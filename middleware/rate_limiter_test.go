package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestRateLimiter_BlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter()
	limiter.endpointLimits["/limited"] = endpointLimit{limit: rate.Every(time.Hour), burst: 2}

	e := echo.New()
	e.Use(limiter.RateLimit())
	e.GET("/limited", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	e.GET("/open", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	call := func(path, ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set(echo.HeaderXRealIP, ip)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, call("/limited", "10.0.0.1").Code)
	assert.Equal(t, http.StatusNoContent, call("/limited", "10.0.0.1").Code)

	rec := call("/limited", "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// a blocked client is blocked on every route
	assert.Equal(t, http.StatusTooManyRequests, call("/open", "10.0.0.1").Code)
	assert.Equal(t, http.StatusNoContent, call("/limited", "10.0.0.2").Code)
}

func TestRateLimiter_PrunesIdleClients(t *testing.T) {
	limiter := NewRateLimiter()
	limiter.idleTTL = time.Minute

	e := echo.New()
	e.Use(limiter.RateLimit())
	e.GET("/open", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		req := httptest.NewRequest(http.MethodGet, "/open", nil)
		req.Header.Set(echo.HeaderXRealIP, ip)
		e.ServeHTTP(httptest.NewRecorder(), req)
	}
	limiter.blockedIPs["10.0.0.9"] = time.Now().Add(time.Second)

	limiter.prune(time.Now())
	assert.Len(t, limiter.ips, 3)
	assert.Len(t, limiter.blockedIPs, 1)

	limiter.prune(time.Now().Add(2 * time.Minute))
	assert.Empty(t, limiter.ips)
	assert.Empty(t, limiter.blockedIPs)
}
