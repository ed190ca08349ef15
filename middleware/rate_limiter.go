// middleware/rate_limiter.go
package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/lvanfai123/moving-service-sub001/models"
)

type endpointLimit struct {
	limit rate.Limit
	burst int
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles requests per client IP and route. A client that runs
// out of tokens is blocked for blockDuration. Limiters unused for idleTTL are
// dropped by Cleanup.
type RateLimiter struct {
	ips            map[string]*clientLimiter
	blockedIPs     map[string]time.Time
	mu             sync.Mutex
	defaultLimit   endpointLimit
	blockDuration  time.Duration
	idleTTL        time.Duration
	endpointLimits map[string]endpointLimit
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		ips:           make(map[string]*clientLimiter),
		blockedIPs:    make(map[string]time.Time),
		defaultLimit:  endpointLimit{limit: rate.Every(100 * time.Millisecond), burst: 20},
		blockDuration: 5 * time.Minute,
		idleTTL:       10 * time.Minute,
		endpointLimits: map[string]endpointLimit{
			"/api/referrals/validate/:code":   {limit: rate.Every(time.Second), burst: 10},
			"/api/referrals/apply":            {limit: rate.Every(2 * time.Second), burst: 5},
			"/api/payments/:paymentId/refund": {limit: rate.Every(2 * time.Second), burst: 5},
		},
	}
}

// Cleanup prunes expired blocks and idle limiters every interval until ctx is
// cancelled
func (r *RateLimiter) Cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.prune(now)
		}
	}
}

func (r *RateLimiter) prune(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for ip, blockUntil := range r.blockedIPs {
		if now.After(blockUntil) {
			delete(r.blockedIPs, ip)
		}
	}
	for key, client := range r.ips {
		if now.Sub(client.lastSeen) > r.idleTTL {
			delete(r.ips, key)
		}
	}
}

func (r *RateLimiter) RateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			path := c.Path()
			now := time.Now()

			r.mu.Lock()
			if blockUntil, blocked := r.blockedIPs[ip]; blocked {
				if now.Before(blockUntil) {
					r.mu.Unlock()
					return tooManyRequests(c, blockUntil)
				}
				delete(r.blockedIPs, ip)
				for key := range r.ips {
					if strings.HasPrefix(key, ip+"|") {
						delete(r.ips, key)
					}
				}
			}

			cfg, ok := r.endpointLimits[path]
			if !ok {
				cfg = r.defaultLimit
			}
			key := ip + "|" + path
			client, exists := r.ips[key]
			if !exists {
				client = &clientLimiter{limiter: rate.NewLimiter(cfg.limit, cfg.burst)}
				r.ips[key] = client
			}
			client.lastSeen = now

			if !client.limiter.Allow() {
				blockUntil := now.Add(r.blockDuration)
				r.blockedIPs[ip] = blockUntil
				r.mu.Unlock()
				return tooManyRequests(c, blockUntil)
			}
			r.mu.Unlock()

			return next(c)
		}
	}
}

func tooManyRequests(c echo.Context, until time.Time) error {
	c.Response().Header().Set("Retry-After", until.UTC().Format(http.TimeFormat))
	return c.JSON(http.StatusTooManyRequests, models.Result{
		Success: false,
		Message: "too many requests",
		Action:  models.ActionRetryLater,
	})
}
