package api

import (
	"time"

	domainerrors "github.com/likeshelf/likeshelf-server/internal/errors"
	"github.com/likeshelf/likeshelf-server/internal/ratelimit"
)

// RateLimiter wraps KeyedRateLimiter for API use.
type RateLimiter = ratelimit.KeyedRateLimiter

// NewRateLimiter creates a limiter allowing ratePerInterval requests per
// interval with the given burst.
// For example: 6 per minute = 6/60 = 0.1 rps.
func NewRateLimiter(ratePerInterval int, interval time.Duration, burst int) *RateLimiter {
	rps := float64(ratePerInterval) / interval.Seconds()
	return ratelimit.New(rps, burst)
}

// allowSync reports RATE_LIMITED when the user triggered syncs too often.
func (s *Server) allowSync(userID string) error {
	if s.syncLimiter == nil || s.syncLimiter.Allow(userID) {
		return nil
	}
	s.logger.Warn("sync rate limit exceeded", "user_id", userID)
	return domainerrors.RateLimited("Too many sync requests. Please try again later.")
}
