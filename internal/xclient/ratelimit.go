package xclient

import "golang.org/x/time/rate"

// newLimiter creates a rate limiter from configured values, falling back to
// 2 requests per second with a burst of 10.
func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		rps = 2.0
	}
	if burst <= 0 {
		burst = 10
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
