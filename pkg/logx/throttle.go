package logx

import (
	"time"

	"golang.org/x/time/rate"
)

// Throttle gates repeated log emission on hot failure paths.
//
// A persistent disk or socket outage hits the same error every loop
// iteration; without a gate that turns into a log storm. Allow() returns true
// at most once per interval.
type Throttle struct {
	lim *rate.Limiter
}

// NewThrottle returns a throttle permitting one event per interval.
// A non-positive interval permits everything.
func NewThrottle(interval time.Duration) *Throttle {
	if interval <= 0 {
		return &Throttle{lim: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Throttle{lim: rate.NewLimiter(rate.Every(interval), 1)}
}

func (t *Throttle) Allow() bool {
	if t == nil || t.lim == nil {
		return true
	}
	return t.lim.Allow()
}
