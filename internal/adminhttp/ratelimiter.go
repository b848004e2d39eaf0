package adminhttp

import (
	"time"

	"golang.org/x/time/rate"
)

// BGSaveLimiter bounds how often the mutating admin endpoint may fire: a
// token bucket holding `limit` tokens that refills one token per
// window/limit, so a scripted operator cannot trigger a snapshot storm.
// A nil limiter, or one constructed with a non-positive window or limit,
// allows everything.
type BGSaveLimiter struct {
	bucket *rate.Limiter
	now    func() time.Time
}

// NewBGSaveLimiter constructs a limiter allowing up to limit triggers per
// window. timeSource overrides the clock for deterministic tests; nil
// selects time.Now.
func NewBGSaveLimiter(window time.Duration, limit int, timeSource func() time.Time) *BGSaveLimiter {
	if window <= 0 || limit <= 0 {
		return &BGSaveLimiter{}
	}
	if timeSource == nil {
		timeSource = time.Now
	}
	return &BGSaveLimiter{
		bucket: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit),
		now:    timeSource,
	}
}

// Allow reports whether the caller may proceed, consuming one token if so.
func (l *BGSaveLimiter) Allow() bool {
	if l == nil || l.bucket == nil {
		return true
	}
	return l.bucket.AllowN(l.now(), 1)
}
