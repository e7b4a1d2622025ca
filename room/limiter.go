/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"golang.org/x/time/rate"
)

// Limiter is the admission policy consulted before any action is validated.
// Each room gets its own Limiter and calls it from its actor only.
type Limiter interface {
	Allow(participantID string) bool
	Forget(participantID string)
}

// NewRateLimiter returns a per-participant token bucket refilling perSecond
// tokens up to burst. A non-positive rate disables limiting.
func NewRateLimiter(perSecond float64, burst int) Limiter {
	if perSecond <= 0 {
		return unlimited{}
	}
	if burst < 1 {
		burst = 1
	}
	return &tokenBuckets{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
	}
}

type tokenBuckets struct {
	limit   rate.Limit
	burst   int
	buckets map[string]*rate.Limiter
}

func (t *tokenBuckets) Allow(participantID string) bool {
	b, ok := t.buckets[participantID]
	if !ok {
		b = rate.NewLimiter(t.limit, t.burst)
		t.buckets[participantID] = b
	}
	return b.Allow()
}

func (t *tokenBuckets) Forget(participantID string) {
	delete(t.buckets, participantID)
}

type unlimited struct{}

func (unlimited) Allow(string) bool { return true }
func (unlimited) Forget(string)     {}
