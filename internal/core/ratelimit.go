package core

import "time"

// rateLimiter counts inbound frames in fixed windows. It is used only by the
// owning session's reader, so it needs no locking.
type rateLimiter struct {
	limit   int
	window  time.Duration
	counter int
	start   time.Time
	now     func() time.Time
}

func newRateLimiter(limit int, now func() time.Time) *rateLimiter {
	if limit <= 0 {
		return nil
	}
	return &rateLimiter{
		limit:  limit,
		window: time.Minute,
		now:    now,
	}
}

func (r *rateLimiter) allow() bool {
	if r == nil {
		return true
	}
	if t := r.now(); t.Sub(r.start) >= r.window {
		r.start = t
		r.counter = 0
	}
	r.counter++
	return r.counter <= r.limit
}
