package server

import (
	"context"
	"fmt"
	"time"
)

const (
	// Requests from one origin are refused once this many records are attributed to it
	// within rateLimitWindow.
	rateLimitMaxRequests = 10
	rateLimitWindow      = time.Hour
)

// originLimiter is a trailing-window count over the store, not a token bucket: bursts that
// straddle the window edge are not smoothed. It keeps no state of its own.
type originLimiter struct {
	store  Store
	max    int64
	window time.Duration
	now    func() time.Time
}

func newOriginLimiter(store Store, now func() time.Time) *originLimiter {
	return &originLimiter{
		store:  store,
		max:    rateLimitMaxRequests,
		window: rateLimitWindow,
		now:    now,
	}
}

// allow reports whether origin is still under the limit, along with the count it saw. A failing
// count is returned as an error and never treated as allowed.
func (l *originLimiter) allow(ctx context.Context, origin string) (bool, int64, error) {
	cnt, err := l.store.CountAnalyticsRecordsFromOrigin(ctx, origin, l.now().Add(-l.window))
	if err != nil {
		return false, 0, fmt.Errorf("store.CountAnalyticsRecordsFromOrigin: %w", err)
	}
	return cnt < l.max, cnt, nil
}
