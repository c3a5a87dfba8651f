package cache

import (
	"sync/atomic"
	"time"
)

// MetricsSnapshot is a point-in-time copy of the cache counters.
type MetricsSnapshot struct {
	L1Hits        int64     `json:"l1_hits"`
	L2Hits        int64     `json:"l2_hits"`
	Misses        int64     `json:"misses"`
	Errors        int64     `json:"errors"`
	Sets          int64     `json:"sets"`
	Invalidations int64     `json:"invalidations"`
	HitRate       float64   `json:"hit_rate"`
	Since         time.Time `json:"since"`
}

type counters struct {
	l1Hits        atomic.Int64
	l2Hits        atomic.Int64
	misses        atomic.Int64
	errors        atomic.Int64
	sets          atomic.Int64
	invalidations atomic.Int64
	since         time.Time
}

func newCounters() *counters {
	return &counters{since: time.Now()}
}

func (c *counters) snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		L1Hits:        c.l1Hits.Load(),
		L2Hits:        c.l2Hits.Load(),
		Misses:        c.misses.Load(),
		Errors:        c.errors.Load(),
		Sets:          c.sets.Load(),
		Invalidations: c.invalidations.Load(),
		Since:         c.since,
	}
	if lookups := s.L1Hits + s.L2Hits + s.Misses; lookups > 0 {
		s.HitRate = float64(s.L1Hits+s.L2Hits) / float64(lookups) * 100
	}
	return s
}
