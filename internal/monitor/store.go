// Package monitor keeps in-process request statistics for the monitoring
// endpoints. Counters reset on restart; durable metrics are out of scope.
package monitor

import (
	"sort"
	"sync"
	"time"
)

// HandlerStats aggregates requests for one route pattern.
type HandlerStats struct {
	Handler       string    `json:"handler"`
	Count         int64     `json:"count"`
	ErrorCount    int64     `json:"errorCount"`
	AvgDurationMS float64   `json:"avgDurationMs"`
	MaxDurationMS int64     `json:"maxDurationMs"`
	LastStatus    int       `json:"lastStatus"`
	LastSeenAt    time.Time `json:"lastSeenAt"`
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	StartedAt      time.Time      `json:"startedAt"`
	UptimeSeconds  int64          `json:"uptimeSeconds"`
	TotalRequests  int64          `json:"totalRequests"`
	SuccessCount   int64          `json:"successCount"`
	ClientErrors   int64          `json:"clientErrors"`
	ServerErrors   int64          `json:"serverErrors"`
	SlowRequests   int64          `json:"slowRequests"`
	AvgDurationMS  float64        `json:"avgDurationMs"`
	LastRequestAt  *time.Time     `json:"lastRequestAt,omitempty"`
	HandlerMetrics []HandlerStats `json:"handlerMetrics"`
}

type handlerEntry struct {
	count      int64
	errorCount int64
	totalDur   time.Duration
	maxDur     time.Duration
	lastStatus int
	lastSeenAt time.Time
}

// Store accumulates request observations. Safe for concurrent use.
type Store struct {
	mu            sync.Mutex
	startedAt     time.Time
	slowThreshold time.Duration
	total         int64
	success       int64
	clientErrors  int64
	serverErrors  int64
	slow          int64
	totalDur      time.Duration
	lastRequestAt time.Time
	handlers      map[string]*handlerEntry
	now           func() time.Time
}

// NewStore creates a store; requests at or above slowThreshold count as slow.
func NewStore(slowThreshold time.Duration) *Store {
	s := &Store{
		slowThreshold: slowThreshold,
		handlers:      make(map[string]*handlerEntry),
		now:           time.Now,
	}
	s.startedAt = s.now()
	return s
}

// Record observes one finished request. The handler label is the route
// pattern, not the raw path, to keep cardinality bounded.
func (s *Store) Record(handler string, status int, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.total++
	s.totalDur += duration
	s.lastRequestAt = now
	switch {
	case status >= 500:
		s.serverErrors++
	case status >= 400:
		s.clientErrors++
	default:
		s.success++
	}
	if s.slowThreshold > 0 && duration >= s.slowThreshold {
		s.slow++
	}

	entry, ok := s.handlers[handler]
	if !ok {
		entry = &handlerEntry{}
		s.handlers[handler] = entry
	}
	entry.count++
	if status >= 400 {
		entry.errorCount++
	}
	entry.totalDur += duration
	if duration > entry.maxDur {
		entry.maxDur = duration
	}
	entry.lastStatus = status
	entry.lastSeenAt = now
}

// Snapshot copies the current counters. Handler metrics are sorted by count
// descending so the busiest routes come first.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	snap := Snapshot{
		StartedAt:     s.startedAt,
		UptimeSeconds: int64(now.Sub(s.startedAt).Seconds()),
		TotalRequests: s.total,
		SuccessCount:  s.success,
		ClientErrors:  s.clientErrors,
		ServerErrors:  s.serverErrors,
		SlowRequests:  s.slow,
	}
	if s.total > 0 {
		snap.AvgDurationMS = float64(s.totalDur.Milliseconds()) / float64(s.total)
		last := s.lastRequestAt
		snap.LastRequestAt = &last
	}

	snap.HandlerMetrics = make([]HandlerStats, 0, len(s.handlers))
	for name, entry := range s.handlers {
		hs := HandlerStats{
			Handler:       name,
			Count:         entry.count,
			ErrorCount:    entry.errorCount,
			MaxDurationMS: entry.maxDur.Milliseconds(),
			LastStatus:    entry.lastStatus,
			LastSeenAt:    entry.lastSeenAt,
		}
		if entry.count > 0 {
			hs.AvgDurationMS = float64(entry.totalDur.Milliseconds()) / float64(entry.count)
		}
		snap.HandlerMetrics = append(snap.HandlerMetrics, hs)
	}
	sort.Slice(snap.HandlerMetrics, func(i, j int) bool {
		if snap.HandlerMetrics[i].Count != snap.HandlerMetrics[j].Count {
			return snap.HandlerMetrics[i].Count > snap.HandlerMetrics[j].Count
		}
		return snap.HandlerMetrics[i].Handler < snap.HandlerMetrics[j].Handler
	})
	return snap
}
