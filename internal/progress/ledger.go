// Package progress tracks the live state of in-flight uploads so polling
// clients can observe a workflow while it runs. The ledger is an ephemeral,
// TTL-bounded cache of recent activity, not an audit log.
package progress

import (
	"errors"
	"hash/fnv"
	"math"
	"sync"
	"time"
)

// ErrDuplicateSession is returned when an unexpired session already exists
// for the requested upload id.
var ErrDuplicateSession = errors.New("progress: upload session already exists")

// Status is the lifecycle state of an upload session. A session moves from
// PROCESSING to exactly one terminal state and never reverses.
type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Result is the payload published when an upload completes.
type Result struct {
	VideoID      string `json:"videoId"`
	VideoURL     string `json:"videoUrl"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

// Session is the observable state of one upload workflow.
type Session struct {
	UploadID             string    `json:"uploadId"`
	OwnerID              string    `json:"userId,omitempty"`
	Status               Status    `json:"status"`
	Stage                string    `json:"stage"`
	ProgressPercent      int       `json:"progressPercent"`
	Message              string    `json:"message"`
	FileBytes            int64     `json:"fileBytes"`
	VideoBytes           int64     `json:"videoBytes,omitempty"`
	EstimatedSecondsLeft *int      `json:"estimatedSecondsLeft"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
	ExpiresAt            time.Time `json:"-"`
	Result               *Result   `json:"result"`
	Error                string    `json:"error,omitempty"`
}

const shardCount = 16

type shard struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// Ledger is a sharded in-memory session store. Operations on one upload id
// are atomic; distinct ids only contend when they hash to the same shard.
type Ledger struct {
	shards [shardCount]*shard
	ttl    time.Duration
	now    func() time.Time
}

// NewLedger constructs a ledger whose sessions expire ttl after their last
// mutation.
func NewLedger(ttl time.Duration) *Ledger {
	l := &Ledger{ttl: ttl, now: time.Now}
	for i := range l.shards {
		l.shards[i] = &shard{sessions: make(map[string]*Session)}
	}
	return l
}

func (l *Ledger) shardFor(uploadID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(uploadID))
	return l.shards[h.Sum32()%shardCount]
}

// Create registers a new PROCESSING session. It fails with
// ErrDuplicateSession when an unexpired session already holds the id;
// callers are expected to pass a fresh random id per attempt.
func (l *Ledger) Create(uploadID, ownerID string, declaredBytes int64) error {
	s := l.shardFor(uploadID)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := l.now()
	if existing, ok := s.sessions[uploadID]; ok && now.Before(existing.ExpiresAt) {
		return ErrDuplicateSession
	}

	s.sessions[uploadID] = &Session{
		UploadID:        uploadID,
		OwnerID:         ownerID,
		Status:          StatusProcessing,
		Stage:           "initialized",
		ProgressPercent: 0,
		Message:         "Upload initialized.",
		FileBytes:       declaredBytes,
		CreatedAt:       now,
		UpdatedAt:       now,
		ExpiresAt:       now.Add(l.ttl),
	}
	return nil
}

// Advance publishes a progress checkpoint. Percent is clamped to [0,100] and
// never decreases; the ETA is recomputed and the TTL refreshed. Missing,
// expired or already-terminal sessions are left untouched.
func (l *Ledger) Advance(uploadID string, percent int, stage, message string) {
	l.mutate(uploadID, func(session *Session, now time.Time) {
		next := min(100, max(0, percent))
		if next > session.ProgressPercent {
			session.ProgressPercent = next
		}
		if stage != "" {
			session.Stage = stage
		}
		if message != "" {
			session.Message = message
		}
		session.EstimatedSecondsLeft = estimateSecondsLeft(session.CreatedAt, now, session.ProgressPercent)
	})
}

// RecordVideoBytes stores the provider-reported size of the transferred
// video binary alongside the session.
func (l *Ledger) RecordVideoBytes(uploadID string, bytes int64) {
	l.mutate(uploadID, func(session *Session, _ time.Time) {
		session.VideoBytes = bytes
	})
}

// Complete marks the session COMPLETED with its result payload.
func (l *Ledger) Complete(uploadID string, result Result) {
	l.mutate(uploadID, func(session *Session, _ time.Time) {
		zero := 0
		session.Status = StatusCompleted
		session.Stage = "completed"
		session.Message = "Upload completed."
		session.ProgressPercent = 100
		session.EstimatedSecondsLeft = &zero
		session.Result = &result
		session.Error = ""
	})
}

// Fail marks the session FAILED, keeping the stage's last progress value.
func (l *Ledger) Fail(uploadID, message, cause string) {
	l.mutate(uploadID, func(session *Session, _ time.Time) {
		session.Status = StatusFailed
		session.Stage = "failed"
		if message != "" {
			session.Message = message
		} else {
			session.Message = "Upload failed."
		}
		session.Error = cause
	})
}

// Get returns a copy of the session, or false when it is absent or expired.
// Expiry is checked lazily here; an expired entry is evicted on read.
func (l *Ledger) Get(uploadID string) (Session, bool) {
	s := l.shardFor(uploadID)
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[uploadID]
	if !ok {
		return Session{}, false
	}
	if l.now().After(session.ExpiresAt) {
		delete(s.sessions, uploadID)
		return Session{}, false
	}
	return *session, true
}

// Sweep proactively evicts expired sessions and reports how many were
// removed. Expiry also happens lazily on Get; the sweep only bounds memory.
func (l *Ledger) Sweep() int {
	now := l.now()
	evicted := 0
	for _, s := range l.shards {
		s.mu.Lock()
		for id, session := range s.sessions {
			if now.After(session.ExpiresAt) {
				delete(s.sessions, id)
				evicted++
			}
		}
		s.mu.Unlock()
	}
	return evicted
}

// mutate applies fn to a live PROCESSING-or-terminal-transitioning session
// under its shard lock, refreshing UpdatedAt and the TTL. Terminal sessions
// only accept the first terminal transition; later mutations are dropped.
func (l *Ledger) mutate(uploadID string, fn func(session *Session, now time.Time)) {
	s := l.shardFor(uploadID)
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[uploadID]
	if !ok {
		return
	}
	now := l.now()
	if now.After(session.ExpiresAt) {
		delete(s.sessions, uploadID)
		return
	}
	if session.Status != StatusProcessing {
		return
	}

	fn(session, now)
	session.UpdatedAt = now
	session.ExpiresAt = now.Add(l.ttl)
}

// estimateSecondsLeft linearly extrapolates the remaining time from elapsed
// time and progress. It is nil before any progress and zero at completion.
func estimateSecondsLeft(createdAt, now time.Time, percent int) *int {
	if percent <= 0 {
		return nil
	}
	if percent >= 100 {
		zero := 0
		return &zero
	}
	elapsedMs := float64(now.Sub(createdAt).Milliseconds())
	remainingMs := math.Max(0, elapsedMs/float64(percent)*100-elapsedMs)
	seconds := int(math.Ceil(remainingMs / 1000))
	return &seconds
}
