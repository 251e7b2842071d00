package progress

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTTL = 30 * time.Minute

// fakeClock lets tests drive the ledger's notion of time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLedger() (*Ledger, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	ledger := NewLedger(testTTL)
	ledger.now = clock.Now
	return ledger, clock
}

func TestCreateAndGet(t *testing.T) {
	ledger, _ := newTestLedger()
	require.NoError(t, ledger.Create("abc", "user-1", 1024))

	session, ok := ledger.Get("abc")
	require.True(t, ok)
	assert.Equal(t, StatusProcessing, session.Status)
	assert.Equal(t, "initialized", session.Stage)
	assert.Equal(t, 0, session.ProgressPercent)
	assert.EqualValues(t, 1024, session.FileBytes)
	assert.Nil(t, session.EstimatedSecondsLeft)
}

func TestCreateRejectsDuplicateUnexpired(t *testing.T) {
	ledger, clock := newTestLedger()
	require.NoError(t, ledger.Create("abc", "user-1", 0))
	assert.ErrorIs(t, ledger.Create("abc", "user-2", 0), ErrDuplicateSession)

	// Once the first session expires, the id may be reused.
	clock.Advance(testTTL + time.Second)
	assert.NoError(t, ledger.Create("abc", "user-2", 0))
}

func TestAdvanceClampsAndNeverDecreases(t *testing.T) {
	ledger, _ := newTestLedger()
	require.NoError(t, ledger.Create("abc", "user-1", 0))

	ledger.Advance("abc", 250, "uploading_video", "Uploading.")
	session, ok := ledger.Get("abc")
	require.True(t, ok)
	assert.Equal(t, 100, session.ProgressPercent)

	ledger.Advance("abc", 5, "validating", "going backwards")
	session, _ = ledger.Get("abc")
	assert.Equal(t, 100, session.ProgressPercent)
}

func TestAdvanceMonotonicAcrossCheckpoints(t *testing.T) {
	ledger, clock := newTestLedger()
	require.NoError(t, ledger.Create("abc", "user-1", 0))

	last := 0
	for _, checkpoint := range []struct {
		percent int
		stage   string
	}{
		{5, "validating"}, {12, "validated"}, {22, "uploading_video"},
		{72, "video_uploaded"}, {84, "thumbnail_generated"}, {92, "saving_metadata"},
	} {
		clock.Advance(2 * time.Second)
		ledger.Advance("abc", checkpoint.percent, checkpoint.stage, "")
		session, ok := ledger.Get("abc")
		require.True(t, ok)
		assert.GreaterOrEqual(t, session.ProgressPercent, last)
		assert.Equal(t, checkpoint.stage, session.Stage)
		last = session.ProgressPercent
	}
}

func TestEstimatedSecondsLeftBoundaries(t *testing.T) {
	ledger, clock := newTestLedger()
	require.NoError(t, ledger.Create("abc", "user-1", 0))

	// No progress yet: ETA unknown.
	session, _ := ledger.Get("abc")
	assert.Nil(t, session.EstimatedSecondsLeft)

	clock.Advance(10 * time.Second)
	ledger.Advance("abc", 50, "uploading_video", "")
	session, _ = ledger.Get("abc")
	require.NotNil(t, session.EstimatedSecondsLeft)
	assert.Equal(t, 10, *session.EstimatedSecondsLeft)

	clock.Advance(10 * time.Second)
	ledger.Advance("abc", 100, "completed", "")
	session, _ = ledger.Get("abc")
	require.NotNil(t, session.EstimatedSecondsLeft)
	assert.Equal(t, 0, *session.EstimatedSecondsLeft)
}

func TestCompleteIsTerminal(t *testing.T) {
	ledger, _ := newTestLedger()
	require.NoError(t, ledger.Create("abc", "user-1", 0))

	ledger.Complete("abc", Result{VideoID: "v1", VideoURL: "https://cdn/v1.mp4"})
	session, ok := ledger.Get("abc")
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, session.Status)
	assert.Equal(t, 100, session.ProgressPercent)
	require.NotNil(t, session.Result)
	assert.Equal(t, "v1", session.Result.VideoID)

	// A terminal session never reverses.
	ledger.Fail("abc", "late failure", "boom")
	session, _ = ledger.Get("abc")
	assert.Equal(t, StatusCompleted, session.Status)

	ledger.Advance("abc", 10, "validating", "")
	session, _ = ledger.Get("abc")
	assert.Equal(t, 100, session.ProgressPercent)
}

func TestFailRecordsError(t *testing.T) {
	ledger, _ := newTestLedger()
	require.NoError(t, ledger.Create("abc", "user-1", 0))

	ledger.Fail("abc", "Upload failed.", "provider status 500")
	session, ok := ledger.Get("abc")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, session.Status)
	assert.Equal(t, "failed", session.Stage)
	assert.Equal(t, "provider status 500", session.Error)
	assert.Nil(t, session.Result)
}

func TestGetEvictsExpiredLazily(t *testing.T) {
	ledger, clock := newTestLedger()
	require.NoError(t, ledger.Create("abc", "user-1", 0))
	ledger.Complete("abc", Result{VideoID: "v1"})

	// 31 minutes after the last update under a 30 minute TTL the session is
	// gone, terminal status notwithstanding.
	clock.Advance(31 * time.Minute)
	_, ok := ledger.Get("abc")
	assert.False(t, ok)
}

func TestAdvanceRefreshesTTL(t *testing.T) {
	ledger, clock := newTestLedger()
	require.NoError(t, ledger.Create("abc", "user-1", 0))

	clock.Advance(20 * time.Minute)
	ledger.Advance("abc", 22, "uploading_video", "")

	clock.Advance(20 * time.Minute)
	_, ok := ledger.Get("abc")
	assert.True(t, ok, "TTL should be measured from the last mutation")
}

func TestSweepEvictsOnlyExpired(t *testing.T) {
	ledger, clock := newTestLedger()
	require.NoError(t, ledger.Create("old", "user-1", 0))
	clock.Advance(testTTL + time.Minute)
	require.NoError(t, ledger.Create("fresh", "user-1", 0))

	assert.Equal(t, 1, ledger.Sweep())
	_, ok := ledger.Get("old")
	assert.False(t, ok)
	_, ok = ledger.Get("fresh")
	assert.True(t, ok)
}

func TestConcurrentSessionsDoNotInterfere(t *testing.T) {
	ledger, _ := newTestLedger()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		id := fmt.Sprintf("upload-%d", i)
		require.NoError(t, ledger.Create(id, "user-1", 0))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for percent := 1; percent <= 100; percent++ {
				ledger.Advance(id, percent, "uploading_video", "")
			}
			ledger.Complete(id, Result{VideoID: id})
		}()
	}
	wg.Wait()

	for i := 0; i < 32; i++ {
		session, ok := ledger.Get(fmt.Sprintf("upload-%d", i))
		require.True(t, ok)
		assert.Equal(t, StatusCompleted, session.Status)
		assert.Equal(t, 100, session.ProgressPercent)
	}
}
