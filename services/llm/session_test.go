package llm

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestSessionGuard_ExpiresAtDuration(t *testing.T) {
	clock := newFakeClock()
	expired := 0
	g := NewSessionGuard(30*time.Minute, testLogger()).WithClock(clock.Now)
	g.SetOnExpire(func() { expired++ })

	g.Arm()
	assert.Equal(t, 30*time.Minute, g.Remaining())

	clock.Advance(29 * time.Minute)
	g.expireIfDue()
	assert.True(t, g.Active())
	assert.Equal(t, 0, expired)

	clock.Advance(time.Minute)
	g.expireIfDue()
	assert.False(t, g.Active())
	assert.Equal(t, 1, expired)

	// Expiry fires once per armed session.
	g.expireIfDue()
	assert.Equal(t, 1, expired)
}

func TestSessionGuard_ExtendPushesExpiryForward(t *testing.T) {
	clock := newFakeClock()
	g := NewSessionGuard(30*time.Minute, testLogger()).WithClock(clock.Now)
	g.SetOnExpire(func() {})
	g.Arm()

	clock.Advance(20 * time.Minute)
	require.True(t, g.Extend(30*time.Minute))

	// Expiry is now minute 50: still active at 49, expired at 50.
	clock.Advance(29 * time.Minute)
	g.expireIfDue()
	assert.True(t, g.Active())
	assert.Equal(t, time.Minute, g.Remaining())

	clock.Advance(time.Minute)
	g.expireIfDue()
	assert.False(t, g.Active())

	status := g.Status()
	assert.Equal(t, 1, status.ExtensionsGranted)
}

func TestSessionGuard_ExtendWhenInactiveFails(t *testing.T) {
	g := NewSessionGuard(30*time.Minute, testLogger())
	assert.False(t, g.Extend(10*time.Minute))
}

func TestSessionGuard_PublishesRemainingSeconds(t *testing.T) {
	clock := newFakeClock()
	g := NewSessionGuard(30*time.Minute, testLogger()).WithClock(clock.Now)
	g.SetOnExpire(func() {})

	var published []float64
	g.SetRemainingGauge(func(s float64) { published = append(published, s) })
	require.Equal(t, []float64{0}, published) // registration publishes the idle state

	g.Arm()
	assert.Equal(t, 1800.0, published[len(published)-1])

	clock.Advance(20 * time.Minute)
	g.Extend(30 * time.Minute)
	assert.Equal(t, 1800.0, published[len(published)-1])

	clock.Advance(31 * time.Minute)
	g.expireIfDue()
	assert.False(t, g.Active())
	assert.Equal(t, 0.0, published[len(published)-1])
}

func TestSessionGuard_ShutdownFiresCallbackImmediately(t *testing.T) {
	clock := newFakeClock()
	expired := 0
	g := NewSessionGuard(30*time.Minute, testLogger()).WithClock(clock.Now)
	g.SetOnExpire(func() { expired++ })
	g.Arm()

	g.Shutdown()
	assert.False(t, g.Active())
	assert.Equal(t, 1, expired)
	assert.Equal(t, time.Duration(0), g.Remaining())

	// Shutdown of an inactive guard is a no-op.
	g.Shutdown()
	assert.Equal(t, 1, expired)
}
