package llm

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSessionDuration is the reference countdown for metered providers.
const DefaultSessionDuration = 30 * time.Minute

// SessionStatus is the observable state of the guard.
type SessionStatus struct {
	Active            bool          `json:"active"`
	ExpiresAt         time.Time     `json:"expires_at,omitempty"`
	Remaining         time.Duration `json:"-"`
	RemainingSeconds  int64         `json:"remaining_seconds"`
	ExtensionsGranted int           `json:"extensions_granted"`
}

// SessionGuard bounds metered-provider spend with a countdown timer.
//
// The guard is armed when a metered provider is enabled. On expiry it
// fires the onExpire callback exactly once, which disables all metered
// providers; future orchestration rounds mark them skipped. Extend
// pushes the expiry forward from the current time; Shutdown disables
// immediately regardless of the timer. Non-metered providers are never
// governed by the guard.
//
// All methods are safe for concurrent use. The clock is injectable for
// tests.
type SessionGuard struct {
	mu             sync.Mutex
	now            func() time.Time
	duration       time.Duration
	expiresAt      time.Time
	active         bool
	extensions     int
	onExpire       func()
	remainingGauge func(seconds float64)
	logger         *slog.Logger
}

// NewSessionGuard creates an unarmed guard with the given countdown
// duration. A non-positive duration falls back to DefaultSessionDuration.
func NewSessionGuard(duration time.Duration, logger *slog.Logger) *SessionGuard {
	if duration <= 0 {
		duration = DefaultSessionDuration
	}
	return &SessionGuard{
		now:      time.Now,
		duration: duration,
		logger:   logger,
	}
}

// WithClock replaces the guard's clock. Test use only.
func (g *SessionGuard) WithClock(now func() time.Time) *SessionGuard {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
	return g
}

// SetOnExpire registers the callback fired when the countdown lapses or
// Shutdown is called. Must be set before Arm.
func (g *SessionGuard) SetOnExpire(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onExpire = fn
}

// SetRemainingGauge registers a sink for the remaining session seconds,
// typically a Prometheus gauge's Set. Published on every state change
// and on each Run tick; zero while no session is active.
func (g *SessionGuard) SetRemainingGauge(fn func(seconds float64)) {
	g.mu.Lock()
	g.remainingGauge = fn
	g.mu.Unlock()
	g.publishRemaining()
}

func (g *SessionGuard) publishRemaining() {
	g.mu.Lock()
	fn := g.remainingGauge
	g.mu.Unlock()
	if fn != nil {
		fn(g.Remaining().Seconds())
	}
}

// Arm starts the countdown. Re-arming while active restarts it.
func (g *SessionGuard) Arm() {
	g.mu.Lock()
	g.active = true
	g.extensions = 0
	g.expiresAt = g.now().Add(g.duration)
	expiresAt := g.expiresAt
	g.mu.Unlock()

	g.logger.Info("metered session armed",
		"duration", g.duration.String(),
		"expires_at", expiresAt.Format(time.RFC3339),
	)
	g.publishRemaining()
}

// Extend pushes expiry to now + d and counts the extension. Returns
// false when the guard is not active.
func (g *SessionGuard) Extend(d time.Duration) bool {
	g.mu.Lock()
	if !g.active {
		g.mu.Unlock()
		return false
	}
	g.expiresAt = g.now().Add(d)
	g.extensions++
	expiresAt := g.expiresAt
	count := g.extensions
	g.mu.Unlock()

	g.logger.Info("metered session extended",
		"extension", d.String(),
		"expires_at", expiresAt.Format(time.RFC3339),
		"extensions_granted", count,
	)
	g.publishRemaining()
	return true
}

// Shutdown deactivates the guard immediately and fires the expiry
// callback. Safe to call when already inactive.
func (g *SessionGuard) Shutdown() {
	g.mu.Lock()
	wasActive := g.active
	g.active = false
	fn := g.onExpire
	g.mu.Unlock()

	if wasActive {
		g.logger.Info("metered session shut down by operator")
		if fn != nil {
			fn()
		}
	}
	g.publishRemaining()
}

// Active reports whether the countdown is running.
func (g *SessionGuard) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Remaining returns the time left before expiry, or zero when inactive.
func (g *SessionGuard) Remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.active {
		return 0
	}
	remaining := g.expiresAt.Sub(g.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Status returns a snapshot for the administration surface.
func (g *SessionGuard) Status() SessionStatus {
	g.mu.Lock()
	defer g.mu.Unlock()

	status := SessionStatus{
		Active:            g.active,
		ExtensionsGranted: g.extensions,
	}
	if g.active {
		status.ExpiresAt = g.expiresAt
		remaining := g.expiresAt.Sub(g.now())
		if remaining < 0 {
			remaining = 0
		}
		status.Remaining = remaining
		status.RemainingSeconds = int64(remaining.Seconds())
	}
	return status
}

// Run polls for expiry until ctx is cancelled. One guard goroutine per
// process is enough; expiry fires at most once per armed session.
func (g *SessionGuard) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			g.expireIfDue()
			g.publishRemaining()
		}
	}
}

func (g *SessionGuard) expireIfDue() {
	g.mu.Lock()
	if !g.active || g.now().Before(g.expiresAt) {
		g.mu.Unlock()
		return
	}
	g.active = false
	fn := g.onExpire
	g.mu.Unlock()

	g.logger.Warn("metered session expired, disabling metered providers")
	if fn != nil {
		fn()
	}
	g.publishRemaining()
}
