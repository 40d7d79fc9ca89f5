package coordination

import "time"

// DefaultSweepInterval is how often the sweeper looks for expired locks and
// idle sessions.
const DefaultSweepInterval = 30 * time.Second

// hubConfig holds optional configuration for a Hub.
type hubConfig struct {
	lockDuration  time.Duration
	idleTimeout   time.Duration
	sweepInterval time.Duration
	historyLimit  int
	enforceLocks  bool
	now           func() time.Time
}

// Option configures a Hub.
type Option func(*hubConfig)

// WithLockDuration sets how long a field lock lives.
// A value of 0 uses the lock manager default.
func WithLockDuration(d time.Duration) Option {
	return func(c *hubConfig) { c.lockDuration = d }
}

// WithIdleTimeout sets how long an empty session is kept.
// A value of 0 uses the session store default.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *hubConfig) { c.idleTimeout = d }
}

// WithSweepInterval sets the sweeper tick.
func WithSweepInterval(d time.Duration) Option {
	return func(c *hubConfig) { c.sweepInterval = d }
}

// WithHistoryLimit caps each session's change log.
// A value of 0 uses the session store default.
func WithHistoryLimit(n int) Option {
	return func(c *hubConfig) { c.historyLimit = n }
}

// WithLockEnforcement rejects changes to fields locked by another user.
// Locks are advisory when this is off.
func WithLockEnforcement(on bool) Option {
	return func(c *hubConfig) { c.enforceLocks = on }
}

// WithClock sets the time source shared by every component.
func WithClock(now func() time.Time) Option {
	return func(c *hubConfig) { c.now = now }
}
