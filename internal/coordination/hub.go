package coordination

import (
	"context"
	"sync"
	"time"

	"github.com/Iron-Ham/collabd/internal/conflict"
	"github.com/Iron-Ham/collabd/internal/errors"
	"github.com/Iron-Ham/collabd/internal/event"
	"github.com/Iron-Ham/collabd/internal/fieldlock"
	"github.com/Iron-Ham/collabd/internal/logging"
	"github.com/Iron-Ham/collabd/internal/presence"
	"github.com/Iron-Ham/collabd/internal/session"
	"github.com/Iron-Ham/collabd/internal/typing"
)

// Config holds required dependencies for creating a Hub.
type Config struct {
	Bus    *event.Bus
	Logger *logging.Logger
}

// Caller is the authenticated identity a command runs as. It is supplied by
// the transport boundary and never parsed from client payloads.
type Caller struct {
	UserID       string
	UserName     string
	Email        string
	Avatar       string
	ConnectionID string
}

// displayName falls back to the user id when no name was provided.
func (c Caller) displayName() string {
	if c.UserName != "" {
		return c.UserName
	}
	return c.UserID
}

// Hub wires the collaboration components together for one process.
// It owns the lifecycle of the background sweeper.
type Hub struct {
	mu      sync.RWMutex
	started bool
	cancel  context.CancelFunc

	// sweepDone is closed when the sweeper goroutine exits.
	sweepDone chan struct{}

	sweepInterval time.Duration

	bus    *event.Bus
	logger *logging.Logger

	// Components
	store    *session.Store
	registry *presence.Registry
	locks    *fieldlock.Manager
	engine   *conflict.Engine
	typing   *typing.Tracker
}

// NewHub creates a Hub with its own session store and components.
func NewHub(cfg Config, opts ...Option) (*Hub, error) {
	if cfg.Bus == nil {
		return nil, errors.New("coordination: Bus is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	hc := &hubConfig{sweepInterval: DefaultSweepInterval}
	for _, opt := range opts {
		opt(hc)
	}
	if hc.sweepInterval <= 0 {
		return nil, errors.New("coordination: sweep interval must be positive")
	}

	storeOpts := []session.Option{session.WithLogger(logger)}
	if hc.now != nil {
		storeOpts = append(storeOpts, session.WithClock(hc.now))
	}
	if hc.idleTimeout > 0 {
		storeOpts = append(storeOpts, session.WithIdleTimeout(hc.idleTimeout))
	}
	if hc.historyLimit > 0 {
		storeOpts = append(storeOpts, session.WithHistoryLimit(hc.historyLimit))
	}
	store := session.NewStore(storeOpts...)

	lockOpts := []fieldlock.Option{
		fieldlock.WithLogger(logger),
		fieldlock.WithGuard(requireMember("lock field")),
	}
	if hc.lockDuration > 0 {
		lockOpts = append(lockOpts, fieldlock.WithDuration(hc.lockDuration))
	}
	locks := fieldlock.NewManager(store, cfg.Bus, lockOpts...)

	writeGuard := requireMember("broadcast change")
	if hc.enforceLocks {
		member := writeGuard
		writeGuard = func(st *session.State, fieldName, userID string) error {
			if err := member(st, fieldName, userID); err != nil {
				return err
			}
			return locks.CheckWritable(st, fieldName, userID)
		}
	}
	engineOpts := []conflict.Option{
		conflict.WithLogger(logger),
		conflict.WithWriteGuard(writeGuard),
	}

	return &Hub{
		sweepInterval: hc.sweepInterval,
		bus:           cfg.Bus,
		logger:        logger,
		store:         store,
		registry:      presence.NewRegistry(store, cfg.Bus, presence.WithLogger(logger)),
		locks:         locks,
		engine:        conflict.New(store, cfg.Bus, engineOpts...),
		typing:        typing.NewTracker(store, cfg.Bus, typing.WithLogger(logger)),
	}, nil
}

// Bus returns the event bus notifications are published on.
func (h *Hub) Bus() *event.Bus { return h.bus }

// Store returns the session store.
func (h *Hub) Store() *session.Store { return h.store }

// Registry returns the presence registry.
func (h *Hub) Registry() *presence.Registry { return h.registry }

// Locks returns the field lock manager.
func (h *Hub) Locks() *fieldlock.Manager { return h.locks }

// Engine returns the change and conflict engine.
func (h *Hub) Engine() *conflict.Engine { return h.engine }

// Typing returns the typing tracker.
func (h *Hub) Typing() *typing.Tracker { return h.typing }

// SetLockDuration changes the lifetime of locks granted from now on.
func (h *Hub) SetLockDuration(d time.Duration) { h.locks.SetDuration(d) }

// Start launches the sweeper. Returns an error if the hub is already started.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return errors.New("coordination: hub already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.started = true
	h.sweepDone = make(chan struct{})

	go func() {
		defer close(h.sweepDone)
		h.sweepLoop(ctx)
	}()

	h.logger.Info("hub started", "sweep_interval", h.sweepInterval.String())
	return nil
}

// Stop stops the sweeper and waits for it to exit. It is idempotent.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return nil
	}

	h.cancel()
	<-h.sweepDone

	h.started = false
	h.logger.Info("hub stopped")
	return nil
}

// Running returns whether the hub is currently started.
func (h *Hub) Running() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.started
}

func (h *Hub) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(h.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Sweep()
		}
	}
}

// SweepResult reports one sweeper pass.
type SweepResult struct {
	LocksExpired    int
	SessionsEvicted []session.Key
}

// Sweep releases expired locks and evicts idle sessions. The sweeper calls
// it on every tick; it is exported for tests and manual maintenance.
func (h *Hub) Sweep() SweepResult {
	res := SweepResult{
		LocksExpired:    h.locks.SweepExpired(),
		SessionsEvicted: h.store.SweepIdle(),
	}
	for _, key := range res.SessionsEvicted {
		h.engine.Forget(key)
	}
	if res.LocksExpired > 0 || len(res.SessionsEvicted) > 0 {
		h.logger.Debug("sweep finished",
			"locks_expired", res.LocksExpired,
			"sessions_evicted", len(res.SessionsEvicted),
		)
	}
	return res
}
