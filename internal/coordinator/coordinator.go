// Package coordinator wires the session store, coordination context, and
// tool surface into the long-lived loop that drives heartbeat-style
// maintenance (stale-agent checks, expired-permission sweeps) alongside the
// coordinator agent's own tool calls.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/adamavenir/coord/internal/clog"
	"github.com/adamavenir/coord/internal/coordtool"
)

// Config controls the maintenance loop's cadence.
type Config struct {
	// PollInterval is how often the maintenance sweep runs.
	PollInterval time.Duration
	// StaleMinutes feeds check_agent_health during each sweep.
	StaleMinutes int
	// ExpireAfterHours feeds clear_expired_permissions during each sweep.
	ExpireAfterHours float64
}

// DefaultConfig returns sane defaults for an interactive coordinator
// session.
func DefaultConfig() Config {
	return Config{
		PollInterval:     30 * time.Second,
		StaleMinutes:     10,
		ExpireAfterHours: 24,
	}
}

// Coordinator drives the maintenance loop. It does not itself make
// tool-call decisions — that remains the coordinator agent's job via
// coordtool.Toolset — it only sweeps state that has no natural trigger on a
// timer (staleness, permission expiry), since the underlying store's API
// is synchronous and expects a caller to invoke it periodically.
type Coordinator struct {
	mu      sync.RWMutex
	tools   *coordtool.Toolset
	cfg     Config
	log     *clog.Logger
	stopCh  chan struct{}
	stopped bool
}

// New constructs a Coordinator over an already-wired Toolset.
func New(tools *coordtool.Toolset, cfg Config) *Coordinator {
	return &Coordinator{
		tools:  tools,
		cfg:    cfg,
		log:    clog.Sub("coordinator"),
		stopCh: make(chan struct{}),
	}
}

// Run blocks, sweeping on cfg.PollInterval until ctx is canceled or Stop is
// called.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return nil
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

// Stop signals Run to return without canceling the parent context.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	close(c.stopCh)
}

func (c *Coordinator) sweep(ctx context.Context) {
	for _, triage := range c.tools.CheckAgentHealth(c.cfg.StaleMinutes) {
		if triage.Stale || triage.NeverSeen {
			c.log.Printf("agent %s is stale (state=%s, never_seen=%v)", triage.AgentID, triage.State, triage.NeverSeen)
		}
	}

	if _, err := c.tools.ClearExpiredPermissions(c.cfg.ExpireAfterHours); err != nil {
		c.log.Printf("clear_expired_permissions sweep failed: %v", err)
	}
}
