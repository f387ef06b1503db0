// Package health runs periodic checks over the agent's collaborators: the
// history store and the reachability of every cluster member.
package health

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/gridmon/gridmon/internal/dispatch"
	"github.com/gridmon/gridmon/internal/domain"
)

// Check defines a single health check with an optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs periodic health checks.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
}

// NewChecker creates a checker running checks every interval.
func NewChecker(interval time.Duration, checks ...Check) *Checker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Checker{interval: interval, checks: checks}
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.RunOnce(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce runs every check once and records the results.
func (c *Checker) RunOnce(ctx context.Context) {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{Name: check.Name, CheckedAt: time.Now()}
		if err := check.CheckFn(ctx); err != nil {
			s.Error = err.Error()
			if check.RecoverFn != nil {
				_ = check.RecoverFn(ctx)
			}
		} else {
			s.Healthy = true
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

// Pinger is satisfied by the history store.
type Pinger interface {
	Ping() error
}

// HistoryCheck pings the history store.
func HistoryCheck(db Pinger) Check {
	return Check{
		Name:    "history",
		CheckFn: func(ctx context.Context) error { return db.Ping() },
	}
}

// MembersCheck fails when the runtime has no members or any of them is
// marked unreachable.
func MembersCheck(rt dispatch.Runtime) Check {
	return Check{
		Name: "members",
		CheckFn: func(ctx context.Context) error {
			members := rt.Members()
			if len(members) == 0 {
				return domain.ErrNoMembers
			}
			var down []string
			for _, m := range members {
				if !m.IsReachable() {
					down = append(down, m.Address)
				}
			}
			if len(down) > 0 {
				return errors.Newf("unreachable: %s", strings.Join(down, ", "))
			}
			return nil
		},
	}
}

// DispatchCheck sends a no-op task to every member through d and fails if
// any member does not answer within timeout.
func DispatchCheck(d *dispatch.Dispatcher, timeout time.Duration) Check {
	instance := d.Runtime().Name()
	return Check{
		Name: "dispatch",
		CheckFn: func(ctx context.Context) error {
			futures, err := d.DispatchToAll(dispatch.ObjectTask{
				Instance: instance,
				Object:   "health",
				Run: func(ctx context.Context, inst domain.Instance) (any, error) {
					return inst.Name(), nil
				},
			})
			if err != nil {
				return err
			}
			var errs []string
			for _, member := range d.Order(futures) {
				if _, err := dispatch.Await(ctx, member, futures[member], timeout); err != nil {
					errs = append(errs, err.Error())
				}
			}
			if len(errs) > 0 {
				return errors.Newf("%d of %d members failed: %s", len(errs), len(futures), strings.Join(errs, "; "))
			}
			return nil
		},
	}
}
