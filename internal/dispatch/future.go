package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/gridmon/gridmon/internal/domain"
)

// Future is the pending result of a task submitted to one member.
// It resolves exactly once; later completions are ignored.
type Future struct {
	done  chan struct{}
	once  sync.Once
	value any
	err   error
}

// NewFuture returns an unresolved future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a future that is already complete.
func Resolved(value any, err error) *Future {
	f := NewFuture()
	f.Complete(value, err)
	return f
}

// Complete resolves the future. Returns false if it was already resolved.
func (f *Future) Complete(value any, err error) bool {
	completed := false
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
		completed = true
	})
	return completed
}

// Done is closed when the future resolves.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Get blocks until the future resolves or ctx is done.
func (f *Future) Get(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Await waits for one member's future with an upper bound. A zero timeout
// waits as long as ctx allows. Every failure is reported as a
// *MemberFailure; only expiry of timeout itself counts as ErrMemberTimeout.
func Await(ctx context.Context, member string, f *Future, timeout time.Duration) (any, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-f.done:
		if f.err != nil {
			return nil, &MemberFailure{Member: member, Cause: f.err}
		}
		return f.value, nil
	case <-expired:
		return nil, &MemberFailure{Member: member, Cause: errors.Wrapf(domain.ErrMemberTimeout, "waited %s", timeout)}
	case <-ctx.Done():
		return nil, &MemberFailure{Member: member, Cause: ctx.Err()}
	}
}
