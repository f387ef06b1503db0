package dispatch

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/gridmon/gridmon/internal/domain"
)

// DispatchError means a task could not be sent at all: no owner could be
// resolved, there were no members, or the execution service refused it.
type DispatchError struct {
	Object string
	Cause  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch for %s failed: %v", e.Object, e.Cause)
}

func (e *DispatchError) Unwrap() error { return e.Cause }

// MemberFailure means one member's task errored, timed out, or the caller
// stopped waiting for it.
type MemberFailure struct {
	Member string
	Cause  error
}

func (e *MemberFailure) Error() string {
	return fmt.Sprintf("member %s: %v", e.Member, e.Cause)
}

func (e *MemberFailure) Unwrap() error { return e.Cause }

// Reason classifies a member failure for metrics.
func (e *MemberFailure) Reason() string {
	switch {
	case errors.Is(e.Cause, domain.ErrMemberTimeout):
		return "timeout"
	case errors.Is(e.Cause, domain.ErrMemberDown):
		return "down"
	case errors.Is(e.Cause, context.Canceled):
		return "cancelled"
	case errors.Is(e.Cause, context.DeadlineExceeded):
		return "deadline"
	default:
		return "task_error"
	}
}
