package grid

import (
	"github.com/cockroachdb/errors"

	"github.com/gridmon/gridmon/internal/dispatch"
	"github.com/gridmon/gridmon/internal/domain"
)

// executorService is a named execution service spanning every member.
type executorService struct {
	grid *Grid
	name string
}

// SubmitToKeyOwner implements dispatch.ExecutionService.
func (e *executorService) SubmitToKeyOwner(task dispatch.Task, key string) (*dispatch.Future, error) {
	if e.grid.isClosed() {
		return nil, errors.Wrap(domain.ErrTaskRejected, "grid is closed")
	}
	m, err := e.grid.ownerOf(key)
	if err != nil {
		return nil, err
	}
	return m.submit(e.name, task)
}

// SubmitToAllMembers implements dispatch.ExecutionService. The member set
// is captured once; members joining later are not included.
//
// Submission is not atomic. If a member's pool rejects the task, the call
// fails, but members earlier in join order have already queued it: those
// copies still run, count in their executor statistics and have their
// results discarded.
func (e *executorService) SubmitToAllMembers(task dispatch.Task) (map[domain.Member]*dispatch.Future, error) {
	if e.grid.isClosed() {
		return nil, errors.Wrap(domain.ErrTaskRejected, "grid is closed")
	}
	members := e.grid.memberList()
	out := make(map[domain.Member]*dispatch.Future, len(members))
	for _, m := range members {
		f, err := m.submit(e.name, task)
		if err != nil {
			return nil, errors.Wrapf(err, "submit to %s", m.info.Address)
		}
		out[m.snapshot()] = f
	}
	return out, nil
}

func (g *Grid) isClosed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.closed
}
