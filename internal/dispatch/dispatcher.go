// Package dispatch decides where a computation runs. It sends a task either
// to the single member that owns a partition key (point-target) or to every
// member (fan-out), and hands back one Future per target without waiting for
// the work itself.
package dispatch

import (
	"log/slog"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/gridmon/gridmon/internal/domain"
	"github.com/gridmon/gridmon/internal/infra/metrics"
)

// ExecutionService is a runtime's named remote-execution service.
type ExecutionService interface {
	// SubmitToKeyOwner runs task on the member owning the partition of key.
	SubmitToKeyOwner(task Task, key string) (*Future, error)

	// SubmitToAllMembers runs task on every member known at call time.
	SubmitToAllMembers(task Task) (map[domain.Member]*Future, error)
}

// Runtime is the handle to one cluster runtime instance.
type Runtime interface {
	// Name is the runtime instance name tasks use to re-resolve objects.
	Name() string

	// Members enumerates the current cluster members.
	Members() []domain.Member

	// ExecutorService returns the named execution service.
	ExecutorService(name string) ExecutionService
}

// Dispatcher sends tasks through one named execution service.
// It holds no per-call state and is safe for concurrent use.
type Dispatcher struct {
	runtime  Runtime
	executor ExecutionService
	name     string
	logger   *slog.Logger
}

// New binds a dispatcher to the execution service called executorName.
func New(rt Runtime, executorName string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		runtime:  rt,
		executor: rt.ExecutorService(executorName),
		name:     executorName,
		logger:   logger.With("component", "dispatch", "executor", executorName),
	}
}

// Runtime returns the runtime handle the dispatcher was built with.
func (d *Dispatcher) Runtime() Runtime {
	return d.runtime
}

// DispatchToOwner sends task to the member owning ref's partition key.
func (d *Dispatcher) DispatchToOwner(ref domain.ObjectRef, task Task) (*Future, error) {
	id := uuid.NewString()

	f, err := d.executor.SubmitToKeyOwner(task, ref.Key())
	if err == nil && f == nil {
		err = errors.Wrap(domain.ErrTaskRejected, "no future returned")
	}
	if err != nil {
		metrics.DispatchTotal.WithLabelValues("owner", "rejected").Inc()
		d.logger.Warn("dispatch to owner failed",
			"invocation", id, "object", ref.String(), "key", ref.Key(), "error", err)
		return nil, &DispatchError{Object: ref.String(), Cause: err}
	}

	metrics.DispatchTotal.WithLabelValues("owner", "ok").Inc()
	d.logger.Debug("dispatched to owner", "invocation", id, "object", ref.String(), "task", task.Target())
	return f, nil
}

// DispatchToAll sends task to every member. The returned map is keyed by
// member address and reflects membership at dispatch time only.
func (d *Dispatcher) DispatchToAll(task Task) (map[string]*Future, error) {
	id := uuid.NewString()

	submitted, err := d.executor.SubmitToAllMembers(task)
	if err == nil && len(submitted) == 0 {
		err = domain.ErrNoMembers
	}
	if err != nil {
		metrics.DispatchTotal.WithLabelValues("all", "rejected").Inc()
		d.logger.Warn("dispatch to all members failed",
			"invocation", id, "task", task.Target(), "error", err)
		return nil, &DispatchError{Object: task.Target(), Cause: err}
	}

	futures := make(map[string]*Future, len(submitted))
	for member, f := range submitted {
		if f == nil {
			f = Resolved(nil, errors.Wrapf(domain.ErrTaskRejected, "member %s", member.Address))
		}
		futures[member.Address] = f
	}

	metrics.DispatchTotal.WithLabelValues("all", "ok").Inc()
	metrics.MembersKnown.Set(float64(len(futures)))
	d.logger.Debug("dispatched to all members",
		"invocation", id, "task", task.Target(), "members", len(futures))
	return futures, nil
}

// Order returns the addresses of futures in cluster join order. Addresses
// no longer in the member list come last, sorted.
func (d *Dispatcher) Order(futures map[string]*Future) []string {
	out := make([]string, 0, len(futures))
	seen := make(map[string]bool, len(futures))
	for _, m := range d.runtime.Members() {
		if _, ok := futures[m.Address]; ok && !seen[m.Address] {
			out = append(out, m.Address)
			seen[m.Address] = true
		}
	}
	var rest []string
	for addr := range futures {
		if !seen[addr] {
			rest = append(rest, addr)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
