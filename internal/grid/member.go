package grid

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"

	"github.com/gridmon/gridmon/internal/dispatch"
	"github.com/gridmon/gridmon/internal/domain"
)

// member is one node of the grid: its identity, the data it owns, its
// local statistics and a worker pool per named executor.
type member struct {
	grid  *Grid
	index int

	mu    sync.RWMutex
	info  domain.Member
	pools map[string]*ants.Pool

	lists     map[string][]any
	sets      map[string]*setState
	queues    map[string]*queueState
	maps      map[string]map[any]any
	topics    map[string]*domain.TopicStats
	executors map[string]*domain.ExecutorStats
}

type setState struct {
	items []any
	index map[any]struct{}
}

type queueItem struct {
	value     any
	offeredAt time.Time
}

type queueState struct {
	items   []queueItem
	stats   domain.QueueStats
	created time.Time
}

func newMember(g *Grid, index int, info domain.Member) *member {
	return &member{
		grid:      g,
		index:     index,
		info:      info,
		pools:     make(map[string]*ants.Pool),
		lists:     make(map[string][]any),
		sets:      make(map[string]*setState),
		queues:    make(map[string]*queueState),
		maps:      make(map[string]map[any]any),
		topics:    make(map[string]*domain.TopicStats),
		executors: make(map[string]*domain.ExecutorStats),
	}
}

func (m *member) snapshot() domain.Member {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.info
}

func (m *member) isDown() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.info.State != domain.MemberAlive
}

func (m *member) setDown(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if down {
		m.info.State = domain.MemberUnreachable
	} else {
		m.info.State = domain.MemberAlive
	}
}

func (m *member) release() {
	m.mu.Lock()
	pools := m.pools
	m.pools = make(map[string]*ants.Pool)
	m.mu.Unlock()
	for _, p := range pools {
		p.Release()
	}
}

// ─── Task Execution ─────────────────────────────────────────────────────────

// pool returns the worker pool for executor name, creating it on first use.
func (m *member) pool(name string) (*ants.Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pools[name]; ok {
		return p, nil
	}
	p, err := ants.NewPool(m.grid.config.WorkersPerMember, ants.WithNonblocking(true))
	if err != nil {
		return nil, errors.Wrapf(err, "create pool %q on %s", name, m.info.Address)
	}
	m.pools[name] = p
	return p, nil
}

// submit queues task on this member's pool for executor name and returns
// without waiting. An unreachable member yields an already-failed future.
func (m *member) submit(executor string, task dispatch.Task) (*dispatch.Future, error) {
	if m.isDown() {
		return dispatch.Resolved(nil, errors.Wrapf(domain.ErrMemberDown, "member %s", m.info.Address)), nil
	}
	p, err := m.pool(executor)
	if err != nil {
		return nil, err
	}

	f := dispatch.NewFuture()
	queued := time.Now()
	m.executorStats(executor, func(s *domain.ExecutorStats) { s.Pending++ })

	err = p.Submit(func() {
		started := time.Now()
		m.executorStats(executor, func(s *domain.ExecutorStats) {
			s.Pending--
			s.Started++
			s.TotalStartLatency += started.Sub(queued)
		})

		v, err := m.run(task)

		m.executorStats(executor, func(s *domain.ExecutorStats) {
			s.TotalExecutionTime += time.Since(started)
			if err != nil {
				s.Failed++
			} else {
				s.Completed++
			}
		})
		f.Complete(v, err)
	})
	if err != nil {
		m.executorStats(executor, func(s *domain.ExecutorStats) { s.Pending-- })
		return nil, errors.Wrapf(domain.ErrTaskRejected, "%s on %s: %v", executor, m.info.Address, err)
	}
	return f, nil
}

func (m *member) run(task dispatch.Task) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("task %s panicked on %s: %v", task.Target(), m.info.Address, r)
		}
	}()
	if m.isDown() {
		return nil, errors.Wrapf(domain.ErrMemberDown, "member %s", m.info.Address)
	}
	return task.Call(m.grid.ctx, m)
}

func (m *member) executorStats(name string, update func(*domain.ExecutorStats)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.executors[name]
	if !ok {
		s = &domain.ExecutorStats{}
		m.executors[name] = s
	}
	update(s)
}

// ─── domain.Node ────────────────────────────────────────────────────────────

// Member implements domain.Node.
func (m *member) Member() domain.Member { return m.snapshot() }

// Instance implements domain.Node.
func (m *member) Instance(name string) (domain.Instance, error) {
	if name != m.grid.name {
		return nil, errors.Wrapf(domain.ErrInstanceUnknown, "%q on %s", name, m.info.Address)
	}
	return localInstance{m: m}, nil
}

// localInstance is the member-local view of the grid instance.
type localInstance struct {
	m *member
}

func (li localInstance) Name() string { return li.m.grid.name }

func (li localInstance) LocalExecutorStats(name string) (domain.ExecutorStats, error) {
	li.m.mu.RLock()
	defer li.m.mu.RUnlock()
	if s, ok := li.m.executors[name]; ok {
		return *s, nil
	}
	return domain.ExecutorStats{}, nil
}

func (li localInstance) LocalQueueStats(name string) (domain.QueueStats, error) {
	var out domain.QueueStats

	li.m.mu.RLock()
	if q, ok := li.m.queues[name]; ok {
		out = q.stats
		out.CreationTime = q.created
		out.OwnedItemCount = int64(len(q.items))
		now := time.Now()
		var total time.Duration
		for i, it := range q.items {
			age := now.Sub(it.offeredAt)
			if i == 0 || age < out.MinAge {
				out.MinAge = age
			}
			if age > out.MaxAge {
				out.MaxAge = age
			}
			total += age
		}
		if len(q.items) > 0 {
			out.AverageAge = total / time.Duration(len(q.items))
		}
	}
	li.m.mu.RUnlock()

	if backup := li.m.grid.backupOf(name); backup == li.m {
		if owner, err := li.m.grid.ownerOf(name); err == nil && owner != li.m {
			owner.mu.RLock()
			if q, ok := owner.queues[name]; ok {
				out.BackupItemCount = int64(len(q.items))
			}
			owner.mu.RUnlock()
		}
	}
	return out, nil
}

func (li localInstance) LocalTopicStats(name string) (domain.TopicStats, error) {
	li.m.mu.RLock()
	defer li.m.mu.RUnlock()
	if s, ok := li.m.topics[name]; ok {
		return *s, nil
	}
	return domain.TopicStats{}, nil
}

func (li localInstance) LocalItems(kind domain.ObjectKind, name string) ([]any, error) {
	li.m.mu.RLock()
	defer li.m.mu.RUnlock()
	switch kind {
	case domain.KindList:
		return append([]any(nil), li.m.lists[name]...), nil
	case domain.KindSet:
		if s, ok := li.m.sets[name]; ok {
			return append([]any(nil), s.items...), nil
		}
		return nil, nil
	case domain.KindQueue:
		q, ok := li.m.queues[name]
		if !ok {
			return nil, nil
		}
		out := make([]any, len(q.items))
		for i, it := range q.items {
			out[i] = it.value
		}
		return out, nil
	default:
		return nil, errors.Wrapf(domain.ErrUnsupportedKind, "local items of %s", kind)
	}
}

// queryLocalEntries filters the entries of mapName held by this member.
func (m *member) queryLocalEntries(ctx context.Context, mapName string, filter func(domain.Entry) bool) ([]domain.Entry, error) {
	if m.isDown() {
		return nil, errors.Wrapf(domain.ErrMemberDown, "member %s", m.info.Address)
	}
	m.mu.RLock()
	snapshot := make([]domain.Entry, 0, len(m.maps[mapName]))
	for k, v := range m.maps[mapName] {
		snapshot = append(snapshot, domain.Entry{Key: k, Value: v})
	}
	m.mu.RUnlock()

	out := make([]domain.Entry, 0)
	for _, e := range snapshot {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if filter(e) {
			out = append(out, e)
		}
	}
	return out, nil
}
