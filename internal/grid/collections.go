package grid

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/gridmon/gridmon/internal/domain"
)

// ─── List ───────────────────────────────────────────────────────────────────

// List is a handle to a distributed list. All elements live on the owner of
// the list's partition.
type List struct {
	grid *Grid
	ref  domain.ObjectRef
}

// List returns a handle to the named list, creating it if needed.
func (g *Grid) List(name string) *List {
	return &List{grid: g, ref: g.Register(domain.KindList, name)}
}

// Ref returns the list's object reference.
func (l *List) Ref() domain.ObjectRef { return l.ref }

// Add appends v.
func (l *List) Add(v any) error {
	owner, err := l.grid.ownerOf(l.ref.Key())
	if err != nil {
		return err
	}
	owner.mu.Lock()
	defer owner.mu.Unlock()
	owner.lists[l.ref.Name] = append(owner.lists[l.ref.Name], v)
	return nil
}

// Len returns the number of elements.
func (l *List) Len() int {
	owner, err := l.grid.ownerOf(l.ref.Key())
	if err != nil {
		return 0
	}
	owner.mu.RLock()
	defer owner.mu.RUnlock()
	return len(owner.lists[l.ref.Name])
}

// ─── Set ────────────────────────────────────────────────────────────────────

// Set is a handle to a distributed set of comparable elements.
type Set struct {
	grid *Grid
	ref  domain.ObjectRef
}

// Set returns a handle to the named set, creating it if needed.
func (g *Grid) Set(name string) *Set {
	return &Set{grid: g, ref: g.Register(domain.KindSet, name)}
}

// Ref returns the set's object reference.
func (s *Set) Ref() domain.ObjectRef { return s.ref }

// Add inserts v and reports whether it was absent. v must be comparable.
func (s *Set) Add(v any) (added bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			added, err = false, errors.Newf("set %s: element %T is not comparable", s.ref.Name, v)
		}
	}()
	owner, err := s.grid.ownerOf(s.ref.Key())
	if err != nil {
		return false, err
	}
	owner.mu.Lock()
	defer owner.mu.Unlock()
	st, ok := owner.sets[s.ref.Name]
	if !ok {
		st = &setState{index: make(map[any]struct{})}
		owner.sets[s.ref.Name] = st
	}
	if _, exists := st.index[v]; exists {
		return false, nil
	}
	st.index[v] = struct{}{}
	st.items = append(st.items, v)
	return true, nil
}

// ─── Queue ──────────────────────────────────────────────────────────────────

// Queue is a handle to a distributed FIFO queue.
type Queue struct {
	grid *Grid
	ref  domain.ObjectRef
}

// Queue returns a handle to the named queue, creating it if needed.
func (g *Grid) Queue(name string) *Queue {
	q := &Queue{grid: g, ref: g.Register(domain.KindQueue, name)}
	if owner, err := g.ownerOf(q.ref.Key()); err == nil {
		owner.mu.Lock()
		owner.queue(name)
		owner.mu.Unlock()
	}
	return q
}

// queue returns the queue state for name. Caller holds m.mu.
func (m *member) queue(name string) *queueState {
	q, ok := m.queues[name]
	if !ok {
		q = &queueState{created: time.Now()}
		m.queues[name] = q
	}
	return q
}

// Ref returns the queue's object reference.
func (q *Queue) Ref() domain.ObjectRef { return q.ref }

// Offer appends v to the tail.
func (q *Queue) Offer(v any) error {
	owner, err := q.grid.ownerOf(q.ref.Key())
	if err != nil {
		return err
	}
	owner.mu.Lock()
	defer owner.mu.Unlock()
	st := owner.queue(q.ref.Name)
	st.items = append(st.items, queueItem{value: v, offeredAt: time.Now()})
	st.stats.Offers++
	st.stats.Events++
	return nil
}

// Poll removes and returns the head. ok is false when the queue is empty.
func (q *Queue) Poll() (v any, ok bool) {
	owner, err := q.grid.ownerOf(q.ref.Key())
	if err != nil {
		return nil, false
	}
	owner.mu.Lock()
	defer owner.mu.Unlock()
	st := owner.queue(q.ref.Name)
	if len(st.items) == 0 {
		st.stats.EmptyPolls++
		return nil, false
	}
	head := st.items[0]
	st.items = st.items[1:]
	st.stats.Polls++
	st.stats.Events++
	return head.value, true
}

// Size returns the number of queued elements.
func (q *Queue) Size() int {
	owner, err := q.grid.ownerOf(q.ref.Key())
	if err != nil {
		return 0
	}
	owner.mu.Lock()
	defer owner.mu.Unlock()
	st := owner.queue(q.ref.Name)
	st.stats.OtherOperations++
	return len(st.items)
}

// ─── Map ────────────────────────────────────────────────────────────────────

// Map is a handle to a distributed map. Each entry lives on the owner of
// its key's partition.
type Map struct {
	grid *Grid
	ref  domain.ObjectRef
}

// Map returns a handle to the named map, creating it if needed.
func (g *Grid) Map(name string) *Map {
	return &Map{grid: g, ref: g.Register(domain.KindMap, name)}
}

// Ref returns the map's object reference.
func (mp *Map) Ref() domain.ObjectRef { return mp.ref }

// Put stores value under key. key must be comparable.
func (mp *Map) Put(key, value any) error {
	owner, err := mp.grid.ownerOf(entryKey(key))
	if err != nil {
		return err
	}
	owner.mu.Lock()
	defer owner.mu.Unlock()
	entries, ok := owner.maps[mp.ref.Name]
	if !ok {
		entries = make(map[any]any)
		owner.maps[mp.ref.Name] = entries
	}
	entries[key] = value
	return nil
}

// Get returns the value stored under key.
func (mp *Map) Get(key any) (any, bool) {
	owner, err := mp.grid.ownerOf(entryKey(key))
	if err != nil {
		return nil, false
	}
	owner.mu.RLock()
	defer owner.mu.RUnlock()
	v, ok := owner.maps[mp.ref.Name][key]
	return v, ok
}

// QueryEntries implements query.Runtime. Every member filters the entries
// it owns concurrently; results are concatenated in no particular order.
// Any unreachable member fails the whole query.
func (g *Grid) QueryEntries(ctx context.Context, mapName string, filter func(domain.Entry) bool) ([]domain.Entry, error) {
	members := g.memberList()
	results := make([][]domain.Entry, len(members))

	eg, ctx := errgroup.WithContext(ctx)
	for i, m := range members {
		eg.Go(func() error {
			entries, err := m.queryLocalEntries(ctx, mapName, filter)
			if err != nil {
				return err
			}
			results[i] = entries
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, errors.Wrapf(err, "query map %q", mapName)
	}

	out := make([]domain.Entry, 0)
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// ─── Topic ──────────────────────────────────────────────────────────────────

// Topic is a handle to a distributed pub/sub topic. Every member has a
// local listener, so each published message is received once per member.
type Topic struct {
	grid *Grid
	ref  domain.ObjectRef
}

// Topic returns a handle to the named topic, creating it if needed.
func (g *Grid) Topic(name string) *Topic {
	t := &Topic{grid: g, ref: g.Register(domain.KindTopic, name)}
	now := time.Now()
	for _, m := range g.memberList() {
		m.mu.Lock()
		if _, ok := m.topics[name]; !ok {
			m.topics[name] = &domain.TopicStats{CreationTime: now}
		}
		m.mu.Unlock()
	}
	return t
}

// Ref returns the topic's object reference.
func (t *Topic) Ref() domain.ObjectRef { return t.ref }

// Publish sends msg from the member at index from (modulo member count).
func (t *Topic) Publish(from int, msg any) error {
	members := t.grid.memberList()
	if len(members) == 0 {
		return domain.ErrNoMembers
	}
	if from < 0 {
		from = -from
	}
	publisher := members[from%len(members)]
	if publisher.isDown() {
		return errors.Wrapf(domain.ErrMemberDown, "publish on %s", publisher.info.Address)
	}

	for _, m := range members {
		m.mu.Lock()
		s, ok := m.topics[t.ref.Name]
		if !ok {
			s = &domain.TopicStats{CreationTime: time.Now()}
			m.topics[t.ref.Name] = s
		}
		if m == publisher {
			s.Publishes++
		}
		if m.info.State == domain.MemberAlive {
			s.Receives++
		}
		m.mu.Unlock()
	}
	return nil
}
