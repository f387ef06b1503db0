package stats

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridmon/gridmon/internal/dispatch"
	"github.com/gridmon/gridmon/internal/domain"
	"github.com/gridmon/gridmon/internal/grid"
)

// ─── Fakes ──────────────────────────────────────────────────────────────────

type reply struct {
	value any
	err   error
}

// scriptedRuntime answers every fan-out with fixed per-member replies.
type scriptedRuntime struct {
	mu      sync.Mutex
	members []domain.Member
	replies map[string]reply
	reject  error
	hang    map[string]bool
}

func newScriptedRuntime(addrs ...string) *scriptedRuntime {
	rt := &scriptedRuntime{replies: make(map[string]reply), hang: make(map[string]bool)}
	for _, a := range addrs {
		rt.members = append(rt.members, domain.Member{Address: a, State: domain.MemberAlive})
	}
	return rt
}

func (r *scriptedRuntime) Name() string { return "grid" }
func (r *scriptedRuntime) Members() []domain.Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Member(nil), r.members...)
}
func (r *scriptedRuntime) ExecutorService(string) dispatch.ExecutionService { return r }

func (r *scriptedRuntime) SubmitToKeyOwner(dispatch.Task, string) (*dispatch.Future, error) {
	return nil, errors.New("not used")
}

func (r *scriptedRuntime) SubmitToAllMembers(dispatch.Task) (map[domain.Member]*dispatch.Future, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reject != nil {
		return nil, r.reject
	}
	out := make(map[domain.Member]*dispatch.Future, len(r.members))
	for _, m := range r.members {
		if r.hang[m.Address] {
			out[m] = dispatch.NewFuture()
			continue
		}
		rep := r.replies[m.Address]
		out[m] = dispatch.Resolved(rep.value, rep.err)
	}
	return out, nil
}

func newTestProducer(t *testing.T, rt dispatch.Runtime, kind domain.ObjectKind, object string, opts ...Option) *Producer {
	t.Helper()
	p, err := NewProducer(dispatch.New(rt, "stats", nil), "grid", kind, object, opts...)
	require.NoError(t, err)
	return p
}

// ─── Producer ───────────────────────────────────────────────────────────────

func TestProduce_OneMemberFails(t *testing.T) {
	rt := newScriptedRuntime("A", "B", "C")
	rt.replies["A"] = reply{value: domain.ExecutorStats{Completed: 10, Failed: 1}}
	rt.replies["B"] = reply{value: domain.ExecutorStats{Completed: 5}}
	rt.replies["C"] = reply{err: errors.New("member C crashed")}

	p := newTestProducer(t, rt, domain.KindExecutor, "jobs")
	product, err := p.Produce(context.Background())
	require.NoError(t, err)

	assert.Len(t, product.Members, 2)
	assert.Contains(t, product.Members, "A")
	assert.Contains(t, product.Members, "B")
	assert.NotContains(t, product.Members, "C")
	assert.True(t, product.Degraded())

	agg := product.Aggregated.(domain.ExecutorStats)
	assert.Equal(t, int64(15), agg.Completed)
	assert.Equal(t, int64(1), agg.Failed)
}

func TestProduce_StopsAtFirstFailure(t *testing.T) {
	rt := newScriptedRuntime("A", "B", "C")
	rt.replies["A"] = reply{value: domain.ExecutorStats{Completed: 1}}
	rt.replies["B"] = reply{err: errors.New("down")}
	rt.replies["C"] = reply{value: domain.ExecutorStats{Completed: 100}}

	product, err := newTestProducer(t, rt, domain.KindExecutor, "jobs").Produce(context.Background())
	require.NoError(t, err)

	assert.Len(t, product.Members, 1)
	assert.Equal(t, 3, product.Dispatched)
	assert.Equal(t, int64(1), product.Aggregated.(domain.ExecutorStats).Completed)
}

func TestProduce_AllMembersFail(t *testing.T) {
	rt := newScriptedRuntime("A", "B")
	rt.replies["A"] = reply{err: errors.New("down")}
	rt.replies["B"] = reply{err: errors.New("down")}

	product, err := newTestProducer(t, rt, domain.KindTopic, "events").Produce(context.Background())
	require.NoError(t, err)

	assert.Empty(t, product.Members)
	assert.Equal(t, domain.TopicStats{}, product.Aggregated)
}

func TestProduce_MemberTimeout(t *testing.T) {
	rt := newScriptedRuntime("A", "B")
	rt.replies["A"] = reply{value: domain.TopicStats{Publishes: 3}}
	rt.hang["B"] = true

	p := newTestProducer(t, rt, domain.KindTopic, "events", WithMemberTimeout(20*time.Millisecond))
	start := time.Now()
	product, err := p.Produce(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, product.Members, 1)
	assert.Equal(t, int64(3), product.Aggregated.(domain.TopicStats).Publishes)
}

func TestProduce_DispatchRejected(t *testing.T) {
	rt := newScriptedRuntime("A")
	rt.reject = domain.ErrTaskRejected

	product, err := newTestProducer(t, rt, domain.KindQueue, "orders").Produce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTaskRejected)

	require.NotNil(t, product)
	assert.Empty(t, product.Members)
	assert.Equal(t, domain.QueueStats{}, product.Aggregated)
}

func TestNewProducer_UnsupportedKind(t *testing.T) {
	rt := newScriptedRuntime("A")
	_, err := NewProducer(dispatch.New(rt, "stats", nil), "grid", domain.KindList, "items")
	assert.ErrorIs(t, err, domain.ErrUnsupportedKind)
}

func TestProduce_AgainstGrid(t *testing.T) {
	cfg := grid.DefaultConfig()
	cfg.Instance = "grid"
	g, err := grid.New(cfg, nil)
	require.NoError(t, err)
	defer g.Close()

	q := g.Queue("orders")
	for i := 0; i < 4; i++ {
		require.NoError(t, q.Offer(i))
	}
	q.Poll()

	product, err := newTestProducer(t, g, domain.KindQueue, "orders").Produce(context.Background())
	require.NoError(t, err)

	assert.Len(t, product.Members, 3)
	assert.False(t, product.Degraded())
	agg := product.Aggregated.(domain.QueueStats)
	assert.Equal(t, int64(3), agg.OwnedItemCount)
	assert.Equal(t, int64(3), agg.BackupItemCount)
	assert.Equal(t, int64(4), agg.Offers)
	assert.Equal(t, int64(1), agg.Polls)
}

// ─── Aggregation Rules ──────────────────────────────────────────────────────

func TestAggregateExecutor_Sums(t *testing.T) {
	got := AggregateExecutor([]domain.ExecutorStats{
		{Pending: 1, Started: 2, Completed: 3, Failed: 4, Cancelled: 5, TotalStartLatency: time.Second, TotalExecutionTime: 2 * time.Second},
		{Pending: 10, Started: 20, Completed: 30, Failed: 40, Cancelled: 50, TotalStartLatency: time.Second, TotalExecutionTime: time.Second},
	})
	assert.Equal(t, domain.ExecutorStats{
		Pending: 11, Started: 22, Completed: 33, Failed: 44, Cancelled: 55,
		TotalStartLatency: 2 * time.Second, TotalExecutionTime: 3 * time.Second,
	}, got)
}

func TestAggregateQueue_AgesIgnoreEmptyMembers(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	got := AggregateQueue([]domain.QueueStats{
		{OwnedItemCount: 1, MinAge: 4 * time.Second, MaxAge: 4 * time.Second, AverageAge: 4 * time.Second, Offers: 1, CreationTime: t0.Add(time.Hour)},
		{OwnedItemCount: 3, MinAge: time.Second, MaxAge: 8 * time.Second, AverageAge: 2 * time.Second, Offers: 5, Polls: 2},
		{OwnedItemCount: 0, BackupItemCount: 4, EmptyPolls: 1, CreationTime: t0},
	})

	assert.Equal(t, int64(4), got.OwnedItemCount)
	assert.Equal(t, int64(4), got.BackupItemCount)
	assert.Equal(t, time.Second, got.MinAge)
	assert.Equal(t, 8*time.Second, got.MaxAge)
	// (4*1 + 2*3) / 4
	assert.Equal(t, 2500*time.Millisecond, got.AverageAge)
	assert.Equal(t, int64(6), got.Offers)
	assert.Equal(t, int64(2), got.Polls)
	assert.Equal(t, int64(1), got.EmptyPolls)
	assert.Equal(t, t0, got.CreationTime)
}

func TestAggregateQueue_LargeBacklogAverage(t *testing.T) {
	got := AggregateQueue([]domain.QueueStats{
		{OwnedItemCount: 1_000_000, AverageAge: 3 * time.Hour},
		{OwnedItemCount: 1_000_000, AverageAge: 3 * time.Hour},
		{OwnedItemCount: 2_000_000, AverageAge: 6 * time.Hour},
	})

	assert.Equal(t, int64(4_000_000), got.OwnedItemCount)
	// (3h*1M + 3h*1M + 6h*2M) / 4M
	assert.Equal(t, 4*time.Hour+30*time.Minute, got.AverageAge)
}

func TestAggregate_OrderIndependent(t *testing.T) {
	a := domain.TopicStats{Publishes: 1, Receives: 3, CreationTime: time.Unix(200, 0)}
	b := domain.TopicStats{Publishes: 2, Receives: 3, CreationTime: time.Unix(100, 0)}
	c := domain.TopicStats{Publishes: 4, Receives: 3}

	assert.Equal(t, AggregateTopic([]domain.TopicStats{a, b, c}), AggregateTopic([]domain.TopicStats{c, a, b}))

	qa := domain.QueueStats{OwnedItemCount: 2, MinAge: time.Second, MaxAge: 3 * time.Second, AverageAge: 2 * time.Second}
	qb := domain.QueueStats{OwnedItemCount: 1, MinAge: 5 * time.Second, MaxAge: 5 * time.Second, AverageAge: 5 * time.Second}
	assert.Equal(t, AggregateQueue([]domain.QueueStats{qa, qb}), AggregateQueue([]domain.QueueStats{qb, qa}))
}

func TestAggregate_EmptyIsZero(t *testing.T) {
	for _, kind := range SupportedKinds() {
		v, err := VariantFor(kind)
		require.NoError(t, err)
		assert.NotNil(t, v.Aggregate(nil), "kind %s", kind)
	}
	assert.Equal(t, domain.ExecutorStats{}, AggregateExecutor(nil))
	assert.Equal(t, domain.QueueStats{}, AggregateQueue(nil))
}

func TestVariant_IgnoresForeignValues(t *testing.T) {
	v, err := VariantFor(domain.KindExecutor)
	require.NoError(t, err)
	got := v.Aggregate([]any{domain.ExecutorStats{Completed: 2}, "junk", domain.TopicStats{Publishes: 9}})
	assert.Equal(t, domain.ExecutorStats{Completed: 2}, got)
}

// ─── Summary & Listing ──────────────────────────────────────────────────────

func newTestSource(t *testing.T) *grid.Grid {
	t.Helper()
	cfg := grid.DefaultConfig()
	cfg.Instance = "grid"
	cfg.Members = 2
	g, err := grid.New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(g.Close)

	for _, name := range []string{"orders", "order-archive", "users", "sessions"} {
		g.Map(name)
	}
	g.Queue("jobs")
	g.Topic("events")
	g.Register(domain.KindLock, "leader")
	return g
}

func TestSummary_CountsEveryKind(t *testing.T) {
	g := newTestSource(t)

	s, err := NewSummaryProducer(g).Produce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "grid", s.Instance)
	assert.Equal(t, 2, s.MembersCount)
	assert.Len(t, s.Counts, len(domain.AllKinds))
	assert.Equal(t, 4, s.Counts[domain.KindMap])
	assert.Equal(t, 1, s.Counts[domain.KindQueue])
	assert.Equal(t, 1, s.Counts[domain.KindTopic])
	assert.Equal(t, 1, s.Counts[domain.KindLock])
	assert.Equal(t, 0, s.Counts[domain.KindSemaphore])
}

func TestSummary_CancelledContext(t *testing.T) {
	g := newTestSource(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSummaryProducer(g).Produce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListObjects_FilterAndPaging(t *testing.T) {
	g := newTestSource(t)

	page, err := ListObjects(g, domain.KindMap, "^order", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Objects, 2)
	assert.Equal(t, "order-archive", page.Objects[0].Name)
	assert.Equal(t, "orders", page.Objects[1].Name)

	page, err = ListObjects(g, domain.KindMap, "", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	require.Len(t, page.Objects, 1)
	assert.Equal(t, "users", page.Objects[0].Name)

	page, err = ListObjects(g, domain.KindMap, "", 5, 3)
	require.NoError(t, err)
	assert.Empty(t, page.Objects)
}

func TestNewProducer_NonPositiveTimeoutKeepsDefault(t *testing.T) {
	p, err := NewProducer(nil, "grid", domain.KindQueue, "orders", WithMemberTimeout(0))
	require.NoError(t, err)
	assert.Equal(t, DefaultMemberTimeout, p.timeout)

	p, err = NewProducer(nil, "grid", domain.KindQueue, "orders", WithMemberTimeout(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, p.timeout)
}

func TestListObjects_HugePageValues(t *testing.T) {
	g := newTestSource(t)

	page, err := ListObjects(g, domain.KindMap, "", 3, math.MaxInt/2+1)
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Empty(t, page.Objects)

	page, err = ListObjects(g, domain.KindMap, "", math.MaxInt, 2)
	require.NoError(t, err)
	assert.Empty(t, page.Objects)

	page, err = ListObjects(g, domain.KindMap, "", 1, math.MaxInt)
	require.NoError(t, err)
	assert.Len(t, page.Objects, 4)
}

func TestListObjects_InvalidFilter(t *testing.T) {
	g := newTestSource(t)
	_, err := ListObjects(g, domain.KindMap, "([", 1, 10)
	assert.Error(t, err)
}
