// Package query evaluates predicates against distributed collections by
// shipping the predicate to the data. List, queue and set queries run on
// the collection's partition owner; map queries go through the runtime's
// native entry query. Every element is tested through the Shim.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/gridmon/gridmon/internal/dispatch"
	"github.com/gridmon/gridmon/internal/domain"
	"github.com/gridmon/gridmon/internal/infra/metrics"
)

// DefaultExecutor is the execution service point-target queries run on.
const DefaultExecutor = "_gridmon_predicateSearch"

// DefaultTimeout bounds the wait for a point-target query.
const DefaultTimeout = 30 * time.Second

// Runtime is the collaborator the engine needs: remote execution plus the
// native predicate-based entry query for maps.
type Runtime interface {
	dispatch.Runtime

	// QueryEntries returns the entries of mapName accepted by filter.
	// Where the filter runs is up to the runtime.
	QueryEntries(ctx context.Context, mapName string, filter func(domain.Entry) bool) ([]domain.Entry, error)
}

// Error is returned when a query fails as a whole.
type Error struct {
	Kind       domain.ObjectKind
	Collection string
	Cause      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("error while querying %s %s: %v", e.Kind, e.Collection, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Engine runs predicate queries against one runtime. It keeps no state
// between calls and is safe for concurrent use.
type Engine struct {
	runtime    Runtime
	dispatcher *dispatch.Dispatcher
	shim       *Shim
	timeout    time.Duration
	executor   string
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout bounds the wait for the owning member's answer. Zero or
// negative keeps DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithExecutor selects the execution service for point-target queries.
func WithExecutor(name string) Option {
	return func(e *Engine) { e.executor = name }
}

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine binds an engine to rt.
func NewEngine(rt Runtime, opts ...Option) *Engine {
	e := &Engine{
		runtime:  rt,
		timeout:  DefaultTimeout,
		executor: DefaultExecutor,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	e.logger = e.logger.With("component", "query")
	e.shim = NewShim(e.logger)
	e.dispatcher = dispatch.New(rt, e.executor, e.logger)
	return e
}

// QueryList returns the elements of a list that satisfy p.
func (e *Engine) QueryList(ctx context.Context, ref domain.ObjectRef, p Predicate) ([]any, error) {
	return e.queryOwner(ctx, domain.KindList, ref, p)
}

// QueryQueue returns the elements of a queue that satisfy p.
func (e *Engine) QueryQueue(ctx context.Context, ref domain.ObjectRef, p Predicate) ([]any, error) {
	return e.queryOwner(ctx, domain.KindQueue, ref, p)
}

// QuerySet returns the elements of a set that satisfy p.
func (e *Engine) QuerySet(ctx context.Context, ref domain.ObjectRef, p Predicate) ([]any, error) {
	return e.queryOwner(ctx, domain.KindSet, ref, p)
}

// Query dispatches on ref.Kind. Map results are returned as []domain.Entry
// wrapped in []any.
func (e *Engine) Query(ctx context.Context, ref domain.ObjectRef, p Predicate) ([]any, error) {
	switch ref.Kind {
	case domain.KindList, domain.KindQueue, domain.KindSet:
		return e.queryOwner(ctx, ref.Kind, ref, p)
	case domain.KindMap:
		entries, err := e.QueryMap(ctx, ref, p)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(entries))
		for i, en := range entries {
			out[i] = en
		}
		return out, nil
	default:
		return nil, e.fail(ref.Kind, ref, errors.Wrapf(domain.ErrUnsupportedKind, "query on %s", ref.Kind))
	}
}

// QueryMap returns the entries of a map that satisfy p. Entries are
// filtered by the runtime's native query; each is seen by p as a
// domain.Entry through the Shim.
func (e *Engine) QueryMap(ctx context.Context, ref domain.ObjectRef, p Predicate) ([]domain.Entry, error) {
	start := time.Now()
	defer observe(domain.KindMap, start)

	if ref.Kind != domain.KindMap {
		return nil, e.fail(domain.KindMap, ref, errors.Wrapf(domain.ErrKindMismatch, "%s is a %s", ref.Name, ref.Kind))
	}

	entries, err := e.runtime.QueryEntries(ctx, ref.Name, func(en domain.Entry) bool {
		return e.shim.Apply(p, en)
	})
	if err != nil {
		return nil, e.fail(domain.KindMap, ref, err)
	}
	if entries == nil {
		entries = []domain.Entry{}
	}
	metrics.QueryMatches.WithLabelValues(string(domain.KindMap)).Add(float64(len(entries)))
	return entries, nil
}

// queryOwner runs the predicate on the member owning ref's partition, so
// only matches cross the network.
func (e *Engine) queryOwner(ctx context.Context, kind domain.ObjectKind, ref domain.ObjectRef, p Predicate) ([]any, error) {
	start := time.Now()
	defer observe(kind, start)

	if ref.Kind != kind {
		return nil, e.fail(kind, ref, errors.Wrapf(domain.ErrKindMismatch, "%s is a %s", ref.Name, ref.Kind))
	}

	shim := e.shim
	task := dispatch.ObjectTask{
		Instance: ref.Instance,
		Object:   ref.Name,
		Run: func(ctx context.Context, inst domain.Instance) (any, error) {
			items, err := inst.LocalItems(kind, ref.Name)
			if err != nil {
				return nil, err
			}
			matches := make([]any, 0)
			for _, item := range items {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				if shim.Apply(p, item) {
					matches = append(matches, item)
				}
			}
			return matches, nil
		},
	}

	f, err := e.dispatcher.DispatchToOwner(ref, task)
	if err != nil {
		return nil, e.fail(kind, ref, err)
	}
	v, err := dispatch.Await(ctx, "owner of "+ref.Key(), f, e.timeout)
	if err != nil {
		var mf *dispatch.MemberFailure
		if errors.As(err, &mf) {
			metrics.MemberFailures.WithLabelValues(mf.Reason()).Inc()
		}
		return nil, e.fail(kind, ref, err)
	}

	matches, _ := v.([]any)
	if matches == nil {
		matches = []any{}
	}
	metrics.QueryMatches.WithLabelValues(string(kind)).Add(float64(len(matches)))
	return matches, nil
}

func (e *Engine) fail(kind domain.ObjectKind, ref domain.ObjectRef, cause error) error {
	metrics.QueryErrors.WithLabelValues(string(kind)).Inc()
	e.logger.Warn("query failed", "kind", string(kind), "collection", ref.Name, "error", cause)
	return &Error{Kind: kind, Collection: ref.Name, Cause: cause}
}

func observe(kind domain.ObjectKind, start time.Time) {
	metrics.QueryLatency.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
}
