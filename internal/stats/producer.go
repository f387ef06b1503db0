// Package stats produces live statistics for named distributed objects.
// A Producer fans a local-stats task out to every member, collects what
// answers, and folds the member values with a per-kind aggregation rule.
package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/gridmon/gridmon/internal/dispatch"
	"github.com/gridmon/gridmon/internal/domain"
	"github.com/gridmon/gridmon/internal/infra/metrics"
)

// TopicType is the topic under which stats products are published.
const TopicType = "distributed_object_stats"

// DefaultMemberTimeout bounds each member await when no option overrides it.
const DefaultMemberTimeout = 5 * time.Second

// Product is one sample of an object's statistics: each answering member's
// local value plus the aggregate over those values. Members that failed are
// absent, never zero-filled.
type Product struct {
	SampleTime time.Time         `json:"sample_time"`
	Instance   string            `json:"instance"`
	Kind       domain.ObjectKind `json:"kind"`
	Object     string            `json:"object"`
	Dispatched int               `json:"dispatched"`
	Members    map[string]any    `json:"members"`
	Aggregated any               `json:"aggregated"`
}

// Degraded reports whether fewer members answered than were asked.
func (p *Product) Degraded() bool {
	return len(p.Members) < p.Dispatched
}

// Producer samples one (instance, kind, object) triple.
type Producer struct {
	dispatcher *dispatch.Dispatcher
	variant    Variant
	instance   string
	object     string
	timeout    time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Producer.
type Option func(*Producer)

// WithMemberTimeout bounds how long each member's answer is awaited. Zero
// or negative keeps DefaultMemberTimeout.
func WithMemberTimeout(d time.Duration) Option {
	return func(p *Producer) { p.timeout = d }
}

// WithLogger sets the producer's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Producer) { p.logger = l }
}

// NewProducer binds a producer. Kinds without a stats variant are rejected.
func NewProducer(d *dispatch.Dispatcher, instance string, kind domain.ObjectKind, object string, opts ...Option) (*Producer, error) {
	v, err := VariantFor(kind)
	if err != nil {
		return nil, err
	}
	p := &Producer{
		dispatcher: d,
		variant:    v,
		instance:   instance,
		object:     object,
		timeout:    DefaultMemberTimeout,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.timeout <= 0 {
		p.timeout = DefaultMemberTimeout
	}
	p.logger = p.logger.With("component", "stats", "kind", string(kind), "object", object)
	return p, nil
}

// Kind returns the bound object kind.
func (p *Producer) Kind() domain.ObjectKind { return p.variant.Kind }

// Object returns the bound object name.
func (p *Producer) Object() string { return p.object }

// Produce samples the object across the cluster. The returned product is
// never nil. A non-nil error means the task could not be dispatched at all;
// member failures only degrade the product.
//
// Members are collected in join order. On the first member failure the
// remaining members are not collected.
func (p *Producer) Produce(ctx context.Context) (*Product, error) {
	start := time.Now()
	defer func() {
		metrics.ProduceLatency.WithLabelValues(string(p.variant.Kind)).Observe(time.Since(start).Seconds())
	}()

	product := &Product{
		SampleTime: p.now(),
		Instance:   p.instance,
		Kind:       p.variant.Kind,
		Object:     p.object,
		Members:    make(map[string]any),
	}

	futures, err := p.dispatcher.DispatchToAll(p.variant.Task(p.instance, p.object))
	if err != nil {
		product.Aggregated = p.variant.Aggregate(nil)
		return product, err
	}
	product.Dispatched = len(futures)

	for _, member := range p.dispatcher.Order(futures) {
		v, err := dispatch.Await(ctx, member, futures[member], p.timeout)
		if err != nil {
			var mf *dispatch.MemberFailure
			if errors.As(err, &mf) {
				metrics.MemberFailures.WithLabelValues(mf.Reason()).Inc()
			}
			p.logger.Warn("could not produce statistics", "member", member, "error", err)
			break
		}
		product.Members[member] = v
	}

	values := make([]any, 0, len(product.Members))
	for _, v := range product.Members {
		values = append(values, v)
	}
	product.Aggregated = p.variant.Aggregate(values)

	if product.Degraded() {
		metrics.DegradedProducts.WithLabelValues(string(p.variant.Kind)).Inc()
	}
	return product, nil
}
