package stats

import (
	"context"
	"math/big"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/gridmon/gridmon/internal/dispatch"
	"github.com/gridmon/gridmon/internal/domain"
)

// ─── Variants ───────────────────────────────────────────────────────────────
// Each supported kind is a closed variant carrying how to read a member's
// local stats and how to fold many members into one value. Adding a kind
// means adding a variant here, nothing else.

// Variant binds an object kind to its local reader and aggregation rule.
type Variant struct {
	Kind      domain.ObjectKind
	read      func(inst domain.Instance, name string) (any, error)
	aggregate func(values []any) any
}

func newVariant[T any](
	kind domain.ObjectKind,
	read func(inst domain.Instance, name string) (T, error),
	aggregate func(values []T) T,
) Variant {
	return Variant{
		Kind: kind,
		read: func(inst domain.Instance, name string) (any, error) {
			v, err := read(inst, name)
			if err != nil {
				return nil, err
			}
			return v, nil
		},
		aggregate: func(values []any) any {
			typed := make([]T, 0, len(values))
			for _, v := range values {
				if t, ok := v.(T); ok {
					typed = append(typed, t)
				}
			}
			return aggregate(typed)
		},
	}
}

var variants = map[domain.ObjectKind]Variant{
	domain.KindExecutor: newVariant(domain.KindExecutor,
		func(inst domain.Instance, name string) (domain.ExecutorStats, error) {
			return inst.LocalExecutorStats(name)
		},
		AggregateExecutor),
	domain.KindQueue: newVariant(domain.KindQueue,
		func(inst domain.Instance, name string) (domain.QueueStats, error) {
			return inst.LocalQueueStats(name)
		},
		AggregateQueue),
	domain.KindTopic: newVariant(domain.KindTopic,
		func(inst domain.Instance, name string) (domain.TopicStats, error) {
			return inst.LocalTopicStats(name)
		},
		AggregateTopic),
}

// VariantFor returns the variant for kind.
func VariantFor(kind domain.ObjectKind) (Variant, error) {
	v, ok := variants[kind]
	if !ok {
		return Variant{}, errors.Wrapf(domain.ErrUnsupportedKind, "stats for %q", kind)
	}
	return v, nil
}

// SupportedKinds lists the kinds that have a stats variant.
func SupportedKinds() []domain.ObjectKind {
	return []domain.ObjectKind{domain.KindExecutor, domain.KindQueue, domain.KindTopic}
}

// Task builds the remote task reading object's local stats on a member.
func (v Variant) Task(instance, object string) dispatch.ObjectTask {
	read := v.read
	return dispatch.ObjectTask{
		Instance: instance,
		Object:   object,
		Run: func(ctx context.Context, inst domain.Instance) (any, error) {
			return read(inst, object)
		},
	}
}

// Aggregate folds member values with the variant's rule. Values of the
// wrong type are ignored.
func (v Variant) Aggregate(values []any) any {
	return v.aggregate(values)
}

// ─── Aggregation Rules ──────────────────────────────────────────────────────
// All rules are associative and commutative. The empty set yields the zero
// value of the stats type.

// AggregateExecutor sums every counter and latency total.
func AggregateExecutor(values []domain.ExecutorStats) domain.ExecutorStats {
	var out domain.ExecutorStats
	for _, s := range values {
		out.Pending += s.Pending
		out.Started += s.Started
		out.Completed += s.Completed
		out.Failed += s.Failed
		out.Cancelled += s.Cancelled
		out.TotalStartLatency += s.TotalStartLatency
		out.TotalExecutionTime += s.TotalExecutionTime
	}
	return out
}

// AggregateQueue sums item and operation counters. Ages only consider
// members that own items: MinAge is the minimum, MaxAge the maximum and
// AverageAge the item-weighted mean. CreationTime is the earliest known.
func AggregateQueue(values []domain.QueueStats) domain.QueueStats {
	var out domain.QueueStats
	// nanoseconds times items exceeds int64 for large, old backlogs
	weighted := new(big.Int)
	for _, s := range values {
		if s.OwnedItemCount > 0 {
			if out.OwnedItemCount == 0 || s.MinAge < out.MinAge {
				out.MinAge = s.MinAge
			}
			if s.MaxAge > out.MaxAge {
				out.MaxAge = s.MaxAge
			}
			term := big.NewInt(int64(s.AverageAge))
			weighted.Add(weighted, term.Mul(term, big.NewInt(s.OwnedItemCount)))
		}
		out.OwnedItemCount += s.OwnedItemCount
		out.BackupItemCount += s.BackupItemCount
		out.Offers += s.Offers
		out.RejectedOffers += s.RejectedOffers
		out.Polls += s.Polls
		out.EmptyPolls += s.EmptyPolls
		out.OtherOperations += s.OtherOperations
		out.Events += s.Events
		out.CreationTime = earliest(out.CreationTime, s.CreationTime)
	}
	if out.OwnedItemCount > 0 {
		mean := new(big.Int).Quo(weighted, big.NewInt(out.OwnedItemCount))
		out.AverageAge = time.Duration(mean.Int64())
	}
	return out
}

// AggregateTopic sums publish and receive counters.
func AggregateTopic(values []domain.TopicStats) domain.TopicStats {
	var out domain.TopicStats
	for _, s := range values {
		out.Publishes += s.Publishes
		out.Receives += s.Receives
		out.CreationTime = earliest(out.CreationTime, s.CreationTime)
	}
	return out
}

func earliest(a, b time.Time) time.Time {
	switch {
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	case b.Before(a):
		return b
	default:
		return a
	}
}
