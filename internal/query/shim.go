package query

import (
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/gridmon/gridmon/internal/domain"
	"github.com/gridmon/gridmon/internal/infra/metrics"
)

// Shim applies untrusted predicates. It is the only place predicate logic
// runs: it always returns a boolean and never lets a fault escape.
type Shim struct {
	logger *slog.Logger
}

// NewShim creates a shim that logs faults to logger.
func NewShim(logger *slog.Logger) *Shim {
	if logger == nil {
		logger = slog.Default()
	}
	return &Shim{logger: logger}
}

var defaultShim = NewShim(nil)

// SafeApply applies p to element through the default shim.
func SafeApply(p Predicate, element any) bool {
	return defaultShim.Apply(p, element)
}

// Apply prepares p if it is a Preparer, then tests element. Errors, panics
// and preparation failures count as no match.
func (s *Shim) Apply(p Predicate, element any) (matched bool) {
	stage := "prepare"
	defer func() {
		if r := recover(); r != nil {
			s.fault(stage, errors.Wrapf(domain.ErrPredicatePanic, "%v", r))
			matched = false
		}
	}()

	if p == nil {
		s.fault(stage, errors.New("nil predicate"))
		return false
	}
	if prep, ok := p.(Preparer); ok {
		prepared, err := prep.Prepare()
		if err != nil {
			s.fault(stage, err)
			return false
		}
		p = prepared
	}

	stage = "test"
	ok, err := p.Test(element)
	if err != nil {
		s.fault(stage, err)
		return false
	}
	return ok
}

func (s *Shim) fault(stage string, err error) {
	metrics.PredicateFaults.WithLabelValues(stage).Inc()
	s.logger.Debug("predicate fault, element skipped", "stage", stage, "error", err)
}
