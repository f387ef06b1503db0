package query

import (
	"github.com/cockroachdb/errors"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/gridmon/gridmon/internal/domain"
)

// Predicate is a boolean test over one collection element. Map predicates
// receive a domain.Entry.
type Predicate interface {
	Test(element any) (bool, error)
}

// Preparer is implemented by predicates whose evaluator carries
// per-evaluation state. Prepare returns a fresh evaluator that is used for
// exactly one test and then discarded.
type Preparer interface {
	Prepare() (Predicate, error)
}

// Func adapts a plain function into a stateless Predicate.
type Func func(element any) bool

// Test implements Predicate.
func (f Func) Test(element any) (bool, error) {
	return f(element), nil
}

// ─── Script Predicates ──────────────────────────────────────────────────────

// ScriptPredicate is a predicate written as an expression. The expression
// sees three bindings: value (the element, or the entry's value), key (the
// entry's key, nil for non-map elements) and entry (the whole map entry,
// nil for non-map elements). It must evaluate to a boolean.
//
// The compiled program is immutable and shared; bindings and the virtual
// machine are created per evaluation by Prepare.
type ScriptPredicate struct {
	source  string
	program *vm.Program
}

// Compile parses source into a script predicate. Names other than the
// three bindings resolve to nil at evaluation time.
func Compile(source string) (*ScriptPredicate, error) {
	program, err := expr.Compile(source)
	if err != nil {
		return nil, errors.Wrapf(err, "compile predicate %q", source)
	}
	return &ScriptPredicate{source: source, program: program}, nil
}

// Source returns the expression text.
func (s *ScriptPredicate) Source() string { return s.source }

// Prepare implements Preparer.
func (s *ScriptPredicate) Prepare() (Predicate, error) {
	if s.program == nil {
		return nil, errors.Newf("predicate %q is not compiled", s.source)
	}
	return &boundScript{program: s.program}, nil
}

// Test implements Predicate by preparing a private evaluator first, so a
// ScriptPredicate is safe to call directly from concurrent goroutines.
func (s *ScriptPredicate) Test(element any) (bool, error) {
	p, err := s.Prepare()
	if err != nil {
		return false, err
	}
	return p.Test(element)
}

// boundScript is a single-use evaluator for a script predicate.
type boundScript struct {
	program *vm.Program
	machine vm.VM
}

func (b *boundScript) Test(element any) (bool, error) {
	out, err := b.machine.Run(b.program, bindings(element))
	if err != nil {
		return false, err
	}
	matched, ok := out.(bool)
	if !ok {
		return false, errors.Wrapf(domain.ErrPredicateResult, "got %T", out)
	}
	return matched, nil
}

func bindings(element any) map[string]any {
	env := map[string]any{"value": element, "key": nil, "entry": nil}
	if e, ok := element.(domain.Entry); ok {
		env["value"] = e.Value
		env["key"] = e.Key
		env["entry"] = map[string]any{"key": e.Key, "value": e.Value}
	}
	return env
}
