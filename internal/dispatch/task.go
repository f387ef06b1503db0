package dispatch

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/gridmon/gridmon/internal/domain"
)

// Task is a unit of work shipped to a member. It must not capture object
// references: Call re-resolves what it needs through the executing node.
type Task interface {
	// Target names the object the task acts on, for logs and errors.
	Target() string

	// Call runs the task on the executing member.
	Call(ctx context.Context, node domain.Node) (any, error)
}

// ObjectTask runs a function against the local state of one named instance.
type ObjectTask struct {
	Instance string
	Object   string
	Run      func(ctx context.Context, inst domain.Instance) (any, error)
}

// Target implements Task.
func (t ObjectTask) Target() string {
	return t.Instance + "/" + t.Object
}

// Call implements Task.
func (t ObjectTask) Call(ctx context.Context, node domain.Node) (any, error) {
	inst, err := node.Instance(t.Instance)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve instance %q on %s", t.Instance, node.Member().Address)
	}
	return t.Run(ctx, inst)
}
