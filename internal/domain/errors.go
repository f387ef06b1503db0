package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// The domain package imports nothing outside the standard library.

var (
	// Object errors
	ErrUnknownKind     = errors.New("unknown object kind")
	ErrUnsupportedKind = errors.New("object kind not supported for this operation")
	ErrKindMismatch    = errors.New("object reference kind does not match operation")
	ErrObjectNotFound  = errors.New("distributed object not found")
	ErrInstanceUnknown = errors.New("runtime instance not found")

	// Dispatch errors
	ErrNoPartitionOwner = errors.New("no owner resolvable for partition key")
	ErrNoMembers        = errors.New("cluster has no members")
	ErrTaskRejected     = errors.New("execution service rejected the task")
	ErrMemberTimeout    = errors.New("member did not answer before the timeout")
	ErrMemberDown       = errors.New("member is unreachable")

	// Predicate errors
	ErrPredicateResult = errors.New("predicate did not evaluate to a boolean")
	ErrPredicatePanic  = errors.New("predicate panicked")
)
