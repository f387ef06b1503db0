package domain

// ─── Node-Side Interfaces ───────────────────────────────────────────────────
// A remote task receives a Node handle on the member that executes it and
// re-resolves the objects it needs by instance and object name. Object
// references themselves never cross member boundaries.

// Node is the executing member's view of its local runtime.
type Node interface {
	// Member returns the identity of the executing member.
	Member() Member

	// Instance resolves a runtime instance hosted on this member by name.
	Instance(name string) (Instance, error)
}

// Instance exposes the node-local state of one runtime instance.
type Instance interface {
	Name() string

	// LocalExecutorStats returns this member's share of an executor's stats.
	LocalExecutorStats(name string) (ExecutorStats, error)

	// LocalQueueStats returns this member's share of a queue's stats.
	LocalQueueStats(name string) (QueueStats, error)

	// LocalTopicStats returns this member's share of a topic's stats.
	LocalTopicStats(name string) (TopicStats, error)

	// LocalItems returns a snapshot of the elements of a list, queue or set
	// that are stored on this member, in iteration order.
	LocalItems(kind ObjectKind, name string) ([]any, error)
}
