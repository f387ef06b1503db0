// Package domain holds the pure types shared by the agent: distributed object
// references, members, local statistics shapes, and the node-side interfaces
// a runtime must provide. Nothing here depends on infrastructure.
package domain

import "fmt"

// ObjectKind tags a distributed object by the primitive it implements.
type ObjectKind string

const (
	KindList            ObjectKind = "list"
	KindQueue           ObjectKind = "queue"
	KindSet             ObjectKind = "set"
	KindMap             ObjectKind = "map"
	KindMultiMap        ObjectKind = "multimap"
	KindReplicatedMap   ObjectKind = "replicatedmap"
	KindTopic           ObjectKind = "topic"
	KindExecutor        ObjectKind = "executor"
	KindAtomicLong      ObjectKind = "atomiclong"
	KindAtomicReference ObjectKind = "atomicreference"
	KindCache           ObjectKind = "cache"
	KindCountDownLatch  ObjectKind = "countdownlatch"
	KindLock            ObjectKind = "lock"
	KindRingbuffer      ObjectKind = "ringbuffer"
	KindSemaphore       ObjectKind = "semaphore"
)

// AllKinds lists every known kind in display order.
var AllKinds = []ObjectKind{
	KindAtomicLong, KindAtomicReference, KindCache, KindCountDownLatch,
	KindList, KindLock, KindMap, KindMultiMap, KindQueue, KindReplicatedMap,
	KindRingbuffer, KindSemaphore, KindSet, KindTopic, KindExecutor,
}

// ParseKind converts a string into a known ObjectKind.
func ParseKind(s string) (ObjectKind, error) {
	for _, k := range AllKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// IsPartitioned reports whether every element of an object of this kind
// lives on the single owner of its partition key.
func (k ObjectKind) IsPartitioned() bool {
	switch k {
	case KindList, KindQueue, KindSet, KindAtomicLong, KindAtomicReference,
		KindCountDownLatch, KindLock, KindRingbuffer, KindSemaphore:
		return true
	default:
		return false
	}
}

// ObjectRef identifies a named distributed object on a runtime instance.
// It is a value type; copies are safe to share.
type ObjectRef struct {
	Instance     string     `json:"instance"`
	Kind         ObjectKind `json:"kind"`
	Name         string     `json:"name"`
	PartitionKey string     `json:"partition_key,omitempty"`
}

// NewObjectRef returns a reference whose partition key defaults to the
// object name, which is how single-partition collections are placed.
func NewObjectRef(instance string, kind ObjectKind, name string) ObjectRef {
	return ObjectRef{
		Instance:     instance,
		Kind:         kind,
		Name:         name,
		PartitionKey: name,
	}
}

// Key returns the key used to locate the owning member.
func (r ObjectRef) Key() string {
	if r.PartitionKey != "" {
		return r.PartitionKey
	}
	return r.Name
}

func (r ObjectRef) String() string {
	return fmt.Sprintf("%s %s/%s", r.Kind, r.Instance, r.Name)
}

// Entry is a key/value view of a single map entry. It is what map
// predicates see.
type Entry struct {
	Key   any `json:"key"`
	Value any `json:"value"`
}
