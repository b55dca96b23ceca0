// Package comm is the process-group layer the walker set runs on.
//
// Two nested groupings are exposed through TaskGroup: a node-local group whose
// members address one shared walker buffer directly, and a cross-node group
// made of one coordinator per node-local group. Both are Communicators offering
// barrier, broadcast, sum reduction and point-to-point transfer.
//
// World is the in-process implementation: every member is a goroutine, a
// node-local group shares memory for real, and collectives are built on
// channels. Any member error aborts the whole world so no collective blocks
// forever after a fatal condition.
package comm

import (
	"errors"
	"fmt"
	"sync"
)

// Root is the rank that roots collectives by convention.
const Root = 0

var (
	ErrAborted      = errors.New("process group aborted")
	ErrBadRank      = errors.New("rank out of range")
	ErrSizeMismatch = errors.New("collective buffer size mismatch")
)

// Communicator is one group of cooperating ranks.
type Communicator interface {
	Rank() int
	Size() int
	Barrier() error
	// Broadcast copies root's buf into every other member's buf.
	Broadcast(buf []complex128, root int) error
	// ReduceSum leaves the element-wise sum of every member's buf in root's buf.
	ReduceSum(buf []complex128, root int) error
	Send(data []byte, dest, tag int) error
	Recv(source, tag int) ([]byte, error)
}

// AllReduceSum leaves the element-wise sum in every member's buf.
func AllReduceSum(c Communicator, buf []complex128) error {
	if err := c.ReduceSum(buf, Root); err != nil {
		return err
	}
	return c.Broadcast(buf, Root)
}

// Owner returns the member rank responsible for writing walker index.
func Owner(index, groupSize int) int {
	return index % groupSize
}

// TaskGroup is one member's view of the two groupings.
type TaskGroup struct {
	Local     Communicator // node-local shared-memory group
	Heads     Communicator // coordinators of every node group; nil unless coordinator
	GroupID   int          // index of this node group
	NumGroups int

	node  *nodeState
	abort func(error)
}

// nodeState is the memory every member of one node group shares.
type nodeState struct {
	critical sync.Mutex

	mu      sync.Mutex
	objects map[string]any
}

func newNodeState() *nodeState {
	return &nodeState{objects: make(map[string]any)}
}

// NewTaskGroup assembles a TaskGroup from existing communicators. Members of
// the same node group must be given the same shared value, obtained from
// NewNodeShared.
func NewTaskGroup(local, heads Communicator, groupID, numGroups int, shared NodeShared, abort func(error)) (*TaskGroup, error) {
	if local == nil {
		return nil, errors.New("local communicator is nil")
	}
	if groupID < 0 || groupID >= numGroups {
		return nil, fmt.Errorf("%w: group %d of %d", ErrBadRank, groupID, numGroups)
	}
	if local.Rank() == Root && heads == nil {
		return nil, errors.New("coordinator needs a heads communicator")
	}
	if shared.state == nil {
		shared = NewNodeShared()
	}
	return &TaskGroup{
		Local:     local,
		Heads:     heads,
		GroupID:   groupID,
		NumGroups: numGroups,
		node:      shared.state,
		abort:     abort,
	}, nil
}

// NodeShared is the handle to one node group's shared memory.
type NodeShared struct{ state *nodeState }

// NewNodeShared allocates shared state for one node group.
func NewNodeShared() NodeShared { return NodeShared{state: newNodeState()} }

// IsCoordinator reports whether this member makes population decisions for
// its node group.
func (tg *TaskGroup) IsCoordinator() bool {
	return tg.Local.Rank() == Root
}

// Critical runs fn while holding the node group's mutex.
func (tg *TaskGroup) Critical(fn func()) {
	tg.node.critical.Lock()
	defer tg.node.critical.Unlock()
	fn()
}

// Shared returns the node group's object stored under key, creating it with
// create on first use. Every member of the node group gets the same object.
func (tg *TaskGroup) Shared(key string, create func() any) any {
	tg.node.mu.Lock()
	defer tg.node.mu.Unlock()
	obj, ok := tg.node.objects[key]
	if !ok {
		obj = create()
		tg.node.objects[key] = obj
	}
	return obj
}

// Abort tears down the whole run. Blocked collectives return ErrAborted.
func (tg *TaskGroup) Abort(err error) {
	if tg.abort != nil {
		tg.abort(err)
	}
}
