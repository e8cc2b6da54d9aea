package faults

import (
	"sync"
	"time"

	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
)

// LivenessTracker records the requests sent to adults that are still waiting
// for a response.
type LivenessTracker struct {
	l       sync.Mutex
	pending map[xor.Name]map[string]time.Time
}

// NewLivenessTracker ...
func NewLivenessTracker() *LivenessTracker {
	return &LivenessTracker{pending: make(map[xor.Name]map[string]time.Time)}
}

// AddPendingOp records that node owes us a response to op.
func (t *LivenessTracker) AddPendingOp(node xor.Name, op string, at time.Time) {
	t.l.Lock()
	defer t.l.Unlock()
	ops, ok := t.pending[node]
	if !ok {
		ops = make(map[string]time.Time)
		t.pending[node] = ops
	}
	if _, ok := ops[op]; !ok {
		ops[op] = at
	}
}

// RequestFulfilled removes op from the ops node owes us. It reports whether
// the op was pending.
func (t *LivenessTracker) RequestFulfilled(node xor.Name, op string) bool {
	t.l.Lock()
	defer t.l.Unlock()
	ops, ok := t.pending[node]
	if !ok {
		return false
	}
	if _, ok := ops[op]; !ok {
		return false
	}
	delete(ops, op)
	if len(ops) == 0 {
		delete(t.pending, node)
	}
	return true
}

// Pending counts the ops node owes us that were sent after since.
func (t *LivenessTracker) Pending(node xor.Name, since time.Time) int {
	t.l.Lock()
	defer t.l.Unlock()
	n := 0
	for _, at := range t.pending[node] {
		if !at.Before(since) {
			n++
		}
	}
	return n
}

// Prune forgets the ops sent before since and the nodes keep rejects.
func (t *LivenessTracker) Prune(since time.Time, keep func(xor.Name) bool) {
	t.l.Lock()
	defer t.l.Unlock()
	for node, ops := range t.pending {
		if !keep(node) {
			delete(t.pending, node)
			continue
		}
		for op, at := range ops {
			if at.Before(since) {
				delete(ops, op)
			}
		}
		if len(ops) == 0 {
			delete(t.pending, node)
		}
	}
}
