package node

import (
	"sync"
	"sync/atomic"
)

// State captures the state of a node: Joining, Adult, Elder or Shutdown.
type State uint32

const (
	// Joining is the initial state of a node that is not a member yet. A
	// relocating node goes back to Joining until its new section approves
	// it.
	Joining State = iota
	// Adult is a member that stores chunks.
	Adult
	// Elder is a member that holds a share of the section key.
	Elder
	// Shutdown is shutdown
	Shutdown
)

// String ...
func (s State) String() string {
	switch s {
	case Joining:
		return "Joining"
	case Adult:
		return "Adult"
	case Elder:
		return "Elder"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// WGLIMIT is the maximum number of goroutines that can be running at once
// through routines.goFunc. Further calls block until one returns.
const WGLIMIT = 20

type state struct {
	state State
}

func (b *state) getState() State {
	stateAddr := (*uint32)(&b.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (b *state) setState(s State) {
	stateAddr := (*uint32)(&b.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}

// routines tracks the goroutines doing I/O on behalf of the dispatcher.
type routines struct {
	wg  sync.WaitGroup
	sem chan struct{}
}

func newRoutines() *routines {
	return &routines{sem: make(chan struct{}, WGLIMIT)}
}

// Start a goroutine and add it to waitgroup
func (r *routines) goFunc(f func()) {
	r.sem <- struct{}{}
	r.wg.Add(1)
	go func() {
		defer func() {
			<-r.sem
			r.wg.Done()
		}()
		f()
	}()
}

func (r *routines) waitRoutines() {
	r.wg.Wait()
}
