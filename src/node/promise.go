package node

// JoinPromise is resolved when a join attempt ends: with nil when a section
// approved us, or with the error that ended the attempt.
type JoinPromise struct {
	RespCh chan error
}

// NewJoinPromise ...
func NewJoinPromise() *JoinPromise {
	return &JoinPromise{
		// Buffered so that resolving never blocks when nobody listens.
		RespCh: make(chan error, 1),
	}
}

// Respond resolves the promise. Only the first response is kept.
func (p *JoinPromise) Respond(err error) {
	select {
	case p.RespCh <- err:
	default:
	}
}
