package dkg

import (
	"sync"

	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
	"github.com/sirupsen/logrus"
)

// maxBacklog bounds the messages kept for a session we have not started.
const maxBacklog = 256

type backlogged struct {
	from xor.Name
	msg  Message
}

// Voter manages the sessions a node participates in. Messages for a session
// that was not started yet are kept until it starts.
type Voter struct {
	l        sync.Mutex
	our      xor.Name
	sessions map[SessionID]*Session
	backlog  map[SessionID][]backlogged
	logger   *logrus.Entry
}

// NewVoter ...
func NewVoter(our xor.Name, logger *logrus.Entry) *Voter {
	return &Voter{
		our:      our,
		sessions: make(map[SessionID]*Session),
		backlog:  make(map[SessionID][]backlogged),
		logger:   logger,
	}
}

// Start joins a session. Starting a session twice is a no-op.
func (v *Voter) Start(info SessionInfo) ([]Message, *Outcome, error) {
	v.l.Lock()
	defer v.l.Unlock()

	id := info.ID()
	if _, ok := v.sessions[id]; ok {
		return nil, nil, nil
	}
	s, out, err := NewSession(info, v.our)
	if err != nil {
		return nil, nil, err
	}
	v.sessions[id] = s
	v.logger.WithFields(logrus.Fields{"session": id, "info": info}).Debug("DKG session started")

	for _, b := range v.backlog[id] {
		msgs, err := s.Handle(b.from, b.msg)
		if err != nil {
			v.logger.WithError(err).WithField("from", b.from).Debug("Dropping backlogged DKG message")
			continue
		}
		out = append(out, msgs...)
	}
	delete(v.backlog, id)
	return out, s.TakeOutcome(), nil
}

// Handle applies a message of a session.
func (v *Voter) Handle(id SessionID, from xor.Name, msg Message) ([]Message, *Outcome, error) {
	v.l.Lock()
	defer v.l.Unlock()

	s, ok := v.sessions[id]
	if !ok {
		if len(v.backlog[id]) < maxBacklog {
			v.backlog[id] = append(v.backlog[id], backlogged{from: from, msg: msg})
		}
		return nil, nil, nil
	}
	out, err := s.Handle(from, msg)
	if err != nil {
		return nil, nil, err
	}
	return out, s.TakeOutcome(), nil
}

// Timeout ends a session that is still running.
func (v *Voter) Timeout(id SessionID) *Outcome {
	v.l.Lock()
	defer v.l.Unlock()

	s, ok := v.sessions[id]
	if !ok {
		return nil
	}
	s.Timeout()
	return s.TakeOutcome()
}

// Info returns the description of a session we participate in.
func (v *Voter) Info(id SessionID) (SessionInfo, bool) {
	v.l.Lock()
	defer v.l.Unlock()
	s, ok := v.sessions[id]
	if !ok {
		return SessionInfo{}, false
	}
	return s.Info(), true
}

// Phase ...
func (v *Voter) Phase(id SessionID) (Phase, bool) {
	v.l.Lock()
	defer v.l.Unlock()
	s, ok := v.sessions[id]
	if !ok {
		return 0, false
	}
	return s.Phase(), true
}

// Prune forgets the sessions (and backlogs) that keep rejects.
func (v *Voter) Prune(keep func(SessionInfo) bool) {
	v.l.Lock()
	defer v.l.Unlock()
	for id, s := range v.sessions {
		if !keep(s.Info()) {
			delete(v.sessions, id)
		}
	}
	v.backlog = make(map[SessionID][]backlogged)
}
