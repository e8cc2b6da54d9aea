package dkg

import (
	"fmt"
	"sort"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/bls"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
)

// Phase ...
type Phase uint8

const (
	// Initialising collects the ephemeral keys.
	Initialising Phase = iota
	// Contributing collects the parts.
	Contributing
	// Complaining collects the complaints.
	Complaining
	// Finalised ...
	Finalised
	// Failed ...
	Failed
)

// String ...
func (p Phase) String() string {
	switch p {
	case Initialising:
		return "Initialising"
	case Contributing:
		return "Contributing"
	case Complaining:
		return "Complaining"
	case Finalised:
		return "Finalised"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("Phase(%d)", uint8(p))
	}
}

// Outcome is the result of a session. On success Share and KeySet are set;
// on failure Accused names the participants to exclude from the next try.
type Outcome struct {
	Session SessionInfo
	Share   *bls.SecretKeyShare
	KeySet  bls.PublicKeySet
	Accused []xor.Name
}

// Failed ...
func (o *Outcome) Failed() bool {
	return o.Share == nil
}

type inbound struct {
	from int
	msg  Message
}

// Session is one participant's state machine for a key generation. It is not
// safe for concurrent use.
type Session struct {
	info SessionInfo
	id   SessionID
	our  int
	n    int
	t    int

	phase Phase
	eph   *ephemeralKey

	ephKeys    map[int][32]byte
	parts      map[int]Part
	complaints map[int][]int
	received   map[int][]byte

	outcome  *Outcome
	reported bool
}

// NewSession starts our participation in info. It returns the messages to
// broadcast, our ephemeral key first.
func NewSession(info SessionInfo, our xor.Name) (*Session, []Message, error) {
	index := info.IndexOf(our)
	if index < 0 {
		return nil, nil, common.NewError(common.InvalidOperation, "%v is not a participant of %v", our, info)
	}
	eph, err := newEphemeralKey()
	if err != nil {
		return nil, nil, err
	}
	s := &Session{
		info:       info,
		id:         info.ID(),
		our:        index,
		n:          len(info.Elders),
		t:          info.Threshold(),
		phase:      Initialising,
		eph:        eph,
		ephKeys:    make(map[int][32]byte),
		parts:      make(map[int]Part),
		complaints: make(map[int][]int),
		received:   make(map[int][]byte),
	}
	pub := eph.pub
	first := Message{Ephemeral: &pub}
	out, err := s.process(inbound{from: s.our, msg: first})
	if err != nil {
		return nil, nil, err
	}
	return s, append([]Message{first}, out...), nil
}

// Info ...
func (s *Session) Info() SessionInfo {
	return s.info
}

// Phase ...
func (s *Session) Phase() Phase {
	return s.phase
}

// Handle applies a message from the participant called from and returns the
// messages we must broadcast in response.
func (s *Session) Handle(from xor.Name, msg Message) ([]Message, error) {
	index := s.info.IndexOf(from)
	if index < 0 {
		return nil, common.NewError(common.InvalidMessage, "%v is not a participant of %v", from, s.info)
	}
	return s.process(inbound{from: index, msg: msg})
}

// TakeOutcome returns the outcome the first time it is called after the
// session ended, and nil otherwise.
func (s *Session) TakeOutcome() *Outcome {
	if s.outcome == nil || s.reported {
		return nil
	}
	s.reported = true
	return s.outcome
}

// Timeout ends a session that did not complete, accusing the participants
// that did not send what the current phase needs.
func (s *Session) Timeout() {
	if s.outcome != nil {
		return
	}
	var missing []int
	for i := 0; i < s.n; i++ {
		var ok bool
		switch s.phase {
		case Initialising:
			_, ok = s.ephKeys[i]
		case Contributing:
			_, ok = s.parts[i]
		case Complaining:
			_, ok = s.complaints[i]
		}
		if !ok {
			missing = append(missing, i)
		}
	}
	s.fail(missing)
}

// process applies a message and every message of our own it triggers.
func (s *Session) process(first inbound) ([]Message, error) {
	var out []Message
	queue := []inbound{first}
	for len(queue) > 0 {
		in := queue[0]
		queue = queue[1:]
		s.apply(in)
		msgs, err := s.progress()
		if err != nil {
			return out, err
		}
		for _, m := range msgs {
			out = append(out, m)
			queue = append(queue, inbound{from: s.our, msg: m})
		}
	}
	return out, nil
}

func (s *Session) apply(in inbound) {
	switch {
	case in.msg.Ephemeral != nil:
		if _, ok := s.ephKeys[in.from]; !ok {
			s.ephKeys[in.from] = *in.msg.Ephemeral
		}
	case in.msg.Vote != nil && in.msg.Vote.Part != nil:
		if _, ok := s.parts[in.from]; !ok {
			s.parts[in.from] = *in.msg.Vote.Part
		}
	case in.msg.Vote != nil && in.msg.Vote.Complaint != nil:
		if _, ok := s.complaints[in.from]; !ok {
			s.complaints[in.from] = in.msg.Vote.Complaint.Accused
		}
	}
}

// progress moves to the next phase when the current one is complete.
func (s *Session) progress() ([]Message, error) {
	switch s.phase {
	case Initialising:
		if len(s.ephKeys) < s.n {
			return nil, nil
		}
		part, err := s.deal()
		if err != nil {
			return nil, err
		}
		s.phase = Contributing
		return []Message{{Vote: &Vote{Part: part}}}, nil
	case Contributing:
		if len(s.parts) < s.n {
			return nil, nil
		}
		accused := s.verifyParts()
		s.phase = Complaining
		return []Message{{Vote: &Vote{Complaint: &Complaint{Accused: accused}}}}, nil
	case Complaining:
		if len(s.complaints) < s.n {
			return nil, nil
		}
		return nil, s.finalise()
	}
	return nil, nil
}

func (s *Session) deal() (*Part, error) {
	poly := bls.RandomPoly(s.t)
	part := &Part{Commitments: poly.Commitments(), Shares: make([][]byte, s.n)}
	for j := 0; j < s.n; j++ {
		share, err := poly.Evaluate(j)
		if err != nil {
			return nil, err
		}
		key, err := s.eph.shareKey(s.ephKeys[j], s.id, s.our, j)
		if err != nil {
			return nil, err
		}
		if part.Shares[j], err = seal(key, share); err != nil {
			return nil, err
		}
	}
	return part, nil
}

// verifyParts decrypts our share of every part and returns the dealers whose
// share is missing or does not match their commitments.
func (s *Session) verifyParts() []int {
	accused := []int{}
	for i := 0; i < s.n; i++ {
		share, ok := s.decryptShare(i)
		if !ok {
			accused = append(accused, i)
			continue
		}
		s.received[i] = share
	}
	return accused
}

func (s *Session) decryptShare(dealer int) ([]byte, bool) {
	part := s.parts[dealer]
	if len(part.Commitments) != s.t+1 || len(part.Shares) != s.n {
		return nil, false
	}
	key, err := s.eph.shareKey(s.ephKeys[dealer], s.id, dealer, s.our)
	if err != nil {
		return nil, false
	}
	share, err := open(key, part.Shares[s.our])
	if err != nil {
		return nil, false
	}
	if !bls.VerifyEvaluation(part.Commitments, s.our, share) {
		return nil, false
	}
	return share, true
}

func (s *Session) finalise() error {
	accused := make(map[int]struct{})
	for _, list := range s.complaints {
		for _, i := range list {
			if i >= 0 && i < s.n {
				accused[i] = struct{}{}
			}
		}
	}
	if len(accused) > 0 {
		indices := make([]int, 0, len(accused))
		for i := range accused {
			indices = append(indices, i)
		}
		sort.Ints(indices)
		s.fail(indices)
		return nil
	}

	shares := make([][]byte, s.n)
	commitments := make([][]bls.PublicKey, s.n)
	for i := 0; i < s.n; i++ {
		shares[i] = s.received[i]
		commitments[i] = s.parts[i].Commitments
	}
	share, err := bls.SumShares(s.our, shares)
	if err != nil {
		return err
	}
	sum, err := bls.SumCommitments(commitments)
	if err != nil {
		return err
	}
	set := bls.PublicKeySet{Threshold: s.t, Commitments: sum}
	expected, err := set.PublicKeyShare(s.our)
	if err != nil {
		return err
	}
	if share.PublicKeyShare() != expected {
		return common.NewError(common.InvalidState, "key share does not match the key set of %v", s.info)
	}
	s.phase = Finalised
	s.outcome = &Outcome{Session: s.info, Share: share, KeySet: set}
	return nil
}

func (s *Session) fail(indices []int) {
	names := make([]xor.Name, len(indices))
	for k, i := range indices {
		names[k] = s.info.Elders[i].Name
	}
	s.phase = Failed
	s.outcome = &Outcome{Session: s.info, Accused: names}
}
