package data

import (
	"sync"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/types"
	"github.com/sirupsen/logrus"
)

// SequencesDir is the name of the sequence store directory.
const SequencesDir = "sequences"

// SequenceStore applies sequence ops and keeps them in an opLog.
type SequenceStore struct {
	lock  sync.Mutex
	log   *opLog
	cache map[string]*types.Sequence
}

// NewSequenceStore ...
func NewSequenceStore(root string, used *UsedSpace, logger *logrus.Entry) (*SequenceStore, error) {
	log, err := newOpLog(root, SequencesDir, used, logger)
	if err != nil {
		return nil, err
	}
	return &SequenceStore{
		log:   log,
		cache: make(map[string]*types.Sequence),
	}, nil
}

func (s *SequenceStore) load(addr types.Address) (*types.Sequence, error) {
	if seq, ok := s.cache[addr.Key()]; ok {
		return seq, nil
	}

	var seq *types.Sequence
	err := s.log.replay(addr,
		func() interface{} { return &types.SequenceOp{} },
		func(v interface{}) error {
			op := *v.(*types.SequenceOp)
			if seq == nil {
				res, err := types.NewSequence(op)
				seq = res
				return err
			}
			return seq.Apply(op)
		})
	if err != nil {
		return nil, err
	}
	if seq == nil {
		return nil, common.NewError(common.DataNotFound, "sequence %v", addr)
	}

	s.cache[addr.Key()] = seq
	return seq, nil
}

// Apply validates op against the current sequence and persists it.
func (s *SequenceStore) Apply(op types.SequenceOp) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	seq, err := s.load(op.Address)
	switch {
	case err == nil:
		next := *seq
		next.Entries = append([][]byte(nil), seq.Entries...)
		if err := next.Apply(op); err != nil {
			return err
		}
		if err := s.log.append(op.Address, op); err != nil {
			return err
		}
		*seq = next
	case common.Is(err, common.DataNotFound):
		seq, err := types.NewSequence(op)
		if err != nil {
			return err
		}
		if err := s.log.append(op.Address, op); err != nil {
			return err
		}
		s.cache[op.Address.Key()] = seq
	default:
		return err
	}
	return nil
}

// Get returns a copy of the sequence at addr.
func (s *SequenceStore) Get(addr types.Address) (types.Sequence, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	seq, err := s.load(addr)
	if err != nil {
		return types.Sequence{}, err
	}
	res := *seq
	res.Entries = append([][]byte(nil), seq.Entries...)
	return res, nil
}
