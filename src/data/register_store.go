package data

import (
	"sync"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/types"
	"github.com/sirupsen/logrus"
)

// RegistersDir is the name of the register store directory.
const RegistersDir = "registers"

// RegisterStore applies register ops and keeps them in an opLog. Registers
// are rebuilt from their log on first access and cached afterwards.
type RegisterStore struct {
	lock  sync.Mutex
	log   *opLog
	cache map[string]*types.Register
}

// NewRegisterStore ...
func NewRegisterStore(root string, used *UsedSpace, logger *logrus.Entry) (*RegisterStore, error) {
	log, err := newOpLog(root, RegistersDir, used, logger)
	if err != nil {
		return nil, err
	}
	return &RegisterStore{
		log:   log,
		cache: make(map[string]*types.Register),
	}, nil
}

func (s *RegisterStore) load(addr types.Address) (*types.Register, error) {
	if r, ok := s.cache[addr.Key()]; ok {
		return r, nil
	}

	var reg *types.Register
	err := s.log.replay(addr,
		func() interface{} { return &types.RegisterOp{} },
		func(v interface{}) error {
			op := *v.(*types.RegisterOp)
			if reg == nil {
				r, err := types.NewRegister(op)
				reg = r
				return err
			}
			return reg.Apply(op)
		})
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, common.NewError(common.DataNotFound, "register %v", addr)
	}

	s.cache[addr.Key()] = reg
	return reg, nil
}

// Apply validates op against the current register and persists it. A
// register is created by its first op, which must be a Create.
func (s *RegisterStore) Apply(op types.RegisterOp) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	reg, err := s.load(op.Address)
	switch {
	case err == nil:
		next := *reg
		next.Entries = append([][]byte(nil), reg.Entries...)
		if err := next.Apply(op); err != nil {
			return err
		}
		if err := s.log.append(op.Address, op); err != nil {
			return err
		}
		*reg = next
	case common.Is(err, common.DataNotFound):
		reg, err := types.NewRegister(op)
		if err != nil {
			return err
		}
		if err := s.log.append(op.Address, op); err != nil {
			return err
		}
		s.cache[op.Address.Key()] = reg
	default:
		return err
	}
	return nil
}

// Get returns a copy of the register at addr.
func (s *RegisterStore) Get(addr types.Address) (types.Register, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	reg, err := s.load(addr)
	if err != nil {
		return types.Register{}, err
	}
	res := *reg
	res.Entries = append([][]byte(nil), reg.Entries...)
	return res, nil
}
