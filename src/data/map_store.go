package data

import (
	"sync"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/types"
	"github.com/sirupsen/logrus"
)

// MapsDir is the name of the map store directory.
const MapsDir = "maps"

// MapStore applies map ops and keeps them in an opLog.
type MapStore struct {
	lock  sync.Mutex
	log   *opLog
	cache map[string]*types.Map
}

// NewMapStore ...
func NewMapStore(root string, used *UsedSpace, logger *logrus.Entry) (*MapStore, error) {
	log, err := newOpLog(root, MapsDir, used, logger)
	if err != nil {
		return nil, err
	}
	return &MapStore{
		log:   log,
		cache: make(map[string]*types.Map),
	}, nil
}

func (s *MapStore) load(addr types.Address) (*types.Map, error) {
	if m, ok := s.cache[addr.Key()]; ok {
		return m, nil
	}

	var m *types.Map
	err := s.log.replay(addr,
		func() interface{} { return &types.MapOp{} },
		func(v interface{}) error {
			op := *v.(*types.MapOp)
			if m == nil {
				res, err := types.NewMap(op)
				m = res
				return err
			}
			return m.Apply(op)
		})
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, common.NewError(common.DataNotFound, "map %v", addr)
	}

	s.cache[addr.Key()] = m
	return m, nil
}

func cloneMap(m *types.Map) *types.Map {
	res := *m
	res.Entries = make(map[string][]byte, len(m.Entries))
	for k, v := range m.Entries {
		res.Entries[k] = v
	}
	return &res
}

// Apply validates op against the current map and persists it.
func (s *MapStore) Apply(op types.MapOp) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	m, err := s.load(op.Address)
	switch {
	case err == nil:
		next := cloneMap(m)
		if err := next.Apply(op); err != nil {
			return err
		}
		if err := s.log.append(op.Address, op); err != nil {
			return err
		}
		s.cache[op.Address.Key()] = next
	case common.Is(err, common.DataNotFound):
		m, err := types.NewMap(op)
		if err != nil {
			return err
		}
		if err := s.log.append(op.Address, op); err != nil {
			return err
		}
		s.cache[op.Address.Key()] = m
	default:
		return err
	}
	return nil
}

// Get returns a copy of the map at addr.
func (s *MapStore) Get(addr types.Address) (types.Map, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	m, err := s.load(addr)
	if err != nil {
		return types.Map{}, err
	}
	return *cloneMap(m), nil
}
