package metadata

import (
	"sort"
	"sync"

	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
)

type nameSet map[xor.Name]struct{}

func (s nameSet) sorted() []xor.Name {
	res := make([]xor.Name, 0, len(s))
	for n := range s {
		res = append(res, n)
	}
	sort.Slice(res, func(i, j int) bool {
		return string(res[i][:]) < string(res[j][:])
	})
	return res
}

// InmemStore implements the Store interface with in-memory maps.
type InmemStore struct {
	lock    sync.RWMutex
	holders map[xor.Name]nameSet
	held    map[xor.Name]nameSet
}

// NewInmemStore ...
func NewInmemStore() *InmemStore {
	return &InmemStore{
		holders: make(map[xor.Name]nameSet),
		held:    make(map[xor.Name]nameSet),
	}
}

// Holders implements the Store interface.
func (s *InmemStore) Holders(chunk xor.Name) ([]xor.Name, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.holders[chunk].sorted(), nil
}

// AddHolders implements the Store interface.
func (s *InmemStore) AddHolders(chunk xor.Name, adults ...xor.Name) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, a := range adults {
		s.add(chunk, a)
	}
	return nil
}

// SetHolders implements the Store interface.
func (s *InmemStore) SetHolders(chunk xor.Name, adults []xor.Name) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	for a := range s.holders[chunk] {
		s.remove(chunk, a)
	}
	for _, a := range adults {
		s.add(chunk, a)
	}
	return nil
}

// RemoveHolder implements the Store interface.
func (s *InmemStore) RemoveHolder(chunk xor.Name, adult xor.Name) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.remove(chunk, adult)
	return nil
}

// ChunksHeldBy implements the Store interface.
func (s *InmemStore) ChunksHeldBy(adult xor.Name) ([]xor.Name, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.held[adult].sorted(), nil
}

// RemoveAdult implements the Store interface.
func (s *InmemStore) RemoveAdult(adult xor.Name) ([]xor.Name, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	chunks := s.held[adult].sorted()
	for _, c := range chunks {
		s.remove(c, adult)
	}
	return chunks, nil
}

// Chunks implements the Store interface.
func (s *InmemStore) Chunks() ([]xor.Name, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	all := make(nameSet, len(s.holders))
	for c := range s.holders {
		all[c] = struct{}{}
	}
	return all.sorted(), nil
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}

func (s *InmemStore) add(chunk, adult xor.Name) {
	if s.holders[chunk] == nil {
		s.holders[chunk] = make(nameSet)
	}
	s.holders[chunk][adult] = struct{}{}

	if s.held[adult] == nil {
		s.held[adult] = make(nameSet)
	}
	s.held[adult][chunk] = struct{}{}
}

func (s *InmemStore) remove(chunk, adult xor.Name) {
	delete(s.holders[chunk], adult)
	if len(s.holders[chunk]) == 0 {
		delete(s.holders, chunk)
	}
	delete(s.held[adult], chunk)
	if len(s.held[adult]) == 0 {
		delete(s.held, adult)
	}
}
