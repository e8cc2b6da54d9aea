package data

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
	"github.com/maidsafe/temp-safe-network-sub012/src/types"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
	"github.com/sirupsen/logrus"
)

const (
	// ChunksDir is the name of the chunk store directory under the root dir.
	ChunksDir = "chunks"

	ownerExtension = ".owner"
	tmpExtension   = ".tmp"
)

// ChunkStore keeps chunks as files. The owner of a private chunk is kept in a
// sidecar file next to it.
type ChunkStore struct {
	lock   sync.RWMutex
	dir    string
	used   *UsedSpace
	logger *logrus.Entry
}

// NewChunkStore opens the store under root, counting the space used by the
// chunks already present.
func NewChunkStore(root string, used *UsedSpace, logger *logrus.Entry) (*ChunkStore, error) {
	dir := filepath.Join(root, ChunksDir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	s := &ChunkStore{
		dir:    dir,
		used:   used,
		logger: logger,
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var total uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), tmpExtension) {
			os.Remove(filepath.Join(dir, e.Name()))
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		total += uint64(info.Size())
	}
	// Existing data may exceed a capacity lowered since the last run.
	if err := used.Increase(total); err != nil {
		logger.WithError(err).Warn("Stored chunks exceed capacity")
		used.add(total)
	}

	return s, nil
}

func (s *ChunkStore) path(addr xor.Name) string {
	return filepath.Join(s.dir, addr.Hex())
}

// Put stores a chunk. Storing a chunk that is already present fails with
// DataExists, which callers treat as success. A full store fails with
// NotEnoughSpace.
func (s *ChunkStore) Put(chunk types.Chunk) error {
	if err := chunk.Validate(); err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	path := s.path(chunk.Address)
	if _, err := os.Stat(path); err == nil {
		return common.NewError(common.DataExists, "chunk %v", chunk.Address)
	}

	size := uint64(len(chunk.Value))
	if chunk.Owner != nil {
		size += keys.PublicKeySize
	}
	if err := s.used.Increase(size); err != nil {
		return err
	}

	if chunk.Owner != nil {
		if err := writeFile(path+ownerExtension, chunk.Owner[:]); err != nil {
			s.used.Decrease(size)
			return err
		}
	}
	if err := writeFile(path, chunk.Value); err != nil {
		os.Remove(path + ownerExtension)
		s.used.Decrease(size)
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"chunk": chunk.Address,
		"size":  len(chunk.Value),
	}).Debug("Stored chunk")

	return nil
}

// Get returns the chunk at addr or a DataNotFound error.
func (s *ChunkStore) Get(addr xor.Name) (types.Chunk, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	value, err := os.ReadFile(s.path(addr))
	if err != nil {
		if os.IsNotExist(err) {
			return types.Chunk{}, common.NewError(common.DataNotFound, "chunk %v", addr)
		}
		return types.Chunk{}, err
	}

	chunk := types.Chunk{Address: addr, Value: value}

	owner, err := os.ReadFile(s.path(addr) + ownerExtension)
	switch {
	case err == nil:
		if len(owner) != keys.PublicKeySize {
			return types.Chunk{}, common.NewError(common.InvalidState, "corrupted owner of chunk %v", addr)
		}
		var pk keys.PublicKey
		copy(pk[:], owner)
		chunk.Owner = &pk
	case !os.IsNotExist(err):
		return types.Chunk{}, err
	}

	return chunk, nil
}

// Has ...
func (s *ChunkStore) Has(addr xor.Name) bool {
	s.lock.RLock()
	defer s.lock.RUnlock()

	_, err := os.Stat(s.path(addr))
	return err == nil
}

// Delete removes a private chunk on behalf of its owner.
func (s *ChunkStore) Delete(addr xor.Name, requester keys.PublicKey) error {
	chunk, err := s.Get(addr)
	if err != nil {
		return err
	}
	if !chunk.IsPrivate() {
		return common.NewError(common.InvalidOperation, "chunk %v is public", addr)
	}
	if *chunk.Owner != requester {
		return common.NewError(common.AccessDenied, "chunk %v is owned by %v", addr, chunk.Owner)
	}
	return s.remove(chunk)
}

func (s *ChunkStore) remove(chunk types.Chunk) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	path := s.path(chunk.Address)
	if err := os.Remove(path); err != nil {
		return err
	}
	size := uint64(len(chunk.Value))
	if chunk.Owner != nil {
		os.Remove(path + ownerExtension)
		size += keys.PublicKeySize
	}
	s.used.Decrease(size)
	return nil
}

// Keys lists the addresses of every stored chunk.
func (s *ChunkStore) Keys() ([]xor.Name, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var res []xor.Name
	for _, e := range entries {
		if e.IsDir() || strings.Contains(e.Name(), ".") {
			continue
		}
		name, err := xor.NameFromHex(e.Name())
		if err != nil {
			s.logger.WithField("file", e.Name()).Warn("Ignoring unexpected file in chunk store")
			continue
		}
		res = append(res, name)
	}
	return res, nil
}

// UsedSpace returns the tracker shared by the stores.
func (s *ChunkStore) UsedSpace() *UsedSpace {
	return s.used
}

// writeFile writes through a temporary file so a crash never leaves a partial
// chunk under its final name.
func writeFile(path string, data []byte) error {
	tmp := path + tmpExtension
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
