package metadata

import (
	"fmt"
	"os"
	"strings"

	"github.com/dgraph-io/badger"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
)

const (
	holderPrefix = "holder"
	heldPrefix   = "held"
)

// BadgerStore implements the Store interface with a badger database. Every
// write goes to the database first, then to the InmemStore that serves
// reads.
type BadgerStore struct {
	inmemStore *InmemStore
	db         *badger.DB
	path       string
}

// NewBadgerStore opens or creates the database at path and loads its records
// into memory.
func NewBadgerStore(path string) (*BadgerStore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		inmemStore: NewInmemStore(),
		db:         handle,
		path:       path,
	}

	if err := store.dbLoad(); err != nil {
		handle.Close()
		return nil, err
	}

	return store, nil
}

//==============================================================================
//Keys

func holderKey(chunk, adult xor.Name) []byte {
	return []byte(fmt.Sprintf("%s_%s_%s", holderPrefix, chunk.Hex(), adult.Hex()))
}

func heldKey(adult, chunk xor.Name) []byte {
	return []byte(fmt.Sprintf("%s_%s_%s", heldPrefix, adult.Hex(), chunk.Hex()))
}

//==============================================================================
//Implement the Store interface

// Holders implements the Store interface.
func (s *BadgerStore) Holders(chunk xor.Name) ([]xor.Name, error) {
	return s.inmemStore.Holders(chunk)
}

// AddHolders implements the Store interface.
func (s *BadgerStore) AddHolders(chunk xor.Name, adults ...xor.Name) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, a := range adults {
			if err := s.dbSet(txn, chunk, a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.inmemStore.AddHolders(chunk, adults...)
}

// SetHolders implements the Store interface.
func (s *BadgerStore) SetHolders(chunk xor.Name, adults []xor.Name) error {
	current, _ := s.inmemStore.Holders(chunk)

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, a := range current {
			if err := s.dbDelete(txn, chunk, a); err != nil {
				return err
			}
		}
		for _, a := range adults {
			if err := s.dbSet(txn, chunk, a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.inmemStore.SetHolders(chunk, adults)
}

// RemoveHolder implements the Store interface.
func (s *BadgerStore) RemoveHolder(chunk xor.Name, adult xor.Name) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return s.dbDelete(txn, chunk, adult)
	})
	if err != nil {
		return err
	}
	return s.inmemStore.RemoveHolder(chunk, adult)
}

// ChunksHeldBy implements the Store interface.
func (s *BadgerStore) ChunksHeldBy(adult xor.Name) ([]xor.Name, error) {
	return s.inmemStore.ChunksHeldBy(adult)
}

// RemoveAdult implements the Store interface.
func (s *BadgerStore) RemoveAdult(adult xor.Name) ([]xor.Name, error) {
	chunks, _ := s.inmemStore.ChunksHeldBy(adult)

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, c := range chunks {
			if err := s.dbDelete(txn, c, adult); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.inmemStore.RemoveAdult(adult)
}

// Chunks implements the Store interface.
func (s *BadgerStore) Chunks() ([]xor.Name, error) {
	return s.inmemStore.Chunks()
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	if err := s.inmemStore.Close(); err != nil {
		return err
	}
	return s.db.Close()
}

//==============================================================================
//DB Methods

func (s *BadgerStore) dbSet(txn *badger.Txn, chunk, adult xor.Name) error {
	//insert [holder_chunk_adult] => []
	if err := txn.Set(holderKey(chunk, adult), nil); err != nil {
		return err
	}
	//insert [held_adult_chunk] => []
	return txn.Set(heldKey(adult, chunk), nil)
}

func (s *BadgerStore) dbDelete(txn *badger.Txn, chunk, adult xor.Name) error {
	if err := txn.Delete(holderKey(chunk, adult)); err != nil {
		return err
	}
	return txn.Delete(heldKey(adult, chunk))
}

// dbLoad reads every holder record into the InmemStore.
func (s *BadgerStore) dbLoad() error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(holderPrefix + "_")

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := string(it.Item().Key())
			parts := strings.Split(k[len(prefix):], "_")
			if len(parts) != 2 {
				return fmt.Errorf("malformed holder key %q", k)
			}
			chunk, err := xor.NameFromHex(parts[0])
			if err != nil {
				return err
			}
			adult, err := xor.NameFromHex(parts[1])
			if err != nil {
				return err
			}
			s.inmemStore.AddHolders(chunk, adult)
		}

		return nil
	})
}
