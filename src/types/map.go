package types

import (
	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
)

// MapAction ...
type MapAction uint8

const (
	// MapInsert adds a key that must not exist.
	MapInsert MapAction = iota
	// MapUpdate replaces the value of an existing key.
	MapUpdate
	// MapDelete removes an existing key.
	MapDelete
)

// MapOp mutates a map. Create and SetPolicy take precedence over the entry
// action.
type MapOp struct {
	Address   Address
	Author    keys.PublicKey
	Version   uint64
	Create    *Policy `codec:",omitempty"`
	SetPolicy *Policy `codec:",omitempty"`
	Action    MapAction
	Key       string
	Value     []byte `codec:",omitempty"`
}

// Map is a key-value store. Its version counts the entry mutations applied
// since creation.
type Map struct {
	Address   Address
	Policy    Policy
	Entries   map[string][]byte
	Mutations uint64
}

// NewMap applies a Create op.
func NewMap(op MapOp) (*Map, error) {
	if op.Create == nil {
		return nil, common.NewError(common.DataNotFound, "map %v", op.Address)
	}
	if err := checkCreate(op.Author, *op.Create); err != nil {
		return nil, err
	}
	return &Map{Address: op.Address, Policy: *op.Create, Entries: make(map[string][]byte)}, nil
}

// Version ...
func (m *Map) Version() uint64 {
	return m.Mutations
}

// Get ...
func (m *Map) Get(key string) ([]byte, bool) {
	v, ok := m.Entries[key]
	return v, ok
}

// Apply checks permissions and the expected version, then mutates.
func (m *Map) Apply(op MapOp) error {
	if op.Create != nil {
		return common.NewError(common.DataExists, "map %v", op.Address)
	}
	if op.SetPolicy != nil {
		if err := m.Policy.IsAllowed(op.Author, ManagePermissionsAction); err != nil {
			return err
		}
		if err := checkVersion(op.Version, m.Version()); err != nil {
			return err
		}
		m.Policy = *op.SetPolicy
		return nil
	}
	if err := m.Policy.IsAllowed(op.Author, WriteAction); err != nil {
		return err
	}
	if err := checkVersion(op.Version, m.Version()); err != nil {
		return err
	}
	_, exists := m.Entries[op.Key]
	switch op.Action {
	case MapInsert:
		if exists {
			return common.NewError(common.DataExists, "key %q", op.Key)
		}
		m.Entries[op.Key] = op.Value
	case MapUpdate:
		if !exists {
			return common.NewError(common.NoSuchKey, "key %q", op.Key)
		}
		m.Entries[op.Key] = op.Value
	case MapDelete:
		if !exists {
			return common.NewError(common.NoSuchKey, "key %q", op.Key)
		}
		delete(m.Entries, op.Key)
	default:
		return common.NewError(common.InvalidOperation, "map action %d", op.Action)
	}
	m.Mutations++
	return nil
}
