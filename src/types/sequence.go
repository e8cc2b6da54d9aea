package types

import (
	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
)

// SequenceOp mutates a sequence.
type SequenceOp struct {
	Address   Address
	Author    keys.PublicKey
	Version   uint64
	Create    *Policy `codec:",omitempty"`
	SetPolicy *Policy `codec:",omitempty"`
	Append    []byte  `codec:",omitempty"`
}

// Sequence is an append-only list of values.
type Sequence struct {
	Address Address
	Policy  Policy
	Entries [][]byte
}

// NewSequence applies a Create op.
func NewSequence(op SequenceOp) (*Sequence, error) {
	if op.Create == nil {
		return nil, common.NewError(common.DataNotFound, "sequence %v", op.Address)
	}
	if err := checkCreate(op.Author, *op.Create); err != nil {
		return nil, err
	}
	return &Sequence{Address: op.Address, Policy: *op.Create}, nil
}

// Version is the entries count.
func (s *Sequence) Version() uint64 {
	return uint64(len(s.Entries))
}

// Apply checks permissions and the expected version, then mutates.
func (s *Sequence) Apply(op SequenceOp) error {
	if op.Create != nil {
		return common.NewError(common.DataExists, "sequence %v", op.Address)
	}
	if op.SetPolicy != nil {
		if err := s.Policy.IsAllowed(op.Author, ManagePermissionsAction); err != nil {
			return err
		}
		if err := checkVersion(op.Version, s.Version()); err != nil {
			return err
		}
		s.Policy = *op.SetPolicy
		return nil
	}
	if err := s.Policy.IsAllowed(op.Author, WriteAction); err != nil {
		return err
	}
	if err := checkVersion(op.Version, s.Version()); err != nil {
		return err
	}
	s.Entries = append(s.Entries, op.Append)
	return nil
}
