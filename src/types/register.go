package types

import (
	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
)

// RegisterOp mutates a register. Exactly one of Create, Write and SetPolicy
// is set.
type RegisterOp struct {
	Address   Address
	Author    keys.PublicKey
	Version   uint64
	Create    *Policy `codec:",omitempty"`
	Write     []byte  `codec:",omitempty"`
	SetPolicy *Policy `codec:",omitempty"`
}

// Register holds the history of values written to it; the last one is the
// current value.
type Register struct {
	Address Address
	Policy  Policy
	Entries [][]byte
}

// NewRegister applies a Create op.
func NewRegister(op RegisterOp) (*Register, error) {
	if op.Create == nil {
		return nil, common.NewError(common.DataNotFound, "register %v", op.Address)
	}
	if err := checkCreate(op.Author, *op.Create); err != nil {
		return nil, err
	}
	return &Register{Address: op.Address, Policy: *op.Create}, nil
}

// Version is the entries count.
func (r *Register) Version() uint64 {
	return uint64(len(r.Entries))
}

// Value returns the current value.
func (r *Register) Value() ([]byte, bool) {
	if len(r.Entries) == 0 {
		return nil, false
	}
	return r.Entries[len(r.Entries)-1], true
}

// Apply checks permissions and the expected version, then mutates.
func (r *Register) Apply(op RegisterOp) error {
	switch {
	case op.Create != nil:
		return common.NewError(common.DataExists, "register %v", op.Address)
	case op.SetPolicy != nil:
		if err := r.Policy.IsAllowed(op.Author, ManagePermissionsAction); err != nil {
			return err
		}
		if err := checkVersion(op.Version, r.Version()); err != nil {
			return err
		}
		r.Policy = *op.SetPolicy
	default:
		if err := r.Policy.IsAllowed(op.Author, WriteAction); err != nil {
			return err
		}
		if err := checkVersion(op.Version, r.Version()); err != nil {
			return err
		}
		r.Entries = append(r.Entries, op.Write)
	}
	return nil
}
