package types

import (
	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
)

// Action is what a user attempts on mutable data.
type Action uint8

const (
	// ReadAction ...
	ReadAction Action = iota
	// WriteAction covers write, append, insert, update and delete.
	WriteAction
	// ManagePermissionsAction covers policy changes.
	ManagePermissionsAction
)

// PermissionSet ...
type PermissionSet struct {
	Read              bool
	Write             bool
	ManagePermissions bool
}

// Policy decides who may do what with a data item. The owner may do
// anything; a public item can be read by anyone.
type Policy struct {
	Owner       keys.PublicKey
	Public      bool
	Permissions map[keys.PublicKey]PermissionSet
}

// IsAllowed returns an AccessDenied error when user may not perform action.
func (p Policy) IsAllowed(user keys.PublicKey, action Action) error {
	if user == p.Owner {
		return nil
	}
	perms := p.Permissions[user]
	switch action {
	case ReadAction:
		if p.Public || perms.Read {
			return nil
		}
	case WriteAction:
		if perms.Write {
			return nil
		}
	case ManagePermissionsAction:
		if perms.ManagePermissions {
			return nil
		}
	}
	return common.NewError(common.AccessDenied, "%v may not perform action %d", user, action)
}

// checkCreate verifies that the author creates a policy it owns.
func checkCreate(author keys.PublicKey, policy Policy) error {
	if policy.Owner != author {
		return common.NewError(common.AccessDenied, "%v may not create data owned by %v", author, policy.Owner)
	}
	return nil
}

func checkVersion(expected, current uint64) error {
	if expected != current {
		return common.NewError(common.InvalidSuccessor, "expected version %d, current is %d", expected, current)
	}
	return nil
}
