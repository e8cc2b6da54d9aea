package messaging

import (
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
	"github.com/maidsafe/temp-safe-network-sub012/src/transfers"
	"github.com/maidsafe/temp-safe-network-sub012/src/types"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
)

// ServiceMsg is a message between a client and the elders. Exactly one
// field is set.
type ServiceMsg struct {
	Cmd           *DataCmd       `codec:",omitempty"`
	Query         *DataQuery     `codec:",omitempty"`
	CmdError      *CmdError      `codec:",omitempty"`
	CmdAck        *CmdAck        `codec:",omitempty"`
	QueryResponse *QueryResponse `codec:",omitempty"`
}

// Name returns the name of the variant that is set, for logs.
func (m ServiceMsg) Name() string {
	switch {
	case m.Cmd != nil:
		return "Cmd"
	case m.Query != nil:
		return "Query"
	case m.CmdError != nil:
		return "CmdError"
	case m.CmdAck != nil:
		return "CmdAck"
	case m.QueryResponse != nil:
		return "QueryResponse"
	default:
		return "Empty"
	}
}

// DataCmd writes data or moves tokens.
type DataCmd struct {
	StoreChunk  *types.Chunk      `codec:",omitempty"`
	DeleteChunk *xor.Name         `codec:",omitempty"`
	Register    *types.RegisterOp `codec:",omitempty"`
	Map         *types.MapOp      `codec:",omitempty"`
	Sequence    *types.SequenceOp `codec:",omitempty"`
	Transfer    *TransferCmd      `codec:",omitempty"`
}

// TransferCmd ...
type TransferCmd struct {
	Validate  *transfers.SignedTransfer         `codec:",omitempty"`
	Register  *transfers.TransferAgreementProof `codec:",omitempty"`
	Propagate *transfers.CreditAgreementProof   `codec:",omitempty"`
}

// DstName is the name whose section must handle the command.
func (c DataCmd) DstName() xor.Name {
	switch {
	case c.StoreChunk != nil:
		return c.StoreChunk.Address
	case c.DeleteChunk != nil:
		return *c.DeleteChunk
	case c.Register != nil:
		return c.Register.Address.Name
	case c.Map != nil:
		return c.Map.Address.Name
	case c.Sequence != nil:
		return c.Sequence.Address.Name
	case c.Transfer != nil:
		t := c.Transfer
		switch {
		case t.Validate != nil:
			return WalletName(t.Validate.Debit.Debit.ID.Actor)
		case t.Register != nil:
			return WalletName(t.Register.Debit.Debit.ID.Actor)
		case t.Propagate != nil:
			return WalletName(t.Propagate.Credit.Credit.Recipient)
		}
	}
	return xor.Name{}
}

// DataQuery reads data or a wallet.
type DataQuery struct {
	GetChunk    *xor.Name       `codec:",omitempty"`
	GetRegister *types.Address  `codec:",omitempty"`
	GetMap      *types.Address  `codec:",omitempty"`
	GetSequence *types.Address  `codec:",omitempty"`
	GetBalance  *keys.PublicKey `codec:",omitempty"`
	GetHistory  *keys.PublicKey `codec:",omitempty"`
}

// DstName is the name whose section must answer the query.
func (q DataQuery) DstName() xor.Name {
	switch {
	case q.GetChunk != nil:
		return *q.GetChunk
	case q.GetRegister != nil:
		return q.GetRegister.Name
	case q.GetMap != nil:
		return q.GetMap.Name
	case q.GetSequence != nil:
		return q.GetSequence.Name
	case q.GetBalance != nil:
		return WalletName(*q.GetBalance)
	case q.GetHistory != nil:
		return WalletName(*q.GetHistory)
	}
	return xor.Name{}
}

// WalletName is the name of the section holding the wallet of pk.
func WalletName(pk keys.PublicKey) xor.Name {
	return xor.NameFromPublicKey(pk[:])
}

// CmdError reports a failed command.
type CmdError struct {
	CorrelationID MsgID
	Error         ErrorMsg
}

// CmdAck reports a successful command. Transfer commands carry the replica's
// product.
type CmdAck struct {
	CorrelationID MsgID
	Validated     *transfers.TransferValidated  `codec:",omitempty"`
	Registered    *transfers.TransferRegistered `codec:",omitempty"`
	Propagated    *transfers.TransferPropagated `codec:",omitempty"`
}

// QueryResponse answers a DataQuery. Error is set when the query failed.
type QueryResponse struct {
	CorrelationID MsgID
	Error         *ErrorMsg                `codec:",omitempty"`
	Chunk         *types.Chunk             `codec:",omitempty"`
	Register      *types.Register          `codec:",omitempty"`
	Map           *types.Map               `codec:",omitempty"`
	Sequence      *types.Sequence          `codec:",omitempty"`
	Balance       *transfers.Token         `codec:",omitempty"`
	NextDebit     uint64                   `codec:",omitempty"`
	History       []transfers.ReplicaEvent `codec:",omitempty"`
}
