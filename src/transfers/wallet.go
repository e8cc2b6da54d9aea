package transfers

import (
	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
)

// Wallet is the state of a wallet, folded from its event log.
type Wallet struct {
	Owner     keys.PublicKey
	Balance   Token
	NextDebit uint64
	Pending   *SignedTransfer
	credits   map[CreditID]struct{}
}

// NewWallet ...
func NewWallet(owner keys.PublicKey) *Wallet {
	return &Wallet{Owner: owner, credits: make(map[CreditID]struct{})}
}

// HasCredit ...
func (w *Wallet) HasCredit(id CreditID) bool {
	_, ok := w.credits[id]
	return ok
}

// CheckDebit returns the error a replica gives when asked to validate t
// against this wallet, or nil.
func (w *Wallet) CheckDebit(t SignedTransfer) error {
	debit := t.Debit.Debit
	if debit.ID.Actor != w.Owner {
		return common.NewError(common.InvalidOperation, "debit from %v in wallet of %v", debit.ID.Actor, w.Owner)
	}
	if debit.Amount == 0 {
		return common.NewError(common.InvalidAmount, "zero amount")
	}
	if t.Credit.Credit.Recipient == w.Owner {
		return common.NewError(common.InvalidOperation, "transfer to self")
	}
	if w.Pending != nil {
		if w.Pending.Debit.Debit.ID == debit.ID {
			return common.NewError(common.DoubleSpend, "debit %d is already pending", debit.ID.Counter)
		}
		return common.NewError(common.OutOfOrder, "debit %d is pending", w.Pending.Debit.Debit.ID.Counter)
	}
	if debit.ID.Counter < w.NextDebit {
		return common.NewError(common.DoubleSpend, "debit %d already registered", debit.ID.Counter)
	}
	if debit.ID.Counter > w.NextDebit {
		return common.NewError(common.OutOfOrder, "debit %d, expected %d", debit.ID.Counter, w.NextDebit)
	}
	if debit.Amount > w.Balance {
		return common.NewError(common.BalanceExceeded, "debit of %v, balance %v", debit.Amount, w.Balance)
	}
	return nil
}

// CheckRegistration returns the error a replica gives when asked to register
// the debit of a proof, or nil.
func (w *Wallet) CheckRegistration(p TransferAgreementProof) error {
	debit := p.Debit.Debit
	if debit.ID.Counter < w.NextDebit {
		return common.NewError(common.DoubleSpend, "debit %d already registered", debit.ID.Counter)
	}
	if debit.ID.Counter > w.NextDebit {
		return common.NewError(common.OutOfOrder, "debit %d, expected %d", debit.ID.Counter, w.NextDebit)
	}
	if debit.Amount > w.Balance {
		return common.NewError(common.BalanceExceeded, "debit of %v, balance %v", debit.Amount, w.Balance)
	}
	return nil
}

// Apply folds one event into the wallet. Events are assumed valid.
func (w *Wallet) Apply(e ReplicaEvent) {
	switch {
	case e.Validated != nil:
		t := SignedTransfer{Debit: e.Validated.Debit, Credit: e.Validated.Credit}
		w.Pending = &t
	case e.Registered != nil:
		debit := e.Registered.Proof.Debit.Debit
		w.Balance -= debit.Amount
		w.NextDebit = debit.ID.Counter + 1
		w.Pending = nil
	case e.Propagated != nil:
		credit := e.Propagated.Proof.Credit.Credit
		w.Balance += credit.Amount
		w.credits[credit.ID] = struct{}{}
	}
}
