package transfers

import (
	"crypto/ed25519"
	"sync"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/bls"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
)

// Actor is the client side of a wallet. It has at most one transfer in
// flight: it signs it, collects the replicas' validations and combines them
// into a proof once it holds more than the threshold.
type Actor struct {
	l sync.Mutex

	key  ed25519.PrivateKey
	pub  keys.PublicKey
	next uint64

	pending      *SignedTransfer
	replicas     *bls.PublicKeySet
	debitShares  []bls.SignatureShare
	creditShares []bls.SignatureShare
	proof        *TransferAgreementProof
}

// NewActor returns the actor of the wallet of key, whose next debit uses
// counter next.
func NewActor(key ed25519.PrivateKey, next uint64) *Actor {
	return &Actor{key: key, pub: keys.PublicKeyOf(key), next: next}
}

// PublicKey ...
func (a *Actor) PublicKey() keys.PublicKey {
	return a.pub
}

// NextDebit ...
func (a *Actor) NextDebit() uint64 {
	a.l.Lock()
	defer a.l.Unlock()
	return a.next
}

// SetNextDebit resynchronises the counter with the replicas.
func (a *Actor) SetNextDebit(next uint64) {
	a.l.Lock()
	defer a.l.Unlock()
	a.next = next
}

// Transfer signs a new transfer. It fails while another one is in flight.
func (a *Actor) Transfer(amount Token, recipient keys.PublicKey, msg string) (SignedTransfer, error) {
	a.l.Lock()
	defer a.l.Unlock()
	if a.pending != nil {
		return SignedTransfer{}, common.NewError(common.InvalidOperation, "debit %d is in flight", a.next)
	}
	t := NewSignedTransfer(a.key, a.next, amount, recipient, msg)
	a.pending = &t
	return t, nil
}

// ReceiveValidation accumulates one replica's validation of the transfer in
// flight. It returns the proof once enough validations were received, and
// nil before that.
func (a *Actor) ReceiveValidation(v TransferValidated) (*TransferAgreementProof, error) {
	a.l.Lock()
	defer a.l.Unlock()

	if a.pending == nil || v.Debit.Debit.ID != a.pending.Debit.Debit.ID {
		return nil, common.NewError(common.InvalidOperation, "validation of debit %d is not expected", v.Debit.Debit.ID.Counter)
	}
	if a.proof != nil {
		return a.proof, nil
	}
	if err := v.Verify(); err != nil {
		return nil, err
	}
	if a.replicas == nil || !a.replicas.Equal(v.Replicas) {
		// Validations under another key cannot be combined with ours; the
		// newest key wins.
		set := v.Replicas
		a.replicas = &set
		a.debitShares = nil
		a.creditShares = nil
	}
	a.debitShares = append(a.debitShares, v.DebitSig)
	a.creditShares = append(a.creditShares, v.CreditSig)
	if distinct(a.debitShares) <= a.replicas.Threshold {
		return nil, nil
	}

	debitSig, err := a.replicas.Combine(a.debitShares)
	if err != nil {
		return nil, err
	}
	creditSig, err := a.replicas.Combine(a.creditShares)
	if err != nil {
		return nil, err
	}
	a.proof = &TransferAgreementProof{
		Debit:     a.pending.Debit,
		Credit:    a.pending.Credit,
		DebitSig:  debitSig,
		CreditSig: creditSig,
		Replicas:  *a.replicas,
	}
	if err := a.proof.Verify(); err != nil {
		a.proof = nil
		return nil, err
	}
	return a.proof, nil
}

// Registered marks the transfer in flight as done.
func (a *Actor) Registered() {
	a.l.Lock()
	defer a.l.Unlock()
	if a.pending != nil {
		a.next = a.pending.Debit.Debit.ID.Counter + 1
	}
	a.reset()
}

// Abort forgets the transfer in flight.
func (a *Actor) Abort() {
	a.l.Lock()
	defer a.l.Unlock()
	a.reset()
}

func (a *Actor) reset() {
	a.pending = nil
	a.replicas = nil
	a.debitShares = nil
	a.creditShares = nil
	a.proof = nil
}

func distinct(shares []bls.SignatureShare) int {
	seen := make(map[int]struct{}, len(shares))
	for _, s := range shares {
		seen[s.Index] = struct{}{}
	}
	return len(seen)
}
