package transfers

import (
	"crypto/ed25519"
	"fmt"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/bls"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
)

// Token amounts are counted in nanos.
type Token uint64

// String ...
func (t Token) String() string {
	return fmt.Sprintf("%d.%09d", uint64(t)/1e9, uint64(t)%1e9)
}

// DebitID identifies a debit: the actor and its counter.
type DebitID struct {
	Actor   keys.PublicKey
	Counter uint64
}

// CreditID is derived from the debit that funds the credit.
type CreditID [32]byte

// Hex ...
func (c CreditID) Hex() string {
	return common.EncodeToString(c[:])
}

// CreditIDOf ...
func CreditIDOf(id DebitID) CreditID {
	return CreditID(crypto.Hash([]byte("credit"), id.Actor[:], common.MustEncodeMsgpack(id.Counter)))
}

// Debit ...
type Debit struct {
	ID     DebitID
	Amount Token
}

// Credit ...
type Credit struct {
	ID        CreditID
	Amount    Token
	Recipient keys.PublicKey
	Msg       string
}

// SignedDebit is a debit signed by its actor.
type SignedDebit struct {
	Debit          Debit
	ActorSignature keys.Signature
}

// Bytes is the encoding signed by the replicas.
func (d SignedDebit) Bytes() []byte {
	return common.MustEncodeMsgpack(d)
}

// SignedCredit is a credit signed by the actor that funds it.
type SignedCredit struct {
	Credit         Credit
	ActorSignature keys.Signature
}

// Bytes is the encoding signed by the replicas.
func (c SignedCredit) Bytes() []byte {
	return common.MustEncodeMsgpack(c)
}

// SignedTransfer is what an Actor submits for validation.
type SignedTransfer struct {
	Debit  SignedDebit
	Credit SignedCredit
}

// NewSignedTransfer builds and signs the transfer of amount from the owner
// of key to recipient, using the given debit counter.
func NewSignedTransfer(key ed25519.PrivateKey, counter uint64, amount Token, recipient keys.PublicKey, msg string) SignedTransfer {
	debit := Debit{ID: DebitID{Actor: keys.PublicKeyOf(key), Counter: counter}, Amount: amount}
	credit := Credit{ID: CreditIDOf(debit.ID), Amount: amount, Recipient: recipient, Msg: msg}
	return SignedTransfer{
		Debit:  SignedDebit{Debit: debit, ActorSignature: keys.Sign(key, common.MustEncodeMsgpack(debit))},
		Credit: SignedCredit{Credit: credit, ActorSignature: keys.Sign(key, common.MustEncodeMsgpack(credit))},
	}
}

// Verify checks the actor signatures and the consistency of the debit and
// the credit.
func (t SignedTransfer) Verify() error {
	debit, credit := t.Debit.Debit, t.Credit.Credit
	actor := debit.ID.Actor
	if !actor.Verify(common.MustEncodeMsgpack(debit), t.Debit.ActorSignature) {
		return common.NewError(common.InvalidSignature, "debit %v/%d", actor, debit.ID.Counter)
	}
	if !actor.Verify(common.MustEncodeMsgpack(credit), t.Credit.ActorSignature) {
		return common.NewError(common.InvalidSignature, "credit %s", credit.ID.Hex())
	}
	if credit.ID != CreditIDOf(debit.ID) || credit.Amount != debit.Amount {
		return common.NewError(common.InvalidOperation, "credit does not match debit %v/%d", actor, debit.ID.Counter)
	}
	return nil
}

// TransferValidated is one replica's validation of a transfer.
type TransferValidated struct {
	Debit     SignedDebit
	Credit    SignedCredit
	DebitSig  bls.SignatureShare
	CreditSig bls.SignatureShare
	Replicas  bls.PublicKeySet
}

// Verify checks both signature shares against the replica key set.
func (v TransferValidated) Verify() error {
	if !v.Replicas.VerifyShare(v.Debit.Bytes(), v.DebitSig) || !v.Replicas.VerifyShare(v.Credit.Bytes(), v.CreditSig) {
		return common.NewError(common.InvalidSignature, "validation share %d", v.DebitSig.Index)
	}
	return nil
}

// TransferAgreementProof proves that a threshold of replicas validated a
// transfer.
type TransferAgreementProof struct {
	Debit     SignedDebit
	Credit    SignedCredit
	DebitSig  bls.Signature
	CreditSig bls.Signature
	Replicas  bls.PublicKeySet
}

// Verify checks the combined signatures. It does not check that the replica
// key is trusted.
func (p TransferAgreementProof) Verify() error {
	key := p.Replicas.PublicKey()
	if !key.Verify(p.Debit.Bytes(), p.DebitSig) || !key.Verify(p.Credit.Bytes(), p.CreditSig) {
		return common.NewError(common.InvalidSignature, "transfer proof %v/%d", p.Debit.Debit.ID.Actor, p.Debit.Debit.ID.Counter)
	}
	return nil
}

// CreditProof extracts the part of the proof the recipient's replicas need.
func (p TransferAgreementProof) CreditProof() CreditAgreementProof {
	return CreditAgreementProof{
		Credit:     p.Credit,
		ReplicaSig: p.CreditSig,
		ReplicaKey: p.Replicas.PublicKey(),
	}
}

// CreditAgreementProof proves that the debiting replicas agreed to a credit.
type CreditAgreementProof struct {
	Credit     SignedCredit
	ReplicaSig bls.Signature
	ReplicaKey bls.PublicKey
}

// Verify ...
func (p CreditAgreementProof) Verify() error {
	if !p.ReplicaKey.Verify(p.Credit.Bytes(), p.ReplicaSig) {
		return common.NewError(common.InvalidSignature, "credit proof %s", p.Credit.Credit.ID.Hex())
	}
	return nil
}

// TransferRegistered ...
type TransferRegistered struct {
	Proof TransferAgreementProof
}

// TransferPropagated ...
type TransferPropagated struct {
	Proof CreditAgreementProof
}

// ReplicaEvent is an entry of a wallet log. Exactly one field is set.
type ReplicaEvent struct {
	Validated  *TransferValidated  `codec:",omitempty"`
	Registered *TransferRegistered `codec:",omitempty"`
	Propagated *TransferPropagated `codec:",omitempty"`
}

// String ...
func (e ReplicaEvent) String() string {
	switch {
	case e.Validated != nil:
		return fmt.Sprintf("Validated(%v/%d)", e.Validated.Debit.Debit.ID.Actor, e.Validated.Debit.Debit.ID.Counter)
	case e.Registered != nil:
		return fmt.Sprintf("Registered(%v/%d)", e.Registered.Proof.Debit.Debit.ID.Actor, e.Registered.Proof.Debit.Debit.ID.Counter)
	case e.Propagated != nil:
		return fmt.Sprintf("Propagated(%s)", e.Propagated.Proof.Credit.Credit.ID.Hex())
	}
	return "Empty"
}
