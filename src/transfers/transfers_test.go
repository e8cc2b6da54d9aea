package transfers

import (
	"crypto/ed25519"
	"testing"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/bls"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trustAll map[bls.PublicKey]bool

func (t trustAll) KnownKey(key bls.PublicKey) bool {
	return t[key]
}

type ledger struct {
	set      bls.PublicKeySet
	replicas []*Replicas
	dirs     []string
	trusted  trustAll
}

func newLedger(t *testing.T, n int) *ledger {
	set, shares, err := bls.GenerateKeySet(bls.Threshold(n), n)
	require.NoError(t, err)
	l := &ledger{set: set, trusted: trustAll{set.PublicKey(): true}}
	for i := 0; i < n; i++ {
		dir := t.TempDir()
		r := newReplicas(t, dir, l.trusted)
		r.SetKeyShare(shares[i], set)
		l.replicas = append(l.replicas, r)
		l.dirs = append(l.dirs, dir)
	}
	return l
}

func newReplicas(t *testing.T, dir string, trusted KeyChecker) *Replicas {
	logger := common.NewTestEntry(t, logrus.DebugLevel)
	store, err := NewLogStore(dir, logger)
	require.NoError(t, err)
	r, err := NewReplicas(store, trusted, logger)
	require.NoError(t, err)
	return r
}

func newKey(t *testing.T) ed25519.PrivateKey {
	k, err := keys.GenerateKey()
	require.NoError(t, err)
	return k
}

// fund mints amount to owner with a single-elder genesis section.
func (l *ledger) fund(t *testing.T, owner keys.PublicKey, amount Token) {
	set, shares, err := bls.GenerateKeySet(0, 1)
	require.NoError(t, err)
	l.trusted[set.PublicKey()] = true
	proof, err := GenesisCredit(shares[0], set, owner, amount)
	require.NoError(t, err)
	for _, r := range l.replicas {
		_, err := r.ReceivePropagated(proof)
		require.NoError(t, err)
	}
}

// transfer runs a transfer through validation, registration and
// propagation.
func (l *ledger) transfer(t *testing.T, a *Actor, amount Token, to keys.PublicKey) {
	st, err := a.Transfer(amount, to, "")
	require.NoError(t, err)

	var proof *TransferAgreementProof
	for _, r := range l.replicas {
		v, err := r.Validate(st)
		require.NoError(t, err)
		proof, err = a.ReceiveValidation(v)
		require.NoError(t, err)
		if proof != nil {
			break
		}
	}
	require.NotNil(t, proof)
	for _, r := range l.replicas {
		_, err := r.Register(*proof)
		require.NoError(t, err)
		_, err = r.ReceivePropagated(proof.CreditProof())
		require.NoError(t, err)
	}
	a.Registered()
}

func TestTransferFlow(t *testing.T) {
	l := newLedger(t, 4)
	alice, bob := newKey(t), newKey(t)
	alicePK, bobPK := keys.PublicKeyOf(alice), keys.PublicKeyOf(bob)
	l.fund(t, alicePK, 100)

	a := NewActor(alice, 0)
	l.transfer(t, a, 30, bobPK)

	for _, r := range l.replicas {
		assert.Equal(t, Token(70), r.Balance(alicePK))
		assert.Equal(t, Token(30), r.Balance(bobPK))
		assert.Equal(t, uint64(1), r.NextDebit(alicePK))
	}
	assert.Equal(t, uint64(1), a.NextDebit())

	b := NewActor(bob, 0)
	l.transfer(t, b, 10, alicePK)
	assert.Equal(t, Token(80), l.replicas[0].Balance(alicePK))
	assert.Equal(t, Token(20), l.replicas[0].Balance(bobPK))
}

func TestValidationErrors(t *testing.T) {
	l := newLedger(t, 1)
	alice, bob := newKey(t), newKey(t)
	alicePK, bobPK := keys.PublicKeyOf(alice), keys.PublicKeyOf(bob)
	l.fund(t, alicePK, 100)
	r := l.replicas[0]

	cases := []struct {
		name     string
		transfer SignedTransfer
		kind     common.ErrKind
	}{
		{"zero amount", NewSignedTransfer(alice, 0, 0, bobPK, ""), common.InvalidAmount},
		{"to self", NewSignedTransfer(alice, 0, 10, alicePK, ""), common.InvalidOperation},
		{"too much", NewSignedTransfer(alice, 0, 101, bobPK, ""), common.BalanceExceeded},
		{"out of order", NewSignedTransfer(alice, 3, 10, bobPK, ""), common.OutOfOrder},
	}
	for _, c := range cases {
		_, err := r.Validate(c.transfer)
		assert.True(t, common.Is(err, c.kind), "%s: %v", c.name, err)
	}

	forged := NewSignedTransfer(alice, 0, 10, bobPK, "")
	forged.Debit.Debit.Amount = 5
	_, err := r.Validate(forged)
	assert.True(t, common.Is(err, common.InvalidSignature))

	first := NewSignedTransfer(alice, 0, 10, bobPK, "")
	_, err = r.Validate(first)
	require.NoError(t, err)

	// Resending the same transfer is fine, a different one with the same
	// counter is not.
	_, err = r.Validate(first)
	require.NoError(t, err)
	_, err = r.Validate(NewSignedTransfer(alice, 0, 20, bobPK, ""))
	assert.True(t, common.Is(err, common.DoubleSpend))
}

func TestDoubleRegistration(t *testing.T) {
	l := newLedger(t, 1)
	alice, bob := newKey(t), newKey(t)
	l.fund(t, keys.PublicKeyOf(alice), 50)

	a := NewActor(alice, 0)
	st, err := a.Transfer(20, keys.PublicKeyOf(bob), "")
	require.NoError(t, err)
	v, err := l.replicas[0].Validate(st)
	require.NoError(t, err)
	proof, err := a.ReceiveValidation(v)
	require.NoError(t, err)
	require.NotNil(t, proof)

	_, err = l.replicas[0].Register(*proof)
	require.NoError(t, err)
	_, err = l.replicas[0].Register(*proof)
	assert.True(t, common.Is(err, common.DoubleSpend))

	// Propagation is idempotent.
	_, err = l.replicas[0].ReceivePropagated(proof.CreditProof())
	require.NoError(t, err)
	_, err = l.replicas[0].ReceivePropagated(proof.CreditProof())
	require.NoError(t, err)
	assert.Equal(t, Token(20), l.replicas[0].Balance(keys.PublicKeyOf(bob)))
}

func TestUntrustedProof(t *testing.T) {
	l := newLedger(t, 1)
	bob := keys.PublicKeyOf(newKey(t))

	set, shares, err := bls.GenerateKeySet(0, 1)
	require.NoError(t, err)
	proof, err := GenesisCredit(shares[0], set, bob, 10)
	require.NoError(t, err)

	_, err = l.replicas[0].ReceivePropagated(proof)
	assert.True(t, common.Is(err, common.UntrustedSectionKey))
	assert.Equal(t, Token(0), l.replicas[0].Balance(bob))
}

func TestMissingKeyShare(t *testing.T) {
	r := newReplicas(t, t.TempDir(), trustAll{})
	alice := newKey(t)
	_, err := r.Validate(NewSignedTransfer(alice, 0, 1, keys.PublicKeyOf(newKey(t)), ""))
	assert.True(t, common.Is(err, common.MissingSecretKeyShare))
}

func TestReloadAndMerge(t *testing.T) {
	l := newLedger(t, 1)
	alice, bob := newKey(t), newKey(t)
	alicePK, bobPK := keys.PublicKeyOf(alice), keys.PublicKeyOf(bob)
	l.fund(t, alicePK, 100)
	l.transfer(t, NewActor(alice, 0), 40, bobPK)

	reloaded := newReplicas(t, l.dirs[0], l.trusted)
	assert.Equal(t, Token(60), reloaded.Balance(alicePK))
	assert.Equal(t, Token(40), reloaded.Balance(bobPK))
	assert.Equal(t, uint64(1), reloaded.NextDebit(alicePK))
	assert.Len(t, reloaded.History(alicePK), len(l.replicas[0].History(alicePK)))

	fresh := newReplicas(t, t.TempDir(), l.trusted)
	all := l.replicas[0].AgreedEvents(func(keys.PublicKey) bool { return true })
	for owner, events := range all {
		_, err := fresh.Merge(owner, events)
		require.NoError(t, err)
	}
	assert.Equal(t, Token(60), fresh.Balance(alicePK))
	assert.Equal(t, Token(40), fresh.Balance(bobPK))

	// Merging again changes nothing.
	n, err := fresh.Merge(alicePK, all[alicePK])
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
