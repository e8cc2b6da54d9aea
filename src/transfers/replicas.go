package transfers

import (
	"bytes"
	"sync"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/bls"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
	"github.com/sirupsen/logrus"
)

// KeyChecker tells whether a section key is trusted.
type KeyChecker interface {
	KnownKey(key bls.PublicKey) bool
}

type walletReplica struct {
	sync.RWMutex
	wallet *Wallet
	events []ReplicaEvent
}

// Replicas is the elder side of the ledger: the wallets held by our section.
// Each wallet has its own lock, so operations on distinct wallets do not
// contend.
type Replicas struct {
	store   *LogStore
	trusted KeyChecker
	logger  *logrus.Entry

	wallets sync.Map // keys.PublicKey -> *walletReplica

	keyLock sync.RWMutex
	share   *bls.SecretKeyShare
	keySet  bls.PublicKeySet
}

// NewReplicas loads every wallet log found in store.
func NewReplicas(store *LogStore, trusted KeyChecker, logger *logrus.Entry) (*Replicas, error) {
	r := &Replicas{
		store:   store,
		trusted: trusted,
		logger:  logger,
	}
	owners, err := store.Owners()
	if err != nil {
		return nil, err
	}
	for _, owner := range owners {
		events, err := store.Read(owner)
		if err != nil {
			return nil, err
		}
		w := &walletReplica{wallet: NewWallet(owner), events: events}
		for _, e := range events {
			w.wallet.Apply(e)
		}
		r.wallets.Store(owner, w)
	}
	logger.WithField("wallets", len(owners)).Debug("Loaded wallet logs")
	return r, nil
}

// SetKeyShare sets the key share used to sign validations. Elders call it
// whenever the section key changes.
func (r *Replicas) SetKeyShare(share *bls.SecretKeyShare, set bls.PublicKeySet) {
	r.keyLock.Lock()
	defer r.keyLock.Unlock()
	r.share = share
	r.keySet = set
}

func (r *Replicas) keyShare() (*bls.SecretKeyShare, bls.PublicKeySet, error) {
	r.keyLock.RLock()
	defer r.keyLock.RUnlock()
	if r.share == nil {
		return nil, bls.PublicKeySet{}, common.NewError(common.MissingSecretKeyShare, "replica has no key share")
	}
	return r.share, r.keySet, nil
}

func (r *Replicas) wallet(owner keys.PublicKey) *walletReplica {
	w, _ := r.wallets.LoadOrStore(owner, &walletReplica{wallet: NewWallet(owner)})
	return w.(*walletReplica)
}

// append persists e and folds it. The caller holds the wallet lock.
func (r *Replicas) append(owner keys.PublicKey, w *walletReplica, e ReplicaEvent) error {
	if err := r.store.Append(owner, e); err != nil {
		return err
	}
	w.events = append(w.events, e)
	w.wallet.Apply(e)
	return nil
}

// Validate checks a transfer against the debited wallet and signs it with
// our key share.
func (r *Replicas) Validate(t SignedTransfer) (TransferValidated, error) {
	if err := t.Verify(); err != nil {
		return TransferValidated{}, err
	}
	share, set, err := r.keyShare()
	if err != nil {
		return TransferValidated{}, err
	}

	owner := t.Debit.Debit.ID.Actor
	w := r.wallet(owner)
	w.Lock()
	defer w.Unlock()

	v := TransferValidated{
		Debit:     t.Debit,
		Credit:    t.Credit,
		DebitSig:  share.Sign(t.Debit.Bytes()),
		CreditSig: share.Sign(t.Credit.Bytes()),
		Replicas:  set,
	}
	// A resent transfer gets the same validation again.
	if p := w.wallet.Pending; p != nil && bytes.Equal(p.Debit.Bytes(), t.Debit.Bytes()) && bytes.Equal(p.Credit.Bytes(), t.Credit.Bytes()) {
		return v, nil
	}
	if err := w.wallet.CheckDebit(t); err != nil {
		return TransferValidated{}, err
	}
	if err := r.append(owner, w, ReplicaEvent{Validated: &v}); err != nil {
		return TransferValidated{}, err
	}
	r.logger.WithFields(logrus.Fields{
		"actor":   owner,
		"counter": t.Debit.Debit.ID.Counter,
		"amount":  t.Debit.Debit.Amount,
	}).Debug("Validated transfer")
	return v, nil
}

// Register applies the debit of an agreed transfer.
func (r *Replicas) Register(p TransferAgreementProof) (TransferRegistered, error) {
	if err := p.Verify(); err != nil {
		return TransferRegistered{}, err
	}
	if !r.trusted.KnownKey(p.Replicas.PublicKey()) {
		return TransferRegistered{}, common.NewError(common.UntrustedSectionKey, "transfer proof signed by %v", p.Replicas.PublicKey())
	}

	owner := p.Debit.Debit.ID.Actor
	w := r.wallet(owner)
	w.Lock()
	defer w.Unlock()

	if err := w.wallet.CheckRegistration(p); err != nil {
		return TransferRegistered{}, err
	}
	reg := TransferRegistered{Proof: p}
	if err := r.append(owner, w, ReplicaEvent{Registered: &reg}); err != nil {
		return TransferRegistered{}, err
	}
	return reg, nil
}

// ReceivePropagated credits the recipient of an agreed credit. A credit that
// was already applied is ignored.
func (r *Replicas) ReceivePropagated(p CreditAgreementProof) (TransferPropagated, error) {
	if err := p.Verify(); err != nil {
		return TransferPropagated{}, err
	}
	if !r.trusted.KnownKey(p.ReplicaKey) {
		return TransferPropagated{}, common.NewError(common.UntrustedSectionKey, "credit proof signed by %v", p.ReplicaKey)
	}

	owner := p.Credit.Credit.Recipient
	w := r.wallet(owner)
	w.Lock()
	defer w.Unlock()

	prop := TransferPropagated{Proof: p}
	if w.wallet.HasCredit(p.Credit.Credit.ID) {
		return prop, nil
	}
	if err := r.append(owner, w, ReplicaEvent{Propagated: &prop}); err != nil {
		return TransferPropagated{}, err
	}
	return prop, nil
}

// Balance ...
func (r *Replicas) Balance(owner keys.PublicKey) Token {
	v, ok := r.wallets.Load(owner)
	if !ok {
		return 0
	}
	w := v.(*walletReplica)
	w.RLock()
	defer w.RUnlock()
	return w.wallet.Balance
}

// NextDebit returns the counter the next debit of owner must use.
func (r *Replicas) NextDebit(owner keys.PublicKey) uint64 {
	v, ok := r.wallets.Load(owner)
	if !ok {
		return 0
	}
	w := v.(*walletReplica)
	w.RLock()
	defer w.RUnlock()
	return w.wallet.NextDebit
}

// History returns a copy of the log of owner.
func (r *Replicas) History(owner keys.PublicKey) []ReplicaEvent {
	v, ok := r.wallets.Load(owner)
	if !ok {
		return nil
	}
	w := v.(*walletReplica)
	w.RLock()
	defer w.RUnlock()
	return append([]ReplicaEvent{}, w.events...)
}

// AgreedEvents returns, for every wallet accepted by keep, the events that
// carry a section signature. Validations are local to each replica and are
// not included.
func (r *Replicas) AgreedEvents(keep func(keys.PublicKey) bool) map[keys.PublicKey][]ReplicaEvent {
	res := make(map[keys.PublicKey][]ReplicaEvent)
	r.wallets.Range(func(k, v interface{}) bool {
		owner := k.(keys.PublicKey)
		if !keep(owner) {
			return true
		}
		w := v.(*walletReplica)
		w.RLock()
		defer w.RUnlock()
		for _, e := range w.events {
			if e.Registered != nil || e.Propagated != nil {
				res[owner] = append(res[owner], e)
			}
		}
		return true
	})
	return res
}

// Merge applies the agreed events of another replica that we are missing.
// Events that do not verify or do not fit our state are skipped.
func (r *Replicas) Merge(owner keys.PublicKey, events []ReplicaEvent) (int, error) {
	w := r.wallet(owner)
	w.Lock()
	defer w.Unlock()

	applied := 0
	for _, e := range events {
		switch {
		case e.Propagated != nil:
			p := e.Propagated.Proof
			if p.Credit.Credit.Recipient != owner || w.wallet.HasCredit(p.Credit.Credit.ID) {
				continue
			}
			if p.Verify() != nil || !r.trusted.KnownKey(p.ReplicaKey) {
				continue
			}
		case e.Registered != nil:
			p := e.Registered.Proof
			if p.Debit.Debit.ID.Actor != owner || w.wallet.CheckRegistration(p) != nil {
				continue
			}
			if p.Verify() != nil || !r.trusted.KnownKey(p.Replicas.PublicKey()) {
				continue
			}
		default:
			continue
		}
		if err := r.append(owner, w, e); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}
