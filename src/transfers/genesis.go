package transfers

import (
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/bls"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
)

// GenesisCreditID is the id of the credit that mints the initial supply.
var GenesisCreditID = CreditID{}

// GenesisCredit mints amount to owner, signed by the genesis section. The
// genesis section has a single elder, so its one share is enough.
func GenesisCredit(share *bls.SecretKeyShare, set bls.PublicKeySet, owner keys.PublicKey, amount Token) (CreditAgreementProof, error) {
	credit := SignedCredit{
		Credit: Credit{
			ID:        GenesisCreditID,
			Amount:    amount,
			Recipient: owner,
			Msg:       "genesis",
		},
	}
	sig, err := set.Combine([]bls.SignatureShare{share.Sign(credit.Bytes())})
	if err != nil {
		return CreditAgreementProof{}, err
	}
	return CreditAgreementProof{
		Credit:     credit,
		ReplicaSig: sig,
		ReplicaKey: set.PublicKey(),
	}, nil
}
