package bls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	sk := GenerateSecretKey()
	pk := sk.PublicKey()
	sig := sk.Sign([]byte("section"))

	assert.True(t, pk.Verify([]byte("section"), sig))
	assert.False(t, pk.Verify([]byte("sectioN"), sig))
	assert.False(t, GenerateSecretKey().PublicKey().Verify([]byte("section"), sig))

	parsed, err := PublicKeyFromBytes(pk[:])
	require.NoError(t, err)
	assert.Equal(t, pk, parsed)
}

func TestThreshold(t *testing.T) {
	for n, want := range map[int]int{1: 0, 2: 1, 3: 2, 4: 2, 7: 4, 10: 6} {
		assert.Equal(t, want, Threshold(n), "n=%d", n)
	}
}

func TestThresholdCombine(t *testing.T) {
	set, shares, err := GenerateKeySet(Threshold(7), 7)
	require.NoError(t, err)

	msg := []byte("new elders")
	var sigShares []SignatureShare
	for _, s := range shares {
		sh := s.Sign(msg)
		require.True(t, set.VerifyShare(msg, sh))
		sigShares = append(sigShares, sh)
	}

	// Not enough shares.
	_, err = set.Combine(sigShares[:set.Threshold])
	require.Error(t, err)

	// Any threshold+1 subset yields the same group signature.
	a, err := set.Combine(sigShares[:set.Threshold+1])
	require.NoError(t, err)
	b, err := set.Combine(sigShares[2:])
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.True(t, set.PublicKey().Verify(msg, a))
}

func TestGenesisKeySet(t *testing.T) {
	set, shares, err := GenerateKeySet(0, 1)
	require.NoError(t, err)
	require.Len(t, shares, 1)

	msg := []byte("genesis")
	sig, err := set.Combine([]SignatureShare{shares[0].Sign(msg)})
	require.NoError(t, err)
	assert.True(t, set.PublicKey().Verify(msg, sig))
}

func TestDistributedDealing(t *testing.T) {
	const n = 4
	threshold := Threshold(n)

	polys := make([]*Poly, n)
	var commitments [][]PublicKey
	for i := range polys {
		polys[i] = RandomPoly(threshold)
		commitments = append(commitments, polys[i].Commitments())
	}

	final := make([]*SecretKeyShare, n)
	for j := 0; j < n; j++ {
		var parts [][]byte
		for i := 0; i < n; i++ {
			ev, err := polys[i].Evaluate(j)
			require.NoError(t, err)
			require.True(t, VerifyEvaluation(commitments[i], j, ev))
			parts = append(parts, ev)
		}
		s, err := SumShares(j, parts)
		require.NoError(t, err)
		final[j] = s
	}

	sum, err := SumCommitments(commitments)
	require.NoError(t, err)
	set := PublicKeySet{Threshold: threshold, Commitments: sum}

	msg := []byte("dkg")
	var sigs []SignatureShare
	for _, s := range final {
		pk, err := set.PublicKeyShare(s.Index)
		require.NoError(t, err)
		assert.Equal(t, pk, s.PublicKeyShare())
		sigs = append(sigs, s.Sign(msg))
	}
	sig, err := set.Combine(sigs)
	require.NoError(t, err)
	assert.True(t, set.PublicKey().Verify(msg, sig))

	// A share evaluated for another index does not verify.
	ev, err := polys[0].Evaluate(1)
	require.NoError(t, err)
	assert.False(t, VerifyEvaluation(commitments[0], 2, ev))
}
