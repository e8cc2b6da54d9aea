package dkg

import (
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/bls"
)

// Part is a dealer's contribution: commitments to its polynomial and one
// encrypted evaluation per participant, in index order.
type Part struct {
	Commitments []bls.PublicKey
	Shares      [][]byte
}

// Complaint lists the indices of the dealers whose share did not verify.
// An empty list acknowledges every dealer.
type Complaint struct {
	Accused []int
}

// Vote is a Part or a Complaint.
type Vote struct {
	Part      *Part      `codec:",omitempty"`
	Complaint *Complaint `codec:",omitempty"`
}

// Message is what a participant broadcasts to the others: its ephemeral
// public key, or a vote.
type Message struct {
	Ephemeral *[32]byte `codec:",omitempty"`
	Vote      *Vote     `codec:",omitempty"`
}
