// Package transfers implements the token ledger.
//
// A wallet is identified by an ed25519 public key. Its owner, the Actor,
// debits the wallet by signing a Transfer with a strictly increasing counter.
// The elders of the section holding the wallet act as Replicas: each one
// validates the transfer and signs it with its key share. The Actor combines
// a threshold of validations into a TransferAgreementProof and registers it,
// after which the credit is propagated to the recipient's replicas.
//
// Replicas keep one append-only event log per wallet. The wallet state
// (balance, next debit counter, pending debit) is a fold of that log.
package transfers
