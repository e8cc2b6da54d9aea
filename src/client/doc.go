// Package client is the end-user side of the network.
//
// A Client bootstraps from any node: the node answers with the SAP of the
// section closest to the client's name and the proof chain of its key, which
// the client checks back to the genesis key. Requests are signed with the
// client's key and sent to every elder of the section responsible for their
// destination. The first successful answer wins; an error is only reported
// once every elder answered with one.
//
// Elders that hold a newer SAP than the one a message was sent under bounce it
// with an AntiEntropyRetry. The client learns the new SAP and resends the
// message once per key. An AntiEntropyRedirect points the client to another
// section.
//
// Transfers go through a transfers.Actor. The client collects the
// validations of the replicas of its wallet, registers the combined proof
// and propagates the credit to the recipient's replicas.
package client
