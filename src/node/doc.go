// Package node implements a node of a sectioned network.
//
// The name space is split into sections by prefix. Each section is run by its
// elders, the oldest members, who jointly hold a BLS key. Every change of a
// section (a member joining or leaving, new elders, a split) is agreed by a
// super-majority of the elders and signed with the section key, which chains
// each new section key to the genesis key.
//
// Core and Dispatcher
//
// Core holds the state of the node and is purely reactive: it consumes a Cmd
// (an incoming message, an agreement, a timeout) and returns the Cmds that
// follow from it, like messages to send or timers to schedule. It never
// blocks and never touches the network. The Dispatcher executes the Cmds Core
// produces, feeding their results back into Core, so the whole protocol can be
// driven step by step in tests.
//
// Node wires a Core to a Comm and a Dispatcher, turns incoming messages and
// periodic timers into Cmds, and handles start-up and shutdown.
//
// Joining
//
// A new node asks any contact where it should join. It is redirected until it
// reaches the section covering its name, whose elders answer with their SAP
// and the chain proving it. The node then sends a JoinRequest. The elders
// vote Online for it and, once agreed, send it a NodeApproval with the signed
// section state. Relocated nodes join the same way with a RelocatePayload
// proving their previous section agreed to move them.
//
// Anti-Entropy
//
// Every message carries the section key the sender knows the destination by.
// Elders answer a message with an outdated key with an AntiEntropyRetry that
// proves the newer key, and a message for a name they do not cover with an
// AntiEntropyRedirect to the closest section they know. The sender learns
// from both and resends. Elders periodically probe the sections they know to
// keep their view current.
//
// Elder changes
//
// When the ideal elder set of a section differs from the current one, the
// elders start a DKG session among the candidates. The outcome is proposed as
// the new SAP and, once agreed, the old key signs the new one. A section
// whose members are numerous enough on both sides of the next bit runs two
// sessions and splits.
//
// Data and transfers
//
// Elders answer service messages from clients. Chunks are stored with the
// adults closest to their address and replicated again when membership
// changes. Registers, maps and sequences are kept by the elders. Token
// transfers follow the AT2 protocol: the replicas of a wallet validate a
// debit, the client combines their signature shares into a proof, and the
// registered proof credits the recipient's wallet.
package node
