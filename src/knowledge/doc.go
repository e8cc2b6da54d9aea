// Package knowledge holds what a node knows about the network.
//
// A section is described by its SectionAuthorityProvider (SAP): its prefix,
// the public key set of its elders and the elders themselves. Section keys
// form a SignedChain in which every key is signed by the key it replaces, so
// any SAP can be authenticated by a proof chain rooted in a key we already
// trust.
//
// NetworkKnowledge keeps our own SAP and chain, the SAPs of the other
// sections we have heard of (a PrefixMap, which is always a prefix tree) and
// the agreed membership of our section.
package knowledge
