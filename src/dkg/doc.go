// Package dkg runs the distributed key generation that gives a new set of
// elders their section key.
//
// Every participant deals a random polynomial: it broadcasts commitments to
// the coefficients and, for each other participant, the evaluation at that
// participant's index, encrypted with a key agreed over ephemeral X25519
// keys. Participants check the shares they receive against the commitments
// and broadcast the list of dealers they accuse. When nobody is accused,
// everyone sums its shares into a secret key share and the commitments into
// the section's public key set. Otherwise the session fails and the caller
// restarts it without the accused.
//
// Sessions progress through Initialising, Contributing, Complaining and end
// Finalised or Failed. A session that does not complete in time fails,
// accusing the participants that did not contribute to the current phase.
package dkg
