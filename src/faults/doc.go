// Package faults decides which nodes of a section are not doing their job.
//
// Issues of several kinds are logged against node names as they happen. Some
// are removed again when the awaited response arrives (a DKG vote, an elder
// vote, a probe answer, a request response). Issues older than the window
// are forgotten. A node is faulty when its weighted issue count stands out
// from the rest of its group: elders and other members are scored
// separately, since elders see more traffic.
package faults
