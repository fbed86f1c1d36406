// Package snapshot persists and restores the resting state of every
// book. Writers walk the books under the engine's locks; readers mark
// their read sections through the memory epoch model so reclamation
// never frees an order a snapshot is still looking at.
//
// The snapshot and the entry log work as a pair: the snapshot pins a
// sequence, and replaying the log from that sequence reproduces
// everything newer.
package snapshot
