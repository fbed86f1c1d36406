// Package memory holds the allocation primitives shared by the matching
// path: a typed object pool for orders, a ring that carries finished
// orders from the per-instrument matchers to the reclaimer, and the
// global epoch counter that tells the reclaimer when snapshot readers
// are done with them.
//
// The package has no dependencies above sync and sync/atomic.
package memory
