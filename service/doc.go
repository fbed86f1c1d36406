// Package service orchestrates the core components of the matching
// system — the engine, WALs, snapshots, and memory reclamation.
//
// It provides a clean API for placing, cancelling, and querying
// orders, decoupled from network transports.
package service
