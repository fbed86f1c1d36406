// Package book implements the in-memory matching core for a single
// instrument: limit, market, IOC and FOK orders matched under strict
// price-time priority. Each side is a red-black tree of FIFO price levels
// plus an id index for O(1) cancellation.
//
// The package is pure and deterministic. It is single-writer by contract:
// callers serialize Submit/Cancel per instrument, which is what makes the
// no-cross invariant and FIFO fairness meaningful.
package book
