package snapshot

import "time"

// Snapshot captures every resting order across all books at a known
// sequence. Replaying the entry log from Seq on top of a loaded
// snapshot reproduces the live state.
type Snapshot struct {
	Seq     uint64
	Created time.Time
	Books   []BookSnapshot
}

type BookSnapshot struct {
	Symbol string
	Orders []OrderEntry
}

type OrderEntry struct {
	ID     uint64
	Side   int
	Type   int
	Price  int64
	Qty    int64
	Filled int64
	SeqID  uint64
}
