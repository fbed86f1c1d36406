package sequence

import "sync/atomic"

// Sequencer issues strictly monotonic sequence IDs. IDs double as order
// IDs and as write-ahead log positions, so the counter must survive a
// restart: after log replay the sequencer is Reset to the highest
// replayed value before accepting new traffic.
type Sequencer struct {
	next atomic.Uint64
}

// New creates a sequencer starting from a given value.
// Fresh start → 0. After replay → last replayed seq.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

// Next returns the next sequence ID.
func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}

// Current returns the last issued sequence.
func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}

// Reset sets the sequencer to a specific value. Only used after replay.
func (s *Sequencer) Reset(v uint64) {
	s.next.Store(v)
}
