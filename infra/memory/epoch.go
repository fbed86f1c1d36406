package memory

import "sync/atomic"

// GlobalEpoch only ever increases. The reclaimer advances it; readers
// stamp themselves with it on entry to a read section.
var GlobalEpoch atomic.Uint64

const inactive = ^uint64(0)

// ReaderEpoch records when a reader entered a read section. A reader
// that stays at inactive never blocks reclamation.
type ReaderEpoch struct {
	epoch atomic.Uint64
}

func (r *ReaderEpoch) Enter() {
	r.epoch.Store(GlobalEpoch.Load())
}

func (r *ReaderEpoch) Exit() {
	r.epoch.Store(inactive)
}

func (r *ReaderEpoch) Value() uint64 {
	return r.epoch.Load()
}

// ReclaimablePool is all a pool needs to implement to receive
// reclaimed objects.
type ReclaimablePool interface {
	PutAny(any)
}

// AdvanceEpochAndReclaim bumps the global epoch and drains the retire
// ring into the pool. Objects go back only while every tracked reader
// is outside a read section; FIFO order means once one object is
// unsafe, everything behind it is too.
func AdvanceEpochAndReclaim(
	ring *RetireRing,
	pool ReclaimablePool,
	readers ...*ReaderEpoch,
) {
	GlobalEpoch.Add(1)
	min := minReaderEpoch(readers...)

	for {
		obj := ring.Dequeue()
		if obj == nil {
			return
		}

		if min == inactive {
			pool.PutAny(obj)
			continue
		}

		_ = ring.Enqueue(obj)
		return
	}
}

func minReaderEpoch(rs ...*ReaderEpoch) uint64 {
	min := inactive
	for _, r := range rs {
		if r == nil {
			continue
		}
		v := r.Value()
		if v < min {
			min = v
		}
	}
	return min
}
