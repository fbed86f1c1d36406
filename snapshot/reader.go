package snapshot

import "matchbox/infra/memory"

// Reader is a thin adapter over memory.ReaderEpoch. It only marks
// where a consistent read begins and ends; epoching and reclamation
// live in the memory package.
type Reader struct {
	epoch *memory.ReaderEpoch
}

func NewReader() *Reader {
	r := &Reader{
		epoch: &memory.ReaderEpoch{},
	}
	r.epoch.Exit() // start outside any read section
	return r
}

// Begin marks the start of a consistent read.
func (r *Reader) Begin() {
	r.epoch.Enter()
}

// End marks the end of a read.
func (r *Reader) End() {
	r.epoch.Exit()
}

// Epoch exposes the underlying epoch for reclaimers.
func (r *Reader) Epoch() *memory.ReaderEpoch {
	return r.epoch
}
