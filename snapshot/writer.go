package snapshot

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"time"

	"matchbox/book"
	"matchbox/engine"
)

type Writer struct {
	Dir string
}

// Write walks every book and persists its resting orders. The write
// goes to a temp file first so a crash mid-snapshot never clobbers the
// previous good one.
func (w *Writer) Write(seq uint64, eng *engine.Engine) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return err
	}

	s := Snapshot{
		Seq:     seq,
		Created: time.Now(),
	}

	eng.Walk(func(b *book.OrderBook) {
		bs := BookSnapshot{
			Symbol: b.Symbol(),
			Orders: make([]OrderEntry, 0, b.OrderCount()),
		}
		b.WalkResting(func(o *book.Order) {
			bs.Orders = append(bs.Orders, OrderEntry{
				ID:     o.ID,
				Side:   int(o.Side),
				Type:   int(o.Type),
				Price:  o.Price,
				Qty:    o.Qty,
				Filled: o.Filled,
				SeqID:  o.SeqID,
			})
		})
		s.Books = append(s.Books, bs)
	})

	tmp := filepath.Join(w.Dir, "snapshot.bin.tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(&s); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, filepath.Join(w.Dir, "snapshot.bin"))
}
