package snapshot

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"matchbox/book"
	"matchbox/engine"
	"matchbox/infra/memory"
)

// Load seeds the engine from the newest snapshot and returns the
// sequence it covers. A missing snapshot is not an error; the caller
// just replays the whole entry log.
func Load(
	dir string,
	eng *engine.Engine,
	pool *memory.Pool[book.Order],
) (uint64, error) {
	f, err := os.Open(filepath.Join(dir, "snapshot.bin"))
	if err != nil {
		return 0, nil // snapshot optional
	}
	defer f.Close()

	var s Snapshot
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return 0, err
	}

	for _, bs := range s.Books {
		for _, e := range bs.Orders {
			o := pool.Get()
			o.Reset()
			o.ID = e.ID
			o.Side = book.Side(e.Side)
			o.Type = book.OrderType(e.Type)
			o.Price = e.Price
			o.Qty = e.Qty
			o.Filled = e.Filled
			o.SeqID = e.SeqID
			o.State = book.Active
			if err := eng.Restore(bs.Symbol, o); err != nil {
				return s.Seq, err
			}
		}
	}

	return s.Seq, nil
}
