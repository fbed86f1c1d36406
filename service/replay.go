package service

import (
	"fmt"

	"go.uber.org/zap"

	"matchbox/book"
	entrywal "matchbox/infra/wal/entry"
)

/*
Replay rebuilds in-memory state from the entry WAL.

IMPORTANT:
- This MUST run before accepting traffic
- The trade outbox is NOT replayed; fills re-derived here were
  already persisted the first time around
*/

// Replay re-executes every logged intent at or below the snapshot
// watermark already loaded into the engine. Records covered by the
// snapshot (seq <= fromSeq) are skipped; stored order IDs are reused
// so cancels keep their meaning. The sequencer resumes past
// everything seen.
func (s *OrderService) Replay(walDir string, fromSeq uint64) error {
	replayed := 0
	lastSeq, err := entrywal.Replay(walDir, func(rec *entrywal.Record) error {
		if rec.Seq <= fromSeq {
			return nil
		}

		switch rec.Type {
		case entrywal.RecordPlace:
			p, err := entrywal.DecodePlace(rec.Data)
			if err != nil {
				return fmt.Errorf("seq %d: %w", rec.Seq, err)
			}

			o := s.pool.Get()
			o.Reset()
			o.ID = p.OrderID
			o.Side = book.Side(p.Side)
			o.Type = book.OrderType(p.Type)
			o.Price = p.Price
			o.Qty = p.Qty
			o.SeqID = rec.Seq
			o.State = book.Active

			if _, err := s.engine.Submit(p.Symbol, o); err != nil {
				// Unknown instrument on replay means config shrank;
				// skip rather than refuse to start.
				s.pool.Put(o)
				s.log.Warn("replay skipped place",
					zap.Uint64("seq", rec.Seq), zap.Error(err))
			}
			replayed++

		case entrywal.RecordCancel:
			c, err := entrywal.DecodeCancel(rec.Data)
			if err != nil {
				return fmt.Errorf("seq %d: %w", rec.Seq, err)
			}
			// A miss is normal: the order may have fully filled
			// before the cancel was logged.
			_ = s.engine.Cancel(c.Symbol, c.OrderID)
			replayed++
		}
		return nil
	})
	if err != nil {
		return err
	}

	if lastSeq > s.seq.Current() {
		s.seq.Reset(lastSeq)
	}
	if fromSeq > s.seq.Current() {
		s.seq.Reset(fromSeq)
	}

	// Trade sequences live only in the outbox, not the entry WAL; the
	// sequencer must clear them too or a new fill would reuse the key
	// of a trade still awaiting delivery.
	maxTrade, err := s.outbox.MaxSeq()
	if err != nil {
		return err
	}
	if maxTrade > s.seq.Current() {
		s.seq.Reset(maxTrade)
	}

	s.log.Info("wal replay completed",
		zap.Uint64("last_seq", lastSeq),
		zap.Int("records", replayed))
	return nil
}
