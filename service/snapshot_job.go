package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"matchbox/snapshot"
)

// LoadSnapshot seeds the engine from the newest snapshot and returns
// the sequence it covers. Call before Replay.
func (s *OrderService) LoadSnapshot(dir string) (uint64, error) {
	seq, err := snapshot.Load(dir, s.engine, s.pool)
	if err != nil {
		return 0, err
	}
	if seq > s.seq.Current() {
		s.seq.Reset(seq)
	}
	return seq, nil
}

// WriteSnapshot persists one consistent snapshot and returns the
// sequence it covers. Commands are held off for the duration, which
// makes the watermark exact: every order at or below it is in the
// snapshot, and nothing above it is. Sampling the counter first and
// walking afterwards would let an order slip into both the snapshot
// and the replayed tail.
func (s *OrderService) WriteSnapshot(w *snapshot.Writer) (uint64, error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	seq := s.seq.Current()

	s.reader.Begin()
	defer s.reader.End()
	if err := w.Write(seq, s.engine); err != nil {
		return 0, err
	}
	return seq, nil
}

// StartSnapshotJob periodically persists the books and truncates the
// entry WAL behind the snapshot watermark.
func (s *OrderService) StartSnapshotJob(ctx context.Context, dir string, interval time.Duration) {
	w := &snapshot.Writer{Dir: dir}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				seq, err := s.WriteSnapshot(w)
				if err != nil {
					s.log.Error("snapshot write failed", zap.Error(err))
					continue
				}

				if err := s.entryWAL.TruncateBefore(seq); err != nil {
					s.log.Warn("wal truncate failed", zap.Error(err))
				}
				s.log.Info("snapshot written", zap.Uint64("seq", seq))
			}
		}
	}()
}

// StartEpochJob periodically advances the reclamation epoch.
func (s *OrderService) StartEpochJob(ctx context.Context, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.AdvanceEpoch()
			}
		}
	}()
}
