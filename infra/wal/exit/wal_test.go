package exit

import "testing"

func openTestOutbox(t *testing.T) *Outbox {
	t.Helper()
	w, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func sampleTrade() TradeRecord {
	return TradeRecord{
		Symbol:  "XBT-USD",
		MakerID: 1,
		TakerID: 2,
		Price:   100,
		Qty:     5,
		Time:    1234567890,
	}
}

func TestPutNewAndGet(t *testing.T) {
	w := openTestOutbox(t)

	if err := w.PutNew(1, sampleTrade()); err != nil {
		t.Fatalf("put: %v", err)
	}
	rec, err := w.Get(1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.State != StateNew {
		t.Errorf("fresh record should be NEW, got %v", rec.State)
	}
	if rec.Symbol != "XBT-USD" || rec.MakerID != 1 || rec.TakerID != 2 || rec.Price != 100 || rec.Qty != 5 {
		t.Errorf("trade fields lost: %+v", rec)
	}
}

func TestDeliveryStateMachine(t *testing.T) {
	w := openTestOutbox(t)
	w.PutNew(7, sampleTrade())

	if err := w.UpdateState(7, StateSent, 1); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	rec, _ := w.Get(7)
	if rec.State != StateSent || rec.Retries != 1 || rec.LastAttempt == 0 {
		t.Errorf("sent transition wrong: %+v", rec)
	}
	// Trade fields survive state rewrites.
	if rec.Price != 100 || rec.Qty != 5 {
		t.Errorf("trade fields lost on update: %+v", rec)
	}

	if err := w.UpdateState(7, StateAcked, 1); err != nil {
		t.Fatalf("mark acked: %v", err)
	}
	rec, _ = w.Get(7)
	if rec.State != StateAcked {
		t.Errorf("expected ACKED, got %v", rec.State)
	}

	if err := w.Delete(7); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := w.Get(7); err == nil {
		t.Error("deleted record should be gone")
	}
}

func TestScanByStateOrdered(t *testing.T) {
	w := openTestOutbox(t)
	w.PutNew(3, sampleTrade())
	w.PutNew(1, sampleTrade())
	w.PutNew(2, sampleTrade())
	w.UpdateState(2, StateAcked, 0)

	var seqs []uint64
	err := w.ScanByState(StateNew, func(seq uint64, rec TradeRecord) error {
		seqs = append(seqs, seq)
		return nil
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(seqs) != 2 || seqs[0] != 1 || seqs[1] != 3 {
		t.Errorf("expected NEW trades [1 3] in key order, got %v", seqs)
	}
}

func TestSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	w.PutNew(1, sampleTrade())
	w.Close()

	w2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer w2.Close()
	rec, err := w2.Get(1)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if rec.State != StateNew || rec.Symbol != "XBT-USD" {
		t.Errorf("record lost across reopen: %+v", rec)
	}
}

func TestScanPendingCoversNewAndSent(t *testing.T) {
	w := openTestOutbox(t)
	w.PutNew(1, sampleTrade())
	w.PutNew(2, sampleTrade())
	w.PutNew(3, sampleTrade())
	w.MarkSent(2)  // stuck: sent but never acked
	w.MarkSent(3)
	w.MarkAcked(3)

	var seqs []uint64
	err := w.ScanPending(func(seq uint64, rec TradeRecord) error {
		seqs = append(seqs, seq)
		return nil
	})
	if err != nil {
		t.Fatalf("scan pending: %v", err)
	}
	if len(seqs) != 2 || seqs[0] != 1 || seqs[1] != 2 {
		t.Errorf("expected pending [1 2], got %v", seqs)
	}
}

func TestMaxSeq(t *testing.T) {
	w := openTestOutbox(t)

	if seq, err := w.MaxSeq(); err != nil || seq != 0 {
		t.Fatalf("empty outbox: got %d (%v), want 0", seq, err)
	}

	w.PutNew(3, sampleTrade())
	w.PutNew(12, sampleTrade())
	w.PutNew(7, sampleTrade())
	if seq, err := w.MaxSeq(); err != nil || seq != 12 {
		t.Errorf("expected max 12, got %d (%v)", seq, err)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateNew: "NEW", StateSent: "SENT", StateAcked: "ACKED", StateFailed: "FAILED", State(9): "UNKNOWN",
	}
	for s, want := range cases {
		if s.String() != want {
			t.Errorf("%d: expected %s, got %s", s, want, s.String())
		}
	}
}
