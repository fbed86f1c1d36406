package service

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"matchbox/book"
	entrywal "matchbox/infra/wal/entry"
	exitwal "matchbox/infra/wal/exit"
	"matchbox/monitoring"
	"matchbox/snapshot"
)

type fixture struct {
	svc    *OrderService
	walDir string
	outbox *exitwal.Outbox
}

func newFixture(t *testing.T, symbols ...string) *fixture {
	t.Helper()
	walDir := t.TempDir()

	w, err := entrywal.Open(entrywal.Config{Dir: walDir})
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	t.Cleanup(func() { w.Close() })

	outbox, err := exitwal.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open outbox: %v", err)
	}
	t.Cleanup(func() { outbox.Close() })

	svc := New(Config{Symbols: symbols}, w, outbox, zap.NewNop())
	return &fixture{svc: svc, walDir: walDir, outbox: outbox}
}

func TestPlaceAndMatch(t *testing.T) {
	f := newFixture(t, "XBT-USD")

	res, err := f.svc.PlaceOrder("XBT-USD", book.Bid, book.Limit, 100, 10)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if res.Status != book.StatusResting {
		t.Errorf("expected resting, got %v", res.Status)
	}

	res2, err := f.svc.PlaceOrder("XBT-USD", book.Ask, book.Limit, 100, 4)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if res2.Status != book.StatusFilled || len(res2.Fills) != 1 {
		t.Fatalf("expected full fill, got %+v", res2)
	}
	if res2.Fills[0].MakerID != res.OrderID {
		t.Errorf("maker should be the resting order")
	}
}

func TestTradeReachesOutboxAndFeed(t *testing.T) {
	f := newFixture(t, "XBT-USD")

	f.svc.PlaceOrder("XBT-USD", book.Bid, book.Limit, 100, 5)
	f.svc.PlaceOrder("XBT-USD", book.Ask, book.Limit, 100, 5)

	// Live feed.
	select {
	case ev := <-f.svc.Events():
		if ev.Symbol != "XBT-USD" || ev.Price != 100 || ev.Qty != 5 {
			t.Errorf("unexpected event %+v", ev)
		}
	default:
		t.Fatal("expected a trade event")
	}

	// Durable path.
	count := 0
	err := f.outbox.ScanByState(exitwal.StateNew, func(seq uint64, rec exitwal.TradeRecord) error {
		count++
		if rec.Symbol != "XBT-USD" || rec.Price != 100 || rec.Qty != 5 {
			t.Errorf("unexpected outbox record %+v", rec)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if count != 1 {
		t.Errorf("expected one outbox trade, got %d", count)
	}
}

func TestCancelFlow(t *testing.T) {
	f := newFixture(t, "XBT-USD")

	res, _ := f.svc.PlaceOrder("XBT-USD", book.Bid, book.Limit, 100, 10)
	if err := f.svc.Cancel("XBT-USD", res.OrderID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := f.svc.Cancel("XBT-USD", res.OrderID); !errors.Is(err, book.ErrOrderNotFound) {
		t.Errorf("second cancel should miss, got %v", err)
	}
}

func TestUnknownInstrument(t *testing.T) {
	f := newFixture(t, "XBT-USD")

	_, err := f.svc.PlaceOrder("NOPE", book.Bid, book.Limit, 100, 10)
	if !errors.Is(err, book.ErrUnknownInstrument) {
		t.Errorf("expected unknown instrument, got %v", err)
	}
}

func TestQueries(t *testing.T) {
	f := newFixture(t, "XBT-USD")
	f.svc.PlaceOrder("XBT-USD", book.Bid, book.Limit, 99, 10)
	f.svc.PlaceOrder("XBT-USD", book.Ask, book.Limit, 101, 10)

	bid, ask, haveBid, haveAsk, err := f.svc.TopOfBook("XBT-USD")
	if err != nil || !haveBid || !haveAsk || bid != 99 || ask != 101 {
		t.Errorf("top of book wrong: %d/%d %v", bid, ask, err)
	}

	sp, ok, err := f.svc.Spread("XBT-USD")
	if err != nil || !ok || sp != 2 {
		t.Errorf("expected spread 2, got %d (%v, %v)", sp, ok, err)
	}

	bids, asks, err := f.svc.Depth("XBT-USD", 0)
	if err != nil || len(bids) != 1 || len(asks) != 1 {
		t.Errorf("depth wrong: %v %v %v", bids, asks, err)
	}
}

func TestRestartRecoversState(t *testing.T) {
	f := newFixture(t, "XBT-USD")

	resting, _ := f.svc.PlaceOrder("XBT-USD", book.Bid, book.Limit, 100, 10)
	f.svc.PlaceOrder("XBT-USD", book.Ask, book.Limit, 100, 4) // partial fill
	cancelled, _ := f.svc.PlaceOrder("XBT-USD", book.Bid, book.Limit, 95, 3)
	f.svc.Cancel("XBT-USD", cancelled.OrderID)
	lastSeq := f.svc.seq.Current()

	// Fresh service over the same WAL dir simulates a restart.
	w2, err := entrywal.Open(entrywal.Config{Dir: f.walDir})
	if err != nil {
		t.Fatalf("reopen wal: %v", err)
	}
	defer w2.Close()
	outbox2, err := exitwal.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open outbox: %v", err)
	}
	defer outbox2.Close()

	svc2 := New(Config{Symbols: []string{"XBT-USD"}}, w2, outbox2, zap.NewNop())
	if err := svc2.Replay(f.walDir, 0); err != nil {
		t.Fatalf("replay: %v", err)
	}

	bids, _, err := svc2.Depth("XBT-USD", 0)
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if len(bids) != 1 || bids[0].Price != 100 || bids[0].Qty != 6 {
		t.Errorf("replay should leave 6 resting at 100, got %+v", bids)
	}

	// Cancel of the replayed survivor still works under the old id.
	if err := svc2.Cancel("XBT-USD", resting.OrderID); err != nil {
		t.Errorf("cancel after replay: %v", err)
	}

	if svc2.seq.Current() < lastSeq {
		t.Errorf("sequencer must resume past %d, at %d", lastSeq, svc2.seq.Current())
	}
}

func TestSnapshotThenReplayTail(t *testing.T) {
	f := newFixture(t, "XBT-USD")
	snapDir := t.TempDir()

	f.svc.PlaceOrder("XBT-USD", book.Bid, book.Limit, 90, 5)

	// Snapshot now, then keep trading.
	sw := &snapshot.Writer{Dir: snapDir}
	covered, err := f.svc.WriteSnapshot(sw)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	f.svc.PlaceOrder("XBT-USD", book.Bid, book.Limit, 95, 2)

	// Restart: snapshot first, then the WAL tail.
	w2, _ := entrywal.Open(entrywal.Config{Dir: f.walDir})
	defer w2.Close()
	outbox2, _ := exitwal.Open(t.TempDir())
	defer outbox2.Close()

	svc2 := New(Config{Symbols: []string{"XBT-USD"}}, w2, outbox2, zap.NewNop())
	seq, err := svc2.LoadSnapshot(snapDir)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if seq != covered {
		t.Fatalf("expected snapshot seq %d, got %d", covered, seq)
	}
	if err := svc2.Replay(f.walDir, seq); err != nil {
		t.Fatalf("replay tail: %v", err)
	}

	bids, _, _ := svc2.Depth("XBT-USD", 0)
	if len(bids) != 2 {
		t.Fatalf("expected both orders back, got %+v", bids)
	}
	if bids[0].Price != 95 || bids[1].Price != 90 {
		t.Errorf("restored book wrong: %+v", bids)
	}
}

func TestConcurrentPlaceAcrossSymbols(t *testing.T) {
	f := newFixture(t, "XBT-USD", "ETH-USD")

	const workers = 4
	const perWorker = 50
	symbols := []string{"XBT-USD", "ETH-USD"}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				side := book.Bid
				if i%2 == 1 {
					side = book.Ask // crosses, so fills retire concurrently
				}
				if _, err := f.svc.PlaceOrder(sym, side, book.Limit, 100, 1); err != nil {
					t.Errorf("place on %s: %v", sym, err)
					return
				}
			}
		}(symbols[w%2])
	}
	wg.Wait()

	f.svc.AdvanceEpoch()

	// Writers on both books interleave, yet the log must replay
	// cleanly: sequence order in the file is allocation order.
	count := 0
	if _, err := entrywal.Replay(f.walDir, func(rec *entrywal.Record) error {
		count++
		return nil
	}); err != nil {
		t.Fatalf("replay after concurrent writes: %v", err)
	}
	if count != workers*perWorker {
		t.Errorf("expected %d logged intents, got %d", workers*perWorker, count)
	}
}

func TestSnapshotConsistentUnderConcurrentWrites(t *testing.T) {
	f := newFixture(t, "XBT-USD")
	snapDir := t.TempDir()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		price := int64(100)
		for n := 0; n < 400; n++ {
			select {
			case <-stop:
				return
			default:
			}
			f.svc.PlaceOrder("XBT-USD", book.Bid, book.Limit, price, 2)
			price++
		}
	}()
	go func() {
		defer wg.Done()
		for n := 0; n < 400; n++ {
			select {
			case <-stop:
				return
			default:
			}
			// Crossing sells sweep the best bid so fills and retires
			// run while the snapshotter does.
			f.svc.PlaceOrder("XBT-USD", book.Ask, book.Limit, 90, 1)
		}
	}()

	sw := &snapshot.Writer{Dir: snapDir}
	var covered uint64
	for i := 0; i < 5; i++ {
		seq, err := f.svc.WriteSnapshot(sw)
		if err != nil {
			t.Fatalf("snapshot %d: %v", i, err)
		}
		covered = seq
	}
	close(stop)
	wg.Wait()

	liveBids, liveAsks, err := f.svc.Depth("XBT-USD", 0)
	if err != nil {
		t.Fatalf("depth: %v", err)
	}

	// Snapshot plus tail must rebuild exactly the live book. An order
	// captured by the snapshot yet above the watermark would come back
	// twice, and a replayed aggressor would fill counterparties again.
	w2, err := entrywal.Open(entrywal.Config{Dir: f.walDir})
	if err != nil {
		t.Fatalf("reopen wal: %v", err)
	}
	defer w2.Close()
	outbox2, err := exitwal.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open outbox: %v", err)
	}
	defer outbox2.Close()

	svc2 := New(Config{Symbols: []string{"XBT-USD"}}, w2, outbox2, zap.NewNop())
	seq, err := svc2.LoadSnapshot(snapDir)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if seq != covered {
		t.Fatalf("expected watermark %d, got %d", covered, seq)
	}
	if err := svc2.Replay(f.walDir, seq); err != nil {
		t.Fatalf("replay tail: %v", err)
	}

	gotBids, gotAsks, err := svc2.Depth("XBT-USD", 0)
	if err != nil {
		t.Fatalf("depth after recovery: %v", err)
	}
	if !reflect.DeepEqual(gotBids, liveBids) || !reflect.DeepEqual(gotAsks, liveAsks) {
		t.Errorf("recovered book diverged:\nlive bids %+v asks %+v\ngot  bids %+v asks %+v",
			liveBids, liveAsks, gotBids, gotAsks)
	}
}

func TestRestartResumesPastPendingTrades(t *testing.T) {
	f := newFixture(t, "XBT-USD")

	// Two resting bids, one sweeping ask: two trades pending delivery.
	f.svc.PlaceOrder("XBT-USD", book.Bid, book.Limit, 100, 10)
	f.svc.PlaceOrder("XBT-USD", book.Bid, book.Limit, 99, 10)
	f.svc.PlaceOrder("XBT-USD", book.Ask, book.Limit, 99, 12)

	maxTrade, err := f.outbox.MaxSeq()
	if err != nil {
		t.Fatalf("max seq: %v", err)
	}
	if maxTrade == 0 {
		t.Fatal("expected pending trades in the outbox")
	}

	// Restart over the same WAL and the same outbox, trades undelivered.
	w2, err := entrywal.Open(entrywal.Config{Dir: f.walDir})
	if err != nil {
		t.Fatalf("reopen wal: %v", err)
	}
	defer w2.Close()

	svc2 := New(Config{Symbols: []string{"XBT-USD"}}, w2, f.outbox, zap.NewNop())
	if err := svc2.Replay(f.walDir, 0); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if svc2.seq.Current() < maxTrade {
		t.Fatalf("sequencer at %d, must resume past pending trade %d",
			svc2.seq.Current(), maxTrade)
	}

	// A fill after the restart lands on a fresh key instead of
	// overwriting an undelivered trade.
	svc2.PlaceOrder("XBT-USD", book.Ask, book.Limit, 99, 1)

	count := 0
	if err := f.outbox.ScanPending(func(seq uint64, rec exitwal.TradeRecord) error {
		count++
		return nil
	}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 pending trades, got %d", count)
	}
}

func TestRestingOrdersGauge(t *testing.T) {
	f := newFixture(t, "XBT-USD")

	res, _ := f.svc.PlaceOrder("XBT-USD", book.Bid, book.Limit, 100, 10)
	f.svc.PlaceOrder("XBT-USD", book.Bid, book.Limit, 99, 10)
	if got := testutil.ToFloat64(monitoring.RestingOrders.WithLabelValues("XBT-USD")); got != 2 {
		t.Errorf("gauge after places = %v, want 2", got)
	}

	if err := f.svc.Cancel("XBT-USD", res.OrderID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := testutil.ToFloat64(monitoring.RestingOrders.WithLabelValues("XBT-USD")); got != 1 {
		t.Errorf("gauge after cancel = %v, want 1", got)
	}
}

func TestAdvanceEpochReclaims(t *testing.T) {
	f := newFixture(t, "XBT-USD")

	// A full fill retires both orders into the ring.
	f.svc.PlaceOrder("XBT-USD", book.Bid, book.Limit, 100, 5)
	f.svc.PlaceOrder("XBT-USD", book.Ask, book.Limit, 100, 5)

	f.svc.AdvanceEpoch()
	if f.svc.ring.Dequeue() != nil {
		t.Error("epoch advance with no readers should drain the ring")
	}
}
