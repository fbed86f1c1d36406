package service

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"matchbox/book"
	"matchbox/engine"
	"matchbox/infra/memory"
	"matchbox/infra/sequence"
	entrywal "matchbox/infra/wal/entry"
	exitwal "matchbox/infra/wal/exit"
	"matchbox/monitoring"
	"matchbox/snapshot"
)

/*
OrderService is the ONLY write entry point into the system.

All coordination between:
- engine (per-instrument books)
- infra (memory, sequence, WALs)
- snapshot
happens here.
*/

type OrderService struct {
	engine *engine.Engine
	pool   *memory.Pool[book.Order]
	ring   *memory.RetireRing
	reader *snapshot.Reader
	seq    *sequence.Sequencer

	entryWAL *entrywal.WAL
	outbox   *exitwal.Outbox

	// stateMu is held shared by every command and exclusively by the
	// snapshotter: a watermark read under the write lock is exact.
	// walMu orders seq allocation and the append as one step, so the
	// log never runs backwards.
	stateMu sync.RWMutex
	walMu   sync.Mutex

	events chan TradeEvent
	log    *zap.Logger
}

// TradeEvent is pushed to in-process subscribers (the websocket hub)
// for every fill. Delivery here is best-effort; the outbox is the
// durable path.
type TradeEvent struct {
	Symbol  string `json:"symbol"`
	Seq     uint64 `json:"seq"`
	MakerID uint64 `json:"maker_id"`
	TakerID uint64 `json:"taker_id"`
	Price   int64  `json:"price"`
	Qty     int64  `json:"qty"`
	Time    int64  `json:"ts"`
}

type Config struct {
	Symbols    []string
	AutoCreate bool
	RingSize   uint64
	EventBuf   int
}

// New wires all dependencies. No globals.
func New(
	cfg Config,
	entryWAL *entrywal.WAL,
	outbox *exitwal.Outbox,
	log *zap.Logger,
) *OrderService {
	if cfg.RingSize == 0 {
		cfg.RingSize = 1 << 16
	}
	if cfg.EventBuf == 0 {
		cfg.EventBuf = 1024
	}

	s := &OrderService{
		pool:     memory.NewPool(func() *book.Order { return &book.Order{} }),
		ring:     memory.NewRetireRing(cfg.RingSize),
		reader:   snapshot.NewReader(),
		seq:      sequence.New(0),
		entryWAL: entryWAL,
		outbox:   outbox,
		events:   make(chan TradeEvent, cfg.EventBuf),
		log:      log,
	}

	opts := []engine.Option{engine.WithRetire(s.retire)}
	if cfg.AutoCreate {
		opts = append(opts, engine.WithAutoCreate())
	}
	s.engine = engine.New(cfg.Symbols, opts...)
	return s
}

// Engine exposes the book router for read-side consumers (market
// data, snapshots).
func (s *OrderService) Engine() *engine.Engine { return s.engine }

// Events is the in-process trade feed.
func (s *OrderService) Events() <-chan TradeEvent { return s.events }

//
// ──────────────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────────────
//

// PlaceOrder logs the intent, runs the match, and fans executed
// trades out to the durable outbox and the live feed.
func (s *OrderService) PlaceOrder(
	symbol string,
	side book.Side,
	otype book.OrderType,
	price int64,
	qty int64,
) (book.Result, error) {
	start := time.Now()

	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	o := s.pool.Get()
	o.Reset()
	o.Side = side
	o.Type = otype
	o.Price = price
	o.Qty = qty
	o.State = book.Active

	// Intent first; the book is only touched after the log has it.
	// The id is drawn and the record appended under the instrument's
	// lock, so per instrument the log replays in match order.
	res, err := s.engine.SubmitWith(symbol, o, func() error {
		s.walMu.Lock()
		defer s.walMu.Unlock()
		id := s.seq.Next()
		o.ID = id
		o.SeqID = id
		payload := entrywal.PlacePayload{
			Symbol:  symbol,
			OrderID: id,
			Side:    uint8(side),
			Type:    uint8(otype),
			Price:   price,
			Qty:     qty,
		}
		return s.entryWAL.Append(entrywal.NewRecord(entrywal.RecordPlace, id, payload.Encode()))
	})
	if err != nil {
		s.pool.Put(o)
		monitoring.OrdersTotal.WithLabelValues("error").Inc()
		return res, err
	}

	s.publishFills(symbol, res.Fills)
	s.updateRestingGauge(symbol)

	monitoring.OrdersTotal.WithLabelValues(res.Status.String()).Inc()
	monitoring.OrderLatency.Observe(time.Since(start).Seconds())
	return res, nil
}

// Cancel removes a resting order.
func (s *OrderService) Cancel(symbol string, id uint64) error {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	err := s.engine.CancelWith(symbol, id, func() error {
		s.walMu.Lock()
		defer s.walMu.Unlock()
		seq := s.seq.Next()
		payload := entrywal.CancelPayload{Symbol: symbol, OrderID: id}
		return s.entryWAL.Append(entrywal.NewRecord(entrywal.RecordCancel, seq, payload.Encode()))
	})
	if err != nil {
		if errors.Is(err, book.ErrOrderNotFound) || errors.Is(err, book.ErrUnknownInstrument) {
			monitoring.CancelsTotal.WithLabelValues("miss").Inc()
		}
		return err
	}
	monitoring.CancelsTotal.WithLabelValues("ok").Inc()
	s.updateRestingGauge(symbol)
	return nil
}

func (s *OrderService) updateRestingGauge(symbol string) {
	if n, err := s.engine.OrderCount(symbol); err == nil {
		monitoring.RestingOrders.WithLabelValues(symbol).Set(float64(n))
	}
}

func (s *OrderService) publishFills(symbol string, fills []book.Fill) {
	for _, f := range fills {
		tradeSeq := s.seq.Next()
		rec := exitwal.TradeRecord{
			Symbol:  symbol,
			MakerID: f.MakerID,
			TakerID: f.TakerID,
			Price:   f.Price,
			Qty:     f.Qty,
			Time:    f.Time.UnixNano(),
		}
		if err := s.outbox.PutNew(tradeSeq, rec); err != nil {
			s.log.Error("outbox write failed",
				zap.Uint64("trade_seq", tradeSeq), zap.Error(err))
		}
		monitoring.TradesTotal.Inc()
		monitoring.TradeVolume.Add(float64(f.Qty))

		ev := TradeEvent{
			Symbol:  symbol,
			Seq:     tradeSeq,
			MakerID: f.MakerID,
			TakerID: f.TakerID,
			Price:   f.Price,
			Qty:     f.Qty,
			Time:    f.Time.UnixNano(),
		}
		select {
		case s.events <- ev:
		default:
			// Slow subscriber; the durable path still has the trade.
		}
	}
}

//
// ──────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────
//

// TopOfBook returns best bid/ask for one instrument.
func (s *OrderService) TopOfBook(symbol string) (bid, ask int64, haveBid, haveAsk bool, err error) {
	s.reader.Begin()
	defer s.reader.End()
	return s.engine.BestPrices(symbol)
}

// Depth returns aggregated levels, best first. n <= 0 means all.
func (s *OrderService) Depth(symbol string, n int) (bids, asks []book.LevelView, err error) {
	s.reader.Begin()
	defer s.reader.End()
	return s.engine.Depth(symbol, n)
}

// Spread returns best ask minus best bid.
func (s *OrderService) Spread(symbol string) (int64, bool, error) {
	s.reader.Begin()
	defer s.reader.End()
	return s.engine.Spread(symbol)
}

// Symbols lists open books.
func (s *OrderService) Symbols() []string {
	return s.engine.Symbols()
}

//
// ──────────────────────────────────────────────────────────
// Reclamation
// ──────────────────────────────────────────────────────────
//

// AdvanceEpoch performs safe reclamation. Called periodically by a
// background job.
func (s *OrderService) AdvanceEpoch() {
	memory.AdvanceEpochAndReclaim(
		s.ring,
		s.pool, // satisfies ReclaimablePool via PutAny
		s.reader.Epoch(),
	)
}

func (s *OrderService) retire(o *book.Order) {
	o.State = book.Inactive
	if !s.ring.Enqueue(o) {
		// Reclaimer has stalled; dropping the object to the GC is
		// safe, reusing it is not.
		s.log.Warn("retire ring full", zap.Uint64("order_id", o.ID))
	}
}
