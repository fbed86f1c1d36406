package book

import (
	"fmt"
	"time"
)

// Status is the terminal disposition of a submitted order.
type Status uint8

const (
	StatusFilled Status = iota
	StatusPartiallyFilled
	StatusResting
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusFilled:
		return "filled"
	case StatusPartiallyFilled:
		return "partially_filled"
	case StatusResting:
		return "resting"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Fill records one execution. Price is always the resting (maker) order's
// price; the aggressor keeps any price improvement.
type Fill struct {
	MakerID uint64    `json:"maker_id"`
	TakerID uint64    `json:"taker_id"`
	Price   int64     `json:"price"`
	Qty     int64     `json:"qty"`
	Time    time.Time `json:"time"`
}

// Result is what a Submit call reports back to the caller, fills in the
// order they occurred.
type Result struct {
	OrderID   uint64 `json:"order_id"`
	Status    Status `json:"status"`
	Remaining int64  `json:"remaining"`
	Fills     []Fill `json:"fills,omitempty"`
}

// AvgFillPrice is the quantity-weighted average execution price, or 0 when
// nothing filled.
func (r Result) AvgFillPrice() int64 {
	var notional, qty int64
	for _, f := range r.Fills {
		notional += f.Price * f.Qty
		qty += f.Qty
	}
	if qty == 0 {
		return 0
	}
	return notional / qty
}

// RetireFunc receives orders the book is done with (fully filled makers,
// non-resting aggressors, cancellations) so the owner can recycle them.
type RetireFunc func(*Order)

// location is the non-owning handle the id index keeps for a resting order.
type location struct {
	side  Side
	price int64
}

// OrderBook is the matching core for a single instrument. It is
// single-writer: Submit and Cancel must be serialized by the caller, which
// is what makes the no-cross invariant and FIFO priority meaningful.
type OrderBook struct {
	symbol string
	bids   *HalfBook
	asks   *HalfBook
	locs   map[uint64]location

	retire RetireFunc
	now    func() time.Time
}

func NewOrderBook(symbol string, retire RetireFunc) *OrderBook {
	if retire == nil {
		retire = func(*Order) {}
	}
	return &OrderBook{
		symbol: symbol,
		bids:   NewHalfBook(Bid),
		asks:   NewHalfBook(Ask),
		locs:   make(map[uint64]location, 1024),
		retire: retire,
		now:    time.Now,
	}
}

func (b *OrderBook) Symbol() string { return b.symbol }

func (b *OrderBook) side(s Side) *HalfBook {
	if s == Bid {
		return b.bids
	}
	return b.asks
}

// Submit runs one incoming order through validate, match, and disposition.
// The order must carry its assigned ID and SeqID. On any error the book is
// untouched.
func (b *OrderBook) Submit(o *Order) (Result, error) {
	if err := b.validate(o); err != nil {
		return Result{OrderID: o.ID, Status: StatusRejected, Remaining: o.Qty}, err
	}

	opp := b.side(o.Side.Opposite())
	unlimited := o.Type == Market || o.Price == 0

	// A FOK order consumes nothing unless the whole quantity is reachable.
	if o.Type == FOK && opp.AvailableQty(o.Price, unlimited) < o.Qty {
		b.retire(o)
		return Result{OrderID: o.ID, Status: StatusRejected, Remaining: o.Qty}, nil
	}

	fills := b.match(o, opp, unlimited)

	res := Result{OrderID: o.ID, Remaining: o.Remaining(), Fills: fills}
	switch {
	case o.Remaining() == 0:
		res.Status = StatusFilled
		b.retire(o)
	case o.Type == Limit:
		// Unfilled remainder rests on the order's own side.
		b.locs[o.ID] = location{side: o.Side, price: o.Price}
		b.side(o.Side).addResting(o)
		res.Status = StatusResting
	case len(fills) > 0:
		res.Status = StatusPartiallyFilled
		b.retire(o)
	default:
		// Market with an empty opposing side, or IOC that crossed nothing.
		res.Status = StatusRejected
		b.retire(o)
	}

	b.assertUncrossed()
	return res, nil
}

func (b *OrderBook) validate(o *Order) error {
	if o.Qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidRequest, o.Qty)
	}
	if o.Price < 0 {
		return fmt.Errorf("%w: negative price %d", ErrInvalidRequest, o.Price)
	}
	if o.Type == Limit && o.Price == 0 {
		return fmt.Errorf("%w: limit order requires a price", ErrInvalidRequest)
	}
	if _, dup := b.locs[o.ID]; dup {
		return fmt.Errorf("%w: %d", ErrDuplicateOrder, o.ID)
	}
	return nil
}

// match takes liquidity from the opposing side, best price first, FIFO
// within each level, until the taker is satisfied or the limit no longer
// crosses. Every fill executes at the maker's price.
func (b *OrderBook) match(taker *Order, opp *HalfBook, unlimited bool) []Fill {
	var fills []Fill
	for taker.Remaining() > 0 {
		lvl := opp.bestLevel()
		if lvl == nil {
			break
		}
		if !unlimited && !opp.crosses(lvl.Price, taker.Price) {
			break
		}

		for taker.Remaining() > 0 && !lvl.Empty() {
			maker := lvl.Head()
			trade := min64(taker.Remaining(), maker.Remaining())
			taker.Filled += trade
			maker.Filled += trade
			lvl.TotalQty -= trade

			fills = append(fills, Fill{
				MakerID: maker.ID,
				TakerID: taker.ID,
				Price:   lvl.Price,
				Qty:     trade,
				Time:    b.now(),
			})

			if maker.Remaining() == 0 {
				lvl.PopHead()
				delete(b.locs, maker.ID)
				b.retire(maker)
			}
		}

		if lvl.Empty() {
			opp.levels.DeleteLevel(lvl.Price)
		}
	}
	return fills
}

// Cancel removes a resting order. It never triggers rematching. An id the
// index does not know (unknown, already filled, or already cancelled)
// reports ErrOrderNotFound.
func (b *OrderBook) Cancel(id uint64) error {
	loc, ok := b.locs[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	o := b.side(loc.side).remove(loc.price, id)
	if o == nil {
		panic(fmt.Sprintf("book %s: id index points at %s@%d but order %d is not there", b.symbol, loc.side, loc.price, id))
	}
	delete(b.locs, id)
	b.retire(o)
	return nil
}

// BestBid returns the highest resting bid price.
func (b *OrderBook) BestBid() (int64, bool) { return b.bids.BestPrice() }

// BestAsk returns the lowest resting ask price.
func (b *OrderBook) BestAsk() (int64, bool) { return b.asks.BestPrice() }

// Spread returns ask minus bid when both sides are populated.
func (b *OrderBook) Spread() (int64, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return 0, false
	}
	return ask - bid, true
}

// Depth returns up to n aggregated levels per side, best first.
func (b *OrderBook) Depth(n int) (bids, asks []LevelView) {
	return b.bids.Depth(n), b.asks.Depth(n)
}

// OrderCount reports how many orders are resting across both sides.
func (b *OrderBook) OrderCount() int {
	return len(b.locs)
}

// Resting reports whether the given order id currently rests in the book.
func (b *OrderBook) Resting(id uint64) bool {
	_, ok := b.locs[id]
	return ok
}

func (b *OrderBook) Empty() bool {
	return b.bids.Empty() && b.asks.Empty()
}

// Restore inserts a resting order without matching. Only for seeding a book
// from a snapshot, which by construction contains no crossed state.
func (b *OrderBook) Restore(o *Order) error {
	if o.Remaining() <= 0 || o.Price <= 0 {
		return fmt.Errorf("%w: restore of order %d", ErrInvalidRequest, o.ID)
	}
	if _, dup := b.locs[o.ID]; dup {
		return fmt.Errorf("%w: %d", ErrDuplicateOrder, o.ID)
	}
	b.locs[o.ID] = location{side: o.Side, price: o.Price}
	b.side(o.Side).addResting(o)
	b.assertUncrossed()
	return nil
}

// WalkResting visits every resting order, bids best-first then asks
// best-first. Used by snapshots and depth feeds.
func (b *OrderBook) WalkResting(visit func(*Order)) {
	walk := func(h *HalfBook) {
		h.walkBest(func(lvl *PriceLevel) bool {
			for o := lvl.Head(); o != nil; o = o.Next() {
				visit(o)
			}
			return true
		})
	}
	walk(b.bids)
	walk(b.asks)
}

// assertUncrossed enforces the post-operation invariant: best bid strictly
// below best ask unless a side is empty. Matching walks levels in priority
// order and stops exactly when the limit stops crossing, so a failure here
// is a logic defect, not user error.
func (b *OrderBook) assertUncrossed() {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if okB && okA && bid >= ask {
		panic(fmt.Sprintf("book %s crossed: best bid %d >= best ask %d", b.symbol, bid, ask))
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
