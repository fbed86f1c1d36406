package engine

import (
	"sort"
	"sync"

	"matchbox/book"
)

// Engine routes orders to per-instrument books. Each book has its own
// mutex, so instruments match independently; within one instrument all
// writes are serialized, which is what gives price-time priority its
// meaning.
type Engine struct {
	mu         sync.RWMutex
	books      map[string]*bookHandle
	autoCreate bool
	retire     book.RetireFunc
}

type bookHandle struct {
	mu   sync.Mutex
	book *book.OrderBook
}

// Option configures an Engine.
type Option func(*Engine)

// WithAutoCreate makes the engine open a book on first sight of an
// unknown symbol instead of rejecting the order.
func WithAutoCreate() Option {
	return func(e *Engine) { e.autoCreate = true }
}

// WithRetire installs the retire callback passed to every book.
func WithRetire(fn book.RetireFunc) Option {
	return func(e *Engine) { e.retire = fn }
}

func New(symbols []string, opts ...Option) *Engine {
	e := &Engine{books: make(map[string]*bookHandle, len(symbols))}
	for _, opt := range opts {
		opt(e)
	}
	for _, s := range symbols {
		e.books[s] = &bookHandle{book: book.NewOrderBook(s, e.retire)}
	}
	return e
}

// AddInstrument opens a book for a new symbol. Opening an already
// listed symbol is a no-op.
func (e *Engine) AddInstrument(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.books[symbol]; !ok {
		e.books[symbol] = &bookHandle{book: book.NewOrderBook(symbol, e.retire)}
	}
}

func (e *Engine) handle(symbol string) (*bookHandle, error) {
	e.mu.RLock()
	h, ok := e.books[symbol]
	e.mu.RUnlock()
	if ok {
		return h, nil
	}
	if !e.autoCreate {
		return nil, book.ErrUnknownInstrument
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if h, ok = e.books[symbol]; !ok {
		h = &bookHandle{book: book.NewOrderBook(symbol, e.retire)}
		e.books[symbol] = h
	}
	return h, nil
}

// Submit matches an order against its instrument's book.
func (e *Engine) Submit(symbol string, o *book.Order) (book.Result, error) {
	return e.SubmitWith(symbol, o, nil)
}

// SubmitWith runs prepare under the instrument's lock before matching.
// The write path logs the intent inside prepare, so per instrument the
// log order and the match order are the same even with submitters on
// many goroutines. A prepare error leaves the book untouched.
func (e *Engine) SubmitWith(symbol string, o *book.Order, prepare func() error) (book.Result, error) {
	h, err := e.handle(symbol)
	if err != nil {
		return book.Result{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if prepare != nil {
		if err := prepare(); err != nil {
			return book.Result{}, err
		}
	}
	return h.book.Submit(o)
}

// Cancel removes a resting order from its instrument's book.
func (e *Engine) Cancel(symbol string, id uint64) error {
	return e.CancelWith(symbol, id, nil)
}

// CancelWith is Cancel with a prepare hook, same contract as SubmitWith.
func (e *Engine) CancelWith(symbol string, id uint64, prepare func() error) error {
	h, err := e.handle(symbol)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if prepare != nil {
		if err := prepare(); err != nil {
			return err
		}
	}
	return h.book.Cancel(id)
}

// OrderCount returns the number of resting orders for one instrument.
func (e *Engine) OrderCount(symbol string) (int, error) {
	h, err := e.handle(symbol)
	if err != nil {
		return 0, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.book.OrderCount(), nil
}

// BestPrices returns the top of book for one instrument.
func (e *Engine) BestPrices(symbol string) (bid, ask int64, haveBid, haveAsk bool, err error) {
	h, err := e.handle(symbol)
	if err != nil {
		return 0, 0, false, false, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	bid, haveBid = h.book.BestBid()
	ask, haveAsk = h.book.BestAsk()
	return bid, ask, haveBid, haveAsk, nil
}

// Depth returns aggregated levels, best first, for one instrument.
// n <= 0 returns every level.
func (e *Engine) Depth(symbol string, n int) (bids, asks []book.LevelView, err error) {
	h, err := e.handle(symbol)
	if err != nil {
		return nil, nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	bids, asks = h.book.Depth(n)
	return bids, asks, nil
}

// Spread returns best ask minus best bid for one instrument; ok is
// false when either side is empty.
func (e *Engine) Spread(symbol string) (spread int64, ok bool, err error) {
	h, err := e.handle(symbol)
	if err != nil {
		return 0, false, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	spread, ok = h.book.Spread()
	return spread, ok, nil
}

// Symbols lists the instruments with open books, sorted.
func (e *Engine) Symbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.books))
	for s := range e.books {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Walk visits every book under its lock, in sorted symbol order. Used
// by the snapshotter.
func (e *Engine) Walk(visit func(*book.OrderBook)) {
	for _, s := range e.Symbols() {
		e.mu.RLock()
		h := e.books[s]
		e.mu.RUnlock()
		if h == nil {
			continue
		}
		h.mu.Lock()
		visit(h.book)
		h.mu.Unlock()
	}
}

// Restore seeds a resting order into its book without matching. Books
// are created as needed regardless of auto-create, since a snapshot or
// log replay must land exactly where it came from.
func (e *Engine) Restore(symbol string, o *book.Order) error {
	e.AddInstrument(symbol)
	e.mu.RLock()
	h := e.books[symbol]
	e.mu.RUnlock()
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.book.Restore(o)
}
