package book

// HalfBook is one side of an instrument's book. Bids rank best-to-worst by
// descending price, asks by ascending price; within a price, time priority
// is strict FIFO.
type HalfBook struct {
	side   Side
	levels *levelTree
}

// LevelView is an aggregate view of one price level, best first in depth
// listings.
type LevelView struct {
	Price  int64 `json:"price"`
	Qty    int64 `json:"qty"`
	Orders int   `json:"orders"`
}

func NewHalfBook(side Side) *HalfBook {
	return &HalfBook{
		side:   side,
		levels: newLevelTree(),
	}
}

func (h *HalfBook) Side() Side { return h.side }

// BestPrice returns the closest-to-crossing resting price: max for bids,
// min for asks. ok is false when the side holds no liquidity.
func (h *HalfBook) BestPrice() (price int64, ok bool) {
	lvl := h.bestLevel()
	if lvl == nil {
		return 0, false
	}
	return lvl.Price, true
}

func (h *HalfBook) bestLevel() *PriceLevel {
	if h.side == Bid {
		return h.levels.MaxLevel()
	}
	return h.levels.MinLevel()
}

// crosses reports whether a resting level at price is eligible against an
// aggressor limit on the opposite side.
func (h *HalfBook) crosses(price, limit int64) bool {
	if h.side == Bid {
		return price >= limit // sell aggressor hits bids at or above its limit
	}
	return price <= limit // buy aggressor lifts asks at or below its limit
}

// walkBest visits levels in priority order, best first.
func (h *HalfBook) walkBest(fn func(*PriceLevel) bool) {
	if h.side == Bid {
		h.levels.ForEachDescending(fn)
	} else {
		h.levels.ForEachAscending(fn)
	}
}

// Depth returns up to n levels with aggregate quantity, best first.
// n <= 0 means all levels. Side-effect free.
func (h *HalfBook) Depth(n int) []LevelView {
	var out []LevelView
	h.walkBest(func(lvl *PriceLevel) bool {
		out = append(out, LevelView{Price: lvl.Price, Qty: lvl.TotalQty, Orders: lvl.OrderCount})
		return n <= 0 || len(out) < n
	})
	return out
}

// AvailableQty sums resting quantity across all levels an aggressor with
// the given limit could reach. unlimited ignores the limit (Market, or
// IOC/FOK submitted without a price). Used for the FOK pre-check.
func (h *HalfBook) AvailableQty(limit int64, unlimited bool) int64 {
	var total int64
	h.walkBest(func(lvl *PriceLevel) bool {
		if !unlimited && !h.crosses(lvl.Price, limit) {
			return false
		}
		total += lvl.TotalQty
		return true
	})
	return total
}

// TotalQty is the resting quantity across the whole side.
func (h *HalfBook) TotalQty() int64 {
	return h.AvailableQty(0, true)
}

// Levels reports the number of populated price levels.
func (h *HalfBook) Levels() int {
	return h.levels.Size()
}

func (h *HalfBook) Empty() bool {
	return h.levels.Size() == 0
}

// addResting queues an order on this side, creating its level if absent.
func (h *HalfBook) addResting(o *Order) {
	h.levels.UpsertLevel(o.Price).Enqueue(o)
}

// remove unlinks the order with the given id from the level at price and
// retires the level if it empties. Returns nil if no such order rests here;
// the caller decides whether that is a user error or a broken index.
func (h *HalfBook) remove(price int64, id uint64) *Order {
	lvl := h.levels.FindLevel(price)
	if lvl == nil {
		return nil
	}
	o := lvl.Find(id)
	if o == nil {
		return nil
	}
	lvl.Unlink(o)
	if lvl.Empty() {
		h.levels.DeleteLevel(price)
	}
	return o
}
