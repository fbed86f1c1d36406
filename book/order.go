package book

type Side uint8
type OrderType uint8
type OrderState uint8

const (
	Bid Side = iota
	Ask
)

const (
	Limit OrderType = iota
	Market
	IOC // Immediate-Or-Cancel
	FOK // Fill-Or-Kill
)

const (
	Active OrderState = iota
	Inactive
)

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "limit"
	case Market:
		return "market"
	case IOC:
		return "ioc"
	case FOK:
		return "fok"
	default:
		return "unknown"
	}
}

// Order is a pure domain entity. While resting it is owned exclusively by
// the price level holding it; the book's id index keeps only a (side, price)
// location, never a second owner.
type Order struct {
	ID     uint64
	Side   Side
	Type   OrderType
	Price  int64 // ticks; zero means "no price" for Market/IOC/FOK
	Qty    int64 // original quantity
	Filled int64
	SeqID  uint64 // arrival sequence, drives time priority
	State  OrderState

	next, prev *Order // FIFO queue inside a price level
}

// Remaining reports the unfilled quantity.
func (o *Order) Remaining() int64 {
	return o.Qty - o.Filled
}

// Next allows read-only traversal of a price level.
func (o *Order) Next() *Order {
	return o.next
}

// Reset clears an order for reuse from a pool.
func (o *Order) Reset() {
	*o = Order{State: Active}
}
