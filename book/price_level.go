package book

import "fmt"

// PriceLevel holds the FIFO queue of resting orders at a single price.
// Time priority within the level is arrival order: new orders enter at the
// tail, matching consumes from the head.
type PriceLevel struct {
	Price int64

	head *Order
	tail *Order

	TotalQty   int64 // sum of Remaining() over queued orders
	OrderCount int
}

// Enqueue appends an order at the tail of the level.
func (lvl *PriceLevel) Enqueue(o *Order) {
	if lvl.tail != nil {
		lvl.tail.next = o
		o.prev = lvl.tail
	} else {
		lvl.head = o
	}
	lvl.tail = o
	lvl.TotalQty += o.Remaining()
	lvl.OrderCount++
}

// PopHead removes and returns the oldest order, or nil if the level is empty.
func (lvl *PriceLevel) PopHead() *Order {
	o := lvl.head
	if o == nil {
		return nil
	}
	lvl.head = o.next
	if lvl.head != nil {
		lvl.head.prev = nil
	} else {
		lvl.tail = nil
	}
	o.next, o.prev = nil, nil
	lvl.TotalQty -= o.Remaining()
	lvl.OrderCount--
	return o
}

// Unlink removes an order from anywhere in the level. The order must be
// queued here; callers locate it through the book's id index.
func (lvl *PriceLevel) Unlink(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		lvl.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		lvl.tail = o.prev
	}
	o.next, o.prev = nil, nil
	lvl.TotalQty -= o.Remaining()
	lvl.OrderCount--
}

// Find walks the queue for the order with the given id.
func (lvl *PriceLevel) Find(id uint64) *Order {
	for n := lvl.head; n != nil; n = n.next {
		if n.ID == id {
			return n
		}
	}
	return nil
}

func (lvl *PriceLevel) Empty() bool {
	return lvl.head == nil
}

// Head allows read-only traversal starting at the oldest order.
func (lvl *PriceLevel) Head() *Order {
	return lvl.head
}

func (lvl *PriceLevel) String() string {
	return fmt.Sprintf("PriceLevel{Price=%d, Orders=%d, TotalQty=%d}", lvl.Price, lvl.OrderCount, lvl.TotalQty)
}
