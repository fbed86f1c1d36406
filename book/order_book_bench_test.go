package book

import "testing"

func benchBook() *OrderBook {
	return NewOrderBook("XBT-USD", nil)
}

func BenchmarkSubmitResting(b *testing.B) {
	book := benchBook()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = book.Submit(&Order{
			ID:    uint64(i + 1),
			Side:  Bid,
			Type:  Limit,
			Price: int64(100 + i%64),
			Qty:   1000,
			SeqID: uint64(i + 1),
			State: Active,
		})
	}
}

func BenchmarkSubmitMatched(b *testing.B) {
	book := benchBook()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		side := Bid
		if i%2 == 1 {
			side = Ask
		}
		_, _ = book.Submit(&Order{
			ID:    uint64(i + 1),
			Side:  side,
			Type:  Limit,
			Price: 100,
			Qty:   1,
			SeqID: uint64(i + 1),
			State: Active,
		})
	}
}

func BenchmarkCancel(b *testing.B) {
	book := benchBook()
	for i := 0; i < b.N; i++ {
		_, _ = book.Submit(&Order{
			ID:    uint64(i + 1),
			Side:  Bid,
			Type:  Limit,
			Price: int64(100 + i%64),
			Qty:   1000,
			SeqID: uint64(i + 1),
			State: Active,
		})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = book.Cancel(uint64(i + 1))
	}
}

func BenchmarkMarketSweep(b *testing.B) {
	book := benchBook()
	for i := 0; i < b.N; i++ {
		_, _ = book.Submit(&Order{
			ID:    uint64(i + 1),
			Side:  Ask,
			Type:  Limit,
			Price: int64(100 + i%64),
			Qty:   1,
			SeqID: uint64(i + 1),
			State: Active,
		})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = book.Submit(&Order{
			ID:    uint64(b.N + i + 1),
			Side:  Bid,
			Type:  Market,
			Qty:   1,
			SeqID: uint64(b.N + i + 1),
			State: Active,
		})
	}
}
