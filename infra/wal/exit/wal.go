package exit

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

// -------------------- State --------------------

// State tracks a trade through the outbox: written by the matcher as
// NEW, flipped to SENT when handed to the broker, ACKED once the
// broker confirms, FAILED after the retry budget runs out.
type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Record --------------------

// TradeRecord is one fill awaiting downstream delivery.
type TradeRecord struct {
	State       State
	Retries     uint32
	LastAttempt int64

	Symbol  string
	MakerID uint64
	TakerID uint64
	Price   int64
	Qty     int64
	Time    int64
}

// binary encoding:
// [state:1][retries:4][lastAttempt:8][maker:8][taker:8][price:8][qty:8][time:8][symlen:2][symbol]
func encodeRecord(r TradeRecord) []byte {
	buf := make([]byte, 1+4+8+8+8+8+8+8+2+len(r.Symbol))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	binary.BigEndian.PutUint64(buf[13:21], r.MakerID)
	binary.BigEndian.PutUint64(buf[21:29], r.TakerID)
	binary.BigEndian.PutUint64(buf[29:37], uint64(r.Price))
	binary.BigEndian.PutUint64(buf[37:45], uint64(r.Qty))
	binary.BigEndian.PutUint64(buf[45:53], uint64(r.Time))
	binary.BigEndian.PutUint16(buf[53:55], uint16(len(r.Symbol)))
	copy(buf[55:], r.Symbol)
	return buf
}

func decodeRecord(b []byte) (TradeRecord, error) {
	if len(b) < 55 {
		return TradeRecord{}, errors.New("invalid trade record length")
	}
	symLen := int(binary.BigEndian.Uint16(b[53:55]))
	if len(b) < 55+symLen {
		return TradeRecord{}, errors.New("invalid trade record length")
	}
	return TradeRecord{
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		MakerID:     binary.BigEndian.Uint64(b[13:21]),
		TakerID:     binary.BigEndian.Uint64(b[21:29]),
		Price:       int64(binary.BigEndian.Uint64(b[29:37])),
		Qty:         int64(binary.BigEndian.Uint64(b[37:45])),
		Time:        int64(binary.BigEndian.Uint64(b[45:53])),
		Symbol:      string(b[55 : 55+symLen]),
	}, nil
}

// -------------------- Outbox --------------------

// Outbox is the durable trade outbox, keyed by trade sequence. Pebble
// gives it crash safety; the broadcaster drains it at-least-once.
type Outbox struct {
	db *pebble.DB
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // durability is the point
	})
	if err != nil {
		return nil, err
	}
	return &Outbox{db: db}, nil
}

func (w *Outbox) Close() error {
	return w.db.Close()
}

// -------------------- API --------------------

// PutNew inserts a freshly executed trade.
func (w *Outbox) PutNew(tradeSeq uint64, rec TradeRecord) error {
	rec.State = StateNew
	rec.Retries = 0
	rec.LastAttempt = 0
	return w.db.Set(keyFor(tradeSeq), encodeRecord(rec), pebble.Sync)
}

// UpdateState rewrites a record's delivery state after send/ack/failure.
func (w *Outbox) UpdateState(tradeSeq uint64, state State, retries uint32) error {
	rec, err := w.Get(tradeSeq)
	if err != nil {
		return err
	}
	rec.State = state
	rec.Retries = retries
	rec.LastAttempt = time.Now().UnixNano()
	return w.db.Set(keyFor(tradeSeq), encodeRecord(rec), pebble.Sync)
}

// Delete removes acked records.
func (w *Outbox) Delete(tradeSeq uint64) error {
	return w.db.Delete(keyFor(tradeSeq), pebble.Sync)
}

// Get returns the current record for a trade.
func (w *Outbox) Get(tradeSeq uint64) (TradeRecord, error) {
	val, closer, err := w.db.Get(keyFor(tradeSeq))
	if err != nil {
		return TradeRecord{}, err
	}
	defer closer.Close()

	return decodeRecord(val)
}

// -------------------- Scan --------------------

// ScanByState iterates all records in the given state in key order.
// The broadcaster uses it to pick up NEW and stuck SENT trades.
func (w *Outbox) ScanByState(
	state State,
	fn func(tradeSeq uint64, rec TradeRecord) error,
) error {
	iter, err := w.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("trade/"),
		UpperBound: []byte("trade/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		rec, err := decodeRecord(iter.Value())
		if err != nil {
			return err
		}
		if rec.State != state {
			continue
		}

		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}

		if err := fn(seq, rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// ScanPending visits NEW trades plus SENT trades whose ack never
// arrived, in key order. This is the broadcaster's work queue.
func (w *Outbox) ScanPending(fn func(tradeSeq uint64, rec TradeRecord) error) error {
	iter, err := w.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("trade/"),
		UpperBound: []byte("trade/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		rec, err := decodeRecord(iter.Value())
		if err != nil {
			return err
		}
		if rec.State != StateNew && rec.State != StateSent {
			continue
		}

		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		if err := fn(seq, rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// MaxSeq returns the highest trade sequence present, or zero when the
// outbox is empty. Recovery resumes the sequencer past it so a fill
// after restart can never overwrite an undelivered trade.
func (w *Outbox) MaxSeq() (uint64, error) {
	iter, err := w.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("trade/"),
		UpperBound: []byte("trade/~"),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	return parseKey(iter.Key())
}

// MarkSent flips a trade to SENT and bumps its retry count.
func (w *Outbox) MarkSent(tradeSeq uint64) error {
	rec, err := w.Get(tradeSeq)
	if err != nil {
		return err
	}
	return w.UpdateState(tradeSeq, StateSent, rec.Retries+1)
}

// MarkAcked flips a trade to ACKED.
func (w *Outbox) MarkAcked(tradeSeq uint64) error {
	rec, err := w.Get(tradeSeq)
	if err != nil {
		return err
	}
	return w.UpdateState(tradeSeq, StateAcked, rec.Retries)
}

// -------------------- Helpers --------------------

func keyFor(tradeSeq uint64) []byte {
	return []byte(fmt.Sprintf("trade/%020d", tradeSeq))
}

func parseKey(b []byte) (uint64, error) {
	var seq uint64
	_, err := fmt.Sscanf(string(bytes.TrimPrefix(b, []byte("trade/"))), "%d", &seq)
	return seq, err
}
