package entry

import (
	"encoding/binary"
	"errors"
	"time"
)

type RecordType uint8

const (
	RecordPlace RecordType = iota
	RecordCancel
)

// Record is one durable intent: an order placement or a cancel,
// written before the book is touched.
type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

func NewRecord(t RecordType, seq uint64, data []byte) *Record {
	return &Record{
		Type: t,
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Data: data,
	}
}

var errShortPayload = errors.New("wal: short payload")

// PlacePayload is the body of a RecordPlace frame.
type PlacePayload struct {
	Symbol  string
	OrderID uint64
	Side    uint8
	Type    uint8
	Price   int64
	Qty     int64
}

// Encoding: [id:8][side:1][type:1][price:8][qty:8][symlen:2][symbol]
func (p PlacePayload) Encode() []byte {
	buf := make([]byte, 8+1+1+8+8+2+len(p.Symbol))
	binary.BigEndian.PutUint64(buf[0:8], p.OrderID)
	buf[8] = p.Side
	buf[9] = p.Type
	binary.BigEndian.PutUint64(buf[10:18], uint64(p.Price))
	binary.BigEndian.PutUint64(buf[18:26], uint64(p.Qty))
	binary.BigEndian.PutUint16(buf[26:28], uint16(len(p.Symbol)))
	copy(buf[28:], p.Symbol)
	return buf
}

func DecodePlace(b []byte) (PlacePayload, error) {
	if len(b) < 28 {
		return PlacePayload{}, errShortPayload
	}
	symLen := int(binary.BigEndian.Uint16(b[26:28]))
	if len(b) < 28+symLen {
		return PlacePayload{}, errShortPayload
	}
	return PlacePayload{
		OrderID: binary.BigEndian.Uint64(b[0:8]),
		Side:    b[8],
		Type:    b[9],
		Price:   int64(binary.BigEndian.Uint64(b[10:18])),
		Qty:     int64(binary.BigEndian.Uint64(b[18:26])),
		Symbol:  string(b[28 : 28+symLen]),
	}, nil
}

// CancelPayload is the body of a RecordCancel frame.
type CancelPayload struct {
	Symbol  string
	OrderID uint64
}

// Encoding: [id:8][symlen:2][symbol]
func (p CancelPayload) Encode() []byte {
	buf := make([]byte, 8+2+len(p.Symbol))
	binary.BigEndian.PutUint64(buf[0:8], p.OrderID)
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(p.Symbol)))
	copy(buf[10:], p.Symbol)
	return buf
}

func DecodeCancel(b []byte) (CancelPayload, error) {
	if len(b) < 10 {
		return CancelPayload{}, errShortPayload
	}
	symLen := int(binary.BigEndian.Uint16(b[8:10]))
	if len(b) < 10+symLen {
		return CancelPayload{}, errShortPayload
	}
	return CancelPayload{
		OrderID: binary.BigEndian.Uint64(b[0:8]),
		Symbol:  string(b[10 : 10+symLen]),
	}, nil
}
