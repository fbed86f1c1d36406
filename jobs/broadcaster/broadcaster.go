package broadcaster

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	exitwal "matchbox/infra/wal/exit"
	"matchbox/monitoring"
)

// Broadcaster drains the trade outbox into Kafka. Delivery is
// at-least-once: a trade is marked SENT before the publish and ACKED
// only after the broker confirms, so a crash between the two replays
// the trade on the next pass.
type Broadcaster struct {
	outbox   *exitwal.Outbox
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
	log      *zap.Logger
}

// TradeEvent is the wire shape published for every executed trade.
type TradeEvent struct {
	V       int    `json:"v"`
	Seq     uint64 `json:"seq"`
	Symbol  string `json:"symbol"`
	MakerID uint64 `json:"maker_id"`
	TakerID uint64 `json:"taker_id"`
	Price   int64  `json:"price"`
	Qty     int64  `json:"qty"`
	Time    int64  `json:"ts"`
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

func New(
	outbox *exitwal.Outbox,
	brokers []string,
	topic string,
	log *zap.Logger,
) (*Broadcaster, error) {

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}

	return &Broadcaster{
		outbox:   outbox,
		producer: producer,
		topic:    topic,
		interval: 250 * time.Millisecond,
		log:      log,
	}, nil
}

// ------------------------------------------------
// START LOOP
// ------------------------------------------------

func (b *Broadcaster) Start(ctx context.Context) {
	b.log.Info("broadcaster started", zap.String("topic", b.topic))

	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case <-ticker.C:
				b.drainOnce()
			}
		}
	}()
}

// ------------------------------------------------
// DRAIN LOGIC
// ------------------------------------------------

func (b *Broadcaster) drainOnce() {
	pending := 0
	err := b.outbox.ScanPending(func(seq uint64, rec exitwal.TradeRecord) error {
		// Mark SENT first so a crash after the publish replays
		// rather than drops.
		if err := b.outbox.MarkSent(seq); err != nil {
			return err
		}

		payload, err := json.Marshal(TradeEvent{
			V:       1,
			Seq:     seq,
			Symbol:  rec.Symbol,
			MakerID: rec.MakerID,
			TakerID: rec.TakerID,
			Price:   rec.Price,
			Qty:     rec.Qty,
			Time:    rec.Time,
		})
		if err != nil {
			return err
		}

		msg := &sarama.ProducerMessage{
			Topic: b.topic,
			Key:   sarama.StringEncoder(rec.Symbol),
			Value: sarama.ByteEncoder(payload),
		}
		if _, _, err := b.producer.SendMessage(msg); err != nil {
			b.log.Warn("publish failed, will retry",
				zap.Uint64("seq", seq), zap.Error(err))
			pending++
			return nil // stays SENT, picked up next pass
		}

		return b.outbox.MarkAcked(seq)
	})
	if err != nil {
		b.log.Error("outbox scan failed", zap.Error(err))
	}
	monitoring.OutboxPending.Set(float64(pending))
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
