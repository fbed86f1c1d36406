package marketdata

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"matchbox/book"
	"matchbox/engine"
	"matchbox/infra/kafka"
)

// Publisher periodically pushes per-instrument top-of-book and depth
// to Kafka, keyed by symbol. It reads through the engine's locks, so a
// slow broker never blocks matching for longer than one depth copy.
type Publisher struct {
	engine   *engine.Engine
	producer *kafka.Producer
	interval time.Duration
	depth    int
	log      *zap.Logger
}

// Snapshot is the wire shape of one market data tick.
type Snapshot struct {
	V      int              `json:"v"`
	Symbol string           `json:"symbol"`
	Time   int64            `json:"ts"`
	Bid    *int64           `json:"bid,omitempty"`
	Ask    *int64           `json:"ask,omitempty"`
	Bids   []book.LevelView `json:"bids"`
	Asks   []book.LevelView `json:"asks"`
}

func New(
	eng *engine.Engine,
	producer *kafka.Producer,
	interval time.Duration,
	depth int,
	log *zap.Logger,
) *Publisher {
	if interval <= 0 {
		interval = time.Second
	}
	return &Publisher{
		engine:   eng,
		producer: producer,
		interval: interval,
		depth:    depth,
		log:      log,
	}
}

func (p *Publisher) Start(ctx context.Context) {
	p.log.Info("market data publisher started",
		zap.Duration("interval", p.interval), zap.Int("depth", p.depth))

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case <-ticker.C:
				p.publishOnce(ctx)
			}
		}
	}()
}

func (p *Publisher) publishOnce(ctx context.Context) {
	now := time.Now().UnixNano()

	for _, sym := range p.engine.Symbols() {
		bids, asks, err := p.engine.Depth(sym, p.depth)
		if err != nil {
			continue
		}

		snap := Snapshot{V: 1, Symbol: sym, Time: now, Bids: bids, Asks: asks}
		if len(bids) > 0 {
			snap.Bid = &bids[0].Price
		}
		if len(asks) > 0 {
			snap.Ask = &asks[0].Price
		}

		payload, err := json.Marshal(snap)
		if err != nil {
			p.log.Error("marshal snapshot", zap.String("symbol", sym), zap.Error(err))
			continue
		}

		if err := p.producer.Send(ctx, []byte(sym), payload); err != nil {
			p.log.Warn("market data publish failed",
				zap.String("symbol", sym), zap.Error(err))
		}
	}
}
