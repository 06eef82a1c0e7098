// Package tail reads a topic back through a sarama consumer group and reports
// the rate records arrived at, to check an import against its ceiling.
package tail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"
)

// Meter buckets observations by whole second.
type Meter struct {
	mu      sync.Mutex
	seconds map[int64]int64
	total   int64
	first   time.Time
	last    time.Time
}

func NewMeter() *Meter {
	return &Meter{seconds: make(map[int64]int64)}
}

func (m *Meter) Observe(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seconds[t.Unix()]++
	m.total++
	if m.first.IsZero() || t.Before(m.first) {
		m.first = t
	}
	if t.After(m.last) {
		m.last = t
	}
}

func (m *Meter) Total() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Peak is the largest number of records seen within one calendar second.
func (m *Meter) Peak() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var peak int64
	for _, n := range m.seconds {
		peak = max(peak, n)
	}
	return peak
}

// Span is the time between the first and last observation.
func (m *Meter) Span() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last.Sub(m.first)
}

// Handler implements sarama.ConsumerGroupHandler.
type Handler struct {
	Out   io.Writer
	Meter *Meter

	// Quiet suppresses printing values; they are still metered.
	Quiet bool

	outMu sync.Mutex
}

func (*Handler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (*Handler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *Handler) ConsumeClaim(s sarama.ConsumerGroupSession, c sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-c.Messages():
			if !ok {
				return nil
			}
			ts := msg.Timestamp
			if ts.IsZero() {
				ts = time.Now()
			}
			h.Meter.Observe(ts)
			if !h.Quiet && h.Out != nil {
				h.outMu.Lock()
				_, _ = fmt.Fprintf(h.Out, "%s\n", msg.Value)
				h.outMu.Unlock()
			}
			s.MarkMessage(msg, "")
		case <-s.Context().Done():
			return nil
		}
	}
}

type Config struct {
	Brokers       []string
	Topic         string
	Group         string
	FromBeginning bool
	ClientID      string
}

func NewSaramaConfig(cfg Config) *sarama.Config {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Version = sarama.V2_8_0_0
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	if cfg.FromBeginning {
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	return sc
}

// Run consumes until ctx is done, then logs what the meter saw.
func Run(ctx context.Context, cfg Config, h *Handler) error {
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.Group, NewSaramaConfig(cfg))
	if err != nil {
		return fmt.Errorf("tail: consumer group: %w", err)
	}
	defer group.Close()

	for ctx.Err() == nil {
		if err := group.Consume(ctx, []string{cfg.Topic}, h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				break
			}
			return fmt.Errorf("tail: consume %s: %w", cfg.Topic, err)
		}
	}

	log.Info().
		Str("component", "tail").
		Str("topic", cfg.Topic).
		Int64("records", h.Meter.Total()).
		Int64("peak_per_second", h.Meter.Peak()).
		Dur("span", h.Meter.Span()).
		Msg("tail stopped")
	return nil
}
