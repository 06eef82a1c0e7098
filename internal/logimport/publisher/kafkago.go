package publisher

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

const DriverKafkaGo = "kafka-go"

func init() {
	Register(DriverKafkaGo, func(cfg ClientConfig) (Client, error) {
		return NewKafkaGoClient(cfg)
	})
}

// KafkaGoClient publishes through an asynchronous segmentio/kafka-go Writer.
type KafkaGoClient struct {
	w *kafka.Writer
}

func NewKafkaGoClient(cfg ClientConfig) (*KafkaGoClient, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka-go: no brokers")
	}
	onError := cfg.OnError
	if onError == nil {
		onError = func(error) {}
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.RoundRobin{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		MaxAttempts:  3,
		Transport:    &kafka.Transport{ClientID: cfg.ClientID},
		Completion: func(messages []kafka.Message, err error) {
			if err == nil {
				return
			}
			for range messages {
				onError(err)
			}
		},
	}
	return &KafkaGoClient{w: w}, nil
}

func (c *KafkaGoClient) Publish(ctx context.Context, topic, payload string) error {
	return c.w.WriteMessages(ctx, kafka.Message{Topic: topic, Value: []byte(payload)})
}

func (c *KafkaGoClient) Close() error { return c.w.Close() }
