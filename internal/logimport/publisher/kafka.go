package publisher

import (
	"context"
	"errors"
	stdlog "log"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"
)

const DriverKafka = "kafka"

func init() {
	Register(DriverKafka, func(cfg ClientConfig) (Client, error) {
		return NewKafkaClient(cfg)
	})
}

var saramaLogOnce sync.Once

// NewSaramaConfig is the producer configuration used for imports: values are
// plain strings without a key, and sends do not wait for the broker.
func NewSaramaConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	if clientID != "" {
		cfg.ClientID = clientID
	}

	// Fire-and-forget: leader ack only, successes are not reported back.
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Return.Successes = false
	cfg.Producer.Return.Errors = true

	cfg.Producer.Retry.Max = 3
	cfg.Producer.Retry.Backoff = 100 * time.Millisecond
	cfg.Producer.Flush.Frequency = 50 * time.Millisecond
	cfg.Producer.Partitioner = sarama.NewRoundRobinPartitioner

	cfg.Version = sarama.V2_1_0_0
	return cfg
}

// KafkaClient publishes through a sarama AsyncProducer.
type KafkaClient struct {
	ap      sarama.AsyncProducer
	onError func(error)
	done    chan struct{}
}

func NewKafkaClient(cfg ClientConfig) (*KafkaClient, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers")
	}
	saramaLogOnce.Do(func() {
		sarama.Logger = stdlog.New(log.Logger.With().Str("component", "sarama").Logger(), "", 0)
	})

	ap, err := sarama.NewAsyncProducer(cfg.Brokers, NewSaramaConfig(cfg.ClientID))
	if err != nil {
		return nil, err
	}
	return newKafkaClient(ap, cfg.OnError), nil
}

func newKafkaClient(ap sarama.AsyncProducer, onError func(error)) *KafkaClient {
	if onError == nil {
		onError = func(error) {}
	}
	c := &KafkaClient{ap: ap, onError: onError, done: make(chan struct{})}
	go c.drainErrors()
	return c
}

func (c *KafkaClient) drainErrors() {
	defer close(c.done)
	for pe := range c.ap.Errors() {
		c.onError(pe.Err)
	}
}

func (c *KafkaClient) Publish(ctx context.Context, topic, payload string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.StringEncoder(payload),
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case c.ap.Input() <- msg:
		return nil
	}
}

// Close flushes in-flight messages and waits until every late error has been
// reported.
func (c *KafkaClient) Close() error {
	c.ap.AsyncClose()
	<-c.done
	return nil
}
