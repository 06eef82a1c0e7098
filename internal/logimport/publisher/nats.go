package publisher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const DriverNATS = "nats"

const natsFlushTimeout = 5 * time.Second

func init() {
	Register(DriverNATS, func(cfg ClientConfig) (Client, error) {
		return NewNATSClient(cfg)
	})
}

// NATSClient publishes on core NATS subjects. Publish only buffers; the
// connection flushes in the background.
type NATSClient struct {
	nc *nats.Conn
}

func NewNATSClient(cfg ClientConfig) (*NATSClient, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("nats: no servers")
	}
	onError := cfg.OnError
	if onError == nil {
		onError = func(error) {}
	}

	opts := []nats.Option{
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			onError(err)
		}),
	}
	if cfg.ClientID != "" {
		opts = append(opts, nats.Name(cfg.ClientID))
	}

	nc, err := nats.Connect(strings.Join(cfg.Brokers, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("nats: connect: %w", err)
	}
	return &NATSClient{nc: nc}, nil
}

func (c *NATSClient) Publish(ctx context.Context, topic, payload string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.nc.Publish(topic, []byte(payload))
}

func (c *NATSClient) Close() error {
	err := c.nc.FlushTimeout(natsFlushTimeout)
	c.nc.Close()
	return err
}
