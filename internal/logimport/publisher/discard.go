package publisher

import "context"

// DriverDiscard drops every record. Used for dry runs.
const DriverDiscard = "discard"

func init() {
	Register(DriverDiscard, func(ClientConfig) (Client, error) {
		return Discard{}, nil
	})
}

type Discard struct{}

func (Discard) Publish(ctx context.Context, _, _ string) error { return ctx.Err() }

func (Discard) Close() error { return nil }
