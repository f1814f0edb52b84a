package email

import (
	"context"

	"github.com/interactive-solutions/go-email/config"
)

// DoNothingStrategy is the strategy used when none is configured.
const DoNothingStrategy = "DoNothing"

func init() {
	RegisterStrategy(DoNothingStrategy, RegisterDoNothing)
}

// NoopTransport accepts every message without delivering it.
type NoopTransport struct{}

func NewNoopTransport() *NoopTransport {
	return &NoopTransport{}
}

func (t *NoopTransport) Name() string { return DoNothingStrategy }

func (t *NoopTransport) Send(_ context.Context, _ Message) (Result, error) {
	return Result{ID: NewMessageID()}, nil
}

func (t *NoopTransport) Close() error { return nil }

// RegisterDoNothing registers the no-op transport. It has no options.
func RegisterDoNothing(c *Container, _ config.Section) error {
	c.RegisterTransport(DoNothingStrategy, func() (Transport, error) {
		return NewNoopTransport(), nil
	})

	return nil
}
