package email

import (
	"context"
	"sync"
)

// recordingTransport remembers every message it is handed.
type recordingTransport struct {
	mu       sync.Mutex
	messages []Message
	err      error
	closed   int
	mutate   bool
}

func (t *recordingTransport) Name() string { return "Recording" }

func (t *recordingTransport) Send(ctx context.Context, msg Message) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, NewTransportError("Recording", "send", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.mutate && len(msg.To) > 0 {
		msg.To[0] = "mutated@example.com"
	}

	t.messages = append(t.messages, msg)

	if t.err != nil {
		return Result{}, t.err
	}

	return Result{ID: NewMessageID()}, nil
}

func (t *recordingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed++

	return nil
}

func (t *recordingTransport) last() Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.messages[len(t.messages)-1]
}
