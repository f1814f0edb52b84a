package email

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopTransport(t *testing.T) {
	transport := NewNoopTransport()

	first, err := transport.Send(context.Background(), Message{})
	require.NoError(t, err)
	second, err := transport.Send(context.Background(), Message{From: "sender@example.com", To: []string{"a@example.com"}})
	require.NoError(t, err)

	assert.Len(t, first.ID, 32)
	assert.NotEqual(t, first.ID, second.ID)
	assert.NoError(t, transport.Close())
}
