package email

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// NewMessageID returns a random identifier for transports whose protocol does
// not hand one back: 32 lowercase hex characters.
func NewMessageID() string {
	id := uuid.New()

	return hex.EncodeToString(id[:])
}
