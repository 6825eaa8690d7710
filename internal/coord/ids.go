package coord

import (
	"github.com/google/uuid"
)

// IDGenerator produces peek correlation ids and session secret keys.
// Implemented by UUIDv7Generator (production) and testutil.SequentialIDs.
type IDGenerator interface {
	PeekID() string
	SecretKey() uint32
}

// UUIDv7Generator generates time-sortable UUIDv7 peek ids and random secret
// keys.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// PeekID creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) PeekID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SecretKey returns 32 random bits.
func (UUIDv7Generator) SecretKey() uint32 {
	return uuid.New().ID()
}
