// Package uuid generates idempotency keys and run identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator implements migrate.IDGenerator.
type Generator struct{}

// New creates a Generator.
func New() *Generator {
	return &Generator{}
}

// NewV4ID returns a random UUID string, used as the per-record
// clientRequestId so retried saves stay idempotent.
func (Generator) NewV4ID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid4: %w", err)
	}
	return id.String(), nil
}

// NewRunID returns a time-ordered UUIDv7 so runs sort by start.
func (Generator) NewRunID() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate uuid7: %w", err)
	}
	return id, nil
}
