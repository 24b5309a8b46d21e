package uid

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

var _ Generator = uuidv7Generator{}

type uuidv7Generator struct{}

// NewUUIDv7 creates a UUID v7-based Generator.
func NewUUIDv7() (Generator, error) {
	return uuidv7Generator{}, nil
}

func (uuidv7Generator) Generate(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("uid: failed to generate uuid v7: %w", err)
	}
	return id.String(), nil
}
