// Package uid generates identifiers for subscriptions and notifications.
package uid

import (
	"context"
	"fmt"
)

// Strategy defines which id generation algorithm to use.
type Strategy string

const (
	StrategySnowflake Strategy = "snowflake"
	StrategyUUIDv7    Strategy = "uuidv7"
)

// Options configures the generator.
type Options struct {
	// Strategy selects the generation algorithm.
	Strategy Strategy

	// NodeID identifies this process among others sharing a notification
	// channel (Snowflake only). Valid range: 0–1023.
	NodeID int64

	// Prefix is prepended as "<prefix>_" when set.
	Prefix string
}

// Generator is the interface consumers depend on for generating unique identifiers.
// Implementations must be safe for concurrent use.
type Generator interface {
	// Generate returns a new unique identifier as a string.
	Generate(ctx context.Context) (string, error)
}

// New creates a Generator based on the provided options.
// Returns an error if the strategy is unknown or configuration is invalid.
func New(opts Options) (Generator, error) {
	var (
		gen Generator
		err error
	)

	switch opts.Strategy {
	case StrategySnowflake:
		gen, err = NewSnowflake(opts.NodeID)
	case StrategyUUIDv7, "":
		gen, err = NewUUIDv7()
	default:
		return nil, fmt.Errorf("uid: unknown strategy %q", opts.Strategy)
	}
	if err != nil {
		return nil, err
	}

	if opts.Prefix == "" {
		return gen, nil
	}
	return &prefixed{prefix: opts.Prefix + "_", next: gen}, nil
}

type prefixed struct {
	prefix string
	next   Generator
}

func (p *prefixed) Generate(ctx context.Context) (string, error) {
	id, err := p.next.Generate(ctx)
	if err != nil {
		return "", err
	}
	return p.prefix + id, nil
}
