package capture

import (
	"context"
	"time"
)

// Kind distinguishes still frames from short recorded clips.
type Kind string

const (
	KindStill Kind = "still"
	KindClip  Kind = "clip"
)

// Unit is one captured payload handed to the analysis client. Units are
// transient: created fresh per cycle and discarded once the request completes.
type Unit struct {
	Kind     Kind
	Data     []byte
	Format   string
	Duration time.Duration
}

// Source produces capture units from an underlying device or feed. Acquire
// must not leave partial resources behind on failure; Release is idempotent.
type Source interface {
	Acquire(ctx context.Context) error
	Still(ctx context.Context) (Unit, error)
	Clip(ctx context.Context) (Unit, error)
	Release()
}
