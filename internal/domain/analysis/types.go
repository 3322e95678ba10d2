package analysis

import (
	"context"

	"visionbridge-server-go/internal/domain/capture"
)

// Mode selects the prompt template and output-length constraints.
type Mode string

const (
	ModeNormal   Mode = "normal"
	ModeDetailed Mode = "detailed"
	ModeVideo    Mode = "video"
)

// MaxClauses returns how many short clauses the model may emit in this mode.
func (m Mode) MaxClauses() int {
	switch m {
	case ModeDetailed, ModeVideo:
		return 4
	default:
		return 3
	}
}

// ClauseBudget returns the per-clause character budget for this mode.
func (m Mode) ClauseBudget() int {
	switch m {
	case ModeDetailed, ModeVideo:
		return 20
	default:
		return 15
	}
}

// Context carries the per-cycle analysis state. Previous holds the verbatim
// text of the last accepted analysis; nil signals the first cycle and is
// authoritative over the FirstCycle flag.
type Context struct {
	Mode       Mode
	Previous   *string
	FirstCycle bool
}

// Result is one bounded analysis outcome. IsChange derives from the sentinel
// comparison; Text becomes the next baseline whether or not it was spoken.
type Result struct {
	Text     string
	IsChange bool
}

// Client sends a capture plus its context to the remote reasoning service.
// Implementations fail with KindTransport, KindQuota or KindMalformed errors.
type Client interface {
	Analyze(ctx context.Context, unit capture.Unit, actx Context) (Result, error)
}
