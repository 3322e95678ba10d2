package voice

import "context"

// Action identifies one resolved voice command.
type Action string

const (
	ActionStartCamera     Action = "start_camera"
	ActionStopCamera      Action = "stop_camera"
	ActionToggleAnalysis  Action = "toggle_analysis"
	ActionCaptureImage    Action = "capture_image"
	ActionToggleMode      Action = "toggle_mode"
	ActionStopSpeaking    Action = "stop_speaking"
	ActionStartNavigation Action = "start_navigation"
	ActionUnknown         Action = "unknown"
)

// Command is one classified utterance. Parameters carries slot values such as
// the navigation destination; FulfillmentText is the model's suggested spoken
// confirmation, used as-is when present.
type Command struct {
	Action          Action            `json:"action"`
	Parameters      map[string]string `json:"parameters,omitempty"`
	FulfillmentText string            `json:"fulfillmentText,omitempty"`
}

// Destination returns the navigation destination slot, empty when absent.
func (c Command) Destination() string {
	return c.Parameters["destination"]
}

// Transcriber converts a recorded audio clip into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, format string) (string, error)
}

// Resolver classifies a transcript into a command.
type Resolver interface {
	Resolve(ctx context.Context, transcript string) (Command, error)
}
