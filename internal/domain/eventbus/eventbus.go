package eventbus

import (
	evbus "github.com/asaskevich/EventBus"
)

// New creates a bus instance. Buses are created per session and passed to
// collaborators explicitly rather than held as process-wide singletons.
func New() evbus.Bus {
	return evbus.New()
}

const (
	EventLoopStarted  = "loop:started"
	EventLoopStopped  = "loop:stopped"
	EventLoopResult   = "loop:result"
	EventLoopError    = "loop:error"
	EventCameraOn     = "camera:on"
	EventCameraOff    = "camera:off"
	EventModeChanged  = "mode:changed"
	EventSpeechSpoken = "speech:spoken"
	EventIntent       = "voice:intent"
)

// ResultEventData describes one completed analysis cycle.
type ResultEventData struct {
	SessionID  string `json:"session_id"`
	Text       string `json:"text"`
	IsChange   bool   `json:"is_change"`
	FirstCycle bool   `json:"first_cycle"`
	Spoken     bool   `json:"spoken"`
	Generation uint64 `json:"generation"`
}

// ErrorEventData describes a failure inside an analysis or voice cycle.
type ErrorEventData struct {
	SessionID string `json:"session_id"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

// IntentEventData describes one resolved voice command.
type IntentEventData struct {
	SessionID  string `json:"session_id"`
	Transcript string `json:"transcript"`
	Intent     string `json:"intent"`
}
