package ws

// Binary payload tags. The first byte of every client binary message names
// what follows; server binary messages are always MP3 speech audio.
const (
	binFrame byte = 0x01 // still camera frame (jpeg/png/webp)
	binClip  byte = 0x02 // recorded video clip
	binVoice byte = 0x03 // recorded voice command audio
)

// Control message types accepted from the client.
const (
	ctrlStartCamera   = "start_camera"
	ctrlStopCamera    = "stop_camera"
	ctrlStartAnalysis = "start_analysis"
	ctrlStopAnalysis  = "stop_analysis"
	ctrlCapture       = "capture"
	ctrlToggleMode    = "toggle_mode"
	ctrlSetMode       = "set_mode"
	ctrlSetInterval   = "set_interval"
	ctrlStopSpeaking  = "stop_speaking"
	ctrlLocation      = "location"
	ctrlHistory       = "history"
	ctrlSaveSettings  = "save_settings"
)

// controlMessage is one JSON control frame from the client.
type controlMessage struct {
	Type       string  `json:"type"`
	Mode       string  `json:"mode,omitempty"`
	IntervalMS int     `json:"interval_ms,omitempty"`
	Format     string  `json:"format,omitempty"`
	Lat        float64 `json:"lat,omitempty"`
	Lng        float64 `json:"lng,omitempty"`
	Limit      int     `json:"limit,omitempty"`

	SpeechRate   float64 `json:"speech_rate,omitempty"`
	SpeechVolume float64 `json:"speech_volume,omitempty"`
}

// Event message types pushed to the client.
const (
	eventHello   = "hello"
	eventCamera  = "camera"
	eventLoop    = "loop"
	eventResult  = "result"
	eventError   = "error"
	eventMode    = "mode"
	eventIntent  = "intent"
	eventSpoken  = "spoken"
	eventHistory = "history"
)

// eventMessage is one JSON event frame to the client.
type eventMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}
