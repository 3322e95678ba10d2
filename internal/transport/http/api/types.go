package api

import "encoding/json"

type analyzeImageRequest struct {
	ImageData        string  `json:"imageData" binding:"required"`
	Mode             string  `json:"mode"`
	PreviousAnalysis *string `json:"previousAnalysis"`
}

type analyzeVideoRequest struct {
	VideoData        string  `json:"videoData" binding:"required"`
	PreviousAnalysis *string `json:"previousAnalysis"`
}

type analyzeResponse struct {
	Analysis string `json:"analysis"`
}

type ttsRequest struct {
	Text   string   `json:"text" binding:"required"`
	Rate   *float64 `json:"rate"`
	Volume *float64 `json:"volume"`
}

type sttRequest struct {
	Audio  string `json:"audio" binding:"required"`
	Format string `json:"format"`
}

type sttResponse struct {
	Transcription string `json:"transcription"`
}

type processCommandRequest struct {
	Command string `json:"command" binding:"required"`
}

type interpretDirectionsRequest struct {
	DirectionsData json.RawMessage `json:"directionsData" binding:"required"`
}

type interpretDirectionsResponse struct {
	Interpretation string `json:"interpretation"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
