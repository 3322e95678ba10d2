package voice

import (
	"bytes"
	"context"
	"strings"

	"github.com/sashabaranov/go-openai"

	"visionbridge-server-go/internal/platform/config"
	"visionbridge-server-go/internal/platform/errors"
	"visionbridge-server-go/internal/platform/logging"
)

// WhisperTranscriber sends recorded clips to an OpenAI-compatible speech
// recognition endpoint.
type WhisperTranscriber struct {
	cfg    config.STTConfig
	logger *logging.Logger
	client *openai.Client
}

// NewWhisperTranscriber creates an uninitialized transcriber.
func NewWhisperTranscriber(cfg config.STTConfig, logger *logging.Logger) *WhisperTranscriber {
	if logger == nil {
		logger = logging.DefaultLogger
	}
	return &WhisperTranscriber{cfg: cfg, logger: logger}
}

// Initialize builds the API client.
func (t *WhisperTranscriber) Initialize() error {
	if t.cfg.APIKey == "" {
		return errors.New(errors.KindConfig, "stt.init", "STT API key is required")
	}

	clientConfig := openai.DefaultConfig(t.cfg.APIKey)
	if t.cfg.BaseURL != "" {
		clientConfig.BaseURL = t.cfg.BaseURL
	}
	t.client = openai.NewClientWithConfig(clientConfig)
	return nil
}

// Cleanup releases transcriber resources.
func (t *WhisperTranscriber) Cleanup() error {
	return nil
}

// Transcribe converts one audio clip to text. The format names the container
// the clip arrived in ("wav", "webm", "mp3"); the filename hint is how the
// endpoint detects it.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	if t.client == nil {
		return "", errors.New(errors.KindConfig, "stt.transcribe", "transcriber not initialised")
	}
	if len(audio) == 0 {
		return "", errors.New(errors.KindMalformed, "stt.transcribe", "empty audio clip")
	}
	if format == "" {
		format = "wav"
	}

	model := t.cfg.ModelName
	if model == "" {
		model = openai.Whisper1
	}

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    model,
		Reader:   bytes.NewReader(audio),
		FilePath: "clip." + format,
		Language: t.cfg.Language,
	})
	if err != nil {
		return "", classifyAPIError("stt.transcribe", err)
	}

	text := strings.TrimSpace(resp.Text)
	t.logger.DebugTag("STT", "transcribed %d bytes -> %q", len(audio), text)
	return text, nil
}
