package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"visionbridge-server-go/internal/domain/capture"
	"visionbridge-server-go/internal/platform/config"
	"visionbridge-server-go/internal/platform/errors"
	"visionbridge-server-go/internal/platform/logging"
)

// Provider calls the remote multimodal reasoning service. It is a boundary
// adapter: serialization in, primary text field out, nothing else. Capture
// bytes are never logged or persisted beyond the call.
type Provider struct {
	cfg        config.VisionConfig
	logger     *logging.Logger
	client     *openai.Client
	httpClient *http.Client
}

// NewProvider creates an uninitialized vision provider.
func NewProvider(cfg config.VisionConfig, logger *logging.Logger) *Provider {
	if logger == nil {
		logger = logging.DefaultLogger
	}
	return &Provider{
		cfg:        cfg,
		logger:     logger,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Initialize builds the API client. The API key is required for the hosted
// service; the base URL may point at any OpenAI-compatible endpoint.
func (p *Provider) Initialize() error {
	if p.cfg.APIKey == "" {
		return errors.New(errors.KindConfig, "vision.init", "vision API key is required")
	}

	clientConfig := openai.DefaultConfig(p.cfg.APIKey)
	if p.cfg.BaseURL != "" {
		clientConfig.BaseURL = p.cfg.BaseURL
	}
	p.client = openai.NewClientWithConfig(clientConfig)

	p.logger.DebugTag("VISION", "provider initialised: model=%s", p.cfg.ModelName)
	return nil
}

// Cleanup releases provider resources.
func (p *Provider) Cleanup() error {
	return nil
}

// Analyze sends one capture unit plus its context and returns the bounded
// natural-language result.
func (p *Provider) Analyze(ctx context.Context, unit capture.Unit, actx Context) (Result, error) {
	prompt := BuildPrompt(actx)

	var (
		text string
		err  error
	)
	switch unit.Kind {
	case capture.KindClip:
		text, err = p.analyzeClip(ctx, unit, actx, prompt)
	default:
		text, err = p.analyzeStill(ctx, unit, prompt)
	}
	if err != nil {
		return Result{}, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, errors.New(errors.KindMalformed, "vision.analyze", "empty analysis text")
	}

	text = ClampClauses(text, actx.Mode.MaxClauses())
	return Result{Text: text, IsChange: !IsNoChange(text)}, nil
}

func (p *Provider) analyzeStill(ctx context.Context, unit capture.Unit, prompt string) (string, error) {
	if p.client == nil {
		return "", errors.New(errors.KindConfig, "vision.analyze", "provider not initialised")
	}

	format := unit.Format
	if format == "" {
		format = "jpeg"
	}
	dataURI := fmt.Sprintf("data:image/%s;base64,%s",
		format, base64.StdEncoding.EncodeToString(unit.Data))

	p.logger.DebugTag("VISION", "invoke image analysis: model=%s prompt_len=%d image_bytes=%d",
		p.cfg.ModelName, len(prompt), len(unit.Data))

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.cfg.ModelName,
		Temperature: float32(p.cfg.Temperature),
		TopP:        float32(p.cfg.TopP),
		MaxTokens:   p.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURI},
					},
				},
			},
		},
	})
	if err != nil {
		return "", classifyAPIError("vision.analyze_image", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New(errors.KindMalformed, "vision.analyze_image", "response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// clipRequest mirrors the video analysis backend's contract.
type clipRequest struct {
	VideoData        string  `json:"videoData"`
	Prompt           string  `json:"prompt"`
	PreviousAnalysis *string `json:"previousAnalysis"`
}

type clipResponse struct {
	Analysis string `json:"analysis"`
	Error    string `json:"error,omitempty"`
}

func (p *Provider) analyzeClip(ctx context.Context, unit capture.Unit, actx Context, prompt string) (string, error) {
	if p.cfg.VideoURL == "" {
		return "", errors.New(errors.KindConfig, "vision.analyze_clip", "video analysis endpoint not configured")
	}

	payload := clipRequest{
		VideoData:        base64.StdEncoding.EncodeToString(unit.Data),
		Prompt:           prompt,
		PreviousAnalysis: actx.Previous,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(errors.KindTransport, "vision.analyze_clip", "marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.VideoURL, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(errors.KindTransport, "vision.analyze_clip", "create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	p.logger.DebugTag("VISION", "invoke clip analysis: clip_bytes=%d duration=%s",
		len(unit.Data), unit.Duration)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(errors.KindTransport, "vision.analyze_clip", "video backend call failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", errors.New(errors.KindQuota, "vision.analyze_clip", "video backend rate limited")
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.New(errors.KindTransport, "vision.analyze_clip",
			fmt.Sprintf("video backend status %d", resp.StatusCode))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(errors.KindTransport, "vision.analyze_clip", "read response", err)
	}

	var parsed clipResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", errors.Wrap(errors.KindMalformed, "vision.analyze_clip", "undecodable response", err)
	}
	if parsed.Analysis == "" {
		return "", errors.New(errors.KindMalformed, "vision.analyze_clip", "response missing analysis field")
	}
	return parsed.Analysis, nil
}

// classifyAPIError maps upstream failures onto the error taxonomy: 429 is a
// quota error, anything else on the wire is transport.
func classifyAPIError(op string, err error) error {
	var apiErr *openai.APIError
	if goerrors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return errors.Wrap(errors.KindQuota, op, "upstream rate limited", err)
	}
	return errors.Wrap(errors.KindTransport, op, "upstream call failed", err)
}
