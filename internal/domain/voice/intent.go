package voice

import (
	"context"
	goerrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/lithammer/dedent"
	"github.com/sashabaranov/go-openai"

	"visionbridge-server-go/internal/platform/config"
	"visionbridge-server-go/internal/platform/errors"
	"visionbridge-server-go/internal/platform/logging"
)

var intentPrompt = dedent.Dedent(`
	あなたは視覚障害者向け支援アプリの音声コマンド分類器です。
	ユーザーの発話を以下のいずれかのアクションに分類し、JSONのみで回答してください。

	アクション一覧:
	- start_camera: カメラを起動する
	- stop_camera: カメラを停止する
	- toggle_analysis: 解析の開始・停止を切り替える
	- capture_image: いま見えているものを一度だけ説明する
	- toggle_mode: 画像モードと動画モードを切り替える
	- stop_speaking: 読み上げを止める
	- start_navigation: 目的地への道案内を開始する（parameters.destinationに目的地）
	- unknown: 上記のどれにも当てはまらない

	回答形式:
	{"action": "...", "parameters": {"destination": "..."}, "fulfillmentText": "..."}
	parametersは不要なら省略。fulfillmentTextは短い日本語の応答文。

	発話: "%s"
`)

// LLMResolver classifies transcripts with a chat model constrained to a JSON
// contract.
type LLMResolver struct {
	cfg    config.IntentConfig
	logger *logging.Logger
	client *openai.Client
}

// NewLLMResolver creates an uninitialized resolver.
func NewLLMResolver(cfg config.IntentConfig, logger *logging.Logger) *LLMResolver {
	if logger == nil {
		logger = logging.DefaultLogger
	}
	return &LLMResolver{cfg: cfg, logger: logger}
}

// Initialize builds the API client.
func (r *LLMResolver) Initialize() error {
	if r.cfg.APIKey == "" {
		return errors.New(errors.KindConfig, "intent.init", "intent API key is required")
	}

	clientConfig := openai.DefaultConfig(r.cfg.APIKey)
	if r.cfg.BaseURL != "" {
		clientConfig.BaseURL = r.cfg.BaseURL
	}
	r.client = openai.NewClientWithConfig(clientConfig)
	return nil
}

// Cleanup releases resolver resources.
func (r *LLMResolver) Cleanup() error {
	return nil
}

// Resolve classifies one transcript. Unparseable or unrecognized model output
// degrades to ActionUnknown rather than failing the cycle.
func (r *LLMResolver) Resolve(ctx context.Context, transcript string) (Command, error) {
	if r.client == nil {
		return Command{}, errors.New(errors.KindConfig, "intent.resolve", "resolver not initialised")
	}
	if strings.TrimSpace(transcript) == "" {
		return Command{Action: ActionUnknown}, nil
	}

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.cfg.ModelName,
		Temperature: float32(r.cfg.Temperature),
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: strings.TrimSpace(fmt.Sprintf(intentPrompt, transcript)),
			},
		},
	})
	if err != nil {
		return Command{}, classifyAPIError("intent.resolve", err)
	}
	if len(resp.Choices) == 0 {
		return Command{}, errors.New(errors.KindMalformed, "intent.resolve", "response has no choices")
	}

	cmd := ParseCommand(resp.Choices[0].Message.Content)
	r.logger.DebugTag("INTENT", "resolved %q -> %s", transcript, cmd.Action)
	return cmd, nil
}

// ParseCommand extracts the command JSON from model output. Models often wrap
// JSON in code fences or prose, so parsing starts at the first brace.
func ParseCommand(raw string) Command {
	raw = strings.TrimSpace(raw)
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}

	var cmd Command
	if err := sonic.UnmarshalString(raw, &cmd); err != nil {
		return Command{Action: ActionUnknown}
	}
	if !knownAction(cmd.Action) {
		cmd.Action = ActionUnknown
	}
	return cmd
}

func knownAction(a Action) bool {
	switch a {
	case ActionStartCamera, ActionStopCamera, ActionToggleAnalysis,
		ActionCaptureImage, ActionToggleMode, ActionStopSpeaking,
		ActionStartNavigation, ActionUnknown:
		return true
	}
	return false
}

// classifyAPIError maps upstream failures onto the error taxonomy.
func classifyAPIError(op string, err error) error {
	var apiErr *openai.APIError
	if goerrors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return errors.Wrap(errors.KindQuota, op, "upstream rate limited", err)
	}
	return errors.Wrap(errors.KindTransport, op, "upstream call failed", err)
}
