package nav

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/lithammer/dedent"
	"github.com/sashabaranov/go-openai"

	"visionbridge-server-go/internal/platform/config"
	"visionbridge-server-go/internal/platform/errors"
	"visionbridge-server-go/internal/platform/logging"
)

var interpretPrompt = dedent.Dedent(`
	以下は徒歩経路のJSONデータです。視覚障害者が音声だけで理解できるよう、
	この経路を日本語で説明してください。

	条件:
	- 各ステップは50字以内の短い文にする
	- 「右に曲がる」「左に曲がる」「直進する」など具体的な動作で表現する
	- 距離はメートル単位で簡潔に伝える
	- 最初に所要時間と総距離を一文で伝える
	- HTMLタグは無視する

	経路データ:
	%s
`)

// Interpreter converts a machine route into spoken walking guidance.
type Interpreter struct {
	cfg    config.IntentConfig
	logger *logging.Logger
	client *openai.Client
}

// NewInterpreter creates an uninitialized interpreter. It shares the intent
// model configuration: both are small text-only LLM tasks.
func NewInterpreter(cfg config.IntentConfig, logger *logging.Logger) *Interpreter {
	if logger == nil {
		logger = logging.DefaultLogger
	}
	return &Interpreter{cfg: cfg, logger: logger}
}

// Initialize builds the API client.
func (i *Interpreter) Initialize() error {
	if i.cfg.APIKey == "" {
		return errors.New(errors.KindConfig, "nav.interpret.init", "interpreter API key is required")
	}

	clientConfig := openai.DefaultConfig(i.cfg.APIKey)
	if i.cfg.BaseURL != "" {
		clientConfig.BaseURL = i.cfg.BaseURL
	}
	i.client = openai.NewClientWithConfig(clientConfig)
	return nil
}

// Cleanup releases interpreter resources.
func (i *Interpreter) Cleanup() error {
	return nil
}

// Interpret renders a route as accessible Japanese guidance.
func (i *Interpreter) Interpret(ctx context.Context, route Route) (string, error) {
	if i.client == nil {
		return "", errors.New(errors.KindConfig, "nav.interpret", "interpreter not initialised")
	}

	routeJSON, err := sonic.MarshalString(route)
	if err != nil {
		return "", errors.Wrap(errors.KindMalformed, "nav.interpret", "marshal route", err)
	}

	resp, err := i.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       i.cfg.ModelName,
		Temperature: float32(i.cfg.Temperature),
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: strings.TrimSpace(fmt.Sprintf(interpretPrompt, routeJSON)),
			},
		},
	})
	if err != nil {
		return "", errors.Wrap(errors.KindTransport, "nav.interpret", "interpretation call failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New(errors.KindMalformed, "nav.interpret", "response has no choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New(errors.KindMalformed, "nav.interpret", "empty interpretation")
	}
	return text, nil
}
