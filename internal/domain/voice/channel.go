package voice

import (
	"context"
	"sync/atomic"

	evbus "github.com/asaskevich/EventBus"

	"visionbridge-server-go/internal/domain/analysis"
	"visionbridge-server-go/internal/domain/eventbus"
	"visionbridge-server-go/internal/platform/errors"
	"visionbridge-server-go/internal/platform/logging"
)

// Spoken utterances for command handling.
const (
	utterNotUnderstood   = "すみません、聞き取れませんでした。もう一度お願いします。"
	utterNeedDestination = "目的地を教えてください。"
	utterCommandFailed   = "コマンドの処理中にエラーが発生しました。"
	utterSpeechStopped   = "読み上げを停止しました。"
	utterNavFailed       = "道案内の取得に失敗しました。"
)

// Controls is the voice channel's view of the analysis controller.
type Controls interface {
	StartCamera(ctx context.Context) error
	StopCamera()
	StartAnalysis() error
	StopAnalysis()
	Analyzing() bool
	CaptureOnce(ctx context.Context) error
	ToggleMode() analysis.Mode
}

// Speaker delivers spoken feedback for commands.
type Speaker interface {
	Enqueue(text string)
	CancelAll()
}

// Navigator produces spoken walking guidance for a destination.
type Navigator interface {
	Guide(ctx context.Context, destination string) (string, error)
}

// Channel runs the voice command cycle: transcribe a clip, resolve its
// intent, dispatch it. Cycles are single-flight; a clip arriving while one is
// processing is dropped, never queued.
type Channel struct {
	transcriber Transcriber
	resolver    Resolver
	controls    Controls
	speaker     Speaker
	navigator   Navigator
	logger      *logging.Logger
	bus         evbus.Bus
	sessionID   string

	busy atomic.Bool
}

// ChannelConfig wires the channel's collaborators. Navigator may be nil when
// directions are not configured.
type ChannelConfig struct {
	SessionID   string
	Transcriber Transcriber
	Resolver    Resolver
	Controls    Controls
	Speaker     Speaker
	Navigator   Navigator
	Logger      *logging.Logger
	Bus         evbus.Bus
}

// NewChannel creates a voice command channel.
func NewChannel(cfg ChannelConfig) *Channel {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.DefaultLogger
	}
	return &Channel{
		transcriber: cfg.Transcriber,
		resolver:    cfg.Resolver,
		controls:    cfg.Controls,
		speaker:     cfg.Speaker,
		navigator:   cfg.Navigator,
		logger:      logger,
		bus:         cfg.Bus,
		sessionID:   cfg.SessionID,
	}
}

// Listen processes one recorded clip end to end. Returns false when dropped
// because another cycle is in flight.
func (c *Channel) Listen(ctx context.Context, audio []byte, format string) bool {
	if !c.busy.CompareAndSwap(false, true) {
		c.logger.DebugTag("INTENT", "voice cycle in flight, clip dropped")
		return false
	}
	defer c.busy.Store(false)

	transcript, err := c.transcriber.Transcribe(ctx, audio, format)
	if err != nil {
		c.logger.ErrorTag("STT", "transcription failed: %v", err)
		c.speaker.Enqueue(utterNotUnderstood)
		return true
	}
	if transcript == "" {
		c.speaker.Enqueue(utterNotUnderstood)
		return true
	}

	cmd, err := c.resolver.Resolve(ctx, transcript)
	if err != nil {
		c.logger.ErrorTag("INTENT", "resolution failed: %v", err)
		c.speaker.Enqueue(utterCommandFailed)
		return true
	}

	c.logger.InfoTag("INTENT", "command: session=%s transcript=%q action=%s",
		c.sessionID, transcript, cmd.Action)
	if c.bus != nil {
		c.bus.Publish(eventbus.EventIntent, eventbus.IntentEventData{
			SessionID:  c.sessionID,
			Transcript: transcript,
			Intent:     string(cmd.Action),
		})
	}

	c.Dispatch(ctx, cmd)
	return true
}

// Dispatch executes one resolved command against the session's controls.
func (c *Channel) Dispatch(ctx context.Context, cmd Command) {
	switch cmd.Action {
	case ActionStartCamera:
		if err := c.controls.StartCamera(ctx); err != nil {
			c.logger.WarnTag("INTENT", "start camera failed: %v", err)
			return
		}
		c.confirm(cmd, "カメラを起動しました。")

	case ActionStopCamera:
		c.controls.StopCamera()
		c.confirm(cmd, "カメラを停止しました。")

	case ActionToggleAnalysis:
		if c.controls.Analyzing() {
			c.controls.StopAnalysis()
			c.confirm(cmd, "解析を停止しました。")
			return
		}
		if err := c.controls.StartAnalysis(); err != nil {
			c.logger.WarnTag("INTENT", "start analysis failed: %v", err)
			return
		}
		c.confirm(cmd, "解析を開始しました。")

	case ActionCaptureImage:
		if err := c.controls.CaptureOnce(ctx); err != nil {
			c.logger.WarnTag("INTENT", "capture failed: %v", err)
		}

	case ActionToggleMode:
		c.controls.ToggleMode()

	case ActionStopSpeaking:
		c.speaker.CancelAll()
		c.speaker.Enqueue(utterSpeechStopped)

	case ActionStartNavigation:
		c.navigate(ctx, cmd)

	default:
		c.speaker.Enqueue(utterNotUnderstood)
	}
}

func (c *Channel) navigate(ctx context.Context, cmd Command) {
	dest := cmd.Destination()
	if dest == "" {
		c.speaker.Enqueue(utterNeedDestination)
		return
	}
	if c.navigator == nil {
		c.speaker.Enqueue(utterNavFailed)
		c.logger.WarnTag("NAV", "navigation requested but not configured")
		return
	}

	guidance, err := c.navigator.Guide(ctx, dest)
	if err != nil {
		c.logger.ErrorTag("NAV", "guidance failed: kind=%s err=%v", errors.KindOf(err), err)
		c.speaker.Enqueue(utterNavFailed)
		return
	}
	c.speaker.Enqueue(guidance)
}

func (c *Channel) confirm(cmd Command, fallback string) {
	if cmd.FulfillmentText != "" {
		c.speaker.Enqueue(cmd.FulfillmentText)
		return
	}
	c.speaker.Enqueue(fallback)
}
