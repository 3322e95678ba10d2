package analysis

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	evbus "github.com/asaskevich/EventBus"

	"visionbridge-server-go/internal/domain/capture"
	"visionbridge-server-go/internal/domain/eventbus"
	"visionbridge-server-go/internal/platform/config"
	"visionbridge-server-go/internal/platform/errors"
	"visionbridge-server-go/internal/platform/logging"
)

// Speaker is the controller's view of the speech output channel.
type Speaker interface {
	Enqueue(text string)
	CancelAll()
}

// Spoken error and confirmation utterances.
const (
	utterCameraFailed   = "カメラにアクセスできません。"
	utterAnalysisFailed = "画像の分析中にエラーが発生しました。"
	utterQuotaExceeded  = "APIの利用制限に達しました。しばらくお待ちください。"
	utterNeedCamera     = "カメラが起動していません。先にカメラを開始してください。"
	utterModeImage      = "画像解析モードに切り替えました。"
	utterModeVideo      = "動画解析モードに切り替えました。"
	utterModeLocked     = "解析を停止してからモードを切り替えてください。"
)

// Controller runs the periodic scene-analysis loop for one session. All state
// transitions are serialized through its mutex; the in-flight analysis itself
// runs on the loop goroutine guarded by an atomic single-flight flag.
type Controller struct {
	source  capture.Source
	client  Client
	speaker Speaker
	logger  *logging.Logger
	bus     evbus.Bus
	cfg     config.LoopConfig

	sessionID string

	busy       atomic.Bool
	generation atomic.Uint64

	mu        sync.Mutex
	cameraOn  bool
	analyzing bool
	mode      Mode
	previous  *string
	interval  time.Duration
	cancel    context.CancelFunc
	loopDone  chan struct{}
}

// ControllerConfig wires the controller's collaborators.
type ControllerConfig struct {
	SessionID string
	Source    capture.Source
	Client    Client
	Speaker   Speaker
	Logger    *logging.Logger
	Bus       evbus.Bus
	Loop      config.LoopConfig
}

// NewController creates an idle controller in normal image mode.
func NewController(cfg ControllerConfig) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.DefaultLogger
	}
	c := &Controller{
		source:    cfg.Source,
		client:    cfg.Client,
		speaker:   cfg.Speaker,
		logger:    logger,
		bus:       cfg.Bus,
		cfg:       cfg.Loop,
		sessionID: cfg.SessionID,
		mode:      ModeNormal,
	}
	c.interval = c.clampInterval(time.Duration(cfg.Loop.IntervalMS) * time.Millisecond)
	return c
}

func (c *Controller) clampInterval(d time.Duration) time.Duration {
	min := time.Duration(c.cfg.MinIntervalMS) * time.Millisecond
	max := time.Duration(c.cfg.MaxIntervalMS) * time.Millisecond
	if min <= 0 {
		min = 3 * time.Second
	}
	if max <= 0 {
		max = 10 * time.Second
	}
	if d <= 0 {
		d = 5 * time.Second
	}
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}

// CameraOn reports whether the capture device is held.
func (c *Controller) CameraOn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cameraOn
}

// Analyzing reports whether the periodic loop is running.
func (c *Controller) Analyzing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.analyzing
}

// Mode returns the current analysis mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Baseline returns the current previous-analysis text, nil before the first
// accepted result.
func (c *Controller) Baseline() *string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.previous
}

// SetInterval updates the tick interval, clamped to the configured bounds.
// Takes effect on the next StartAnalysis.
func (c *Controller) SetInterval(ms int) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interval = c.clampInterval(time.Duration(ms) * time.Millisecond)
	return c.interval
}

// StartCamera acquires the capture device. Acquiring twice is an error and
// leaves the existing session untouched.
func (c *Controller) StartCamera(ctx context.Context) error {
	c.mu.Lock()
	if c.cameraOn {
		c.mu.Unlock()
		return errors.New(errors.KindDevice, "loop.start_camera", "camera already active")
	}
	c.mu.Unlock()

	if err := c.source.Acquire(ctx); err != nil {
		c.speak(utterCameraFailed)
		c.logger.ErrorTag("LOOP", "camera acquire failed: %v", err)
		return errors.Wrap(errors.KindDevice, "loop.start_camera", "acquire capture source", err)
	}

	c.mu.Lock()
	c.cameraOn = true
	c.mu.Unlock()

	c.logger.InfoTag("LOOP", "camera started: session=%s", c.sessionID)
	c.publish(eventbus.EventCameraOn, c.sessionID)
	return nil
}

// StopCamera stops any running analysis, then releases the device. Idempotent.
func (c *Controller) StopCamera() {
	c.StopAnalysis()

	c.mu.Lock()
	wasOn := c.cameraOn
	c.cameraOn = false
	c.mu.Unlock()

	if !wasOn {
		return
	}

	c.generation.Add(1)
	c.source.Release()
	c.logger.InfoTag("LOOP", "camera stopped: session=%s", c.sessionID)
	c.publish(eventbus.EventCameraOff, c.sessionID)
}

// StartAnalysis begins the periodic loop. The baseline resets so the first
// cycle uses the first-analysis template. Requires an active camera; starting
// while already running is a no-op.
func (c *Controller) StartAnalysis() error {
	c.mu.Lock()
	if !c.cameraOn {
		c.mu.Unlock()
		c.speak(utterNeedCamera)
		return errors.New(errors.KindDevice, "loop.start_analysis", "camera not active")
	}
	if c.analyzing {
		c.mu.Unlock()
		return nil
	}

	c.analyzing = true
	c.previous = nil
	interval := c.interval
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	done := make(chan struct{})
	c.loopDone = done
	c.mu.Unlock()

	c.generation.Add(1)
	c.logger.InfoTag("LOOP", "analysis started: session=%s interval=%s mode=%s",
		c.sessionID, interval, c.Mode())
	c.publish(eventbus.EventLoopStarted, c.sessionID)

	go c.run(ctx, interval, done)
	return nil
}

// StopAnalysis halts the loop. The generation bump makes any in-flight result
// stale so it is neither spoken nor kept as baseline. Idempotent.
func (c *Controller) StopAnalysis() {
	c.mu.Lock()
	if !c.analyzing {
		c.mu.Unlock()
		return
	}
	c.analyzing = false
	cancel := c.cancel
	done := c.loopDone
	c.cancel = nil
	c.loopDone = nil
	c.mu.Unlock()

	c.generation.Add(1)
	cancel()
	<-done

	c.logger.InfoTag("LOOP", "analysis stopped: session=%s", c.sessionID)
	c.publish(eventbus.EventLoopStopped, c.sessionID)
}

// CaptureOnce runs a single on-demand analysis cycle outside the periodic
// loop. Dropped silently when a cycle is already in flight.
func (c *Controller) CaptureOnce(ctx context.Context) error {
	c.mu.Lock()
	cameraOn := c.cameraOn
	c.mu.Unlock()
	if !cameraOn {
		c.speak(utterNeedCamera)
		return errors.New(errors.KindDevice, "loop.capture_once", "camera not active")
	}

	c.cycle(ctx)
	return nil
}

// ToggleMode flips between image and video analysis. Mode changes are only
// permitted while the loop is stopped; a mid-run request is rejected with
// spoken guidance and leaves everything untouched. On success the baseline
// resets and the generation bumps so results from the previous mode never
// leak through.
func (c *Controller) ToggleMode() Mode {
	c.mu.Lock()
	if c.analyzing {
		mode := c.mode
		c.mu.Unlock()
		c.speak(utterModeLocked)
		c.logger.WarnTag("LOOP", "mode change rejected while analyzing: session=%s", c.sessionID)
		return mode
	}
	if c.mode == ModeVideo {
		c.mode = ModeNormal
	} else {
		c.mode = ModeVideo
	}
	mode := c.mode
	c.previous = nil
	c.mu.Unlock()

	c.generation.Add(1)

	if mode == ModeVideo {
		c.speak(utterModeVideo)
	} else {
		c.speak(utterModeImage)
	}
	c.logger.InfoTag("LOOP", "mode changed: session=%s mode=%s", c.sessionID, mode)
	c.publish(eventbus.EventModeChanged, string(mode))
	return mode
}

// SetMode selects an explicit analysis mode, resetting the baseline. Like
// ToggleMode it is rejected while the loop is running.
func (c *Controller) SetMode(mode Mode) {
	c.mu.Lock()
	if c.mode == mode {
		c.mu.Unlock()
		return
	}
	if c.analyzing {
		c.mu.Unlock()
		c.speak(utterModeLocked)
		c.logger.WarnTag("LOOP", "mode change rejected while analyzing: session=%s", c.sessionID)
		return
	}
	c.mode = mode
	c.previous = nil
	c.mu.Unlock()

	c.generation.Add(1)
	c.logger.InfoTag("LOOP", "mode changed: session=%s mode=%s", c.sessionID, mode)
	c.publish(eventbus.EventModeChanged, string(mode))
}

// Close tears the controller down.
func (c *Controller) Close() {
	c.StopCamera()
}

func (c *Controller) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cycle(ctx)
		}
	}
}

// cycle runs one capture-analyze-accept pass. The busy flag makes overlapping
// triggers no-ops: a slow upstream call never queues work behind itself.
func (c *Controller) cycle(ctx context.Context) {
	if !c.busy.CompareAndSwap(false, true) {
		c.logger.DebugTag("LOOP", "analysis in flight, trigger dropped")
		return
	}
	defer c.busy.Store(false)

	gen := c.generation.Load()

	c.mu.Lock()
	actx := Context{Mode: c.mode, Previous: c.previous, FirstCycle: c.previous == nil}
	c.mu.Unlock()

	var (
		unit capture.Unit
		err  error
	)
	if actx.Mode == ModeVideo {
		unit, err = c.source.Clip(ctx)
	} else {
		unit, err = c.source.Still(ctx)
	}
	if err != nil {
		c.fail(ctx, gen, errors.Wrap(errors.KindDevice, "loop.cycle", "capture failed", err))
		return
	}

	result, err := c.analyzeWithRetry(ctx, unit, actx, gen)
	if err != nil {
		c.fail(ctx, gen, err)
		return
	}

	c.accept(gen, result, actx.FirstCycle)
}

// analyzeWithRetry performs the upstream call with a single bounded retry on
// quota exhaustion. Any further quota failure degrades to normal error
// handling rather than retrying again.
func (c *Controller) analyzeWithRetry(ctx context.Context, unit capture.Unit, actx Context, gen uint64) (Result, error) {
	result, err := c.client.Analyze(ctx, unit, actx)
	if err == nil || !errors.IsKind(err, errors.KindQuota) {
		return result, err
	}

	delay := time.Duration(c.cfg.QuotaRetryDelayMS) * time.Millisecond
	if delay <= 0 {
		delay = 30 * time.Second
	}
	c.logger.WarnTag("LOOP", "quota exceeded, retrying once in %s", delay)
	c.speak(utterQuotaExceeded)

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-time.After(delay):
	}
	if c.generation.Load() != gen {
		return Result{}, context.Canceled
	}

	return c.client.Analyze(ctx, unit, actx)
}

// accept applies one analysis outcome. Results from a superseded generation
// are discarded whole: not spoken, and the baseline stays untouched. Accepted
// results always become the next baseline; speech happens only on the first
// cycle or on change.
func (c *Controller) accept(gen uint64, result Result, first bool) {
	if c.generation.Load() != gen {
		c.logger.DebugTag("LOOP", "stale result discarded: gen=%d current=%d",
			gen, c.generation.Load())
		return
	}

	c.mu.Lock()
	text := result.Text
	c.previous = &text
	c.mu.Unlock()

	spoken := first || result.IsChange
	if spoken {
		c.speak(result.Text)
	} else {
		c.logger.DebugTag("LOOP", "no change, speech suppressed")
	}

	if c.bus != nil {
		c.bus.Publish(eventbus.EventLoopResult, eventbus.ResultEventData{
			SessionID:  c.sessionID,
			Text:       result.Text,
			IsChange:   result.IsChange,
			FirstCycle: first,
			Spoken:     spoken,
			Generation: gen,
		})
	}
}

// fail reports one failed cycle. Errors from a superseded generation or a
// cancelled loop are logged only; live errors are always spoken so the user
// is never left guessing why output stopped. A quota failure only reaches
// here after the retry, where it degrades to the generic failure message;
// the quota notice itself is spoken when the retry wait begins.
func (c *Controller) fail(ctx context.Context, gen uint64, err error) {
	if err == nil {
		return
	}
	if ctx.Err() != nil || c.generation.Load() != gen {
		c.logger.DebugTag("LOOP", "stale cycle error dropped: %v", err)
		return
	}

	kind := errors.KindOf(err)
	c.logger.ErrorTag("LOOP", "analysis cycle failed: kind=%s err=%v", kind, err)

	switch kind {
	case errors.KindDevice:
		c.speak(utterCameraFailed)
	default:
		c.speak(utterAnalysisFailed)
	}

	if c.bus != nil {
		c.bus.Publish(eventbus.EventLoopError, eventbus.ErrorEventData{
			SessionID: c.sessionID,
			Kind:      string(kind),
			Message:   err.Error(),
		})
	}
}

func (c *Controller) speak(text string) {
	if c.speaker != nil {
		c.speaker.Enqueue(text)
	}
}

func (c *Controller) publish(topic string, args ...interface{}) {
	if c.bus != nil {
		c.bus.Publish(topic, args...)
	}
}
