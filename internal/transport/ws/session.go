package ws

import (
	"context"
	"sync/atomic"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"visionbridge-server-go/internal/domain/analysis"
	"visionbridge-server-go/internal/domain/capture"
	"visionbridge-server-go/internal/domain/eventbus"
	"visionbridge-server-go/internal/domain/nav"
	"visionbridge-server-go/internal/domain/speech"
	"visionbridge-server-go/internal/domain/voice"
	"visionbridge-server-go/internal/platform/config"
	"visionbridge-server-go/internal/platform/logging"
	"visionbridge-server-go/internal/platform/storage"
)

// SessionDeps carries the shared process-level collaborators a session wires
// its own per-connection state around.
type SessionDeps struct {
	Config      *config.Config
	Logger      *logging.Logger
	Vision      analysis.Client
	Synthesizer speech.Synthesizer
	Transcriber voice.Transcriber
	Resolver    voice.Resolver
	NavClient   *nav.Client
	Interpreter *nav.Interpreter
	Store       *storage.Store
}

// Session owns one connected client: its frame buffer, analysis controller,
// speech channel and voice channel all live and die with the connection.
type Session struct {
	id     string
	userID string
	conn   *Connection
	logger *logging.Logger
	bus    evbus.Bus

	frames     *capture.FrameBuffer
	controller *analysis.Controller
	speechCh   *speech.Channel
	voiceCh    *voice.Channel
	navigator  *nav.Service
	store      *storage.Store

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

// NewSession wires a full session around an upgraded connection. userID keys
// the persisted settings; empty falls back to a shared default profile.
func NewSession(conn *Connection, userID string, deps SessionDeps) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = logging.DefaultLogger
	}
	if userID == "" {
		userID = "default"
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		logger: logger,
		bus:    eventbus.New(),
		store:  deps.Store,
		ctx:    ctx,
		cancel: cancel,
	}

	s.frames = capture.NewFrameBuffer(deps.Config.Capture, logger)

	s.speechCh = speech.NewChannel(speech.Config{
		Synthesizer: deps.Synthesizer,
		Player:      &wsPlayer{conn: conn},
		Logger:      logger,
		Bus:         s.bus,
	})

	s.controller = analysis.NewController(analysis.ControllerConfig{
		SessionID: s.id,
		Source:    s.frames,
		Client:    deps.Vision,
		Speaker:   s.speechCh,
		Logger:    logger,
		Bus:       s.bus,
		Loop:      deps.Config.Loop,
	})

	s.navigator = nav.NewService(deps.NavClient, deps.Interpreter, logger)

	s.voiceCh = voice.NewChannel(voice.ChannelConfig{
		SessionID:   s.id,
		Transcriber: deps.Transcriber,
		Resolver:    deps.Resolver,
		Controls:    s.controller,
		Speaker:     s.speechCh,
		Navigator:   s.navigator,
		Logger:      logger,
		Bus:         s.bus,
	})

	s.subscribeEvents()
	return s
}

// ID exposes the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Run applies stored settings, then consumes client messages until the
// connection drops.
func (s *Session) Run() {
	s.speechCh.Start()
	s.applyStoredSettings()
	s.pushEvent(eventHello, map[string]string{"session_id": s.id})

	for {
		messageType, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.logger.InfoTag("WS", "session %s read ended: %v", s.id, err)
			return
		}

		switch messageType {
		case websocket.TextMessage:
			s.handleControl(payload)
		case websocket.BinaryMessage:
			s.handleBinary(payload)
		}
	}
}

// Close tears the session down: analysis stops, the device releases and any
// queued speech is cancelled. Idempotent.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	s.cancel()
	s.controller.Close()
	s.speechCh.Close()
	s.conn.Close()
	s.logger.InfoTag("WS", "session %s closed", s.id)
}

func (s *Session) handleControl(payload []byte) {
	var msg controlMessage
	if err := sonic.Unmarshal(payload, &msg); err != nil {
		s.logger.WarnTag("WS", "session %s undecodable control message", s.id)
		return
	}

	switch msg.Type {
	case ctrlStartCamera:
		if err := s.controller.StartCamera(s.ctx); err != nil {
			s.logger.WarnTag("WS", "start camera: %v", err)
		}
	case ctrlStopCamera:
		s.controller.StopCamera()
	case ctrlStartAnalysis:
		if err := s.controller.StartAnalysis(); err != nil {
			s.logger.WarnTag("WS", "start analysis: %v", err)
		}
	case ctrlStopAnalysis:
		s.controller.StopAnalysis()
	case ctrlCapture:
		go s.controller.CaptureOnce(s.ctx)
	case ctrlToggleMode:
		s.controller.ToggleMode()
	case ctrlSetMode:
		s.controller.SetMode(analysis.Mode(msg.Mode))
	case ctrlSetInterval:
		applied := s.controller.SetInterval(msg.IntervalMS)
		s.logger.InfoTag("WS", "session %s interval set to %s", s.id, applied)
	case ctrlStopSpeaking:
		s.speechCh.CancelAll()
	case ctrlLocation:
		s.navigator.UpdateLocation(msg.Lat, msg.Lng)
	case ctrlHistory:
		s.pushHistory(msg.Limit)
	case ctrlSaveSettings:
		s.saveSettings(msg)
	default:
		s.logger.WarnTag("WS", "session %s unknown control type %q", s.id, msg.Type)
	}
}

// handleBinary routes a tagged binary payload. The tag byte is stripped
// before the data reaches the domain layer.
func (s *Session) handleBinary(payload []byte) {
	if len(payload) < 2 {
		return
	}
	tag, data := payload[0], payload[1:]

	switch tag {
	case binFrame:
		if err := s.frames.PutFrame(data, ""); err != nil {
			s.logger.WarnTag("WS", "session %s frame rejected: %v", s.id, err)
		}
	case binClip:
		if err := s.frames.PutClip(data, 0); err != nil {
			s.logger.WarnTag("WS", "session %s clip rejected: %v", s.id, err)
		}
	case binVoice:
		// STT plus intent resolution is slow; keep the read loop responsive.
		go s.voiceCh.Listen(s.ctx, data, "webm")
	default:
		s.logger.WarnTag("WS", "session %s unknown binary tag 0x%02x", s.id, tag)
	}
}

func (s *Session) subscribeEvents() {
	s.bus.Subscribe(eventbus.EventLoopResult, func(data eventbus.ResultEventData) {
		s.pushEvent(eventResult, data)
		s.recordResult(data)
	})
	s.bus.Subscribe(eventbus.EventLoopError, func(data eventbus.ErrorEventData) {
		s.pushEvent(eventError, data)
	})
	s.bus.Subscribe(eventbus.EventLoopStarted, func(sessionID string) {
		s.pushEvent(eventLoop, map[string]any{"running": true})
	})
	s.bus.Subscribe(eventbus.EventLoopStopped, func(sessionID string) {
		s.pushEvent(eventLoop, map[string]any{"running": false})
	})
	s.bus.Subscribe(eventbus.EventCameraOn, func(sessionID string) {
		s.pushEvent(eventCamera, map[string]any{"active": true})
	})
	s.bus.Subscribe(eventbus.EventCameraOff, func(sessionID string) {
		s.pushEvent(eventCamera, map[string]any{"active": false})
	})
	s.bus.Subscribe(eventbus.EventModeChanged, func(mode string) {
		s.pushEvent(eventMode, map[string]string{"mode": mode})
	})
	s.bus.Subscribe(eventbus.EventIntent, func(data eventbus.IntentEventData) {
		s.pushEvent(eventIntent, data)
	})
	s.bus.Subscribe(eventbus.EventSpeechSpoken, func(text string) {
		s.pushEvent(eventSpoken, map[string]string{"text": text})
	})
}

func (s *Session) pushEvent(eventType string, data any) {
	if s.closed.Load() {
		return
	}
	payload, err := sonic.Marshal(eventMessage{Type: eventType, Data: data})
	if err != nil {
		s.logger.ErrorTag("WS", "session %s marshal event %s: %v", s.id, eventType, err)
		return
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		s.logger.DebugTag("WS", "session %s push %s failed: %v", s.id, eventType, err)
	}
}

func (s *Session) recordResult(data eventbus.ResultEventData) {
	if s.store == nil {
		return
	}
	err := s.store.RecordAnalysis(storage.AnalysisRecord{
		SessionID: s.id,
		Mode:      string(s.controller.Mode()),
		Text:      data.Text,
		IsChange:  data.IsChange,
		Spoken:    data.Spoken,
	})
	if err != nil {
		s.logger.WarnTag("WS", "session %s history write failed: %v", s.id, err)
	}
}

func (s *Session) pushHistory(limit int) {
	if s.store == nil {
		s.pushEvent(eventHistory, []storage.AnalysisRecord{})
		return
	}
	records, err := s.store.History(s.id, limit)
	if err != nil {
		s.logger.WarnTag("WS", "session %s history read failed: %v", s.id, err)
		return
	}
	s.pushEvent(eventHistory, records)
}

func (s *Session) applyStoredSettings() {
	if s.store == nil {
		return
	}
	settings, err := s.store.Settings(s.userID)
	if err != nil {
		s.logger.WarnTag("WS", "session %s settings load failed: %v", s.id, err)
		return
	}

	s.controller.SetInterval(settings.AnalysisIntervalMS)
	if mode := analysis.Mode(settings.AnalysisMode); mode != "" {
		s.controller.SetMode(mode)
	}
	s.logger.InfoTag("WS", "session %s settings applied: user=%s interval=%dms mode=%s",
		s.id, s.userID, settings.AnalysisIntervalMS, settings.AnalysisMode)
}

func (s *Session) saveSettings(msg controlMessage) {
	if s.store == nil {
		return
	}
	settings, err := s.store.Settings(s.userID)
	if err != nil {
		s.logger.WarnTag("WS", "session %s settings load failed: %v", s.id, err)
		return
	}

	if msg.SpeechRate > 0 {
		settings.SpeechRate = msg.SpeechRate
	}
	if msg.SpeechVolume > 0 {
		settings.SpeechVolume = msg.SpeechVolume
	}
	if msg.IntervalMS > 0 {
		settings.AnalysisIntervalMS = msg.IntervalMS
		s.controller.SetInterval(msg.IntervalMS)
	}
	if msg.Mode != "" {
		settings.AnalysisMode = msg.Mode
		s.controller.SetMode(analysis.Mode(msg.Mode))
	}

	if err := s.store.SaveSettings(settings); err != nil {
		s.logger.WarnTag("WS", "session %s settings save failed: %v", s.id, err)
	}
}

// wsPlayer delivers MP3 utterances over the connection. It paces delivery by
// decoded duration so CancelAll can cut an utterance off mid-play.
type wsPlayer struct {
	conn *Connection
}

func (p *wsPlayer) Play(ctx context.Context, audio []byte) error {
	if err := p.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return err
	}

	duration, err := speech.MP3Duration(audio)
	if err != nil {
		return nil
	}
	select {
	case <-time.After(duration):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
