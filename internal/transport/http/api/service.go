package api

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"visionbridge-server-go/internal/domain/analysis"
	"visionbridge-server-go/internal/domain/capture"
	"visionbridge-server-go/internal/domain/nav"
	"visionbridge-server-go/internal/domain/speech"
	"visionbridge-server-go/internal/domain/voice"
	"visionbridge-server-go/internal/platform/errors"
	"visionbridge-server-go/internal/platform/logging"
)

// Service exposes the stateless analysis, speech and command endpoints. Each
// request is self-contained: session state stays on the websocket side.
type Service struct {
	logger      *logging.Logger
	vision      analysis.Client
	synth       speech.Synthesizer
	transcriber voice.Transcriber
	resolver    voice.Resolver
	interpreter *nav.Interpreter
}

// Deps wires the service's collaborators. Nil members disable the matching
// endpoints with a 503.
type Deps struct {
	Logger      *logging.Logger
	Vision      analysis.Client
	Synthesizer speech.Synthesizer
	Transcriber voice.Transcriber
	Resolver    voice.Resolver
	Interpreter *nav.Interpreter
}

// NewService creates the REST service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = logging.DefaultLogger
	}
	return &Service{
		logger:      logger,
		vision:      deps.Vision,
		synth:       deps.Synthesizer,
		transcriber: deps.Transcriber,
		resolver:    deps.Resolver,
		interpreter: deps.Interpreter,
	}
}

// Register mounts the POST-only endpoints on the engine root. Other methods
// on these paths get a 405 from the router.
func (s *Service) Register(ctx context.Context, engine *gin.Engine) error {
	engine.POST("/analyze-image", s.handleAnalyzeImage)
	engine.POST("/analyze-video", s.handleAnalyzeVideo)
	engine.POST("/tts", s.handleTTS)
	engine.POST("/stt", s.handleSTT)
	engine.POST("/process-command", s.handleProcessCommand)
	engine.POST("/interpret-directions", s.handleInterpretDirections)

	s.logger.InfoTag("HTTP", "analysis API routes registered")
	return nil
}

func (s *Service) handleAnalyzeImage(c *gin.Context) {
	var req analyzeImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	data, format, err := decodeImageData(req.ImageData)
	if err != nil {
		badRequest(c, "undecodable image data", err)
		return
	}

	mode := analysis.ModeNormal
	if req.Mode == string(analysis.ModeDetailed) {
		mode = analysis.ModeDetailed
	}

	result, err := s.vision.Analyze(c.Request.Context(),
		capture.Unit{Kind: capture.KindStill, Data: data, Format: format},
		analysis.Context{Mode: mode, Previous: req.PreviousAnalysis, FirstCycle: req.PreviousAnalysis == nil},
	)
	if err != nil {
		respondDomainError(c, s.logger, "image analysis failed", err)
		return
	}
	c.JSON(http.StatusOK, analyzeResponse{Analysis: result.Text})
}

func (s *Service) handleAnalyzeVideo(c *gin.Context) {
	var req analyzeVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	data, err := base64.StdEncoding.DecodeString(stripDataURI(req.VideoData))
	if err != nil {
		badRequest(c, "undecodable video data", err)
		return
	}

	result, err := s.vision.Analyze(c.Request.Context(),
		capture.Unit{Kind: capture.KindClip, Data: data, Format: "webm"},
		analysis.Context{Mode: analysis.ModeVideo, Previous: req.PreviousAnalysis, FirstCycle: req.PreviousAnalysis == nil},
	)
	if err != nil {
		respondDomainError(c, s.logger, "video analysis failed", err)
		return
	}
	c.JSON(http.StatusOK, analyzeResponse{Analysis: result.Text})
}

func (s *Service) handleTTS(c *gin.Context) {
	var req ttsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	audio, err := s.synth.Synthesize(c.Request.Context(), req.Text)
	if err != nil {
		respondDomainError(c, s.logger, "speech synthesis failed", err)
		return
	}
	c.Data(http.StatusOK, "audio/mpeg", audio)
}

func (s *Service) handleSTT(c *gin.Context) {
	var req sttRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	audio, err := base64.StdEncoding.DecodeString(stripDataURI(req.Audio))
	if err != nil {
		badRequest(c, "undecodable audio data", err)
		return
	}

	text, err := s.transcriber.Transcribe(c.Request.Context(), audio, req.Format)
	if err != nil {
		respondDomainError(c, s.logger, "transcription failed", err)
		return
	}
	c.JSON(http.StatusOK, sttResponse{Transcription: text})
}

func (s *Service) handleProcessCommand(c *gin.Context) {
	var req processCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	cmd, err := s.resolver.Resolve(c.Request.Context(), req.Command)
	if err != nil {
		respondDomainError(c, s.logger, "command resolution failed", err)
		return
	}
	c.JSON(http.StatusOK, cmd)
}

func (s *Service) handleInterpretDirections(c *gin.Context) {
	var req interpretDirectionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	if s.interpreter == nil {
		respondDomainError(c, s.logger, "directions interpretation unavailable",
			errors.New(errors.KindConfig, "api.interpret", "interpreter not configured"))
		return
	}

	route, err := parseRoute(req.DirectionsData)
	if err != nil {
		badRequest(c, "undecodable directions data", err)
		return
	}

	text, err := s.interpreter.Interpret(c.Request.Context(), route)
	if err != nil {
		respondDomainError(c, s.logger, "directions interpretation failed", err)
		return
	}
	c.JSON(http.StatusOK, interpretDirectionsResponse{Interpretation: text})
}

// parseRoute accepts either a bare route or a full directions response and
// returns the first route.
func parseRoute(raw []byte) (nav.Route, error) {
	var route nav.Route
	if err := sonic.Unmarshal(raw, &route); err == nil && len(route.Legs) > 0 {
		return route, nil
	}

	var wrapper struct {
		Routes []nav.Route `json:"routes"`
	}
	if err := sonic.Unmarshal(raw, &wrapper); err != nil {
		return nav.Route{}, errors.Wrap(errors.KindMalformed, "api.interpret", "parse directions", err)
	}
	if len(wrapper.Routes) == 0 || len(wrapper.Routes[0].Legs) == 0 {
		return nav.Route{}, errors.New(errors.KindMalformed, "api.interpret", "directions contain no route")
	}
	return wrapper.Routes[0], nil
}

// decodeImageData handles both data URIs and bare base64 payloads, returning
// the raw bytes and the declared format.
func decodeImageData(s string) ([]byte, string, error) {
	format := "jpeg"
	if strings.HasPrefix(s, "data:image/") {
		rest := strings.TrimPrefix(s, "data:image/")
		if idx := strings.Index(rest, ";base64,"); idx >= 0 {
			format = rest[:idx]
			s = rest[idx+len(";base64,"):]
		}
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, "", err
	}
	return data, format, nil
}

func stripDataURI(s string) string {
	if idx := strings.Index(s, ";base64,"); idx >= 0 && strings.HasPrefix(s, "data:") {
		return s[idx+len(";base64,"):]
	}
	return s
}

func badRequest(c *gin.Context, msg string, err error) {
	body := errorResponse{Error: msg}
	if err != nil {
		body.Details = err.Error()
	}
	c.JSON(http.StatusBadRequest, body)
}

// respondDomainError maps the error taxonomy onto HTTP statuses.
func respondDomainError(c *gin.Context, logger *logging.Logger, msg string, err error) {
	status := http.StatusBadGateway
	switch errors.KindOf(err) {
	case errors.KindMalformed:
		status = http.StatusUnprocessableEntity
	case errors.KindQuota:
		status = http.StatusTooManyRequests
	case errors.KindConfig, errors.KindDevice:
		status = http.StatusServiceUnavailable
	}

	logger.ErrorTag("HTTP", "%s: %v", msg, err)
	c.JSON(status, errorResponse{Error: msg, Details: err.Error()})
}
