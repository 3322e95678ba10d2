package nav

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"visionbridge-server-go/internal/platform/errors"
	"visionbridge-server-go/internal/platform/logging"
)

// Service resolves spoken destinations into walking guidance. The origin is
// the session's last reported location.
type Service struct {
	client      *Client
	interpreter *Interpreter
	logger      *logging.Logger

	mu     sync.Mutex
	origin string
}

// NewService creates a guidance service. interpreter may be nil; routes then
// fall back to template formatting.
func NewService(client *Client, interpreter *Interpreter, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.DefaultLogger
	}
	return &Service{client: client, interpreter: interpreter, logger: logger}
}

// UpdateLocation records the session's current position.
func (s *Service) UpdateLocation(lat, lng float64) {
	s.mu.Lock()
	s.origin = fmt.Sprintf("%f,%f", lat, lng)
	s.mu.Unlock()
}

// Guide fetches a walking route to the destination and renders it as spoken
// Japanese guidance.
func (s *Service) Guide(ctx context.Context, destination string) (string, error) {
	s.mu.Lock()
	origin := s.origin
	s.mu.Unlock()
	if origin == "" {
		return "", errors.New(errors.KindDevice, "nav.guide", "current location unknown")
	}

	route, err := s.client.WalkingDirections(ctx, origin, destination)
	if err != nil {
		return "", err
	}

	if s.interpreter != nil {
		guidance, err := s.interpreter.Interpret(ctx, route)
		if err == nil {
			return guidance, nil
		}
		s.logger.WarnTag("NAV", "interpretation failed, using template fallback: %v", err)
	}
	return FormatRoute(route), nil
}

var htmlTags = regexp.MustCompile(`<[^>]+>`)

// FormatRoute renders a route without the LLM: overview sentence plus one
// numbered line per step, instructions stripped of markup.
func FormatRoute(route Route) string {
	if len(route.Legs) == 0 {
		return ""
	}
	leg := route.Legs[0]

	var b strings.Builder
	fmt.Fprintf(&b, "目的地まで%s、約%sです。", leg.Distance.Text, leg.Duration.Text)
	for i, step := range leg.Steps {
		instruction := strings.TrimSpace(htmlTags.ReplaceAllString(step.Instructions, ""))
		fmt.Fprintf(&b, "\n%d. %s（%s）", i+1, instruction, step.Distance.Text)
	}
	return b.String()
}
