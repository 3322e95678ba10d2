package nav

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"visionbridge-server-go/internal/platform/config"
	"visionbridge-server-go/internal/platform/errors"
	"visionbridge-server-go/internal/platform/logging"
)

const mapsBaseURL = "https://maps.googleapis.com/maps/api"

// TextValue is the Maps API's human-readable quantity wrapper.
type TextValue struct {
	Text  string `json:"text"`
	Value int    `json:"value"`
}

// Step is one walking instruction of a route leg.
type Step struct {
	Instructions string    `json:"html_instructions"`
	Distance     TextValue `json:"distance"`
	Duration     TextValue `json:"duration"`
	Maneuver     string    `json:"maneuver,omitempty"`
}

// Leg is one origin-to-destination segment.
type Leg struct {
	Distance     TextValue `json:"distance"`
	Duration     TextValue `json:"duration"`
	StartAddress string    `json:"start_address"`
	EndAddress   string    `json:"end_address"`
	Steps        []Step    `json:"steps"`
}

// Route is one walking route returned by the directions service.
type Route struct {
	Summary string `json:"summary"`
	Legs    []Leg  `json:"legs"`
}

type directionsResponse struct {
	Status       string  `json:"status"`
	ErrorMessage string  `json:"error_message,omitempty"`
	Routes       []Route `json:"routes"`
}

type placeSearchResponse struct {
	Status     string `json:"status"`
	Candidates []struct {
		PlaceID          string `json:"place_id"`
		Name             string `json:"name"`
		FormattedAddress string `json:"formatted_address"`
	} `json:"candidates"`
}

// Client fetches walking directions from the Google Maps web services.
type Client struct {
	httpClient *resty.Client
	apiKey     string
	logger     *logging.Logger
}

// NewClient creates a directions client. The base URL is overridable for tests.
func NewClient(cfg config.NavConfig, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.DefaultLogger
	}
	baseURL := cfg.MapsBaseURL
	if baseURL == "" {
		baseURL = mapsBaseURL
	}
	return &Client{
		httpClient: resty.New().SetDebug(false).SetBaseURL(baseURL),
		apiKey:     cfg.MapsAPIKey,
		logger:     logger,
	}
}

// WalkingDirections fetches a walking route. A NOT_FOUND destination falls
// back to a place search so spoken names like "駅前のコンビニ" still resolve.
func (c *Client) WalkingDirections(ctx context.Context, origin, destination string) (Route, error) {
	if c.apiKey == "" {
		return Route{}, errors.New(errors.KindConfig, "nav.directions", "maps API key not configured")
	}

	route, err := c.fetchRoute(ctx, origin, destination)
	if err == nil {
		return route, nil
	}
	if !errors.IsKind(err, errors.KindMalformed) {
		return Route{}, err
	}

	// NOT_FOUND surfaces as malformed; retry with a resolved place ID.
	placeID, searchErr := c.findPlace(ctx, destination)
	if searchErr != nil {
		return Route{}, err
	}
	c.logger.InfoTag("NAV", "destination %q resolved via place search", destination)
	return c.fetchRoute(ctx, origin, "place_id:"+placeID)
}

func (c *Client) fetchRoute(ctx context.Context, origin, destination string) (Route, error) {
	result := &directionsResponse{}
	resp, err := c.httpClient.NewRequest().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"origin":      origin,
			"destination": destination,
			"mode":        "walking",
			"language":    "ja",
			"key":         c.apiKey,
		}).
		SetResult(result).
		Get("/directions/json")
	if err != nil {
		return Route{}, errors.Wrap(errors.KindTransport, "nav.directions", "directions call failed", err)
	}
	if resp.IsError() {
		return Route{}, errors.New(errors.KindTransport, "nav.directions",
			fmt.Sprintf("directions status %d", resp.StatusCode()))
	}

	switch result.Status {
	case "OK":
	case "NOT_FOUND", "ZERO_RESULTS":
		return Route{}, errors.New(errors.KindMalformed, "nav.directions",
			fmt.Sprintf("no route: %s", result.Status))
	case "OVER_QUERY_LIMIT":
		return Route{}, errors.New(errors.KindQuota, "nav.directions", "maps quota exceeded")
	default:
		return Route{}, errors.New(errors.KindTransport, "nav.directions",
			fmt.Sprintf("directions status %s: %s", result.Status, result.ErrorMessage))
	}

	if len(result.Routes) == 0 {
		return Route{}, errors.New(errors.KindMalformed, "nav.directions", "response has no routes")
	}
	return result.Routes[0], nil
}

func (c *Client) findPlace(ctx context.Context, query string) (string, error) {
	result := &placeSearchResponse{}
	resp, err := c.httpClient.NewRequest().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"input":     query,
			"inputtype": "textquery",
			"fields":    "place_id,name,formatted_address",
			"language":  "ja",
			"key":       c.apiKey,
		}).
		SetResult(result).
		Get("/place/findplacefromtext/json")
	if err != nil {
		return "", errors.Wrap(errors.KindTransport, "nav.place_search", "place search failed", err)
	}
	if resp.IsError() || result.Status != "OK" || len(result.Candidates) == 0 {
		return "", errors.New(errors.KindMalformed, "nav.place_search",
			fmt.Sprintf("no candidates for %q (status %s)", query, result.Status))
	}
	return result.Candidates[0].PlaceID, nil
}
