package nav

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"visionbridge-server-go/internal/platform/config"
	"visionbridge-server-go/internal/platform/errors"
)

const routeJSON = `{
	"status": "OK",
	"routes": [{
		"summary": "駅前通り",
		"legs": [{
			"distance": {"text": "400 m", "value": 400},
			"duration": {"text": "5分", "value": 300},
			"start_address": "出発地",
			"end_address": "東京駅",
			"steps": [
				{"html_instructions": "<b>北</b>に進む", "distance": {"text": "200 m", "value": 200}, "duration": {"text": "2分", "value": 150}},
				{"html_instructions": "右折する", "distance": {"text": "200 m", "value": 200}, "duration": {"text": "3分", "value": 150}, "maneuver": "turn-right"}
			]
		}]
	}]
}`

func newMapsClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(config.NavConfig{MapsAPIKey: "test-key", MapsBaseURL: srv.URL}, nil)
	return client, srv
}

func TestClient_WalkingDirections(t *testing.T) {
	var gotQuery map[string]string
	client, _ := newMapsClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"origin":      r.URL.Query().Get("origin"),
			"destination": r.URL.Query().Get("destination"),
			"mode":        r.URL.Query().Get("mode"),
			"language":    r.URL.Query().Get("language"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(routeJSON))
	})

	route, err := client.WalkingDirections(context.Background(), "35.0,139.0", "東京駅")
	if err != nil {
		t.Fatalf("WalkingDirections: %v", err)
	}
	if route.Summary != "駅前通り" || len(route.Legs) != 1 || len(route.Legs[0].Steps) != 2 {
		t.Fatalf("route = %+v", route)
	}
	if gotQuery["mode"] != "walking" || gotQuery["language"] != "ja" {
		t.Fatalf("query = %v, want walking mode in Japanese", gotQuery)
	}
	if gotQuery["destination"] != "東京駅" {
		t.Fatalf("destination = %q", gotQuery["destination"])
	}
}

func TestClient_NotFoundFallsBackToPlaceSearch(t *testing.T) {
	var directionCalls int
	client, _ := newMapsClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/directions"):
			directionCalls++
			if strings.HasPrefix(r.URL.Query().Get("destination"), "place_id:") {
				w.Write([]byte(routeJSON))
				return
			}
			w.Write([]byte(`{"status": "NOT_FOUND", "routes": []}`))
		case strings.HasPrefix(r.URL.Path, "/place"):
			w.Write([]byte(`{"status": "OK", "candidates": [{"place_id": "abc123", "name": "東京駅"}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	route, err := client.WalkingDirections(context.Background(), "35.0,139.0", "とうきょうえき")
	if err != nil {
		t.Fatalf("WalkingDirections with fallback: %v", err)
	}
	if route.Summary != "駅前通り" {
		t.Fatalf("route = %+v", route)
	}
	if directionCalls != 2 {
		t.Fatalf("directions calls = %d, want original plus retry", directionCalls)
	}
}

func TestClient_StatusTaxonomy(t *testing.T) {
	cases := []struct {
		status string
		want   errors.Kind
	}{
		{"OVER_QUERY_LIMIT", errors.KindQuota},
		{"REQUEST_DENIED", errors.KindTransport},
	}
	for _, tc := range cases {
		t.Run(tc.status, func(t *testing.T) {
			client, _ := newMapsClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"status": "` + tc.status + `", "routes": []}`))
			})
			_, err := client.WalkingDirections(context.Background(), "35.0,139.0", "x")
			if !errors.IsKind(err, tc.want) {
				t.Fatalf("err = %v, want kind %s", err, tc.want)
			}
		})
	}
}

func TestClient_RequiresAPIKey(t *testing.T) {
	client := NewClient(config.NavConfig{}, nil)
	_, err := client.WalkingDirections(context.Background(), "a", "b")
	if !errors.IsKind(err, errors.KindConfig) {
		t.Fatalf("err = %v, want config error", err)
	}
}

func TestService_GuideRequiresLocation(t *testing.T) {
	client := NewClient(config.NavConfig{MapsAPIKey: "k"}, nil)
	svc := NewService(client, nil, nil)

	_, err := svc.Guide(context.Background(), "東京駅")
	if !errors.IsKind(err, errors.KindDevice) {
		t.Fatalf("err = %v, want device error for unknown location", err)
	}
}

func TestService_GuideTemplateFallback(t *testing.T) {
	client, _ := newMapsClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(routeJSON))
	})
	svc := NewService(client, nil, nil)
	svc.UpdateLocation(35.0, 139.0)

	guidance, err := svc.Guide(context.Background(), "東京駅")
	if err != nil {
		t.Fatalf("Guide: %v", err)
	}
	if !strings.Contains(guidance, "400 m") || !strings.Contains(guidance, "5分") {
		t.Fatalf("guidance missing overview: %q", guidance)
	}
	if strings.Contains(guidance, "<b>") {
		t.Fatalf("guidance leaked markup: %q", guidance)
	}
	if !strings.Contains(guidance, "1. 北に進む") {
		t.Fatalf("guidance missing steps: %q", guidance)
	}
}
