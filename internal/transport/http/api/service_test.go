package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"visionbridge-server-go/internal/domain/analysis"
	"visionbridge-server-go/internal/domain/capture"
	"visionbridge-server-go/internal/domain/voice"
	"visionbridge-server-go/internal/platform/errors"
)

type fakeVision struct {
	result analysis.Result
	err    error
	lastIn capture.Unit
	lastCx analysis.Context
}

func (f *fakeVision) Analyze(ctx context.Context, unit capture.Unit, actx analysis.Context) (analysis.Result, error) {
	f.lastIn = unit
	f.lastCx = actx
	return f.result, f.err
}

type fakeSynth struct{ audio []byte }

func (f *fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return f.audio, nil
}

type fakeTranscriber struct{ text string }

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	return f.text, nil
}

type fakeResolver struct{ cmd voice.Command }

func (f *fakeResolver) Resolve(ctx context.Context, transcript string) (voice.Command, error) {
	return f.cmd, nil
}

func newTestEngine(t *testing.T, deps Deps) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	svc := NewService(deps)
	if err := svc.Register(context.Background(), engine); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return engine
}

func postJSON(t *testing.T, engine *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestAnalyzeImage(t *testing.T) {
	vision := &fakeVision{result: analysis.Result{Text: "前方に椅子があります", IsChange: true}}
	engine := newTestEngine(t, Deps{Vision: vision})

	imageData := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte{0x89, 0x50})
	w := postJSON(t, engine, "/analyze-image", gin.H{"imageData": imageData, "mode": "detailed"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	var resp analyzeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Analysis != "前方に椅子があります" {
		t.Fatalf("analysis = %q", resp.Analysis)
	}
	if vision.lastIn.Kind != capture.KindStill || vision.lastIn.Format != "png" {
		t.Fatalf("capture unit = %+v", vision.lastIn)
	}
	if vision.lastCx.Mode != analysis.ModeDetailed || vision.lastCx.Previous != nil {
		t.Fatalf("analysis context = %+v", vision.lastCx)
	}
}

func TestAnalyzeImagePreviousForwarded(t *testing.T) {
	vision := &fakeVision{result: analysis.Result{Text: "変化なし"}}
	engine := newTestEngine(t, Deps{Vision: vision})

	w := postJSON(t, engine, "/analyze-image", gin.H{
		"imageData":        base64.StdEncoding.EncodeToString([]byte{0xFF}),
		"previousAnalysis": "前方に椅子があります",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if vision.lastCx.Previous == nil || *vision.lastCx.Previous != "前方に椅子があります" {
		t.Fatalf("previous not forwarded: %+v", vision.lastCx)
	}
	if vision.lastCx.FirstCycle {
		t.Fatal("request with previous must not be a first cycle")
	}
}

func TestAnalyzeImageErrorShapes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"quota", errors.New(errors.KindQuota, "t", "limited"), http.StatusTooManyRequests},
		{"transport", errors.New(errors.KindTransport, "t", "down"), http.StatusBadGateway},
		{"malformed", errors.New(errors.KindMalformed, "t", "empty"), http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := newTestEngine(t, Deps{Vision: &fakeVision{err: tc.err}})
			w := postJSON(t, engine, "/analyze-image", gin.H{
				"imageData": base64.StdEncoding.EncodeToString([]byte{0xFF}),
			})
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d", w.Code, tc.want)
			}
			var resp errorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if resp.Error == "" {
				t.Fatalf("error body missing error field: %s", w.Body.String())
			}
		})
	}
}

func TestAnalyzeImageRejectsBadBase64(t *testing.T) {
	engine := newTestEngine(t, Deps{Vision: &fakeVision{}})
	w := postJSON(t, engine, "/analyze-image", gin.H{"imageData": "not@@base64"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestPostOnlyEndpointsReject405(t *testing.T) {
	engine := newTestEngine(t, Deps{Vision: &fakeVision{}})
	for _, path := range []string{"/analyze-image", "/tts", "/stt", "/process-command", "/interpret-directions"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		if w.Code != http.StatusMethodNotAllowed {
			t.Fatalf("GET %s status = %d, want 405", path, w.Code)
		}
	}
}

func TestTTSReturnsAudio(t *testing.T) {
	engine := newTestEngine(t, Deps{Synthesizer: &fakeSynth{audio: []byte{0x49, 0x44, 0x33}}})

	w := postJSON(t, engine, "/tts", gin.H{"text": "こんにちは"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("content type = %q", ct)
	}
	if !bytes.Equal(w.Body.Bytes(), []byte{0x49, 0x44, 0x33}) {
		t.Fatalf("body = %v", w.Body.Bytes())
	}
}

func TestSTT(t *testing.T) {
	engine := newTestEngine(t, Deps{Transcriber: &fakeTranscriber{text: "カメラを起動して"}})

	w := postJSON(t, engine, "/stt", gin.H{
		"audio": base64.StdEncoding.EncodeToString([]byte{0x01, 0x02}),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	var resp sttResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Transcription != "カメラを起動して" {
		t.Fatalf("transcription = %q", resp.Transcription)
	}
}

func TestProcessCommand(t *testing.T) {
	engine := newTestEngine(t, Deps{Resolver: &fakeResolver{cmd: voice.Command{
		Action:          voice.ActionStartNavigation,
		Parameters:      map[string]string{"destination": "東京駅"},
		FulfillmentText: "東京駅への道案内を開始します。",
	}}})

	w := postJSON(t, engine, "/process-command", gin.H{"command": "東京駅まで案内して"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var cmd voice.Command
	if err := json.Unmarshal(w.Body.Bytes(), &cmd); err != nil {
		t.Fatalf("decode command: %v", err)
	}
	if cmd.Action != voice.ActionStartNavigation || cmd.Destination() != "東京駅" {
		t.Fatalf("command = %+v", cmd)
	}
	if cmd.FulfillmentText == "" {
		t.Fatal("fulfillment text missing")
	}
}
