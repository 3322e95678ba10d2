package capture

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"
	"time"

	"visionbridge-server-go/internal/platform/config"
	"visionbridge-server-go/internal/platform/errors"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func testCaptureConfig() config.CaptureConfig {
	return config.CaptureConfig{
		MaxFrameBytes:  1024 * 1024,
		MaxClipBytes:   1024 * 1024,
		MaxWidth:       64,
		MaxHeight:      64,
		AllowedFormats: []string{"jpeg", "png", "webp"},
	}
}

func TestFrameBufferLifecycle(t *testing.T) {
	ctx := context.Background()
	fb := NewFrameBuffer(testCaptureConfig(), nil)

	if _, err := fb.Still(ctx); !errors.IsKind(err, errors.KindDevice) {
		t.Fatalf("Still before Acquire = %v, want device error", err)
	}

	if err := fb.Acquire(ctx); err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	if err := fb.Acquire(ctx); err == nil {
		t.Fatal("second Acquire should fail while held")
	}

	frame := encodePNG(t, 8, 8)
	if err := fb.PutFrame(frame, "png"); err != nil {
		t.Fatalf("PutFrame returned error: %v", err)
	}

	unit, err := fb.Still(ctx)
	if err != nil {
		t.Fatalf("Still returned error: %v", err)
	}
	if unit.Kind != KindStill || unit.Format != "png" {
		t.Errorf("unexpected unit: kind=%s format=%s", unit.Kind, unit.Format)
	}

	fb.Release()
	if _, err := fb.Still(ctx); err == nil {
		t.Fatal("Still after Release should fail")
	}

	// Released source can be re-acquired.
	if err := fb.Acquire(ctx); err != nil {
		t.Fatalf("re-Acquire returned error: %v", err)
	}
}

func TestFrameBufferKeepsLatestFrame(t *testing.T) {
	ctx := context.Background()
	fb := NewFrameBuffer(testCaptureConfig(), nil)
	if err := fb.Acquire(ctx); err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}

	first := encodePNG(t, 4, 4)
	second := encodePNG(t, 8, 8)
	if err := fb.PutFrame(first, "png"); err != nil {
		t.Fatalf("PutFrame returned error: %v", err)
	}
	if err := fb.PutFrame(second, "png"); err != nil {
		t.Fatalf("PutFrame returned error: %v", err)
	}

	unit, err := fb.Still(ctx)
	if err != nil {
		t.Fatalf("Still returned error: %v", err)
	}
	if !bytes.Equal(unit.Data, second) {
		t.Error("Still should return the most recent frame")
	}
}

func TestFrameBufferValidation(t *testing.T) {
	ctx := context.Background()
	fb := NewFrameBuffer(testCaptureConfig(), nil)
	if err := fb.Acquire(ctx); err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}

	tests := []struct {
		name  string
		data  []byte
		wants string
	}{
		{"empty payload", nil, "empty"},
		{"garbage bytes", []byte("not an image at all"), "undecodable"},
		{"oversized dimensions", encodePNG(t, 128, 128), "dimensions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fb.PutFrame(tt.data, "png")
			if !errors.IsKind(err, errors.KindDevice) {
				t.Errorf("PutFrame = %v, want device error", err)
			}
		})
	}
}

func TestFrameBufferClip(t *testing.T) {
	ctx := context.Background()
	fb := NewFrameBuffer(testCaptureConfig(), nil)
	if err := fb.Acquire(ctx); err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}

	if err := fb.PutClip([]byte("webm-bytes"), 3*time.Second); err != nil {
		t.Fatalf("PutClip returned error: %v", err)
	}

	unit, err := fb.Clip(ctx)
	if err != nil {
		t.Fatalf("Clip returned error: %v", err)
	}
	if unit.Kind != KindClip || unit.Duration != 3*time.Second {
		t.Errorf("unexpected clip unit: %+v", unit)
	}
}
