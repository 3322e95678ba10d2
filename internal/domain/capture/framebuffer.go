package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"visionbridge-server-go/internal/platform/config"
	"visionbridge-server-go/internal/platform/errors"
	"visionbridge-server-go/internal/platform/logging"
)

var imageSignatures = map[string][]byte{
	"jpeg": {0xFF, 0xD8},
	"jpg":  {0xFF, 0xD8},
	"png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"webp": {0x52, 0x49, 0x46, 0x46},
}

// FrameBuffer is a Source fed by a remote client streaming camera data. It
// retains only the most recent validated frame and the latest recorded clip;
// older data is overwritten, never queued.
type FrameBuffer struct {
	mu       sync.Mutex
	cfg      config.CaptureConfig
	logger   *logging.Logger
	acquired bool

	frame       []byte
	frameFormat string
	frameAt     time.Time

	clip         []byte
	clipDuration time.Duration
}

// NewFrameBuffer creates a buffer enforcing the given capture limits.
func NewFrameBuffer(cfg config.CaptureConfig, logger *logging.Logger) *FrameBuffer {
	if logger == nil {
		logger = logging.DefaultLogger
	}
	return &FrameBuffer{cfg: cfg, logger: logger}
}

// Acquire marks the device as open. It fails if already held: the capture
// device is exclusively owned by one controller at a time.
func (fb *FrameBuffer) Acquire(ctx context.Context) error {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if fb.acquired {
		return errors.New(errors.KindDevice, "capture.acquire", "capture source already in use")
	}
	fb.acquired = true
	return nil
}

// Release drops the device claim and clears buffered data.
func (fb *FrameBuffer) Release() {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	fb.acquired = false
	fb.frame = nil
	fb.frameFormat = ""
	fb.clip = nil
	fb.clipDuration = 0
}

// PutFrame validates and stores an incoming frame, replacing any previous one.
func (fb *FrameBuffer) PutFrame(data []byte, declaredFormat string) error {
	format, err := fb.validateFrame(data, declaredFormat)
	if err != nil {
		return err
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()

	if !fb.acquired {
		return errors.New(errors.KindDevice, "capture.put_frame", "capture source not acquired")
	}
	fb.frame = data
	fb.frameFormat = format
	fb.frameAt = time.Now()
	return nil
}

// PutClip stores an incoming recorded clip, replacing any previous one.
func (fb *FrameBuffer) PutClip(data []byte, duration time.Duration) error {
	if len(data) == 0 {
		return errors.New(errors.KindDevice, "capture.put_clip", "empty clip payload")
	}
	if fb.cfg.MaxClipBytes > 0 && int64(len(data)) > fb.cfg.MaxClipBytes {
		return errors.New(errors.KindDevice, "capture.put_clip",
			fmt.Sprintf("clip exceeds limit: %d bytes", len(data)))
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()

	if !fb.acquired {
		return errors.New(errors.KindDevice, "capture.put_clip", "capture source not acquired")
	}
	fb.clip = data
	fb.clipDuration = duration
	return nil
}

// Still returns the most recent frame.
func (fb *FrameBuffer) Still(ctx context.Context) (Unit, error) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if !fb.acquired {
		return Unit{}, errors.New(errors.KindDevice, "capture.still", "capture source not acquired")
	}
	if fb.frame == nil {
		return Unit{}, errors.New(errors.KindDevice, "capture.still", "no frame available")
	}
	return Unit{Kind: KindStill, Data: fb.frame, Format: fb.frameFormat}, nil
}

// Clip returns the most recent recorded clip.
func (fb *FrameBuffer) Clip(ctx context.Context) (Unit, error) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if !fb.acquired {
		return Unit{}, errors.New(errors.KindDevice, "capture.clip", "capture source not acquired")
	}
	if fb.clip == nil {
		return Unit{}, errors.New(errors.KindDevice, "capture.clip", "no clip available")
	}
	return Unit{Kind: KindClip, Data: fb.clip, Format: "webm", Duration: fb.clipDuration}, nil
}

// validateFrame runs the layered checks: size cap, decodability, dimension cap
// and allowed-format list. It returns the detected format.
func (fb *FrameBuffer) validateFrame(data []byte, declaredFormat string) (string, error) {
	if len(data) == 0 {
		return "", errors.New(errors.KindDevice, "capture.validate", "empty frame payload")
	}
	if fb.cfg.MaxFrameBytes > 0 && int64(len(data)) > fb.cfg.MaxFrameBytes {
		return "", errors.New(errors.KindDevice, "capture.validate",
			fmt.Sprintf("frame exceeds limit: %d bytes (max %d)", len(data), fb.cfg.MaxFrameBytes))
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if declaredFormat != "" && !matchesSignature(data, declaredFormat) {
			fb.logger.WarnTag("VISION", "frame signature mismatch: declared=%s", declaredFormat)
		}
		return "", errors.Wrap(errors.KindDevice, "capture.validate", "undecodable frame", err)
	}

	if fb.cfg.MaxWidth > 0 && cfg.Width > fb.cfg.MaxWidth ||
		fb.cfg.MaxHeight > 0 && cfg.Height > fb.cfg.MaxHeight {
		return "", errors.New(errors.KindDevice, "capture.validate",
			fmt.Sprintf("frame dimensions %dx%d exceed limit", cfg.Width, cfg.Height))
	}

	if len(fb.cfg.AllowedFormats) > 0 && !formatAllowed(format, fb.cfg.AllowedFormats) {
		return "", errors.New(errors.KindDevice, "capture.validate",
			fmt.Sprintf("unsupported frame format: %s", format))
	}

	return format, nil
}

func formatAllowed(format string, allowed []string) bool {
	for _, a := range allowed {
		if a == format {
			return true
		}
	}
	return false
}

func matchesSignature(data []byte, format string) bool {
	sig, ok := imageSignatures[format]
	if !ok {
		return false
	}
	return len(data) >= len(sig) && bytes.Equal(data[:len(sig)], sig)
}
