package speech

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/hajimehoshi/go-mp3"
	"github.com/wujunwei928/edge-tts-go/edge_tts"

	"visionbridge-server-go/internal/platform/config"
	"visionbridge-server-go/internal/platform/errors"
	"visionbridge-server-go/internal/platform/logging"
)

// EdgeSynthesizer produces MP3 audio via the Edge TTS service.
type EdgeSynthesizer struct {
	voice  string
	logger *logging.Logger
}

// NewEdgeSynthesizer creates a synthesizer for the configured voice.
func NewEdgeSynthesizer(cfg config.TTSConfig, logger *logging.Logger) *EdgeSynthesizer {
	if logger == nil {
		logger = logging.DefaultLogger
	}
	voice := cfg.Voice
	if voice == "" {
		voice = "ja-JP-NanamiNeural"
	}
	return &EdgeSynthesizer{voice: voice, logger: logger}
}

// Synthesize converts text to MP3 bytes.
func (s *EdgeSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	communicate, err := edge_tts.NewCommunicate(text, edge_tts.SetVoice(s.voice))
	if err != nil {
		return nil, errors.Wrap(errors.KindTransport, "tts.synthesize", "create communicator", err)
	}

	start := time.Now()
	audio, err := communicate.Stream()
	if err != nil {
		return nil, errors.Wrap(errors.KindTransport, "tts.synthesize", "synthesis failed", err)
	}

	s.logger.DebugTag("TTS", "synthesized %d bytes in %v (len=%d)", len(audio), time.Since(start), len([]rune(text)))
	return audio, nil
}

// MP3Duration decodes an MP3 payload and reports its playback duration.
// Used by players that need to pace delivery of complete utterances.
func MP3Duration(audio []byte) (time.Duration, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(audio))
	if err != nil {
		return 0, errors.Wrap(errors.KindMalformed, "tts.duration", "undecodable mp3", err)
	}

	samples, err := io.Copy(io.Discard, decoder)
	if err != nil {
		return 0, errors.Wrap(errors.KindMalformed, "tts.duration", "decode mp3 stream", err)
	}

	// 4 bytes per sample: 16-bit stereo PCM.
	seconds := float64(samples) / 4 / float64(decoder.SampleRate())
	return time.Duration(seconds * float64(time.Second)), nil
}
