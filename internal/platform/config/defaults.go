package config

// DefaultConfig returns the built-in configuration used when no file overrides exist.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:   "0.0.0.0",
			Port: 8000,
		},
		Log: LogConfig{
			Level: "INFO",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Web: WebConfig{
			Enabled:   true,
			StaticDir: "./web",
		},
		Loop: LoopConfig{
			IntervalMS:        5000,
			MinIntervalMS:     3000,
			MaxIntervalMS:     10000,
			QuotaRetryDelayMS: 30000,
		},
		Capture: CaptureConfig{
			MaxFrameBytes:  5 * 1024 * 1024,
			MaxClipBytes:   20 * 1024 * 1024,
			MaxWidth:       4096,
			MaxHeight:      4096,
			AllowedFormats: []string{"jpeg", "png", "webp"},
		},
		Speech: SpeechConfig{
			Rate:   1.0,
			Volume: 1.0,
		},
		Nav: NavConfig{},
		Storage: StorageConfig{
			DSN: "data/visionbridge.db",
		},
		Selected: SelectedConfig{
			Vision: "GeminiVision",
			TTS:    "EdgeTTS",
			STT:    "OpenAISTT",
			Intent: "OpenAIIntent",
		},
		Vision: map[string]VisionConfig{
			"GeminiVision": {
				Type:        "openai",
				ModelName:   "gemini-1.5-flash",
				BaseURL:     "https://generativelanguage.googleapis.com/v1beta/openai",
				Temperature: 0.4,
				MaxTokens:   2048,
				TopP:        1.0,
			},
		},
		TTS: map[string]TTSConfig{
			"EdgeTTS": {
				Type:      "edge",
				Voice:     "ja-JP-NanamiNeural",
				Format:    "mp3",
				OutputDir: "data/tts",
			},
		},
		STT: map[string]STTConfig{
			"OpenAISTT": {
				Type:      "openai",
				ModelName: "whisper-1",
				Language:  "ja",
			},
		},
		Intent: map[string]IntentConfig{
			"OpenAIIntent": {
				Type:        "openai",
				ModelName:   "gpt-4o-mini",
				Temperature: 0.2,
			},
		},
	}
}
