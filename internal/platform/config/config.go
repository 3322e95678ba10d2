package config

type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Log      LogConfig               `yaml:"log"`
	Web      WebConfig               `yaml:"web"`
	Loop     LoopConfig              `yaml:"loop"`
	Capture  CaptureConfig           `yaml:"capture"`
	Speech   SpeechConfig            `yaml:"speech"`
	Nav      NavConfig               `yaml:"nav"`
	Storage  StorageConfig           `yaml:"storage"`
	Selected SelectedConfig          `yaml:"selected_module"`
	Vision   map[string]VisionConfig `yaml:"VISION"`
	TTS      map[string]TTSConfig    `yaml:"TTS"`
	STT      map[string]STTConfig    `yaml:"STT"`
	Intent   map[string]IntentConfig `yaml:"INTENT"`
}

type ServerConfig struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

type WebConfig struct {
	Enabled   bool   `yaml:"enabled"`
	StaticDir string `yaml:"static_dir"`
}

// LoopConfig tunes the scene-analysis loop.
type LoopConfig struct {
	IntervalMS        int `yaml:"interval_ms"`
	MinIntervalMS     int `yaml:"min_interval_ms"`
	MaxIntervalMS     int `yaml:"max_interval_ms"`
	QuotaRetryDelayMS int `yaml:"quota_retry_delay_ms"`
}

// CaptureConfig bounds incoming frame and clip payloads.
type CaptureConfig struct {
	MaxFrameBytes  int64    `yaml:"max_frame_bytes"`
	MaxClipBytes   int64    `yaml:"max_clip_bytes"`
	MaxWidth       int      `yaml:"max_width"`
	MaxHeight      int      `yaml:"max_height"`
	AllowedFormats []string `yaml:"allowed_formats"`
}

type SpeechConfig struct {
	Rate   float64 `yaml:"rate"`
	Volume float64 `yaml:"volume"`
}

type NavConfig struct {
	MapsAPIKey  string `yaml:"maps_api_key"`
	MapsBaseURL string `yaml:"maps_base_url"`
}

type StorageConfig struct {
	DSN string `yaml:"dsn"`
}

type SelectedConfig struct {
	Vision string `yaml:"VISION"`
	TTS    string `yaml:"TTS"`
	STT    string `yaml:"STT"`
	Intent string `yaml:"INTENT"`
}

type VisionConfig struct {
	Type        string  `yaml:"type"`
	ModelName   string  `yaml:"model_name"`
	BaseURL     string  `yaml:"url"`
	VideoURL    string  `yaml:"video_url"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TopP        float64 `yaml:"top_p"`
}

type TTSConfig struct {
	Type      string `yaml:"type"`
	Voice     string `yaml:"voice"`
	Format    string `yaml:"format"`
	OutputDir string `yaml:"output_dir"`
}

type STTConfig struct {
	Type      string `yaml:"type"`
	ModelName string `yaml:"model_name"`
	BaseURL   string `yaml:"url"`
	APIKey    string `yaml:"api_key"`
	Language  string `yaml:"language"`
}

type IntentConfig struct {
	Type        string  `yaml:"type"`
	ModelName   string  `yaml:"model_name"`
	BaseURL     string  `yaml:"url"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
}
