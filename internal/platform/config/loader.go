package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = ".config.yaml"

// Loader reads configuration from a YAML file layered over defaults, with
// API keys resolved from the environment.
type Loader struct {
	useDotEnv bool
	path      string
}

// NewLoader creates a loader reading from the default config path.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		path:      defaultConfigPath,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath overrides the configuration file path (useful for tests).
func (l *Loader) WithPath(path string) *Loader {
	if path != "" {
		l.path = path
	}
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

// Load reads defaults, merges the YAML file if present, applies environment
// overrides and validates the outcome.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			fmt.Println("no .env file found, using system environment")
		}
	}

	cfg := DefaultConfig()
	path := l.path

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		path = ""
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	l.applyEnv(cfg)
	clampLoop(&cfg.Loop)

	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, Path: path}, nil
}

// applyEnv resolves secrets that should not live in the config file.
func (l *Loader) applyEnv(cfg *Config) {
	if key := os.Getenv("VISION_API_KEY"); key != "" {
		for name, vc := range cfg.Vision {
			if vc.APIKey == "" {
				vc.APIKey = key
				cfg.Vision[name] = vc
			}
		}
	}
	if key := os.Getenv("STT_API_KEY"); key != "" {
		for name, sc := range cfg.STT {
			if sc.APIKey == "" {
				sc.APIKey = key
				cfg.STT[name] = sc
			}
		}
	}
	if key := os.Getenv("INTENT_API_KEY"); key != "" {
		for name, ic := range cfg.Intent {
			if ic.APIKey == "" {
				ic.APIKey = key
				cfg.Intent[name] = ic
			}
		}
	}
	if key := os.Getenv("MAPS_API_KEY"); key != "" && cfg.Nav.MapsAPIKey == "" {
		cfg.Nav.MapsAPIKey = key
	}
}

// clampLoop keeps the analysis interval inside its supported window.
func clampLoop(loop *LoopConfig) {
	if loop.MinIntervalMS <= 0 {
		loop.MinIntervalMS = 3000
	}
	if loop.MaxIntervalMS <= 0 {
		loop.MaxIntervalMS = 10000
	}
	if loop.IntervalMS < loop.MinIntervalMS {
		loop.IntervalMS = loop.MinIntervalMS
	}
	if loop.IntervalMS > loop.MaxIntervalMS {
		loop.IntervalMS = loop.MaxIntervalMS
	}
	if loop.QuotaRetryDelayMS <= 0 {
		loop.QuotaRetryDelayMS = 30000
	}
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Selected.Vision != "" {
		if _, ok := cfg.Vision[cfg.Selected.Vision]; !ok {
			return fmt.Errorf("selected VISION provider %q not configured", cfg.Selected.Vision)
		}
	}
	if cfg.Selected.TTS != "" {
		if _, ok := cfg.TTS[cfg.Selected.TTS]; !ok {
			return fmt.Errorf("selected TTS provider %q not configured", cfg.Selected.TTS)
		}
	}
	if cfg.Selected.STT != "" {
		if _, ok := cfg.STT[cfg.Selected.STT]; !ok {
			return fmt.Errorf("selected STT provider %q not configured", cfg.Selected.STT)
		}
	}
	if cfg.Selected.Intent != "" {
		if _, ok := cfg.Intent[cfg.Selected.Intent]; !ok {
			return fmt.Errorf("selected INTENT provider %q not configured", cfg.Selected.Intent)
		}
	}
	return nil
}
