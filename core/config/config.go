// Package config loads the settings of the emalive command: which backends
// to use for audio, live sessions, text replies, speech and extraction.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	AudioBackendMiniaudio = "miniaudio"
	AudioBackendPortaudio = "portaudio"

	ProviderGemini   = "gemini"
	ProviderGroq     = "groq"
	ProviderDeepgram = "deepgram"
)

type Config struct {
	Live       LiveConfig       `yaml:"live"`
	Audio      AudioConfig      `yaml:"audio"`
	Text       TextConfig       `yaml:"text"`
	Speech     SpeechConfig     `yaml:"speech"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	APIKeys    APIKeys          `yaml:"api_keys"`
}

type LiveConfig struct {
	Model             string        `yaml:"model"`
	Voice             string        `yaml:"voice"`
	SystemInstruction string        `yaml:"system_instruction"`
	Endpoint          string        `yaml:"endpoint"`
	FrameSamples      int           `yaml:"frame_samples"`
	PreconnectFrames  int           `yaml:"preconnect_frames"` // 0 drops audio captured before the session opens
	ReadyTimeout      time.Duration `yaml:"ready_timeout"`     // 0 waits indefinitely
}

type AudioConfig struct {
	Backend    string `yaml:"backend"`
	BufferSize int    `yaml:"buffer_size"` // portaudio only
}

type TextConfig struct {
	Provider     string `yaml:"provider"`
	Model        string `yaml:"model"`
	Instructions string `yaml:"instructions"`
}

type SpeechConfig struct {
	Provider string `yaml:"provider"`
	Voice    string `yaml:"voice"`
}

type ExtractionConfig struct {
	Fields []string `yaml:"fields"`
}

type MetricsConfig struct {
	Address string `yaml:"address"` // empty disables the endpoint
}

// APIKeys may be set in the file but are normally taken from the
// environment, which always wins.
type APIKeys struct {
	Gemini   string `yaml:"gemini"`
	Groq     string `yaml:"groq"`
	Deepgram string `yaml:"deepgram"`
}

func Default() *Config {
	return &Config{
		Live: LiveConfig{
			Model:        "gemini-2.0-flash-live-001",
			Voice:        "Puck",
			FrameSamples: 4096,
			ReadyTimeout: 15 * time.Second,
		},
		Audio: AudioConfig{
			Backend:    AudioBackendMiniaudio,
			BufferSize: 1024,
		},
		Text: TextConfig{
			Provider: ProviderGemini,
		},
		Speech: SpeechConfig{
			Provider: ProviderGemini,
		},
		Extraction: ExtractionConfig{
			Fields: []string{"name", "email", "phone", "income", "employer", "loan_amount"},
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path only uses defaults and environment.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// LoadEnv loads .env style files into the process environment. Without
// arguments it reads ./.env if present. Existing variables are not
// overwritten.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		return nil
	}

	if err := godotenv.Load(paths...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}

func (c *Config) ApplyEnv() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.APIKeys.Gemini = key
	}
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		c.APIKeys.Groq = key
	}
	if key := os.Getenv("DEEPGRAM_API_KEY"); key != "" {
		c.APIKeys.Deepgram = key
	}
}

func (c *Config) Validate() error {
	if err := c.Live.Validate(); err != nil {
		return fmt.Errorf("live config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Text.Validate(); err != nil {
		return fmt.Errorf("text config: %w", err)
	}

	if err := c.Speech.Validate(); err != nil {
		return fmt.Errorf("speech config: %w", err)
	}

	if err := c.APIKeys.validateFor(c); err != nil {
		return fmt.Errorf("api keys: %w", err)
	}

	return nil
}

func (l *LiveConfig) Validate() error {
	if l.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if l.FrameSamples < 256 || l.FrameSamples > 16384 {
		return fmt.Errorf("frame_samples must be between 256 and 16384, got %d", l.FrameSamples)
	}

	if l.PreconnectFrames < 0 {
		return fmt.Errorf("preconnect_frames cannot be negative, got %d", l.PreconnectFrames)
	}

	if l.ReadyTimeout < 0 {
		return fmt.Errorf("ready_timeout cannot be negative, got %s", l.ReadyTimeout)
	}

	return nil
}

func (a *AudioConfig) Validate() error {
	if !slices.Contains([]string{AudioBackendMiniaudio, AudioBackendPortaudio}, a.Backend) {
		return fmt.Errorf("backend must be %s or %s, got %q", AudioBackendMiniaudio, AudioBackendPortaudio, a.Backend)
	}

	if a.Backend == AudioBackendPortaudio && a.BufferSize < 64 {
		return fmt.Errorf("buffer_size must be at least 64 samples, got %d", a.BufferSize)
	}

	return nil
}

func (t *TextConfig) Validate() error {
	if !slices.Contains([]string{ProviderGemini, ProviderGroq}, t.Provider) {
		return fmt.Errorf("provider must be %s or %s, got %q", ProviderGemini, ProviderGroq, t.Provider)
	}

	return nil
}

func (s *SpeechConfig) Validate() error {
	if !slices.Contains([]string{ProviderGemini, ProviderDeepgram}, s.Provider) {
		return fmt.Errorf("provider must be %s or %s, got %q", ProviderGemini, ProviderDeepgram, s.Provider)
	}

	return nil
}

// validateFor requires the keys of every provider the config selects. The
// live session always runs on Gemini.
func (k *APIKeys) validateFor(c *Config) error {
	if k.Gemini == "" {
		return fmt.Errorf("gemini key missing, set GEMINI_API_KEY")
	}

	if c.Text.Provider == ProviderGroq && k.Groq == "" {
		return fmt.Errorf("groq key missing, set GROQ_API_KEY")
	}

	if c.Speech.Provider == ProviderDeepgram && k.Deepgram == "" {
		return fmt.Errorf("deepgram key missing, set DEEPGRAM_API_KEY")
	}

	return nil
}
