// Package config reads process configuration from the environment once at
// startup. Values are immutable afterwards.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend selection modes.
const (
	ModeLive      = "live"
	ModeSimulated = "simulated"
	// ModeAuto probes the live credential at startup and falls back to
	// simulated output when the probe fails.
	ModeAuto = "auto"
)

type Config struct {
	ServerAddr string

	// Mode selects the model backend explicitly. Empty means auto when an
	// API key is configured, simulated otherwise.
	Mode string

	APIBaseURL string
	APIKey     string

	RepresentorModel   string
	TherapistModel     string
	TranscriptionModel string
	SpeechModel        string
	SpeechVoice        string
	SpeechFormat       string

	// VoiceEnabled adds synthesized audio to text replies.
	VoiceEnabled bool

	BackendTimeout time.Duration

	Logging LoggingConfig
}

type LoggingConfig struct {
	Level        string
	Encoding     string
	Development  bool
	EnableCaller bool
	ServiceName  string
}

// Load reads .env (when present) and the environment into a Config.
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := &Config{
		ServerAddr:         getEnv("SERVER_ADDR", ":8000"),
		Mode:               strings.ToLower(strings.TrimSpace(os.Getenv("MODE"))),
		APIBaseURL:         getEnv("OPENAI_API_BASE", "https://api.openai.com/v1"),
		APIKey:             strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		RepresentorModel:   getEnv("PARTNER_MODEL", "gpt-3.5-turbo"),
		TherapistModel:     getEnv("THERAPIST_MODEL", "gpt-4"),
		TranscriptionModel: getEnv("TRANSCRIPTION_MODEL", "whisper-1"),
		SpeechModel:        getEnv("SPEECH_MODEL", "tts-1"),
		SpeechVoice:        getEnv("SPEECH_VOICE", "alloy"),
		SpeechFormat:       getEnv("SPEECH_FORMAT", "mp3"),
		VoiceEnabled:       parseBool(getEnv("VOICE_ENABLED", "false"), false),
		BackendTimeout:     parseDuration(getEnv("BACKEND_TIMEOUT", "45s"), 45*time.Second),
		Logging: LoggingConfig{
			Level:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Encoding:     strings.ToLower(getEnv("LOG_ENCODING", "console")),
			Development:  parseBool(getEnv("LOG_DEVELOPMENT", "false"), false),
			EnableCaller: parseBool(getEnv("LOG_CALLER", "false"), false),
			ServiceName:  getEnv("SERVICE_NAME", "triad-server"),
		},
	}

	if cfg.Mode == "" {
		if cfg.APIKey != "" {
			cfg.Mode = ModeAuto
		} else {
			cfg.Mode = ModeSimulated
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Mode {
	case ModeLive, ModeAuto:
		if c.APIKey == "" {
			return fmt.Errorf("mode %q requires OPENAI_API_KEY", c.Mode)
		}
	case ModeSimulated:
	default:
		return fmt.Errorf("invalid MODE %q: want live, simulated, or auto", c.Mode)
	}

	return nil
}

func loadEnvFile() error {
	if err := godotenv.Load(); err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			// no .env file; environment variables are supplied externally
			return nil
		}
		return err
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}

	return strings.TrimSpace(fallback)
}

func parseBool(raw string, fallback bool) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}

	return value
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}

	return value
}
