package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port        int
	MaxUploadMB int

	// Analysis service
	AnalysisURL          string
	AnalysisAPIKey       string
	AnalysisTokenURL     string // OAuth2 client-credentials, optional
	AnalysisClientID     string
	AnalysisClientSecret string
	AnalysisTimeout      time.Duration
	AnalysisMaxRetries   int
	CachePath            string // sqlite results cache, empty disables

	// Audio
	AudioOutput  string // "stream" or "speaker"
	InitialGain  float64
	RampDuration time.Duration

	// Scene
	FrameRate        int // simulation frames per second
	ScenePublishRate int // snapshots per second sent to clients

	// Optional mood descriptions
	OllamaURL   string
	OllamaModel string
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		Port:        envInt("HARMONIA_PORT", 8080),
		MaxUploadMB: envInt("MAX_UPLOAD_MB", 50),

		AnalysisURL:          envStr("ANALYSIS_URL", "http://localhost:5000/api/analyze"),
		AnalysisAPIKey:       envStr("ANALYSIS_API_KEY", ""),
		AnalysisTokenURL:     envStr("ANALYSIS_TOKEN_URL", ""),
		AnalysisClientID:     envStr("ANALYSIS_CLIENT_ID", ""),
		AnalysisClientSecret: envStr("ANALYSIS_CLIENT_SECRET", ""),
		AnalysisTimeout:      envDuration("ANALYSIS_TIMEOUT", 120*time.Second),
		AnalysisMaxRetries:   envInt("ANALYSIS_MAX_RETRIES", 2),
		CachePath:            envStr("CACHE_PATH", "harmonia.db"),

		AudioOutput:  envStr("AUDIO_OUTPUT", "stream"),
		InitialGain:  envFloat("INITIAL_GAIN", 0.1),
		RampDuration: envDuration("RAMP_DURATION", 2500*time.Millisecond),

		FrameRate:        envInt("FRAME_RATE", 60),
		ScenePublishRate: envInt("SCENE_PUBLISH_RATE", 30),

		OllamaURL:   envStr("OLLAMA_URL", ""),
		OllamaModel: envStr("OLLAMA_MODEL", "qwen3:8b"),
	}
}

func envStr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// envDuration accepts Go durations ("2.5s") or plain seconds ("120").
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	return fallback
}
