package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// Settings is the player configuration resolved from the environment.
type Settings struct {
	Port            string
	LogLevel        string
	LogFormat       string
	PlaylistURL     string
	LookaheadWindow int
	FetchTimeout    time.Duration
	FetchRateLimit  int
	OutputDir       string
	TickInterval    time.Duration
	PlaybackRate    float64
}

// FromEnv resolves Settings from environment variables, using defaults for
// anything unset or malformed.
func FromEnv() Settings {
	return Settings{
		Port:            GetEnv("PORT", "8080"),
		LogLevel:        GetEnv("LOG_LEVEL", "info"),
		LogFormat:       GetEnv("LOG_FORMAT", "json"),
		PlaylistURL:     GetEnv("PLAYLIST_URL", ""),
		LookaheadWindow: GetEnvInt("LOOKAHEAD_WINDOW", 5),
		FetchTimeout:    GetEnvDuration("FETCH_TIMEOUT", 15*time.Second),
		FetchRateLimit:  GetEnvInt("FETCH_RATE_LIMIT", 0),
		OutputDir:       GetEnv("OUTPUT_DIR", "./data/buffers"),
		TickInterval:    GetEnvDuration("TICK_INTERVAL", 250*time.Millisecond),
		PlaybackRate:    GetEnvFloat("PLAYBACK_RATE", 1.0),
	}
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvDuration returns the time.Duration value of the environment variable
// named by key (e.g. "250ms"), or fallback if unset or unparsable.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}

// GetEnvFloat returns the float value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid number.
func GetEnvFloat(key string, fallback float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return fallback
}
