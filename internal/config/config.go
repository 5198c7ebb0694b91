package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port int

	// Engine
	FFmpegPath     string  // decoder/encoder binary, "ffmpeg" on PATH by default
	AnalyzerBins   int     // frequency bins pushed to the presentation layer
	CrossfaderInit float64 // initial crossfader position, 0-100

	// Track library
	LibraryDir string

	// Recording
	RecordFormat  string // mp3 or ogg
	RecordBitrate string // e.g. "192k", mp3 only

	// Logging
	LogLevel string
	LogPath  string // empty = stdout only
}

// Load reads configuration from a .env file (if present) and the
// environment, with sane defaults. Existing env vars win over .env.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port: envInt("MIXD_PORT", 8080),

		FFmpegPath:     envStr("MIXD_FFMPEG_PATH", "ffmpeg"),
		AnalyzerBins:   envInt("MIXD_ANALYZER_BINS", 64),
		CrossfaderInit: envFloat("MIXD_CROSSFADER", 50),

		LibraryDir: envStr("MIXD_LIBRARY_DIR", "library"),

		RecordFormat:  envStr("MIXD_RECORD_FORMAT", "mp3"),
		RecordBitrate: envStr("MIXD_RECORD_BITRATE", "192k"),

		LogLevel: envStr("MIXD_LOG_LEVEL", "info"),
		LogPath:  envStr("MIXD_LOG_PATH", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
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
