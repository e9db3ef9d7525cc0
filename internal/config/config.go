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

const DefaultEnvFile = ".env"

// Config is built once at process start and handed to every component.
type Config struct {
	Port string

	OpenAIAPIKey       string
	OpenAIBaseURL      string
	TranscribeModel    string
	TranscribeLanguage string
	TranscribePrompt   string

	WorkDir       string
	CacheHome     string
	ExtractSource string
	YTDLPPath     string
	FFmpegPath    string
	AudioBitrate  string

	ExtractTimeout    time.Duration
	TranscribeTimeout time.Duration
	ShutdownTimeout   time.Duration
	SweepAge          time.Duration

	CORSAllowOrigins string
	LogLevel         string
	LogJSON          bool
}

func Default() Config {
	return Config{
		Port:              "3000",
		TranscribeModel:   "whisper-1",
		ExtractSource:     "auto",
		YTDLPPath:         "yt-dlp",
		FFmpegPath:        "ffmpeg",
		AudioBitrate:      "64k",
		ExtractTimeout:    10 * time.Minute,
		TranscribeTimeout: 5 * time.Minute,
		ShutdownTimeout:   10 * time.Second,
		SweepAge:          time.Hour,
		CORSAllowOrigins:  "*",
		LogLevel:          "info",
	}
}

// LoadEnvFile merges a dotenv file into the process environment without
// overriding variables that are already set. A missing default file is
// ignored; a missing explicitly requested file is an error.
func LoadEnvFile(path string, explicit bool) error {
	if strings.TrimSpace(path) == "" {
		path = DefaultEnvFile
	}

	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from the process environment.
func Load() (Config, error) {
	return FromLookup(os.LookupEnv)
}

func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	r := reader{lookup: lookup}

	cfg.Port = r.str("PORT", cfg.Port)
	cfg.OpenAIAPIKey = r.str("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = r.str("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.TranscribeModel = r.str("TRANSCRIBE_MODEL", cfg.TranscribeModel)
	cfg.TranscribeLanguage = strings.ToLower(r.str("TRANSCRIBE_LANGUAGE", cfg.TranscribeLanguage))
	cfg.TranscribePrompt = r.str("TRANSCRIBE_PROMPT", cfg.TranscribePrompt)
	cfg.WorkDir = r.str("WORK_DIR", cfg.WorkDir)
	cfg.CacheHome = r.str("XDG_CACHE_HOME", cfg.CacheHome)
	cfg.ExtractSource = r.str("EXTRACT_SOURCE", cfg.ExtractSource)
	cfg.YTDLPPath = r.str("YTDLP_PATH", cfg.YTDLPPath)
	cfg.FFmpegPath = r.str("FFMPEG_PATH", cfg.FFmpegPath)
	cfg.AudioBitrate = r.str("AUDIO_BITRATE", cfg.AudioBitrate)
	cfg.ExtractTimeout = r.duration("EXTRACT_TIMEOUT", cfg.ExtractTimeout)
	cfg.TranscribeTimeout = r.duration("TRANSCRIBE_TIMEOUT", cfg.TranscribeTimeout)
	cfg.ShutdownTimeout = r.duration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.SweepAge = r.duration("SWEEP_AGE", cfg.SweepAge)
	cfg.CORSAllowOrigins = r.str("CORS_ALLOW_ORIGINS", cfg.CORSAllowOrigins)
	cfg.LogLevel = r.str("LOG_LEVEL", cfg.LogLevel)
	cfg.LogJSON = r.logFormatJSON("LOG_FORMAT", cfg.LogJSON)

	if err := errors.Join(r.errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", c.Port)
	}

	switch c.ExtractSource {
	case "auto", "yt-dlp", "http":
	default:
		return fmt.Errorf("EXTRACT_SOURCE must be auto|yt-dlp|http, got %q", c.ExtractSource)
	}

	if strings.TrimSpace(c.TranscribeModel) == "" {
		return errors.New("TRANSCRIBE_MODEL must not be empty")
	}

	for name, value := range map[string]time.Duration{
		"EXTRACT_TIMEOUT":    c.ExtractTimeout,
		"TRANSCRIBE_TIMEOUT": c.TranscribeTimeout,
		"SHUTDOWN_TIMEOUT":   c.ShutdownTimeout,
		"SWEEP_AGE":          c.SweepAge,
	} {
		if value < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, value)
		}
	}

	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}

type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) str(key, fallback string) string {
	if value, ok := r.lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func (r *reader) duration(key string, fallback time.Duration) time.Duration {
	value := r.str(key, "")
	if value == "" {
		return fallback
	}
	if value == "0" {
		return 0
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid duration %q", key, value))
		return fallback
	}
	return parsed
}

func (r *reader) logFormatJSON(key string, fallback bool) bool {
	switch strings.ToLower(r.str(key, "")) {
	case "":
		return fallback
	case "json":
		return true
	case "console", "text":
		return false
	default:
		r.errs = append(r.errs, fmt.Errorf("%s must be console|json", key))
		return fallback
	}
}
