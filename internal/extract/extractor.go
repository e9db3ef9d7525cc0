package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

var ErrNoSourceAvailable = errors.New("no audio source available")
var ErrUnsupportedURL = errors.New("unsupported video URL")

// Source produces an audio-only byte stream for a video URL.
type Source interface {
	Name() string
	Available() bool
	Accepts(u *url.URL) bool
	Stream(ctx context.Context, videoURL string, w io.Writer) error
}

// Transcoder converts whatever input writes into the target audio format at outputPath.
type Transcoder interface {
	Transcode(ctx context.Context, input func(io.Writer) error, outputPath string) error
}

type Options struct {
	// Preferred source name; empty or "auto" keeps the default priority order.
	Preferred  string
	YTDLPPath  string
	FFmpegPath string
	Bitrate    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

type Extractor struct {
	sources    []Source
	preferred  string
	transcoder Transcoder
	logger     *zap.Logger
}

func New(opts Options) *Extractor {
	sources := DefaultSources(opts.YTDLPPath, opts.HTTPClient)
	transcoder := NewFFmpeg(opts.FFmpegPath, opts.Bitrate)
	return NewWithSources(sources, opts.Preferred, transcoder, opts.Logger)
}

func NewWithSources(sources []Source, preferred string, transcoder Transcoder, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		sources:    sources,
		preferred:  preferred,
		transcoder: transcoder,
		logger:     logger,
	}
}

// DefaultSources lists sources in priority order.
func DefaultSources(ytdlpPath string, client *http.Client) []Source {
	return []Source{newYTDLPSource(ytdlpPath), newHTTPSource(client)}
}

func (e *Extractor) Sources() []Source {
	return e.sources
}

// Extract writes the audio track of videoURL to outputPath and returns the
// name of the source that produced it. Sources are tried in order; partial
// output from a failed attempt is removed before the next one.
func (e *Extractor) Extract(ctx context.Context, videoURL, outputPath string) (string, error) {
	if strings.TrimSpace(outputPath) == "" {
		return "", errors.New("output path is required")
	}

	parsed, err := ParseVideoURL(videoURL)
	if err != nil {
		return "", err
	}

	ordered, err := orderSources(e.sources, e.preferred)
	if err != nil {
		return "", err
	}

	var errs []error
	for _, source := range ordered {
		if !source.Available() {
			errs = append(errs, fmt.Errorf("%s: source is not available", source.Name()))
			continue
		}
		if !source.Accepts(parsed) {
			continue
		}

		e.logger.Debug("extracting audio", zap.String("source", source.Name()), zap.String("output", outputPath))
		err := e.transcoder.Transcode(ctx, func(w io.Writer) error {
			return source.Stream(ctx, videoURL, w)
		}, outputPath)
		if err == nil {
			return source.Name(), nil
		}

		if cleanupErr := removePartialOutput(outputPath); cleanupErr != nil {
			errs = append(errs, fmt.Errorf("%s: cleanup partial audio %q: %w", source.Name(), outputPath, cleanupErr))
		}

		err = fmt.Errorf("%s: %w", source.Name(), err)
		errs = append(errs, err)

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		e.logger.Warn("audio source failed", zap.String("source", source.Name()), zap.Error(err))
	}

	if len(errs) == 0 {
		return "", ErrNoSourceAvailable
	}

	return "", fmt.Errorf("extract audio: %w", errors.Join(errs...))
}

// ParseVideoURL accepts absolute http and https URLs only.
func ParseVideoURL(raw string) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme must be http or https", ErrUnsupportedURL)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrUnsupportedURL)
	}
	return parsed, nil
}

// SelectSource returns the preferred source when it is available, or the
// first available source for "auto".
func SelectSource(sources []Source, preferred string) (Source, error) {
	if len(sources) == 0 {
		return nil, errors.New("no sources configured")
	}

	if preferred != "" && preferred != "auto" {
		for _, source := range sources {
			if source.Name() == preferred {
				if !source.Available() {
					return nil, fmt.Errorf("requested source %q is not available", preferred)
				}
				return source, nil
			}
		}
		return nil, fmt.Errorf("unknown source %q", preferred)
	}

	for _, source := range sources {
		if source.Available() {
			return source, nil
		}
	}

	return nil, ErrNoSourceAvailable
}

func orderSources(sources []Source, preferred string) ([]Source, error) {
	if len(sources) == 0 {
		return nil, errors.New("no sources configured")
	}

	if preferred == "" || preferred == "auto" {
		return sources, nil
	}

	preferredIndex := -1
	for i, source := range sources {
		if source.Name() == preferred {
			preferredIndex = i
			break
		}
	}
	if preferredIndex == -1 {
		return nil, fmt.Errorf("unknown source %q", preferred)
	}

	ordered := make([]Source, 0, len(sources))
	ordered = append(ordered, sources[preferredIndex])
	for i, source := range sources {
		if i == preferredIndex {
			continue
		}
		ordered = append(ordered, source)
	}

	return ordered, nil
}

func removePartialOutput(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}

	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return err
}

func commandAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func commandError(name string, err error, stderr string) error {
	trimmed := strings.TrimSpace(stderr)
	if trimmed != "" {
		return fmt.Errorf("%s failed: %w (%s)", name, err, lastLines(trimmed, 5))
	}
	return fmt.Errorf("%s failed: %w", name, err)
}

func lastLines(text string, n int) string {
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}
