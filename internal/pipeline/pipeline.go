package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fmueller/vidscribe/internal/stt"
	"github.com/fmueller/vidscribe/internal/workspace"
	"go.uber.org/zap"
)

var ErrVideoURLRequired = errors.New("video URL is required")

type Stage string

const (
	StageExtract    Stage = "extract"
	StageLoad       Stage = "load"
	StageTranscribe Stage = "transcribe"
)

// StageError records which step failed. Its message is the underlying
// error's, so callers see one flat failure shape regardless of stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

type Extractor interface {
	Extract(ctx context.Context, videoURL, outputPath string) (string, error)
}

type Options struct {
	Extractor   Extractor
	Transcriber stt.Transcriber
	Workspace   *workspace.Workspace
	Logger      *zap.Logger

	Model    string
	Language string
	Prompt   string

	// Zero disables the bound.
	ExtractTimeout    time.Duration
	TranscribeTimeout time.Duration
}

type Result struct {
	Text    string
	Source  string
	Elapsed time.Duration
}

// Service turns a video URL into a transcript.
type Service struct {
	opts   Options
	logger *zap.Logger
	active inflight
}

func New(opts Options) (*Service, error) {
	if opts.Extractor == nil {
		return nil, errors.New("extractor is required")
	}
	if opts.Transcriber == nil {
		return nil, errors.New("transcriber is required")
	}
	if opts.Workspace == nil {
		return nil, errors.New("workspace is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{opts: opts, logger: logger}, nil
}

func (s *Service) Transcribe(ctx context.Context, videoURL string) (Result, error) {
	videoURL = strings.TrimSpace(videoURL)
	if videoURL == "" {
		return Result{}, ErrVideoURLRequired
	}

	s.active.add()
	defer s.active.done()

	started := time.Now()
	log := s.logger.With(zap.String("video_url", videoURL))
	log.Info("processing video")

	artifact := s.opts.Workspace.Acquire()
	// Release logs its own failure; the request outcome is already decided.
	defer func() { _ = artifact.Release() }()

	source, err := s.extract(ctx, videoURL, artifact.Path)
	if err != nil {
		log.Error("audio extraction failed", zap.Error(err))
		return Result{}, &StageError{Stage: StageExtract, Err: err}
	}
	log.Info("audio extracted", zap.String("source", source), zap.Duration("elapsed", time.Since(started)))

	audio, err := os.ReadFile(artifact.Path)
	if err != nil {
		log.Error("reading extracted audio failed", zap.Error(err))
		return Result{}, &StageError{Stage: StageLoad, Err: fmt.Errorf("read extracted audio: %w", err)}
	}

	log.Info("starting transcription", zap.Int("bytes", len(audio)))
	transcribeStarted := time.Now()
	text, err := s.transcribe(ctx, audio, filepath.Base(artifact.Path))
	if err != nil {
		log.Error("transcription failed", zap.Error(err))
		return Result{}, &StageError{Stage: StageTranscribe, Err: err}
	}
	log.Info("transcription completed",
		zap.Duration("transcribe_elapsed", time.Since(transcribeStarted)),
		zap.Duration("elapsed", time.Since(started)),
	)

	return Result{Text: text, Source: source, Elapsed: time.Since(started)}, nil
}

// Wait blocks until no request is in progress, including the removal of its
// audio artifact, or until ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	return s.active.wait(ctx)
}

func (s *Service) extract(ctx context.Context, videoURL, outputPath string) (string, error) {
	ctx, cancel := withOptionalTimeout(ctx, s.opts.ExtractTimeout)
	defer cancel()

	return s.opts.Extractor.Extract(ctx, videoURL, outputPath)
}

func (s *Service) transcribe(ctx context.Context, audio []byte, fileName string) (string, error) {
	ctx, cancel := withOptionalTimeout(ctx, s.opts.TranscribeTimeout)
	defer cancel()

	return s.opts.Transcriber.Transcribe(ctx, stt.Request{
		Audio:    audio,
		FileName: fileName,
		Model:    s.opts.Model,
		Language: s.opts.Language,
		Prompt:   s.opts.Prompt,
	})
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// inflight counts running requests and signals when the count drops to zero.
type inflight struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func (f *inflight) add() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.n == 0 {
		f.idle = make(chan struct{})
	}
	f.n++
}

func (f *inflight) done() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.n--
	if f.n == 0 {
		close(f.idle)
	}
}

func (f *inflight) wait(ctx context.Context) error {
	f.mu.Lock()
	if f.n == 0 {
		f.mu.Unlock()
		return nil
	}
	idle := f.idle
	f.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
