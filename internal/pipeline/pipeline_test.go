package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/fmueller/vidscribe/internal/stt"
	"github.com/fmueller/vidscribe/internal/workspace"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeExtractor struct {
	mu      sync.Mutex
	paths   []string
	payload func(videoURL string) string
	err     error
	block   bool
}

func (f *fakeExtractor) Extract(ctx context.Context, videoURL, outputPath string) (string, error) {
	f.mu.Lock()
	f.paths = append(f.paths, outputPath)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		// Simulate a partially written file left by a failed transcoder.
		_ = os.WriteFile(outputPath, []byte("partial"), 0o644)
		return "", f.err
	}

	payload := "audio:" + videoURL
	if f.payload != nil {
		payload = f.payload(videoURL)
	}
	if err := os.WriteFile(outputPath, []byte(payload), 0o644); err != nil {
		return "", err
	}
	return "fake", nil
}

func (f *fakeExtractor) recordedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

type fakeTranscriber struct {
	mu       sync.Mutex
	calls    int
	requests []stt.Request
	text     func(audio []byte) string
	err      error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, req stt.Request) (string, error) {
	f.mu.Lock()
	f.calls++
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.err != nil {
		return "", f.err
	}
	if f.text != nil {
		return f.text(req.Audio), nil
	}
	return "hello world", nil
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newService(t *testing.T, extractor Extractor, transcriber stt.Transcriber, mutate ...func(*Options)) (*Service, *workspace.Workspace) {
	t.Helper()

	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)

	opts := Options{
		Extractor:   extractor,
		Transcriber: transcriber,
		Workspace:   ws,
		Model:       "whisper-1",
		Language:    "en",
	}
	for _, fn := range mutate {
		fn(&opts)
	}

	svc, err := New(opts)
	require.NoError(t, err)
	return svc, ws
}

func requireWorkDirEmpty(t *testing.T, ws *workspace.Workspace) {
	t.Helper()

	entries, err := os.ReadDir(ws.Dir())
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestTranscribeRejectsEmptyURLWithoutSideEffects(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "   ", "\n\t"} {
		extractor := &fakeExtractor{}
		transcriber := &fakeTranscriber{}
		svc, ws := newService(t, extractor, transcriber)

		_, err := svc.Transcribe(context.Background(), input)
		require.ErrorIs(t, err, ErrVideoURLRequired)
		require.Empty(t, extractor.recordedPaths())
		require.Zero(t, transcriber.callCount())
		requireWorkDirEmpty(t, ws)
	}
}

func TestTranscribeReturnsTranscriberTextUnmodified(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{}
	transcriber := &fakeTranscriber{text: func([]byte) string { return "  Hello, World!\n" }}
	svc, ws := newService(t, extractor, transcriber)

	result, err := svc.Transcribe(context.Background(), "https://valid.example/video")
	require.NoError(t, err)
	require.Equal(t, "  Hello, World!\n", result.Text)
	require.Equal(t, "fake", result.Source)

	require.Len(t, transcriber.requests, 1)
	req := transcriber.requests[0]
	require.Equal(t, []byte("audio:https://valid.example/video"), req.Audio)
	require.Equal(t, "whisper-1", req.Model)
	require.Equal(t, "en", req.Language)
	require.Contains(t, req.FileName, ".mp3")

	requireWorkDirEmpty(t, ws)
}

func TestTranscribeExtractionFailureSkipsTranscription(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{err: errors.New("yt-dlp: ERROR: Unsupported URL")}
	transcriber := &fakeTranscriber{}
	svc, ws := newService(t, extractor, transcriber)

	_, err := svc.Transcribe(context.Background(), "https://valid.example/not-a-video")
	require.Error(t, err)
	require.Equal(t, "yt-dlp: ERROR: Unsupported URL", err.Error())

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, StageExtract, stageErr.Stage)
	require.Zero(t, transcriber.callCount())
	requireWorkDirEmpty(t, ws)
}

func TestTranscribeServiceFailureStillRemovesArtifact(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{}
	transcriber := &fakeTranscriber{err: stt.ErrMissingAPIKey}
	svc, ws := newService(t, extractor, transcriber)

	_, err := svc.Transcribe(context.Background(), "https://valid.example/video")
	require.ErrorIs(t, err, stt.ErrMissingAPIKey)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, StageTranscribe, stageErr.Stage)
	require.Len(t, extractor.recordedPaths(), 1)
	requireWorkDirEmpty(t, ws)
}

func TestTranscribeLoadFailureWhenExtractorWroteNothing(t *testing.T) {
	t.Parallel()

	transcriber := &fakeTranscriber{}
	svc, _ := newService(t, extractorFunc(func(context.Context, string, string) (string, error) {
		return "silent", nil
	}), transcriber)

	_, err := svc.Transcribe(context.Background(), "https://valid.example/video")
	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, StageLoad, stageErr.Stage)
	require.Zero(t, transcriber.callCount())
}

func TestTranscribeExtractTimeout(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{block: true}
	svc, ws := newService(t, extractor, &fakeTranscriber{}, func(o *Options) {
		o.ExtractTimeout = 20 * time.Millisecond
	})

	_, err := svc.Transcribe(context.Background(), "https://valid.example/slow")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	requireWorkDirEmpty(t, ws)
}

func TestTranscribeConcurrentRequestsDoNotInterfere(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{}
	transcriber := &fakeTranscriber{text: func(audio []byte) string { return "transcript of " + string(audio) }}
	svc, ws := newService(t, extractor, transcriber)

	const n = 16
	results := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := svc.Transcribe(context.Background(), fmt.Sprintf("https://valid.example/video/%d", i))
			results[i] = result.Text
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, fmt.Sprintf("transcript of audio:https://valid.example/video/%d", i), results[i])
	}

	paths := extractor.recordedPaths()
	unique := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		unique[path] = struct{}{}
	}
	require.Len(t, unique, n)
	requireWorkDirEmpty(t, ws)
}

func TestTranscribeLogsPhaseTransitions(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	svc, _ := newService(t, &fakeExtractor{}, &fakeTranscriber{}, func(o *Options) {
		o.Logger = zap.New(core)
	})

	_, err := svc.Transcribe(context.Background(), "https://valid.example/video")
	require.NoError(t, err)

	var messages []string
	for _, entry := range logs.All() {
		messages = append(messages, entry.Message)
	}
	require.Equal(t, []string{
		"processing video",
		"audio extracted",
		"starting transcription",
		"transcription completed",
	}, messages)
}

func TestWaitReturnsAfterInFlightArtifactIsReleased(t *testing.T) {
	t.Parallel()

	started := make(chan string, 1)
	requestCtx, abort := context.WithCancel(context.Background())
	svc, ws := newService(t, extractorFunc(func(ctx context.Context, _ string, outputPath string) (string, error) {
		if err := os.WriteFile(outputPath, []byte("partial"), 0o644); err != nil {
			return "", err
		}
		started <- outputPath
		<-ctx.Done()
		return "", ctx.Err()
	}), &fakeTranscriber{})

	require.NoError(t, svc.Wait(context.Background()))

	errs := make(chan error, 1)
	go func() {
		_, err := svc.Transcribe(requestCtx, "https://valid.example/video")
		errs <- err
	}()
	path := <-started

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, svc.Wait(short), context.DeadlineExceeded)

	abort()
	waitCtx, cancelWait := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelWait()
	require.NoError(t, svc.Wait(waitCtx))

	require.NoFileExists(t, path)
	requireWorkDirEmpty(t, ws)
	require.ErrorIs(t, <-errs, context.Canceled)
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)

	_, err = New(Options{Transcriber: &fakeTranscriber{}, Workspace: ws})
	require.Error(t, err)
	_, err = New(Options{Extractor: &fakeExtractor{}, Workspace: ws})
	require.Error(t, err)
	_, err = New(Options{Extractor: &fakeExtractor{}, Transcriber: &fakeTranscriber{}})
	require.Error(t, err)
}

type extractorFunc func(ctx context.Context, videoURL, outputPath string) (string, error)

func (f extractorFunc) Extract(ctx context.Context, videoURL, outputPath string) (string, error) {
	return f(ctx, videoURL, outputPath)
}
