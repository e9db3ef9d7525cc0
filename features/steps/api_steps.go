//go:build integration

package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"

	"github.com/cucumber/godog"
	"github.com/fmueller/vidscribe/internal/httpapi"
	"github.com/fmueller/vidscribe/internal/pipeline"
	"github.com/fmueller/vidscribe/internal/stt"
	"github.com/fmueller/vidscribe/internal/workspace"
	"github.com/gofiber/fiber/v2"
)

// fakeExtractor writes a placeholder audio file or fails with a fixed message.
type fakeExtractor struct {
	failure string
}

func (f *fakeExtractor) Extract(_ context.Context, videoURL, outputPath string) (string, error) {
	if f.failure != "" {
		return "", errors.New(f.failure)
	}
	return "fake", os.WriteFile(outputPath, []byte("audio of "+videoURL), 0o644)
}

type fakeTranscriber struct {
	mu      sync.Mutex
	text    string
	failure string
	calls   int
}

func (f *fakeTranscriber) Transcribe(context.Context, stt.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.failure != "" {
		return "", errors.New(f.failure)
	}
	return f.text, nil
}

type apiContext struct {
	workDir     string
	extractor   *fakeExtractor
	transcriber *fakeTranscriber
	app         *fiber.App

	status int
	body   map[string]string
}

func (a *apiContext) reset() error {
	dir, err := os.MkdirTemp("", "vidscribe-features-")
	if err != nil {
		return err
	}
	a.workDir = dir
	a.extractor = &fakeExtractor{}
	a.transcriber = &fakeTranscriber{}
	a.app = nil
	a.status = 0
	a.body = nil
	return nil
}

func (a *apiContext) server() (*fiber.App, error) {
	if a.app != nil {
		return a.app, nil
	}

	ws, err := workspace.New(a.workDir)
	if err != nil {
		return nil, err
	}
	svc, err := pipeline.New(pipeline.Options{
		Extractor:   a.extractor,
		Transcriber: a.transcriber,
		Workspace:   ws,
	})
	if err != nil {
		return nil, err
	}
	a.app, err = httpapi.NewApp(svc, httpapi.Options{})
	return a.app, err
}

func (a *apiContext) transcriptionServiceReturns(text string) error {
	a.transcriber.text = text
	return nil
}

func (a *apiContext) transcriptionServiceFails(message string) error {
	a.transcriber.failure = message
	return nil
}

func (a *apiContext) extractorRejects(message string) error {
	a.extractor.failure = message
	return nil
}

func (a *apiContext) send(method, path, body string) error {
	app, err := a.server()
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	a.status = resp.StatusCode
	a.body = map[string]string{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &a.body); err != nil {
			return fmt.Errorf("decode response %q: %w", raw, err)
		}
	}
	return nil
}

func (a *apiContext) sendGET(path string) error {
	return a.send(http.MethodGet, path, "")
}

func (a *apiContext) postWithBody(path string, body *godog.DocString) error {
	return a.send(http.MethodPost, path, body.Content)
}

func (a *apiContext) requestTranscription(videoURL string) error {
	payload, err := json.Marshal(map[string]string{"videoUrl": videoURL})
	if err != nil {
		return err
	}
	return a.send(http.MethodPost, "/transcribe", string(payload))
}

func (a *apiContext) responseStatusShouldBe(expected int) error {
	if a.status != expected {
		return fmt.Errorf("expected status %d, got %d (body %v)", expected, a.status, a.body)
	}
	return nil
}

func (a *apiContext) responseFieldShouldBe(field, expected string) error {
	got, ok := a.body[field]
	if !ok {
		return fmt.Errorf("response has no field %q: %v", field, a.body)
	}
	if got != expected {
		return fmt.Errorf("expected %s %q, got %q", field, expected, got)
	}
	return nil
}

func (a *apiContext) transcriptionServiceNotCalled() error {
	a.transcriber.mu.Lock()
	defer a.transcriber.mu.Unlock()

	if a.transcriber.calls != 0 {
		return fmt.Errorf("expected no transcription calls, got %d", a.transcriber.calls)
	}
	return nil
}

func (a *apiContext) noArtifactsRemain() error {
	entries, err := os.ReadDir(a.workDir)
	if err != nil {
		return err
	}
	if len(entries) != 0 {
		return fmt.Errorf("expected empty work directory, found %d entries", len(entries))
	}
	return nil
}

// InitializeAPIScenario registers the HTTP API steps.
func InitializeAPIScenario(ctx *godog.ScenarioContext) {
	a := &apiContext{}

	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		return ctx, a.reset()
	})
	ctx.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		if a.workDir != "" {
			_ = os.RemoveAll(a.workDir)
		}
		return ctx, err
	})

	ctx.Step(`^the transcription service returns "([^"]*)"$`, a.transcriptionServiceReturns)
	ctx.Step(`^the transcription service fails with "([^"]*)"$`, a.transcriptionServiceFails)
	ctx.Step(`^the extractor rejects the URL with "([^"]*)"$`, a.extractorRejects)
	ctx.Step(`^I send a GET request to "([^"]*)"$`, a.sendGET)
	ctx.Step(`^I POST to "([^"]*)" with body:$`, a.postWithBody)
	ctx.Step(`^I request a transcription of "([^"]*)"$`, a.requestTranscription)
	ctx.Step(`^the response status should be (\d+)$`, a.responseStatusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, a.responseFieldShouldBe)
	ctx.Step(`^the transcription service should not have been called$`, a.transcriptionServiceNotCalled)
	ctx.Step(`^no audio artifacts should remain$`, a.noArtifactsRemain)
}
