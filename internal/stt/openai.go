package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var ErrMissingAPIKey = errors.New("transcription API key is not configured")
var ErrAudioTooLarge = errors.New("audio exceeds the transcription upload limit")

const defaultFileName = "audio.mp3"

type Request struct {
	Audio []byte
	// FileName tells the service which container format the bytes are in.
	FileName string
	// Model overrides the client's default model when set.
	Model    string
	Language string
	Prompt   string
}

type Transcriber interface {
	Transcribe(ctx context.Context, req Request) (string, error)
}

type OpenAIOptions struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *zap.Logger
}

// OpenAIClient talks to the OpenAI audio transcription endpoint or any
// server that implements the same API.
type OpenAIClient struct {
	apiKey string
	model  Model
	client *openai.Client
	logger *zap.Logger
}

func NewOpenAI(opts OpenAIOptions) (*OpenAIClient, error) {
	model, err := ResolveModel(opts.Model, strings.TrimSpace(opts.BaseURL) != "")
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if baseURL := strings.TrimSpace(opts.BaseURL); baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}

	return &OpenAIClient{
		apiKey: opts.APIKey,
		model:  model,
		client: openai.NewClientWithConfig(cfg),
		logger: logger,
	}, nil
}

func (c *OpenAIClient) Model() Model {
	return c.model
}

func (c *OpenAIClient) Transcribe(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return "", ErrMissingAPIKey
	}
	if len(req.Audio) == 0 {
		return "", errors.New("audio payload is empty")
	}
	if c.model.MaxUploadBytes > 0 && int64(len(req.Audio)) > c.model.MaxUploadBytes {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrAudioTooLarge, len(req.Audio), c.model.MaxUploadBytes)
	}

	model := c.model.Name
	if strings.TrimSpace(req.Model) != "" {
		model = strings.TrimSpace(req.Model)
	}

	fileName := req.FileName
	if fileName == "" {
		fileName = defaultFileName
	}

	c.logger.Debug("sending transcription request",
		zap.String("model", model),
		zap.Int("bytes", len(req.Audio)),
		zap.String("language", req.Language),
	)
	started := time.Now()

	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    model,
		FilePath: fileName,
		Reader:   bytes.NewReader(req.Audio),
		Language: req.Language,
		Prompt:   req.Prompt,
		Format:   openai.AudioResponseFormatText,
	})
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}

	c.logger.Debug("transcription response received", zap.Duration("elapsed", time.Since(started)))
	// The text format terminates the transcript with a newline.
	return strings.TrimSuffix(resp.Text, "\n"), nil
}
