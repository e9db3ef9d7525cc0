package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/fmueller/vidscribe/internal/pipeline"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
)

const (
	msgVideoURLRequired    = "Video URL is required"
	msgInvalidRequestBody  = "Invalid request body"
	msgTranscriptionFailed = "Failed to transcribe video"
)

// Transcriber is the part of the pipeline the HTTP surface depends on.
type Transcriber interface {
	Transcribe(ctx context.Context, videoURL string) (pipeline.Result, error)
}

type Options struct {
	// Comma separated list; empty means "*".
	AllowOrigins string
	Logger       *zap.Logger
	// BaseContext is handed to the pipeline for every request. Cancelling it
	// aborts in-flight extractions.
	BaseContext context.Context
}

type transcribeResponse struct {
	Transcription string `json:"transcription"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

type handler struct {
	svc    Transcriber
	logger *zap.Logger
	base   context.Context
}

func NewApp(svc Transcriber, opts Options) (*fiber.App, error) {
	if svc == nil {
		return nil, errors.New("transcriber is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	base := opts.BaseContext
	if base == nil {
		base = context.Background()
	}
	origins := strings.TrimSpace(opts.AllowOrigins)
	if origins == "" {
		origins = "*"
	}

	app := fiber.New(fiber.Config{
		AppName:               "vidscribe",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
	})

	app.Use(requestid.New())
	app.Use(requestLogger(logger))
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			logger.Error("panic while handling request",
				zap.Any("panic", e),
				zap.String("path", c.Path()),
				zap.Stack("stack"),
			)
		},
	}))
	app.Use(cors.New(cors.Config{AllowOrigins: origins}))

	h := &handler{svc: svc, logger: logger, base: base}
	app.Get("/health", h.health)
	app.Post("/transcribe", h.transcribe)

	return app, nil
}

func (h *handler) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *handler) transcribe(c *fiber.Ctx) error {
	videoURL, err := decodeVideoURL(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{
			Message: msgInvalidRequestBody,
			Error:   err.Error(),
		})
	}

	result, err := h.svc.Transcribe(h.base, videoURL)
	if err != nil {
		if errors.Is(err, pipeline.ErrVideoURLRequired) {
			return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Message: msgVideoURLRequired})
		}

		fields := []zap.Field{zap.Error(err), zap.String("request_id", requestID(c))}
		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) {
			fields = append(fields, zap.String("stage", string(stageErr.Stage)))
		}
		h.logger.Error("transcription request failed", fields...)

		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{
			Message: msgTranscriptionFailed,
			Error:   err.Error(),
		})
	}

	return c.JSON(transcribeResponse{Transcription: result.Text})
}

// decodeVideoURL reads the "videoUrl" member of a JSON object body. The key
// is matched exactly; an empty body, null or an absent key yield "".
func decodeVideoURL(c *fiber.Ctx) (string, error) {
	body := c.Body()
	if len(bytes.TrimSpace(body)) == 0 {
		return "", nil
	}

	decode := c.App().Config().JSONDecoder
	var fields map[string]json.RawMessage
	if err := decode(body, &fields); err != nil {
		return "", err
	}

	raw, ok := fields["videoUrl"]
	if !ok {
		return "", nil
	}
	var videoURL string
	if err := decode(raw, &videoURL); err != nil {
		return "", fmt.Errorf("videoUrl: %w", err)
	}
	return videoURL, nil
}

func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
		} else {
			logger.Error("unhandled request error", zap.Error(err), zap.String("path", c.Path()))
		}

		return c.Status(code).JSON(errorResponse{Message: http.StatusText(code)})
	}
}

func requestID(c *fiber.Ctx) string {
	return c.GetRespHeader(fiber.HeaderXRequestID)
}
