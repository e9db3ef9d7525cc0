package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fmueller/vidscribe/internal/httpapi"
	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(app *appState) *cobra.Command {
	var port string
	var workDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP transcription server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := app.cfg
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("work-dir") {
				cfg.WorkDir = workDir
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			app.cfg = cfg
			return app.runServe(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "Listening port (overrides PORT)")
	cmd.Flags().StringVar(&workDir, "work-dir", "", "Directory for temporary audio files (overrides WORK_DIR)")
	return cmd
}

func (a *appState) runServe(ctx context.Context) error {
	cfg := a.cfg
	logger := a.log()

	svc, ws, err := a.buildPipeline(cfg)
	if err != nil {
		return err
	}

	if removed, err := ws.Sweep(cfg.SweepAge); err != nil {
		logger.Warn("failed to sweep stale audio artifacts", zap.String("dir", ws.Dir()), zap.Error(err))
	} else if removed > 0 {
		logger.Info("removed stale audio artifacts", zap.Int("count", removed), zap.String("dir", ws.Dir()))
	}
	if cfg.OpenAIAPIKey == "" {
		logger.Warn("OPENAI_API_KEY is not set; transcription requests will fail")
	}

	// Requests outlive the signal context so that shutdown can drain them.
	requestCtx, abortRequests := context.WithCancel(context.Background())
	defer abortRequests()

	server, err := httpapi.NewApp(svc, httpapi.Options{
		AllowOrigins: cfg.CORSAllowOrigins,
		Logger:       logger,
		BaseContext:  requestCtx,
	})
	if err != nil {
		return err
	}

	logger.Info("server listening",
		zap.String("addr", cfg.Addr()),
		zap.String("work_dir", ws.Dir()),
		zap.String("model", cfg.TranscribeModel),
	)
	return runServer(ctx, server, serverOptions{
		addr:            cfg.Addr(),
		shutdownTimeout: cfg.ShutdownTimeout,
		abort:           abortRequests,
		drain:           svc.Wait,
		logger:          logger,
	})
}

// abortGrace bounds how long aborted requests get to clean up their artifacts.
const abortGrace = 5 * time.Second

type serverOptions struct {
	addr            string
	shutdownTimeout time.Duration
	// abort cancels in-flight requests once the drain deadline has passed.
	abort context.CancelFunc
	// drain blocks until every request has finished its cleanup.
	drain  func(context.Context) error
	logger *zap.Logger
}

// runServer serves until ctx is done, then drains in-flight requests for at
// most shutdownTimeout before aborting them.
func runServer(ctx context.Context, server *fiber.App, opts serverOptions) error {
	logger := opts.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- server.Listen(opts.addr)
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", opts.addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("timeout", opts.shutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.shutdownTimeout)
	defer cancel()

	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("aborting in-flight requests", zap.Error(err))
		if opts.abort != nil {
			opts.abort()
		}
		if opts.drain != nil {
			graceCtx, cancelGrace := context.WithTimeout(context.Background(), abortGrace)
			defer cancelGrace()
			if drainErr := opts.drain(graceCtx); drainErr != nil {
				logger.Warn("aborted requests did not finish cleanup", zap.Error(drainErr))
			}
		}
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
