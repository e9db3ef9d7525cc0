package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fmueller/vidscribe/internal/clipboard"
	"github.com/fmueller/vidscribe/internal/config"
	"github.com/fmueller/vidscribe/internal/extract"
	"github.com/fmueller/vidscribe/internal/logging"
	"github.com/fmueller/vidscribe/internal/pipeline"
	"github.com/fmueller/vidscribe/internal/platform"
	"github.com/fmueller/vidscribe/internal/stt"
	"github.com/fmueller/vidscribe/internal/version"
	"github.com/fmueller/vidscribe/internal/workspace"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

type appState struct {
	verbose    bool
	jsonLogs   bool
	noProgress bool
	envFile    string

	cfg       config.Config
	logger    *zap.Logger
	lookupEnv func(string) (string, bool)

	transcribeFn func(ctx context.Context, videoURL string) (pipeline.Result, error)
	copyFn       func(ctx context.Context, value string) error
}

func NewRootCmd() *cobra.Command {
	app := &appState{
		cfg:       config.Default(),
		lookupEnv: os.LookupEnv,
	}
	app.transcribeFn = app.transcribeVideo
	app.copyFn = clipboard.CopyText
	return newRootCmd(app)
}

func newRootCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "vidscribe",
		Short:         "Transcribe the audio track of online videos",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.initialize(cmd)
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	cmd.PersistentFlags().BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
	cmd.PersistentFlags().BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
	cmd.PersistentFlags().StringVar(&app.envFile, "env-file", app.envFile, "Load environment variables from this file (default .env if present)")

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newTranscribeCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func (a *appState) initialize(cmd *cobra.Command) error {
	explicit := cmd.Flags().Changed("env-file")
	if err := config.LoadEnvFile(a.envFile, explicit); err != nil {
		return err
	}

	lookup := a.lookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg, err := config.FromLookup(lookup)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(logging.Options{
		Verbose: a.verbose,
		JSON:    a.jsonLogs || cfg.LogJSON,
		Level:   cfg.LogLevel,
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

// buildPipeline wires the production collaborators for cfg.
func (a *appState) buildPipeline(cfg config.Config) (*pipeline.Service, *workspace.Workspace, error) {
	logger := a.log()

	dir, err := platform.ResolveWorkDir(cfg.WorkDir, cfg.CacheHome)
	if err != nil {
		return nil, nil, err
	}
	ws, err := workspace.New(dir, workspace.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}

	extractor := extract.New(extract.Options{
		Preferred:  cfg.ExtractSource,
		YTDLPPath:  cfg.YTDLPPath,
		FFmpegPath: cfg.FFmpegPath,
		Bitrate:    cfg.AudioBitrate,
		Logger:     logger,
	})
	if source, err := extract.SelectSource(extractor.Sources(), cfg.ExtractSource); err != nil {
		logger.Warn("no extraction source is ready; requests will fail until one is installed", zap.Error(err))
	} else {
		logger.Debug("extraction source selected", zap.String("source", source.Name()))
	}

	client, err := stt.NewOpenAI(stt.OpenAIOptions{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.TranscribeModel,
		Logger:  logger,
	})
	if err != nil {
		return nil, nil, err
	}

	svc, err := pipeline.New(pipeline.Options{
		Extractor:         extractor,
		Transcriber:       client,
		Workspace:         ws,
		Logger:            logger,
		Model:             client.Model().Name,
		Language:          cfg.TranscribeLanguage,
		Prompt:            cfg.TranscribePrompt,
		ExtractTimeout:    cfg.ExtractTimeout,
		TranscribeTimeout: cfg.TranscribeTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	return svc, ws, nil
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}
