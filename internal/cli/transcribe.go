package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fmueller/vidscribe/internal/clipboard"
	"github.com/fmueller/vidscribe/internal/pipeline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newTranscribeCmd(app *appState) *cobra.Command {
	var copyToClipboard bool

	cmd := &cobra.Command{
		Use:   "transcribe <video-url>",
		Short: "Transcribe the audio track of a video URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transcribeFn := app.transcribeFn
			if transcribeFn == nil {
				transcribeFn = app.transcribeVideo
			}
			copyFn := app.copyFn
			if copyFn == nil {
				copyFn = clipboard.CopyText
			}

			spin := startSpinner(os.Stderr, app.progressEnabled(), "Transcribing")
			result, err := transcribeFn(cmd.Context(), args[0])
			spin.Stop()
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.Text)
			if isBlankTranscript(result.Text) {
				app.log().Warn(noSpeechHint())
				return nil
			}
			if !copyToClipboard {
				return nil
			}

			if err := copyFn(cmd.Context(), result.Text); err != nil {
				if errors.Is(err, clipboard.ErrUnavailable) {
					app.log().Warn("clipboard tool unavailable; transcript left on stdout")
					return nil
				}
				app.log().Warn("failed to copy transcript to clipboard; transcript left on stdout", zap.Error(err))
				return nil
			}
			app.log().Info("transcript copied to clipboard")
			return nil
		},
	}

	cmd.Flags().BoolVar(&copyToClipboard, "copy", false, "Copy transcript to clipboard")
	return cmd
}

func (a *appState) transcribeVideo(ctx context.Context, videoURL string) (pipeline.Result, error) {
	svc, _, err := a.buildPipeline(a.cfg)
	if err != nil {
		return pipeline.Result{}, err
	}

	result, err := svc.Transcribe(ctx, videoURL)
	if err != nil {
		return pipeline.Result{}, err
	}
	a.log().Info("transcription finished",
		zap.String("source", result.Source),
		zap.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}
