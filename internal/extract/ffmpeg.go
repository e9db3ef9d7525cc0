package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

const defaultBitrate = "64k"

// waitDelay bounds how long a killed process may hold its output pipes open.
const waitDelay = 2 * time.Second

// FFmpeg transcodes a stream read from stdin into mono 16 kHz MP3.
type FFmpeg struct {
	Executable string
	Bitrate    string
}

func NewFFmpeg(executable, bitrate string) *FFmpeg {
	return &FFmpeg{Executable: executable, Bitrate: bitrate}
}

func (f *FFmpeg) Available() bool {
	return commandAvailable(f.binary())
}

func (f *FFmpeg) Transcode(ctx context.Context, input func(io.Writer) error, outputPath string) error {
	if outputPath == "" {
		return fmt.Errorf("output path is required")
	}

	if err := os.MkdirAll(filepath.Dir(filepath.Clean(outputPath)), 0o755); err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, f.binary(), f.args(outputPath)...)
	cmd.WaitDelay = waitDelay
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open %s stdin: %w", f.binary(), err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", f.binary(), err)
	}

	feedErr := input(stdin)
	_ = stdin.Close()
	waitErr := cmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if waitErr != nil {
		runErr := commandError(f.binary(), waitErr, stderr.String())
		// A broken pipe only means the transcoder quit first; its own error says why.
		if feedErr != nil && !errors.Is(feedErr, syscall.EPIPE) && !errors.Is(feedErr, os.ErrClosed) {
			return errors.Join(feedErr, runErr)
		}
		return runErr
	}

	return feedErr
}

func (f *FFmpeg) args(outputPath string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", "pipe:0",
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "libmp3lame",
		"-b:a", f.bitrate(),
		"-f", "mp3",
		outputPath,
	}
}

func (f *FFmpeg) binary() string {
	if f.Executable == "" {
		return "ffmpeg"
	}
	return f.Executable
}

func (f *FFmpeg) bitrate() string {
	if f.Bitrate == "" {
		return defaultBitrate
	}
	return f.Bitrate
}
