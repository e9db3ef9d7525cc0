package extract

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"os/exec"
)

type ytdlpSource struct {
	executable string
}

func newYTDLPSource(executable string) Source {
	if executable == "" {
		executable = "yt-dlp"
	}
	return &ytdlpSource{executable: executable}
}

func (s *ytdlpSource) Name() string {
	return "yt-dlp"
}

func (s *ytdlpSource) Available() bool {
	return commandAvailable(s.executable)
}

func (s *ytdlpSource) Accepts(u *url.URL) bool {
	return u != nil && (u.Scheme == "http" || u.Scheme == "https")
}

// Stream writes the best audio-only format yt-dlp can find to w.
func (s *ytdlpSource) Stream(ctx context.Context, videoURL string, w io.Writer) error {
	args := []string{
		"--quiet", "--no-warnings", "--no-progress", "--no-playlist",
		"-f", "bestaudio/best",
		"-o", "-",
		"--", videoURL,
	}

	cmd := exec.CommandContext(ctx, s.executable, args...)
	cmd.WaitDelay = waitDelay
	var stderr bytes.Buffer
	cmd.Stdout = w
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return commandError(s.executable, err, stderr.String())
	}
	return nil
}
