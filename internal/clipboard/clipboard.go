package clipboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

var ErrUnavailable = errors.New("no clipboard command available")

const defaultTimeout = 4 * time.Second

type tool struct {
	name string
	args []string
	// xclip keeps running to serve the selection, so it is started and
	// released instead of waited on.
	detach bool
}

// Copier writes text to the system clipboard through the first available
// platform tool.
type Copier struct {
	GOOS     string
	LookPath func(string) (string, error)
	Timeout  time.Duration
}

func New() *Copier {
	return &Copier{GOOS: runtime.GOOS, LookPath: exec.LookPath, Timeout: defaultTimeout}
}

// CopyText copies value with the default Copier.
func CopyText(ctx context.Context, value string) error {
	return New().Copy(ctx, value)
}

func (c *Copier) Copy(ctx context.Context, value string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	t, path, err := c.detect()
	if err != nil {
		return err
	}
	if t.detach {
		return copyDetached(path, t.args, value)
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	copyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(copyCtx, path, t.args...)
	cmd.Stdin = strings.NewReader(value)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if err := cmd.Run(); err != nil {
		if errors.Is(copyCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("copy to clipboard via %s timed out: %w", t.name, copyCtx.Err())
		}
		return fmt.Errorf("copy to clipboard via %s: %w", t.name, err)
	}
	return nil
}

func (c *Copier) candidates() []tool {
	if c.GOOS == "darwin" {
		return []tool{{name: "pbcopy"}}
	}
	return []tool{
		{name: "wl-copy"},
		{name: "xclip", args: []string{"-selection", "clipboard", "-in", "-silent"}, detach: true},
		{name: "xsel", args: []string{"--clipboard", "--input"}},
	}
}

func (c *Copier) detect() (tool, string, error) {
	lookPath := c.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	for _, t := range c.candidates() {
		if path, err := lookPath(t.name); err == nil {
			return t, path, nil
		}
	}
	return tool{}, "", ErrUnavailable
}

func copyDetached(path string, args []string, value string) error {
	cmd := exec.Command(path, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open clipboard stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start clipboard command: %w", err)
	}

	if _, err := io.WriteString(stdin, value); err != nil {
		_ = stdin.Close()
		_ = cmd.Process.Kill()
		return fmt.Errorf("write clipboard data: %w", err)
	}
	if err := stdin.Close(); err != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("close clipboard stdin: %w", err)
	}

	_ = cmd.Process.Release()
	return nil
}
