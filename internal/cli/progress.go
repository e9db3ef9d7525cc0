package cli

import (
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// spinner animates an indeterminate bar on w until Stop is called. The bar
// redraws itself on a timer, so nothing here drives it.
type spinner struct {
	bar  *progressbar.ProgressBar
	once sync.Once
}

func startSpinner(w io.Writer, enabled bool, description string) *spinner {
	s := &spinner{}
	if !enabled {
		return s
	}

	s.bar = progressbar.NewOptions(
		-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetSpinnerChangeInterval(120*time.Millisecond),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionClearOnFinish(),
		// Starts the clock before the bar's redraw goroutine exists.
		progressbar.OptionSetRenderBlankState(true),
	)
	return s
}

// Stop is safe to call more than once and on a disabled spinner.
func (s *spinner) Stop() {
	if s.bar == nil {
		return
	}
	s.once.Do(func() {
		_ = s.bar.Finish()
	})
}
