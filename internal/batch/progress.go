package batch

import (
	"os"

	"github.com/schollz/progressbar/v3"
)

// newProgressBar returns a stderr progress bar, or nil when rendering is
// disabled or there is nothing to count.
func newProgressBar(total int, enabled bool) *progressbar.ProgressBar {
	if !enabled || total <= 0 {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("converting"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(24),
		progressbar.OptionClearOnFinish(),
	)
}
