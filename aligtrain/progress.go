package aligtrain

import (
	"os"

	"github.com/schollz/progressbar/v3"
)

// progress wraps a bar which is only rendered when the
// Config asks for it.
// A nil *progress ignores every call.
type progress struct {
	bar *progressbar.ProgressBar
}

func newProgress(cfg *Config, desc string, total int) *progress {
	if !cfg.ShowProgress || total == 0 {
		return nil
	}
	w := cfg.Progress
	if w == nil {
		w = os.Stderr
	}
	return &progress{
		bar: progressbar.NewOptions(total,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(desc),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		),
	}
}

// Step marks one more batch as done.
func (p *progress) Step() {
	if p != nil {
		p.bar.Add(1)
	}
}

// Done erases the bar.
func (p *progress) Done() {
	if p != nil {
		p.bar.Finish()
	}
}
