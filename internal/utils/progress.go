package utils

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// Progress represents a progress bar using mpb
type Progress struct {
	container *mpb.Progress
	bar       *mpb.Bar
	enabled   bool

	mu          sync.Mutex
	description string
}

var descLength = 24

// NewProgress creates a new progress bar with the given total count. A
// total of zero leaves the bar open until SetTotal or Finish.
func NewProgress(total int, enabled bool) *Progress {
	p := &Progress{
		enabled: enabled && isTerminal(),
	}
	if !p.enabled {
		return p
	}

	// Add space before progress bar
	fmt.Fprintln(os.Stderr)

	p.container = mpb.New(
		mpb.WithOutput(os.Stderr),
		mpb.WithWidth(64),
		mpb.WithRefreshRate(100*time.Millisecond),
	)

	p.bar = p.container.New(int64(total),
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Any(func(decor.Statistics) string {
				return p.label()
			}, decor.WC{W: descLength, C: decor.DindentRight}),
			decor.Name("  "),
			decor.CountersNoUnit("%d/%d", decor.WC{C: decor.DindentRight}),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
		),
	)

	return p
}

func (p *Progress) label() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.description) > descLength {
		return ".." + p.description[len(p.description)-descLength+2:]
	}
	return p.description
}

// SetTotal updates the total of a bar created without one
func (p *Progress) SetTotal(total int) {
	if !p.enabled || p.bar == nil {
		return
	}
	p.bar.SetTotal(int64(total), false)
}

// Update updates the progress bar with current count and description
func (p *Progress) Update(current int, description string) {
	if !p.enabled || p.bar == nil {
		return
	}

	p.mu.Lock()
	p.description = description
	p.mu.Unlock()

	p.bar.SetCurrent(int64(current))
}

// Finish completes the progress bar and shuts down the container
func (p *Progress) Finish() {
	if !p.enabled || p.container == nil {
		return
	}

	// Close out bars that stopped short, e.g. after an error
	p.bar.SetTotal(-1, true)
	if !p.bar.Completed() {
		p.bar.Abort(false)
	}

	p.container.Wait()

	// Add space after progress bar
	fmt.Fprintln(os.Stderr)
}

// isTerminal checks if stderr is a terminal (TTY)
func isTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}
