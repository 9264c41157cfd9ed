// Package progressbar implements functionality of printing a progress
// bar to the terminal window
package progressbar

import (
	"fmt"
	"strings"
	"time"
)

// ProgressBar implements a terminal progress bar. Increment is safe to
// call from the goroutine driving the work being tracked; rendering
// happens on a private goroutine started by Display.
type ProgressBar struct {
	width       float64
	maxProgress float64

	incrementEvent chan struct{}
	closeEvent     chan struct{}
	closed         bool

	updateEvery time.Duration
}

// New returns a new progress bar that is width characters wide and
// reaches 100% after max Increment calls
func New(width, max int, updateEvery time.Duration) *ProgressBar {
	return &ProgressBar{
		width:          float64(width),
		maxProgress:    float64(max),
		incrementEvent: make(chan struct{}, max),
		closeEvent:     make(chan struct{}),
		updateEvery:    updateEvery,
	}
}

// Increment increments the internal progress counter. Each time an
// iteration of the tracked work is performed, Increment should be
// called.
func (p *ProgressBar) Increment() {
	if p.closed {
		return
	}
	select {
	case p.incrementEvent <- struct{}{}:
	default:
	}
}

// Close closes the progress bar so that it will no longer display to
// the screen
func (p *ProgressBar) Close() {
	if p.closed {
		return
	}
	p.closed = true
	close(p.closeEvent)
	fmt.Println() // Jump to next line after the printed bar
}

// Display starts rendering the progress bar. It should only be called
// once.
func (p *ProgressBar) Display() {
	go func() {
		tick := time.NewTicker(p.updateEvery)
		defer tick.Stop()

		currentProgress := 0.0
		start := time.Now()
		var bar strings.Builder

		for {
			select {
			case <-p.incrementEvent:
				if currentProgress < p.maxProgress {
					currentProgress++
				}
				continue

			case <-tick.C:

			case <-p.closeEvent:
				return
			}

			bar.Reset()
			bar.WriteString("|")

			currentProg := currentProgress / p.maxProgress * p.width
			for i := 0.0; i < currentProg; i++ {
				bar.WriteString("█")
			}
			for i := currentProg; i < p.width; i++ {
				bar.WriteString(" ")
			}
			bar.WriteString(fmt.Sprintf("| [%.2f%% | elapsed: %v]",
				currentProgress/p.maxProgress*100,
				time.Since(start).Round(time.Second)))

			fmt.Printf("\n\033[1A\033[K%v", bar.String())
		}
	}()
}
