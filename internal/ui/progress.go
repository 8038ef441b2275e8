package ui

import (
	"fmt"
	"io"
	"sync"
)

// Progress renders generation progress: the spinner message tracks how much
// of the page has arrived, and with an echo writer every delta is copied
// out as it lands. It implements ai.ProgressObserver.
type Progress struct {
	spinner *Spinner
	label   string
	echo    io.Writer

	mu      sync.Mutex
	updates int
	length  int
}

// NewProgress returns a Progress. Both sp and echo may be nil.
func NewProgress(sp *Spinner, label string, echo io.Writer) *Progress {
	return &Progress{spinner: sp, label: label, echo: echo}
}

// Progress receives a snapshot from the generator.
func (p *Progress) Progress(delta, total string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.updates++
	p.length = len(total)
	if p.echo != nil && delta != "" {
		fmt.Fprint(p.echo, delta)
	}
	if p.spinner != nil {
		p.spinner.Update(fmt.Sprintf("%s  %s received", p.label, FormatBytes(p.length)))
	}
}

// Updates returns how many snapshots arrived and the last document length.
func (p *Progress) Updates() (count, length int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.updates, p.length
}

// FormatBytes renders n as B, KB or MB with one decimal.
func FormatBytes(n int) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	}
}
