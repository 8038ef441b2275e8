package ai

import (
	"regexp"
	"strings"
	"time"
)

const (
	// fenceWindow is how much of the document start is checked for an
	// opening code fence the model emitted despite instructions.
	fenceWindow      = 20
	progressInterval = 100 * time.Millisecond
)

var (
	openFenceInDelta = regexp.MustCompile("```html\\s*")
	openFenceInDoc   = regexp.MustCompile("```h?t?m?l?\\s*")
	closeFenceAtEnd  = regexp.MustCompile("```\\s*$")

	// fenceLanguage is what may follow a bare ``` that arrived on its own.
	fenceLanguage = regexp.MustCompile("\\A\\s*(?:html?|ht|h)?[^\\S\\n]*(?:\\n|\\z)")

	leadingFence  = regexp.MustCompile("\\A\\s*```html[^\\S\\n]*\\n?")
	trailingFence = regexp.MustCompile("\\n?[^\\S\\n]*```\\s*\\z")
)

// Accumulator owns the document text for a whole generation, across every
// attempt. Later attempts only append to it.
type Accumulator struct {
	doc      string
	batch    strings.Builder
	observer ProgressObserver
	now      func() time.Time
	interval time.Duration
	lastEmit time.Time
	// bareFence is set when a lone ``` opened the document, so a language
	// tag in the next delta is still part of the marker.
	bareFence bool
}

// NewAccumulator returns an accumulator that reports to obs (which may be nil).
func NewAccumulator(obs ProgressObserver) *Accumulator {
	return newAccumulator(obs, time.Now, progressInterval)
}

func newAccumulator(obs ProgressObserver, now func() time.Time, interval time.Duration) *Accumulator {
	return &Accumulator{
		observer: obs,
		now:      now,
		interval: interval,
		lastEmit: now(),
	}
}

// Append cleans delta of fence markers, appends it and, if the throttle
// window has passed, emits a snapshot. It returns the text actually appended.
func (a *Accumulator) Append(delta string) string {
	atStart := a.Blank()
	if len(a.doc) < fenceWindow && strings.Contains(a.doc+delta, "```html") {
		delta = openFenceInDelta.ReplaceAllString(delta, "")
		a.doc = openFenceInDoc.ReplaceAllString(a.doc, "")
	}
	if atStart && a.bareFence {
		delta = fenceLanguage.ReplaceAllString(delta, "")
	}
	if atStart && strings.HasPrefix(strings.TrimSpace(delta), "```") && strings.TrimSpace(closeFenceAtEnd.ReplaceAllString(delta, "")) == "" {
		a.bareFence = true
	}
	delta = closeFenceAtEnd.ReplaceAllString(delta, "")

	a.doc += delta
	a.batch.WriteString(delta)

	if a.observer != nil && a.now().Sub(a.lastEmit) >= a.interval {
		a.emit()
	}
	return delta
}

// Snapshot returns the pending batch and the full document without
// resetting anything.
func (a *Accumulator) Snapshot() ProgressSnapshot {
	return ProgressSnapshot{Delta: a.batch.String(), Total: a.doc}
}

// Flush emits whatever is still batched. Called at the end of each stream.
func (a *Accumulator) Flush() {
	if a.batch.Len() == 0 {
		return
	}
	if a.observer != nil {
		a.emit()
		return
	}
	a.batch.Reset()
}

func (a *Accumulator) emit() {
	snap := a.Snapshot()
	a.batch.Reset()
	a.lastEmit = a.now()
	a.observer.Progress(snap.Delta, snap.Total)
}

// String returns the accumulated document.
func (a *Accumulator) String() string {
	return a.doc
}

// Blank reports whether nothing but whitespace has been accumulated.
func (a *Accumulator) Blank() bool {
	return strings.TrimSpace(a.doc) == ""
}

// CleanFences strips a leading ```html marker line and a trailing ```
// marker line. It repeats until neither is present, so applying it to its
// own output is a no-op.
func CleanFences(doc string) string {
	for {
		cleaned := leadingFence.ReplaceAllString(doc, "")
		cleaned = trailingFence.ReplaceAllString(cleaned, "")
		if cleaned == doc {
			return cleaned
		}
		doc = cleaned
	}
}
