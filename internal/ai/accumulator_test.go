package ai

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is advanced by hand.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type recorder struct{ snaps []ProgressSnapshot }

func (r *recorder) Progress(delta, total string) {
	r.snaps = append(r.snaps, ProgressSnapshot{Delta: delta, Total: total})
}

func TestAccumulator_StripsOpeningFence(t *testing.T) {
	t.Parallel()
	acc := NewAccumulator(nil)

	acc.Append("```html\n")
	acc.Append("<!DOCTYPE html>")

	assert.Equal(t, "<!DOCTYPE html>", acc.String())
}

func TestAccumulator_StripsOpeningFenceSplitAcrossDeltas(t *testing.T) {
	t.Parallel()
	acc := NewAccumulator(nil)

	acc.Append("```html")
	acc.Append("\n<!DOCTYPE html>")

	assert.NotContains(t, acc.String(), "```")
	assert.Equal(t, "<!DOCTYPE html>", strings.TrimSpace(acc.String()))
}

func TestAccumulator_StripsLanguageAfterBareFence(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		deltas []string
	}{
		{"language in next delta", []string{"```", "html\n<!DOCTYPE html>"}},
		{"fence with newline", []string{"```\n", "html\n<!DOCTYPE html>"}},
		{"language alone", []string{"```", "html", "\n<!DOCTYPE html>"}},
		{"no language", []string{"```", "\n<!DOCTYPE html>"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := NewAccumulator(nil)
			for _, d := range tt.deltas {
				acc.Append(d)
			}
			assert.Equal(t, "<!DOCTYPE html>", acc.String())
			assert.Equal(t, "<!DOCTYPE html>", CleanFences(acc.String()))
		})
	}
}

func TestAccumulator_KeepsTextStartingWithH(t *testing.T) {
	t.Parallel()
	acc := NewAccumulator(nil)

	acc.Append("<h1>")
	acc.Append("html is fun</h1>")

	assert.Equal(t, "<h1>html is fun</h1>", acc.String())
}

func TestAccumulator_LeavesFenceLaterInDocument(t *testing.T) {
	t.Parallel()
	acc := NewAccumulator(nil)

	acc.Append("<!DOCTYPE html><html><body><pre>")
	acc.Append("```html example")

	assert.Contains(t, acc.String(), "```html example")
}

func TestAccumulator_StripsTrailingFenceFromDelta(t *testing.T) {
	t.Parallel()
	acc := NewAccumulator(nil)

	got := acc.Append("</html>\n```\n")

	assert.Equal(t, "</html>\n", got)
	assert.Equal(t, "</html>\n", acc.String())
}

func TestAccumulator_ThrottlesSnapshots(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{t: time.Unix(0, 0)}
	rec := &recorder{}
	acc := newAccumulator(rec, clock.now, 100*time.Millisecond)

	acc.Append("a")
	clock.advance(50 * time.Millisecond)
	acc.Append("b")
	assert.Empty(t, rec.snaps)

	clock.advance(50 * time.Millisecond)
	acc.Append("c")
	require.Len(t, rec.snaps, 1)
	assert.Equal(t, ProgressSnapshot{Delta: "abc", Total: "abc"}, rec.snaps[0])

	clock.advance(10 * time.Millisecond)
	acc.Append("d")
	assert.Len(t, rec.snaps, 1)

	acc.Flush()
	require.Len(t, rec.snaps, 2)
	assert.Equal(t, ProgressSnapshot{Delta: "d", Total: "abcd"}, rec.snaps[1])

	acc.Flush()
	assert.Len(t, rec.snaps, 2, "flush with an empty batch emits nothing")
}

func TestAccumulator_NoObserver(t *testing.T) {
	t.Parallel()
	acc := NewAccumulator(nil)

	acc.Append("x")
	acc.Flush()

	assert.Equal(t, ProgressSnapshot{Delta: "", Total: "x"}, acc.Snapshot())
}

func TestAccumulator_Blank(t *testing.T) {
	t.Parallel()
	acc := NewAccumulator(nil)
	assert.True(t, acc.Blank())

	acc.Append("  \n")
	assert.True(t, acc.Blank())

	acc.Append("<")
	assert.False(t, acc.Blank())
}

func TestCleanFences(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fences", "<!DOCTYPE html><html></html>", "<!DOCTYPE html><html></html>"},
		{"both fences", "```html\n<html></html>\n```\n", "<html></html>"},
		{"leading only", "```html\n<html></html>", "<html></html>"},
		{"trailing only", "<html></html>\n```", "<html></html>"},
		{"stacked fences", "```html\n```html\n<html></html>\n```\n```", "<html></html>"},
		{"fence inside content", "<pre>\n```\n</pre>", "<pre>\n```\n</pre>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CleanFences(tt.in))
		})
	}
}

func TestCleanFences_Idempotent(t *testing.T) {
	t.Parallel()
	inputs := []string{
		"",
		"```",
		"```html",
		"```html\n<html></html>\n```",
		"  ```html  \n\n<p>x</p>\n```  \n",
		"<p>```</p>",
	}
	for _, in := range inputs {
		once := CleanFences(in)
		assert.Equal(t, once, CleanFences(once), "input %q", in)
	}
}
