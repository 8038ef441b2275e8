package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const completePage = "<!DOCTYPE html><html><head><title>t</title></head><body><p>hi</p><script>init()</script></body></html>"

// sseBody encodes parts as content frames, preceded by keepAlives markers.
func sseBody(keepAlives int, parts ...string) string {
	var b strings.Builder
	for i := 0; i < keepAlives; i++ {
		b.WriteString(": " + keepAliveMarker + "\n\n")
	}
	for _, p := range parts {
		data, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{{"delta": map[string]string{"content": p}}},
		})
		b.WriteString("data: ")
		b.Write(data)
		b.WriteString("\n\n")
	}
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}

// fakeTransport answers each Open with the next scripted response.
type fakeTransport struct {
	mu      sync.Mutex
	open    []func(ctx context.Context) (io.ReadCloser, error)
	prompts []string
	times   []time.Time
}

func (f *fakeTransport) Open(ctx context.Context, _ Request, prompt string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.prompts)
	f.prompts = append(f.prompts, prompt)
	f.times = append(f.times, time.Now())
	if i >= len(f.open) {
		return io.NopCloser(strings.NewReader(sseBody(0))), nil
	}
	return f.open[i](ctx)
}

func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func body(s string) func(context.Context) (io.ReadCloser, error) {
	return func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(s)), nil
	}
}

// blockingBody sends prefix, then holds the stream open until ctx ends or
// the reader is closed, like a live HTTP response.
func blockingBody(prefix string) func(context.Context) (io.ReadCloser, error) {
	return func(ctx context.Context) (io.ReadCloser, error) {
		pr, pw := io.Pipe()
		go func() {
			if _, err := io.WriteString(pw, prefix); err != nil {
				return
			}
			<-ctx.Done()
			pw.CloseWithError(ctx.Err())
		}()
		return pr, nil
	}
}

func testRequest() Request {
	return Request{Content: "hello", APIKey: "sk-test", Model: "test-model", Endpoint: "http://unused"}
}

func newTestGenerator(tr Transport, opts ...Option) *Generator {
	logger, _ := test.NewNullLogger()
	base := []Option{WithLogger(logger), WithRetryDelay(10 * time.Millisecond)}
	return NewGenerator(tr, append(base, opts...)...)
}

func TestGenerate_CompleteOnFirstAttempt(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{open: []func(context.Context) (io.ReadCloser, error){
		body(sseBody(1, completePage[:40], completePage[40:])),
	}}

	res, err := newTestGenerator(tr).Generate(context.Background(), testRequest(), nil)

	require.NoError(t, err)
	assert.Equal(t, 1, tr.calls())
	assert.Equal(t, 1, res.Attempts)
	assert.True(t, res.Complete)
	assert.True(t, res.Verdict.Lenient)
	assert.Equal(t, completePage, res.HTML)
	assert.Equal(t, BuildPrompt(DefaultTemplate(), "hello"), tr.prompts[0])
}

func TestGenerate_ContinuesUntilComplete(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{open: []func(context.Context) (io.ReadCloser, error){
		body(sseBody(0, completePage[:50])),
		body(sseBody(0, completePage[50:])),
	}}

	res, err := newTestGenerator(tr).Generate(context.Background(), testRequest(), nil)

	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.True(t, res.Complete)
	assert.Equal(t, completePage, res.HTML)
	require.Len(t, tr.prompts, 2)
	assert.Equal(t, ContinuePrompt, tr.prompts[1])
}

func TestGenerate_ReturnsBestEffortAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	const delay = 30 * time.Millisecond
	tr := &fakeTransport{open: []func(context.Context) (io.ReadCloser, error){
		body(sseBody(0, "<!DOCTYPE html><html><body>")),
		body(sseBody(0, "<p>one")),
		body(sseBody(0, "<p>two")),
	}}

	res, err := newTestGenerator(tr, WithRetryDelay(delay)).Generate(context.Background(), testRequest(), nil)

	require.NoError(t, err)
	assert.Equal(t, DefaultMaxAttempts, tr.calls())
	assert.Equal(t, DefaultMaxAttempts, res.Attempts)
	assert.False(t, res.Complete)
	assert.Equal(t, "<!DOCTYPE html><html><body><p>one<p>two", res.HTML)
	for i := 1; i < len(tr.times); i++ {
		assert.GreaterOrEqual(t, tr.times[i].Sub(tr.times[i-1]), delay)
	}
	assert.Equal(t, []string{ContinuePrompt, ContinuePrompt}, tr.prompts[1:])
}

func TestGenerate_WithMaxAttempts(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{}

	res, err := newTestGenerator(tr, WithMaxAttempts(1)).Generate(context.Background(), testRequest(), nil)

	require.NoError(t, err)
	assert.Equal(t, 1, tr.calls())
	assert.False(t, res.Complete)
	assert.Empty(t, res.HTML)
}

func TestGenerate_StripsFences(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{open: []func(context.Context) (io.ReadCloser, error){
		body(sseBody(0, "```html\n", completePage, "\n```")),
	}}

	res, err := newTestGenerator(tr).Generate(context.Background(), testRequest(), nil)

	require.NoError(t, err)
	assert.Equal(t, completePage, strings.TrimSpace(res.HTML))
	assert.NotContains(t, res.HTML, "```")
}

func TestGenerate_StallTimeoutIsFatal(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{open: []func(context.Context) (io.ReadCloser, error){
		blockingBody(strings.Repeat(": "+keepAliveMarker+"\n\n", 7)),
	}}
	g := newTestGenerator(tr, WithStallWindow(50*time.Millisecond))

	res, err := g.Generate(context.Background(), testRequest(), nil)

	require.ErrorIs(t, err, ErrStallTimeout)
	var st *StallTimeoutError
	require.ErrorAs(t, err, &st)
	assert.Equal(t, 0, st.Attempt)
	assert.Equal(t, 7, st.KeepAlives)
	assert.False(t, st.Since.IsZero(), "arm time is recorded")
	assert.Nil(t, res)
	assert.Equal(t, 1, tr.calls(), "a stall is not retried")
}

func TestGenerate_FewKeepAlivesDoNotArmWatchdog(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{open: []func(context.Context) (io.ReadCloser, error){
		blockingBody(strings.Repeat(": "+keepAliveMarker+"\n\n", DefaultKeepAliveLimit)),
	}}
	g := newTestGenerator(tr, WithStallWindow(10*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	_, err := g.Generate(ctx, testRequest(), nil)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrStallTimeout)
}

func TestGenerate_KeepAliveOnlyStreamsEmitNoProgress(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{open: []func(context.Context) (io.ReadCloser, error){
		body(sseBody(10)), body(sseBody(10)), body(sseBody(10)),
	}}
	rec := &recorder{}

	res, err := newTestGenerator(tr).Generate(context.Background(), testRequest(), rec)

	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.False(t, res.Complete)
	assert.Empty(t, res.HTML)
	assert.Empty(t, rec.snaps)
}

func TestSession_RecordsWhenWatchdogArms(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	g := newTestGenerator(nil)
	g.now = func() time.Time { return now }
	s := &session{g: g, acc: NewAccumulator(nil), log: g.log}
	s.blank.Store(true)
	att := &Attempt{}
	wd := &watchdog{limit: DefaultKeepAliveLimit, window: time.Hour, fire: func() {}}
	defer wd.disarm()

	s.consume(att, wd, ParseResult{KeepAlives: DefaultKeepAliveLimit})
	assert.True(t, att.StallSince.IsZero())

	s.consume(att, wd, ParseResult{KeepAlives: 1})
	assert.Equal(t, now, att.StallSince)
	assert.NotNil(t, wd.timer)

	s.consume(att, wd, ParseResult{Frames: []Frame{{Delta: "<!DOCTYPE html>"}}})
	assert.True(t, att.StallSince.IsZero())
	assert.Nil(t, wd.timer)
}

func TestGenerate_KeepAlivesAfterContentAreHarmless(t *testing.T) {
	t.Parallel()
	stream := sseBody(0, "<!DOCTYPE html>") +
		strings.Repeat(": "+keepAliveMarker+"\n\n", 20) +
		sseBody(0, completePage[len("<!DOCTYPE html>"):])
	tr := &fakeTransport{open: []func(context.Context) (io.ReadCloser, error){body(stream)}}

	res, err := newTestGenerator(tr, WithStallWindow(time.Millisecond)).Generate(context.Background(), testRequest(), nil)

	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Equal(t, completePage, res.HTML)
}

func TestGenerate_TransportErrorIsNotRetried(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{open: []func(context.Context) (io.ReadCloser, error){
		func(context.Context) (io.ReadCloser, error) {
			return nil, &TransportError{Op: "status", StatusCode: 502, Body: "bad gateway"}
		},
	}}

	res, err := newTestGenerator(tr).Generate(context.Background(), testRequest(), nil)

	require.ErrorIs(t, err, ErrTransport)
	assert.Nil(t, res)
	assert.Equal(t, 1, tr.calls())
}

func TestGenerate_WrapsPlainTransportErrors(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	tr := &fakeTransport{open: []func(context.Context) (io.ReadCloser, error){
		func(context.Context) (io.ReadCloser, error) { return nil, boom },
	}}

	_, err := newTestGenerator(tr).Generate(context.Background(), testRequest(), nil)

	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, boom)
}

func TestGenerate_ReadErrorIsFatal(t *testing.T) {
	t.Parallel()
	reset := errors.New("connection reset")
	tr := &fakeTransport{open: []func(context.Context) (io.ReadCloser, error){
		func(context.Context) (io.ReadCloser, error) {
			r := io.MultiReader(strings.NewReader(sseBody(0, "<!DOCTYPE html>")), iotest.ErrReader(reset))
			return io.NopCloser(r), nil
		},
	}}

	_, err := newTestGenerator(tr).Generate(context.Background(), testRequest(), nil)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "read", te.Op)
	assert.ErrorIs(t, err, reset)
	assert.Equal(t, 1, tr.calls())
}

func TestGenerate_CallerCancelDuringStream(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{open: []func(context.Context) (io.ReadCloser, error){
		blockingBody(sseBody(0, "<!DOCTYPE html><html>")),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	res, err := newTestGenerator(tr).Generate(ctx, testRequest(), nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

func TestGenerate_CallerCancelDuringRetryWait(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{open: []func(context.Context) (io.ReadCloser, error){
		body(sseBody(0, "<!DOCTYPE html>")),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	start := time.Now()
	_, err := newTestGenerator(tr, WithRetryDelay(time.Hour)).Generate(ctx, testRequest(), nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, 1, tr.calls())
}

func TestGenerate_ReportsProgress(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{open: []func(context.Context) (io.ReadCloser, error){
		body(sseBody(0, completePage[:30], completePage[30:60], completePage[60:])),
	}}
	var (
		mu    sync.Mutex
		snaps []ProgressSnapshot
	)
	obs := ObserverFunc(func(delta, total string) {
		mu.Lock()
		defer mu.Unlock()
		snaps = append(snaps, ProgressSnapshot{Delta: delta, Total: total})
	})

	res, err := newTestGenerator(tr).Generate(context.Background(), testRequest(), obs)

	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, snaps)
	assert.Equal(t, res.HTML, snaps[len(snaps)-1].Total)

	var joined strings.Builder
	for _, s := range snaps {
		joined.WriteString(s.Delta)
	}
	assert.Equal(t, res.HTML, joined.String())
}

func TestGenerate_StrictRequiresBalancedTags(t *testing.T) {
	t.Parallel()
	page := "<!DOCTYPE html><html><body><div><p>Done.</p><script></script></body></html>"
	open := func() []func(context.Context) (io.ReadCloser, error) {
		return []func(context.Context) (io.ReadCloser, error){body(sseBody(0, page))}
	}

	lenient := &fakeTransport{open: open()}
	res, err := newTestGenerator(lenient).Generate(context.Background(), testRequest(), nil)
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Equal(t, 1, lenient.calls())

	strict := &fakeTransport{open: open()}
	res, err = newTestGenerator(strict, WithStrict(true), WithMaxAttempts(2)).Generate(context.Background(), testRequest(), nil)
	require.NoError(t, err)
	assert.False(t, res.Complete)
	assert.Equal(t, 2, strict.calls())
}

func TestGenerate_TemplateFailureUsesPlaceholder(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{open: []func(context.Context) (io.ReadCloser, error){body(sseBody(0, completePage))}}

	_, err := newTestGenerator(tr, WithTemplate(failingTemplate{})).Generate(context.Background(), testRequest(), nil)

	require.NoError(t, err)
	assert.Equal(t, BuildPrompt(TemplatePlaceholder, "hello"), tr.prompts[0])
}

func TestGenerate_InvalidRequest(t *testing.T) {
	t.Parallel()
	tr := &fakeTransport{}
	req := testRequest()
	req.Model = ""

	_, err := newTestGenerator(tr).Generate(context.Background(), req, nil)

	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Zero(t, tr.calls())
}

func TestState_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "retry_wait", StateRetryWait.String())
	assert.Equal(t, "unknown", State(99).String())
}
