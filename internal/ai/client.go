package ai

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxAttempts    = 3
	DefaultRetryDelay     = time.Second
	DefaultStallWindow    = 30 * time.Second
	DefaultKeepAliveLimit = 5

	readBufferSize = 32 * 1024
)

// State is a step of the generation state machine.
type State int

const (
	StateAttempting State = iota
	StateStreaming
	StateEvaluating
	StateRetryWait
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateStreaming:
		return "streaming"
	case StateEvaluating:
		return "evaluating"
	case StateRetryWait:
		return "retry_wait"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Generator turns documents into HTML pages. It holds configuration only,
// so one Generator can serve any number of concurrent Generate calls.
type Generator struct {
	transport      Transport
	templates      TemplateSource
	log            logrus.FieldLogger
	maxAttempts    int
	retryDelay     time.Duration
	stallWindow    time.Duration
	keepAliveLimit int
	strict         bool
	now            func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithTemplate sets where the prompt template comes from.
func WithTemplate(src TemplateSource) Option {
	return func(g *Generator) { g.templates = src }
}

// WithLogger sets the logger. Defaults to the logrus standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(g *Generator) { g.log = log }
}

// WithMaxAttempts caps the number of requests per generation, the first
// one included.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithRetryDelay sets the fixed pause before a continuation request.
func WithRetryDelay(d time.Duration) Option {
	return func(g *Generator) { g.retryDelay = d }
}

// WithStallWindow sets how long the watchdog waits for content once the
// keep-alive limit has been passed.
func WithStallWindow(d time.Duration) Option {
	return func(g *Generator) { g.stallWindow = d }
}

// WithKeepAliveLimit sets how many consecutive keep-alives are tolerated
// before the watchdog is armed.
func WithKeepAliveLimit(n int) Option {
	return func(g *Generator) { g.keepAliveLimit = n }
}

// WithStrict additionally requires balanced tags and a last paragraph that
// does not stop mid-sentence before a document counts as complete.
func WithStrict(strict bool) Option {
	return func(g *Generator) { g.strict = strict }
}

// NewGenerator returns a Generator that streams through t.
func NewGenerator(t Transport, opts ...Option) *Generator {
	g := &Generator{
		transport:      t,
		templates:      EmbeddedTemplate{},
		log:            logrus.StandardLogger(),
		maxAttempts:    DefaultMaxAttempts,
		retryDelay:     DefaultRetryDelay,
		stallWindow:    DefaultStallWindow,
		keepAliveLimit: DefaultKeepAliveLimit,
		now:            time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	if g.log == nil {
		g.log = logrus.StandardLogger()
	}
	return g
}

type generationKey struct{}

var generationSeq atomic.Uint64

// GenerationID returns the id of the Generate call ctx belongs to. All
// attempts of one generation share it, so a transport can keep
// per-generation state.
func GenerationID(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(generationKey{}).(uint64)
	return id, ok
}

func withGeneration(ctx context.Context) context.Context {
	return context.WithValue(ctx, generationKey{}, generationSeq.Add(1))
}

// session is the state of one Generate call. The accumulator is the only
// thing that survives from one attempt to the next.
type session struct {
	g     *Generator
	req   Request
	acc   *Accumulator
	log   logrus.FieldLogger
	state State
	blank atomic.Bool
}

// Generate produces an HTML page for req.Content. Progress snapshots go to
// obs, which may be nil.
//
// An incomplete page is not an error: when the attempts run out the best
// effort is returned with Result.Complete set to false. Errors are
// returned only for transport failures, stall timeouts and cancellation,
// and then no partial page is returned.
func (g *Generator) Generate(ctx context.Context, req Request, obs ProgressObserver) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	ctx = withGeneration(ctx)
	start := g.now()
	s := &session{
		g:   g,
		req: req,
		acc: newAccumulator(obs, g.now, progressInterval),
		log: g.log.WithFields(logrus.Fields{"model": req.Model, "content_length": len(req.Content)}),
	}
	s.blank.Store(true)

	tmpl := LoadTemplate(ctx, g.templates, s.log)
	fullPrompt := BuildPrompt(tmpl, req.Content)
	s.log.WithField("prompt_length", len(fullPrompt)).Debug("built prompt")

	for i := 0; ; i++ {
		s.transition(StateAttempting)
		att := &Attempt{Index: i, Prompt: ContinuePrompt, StartedAt: g.now()}
		if i == 0 {
			att.Prompt = fullPrompt
		}

		if err := s.stream(ctx, att); err != nil {
			s.transition(StateFailed)
			s.log.WithError(err).WithField("attempt", i).Error("generation failed")
			return nil, err
		}

		s.transition(StateEvaluating)
		verdict := s.evaluate()
		s.log.WithFields(logrus.Fields{
			"attempt":         i,
			"frames":          att.Frames,
			"keep_alives":     att.KeepAlives,
			"malformed":       att.Malformed,
			"found_html_end":  att.FoundEnd,
			"chars_after_end": att.CharsAfterEnd,
			"length":          len(s.acc.String()),
			"complete":        verdict.Complete,
		}).Info("attempt finished")

		if verdict.Complete || i+1 >= g.maxAttempts {
			s.transition(StateDone)
			return &Result{
				HTML:     CleanFences(s.acc.String()),
				Attempts: i + 1,
				Complete: verdict.Complete,
				Verdict:  verdict,
				Elapsed:  g.now().Sub(start),
			}, nil
		}

		s.transition(StateRetryWait)
		if err := sleep(ctx, g.retryDelay); err != nil {
			s.transition(StateFailed)
			return nil, err
		}
	}
}

func (s *session) transition(next State) {
	s.log.WithFields(logrus.Fields{"from": s.state, "to": next}).Debug("state change")
	s.state = next
}

func (s *session) evaluate() Verdict {
	doc := s.acc.String()
	v := Evaluate(doc)
	if s.g.strict && v.Complete && !IsSemanticallyComplete(doc) {
		s.log.WithField("unclosed", FindUnclosedTags(doc)).Info("document failed strict check")
		v.Complete = false
	}
	return v
}

// stream runs one attempt to the end of its response. The attempt gets its
// own context so the watchdog can only ever cancel the stream it was armed
// for.
func (s *session) stream(ctx context.Context, att *Attempt) error {
	attemptCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	body, err := s.g.transport.Open(attemptCtx, s.req, att.Prompt)
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) {
			return err
		}
		return &TransportError{Op: "request", Err: err}
	}
	var closeOnce sync.Once
	closeBody := func() { closeOnce.Do(func() { body.Close() }) }
	defer closeBody()

	s.transition(StateStreaming)

	wd := &watchdog{
		limit:  s.g.keepAliveLimit,
		window: s.g.stallWindow,
		fire: func() {
			if s.blank.Load() {
				cancel(ErrStallTimeout)
				closeBody()
			}
		},
	}
	defer wd.disarm()

	parser := NewFrameParser(s.log)
	buf := make([]byte, readBufferSize)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			s.consume(att, wd, parser.Parse(buf[:n]))
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if errors.Is(context.Cause(attemptCtx), ErrStallTimeout) {
				return &StallTimeoutError{Attempt: att.Index, Window: s.g.stallWindow, KeepAlives: att.KeepAlives, Since: att.StallSince}
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			return &TransportError{Op: "read", Err: rerr}
		}
	}

	s.consume(att, wd, parser.Flush())
	s.acc.Flush()
	s.log.WithFields(logrus.Fields{"attempt": att.Index, "length": len(s.acc.String())}).Debug("stream ended")
	return nil
}

func (s *session) consume(att *Attempt, wd *watchdog, res ParseResult) {
	att.Malformed += res.Malformed
	for i := 0; i < res.KeepAlives; i++ {
		att.KeepAlives++
		if wd.keepAlive(s.acc.Blank()) {
			att.StallSince = s.g.now()
			s.log.WithFields(logrus.Fields{"attempt": att.Index, "keep_alives": att.KeepAlives}).Debug("watchdog armed")
		}
	}

	for _, f := range res.Frames {
		added := s.acc.Append(f.Delta)
		att.Frames++
		s.blank.Store(s.acc.Blank())
		if !s.blank.Load() {
			wd.reset()
			att.StallSince = time.Time{}
		}

		if !att.FoundEnd && strings.Contains(added, htmlClose) {
			att.FoundEnd = true
			s.log.WithField("attempt", att.Index).Debug("found </html>, still reading the rest of the stream")
		}
		if att.FoundEnd {
			att.CharsAfterEnd += len(added)
		}
	}
}

// watchdog arms a timer once more than limit keep-alives arrive while the
// document is blank. It is only touched from the reading goroutine; fire
// runs on the timer's goroutine.
type watchdog struct {
	limit      int
	window     time.Duration
	keepAlives int
	timer      *time.Timer
	fire       func()
}

// keepAlive reports whether this keep-alive armed the timer.
func (w *watchdog) keepAlive(blank bool) bool {
	w.keepAlives++
	if w.keepAlives > w.limit && blank && w.timer == nil {
		w.timer = time.AfterFunc(w.window, w.fire)
		return true
	}
	return false
}

// reset is called whenever content arrives.
func (w *watchdog) reset() {
	w.keepAlives = 0
	w.disarm()
}

func (w *watchdog) disarm() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
