package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"strings"
	"sync"

	loremgen "github.com/bozaro/golorem"
)

// LoremTransport streams a generated placeholder page instead of calling a
// model. It speaks the same SSE dialect as a real endpoint, keep-alives
// included, so the whole pipeline can be exercised offline.
//
// When CutAt is between 0 and 1 the first request only receives that
// fraction of the page and continuation requests receive the rest, which
// exercises resumption. The cut-off tail is kept per generation, so one
// LoremTransport can serve concurrent Generate calls.
type LoremTransport struct {
	Sections   int
	KeepAlives int
	ChunkSize  int
	CutAt      float64

	mu        sync.Mutex
	generator *loremgen.Lorem
	remaining map[uint64]string
}

// NewLoremTransport returns a transport producing a page with the given
// number of sections.
func NewLoremTransport(sections int) *LoremTransport {
	return &LoremTransport{
		Sections:   sections,
		KeepAlives: 2,
		ChunkSize:  48,
		generator:  loremgen.New(),
	}
}

// Open implements Transport.
func (l *LoremTransport) Open(ctx context.Context, _ Request, prompt string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: "request", Err: err}
	}

	id, _ := GenerationID(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.remaining == nil {
		l.remaining = make(map[uint64]string)
	}

	text, ok := l.remaining[id]
	delete(l.remaining, id)
	if prompt != ContinuePrompt || !ok {
		page := l.page()
		cut := len(page)
		if l.CutAt > 0 && l.CutAt < 1 {
			cut = int(float64(len(page)) * l.CutAt)
		}
		text = page[:cut]
		if cut < len(page) {
			l.remaining[id] = page[cut:]
		}
	}

	return io.NopCloser(strings.NewReader(l.sse(text))), nil
}

func (l *LoremTransport) page() string {
	if l.generator == nil {
		l.generator = loremgen.New()
	}
	sections := l.Sections
	if sections <= 0 {
		sections = 3
	}

	var b strings.Builder
	title := html.EscapeString(strings.TrimSuffix(l.generator.Sentence(3, 6), "."))
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"UTF-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", title)
	b.WriteString("<style>body{max-width:48rem;margin:2rem auto;font-family:sans-serif;line-height:1.6}</style>\n")
	b.WriteString("</head>\n<body>\n")
	fmt.Fprintf(&b, "<h1>%s</h1>\n", title)
	for i := 0; i < sections; i++ {
		fmt.Fprintf(&b, "<h2>%s</h2>\n", html.EscapeString(l.generator.Sentence(2, 5)))
		fmt.Fprintf(&b, "<p>%s</p>\n", html.EscapeString(l.generator.Paragraph(3, 5)))
	}
	b.WriteString("<script>document.querySelectorAll('h2').forEach(function(h,i){h.id='s'+i;});</script>\n")
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

// sse encodes text as a stream of chat completion chunks.
func (l *LoremTransport) sse(text string) string {
	size := l.ChunkSize
	if size <= 0 {
		size = 48
	}

	var b strings.Builder
	for i := 0; i < l.KeepAlives; i++ {
		b.WriteString(": " + keepAliveMarker + "\n\n")
	}

	runes := []rune(text)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		frame := map[string]any{
			"object": "chat.completion.chunk",
			"choices": []map[string]any{
				{"index": 0, "delta": map[string]string{"content": string(runes[start:end])}},
			},
		}
		data, _ := json.Marshal(frame)
		b.WriteString("data: ")
		b.Write(data)
		b.WriteString("\n\n")
	}
	b.WriteString("data: " + doneMarker + "\n\n")
	return b.String()
}
