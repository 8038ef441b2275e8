// Package ai drives an OpenAI-compatible streaming endpoint to turn a
// document into a complete HTML page, resuming generation when the output
// comes back truncated.
package ai

import (
	"fmt"
	"time"
)

// Request is one document-to-HTML generation. It is read-only for the
// duration of a Generate call.
type Request struct {
	Content  string
	APIKey   string
	Model    string
	Endpoint string
}

func (r Request) validate() error {
	if r.Endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalidRequest)
	}
	if r.Model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidRequest)
	}
	return nil
}

// Attempt is a single HTTP exchange within a generation.
type Attempt struct {
	Index      int
	Prompt     string
	StartedAt  time.Time
	Frames     int // content frames received
	KeepAlives int
	Malformed  int
	// StallSince is when the watchdog was armed for this attempt. It is
	// zero while content is flowing.
	StallSince time.Time

	// FoundEnd and CharsAfterEnd are informational: whether a delta in this
	// attempt carried </html>, and how much text followed it.
	FoundEnd      bool
	CharsAfterEnd int
}

// ProgressSnapshot is the text received since the previous snapshot plus
// everything accumulated so far.
type ProgressSnapshot struct {
	Delta string
	Total string
}

// ProgressObserver receives throttled progress snapshots. It is called on
// the goroutine reading the stream and must return quickly.
type ProgressObserver interface {
	Progress(delta, total string)
}

// ObserverFunc adapts a function to ProgressObserver.
type ObserverFunc func(delta, total string)

func (f ObserverFunc) Progress(delta, total string) { f(delta, total) }

// Result is the outcome of a generation that did not fail.
type Result struct {
	HTML     string
	Attempts int
	// Complete is false when the retry budget ran out before the document
	// looked structurally whole; HTML is then best-effort.
	Complete bool
	Verdict  Verdict
	Elapsed  time.Duration
}

// chatRequest is the request body sent to the chat completions endpoint.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

// chatMessage is a single message in the chat format.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const maxTokens = 100000

func newChatRequest(model, prompt string) chatRequest {
	return chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0,
		MaxTokens:   maxTokens,
		Stream:      true,
	}
}
