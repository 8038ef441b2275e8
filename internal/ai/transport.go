package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody caps how much of a failed response is kept for the error.
const maxErrorBody = 4096

// Transport opens one streamed completion. The returned body is owned by
// the caller, who must close it. Cancelling ctx must abort reads.
type Transport interface {
	Open(ctx context.Context, req Request, prompt string) (io.ReadCloser, error)
}

// HTTPTransport posts to an OpenAI-compatible chat completions endpoint.
type HTTPTransport struct {
	httpClient *http.Client
}

// NewHTTPTransport returns a transport using hc, or a client without a
// whole-request timeout when hc is nil. Long generations stream for
// minutes; cancellation comes from the context.
func NewHTTPTransport(hc *http.Client) *HTTPTransport {
	if hc == nil {
		hc = &http.Client{}
	}
	return &HTTPTransport{httpClient: hc}
}

// Open sends the prompt and returns the event stream body.
func (t *HTTPTransport) Open(ctx context.Context, req Request, prompt string) (io.ReadCloser, error) {
	body, err := json.Marshal(newChatRequest(req.Model, prompt))
	if err != nil {
		return nil, &TransportError{Op: "encode", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Op: "request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: "request", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &TransportError{
			Op:         "status",
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	return resp.Body, nil
}
