package ai

import (
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	keepAliveMarker = "OPENROUTER PROCESSING"
	doneMarker      = "[DONE]"
	dataPrefix      = "data:"
	contentPath     = "choices.0.delta.content"
)

// Frame is one parsed unit of streamed content.
type Frame struct {
	Delta string
}

// ParseResult is what a single chunk (or the final flush) produced.
type ParseResult struct {
	Frames     []Frame
	KeepAlives int
	Malformed  int
}

// FrameParser decodes SSE "data:" lines into content frames. A line split
// across two chunks is held back until its newline arrives.
type FrameParser struct {
	log     logrus.FieldLogger
	partial string
}

// NewFrameParser returns a parser that logs skipped lines to log.
func NewFrameParser(log logrus.FieldLogger) *FrameParser {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &FrameParser{log: log}
}

// Parse consumes a raw chunk from the transport.
func (p *FrameParser) Parse(chunk []byte) ParseResult {
	text := p.partial + string(chunk)
	cut := strings.LastIndexByte(text, '\n')
	if cut < 0 {
		p.partial = text
		return ParseResult{}
	}
	p.partial = text[cut+1:]

	var res ParseResult
	for _, line := range strings.Split(text[:cut], "\n") {
		p.parseLine(line, &res)
	}
	return res
}

// Flush processes any unterminated line left over at end of stream.
func (p *FrameParser) Flush() ParseResult {
	var res ParseResult
	if p.partial != "" {
		p.parseLine(p.partial, &res)
		p.partial = ""
	}
	return res
}

func (p *FrameParser) parseLine(line string, res *ParseResult) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if strings.Contains(line, keepAliveMarker) {
		res.KeepAlives++
		return
	}

	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if payload == doneMarker || strings.HasPrefix(payload, ":") {
		return
	}

	if !gjson.Valid(payload) {
		res.Malformed++
		p.log.WithField("line", truncate(line, 200)).Warn("failed to parse stream frame, skipping")
		return
	}

	if msg := gjson.Get(payload, "error.message"); msg.Exists() {
		p.log.WithField("error", msg.String()).Warn("upstream reported an error frame")
		return
	}

	content := gjson.Get(payload, contentPath)
	if content.Type != gjson.String || content.Str == "" {
		return
	}
	res.Frames = append(res.Frames, Frame{Delta: content.Str})
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "... (truncated)"
}
