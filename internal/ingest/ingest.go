// Package ingest loads source documents (markdown, HTML, DOCX, plain text)
// and renders a quick HTML preview of them.
package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// Format is the kind of source document.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatDocx     Format = "docx"
	FormatText     Format = "text"
)

// ErrEmpty is returned for documents with no text in them.
var ErrEmpty = errors.New("document is empty")

// maxSize caps how much of a document is read.
const maxSize = 16 << 20

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
)

// Document is a loaded source document. Source is the text sent to the
// model: the file as-is for markdown, HTML and text, and the extracted
// paragraphs (one per line) for DOCX.
type Document struct {
	Name   string
	Format Format
	Source string
}

// DetectFormat picks a format from the file extension.
func DetectFormat(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return FormatMarkdown
	case ".html", ".htm":
		return FormatHTML
	case ".docx":
		return FormatDocx
	default:
		return FormatText
	}
}

// Load reads the document at path.
func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer f.Close()
	return FromReader(filepath.Base(path), f)
}

// FromReader reads a document named name from r.
func FromReader(name string, r io.Reader) (*Document, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	if len(data) > maxSize {
		return nil, fmt.Errorf("document %s is larger than %d MB", name, maxSize>>20)
	}
	return FromBytes(name, data)
}

// FromBytes builds a document named name from its raw contents.
func FromBytes(name string, data []byte) (*Document, error) {
	doc := &Document{Name: name, Format: DetectFormat(name)}

	if doc.Format == FormatDocx {
		text, err := docxText(data)
		if err != nil {
			return nil, err
		}
		doc.Source = text
	} else {
		doc.Source = string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))
	}

	if strings.TrimSpace(doc.Source) == "" {
		return nil, fmt.Errorf("%s: %w", name, ErrEmpty)
	}
	return doc, nil
}

// FromText wraps pasted text as a plain-text document.
func FromText(text string) (*Document, error) {
	return FromBytes("pasted.txt", []byte(text))
}

// HTML renders a preview fragment: markdown through goldmark, HTML as-is,
// and text or DOCX as one <p> per non-blank line.
func (d *Document) HTML() (string, error) {
	switch d.Format {
	case FormatMarkdown:
		var buf bytes.Buffer
		if err := markdown.Convert([]byte(d.Source), &buf); err != nil {
			return "", fmt.Errorf("failed to render markdown: %w", err)
		}
		return buf.String(), nil
	case FormatHTML:
		return d.Source, nil
	default:
		return paragraphs(d.Source), nil
	}
}

func paragraphs(text string) string {
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(line))
		b.WriteString("</p>\n")
	}
	return b.String()
}
