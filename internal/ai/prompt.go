package ai

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	// TemplateName is the well-known path the template is fetched from.
	TemplateName = "prm.md"

	// TemplatePlaceholder stands in for the template when it cannot be loaded.
	TemplatePlaceholder = "获取提示词模板失败"

	// ContinuePrompt is sent on every attempt after the first.
	ContinuePrompt = "继续，直接生成后续代码，不需要输出任何文字和解释"

	contentIntro = "\n\n以下是需要转换的内容：\n\n"
	outputRules  = "\n\n请直接输出HTML代码，不要包含```html和```这样的Markdown代码块标记。直接以<!DOCTYPE html>开始输出。"
)

//go:embed prm.md
var embeddedTemplate string

// BuildPrompt combines the template with the user's content and the
// raw-HTML output rules.
func BuildPrompt(template, content string) string {
	return template + contentIntro + content + outputRules
}

// TemplateSource supplies the prompt template text.
type TemplateSource interface {
	Template(ctx context.Context) (string, error)
}

// EmbeddedTemplate is the starter template compiled into the binary.
type EmbeddedTemplate struct{}

func (EmbeddedTemplate) Template(context.Context) (string, error) {
	return embeddedTemplate, nil
}

// DefaultTemplate returns the embedded starter template.
func DefaultTemplate() string {
	return embeddedTemplate
}

// FileTemplate reads the template from a local file.
type FileTemplate struct {
	Path string
}

func (f FileTemplate) Template(context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read template: %w", err)
	}
	return string(data), nil
}

// HTTPTemplate fetches TemplateName relative to BaseURL.
type HTTPTemplate struct {
	BaseURL string
	Client  *http.Client
}

func (h HTTPTemplate) Template(ctx context.Context) (string, error) {
	base, err := url.Parse(h.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid template base URL: %w", err)
	}
	target := base.ResolveReference(&url.URL{Path: TemplateName})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create template request: %w", err)
	}
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch template: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch template: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read template: %w", err)
	}
	return string(data), nil
}

// TemplateFrom picks a source for a configured location: empty means the
// embedded template, an http(s) URL is fetched, anything else is a file.
// TemplateName is resolved against the URL like a relative link, so both
// "https://host/app/" and "https://host/app/prm.md" work.
func TemplateFrom(location string) TemplateSource {
	switch {
	case location == "":
		return EmbeddedTemplate{}
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return HTTPTemplate{BaseURL: location}
	default:
		return FileTemplate{Path: location}
	}
}

// LoadTemplate returns the template from src, or TemplatePlaceholder if it
// cannot be loaded. The failure is logged, never returned: generation goes
// on with a weaker prompt.
func LoadTemplate(ctx context.Context, src TemplateSource, log logrus.FieldLogger) string {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if src == nil {
		src = EmbeddedTemplate{}
	}
	tmpl, err := src.Template(ctx)
	if err != nil {
		log.WithError(err).Error("failed to load prompt template, using placeholder")
		return TemplatePlaceholder
	}
	return tmpl
}
