package ai

import (
	"regexp"
	"strings"
)

const (
	doctypeMarker = "<!DOCTYPE html>"
	htmlOpen      = "<html"
	htmlClose     = "</html>"
	headClose     = "</head>"
	bodyClose     = "</body>"

	// nearTail is how close </html> must sit to the end of the trimmed
	// document to count as a clean ending.
	nearTail = 50
)

var scriptClose = regexp.MustCompile(`(?i)</script>`)

// Verdict records whether a document looks finished and the evidence used.
type Verdict struct {
	HasStart     bool
	HasEnd       bool
	HasScriptEnd bool
	HasHeadEnd   bool
	HasBodyEnd   bool

	// Informational only; neither gates completion.
	EndingNearTail bool
	TrailingChars  int

	Lenient  bool
	Strict   bool
	Complete bool
}

// Evaluate inspects doc for structural completeness. The lenient tier
// accepts a start marker, </html> and a </script>; failing that, the strict
// tier wants start, </html>, </head> and </body>.
func Evaluate(doc string) Verdict {
	v := Verdict{
		HasStart:     strings.Contains(doc, doctypeMarker) || strings.Contains(doc, htmlOpen),
		HasEnd:       strings.Contains(doc, htmlClose),
		HasScriptEnd: scriptClose.MatchString(doc),
		HasHeadEnd:   strings.Contains(doc, headClose),
		HasBodyEnd:   strings.Contains(doc, bodyClose),
	}

	if v.HasEnd {
		trimmed := strings.TrimSpace(doc)
		end := strings.LastIndex(trimmed, htmlClose)
		v.EndingNearTail = len(trimmed)-end < nearTail
		v.TrailingChars = len(doc) - (strings.LastIndex(doc, htmlClose) + len(htmlClose))
	}

	v.Lenient = v.HasStart && v.HasEnd && v.HasScriptEnd
	v.Strict = v.HasStart && v.HasEnd && v.HasHeadEnd && v.HasBodyEnd
	v.Complete = v.Lenient || v.Strict
	return v
}

// IsComplete reports whether doc passes either completeness tier.
func IsComplete(doc string) bool {
	return Evaluate(doc).Complete
}

var (
	tagPattern   = regexp.MustCompile(`</?([a-zA-Z][a-zA-Z0-9]*)(?:\s[^>]*)?>`)
	markupStrip  = regexp.MustCompile(`<[^>]+>`)
	voidElements = map[string]bool{
		"area": true, "base": true, "br": true, "col": true, "embed": true,
		"hr": true, "img": true, "input": true, "link": true, "meta": true,
		"param": true, "source": true, "track": true, "wbr": true,
	}

	// A last paragraph ending like this was probably cut mid-sentence.
	dangling = []*regexp.Regexp{
		regexp.MustCompile(`[,，]\s*$`),
		regexp.MustCompile(`[的地得]\s*$`),
		regexp.MustCompile(`[和与及]\s*$`),
		regexp.MustCompile(`[：:、]\s*$`),
		regexp.MustCompile(`[\x{4e00}-\x{9fa5}]\s*$`),
	}
)

// Tag is one open or close tag token in document order.
type Tag struct {
	Name    string
	Closing bool
}

// ScanTags tokenizes the element tags in doc. Void elements are dropped.
func ScanTags(doc string) []Tag {
	var tags []Tag
	for _, m := range tagPattern.FindAllStringSubmatch(doc, -1) {
		name := m[1]
		if voidElements[strings.ToLower(name)] {
			continue
		}
		tags = append(tags, Tag{Name: name, Closing: strings.HasPrefix(m[0], "</")})
	}
	return tags
}

// UnbalancedTags runs a stack over tags: opens are pushed, a close pops a
// matching top or is flagged. It returns the names left open followed by
// the stray closes, without duplicates.
func UnbalancedTags(tags []Tag) []string {
	var stack, stray []string
	for _, t := range tags {
		if !t.Closing {
			stack = append(stack, t.Name)
			continue
		}
		if n := len(stack); n > 0 && stack[n-1] == t.Name {
			stack = stack[:n-1]
		} else {
			stray = append(stray, t.Name)
		}
	}

	seen := make(map[string]bool)
	var out []string
	for _, name := range append(stack, stray...) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// FindUnclosedTags returns the tags in doc that are never closed or are
// closed out of order.
func FindUnclosedTags(doc string) []string {
	return UnbalancedTags(ScanTags(doc))
}

// LastTextParagraph returns the last non-blank run of text outside markup,
// or "" if there is none.
func LastTextParagraph(doc string) string {
	text := markupStrip.ReplaceAllString(doc, "\n")
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if p := strings.TrimSpace(lines[i]); p != "" {
			return p
		}
	}
	return ""
}

// IsSemanticallyComplete is the stricter check used in strict mode: every
// tag must balance and the last paragraph must not end mid-sentence.
func IsSemanticallyComplete(doc string) bool {
	if len(FindUnclosedTags(doc)) > 0 {
		return false
	}
	last := LastTextParagraph(doc)
	for _, re := range dangling {
		if re.MatchString(last) {
			return false
		}
	}
	return true
}
