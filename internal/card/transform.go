package card

import (
	"fmt"
	"regexp"
)

// linkRefPattern matches the inline parenthesized reference markers the model
// emits for cited links, e.g. "(ref: https://example.com/a)".
var linkRefPattern = regexp.MustCompile(`\(ref:\s*(https?://[^\s)]+)\s*\)`)

// ContentTransformer rewrites inline link references into numbered footnote
// tags. Numbers are assigned in first-seen order and are stable for the
// lifetime of one session; a repeated URL reuses its number. Build a fresh
// transformer per session so numbering never leaks across sessions.
type ContentTransformer struct {
	numbers map[string]int
	order   []string
}

func NewContentTransformer() *ContentTransformer {
	return &ContentTransformer{numbers: make(map[string]int)}
}

// Apply rewrites every link-reference marker in chunk. Text with no markers
// passes through unchanged. Apply is meant to run exactly once per chunk, in
// arrival order, before the chunk reaches the lifecycle.
func (t *ContentTransformer) Apply(chunk string) string {
	return linkRefPattern.ReplaceAllStringFunc(chunk, func(m string) string {
		url := linkRefPattern.FindStringSubmatch(m)[1]
		n, ok := t.numbers[url]
		if !ok {
			n = len(t.numbers) + 1
			t.numbers[url] = n
			t.order = append(t.order, url)
		}
		return fmt.Sprintf("[^%d]", n)
	})
}

// Links returns the referenced URLs in footnote-number order.
func (t *ContentTransformer) Links() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}
