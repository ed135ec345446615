// ABOUTME: Full markdown rendering for text typed by the user
// ABOUTME: Wraps goldmark with raw HTML disabled so exports stay inert

package format

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Linkify, extension.Strikethrough),
)

// RenderMarkdown converts CommonMark source into an HTML fragment. Raw HTML
// in the source is omitted (goldmark's default without html.WithUnsafe).
func RenderMarkdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	return buf.String(), nil
}
