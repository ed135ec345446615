// ABOUTME: Tests for the markup-lite formatter and the markdown renderer
// ABOUTME: Covers rule ordering, bullet handling, bold collapse, and unterminated markers

package format

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat_Rules(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"bold", "a **b** c", "a <strong>b</strong> c"},
		{"emphasis", "a _b_ c", "a <em>b</em> c"},
		{"code", "run `go test` now", "run <code>go test</code> now"},
		{"single newline", "a\nb", "a<br/>b"},
		{"paragraph gap", "a\n\nb", "a<br/><br/>b"},
		{"leading bullet", "* one", "• one"},
		{"bullet after newline", "intro\n* one\n* two", "intro<br/>• one<br/>• two"},
		{"inline bullet", "items: * one * two", "items: <br/>• one <br/>• two"},
		{"bold header collapses break", "**Title**\nbody", "<strong>Title</strong>body"},
		{"bold header keeps one of two breaks", "**Title**\n\nbody", "<strong>Title</strong><br/>body"},
		{"unterminated bold", "**text", "**text"},
		{"unterminated emphasis", "snake_case", "snake_case"},
		{"non-greedy bold", "**a** and **b**", "<strong>a</strong> and <strong>b</strong>"},
		{"escapes html", "<b>x</b> & y", "&lt;b&gt;x&lt;/b&gt; &amp; y"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.in))
		})
	}
}

func TestFormat_HeaderAndBulletScenario(t *testing.T) {
	got := Format("**Hello** world\n\n* point one")

	// Bold span directly followed by the rest of the line, one paragraph
	// gap, then the bullet with no extra break of its own.
	assert.Equal(t, "<strong>Hello</strong> world<br/><br/>• point one", got)
	assert.NotContains(t, got, "<br/><br/><br/>")
}

func TestFormat_Deterministic(t *testing.T) {
	in := "**a** _b_ `c`\n* d\n\ne"
	first := Format(in)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Format(in))
	}
}

func TestRenderMarkdown(t *testing.T) {
	out, err := RenderMarkdown("# Plan\n\nSome *text* and <script>alert(1)</script>")
	require.NoError(t, err)

	assert.Contains(t, out, "<h1>Plan</h1>")
	assert.Contains(t, out, "<em>text</em>")
	assert.False(t, strings.Contains(out, "<script>"), "raw html should be dropped")
}
