// ABOUTME: Turns markup-lite model output into the HTML fragment the renderer consumes
// ABOUTME: Fixed ordered rewrite rules; later rules never see the raw markers of earlier ones

package format

import (
	"html"
	"regexp"
	"strings"
)

// Bullet is the glyph substituted for a "* " list marker.
const Bullet = "•"

// LineBreak is the break marker emitted for newlines and list items.
const LineBreak = "<br/>"

var (
	boldPattern         = regexp.MustCompile(`\*\*(.*?)\*\*`)
	emphasisPattern     = regexp.MustCompile(`_(.*?)_`)
	codePattern         = regexp.MustCompile("`(.*?)`")
	lineBulletPattern   = regexp.MustCompile(`(?m)^\* `)
	inlineBulletPattern = regexp.MustCompile(`\* `)
	boldBreakPattern    = regexp.MustCompile(`<strong>(.*?)</strong><br/>`)
)

// Format converts raw model text into markup. It never fails: unterminated
// markers are left as literal text.
//
// Rules, in order:
//  1. **text** becomes <strong>text</strong>
//  2. _text_ becomes <em>text</em>
//  3. `text` becomes <code>text</code>
//  4. "* " opening a line becomes the bullet glyph (the newline before it is
//     the break); "* " anywhere else becomes a break plus the glyph
//  5. blank-line gaps become two breaks
//  6. remaining newlines become one break
//  7. a break directly after a closed bold span is dropped
//
// The input is HTML-escaped before any rule runs so model output cannot
// inject tags of its own.
func Format(raw string) string {
	out := html.EscapeString(raw)
	out = boldPattern.ReplaceAllString(out, "<strong>$1</strong>")
	out = emphasisPattern.ReplaceAllString(out, "<em>$1</em>")
	out = codePattern.ReplaceAllString(out, "<code>$1</code>")
	out = lineBulletPattern.ReplaceAllLiteralString(out, Bullet+" ")
	out = inlineBulletPattern.ReplaceAllLiteralString(out, LineBreak+Bullet+" ")
	out = strings.ReplaceAll(out, "\n\n", LineBreak+LineBreak)
	out = strings.ReplaceAll(out, "\n", LineBreak)
	out = boldBreakPattern.ReplaceAllString(out, "<strong>$1</strong>")
	return out
}
