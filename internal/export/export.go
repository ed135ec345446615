// ABOUTME: Renders a stored conversation as a standalone HTML page
// ABOUTME: Model turns go through the markup-lite formatter, user turns through markdown

package export

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/2389/botdesk/internal/format"
	"github.com/2389/botdesk/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTmpl = template.Must(template.ParseFS(templateFS, "templates/conversation.html"))

type messageItem struct {
	IsUser         bool
	AttachmentName string
	Body           template.HTML
}

type pageData struct {
	Title      string
	Profile    *store.BusinessProfile
	Messages   []messageItem
	ExportedAt string
}

// Options tune an export.
type Options struct {
	// Profile is included when non-nil and not blank.
	Profile *store.BusinessProfile
	// Now stamps the page. Zero means time.Now.
	Now time.Time
}

// HTML writes conv to w as a complete HTML document.
func HTML(w io.Writer, conv store.Conversation, opts Options) error {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	data := pageData{
		Title:      conv.Title,
		ExportedAt: now.Format(time.RFC1123),
	}
	if opts.Profile != nil && !opts.Profile.IsBlank() {
		data.Profile = opts.Profile
	}

	for i, m := range conv.Messages {
		item := messageItem{IsUser: m.IsUser, AttachmentName: m.AttachmentName}
		if m.IsUser {
			body, err := format.RenderMarkdown(m.Text)
			if err != nil {
				return fmt.Errorf("rendering message %d: %w", i, err)
			}
			item.Body = template.HTML(body) //nolint:gosec // goldmark drops raw HTML
		} else {
			item.Body = template.HTML(format.Format(m.Text)) //nolint:gosec // Format escapes its input
		}
		data.Messages = append(data.Messages, item)
	}

	if err := pageTmpl.Execute(w, data); err != nil {
		return fmt.Errorf("rendering page: %w", err)
	}
	return nil
}
