// ABOUTME: Terminal rendering of messages, notices and conversation lists
// ABOUTME: Model replies go through the shared formatter and its tags are mapped onto ANSI styles

package main

import (
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/botdesk/internal/format"
	"github.com/2389/botdesk/internal/pipeline"
	"github.com/2389/botdesk/internal/store"
)

var (
	strongTag = regexp.MustCompile(`<strong>(.*?)</strong>`)
	emTag     = regexp.MustCompile(`<em>(.*?)</em>`)
	codeTag   = regexp.MustCompile(`<code>(.*?)</code>`)
)

// terminalText renders model output for a terminal: the formatter's markup
// becomes ANSI styling and its break markers become newlines.
func terminalText(raw string) string {
	out := format.Format(raw)
	out = strongTag.ReplaceAllStringFunc(out, func(m string) string {
		return color.New(color.Bold).Sprint(strongTag.FindStringSubmatch(m)[1])
	})
	out = emTag.ReplaceAllStringFunc(out, func(m string) string {
		return color.New(color.Italic).Sprint(emTag.FindStringSubmatch(m)[1])
	})
	out = codeTag.ReplaceAllStringFunc(out, func(m string) string {
		return color.CyanString(codeTag.FindStringSubmatch(m)[1])
	})
	out = strings.ReplaceAll(out, format.LineBreak, "\n")
	return html.UnescapeString(out)
}

func printMessage(w io.Writer, m store.Message) {
	if m.IsUser {
		fmt.Fprint(w, color.New(color.FgGreen, color.Bold).Sprint("You: "))
		fmt.Fprint(w, m.Text)
		if m.AttachmentName != "" {
			fmt.Fprint(w, color.HiBlackString(" [%s]", m.AttachmentName))
		}
		fmt.Fprintln(w)
		return
	}
	fmt.Fprint(w, color.New(color.FgCyan, color.Bold).Sprint("Bot: "))
	fmt.Fprintln(w, terminalText(m.Text))
}

func printTranscript(w io.Writer, msgs []store.Message) {
	for _, m := range msgs {
		printMessage(w, m)
	}
}

func printNotice(w io.Writer, n pipeline.Notice) {
	title := color.New(color.FgGreen).Sprint("[" + n.Title + "]")
	if n.Kind == pipeline.NoticeError {
		title = color.New(color.FgRed, color.Bold).Sprint("[" + n.Title + "]")
	}
	if n.Description == "" {
		fmt.Fprintln(w, title)
		return
	}
	fmt.Fprintf(w, "%s %s\n", title, n.Description)
}

func printConversations(w io.Writer, convs []store.Conversation, currentID string) {
	if len(convs) == 0 {
		fmt.Fprintln(w, "No conversations yet.")
		return
	}
	for i, c := range convs {
		marker := " "
		if c.ID == currentID {
			marker = "*"
		}
		fmt.Fprintf(w, "%s%2d. %s  %s %s\n",
			marker,
			i+1,
			color.HiBlackString(c.ID),
			truncate(c.Title, 50),
			color.HiBlackString("(%d messages)", len(c.Messages)),
		)
	}
}

// truncate shortens a string to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
