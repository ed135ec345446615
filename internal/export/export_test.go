package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/botdesk/internal/store"
)

func TestHTML_RendersBothRoles(t *testing.T) {
	conv := store.Conversation{
		ID:    "c1",
		Title: "Pricing <help>",
		Messages: []store.Message{
			{Text: "Review *this* plan", IsUser: true, AttachmentName: "plan.pdf"},
			{Text: "**Summary**\n* cheap\n* fast"},
		},
	}

	var buf bytes.Buffer
	err := HTML(&buf, conv, Options{Now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)})
	require.NoError(t, err)
	out := buf.String()

	assert.Contains(t, out, "<title>Pricing &lt;help&gt;</title>")
	assert.Contains(t, out, "<em>this</em>")
	assert.Contains(t, out, "plan.pdf")
	assert.Contains(t, out, "<strong>Summary</strong>")
	assert.Contains(t, out, "• cheap")
	assert.Contains(t, out, "Fri, 02 Jan 2026")
	assert.NotContains(t, out, "Business profile")
}

func TestHTML_UserMarkupIsInert(t *testing.T) {
	conv := store.Conversation{
		Title: "x",
		Messages: []store.Message{
			{Text: "<script>alert(1)</script>", IsUser: true},
			{Text: "<img src=x onerror=alert(1)>"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, HTML(&buf, conv, Options{}))
	assert.NotContains(t, buf.String(), "<script>alert")
	assert.NotContains(t, buf.String(), "<img src=x")
}

func TestHTML_IncludesProfile(t *testing.T) {
	profile := &store.BusinessProfile{Product: "Loose leaf tea", MainChannels: "Wholesale"}

	var buf bytes.Buffer
	require.NoError(t, HTML(&buf, store.Conversation{Title: "t"}, Options{Profile: profile}))
	out := buf.String()

	assert.Contains(t, out, "Business profile")
	assert.Contains(t, out, "Loose leaf tea")
	assert.Contains(t, out, "Wholesale")
	assert.NotContains(t, out, "Target customer")
}

func TestHTML_BlankProfileOmitted(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, HTML(&buf, store.Conversation{Title: "t"}, Options{Profile: &store.BusinessProfile{}}))
	assert.NotContains(t, buf.String(), "Business profile")
}
