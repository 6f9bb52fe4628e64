package channel

import (
	"strings"

	"notifyhub/internal/domain/notify"
)

// markdownText formats a message for robots that render markdown.
func markdownText(msg *notify.Message, linkLabel string) string {
	var b strings.Builder
	if msg.Title != "" {
		b.WriteString("### ")
		b.WriteString(msg.Title)
		b.WriteString("\n\n")
	}
	b.WriteString(msg.Body)
	if msg.ImageURL != "" {
		b.WriteString("\n\n![](")
		b.WriteString(msg.ImageURL)
		b.WriteString(")")
	}
	if msg.LinkURL != "" {
		b.WriteString("\n\n[")
		b.WriteString(linkLabel)
		b.WriteString("](")
		b.WriteString(msg.LinkURL)
		b.WriteString(")")
	}
	return b.String()
}
