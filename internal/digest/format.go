// Package digest renders fetched notifications into the text block the
// summarizer consumes.
package digest

import (
	"strings"
	"time"

	"digestbot/internal/github"
)

// Empty is returned when the window contained no notifications.
const Empty = "No new notifications in the specified time period."

// Format renders one bullet line per notification, in input order.
// It is a pure function: identical input yields byte-identical output.
func Format(notifications []github.Notification) string {
	if len(notifications) == 0 {
		return Empty
	}

	var b strings.Builder
	for i, n := range notifications {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(n.Subject.Title)
		b.WriteString(" (")
		b.WriteString(n.Subject.Type)
		b.WriteString(") in ")
		b.WriteString(n.Repository.FullName)
		b.WriteString(" [")
		b.WriteString(n.Reason)
		b.WriteString("] updated ")
		b.WriteString(n.UpdatedAt.UTC().Format(time.RFC3339))
	}
	return b.String()
}
