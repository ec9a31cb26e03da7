package digest

import (
	"strings"
	"testing"
	"time"

	"digestbot/internal/github"
)

func sampleNotifications() []github.Notification {
	return []github.Notification{
		{
			ID:         "3",
			Reason:     "mention",
			UpdatedAt:  time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
			Subject:    github.Subject{Title: "Fix flaky test", Type: "PullRequest"},
			Repository: github.Repository{FullName: "octo/widgets"},
		},
		{
			ID:         "2",
			Reason:     "review_requested",
			UpdatedAt:  time.Date(2024, 3, 10, 11, 30, 0, 0, time.UTC),
			Subject:    github.Subject{Title: "Add retry budget", Type: "PullRequest"},
			Repository: github.Repository{FullName: "octo/gadgets"},
		},
		{
			ID:         "1",
			Reason:     "subscribed",
			UpdatedAt:  time.Date(2024, 3, 10, 9, 15, 0, 0, time.UTC),
			Subject:    github.Subject{Title: "Release v2", Type: "Issue"},
			Repository: github.Repository{FullName: "octo/widgets"},
		},
	}
}

func TestFormatEmpty(t *testing.T) {
	t.Parallel()

	if got := Format(nil); got != Empty {
		t.Fatalf("Format(nil) = %q, want %q", got, Empty)
	}
	if got := Format([]github.Notification{}); got != Empty {
		t.Fatalf("Format(empty) = %q, want %q", got, Empty)
	}
}

func TestFormatOneLinePerNotification(t *testing.T) {
	t.Parallel()

	ns := sampleNotifications()
	got := Format(ns)

	lines := strings.Split(got, "\n")
	if len(lines) != len(ns) {
		t.Fatalf("line count = %d, want %d:\n%s", len(lines), len(ns), got)
	}
	for i, line := range lines {
		if !strings.HasPrefix(line, "- ") {
			t.Fatalf("line %d has no bullet prefix: %q", i, line)
		}
		if !strings.Contains(line, ns[i].Subject.Title) {
			t.Fatalf("line %d does not preserve input order, want title %q: %q", i, ns[i].Subject.Title, line)
		}
		for _, part := range []string{
			ns[i].Subject.Type,
			ns[i].Repository.FullName,
			ns[i].Reason,
			ns[i].UpdatedAt.UTC().Format(time.RFC3339),
		} {
			if !strings.Contains(line, part) {
				t.Fatalf("line %d missing %q: %q", i, part, line)
			}
		}
	}
}

func TestFormatDeterministic(t *testing.T) {
	t.Parallel()

	ns := sampleNotifications()
	a := Format(ns)
	b := Format(ns)
	if a != b {
		t.Fatalf("Format not deterministic:\n%q\n%q", a, b)
	}
}
