package run

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	logx "digestbot/pkg/logx"
)

func TestEnvOutputWriterPublish(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outputs")
	t.Setenv(EnvOutput, path)

	writer := NewEnvOutputWriter(logx.Nop())
	summaryText := "Line one\nLine two"
	if err := writer.Publish(Outputs{NotificationCount: 3, Summary: summaryText}); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading outputs file: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) < 4 {
		t.Fatalf("outputs file too short:\n%s", data)
	}
	if lines[0] != "notification-count=3" {
		t.Fatalf("first line = %q, want notification-count=3", lines[0])
	}
	delim, ok := strings.CutPrefix(lines[1], "summary<<")
	if !ok {
		t.Fatalf("second line = %q, want summary heredoc", lines[1])
	}
	if !strings.HasPrefix(delim, "ghadelimiter_") {
		t.Fatalf("delimiter = %q, want ghadelimiter_ prefix", delim)
	}
	if lines[len(lines)-1] != delim {
		t.Fatalf("last line = %q, want closing delimiter %q", lines[len(lines)-1], delim)
	}
	if got := strings.Join(lines[2:len(lines)-1], "\n"); got != summaryText {
		t.Fatalf("heredoc body = %q, want %q", got, summaryText)
	}
}

func TestEnvOutputWriterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outputs")
	t.Setenv(EnvOutput, path)

	writer := NewEnvOutputWriter(logx.Nop())
	if err := writer.Publish(Outputs{NotificationCount: 1, Summary: "a"}); err != nil {
		t.Fatalf("first Publish() error: %v", err)
	}
	if err := writer.Publish(Outputs{NotificationCount: 2, Summary: "b"}); err != nil {
		t.Fatalf("second Publish() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading outputs file: %v", err)
	}
	if n := strings.Count(string(data), "notification-count="); n != 2 {
		t.Fatalf("notification-count entries = %d, want 2 (appended, not truncated)", n)
	}
}

func TestEnvOutputWriterUnset(t *testing.T) {
	t.Setenv(EnvOutput, "")

	writer := NewEnvOutputWriter(logx.Nop())
	if err := writer.Publish(Outputs{NotificationCount: 5, Summary: "x"}); err != nil {
		t.Fatalf("Publish() without %s error: %v", EnvOutput, err)
	}
}
