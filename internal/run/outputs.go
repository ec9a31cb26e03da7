package run

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	logx "digestbot/pkg/logx"
)

// EnvOutput is the variable naming the outputs file in workflow runs.
const EnvOutput = "GITHUB_OUTPUT"

// EnvOutputWriter appends run outputs to the file named by $GITHUB_OUTPUT
// in the key=value / heredoc format the calling environment parses. When
// the variable is unset (daemon runs, local use) it only logs.
type EnvOutputWriter struct {
	log logx.Logger
}

func NewEnvOutputWriter(log logx.Logger) *EnvOutputWriter {
	return &EnvOutputWriter{log: log.With(logx.String("comp", "outputs"))}
}

func (w *EnvOutputWriter) Publish(outputs Outputs) error {
	w.log.Info("run outputs",
		logx.Int("notification-count", outputs.NotificationCount),
		logx.Int("summary_chars", len(outputs.Summary)),
	)

	path := strings.TrimSpace(os.Getenv(EnvOutput))
	if path == "" {
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open outputs file: %w", err)
	}
	defer f.Close()

	// Multi-line value needs a heredoc; a random delimiter keeps summary
	// content from terminating the block early.
	delim := "ghadelimiter_" + uuid.NewString()
	_, err = fmt.Fprintf(f, "notification-count=%d\nsummary<<%s\n%s\n%s\n",
		outputs.NotificationCount, delim, outputs.Summary, delim)
	if err != nil {
		return fmt.Errorf("write outputs: %w", err)
	}
	return nil
}
