package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*$`)

// NormalizeSpec turns a schedule string into a cron spec the parser accepts.
//
// Supported forms:
//   - Cron (crontab.guru-style): "*/5 * * * *", "0 9 * * 1-5", "@hourly", "@every 24h"
//   - Daily HH:MM in the scheduler timezone: "09:00" means every day at 09:00
//   - Interval duration: "12h", "90m"
func NormalizeSpec(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("schedule required")
	}

	// Any whitespace or a leading '@' is already a cron expression.
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return s, nil
	}

	if m := reHHMM.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		if h > 23 || min > 59 {
			return "", fmt.Errorf("invalid time %q, expected HH:MM", s)
		}
		return fmt.Sprintf("%d %d * * *", min, h), nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return "", fmt.Errorf("interval must be > 0")
		}
		return fmt.Sprintf("@every %s", d.String()), nil
	}

	return "", fmt.Errorf(
		"invalid schedule %q (use cron like '0 9 * * *', daily 'HH:MM', or duration like '12h')",
		raw,
	)
}
