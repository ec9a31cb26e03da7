package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	HistorySize int           // records kept after compaction/prune; 0 keeps all
}

// RunRecord captures the outcome of one digest run.
// Keep it compact and schema-stable.
type RunRecord struct {
	ID            string    `json:"id"`
	At            time.Time `json:"at"`
	Notifications int       `json:"notifications"`
	Channel       string    `json:"channel"`
	SummaryChars  int       `json:"summary_chars"`
	Error         string    `json:"error,omitempty"`
	TookMS        int64     `json:"took_ms"`
}
