package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "digestbot/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(driver=%q) error: %v", driver, err)
		}
		if st != nil {
			t.Fatalf("Open(driver=%q) = %T, want nil store", driver, st)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()

	if _, err := Open(Config{Driver: "bogus"}, logx.Nop()); err == nil {
		t.Fatal("Open(bogus) succeeded, want error")
	}
}

func TestFileStoreAppendAndRecent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "digestbot.db")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer st.Close()

	base := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		rec := RunRecord{
			ID:            id,
			At:            base.Add(time.Duration(i) * time.Hour),
			Notifications: i,
			Channel:       "slack",
		}
		if err := st.AppendRun(context.Background(), rec); err != nil {
			t.Fatalf("AppendRun(%s) error: %v", id, err)
		}
	}

	recs, err := st.RecentRuns(context.Background(), 2)
	if err != nil {
		t.Fatalf("RecentRuns() error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("RecentRuns() = %d records, want 2", len(recs))
	}
	if recs[0].ID != "c" || recs[1].ID != "b" {
		t.Fatalf("RecentRuns() order = %s, %s; want c, b (newest first)", recs[0].ID, recs[1].ID)
	}
	if recs[0].Notifications != 2 || recs[0].Channel != "slack" {
		t.Fatalf("record round-trip mismatch: %+v", recs[0])
	}
}

func TestFileStoreDefaultsIDAndTime(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "digestbot.db")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer st.Close()

	if err := st.AppendRun(context.Background(), RunRecord{Channel: "issue"}); err != nil {
		t.Fatalf("AppendRun() error: %v", err)
	}
	recs, err := st.RecentRuns(context.Background(), 1)
	if err != nil {
		t.Fatalf("RecentRuns() error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("RecentRuns() = %d records, want 1", len(recs))
	}
	if recs[0].ID == "" {
		t.Fatal("ID not defaulted")
	}
	if recs[0].At.IsZero() {
		t.Fatal("At not defaulted")
	}
}

func TestFileStoreCompact(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "digestbot.db")
	st, err := Open(Config{Driver: "file", Path: path, HistorySize: 2}, logx.Nop())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer st.Close()

	base := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rec := RunRecord{ID: string(rune('a' + i)), At: base.Add(time.Duration(i) * time.Hour)}
		if err := st.AppendRun(context.Background(), rec); err != nil {
			t.Fatalf("AppendRun() error: %v", err)
		}
	}

	fs := st.(*fileStore)
	fs.mu.Lock()
	err = fs.compactLocked()
	fs.mu.Unlock()
	if err != nil {
		t.Fatalf("compactLocked() error: %v", err)
	}

	recs, err := st.RecentRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentRuns() error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records after compact = %d, want 2", len(recs))
	}
	if recs[0].ID != "e" || recs[1].ID != "d" {
		t.Fatalf("compact kept %s, %s; want e, d", recs[0].ID, recs[1].ID)
	}

	// The append handle survives the rewrite.
	if err := st.AppendRun(context.Background(), RunRecord{ID: "f", At: base.Add(9 * time.Hour)}); err != nil {
		t.Fatalf("AppendRun() after compact error: %v", err)
	}
	recs, err = st.RecentRuns(context.Background(), 1)
	if err != nil {
		t.Fatalf("RecentRuns() error: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "f" {
		t.Fatalf("latest record = %+v, want f", recs)
	}
}
