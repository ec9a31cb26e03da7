//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	logx "digestbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsSQL string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	historySize int
	appends     atomic.Uint64
	pruneEvery  uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", sqliteDSN(path, cfg.BusyTimeout))
	if err != nil {
		return nil, err
	}
	// One writer at a time keeps SQLite out of SQLITE_BUSY territory.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, historySize: cfg.HistorySize, pruneEvery: 50}
	if _, err := db.ExecContext(context.Background(), migrationsSQL); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

// sqliteDSN applies the pragmas per connection rather than per Exec, so
// the driver re-applies them if the pool ever reopens.
func sqliteDSN(path string, busy time.Duration) string {
	pragmas := []string{"journal_mode(WAL)", "synchronous(NORMAL)"}
	if busy > 0 {
		pragmas = append(pragmas, fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	}
	q := make(url.Values, 1)
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	return "file:" + path + "?" + q.Encode()
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendRun(ctx context.Context, r RunRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(id, at, notifications, channel, summary_chars, err, took_ms)
		 VALUES(?,?,?,?,?,?,?)`,
		r.ID, r.At.Format(time.RFC3339Nano), r.Notifications, r.Channel,
		r.SummaryChars, nullable(r.Error), r.TookMS,
	)
	if err != nil {
		return err
	}
	s.maybePrune()
	return nil
}

// maybePrune trims history opportunistically on a small time budget, so
// appends never stall on cleanup.
func (s *sqliteStore) maybePrune() {
	if s.historySize <= 0 || s.appends.Add(1)%s.pruneEvery != 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY at DESC LIMIT ?)`,
		s.historySize,
	)
	if err != nil {
		s.log.Debug("run history prune skipped", logx.Err(err))
	}
}

func (s *sqliteStore) RecentRuns(ctx context.Context, n int) ([]RunRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, at, notifications, channel, summary_chars, err, took_ms
		 FROM runs ORDER BY at DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			rec    RunRecord
			at     string
			errCol sql.NullString
		)
		if err := rows.Scan(&rec.ID, &at, &rec.Notifications, &rec.Channel,
			&rec.SummaryChars, &errCol, &rec.TookMS); err != nil {
			return nil, err
		}
		if ts, perr := time.Parse(time.RFC3339Nano, at); perr == nil {
			rec.At = ts
		}
		rec.Error = errCol.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullable(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
