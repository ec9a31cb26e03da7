package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	logx "digestbot/pkg/logx"
)

// compactEvery bounds how often the run log is rewritten. Runs are
// infrequent, so compaction stays cheap.
const compactEvery = 100

// fileStore persists runs as append-only JSON Lines next to the
// configured path, in <base>.runs.jsonl. The log is compacted down to
// Config.HistorySize records every compactEvery appends.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	path        string
	file        *os.File
	historySize int
	writes      int
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	path := runLogPath(cfg.Path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{
		log:         log,
		path:        path,
		file:        f,
		historySize: cfg.HistorySize,
	}, nil
}

// runLogPath derives the log location from the configured storage path,
// replacing its extension with .runs.jsonl.
func runLogPath(path string) string {
	path = strings.TrimSpace(path)
	trimmed := strings.TrimSuffix(path, filepath.Ext(path))
	return trimmed + ".runs.jsonl"
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *fileStore) AppendRun(ctx context.Context, r RunRecord) error {
	_ = ctx
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	line, err := json.Marshal(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("run log closed")
	}
	if _, err := s.file.Write(append(line, '\n')); err != nil {
		return err
	}
	s.writes++
	if s.historySize > 0 && s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("run log compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) RecentRuns(ctx context.Context, n int) ([]RunRecord, error) {
	_ = ctx
	if n <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := readRuns(s.path)
	if err != nil {
		return nil, err
	}
	if len(recs) > n {
		recs = recs[len(recs)-n:]
	}
	out := make([]RunRecord, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		out = append(out, recs[i])
	}
	return out, nil
}

// compactLocked rewrites the log keeping the newest historySize records
// and swaps the append handle onto the new file. Call with s.mu held.
func (s *fileStore) compactLocked() error {
	recs, err := readRuns(s.path)
	if err != nil {
		return err
	}
	if len(recs) <= s.historySize {
		return nil
	}
	if err := writeRuns(s.path, recs[len(recs)-s.historySize:]); err != nil {
		return err
	}

	_ = s.file.Close()
	nf, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		s.file = nil
		return err
	}
	s.file = nf
	return nil
}

// writeRuns replaces the log atomically via a temp file and rename.
func writeRuns(path string, recs []RunRecord) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	w := bufio.NewWriter(tmp)
	for _, r := range recs {
		line, err := json.Marshal(r)
		if err != nil {
			_ = tmp.Close()
			return err
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			_ = tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// readRuns loads every well-formed record, skipping corrupt lines such
// as a torn final write.
func readRuns(path string) ([]RunRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []RunRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var r RunRecord
		if err := json.Unmarshal(line, &r); err != nil || r.ID == "" {
			continue
		}
		out = append(out, r)
	}
	return out, sc.Err()
}
