package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/okian/dropwatch/internal/domain/model"
	"github.com/okian/dropwatch/pkg/logger"
)

const backendCSV = "csv"

// CSVStore keeps the log in a single CSV file, which is the source of
// truth: every call goes back to disk. Writers are serialized by mu;
// updates rewrite the file through a temp file and rename.
type CSVStore struct {
	mu   sync.RWMutex
	path string
	log  logger.Logger
}

var _ Store = (*CSVStore)(nil)

// NewCSVStore returns a store backed by path. The file is created lazily on
// the first Append.
func NewCSVStore(path string, opts ...Option) *CSVStore {
	o := newOptions(opts)
	return &CSVStore{path: path, log: o.log.Named("csv_store")}
}

// Path returns the backing file.
func (s *CSVStore) Path() string { return s.path }

// Append writes one row, creating the file with a header when it is absent
// or empty.
func (s *CSVStore) Append(ctx context.Context, rec model.InterventionRecord) (err error) {
	defer observe(backendCSV, "append", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure log dir: %w", err)
		}
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat log: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(Columns); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if err := w.Write(toRow(rec)); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush log: %w", err)
	}
	return f.Sync()
}

// UpdateOutcome rewrites the file with the first matching row's outcome
// replaced. Other rows keep their field text unchanged.
func (s *CSVStore) UpdateOutcome(ctx context.Context, timestamp, outcome string) (err error) {
	defer observe(backendCSV, "update_outcome", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.readRows()
	if errors.Is(err, fs.ErrNotExist) {
		return ErrStoreNotFound
	}
	if err != nil {
		return err
	}

	found := false
	for _, row := range rows {
		if row[0] == timestamp {
			row[outcomeColumn] = normalizeNewlines(outcome)
			found = true
			break
		}
	}
	if !found {
		return ErrRecordNotFound
	}
	return s.rewrite(rows)
}

// All reads every row in file order.
func (s *CSVStore) All(ctx context.Context) (_ []model.InterventionRecord, err error) {
	defer observe(backendCSV, "read_all", time.Now(), &err)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	rows, err := s.readRows()
	s.mu.RUnlock()
	if errors.Is(err, fs.ErrNotExist) {
		return []model.InterventionRecord{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]model.InterventionRecord, 0, len(rows))
	for i, row := range rows {
		rec, err := fromRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Close is a no-op; the file is opened per call.
func (s *CSVStore) Close() error { return nil }

// readRows returns the data rows without the header. The caller holds mu.
func (s *CSVStore) readRows() ([][]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(Columns)

	var rows [][]string
	for first := true; ; first = false {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptStore, err)
		}
		if first && row[0] == Columns[0] {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// rewrite replaces the file atomically. The caller holds mu.
func (s *CSVStore) rewrite(rows [][]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp log: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	w := csv.NewWriter(tmp)
	if err = tmp.Chmod(0o644); err == nil {
		err = w.Write(Columns)
	}
	if err == nil {
		err = w.WriteAll(rows)
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write temp log: %w", err)
	}
	if err = os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace log: %w", err)
	}
	s.log.Debug(context.Background(), "log rewritten", logger.String("path", s.path), logger.Int("rows", len(rows)))
	return nil
}
