// Package wal provides the durable intent log used by the transactional
// engine: one record per transaction id, written before any version derived
// from it becomes visible and deleted once the versions are applied.
package wal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const (
	recordSuffix = ".wal"
	tempSuffix   = ".tmp"
)

// Config holds configuration for the WAL manager.
type Config struct {
	Dir        string      // directory holding one file per transaction id
	Codec      Codec       // payload compression codec
	SyncWrites bool        // fsync file and directory on every write
	Logger     *zap.Logger // optional; defaults to a no-op logger
}

// DefaultConfig returns the default WAL configuration.
func DefaultConfig() *Config {
	return &Config{
		Dir:        "data/wal",
		Codec:      CodecNone,
		SyncWrites: true,
	}
}

// Manager stores durability intent records as one file per transaction id.
// A record must be on disk before the commit it belongs to takes effect, and
// is removed once the commit's versions are applied. A file that is present
// at startup therefore marks a transaction that crashed mid-commit.
type Manager struct {
	mu     sync.Mutex
	dir    string
	codec  Codec
	sync   bool
	logger *zap.Logger
	closed bool
}

// NewManager creates a WAL manager rooted at cfg.Dir, creating the
// directory if needed.
func NewManager(cfg *Config) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("wal: directory must not be empty")
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("wal: create directory: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		dir:    cfg.Dir,
		codec:  cfg.Codec,
		sync:   cfg.SyncWrites,
		logger: logger,
	}, nil
}

// Write durably persists the records for the given transaction id,
// replacing any previous record for the same id. The write is atomic:
// a crash leaves either the old record or the new one, never a torn file.
func (m *Manager) Write(txID string, records []Record) error {
	if err := validateTxID(txID); err != nil {
		return err
	}

	data, err := Encode(records, m.codec)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	final := m.recordPath(txID)
	temp := final + tempSuffix

	if err := m.writeFile(temp, data); err != nil {
		os.Remove(temp)
		return fmt.Errorf("wal: write record for %s: %w", txID, err)
	}
	if err := os.Rename(temp, final); err != nil {
		os.Remove(temp)
		return fmt.Errorf("wal: publish record for %s: %w", txID, err)
	}
	if m.sync {
		if err := m.syncDir(); err != nil {
			return fmt.Errorf("wal: sync directory for %s: %w", txID, err)
		}
	}

	m.logger.Debug("wrote durability record",
		zap.String("tx", txID),
		zap.Int("records", len(records)),
		zap.String("codec", m.codec.String()))

	return nil
}

// Read returns the records previously written for the given transaction id.
// Returns ErrNotFound if no record exists.
func (m *Manager) Read(txID string) ([]Record, error) {
	if err := validateTxID(txID); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	data, err := os.ReadFile(m.recordPath(txID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("wal: read record for %s: %w", txID, err)
	}

	records, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("wal: decode record for %s: %w", txID, err)
	}
	return records, nil
}

// Delete removes the record for the given transaction id. Deleting an
// absent record is not an error: absence already means "never started or
// fully applied".
func (m *Manager) Delete(txID string) error {
	if err := validateTxID(txID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	if err := os.Remove(m.recordPath(txID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("wal: delete record for %s: %w", txID, err)
	}
	if m.sync {
		if err := m.syncDir(); err != nil {
			return fmt.Errorf("wal: sync directory for %s: %w", txID, err)
		}
	}
	return nil
}

// Pending returns the transaction ids that still have records on disk,
// sorted for deterministic recovery order. Leftover temp files from
// interrupted writes are ignored: their commit never started to apply.
func (m *Manager) Pending() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	matches, err := filepath.Glob(filepath.Join(m.dir, "*"+recordSuffix))
	if err != nil {
		return nil, fmt.Errorf("wal: scan directory: %w", err)
	}

	ids := make([]string, 0, len(matches))
	for _, match := range matches {
		ids = append(ids, strings.TrimSuffix(filepath.Base(match), recordSuffix))
	}
	sort.Strings(ids)
	return ids, nil
}

// Close marks the manager closed. Records on disk are left untouched.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Dir returns the directory holding the records.
func (m *Manager) Dir() string {
	return m.dir
}

func (m *Manager) recordPath(txID string) string {
	return filepath.Join(m.dir, txID+recordSuffix)
}

// writeFile writes data to path, fsyncing before close when sync mode is on.
func (m *Manager) writeFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if m.sync {
		if err := f.Sync(); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

// syncDir fsyncs the WAL directory so renames and removals are durable.
func (m *Manager) syncDir() error {
	d, err := os.Open(m.dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// validateTxID rejects ids that are empty or would escape the WAL directory.
func validateTxID(txID string) error {
	if txID == "" || strings.ContainsAny(txID, `/\`) || txID == "." || txID == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidTxID, txID)
	}
	return nil
}
