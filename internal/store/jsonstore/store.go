// Package jsonstore owns the four JSON documents that back the
// application: users, file metadata, settings, and recovery requests.
// Documents are read fully into memory at open time and rewritten
// wholesale, via temp-file-then-rename, on every mutation. The store is
// the single source of truth during the process lifetime; the files on
// disk are its durability shadow.
package jsonstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"fileshare/internal/domain"
)

const (
	usersFile    = "users.json"
	filesFile    = "files_db.json"
	settingsFile = "settings.json"
	recoveryFile = "recovery_requests.json"
)

type Store struct {
	mu     sync.RWMutex
	dir    string
	logger *slog.Logger

	users    map[string]domain.User
	files    map[string]domain.FileEntry
	recovery map[string]domain.RecoveryRequest
	settings domain.Settings
}

// Open loads all four documents from dir, creating it if needed. A
// missing document yields defaults; an unreadable one is logged and
// replaced by defaults rather than aborting startup.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s := &Store{
		dir:      dir,
		logger:   logger,
		users:    make(map[string]domain.User),
		files:    make(map[string]domain.FileEntry),
		recovery: make(map[string]domain.RecoveryRequest),
		settings: domain.DefaultSettings(),
	}

	if err := s.loadDocument(usersFile, &s.users); err != nil {
		logger.Warn("jsonstore: users document unreadable, starting empty", "err", err)
		s.users = make(map[string]domain.User)
	}
	if err := s.loadDocument(filesFile, &s.files); err != nil {
		logger.Warn("jsonstore: files document unreadable, starting empty", "err", err)
		s.files = make(map[string]domain.FileEntry)
	}
	if err := s.loadDocument(recoveryFile, &s.recovery); err != nil {
		logger.Warn("jsonstore: recovery document unreadable, starting empty", "err", err)
		s.recovery = make(map[string]domain.RecoveryRequest)
	}

	loaded := domain.DefaultSettings()
	if err := s.loadDocument(settingsFile, &loaded); err != nil {
		logger.Warn("jsonstore: settings document unreadable, using defaults", "err", err)
		loaded = domain.DefaultSettings()
	}
	s.settings = loaded

	return s, nil
}

func (s *Store) loadDocument(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, v)
}

// saveLocked rewrites a document atomically. Callers hold s.mu.
func (s *Store) saveLocked(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", name, err)
	}
	target := filepath.Join(s.dir, name)
	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", name, err)
	}
	if err := os.Chmod(target, 0o644); err != nil {
		s.logger.Warn("jsonstore: chmod failed", "doc", name, "err", err)
	}
	return nil
}
