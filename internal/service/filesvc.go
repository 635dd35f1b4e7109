package service

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fileshare/internal/domain"
)

type FileStore interface {
	GetFile(id string) (domain.FileEntry, error)
	PutFiles(entries ...domain.FileEntry) error
	DeleteFiles(ids ...string) error
	ListFiles() []domain.FileEntry
	FilesOwnedBy(owner string) []domain.FileEntry
	Settings() domain.Settings
}

// Upload is one incoming file from a multipart request.
type Upload struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// FileService owns the file/bundle registry and the artifacts behind it.
// Mutations are serialized by mu so two concurrent uploads cannot both
// pass the same quota check.
type FileService struct {
	mu      sync.Mutex
	Store   FileStore
	Storage *StorageService
	Logger  *slog.Logger
	Now     func() time.Time
	NewID   func() string
}

func (s *FileService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *FileService) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *FileService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Upload stores a batch of files for owner. The whole batch is admitted
// or rejected: the quota and bundle-size checks run before any artifact
// is written, and a failed write rolls back the artifacts already
// written. More than one accepted file produces a bundle entry.
func (s *FileService) Upload(owner string, uploads []Upload) ([]domain.FileEntry, *domain.FileEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(uploads) == 0 {
		return nil, nil, domain.NewValidationError(map[string]string{"files": "no files selected"})
	}
	settings := s.Store.Settings()
	if max := settings.MaxFilesPerBundle; max > 0 && len(uploads) > max {
		return nil, nil, domain.NewValidationError(map[string]string{
			"files": fmt.Sprintf("maximum %d files allowed", max),
		})
	}

	var incoming int64
	for _, up := range uploads {
		incoming += up.Size
	}
	if err := s.Storage.CheckQuota(owner, incoming); err != nil {
		return nil, nil, err
	}

	if err := os.MkdirAll(s.Storage.UploadDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create upload dir: %w", err)
	}

	owner = domain.NormalizeUsername(owner)
	now := s.now()
	bundleID := s.newID()

	var entries []domain.FileEntry
	rollback := func() {
		for _, e := range entries {
			_ = os.Remove(s.Storage.ArtifactPath(e))
		}
	}

	for _, up := range uploads {
		id := s.newID()
		filename := SanitizeFilename(up.Filename)
		entry := domain.FileEntry{
			ID:         id,
			Filename:   filename,
			StoredName: id + "_" + filename,
			Owner:      owner,
			UploadedAt: now,
			BundleID:   bundleID,
		}
		if err := s.writeArtifact(entry, up.Content); err != nil {
			rollback()
			return nil, nil, err
		}
		entries = append(entries, entry)
	}

	records := make([]domain.FileEntry, len(entries))
	copy(records, entries)

	var bundle *domain.FileEntry
	if len(entries) > 1 {
		children := make([]string, len(entries))
		for i, e := range entries {
			children[i] = e.ID
		}
		bundle = &domain.FileEntry{
			ID:         bundleID,
			Filename:   fmt.Sprintf("Bundle of %d files", len(entries)),
			Owner:      owner,
			UploadedAt: now,
			IsBundle:   true,
			Files:      children,
		}
		records = append(records, *bundle)
	} else {
		// A single file needs no bundle wrapper.
		records[0].BundleID = ""
		entries[0].BundleID = ""
	}

	if err := s.Store.PutFiles(records...); err != nil {
		rollback()
		return nil, nil, err
	}
	return entries, bundle, nil
}

func (s *FileService) writeArtifact(e domain.FileEntry, content io.Reader) error {
	tmp, err := os.CreateTemp(s.Storage.UploadDir, "upload-*")
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	if _, err := io.Copy(tmp, content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Storage.ArtifactPath(e)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("store artifact: %w", err)
	}
	return nil
}

// Delete removes a file or, for bundles, cascades over every child.
// Child artifact-removal failures are logged and the cascade keeps
// going, so the registry never keeps dangling bundle references. The
// returned count is the number of artifacts actually removed.
func (s *FileService) Delete(actor domain.User, id string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.Store.GetFile(id)
	if err != nil {
		return 0, false, err
	}
	if !actor.IsAdmin() && entry.Owner != domain.NormalizeUsername(actor.Username) {
		return 0, false, domain.ErrForbidden
	}

	if entry.IsBundle {
		removed := 0
		ids := make([]string, 0, len(entry.Files)+1)
		for _, childID := range entry.Files {
			child, err := s.Store.GetFile(childID)
			if err == nil {
				if s.removeArtifact(child) {
					removed++
				}
			}
			ids = append(ids, childID)
		}
		ids = append(ids, entry.ID)
		if err := s.Store.DeleteFiles(ids...); err != nil {
			return removed, true, err
		}
		return removed, true, nil
	}

	path := s.Storage.ArtifactPath(entry)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, false, fmt.Errorf("remove artifact: %w", err)
	}
	if err := s.Store.DeleteFiles(entry.ID); err != nil {
		return 1, false, err
	}
	return 1, false, nil
}

// DeleteAll wipes either the actor's own entries or, for an admin in the
// all-files view, the whole registry. Returns the number of registry
// entries removed.
func (s *FileService) DeleteAll(actor domain.User, everything bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if everything && !actor.IsAdmin() {
		return 0, domain.ErrForbidden
	}

	var targets []domain.FileEntry
	if everything {
		targets = s.Store.ListFiles()
	} else {
		targets = s.Store.FilesOwnedBy(actor.Username)
	}
	if len(targets) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(targets))
	for _, e := range targets {
		s.removeArtifact(e)
		ids = append(ids, e.ID)
	}
	if err := s.Store.DeleteFiles(ids...); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// PurgeUser removes every entry and artifact owned by username. Used
// when an expired account slot is reused and when an admin hard-deletes
// a user.
func (s *FileService) PurgeUser(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purgeUserLocked(username)
}

func (s *FileService) purgeUserLocked(username string) error {
	targets := s.Store.FilesOwnedBy(username)
	if len(targets) == 0 {
		return nil
	}
	ids := make([]string, 0, len(targets))
	for _, e := range targets {
		s.removeArtifact(e)
		ids = append(ids, e.ID)
	}
	return s.Store.DeleteFiles(ids...)
}

// removeArtifact deletes an entry's content best-effort and reports
// whether a file was actually removed.
func (s *FileService) removeArtifact(e domain.FileEntry) bool {
	if e.IsBundle || e.StoredName == "" {
		return false
	}
	err := os.Remove(s.Storage.ArtifactPath(e))
	if err == nil {
		return true
	}
	if !errors.Is(err, os.ErrNotExist) {
		s.logger().Error("file: remove artifact failed", "id", e.ID, "err", err)
	}
	return false
}

// SanitizeFilename strips directory components and anything outside a
// conservative character set, so stored names are safe to join onto the
// upload directory.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "file"
	}
	return out
}
