package jsonstore

import (
	"sort"

	"fileshare/internal/domain"
)

func cloneEntry(e domain.FileEntry) domain.FileEntry {
	if e.Files != nil {
		files := make([]string, len(e.Files))
		copy(files, e.Files)
		e.Files = files
	}
	return e
}

// GetFile looks up a file or bundle entry by identifier.
func (s *Store) GetFile(id string) (domain.FileEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.files[id]
	if !ok {
		return domain.FileEntry{}, domain.ErrNotFound
	}
	return cloneEntry(e), nil
}

// PutFiles inserts a batch of entries and persists the document once.
// An upload that produced a bundle stores the children and the bundle
// entry in the same write.
func (s *Store) PutFiles(entries ...domain.FileEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		s.files[e.ID] = cloneEntry(e)
	}
	return s.saveLocked(filesFile, s.files)
}

// DeleteFiles removes the given entries and persists once. Unknown ids
// are skipped so cascades stay idempotent.
func (s *Store) DeleteFiles(ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.files, id)
	}
	return s.saveLocked(filesFile, s.files)
}

// ListFiles returns every registry entry, newest first.
func (s *Store) ListFiles() []domain.FileEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.FileEntry, 0, len(s.files))
	for _, e := range s.files {
		out = append(out, cloneEntry(e))
	}
	sortEntries(out)
	return out
}

// FilesOwnedBy returns the entries (files and bundles) owned by a user,
// newest first.
func (s *Store) FilesOwnedBy(owner string) []domain.FileEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owner = domain.NormalizeUsername(owner)
	var out []domain.FileEntry
	for _, e := range s.files {
		if e.Owner == owner {
			out = append(out, cloneEntry(e))
		}
	}
	sortEntries(out)
	return out
}

func sortEntries(entries []domain.FileEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].UploadedAt.Equal(entries[j].UploadedAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].UploadedAt.After(entries[j].UploadedAt)
	})
}
