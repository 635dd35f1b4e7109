package service

import (
	"fmt"
	"os"
	"path/filepath"

	"fileshare/internal/domain"
)

type StorageStore interface {
	GetUser(username string) (domain.User, error)
	FilesOwnedBy(owner string) []domain.FileEntry
	ListFiles() []domain.FileEntry
	Settings() domain.Settings
}

// StorageService computes per-user byte usage and enforces quotas at
// upload time. Artifact sizes come from the filesystem, so a missing
// artifact simply contributes nothing.
type StorageService struct {
	Store     StorageStore
	UploadDir string
}

// ArtifactPath resolves where a non-bundle entry's content lives.
func (s *StorageService) ArtifactPath(e domain.FileEntry) string {
	return filepath.Join(s.UploadDir, e.StoredName)
}

// ArtifactSize stats an entry's artifact. Bundles and missing artifacts
// are zero bytes, never an error.
func (s *StorageService) ArtifactSize(e domain.FileEntry) int64 {
	if e.IsBundle || e.StoredName == "" {
		return 0
	}
	info, err := os.Stat(s.ArtifactPath(e))
	if err != nil {
		return 0
	}
	return info.Size()
}

// Usage sums the existing-artifact sizes of a user's non-bundle entries.
func (s *StorageService) Usage(username string) int64 {
	var total int64
	for _, e := range s.Store.FilesOwnedBy(username) {
		total += s.ArtifactSize(e)
	}
	return total
}

// UsageSummary is Usage plus the file and bundle counts shown on the
// profile page.
func (s *StorageService) UsageSummary(username string) (bytes int64, files, bundles int) {
	for _, e := range s.Store.FilesOwnedBy(username) {
		if e.IsBundle {
			bundles++
			continue
		}
		files++
		bytes += s.ArtifactSize(e)
	}
	return bytes, files, bundles
}

// ServerUsage sums every non-bundle artifact on the server.
func (s *StorageService) ServerUsage() int64 {
	var total int64
	for _, e := range s.Store.ListFiles() {
		total += s.ArtifactSize(e)
	}
	return total
}

// CheckQuota admits or rejects an incoming batch as a whole. On
// rejection the returned StorageExceededError carries the available
// room, so the refusal message can report it.
func (s *StorageService) CheckQuota(username string, incomingBytes int64) error {
	u, err := s.Store.GetUser(username)
	if err != nil {
		return err
	}
	limit := domain.EffectiveStorageLimitBytes(u, s.Store.Settings())
	used := s.Usage(username)
	if used+incomingBytes > limit {
		available := limit - used
		if available < 0 {
			available = 0
		}
		return &domain.StorageExceededError{AvailableBytes: available, LimitBytes: limit}
	}
	return nil
}

const (
	kib = 1024
	mib = 1024 * kib
	gib = 1024 * mib
)

// FormatBytes renders a size with binary prefixes and two decimals, the
// precision quota messages and the profile page use.
func FormatBytes(n int64) string {
	switch {
	case n < kib:
		return fmt.Sprintf("%d B", n)
	case n < mib:
		return fmt.Sprintf("%.2f KB", float64(n)/kib)
	case n < gib:
		return fmt.Sprintf("%.2f MB", float64(n)/mib)
	default:
		return fmt.Sprintf("%.2f GB", float64(n)/gib)
	}
}

// FormatBytesShort is the one-decimal variant used on file pages and the
// admin dashboard.
func FormatBytesShort(n int64) string {
	switch {
	case n < kib:
		return fmt.Sprintf("%d B", n)
	case n < mib:
		return fmt.Sprintf("%.1f KB", float64(n)/kib)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/mib)
	}
}
