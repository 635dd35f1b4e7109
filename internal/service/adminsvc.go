package service

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"fileshare/internal/auth"
	"fileshare/internal/domain"
)

type AdminStore interface {
	GetUser(username string) (domain.User, error)
	PutUser(u domain.User) error
	DeleteUser(username string) error
	ListUsers() []domain.User
	CountUsers() int
	ListFiles() []domain.FileEntry
	Settings() domain.Settings
	SaveSettings(s domain.Settings) error
	ListRequests() map[string]domain.RecoveryRequest
	GetRequest(key string) (domain.RecoveryRequest, error)
	DeleteRequest(key string) error
}

// AdminService backs the dashboard: aggregate statistics, settings
// mutation, and the privileged user/recovery operations.
type AdminService struct {
	Store    AdminStore
	Files    *FileService
	Storage  *StorageService
	Sessions *auth.SessionManager
	Logger   *slog.Logger
	Now      func() time.Time
}

func (s *AdminService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

type DateCount struct {
	Date  string
	Count int
}

type UserUsage struct {
	Username  string
	FileCount int
	Bytes     int64
	Formatted string
}

type ExtensionCount struct {
	Extension string
	Count     int
}

type DeletedAccount struct {
	Username  string
	Role      domain.Role
	DeletedAt time.Time
	DaysAgo   int
}

type PendingRecovery struct {
	Username    string
	RequestedAt time.Time
	DeletedAt   *time.Time
	Role        domain.Role
}

// Dashboard is the read-side aggregation: nothing is mutated here.
type Dashboard struct {
	TotalFiles       int
	TotalBundles     int
	TotalUsers       int
	StorageUsedBytes int64
	StorageUsed      string
	StoragePercent   float64
	RemainingStorage string
	MaxStorageMB     int64
	FileTypes        []ExtensionCount
	UserUsage        []UserUsage
	FilesByDate      []DateCount
	ExpiredAccounts  []DeletedAccount
	PendingRecovery  []PendingRecovery
	Settings         domain.Settings
	Users            []domain.User
}

// BuildDashboard walks the registry and the account map once, bucketing
// per extension, per user, and per calendar date.
func (s *AdminService) BuildDashboard(ctx context.Context) Dashboard {
	_ = ctx
	settings := s.Store.Settings()
	now := s.now()

	d := Dashboard{
		TotalUsers:   s.Store.CountUsers(),
		MaxStorageMB: settings.TotalServerStorageMB,
		Settings:     settings,
		Users:        s.Store.ListUsers(),
	}

	extCounts := map[string]int{}
	userFiles := map[string]int{}
	userBytes := map[string]int64{}
	byDate := map[string]int{}

	for _, e := range s.Store.ListFiles() {
		if e.IsBundle {
			d.TotalBundles++
			continue
		}
		d.TotalFiles++

		// Missing artifacts still count as files, just zero bytes.
		size := s.Storage.ArtifactSize(e)
		d.StorageUsedBytes += size

		ext := "no extension"
		if i := strings.LastIndex(e.Filename, "."); i >= 0 && i < len(e.Filename)-1 {
			ext = strings.ToLower(e.Filename[i+1:])
		}
		extCounts[ext]++

		userFiles[e.Owner]++
		userBytes[e.Owner] += size

		byDate[e.UploadedAt.Format("2006-01-02")]++
	}

	maxBytes := settings.TotalServerStorageMB * 1024 * 1024
	if maxBytes > 0 {
		d.StoragePercent = float64(d.StorageUsedBytes) / float64(maxBytes) * 100
	}
	d.StorageUsed = FormatBytesShort(d.StorageUsedBytes)
	remaining := maxBytes - d.StorageUsedBytes
	if remaining < 0 {
		remaining = 0
	}
	d.RemainingStorage = FormatBytesShort(remaining)

	for ext, n := range extCounts {
		d.FileTypes = append(d.FileTypes, ExtensionCount{Extension: ext, Count: n})
	}
	sort.Slice(d.FileTypes, func(i, j int) bool {
		if d.FileTypes[i].Count == d.FileTypes[j].Count {
			return d.FileTypes[i].Extension < d.FileTypes[j].Extension
		}
		return d.FileTypes[i].Count > d.FileTypes[j].Count
	})

	for owner, n := range userFiles {
		d.UserUsage = append(d.UserUsage, UserUsage{
			Username:  owner,
			FileCount: n,
			Bytes:     userBytes[owner],
			Formatted: FormatBytesShort(userBytes[owner]),
		})
	}
	sort.Slice(d.UserUsage, func(i, j int) bool { return d.UserUsage[i].Username < d.UserUsage[j].Username })

	for date, n := range byDate {
		d.FilesByDate = append(d.FilesByDate, DateCount{Date: date, Count: n})
	}
	sort.Slice(d.FilesByDate, func(i, j int) bool { return d.FilesByDate[i].Date < d.FilesByDate[j].Date })

	for _, u := range d.Users {
		if u.DeletedAt == nil || !domain.GracePeriodElapsed(now, *u.DeletedAt) {
			continue
		}
		d.ExpiredAccounts = append(d.ExpiredAccounts, DeletedAccount{
			Username:  u.Username,
			Role:      u.Role,
			DeletedAt: *u.DeletedAt,
			DaysAgo:   int(now.Sub(*u.DeletedAt).Hours() / 24),
		})
	}

	// Only plain account-recovery pleas belong on the dashboard; reset
	// and verification tokens are self-service.
	for _, r := range s.Store.ListRequests() {
		if r.Type == domain.RequestPasswordReset || r.Type == domain.RequestEmailVerification {
			continue
		}
		d.PendingRecovery = append(d.PendingRecovery, PendingRecovery{
			Username:    r.Username,
			RequestedAt: r.RequestedAt,
			DeletedAt:   r.DeletedAt,
			Role:        r.Role,
		})
	}
	sort.Slice(d.PendingRecovery, func(i, j int) bool { return d.PendingRecovery[i].Username < d.PendingRecovery[j].Username })

	return d
}

// SettingsUpdate carries the dashboard settings form. Values below the
// floors are clamped, not rejected, matching the dashboard's behavior.
type SettingsUpdate struct {
	AppName              string
	MaxFileSizeMB        int64
	MaxFilesPerBundle    int
	RegistrationOpen     bool
	TotalServerStorageMB int64
	UserStorageLimitMB   int64
}

func (s *AdminService) UpdateSettings(ctx context.Context, upd SettingsUpdate) error {
	_ = ctx
	settings := s.Store.Settings()

	settings.MaxFileSizeMB = max64(1, upd.MaxFileSizeMB)
	if upd.MaxFilesPerBundle < 1 {
		upd.MaxFilesPerBundle = 1
	}
	settings.MaxFilesPerBundle = upd.MaxFilesPerBundle
	settings.TotalServerStorageMB = max64(100, upd.TotalServerStorageMB)
	settings.UserStorageLimitMB = max64(10, upd.UserStorageLimitMB)
	settings.RegistrationOpen = upd.RegistrationOpen
	if name := strings.TrimSpace(upd.AppName); name != "" {
		settings.AppName = name
	}

	return s.Store.SaveSettings(settings)
}

func (s *AdminService) UpdateSMTPSettings(ctx context.Context, smtp domain.SMTPSettings) error {
	_ = ctx
	settings := s.Store.Settings()
	settings.Email = smtp
	return s.Store.SaveSettings(settings)
}

// CreateUser provisions an account directly, with the default quota.
// The account starts unverified; the owner can request a verification
// link from their profile.
func (s *AdminService) CreateUser(ctx context.Context, username, email, password string) (domain.User, error) {
	_ = ctx
	username = strings.TrimSpace(username)
	if username == "" || email == "" || password == "" {
		return domain.User{}, domain.NewValidationError(map[string]string{"user": "username, email, and password are required"})
	}

	emailLower := strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.Store.ListUsers() {
		if strings.ToLower(u.Email) == emailLower {
			return domain.User{}, domain.ErrEmailTaken
		}
	}

	key := domain.NormalizeUsername(username)
	if _, err := s.Store.GetUser(key); err == nil {
		return domain.User{}, domain.ErrUsernameTaken
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}
	u := domain.User{
		Username:       key,
		PasswordHash:   hash,
		Email:          email,
		Role:           domain.RoleUser,
		StorageLimitMB: s.Store.Settings().UserStorageLimitMB,
		StoragePublic:  true,
		CreatedAt:      s.now(),
	}
	if err := s.Store.PutUser(u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (s *AdminService) ResetPassword(ctx context.Context, username, password string) error {
	_ = ctx
	if strings.TrimSpace(username) == "" || password == "" {
		return domain.NewValidationError(map[string]string{"user": "username and new password are required"})
	}
	u, err := s.Store.GetUser(username)
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return s.Store.PutUser(u)
}

func (s *AdminService) UpdateStorageLimit(ctx context.Context, username string, limitMB int64) error {
	_ = ctx
	if limitMB < 1 {
		return domain.NewValidationError(map[string]string{"storage_limit_mb": "storage limit must be at least 1 MB"})
	}
	u, err := s.Store.GetUser(username)
	if err != nil {
		return err
	}
	u.StorageLimitMB = limitMB
	return s.Store.PutUser(u)
}

// DeleteUser hard-deletes an account: files and bundles are purged
// first, then the record is removed and its sessions revoked. Admin
// accounts are refused.
func (s *AdminService) DeleteUser(ctx context.Context, username string) error {
	_ = ctx
	u, err := s.Store.GetUser(username)
	if err != nil {
		return err
	}
	if u.IsAdmin() {
		return domain.ErrForbidden
	}

	if err := s.Files.PurgeUser(u.Username); err != nil {
		return err
	}
	if err := s.Store.DeleteUser(u.Username); err != nil {
		return err
	}
	if s.Sessions != nil {
		s.Sessions.RevokeUser(u.Username)
	}
	return nil
}

// ApproveRecovery resolves a pending account-recovery request by
// restoring the account.
func (s *AdminService) ApproveRecovery(ctx context.Context, username string) error {
	_ = ctx
	key := domain.NormalizeUsername(username)
	if _, err := s.Store.GetRequest(key); err != nil {
		return err
	}
	u, err := s.Store.GetUser(key)
	if err != nil {
		return err
	}
	u.DeletedAt = nil
	if err := s.Store.PutUser(u); err != nil {
		return err
	}
	return s.Store.DeleteRequest(key)
}

// DenyRecovery discards a pending account-recovery request.
func (s *AdminService) DenyRecovery(ctx context.Context, username string) error {
	_ = ctx
	key := domain.NormalizeUsername(username)
	if _, err := s.Store.GetRequest(key); err != nil {
		return err
	}
	return s.Store.DeleteRequest(key)
}

// RecoverDeletedUser force-recovers an account past its grace period,
// bypassing the self-service expiry refusal. Accounts still inside the
// grace period are left alone: the owner can recover those themselves.
func (s *AdminService) RecoverDeletedUser(ctx context.Context, username string) error {
	_ = ctx
	u, err := s.Store.GetUser(username)
	if err != nil {
		return err
	}
	if u.DeletedAt == nil {
		return domain.NewValidationError(map[string]string{"user": "account is not deleted"})
	}
	if !domain.GracePeriodElapsed(s.now(), *u.DeletedAt) {
		return domain.ErrGraceActive
	}
	u.DeletedAt = nil
	return s.Store.PutUser(u)
}

func max64(floor, v int64) int64 {
	if v < floor {
		return floor
	}
	return v
}
