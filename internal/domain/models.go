package domain

import (
	"strings"
	"time"
)

// GracePeriod is how long a soft-deleted account can still be recovered
// by its owner before it becomes a candidate for permanent removal.
const GracePeriod = 30 * 24 * time.Hour

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// AccountState is derived from the deletion timestamp, never stored.
type AccountState string

const (
	AccountActive          AccountState = "active"
	AccountPendingDeletion AccountState = "pending_deletion"
	AccountPurged          AccountState = "purged"
)

// User is keyed by its lowercase username in the users document.
type User struct {
	Username       string     `json:"username"`
	PasswordHash   string     `json:"password_hash"`
	Email          string     `json:"email"`
	Role           Role       `json:"role"`
	StorageLimitMB int64      `json:"storage_limit_mb"`
	StoragePublic  bool       `json:"storage_public"`
	ProfilePicture string     `json:"profile_picture,omitempty"`
	EmailVerified  bool       `json:"email_verified"`
	CreatedAt      time.Time  `json:"created_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// State reports the lifecycle state of the account at the given instant.
func (u User) State(now time.Time) AccountState {
	switch {
	case u.DeletedAt == nil:
		return AccountActive
	case GracePeriodElapsed(now, *u.DeletedAt):
		return AccountPurged
	default:
		return AccountPendingDeletion
	}
}

// GracePeriodElapsed is the single place the 30-day rule lives.
func GracePeriodElapsed(now, deletedAt time.Time) bool {
	return now.After(deletedAt.Add(GracePeriod))
}

// PurgeDate is when a pending-deletion account leaves its grace period.
func PurgeDate(deletedAt time.Time) time.Time {
	return deletedAt.Add(GracePeriod)
}

// NormalizeUsername maps a login name onto its storage key.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// FileEntry describes either a stored file or a bundle marker. Bundle
// entries carry Files and no stored artifact of their own.
type FileEntry struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	StoredName string    `json:"stored_name,omitempty"`
	Owner      string    `json:"owner"`
	UploadedAt time.Time `json:"uploaded_at"`
	BundleID   string    `json:"bundle_id,omitempty"`
	IsBundle   bool      `json:"is_bundle,omitempty"`
	Files      []string  `json:"files,omitempty"`
}

type RequestType string

const (
	RequestPasswordReset     RequestType = "password_reset"
	RequestEmailVerification RequestType = "email_verification"
	RequestAccountRecovery   RequestType = "account_recovery"
)

// RecoveryRequest is a pending token- or time-bound action: a password
// reset, an email verification, or an account-recovery plea awaiting an
// admin decision.
type RecoveryRequest struct {
	Type        RequestType `json:"type"`
	Username    string      `json:"username"`
	Token       string      `json:"token,omitempty"`
	RequestedAt time.Time   `json:"requested_at"`
	DeletedAt   *time.Time  `json:"deleted_at,omitempty"`
	Role        Role        `json:"role,omitempty"`
}

const (
	PasswordResetTTL     = time.Hour
	EmailVerificationTTL = 24 * time.Hour
)

// Expired reports whether a token-bearing request is past its window.
// Plain account-recovery requests never expire on their own.
func (r RecoveryRequest) Expired(now time.Time) bool {
	switch r.Type {
	case RequestPasswordReset:
		return now.Sub(r.RequestedAt) >= PasswordResetTTL
	case RequestEmailVerification:
		return now.Sub(r.RequestedAt) >= EmailVerificationTTL
	default:
		return false
	}
}

// VerificationKey is the recovery-document key for a user's pending
// email verification, distinct from the bare username used by resets.
func VerificationKey(username string) string {
	return "verify_" + username
}

// SMTPSettings is the outbound-mail block embedded in Settings.
type SMTPSettings struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	UseTLS      bool   `json:"use_tls"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	FromName    string `json:"from_name,omitempty"`
	FromAddress string `json:"from_address"`
}

func (s SMTPSettings) Configured() bool {
	return s.Host != "" && s.FromAddress != ""
}

// Settings is the single mutable application-settings record.
type Settings struct {
	AppName              string       `json:"app_name"`
	MaxFileSizeMB        int64        `json:"max_file_size_mb"`
	MaxFilesPerBundle    int          `json:"max_files_per_bundle"`
	RegistrationOpen     bool         `json:"registration_open"`
	TotalServerStorageMB int64        `json:"total_server_storage_mb"`
	UserStorageLimitMB   int64        `json:"user_storage_limit_mb"`
	Email                SMTPSettings `json:"email"`
}

// DefaultSettings are used when the settings document is missing or
// unreadable.
func DefaultSettings() Settings {
	return Settings{
		AppName:              "FileShare",
		MaxFileSizeMB:        40,
		MaxFilesPerBundle:    5,
		RegistrationOpen:     true,
		TotalServerStorageMB: 500,
		UserStorageLimitMB:   50,
	}
}

// EffectiveStorageLimitBytes resolves a user's quota: the per-user limit
// when set, otherwise the configured default.
func EffectiveStorageLimitBytes(u User, s Settings) int64 {
	limitMB := u.StorageLimitMB
	if limitMB <= 0 {
		limitMB = s.UserStorageLimitMB
	}
	return limitMB * 1024 * 1024
}
