package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fileshare/internal/auth"
	"fileshare/internal/domain"
)

type AccountStore interface {
	GetUser(username string) (domain.User, error)
	PutUser(u domain.User) error
	ListUsers() []domain.User
	Settings() domain.Settings
	PutRequest(key string, r domain.RecoveryRequest) error
	DeleteRequest(key string) error
}

// AccountService drives the account lifecycle: registration, login,
// credential changes, soft-delete with its 30-day grace period, and
// self-recovery.
type AccountService struct {
	Store      AccountStore
	Files      *FileService
	Sessions   *auth.SessionManager
	Email      *EmailService
	ProfileDir string
	Logger     *slog.Logger
	Now        func() time.Time
}

func (s *AccountService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *AccountService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Register creates a new account. A username or email held by an
// account past its grace period does not block registration: the old
// account's files, bundles, and profile picture are purged and the slot
// reused. The returned bool reports whether the verification email went
// out.
func (s *AccountService) Register(ctx context.Context, username, email, password, confirm string) (domain.User, bool, error) {
	if !s.Store.Settings().RegistrationOpen {
		return domain.User{}, false, domain.ErrRegistrationClosed
	}

	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	fields := map[string]string{}
	if username == "" {
		fields["username"] = "username is required"
	}
	if email == "" {
		fields["email"] = "email is required"
	}
	if password == "" {
		fields["password"] = "password is required"
	}
	if confirm == "" {
		fields["confirm_password"] = "confirmation is required"
	} else if password != confirm {
		fields["confirm_password"] = "passwords do not match"
	}
	if len(fields) > 0 {
		return domain.User{}, false, domain.NewValidationError(fields)
	}

	now := s.now()
	if s.emailInUse(email, "", now) {
		return domain.User{}, false, domain.ErrEmailTaken
	}

	key := domain.NormalizeUsername(username)
	if existing, err := s.Store.GetUser(key); err == nil {
		if existing.State(now) != domain.AccountPurged {
			return domain.User{}, false, domain.ErrUsernameTaken
		}
		// The grace period has elapsed: purge the old account's data
		// before handing the slot to the new owner.
		s.removeProfilePicture(existing)
		if err := s.Files.PurgeUser(key); err != nil {
			return domain.User{}, false, err
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, false, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, false, err
	}

	u := domain.User{
		Username:       key,
		PasswordHash:   hash,
		Email:          email,
		Role:           domain.RoleUser,
		StorageLimitMB: s.Store.Settings().UserStorageLimitMB,
		StoragePublic:  true,
		EmailVerified:  false,
		CreatedAt:      now,
	}
	if err := s.Store.PutUser(u); err != nil {
		return domain.User{}, false, err
	}

	// A stale password-reset request for a previous holder of this name
	// must not survive into the new account.
	if err := s.Store.DeleteRequest(key); err != nil {
		s.logger().Warn("account: drop stale reset request failed", "user", key, "err", err)
	}

	sent := true
	if err := s.createVerification(ctx, u); err != nil {
		s.logger().Warn("account: verification email failed", "user", key, "err", err)
		sent = false
	}
	return u, sent, nil
}

func (s *AccountService) createVerification(ctx context.Context, u domain.User) error {
	token, err := auth.NewToken()
	if err != nil {
		return err
	}
	req := domain.RecoveryRequest{
		Type:        domain.RequestEmailVerification,
		Username:    u.Username,
		Token:       token,
		RequestedAt: s.now(),
	}
	if err := s.Store.PutRequest(domain.VerificationKey(u.Username), req); err != nil {
		return err
	}
	if s.Email == nil {
		return errors.New("email service unavailable")
	}
	return s.Email.SendVerification(ctx, u.Email, u.Username, token)
}

// emailInUse reports whether an email belongs to any account that is
// not past its grace period. exclude skips one username (email change).
func (s *AccountService) emailInUse(email, exclude string, now time.Time) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.Store.ListUsers() {
		if u.Username == exclude {
			continue
		}
		if strings.ToLower(u.Email) != email {
			continue
		}
		if u.State(now) == domain.AccountPurged {
			continue
		}
		return true
	}
	return false
}

// Login authenticates and opens a session. An account past its grace
// period is refused with ErrAccountDeleted; one still inside it logs in
// normally so the owner can recover it (the caller inspects State for
// the warning banner).
func (s *AccountService) Login(ctx context.Context, username, password string) (domain.User, string, error) {
	_ = ctx
	u, err := s.Store.GetUser(username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, "", domain.ErrInvalidCredentials
		}
		return domain.User{}, "", err
	}
	if !auth.VerifyPassword(u.PasswordHash, password) {
		return domain.User{}, "", domain.ErrInvalidCredentials
	}
	if u.State(s.now()) == domain.AccountPurged {
		return domain.User{}, "", domain.ErrAccountDeleted
	}

	sessID, err := s.Sessions.Create(u.Username)
	if err != nil {
		return domain.User{}, "", err
	}
	return u, sessID, nil
}

func (s *AccountService) Logout(sessionID string) {
	s.Sessions.Revoke(sessionID)
}

// UserForSession resolves a session cookie to its account.
func (s *AccountService) UserForSession(sessionID string) (domain.User, bool) {
	username, ok := s.Sessions.Lookup(sessionID)
	if !ok {
		return domain.User{}, false
	}
	u, err := s.Store.GetUser(username)
	if err != nil {
		return domain.User{}, false
	}
	return u, true
}

// ChangePassword verifies the current password before replacing it.
func (s *AccountService) ChangePassword(ctx context.Context, username, current, newPassword, confirm string) error {
	_ = ctx
	fields := map[string]string{}
	if current == "" {
		fields["current_password"] = "current password is required"
	}
	if newPassword == "" {
		fields["new_password"] = "new password is required"
	}
	if confirm == "" {
		fields["confirm_password"] = "confirmation is required"
	} else if newPassword != confirm {
		fields["confirm_password"] = "passwords do not match"
	}
	if len(fields) > 0 {
		return domain.NewValidationError(fields)
	}

	u, err := s.Store.GetUser(username)
	if err != nil {
		return err
	}
	if !auth.VerifyPassword(u.PasswordHash, current) {
		return domain.ErrInvalidCredentials
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return s.Store.PutUser(u)
}

// ChangeEmail is password-gated and enforces email uniqueness across
// other accounts.
func (s *AccountService) ChangeEmail(ctx context.Context, username, newEmail, password string) error {
	_ = ctx
	newEmail = strings.TrimSpace(newEmail)
	if newEmail == "" || password == "" {
		return domain.NewValidationError(map[string]string{"email": "email and password are required"})
	}

	u, err := s.Store.GetUser(username)
	if err != nil {
		return err
	}
	if !auth.VerifyPassword(u.PasswordHash, password) {
		return domain.ErrInvalidCredentials
	}
	if s.emailInUse(newEmail, u.Username, s.now()) {
		return domain.ErrEmailTaken
	}
	u.Email = newEmail
	return s.Store.PutUser(u)
}

// ToggleStorageVisibility flips whether the profile shows storage usage
// to other users, returning the new value.
func (s *AccountService) ToggleStorageVisibility(ctx context.Context, username string) (bool, error) {
	_ = ctx
	u, err := s.Store.GetUser(username)
	if err != nil {
		return false, err
	}
	u.StoragePublic = !u.StoragePublic
	if err := s.Store.PutUser(u); err != nil {
		return false, err
	}
	return u.StoragePublic, nil
}

// UpdateProfilePicture records a freshly stored picture and returns the
// previous filename so the caller can remove the old artifact.
func (s *AccountService) UpdateProfilePicture(ctx context.Context, username, filename string) (string, error) {
	_ = ctx
	u, err := s.Store.GetUser(username)
	if err != nil {
		return "", err
	}
	previous := u.ProfilePicture
	u.ProfilePicture = filename
	if err := s.Store.PutUser(u); err != nil {
		return "", err
	}
	return previous, nil
}

// DeleteProfilePicture removes both the record reference and the stored
// artifact.
func (s *AccountService) DeleteProfilePicture(ctx context.Context, username string) error {
	_ = ctx
	u, err := s.Store.GetUser(username)
	if err != nil {
		return err
	}
	if u.ProfilePicture == "" {
		return domain.ErrNotFound
	}
	s.removeProfilePicture(u)
	u.ProfilePicture = ""
	return s.Store.PutUser(u)
}

func (s *AccountService) removeProfilePicture(u domain.User) {
	if u.ProfilePicture == "" {
		return
	}
	path := filepath.Join(s.ProfileDir, u.ProfilePicture)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger().Warn("account: remove profile picture failed", "user", u.Username, "err", err)
	}
}

// RequestDeletion soft-deletes the actor's own account after verifying
// the password. Admin accounts cannot be deleted this way. Returns the
// date the grace period ends.
func (s *AccountService) RequestDeletion(ctx context.Context, actor domain.User, target, password string) (time.Time, error) {
	_ = ctx
	if domain.NormalizeUsername(target) != actor.Username {
		return time.Time{}, domain.ErrForbidden
	}
	if actor.IsAdmin() {
		return time.Time{}, domain.ErrForbidden
	}
	if password == "" {
		return time.Time{}, domain.NewValidationError(map[string]string{"password": "password is required"})
	}

	u, err := s.Store.GetUser(actor.Username)
	if err != nil {
		return time.Time{}, err
	}
	if !auth.VerifyPassword(u.PasswordHash, password) {
		return time.Time{}, domain.ErrInvalidCredentials
	}

	now := s.now()
	u.DeletedAt = &now
	if err := s.Store.PutUser(u); err != nil {
		return time.Time{}, err
	}
	s.Sessions.RevokeUser(u.Username)
	return domain.PurgeDate(now), nil
}

// Recover clears a pending deletion within the grace period. Past it,
// the account can no longer self-recover and the caller must log the
// session out.
func (s *AccountService) Recover(ctx context.Context, actor domain.User, target string) error {
	_ = ctx
	if domain.NormalizeUsername(target) != actor.Username {
		return domain.ErrForbidden
	}

	u, err := s.Store.GetUser(actor.Username)
	if err != nil {
		return err
	}
	if u.DeletedAt == nil {
		return domain.ErrNotFound
	}
	if domain.GracePeriodElapsed(s.now(), *u.DeletedAt) {
		return domain.ErrGraceExpired
	}
	u.DeletedAt = nil
	return s.Store.PutUser(u)
}
