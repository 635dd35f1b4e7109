package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fileshare/internal/auth"
	"fileshare/internal/domain"
)

type RecoveryStore interface {
	GetUser(username string) (domain.User, error)
	PutUser(u domain.User) error
	ListUsers() []domain.User
	GetRequest(key string) (domain.RecoveryRequest, error)
	PutRequest(key string, r domain.RecoveryRequest) error
	DeleteRequest(key string) error
	FindRequestByToken(typ domain.RequestType, token string) (string, domain.RecoveryRequest, bool)
}

// RecoveryService owns the token- and time-bound one-shot flows:
// password resets, email verification, and account-recovery requests
// for accounts past their grace period.
type RecoveryService struct {
	Store  RecoveryStore
	Email  *EmailService
	Logger *slog.Logger
	Now    func() time.Time
}

func (s *RecoveryService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *RecoveryService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// ForgotPassword starts a reset flow. It deliberately succeeds whether
// or not the email maps to an account, so callers always show the same
// message; only a live matching account actually gets a token.
func (s *RecoveryService) ForgotPassword(ctx context.Context, email string) error {
	email = domain.NormalizeUsername(email)
	if email == "" {
		return domain.NewValidationError(map[string]string{"email": "email is required"})
	}

	var target *domain.User
	for _, u := range s.Store.ListUsers() {
		if domain.NormalizeUsername(u.Email) == email {
			u := u
			target = &u
			break
		}
	}
	if target == nil || target.DeletedAt != nil {
		return nil
	}

	token, err := auth.NewToken()
	if err != nil {
		return err
	}
	req := domain.RecoveryRequest{
		Type:        domain.RequestPasswordReset,
		Username:    target.Username,
		Token:       token,
		RequestedAt: s.now(),
	}
	if err := s.Store.PutRequest(target.Username, req); err != nil {
		return err
	}
	if err := s.Email.SendPasswordReset(ctx, target.Email, token); err != nil {
		// Keep the uniform response; the token stays valid in case the
		// mail was actually delivered.
		s.logger().Error("recovery: send reset email failed", "user", target.Username, "err", err)
	}
	return nil
}

// LookupResetToken validates a reset token without consuming it, for
// rendering the reset form.
func (s *RecoveryService) LookupResetToken(token string) (domain.RecoveryRequest, error) {
	key, req, ok := s.Store.FindRequestByToken(domain.RequestPasswordReset, token)
	if !ok {
		return domain.RecoveryRequest{}, domain.ErrTokenInvalid
	}
	if req.Expired(s.now()) {
		_ = s.Store.DeleteRequest(key)
		return domain.RecoveryRequest{}, domain.ErrTokenExpired
	}
	return req, nil
}

// ResetPassword consumes a reset token. Tokens are single-use: the
// request is removed on success, so replaying the same link fails.
func (s *RecoveryService) ResetPassword(ctx context.Context, token, password, confirm string) error {
	_ = ctx
	req, err := s.LookupResetToken(token)
	if err != nil {
		return err
	}

	if password == "" || confirm == "" {
		return domain.NewValidationError(map[string]string{"password": "all fields are required"})
	}
	if password != confirm {
		return domain.NewValidationError(map[string]string{"confirm_password": "passwords do not match"})
	}

	u, err := s.Store.GetUser(req.Username)
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	if err := s.Store.PutUser(u); err != nil {
		return err
	}
	return s.Store.DeleteRequest(req.Username)
}

// ResendVerification issues a fresh verification token for a logged-in
// user whose email is still unverified.
func (s *RecoveryService) ResendVerification(ctx context.Context, username string) error {
	u, err := s.Store.GetUser(username)
	if err != nil {
		return err
	}
	if u.EmailVerified {
		return domain.ErrAlreadyVerified
	}

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
	return s.Email.SendVerification(ctx, u.Email, u.Username, token)
}

// VerifyEmail consumes a verification token and marks the account
// verified, returning the username for the redirect.
func (s *RecoveryService) VerifyEmail(ctx context.Context, token string) (string, error) {
	_ = ctx
	key, req, ok := s.Store.FindRequestByToken(domain.RequestEmailVerification, token)
	if !ok {
		return "", domain.ErrTokenInvalid
	}
	if req.Expired(s.now()) {
		_ = s.Store.DeleteRequest(key)
		return "", domain.ErrTokenExpired
	}

	u, err := s.Store.GetUser(req.Username)
	if err != nil {
		return "", err
	}
	u.EmailVerified = true
	if err := s.Store.PutUser(u); err != nil {
		return "", err
	}
	if err := s.Store.DeleteRequest(domain.VerificationKey(u.Username)); err != nil {
		return "", err
	}
	return u.Username, nil
}

// RequestAccountRecovery files an admin-reviewed recovery plea for an
// account past its grace period. Callers always show the same message;
// a request is only recorded when the credentials check out, the grace
// period has elapsed, and no request is already pending.
func (s *RecoveryService) RequestAccountRecovery(ctx context.Context, username, password string) error {
	_ = ctx
	if username == "" || password == "" {
		return domain.NewValidationError(map[string]string{"username": "username and password are required"})
	}

	key := domain.NormalizeUsername(username)
	u, err := s.Store.GetUser(key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if !auth.VerifyPassword(u.PasswordHash, password) {
		return nil
	}
	if u.DeletedAt == nil || !domain.GracePeriodElapsed(s.now(), *u.DeletedAt) {
		return nil
	}
	if _, err := s.Store.GetRequest(key); err == nil {
		return nil
	}

	req := domain.RecoveryRequest{
		Type:        domain.RequestAccountRecovery,
		Username:    key,
		RequestedAt: s.now(),
		DeletedAt:   u.DeletedAt,
		Role:        u.Role,
	}
	return s.Store.PutRequest(key, req)
}
