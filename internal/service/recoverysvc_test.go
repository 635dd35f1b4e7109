package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fileshare/internal/auth"
	"fileshare/internal/domain"
)

func TestForgotPasswordIssuesToken(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, domain.User{Username: "alice", Email: "alice@example.com"})

	require.NoError(t, env.recovery.ForgotPassword(context.Background(), "alice@example.com"))

	req, err := env.store.GetRequest("alice")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestPasswordReset, req.Type)
	assert.NotEmpty(t, req.Token)

	require.Len(t, env.sent, 1)
	assert.Contains(t, env.sent[0].HTMLBody, "/reset_password/"+req.Token)
}

func TestForgotPasswordUnknownEmailIsSilent(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.recovery.ForgotPassword(context.Background(), "nobody@example.com"))
	assert.Empty(t, env.sent)
}

func TestForgotPasswordDeletedAccountIsSilent(t *testing.T) {
	env := newTestEnv(t)
	deleted := env.now
	env.addUser(t, domain.User{Username: "alice", Email: "alice@example.com", DeletedAt: &deleted})

	require.NoError(t, env.recovery.ForgotPassword(context.Background(), "alice@example.com"))
	assert.Empty(t, env.sent)
	_, err := env.store.GetRequest("alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResetPasswordConsumesToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, domain.User{Username: "alice", Email: "alice@example.com"})

	require.NoError(t, env.recovery.ForgotPassword(ctx, "alice@example.com"))
	req, err := env.store.GetRequest("alice")
	require.NoError(t, err)

	require.NoError(t, env.recovery.ResetPassword(ctx, req.Token, "newpass", "newpass"))

	u, err := env.store.GetUser("alice")
	require.NoError(t, err)
	assert.True(t, auth.VerifyPassword(u.PasswordHash, "newpass"))

	// The same link cannot be replayed.
	err = env.recovery.ResetPassword(ctx, req.Token, "again", "again")
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)
}

func TestResetPasswordExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, domain.User{Username: "alice", Email: "alice@example.com"})

	require.NoError(t, env.recovery.ForgotPassword(ctx, "alice@example.com"))
	req, err := env.store.GetRequest("alice")
	require.NoError(t, err)

	env.advance(time.Hour + time.Minute)

	err = env.recovery.ResetPassword(ctx, req.Token, "newpass", "newpass")
	assert.ErrorIs(t, err, domain.ErrTokenExpired)

	// The expired request is gone.
	_, err = env.store.GetRequest("alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResetPasswordValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, domain.User{Username: "alice", Email: "alice@example.com"})

	require.NoError(t, env.recovery.ForgotPassword(ctx, "alice@example.com"))
	req, err := env.store.GetRequest("alice")
	require.NoError(t, err)

	err = env.recovery.ResetPassword(ctx, req.Token, "a", "b")
	assert.ErrorIs(t, err, domain.ErrValidation)

	// Validation failures do not consume the token.
	_, err = env.recovery.LookupResetToken(req.Token)
	assert.NoError(t, err)
}

func TestVerifyEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, domain.User{Username: "alice", Email: "alice@example.com"})

	require.NoError(t, env.recovery.ResendVerification(ctx, "alice"))
	req, err := env.store.GetRequest(domain.VerificationKey("alice"))
	require.NoError(t, err)

	username, err := env.recovery.VerifyEmail(ctx, req.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)

	u, err := env.store.GetUser("alice")
	require.NoError(t, err)
	assert.True(t, u.EmailVerified)

	_, err = env.recovery.VerifyEmail(ctx, req.Token)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)
}

func TestVerifyEmailExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, domain.User{Username: "alice", Email: "alice@example.com"})

	require.NoError(t, env.recovery.ResendVerification(ctx, "alice"))
	req, err := env.store.GetRequest(domain.VerificationKey("alice"))
	require.NoError(t, err)

	env.advance(25 * time.Hour)

	_, err = env.recovery.VerifyEmail(ctx, req.Token)
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
}

func TestResendVerificationAlreadyVerified(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, domain.User{Username: "alice", Email: "alice@example.com", EmailVerified: true})

	err := env.recovery.ResendVerification(context.Background(), "alice")
	assert.ErrorIs(t, err, domain.ErrAlreadyVerified)
}

func TestRequestAccountRecovery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	hash, err := auth.HashPassword("secret123")
	require.NoError(t, err)
	deleted := env.now.Add(-31 * 24 * time.Hour)
	env.addUser(t, domain.User{Username: "alice", PasswordHash: hash, DeletedAt: &deleted})

	require.NoError(t, env.recovery.RequestAccountRecovery(ctx, "Alice", "secret123"))

	req, err := env.store.GetRequest("alice")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestAccountRecovery, req.Type)
	require.NotNil(t, req.DeletedAt)
	assert.Equal(t, deleted, *req.DeletedAt)

	// A duplicate request is silently ignored.
	before := req.RequestedAt
	env.advance(time.Hour)
	require.NoError(t, env.recovery.RequestAccountRecovery(ctx, "alice", "secret123"))
	req, err = env.store.GetRequest("alice")
	require.NoError(t, err)
	assert.Equal(t, before, req.RequestedAt)
}

func TestRequestAccountRecoveryUniformResponses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	hash, err := auth.HashPassword("secret123")
	require.NoError(t, err)

	// Unknown account.
	require.NoError(t, env.recovery.RequestAccountRecovery(ctx, "ghost", "whatever"))

	// Wrong password.
	deleted := env.now.Add(-31 * 24 * time.Hour)
	env.addUser(t, domain.User{Username: "alice", PasswordHash: hash, DeletedAt: &deleted})
	require.NoError(t, env.recovery.RequestAccountRecovery(ctx, "alice", "wrong"))
	_, err = env.store.GetRequest("alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Still inside the grace period: self-recovery applies instead.
	recent := env.now.Add(-time.Hour)
	env.addUser(t, domain.User{Username: "bob", PasswordHash: hash, DeletedAt: &recent})
	require.NoError(t, env.recovery.RequestAccountRecovery(ctx, "bob", "secret123"))
	_, err = env.store.GetRequest("bob")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Not deleted at all.
	env.addUser(t, domain.User{Username: "carol", PasswordHash: hash})
	require.NoError(t, env.recovery.RequestAccountRecovery(ctx, "carol", "secret123"))
	_, err = env.store.GetRequest("carol")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
