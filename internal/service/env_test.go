package service

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fileshare/internal/auth"
	"fileshare/internal/domain"
	"fileshare/internal/email"
	"fileshare/internal/store/jsonstore"
)

// testEnv wires the services against a real store in a temp dir, with a
// controllable clock and deterministic ids.
type testEnv struct {
	store    *jsonstore.Store
	storage  *StorageService
	files    *FileService
	accounts *AccountService
	recovery *RecoveryService
	admin    *AdminService
	sessions *auth.SessionManager

	now  time.Time
	sent []email.Message
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := jsonstore.Open(t.TempDir(), slog.Default())
	require.NoError(t, err)

	env := &testEnv{
		store:    store,
		now:      time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
		sessions: auth.NewSessionManager(time.Hour),
	}
	clock := func() time.Time { return env.now }

	env.storage = &StorageService{Store: store, UploadDir: t.TempDir()}

	idSeq := 0
	env.files = &FileService{
		Store:   store,
		Storage: env.storage,
		Now:     clock,
		NewID: func() string {
			idSeq++
			return fmt.Sprintf("id-%d", idSeq)
		},
	}

	emailSvc := &EmailService{
		Store:   store,
		BaseURL: "http://files.test",
		Send: func(_ domain.SMTPSettings, msg email.Message) error {
			env.sent = append(env.sent, msg)
			return nil
		},
	}

	env.accounts = &AccountService{
		Store:      store,
		Files:      env.files,
		Sessions:   env.sessions,
		Email:      emailSvc,
		ProfileDir: t.TempDir(),
		Now:        clock,
	}
	env.recovery = &RecoveryService{
		Store: store,
		Email: emailSvc,
		Now:   clock,
	}
	env.admin = &AdminService{
		Store:    store,
		Files:    env.files,
		Storage:  env.storage,
		Sessions: env.sessions,
		Now:      clock,
	}
	return env
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

func (e *testEnv) addUser(t *testing.T, u domain.User) domain.User {
	t.Helper()
	if u.PasswordHash == "" {
		hash, err := auth.HashPassword("password123")
		require.NoError(t, err)
		u.PasswordHash = hash
	}
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = e.now
	}
	require.NoError(t, e.store.PutUser(u))
	return u
}
