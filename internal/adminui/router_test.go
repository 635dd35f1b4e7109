package adminui

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fileshare/internal/auth"
	"fileshare/internal/domain"
	"fileshare/internal/email"
	"fileshare/internal/service"
	"fileshare/internal/store/jsonstore"
)

type testApp struct {
	handler  http.Handler
	store    *jsonstore.Store
	sessions *auth.SessionManager
	codec    auth.CookieCodec
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	store, err := jsonstore.Open(t.TempDir(), slog.Default())
	require.NoError(t, err)

	sessions := auth.NewSessionManager(time.Hour)
	codec := auth.NewCookieCodec([]byte("0123456789abcdef0123456789abcdef"))

	storage := &service.StorageService{Store: store, UploadDir: t.TempDir()}
	files := &service.FileService{Store: store, Storage: storage}
	emailSvc := &service.EmailService{
		Store:   store,
		BaseURL: "http://files.test",
		Send:    func(domain.SMTPSettings, email.Message) error { return nil },
	}
	accounts := &service.AccountService{
		Store:      store,
		Files:      files,
		Sessions:   sessions,
		Email:      emailSvc,
		ProfileDir: t.TempDir(),
	}
	admin := &service.AdminService{
		Store:    store,
		Files:    files,
		Storage:  storage,
		Sessions: sessions,
	}

	handler := New(Opts{
		Accounts:    accounts,
		Admin:       admin,
		Email:       emailSvc,
		Storage:     storage,
		CookieCodec: codec,
	})

	return &testApp{handler: handler, store: store, sessions: sessions, codec: codec}
}

func (ta *testApp) addUser(t *testing.T, u domain.User) domain.User {
	t.Helper()
	if u.PasswordHash == "" {
		hash, err := auth.HashPassword("password123")
		require.NoError(t, err)
		u.PasswordHash = hash
	}
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	require.NoError(t, ta.store.PutUser(u))
	return u
}

func (ta *testApp) sessionCookie(t *testing.T, username string) *http.Cookie {
	t.Helper()
	sessID, err := ta.sessions.Create(username)
	require.NoError(t, err)
	return &http.Cookie{Name: auth.SessionCookieName, Value: ta.codec.Sign(sessID)}
}

func TestDashboardRedirectsAnonymous(t *testing.T) {
	ta := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/", nil)
	rr := httptest.NewRecorder()
	ta.handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
}

func TestDashboardForbiddenForRegularUsers(t *testing.T) {
	ta := newTestApp(t)
	ta.addUser(t, domain.User{Username: "alice", StorageLimitMB: 50})

	req := httptest.NewRequest(http.MethodGet, "/admin/", nil)
	req.AddCookie(ta.sessionCookie(t, "alice"))
	rr := httptest.NewRecorder()
	ta.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestDashboardRendersForAdmins(t *testing.T) {
	ta := newTestApp(t)
	ta.addUser(t, domain.User{Username: "root", Role: domain.RoleAdmin, StorageLimitMB: 50})
	ta.addUser(t, domain.User{Username: "alice", StorageLimitMB: 50})

	req := httptest.NewRequest(http.MethodGet, "/admin/", nil)
	req.AddCookie(ta.sessionCookie(t, "root"))
	rr := httptest.NewRecorder()
	ta.handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "alice")
}

func TestMutationsGatedByAdmin(t *testing.T) {
	ta := newTestApp(t)
	ta.addUser(t, domain.User{Username: "alice", StorageLimitMB: 50})

	form := url.Values{"username": {"alice"}}
	req := httptest.NewRequest(http.MethodPost, "/admin/delete_user", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(ta.sessionCookie(t, "alice"))
	rr := httptest.NewRecorder()
	ta.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	_, err := ta.store.GetUser("alice")
	assert.NoError(t, err, "account must survive the refused delete")
}

func TestUpdateSettingsPersists(t *testing.T) {
	ta := newTestApp(t)
	ta.addUser(t, domain.User{Username: "root", Role: domain.RoleAdmin, StorageLimitMB: 50})

	form := url.Values{
		"app_name":                {"MyShare"},
		"max_file_size_mb":        {"25"},
		"max_files_per_bundle":    {"3"},
		"total_server_storage_mb": {"2048"},
		"user_storage_limit_mb":   {"100"},
		"registration_open":       {"on"},
	}
	req := httptest.NewRequest(http.MethodPost, "/admin/settings", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(ta.sessionCookie(t, "root"))
	rr := httptest.NewRecorder()
	ta.handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusFound, rr.Code)
	assert.Contains(t, rr.Header().Get("Location"), "notice=settings_saved")

	s := ta.store.Settings()
	assert.Equal(t, "MyShare", s.AppName)
	assert.Equal(t, int64(25), s.MaxFileSizeMB)
	assert.Equal(t, 3, s.MaxFilesPerBundle)
	assert.True(t, s.RegistrationOpen)
}
