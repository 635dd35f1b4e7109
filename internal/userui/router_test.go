package userui

import (
	"bytes"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
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

// testApp serves the full user-facing router against a real store in a
// temp dir.
type testApp struct {
	handler  http.Handler
	store    *jsonstore.Store
	files    *service.FileService
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
	recovery := &service.RecoveryService{Store: store, Email: emailSvc}

	handler := New(Opts{
		Store:      store,
		Accounts:   accounts,
		Files:      files,
		Storage:    storage,
		Recovery:   recovery,
		CookieCodec: codec,
		SessionTTL: time.Hour,
		ProfileDir: accounts.ProfileDir,
	})

	return &testApp{
		handler:  handler,
		store:    store,
		files:    files,
		sessions: sessions,
		codec:    codec,
	}
}

var (
	testHashOnce sync.Once
	testHash     string
)

// testPasswordHash hashes "password123" once per test binary; bcrypt is
// too slow to redo per user.
func testPasswordHash(t *testing.T) string {
	t.Helper()
	testHashOnce.Do(func() {
		h, err := auth.HashPassword("password123")
		require.NoError(t, err)
		testHash = h
	})
	return testHash
}

func (ta *testApp) addUser(t *testing.T, u domain.User) domain.User {
	t.Helper()
	if u.PasswordHash == "" {
		u.PasswordHash = testPasswordHash(t)
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

func (ta *testApp) uploadFile(t *testing.T, owner, name, content string) domain.FileEntry {
	t.Helper()
	entries, _, err := ta.files.Upload(owner, []service.Upload{
		{Filename: name, Size: int64(len(content)), Content: strings.NewReader(content)},
	})
	require.NoError(t, err)
	return entries[0]
}

func multipartBody(t *testing.T, names []string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range names {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHomeRedirectsAnonymous(t *testing.T) {
	ta := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	ta.handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
}

func TestHomeRejectsTamperedCookie(t *testing.T) {
	ta := newTestApp(t)
	ta.addUser(t, domain.User{Username: "alice", StorageLimitMB: 50})
	c := ta.sessionCookie(t, "alice")

	// Re-sign the session id under a different key.
	otherCodec := auth.NewCookieCodec([]byte("another-secret-another-secret-32"))
	sessID, ok := ta.codec.Verify(c.Value)
	require.True(t, ok)
	c.Value = otherCodec.Sign(sessID)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	rr := httptest.NewRecorder()
	ta.handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
}

func TestLoginPostSetsSignedCookie(t *testing.T) {
	ta := newTestApp(t)
	ta.addUser(t, domain.User{Username: "alice", StorageLimitMB: 50})

	form := url.Values{"username": {"alice"}, "password": {"password123"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	ta.handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))

	var found bool
	for _, c := range rr.Result().Cookies() {
		if c.Name != auth.SessionCookieName {
			continue
		}
		found = true
		sessID, ok := ta.codec.Verify(c.Value)
		require.True(t, ok, "cookie must carry a valid signature")
		username, ok := ta.sessions.Lookup(sessID)
		require.True(t, ok)
		assert.Equal(t, "alice", username)
		assert.True(t, c.HttpOnly)
	}
	require.True(t, found, "expected a session cookie")
}

func TestLoginPostRejectsWrongPassword(t *testing.T) {
	ta := newTestApp(t)
	ta.addUser(t, domain.User{Username: "alice", StorageLimitMB: 50})

	form := url.Values{"username": {"alice"}, "password": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	ta.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, rr.Result().Cookies())
}

func TestLoginRateLimited(t *testing.T) {
	ta := newTestApp(t)
	ta.addUser(t, domain.User{Username: "alice", StorageLimitMB: 50})

	form := url.Values{"username": {"alice"}, "password": {"wrong"}}
	var last int
	for i := 0; i < 11; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		ta.handler.ServeHTTP(rr, req)
		last = rr.Code
	}

	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestUploadCreatesFile(t *testing.T) {
	ta := newTestApp(t)
	ta.addUser(t, domain.User{Username: "alice", StorageLimitMB: 50, EmailVerified: true})

	body, contentType := multipartBody(t, []string{"notes.txt"}, []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.AddCookie(ta.sessionCookie(t, "alice"))
	rr := httptest.NewRecorder()
	ta.handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/?notice=uploaded&n=1", rr.Header().Get("Location"))

	entries := ta.store.FilesOwnedBy("alice")
	require.Len(t, entries, 1)
	assert.Equal(t, "notes.txt", entries[0].Filename)
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	ta := newTestApp(t)
	ta.addUser(t, domain.User{Username: "alice", StorageLimitMB: 50, EmailVerified: true})

	settings := ta.store.Settings()
	settings.MaxFileSizeMB = 1
	require.NoError(t, ta.store.SaveSettings(settings))

	big := bytes.Repeat([]byte{'x'}, 1024*1024+1)
	body, contentType := multipartBody(t, []string{"big.bin"}, big)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.AddCookie(ta.sessionCookie(t, "alice"))
	rr := httptest.NewRecorder()
	ta.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Empty(t, ta.store.FilesOwnedBy("alice"))
}

func TestUploadRequiresVerifiedEmail(t *testing.T) {
	ta := newTestApp(t)
	ta.addUser(t, domain.User{Username: "alice", StorageLimitMB: 50})

	body, contentType := multipartBody(t, []string{"notes.txt"}, []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.AddCookie(ta.sessionCookie(t, "alice"))
	rr := httptest.NewRecorder()
	ta.handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusFound, rr.Code)
	assert.Contains(t, rr.Header().Get("Location"), "error=not_verified")
	assert.Empty(t, ta.store.FilesOwnedBy("alice"))
}

func TestHomeShowAllListsEveryUsersFiles(t *testing.T) {
	ta := newTestApp(t)
	ta.addUser(t, domain.User{Username: "alice", StorageLimitMB: 50, EmailVerified: true})
	ta.addUser(t, domain.User{Username: "root", Role: domain.RoleAdmin, StorageLimitMB: 50, EmailVerified: true})
	ta.uploadFile(t, "alice", "quarterly-report.txt", "numbers")

	req := httptest.NewRequest(http.MethodGet, "/?show_all=1", nil)
	req.AddCookie(ta.sessionCookie(t, "root"))
	rr := httptest.NewRecorder()
	ta.handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "quarterly-report.txt")
	assert.Contains(t, rr.Body.String(), "All Files")
}

func TestHomeShowAllIgnoredForRegularUsers(t *testing.T) {
	ta := newTestApp(t)
	ta.addUser(t, domain.User{Username: "alice", StorageLimitMB: 50, EmailVerified: true})
	ta.addUser(t, domain.User{Username: "bob", StorageLimitMB: 50, EmailVerified: true})
	ta.uploadFile(t, "alice", "quarterly-report.txt", "numbers")

	req := httptest.NewRequest(http.MethodGet, "/?show_all=1", nil)
	req.AddCookie(ta.sessionCookie(t, "bob"))
	rr := httptest.NewRecorder()
	ta.handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "quarterly-report.txt")
}

func TestDeleteAllScopedToOwnFiles(t *testing.T) {
	ta := newTestApp(t)
	ta.addUser(t, domain.User{Username: "alice", StorageLimitMB: 50, EmailVerified: true})
	ta.addUser(t, domain.User{Username: "bob", StorageLimitMB: 50, EmailVerified: true})
	ta.uploadFile(t, "alice", "a.txt", "a")
	ta.uploadFile(t, "bob", "b.txt", "b")

	req := httptest.NewRequest(http.MethodPost, "/delete_all", nil)
	req.AddCookie(ta.sessionCookie(t, "alice"))
	rr := httptest.NewRecorder()
	ta.handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusFound, rr.Code)
	assert.Empty(t, ta.store.FilesOwnedBy("alice"))
	assert.Len(t, ta.store.FilesOwnedBy("bob"), 1)
}

func TestDeleteAllEverythingAsAdmin(t *testing.T) {
	ta := newTestApp(t)
	ta.addUser(t, domain.User{Username: "alice", StorageLimitMB: 50, EmailVerified: true})
	ta.addUser(t, domain.User{Username: "root", Role: domain.RoleAdmin, StorageLimitMB: 50, EmailVerified: true})
	ta.uploadFile(t, "alice", "a.txt", "a")

	req := httptest.NewRequest(http.MethodPost, "/delete_all?show_all=1", nil)
	req.AddCookie(ta.sessionCookie(t, "root"))
	rr := httptest.NewRecorder()
	ta.handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusFound, rr.Code)
	assert.Empty(t, ta.store.FilesOwnedBy("alice"))
}

func TestDeleteAllEverythingForbiddenForUsers(t *testing.T) {
	ta := newTestApp(t)
	ta.addUser(t, domain.User{Username: "alice", StorageLimitMB: 50, EmailVerified: true})
	ta.addUser(t, domain.User{Username: "bob", StorageLimitMB: 50, EmailVerified: true})
	ta.uploadFile(t, "alice", "a.txt", "a")

	req := httptest.NewRequest(http.MethodPost, "/delete_all?show_all=1", nil)
	req.AddCookie(ta.sessionCookie(t, "bob"))
	rr := httptest.NewRecorder()
	ta.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Len(t, ta.store.FilesOwnedBy("alice"), 1)
}

func TestFileDetailNotFound(t *testing.T) {
	ta := newTestApp(t)
	ta.addUser(t, domain.User{Username: "alice", StorageLimitMB: 50})

	req := httptest.NewRequest(http.MethodGet, "/file/nope", nil)
	req.AddCookie(ta.sessionCookie(t, "alice"))
	rr := httptest.NewRecorder()
	ta.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPreviewServesSmallImageAsIs(t *testing.T) {
	ta := newTestApp(t)
	ta.addUser(t, domain.User{Username: "alice", StorageLimitMB: 50, EmailVerified: true})

	// Tiny 1x1 PNG; well under the downscale threshold.
	png := []byte{
		0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
		0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
		0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x62, 0x00, 0x01, 0x00, 0x00,
		0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
		0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
	}
	entry := ta.uploadFile(t, "alice", "pixel.png", string(png))

	req := httptest.NewRequest(http.MethodGet, "/preview/"+entry.ID, nil)
	req.AddCookie(ta.sessionCookie(t, "alice"))
	rr := httptest.NewRecorder()
	ta.handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, png, rr.Body.Bytes())
}

func TestPreviewRejectsNonImages(t *testing.T) {
	ta := newTestApp(t)
	ta.addUser(t, domain.User{Username: "alice", StorageLimitMB: 50, EmailVerified: true})
	entry := ta.uploadFile(t, "alice", "notes.txt", "hello")

	req := httptest.NewRequest(http.MethodGet, "/preview/"+entry.ID, nil)
	req.AddCookie(ta.sessionCookie(t, "alice"))
	rr := httptest.NewRecorder()
	ta.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
