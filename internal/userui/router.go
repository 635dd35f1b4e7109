package userui

import (
	"log/slog"
	"net/http"
	"time"

	"fileshare/internal/auth"
	"fileshare/internal/domain"
	"fileshare/internal/service"
)

// Store is the read-side view the UI needs beyond what the services
// expose.
type Store interface {
	GetUser(username string) (domain.User, error)
	GetFile(id string) (domain.FileEntry, error)
	FilesOwnedBy(owner string) []domain.FileEntry
	ListFiles() []domain.FileEntry
	Settings() domain.Settings
}

type Opts struct {
	Logger *slog.Logger

	Store    Store
	Accounts *service.AccountService
	Files    *service.FileService
	Storage  *service.StorageService
	Recovery *service.RecoveryService

	CookieCodec  auth.CookieCodec
	CookieSecure bool
	SessionTTL   time.Duration
	ProfileDir   string
}

func New(opts Opts) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	app := &app{
		logger:       logger,
		store:        opts.Store,
		accounts:     opts.Accounts,
		files:        opts.Files,
		storage:      opts.Storage,
		recovery:     opts.Recovery,
		cookieCodec:  opts.CookieCodec,
		cookieSecure: opts.CookieSecure,
		sessionTTL:   opts.SessionTTL,
		profileDir:   opts.ProfileDir,
		limiter:      newLoginLimiter(5*time.Minute, 10),
	}

	t, err := parseTemplates()
	if err != nil {
		logger.Error("userui: parse templates failed", "err", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "internal server error", http.StatusInternalServerError)
		})
	}
	app.templates = t

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", app.requireAuth(app.handleHome))
	mux.HandleFunc("GET /login", app.handleLoginGet)
	mux.HandleFunc("POST /login", app.handleLoginPost)
	mux.HandleFunc("GET /register", app.handleRegisterGet)
	mux.HandleFunc("POST /register", app.handleRegisterPost)
	mux.HandleFunc("POST /logout", app.handleLogoutPost)

	mux.HandleFunc("GET /forgot_password", app.handleForgotGet)
	mux.HandleFunc("POST /forgot_password", app.handleForgotPost)
	mux.HandleFunc("GET /reset_password/{token}", app.handleResetGet)
	mux.HandleFunc("POST /reset_password/{token}", app.handleResetPost)
	mux.HandleFunc("GET /verify_email/{token}", app.handleVerifyEmail)
	mux.HandleFunc("POST /resend_verification", app.requireAuth(app.handleResendVerification))
	mux.HandleFunc("GET /recover", app.handleRecoverGet)
	mux.HandleFunc("POST /recover", app.handleRecoverPost)

	mux.HandleFunc("POST /upload", app.requireAuth(app.handleUpload))
	mux.HandleFunc("GET /file/{id}", app.requireAuth(app.handleFileDetail))
	mux.HandleFunc("GET /download/{id}", app.requireAuth(app.handleDownload))
	mux.HandleFunc("GET /preview/{id}", app.requireAuth(app.handlePreview))
	mux.HandleFunc("POST /delete/{id}", app.requireAuth(app.handleDelete))
	mux.HandleFunc("POST /delete_all", app.requireAuth(app.handleDeleteAll))

	mux.HandleFunc("GET /profile", app.requireAuth(app.handleProfileGet))
	mux.HandleFunc("POST /profile/password", app.requireAuth(app.handleChangePassword))
	mux.HandleFunc("POST /profile/email", app.requireAuth(app.handleChangeEmail))
	mux.HandleFunc("POST /profile/visibility", app.requireAuth(app.handleToggleVisibility))
	mux.HandleFunc("POST /profile/picture", app.requireAuth(app.handlePictureUpload))
	mux.HandleFunc("POST /profile/picture/delete", app.requireAuth(app.handlePictureDelete))
	mux.HandleFunc("GET /profile_picture/{username}", app.handleServePicture)
	mux.HandleFunc("POST /request_deletion", app.requireAuth(app.handleRequestDeletion))
	mux.HandleFunc("POST /recover_account", app.requireAuth(app.handleRecoverAccount))

	return mux
}

type app struct {
	logger *slog.Logger

	store    Store
	accounts *service.AccountService
	files    *service.FileService
	storage  *service.StorageService
	recovery *service.RecoveryService

	cookieCodec  auth.CookieCodec
	cookieSecure bool
	sessionTTL   time.Duration
	profileDir   string

	limiter   *loginLimiter
	templates *templates
}

func (a *app) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _, ok := a.currentUser(r)
		if !ok {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	}
}

func (a *app) currentUser(r *http.Request) (domain.User, string, bool) {
	if a.accounts == nil {
		return domain.User{}, "", false
	}
	c, err := r.Cookie(auth.SessionCookieName)
	if err != nil || c.Value == "" {
		return domain.User{}, "", false
	}
	sessID, ok := a.cookieCodec.Verify(c.Value)
	if !ok {
		return domain.User{}, "", false
	}
	u, ok := a.accounts.UserForSession(sessID)
	if !ok {
		return domain.User{}, "", false
	}
	return u, sessID, true
}

func (a *app) appName() string {
	if a.store == nil {
		return "FileShare"
	}
	return a.store.Settings().AppName
}
