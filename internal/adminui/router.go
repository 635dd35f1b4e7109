package adminui

import (
	"log/slog"
	"net/http"

	"fileshare/internal/auth"
	"fileshare/internal/domain"
	"fileshare/internal/service"
)

type Opts struct {
	Logger *slog.Logger

	Accounts *service.AccountService
	Admin    *service.AdminService
	Email    *service.EmailService
	Storage  *service.StorageService

	CookieCodec  auth.CookieCodec
	CookieSecure bool
}

func New(opts Opts) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if opts.Accounts == nil || opts.Admin == nil {
		return http.NotFoundHandler()
	}

	app := &app{
		logger:       logger,
		accounts:     opts.Accounts,
		admin:        opts.Admin,
		email:        opts.Email,
		storage:      opts.Storage,
		cookieCodec:  opts.CookieCodec,
		cookieSecure: opts.CookieSecure,
	}

	t, err := parseTemplates()
	if err != nil {
		logger.Error("adminui: parse templates failed", "err", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "internal server error", http.StatusInternalServerError)
		})
	}
	app.templates = t

	mux := http.NewServeMux()
	mux.HandleFunc("GET /admin", app.redirectAdmin)
	mux.HandleFunc("GET /admin/{$}", app.requireAdmin(app.handleDashboard))
	mux.HandleFunc("POST /admin/settings", app.requireAdmin(app.handleUpdateSettings))
	mux.HandleFunc("POST /admin/email_config", app.requireAdmin(app.handleUpdateEmailConfig))
	mux.HandleFunc("POST /admin/test_email", app.requireAdmin(app.handleTestEmail))
	mux.HandleFunc("POST /admin/create_user", app.requireAdmin(app.handleCreateUser))
	mux.HandleFunc("POST /admin/reset_password", app.requireAdmin(app.handleResetPassword))
	mux.HandleFunc("POST /admin/update_storage_limit", app.requireAdmin(app.handleUpdateStorageLimit))
	mux.HandleFunc("POST /admin/delete_user", app.requireAdmin(app.handleDeleteUser))
	mux.HandleFunc("POST /admin/approve_recovery", app.requireAdmin(app.handleApproveRecovery))
	mux.HandleFunc("POST /admin/deny_recovery", app.requireAdmin(app.handleDenyRecovery))
	mux.HandleFunc("POST /admin/recover_user", app.requireAdmin(app.handleRecoverUser))

	return mux
}

type app struct {
	logger *slog.Logger

	accounts *service.AccountService
	admin    *service.AdminService
	email    *service.EmailService
	storage  *service.StorageService

	cookieCodec  auth.CookieCodec
	cookieSecure bool

	templates *templates
}

func (a *app) redirectAdmin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/admin/", http.StatusFound)
}

func (a *app) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, _, ok := a.currentUser(r)
		if !ok {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		if !u.IsAdmin() {
			a.templates.renderError(w, http.StatusForbidden, "Forbidden", "This account is not allowed to access admin.")
			return
		}
		next.ServeHTTP(w, r)
	}
}

func (a *app) currentUser(r *http.Request) (domain.User, string, bool) {
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
