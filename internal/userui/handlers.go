package userui

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fileshare/internal/auth"
	"fileshare/internal/domain"
)

func (a *app) handleLoginGet(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := a.currentUser(r); ok {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	a.templates.renderLogin(w, http.StatusOK, loginViewData{
		Title:   "Sign In",
		AppName: a.appName(),
		Notice:  mapLoginNotice(strings.TrimSpace(r.URL.Query().Get("notice"))),
	})
}

func (a *app) handleLoginPost(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := a.currentUser(r); ok {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	if err := r.ParseForm(); err != nil {
		a.templates.renderLogin(w, http.StatusBadRequest, loginViewData{Title: "Sign In", AppName: a.appName(), Error: "Invalid form"})
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	if username == "" || password == "" {
		a.templates.renderLogin(w, http.StatusBadRequest, loginViewData{Title: "Sign In", AppName: a.appName(), Username: username, Error: "Username and password are required"})
		return
	}

	if !a.limiter.Allow(clientIP(r), time.Now()) {
		a.templates.renderLogin(w, http.StatusTooManyRequests, loginViewData{Title: "Sign In", AppName: a.appName(), Username: username, Error: "Too many login attempts. Try again in a few minutes."})
		return
	}

	u, sessID, err := a.accounts.Login(r.Context(), username, password)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidCredentials):
			a.templates.renderLogin(w, http.StatusUnauthorized, loginViewData{Title: "Sign In", AppName: a.appName(), Username: username, Error: "Invalid username or password"})
		case errors.Is(err, domain.ErrAccountDeleted):
			a.templates.renderLogin(w, http.StatusForbidden, loginViewData{
				Title: "Sign In", AppName: a.appName(), Username: username,
				Error: "This account has been deleted and its recovery period has ended. You can request recovery from an administrator.",
			})
		default:
			a.logger.Error("userui: login failed", "err", err)
			a.templates.renderLogin(w, http.StatusInternalServerError, loginViewData{Title: "Sign In", AppName: a.appName(), Username: username, Error: "Login failed"})
		}
		return
	}

	auth.SetSessionCookie(w, a.cookieCodec.Sign(sessID), a.sessionTTL, a.cookieSecure)
	if u.DeletedAt != nil {
		http.Redirect(w, r, "/profile?notice=pending_deletion", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (a *app) handleRegisterGet(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := a.currentUser(r); ok {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	if !a.store.Settings().RegistrationOpen {
		a.templates.renderError(w, http.StatusForbidden, "Registration Closed", a.appName(), "Registration is currently closed.")
		return
	}
	a.templates.renderRegister(w, http.StatusOK, registerViewData{Title: "Create Account", AppName: a.appName()})
}

func (a *app) handleRegisterPost(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := a.currentUser(r); ok {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	if err := r.ParseForm(); err != nil {
		a.templates.renderRegister(w, http.StatusBadRequest, registerViewData{Title: "Create Account", AppName: a.appName(), Error: "Invalid form"})
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	email := normalizeEmail(r.FormValue("email"))
	password := r.FormValue("password")
	confirm := r.FormValue("confirm_password")

	var errs []string
	if !validUsername(username) {
		errs = append(errs, "Username must be 3-32 characters with letters, numbers, underscore, or dash.")
	}
	if !validEmail(email) {
		errs = append(errs, "Email must be valid.")
	}
	if password == "" {
		errs = append(errs, "Password is required.")
	}
	if len(errs) > 0 {
		a.templates.renderRegister(w, http.StatusBadRequest, registerViewData{
			Title: "Create Account", AppName: a.appName(),
			Username: username, Email: email,
			Error: strings.Join(errs, " "),
		})
		return
	}

	_, emailSent, err := a.accounts.Register(r.Context(), username, email, password, confirm)
	if err != nil {
		data := registerViewData{Title: "Create Account", AppName: a.appName(), Username: username, Email: email}
		switch {
		case errors.Is(err, domain.ErrRegistrationClosed):
			a.templates.renderError(w, http.StatusForbidden, "Registration Closed", a.appName(), "Registration is currently closed.")
		case errors.Is(err, domain.ErrUsernameTaken):
			data.Error = "That username is taken."
			a.templates.renderRegister(w, http.StatusBadRequest, data)
		case errors.Is(err, domain.ErrEmailTaken):
			data.Error = "That email is already in use."
			a.templates.renderRegister(w, http.StatusBadRequest, data)
		case errors.Is(err, domain.ErrValidation):
			data.Error = "Passwords do not match."
			a.templates.renderRegister(w, http.StatusBadRequest, data)
		default:
			a.logger.Error("userui: register failed", "err", err)
			data.Error = "Registration failed."
			a.templates.renderRegister(w, http.StatusInternalServerError, data)
		}
		return
	}

	notice := "registered"
	if !emailSent {
		notice = "registered_no_email"
	}
	http.Redirect(w, r, "/login?notice="+notice, http.StatusFound)
}

func (a *app) handleLogoutPost(w http.ResponseWriter, r *http.Request) {
	_, sessID, ok := a.currentUser(r)
	if ok && sessID != "" {
		a.accounts.Logout(sessID)
	}
	auth.ClearSessionCookie(w, a.cookieSecure)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (a *app) handleForgotGet(w http.ResponseWriter, r *http.Request) {
	a.templates.renderForgot(w, http.StatusOK, forgotViewData{Title: "Forgot Password", AppName: a.appName()})
}

func (a *app) handleForgotPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		a.templates.renderForgot(w, http.StatusBadRequest, forgotViewData{Title: "Forgot Password", AppName: a.appName(), Error: "Invalid form"})
		return
	}

	email := normalizeEmail(r.FormValue("email"))
	if email == "" {
		a.templates.renderForgot(w, http.StatusBadRequest, forgotViewData{Title: "Forgot Password", AppName: a.appName(), Error: "Email is required."})
		return
	}

	if err := a.recovery.ForgotPassword(r.Context(), email); err != nil {
		if !errors.Is(err, domain.ErrValidation) {
			a.logger.Error("userui: forgot password failed", "err", err)
		}
	}
	// Same message whether or not the email matched an account.
	a.templates.renderForgot(w, http.StatusOK, forgotViewData{
		Title: "Forgot Password", AppName: a.appName(),
		Notice: "If that email is registered, a password reset link has been sent.",
	})
}

func (a *app) handleResetGet(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if _, err := a.recovery.LookupResetToken(token); err != nil {
		a.renderResetError(w, err)
		return
	}
	a.templates.renderReset(w, http.StatusOK, resetViewData{Title: "Reset Password", AppName: a.appName(), Token: token})
}

func (a *app) handleResetPost(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if err := r.ParseForm(); err != nil {
		a.templates.renderReset(w, http.StatusBadRequest, resetViewData{Title: "Reset Password", AppName: a.appName(), Token: token, Error: "Invalid form submission."})
		return
	}

	password := r.FormValue("password")
	confirm := r.FormValue("confirm_password")
	if err := a.recovery.ResetPassword(r.Context(), token, password, confirm); err != nil {
		switch {
		case errors.Is(err, domain.ErrTokenInvalid), errors.Is(err, domain.ErrTokenExpired):
			a.renderResetError(w, err)
		case errors.Is(err, domain.ErrValidation):
			msg := "All fields are required."
			var vErr *domain.ValidationError
			if errors.As(err, &vErr) {
				if m, ok := vErr.Fields["confirm_password"]; ok {
					msg = m
				}
			}
			a.templates.renderReset(w, http.StatusBadRequest, resetViewData{Title: "Reset Password", AppName: a.appName(), Token: token, Error: msg})
		default:
			a.logger.Error("userui: reset password failed", "err", err)
			a.templates.renderReset(w, http.StatusInternalServerError, resetViewData{Title: "Reset Password", AppName: a.appName(), Token: token, Error: "Failed to reset password."})
		}
		return
	}

	http.Redirect(w, r, "/login?notice=password_reset", http.StatusFound)
}

func (a *app) renderResetError(w http.ResponseWriter, err error) {
	msg := "Reset link is invalid or already used."
	if errors.Is(err, domain.ErrTokenExpired) {
		msg = "Reset link has expired. Request a new one."
	}
	a.templates.renderError(w, http.StatusBadRequest, "Reset Password", a.appName(), msg)
}

func (a *app) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if _, err := a.recovery.VerifyEmail(r.Context(), token); err != nil {
		switch {
		case errors.Is(err, domain.ErrTokenExpired):
			a.templates.renderError(w, http.StatusBadRequest, "Verify Email", a.appName(), "Verification link has expired. Request a new one from your profile.")
		case errors.Is(err, domain.ErrTokenInvalid), errors.Is(err, domain.ErrNotFound):
			a.templates.renderError(w, http.StatusBadRequest, "Verify Email", a.appName(), "Verification link is invalid or already used.")
		default:
			a.logger.Error("userui: verify email failed", "err", err)
			a.templates.renderError(w, http.StatusInternalServerError, "Verify Email", a.appName(), "Failed to verify email.")
		}
		return
	}

	if _, _, ok := a.currentUser(r); ok {
		http.Redirect(w, r, "/?notice=email_verified", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/login?notice=email_verified", http.StatusFound)
}

func (a *app) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	u, _, _ := a.currentUser(r)

	if err := a.recovery.ResendVerification(r.Context(), u.Username); err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyVerified):
			http.Redirect(w, r, "/?notice=already_verified", http.StatusFound)
		default:
			a.logger.Error("userui: resend verification failed", "user", u.Username, "err", err)
			http.Redirect(w, r, "/?error=verification_send_failed", http.StatusFound)
		}
		return
	}
	http.Redirect(w, r, "/?notice=verification_sent", http.StatusFound)
}

func (a *app) handleRecoverGet(w http.ResponseWriter, r *http.Request) {
	a.templates.renderRecover(w, http.StatusOK, recoverViewData{Title: "Account Recovery", AppName: a.appName()})
}

func (a *app) handleRecoverPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		a.templates.renderRecover(w, http.StatusBadRequest, recoverViewData{Title: "Account Recovery", AppName: a.appName(), Error: "Invalid form"})
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	if err := a.recovery.RequestAccountRecovery(r.Context(), username, password); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			a.templates.renderRecover(w, http.StatusBadRequest, recoverViewData{Title: "Account Recovery", AppName: a.appName(), Username: username, Error: "Username and password are required."})
			return
		}
		a.logger.Error("userui: account recovery request failed", "err", err)
		a.templates.renderRecover(w, http.StatusInternalServerError, recoverViewData{Title: "Account Recovery", AppName: a.appName(), Username: username, Error: "Failed to submit recovery request."})
		return
	}

	// Same message regardless of outcome, so the form reveals nothing
	// about which accounts exist.
	a.templates.renderRecover(w, http.StatusOK, recoverViewData{
		Title: "Account Recovery", AppName: a.appName(),
		Notice: "If the account qualifies for recovery, your request has been submitted for review.",
	})
}

func redirectWith(w http.ResponseWriter, r *http.Request, path, notice, errCode string) {
	values := url.Values{}
	if notice != "" {
		values.Set("notice", notice)
	}
	if errCode != "" {
		values.Set("error", errCode)
	}
	if len(values) > 0 {
		path = path + "?" + values.Encode()
	}
	http.Redirect(w, r, path, http.StatusFound)
}

func mapLoginNotice(code string) string {
	switch code {
	case "password_reset":
		return "Password updated. Sign in with your new password."
	case "registered":
		return "Account created. Check your email for a verification link."
	case "registered_no_email":
		return "Account created, but the verification email could not be sent. You can request a new one from your home page."
	case "email_verified":
		return "Email verified. You can sign in now."
	case "logged_out":
		return "You have been signed out."
	case "account_deleted":
		return "Your account has been scheduled for deletion."
	default:
		return ""
	}
}

func mapHomeNotice(code string, n int) string {
	switch code {
	case "uploaded":
		if n == 1 {
			return "File uploaded."
		}
		return fmt.Sprintf("%d files uploaded.", n)
	case "deleted":
		return "File deleted."
	case "bundle_deleted":
		return "Bundle deleted."
	case "all_deleted":
		return "All files deleted."
	case "email_verified":
		return "Email verified. You can upload files now."
	case "already_verified":
		return "Your email is already verified."
	case "verification_sent":
		return "Verification email sent. Check your inbox."
	default:
		return ""
	}
}

func mapHomeError(code string) string {
	switch code {
	case "verification_send_failed":
		return "Could not send the verification email. Check back later or contact an administrator."
	case "not_verified":
		return "Verify your email address before uploading files."
	default:
		return ""
	}
}
