package adminui

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"fileshare/internal/domain"
	"fileshare/internal/service"
)

func (a *app) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d := a.admin.BuildDashboard(r.Context())

	users := make([]userRow, 0, len(d.Users))
	for _, u := range d.Users {
		row := userRow{
			Username:       u.Username,
			Email:          u.Email,
			Role:           string(u.Role),
			EmailVerified:  u.EmailVerified,
			StorageLimitMB: u.StorageLimitMB,
			Usage:          service.FormatBytesShort(a.storage.Usage(u.Username)),
		}
		if u.DeletedAt != nil {
			row.DeletedAt = u.DeletedAt.Format("2006-01-02")
		}
		users = append(users, row)
	}

	a.templates.renderDashboard(w, http.StatusOK, dashboardViewData{
		Title:     "Admin Dashboard",
		AppName:   d.Settings.AppName,
		Dashboard: d,
		Users:     users,
		Notice:    mapAdminNotice(strings.TrimSpace(r.URL.Query().Get("notice"))),
		Error:     mapAdminError(strings.TrimSpace(r.URL.Query().Get("error"))),
	})
}

func (a *app) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectDashboard(w, r, "", "invalid_form")
		return
	}

	maxFileSize, _ := strconv.ParseInt(r.FormValue("max_file_size_mb"), 10, 64)
	maxFiles, _ := strconv.Atoi(r.FormValue("max_files_per_bundle"))
	serverStorage, _ := strconv.ParseInt(r.FormValue("total_server_storage_mb"), 10, 64)
	userLimit, _ := strconv.ParseInt(r.FormValue("user_storage_limit_mb"), 10, 64)

	err := a.admin.UpdateSettings(r.Context(), service.SettingsUpdate{
		AppName:              r.FormValue("app_name"),
		MaxFileSizeMB:        maxFileSize,
		MaxFilesPerBundle:    maxFiles,
		RegistrationOpen:     r.FormValue("registration_open") == "on",
		TotalServerStorageMB: serverStorage,
		UserStorageLimitMB:   userLimit,
	})
	if err != nil {
		a.logger.Error("adminui: update settings failed", "err", err)
		redirectDashboard(w, r, "", "save_failed")
		return
	}
	redirectDashboard(w, r, "settings_saved", "")
}

func (a *app) handleUpdateEmailConfig(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectDashboard(w, r, "", "invalid_form")
		return
	}

	port, _ := strconv.Atoi(r.FormValue("smtp_port"))
	err := a.admin.UpdateSMTPSettings(r.Context(), domain.SMTPSettings{
		Host:        strings.TrimSpace(r.FormValue("smtp_host")),
		Port:        port,
		UseTLS:      r.FormValue("smtp_use_tls") == "on",
		Username:    strings.TrimSpace(r.FormValue("smtp_username")),
		Password:    r.FormValue("smtp_password"),
		FromName:    strings.TrimSpace(r.FormValue("smtp_from_name")),
		FromAddress: strings.TrimSpace(r.FormValue("smtp_from_address")),
	})
	if err != nil {
		a.logger.Error("adminui: update email config failed", "err", err)
		redirectDashboard(w, r, "", "save_failed")
		return
	}
	redirectDashboard(w, r, "email_saved", "")
}

// handleTestEmail sends through the submitted configuration, not the
// saved one, so an admin can try settings before committing them.
func (a *app) handleTestEmail(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectDashboard(w, r, "", "invalid_form")
		return
	}

	port, _ := strconv.Atoi(r.FormValue("smtp_port"))
	smtp := domain.SMTPSettings{
		Host:        strings.TrimSpace(r.FormValue("smtp_host")),
		Port:        port,
		UseTLS:      r.FormValue("smtp_use_tls") == "on",
		Username:    strings.TrimSpace(r.FormValue("smtp_username")),
		Password:    r.FormValue("smtp_password"),
		FromName:    strings.TrimSpace(r.FormValue("smtp_from_name")),
		FromAddress: strings.TrimSpace(r.FormValue("smtp_from_address")),
	}

	if err := a.email.SendTest(r.Context(), smtp, r.FormValue("test_recipient")); err != nil {
		a.logger.Error("adminui: test email failed", "err", err)
		redirectDashboard(w, r, "", "test_email_failed")
		return
	}
	redirectDashboard(w, r, "test_email_sent", "")
}

func (a *app) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectDashboard(w, r, "", "invalid_form")
		return
	}

	_, err := a.admin.CreateUser(r.Context(),
		r.FormValue("username"), r.FormValue("email"), r.FormValue("password"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUsernameTaken):
			redirectDashboard(w, r, "", "username_taken")
		case errors.Is(err, domain.ErrEmailTaken):
			redirectDashboard(w, r, "", "email_taken")
		case errors.Is(err, domain.ErrValidation):
			redirectDashboard(w, r, "", "fields_required")
		default:
			a.logger.Error("adminui: create user failed", "err", err)
			redirectDashboard(w, r, "", "save_failed")
		}
		return
	}
	redirectDashboard(w, r, "user_created", "")
}

func (a *app) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectDashboard(w, r, "", "invalid_form")
		return
	}

	err := a.admin.ResetPassword(r.Context(), r.FormValue("username"), r.FormValue("password"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			redirectDashboard(w, r, "", "user_not_found")
		case errors.Is(err, domain.ErrValidation):
			redirectDashboard(w, r, "", "fields_required")
		default:
			a.logger.Error("adminui: reset password failed", "err", err)
			redirectDashboard(w, r, "", "save_failed")
		}
		return
	}
	redirectDashboard(w, r, "password_reset", "")
}

func (a *app) handleUpdateStorageLimit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectDashboard(w, r, "", "invalid_form")
		return
	}

	limit, err := strconv.ParseInt(r.FormValue("storage_limit_mb"), 10, 64)
	if err != nil {
		redirectDashboard(w, r, "", "invalid_limit")
		return
	}
	err = a.admin.UpdateStorageLimit(r.Context(), r.FormValue("username"), limit)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			redirectDashboard(w, r, "", "user_not_found")
		case errors.Is(err, domain.ErrValidation):
			redirectDashboard(w, r, "", "invalid_limit")
		default:
			a.logger.Error("adminui: update storage limit failed", "err", err)
			redirectDashboard(w, r, "", "save_failed")
		}
		return
	}
	redirectDashboard(w, r, "limit_updated", "")
}

func (a *app) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectDashboard(w, r, "", "invalid_form")
		return
	}

	err := a.admin.DeleteUser(r.Context(), r.FormValue("username"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			redirectDashboard(w, r, "", "user_not_found")
		case errors.Is(err, domain.ErrForbidden):
			redirectDashboard(w, r, "", "admin_delete_refused")
		default:
			a.logger.Error("adminui: delete user failed", "err", err)
			redirectDashboard(w, r, "", "save_failed")
		}
		return
	}
	redirectDashboard(w, r, "user_deleted", "")
}

func (a *app) handleApproveRecovery(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectDashboard(w, r, "", "invalid_form")
		return
	}

	if err := a.admin.ApproveRecovery(r.Context(), r.FormValue("username")); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			redirectDashboard(w, r, "", "request_not_found")
			return
		}
		a.logger.Error("adminui: approve recovery failed", "err", err)
		redirectDashboard(w, r, "", "save_failed")
		return
	}
	redirectDashboard(w, r, "recovery_approved", "")
}

func (a *app) handleDenyRecovery(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectDashboard(w, r, "", "invalid_form")
		return
	}

	if err := a.admin.DenyRecovery(r.Context(), r.FormValue("username")); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			redirectDashboard(w, r, "", "request_not_found")
			return
		}
		a.logger.Error("adminui: deny recovery failed", "err", err)
		redirectDashboard(w, r, "", "save_failed")
		return
	}
	redirectDashboard(w, r, "recovery_denied", "")
}

func (a *app) handleRecoverUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectDashboard(w, r, "", "invalid_form")
		return
	}

	if err := a.admin.RecoverDeletedUser(r.Context(), r.FormValue("username")); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			redirectDashboard(w, r, "", "user_not_found")
		case errors.Is(err, domain.ErrGraceActive):
			redirectDashboard(w, r, "", "grace_active")
		case errors.Is(err, domain.ErrValidation):
			redirectDashboard(w, r, "", "not_deleted")
		default:
			a.logger.Error("adminui: recover user failed", "err", err)
			redirectDashboard(w, r, "", "save_failed")
		}
		return
	}
	redirectDashboard(w, r, "user_recovered", "")
}

func redirectDashboard(w http.ResponseWriter, r *http.Request, notice, errCode string) {
	values := url.Values{}
	if notice != "" {
		values.Set("notice", notice)
	}
	if errCode != "" {
		values.Set("error", errCode)
	}
	target := "/admin/"
	if len(values) > 0 {
		target = target + "?" + values.Encode()
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func mapAdminNotice(code string) string {
	switch code {
	case "settings_saved":
		return "Settings saved."
	case "email_saved":
		return "Email configuration saved."
	case "test_email_sent":
		return "Test email sent."
	case "user_created":
		return "User created."
	case "password_reset":
		return "Password reset."
	case "limit_updated":
		return "Storage limit updated."
	case "user_deleted":
		return "User and files deleted."
	case "recovery_approved":
		return "Recovery request approved. The account is active again."
	case "recovery_denied":
		return "Recovery request denied."
	case "user_recovered":
		return "Account recovered."
	default:
		return ""
	}
}

func mapAdminError(code string) string {
	switch code {
	case "invalid_form":
		return "Invalid form submission."
	case "save_failed":
		return "Save failed."
	case "username_taken":
		return "That username is taken."
	case "email_taken":
		return "That email is already in use."
	case "fields_required":
		return "All fields are required."
	case "user_not_found":
		return "User not found."
	case "request_not_found":
		return "Recovery request not found."
	case "invalid_limit":
		return "Storage limit must be at least 1 MB."
	case "admin_delete_refused":
		return "Administrator accounts cannot be deleted."
	case "grace_active":
		return "That account is still inside its recovery period. The owner can recover it themselves."
	case "not_deleted":
		return "That account is not deleted."
	case "test_email_failed":
		return "Test email failed to send. Check the configuration."
	default:
		return ""
	}
}
