package userui

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"fileshare/internal/auth"
	"fileshare/internal/domain"
	"fileshare/internal/imaging"
	"fileshare/internal/service"
)

const (
	pictureMaxDim   = 300
	pictureJPEGQual = 85
	maxPictureBytes = 8 << 20
)

func (a *app) handleProfileGet(w http.ResponseWriter, r *http.Request) {
	u, _, _ := a.currentUser(r)

	used, files, bundles := a.storage.UsageSummary(u.Username)
	limit := domain.EffectiveStorageLimitBytes(u, a.store.Settings())

	data := profileViewData{
		Title:         "Profile",
		AppName:       a.appName(),
		User:          u,
		StorageUsed:   service.FormatBytes(used),
		StorageLimit:  service.FormatBytes(limit),
		FileCount:     files,
		BundleCount:   bundles,
		StoragePublic: u.StoragePublic,
		HasPicture:    u.ProfilePicture != "",
		Notice:        mapProfileNotice(strings.TrimSpace(r.URL.Query().Get("notice"))),
		Error:         mapProfileError(strings.TrimSpace(r.URL.Query().Get("error"))),
	}
	if u.DeletedAt != nil {
		data.PendingDelete = true
		data.PurgeDate = domain.PurgeDate(*u.DeletedAt).Format("January 2, 2006")
	}
	a.templates.renderProfile(w, http.StatusOK, data)
}

func (a *app) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	u, _, _ := a.currentUser(r)
	if err := r.ParseForm(); err != nil {
		redirectWith(w, r, "/profile", "", "invalid_form")
		return
	}

	err := a.accounts.ChangePassword(r.Context(), u.Username,
		r.FormValue("current_password"), r.FormValue("new_password"), r.FormValue("confirm_password"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidCredentials):
			redirectWith(w, r, "/profile", "", "wrong_password")
		case errors.Is(err, domain.ErrValidation):
			redirectWith(w, r, "/profile", "", "password_mismatch")
		default:
			a.logger.Error("userui: change password failed", "user", u.Username, "err", err)
			redirectWith(w, r, "/profile", "", "update_failed")
		}
		return
	}
	redirectWith(w, r, "/profile", "password_changed", "")
}

func (a *app) handleChangeEmail(w http.ResponseWriter, r *http.Request) {
	u, _, _ := a.currentUser(r)
	if err := r.ParseForm(); err != nil {
		redirectWith(w, r, "/profile", "", "invalid_form")
		return
	}

	email := normalizeEmail(r.FormValue("email"))
	if !validEmail(email) {
		redirectWith(w, r, "/profile", "", "invalid_email")
		return
	}

	err := a.accounts.ChangeEmail(r.Context(), u.Username, email, r.FormValue("password"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidCredentials):
			redirectWith(w, r, "/profile", "", "wrong_password")
		case errors.Is(err, domain.ErrEmailTaken):
			redirectWith(w, r, "/profile", "", "email_taken")
		case errors.Is(err, domain.ErrValidation):
			redirectWith(w, r, "/profile", "", "invalid_email")
		default:
			a.logger.Error("userui: change email failed", "user", u.Username, "err", err)
			redirectWith(w, r, "/profile", "", "update_failed")
		}
		return
	}
	redirectWith(w, r, "/profile", "email_changed", "")
}

func (a *app) handleToggleVisibility(w http.ResponseWriter, r *http.Request) {
	u, _, _ := a.currentUser(r)

	public, err := a.accounts.ToggleStorageVisibility(r.Context(), u.Username)
	if err != nil {
		a.logger.Error("userui: toggle visibility failed", "user", u.Username, "err", err)
		redirectWith(w, r, "/profile", "", "update_failed")
		return
	}
	notice := "storage_hidden"
	if public {
		notice = "storage_public"
	}
	redirectWith(w, r, "/profile", notice, "")
}

// handlePictureUpload stores the picture downscaled to 300x300 and
// re-encoded as JPEG, regardless of what was uploaded.
func (a *app) handlePictureUpload(w http.ResponseWriter, r *http.Request) {
	u, _, _ := a.currentUser(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxPictureBytes)
	if err := r.ParseMultipartForm(maxPictureBytes); err != nil {
		redirectWith(w, r, "/profile", "", "picture_too_large")
		return
	}

	file, _, err := r.FormFile("picture")
	if err != nil {
		redirectWith(w, r, "/profile", "", "picture_required")
		return
	}
	defer file.Close()

	img, err := imaging.Decode(file)
	if err != nil {
		redirectWith(w, r, "/profile", "", "picture_invalid")
		return
	}
	img = imaging.Fit(img, pictureMaxDim, pictureMaxDim)

	if err := os.MkdirAll(a.profileDir, 0o755); err != nil {
		a.logger.Error("userui: create profile dir failed", "err", err)
		redirectWith(w, r, "/profile", "", "update_failed")
		return
	}

	filename := fmt.Sprintf("%s_%s.jpg", u.Username, strings.ReplaceAll(uuid.NewString(), "-", ""))
	targetPath := filepath.Join(a.profileDir, filename)

	tmp, err := os.CreateTemp(a.profileDir, "picture-*")
	if err != nil {
		a.logger.Error("userui: create picture file failed", "err", err)
		redirectWith(w, r, "/profile", "", "update_failed")
		return
	}
	writeErr := func(err error) {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		a.logger.Error("userui: write picture failed", "user", u.Username, "err", err)
		redirectWith(w, r, "/profile", "", "update_failed")
	}
	if err := imaging.Encode(tmp, img, imaging.JPEG, pictureJPEGQual); err != nil {
		writeErr(err)
		return
	}
	if err := tmp.Close(); err != nil {
		writeErr(err)
		return
	}
	if err := os.Rename(tmp.Name(), targetPath); err != nil {
		writeErr(err)
		return
	}
	if err := os.Chmod(targetPath, 0o644); err != nil {
		a.logger.Warn("userui: chmod picture failed", "err", err)
	}

	previous, err := a.accounts.UpdateProfilePicture(r.Context(), u.Username, filename)
	if err != nil {
		_ = os.Remove(targetPath)
		a.logger.Error("userui: update picture failed", "user", u.Username, "err", err)
		redirectWith(w, r, "/profile", "", "update_failed")
		return
	}
	if previous != "" {
		if err := os.Remove(filepath.Join(a.profileDir, previous)); err != nil && !errors.Is(err, os.ErrNotExist) {
			a.logger.Warn("userui: remove old picture failed", "user", u.Username, "err", err)
		}
	}

	redirectWith(w, r, "/profile", "picture_saved", "")
}

func (a *app) handlePictureDelete(w http.ResponseWriter, r *http.Request) {
	u, _, _ := a.currentUser(r)

	if err := a.accounts.DeleteProfilePicture(r.Context(), u.Username); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			redirectWith(w, r, "/profile", "", "no_picture")
			return
		}
		a.logger.Error("userui: delete picture failed", "user", u.Username, "err", err)
		redirectWith(w, r, "/profile", "", "update_failed")
		return
	}
	redirectWith(w, r, "/profile", "picture_deleted", "")
}

func (a *app) handleServePicture(w http.ResponseWriter, r *http.Request) {
	username := domain.NormalizeUsername(r.PathValue("username"))
	u, err := a.store.GetUser(username)
	if err != nil || u.ProfilePicture == "" {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(a.profileDir, u.ProfilePicture)
	f, err := os.Open(path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeContent(w, r, u.ProfilePicture, u.CreatedAt, f)
}

func (a *app) handleRequestDeletion(w http.ResponseWriter, r *http.Request) {
	u, _, _ := a.currentUser(r)
	if err := r.ParseForm(); err != nil {
		redirectWith(w, r, "/profile", "", "invalid_form")
		return
	}

	_, err := a.accounts.RequestDeletion(r.Context(), u, u.Username, r.FormValue("password"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidCredentials):
			redirectWith(w, r, "/profile", "", "wrong_password")
		case errors.Is(err, domain.ErrForbidden):
			redirectWith(w, r, "/profile", "", "admin_delete_refused")
		case errors.Is(err, domain.ErrValidation):
			redirectWith(w, r, "/profile", "", "password_required")
		default:
			a.logger.Error("userui: request deletion failed", "user", u.Username, "err", err)
			redirectWith(w, r, "/profile", "", "update_failed")
		}
		return
	}

	// RequestDeletion revoked every session for this account.
	auth.ClearSessionCookie(w, a.cookieSecure)
	http.Redirect(w, r, "/login?notice=account_deleted", http.StatusFound)
}

func (a *app) handleRecoverAccount(w http.ResponseWriter, r *http.Request) {
	u, sessID, _ := a.currentUser(r)

	if err := a.accounts.Recover(r.Context(), u, u.Username); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			redirectWith(w, r, "/profile", "", "not_deleted")
		case errors.Is(err, domain.ErrGraceExpired):
			a.accounts.Logout(sessID)
			auth.ClearSessionCookie(w, a.cookieSecure)
			a.templates.renderError(w, http.StatusForbidden, "Recovery Period Ended", a.appName(),
				"The recovery period for this account has ended. You can request recovery from an administrator.")
		default:
			a.logger.Error("userui: recover account failed", "user", u.Username, "err", err)
			redirectWith(w, r, "/profile", "", "update_failed")
		}
		return
	}
	redirectWith(w, r, "/profile", "account_recovered", "")
}

func mapProfileNotice(code string) string {
	switch code {
	case "password_changed":
		return "Password updated."
	case "email_changed":
		return "Email updated. You may need to verify it again."
	case "storage_public":
		return "Your storage usage is now visible to other users."
	case "storage_hidden":
		return "Your storage usage is now hidden."
	case "picture_saved":
		return "Profile picture updated."
	case "picture_deleted":
		return "Profile picture removed."
	case "account_recovered":
		return "Your account has been recovered."
	case "pending_deletion":
		return "This account is scheduled for deletion. You can recover it below."
	default:
		return ""
	}
}

func mapProfileError(code string) string {
	switch code {
	case "invalid_form":
		return "Invalid form submission."
	case "wrong_password":
		return "Password is incorrect."
	case "password_mismatch":
		return "New passwords do not match."
	case "password_required":
		return "Password is required."
	case "invalid_email":
		return "Email must be valid."
	case "email_taken":
		return "That email is already in use."
	case "picture_too_large":
		return "Profile picture is too large."
	case "picture_required":
		return "Choose an image file to upload."
	case "picture_invalid":
		return "Profile picture must be a valid image."
	case "no_picture":
		return "No profile picture to remove."
	case "admin_delete_refused":
		return "Administrator accounts cannot be deleted."
	case "not_deleted":
		return "This account is not scheduled for deletion."
	case "update_failed":
		return "Update failed."
	default:
		return ""
	}
}
