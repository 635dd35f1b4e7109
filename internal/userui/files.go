package userui

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"fileshare/internal/domain"
	"fileshare/internal/imaging"
	"fileshare/internal/service"
)

// previewThreshold is the artifact size above which image previews are
// downscaled instead of served as-is.
const previewThreshold = 300 * 1024

const (
	previewMaxDim   = 800
	previewJPEGQual = 70
)

func (a *app) handleHome(w http.ResponseWriter, r *http.Request) {
	u, _, _ := a.currentUser(r)
	settings := a.store.Settings()

	// Admins can flip the index to every user's files.
	showAll := u.IsAdmin() && r.URL.Query().Get("show_all") == "1"
	entries := a.store.FilesOwnedBy(u.Username)
	if showAll {
		entries = a.store.ListFiles()
	}

	var rows []fileRow
	for _, e := range entries {
		// Bundle children appear on the bundle page, not the index.
		if e.BundleID != "" {
			continue
		}
		rows = append(rows, a.fileRowFor(e))
	}

	used, _, _ := a.storage.UsageSummary(u.Username)
	limit := domain.EffectiveStorageLimitBytes(u, settings)

	n, _ := strconv.Atoi(r.URL.Query().Get("n"))
	title := "My Files"
	if showAll {
		title = "All Files"
	}
	data := homeViewData{
		Title:         title,
		AppName:       settings.AppName,
		User:          u,
		Files:         rows,
		ShowAll:       showAll,
		StorageUsed:   service.FormatBytes(used),
		StorageLimit:  service.FormatBytes(limit),
		MaxFileSizeMB: settings.MaxFileSizeMB,
		MaxFiles:      settings.MaxFilesPerBundle,
		Notice:        mapHomeNotice(strings.TrimSpace(r.URL.Query().Get("notice")), n),
		Error:         mapHomeError(strings.TrimSpace(r.URL.Query().Get("error"))),
	}
	if u.DeletedAt != nil {
		data.Warning = fmt.Sprintf(
			"Your account is scheduled for deletion on %s. Visit your profile to recover it.",
			domain.PurgeDate(*u.DeletedAt).Format("January 2, 2006"),
		)
	}
	a.templates.renderHome(w, http.StatusOK, data)
}

func (a *app) fileRowFor(e domain.FileEntry) fileRow {
	row := fileRow{
		ID:         e.ID,
		Filename:   e.Filename,
		Owner:      e.Owner,
		UploadedAt: e.UploadedAt.Format("2006-01-02 15:04"),
		IsBundle:   e.IsBundle,
	}
	if e.IsBundle {
		row.FileCount = len(e.Files)
		return row
	}
	row.Size = service.FormatBytesShort(a.storage.ArtifactSize(e))
	row.IsImage = isImageName(e.Filename)
	return row
}

func (a *app) handleUpload(w http.ResponseWriter, r *http.Request) {
	u, _, _ := a.currentUser(r)
	if !u.EmailVerified {
		redirectWith(w, r, "/", "", "not_verified")
		return
	}

	settings := a.store.Settings()
	maxBytes := settings.MaxFileSizeMB * 1024 * 1024
	// Multipart overhead plus up to a full bundle of maximum-size files.
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes*int64(settings.MaxFilesPerBundle)+1<<20)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		a.templates.renderError(w, http.StatusRequestEntityTooLarge, "Upload Failed", a.appName(),
			fmt.Sprintf("Upload too large. The maximum file size is %d MB.", settings.MaxFileSizeMB))
		return
	}

	var headers []*multipart.FileHeader
	if r.MultipartForm != nil {
		for _, fh := range r.MultipartForm.File["files"] {
			if fh.Filename == "" {
				continue
			}
			if fh.Size > maxBytes {
				a.templates.renderError(w, http.StatusRequestEntityTooLarge, "Upload Failed", a.appName(),
					fmt.Sprintf("%q exceeds the %d MB file size limit.", fh.Filename, settings.MaxFileSizeMB))
				return
			}
			headers = append(headers, fh)
		}
	}
	if len(headers) == 0 {
		a.templates.renderError(w, http.StatusBadRequest, "Upload Failed", a.appName(), "No files selected.")
		return
	}

	uploads := make([]service.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			a.logger.Error("userui: open upload part failed", "err", err)
			a.templates.renderError(w, http.StatusInternalServerError, "Upload Failed", a.appName(), "Failed to read upload.")
			return
		}
		defer f.Close()
		uploads = append(uploads, service.Upload{
			Filename: fh.Filename,
			Size:     fh.Size,
			Content:  f,
		})
	}

	entries, _, err := a.files.Upload(u.Username, uploads)
	if err != nil {
		var quotaErr *domain.StorageExceededError
		switch {
		case errors.As(err, &quotaErr):
			a.templates.renderError(w, http.StatusBadRequest, "Upload Failed", a.appName(),
				fmt.Sprintf("Not enough storage. You have %s available of your %s limit.",
					service.FormatBytes(quotaErr.AvailableBytes), service.FormatBytes(quotaErr.LimitBytes)))
		case errors.Is(err, domain.ErrValidation):
			msg := "Invalid upload."
			var vErr *domain.ValidationError
			if errors.As(err, &vErr) {
				if m, ok := vErr.Fields["files"]; ok {
					msg = m
				}
			}
			a.templates.renderError(w, http.StatusBadRequest, "Upload Failed", a.appName(), msg)
		default:
			a.logger.Error("userui: upload failed", "user", u.Username, "err", err)
			a.templates.renderError(w, http.StatusInternalServerError, "Upload Failed", a.appName(), "Failed to store files.")
		}
		return
	}

	http.Redirect(w, r, "/?notice=uploaded&n="+strconv.Itoa(len(entries)), http.StatusFound)
}

func (a *app) handleFileDetail(w http.ResponseWriter, r *http.Request) {
	u, _, _ := a.currentUser(r)

	entry, err := a.store.GetFile(r.PathValue("id"))
	if err != nil {
		a.templates.renderError(w, http.StatusNotFound, "Not Found", a.appName(), "File not found.")
		return
	}
	canDelete := u.IsAdmin() || entry.Owner == u.Username

	if entry.IsBundle {
		data := bundleViewData{
			Title:      entry.Filename,
			AppName:    a.appName(),
			User:       u,
			ID:         entry.ID,
			Owner:      entry.Owner,
			UploadedAt: entry.UploadedAt.Format("2006-01-02 15:04"),
			CanDelete:  canDelete,
		}
		var total int64
		for _, childID := range entry.Files {
			child, err := a.store.GetFile(childID)
			if err != nil {
				continue
			}
			total += a.storage.ArtifactSize(child)
			data.Files = append(data.Files, a.fileRowFor(child))
		}
		data.TotalSize = service.FormatBytesShort(total)
		a.templates.renderBundle(w, http.StatusOK, data)
		return
	}

	a.templates.renderFile(w, http.StatusOK, fileViewData{
		Title:      entry.Filename,
		AppName:    a.appName(),
		User:       u,
		ID:         entry.ID,
		Filename:   entry.Filename,
		Owner:      entry.Owner,
		Size:       service.FormatBytesShort(a.storage.ArtifactSize(entry)),
		UploadedAt: entry.UploadedAt.Format("2006-01-02 15:04"),
		Kind:       fileKind(entry.Filename),
		IsImage:    isImageName(entry.Filename),
		CanDelete:  canDelete,
	})
}

func (a *app) handleDownload(w http.ResponseWriter, r *http.Request) {
	entry, err := a.store.GetFile(r.PathValue("id"))
	if err != nil || entry.IsBundle {
		a.templates.renderError(w, http.StatusNotFound, "Not Found", a.appName(), "File not found.")
		return
	}

	path := a.storage.ArtifactPath(entry)
	f, err := os.Open(path)
	if err != nil {
		a.logger.Error("userui: open artifact failed", "id", entry.ID, "err", err)
		a.templates.renderError(w, http.StatusNotFound, "Not Found", a.appName(), "File content is missing.")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", entry.Filename))
	http.ServeContent(w, r, entry.Filename, entry.UploadedAt, f)
}

// handlePreview serves image content inline. Large images are
// downscaled so the detail page does not pull the full artifact.
func (a *app) handlePreview(w http.ResponseWriter, r *http.Request) {
	entry, err := a.store.GetFile(r.PathValue("id"))
	if err != nil || entry.IsBundle || !isImageName(entry.Filename) {
		http.NotFound(w, r)
		return
	}

	path := a.storage.ArtifactPath(entry)
	size := a.storage.ArtifactSize(entry)
	if size == 0 {
		http.NotFound(w, r)
		return
	}

	if size <= previewThreshold {
		f, err := os.Open(path)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer f.Close()
		http.ServeContent(w, r, entry.Filename, entry.UploadedAt, f)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	img, err := imaging.Decode(f)
	if err != nil {
		a.logger.Warn("userui: preview decode failed", "id", entry.ID, "err", err)
		http.NotFound(w, r)
		return
	}
	img = imaging.Fit(img, previewMaxDim, previewMaxDim)

	format := imaging.FormatForMIME(mime.TypeByExtension(strings.ToLower(filepath.Ext(entry.Filename))))
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, previewJPEGQual); err != nil {
		a.logger.Error("userui: preview encode failed", "id", entry.ID, "err", err)
		http.Error(w, "preview failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/"+string(format))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(buf.Bytes())
}

func (a *app) handleDelete(w http.ResponseWriter, r *http.Request) {
	u, _, _ := a.currentUser(r)

	_, wasBundle, err := a.files.Delete(u, r.PathValue("id"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			a.templates.renderError(w, http.StatusNotFound, "Not Found", a.appName(), "File not found.")
		case errors.Is(err, domain.ErrForbidden):
			a.templates.renderError(w, http.StatusForbidden, "Forbidden", a.appName(), "You cannot delete another user's files.")
		default:
			a.logger.Error("userui: delete failed", "err", err)
			a.templates.renderError(w, http.StatusInternalServerError, "Error", a.appName(), "Failed to delete.")
		}
		return
	}

	notice := "deleted"
	if wasBundle {
		notice = "bundle_deleted"
	}
	redirectWith(w, r, "/", notice, "")
}

func (a *app) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	u, _, _ := a.currentUser(r)

	// show_all=1 wipes every user's files; the service refuses it for
	// non-admins.
	everything := r.URL.Query().Get("show_all") == "1"
	if _, err := a.files.DeleteAll(u, everything); err != nil {
		if errors.Is(err, domain.ErrForbidden) {
			a.templates.renderError(w, http.StatusForbidden, "Forbidden", a.appName(), "Only admins can delete all users' files.")
			return
		}
		a.logger.Error("userui: delete all failed", "user", u.Username, "err", err)
		a.templates.renderError(w, http.StatusInternalServerError, "Error", a.appName(), "Failed to delete files.")
		return
	}
	if everything {
		redirectWith(w, r, "/?show_all=1", "all_deleted", "")
		return
	}
	redirectWith(w, r, "/", "all_deleted", "")
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
}

func isImageName(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

func fileKind(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".svg":
		return "Image"
	case ".mp4", ".mkv", ".mov", ".avi", ".webm":
		return "Video"
	case ".mp3", ".wav", ".flac", ".ogg", ".m4a":
		return "Audio"
	case ".pdf", ".doc", ".docx", ".txt", ".md", ".odt":
		return "Document"
	case ".zip", ".tar", ".gz", ".rar", ".7z":
		return "Archive"
	default:
		return "File"
	}
}
