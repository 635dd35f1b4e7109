package userui

import (
	"fmt"
	"html/template"
	"net/http"

	"fileshare/internal/domain"
)

type templates struct {
	login    *template.Template
	register *template.Template
	forgot   *template.Template
	reset    *template.Template
	recover  *template.Template
	home     *template.Template
	file     *template.Template
	bundle   *template.Template
	profile  *template.Template
	errorT   *template.Template
}

type viewData struct {
	Title   string
	AppName string
	Error   string
	Notice  string
}

type loginViewData struct {
	Title    string
	AppName  string
	Username string
	Error    string
	Notice   string
	Warning  string
}

type registerViewData struct {
	Title    string
	AppName  string
	Username string
	Email    string
	Error    string
}

type forgotViewData struct {
	Title   string
	AppName string
	Error   string
	Notice  string
}

type resetViewData struct {
	Title   string
	AppName string
	Token   string
	Error   string
}

type recoverViewData struct {
	Title    string
	AppName  string
	Username string
	Error    string
	Notice   string
}

type fileRow struct {
	ID         string
	Filename   string
	Owner      string
	Size       string
	UploadedAt string
	IsBundle   bool
	FileCount  int
	IsImage    bool
}

type homeViewData struct {
	Title         string
	AppName       string
	User          domain.User
	Files         []fileRow
	ShowAll       bool
	StorageUsed   string
	StorageLimit  string
	MaxFileSizeMB int64
	MaxFiles      int
	Error         string
	Notice        string
	Warning       string
}

type fileViewData struct {
	Title      string
	AppName    string
	User       domain.User
	ID         string
	Filename   string
	Owner      string
	Size       string
	UploadedAt string
	Kind       string
	IsImage    bool
	CanDelete  bool
}

type bundleViewData struct {
	Title      string
	AppName    string
	User       domain.User
	ID         string
	Owner      string
	UploadedAt string
	TotalSize  string
	Files      []fileRow
	CanDelete  bool
}

type profileViewData struct {
	Title         string
	AppName       string
	User          domain.User
	StorageUsed   string
	StorageLimit  string
	FileCount     int
	BundleCount   int
	StoragePublic bool
	HasPicture    bool
	PendingDelete bool
	PurgeDate     string
	Error         string
	Notice        string
}

func parseTemplates() (*templates, error) {
	parse := func(files ...string) (*template.Template, error) {
		t, err := template.New("base").ParseFS(assets, files...)
		if err != nil {
			return nil, err
		}
		return t, nil
	}

	login, err := parse("templates/login.html")
	if err != nil {
		return nil, fmt.Errorf("parse login: %w", err)
	}
	register, err := parse("templates/register.html")
	if err != nil {
		return nil, fmt.Errorf("parse register: %w", err)
	}
	forgot, err := parse("templates/forgot_password.html")
	if err != nil {
		return nil, fmt.Errorf("parse forgot_password: %w", err)
	}
	reset, err := parse("templates/reset_password.html")
	if err != nil {
		return nil, fmt.Errorf("parse reset_password: %w", err)
	}
	recoverT, err := parse("templates/recover.html")
	if err != nil {
		return nil, fmt.Errorf("parse recover: %w", err)
	}
	home, err := parse("templates/layout.html", "templates/home.html")
	if err != nil {
		return nil, fmt.Errorf("parse home: %w", err)
	}
	file, err := parse("templates/layout.html", "templates/file.html")
	if err != nil {
		return nil, fmt.Errorf("parse file: %w", err)
	}
	bundle, err := parse("templates/layout.html", "templates/bundle.html")
	if err != nil {
		return nil, fmt.Errorf("parse bundle: %w", err)
	}
	profile, err := parse("templates/layout.html", "templates/profile.html")
	if err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	errorT, err := parse("templates/error.html")
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	return &templates{
		login:    login,
		register: register,
		forgot:   forgot,
		reset:    reset,
		recover:  recoverT,
		home:     home,
		file:     file,
		bundle:   bundle,
		profile:  profile,
		errorT:   errorT,
	}, nil
}

func (t *templates) render(w http.ResponseWriter, tmpl *template.Template, name string, status int, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = tmpl.ExecuteTemplate(w, name, data)
}

func (t *templates) renderLogin(w http.ResponseWriter, status int, data any) {
	t.render(w, t.login, "login.html", status, data)
}

func (t *templates) renderRegister(w http.ResponseWriter, status int, data any) {
	t.render(w, t.register, "register.html", status, data)
}

func (t *templates) renderForgot(w http.ResponseWriter, status int, data any) {
	t.render(w, t.forgot, "forgot_password.html", status, data)
}

func (t *templates) renderReset(w http.ResponseWriter, status int, data any) {
	t.render(w, t.reset, "reset_password.html", status, data)
}

func (t *templates) renderRecover(w http.ResponseWriter, status int, data any) {
	t.render(w, t.recover, "recover.html", status, data)
}

func (t *templates) renderHome(w http.ResponseWriter, status int, data any) {
	t.render(w, t.home, "home.html", status, data)
}

func (t *templates) renderFile(w http.ResponseWriter, status int, data any) {
	t.render(w, t.file, "file.html", status, data)
}

func (t *templates) renderBundle(w http.ResponseWriter, status int, data any) {
	t.render(w, t.bundle, "bundle.html", status, data)
}

func (t *templates) renderProfile(w http.ResponseWriter, status int, data any) {
	t.render(w, t.profile, "profile.html", status, data)
}

func (t *templates) renderErrorPage(w http.ResponseWriter, status int, data any) {
	t.render(w, t.errorT, "error.html", status, data)
}

func (t *templates) renderError(w http.ResponseWriter, status int, title, appName, msg string) {
	t.renderErrorPage(w, status, viewData{Title: title, AppName: appName, Error: msg})
}
