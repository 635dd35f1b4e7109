package adminui

import (
	"fmt"
	"html/template"
	"net/http"

	"fileshare/internal/service"
)

type templates struct {
	dashboard *template.Template
	errorT    *template.Template
}

type userRow struct {
	Username       string
	Email          string
	Role           string
	EmailVerified  bool
	StorageLimitMB int64
	Usage          string
	DeletedAt      string
}

type dashboardViewData struct {
	Title     string
	AppName   string
	Dashboard service.Dashboard
	Users     []userRow
	Notice    string
	Error     string
}

type errorViewData struct {
	Title string
	Error string
}

func parseTemplates() (*templates, error) {
	dashboard, err := template.New("base").Funcs(template.FuncMap{
		"pct": func(v float64) string { return fmt.Sprintf("%.1f", v) },
	}).ParseFS(assets, "templates/dashboard.html")
	if err != nil {
		return nil, fmt.Errorf("parse dashboard: %w", err)
	}
	errorT, err := template.New("base").ParseFS(assets, "templates/error.html")
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return &templates{dashboard: dashboard, errorT: errorT}, nil
}

func (t *templates) renderDashboard(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = t.dashboard.ExecuteTemplate(w, "dashboard.html", data)
}

func (t *templates) renderError(w http.ResponseWriter, status int, title, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = t.errorT.ExecuteTemplate(w, "error.html", errorViewData{Title: title, Error: msg})
}
