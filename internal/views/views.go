// Package views holds the server-rendered dashboard pages.
package views

import (
	"embed"
	"html/template"

	"phaze17/dashboard/internal/models"
)

//go:embed templates/*.html
var files embed.FS

const (
	Landing            = "landing.html"
	Login              = "login.html"
	AdminDashboard     = "admin_dashboard.html"
	MarketingDashboard = "marketing_dashboard.html"
	Pending            = "pending.html"
	Denied             = "denied.html"
	Failure            = "error.html"
)

var funcs = template.FuncMap{
	"roleLabel": func(role models.UserRole) string { return role.Label() },
	"displayName": func(u models.User) string {
		if u.FullName == "" {
			return u.Email
		}
		return u.FullName
	},
}

// Templates parses every page. Names are the file names above.
func Templates() (*template.Template, error) {
	return template.New("views").Funcs(funcs).ParseFS(files, "templates/*.html")
}
