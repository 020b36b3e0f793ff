package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	tmplOTP             = "otp.html"
	tmplReset           = "reset.html"
	tmplWelcome         = "welcome.html"
	tmplPasswordChanged = "password_changed.html"
)

// templateData is the value every email template is executed with.
type templateData struct {
	AppName       string
	UserName      string
	SupportEmail  string
	DashboardURL  string
	Code          string
	ResetURL      string
	ExpiryMinutes int
}

// templates holds one parsed set per content template, each sharing layout.html.
type templates map[string]*template.Template

func loadTemplates() (templates, error) {
	out := make(templates)
	for _, name := range []string{tmplOTP, tmplReset, tmplWelcome, tmplPasswordChanged} {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		out[name] = t
	}
	return out, nil
}

func (ts templates) render(name string, data templateData) (string, error) {
	t, ok := ts[name]
	if !ok {
		return "", fmt.Errorf("unknown template %s", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
