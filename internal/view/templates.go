package view

import (
	"bytes"
	"fmt"
	"html/template"
	"math"
	"net/http"
	"strconv"
	texttemplate "text/template"
	"time"

	"github.com/bebleo/checklist/internal/shared"
	"github.com/bebleo/checklist/internal/users"
	"github.com/bebleo/checklist/web"
)

// Engine renders HTML pages and plain text emails.
type Engine struct {
	templates *template.Template
	text      *texttemplate.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flashes     []shared.FlashMessage
	CurrentPath string
	CurrentUser *users.User
	Data        any
}

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": formatDate,
		"percent":    percent,
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates,
		"templates/layouts/*.html",
		"templates/partials/*.html",
		"templates/pages/*.html",
		"templates/pages/*/*.html",
	)
	if err != nil {
		return nil, err
	}
	text, err := texttemplate.New("emails").ParseFS(web.Templates, "templates/emails/*.txt")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl, text: text}, nil
}

// Render executes a named template with TemplateData and status 200.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	return e.RenderStatus(w, http.StatusOK, name, data)
}

// RenderStatus executes a named template into a buffer and writes it with status.
// Nothing is written when execution fails.
func (e *Engine) RenderStatus(w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// RenderText executes an email template such as "emails/password_reset.txt".
func (e *Engine) RenderText(name string, data any) (string, error) {
	if e == nil {
		return "", fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.text.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02 Jan 2006 15:04")
}

// percent renders a 0..1 fraction as a whole percentage.
func percent(fraction float64) string {
	if math.IsNaN(fraction) || fraction <= 0 {
		return "0"
	}
	if fraction >= 1 {
		return "100"
	}
	return strconv.Itoa(int(math.Round(fraction * 100)))
}
