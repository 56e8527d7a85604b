package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/desertthunder/amalgam/internal/models"
	"github.com/desertthunder/amalgam/internal/tasks"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page names
const (
	pageRegister     = "register.html"
	pageLogin        = "login.html"
	pageHome         = "home.html"
	pageAddServer    = "add_server.html"
	pageDeleteServer = "delete_server.html"
	pageAbout        = "about.html"
)

var pages = []string{pageRegister, pageLogin, pageHome, pageAddServer, pageDeleteServer, pageAbout}

// View is the data every page template receives.
type View struct {
	Title   string
	User    *Principal
	Flashes []string
	Error   string

	Posts   []models.Post
	Failed  []tasks.FeedFailure
	Servers []*models.LinkedAccount
}

// Renderer executes the embedded page templates inside the shared layout.
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer parses every page. Remote post HTML passes through a bluemonday UGC policy.
func NewRenderer() (*Renderer, error) {
	policy := bluemonday.UGCPolicy()
	policy.AddTargetBlankToFullyQualifiedLinks(true)

	funcs := template.FuncMap{
		"sanitize": func(s string) template.HTML {
			return template.HTML(policy.Sanitize(s))
		},
		"timestamp": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.UTC().Format("2006-01-02 15:04 MST")
		},
	}

	r := &Renderer{pages: make(map[string]*template.Template, len(pages))}
	for _, page := range pages {
		tmpl, err := template.New(page).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", page, err)
		}
		r.pages[page] = tmpl
	}
	return r, nil
}

// Render writes page with status. Execution happens before anything is written.
func (r *Renderer) Render(w http.ResponseWriter, status int, page string, view View) error {
	tmpl, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %s", page)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", view); err != nil {
		return fmt.Errorf("failed to execute %s: %w", page, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
