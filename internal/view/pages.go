package view

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/bebleo/checklist/internal/shared"
	"github.com/bebleo/checklist/internal/users"
)

// Pages renders full pages for a handler inside the TemplateData envelope.
type Pages struct {
	Templates *Engine
	CSRF      *shared.CSRFManager
	Logger    *slog.Logger
	// User resolves the signed in user, if any, from the request context.
	User func(context.Context) *users.User
}

// Render writes the named page. Every pending flash is consumed.
func (p Pages) Render(w http.ResponseWriter, r *http.Request, name, title string, data any) {
	ctx := r.Context()
	var csrfToken string
	if sess := shared.SessionFromContext(ctx); sess != nil && p.CSRF != nil {
		csrfToken, _ = p.CSRF.EnsureToken(ctx, sess)
	}
	viewData := TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flashes:     shared.PopFlashes(ctx),
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if p.User != nil {
		viewData.CurrentUser = p.User(ctx)
	}
	if err := p.Templates.Render(w, name, viewData); err != nil {
		logger := p.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("render template", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// RedirectWithFlash queues a flash on the request session and redirects to location.
func RedirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	shared.Flash(r.Context(), kind, message)
	http.Redirect(w, r, location, http.StatusFound)
}
