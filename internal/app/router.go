package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bebleo/checklist/internal/admin"
	"github.com/bebleo/checklist/internal/auth"
	"github.com/bebleo/checklist/internal/checklists"
	"github.com/bebleo/checklist/internal/observability"
	"github.com/bebleo/checklist/internal/platform/httpx"
	"github.com/bebleo/checklist/internal/shared"
	"github.com/bebleo/checklist/internal/view"
	"github.com/bebleo/checklist/jobs"
	"github.com/bebleo/checklist/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Templates        *view.Engine
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	Resolver         *auth.Resolver
	AuthHandler      *auth.Handler
	AdminHandler     *admin.Handler
	ChecklistHandler *checklists.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with the application's routes.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	var identity func(http.Handler) http.Handler
	if params.Resolver != nil {
		identity = params.Resolver.Middleware
	}
	r.Group(func(r chi.Router) {
		for _, mw := range MiddlewareStack(MiddlewareConfig{
			Logger:         logger,
			Config:         params.Config,
			SessionManager: params.SessionManager,
			CSRFManager:    params.CSRFManager,
			Identity:       identity,
			Metrics:        params.Metrics,
		}) {
			r.Use(mw)
		}
		r.Use(chimw.Logger)

		p := pages{view: view.Pages{Templates: params.Templates, CSRF: params.CSRFManager, Logger: logger, User: auth.CurrentUser}}
		r.Get("/", p.home)
		r.Get("/about", p.about)

		authLimit := 10
		if params.Config != nil && params.Config.AuthRateLimitPerMinute > 0 {
			authLimit = params.Config.AuthRateLimitPerMinute
		}
		r.With(limitPosts(authLimit)).Route("/auth", params.AuthHandler.MountRoutes)
		r.Route("/admin/users", params.AdminHandler.MountRoutes)
		r.Route("/checklist", params.ChecklistHandler.MountRoutes)
		if params.JobHandler != nil {
			r.With(auth.RequireAdmin).Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}

// staticCacheHandler lets browsers cache the embedded assets for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
