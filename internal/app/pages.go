package app

import (
	"net/http"

	"github.com/bebleo/checklist/internal/view"
)

// pages serves the public home and about pages.
type pages struct {
	view view.Pages
}

func (p pages) home(w http.ResponseWriter, r *http.Request) {
	p.view.Render(w, r, "pages/home.html", "", nil)
}

func (p pages) about(w http.ResponseWriter, r *http.Request) {
	p.view.Render(w, r, "pages/about.html", "About", nil)
}
