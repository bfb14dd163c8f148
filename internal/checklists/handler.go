package checklists

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bebleo/checklist/internal/auth"
	"github.com/bebleo/checklist/internal/platform/httpx"
	"github.com/bebleo/checklist/internal/shared"
	"github.com/bebleo/checklist/internal/view"
)

// Handler wires HTTP endpoints for checklists.
type Handler struct {
	logger  *slog.Logger
	service *Service
	pages   view.Pages
	forms   *shared.FormValidator
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:  logger,
		service: service,
		pages:   view.Pages{Templates: templates, CSRF: csrf, Logger: logger, User: auth.CurrentUser},
		forms:   shared.NewFormValidator(),
	}
}

// MountRoutes registers checklist routes on provided router. Every route
// requires an active, signed in user.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(auth.RequireAuthenticated)
	r.Get("/", h.index)
	r.Get("/create", h.showCreate)
	r.Post("/create", h.handleCreate)
	r.Get("/edit/{id:[0-9]+}", h.showEdit)
	r.Post("/edit/{id:[0-9]+}", h.handleEdit)
	r.Get("/delete/{id:[0-9]+}", h.showDelete)
	r.Post("/delete/{id:[0-9]+}", h.handleDelete)
	r.Get("/{id:[0-9]+}", h.show)
	r.Get("/{id:[0-9]+}/check/all", h.toggleAll)
	r.Get("/{id:[0-9]+}/check/{itemID:[0-9]+}", h.toggleItem)
	r.Get("/{id:[0-9]+}/add", h.showAddItem)
	r.Post("/{id:[0-9]+}/add", h.handleAddItem)
	r.Get("/{id:[0-9]+}/delete/{itemID:[0-9]+}", h.deleteItem)
}

type listForm struct {
	Title       string `form:"list_title" validate:"required"`
	Description string `form:"list_description"`
}

var listMessages = shared.Messages{
	"list_title": MsgTitleRequired,
}

type itemForm struct {
	Text string `form:"item_text" validate:"required"`
}

var itemMessages = shared.Messages{
	"item_text": MsgItemTextRequired,
}

type listPage struct {
	ID     int64
	Form   listForm
	Errors map[string]string
}

type itemPage struct {
	Checklist *Checklist
	Form      itemForm
	Errors    map[string]string
}

type detailPage struct {
	Checklist *Checklist
	Items     []Item
	Percent   float64
}

func actorFrom(r *http.Request) Actor {
	user := auth.CurrentUser(r.Context())
	if user == nil {
		return Actor{}
	}
	return Actor{ID: user.ID, Name: user.DisplayName()}
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	lists, err := h.service.ListForOwner(r.Context(), actorFrom(r))
	if err != nil {
		h.fail(w, "list checklists", err)
		return
	}
	h.pages.Render(w, r, "pages/checklist/index.html", "Checklists", lists)
}

func (h *Handler) showCreate(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, "pages/checklist/edit.html", "New Checklist", listPage{})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	form, ok := h.parseListForm(w, r)
	if !ok {
		return
	}
	if verr := h.forms.Struct(form, listMessages); !verr.Empty() {
		h.pages.Render(w, r, "pages/checklist/edit.html", "New Checklist", listPage{Form: form, Errors: verr.Fields})
		return
	}
	c, err := h.service.Create(r.Context(), actorFrom(r), form.Title, form.Description)
	if fields := shared.FieldErrors(err); fields != nil {
		h.pages.Render(w, r, "pages/checklist/edit.html", "New Checklist", listPage{Form: form, Errors: fields})
		return
	}
	if err != nil {
		h.fail(w, "create checklist", err)
		return
	}
	http.Redirect(w, r, detailPath(c.ID), http.StatusFound)
}

func (h *Handler) showEdit(w http.ResponseWriter, r *http.Request) {
	id := urlID(r, "id")
	c, err := h.service.Get(r.Context(), actorFrom(r), id)
	if err != nil {
		h.fail(w, "load checklist", err)
		return
	}
	h.pages.Render(w, r, "pages/checklist/edit.html", "Edit Checklist", listPage{
		ID:   c.ID,
		Form: listForm{Title: c.Title, Description: c.Description},
	})
}

func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request) {
	id := urlID(r, "id")
	form, ok := h.parseListForm(w, r)
	if !ok {
		return
	}
	if verr := h.forms.Struct(form, listMessages); !verr.Empty() {
		h.pages.Render(w, r, "pages/checklist/edit.html", "Edit Checklist", listPage{ID: id, Form: form, Errors: verr.Fields})
		return
	}
	_, err := h.service.Edit(r.Context(), actorFrom(r), id, form.Title, form.Description)
	if fields := shared.FieldErrors(err); fields != nil {
		h.pages.Render(w, r, "pages/checklist/edit.html", "Edit Checklist", listPage{ID: id, Form: form, Errors: fields})
		return
	}
	if err != nil {
		h.fail(w, "edit checklist", err)
		return
	}
	http.Redirect(w, r, detailPath(id), http.StatusFound)
}

func (h *Handler) showDelete(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Get(r.Context(), actorFrom(r), urlID(r, "id"))
	if err != nil {
		h.fail(w, "load checklist", err)
		return
	}
	h.pages.Render(w, r, "pages/checklist/confirm_delete.html", "Delete Checklist", c)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	confirmed, _ := strconv.ParseBool(r.PostFormValue("confirm_delete"))
	if err := h.service.Delete(r.Context(), actorFrom(r), urlID(r, "id"), confirmed); err != nil {
		h.fail(w, "delete checklist", err)
		return
	}
	view.RedirectWithFlash(w, r, "/checklist", "success", "The checklist has been deleted.")
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Get(r.Context(), actorFrom(r), urlID(r, "id"))
	if err != nil {
		h.fail(w, "load checklist", err)
		return
	}
	h.pages.Render(w, r, "pages/checklist/view.html", c.Title, detailPage{
		Checklist: c,
		Items:     c.ActiveItems(),
		Percent:   c.PercentComplete(),
	})
}

func (h *Handler) toggleItem(w http.ResponseWriter, r *http.Request) {
	id := urlID(r, "id")
	if _, err := h.service.ToggleItem(r.Context(), actorFrom(r), id, urlID(r, "itemID")); err != nil {
		h.fail(w, "toggle item", err)
		return
	}
	http.Redirect(w, r, detailPath(id), http.StatusFound)
}

func (h *Handler) toggleAll(w http.ResponseWriter, r *http.Request) {
	id := urlID(r, "id")
	if _, err := h.service.ToggleAll(r.Context(), actorFrom(r), id); err != nil {
		h.fail(w, "toggle all items", err)
		return
	}
	http.Redirect(w, r, detailPath(id), http.StatusFound)
}

func (h *Handler) showAddItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Get(r.Context(), actorFrom(r), urlID(r, "id"))
	if err != nil {
		h.fail(w, "load checklist", err)
		return
	}
	h.pages.Render(w, r, "pages/checklist/add_item.html", "Add Item", itemPage{Checklist: c})
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	id := urlID(r, "id")
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := itemForm{Text: r.PostFormValue("item_text")}
	verr := h.forms.Struct(form, itemMessages)
	var err error
	if verr.Empty() {
		_, err = h.service.AddItem(r.Context(), actorFrom(r), id, form.Text)
	} else {
		err = verr
	}
	if fields := shared.FieldErrors(err); fields != nil {
		c, loadErr := h.service.Get(r.Context(), actorFrom(r), id)
		if loadErr != nil {
			h.fail(w, "load checklist", loadErr)
			return
		}
		h.pages.Render(w, r, "pages/checklist/add_item.html", "Add Item", itemPage{Checklist: c, Form: form, Errors: fields})
		return
	}
	if err != nil {
		h.fail(w, "add item", err)
		return
	}
	http.Redirect(w, r, detailPath(id), http.StatusFound)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	id := urlID(r, "id")
	if _, err := h.service.DeleteItem(r.Context(), actorFrom(r), id, urlID(r, "itemID")); err != nil {
		h.fail(w, "delete item", err)
		return
	}
	http.Redirect(w, r, detailPath(id), http.StatusFound)
}

func (h *Handler) parseListForm(w http.ResponseWriter, r *http.Request) (listForm, bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return listForm{}, false
	}
	return listForm{
		Title:       r.PostFormValue("list_title"),
		Description: r.PostFormValue("list_description"),
	}, true
}


// fail answers with the status the error maps to; only server errors are logged.
func (h *Handler) fail(w http.ResponseWriter, action string, err error) {
	status := httpx.StatusFor(err)
	if status >= http.StatusInternalServerError {
		shared.LogError(h.logger, action, err)
	}
	httpx.Fail(w, err)
}

func urlID(r *http.Request, key string) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	return id
}

func detailPath(id int64) string {
	return "/checklist/" + strconv.FormatInt(id, 10)
}
