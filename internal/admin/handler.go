// Package admin serves the user management pages.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bebleo/checklist/internal/auth"
	"github.com/bebleo/checklist/internal/platform/httpx"
	"github.com/bebleo/checklist/internal/shared"
	"github.com/bebleo/checklist/internal/users"
	"github.com/bebleo/checklist/internal/view"
)

// MsgUsernameExists is shown when an administrator adds an email that is taken.
const MsgUsernameExists = "Username already exists."

// Directory is the slice of the user directory the admin pages need.
type Directory interface {
	FindByID(ctx context.Context, id int64) (*users.User, error)
	List(ctx context.Context) ([]users.User, error)
	Create(ctx context.Context, input users.NewUser) (*users.User, error)
	Update(ctx context.Context, actor *users.User, id int64, input users.UserUpdate) (*users.User, error)
}

// Handler manages user management endpoints.
type Handler struct {
	logger *slog.Logger
	users  Directory
	pages  view.Pages
	forms  *shared.FormValidator
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, directory Directory, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger: logger,
		users:  directory,
		pages:  view.Pages{Templates: templates, CSRF: csrf, Logger: logger, User: auth.CurrentUser},
		forms:  shared.NewFormValidator(),
	}
}

// MountRoutes registers user routes. Listing and adding users is for
// administrators; a user's own page is open to that user as well.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAdmin)
		r.Get("/", h.listUsers)
		r.Get("/new", h.showNewUser)
		r.Post("/new", h.createUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuthenticated)
		r.Get("/{id:[0-9]+}", h.showEditUser)
		r.Post("/{id:[0-9]+}", h.updateUser)
	})
}

type newUserForm struct {
	Email      string `form:"email" validate:"required,email"`
	GivenName  string `form:"given_name"`
	FamilyName string `form:"family_name"`
	Password   string `form:"password" validate:"required,eqfield=Confirm"`
	Confirm    string `form:"confirm"`
	IsAdmin    bool   `form:"is_admin"`
}

var newUserMessages = shared.Messages{
	"email.required":    users.MsgEmailBlank,
	"email.email":       "Email must be a valid address.",
	"password.required": "Password cannot be blank.",
	"password.eqfield":  users.MsgPasswordMismatch,
}

type editUserForm struct {
	Email      string `form:"email" validate:"required,email"`
	GivenName  string `form:"given_name"`
	FamilyName string `form:"family_name"`
	IsAdmin    bool   `form:"is_admin"`
	Status     string `form:"status"`
	Password   string `form:"password" validate:"omitempty,eqfield=Confirm"`
	Confirm    string `form:"confirm"`
}

var editUserMessages = shared.Messages{
	"email.required":   users.MsgEmailBlank,
	"email.email":      "Email must be a valid address.",
	"password.eqfield": users.MsgPasswordMismatch,
}

type newUserPage struct {
	Form       newUserForm
	Errors     map[string]string
	ConflictID int64
}

type editUserPage struct {
	User       *users.User
	Form       editUserForm
	Errors     map[string]string
	Statuses   []users.AccountStatus
	Administer bool
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.users.List(r.Context())
	if err != nil {
		h.fail(w, "list users", err)
		return
	}
	h.pages.Render(w, r, "pages/admin/user_list.html", "Users", list)
}

func (h *Handler) showNewUser(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, "pages/admin/user_new.html", "Add User", newUserPage{})
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := newUserForm{
		Email:      r.PostFormValue("email"),
		GivenName:  r.PostFormValue("given_name"),
		FamilyName: r.PostFormValue("family_name"),
		Password:   r.PostFormValue("password"),
		Confirm:    r.PostFormValue("confirm"),
		IsAdmin:    checked(r, "is_admin"),
	}
	if verr := h.forms.Struct(form, newUserMessages); !verr.Empty() {
		form.Password, form.Confirm = "", ""
		h.pages.Render(w, r, "pages/admin/user_new.html", "Add User", newUserPage{Form: form, Errors: verr.Fields})
		return
	}
	user, err := h.users.Create(r.Context(), users.NewUser{
		Email:      form.Email,
		Password:   form.Password,
		GivenName:  form.GivenName,
		FamilyName: form.FamilyName,
		IsAdmin:    form.IsAdmin,
	})
	form.Password, form.Confirm = "", ""
	if existingID, ok := users.ExistingUserID(err); ok {
		h.pages.Render(w, r, "pages/admin/user_new.html", "Add User", newUserPage{
			Form:       form,
			Errors:     map[string]string{"email": MsgUsernameExists},
			ConflictID: existingID,
		})
		return
	}
	if fields := shared.FieldErrors(err); fields != nil {
		h.pages.Render(w, r, "pages/admin/user_new.html", "Add User", newUserPage{Form: form, Errors: fields})
		return
	}
	if err != nil {
		h.fail(w, "create user", err)
		return
	}
	h.logger.Info("user created", slog.Int64("user_id", user.ID), slog.Int64("actor_id", auth.CurrentUser(r.Context()).ID))
	view.RedirectWithFlash(w, r, "/admin/users", "success", "User "+user.Email+" created.")
}

func (h *Handler) showEditUser(w http.ResponseWriter, r *http.Request) {
	target, ok := h.loadEditable(w, r)
	if !ok {
		return
	}
	h.pages.Render(w, r, "pages/admin/user_edit.html", "Edit User", h.editPage(r, target, editUserForm{
		Email:      target.Email,
		GivenName:  target.GivenName,
		FamilyName: target.FamilyName,
		IsAdmin:    target.IsAdmin,
		Status:     string(target.Status),
	}, nil))
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	target, ok := h.loadEditable(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := editUserForm{
		Email:      r.PostFormValue("email"),
		GivenName:  r.PostFormValue("given_name"),
		FamilyName: r.PostFormValue("family_name"),
		IsAdmin:    checked(r, "is_admin"),
		Status:     r.PostFormValue("status"),
		Password:   r.PostFormValue("password"),
		Confirm:    r.PostFormValue("confirm"),
	}
	if verr := h.forms.Struct(form, editUserMessages); !verr.Empty() {
		form.Password, form.Confirm = "", ""
		h.pages.Render(w, r, "pages/admin/user_edit.html", "Edit User", h.editPage(r, target, form, verr.Fields))
		return
	}
	actor := auth.CurrentUser(r.Context())
	status := target.Status
	if actor.IsAdmin {
		parsed, err := users.ParseAccountStatus(form.Status)
		if err != nil {
			form.Password, form.Confirm = "", ""
			h.pages.Render(w, r, "pages/admin/user_edit.html", "Edit User", h.editPage(r, target, form, map[string]string{"status": users.MsgStatusInvalid}))
			return
		}
		status = parsed
	}
	_, err := h.users.Update(r.Context(), actor, target.ID, users.UserUpdate{
		Email:      form.Email,
		GivenName:  form.GivenName,
		FamilyName: form.FamilyName,
		IsAdmin:    form.IsAdmin,
		Status:     status,
		Password:   form.Password,
	})
	form.Password, form.Confirm = "", ""
	if _, ok := users.ExistingUserID(err); ok {
		h.pages.Render(w, r, "pages/admin/user_edit.html", "Edit User", h.editPage(r, target, form, map[string]string{"email": users.MsgEmailTaken}))
		return
	}
	if fields := shared.FieldErrors(err); fields != nil {
		h.pages.Render(w, r, "pages/admin/user_edit.html", "Edit User", h.editPage(r, target, form, fields))
		return
	}
	if err != nil {
		h.fail(w, "update user", err)
		return
	}
	view.RedirectWithFlash(w, r, "/admin/users/"+strconv.FormatInt(target.ID, 10), "success", "Changes saved.")
}

// loadEditable resolves the {id} user, answering 404 for unknown ids and 401
// when a non-admin asks for someone else.
func (h *Handler) loadEditable(w http.ResponseWriter, r *http.Request) (*users.User, bool) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	target, err := h.users.FindByID(r.Context(), id)
	if err != nil {
		h.fail(w, "load user", err)
		return nil, false
	}
	actor := auth.CurrentUser(r.Context())
	if !actor.IsAdmin && actor.ID != target.ID {
		h.fail(w, "load user", shared.ErrUnauthorized)
		return nil, false
	}
	return target, true
}

func (h *Handler) editPage(r *http.Request, target *users.User, form editUserForm, errs map[string]string) editUserPage {
	actor := auth.CurrentUser(r.Context())
	return editUserPage{
		User:       target,
		Form:       form,
		Errors:     errs,
		Statuses:   users.Statuses,
		Administer: actor != nil && actor.IsAdmin,
	}
}

func checked(r *http.Request, field string) bool {
	value := r.PostFormValue(field)
	if value == "" {
		return false
	}
	on, err := strconv.ParseBool(value)
	return err != nil || on
}



func (h *Handler) fail(w http.ResponseWriter, action string, err error) {
	status := httpx.StatusFor(err)
	if status >= http.StatusInternalServerError {
		shared.LogError(h.logger, action, err)
	} else if !errors.Is(err, shared.ErrNotFound) {
		h.logger.Warn(action, slog.Int("status", status), slog.Any("error", err))
	}
	httpx.Fail(w, err)
}
