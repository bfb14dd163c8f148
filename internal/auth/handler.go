package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bebleo/checklist/internal/shared"
	"github.com/bebleo/checklist/internal/tokens"
	"github.com/bebleo/checklist/internal/users"
	"github.com/bebleo/checklist/internal/view"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	pages    view.Pages
	sessions *shared.SessionManager
	forms    *shared.FormValidator
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		service:  service,
		pages:    view.Pages{Templates: templates, CSRF: csrf, Logger: logger, User: CurrentUser},
		sessions: sessions,
		forms:    shared.NewFormValidator(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(RequireAnonymous)
		r.Get("/register", h.showRegister)
		r.Post("/register", h.handleRegister)
	})
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Get("/logout", h.handleLogout)
	r.Post("/logout", h.handleLogout)
	r.Get("/disabled", h.showDisabled)
	r.Post("/disabled", h.showDisabled)
	r.Get("/forgotpassword", h.showForgotPassword)
	r.Post("/forgotpassword", h.handleForgotPassword)
	r.Get("/forgotpassword/{token}", h.showResetPassword)
	r.Post("/forgotpassword/{token}", h.handleResetPassword)
}

type formPage struct {
	Form   any
	Errors map[string]string
	Sent   bool
	Token  string
}

type registerForm struct {
	Email      string `form:"email" validate:"required,email"`
	GivenName  string `form:"given_name"`
	FamilyName string `form:"family_name"`
	Password   string `form:"password" validate:"required,eqfield=Confirm"`
	Confirm    string `form:"confirm" validate:"required"`
}

var registerMessages = shared.Messages{
	"email.required":    users.MsgEmailRequired,
	"email.email":       users.MsgEmailInvalid,
	"password.required": users.MsgPasswordRequired,
	"password.eqfield":  users.MsgPasswordMismatch,
	"confirm.required":  users.MsgPasswordRequired,
}

type loginForm struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required"`
}

var loginMessages = shared.Messages{
	"email":    "Email must be a valid address.",
	"password": "Password cannot be blank.",
}

type sendResetForm struct {
	Email string `form:"email" validate:"required,email"`
}

var sendResetMessages = shared.Messages{
	"email.required": "Email cannot be empty.",
	"email.email":    "Email must be a valid email address.",
}

type resetForm struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required,eqfield=Confirm"`
	Confirm  string `form:"confirm"`
}

var resetMessages = shared.Messages{
	"email.required":    users.MsgEmailRequired,
	"email.email":       "Username must be a valid email address.",
	"password.required": "Password cannot be blank.",
	"password.eqfield":  users.MsgPasswordMismatch,
}

func (h *Handler) showRegister(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, "pages/auth/register.html", "Register", formPage{Form: registerForm{}})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := registerForm{
		Email:      r.PostFormValue("email"),
		GivenName:  r.PostFormValue("given_name"),
		FamilyName: r.PostFormValue("family_name"),
		Password:   r.PostFormValue("password"),
		Confirm:    r.PostFormValue("confirm"),
	}
	if verr := h.forms.Struct(form, registerMessages); !verr.Empty() {
		form.Password, form.Confirm = "", ""
		h.pages.Render(w, r, "pages/auth/register.html", "Register", formPage{Form: form, Errors: verr.Fields})
		return
	}
	_, err := h.service.Register(r.Context(), Registration{
		Email:      form.Email,
		GivenName:  form.GivenName,
		FamilyName: form.FamilyName,
		Password:   form.Password,
		Confirm:    form.Confirm,
	})
	if fields := shared.FieldErrors(err); fields != nil {
		form.Password, form.Confirm = "", ""
		h.pages.Render(w, r, "pages/auth/register.html", "Register", formPage{Form: form, Errors: fields})
		return
	}
	if err != nil {
		h.fail(w, "register", err)
		return
	}
	view.RedirectWithFlash(w, r, "/", "success", "Your account has been created. Please log in.")
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, "pages/auth/login.html", "Log In", formPage{Form: loginForm{}})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := loginForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	if verr := h.forms.Struct(form, loginMessages); !verr.Empty() {
		form.Password = ""
		h.pages.Render(w, r, "pages/auth/login.html", "Log In", formPage{Form: form, Errors: verr.Fields})
		return
	}

	user, err := h.service.Login(r.Context(), form.Email, form.Password)
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrInvalidCredentials):
		form.Password = ""
		h.pages.Render(w, r, "pages/auth/login.html", "Log In", formPage{
			Form:   form,
			Errors: map[string]string{shared.GeneralField: MsgLoginIncorrect},
		})
		return
	case errors.Is(err, ErrAccountDisabled):
		http.Redirect(w, r, disabledPath, http.StatusFound)
		return
	case errors.Is(err, ErrPasswordResetRequired):
		token, issueErr := h.service.IssueResetToken(r.Context(), user)
		if issueErr != nil {
			h.fail(w, "issue reset token", issueErr)
			return
		}
		view.RedirectWithFlash(w, r, "/auth/forgotpassword/"+token, "warning", "Your password must be changed before you can log in.")
		return
	default:
		h.fail(w, "login", err)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.sessions.Renew(sess)
	sess.SetUser(user.ID)
	h.logger.Info("user logged in", slog.Int64("user_id", user.ID))
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.sessions.Destroy(sess)
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *Handler) showDisabled(w http.ResponseWriter, r *http.Request) {
	if user := CurrentUser(r.Context()); user != nil && !user.IsDeactivated() {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	h.pages.Render(w, r, "pages/auth/account_disabled.html", "Account Disabled", nil)
}

func (h *Handler) showForgotPassword(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, r, "pages/auth/send_password_change.html", "Forgot Password", formPage{Form: sendResetForm{}})
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := sendResetForm{Email: r.PostFormValue("email")}
	if verr := h.forms.Struct(form, sendResetMessages); !verr.Empty() {
		h.pages.Render(w, r, "pages/auth/send_password_change.html", "Forgot Password", formPage{Form: form, Errors: verr.Fields})
		return
	}
	err := h.service.RequestReset(r.Context(), form.Email)
	if errors.Is(err, shared.ErrNotFound) {
		h.pages.Render(w, r, "pages/auth/send_password_change.html", "Forgot Password", formPage{
			Form:   form,
			Errors: map[string]string{"email": MsgNoUserFound},
		})
		return
	}
	if err != nil {
		h.fail(w, "request password reset", err)
		return
	}
	h.pages.Render(w, r, "pages/auth/send_password_change.html", "Password Sent", formPage{Form: form, Sent: true})
}

func (h *Handler) showResetPassword(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if err := h.service.ValidateResetToken(r.Context(), token); err != nil {
		h.rejectToken(w, r, err)
		return
	}
	h.pages.Render(w, r, "pages/auth/update_password.html", "Change Password", formPage{Form: resetForm{}, Token: token})
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if err := h.service.ValidateResetToken(r.Context(), token); err != nil {
		h.rejectToken(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := resetForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
		Confirm:  r.PostFormValue("confirm"),
	}
	if verr := h.forms.Struct(form, resetMessages); !verr.Empty() {
		form.Password, form.Confirm = "", ""
		h.pages.Render(w, r, "pages/auth/update_password.html", "Change Password", formPage{Form: form, Errors: verr.Fields, Token: token})
		return
	}
	err := h.service.ResetPassword(r.Context(), PasswordReset{
		Token:    token,
		Email:    form.Email,
		Password: form.Password,
		Confirm:  form.Confirm,
	})
	if fields := shared.FieldErrors(err); fields != nil {
		form.Password, form.Confirm = "", ""
		h.pages.Render(w, r, "pages/auth/update_password.html", "Change Password", formPage{Form: form, Errors: fields, Token: token})
		return
	}
	if err != nil {
		h.rejectToken(w, r, err)
		return
	}
	view.RedirectWithFlash(w, r, "/", "success", "Your password has been changed.")
}

// rejectToken answers every token failure with the same flash so expired and
// foreign tokens look alike.
func (h *Handler) rejectToken(w http.ResponseWriter, r *http.Request, err error) {
	if !errors.Is(err, tokens.ErrTokenExpired) && !errors.Is(err, tokens.ErrTokenInvalid) {
		h.fail(w, "validate reset token", err)
		return
	}
	h.logger.Warn("rejected password reset token", slog.String("path", r.URL.Path), slog.Any("error", err))
	view.RedirectWithFlash(w, r, "/auth/forgotpassword", "danger", MsgTokenRejected)
}



func (h *Handler) fail(w http.ResponseWriter, action string, err error) {
	shared.LogError(h.logger, action, err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
