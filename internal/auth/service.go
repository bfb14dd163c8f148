package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/bebleo/checklist/internal/platform/db"
	"github.com/bebleo/checklist/internal/shared"
	"github.com/bebleo/checklist/internal/tokens"
	"github.com/bebleo/checklist/internal/users"
)

// Messages shown by the auth pages.
const (
	MsgLoginIncorrect = "Login incorrect, please try again."
	MsgNoUserFound    = "No user found with email."
	MsgTokenRejected  = "Token is incorrect or expired."
)

const (
	resetEmailTemplate     = "emails/send_password_change.txt"
	resetDoneEmailTemplate = "emails/password_reset.txt"
)

// UserDirectory is the slice of the user directory auth depends on.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*users.User, error)
	Create(ctx context.Context, input users.NewUser) (*users.User, error)
}

// TokenService issues and checks reset tokens.
type TokenService interface {
	Issue(ctx context.Context, userID int64, purpose tokens.Purpose, ttl time.Duration) (string, error)
	Validate(ctx context.Context, token string, opts tokens.ValidateOptions) (bool, error)
	Consume(ctx context.Context, q db.Querier, token string) error
}

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// Mailer hands an email to the delivery queue.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// TextRenderer renders plain text email bodies.
type TextRenderer interface {
	RenderText(name string, data any) (string, error)
}

// Recorder counts auth outcomes.
type Recorder interface {
	ObserveAuth(event, outcome string)
}

// ServiceConfig collects the collaborators of Service.
type ServiceConfig struct {
	Users    UserDirectory
	Tokens   TokenService
	Repo     Repository
	Hasher   Hasher
	Mailer   Mailer
	Renderer TextRenderer
	Recorder Recorder
	Logger   *slog.Logger
	BaseURL  string
	TokenTTL time.Duration
}

// Service wraps authentication business rules.
type Service struct {
	users    UserDirectory
	tokens   TokenService
	repo     Repository
	hasher   Hasher
	mailer   Mailer
	renderer TextRenderer
	recorder Recorder
	logger   *slog.Logger
	baseURL  string
	tokenTTL time.Duration
}

// NewService constructs a new Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Service{
		users:    cfg.Users,
		tokens:   cfg.Tokens,
		repo:     cfg.Repo,
		hasher:   cfg.Hasher,
		mailer:   cfg.Mailer,
		renderer: cfg.Renderer,
		recorder: recorder,
		logger:   logger,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		tokenTTL: cfg.TokenTTL,
	}
}

// Login verifies credentials. Unknown emails and wrong passwords both return
// shared.ErrInvalidCredentials. Deactivated and reset-required accounts return
// the user together with ErrAccountDisabled or ErrPasswordResetRequired.
func (s *Service) Login(ctx context.Context, email, password string) (*users.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, shared.ErrNotFound) {
		s.recorder.ObserveAuth("login", "invalid")
		return nil, shared.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		s.recorder.ObserveAuth("login", "invalid")
		if errors.Is(err, shared.ErrInvalidCredentials) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	switch user.Status {
	case users.StatusDeactivated:
		s.recorder.ObserveAuth("login", "disabled")
		return user, ErrAccountDisabled
	case users.StatusPasswordResetRequired:
		s.recorder.ObserveAuth("login", "reset_required")
		return user, ErrPasswordResetRequired
	}
	s.recorder.ObserveAuth("login", "success")
	return user, nil
}

// Registration is the self-service sign up input.
type Registration struct {
	Email      string
	GivenName  string
	FamilyName string
	Password   string
	Confirm    string
}

// Register creates a regular, active account.
func (s *Service) Register(ctx context.Context, input Registration) (*users.User, error) {
	if input.Password != input.Confirm {
		return nil, shared.NewValidationError("password", users.MsgPasswordMismatch)
	}
	user, err := s.users.Create(ctx, users.NewUser{
		Email:      input.Email,
		Password:   input.Password,
		GivenName:  input.GivenName,
		FamilyName: input.FamilyName,
		Status:     users.StatusActive,
	})
	if errors.Is(err, shared.ErrConflict) {
		s.recorder.ObserveAuth("register", "conflict")
		return nil, shared.NewValidationError("email", users.MsgEmailTaken)
	}
	if err != nil {
		return nil, err
	}
	s.recorder.ObserveAuth("register", "success")
	s.logger.Info("registered user", slog.Int64("user_id", user.ID))
	return user, nil
}

// IssueResetToken creates a reset token for user without mailing it.
func (s *Service) IssueResetToken(ctx context.Context, user *users.User) (string, error) {
	return s.tokens.Issue(ctx, user.ID, tokens.PurposePasswordReset, s.tokenTTL)
}

// RequestReset issues a reset token for email and mails the link. An unknown
// email returns shared.ErrNotFound and sends nothing. Mail failures are logged
// and do not fail the request.
func (s *Service) RequestReset(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, shared.ErrNotFound) {
		s.recorder.ObserveAuth("reset_request", "unknown_email")
		return shared.ErrNotFound
	}
	if err != nil {
		return err
	}
	token, err := s.IssueResetToken(ctx, user)
	if err != nil {
		return err
	}
	s.recorder.ObserveAuth("reset_request", "sent")
	s.sendMail(ctx, user, "Reset Password Link", resetEmailTemplate, map[string]any{
		"User": user,
		"Link": s.ResetLink(token),
	})
	return nil
}

// ResetLink is the absolute URL of the reset form for token.
func (s *Service) ResetLink(token string) string {
	return s.baseURL + "/auth/forgotpassword/" + token
}

// ValidateResetToken checks token without binding it to a user. Both unknown
// and foreign tokens return tokens.ErrTokenInvalid.
func (s *Service) ValidateResetToken(ctx context.Context, token string) error {
	ok, err := s.tokens.Validate(ctx, token, tokens.ValidateOptions{Purpose: tokens.PurposePasswordReset})
	if err != nil {
		return err
	}
	if !ok {
		return tokens.ErrTokenInvalid
	}
	return nil
}

// PasswordReset is the input of the reset form.
type PasswordReset struct {
	Token    string
	Email    string
	Password string
	Confirm  string
}

// ResetPassword sets a new password for the owner of input.Token. The token is
// validated against the account named by input.Email, the password change and
// token deletion commit together, and a confirmation email follows the commit.
func (s *Service) ResetPassword(ctx context.Context, input PasswordReset) error {
	if err := s.ValidateResetToken(ctx, input.Token); err != nil {
		return err
	}
	if input.Password == "" {
		return shared.NewValidationError("password", users.MsgPasswordRequired)
	}
	if input.Password != input.Confirm {
		return shared.NewValidationError("password", users.MsgPasswordMismatch)
	}
	user, err := s.users.FindByEmail(ctx, input.Email)
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NewValidationError("email", MsgNoUserFound)
	}
	if err != nil {
		return err
	}
	ok, err := s.tokens.Validate(ctx, input.Token, tokens.ValidateOptions{
		UserID:  user.ID,
		Purpose: tokens.PurposePasswordReset,
	})
	if err != nil {
		s.recorder.ObserveAuth("reset", "rejected")
		return err
	}
	if !ok {
		s.recorder.ObserveAuth("reset", "rejected")
		return tokens.ErrTokenInvalid
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return err
	}
	status := user.Status
	if status == users.StatusPasswordResetRequired {
		status = users.StatusActive
	}
	consume := func(ctx context.Context, q db.Querier) error {
		return s.tokens.Consume(ctx, q, input.Token)
	}
	if err := s.repo.CompleteReset(ctx, user.ID, hash, status, consume); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return tokens.ErrTokenInvalid
		}
		return err
	}
	s.recorder.ObserveAuth("reset", "success")
	s.logger.Info("password reset", slog.Int64("user_id", user.ID))
	s.sendMail(ctx, user, "Password reset", resetDoneEmailTemplate, map[string]any{"User": user})
	return nil
}

func (s *Service) sendMail(ctx context.Context, user *users.User, subject, template string, data any) {
	if s.mailer == nil || s.renderer == nil {
		s.logger.Warn("mail not configured", slog.String("template", template))
		return
	}
	body, err := s.renderer.RenderText(template, data)
	if err != nil {
		s.logger.Error("render email", slog.String("template", template), slog.Any("error", err))
		return
	}
	if err := s.mailer.Send(ctx, user.Email, subject, body); err != nil {
		shared.LogError(s.logger, "enqueue email", err)
	}
}

type noopRecorder struct{}

func (noopRecorder) ObserveAuth(string, string) {}
