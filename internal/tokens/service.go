package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/bebleo/checklist/internal/platform/db"
	"github.com/bebleo/checklist/internal/shared"
)

// RepositoryPort defines token persistence.
type RepositoryPort interface {
	Create(ctx context.Context, token Token) (int64, error)
	GetByHash(ctx context.Context, hash string) (*Token, error)
	DeleteByHash(ctx context.Context, hash string) error
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// ValidateOptions narrows what a token must match. Zero values skip the check.
type ValidateOptions struct {
	UserID     int64
	Purpose    Purpose
	SkipExpiry bool
}

// Service is the token lifecycle: issue, validate, consume.
type Service struct {
	repo       RepositoryPort
	bind       func(db.Querier) RepositoryPort
	defaultTTL time.Duration
	now        func() time.Time
}

// NewService constructs a Service. ttl <= 0 falls back to DefaultTTL.
func NewService(repo RepositoryPort, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		repo:       repo,
		bind:       func(q db.Querier) RepositoryPort { return NewRepository(q) },
		defaultTTL: ttl,
		now:        time.Now,
	}
}

// Issue creates a token for userID. Earlier tokens stay valid.
func (s *Service) Issue(ctx context.Context, userID int64, purpose Purpose, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	token, hash, err := Generate()
	if err != nil {
		return "", err
	}
	now := s.now().UTC()
	if _, err := s.repo.Create(ctx, Token{
		UserID:    userID,
		TokenHash: hash,
		Purpose:   purpose,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}); err != nil {
		return "", err
	}
	return token, nil
}

// Lookup returns the stored record for token, or shared.ErrNotFound.
func (s *Service) Lookup(ctx context.Context, token string) (*Token, error) {
	if token == "" {
		return nil, shared.ErrNotFound
	}
	hash := Hash(token)
	record, err := s.repo.GetByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !Matches(token, record.TokenHash) {
		return nil, shared.ErrNotFound
	}
	return record, nil
}

// Validate reports whether token exists and satisfies opts. An unknown token
// yields false with no error; expiry, owner and purpose failures return
// ErrTokenExpired or ErrTokenInvalid. Purpose is only compared when both the
// stored token and opts name one.
func (s *Service) Validate(ctx context.Context, token string, opts ValidateOptions) (bool, error) {
	record, err := s.Lookup(ctx, token)
	if errors.Is(err, shared.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !opts.SkipExpiry && record.IsExpired(s.now()) {
		return false, ErrTokenExpired
	}
	if opts.UserID != 0 && opts.UserID != record.UserID {
		return false, ErrTokenInvalid
	}
	if opts.Purpose != "" && record.Purpose != "" && opts.Purpose != record.Purpose {
		return false, ErrTokenInvalid
	}
	return true, nil
}

// Consume deletes token through q, normally the caller's transaction, so the
// deletion commits or rolls back with the caller's other writes. A nil q uses
// the service's own repository. Consuming an unknown token returns
// shared.ErrNotFound.
func (s *Service) Consume(ctx context.Context, q db.Querier, token string) error {
	if token == "" {
		return shared.ErrNotFound
	}
	repo := s.repo
	if q != nil {
		repo = s.bind(q)
	}
	return repo.DeleteByHash(ctx, Hash(token))
}

// PurgeExpired removes every expired token and reports how many were deleted.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now().UTC())
}
