// Package service manages the reviewer organization registry and resolves
// bearer credentials to organizations.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"intake/internal/platform/metrics"
	"intake/internal/reviewer/models"
	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
	"intake/pkg/platform/sentinel"
	"intake/pkg/requestcontext"
	"intake/pkg/secrets"
)

type Store interface {
	Create(ctx context.Context, org *models.Organization) error
	FindByID(ctx context.Context, reviewerID id.ReviewerID) (*models.Organization, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*models.Organization, error)
	List(ctx context.Context) ([]*models.Organization, error)
	Update(ctx context.Context, org *models.Organization) error
}

// Service orchestrates the registry.
type Service struct {
	store    Store
	logger   *slog.Logger
	metrics  *metrics.Metrics
	generate func() (string, error)
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTokenGenerator replaces the bearer token source.
func WithTokenGenerator(fn func() (string, error)) Option {
	return func(s *Service) {
		s.generate = fn
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default(), generate: secrets.Generate}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issued is an organization together with the plaintext bearer token. The
// token is only ever available here.
type Issued struct {
	Organization *models.Organization
	Token        string
}

// Create registers an organization and issues its first bearer token.
func (s *Service) Create(ctx context.Context, shortLabel, displayName string) (*Issued, error) {
	token, err := s.generate()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate token")
	}
	org, err := models.NewOrganization(id.NewReviewerID(), shortLabel, displayName, secrets.HashToken(token), requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, org); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "short label is already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create organization")
	}
	s.logger.InfoContext(ctx, "reviewer organization created",
		"reviewer_id", org.ID.String(),
		"short_label", org.ShortLabel,
		"request_id", requestcontext.RequestID(ctx),
	)
	return &Issued{Organization: org, Token: token}, nil
}

// RotateToken replaces the bearer token. The previous token stops working
// immediately.
func (s *Service) RotateToken(ctx context.Context, reviewerID id.ReviewerID) (*Issued, error) {
	org, err := s.find(ctx, reviewerID)
	if err != nil {
		return nil, err
	}
	token, err := s.generate()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate token")
	}
	org.RotateToken(secrets.HashToken(token), requestcontext.Now(ctx))
	if err := s.store.Update(ctx, org); err != nil {
		return nil, wrapStoreErr(err, "failed to rotate token")
	}
	s.logger.InfoContext(ctx, "reviewer token rotated",
		"reviewer_id", org.ID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return &Issued{Organization: org, Token: token}, nil
}

// SetActive activates or deactivates an organization. Deactivation locks the
// organization out of the reviewer API at once; its existing assignments and
// locks are left for the admin to reassign.
func (s *Service) SetActive(ctx context.Context, reviewerID id.ReviewerID, active bool) (*models.Organization, error) {
	org, err := s.find(ctx, reviewerID)
	if err != nil {
		return nil, err
	}
	if !org.SetActive(active, requestcontext.Now(ctx)) {
		return org, nil
	}
	if err := s.store.Update(ctx, org); err != nil {
		return nil, wrapStoreErr(err, "failed to update organization")
	}
	s.logger.InfoContext(ctx, "reviewer organization status changed",
		"reviewer_id", org.ID.String(),
		"active", active,
		"request_id", requestcontext.RequestID(ctx),
	)
	return org, nil
}

func (s *Service) List(ctx context.Context) ([]*models.Organization, error) {
	orgs, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list organizations")
	}
	return orgs, nil
}

// Authenticate resolves a bearer token to an active organization. Unknown
// and inactive organizations are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, bearer string) (id.ReviewerID, error) {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		s.metrics.IncrementReviewerAuth("missing")
		return id.ReviewerID{}, dErrors.New(dErrors.CodeUnauthorized, "missing token")
	}
	hash := secrets.HashToken(bearer)
	org, err := s.store.FindByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.metrics.IncrementReviewerAuth("unknown")
			return id.ReviewerID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
		}
		s.metrics.IncrementReviewerAuth("error")
		return id.ReviewerID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve token")
	}
	if !secrets.EqualHash(org.TokenHash, hash) {
		s.metrics.IncrementReviewerAuth("unknown")
		return id.ReviewerID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !org.IsActive {
		s.metrics.IncrementReviewerAuth("inactive")
		s.logger.WarnContext(ctx, "inactive reviewer organization presented token",
			"reviewer_id", org.ID.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
		return id.ReviewerID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	s.metrics.IncrementReviewerAuth("ok")
	return org.ID, nil
}

// IsActive reports whether an organization is active. Store errors pass
// through untranslated; the record engine maps them.
func (s *Service) IsActive(ctx context.Context, reviewerID id.ReviewerID) (bool, error) {
	org, err := s.store.FindByID(ctx, reviewerID)
	if err != nil {
		return false, err
	}
	return org.IsActive, nil
}

func (s *Service) find(ctx context.Context, reviewerID id.ReviewerID) (*models.Organization, error) {
	org, err := s.store.FindByID(ctx, reviewerID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load organization")
	}
	return org, nil
}

func wrapStoreErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "reviewer organization not found")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeConflict, "token collision, retry")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
