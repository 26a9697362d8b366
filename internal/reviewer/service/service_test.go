package service

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"intake/internal/platform/metrics"
	"intake/internal/reviewer/store"
	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
	"intake/pkg/platform/sentinel"
	"intake/pkg/secrets"
)

type RegistrySuite struct {
	suite.Suite
	store   *store.InMemoryStore
	metrics *metrics.Metrics
	svc     *Service
	ctx     context.Context
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.store = store.NewInMemory()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.svc = New(s.store, WithMetrics(s.metrics))
	s.ctx = context.Background()
}

func (s *RegistrySuite) TestCreateIssuesTokenOnce() {
	issued, err := s.svc.Create(s.ctx, " East ", "East Reviewers")
	s.Require().NoError(err)
	s.NotEmpty(issued.Token)
	s.Equal("east", issued.Organization.ShortLabel)
	s.Equal(secrets.HashToken(issued.Token), issued.Organization.TokenHash)
	s.NotContains(issued.Organization.TokenHash, issued.Token)

	_, err = s.svc.Create(s.ctx, "east", "Duplicate")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	_, err = s.svc.Create(s.ctx, "e", "")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *RegistrySuite) TestAuthenticate() {
	issued, err := s.svc.Create(s.ctx, "east", "")
	s.Require().NoError(err)

	got, err := s.svc.Authenticate(s.ctx, issued.Token)
	s.Require().NoError(err)
	s.Equal(issued.Organization.ID, got)

	_, err = s.svc.Authenticate(s.ctx, "")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.svc.Authenticate(s.ctx, "forged")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	s.Equal(1.0, testutil.ToFloat64(s.metrics.ReviewerAuth.WithLabelValues("ok")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ReviewerAuth.WithLabelValues("unknown")))
}

func (s *RegistrySuite) TestInactiveOrganizationIsUnauthorized() {
	issued, err := s.svc.Create(s.ctx, "east", "")
	s.Require().NoError(err)

	org, err := s.svc.SetActive(s.ctx, issued.Organization.ID, false)
	s.Require().NoError(err)
	s.False(org.IsActive)

	_, err = s.svc.Authenticate(s.ctx, issued.Token)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ReviewerAuth.WithLabelValues("inactive")))

	active, err := s.svc.IsActive(s.ctx, issued.Organization.ID)
	s.Require().NoError(err)
	s.False(active)

	_, err = s.svc.SetActive(s.ctx, issued.Organization.ID, true)
	s.Require().NoError(err)
	_, err = s.svc.Authenticate(s.ctx, issued.Token)
	s.NoError(err)
}

func (s *RegistrySuite) TestRotateTokenRevokesPrevious() {
	issued, err := s.svc.Create(s.ctx, "east", "")
	s.Require().NoError(err)

	rotated, err := s.svc.RotateToken(s.ctx, issued.Organization.ID)
	s.Require().NoError(err)
	s.NotEqual(issued.Token, rotated.Token)

	_, err = s.svc.Authenticate(s.ctx, issued.Token)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	got, err := s.svc.Authenticate(s.ctx, rotated.Token)
	s.Require().NoError(err)
	s.Equal(issued.Organization.ID, got)

	_, err = s.svc.RotateToken(s.ctx, id.NewReviewerID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *RegistrySuite) TestIsActiveUnknownPassesSentinel() {
	_, err := s.svc.IsActive(s.ctx, id.NewReviewerID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RegistrySuite) TestGeneratorFailureIsInternal() {
	svc := New(s.store, WithTokenGenerator(func() (string, error) { return "", errors.New("entropy exhausted") }))
	_, err := svc.Create(s.ctx, "east", "")
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *RegistrySuite) TestList() {
	for _, label := range []string{"west", "east"} {
		_, err := s.svc.Create(s.ctx, label, "")
		s.Require().NoError(err)
	}
	orgs, err := s.svc.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(orgs, 2)
	s.Equal("east", orgs[0].ShortLabel)
}
