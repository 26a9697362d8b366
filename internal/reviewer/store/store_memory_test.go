package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"intake/internal/reviewer/models"
	id "intake/pkg/domain"
	"intake/pkg/platform/sentinel"
	"intake/pkg/secrets"
)

type OrganizationStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func TestOrganizationStoreSuite(t *testing.T) {
	suite.Run(t, new(OrganizationStoreSuite))
}

func (s *OrganizationStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *OrganizationStoreSuite) newOrg(label, token string) *models.Organization {
	org, err := models.NewOrganization(id.NewReviewerID(), label, strings.ToUpper(label), secrets.HashToken(token), time.Now())
	s.Require().NoError(err)
	return org
}

func (s *OrganizationStoreSuite) TestCreateAndLookups() {
	org := s.newOrg("east", "token-east")
	s.Require().NoError(s.store.Create(s.ctx, org))

	found, err := s.store.FindByID(s.ctx, org.ID)
	s.Require().NoError(err)
	s.Equal("EAST", found.DisplayName)

	found, err = s.store.FindByTokenHash(s.ctx, secrets.HashToken("token-east"))
	s.Require().NoError(err)
	s.Equal(org.ID, found.ID)

	_, err = s.store.FindByTokenHash(s.ctx, secrets.HashToken("token-west"))
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByID(s.ctx, id.NewReviewerID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *OrganizationStoreSuite) TestUniqueness() {
	s.Require().NoError(s.store.Create(s.ctx, s.newOrg("east", "token-east")))
	s.ErrorIs(s.store.Create(s.ctx, s.newOrg("east", "token-other")), sentinel.ErrAlreadyUsed)
	s.ErrorIs(s.store.Create(s.ctx, s.newOrg("west", "token-east")), sentinel.ErrAlreadyUsed)
}

func (s *OrganizationStoreSuite) TestUpdateReindexesTokenHash() {
	org := s.newOrg("east", "old")
	s.Require().NoError(s.store.Create(s.ctx, org))

	org.RotateToken(secrets.HashToken("new"), time.Now())
	org.ShortLabel = "renamed"
	s.Require().NoError(s.store.Update(s.ctx, org))

	_, err := s.store.FindByTokenHash(s.ctx, secrets.HashToken("old"))
	s.ErrorIs(err, sentinel.ErrNotFound)
	found, err := s.store.FindByTokenHash(s.ctx, secrets.HashToken("new"))
	s.Require().NoError(err)
	s.Equal("east", found.ShortLabel)

	s.ErrorIs(s.store.Update(s.ctx, s.newOrg("ghost", "x")), sentinel.ErrNotFound)
}

func (s *OrganizationStoreSuite) TestReturnedValuesAreCopies() {
	org := s.newOrg("east", "token-east")
	s.Require().NoError(s.store.Create(s.ctx, org))

	found, err := s.store.FindByID(s.ctx, org.ID)
	s.Require().NoError(err)
	found.IsActive = false

	again, err := s.store.FindByID(s.ctx, org.ID)
	s.Require().NoError(err)
	s.True(again.IsActive)
}

func (s *OrganizationStoreSuite) TestListOrdersByLabel() {
	s.Require().NoError(s.store.Create(s.ctx, s.newOrg("west", "w")))
	s.Require().NoError(s.store.Create(s.ctx, s.newOrg("east", "e")))

	orgs, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(orgs, 2)
	s.Equal("east", orgs[0].ShortLabel)
	s.Equal("west", orgs[1].ShortLabel)
}
