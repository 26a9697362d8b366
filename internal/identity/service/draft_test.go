package service

import (
	"context"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"intake/internal/identity/models"
	identitystore "intake/internal/identity/store"
	recordmodels "intake/internal/record/models"
	recordservice "intake/internal/record/service"
	recordstore "intake/internal/record/store"
	id "intake/pkg/domain"
	audit "intake/pkg/platform/audit"
	"intake/pkg/platform/audit/publisher"
	"intake/pkg/platform/sentinel"
	"intake/pkg/requestcontext"
)

// racingStore lets a rival draft for the same token commit between the
// caller's lookup and its insert, once.
type racingStore struct {
	*recordstore.InMemoryStore
	once  sync.Once
	rival *recordmodels.Record
}

func (r *racingStore) FindByTokenForUpdate(ctx context.Context, token id.RetrievalToken) (*recordmodels.Record, error) {
	raced := false
	r.once.Do(func() {
		raced = true
		_ = r.InMemoryStore.Insert(ctx, r.rival)
	})
	if raced {
		return nil, sentinel.ErrNotFound
	}
	return r.InMemoryStore.FindByTokenForUpdate(ctx, token)
}

func (s *IdentitySuite) TestEnsureDraftRetriesLostInsertRace() {
	token, err := id.NewRetrievalToken()
	s.Require().NoError(err)
	birthDate, err := id.ParseBirthDate("2001-01-01")
	s.Require().NoError(err)
	rival, err := recordmodels.NewDraft(id.NewRecordID(), token, birthDate, "", false, requestcontext.Now(s.ctx))
	s.Require().NoError(err)

	racing := &racingStore{InMemoryStore: s.records, rival: rival}
	pub := publisher.NewPublisher(s.auditLog)
	tx := recordservice.NewShardedTx(racing)
	svc := New(racing, tx, recordservice.New(racing, tx, noDirectory{}, pub), identitystore.NewInMemory(), s.mailer, pub,
		WithBcryptCost(bcrypt.MinCost),
	)

	recordID, err := svc.EnsureDraft(s.ctx, models.DraftRequest{Token: token, BirthDate: "2001-01-02"})
	s.Require().NoError(err)
	s.Equal(rival.ID, recordID)

	rec, err := s.records.FindByToken(s.ctx, token)
	s.Require().NoError(err)
	s.Equal(rival.ID, rec.ID)
	s.Equal("2001-01-02", id.FormatBirthDate(*rec.BirthDate))
	s.Equal([]audit.Kind{audit.KindDraftUpdated}, s.kinds(rival.ID))
}

func (s *IdentitySuite) TestEnsureDraftConcurrentCallersShareOneRecord() {
	token, err := id.NewRetrievalToken()
	s.Require().NoError(err)

	const callers = 16
	ids := make([]id.RecordID, callers)
	var g errgroup.Group
	for i := range callers {
		g.Go(func() error {
			recordID, err := s.service.EnsureDraft(s.ctx, models.DraftRequest{Token: token, BirthDate: "1999-05-02"})
			ids[i] = recordID
			return err
		})
	}
	s.Require().NoError(g.Wait())

	for _, recordID := range ids {
		s.Equal(ids[0], recordID)
	}
	s.Equal([]audit.Kind{audit.KindDraftCreated}, s.kinds(ids[0]))
}
