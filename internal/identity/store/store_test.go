package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"intake/internal/identity/models"
	id "intake/pkg/domain"
	"intake/pkg/platform/sentinel"
)

// sessionStore is the contract both implementations satisfy.
type sessionStore interface {
	Create(ctx context.Context, sess *models.Session) error
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	Execute(ctx context.Context, sessionID id.SessionID, validate func(*models.Session) error, mutate func(*models.Session)) (*models.Session, error)
	Delete(ctx context.Context, sessionID id.SessionID) error
}

type SessionStoreSuite struct {
	suite.Suite
	newStore func() sessionStore
	store    sessionStore
	ctx      context.Context
}

func TestInMemorySessionStore(t *testing.T) {
	suite.Run(t, &SessionStoreSuite{newStore: func() sessionStore { return NewInMemory() }})
}

func TestRedisSessionStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	suite.Run(t, &SessionStoreSuite{newStore: func() sessionStore {
		mr.FlushAll()
		return NewRedis(client)
	}})
}

func (s *SessionStoreSuite) SetupTest() {
	s.store = s.newStore()
	s.ctx = context.Background()
}

func (s *SessionStoreSuite) newSession() *models.Session {
	return models.NewSession(id.NewSessionID(), time.Now().UTC().Truncate(time.Millisecond), time.Hour)
}

func (s *SessionStoreSuite) TestCreateAndFind() {
	sess := s.newSession()
	token, err := id.NewRetrievalToken()
	s.Require().NoError(err)
	sess.BindRecord(id.NewRecordID(), token, true)
	sess.Challenge = &models.Challenge{Email: "a@example.org", CodeHash: "hash", ExpiresAt: sess.CreatedAt.Add(10 * time.Minute), Attempts: 2}
	s.Require().NoError(s.store.Create(s.ctx, sess))

	got, err := s.store.FindByID(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Equal(sess.Token, got.Token)
	s.Equal(*sess.RecordID, *got.RecordID)
	s.True(got.ReadOnly)
	s.Require().NotNil(got.Challenge)
	s.Equal(2, got.Challenge.Attempts)
	s.True(sess.Challenge.ExpiresAt.Equal(got.Challenge.ExpiresAt))

	s.ErrorIs(s.store.Create(s.ctx, sess), sentinel.ErrAlreadyUsed)
}

func (s *SessionStoreSuite) TestFindMissing() {
	_, err := s.store.FindByID(s.ctx, id.NewSessionID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *SessionStoreSuite) TestExecute() {
	sess := s.newSession()
	s.Require().NoError(s.store.Create(s.ctx, sess))

	s.Run("mutation is persisted", func() {
		out, err := s.store.Execute(s.ctx, sess.ID,
			func(*models.Session) error { return nil },
			func(w *models.Session) { w.VerifiedEmail = "kid@example.org" },
		)
		s.Require().NoError(err)
		s.Equal("kid@example.org", out.VerifiedEmail)

		got, err := s.store.FindByID(s.ctx, sess.ID)
		s.Require().NoError(err)
		s.Equal("kid@example.org", got.VerifiedEmail)
	})

	s.Run("validation failure writes nothing", func() {
		boom := errors.New("refused")
		_, err := s.store.Execute(s.ctx, sess.ID,
			func(*models.Session) error { return boom },
			func(w *models.Session) { w.VerifiedEmail = "other@example.org" },
		)
		s.ErrorIs(err, boom)

		got, err := s.store.FindByID(s.ctx, sess.ID)
		s.Require().NoError(err)
		s.Equal("kid@example.org", got.VerifiedEmail)
	})

	s.Run("missing session", func() {
		_, err := s.store.Execute(s.ctx, id.NewSessionID(),
			func(*models.Session) error { return nil },
			func(*models.Session) {},
		)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *SessionStoreSuite) TestDelete() {
	sess := s.newSession()
	s.Require().NoError(s.store.Create(s.ctx, sess))
	s.Require().NoError(s.store.Delete(s.ctx, sess.ID))
	_, err := s.store.FindByID(s.ctx, sess.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func TestInMemoryExpiry(t *testing.T) {
	now := time.Now()
	st := NewInMemory().WithClock(func() time.Time { return now })
	sess := models.NewSession(id.NewSessionID(), now, time.Minute)
	if err := st.Create(context.Background(), sess); err != nil {
		t.Fatalf("create: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := st.FindByID(context.Background(), sess.ID); !errors.Is(err, sentinel.ErrNotFound) {
		t.Fatalf("expected expired session to be gone, got %v", err)
	}
}

func TestInMemorySweep(t *testing.T) {
	now := time.Now()
	st := NewInMemory().WithClock(func() time.Time { return now })
	short := models.NewSession(id.NewSessionID(), now, time.Minute)
	long := models.NewSession(id.NewSessionID(), now, time.Hour)
	for _, sess := range []*models.Session{short, long} {
		if err := st.Create(context.Background(), sess); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	now = now.Add(2 * time.Minute)
	if removed := st.Sweep(); removed != 1 {
		t.Fatalf("expected 1 swept session, got %d", removed)
	}
	if _, err := st.FindByID(context.Background(), long.ID); err != nil {
		t.Fatalf("long session should survive: %v", err)
	}
}

func TestRedisTTLFollowsExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	st := NewRedis(client)
	ctx := context.Background()

	sess := models.NewSession(id.NewSessionID(), time.Now(), 30*time.Minute)
	if err := st.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}
	ttl := mr.TTL(sessionKey(sess.ID))
	if ttl <= 29*time.Minute || ttl > 30*time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	if _, err := st.Execute(ctx, sess.ID, func(*models.Session) error { return nil }, func(w *models.Session) { w.ReadOnly = true }); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if after := mr.TTL(sessionKey(sess.ID)); after <= 29*time.Minute {
		t.Fatalf("execute must keep ttl, got %v", after)
	}

	mr.FastForward(31 * time.Minute)
	if _, err := st.FindByID(ctx, sess.ID); !errors.Is(err, sentinel.ErrNotFound) {
		t.Fatalf("expected session to expire, got %v", err)
	}
}
