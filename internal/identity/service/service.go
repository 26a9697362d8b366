// Package service implements the anonymous applicant identity: retrieval
// tokens paired with a birth date, optional verified email, token recovery
// and session binding to records.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"intake/internal/identity/mailer"
	"intake/internal/identity/models"
	"intake/internal/platform/metrics"
	recordmodels "intake/internal/record/models"
	recordservice "intake/internal/record/service"
	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
	audit "intake/pkg/platform/audit"
	"intake/pkg/platform/sentinel"
	"intake/pkg/requestcontext"
	"intake/pkg/secrets"
)

const (
	DefaultSessionTTL   = 12 * time.Hour
	DefaultChallengeTTL = 10 * time.Minute
)

// SessionStore holds applicant sessions. Execute applies validate then mutate
// atomically; nothing is written when validate fails.
type SessionStore interface {
	Create(ctx context.Context, sess *models.Session) error
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	Execute(ctx context.Context, sessionID id.SessionID, validate func(*models.Session) error, mutate func(*models.Session)) (*models.Session, error)
	Delete(ctx context.Context, sessionID id.SessionID) error
}

// Engine is the part of the lifecycle engine applicants reach.
type Engine interface {
	Submit(ctx context.Context, recordID id.RecordID, actor recordmodels.Actor) (*recordmodels.Record, error)
	Withdraw(ctx context.Context, recordID id.RecordID, actor recordmodels.Actor) (*recordmodels.Record, error)
}

type AuditPublisher interface {
	Record(ctx context.Context, recordID id.RecordID, kind audit.Kind, actor audit.Actor, metadata map[string]string)
}

// Service is the Identity & Token Service.
type Service struct {
	records      recordservice.Store
	tx           recordservice.TxRunner
	engine       Engine
	sessions     SessionStore
	mailer       mailer.Mailer
	audit        AuditPublisher
	logger       *slog.Logger
	metrics      *metrics.Metrics
	sessionTTL   time.Duration
	challengeTTL time.Duration
	bcryptCost   int
	newCode      func() (string, error)
	newToken     func() (id.RetrievalToken, error)
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

func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

func WithChallengeTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.challengeTTL = ttl
		}
	}
}

// WithBcryptCost sets the verification code hash cost. Tests use
// bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

func WithCodeGenerator(fn func() (string, error)) Option {
	return func(s *Service) {
		s.newCode = fn
	}
}

func WithTokenGenerator(fn func() (id.RetrievalToken, error)) Option {
	return func(s *Service) {
		s.newToken = fn
	}
}

func New(records recordservice.Store, tx recordservice.TxRunner, engine Engine, sessions SessionStore, m mailer.Mailer, publisher AuditPublisher, opts ...Option) *Service {
	s := &Service{
		records:      records,
		tx:           tx,
		engine:       engine,
		sessions:     sessions,
		mailer:       m,
		audit:        publisher,
		logger:       slog.Default(),
		sessionTTL:   DefaultSessionTTL,
		challengeTTL: DefaultChallengeTTL,
		newCode:      secrets.NewCode,
		newToken:     id.NewRetrievalToken,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartSession creates an empty applicant session.
func (s *Service) StartSession(ctx context.Context) (*models.Session, error) {
	sess := models.NewSession(id.NewSessionID(), requestcontext.Now(ctx), s.sessionTTL)
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, sessionErr(err)
	}
	return sess, nil
}

// Session returns the current state of a session.
func (s *Service) Session(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	sess, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, sessionErr(err)
	}
	return sess, nil
}

// SessionTTL is the lifetime of new sessions, used for the cookie.
func (s *Service) SessionTTL() time.Duration {
	return s.sessionTTL
}

// Logout forgets the session.
func (s *Service) Logout(ctx context.Context, sessionID id.SessionID) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return sessionErr(err)
	}
	return nil
}

// update applies mutate to the session with no precondition.
func (s *Service) update(ctx context.Context, sessionID id.SessionID, mutate func(*models.Session)) (*models.Session, error) {
	sess, err := s.sessions.Execute(ctx, sessionID, func(*models.Session) error { return nil }, mutate)
	if err != nil {
		return nil, sessionErr(err)
	}
	return sess, nil
}

// boundRecord loads a session that must point at a record.
func (s *Service) boundRecord(ctx context.Context, sessionID id.SessionID) (*models.Session, id.RecordID, error) {
	sess, err := s.Session(ctx, sessionID)
	if err != nil {
		return nil, id.RecordID{}, err
	}
	if sess.RecordID == nil || sess.Token.IsZero() {
		return nil, id.RecordID{}, dErrors.New(dErrors.CodeInvalidState, "no record is open in this session")
	}
	return sess, *sess.RecordID, nil
}

func sessionErr(err error) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound), errors.Is(err, sentinel.ErrExpired):
		return dErrors.New(dErrors.CodeUnauthorized, "session expired or unknown")
	case errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.Wrap(err, dErrors.CodeConflict, "session changed concurrently, retry")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "session store failure")
	}
}

func recordErr(err error, notFoundMsg string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFoundMsg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "record store failure")
	}
}
