package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"intake/internal/platform/metrics"
	"intake/internal/record/models"
	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
	audit "intake/pkg/platform/audit"
	"intake/pkg/platform/sentinel"
)

// Store is the durable table of records and their form data. Methods named
// ForUpdate take an exclusive row lock when called inside RunInTx.
type Store interface {
	FindByID(ctx context.Context, recordID id.RecordID) (*models.Record, error)
	FindByIDForUpdate(ctx context.Context, recordID id.RecordID) (*models.Record, error)
	FindByToken(ctx context.Context, token id.RetrievalToken) (*models.Record, error)
	FindByTokenForUpdate(ctx context.Context, token id.RetrievalToken) (*models.Record, error)
	ListVerifiedByEmail(ctx context.Context, email string) ([]*models.Record, error)
	Insert(ctx context.Context, record *models.Record) error
	Update(ctx context.Context, record *models.Record) error
	DeleteMany(ctx context.Context, recordIDs []id.RecordID) error
	SaveSection(ctx context.Context, data models.SectionData) error
	ListSections(ctx context.Context, recordID id.RecordID) ([]models.SectionData, error)
	AddUpload(ctx context.Context, upload models.Upload) error
	ListUploads(ctx context.Context, recordID id.RecordID) ([]models.Upload, error)
}

// TxRunner provides the transactional boundary for record mutations. keys
// name the records touched so in-memory implementations can serialize them;
// database implementations rely on row locks instead.
type TxRunner interface {
	RunInTx(ctx context.Context, keys []string, fn func(ctx context.Context, store Store) error) error
}

// ReviewerDirectory answers whether an assignment target may receive records.
type ReviewerDirectory interface {
	IsActive(ctx context.Context, reviewerID id.ReviewerID) (bool, error)
}

// AuditPublisher appends to the record trail. Record never fails the caller.
type AuditPublisher interface {
	Record(ctx context.Context, recordID id.RecordID, kind audit.Kind, actor audit.Actor, metadata map[string]string)
	List(ctx context.Context, recordID id.RecordID) ([]audit.Event, error)
}

// Service is the lifecycle and locking engine. Every operation takes the
// acting Actor and resolves its authority in exactly one place.
type Service struct {
	store     Store
	tx        TxRunner
	reviewers ReviewerDirectory
	audit     AuditPublisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	onDeleted func(recordIDs ...id.RecordID)
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

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithDeleteHook runs after a committed bulk delete. In-memory wiring uses it
// to drop dependent rows that Postgres removes by cascade.
func WithDeleteHook(fn func(recordIDs ...id.RecordID)) Option {
	return func(s *Service) {
		s.onDeleted = fn
	}
}

// New constructs the engine.
func New(store Store, tx TxRunner, reviewers ReviewerDirectory, publisher AuditPublisher, opts ...Option) *Service {
	s := &Service{
		store:     store,
		tx:        tx,
		reviewers: reviewers,
		audit:     publisher,
		logger:    slog.Default(),
		tracer:    otel.Tracer("intake/record"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TxKey is the serialization key of an existing record.
func TxKey(recordID id.RecordID) string {
	return recordKeyPrefix + recordID.String()
}

// TokenTxKey is the serialization key used while a record may not exist yet.
// The record it resolves to is unknown up front, so in-memory runners treat
// it as covering every record.
func TokenTxKey(token id.RetrievalToken) string {
	return tokenKeyPrefix + token.String()
}

const (
	recordKeyPrefix = "record:"
	tokenKeyPrefix  = "token:"
)

// observe opens a span for operation and returns the function that closes it
// and records metrics.
func (s *Service) observe(ctx context.Context, operation string, recordID id.RecordID) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "record."+operation,
		trace.WithAttributes(attribute.String("record.id", recordID.String())))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		}
		span.End()
		s.metrics.ObserveOperation(operation, start, err)
	}
}

// loadForUpdate locks and loads a record, translating store facts.
func loadForUpdate(ctx context.Context, store Store, recordID id.RecordID) (*models.Record, error) {
	rec, err := store.FindByIDForUpdate(ctx, recordID)
	if err != nil {
		return nil, translateStoreErr(err, "record not found")
	}
	return rec, nil
}

// save checks the claim invariants before every write.
func save(ctx context.Context, store Store, rec *models.Record, now time.Time) error {
	if err := rec.CheckInvariants(); err != nil {
		return err
	}
	rec.UpdatedAt = now
	if err := store.Update(ctx, rec); err != nil {
		return translateStoreErr(err, "record not found")
	}
	return nil
}

func translateStoreErr(err error, notFoundMsg string) error {
	var de *dErrors.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFoundMsg)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "concurrent modification")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "record store failure")
	}
}

func reviewerString(r *id.ReviewerID) string {
	if r == nil {
		return ""
	}
	return r.String()
}
