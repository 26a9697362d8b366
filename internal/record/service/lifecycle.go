package service

import (
	"context"
	"strconv"

	"intake/internal/record/models"
	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
	audit "intake/pkg/platform/audit"
	"intake/pkg/platform/middleware/metadata"
	"intake/pkg/requestcontext"
)

// MaxBulkDelete bounds one administrative delete.
const MaxBulkDelete = 500

// Submit moves an applicant's draft to submitted. It is the only transition
// an applicant can trigger besides withdrawal; after it the applicant data is
// read-only.
func (s *Service) Submit(ctx context.Context, recordID id.RecordID, actor models.Actor) (rec *models.Record, err error) {
	ctx, done := s.observe(ctx, "submit", recordID)
	defer func() { done(err) }()

	err = s.tx.RunInTx(ctx, []string{TxKey(recordID)}, func(ctx context.Context, store Store) error {
		current, err := loadForUpdate(ctx, store, recordID)
		if err != nil {
			return err
		}

		switch actor.Kind() {
		case models.ActorApplicant:
			if current.RetrievalToken != actor.Token() {
				return dErrors.New(dErrors.CodeForbidden, "token does not own this record")
			}
		default:
			return dErrors.New(dErrors.CodeForbidden, "only the applicant can submit a record")
		}

		if current.Status != models.StatusDraft {
			return dErrors.New(dErrors.CodeInvalidState, "record is not a draft")
		}
		if current.BirthDate == nil {
			return dErrors.New(dErrors.CodeValidation, "birth date required before submission")
		}

		now := requestcontext.Now(ctx)
		submittedAt := now
		current.Status = models.StatusSubmitted
		current.SubmittedAt = &submittedAt
		current.SubmitIP = metadata.PackIP(requestcontext.ClientIP(ctx))
		if err := save(ctx, store, current, now); err != nil {
			return err
		}
		s.audit.Record(ctx, recordID, audit.KindSubmitted, actor.Audit(), map[string]string{
			"by": actor.Label(),
		})
		rec = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Withdraw is terminal and only applies to submitted records. The admin or the
// owning applicant may withdraw. Any lock is released.
func (s *Service) Withdraw(ctx context.Context, recordID id.RecordID, actor models.Actor) (rec *models.Record, err error) {
	ctx, done := s.observe(ctx, "withdraw", recordID)
	defer func() { done(err) }()

	err = s.tx.RunInTx(ctx, []string{TxKey(recordID)}, func(ctx context.Context, store Store) error {
		current, err := loadForUpdate(ctx, store, recordID)
		if err != nil {
			return err
		}

		switch actor.Kind() {
		case models.ActorAdmin:
		case models.ActorApplicant:
			if current.RetrievalToken != actor.Token() {
				return dErrors.New(dErrors.CodeForbidden, "token does not own this record")
			}
		default:
			return dErrors.New(dErrors.CodeForbidden, "actor may not withdraw records")
		}
		if current.Status != models.StatusSubmitted {
			return dErrors.New(dErrors.CodeInvalidState, "record cannot be withdrawn from status "+string(current.Status))
		}

		now := requestcontext.Now(ctx)
		previousStatus := current.Status
		current.Status = models.StatusWithdrawn
		droppedLock := current.ClearLock()
		if err := save(ctx, store, current, now); err != nil {
			return err
		}
		s.audit.Record(ctx, recordID, audit.KindWithdrawn, actor.Audit(), map[string]string{
			"by":              actor.Label(),
			"previous_status": string(previousStatus),
		})
		if droppedLock != nil {
			s.audit.Record(ctx, recordID, audit.KindUnlocked, actor.Audit(), map[string]string{
				"by":             actor.Label(),
				"override":       strconv.FormatBool(actor.Kind() == models.ActorAdmin),
				"previous_owner": droppedLock.String(),
				"reason":         unlockReasonWithdrawn,
			})
		}
		rec = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// BulkDelete removes records with all their form data and audit rows. Either
// every listed record is deleted or none is.
func (s *Service) BulkDelete(ctx context.Context, recordIDs []id.RecordID, actor models.Actor) (deleted int, err error) {
	ctx, done := s.observe(ctx, "bulk_delete", id.RecordID{})
	defer func() { done(err) }()

	switch actor.Kind() {
	case models.ActorAdmin:
	default:
		return 0, dErrors.New(dErrors.CodeForbidden, "only the admin console can delete records")
	}

	ids := dedupeRecordIDs(recordIDs)
	if len(ids) == 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "at least one record id required")
	}
	if len(ids) > MaxBulkDelete {
		return 0, dErrors.New(dErrors.CodeValidation, "too many records in one delete")
	}

	keys := make([]string, 0, len(ids))
	for _, recordID := range ids {
		keys = append(keys, TxKey(recordID))
	}
	err = s.tx.RunInTx(ctx, keys, func(ctx context.Context, store Store) error {
		return translateStoreErr(store.DeleteMany(ctx, ids), "one or more records not found")
	})
	if err != nil {
		return 0, err
	}

	if s.onDeleted != nil {
		s.onDeleted(ids...)
	}
	s.logger.InfoContext(ctx, "records deleted",
		"count", len(ids),
		"request_id", requestcontext.RequestID(ctx),
	)
	return len(ids), nil
}

// Get returns a record if the actor may see it. Reviewers see records
// assigned to them and unclaimed submitted ones; anything else reads as
// missing so organizations cannot enumerate each other's queues.
func (s *Service) Get(ctx context.Context, recordID id.RecordID, actor models.Actor) (*models.Record, error) {
	rec, err := s.store.FindByID(ctx, recordID)
	if err != nil {
		return nil, translateStoreErr(err, "record not found")
	}

	notFound := dErrors.New(dErrors.CodeNotFound, "record not found")
	switch actor.Kind() {
	case models.ActorAdmin:
		return rec, nil
	case models.ActorReviewer:
		self := actor.ReviewerID()
		switch {
		case rec.Status == models.StatusDraft:
			return nil, notFound
		case rec.IsAssignedTo(self):
			return rec, nil
		case rec.AssignedReviewerID == nil && rec.Status == models.StatusSubmitted:
			return rec, nil
		}
		return nil, notFound
	case models.ActorApplicant:
		if rec.RetrievalToken == actor.Token() {
			return rec, nil
		}
		return nil, notFound
	}
	return nil, notFound
}

// Events returns the audit trail of a record in insert order.
func (s *Service) Events(ctx context.Context, recordID id.RecordID, actor models.Actor) ([]audit.Event, error) {
	switch actor.Kind() {
	case models.ActorAdmin:
	default:
		return nil, dErrors.New(dErrors.CodeForbidden, "only the admin console can read the audit trail")
	}
	if _, err := s.store.FindByID(ctx, recordID); err != nil {
		return nil, translateStoreErr(err, "record not found")
	}
	events, err := s.audit.List(ctx, recordID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit trail")
	}
	return events, nil
}

func dedupeRecordIDs(recordIDs []id.RecordID) []id.RecordID {
	seen := make(map[id.RecordID]struct{}, len(recordIDs))
	out := make([]id.RecordID, 0, len(recordIDs))
	for _, recordID := range recordIDs {
		if recordID.IsNil() {
			continue
		}
		if _, ok := seen[recordID]; ok {
			continue
		}
		seen[recordID] = struct{}{}
		out = append(out, recordID)
	}
	return out
}
