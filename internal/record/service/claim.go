package service

import (
	"context"
	"strconv"

	"intake/internal/record/models"
	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
	audit "intake/pkg/platform/audit"
	"intake/pkg/requestcontext"
)

// Conflict reasons surfaced to clients in the "error" field.
const (
	ReasonLockedByOther   = "locked_by_other"
	ReasonAssignedToOther = "assigned_to_other"
	ReasonNotAssigned     = "not_assigned"
)

// Unlock reasons recorded when a lock is dropped as a side effect.
const (
	unlockReasonAssignmentChanged = "assignment_changed"
	unlockReasonWithdrawn         = "withdrawn"
)

func errLockedByOther() error {
	return dErrors.New(dErrors.CodeConflict, "record is locked by another organization").WithReason(ReasonLockedByOther)
}

// Assign sets or clears the reviewer organization a submitted record belongs
// to. A lock held by an organization losing the assignment is released in the
// same transaction; the lock never transfers to the new assignee.
func (s *Service) Assign(ctx context.Context, recordID id.RecordID, target *id.ReviewerID, actor models.Actor) (rec *models.Record, err error) {
	ctx, done := s.observe(ctx, "assign", recordID)
	defer func() { done(err) }()

	err = s.tx.RunInTx(ctx, []string{TxKey(recordID)}, func(ctx context.Context, store Store) error {
		current, err := loadForUpdate(ctx, store, recordID)
		if err != nil {
			return err
		}
		if current.Status != models.StatusSubmitted {
			return dErrors.New(dErrors.CodeInvalidState, "only submitted records can be assigned")
		}

		override := false
		switch actor.Kind() {
		case models.ActorAdmin:
			override = true
			if target != nil {
				if err := s.requireActiveReviewer(ctx, *target); err != nil {
					return err
				}
			}
		case models.ActorReviewer:
			self := actor.ReviewerID()
			if target != nil && *target != self {
				return dErrors.New(dErrors.CodeForbidden, "reviewers may only assign records to themselves")
			}
			if current.AssignedReviewerID != nil && *current.AssignedReviewerID != self {
				if target == nil {
					return dErrors.New(dErrors.CodeForbidden, "record is assigned to another organization")
				}
				return dErrors.New(dErrors.CodeConflict, "record is assigned to another organization").WithReason(ReasonAssignedToOther)
			}
		default:
			return dErrors.New(dErrors.CodeForbidden, "actor may not assign records")
		}

		previous := current.AssignedReviewerID
		if sameReviewer(previous, target) {
			rec = current
			return nil
		}

		now := requestcontext.Now(ctx)
		if target == nil {
			current.AssignedReviewerID = nil
		} else {
			assignee := *target
			current.AssignedReviewerID = &assignee
		}
		var droppedLock *id.ReviewerID
		if current.LockedByReviewerID != nil && !sameReviewer(current.LockedByReviewerID, target) {
			droppedLock = current.ClearLock()
		}
		if err := save(ctx, store, current, now); err != nil {
			return err
		}

		s.audit.Record(ctx, recordID, audit.KindAssignmentChanged, actor.Audit(), map[string]string{
			"by":       actor.Label(),
			"assignee": reviewerString(target),
			"previous": reviewerString(previous),
		})
		if droppedLock != nil {
			s.audit.Record(ctx, recordID, audit.KindUnlocked, actor.Audit(), map[string]string{
				"by":             actor.Label(),
				"override":       strconv.FormatBool(override),
				"previous_owner": droppedLock.String(),
				"reason":         unlockReasonAssignmentChanged,
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

// Lock grants the assigned organization exclusive processing rights. Relocking
// one's own lock succeeds, refreshes LockedAt and is audited with relock=true.
func (s *Service) Lock(ctx context.Context, recordID id.RecordID, actor models.Actor) (rec *models.Record, err error) {
	ctx, done := s.observe(ctx, "lock", recordID)
	defer func() { done(err) }()

	err = s.tx.RunInTx(ctx, []string{TxKey(recordID)}, func(ctx context.Context, store Store) error {
		current, err := loadForUpdate(ctx, store, recordID)
		if err != nil {
			return err
		}
		if current.Status != models.StatusSubmitted {
			return dErrors.New(dErrors.CodeInvalidState, "only submitted records can be locked")
		}

		var owner id.ReviewerID
		switch actor.Kind() {
		case models.ActorReviewer:
			owner = actor.ReviewerID()
			if current.IsLocked() && !current.IsLockedBy(owner) {
				return errLockedByOther()
			}
			if !current.IsAssignedTo(owner) {
				return dErrors.New(dErrors.CodeConflict, "record must be assigned to the caller before locking").WithReason(ReasonNotAssigned)
			}
		case models.ActorAdmin:
			if current.AssignedReviewerID == nil {
				return dErrors.New(dErrors.CodeInvalidState, "record has no assigned organization to lock for")
			}
			owner = *current.AssignedReviewerID
			if current.IsLocked() && !current.IsLockedBy(owner) {
				return errLockedByOther()
			}
		default:
			return dErrors.New(dErrors.CodeForbidden, "actor may not lock records")
		}

		now := requestcontext.Now(ctx)
		relock := current.IsLockedBy(owner)
		current.SetLock(owner, now)
		if err := save(ctx, store, current, now); err != nil {
			return err
		}
		s.audit.Record(ctx, recordID, audit.KindLocked, actor.Audit(), map[string]string{
			"by":     actor.Label(),
			"owner":  owner.String(),
			"relock": strconv.FormatBool(relock),
		})
		rec = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Unlock releases a lock. Reviewers may only release their own; the admin
// console may release any lock and the trail marks it as an override.
func (s *Service) Unlock(ctx context.Context, recordID id.RecordID, actor models.Actor) (rec *models.Record, err error) {
	ctx, done := s.observe(ctx, "unlock", recordID)
	defer func() { done(err) }()

	err = s.tx.RunInTx(ctx, []string{TxKey(recordID)}, func(ctx context.Context, store Store) error {
		current, err := loadForUpdate(ctx, store, recordID)
		if err != nil {
			return err
		}
		if current.Status != models.StatusSubmitted {
			return dErrors.New(dErrors.CodeInvalidState, "only submitted records can be unlocked")
		}

		override := false
		switch actor.Kind() {
		case models.ActorReviewer:
			if !current.IsLockedBy(actor.ReviewerID()) {
				return dErrors.New(dErrors.CodeForbidden, "caller does not hold the lock")
			}
		case models.ActorAdmin:
			if !current.IsLocked() {
				rec = current
				return nil
			}
			override = true
		default:
			return dErrors.New(dErrors.CodeForbidden, "actor may not unlock records")
		}

		now := requestcontext.Now(ctx)
		previous := current.ClearLock()
		if err := save(ctx, store, current, now); err != nil {
			return err
		}
		s.audit.Record(ctx, recordID, audit.KindUnlocked, actor.Audit(), map[string]string{
			"by":             actor.Label(),
			"override":       strconv.FormatBool(override),
			"previous_owner": reviewerString(previous),
		})
		rec = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) requireActiveReviewer(ctx context.Context, reviewerID id.ReviewerID) error {
	active, err := s.reviewers.IsActive(ctx, reviewerID)
	if err != nil {
		return translateStoreErr(err, "reviewer organization not found")
	}
	if !active {
		return dErrors.New(dErrors.CodeValidation, "reviewer organization is inactive")
	}
	return nil
}

func sameReviewer(a, b *id.ReviewerID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
