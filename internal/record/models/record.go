package models

import (
	"slices"
	"time"

	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
)

// Status is the lifecycle position of a record.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusWithdrawn Status = "withdrawn"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusWithdrawn:
		return true
	}
	return false
}

// Record is one applicant's application together with its claim state.
// The retrieval token never changes once the record exists.
type Record struct {
	ID                 id.RecordID
	RetrievalToken     id.RetrievalToken
	Email              string
	EmailVerified      bool
	BirthDate          *time.Time
	Status             Status
	AssignedReviewerID *id.ReviewerID
	LockedByReviewerID *id.ReviewerID
	LockedAt           *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
	SubmittedAt        *time.Time
	SubmitIP           []byte
}

// NewDraft builds the record created on the first durable save of an identity.
func NewDraft(recordID id.RecordID, token id.RetrievalToken, birthDate time.Time, email string, emailVerified bool, now time.Time) (*Record, error) {
	if recordID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "record id required")
	}
	if token.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "retrieval token required")
	}
	if birthDate.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "birth date required")
	}
	bd := birthDate
	return &Record{
		ID:             recordID,
		RetrievalToken: token,
		Email:          email,
		EmailVerified:  emailVerified && email != "",
		BirthDate:      &bd,
		Status:         StatusDraft,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// IsApplicantEditable reports whether the applicant may still change the
// record's identity fields and form data.
func (r *Record) IsApplicantEditable() bool {
	return r.Status == StatusDraft
}

// IsAssignedTo reports whether reviewerID holds the assignment.
func (r *Record) IsAssignedTo(reviewerID id.ReviewerID) bool {
	return r.AssignedReviewerID != nil && *r.AssignedReviewerID == reviewerID
}

// IsLockedBy reports whether reviewerID holds the lock.
func (r *Record) IsLockedBy(reviewerID id.ReviewerID) bool {
	return r.LockedByReviewerID != nil && *r.LockedByReviewerID == reviewerID
}

func (r *Record) IsLocked() bool {
	return r.LockedByReviewerID != nil
}

// ClearLock drops the lock and returns the previous owner, if any.
func (r *Record) ClearLock() *id.ReviewerID {
	prev := r.LockedByReviewerID
	r.LockedByReviewerID = nil
	r.LockedAt = nil
	return prev
}

// SetLock hands the lock to the current assignee.
func (r *Record) SetLock(reviewerID id.ReviewerID, now time.Time) {
	owner := reviewerID
	at := now
	r.LockedByReviewerID = &owner
	r.LockedAt = &at
}

// CheckInvariants verifies the claim state is coherent: a lock is only ever
// held by the assigned organization and only on submitted records.
func (r *Record) CheckInvariants() error {
	if !r.Status.IsValid() {
		return dErrors.New(dErrors.CodeInternal, "record has unknown status "+string(r.Status))
	}
	if r.LockedByReviewerID != nil {
		if r.AssignedReviewerID == nil || *r.AssignedReviewerID != *r.LockedByReviewerID {
			return dErrors.New(dErrors.CodeInternal, "lock held by an organization that is not assigned")
		}
		if r.LockedAt == nil {
			return dErrors.New(dErrors.CodeInternal, "lock without timestamp")
		}
	}
	if r.LockedByReviewerID == nil && r.LockedAt != nil {
		return dErrors.New(dErrors.CodeInternal, "lock timestamp without owner")
	}
	if r.Status == StatusDraft && (r.AssignedReviewerID != nil || r.LockedByReviewerID != nil) {
		return dErrors.New(dErrors.CodeInternal, "draft records cannot be claimed")
	}
	return nil
}

// Clone returns a deep copy so stores never share pointers with callers.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.BirthDate != nil {
		bd := *r.BirthDate
		c.BirthDate = &bd
	}
	if r.AssignedReviewerID != nil {
		a := *r.AssignedReviewerID
		c.AssignedReviewerID = &a
	}
	if r.LockedByReviewerID != nil {
		l := *r.LockedByReviewerID
		c.LockedByReviewerID = &l
	}
	if r.LockedAt != nil {
		la := *r.LockedAt
		c.LockedAt = &la
	}
	if r.SubmittedAt != nil {
		sa := *r.SubmittedAt
		c.SubmittedAt = &sa
	}
	c.SubmitIP = slices.Clone(r.SubmitIP)
	return &c
}
