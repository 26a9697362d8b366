package audit

import (
	"context"
	"time"

	id "intake/pkg/domain"
)

// Kind names a recorded state transition. Kinds are stable strings because
// they are persisted and read back by operators.
type Kind string

const (
	// Record lifecycle
	KindDraftCreated Kind = "draft_created"
	KindDraftUpdated Kind = "draft_updated"
	KindSubmitted    Kind = "submitted"
	KindWithdrawn    Kind = "withdrawn"

	// Claim protocol
	KindAssignmentChanged Kind = "assigned_bbs_changed"
	KindLocked            Kind = "locked"
	KindUnlocked          Kind = "unlocked"

	// Identity
	KindEmailVerified          Kind = "email_verified"
	KindTokenRecoveryRequested Kind = "token_recovery_requested"
	KindApplicantLogin         Kind = "applicant_login"
)

// ActorKind identifies which side of the system performed an action.
type ActorKind string

const (
	ActorAdmin     ActorKind = "admin"
	ActorReviewer  ActorKind = "reviewer"
	ActorApplicant ActorKind = "applicant"
	ActorSystem    ActorKind = "system"
)

// Actor is the audit view of whoever acted. ReviewerID is set only for
// reviewer actors. Applicant tokens are never written to the trail.
type Actor struct {
	Kind       ActorKind
	ReviewerID *id.ReviewerID
}

// Event is one append-only entry of a record's trail.
type Event struct {
	Seq       int64
	RecordID  id.RecordID
	Kind      Kind
	Actor     Actor
	Metadata  map[string]string
	RequestID string
	CreatedAt time.Time
}

// Store persists audit events. Append must be safe to call from inside a
// record transaction carried by ctx.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByRecord(ctx context.Context, recordID id.RecordID) ([]Event, error)
}
