package handler

import (
	"strings"
	"time"

	"intake/internal/record/models"
	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
	audit "intake/pkg/platform/audit"
)

// Reviewer-facing action names.
const (
	ActionAssign = "assign"
	ActionLock   = "lock"
	ActionUnlock = "unlock"
)

// ActionRequest is the body of POST /api/v1/records/action.
type ActionRequest struct {
	Action        string  `json:"action"`
	AppID         string  `json:"app_id"`
	AssignedBBSID *string `json:"assigned_bbs_id,omitempty"`
}

// Normalize trims and lowercases the action name.
func (r *ActionRequest) Normalize() {
	r.Action = strings.ToLower(strings.TrimSpace(r.Action))
	r.AppID = strings.TrimSpace(r.AppID)
}

// Validate checks the action is known and the record id parses.
func (r *ActionRequest) Validate() (id.RecordID, error) {
	switch r.Action {
	case ActionAssign, ActionLock, ActionUnlock:
	default:
		return id.RecordID{}, dErrors.New(dErrors.CodeBadRequest, "action must be one of assign, lock, unlock")
	}
	return id.ParseRecordID(r.AppID)
}

// AssignRequest is the admin console body of an assignment.
type AssignRequest struct {
	AssignedBBSID *string `json:"assigned_bbs_id"`
}

// BulkDeleteRequest lists records to remove.
type BulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

// parseTarget turns an optional assignee into a reviewer id; null, absent
// and empty all mean "clear the assignment".
func parseTarget(raw *string) (*id.ReviewerID, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	reviewerID, err := id.ParseReviewerID(*raw)
	if err != nil {
		return nil, err
	}
	return &reviewerID, nil
}

// RecordResponse is the claim-state view of a record. Applicant identity
// fields are never exposed to reviewers.
type RecordResponse struct {
	ID                 string     `json:"id"`
	Status             string     `json:"status"`
	AssignedReviewerID *string    `json:"assigned_bbs_id"`
	LockedByReviewerID *string    `json:"locked_by_bbs_id"`
	LockedAt           *time.Time `json:"locked_at,omitempty"`
	SubmittedAt        *time.Time `json:"submitted_at,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func toRecordResponse(rec *models.Record) RecordResponse {
	return RecordResponse{
		ID:                 rec.ID.String(),
		Status:             string(rec.Status),
		AssignedReviewerID: reviewerPtr(rec.AssignedReviewerID),
		LockedByReviewerID: reviewerPtr(rec.LockedByReviewerID),
		LockedAt:           rec.LockedAt,
		SubmittedAt:        rec.SubmittedAt,
		UpdatedAt:          rec.UpdatedAt,
	}
}

// AdminRecordResponse adds applicant contact data for the operator console.
type AdminRecordResponse struct {
	RecordResponse
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	BirthDate     string    `json:"birth_date,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func toAdminRecordResponse(rec *models.Record) AdminRecordResponse {
	resp := AdminRecordResponse{
		RecordResponse: toRecordResponse(rec),
		Email:          rec.Email,
		EmailVerified:  rec.EmailVerified,
		CreatedAt:      rec.CreatedAt,
	}
	if rec.BirthDate != nil {
		resp.BirthDate = id.FormatBirthDate(*rec.BirthDate)
	}
	return resp
}

// EventResponse is one audit trail entry.
type EventResponse struct {
	Seq        int64             `json:"seq"`
	Kind       string            `json:"kind"`
	ActorKind  string            `json:"actor_kind"`
	ReviewerID *string           `json:"actor_bbs_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

func toEventResponses(events []audit.Event) []EventResponse {
	out := make([]EventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, EventResponse{
			Seq:        e.Seq,
			Kind:       string(e.Kind),
			ActorKind:  string(e.Actor.Kind),
			ReviewerID: reviewerPtr(e.Actor.ReviewerID),
			Metadata:   e.Metadata,
			RequestID:  e.RequestID,
			CreatedAt:  e.CreatedAt,
		})
	}
	return out
}

func reviewerPtr(r *id.ReviewerID) *string {
	if r == nil {
		return nil
	}
	s := r.String()
	return &s
}
