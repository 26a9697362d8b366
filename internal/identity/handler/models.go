package handler

import (
	"encoding/json"
	"time"

	"intake/internal/identity/models"
	"intake/internal/identity/service"
	recordmodels "intake/internal/record/models"
	id "intake/pkg/domain"
)

type DraftRequest struct {
	BirthDate string `json:"birth_date"`
	Email     string `json:"email,omitempty"`
}

type ChallengeRequest struct {
	Email string `json:"email"`
}

type VerifyRequest struct {
	Code string `json:"code"`
}

type RecoverRequest struct {
	Email     string `json:"email"`
	BirthDate string `json:"birth_date"`
}

type LoginRequest struct {
	Token     string `json:"token"`
	BirthDate string `json:"birth_date"`
}

type UploadRequest struct {
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`
	StorageKey string `json:"storage_key"`
}

func (r UploadRequest) toUpload() recordmodels.Upload {
	return recordmodels.Upload{
		FileName:   r.FileName,
		MimeType:   r.MimeType,
		SizeBytes:  r.SizeBytes,
		StorageKey: r.StorageKey,
	}
}

// RecordSummary is the applicant's own view of a record.
type RecordSummary struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"`
	Email         string     `json:"email,omitempty"`
	EmailVerified bool       `json:"email_verified"`
	BirthDate     string     `json:"birth_date,omitempty"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func toRecordSummary(rec *recordmodels.Record) RecordSummary {
	out := RecordSummary{
		ID:            rec.ID.String(),
		Status:        string(rec.Status),
		Email:         rec.Email,
		EmailVerified: rec.EmailVerified,
		SubmittedAt:   rec.SubmittedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
	if rec.BirthDate != nil {
		out.BirthDate = id.FormatBirthDate(*rec.BirthDate)
	}
	return out
}

type GrantResponse struct {
	RecordID string `json:"record_id"`
	Status   string `json:"status"`
	ReadOnly bool   `json:"read_only"`
}

func toGrantResponse(g *models.SessionGrant) GrantResponse {
	return GrantResponse{
		RecordID: g.RecordID.String(),
		Status:   string(g.Status),
		ReadOnly: g.ReadOnly,
	}
}

// SessionResponse describes what the current browser session holds. The
// token is shown to its own holder so it can be written down.
type SessionResponse struct {
	Token            string     `json:"token,omitempty"`
	RecordID         *string    `json:"record_id,omitempty"`
	VerifiedEmail    string     `json:"verified_email,omitempty"`
	PendingChallenge bool       `json:"pending_challenge"`
	ReadOnly         bool       `json:"read_only"`
	ExpiresAt        time.Time  `json:"expires_at"`
	Form             *FormState `json:"form,omitempty"`
}

type FormState struct {
	Record   RecordSummary              `json:"record"`
	Sections map[string]json.RawMessage `json:"sections"`
	Uploads  []UploadResponse           `json:"uploads"`
}

type UploadResponse struct {
	ID         string    `json:"id"`
	FileName   string    `json:"file_name"`
	MimeType   string    `json:"mime_type"`
	SizeBytes  int64     `json:"size_bytes"`
	StorageKey string    `json:"storage_key"`
	CreatedAt  time.Time `json:"created_at"`
}

func toUploadResponse(u recordmodels.Upload) UploadResponse {
	return UploadResponse{
		ID:         u.ID.String(),
		FileName:   u.FileName,
		MimeType:   u.MimeType,
		SizeBytes:  u.SizeBytes,
		StorageKey: u.StorageKey,
		CreatedAt:  u.CreatedAt,
	}
}

func toSessionResponse(sess *models.Session, form *service.FormData) SessionResponse {
	out := SessionResponse{
		Token:            sess.Token.String(),
		VerifiedEmail:    sess.VerifiedEmail,
		PendingChallenge: sess.Challenge != nil,
		ReadOnly:         sess.ReadOnly,
		ExpiresAt:        sess.ExpiresAt,
	}
	if sess.RecordID != nil {
		rid := sess.RecordID.String()
		out.RecordID = &rid
	}
	if form != nil {
		state := &FormState{
			Record:   toRecordSummary(form.Record),
			Sections: make(map[string]json.RawMessage, len(form.Sections)),
			Uploads:  make([]UploadResponse, 0, len(form.Uploads)),
		}
		for _, sec := range form.Sections {
			state.Sections[string(sec.Section)] = sec.Payload
		}
		for _, u := range form.Uploads {
			state.Uploads = append(state.Uploads, toUploadResponse(u))
		}
		out.Form = state
	}
	return out
}
