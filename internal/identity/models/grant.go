package models

import (
	recordmodels "intake/internal/record/models"
	id "intake/pkg/domain"
)

// DraftRequest is the input of the find-or-create draft step. BirthDate is
// raw user input in ISO or DD.MM.YYYY form.
type DraftRequest struct {
	Token         id.RetrievalToken
	BirthDate     string
	Email         string
	EmailVerified bool
}

// SessionGrant is the result of a successful login.
type SessionGrant struct {
	RecordID id.RecordID
	Status   recordmodels.Status
	ReadOnly bool
}

// VerifiedIdentity is the result of a successful email challenge.
type VerifiedIdentity struct {
	Email string
	Token id.RetrievalToken
}
