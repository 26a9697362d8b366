package models

import (
	id "intake/pkg/domain"
	audit "intake/pkg/platform/audit"
)

// ActorKind discriminates the Actor union.
type ActorKind int

const (
	ActorUnknown ActorKind = iota
	ActorAdmin
	ActorReviewer
	ActorApplicant
)

// Actor says on whose authority an engine operation runs. It can only be
// built through Admin, Reviewer or Applicant; the zero value is rejected.
type Actor struct {
	kind       ActorKind
	reviewerID id.ReviewerID
	token      id.RetrievalToken
}

// Admin is the trusted operator console.
func Admin() Actor { return Actor{kind: ActorAdmin} }

// Reviewer is an authenticated reviewer organization.
func Reviewer(reviewerID id.ReviewerID) Actor {
	return Actor{kind: ActorReviewer, reviewerID: reviewerID}
}

// Applicant is whoever holds the record's retrieval token.
func Applicant(token id.RetrievalToken) Actor {
	return Actor{kind: ActorApplicant, token: token}
}

func (a Actor) Kind() ActorKind { return a.kind }

// ReviewerID is meaningful only for reviewer actors.
func (a Actor) ReviewerID() id.ReviewerID { return a.reviewerID }

// Token is meaningful only for applicant actors.
func (a Actor) Token() id.RetrievalToken { return a.token }

// Label is the short name written to the "by" field of audit metadata.
func (a Actor) Label() string {
	switch a.kind {
	case ActorAdmin:
		return "admin"
	case ActorReviewer:
		return "reviewer"
	case ActorApplicant:
		return "applicant"
	}
	return "unknown"
}

// Audit converts the actor to its audit trail form. Applicant tokens are
// deliberately not carried over.
func (a Actor) Audit() audit.Actor {
	switch a.kind {
	case ActorAdmin:
		return audit.Actor{Kind: audit.ActorAdmin}
	case ActorReviewer:
		rid := a.reviewerID
		return audit.Actor{Kind: audit.ActorReviewer, ReviewerID: &rid}
	case ActorApplicant:
		return audit.Actor{Kind: audit.ActorApplicant}
	}
	return audit.Actor{Kind: audit.ActorSystem}
}
