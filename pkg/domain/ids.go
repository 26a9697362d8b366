// Package domain holds the primitive value types shared by every bounded context:
// typed identifiers, retrieval tokens and birth dates. Parsing happens once at the
// trust boundary; everything past it works with validated values.
package domain

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "intake/pkg/domain-errors"
)

// RecordID identifies an application record.
type RecordID uuid.UUID

// ReviewerID identifies a reviewer organization.
type ReviewerID uuid.UUID

// SessionID identifies an applicant session.
type SessionID uuid.UUID

func (id RecordID) String() string   { return uuid.UUID(id).String() }
func (id ReviewerID) String() string { return uuid.UUID(id).String() }
func (id SessionID) String() string  { return uuid.UUID(id).String() }

func (id RecordID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id ReviewerID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

func NewRecordID() RecordID     { return RecordID(uuid.New()) }
func NewReviewerID() ReviewerID { return ReviewerID(uuid.New()) }
func NewSessionID() SessionID   { return SessionID(uuid.New()) }

// ParseRecordID validates a record identifier received from a client.
func ParseRecordID(s string) (RecordID, error) {
	u, err := parseUUID(s, "record id")
	return RecordID(u), err
}

// ParseReviewerID validates a reviewer organization identifier.
func ParseReviewerID(s string) (ReviewerID, error) {
	u, err := parseUUID(s, "reviewer id")
	return ReviewerID(u), err
}

// ParseSessionID validates a session identifier (cookie value).
func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s, "session id")
	return SessionID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if !utf8.ValidString(s) || strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, label+" is required")
	}
	if len(s) > 64 {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "invalid "+label)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "invalid "+label)
	}
	return u, nil
}
