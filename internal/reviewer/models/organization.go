package models

import (
	"regexp"
	"strings"
	"time"

	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
)

var shortLabelPattern = regexp.MustCompile(`^[a-z0-9_-]{2,32}$`)

// Organization is a reviewer organization allowed to call the reviewer API.
//
// Invariants:
//   - ShortLabel is unique and matches [a-z0-9_-]{2,32}
//   - TokenHash is the SHA-256 hex of the current bearer token; the
//     plaintext is never stored
//   - CreatedAt is immutable after construction
type Organization struct {
	ID          id.ReviewerID
	ShortLabel  string
	DisplayName string
	TokenHash   string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NormalizeShortLabel lowercases and validates a short label.
func NormalizeShortLabel(raw string) (string, error) {
	label := strings.ToLower(strings.TrimSpace(raw))
	if !shortLabelPattern.MatchString(label) {
		return "", dErrors.New(dErrors.CodeValidation, "short label must be 2-32 characters of a-z, 0-9, _ or -")
	}
	return label, nil
}

func NewOrganization(reviewerID id.ReviewerID, shortLabel, displayName, tokenHash string, now time.Time) (*Organization, error) {
	label, err := NormalizeShortLabel(shortLabel)
	if err != nil {
		return nil, err
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = label
	}
	if len(displayName) > 128 {
		return nil, dErrors.New(dErrors.CodeValidation, "display name must be 128 characters or less")
	}
	if len(tokenHash) != 64 {
		return nil, dErrors.New(dErrors.CodeInternal, "token hash must be a sha-256 hex digest")
	}
	return &Organization{
		ID:          reviewerID,
		ShortLabel:  label,
		DisplayName: displayName,
		TokenHash:   tokenHash,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// SetActive flips the active flag. Returns false when nothing changed.
func (o *Organization) SetActive(active bool, now time.Time) bool {
	if o.IsActive == active {
		return false
	}
	o.IsActive = active
	o.UpdatedAt = now
	return true
}

// RotateToken replaces the credential hash.
func (o *Organization) RotateToken(tokenHash string, now time.Time) {
	o.TokenHash = tokenHash
	o.UpdatedAt = now
}
