package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	dErrors "intake/pkg/domain-errors"
)

// RetrievalTokenBytes is the entropy of a retrieval token (128 bits).
const RetrievalTokenBytes = 16

// RetrievalToken is the opaque secret an applicant keeps to reopen a record.
// It is 32 lowercase hex characters and never changes for the life of the record.
type RetrievalToken string

// NewRetrievalToken draws a fresh token from crypto/rand.
func NewRetrievalToken() (RetrievalToken, error) {
	buf := make([]byte, RetrievalTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate retrieval token: %w", err)
	}
	return RetrievalToken(hex.EncodeToString(buf)), nil
}

// ParseRetrievalToken normalizes user input (trim, lowercase) and validates the format.
func ParseRetrievalToken(s string) (RetrievalToken, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "token is required")
	}
	if len(s) != RetrievalTokenBytes*2 {
		return "", dErrors.New(dErrors.CodeValidation, "invalid token")
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", dErrors.New(dErrors.CodeValidation, "invalid token")
	}
	return RetrievalToken(s), nil
}

func (t RetrievalToken) String() string { return string(t) }

func (t RetrievalToken) IsZero() bool { return t == "" }
