package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
)

// Section names one step of the applicant form.
type Section string

const (
	SectionPersonal Section = "personal"
	SectionSchool   Section = "school"
	SectionContacts Section = "contacts"
)

// ParseSection validates a section name taken from a URL.
func ParseSection(s string) (Section, error) {
	switch sec := Section(strings.ToLower(strings.TrimSpace(s))); sec {
	case SectionPersonal, SectionSchool, SectionContacts:
		return sec, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown form section")
}

// SectionData is the saved payload of one form step. Field-level validation
// belongs to the form layer; here it is opaque JSON.
type SectionData struct {
	RecordID  id.RecordID
	Section   Section
	Payload   json.RawMessage
	UpdatedAt time.Time
}

// MaxUploadBytes caps the declared size of an attachment.
const MaxUploadBytes = 10 << 20

// Upload is the metadata of a stored attachment; content lives elsewhere.
type Upload struct {
	ID         uuid.UUID
	RecordID   id.RecordID
	FileName   string
	MimeType   string
	SizeBytes  int64
	StorageKey string
	CreatedAt  time.Time
}

// Validate checks the metadata the applicant supplied.
func (u Upload) Validate() error {
	if strings.TrimSpace(u.FileName) == "" || len(u.FileName) > 255 {
		return dErrors.New(dErrors.CodeValidation, "file name must be 1-255 characters")
	}
	if strings.ContainsAny(u.FileName, "/\\\x00") {
		return dErrors.New(dErrors.CodeValidation, "file name must not contain path separators")
	}
	if u.MimeType == "" {
		return dErrors.New(dErrors.CodeValidation, "mime type required")
	}
	if u.SizeBytes <= 0 || u.SizeBytes > MaxUploadBytes {
		return dErrors.New(dErrors.CodeValidation, "file size out of range")
	}
	if strings.TrimSpace(u.StorageKey) == "" {
		return dErrors.New(dErrors.CodeValidation, "storage key required")
	}
	return nil
}
