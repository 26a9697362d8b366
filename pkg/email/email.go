// Package email normalizes applicant addresses so lookups by verified email
// match regardless of case and surrounding whitespace.
package email

import (
	"net/mail"
	"strings"

	dErrors "intake/pkg/domain-errors"
)

// MaxLength is the longest address accepted.
const MaxLength = 254

// Normalize trims and lowercases an address and checks it is a bare
// addr-spec (no display name).
func Normalize(raw string) (string, error) {
	addr := strings.ToLower(strings.TrimSpace(raw))
	if addr == "" {
		return "", dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if len(addr) > MaxLength {
		return "", dErrors.New(dErrors.CodeValidation, "email is too long")
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr || !strings.Contains(addr[strings.IndexByte(addr, '@')+1:], ".") {
		return "", dErrors.New(dErrors.CodeValidation, "email is invalid")
	}
	return addr, nil
}

// Mask hides most of the local part for log lines, e.g. "j***@example.com".
func Mask(addr string) string {
	at := strings.IndexByte(addr, '@')
	if at <= 0 {
		return "***"
	}
	runes := []rune(addr[:at])
	return string(runes[0]) + "***" + addr[at:]
}
