package domain

import (
	"strings"
	"time"

	dErrors "intake/pkg/domain-errors"
)

const (
	isoDateLayout = "2006-01-02"
	dmyDateLayout = "02.01.2006"
)

// ParseBirthDate accepts ISO (2006-01-02) or the form layout (02.01.2006) and
// returns the date at UTC midnight. time.Parse rejects impossible calendar
// dates such as 31.02.
func ParseBirthDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, dErrors.New(dErrors.CodeValidation, "birth date is required")
	}
	layout := isoDateLayout
	if strings.Contains(s, ".") {
		layout = dmyDateLayout
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeValidation, "birth date is not a valid calendar date")
	}
	if t.Year() < 1900 {
		return time.Time{}, dErrors.New(dErrors.CodeValidation, "birth date is out of range")
	}
	return t.UTC(), nil
}

// SameDate compares two dates ignoring time of day and location.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// FormatBirthDate renders a birth date in ISO form.
func FormatBirthDate(t time.Time) string {
	return t.Format(isoDateLayout)
}
