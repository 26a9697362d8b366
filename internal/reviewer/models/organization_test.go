package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
)

var testHash = strings.Repeat("ab", 32)

func TestNormalizeShortLabel(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: " North_School ", want: "north_school"},
		{in: "b1", want: "b1"},
		{in: "x", wantErr: true},
		{in: strings.Repeat("a", 33), wantErr: true},
		{in: "has space", wantErr: true},
		{in: "dots.not.allowed", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeShortLabel(tt.in)
			if tt.wantErr {
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewOrganization(t *testing.T) {
	now := time.Now()
	org, err := NewOrganization(id.NewReviewerID(), "bbs-east", "  ", testHash, now)
	require.NoError(t, err)
	assert.Equal(t, "bbs-east", org.DisplayName)
	assert.True(t, org.IsActive)

	_, err = NewOrganization(id.NewReviewerID(), "bbs-east", strings.Repeat("n", 129), testHash, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = NewOrganization(id.NewReviewerID(), "bbs-east", "East", "plaintext", now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

func TestSetActive(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	org, err := NewOrganization(id.NewReviewerID(), "bbs", "", testHash, created)
	require.NoError(t, err)

	later := created.Add(time.Hour)
	assert.False(t, org.SetActive(true, later))
	assert.Equal(t, created, org.UpdatedAt)

	assert.True(t, org.SetActive(false, later))
	assert.False(t, org.IsActive)
	assert.Equal(t, later, org.UpdatedAt)
	assert.Equal(t, created, org.CreatedAt)
}
