package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodedErrors(t *testing.T) {
	t.Run("code survives fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeForbidden, "not your assignment"))
		assert.True(t, HasCode(err, CodeForbidden))
		assert.False(t, HasCode(err, CodeConflict))
		assert.Equal(t, CodeForbidden, CodeOf(err))
	})

	t.Run("wrap keeps the cause reachable", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := Wrap(cause, CodeInternal, "failed to load record")
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "connection reset")
	})

	t.Run("reason does not mutate the original", func(t *testing.T) {
		base := New(CodeConflict, "record is locked")
		withReason := base.WithReason("locked_by_other")
		assert.Equal(t, "", base.Reason)
		assert.Equal(t, "locked_by_other", ReasonOf(withReason))
	})

	t.Run("plain errors default to internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
		assert.Equal(t, "", ReasonOf(errors.New("boom")))
	})
}
