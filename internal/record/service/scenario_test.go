package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intake/internal/record/models"
	dErrors "intake/pkg/domain-errors"
	"intake/pkg/testutil"
)

func TestWithdrawReleasesReviewerLock(t *testing.T) {
	ctx := context.Background()
	svc, st, reviewers := newConcurrentEngine(t, 2)
	owner, other := reviewers[0], reviewers[1]
	recordID := newSubmittedRecord(t, svc, st)

	testutil.Given(t, "a record claimed and locked by one organization", func(t *testing.T) {
		_, err := svc.Assign(ctx, recordID, &owner, models.Reviewer(owner))
		require.NoError(t, err)
		rec, err := svc.Lock(ctx, recordID, models.Reviewer(owner))
		require.NoError(t, err)
		require.True(t, rec.IsLockedBy(owner))
	})

	testutil.When(t, "the admin withdraws it", func(t *testing.T) {
		rec, err := svc.Withdraw(ctx, recordID, models.Admin())
		require.NoError(t, err)
		assert.Equal(t, models.StatusWithdrawn, rec.Status)
	})

	testutil.Then(t, "the lock is gone and nobody can take it again", func(t *testing.T) {
		rec, err := st.FindByID(ctx, recordID)
		require.NoError(t, err)
		assert.False(t, rec.IsLocked())
		require.NoError(t, rec.CheckInvariants())

		_, err = svc.Lock(ctx, recordID, models.Reviewer(owner))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
		_, err = svc.Assign(ctx, recordID, &other, models.Reviewer(other))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}
