package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"intake/internal/record/models"
	"intake/internal/record/store"
	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
	auditmemory "intake/pkg/platform/audit/store/memory"
	"intake/pkg/platform/audit/publisher"
)

func newConcurrentEngine(t *testing.T, orgs int) (*Service, *store.InMemoryStore, []id.ReviewerID) {
	t.Helper()
	st := store.NewInMemory()
	dir := &fakeDirectory{active: map[id.ReviewerID]bool{}}
	reviewers := make([]id.ReviewerID, orgs)
	for i := range reviewers {
		reviewers[i] = id.NewReviewerID()
		dir.active[reviewers[i]] = true
	}
	svc := New(st, NewShardedTx(st), dir, publisher.NewPublisher(auditmemory.NewInMemoryStore()))
	return svc, st, reviewers
}

func newSubmittedRecord(t *testing.T, svc *Service, st *store.InMemoryStore) id.RecordID {
	t.Helper()
	token, err := id.NewRetrievalToken()
	require.NoError(t, err)
	rec, err := models.NewDraft(id.NewRecordID(), token, mustBirthDate(t), "", false, requestNow())
	require.NoError(t, err)
	require.NoError(t, st.Insert(context.Background(), rec))
	_, err = svc.Submit(context.Background(), rec.ID, models.Applicant(token))
	require.NoError(t, err)
	return rec.ID
}

// TestConcurrentClaimHasSingleWinner races many organizations to claim and
// lock the same record; exactly one may end up holding it.
func TestConcurrentClaimHasSingleWinner(t *testing.T) {
	const orgs = 32
	svc, st, reviewers := newConcurrentEngine(t, orgs)
	recordID := newSubmittedRecord(t, svc, st)

	var winners, conflicts atomic.Int32
	var g errgroup.Group
	for _, reviewer := range reviewers {
		g.Go(func() error {
			actor := models.Reviewer(reviewer)
			if _, err := svc.Assign(context.Background(), recordID, &reviewer, actor); err != nil {
				if dErrors.HasCode(err, dErrors.CodeConflict) {
					conflicts.Add(1)
					return nil
				}
				return err
			}
			if _, err := svc.Lock(context.Background(), recordID, actor); err != nil {
				return err
			}
			winners.Add(1)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, int32(orgs-1), conflicts.Load())

	rec, err := st.FindByID(context.Background(), recordID)
	require.NoError(t, err)
	require.NoError(t, rec.CheckInvariants())
	require.NotNil(t, rec.LockedByReviewerID)
}

// TestConcurrentMixedOperationsKeepInvariants interleaves admin reassignment
// with reviewer lock and unlock traffic and checks the lock never outlives
// its owner's assignment.
func TestConcurrentMixedOperationsKeepInvariants(t *testing.T) {
	svc, st, reviewers := newConcurrentEngine(t, 4)
	recordID := newSubmittedRecord(t, svc, st)
	ctx := context.Background()

	var g errgroup.Group
	for i := range 200 {
		reviewer := reviewers[i%len(reviewers)]
		g.Go(func() error {
			var err error
			switch i % 4 {
			case 0:
				_, err = svc.Assign(ctx, recordID, &reviewer, models.Admin())
			case 1:
				_, err = svc.Lock(ctx, recordID, models.Reviewer(reviewer))
			case 2:
				_, err = svc.Unlock(ctx, recordID, models.Reviewer(reviewer))
			case 3:
				_, err = svc.Lock(ctx, recordID, models.Admin())
			}
			if err != nil && dErrors.HasCode(err, dErrors.CodeInternal) {
				return err
			}
			rec, err := st.FindByID(ctx, recordID)
			if err != nil {
				return err
			}
			return rec.CheckInvariants()
		})
	}
	require.NoError(t, g.Wait())
}

// TestOperationsOnDifferentRecordsDoNotSerialize checks independent records
// can all be claimed concurrently.
func TestOperationsOnDifferentRecordsDoNotSerialize(t *testing.T) {
	svc, st, reviewers := newConcurrentEngine(t, 1)
	reviewer := reviewers[0]
	recordIDs := make([]id.RecordID, 50)
	for i := range recordIDs {
		recordIDs[i] = newSubmittedRecord(t, svc, st)
	}

	var g errgroup.Group
	for _, recordID := range recordIDs {
		g.Go(func() error {
			if _, err := svc.Assign(context.Background(), recordID, &reviewer, models.Reviewer(reviewer)); err != nil {
				return err
			}
			_, err := svc.Lock(context.Background(), recordID, models.Reviewer(reviewer))
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, recordID := range recordIDs {
		rec, err := st.FindByID(context.Background(), recordID)
		require.NoError(t, err)
		assert.True(t, rec.IsLockedBy(reviewer))
	}
}

func mustBirthDate(t *testing.T) time.Time {
	t.Helper()
	bd, err := id.ParseBirthDate("1999-05-02")
	require.NoError(t, err)
	return bd
}

func requestNow() time.Time {
	return time.Now().UTC()
}
