package service

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "intake/pkg/domain-errors"
	txcontext "intake/pkg/platform/tx"
)

func TestPostgresTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	runner := NewPostgresTx(db, nil)

	t.Run("commits and exposes the transaction", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectCommit()

		err := runner.RunInTx(context.Background(), nil, func(ctx context.Context, _ Store) error {
			_, ok := txcontext.From(ctx)
			assert.True(t, ok)
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			return nil
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back and returns the callback error", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		want := dErrors.New(dErrors.CodeConflict, "nope")
		err := runner.RunInTx(context.Background(), nil, func(context.Context, Store) error { return want })
		assert.Same(t, want, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("commit failure is internal", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("connection reset"))

		err := runner.RunInTx(context.Background(), nil, func(context.Context, Store) error { return nil })
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})

	t.Run("cancelled context never begins", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := runner.RunInTx(ctx, nil, func(context.Context, Store) error { return nil })
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
