package service

import (
	"context"
	"database/sql"
	"time"

	dErrors "intake/pkg/domain-errors"
	txcontext "intake/pkg/platform/tx"
)

// PostgresTx runs each engine transaction in one database transaction. Row
// locks come from the store's FOR UPDATE reads, so keys are not needed here.
type PostgresTx struct {
	db      *sql.DB
	store   Store
	timeout time.Duration
}

// NewPostgresTx wraps a store whose queries honor the transaction carried in
// the context (see pkg/platform/tx).
func NewPostgresTx(db *sql.DB, store Store) *PostgresTx {
	return &PostgresTx{db: db, store: store, timeout: defaultRecordTxTimeout}
}

func (t *PostgresTx) RunInTx(ctx context.Context, _ []string, fn func(ctx context.Context, store Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultRecordTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx), t.store); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit transaction")
	}
	return nil
}
