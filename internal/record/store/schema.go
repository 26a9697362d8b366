package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

// Schema is the DDL of every table the service owns. Statements are
// idempotent so it can be applied on each start.
//
//go:embed schema.sql
var Schema string

// Migrate applies Schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
