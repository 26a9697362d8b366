package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	id "intake/pkg/domain"
	audit "intake/pkg/platform/audit"
	txcontext "intake/pkg/platform/tx"
)

// Store appends to the audit_events table. When a record transaction is
// carried by the context, the insert runs inside it under a savepoint so a
// failed append is rolled back alone and never poisons the transition.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const insertEvent = `
	INSERT INTO audit_events (record_id, kind, actor_kind, actor_reviewer_id, metadata, request_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// Append writes one event.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	var reviewerID *uuid.UUID
	if event.Actor.ReviewerID != nil {
		rid := uuid.UUID(*event.Actor.ReviewerID)
		reviewerID = &rid
	}
	args := []any{
		uuid.UUID(event.RecordID),
		string(event.Kind),
		string(event.Actor.Kind),
		reviewerID,
		string(metadata),
		event.RequestID,
		event.CreatedAt,
	}

	tx, ok := txcontext.From(ctx)
	if !ok {
		if _, err := s.db.ExecContext(ctx, insertEvent, args...); err != nil {
			return fmt.Errorf("insert audit event: %w", err)
		}
		return nil
	}

	if _, err := tx.ExecContext(ctx, "SAVEPOINT audit_append"); err != nil {
		return fmt.Errorf("audit savepoint: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insertEvent, args...); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT audit_append"); rbErr != nil {
			return fmt.Errorf("insert audit event: %w (rollback to savepoint: %v)", err, rbErr)
		}
		return fmt.Errorf("insert audit event: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT audit_append"); err != nil {
		return fmt.Errorf("release audit savepoint: %w", err)
	}
	return nil
}

// ListByRecord returns the trail of one record in insert order.
func (s *Store) ListByRecord(ctx context.Context, recordID id.RecordID) ([]audit.Event, error) {
	query := `
		SELECT seq, record_id, kind, actor_kind, actor_reviewer_id, metadata, request_id, created_at
		FROM audit_events
		WHERE record_id = $1
		ORDER BY seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(recordID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			event      audit.Event
			recordID   uuid.UUID
			kind       string
			actorKind  string
			reviewerID uuid.NullUUID
			metadata   []byte
		)
		if err := rows.Scan(
			&event.Seq,
			&recordID,
			&kind,
			&actorKind,
			&reviewerID,
			&metadata,
			&event.RequestID,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		event.RecordID = id.RecordID(recordID)
		event.Kind = audit.Kind(kind)
		event.Actor.Kind = audit.ActorKind(actorKind)
		if reviewerID.Valid {
			rid := id.ReviewerID(reviewerID.UUID)
			event.Actor.ReviewerID = &rid
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
