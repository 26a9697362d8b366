package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"intake/internal/record/models"
	id "intake/pkg/domain"
	"intake/pkg/platform/sentinel"
	txcontext "intake/pkg/platform/tx"
)

// uniqueViolation is the SQLSTATE of a unique constraint failure.
const uniqueViolation = "23505"

// PostgresStore persists records in PostgreSQL. It reads the transaction
// from the context, so ForUpdate queries lock rows only when called inside
// a transaction runner.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `id, retrieval_token, email, email_verified, birth_date, status,
	assigned_reviewer_id, locked_by_reviewer_id, locked_at,
	created_at, updated_at, submitted_at, submit_ip`

func (s *PostgresStore) FindByID(ctx context.Context, recordID id.RecordID) (*models.Record, error) {
	return s.findOne(ctx, `SELECT `+recordColumns+` FROM applications WHERE id = $1`, uuid.UUID(recordID))
}

func (s *PostgresStore) FindByIDForUpdate(ctx context.Context, recordID id.RecordID) (*models.Record, error) {
	return s.findOne(ctx, `SELECT `+recordColumns+` FROM applications WHERE id = $1 FOR UPDATE`, uuid.UUID(recordID))
}

func (s *PostgresStore) FindByToken(ctx context.Context, token id.RetrievalToken) (*models.Record, error) {
	return s.findOne(ctx, `SELECT `+recordColumns+` FROM applications WHERE retrieval_token = $1`, token.String())
}

func (s *PostgresStore) FindByTokenForUpdate(ctx context.Context, token id.RetrievalToken) (*models.Record, error) {
	return s.findOne(ctx, `SELECT `+recordColumns+` FROM applications WHERE retrieval_token = $1 FOR UPDATE`, token.String())
}

func (s *PostgresStore) ListVerifiedByEmail(ctx context.Context, email string) ([]*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM applications
		WHERE email_verified AND lower(email) = lower($1)
		ORDER BY created_at ASC`
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("list records by email: %w", err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Insert(ctx context.Context, record *models.Record) error {
	query := `INSERT INTO applications (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query, recordArgs(record)...)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// Update rewrites every mutable column. The retrieval token is part of the
// predicate so it can never change.
func (s *PostgresStore) Update(ctx context.Context, record *models.Record) error {
	query := `UPDATE applications SET
			email = $3, email_verified = $4, birth_date = $5, status = $6,
			assigned_reviewer_id = $7, locked_by_reviewer_id = $8, locked_at = $9,
			updated_at = $10, submitted_at = $11, submit_ip = $12
		WHERE id = $1 AND retrieval_token = $2`
	args := recordArgs(record)
	// drop created_at, which never changes
	args = append(args[:9:9], args[10:]...)
	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update record rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// DeleteMany must run inside a transaction: it locks every listed row and
// deletes only when all of them exist. Dependent rows go by cascade.
func (s *PostgresStore) DeleteMany(ctx context.Context, recordIDs []id.RecordID) error {
	exec := txcontext.ExecutorFrom(ctx, s.db)
	ids := make([]string, 0, len(recordIDs))
	for _, recordID := range recordIDs {
		ids = append(ids, recordID.String())
	}

	var locked int
	err := exec.QueryRowContext(ctx,
		`SELECT count(*) FROM (SELECT id FROM applications WHERE id = ANY($1::uuid[]) ORDER BY id FOR UPDATE) locked`,
		pq.Array(ids),
	).Scan(&locked)
	if err != nil {
		return fmt.Errorf("lock records for delete: %w", err)
	}
	if locked != len(ids) {
		return sentinel.ErrNotFound
	}

	if _, err := exec.ExecContext(ctx, `DELETE FROM applications WHERE id = ANY($1::uuid[])`, pq.Array(ids)); err != nil {
		return fmt.Errorf("delete records: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveSection(ctx context.Context, data models.SectionData) error {
	query := `INSERT INTO record_sections (record_id, section, payload, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (record_id, section) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(data.RecordID), string(data.Section), string(data.Payload), data.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save section: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSections(ctx context.Context, recordID id.RecordID) ([]models.SectionData, error) {
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx,
		`SELECT section, payload, updated_at FROM record_sections WHERE record_id = $1 ORDER BY section`,
		uuid.UUID(recordID))
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	var out []models.SectionData
	for rows.Next() {
		data := models.SectionData{RecordID: recordID}
		var section string
		var payload []byte
		if err := rows.Scan(&section, &payload, &data.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		data.Section = models.Section(section)
		data.Payload = payload
		out = append(out, data)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sections: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) AddUpload(ctx context.Context, upload models.Upload) error {
	query := `INSERT INTO record_uploads (id, record_id, file_name, mime_type, size_bytes, storage_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		upload.ID, uuid.UUID(upload.RecordID), upload.FileName, upload.MimeType,
		upload.SizeBytes, upload.StorageKey, upload.CreatedAt)
	if err != nil {
		return fmt.Errorf("add upload: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListUploads(ctx context.Context, recordID id.RecordID) ([]models.Upload, error) {
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx,
		`SELECT id, file_name, mime_type, size_bytes, storage_key, created_at
		 FROM record_uploads WHERE record_id = $1 ORDER BY created_at, id`,
		uuid.UUID(recordID))
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	var out []models.Upload
	for rows.Next() {
		upload := models.Upload{RecordID: recordID}
		if err := rows.Scan(&upload.ID, &upload.FileName, &upload.MimeType,
			&upload.SizeBytes, &upload.StorageKey, &upload.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		out = append(out, upload)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate uploads: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (*models.Record, error) {
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("find record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("find record: %w", err)
		}
		return nil, sentinel.ErrNotFound
	}
	return scanRecord(rows)
}

func scanRecord(rows *sql.Rows) (*models.Record, error) {
	var (
		rec         models.Record
		recordID    uuid.UUID
		token       string
		status      string
		birthDate   sql.NullTime
		assigned    uuid.NullUUID
		lockedBy    uuid.NullUUID
		lockedAt    sql.NullTime
		submittedAt sql.NullTime
		submitIP    []byte
	)
	err := rows.Scan(
		&recordID,
		&token,
		&rec.Email,
		&rec.EmailVerified,
		&birthDate,
		&status,
		&assigned,
		&lockedBy,
		&lockedAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&submittedAt,
		&submitIP,
	)
	if err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}

	rec.ID = id.RecordID(recordID)
	rec.RetrievalToken = id.RetrievalToken(token)
	rec.Status = models.Status(status)
	rec.BirthDate = nullTimePtr(birthDate)
	if assigned.Valid {
		r := id.ReviewerID(assigned.UUID)
		rec.AssignedReviewerID = &r
	}
	if lockedBy.Valid {
		r := id.ReviewerID(lockedBy.UUID)
		rec.LockedByReviewerID = &r
	}
	rec.LockedAt = nullTimePtr(lockedAt)
	rec.SubmittedAt = nullTimePtr(submittedAt)
	if len(submitIP) > 0 {
		rec.SubmitIP = submitIP
	}
	return &rec, nil
}

func recordArgs(r *models.Record) []any {
	var birthDate any
	if r.BirthDate != nil {
		birthDate = r.BirthDate.Format("2006-01-02")
	}
	var submitIP any
	if len(r.SubmitIP) > 0 {
		submitIP = r.SubmitIP
	}
	return []any{
		uuid.UUID(r.ID),
		r.RetrievalToken.String(),
		r.Email,
		r.EmailVerified,
		birthDate,
		string(r.Status),
		reviewerArg(r.AssignedReviewerID),
		reviewerArg(r.LockedByReviewerID),
		timeArg(r.LockedAt),
		r.CreatedAt,
		r.UpdatedAt,
		timeArg(r.SubmittedAt),
		submitIP,
	}
}

func reviewerArg(r *id.ReviewerID) any {
	if r == nil {
		return nil
	}
	return uuid.UUID(*r)
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
