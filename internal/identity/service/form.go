package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"intake/internal/identity/models"
	recordmodels "intake/internal/record/models"
	recordservice "intake/internal/record/service"
	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
	audit "intake/pkg/platform/audit"
	"intake/pkg/requestcontext"
)

// maxSectionBytes caps one section payload.
const maxSectionBytes = 64 << 10

// FormData is everything the applicant has entered for a record.
type FormData struct {
	Record   *recordmodels.Record
	Sections []recordmodels.SectionData
	Uploads  []recordmodels.Upload
}

// SaveSection replaces one form section of the session's draft.
func (s *Service) SaveSection(ctx context.Context, sessionID id.SessionID, section recordmodels.Section, payload json.RawMessage) error {
	if len(payload) > maxSectionBytes {
		return dErrors.New(dErrors.CodeValidation, "section payload too large")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil || obj == nil {
		return dErrors.New(dErrors.CodeValidation, "section payload must be a JSON object")
	}

	return s.editDraft(ctx, sessionID, func(ctx context.Context, store recordservice.Store, rec *recordmodels.Record) error {
		now := requestcontext.Now(ctx)
		if err := store.SaveSection(ctx, recordmodels.SectionData{
			RecordID:  rec.ID,
			Section:   section,
			Payload:   payload,
			UpdatedAt: now,
		}); err != nil {
			return recordErr(err, "record not found")
		}
		s.audit.Record(ctx, rec.ID, audit.KindDraftUpdated, recordmodels.Applicant(rec.RetrievalToken).Audit(), map[string]string{
			"section": string(section),
		})
		return nil
	})
}

// AttachUpload records the metadata of an attachment already written to
// storage.
func (s *Service) AttachUpload(ctx context.Context, sessionID id.SessionID, upload recordmodels.Upload) (*recordmodels.Upload, error) {
	upload.ID = uuid.New()
	if err := upload.Validate(); err != nil {
		return nil, err
	}

	err := s.editDraft(ctx, sessionID, func(ctx context.Context, store recordservice.Store, rec *recordmodels.Record) error {
		upload.RecordID = rec.ID
		upload.CreatedAt = requestcontext.Now(ctx)
		if err := store.AddUpload(ctx, upload); err != nil {
			return recordErr(err, "record not found")
		}
		s.audit.Record(ctx, rec.ID, audit.KindDraftUpdated, recordmodels.Applicant(rec.RetrievalToken).Audit(), map[string]string{
			"upload": upload.ID.String(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &upload, nil
}

// Form returns the bound record with its sections and uploads.
func (s *Service) Form(ctx context.Context, sessionID id.SessionID) (*FormData, error) {
	rec, err := s.CurrentRecord(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sections, err := s.records.ListSections(ctx, rec.ID)
	if err != nil {
		return nil, recordErr(err, "record not found")
	}
	uploads, err := s.records.ListUploads(ctx, rec.ID)
	if err != nil {
		return nil, recordErr(err, "record not found")
	}
	return &FormData{Record: rec, Sections: sections, Uploads: uploads}, nil
}

// Submit hands the bound draft to the lifecycle engine. The session turns
// read-only on success.
func (s *Service) Submit(ctx context.Context, sessionID id.SessionID) (*recordmodels.Record, error) {
	sess, recordID, err := s.boundRecord(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rec, err := s.engine.Submit(ctx, recordID, recordmodels.Applicant(sess.Token))
	if err != nil {
		return nil, err
	}
	s.markReadOnly(ctx, sessionID)
	return rec, nil
}

// Withdraw withdraws the bound record on the applicant's behalf.
func (s *Service) Withdraw(ctx context.Context, sessionID id.SessionID) (*recordmodels.Record, error) {
	sess, recordID, err := s.boundRecord(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rec, err := s.engine.Withdraw(ctx, recordID, recordmodels.Applicant(sess.Token))
	if err != nil {
		return nil, err
	}
	s.markReadOnly(ctx, sessionID)
	return rec, nil
}

// markReadOnly is best effort; the record state is already committed.
func (s *Service) markReadOnly(ctx context.Context, sessionID id.SessionID) {
	if _, err := s.update(ctx, sessionID, func(w *models.Session) {
		w.ReadOnly = true
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to mark session read-only",
			"session_id", sessionID.String(),
			"error", err,
		)
	}
}

// editDraft runs fn in a transaction on the session's record after checking
// it is still an editable draft owned by the session token.
func (s *Service) editDraft(ctx context.Context, sessionID id.SessionID, fn func(ctx context.Context, store recordservice.Store, rec *recordmodels.Record) error) (err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("edit_draft", start, err) }()

	sess, recordID, err := s.boundRecord(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.ReadOnly {
		return dErrors.New(dErrors.CodeInvalidState, "record is read-only")
	}
	return s.tx.RunInTx(ctx, []string{recordservice.TxKey(recordID)}, func(ctx context.Context, store recordservice.Store) error {
		rec, err := store.FindByIDForUpdate(ctx, recordID)
		if err != nil {
			return recordErr(err, "record not found")
		}
		if rec.RetrievalToken != sess.Token {
			return dErrors.New(dErrors.CodeForbidden, "token does not own this record")
		}
		if !rec.IsApplicantEditable() {
			return dErrors.New(dErrors.CodeInvalidState, "record is no longer editable")
		}
		return fn(ctx, store, rec)
	})
}
