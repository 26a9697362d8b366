package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"intake/internal/identity/models"
	recordmodels "intake/internal/record/models"
	recordservice "intake/internal/record/service"
	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
	"intake/pkg/email"
	audit "intake/pkg/platform/audit"
	"intake/pkg/platform/sentinel"
	"intake/pkg/requestcontext"
)

// IssueNoEmailIdentity gives the session a retrieval token. A session that
// already holds one keeps it.
func (s *Service) IssueNoEmailIdentity(ctx context.Context, sessionID id.SessionID) (id.RetrievalToken, error) {
	fresh, err := s.newToken()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate token")
	}
	sess, err := s.update(ctx, sessionID, func(w *models.Session) {
		if w.Token.IsZero() {
			w.Token = fresh
		}
	})
	if err != nil {
		return "", err
	}
	return sess.Token, nil
}

// SaveDraft persists the session's identity as a draft record and binds the
// session to it. A verified session email takes precedence over an
// unverified one typed into the form.
func (s *Service) SaveDraft(ctx context.Context, sessionID id.SessionID, birthDate, rawEmail string) (id.RecordID, error) {
	sess, err := s.Session(ctx, sessionID)
	if err != nil {
		return id.RecordID{}, err
	}
	if sess.Token.IsZero() {
		return id.RecordID{}, dErrors.New(dErrors.CodeInvalidState, "no identity issued for this session")
	}
	if sess.ReadOnly {
		return id.RecordID{}, dErrors.New(dErrors.CodeInvalidState, "record is read-only")
	}

	req := models.DraftRequest{Token: sess.Token, BirthDate: birthDate, Email: rawEmail}
	if sess.VerifiedEmail != "" && (strings.TrimSpace(rawEmail) == "" || strings.EqualFold(strings.TrimSpace(rawEmail), sess.VerifiedEmail)) {
		req.Email = sess.VerifiedEmail
		req.EmailVerified = true
	}
	recordID, err := s.EnsureDraft(ctx, req)
	if err != nil {
		return id.RecordID{}, err
	}
	if _, err := s.update(ctx, sessionID, func(w *models.Session) {
		w.BindRecord(recordID, req.Token, false)
	}); err != nil {
		return id.RecordID{}, err
	}
	return recordID, nil
}

// EnsureDraft finds the record owned by req.Token and updates it, or inserts
// a new draft, inside one transaction keyed by the token. A concurrent insert
// of the same token surfaces as a conflict and the transaction is retried,
// which then takes the update branch.
func (s *Service) EnsureDraft(ctx context.Context, req models.DraftRequest) (recordID id.RecordID, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("ensure_draft", start, err) }()

	if req.Token.IsZero() {
		return id.RecordID{}, dErrors.New(dErrors.CodeValidation, "token is required")
	}
	birthDate, err := id.ParseBirthDate(req.BirthDate)
	if err != nil {
		return id.RecordID{}, err
	}
	addr := ""
	if strings.TrimSpace(req.Email) != "" {
		if addr, err = email.Normalize(req.Email); err != nil {
			return id.RecordID{}, err
		}
	}
	verified := req.EmailVerified && addr != ""

	for attempt := 1; ; attempt++ {
		var created bool
		recordID, created, err = s.findOrCreateDraft(ctx, req.Token, birthDate, addr, verified)
		if errors.Is(err, sentinel.ErrConflict) && attempt < ensureDraftAttempts {
			continue
		}
		if err != nil {
			return id.RecordID{}, recordErr(err, "record not found")
		}
		if created {
			s.metrics.IncrementDraftsCreated()
		}
		return recordID, nil
	}
}

// ensureDraftAttempts covers one lost insert race; the retry always finds the
// winner's row.
const ensureDraftAttempts = 2

func (s *Service) findOrCreateDraft(ctx context.Context, token id.RetrievalToken, birthDate time.Time, addr string, verified bool) (recordID id.RecordID, created bool, err error) {
	err = s.tx.RunInTx(ctx, []string{recordservice.TokenTxKey(token)}, func(ctx context.Context, store recordservice.Store) error {
		existing, err := store.FindByTokenForUpdate(ctx, token)
		switch {
		case err == nil:
			recordID = existing.ID
			return s.applyDraft(ctx, store, existing, token, birthDate, addr, verified)
		case !errors.Is(err, sentinel.ErrNotFound):
			return err
		}

		rec, err := recordmodels.NewDraft(id.NewRecordID(), token, birthDate, addr, verified, requestcontext.Now(ctx))
		if err != nil {
			return err
		}
		if err := store.Insert(ctx, rec); err != nil {
			return err
		}
		s.audit.Record(ctx, rec.ID, audit.KindDraftCreated, recordmodels.Applicant(token).Audit(), map[string]string{
			"email_verified": boolString(rec.EmailVerified),
		})
		recordID, created = rec.ID, true
		return nil
	})
	return recordID, created, err
}

// applyDraft updates an existing draft row already locked by the caller.
func (s *Service) applyDraft(ctx context.Context, store recordservice.Store, rec *recordmodels.Record, token id.RetrievalToken, birthDate time.Time, addr string, verified bool) error {
	if rec.RetrievalToken != token {
		return dErrors.New(dErrors.CodeForbidden, "token does not own this record")
	}
	if !rec.IsApplicantEditable() {
		return dErrors.New(dErrors.CodeInvalidState, "record is no longer editable")
	}

	changed := []string{}
	if rec.BirthDate == nil || !id.SameDate(*rec.BirthDate, birthDate) {
		bd := birthDate
		rec.BirthDate = &bd
		changed = append(changed, "birth_date")
	}
	if addr != "" && addr != rec.Email {
		rec.Email = addr
		rec.EmailVerified = verified
		changed = append(changed, "email")
	} else if addr != "" && verified && !rec.EmailVerified {
		rec.EmailVerified = true
		changed = append(changed, "email_verified")
	}
	if len(changed) == 0 {
		return nil
	}

	rec.UpdatedAt = requestcontext.Now(ctx)
	if err := store.Update(ctx, rec); err != nil {
		return err
	}
	s.audit.Record(ctx, rec.ID, audit.KindDraftUpdated, recordmodels.Applicant(token).Audit(), map[string]string{
		"fields": strings.Join(changed, ","),
	})
	return nil
}

// StartAdditionalRecord gives a verified session a fresh token so the same
// email can own another application. The draft is created by the next
// SaveDraft.
func (s *Service) StartAdditionalRecord(ctx context.Context, sessionID id.SessionID) (id.RetrievalToken, error) {
	sess, err := s.Session(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if sess.VerifiedEmail == "" {
		return "", dErrors.New(dErrors.CodeForbidden, "a verified email is required")
	}
	fresh, err := s.newToken()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate token")
	}
	if _, err := s.update(ctx, sessionID, func(w *models.Session) {
		w.Token = fresh
		w.RecordID = nil
		w.ReadOnly = false
	}); err != nil {
		return "", err
	}
	return fresh, nil
}

// ListOwnedRecords lists the records registered under the session's
// verified email.
func (s *Service) ListOwnedRecords(ctx context.Context, sessionID id.SessionID) ([]*recordmodels.Record, error) {
	sess, err := s.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.VerifiedEmail == "" {
		return nil, dErrors.New(dErrors.CodeForbidden, "a verified email is required")
	}
	records, err := s.records.ListVerifiedByEmail(ctx, sess.VerifiedEmail)
	if err != nil {
		return nil, recordErr(err, "record not found")
	}
	return records, nil
}

// OpenOwnedRecord binds a verified session to one of its records.
func (s *Service) OpenOwnedRecord(ctx context.Context, sessionID id.SessionID, recordID id.RecordID) (*models.SessionGrant, error) {
	sess, err := s.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.VerifiedEmail == "" {
		return nil, dErrors.New(dErrors.CodeForbidden, "a verified email is required")
	}
	rec, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		return nil, recordErr(err, "record not found")
	}
	if !rec.EmailVerified || !strings.EqualFold(rec.Email, sess.VerifiedEmail) {
		return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
	}
	return s.bind(ctx, sessionID, rec, "email")
}

func (s *Service) bind(ctx context.Context, sessionID id.SessionID, rec *recordmodels.Record, method string) (*models.SessionGrant, error) {
	readOnly := rec.Status != recordmodels.StatusDraft
	if _, err := s.update(ctx, sessionID, func(w *models.Session) {
		w.BindRecord(rec.ID, rec.RetrievalToken, readOnly)
	}); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, rec.ID, audit.KindApplicantLogin, recordmodels.Applicant(rec.RetrievalToken).Audit(), map[string]string{
		"method": method,
	})
	return &models.SessionGrant{RecordID: rec.ID, Status: rec.Status, ReadOnly: readOnly}, nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
