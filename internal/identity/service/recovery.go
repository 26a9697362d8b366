package service

import (
	"context"
	"errors"
	"time"

	"intake/internal/identity/models"
	recordmodels "intake/internal/record/models"
	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
	"intake/pkg/email"
	audit "intake/pkg/platform/audit"
	"intake/pkg/platform/sentinel"
)

// RecoverToken mails the retrieval token of every verified record matching
// the email and birth date. The result does not reveal whether anything
// matched.
func (s *Service) RecoverToken(ctx context.Context, rawEmail, rawBirthDate string) (_ bool, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("recover_token", start, err) }()

	addr, err := email.Normalize(rawEmail)
	if err != nil {
		return false, err
	}
	birthDate, err := id.ParseBirthDate(rawBirthDate)
	if err != nil {
		return false, err
	}

	records, err := s.records.ListVerifiedByEmail(ctx, addr)
	if err != nil {
		return false, recordErr(err, "record not found")
	}

	sent := 0
	for _, rec := range records {
		if rec.BirthDate == nil || !id.SameDate(*rec.BirthDate, birthDate) {
			continue
		}
		if err := s.mailer.SendRetrievalToken(ctx, addr, rec.RetrievalToken); err != nil {
			s.logger.ErrorContext(ctx, "retrieval token delivery failed",
				"record_id", rec.ID.String(),
				"email", email.Mask(addr),
				"error", err,
			)
			continue
		}
		sent++
		s.audit.Record(ctx, rec.ID, audit.KindTokenRecoveryRequested, audit.Actor{Kind: audit.ActorSystem}, map[string]string{
			"email": email.Mask(addr),
		})
	}
	s.logger.InfoContext(ctx, "token recovery processed",
		"email", email.Mask(addr),
		"sent", sent,
	)
	return true, nil
}

// Login binds the session to the record identified by token and birth date.
// Either value being wrong is reported the same way.
func (s *Service) Login(ctx context.Context, sessionID id.SessionID, rawToken, rawBirthDate string) (_ *models.SessionGrant, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("login", start, err) }()

	token, err := id.ParseRetrievalToken(rawToken)
	if err != nil {
		return nil, err
	}
	birthDate, err := id.ParseBirthDate(rawBirthDate)
	if err != nil {
		return nil, err
	}
	if _, err := s.Session(ctx, sessionID); err != nil {
		return nil, err
	}

	rec, err := s.records.FindByToken(ctx, token)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "no record matches these credentials")
	}
	if err != nil {
		return nil, recordErr(err, "no record matches these credentials")
	}
	if rec.BirthDate == nil || !id.SameDate(*rec.BirthDate, birthDate) {
		return nil, dErrors.New(dErrors.CodeNotFound, "no record matches these credentials")
	}
	return s.bind(ctx, sessionID, rec, "token")
}

// CurrentRecord returns the record the session is bound to.
func (s *Service) CurrentRecord(ctx context.Context, sessionID id.SessionID) (*recordmodels.Record, error) {
	_, recordID, err := s.boundRecord(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rec, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		return nil, recordErr(err, "record not found")
	}
	return rec, nil
}
