package service

import (
	"context"
	"time"

	"intake/internal/identity/models"
	recordmodels "intake/internal/record/models"
	recordservice "intake/internal/record/service"
	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
	"intake/pkg/email"
	audit "intake/pkg/platform/audit"
	"intake/pkg/requestcontext"
	"intake/pkg/secrets"
)

// StartEmailChallenge replaces any pending challenge with a fresh code and
// mails it. The challenge is kept when delivery fails so the applicant can
// ask for a resend.
func (s *Service) StartEmailChallenge(ctx context.Context, sessionID id.SessionID, rawEmail string) (err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("start_email_challenge", start, err) }()

	addr, err := email.Normalize(rawEmail)
	if err != nil {
		return err
	}
	code, err := s.newCode()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate code")
	}
	hash, err := secrets.HashCode(code, s.bcryptCost)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash code")
	}

	expiresAt := requestcontext.Now(ctx).Add(s.challengeTTL)
	if _, err := s.update(ctx, sessionID, func(w *models.Session) {
		w.Challenge = &models.Challenge{Email: addr, CodeHash: hash, ExpiresAt: expiresAt}
	}); err != nil {
		return err
	}

	if err := s.mailer.SendVerificationCode(ctx, addr, code); err != nil {
		s.metrics.IncrementChallenge("delivery_failed")
		s.logger.ErrorContext(ctx, "verification code delivery failed",
			"session_id", sessionID.String(),
			"email", email.Mask(addr),
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to send verification code")
	}
	s.metrics.IncrementChallenge("started")
	return nil
}

// VerifyEmailChallenge checks code against the pending challenge. Attempts
// are counted inside the session write so concurrent guesses cannot share a
// budget slot.
func (s *Service) VerifyEmailChallenge(ctx context.Context, sessionID id.SessionID, code string) (_ *models.VerifiedIdentity, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("verify_email_challenge", start, err) }()

	fresh, err := s.newToken()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate token")
	}
	now := requestcontext.Now(ctx)

	var verifyErr error
	sess, err := s.sessions.Execute(ctx, sessionID,
		func(cur *models.Session) error {
			switch {
			case cur.Challenge == nil:
				return dErrors.New(dErrors.CodeNotFound, "no pending verification")
			case cur.Challenge.IsExpired(now):
				return dErrors.New(dErrors.CodeExpired, "verification code expired")
			case cur.Challenge.Exhausted():
				return dErrors.New(dErrors.CodeTooManyAttempts, "too many attempts")
			}
			return nil
		},
		func(w *models.Session) {
			// Execute may run mutate again after a write conflict.
			verifyErr = secrets.VerifyCode(code, w.Challenge.CodeHash)
			if verifyErr != nil {
				if dErrors.HasCode(verifyErr, dErrors.CodeMismatch) {
					w.Challenge.Attempts++
				}
				return
			}
			w.VerifiedEmail = w.Challenge.Email
			w.Challenge = nil
			if w.Token.IsZero() {
				w.Token = fresh
			}
		},
	)
	if err != nil {
		s.countChallengeErr(err)
		return nil, sessionErr(err)
	}
	if verifyErr != nil {
		if dErrors.HasCode(verifyErr, dErrors.CodeMismatch) {
			s.metrics.IncrementChallenge("mismatch")
			return nil, verifyErr
		}
		s.metrics.IncrementChallenge("error")
		return nil, dErrors.Wrap(verifyErr, dErrors.CodeInternal, "failed to verify code")
	}
	s.metrics.IncrementChallenge("verified")

	if sess.RecordID != nil {
		if err := s.markVerified(ctx, *sess.RecordID, sess.Token, sess.VerifiedEmail); err != nil {
			s.logger.WarnContext(ctx, "failed to mark record email verified",
				"record_id", sess.RecordID.String(),
				"error", err,
			)
		}
	}
	return &models.VerifiedIdentity{Email: sess.VerifiedEmail, Token: sess.Token}, nil
}

// markVerified copies a verified email onto the session's draft record.
func (s *Service) markVerified(ctx context.Context, recordID id.RecordID, token id.RetrievalToken, addr string) error {
	return s.tx.RunInTx(ctx, []string{recordservice.TxKey(recordID)}, func(ctx context.Context, store recordservice.Store) error {
		rec, err := store.FindByIDForUpdate(ctx, recordID)
		if err != nil {
			return recordErr(err, "record not found")
		}
		if rec.RetrievalToken != token || !rec.IsApplicantEditable() {
			return nil
		}
		if rec.EmailVerified && rec.Email == addr {
			return nil
		}
		rec.Email = addr
		rec.EmailVerified = true
		rec.UpdatedAt = requestcontext.Now(ctx)
		if err := store.Update(ctx, rec); err != nil {
			return recordErr(err, "record not found")
		}
		s.audit.Record(ctx, recordID, audit.KindEmailVerified, recordmodels.Applicant(token).Audit(), map[string]string{
			"email": email.Mask(addr),
		})
		return nil
	})
}

func (s *Service) countChallengeErr(err error) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeExpired:
		s.metrics.IncrementChallenge("expired")
	case dErrors.CodeTooManyAttempts:
		s.metrics.IncrementChallenge("exhausted")
	case dErrors.CodeNotFound:
		s.metrics.IncrementChallenge("missing")
	}
}
