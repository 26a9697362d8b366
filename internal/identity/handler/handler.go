// Package handler exposes the applicant flow over a cookie-addressed session.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"intake/internal/identity/models"
	"intake/internal/identity/service"
	ratelimit "intake/internal/ratelimit/models"
	recordmodels "intake/internal/record/models"
	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
	"intake/pkg/platform/httputil"
	"intake/pkg/requestcontext"
)

// SessionCookie names the cookie carrying the applicant session id.
const SessionCookie = "intake_session"

// Service is the identity service as seen by the applicant surface.
type Service interface {
	StartSession(ctx context.Context) (*models.Session, error)
	Session(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	SessionTTL() time.Duration
	Logout(ctx context.Context, sessionID id.SessionID) error
	IssueNoEmailIdentity(ctx context.Context, sessionID id.SessionID) (id.RetrievalToken, error)
	SaveDraft(ctx context.Context, sessionID id.SessionID, birthDate, email string) (id.RecordID, error)
	StartEmailChallenge(ctx context.Context, sessionID id.SessionID, email string) error
	VerifyEmailChallenge(ctx context.Context, sessionID id.SessionID, code string) (*models.VerifiedIdentity, error)
	RecoverToken(ctx context.Context, email, birthDate string) (bool, error)
	Login(ctx context.Context, sessionID id.SessionID, token, birthDate string) (*models.SessionGrant, error)
	ListOwnedRecords(ctx context.Context, sessionID id.SessionID) ([]*recordmodels.Record, error)
	StartAdditionalRecord(ctx context.Context, sessionID id.SessionID) (id.RetrievalToken, error)
	OpenOwnedRecord(ctx context.Context, sessionID id.SessionID, recordID id.RecordID) (*models.SessionGrant, error)
	SaveSection(ctx context.Context, sessionID id.SessionID, section recordmodels.Section, payload json.RawMessage) error
	AttachUpload(ctx context.Context, sessionID id.SessionID, upload recordmodels.Upload) (*recordmodels.Upload, error)
	Form(ctx context.Context, sessionID id.SessionID) (*service.FormData, error)
	Submit(ctx context.Context, sessionID id.SessionID) (*recordmodels.Record, error)
	Withdraw(ctx context.Context, sessionID id.SessionID) (*recordmodels.Record, error)
}

// RateLimiter builds per-class throttling middleware.
type RateLimiter interface {
	RateLimit(class ratelimit.EndpointClass) func(http.Handler) http.Handler
}

type Handler struct {
	identity     Service
	logger       *slog.Logger
	secureCookie bool
	limiter      RateLimiter
}

type Option func(*Handler)

// WithRateLimiter throttles the applicant routes. Credential checks get the
// stricter class.
func WithRateLimiter(limiter RateLimiter) Option {
	return func(h *Handler) {
		h.limiter = limiter
	}
}

func New(identity Service, logger *slog.Logger, secureCookie bool, opts ...Option) *Handler {
	h := &Handler{identity: identity, logger: logger, secureCookie: secureCookie}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the applicant routes behind the session middleware.
func (h *Handler) Register(r chi.Router) {
	r.Route("/applicant", func(r chi.Router) {
		r.Use(h.throttle(ratelimit.ClassApplicant))
		r.Use(h.RequireSession)
		r.Get("/session", h.handleSession)
		r.Post("/identity", h.handleIssueIdentity)
		r.Post("/draft", h.handleSaveDraft)
		r.With(h.throttle(ratelimit.ClassCredential)).Post("/email/challenge", h.handleStartChallenge)
		r.With(h.throttle(ratelimit.ClassCredential)).Post("/email/verify", h.handleVerifyChallenge)
		r.With(h.throttle(ratelimit.ClassCredential)).Post("/recover", h.handleRecover)
		r.With(h.throttle(ratelimit.ClassCredential)).Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)
		r.Post("/submit", h.handleSubmit)
		r.Post("/withdraw", h.handleWithdraw)
		r.Get("/records", h.handleListRecords)
		r.Post("/records/new", h.handleNewRecord)
		r.Post("/records/{id}/open", h.handleOpenRecord)
		r.Put("/sections/{section}", h.handleSaveSection)
		r.Post("/uploads", h.handleUpload)
	})
}

func (h *Handler) throttle(class ratelimit.EndpointClass) func(http.Handler) http.Handler {
	if h.limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return h.limiter.RateLimit(class)
}

// RequireSession resolves the session cookie, starting a new session when
// the cookie is missing, malformed or points at an expired session.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sessionID, ok, err := h.resume(ctx, r)
		if err != nil {
			h.writeError(ctx, w, err, "session lookup failed")
			return
		}
		if ok {
			next.ServeHTTP(w, r.WithContext(requestcontext.WithSessionID(ctx, sessionID)))
			return
		}

		sess, err := h.identity.StartSession(ctx)
		if err != nil {
			h.writeError(ctx, w, err, "start session failed")
			return
		}
		h.setCookie(w, sess.ID.String(), int(h.identity.SessionTTL().Seconds()))
		next.ServeHTTP(w, r.WithContext(requestcontext.WithSessionID(ctx, sess.ID)))
	})
}

// resume reports whether the request carries a live session. Only store
// failures are errors; unknown and expired sessions are replaced.
func (h *Handler) resume(ctx context.Context, r *http.Request) (id.SessionID, bool, error) {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return id.SessionID{}, false, nil
	}
	sessionID, err := id.ParseSessionID(c.Value)
	if err != nil {
		return id.SessionID{}, false, nil
	}
	if _, err := h.identity.Session(ctx, sessionID); err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			return id.SessionID{}, false, nil
		}
		return id.SessionID{}, false, err
	}
	return sessionID, true, nil
}

func (h *Handler) setCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/applicant",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := sessionFrom(ctx)
	sess, err := h.identity.Session(ctx, sessionID)
	if err != nil {
		h.writeError(ctx, w, err, "load session failed")
		return
	}
	var form *service.FormData
	if sess.RecordID != nil {
		if form, err = h.identity.Form(ctx, sessionID); err != nil {
			h.writeError(ctx, w, err, "load form failed")
			return
		}
	}
	httputil.WriteOK(w, map[string]any{"session": toSessionResponse(sess, form)})
}

func (h *Handler) handleIssueIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token, err := h.identity.IssueNoEmailIdentity(ctx, sessionFrom(ctx))
	if err != nil {
		h.writeError(ctx, w, err, "issue identity failed")
		return
	}
	httputil.WriteOK(w, map[string]any{"token": token.String()})
}

func (h *Handler) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req DraftRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid draft request")
		return
	}
	recordID, err := h.identity.SaveDraft(ctx, sessionFrom(ctx), req.BirthDate, req.Email)
	if err != nil {
		h.writeError(ctx, w, err, "save draft failed")
		return
	}
	httputil.WriteOK(w, map[string]any{"record_id": recordID.String()})
}

func (h *Handler) handleStartChallenge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ChallengeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid challenge request")
		return
	}
	if err := h.identity.StartEmailChallenge(ctx, sessionFrom(ctx), req.Email); err != nil {
		h.writeError(ctx, w, err, "start email challenge failed")
		return
	}
	httputil.WriteOK(w, nil)
}

func (h *Handler) handleVerifyChallenge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req VerifyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid verify request")
		return
	}
	verified, err := h.identity.VerifyEmailChallenge(ctx, sessionFrom(ctx), req.Code)
	if err != nil {
		h.writeError(ctx, w, err, "verify email challenge failed")
		return
	}
	httputil.WriteOK(w, map[string]any{
		"email": verified.Email,
		"token": verified.Token.String(),
	})
}

func (h *Handler) handleRecover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req RecoverRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid recover request")
		return
	}
	if _, err := h.identity.RecoverToken(ctx, req.Email, req.BirthDate); err != nil {
		h.writeError(ctx, w, err, "token recovery failed")
		return
	}
	httputil.WriteOK(w, nil)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid login request")
		return
	}
	grant, err := h.identity.Login(ctx, sessionFrom(ctx), req.Token, req.BirthDate)
	if err != nil {
		h.writeError(ctx, w, err, "applicant login failed")
		return
	}
	httputil.WriteOK(w, map[string]any{"grant": toGrantResponse(grant)})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.identity.Logout(ctx, sessionFrom(ctx)); err != nil {
		h.writeError(ctx, w, err, "logout failed")
		return
	}
	h.setCookie(w, "", -1)
	httputil.WriteOK(w, nil)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec, err := h.identity.Submit(ctx, sessionFrom(ctx))
	if err != nil {
		h.writeError(ctx, w, err, "submit failed")
		return
	}
	httputil.WriteOK(w, map[string]any{"record": toRecordSummary(rec)})
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec, err := h.identity.Withdraw(ctx, sessionFrom(ctx))
	if err != nil {
		h.writeError(ctx, w, err, "withdraw failed")
		return
	}
	httputil.WriteOK(w, map[string]any{"record": toRecordSummary(rec)})
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	records, err := h.identity.ListOwnedRecords(ctx, sessionFrom(ctx))
	if err != nil {
		h.writeError(ctx, w, err, "list records failed")
		return
	}
	out := make([]RecordSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, toRecordSummary(rec))
	}
	httputil.WriteOK(w, map[string]any{"records": out})
}

func (h *Handler) handleNewRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token, err := h.identity.StartAdditionalRecord(ctx, sessionFrom(ctx))
	if err != nil {
		h.writeError(ctx, w, err, "start additional record failed")
		return
	}
	httputil.WriteOK(w, map[string]any{"token": token.String()})
}

func (h *Handler) handleOpenRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID, err := id.ParseRecordID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err, "invalid record id")
		return
	}
	grant, err := h.identity.OpenOwnedRecord(ctx, sessionFrom(ctx), recordID)
	if err != nil {
		h.writeError(ctx, w, err, "open record failed", "record_id", recordID.String())
		return
	}
	httputil.WriteOK(w, map[string]any{"grant": toGrantResponse(grant)})
}

func (h *Handler) handleSaveSection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	section, err := recordmodels.ParseSection(chi.URLParam(r, "section"))
	if err != nil {
		h.writeError(ctx, w, err, "invalid section")
		return
	}
	var payload json.RawMessage
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		h.writeError(ctx, w, err, "invalid section payload")
		return
	}
	if err := h.identity.SaveSection(ctx, sessionFrom(ctx), section, payload); err != nil {
		h.writeError(ctx, w, err, "save section failed", "section", string(section))
		return
	}
	httputil.WriteOK(w, nil)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req UploadRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid upload request")
		return
	}
	upload, err := h.identity.AttachUpload(ctx, sessionFrom(ctx), req.toUpload())
	if err != nil {
		h.writeError(ctx, w, err, "attach upload failed")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"ok":     true,
		"upload": toUploadResponse(*upload),
	})
}

// sessionFrom returns the session set by RequireSession. A zero id makes the
// service answer Unauthorized.
func sessionFrom(ctx context.Context) id.SessionID {
	sessionID, _ := requestcontext.SessionID(ctx)
	return sessionID
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, msg string, attrs ...any) {
	attrs = append(attrs, "error", err.Error(), "request_id", requestcontext.RequestID(ctx))
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
