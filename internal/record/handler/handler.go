package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"intake/internal/record/models"
	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
	audit "intake/pkg/platform/audit"
	"intake/pkg/platform/httputil"
	platformstrings "intake/pkg/platform/strings"
	"intake/pkg/requestcontext"
)

// Service is the lifecycle and locking engine as seen by the adapters.
type Service interface {
	Assign(ctx context.Context, recordID id.RecordID, target *id.ReviewerID, actor models.Actor) (*models.Record, error)
	Lock(ctx context.Context, recordID id.RecordID, actor models.Actor) (*models.Record, error)
	Unlock(ctx context.Context, recordID id.RecordID, actor models.Actor) (*models.Record, error)
	Withdraw(ctx context.Context, recordID id.RecordID, actor models.Actor) (*models.Record, error)
	BulkDelete(ctx context.Context, recordIDs []id.RecordID, actor models.Actor) (int, error)
	Get(ctx context.Context, recordID id.RecordID, actor models.Actor) (*models.Record, error)
	Events(ctx context.Context, recordID id.RecordID, actor models.Actor) ([]audit.Event, error)
}

// Handler exposes the engine to reviewer clients and the admin console.
// Authentication is applied by the router that mounts each surface.
type Handler struct {
	records Service
	logger  *slog.Logger
}

func New(records Service, logger *slog.Logger) *Handler {
	return &Handler{records: records, logger: logger}
}

// RegisterReviewer mounts the bearer-authenticated reviewer API.
func (h *Handler) RegisterReviewer(r chi.Router) {
	r.Post("/api/v1/records/action", h.handleReviewerAction)
	r.Get("/api/v1/records/{id}", h.handleReviewerGet)
}

// RegisterAdmin mounts the admin console record routes.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/records/bulk-delete", h.handleBulkDelete)
	r.Get("/admin/records/{id}", h.handleAdminGet)
	r.Get("/admin/records/{id}/events", h.handleAdminEvents)
	r.Post("/admin/records/{id}/assign", h.handleAdminAssign)
	r.Post("/admin/records/{id}/lock", h.adminTransition("lock", h.records.Lock))
	r.Post("/admin/records/{id}/unlock", h.adminTransition("unlock", h.records.Unlock))
	r.Post("/admin/records/{id}/withdraw", h.adminTransition("withdraw", h.records.Withdraw))
}

func (h *Handler) handleReviewerAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reviewerID, ok := requestcontext.ReviewerID(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "reviewer missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	var req ActionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid reviewer action")
		return
	}
	req.Normalize()
	recordID, err := req.Validate()
	if err != nil {
		h.writeError(ctx, w, err, "invalid reviewer action")
		return
	}

	actor := models.Reviewer(reviewerID)
	var rec *models.Record
	switch req.Action {
	case ActionAssign:
		target, perr := parseTarget(req.AssignedBBSID)
		if perr != nil {
			h.writeError(ctx, w, perr, "invalid assignee")
			return
		}
		rec, err = h.records.Assign(ctx, recordID, target, actor)
	case ActionLock:
		rec, err = h.records.Lock(ctx, recordID, actor)
	case ActionUnlock:
		rec, err = h.records.Unlock(ctx, recordID, actor)
	}
	if err != nil {
		h.writeError(ctx, w, err, "reviewer action failed",
			"action", req.Action,
			"record_id", recordID.String(),
			"reviewer_id", reviewerID.String(),
		)
		return
	}
	httputil.WriteOK(w, map[string]any{"record": toRecordResponse(rec)})
}

func (h *Handler) handleReviewerGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reviewerID, ok := requestcontext.ReviewerID(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}
	recordID, err := id.ParseRecordID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err, "invalid record id")
		return
	}
	rec, err := h.records.Get(ctx, recordID, models.Reviewer(reviewerID))
	if err != nil {
		h.writeError(ctx, w, err, "failed to load record", "record_id", recordID.String())
		return
	}
	httputil.WriteOK(w, map[string]any{"record": toRecordResponse(rec)})
}

func (h *Handler) handleAdminAssign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID, err := id.ParseRecordID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err, "invalid record id")
		return
	}
	var req AssignRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid assign request")
		return
	}
	target, err := parseTarget(req.AssignedBBSID)
	if err != nil {
		h.writeError(ctx, w, err, "invalid assignee")
		return
	}
	rec, err := h.records.Assign(ctx, recordID, target, models.Admin())
	if err != nil {
		h.writeError(ctx, w, err, "admin assign failed", "record_id", recordID.String())
		return
	}
	httputil.WriteOK(w, map[string]any{"record": toAdminRecordResponse(rec)})
}

type transitionFunc func(ctx context.Context, recordID id.RecordID, actor models.Actor) (*models.Record, error)

// adminTransition builds the handler of a body-less admin console action.
func (h *Handler) adminTransition(name string, fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		recordID, err := id.ParseRecordID(chi.URLParam(r, "id"))
		if err != nil {
			h.writeError(ctx, w, err, "invalid record id")
			return
		}
		rec, err := fn(ctx, recordID, models.Admin())
		if err != nil {
			h.writeError(ctx, w, err, "admin "+name+" failed", "record_id", recordID.String())
			return
		}
		httputil.WriteOK(w, map[string]any{"record": toAdminRecordResponse(rec)})
	}
}

func (h *Handler) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req BulkDeleteRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid bulk delete request")
		return
	}
	raw := platformstrings.Dedupe(req.IDs, strings.ToLower)
	recordIDs := make([]id.RecordID, 0, len(raw))
	for _, s := range raw {
		recordID, err := id.ParseRecordID(s)
		if err != nil {
			h.writeError(ctx, w, err, "invalid record id in bulk delete")
			return
		}
		recordIDs = append(recordIDs, recordID)
	}
	deleted, err := h.records.BulkDelete(ctx, recordIDs, models.Admin())
	if err != nil {
		h.writeError(ctx, w, err, "bulk delete failed", "count", len(recordIDs))
		return
	}
	httputil.WriteOK(w, map[string]any{"deleted": deleted})
}

func (h *Handler) handleAdminGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID, err := id.ParseRecordID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err, "invalid record id")
		return
	}
	rec, err := h.records.Get(ctx, recordID, models.Admin())
	if err != nil {
		h.writeError(ctx, w, err, "failed to load record", "record_id", recordID.String())
		return
	}
	httputil.WriteOK(w, map[string]any{"record": toAdminRecordResponse(rec)})
}

func (h *Handler) handleAdminEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID, err := id.ParseRecordID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err, "invalid record id")
		return
	}
	events, err := h.records.Events(ctx, recordID, models.Admin())
	if err != nil {
		h.writeError(ctx, w, err, "failed to load audit trail", "record_id", recordID.String())
		return
	}
	httputil.WriteOK(w, map[string]any{"events": toEventResponses(events)})
}

// writeError logs internal failures with detail and client failures at warn
// level, then renders the envelope.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, msg string, attrs ...any) {
	attrs = append(attrs,
		"error", err.Error(),
		"request_id", requestcontext.RequestID(ctx),
	)
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
