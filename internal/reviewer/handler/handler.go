package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"intake/internal/reviewer/models"
	"intake/internal/reviewer/service"
	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
	"intake/pkg/platform/httputil"
	"intake/pkg/requestcontext"
)

// Service is the registry as seen by the admin console.
type Service interface {
	Create(ctx context.Context, shortLabel, displayName string) (*service.Issued, error)
	RotateToken(ctx context.Context, reviewerID id.ReviewerID) (*service.Issued, error)
	SetActive(ctx context.Context, reviewerID id.ReviewerID, active bool) (*models.Organization, error)
	List(ctx context.Context) ([]*models.Organization, error)
}

type Handler struct {
	registry Service
	logger   *slog.Logger
}

func New(registry Service, logger *slog.Logger) *Handler {
	return &Handler{registry: registry, logger: logger}
}

// Register mounts the registry routes. The caller applies the admin token
// middleware.
func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/reviewers", h.handleCreate)
	r.Get("/admin/reviewers", h.handleList)
	r.Post("/admin/reviewers/{id}/rotate-token", h.handleRotate)
	r.Post("/admin/reviewers/{id}/activate", h.handleSetActive(true))
	r.Post("/admin/reviewers/{id}/deactivate", h.handleSetActive(false))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CreateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid create reviewer request")
		return
	}
	issued, err := h.registry.Create(ctx, req.ShortLabel, req.DisplayName)
	if err != nil {
		h.writeError(ctx, w, err, "create reviewer failed")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"ok":           true,
		"organization": toOrganizationResponse(issued.Organization),
		"token":        issued.Token,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgs, err := h.registry.List(ctx)
	if err != nil {
		h.writeError(ctx, w, err, "list reviewers failed")
		return
	}
	out := make([]OrganizationResponse, 0, len(orgs))
	for _, org := range orgs {
		out = append(out, toOrganizationResponse(org))
	}
	httputil.WriteOK(w, map[string]any{"organizations": out})
}

func (h *Handler) handleRotate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reviewerID, err := id.ParseReviewerID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err, "invalid reviewer id")
		return
	}
	issued, err := h.registry.RotateToken(ctx, reviewerID)
	if err != nil {
		h.writeError(ctx, w, err, "rotate reviewer token failed", "reviewer_id", reviewerID.String())
		return
	}
	httputil.WriteOK(w, map[string]any{
		"organization": toOrganizationResponse(issued.Organization),
		"token":        issued.Token,
	})
}

func (h *Handler) handleSetActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		reviewerID, err := id.ParseReviewerID(chi.URLParam(r, "id"))
		if err != nil {
			h.writeError(ctx, w, err, "invalid reviewer id")
			return
		}
		org, err := h.registry.SetActive(ctx, reviewerID, active)
		if err != nil {
			h.writeError(ctx, w, err, "update reviewer status failed", "reviewer_id", reviewerID.String())
			return
		}
		httputil.WriteOK(w, map[string]any{"organization": toOrganizationResponse(org)})
	}
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
