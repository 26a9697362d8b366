package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"intake/internal/reviewer/service"
	"intake/internal/reviewer/store"
	"intake/pkg/platform/middleware/admin"
	"intake/pkg/platform/middleware/auth"
	"intake/pkg/requestcontext"
)

const adminToken = "operator-secret"

func newRegistryRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := service.New(store.NewInMemory(), service.WithLogger(logger))

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(adminToken, logger))
		New(registry, logger).Register(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireReviewer(registry, logger))
		r.Get("/api/v1/whoami", func(w http.ResponseWriter, r *http.Request) {
			reviewerID, _ := requestcontext.ReviewerID(r.Context())
			_, _ = w.Write([]byte(reviewerID.String()))
		})
	})
	return r
}

func do(t *testing.T, router http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAdminTokenRequired(t *testing.T) {
	router := newRegistryRouter(t)
	rec := do(t, router, http.MethodGet, "/admin/reviewers", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when admin token missing, got %d", rec.Code)
	}
	rec = do(t, router, http.MethodGet, "/admin/reviewers", nil, map[string]string{admin.HeaderAdminToken: "guess"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong admin token, got %d", rec.Code)
	}
}

type issuedResponse struct {
	OK           bool                 `json:"ok"`
	Organization OrganizationResponse `json:"organization"`
	Token        string               `json:"token"`
}

func TestRegistryLifecycleViaHandlers(t *testing.T) {
	router := newRegistryRouter(t)
	adminHeaders := map[string]string{admin.HeaderAdminToken: adminToken}

	rec := do(t, router, http.MethodPost, "/admin/reviewers", CreateRequest{ShortLabel: "east", DisplayName: "East"}, adminHeaders)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating reviewer, got %d: %s", rec.Code, rec.Body.String())
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("token_hash")) {
		t.Fatalf("token hash must not be rendered")
	}
	var created issuedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.Token == "" || created.Organization.ID == "" {
		t.Fatalf("expected token and id in create response")
	}

	bearer := map[string]string{"Authorization": "Bearer " + created.Token}
	rec = do(t, router, http.MethodGet, "/api/v1/whoami", nil, bearer)
	if rec.Code != http.StatusOK || rec.Body.String() != created.Organization.ID {
		t.Fatalf("expected bearer to resolve to %s, got %d %q", created.Organization.ID, rec.Code, rec.Body.String())
	}

	rec = do(t, router, http.MethodPost, "/admin/reviewers", CreateRequest{ShortLabel: "east"}, adminHeaders)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate label, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodPost, "/admin/reviewers/"+created.Organization.ID+"/deactivate", nil, adminHeaders)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 deactivating, got %d", rec.Code)
	}
	rec = do(t, router, http.MethodGet, "/api/v1/whoami", nil, bearer)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for inactive organization, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodPost, "/admin/reviewers/"+created.Organization.ID+"/activate", nil, adminHeaders)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 activating, got %d", rec.Code)
	}
	rec = do(t, router, http.MethodPost, "/admin/reviewers/"+created.Organization.ID+"/rotate-token", nil, adminHeaders)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 rotating, got %d", rec.Code)
	}
	var rotated issuedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &rotated); err != nil {
		t.Fatalf("decode rotate response: %v", err)
	}
	rec = do(t, router, http.MethodGet, "/api/v1/whoami", nil, bearer)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected old token rejected after rotation, got %d", rec.Code)
	}
	rec = do(t, router, http.MethodGet, "/api/v1/whoami", nil, map[string]string{"Authorization": "Bearer " + rotated.Token})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected rotated token accepted, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodGet, "/admin/reviewers", nil, adminHeaders)
	var list struct {
		Organizations []OrganizationResponse `json:"organizations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(list.Organizations) != 1 || !list.Organizations[0].IsActive {
		t.Fatalf("expected one active organization, got %+v", list.Organizations)
	}
}

func TestRotateUnknownReviewer(t *testing.T) {
	router := newRegistryRouter(t)
	adminHeaders := map[string]string{admin.HeaderAdminToken: adminToken}

	rec := do(t, router, http.MethodPost, "/admin/reviewers/not-a-uuid/rotate-token", nil, adminHeaders)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}
	rec = do(t, router, http.MethodPost, "/admin/reviewers/7b3c1f9e-3b1e-4a53-9a3c-0d1f2e3a4b5c/rotate-token", nil, adminHeaders)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown reviewer, got %d", rec.Code)
	}
}
