package auth

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
	"intake/pkg/requestcontext"
)

type stubAuthenticator struct {
	tokens map[string]id.ReviewerID
	err    error
}

func (s stubAuthenticator) Authenticate(_ context.Context, bearer string) (id.ReviewerID, error) {
	if s.err != nil {
		return id.ReviewerID{}, s.err
	}
	if rid, ok := s.tokens[bearer]; ok {
		return rid, nil
	}
	return id.ReviewerID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
}

func TestRequireReviewer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	reviewer := id.NewReviewerID()
	authn := stubAuthenticator{tokens: map[string]id.ReviewerID{"good": reviewer}}

	var seen id.ReviewerID
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = requestcontext.ReviewerID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	cases := []struct {
		name   string
		header string
		authn  BearerAuthenticator
		want   int
	}{
		{"missing header", "", authn, http.StatusUnauthorized},
		{"wrong scheme", "Basic good", authn, http.StatusUnauthorized},
		{"unknown token", "Bearer nope", authn, http.StatusUnauthorized},
		{"backend failure", "Bearer good", stubAuthenticator{err: dErrors.Wrap(errors.New("db down"), dErrors.CodeInternal, "lookup failed")}, http.StatusInternalServerError},
		{"valid token", "Bearer good", authn, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = id.ReviewerID{}
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			RequireReviewer(tc.authn, logger)(next).ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
			if tc.want == http.StatusOK {
				assert.Equal(t, reviewer, seen)
			}
		})
	}
}
