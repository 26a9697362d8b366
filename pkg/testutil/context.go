package testutil

import (
	"net/http"

	id "intake/pkg/domain"
	"intake/pkg/requestcontext"
)

// WithReviewer adds a reviewer organization to the request context.
// This simulates what the bearer middleware does for authenticated requests.
func WithReviewer(req *http.Request, reviewerID id.ReviewerID) *http.Request {
	return req.WithContext(requestcontext.WithReviewerID(req.Context(), reviewerID))
}
