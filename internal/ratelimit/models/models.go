package models

import "time"

// EndpointClass categorizes endpoints for differentiated rate limiting.
type EndpointClass string

const (
	// ClassCredential covers endpoints that check or send secrets: login,
	// token recovery, email challenge start and verification.
	ClassCredential EndpointClass = "credential"
	// ClassApplicant covers the remaining applicant endpoints.
	ClassApplicant EndpointClass = "applicant"
)

// Limit is a request budget per sliding window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// DefaultLimits are the per-IP budgets for each class.
var DefaultLimits = map[EndpointClass]Limit{
	ClassCredential: {Requests: 10, Window: time.Minute},
	ClassApplicant:  {Requests: 120, Window: time.Minute},
}

// IsValid checks if the endpoint class is one of the supported enum values.
func (c EndpointClass) IsValid() bool {
	_, ok := DefaultLimits[c]
	return ok
}

// RateLimitResult is the outcome of one check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the whole number of seconds until the window frees a slot.
func (r *RateLimitResult) RetryAfter(now time.Time) int {
	if r.Allowed {
		return 0
	}
	secs := int(r.ResetAt.Sub(now).Seconds() + 0.999)
	if secs < 1 {
		return 1
	}
	return secs
}
