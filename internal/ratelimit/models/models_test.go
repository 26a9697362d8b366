package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEndpointClassIsValid(t *testing.T) {
	assert.True(t, ClassCredential.IsValid())
	assert.True(t, ClassApplicant.IsValid())
	assert.False(t, EndpointClass("admin").IsValid())
}

func TestRetryAfter(t *testing.T) {
	now := time.Now()
	allowed := &RateLimitResult{Allowed: true, ResetAt: now.Add(time.Minute)}
	assert.Equal(t, 0, allowed.RetryAfter(now))

	denied := &RateLimitResult{ResetAt: now.Add(1500 * time.Millisecond)}
	assert.Equal(t, 2, denied.RetryAfter(now))

	past := &RateLimitResult{ResetAt: now.Add(-time.Second)}
	assert.Equal(t, 1, past.RetryAfter(now))
}
