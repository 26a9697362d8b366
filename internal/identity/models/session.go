package models

import (
	"time"

	id "intake/pkg/domain"
)

// MaxChallengeAttempts is the number of wrong codes a challenge tolerates.
// The check happens before comparing, so once this many failures are
// recorded even the correct code is refused.
const MaxChallengeAttempts = 6

// Challenge is a pending email verification. It lives only inside the
// applicant session and is never written to the durable store.
type Challenge struct {
	Email     string
	CodeHash  string
	ExpiresAt time.Time
	Attempts  int
}

// IsExpired reports whether now is past the challenge's expiry.
func (c *Challenge) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Exhausted reports whether the attempt budget is used up.
func (c *Challenge) Exhausted() bool {
	return c.Attempts >= MaxChallengeAttempts
}

// Session is the ephemeral state of one applicant browser. It is addressed by
// an opaque cookie and expires on its own.
type Session struct {
	ID            id.SessionID
	Token         id.RetrievalToken
	RecordID      *id.RecordID
	VerifiedEmail string
	Challenge     *Challenge
	ReadOnly      bool
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

func NewSession(sessionID id.SessionID, now time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:        sessionID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// BindRecord points the session at a record it has proven ownership of.
func (s *Session) BindRecord(recordID id.RecordID, token id.RetrievalToken, readOnly bool) {
	rid := recordID
	s.RecordID = &rid
	s.Token = token
	s.ReadOnly = readOnly
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.RecordID != nil {
		rid := *s.RecordID
		c.RecordID = &rid
	}
	if s.Challenge != nil {
		ch := *s.Challenge
		c.Challenge = &ch
	}
	return &c
}
