//go:build go1.18

package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseRecordID tests that parsing never panics on arbitrary input
// and always returns either a valid ID or an error.
func FuzzParseRecordID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("'; DROP TABLE applications;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseRecordID(input)
		if err == nil {
			roundTrip, err2 := ParseRecordID(id.String())
			if err2 != nil {
				t.Errorf("Valid ID failed round-trip: %v", err2)
			}
			if roundTrip != id {
				t.Error("Round-trip changed ID value")
			}
			if id.IsNil() {
				t.Error("Nil ID was accepted")
			}
		}
		if !utf8.ValidString(input) && err == nil {
			t.Error("Non-UTF8 input was accepted")
		}
	})
}

// FuzzParseRetrievalToken checks that accepted tokens are always canonical.
func FuzzParseRetrievalToken(f *testing.F) {
	f.Add("0123456789abcdef0123456789abcdef")
	f.Add("")
	f.Add("ZZZZ")

	f.Fuzz(func(t *testing.T, input string) {
		tok, err := ParseRetrievalToken(input)
		if err != nil {
			return
		}
		if len(tok) != RetrievalTokenBytes*2 {
			t.Errorf("accepted token with length %d", len(tok))
		}
		again, err := ParseRetrievalToken(tok.String())
		if err != nil || again != tok {
			t.Error("canonical token did not round-trip")
		}
	})
}
