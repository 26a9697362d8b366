package testutil

import "testing"

// Given, When and Then name subtests after the step they describe so a
// failing scenario reads as a sentence in the test output.
func Given(t *testing.T, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return step(t, "Given", desc, fn)
}

func When(t *testing.T, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return step(t, "When", desc, fn)
}

func Then(t *testing.T, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	return step(t, "Then", desc, fn)
}

// step stops the scenario once an earlier step has failed.
func step(t *testing.T, keyword, desc string, fn func(t *testing.T)) bool {
	t.Helper()
	if t.Failed() {
		t.Skipf("%s %s: skipped after an earlier step failed", keyword, desc)
	}
	return t.Run(keyword+" "+desc, fn)
}
