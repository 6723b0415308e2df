// Package testutil holds helpers shared by package tests.
package testutil

import "testing"

// Given, When and Then name nested subtests after scenario steps.
func Given(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "Given", desc, fn)
}

func When(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "When", desc, fn)
}

func Then(t *testing.T, desc string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "Then", desc, fn)
}

// step stops sibling steps once a precondition has failed.
func step(t *testing.T, keyword, desc string, fn func(t *testing.T)) {
	t.Helper()
	if t.Failed() {
		t.Skipf("%s %s: earlier step failed", keyword, desc)
	}
	t.Run(keyword+" "+desc, fn)
}
