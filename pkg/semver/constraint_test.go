package semver

import (
	"testing"
)

func mustParse(t *testing.T, s string) Constraint {
	t.Helper()
	c, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", s, err)
	}
	return c
}

func TestCaret(t *testing.T) {
	c := mustParse(t, "^1.2.3")

	for _, v := range []string{"1.2.3", "1.2.4", "1.9.0"} {
		if !c.MatchesString(v) {
			t.Errorf("^1.2.3 should match %s", v)
		}
	}
	for _, v := range []string{"1.2.2", "2.0.0", "0.9.0"} {
		if c.MatchesString(v) {
			t.Errorf("^1.2.3 should not match %s", v)
		}
	}
}

func TestCaretZeroMajor(t *testing.T) {
	c := mustParse(t, "^0.2.3")
	if !c.MatchesString("0.2.5") {
		t.Error("^0.2.3 should match 0.2.5")
	}
	if c.MatchesString("0.3.0") {
		t.Error("^0.2.3 should not match 0.3.0")
	}
	if c.MatchesString("1.2.3") {
		t.Error("^0.2.3 should not match 1.2.3")
	}
}

func TestCaretZeroMajorMinor(t *testing.T) {
	c := mustParse(t, "^0.0.3")
	if !c.MatchesString("0.0.3") {
		t.Error("^0.0.3 should match 0.0.3")
	}
	for _, v := range []string{"0.0.2", "0.0.4", "0.1.0"} {
		if c.MatchesString(v) {
			t.Errorf("^0.0.3 should not match %s", v)
		}
	}
}

func TestTilde(t *testing.T) {
	c := mustParse(t, "~1.2.0")
	for _, v := range []string{"1.2.0", "1.2.5"} {
		if !c.MatchesString(v) {
			t.Errorf("~1.2.0 should match %s", v)
		}
	}
	for _, v := range []string{"1.3.0", "1.1.9", "2.2.0"} {
		if c.MatchesString(v) {
			t.Errorf("~1.2.0 should not match %s", v)
		}
	}
}

func TestComparators(t *testing.T) {
	cases := []struct {
		constraint string
		match      []string
		noMatch    []string
	}{
		{">=1.0.0", []string{"1.0.0", "2.0.0"}, []string{"0.9.9"}},
		{">1.0.0", []string{"1.0.1"}, []string{"1.0.0"}},
		{"<=1.0.0", []string{"1.0.0", "0.1.0"}, []string{"1.0.1"}},
		{"<1.0.0", []string{"0.9.9"}, []string{"1.0.0"}},
		{"=1.2.3", []string{"1.2.3"}, []string{"1.2.4"}},
		{"1.2.3", []string{"1.2.3"}, []string{"1.2.2"}},
	}
	for _, tc := range cases {
		c := mustParse(t, tc.constraint)
		for _, v := range tc.match {
			if !c.MatchesString(v) {
				t.Errorf("%s should match %s", tc.constraint, v)
			}
		}
		for _, v := range tc.noMatch {
			if c.MatchesString(v) {
				t.Errorf("%s should not match %s", tc.constraint, v)
			}
		}
	}
}

func TestConjunction(t *testing.T) {
	c := mustParse(t, ">=1.0.0 <2.0.0")
	for _, v := range []string{"1.0.0", "1.9.9"} {
		if !c.MatchesString(v) {
			t.Errorf(">=1.0.0 <2.0.0 should match %s", v)
		}
	}
	for _, v := range []string{"0.9.9", "2.0.0"} {
		if c.MatchesString(v) {
			t.Errorf(">=1.0.0 <2.0.0 should not match %s", v)
		}
	}
}

func TestHyphenRange(t *testing.T) {
	c := mustParse(t, "1.0.0 - 2.0.0")
	for _, v := range []string{"1.0.0", "1.5.0", "2.0.0"} {
		if !c.MatchesString(v) {
			t.Errorf("1.0.0 - 2.0.0 should match %s", v)
		}
	}
	if c.MatchesString("2.0.1") {
		t.Error("1.0.0 - 2.0.0 should not match 2.0.1")
	}
}

func TestXRange(t *testing.T) {
	c := mustParse(t, "1.x")
	if !c.MatchesString("1.4.2") {
		t.Error("1.x should match 1.4.2")
	}
	if c.MatchesString("2.0.0") {
		t.Error("1.x should not match 2.0.0")
	}
}

func TestAnyForms(t *testing.T) {
	for _, s := range []string{"", "*", "latest", "workspace:^1.0.0", "npm:foo@1.0.0", "file:../local", "git+https://github.com/u/r.git", "https://example.com/a.tgz"} {
		c := mustParse(t, s)
		if !c.IsAny() {
			t.Errorf("Parse(%q) should be Any", s)
		}
		if !c.MatchesString("0.0.1") || !c.MatchesString("99.0.0") {
			t.Errorf("Any constraint from %q should match everything", s)
		}
	}
}

func TestDisjunctionTruncated(t *testing.T) {
	c := mustParse(t, "^1.0.0 || ^2.0.0")
	if !c.MatchesString("1.5.0") {
		t.Error("first disjunct should be kept")
	}
	if c.MatchesString("2.5.0") {
		t.Error("second disjunct should be discarded")
	}
}

func TestPartialVersionsPadded(t *testing.T) {
	c := mustParse(t, "^1")
	if !c.MatchesString("1.9.0") {
		t.Error("^1 should behave as ^1.0.0")
	}
	c = mustParse(t, "~1.2")
	if !c.MatchesString("1.2.9") || c.MatchesString("1.3.0") {
		t.Error("~1.2 should behave as ~1.2.0")
	}
}

func TestUnparseableFallsBackToAny(t *testing.T) {
	c := mustParse(t, "not-a-version")
	if !c.IsAny() {
		t.Error("unparseable constraint should fall back to Any")
	}
}

func TestPrereleaseOrdering(t *testing.T) {
	c := mustParse(t, ">=1.0.0-alpha")
	if !c.MatchesString("1.0.0") {
		t.Error("1.0.0 should sort above 1.0.0-alpha")
	}
	c = mustParse(t, "<1.0.0")
	if !c.MatchesString("1.0.0-alpha") {
		t.Error("1.0.0-alpha should sort below 1.0.0")
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{"^1.2.3", "~1.2.3", ">=1.2.3", ">1.2.3", "<=1.2.3", "<1.2.3", "1.2.3", ">=1.0.0 <2.0.0"} {
		c := mustParse(t, s)
		again := mustParse(t, c.String())
		if c.String() != again.String() {
			t.Errorf("round trip of %q: %q != %q", s, c.String(), again.String())
		}
	}
}

func TestHighestMatching(t *testing.T) {
	versions := []string{"1.0.0", "1.2.0", "1.9.3", "2.0.0", "0.4.0", "garbage"}

	got, err := HighestMatching(versions, mustParse(t, "^1.0.0"))
	if err != nil {
		t.Fatalf("HighestMatching error: %v", err)
	}
	if got != "1.9.3" {
		t.Errorf("HighestMatching = %s, want 1.9.3", got)
	}

	if _, err := HighestMatching(versions, mustParse(t, "^3.0.0")); err == nil {
		t.Error("expected error when no version satisfies the constraint")
	}
}

func TestParseVersionKeepsPrerelease(t *testing.T) {
	v, err := ParseVersion("1.2.3-beta.1")
	if err != nil {
		t.Fatalf("ParseVersion error: %v", err)
	}
	if v.Prerelease() != "beta.1" {
		t.Errorf("prerelease = %q, want beta.1", v.Prerelease())
	}
}
