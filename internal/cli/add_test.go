package cli

import "testing"

func TestSplitSpec(t *testing.T) {
	cases := []struct {
		spec       string
		name       string
		constraint string
	}{
		{"react", "react", "latest"},
		{"react@^18.2.0", "react", "^18.2.0"},
		{"@types/node", "@types/node", "latest"},
		{"@types/node@^20.0.0", "@types/node", "^20.0.0"},
		{"lodash@4.17.21", "lodash", "4.17.21"},
	}
	for _, c := range cases {
		name, constraint := splitSpec(c.spec)
		if name != c.name || constraint != c.constraint {
			t.Errorf("splitSpec(%q) = (%q, %q), want (%q, %q)",
				c.spec, name, constraint, c.name, c.constraint)
		}
	}
}
