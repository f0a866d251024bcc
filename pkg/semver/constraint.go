// Package semver implements the npm-flavored version constraint language.
//
// Constraints are parsed from the strings found in package manifests
// (^1.2.3, ~1.2.3, >=1 <2, 1.x, 1.0.0 - 2.0.0, *) and matched against
// concrete versions. Version parsing and ordering is delegated to
// github.com/Masterminds/semver; the constraint semantics here follow the
// npm registry ecosystem, including its protocol aliases (workspace:, npm:,
// file:, git URLs) which all collapse to the match-anything constraint.
//
// Disjunctions ("||") are truncated to their first operand; the discarded
// operands are logged. Input that matches none of the recognised forms falls
// back to Any rather than failing, so a single odd manifest cannot break a
// whole resolution; an operator or hyphen range around a malformed version
// ("^abc") is an INVALID_VERSION_CONSTRAINT error.
package semver

import (
	"fmt"
	"sort"
	"strings"

	sv "github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/log"

	"github.com/boltpm/bolt/pkg/errors"
)

// Op identifies a comparison operator in a simple constraint.
type Op int

const (
	OpExact Op = iota // =1.2.3 or bare 1.2.3
	OpCaret           // ^1.2.3
	OpTilde           // ~1.2.3
	OpGTE             // >=1.2.3
	OpGT              // >1.2.3
	OpLTE             // <=1.2.3
	OpLT              // <1.2.3
)

func (o Op) prefix() string {
	switch o {
	case OpCaret:
		return "^"
	case OpTilde:
		return "~"
	case OpGTE:
		return ">="
	case OpGT:
		return ">"
	case OpLTE:
		return "<="
	case OpLT:
		return "<"
	default:
		return ""
	}
}

// Constraint is a parsed version constraint.
//
// A Constraint is one of three shapes: the match-anything constraint
// (from "*", "", "latest", protocol aliases, or unparseable input), a
// simple operator constraint (op + version), or a conjunction of simple
// constraints (">=1.0.0 <2.0.0", hyphen ranges).
//
// The zero value matches nothing useful; obtain Constraints via [Parse].
type Constraint struct {
	any   bool
	op    Op
	ver   *sv.Version
	parts []Constraint // non-empty for conjunctions; any and op/ver unused
}

// Any is the constraint satisfied by every version.
var Any = Constraint{any: true}

// IsAny reports whether the constraint matches every version.
func (c Constraint) IsAny() bool { return c.any }

// Parse parses a version constraint string.
//
// Empty strings, "*", "latest", the workspace:/npm:/file: protocols, git
// URLs, and anything containing "://" parse to [Any]. Partial versions are
// zero-padded ("1" means "1.0.0"). A constraint that cannot be understood
// at all also parses to Any, with a warning, mirroring how the registry
// ecosystem tolerates exotic manifest entries.
func Parse(s string) (Constraint, error) {
	s = strings.TrimSpace(s)

	if s == "" || s == "*" || s == "latest" {
		return Any, nil
	}
	if strings.HasPrefix(s, "workspace:") {
		return Any, nil
	}
	if strings.HasPrefix(s, "npm:") || strings.HasPrefix(s, "file:") ||
		strings.HasPrefix(s, "git") || strings.Contains(s, "://") {
		return Any, nil
	}

	// Disjunctions keep only the first operand.
	if strings.Contains(s, "||") {
		first := strings.TrimSpace(strings.SplitN(s, "||", 2)[0])
		log.Default().Warn("constraint disjunction truncated to first operand", "constraint", s)
		return Parse(first)
	}

	// Hyphen range: 1.0.0 - 2.0.0 means >=1.0.0 <=2.0.0.
	if parts := strings.Split(s, " - "); len(parts) == 2 {
		lo, err := ParseVersion(strings.TrimSpace(parts[0]))
		if err != nil {
			return Constraint{}, err
		}
		hi, err := ParseVersion(strings.TrimSpace(parts[1]))
		if err != nil {
			return Constraint{}, err
		}
		return Constraint{parts: []Constraint{
			{op: OpGTE, ver: lo},
			{op: OpLTE, ver: hi},
		}}, nil
	}

	// X-ranges expand x to 0 and behave like a caret over the result.
	if strings.ContainsAny(s, "xX") {
		cleaned := strings.NewReplacer("x", "0", "X", "0").Replace(s)
		if v, err := ParseVersion(cleaned); err == nil {
			return Constraint{op: OpCaret, ver: v}, nil
		}
	}

	// Whitespace-separated items form a conjunction.
	if fields := strings.Fields(s); len(fields) > 1 {
		parts := make([]Constraint, 0, len(fields))
		for _, f := range fields {
			p, err := Parse(f)
			if err != nil {
				return Constraint{}, err
			}
			parts = append(parts, p)
		}
		return Constraint{parts: parts}, nil
	}

	for _, pre := range []struct {
		prefix string
		op     Op
	}{
		{">=", OpGTE}, {"<=", OpLTE}, {">", OpGT}, {"<", OpLT},
		{"^", OpCaret}, {"~", OpTilde}, {"=", OpExact},
	} {
		if rest, ok := strings.CutPrefix(s, pre.prefix); ok {
			v, err := ParseVersion(strings.TrimSpace(rest))
			if err != nil {
				return Constraint{}, err
			}
			return Constraint{op: pre.op, ver: v}, nil
		}
	}

	// Bare version means exact.
	if v, err := ParseVersion(s); err == nil {
		return Constraint{op: OpExact, ver: v}, nil
	}

	log.Default().Warn("could not parse version constraint, treating as any", "constraint", s)
	return Any, nil
}

// ParseVersion parses a version string, tolerating a leading "v" and
// partial versions ("1", "1.2"), which are zero-padded. Prerelease and
// build suffixes are preserved when the full string parses; otherwise a
// fallback strips them and parses the base triple.
func ParseVersion(s string) (*sv.Version, error) {
	orig := s
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")

	base, rest := s, ""
	if i := strings.IndexAny(s, "-+"); i >= 0 {
		base, rest = s[:i], s[i:]
	}
	switch strings.Count(base, ".") {
	case 0:
		s = base + ".0.0" + rest
	case 1:
		s = base + ".0" + rest
	}

	if v, err := sv.StrictNewVersion(s); err == nil {
		return v, nil
	}

	// Fallback: strip prerelease/build suffixes.
	stripped := strings.SplitN(s, "-", 2)[0]
	stripped = strings.SplitN(stripped, "+", 2)[0]
	if v, err := sv.StrictNewVersion(stripped); err == nil {
		return v, nil
	}
	return nil, errors.New(errors.CodeInvalidConstraint, "invalid version: %s", orig)
}

// Matches reports whether version v satisfies the constraint.
func (c Constraint) Matches(v *sv.Version) bool {
	if c.any {
		return true
	}
	if len(c.parts) > 0 {
		for _, p := range c.parts {
			if !p.Matches(v) {
				return false
			}
		}
		return true
	}

	switch c.op {
	case OpExact:
		return v.Compare(c.ver) == 0
	case OpCaret:
		switch {
		case c.ver.Major() > 0:
			// ^x.y.z means >=x.y.z <(x+1).0.0
			return v.Major() == c.ver.Major() && v.Compare(c.ver) >= 0
		case c.ver.Minor() > 0:
			// ^0.y.z means >=0.y.z <0.(y+1).0
			return v.Major() == 0 && v.Minor() == c.ver.Minor() && v.Compare(c.ver) >= 0
		default:
			// ^0.0.z means >=0.0.z <0.0.(z+1)
			return v.Major() == 0 && v.Minor() == 0 && v.Patch() == c.ver.Patch() && v.Compare(c.ver) >= 0
		}
	case OpTilde:
		// ~x.y.z means >=x.y.z <x.(y+1).0
		return v.Major() == c.ver.Major() && v.Minor() == c.ver.Minor() && v.Compare(c.ver) >= 0
	case OpGTE:
		return v.Compare(c.ver) >= 0
	case OpGT:
		return v.Compare(c.ver) > 0
	case OpLTE:
		return v.Compare(c.ver) <= 0
	case OpLT:
		return v.Compare(c.ver) < 0
	}
	return false
}

// MatchesString parses s as a version and reports whether it satisfies the
// constraint. Unparseable versions never match.
func (c Constraint) MatchesString(s string) bool {
	v, err := ParseVersion(s)
	if err != nil {
		return false
	}
	return c.Matches(v)
}

// String renders the constraint in its canonical form. Parsing the result
// yields an equivalent constraint for every non-Any variant.
func (c Constraint) String() string {
	if c.any {
		return "*"
	}
	if len(c.parts) > 0 {
		parts := make([]string, len(c.parts))
		for i, p := range c.parts {
			parts[i] = p.String()
		}
		return strings.Join(parts, " ")
	}
	return fmt.Sprintf("%s%s", c.op.prefix(), c.ver.String())
}

// HighestMatching returns the highest of the given version strings that
// satisfies the constraint. Unparseable entries are skipped. Returns an
// error when no version satisfies the constraint.
func HighestMatching(versions []string, c Constraint) (string, error) {
	type candidate struct {
		raw string
		ver *sv.Version
	}
	var matching []candidate
	for _, s := range versions {
		v, err := ParseVersion(s)
		if err != nil {
			continue
		}
		if c.Matches(v) {
			matching = append(matching, candidate{raw: s, ver: v})
		}
	}
	if len(matching) == 0 {
		return "", errors.New(errors.CodeInvalidConstraint, "no version satisfies constraint %s", c)
	}
	sort.Slice(matching, func(i, j int) bool { return matching[i].ver.GreaterThan(matching[j].ver) })
	return matching[0].raw, nil
}
