package security

import (
	"strings"

	"github.com/charmbracelet/log"

	"github.com/boltpm/bolt/pkg/errors"
)

// Policy holds the security configuration the manager enforces.
type Policy struct {
	// RequireIntegrity refuses archives published without an integrity string.
	RequireIntegrity bool

	// AllowScripts globally enables lifecycle scripts. Off by default.
	AllowScripts bool

	// TrustedScopes lists scopes (e.g. "@myorg") exempt from gating.
	TrustedScopes []string

	// TrustedPackages lists exact names exempt from gating.
	TrustedPackages []string

	// DependencyConfusionProtection enables the typosquat and
	// suspicious-name gate on install.
	DependencyConfusionProtection bool

	// AuditOnInstall runs the supply-chain analysis during install.
	AuditOnInstall bool
}

// Manager enforces the security policy at install time. It is safe for
// concurrent use; the policy is immutable after construction.
type Manager struct {
	policy Policy
	logger *log.Logger
}

// NewManager creates a security manager. A nil logger selects log.Default().
func NewManager(policy Policy, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{policy: policy, logger: logger}
}

// IsTrusted reports whether a package is exempt from security gating, by
// exact name or by scope.
func (m *Manager) IsTrusted(name string) bool {
	for _, trusted := range m.policy.TrustedPackages {
		if trusted == name {
			return true
		}
	}
	if strings.HasPrefix(name, "@") {
		scope, _, _ := strings.Cut(name, "/")
		for _, trusted := range m.policy.TrustedScopes {
			if trusted == scope {
				return true
			}
		}
	}
	return false
}

// VerifyPackageAllowed gates a package before download. Trusted names pass
// unconditionally. With dependency-confusion protection enabled, a
// high-risk supply-chain analysis blocks the install; medium risk logs a
// warning and proceeds.
func (m *Manager) VerifyPackageAllowed(name string) error {
	if m.IsTrusted(name) {
		return nil
	}
	if !m.policy.DependencyConfusionProtection {
		return nil
	}

	analysis := Analyze(name)
	if analysis.ShouldBlock() {
		ts := analysis.Typosquat
		return errors.New(errors.CodePermissionDenied,
			"refusing to install %s: name is within edit distance %d of %q", name, ts.Distance, ts.SimilarTo)
	}
	if analysis.ShouldWarn() {
		if ts := analysis.Typosquat; ts != nil {
			m.logger.Warn("package name resembles a popular package",
				"package", name, "similar_to", ts.SimilarTo, "distance", ts.Distance)
		}
		if sn := analysis.SuspiciousName; sn != nil {
			m.logger.Warn("suspicious package name", "package", name, "pattern", sn.Pattern)
		}
	}
	return nil
}

// ScriptsAllowed reports whether lifecycle scripts are globally enabled.
func (m *Manager) ScriptsAllowed() bool { return m.policy.AllowScripts }

// ShouldRunScript decides whether a lifecycle script may run for a package.
// Scripts are off unless globally allowed; even then, only trusted packages
// run scripts without confirmation, and critical-category packages never
// run them implicitly.
func (m *Manager) ShouldRunScript(pkg, script string) bool {
	if !m.policy.AllowScripts {
		return false
	}
	if SecurityLevel(pkg) == LevelCritical {
		m.logger.Warn("scripts denied for critical-category package", "package", pkg, "script", script)
		return false
	}
	return m.IsTrusted(pkg)
}

// RequireIntegrity reports whether archives without integrity strings are
// refused.
func (m *Manager) RequireIntegrity() bool { return m.policy.RequireIntegrity }

// AuditOnInstall reports whether supply-chain analysis runs during install.
func (m *Manager) AuditOnInstall() bool { return m.policy.AuditOnInstall }
