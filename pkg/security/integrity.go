package security

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/boltpm/bolt/pkg/errors"
)

// IntegrityError reports a digest mismatch between downloaded archive bytes
// and the integrity string the registry advertised for them.
type IntegrityError struct {
	Package  string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s: expected %s, got %s", e.Package, e.Expected, e.Actual)
}

// VerifyIntegrity checks data against an integrity string of the form
// "<algo>-<base64(digest)>" where algo is sha512, sha256, or sha1. The
// digest is computed over the exact bytes with no normalization, and the
// base64 suffix is compared byte for byte.
//
// Empty integrity strings skip verification with a warning. Unknown
// algorithms also pass with a warning; the registry may introduce new
// digests before clients learn them.
func VerifyIntegrity(data []byte, integrity, pkg string) error {
	if integrity == "" {
		log.Default().Warn("no integrity string, skipping verification", "package", pkg)
		return nil
	}

	algo, expected, ok := strings.Cut(integrity, "-")
	if !ok {
		log.Default().Warn("unknown integrity format, skipping verification", "package", pkg, "integrity", integrity)
		return nil
	}

	actual, ok := digest(data, algo)
	if !ok {
		log.Default().Warn("unknown integrity algorithm, skipping verification", "package", pkg, "algorithm", algo)
		return nil
	}

	if actual != expected {
		ierr := &IntegrityError{Package: pkg, Expected: expected, Actual: actual}
		return errors.Wrap(errors.CodeIntegrityFailed, ierr, "integrity check failed for %s", pkg)
	}
	return nil
}

// ComputeIntegrity returns the integrity string for data under the given
// algorithm (sha512, sha256, or sha1), or an error for unknown algorithms.
func ComputeIntegrity(data []byte, algo string) (string, error) {
	sum, ok := digest(data, algo)
	if !ok {
		return "", errors.New(errors.CodeInternal, "unknown integrity algorithm: %s", algo)
	}
	return algo + "-" + sum, nil
}

func digest(data []byte, algo string) (string, bool) {
	switch algo {
	case "sha512":
		sum := sha512.Sum512(data)
		return base64.StdEncoding.EncodeToString(sum[:]), true
	case "sha256":
		sum := sha256.Sum256(data)
		return base64.StdEncoding.EncodeToString(sum[:]), true
	case "sha1":
		sum := sha1.Sum(data)
		return base64.StdEncoding.EncodeToString(sum[:]), true
	default:
		return "", false
	}
}
