// Package verify checks downloaded artifacts against published checksums:
// SHA-1 first, falling back to MD5, accepting unchecked when neither is
// published.
package verify

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"gopkg.in/op/go-logging.v1"

	"github.com/pluginforge/libresolve/src/coordinate"
)

var log = logging.MustGetLogger("verify")

// ChecksumError reports a verification failure for a downloaded artifact.
type ChecksumError struct {
	Coordinate coordinate.Coordinate
	Algorithm  string
	Expected   string
	Actual     string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("%s: %s checksum mismatch: expected %s, got %s", e.Coordinate, e.Algorithm, e.Expected, e.Actual)
}

// Result records how an artifact's checksum was established.
type Result struct {
	// Algorithm is "sha1", "md5", or "" if the artifact was accepted unchecked.
	Algorithm string
	Unchecked bool
}

// ChecksumSource fetches a published checksum sidecar for a path (for
// example "<artifactPath>.sha1"); it returns ok=false if the sidecar
// doesn't exist in the repository, which is not itself an error.
type ChecksumSource interface {
	FetchChecksum(algorithm string) (string, bool, error)
}

// Verify checks content against the published SHA-1, falling back to MD5,
// and accepting the content unchecked if the repository publishes neither.
// Comparison is case-insensitive, hex, and tolerant of surrounding
// whitespace on the published value.
func Verify(c coordinate.Coordinate, content []byte, source ChecksumSource) (Result, error) {
	if published, ok, err := source.FetchChecksum("sha1"); err != nil {
		return Result{}, fmt.Errorf("fetching sha1 checksum for %s: %w", c, err)
	} else if ok {
		return verifyWith(c, "sha1", sha1sum(content), published)
	}

	if published, ok, err := source.FetchChecksum("md5"); err != nil {
		return Result{}, fmt.Errorf("fetching md5 checksum for %s: %w", c, err)
	} else if ok {
		return verifyWith(c, "md5", md5sum(content), published)
	}

	log.Warning("%s has no published sha1 or md5 checksum, accepting unchecked", c)
	return Result{Unchecked: true}, nil
}

func verifyWith(c coordinate.Coordinate, algorithm, actual, published string) (Result, error) {
	if !Equal(actual, published) {
		return Result{}, &ChecksumError{Coordinate: c, Algorithm: algorithm, Expected: published, Actual: actual}
	}
	return Result{Algorithm: algorithm}, nil
}

// Equal compares two checksum strings case-insensitively, ignoring
// surrounding whitespace.
func Equal(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// SHA1 returns the lowercase hex SHA-1 digest of content.
func SHA1(content []byte) string {
	return sha1sum(content)
}

// MD5 returns the lowercase hex MD5 digest of content.
func MD5(content []byte) string {
	return md5sum(content)
}

func sha1sum(content []byte) string {
	sum := sha1.Sum(content)
	return hex.EncodeToString(sum[:])
}

func md5sum(content []byte) string {
	sum := md5.Sum(content)
	return hex.EncodeToString(sum[:])
}
