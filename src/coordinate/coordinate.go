// Package coordinate implements the Maven-style artifact coordinate and
// version model: parsing, canonical string form, and the qualifier-aware
// total order used to pick a "best" version from a list.
package coordinate

import (
	"fmt"
	"strings"
)

// DefaultType is the artifact type assumed when none is given.
const DefaultType = "jar"

// A Coordinate identifies a single artifact. Version may be empty for an
// unresolved dependency; it is filled in by the resolver before the
// Coordinate is used to address a repository.
type Coordinate struct {
	GroupID    string
	ArtifactID string
	Version    string
	Classifier string
	Type       string
}

// Key is the version-independent identity of a Coordinate, used to detect
// conflicting versions of "the same" artifact.
type Key struct {
	GroupID    string
	ArtifactID string
	Classifier string
}

// Key returns the version-independent identity of this coordinate.
func (c Coordinate) Key() Key {
	return Key{GroupID: c.GroupID, ArtifactID: c.ArtifactID, Classifier: c.Classifier}
}

// typeOrDefault returns c.Type, defaulting to "jar".
func (c Coordinate) typeOrDefault() string {
	if c.Type == "" {
		return DefaultType
	}
	return c.Type
}

// String returns the canonical form groupId:artifactId:version[:classifier][@type].
func (c Coordinate) String() string {
	s := fmt.Sprintf("%s:%s:%s", c.GroupID, c.ArtifactID, c.Version)
	if c.Classifier != "" {
		s += ":" + c.Classifier
	}
	if t := c.typeOrDefault(); t != DefaultType {
		s += "@" + t
	}
	return s
}

// Parse parses a coordinate from its canonical or partial string form:
// g:a[:v][:c][@t]. Version, classifier and type are all optional.
func Parse(s string) (Coordinate, error) {
	var c Coordinate
	if at := strings.LastIndexByte(s, '@'); at != -1 {
		c.Type = s[at+1:]
		s = s[:at]
	}
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 2:
		c.GroupID, c.ArtifactID = parts[0], parts[1]
	case 3:
		c.GroupID, c.ArtifactID, c.Version = parts[0], parts[1], parts[2]
	case 4:
		c.GroupID, c.ArtifactID, c.Version, c.Classifier = parts[0], parts[1], parts[2], parts[3]
	default:
		return Coordinate{}, fmt.Errorf("invalid coordinate %q: must be in the form group:artifact[:version][:classifier][@type]", s)
	}
	if c.GroupID == "" || c.ArtifactID == "" {
		return Coordinate{}, fmt.Errorf("invalid coordinate %q: groupId and artifactId are required", s)
	}
	return c, nil
}

// UnmarshalFlag implements the flags.Unmarshaler interface so a Coordinate
// can be used directly as a command-line positional argument.
func (c *Coordinate) UnmarshalFlag(value string) error {
	parsed, err := Parse(value)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// GroupPath returns the group ID written as a repository path segment (dots to slashes).
func (c Coordinate) GroupPath() string {
	return strings.ReplaceAll(c.GroupID, ".", "/")
}

// basePath returns "<group-path>/<artifact>/<version>/<artifact>-<version>", the prefix
// shared by every artifact file belonging to this coordinate.
func (c Coordinate) basePath() string {
	return fmt.Sprintf("%s/%s/%s/%s-%s", c.GroupPath(), c.ArtifactID, c.Version, c.ArtifactID, c.Version)
}

// filenameSuffix returns the "-classifier.type" (or ".type") suffix for this coordinate's artifact file.
func (c Coordinate) filenameSuffix() string {
	if c.Classifier != "" {
		return "-" + c.Classifier + "." + c.typeOrDefault()
	}
	return "." + c.typeOrDefault()
}

// ArtifactPath returns the repository-relative path to this coordinate's artifact file.
func (c Coordinate) ArtifactPath() string {
	return c.basePath() + c.filenameSuffix()
}

// PomPath returns the repository-relative path to this coordinate's POM.
func (c Coordinate) PomPath() string {
	return c.basePath() + ".pom"
}

// ChecksumPath returns the path to a checksum sidecar (".sha1" or ".md5") for the given base path.
func ChecksumPath(path, algorithm string) string {
	return path + "." + algorithm
}

// MetadataPath returns the repository-relative path to this group/artifact's maven-metadata.xml.
// The version is ignored, since metadata is shared across all versions of an artifact.
func (c Coordinate) MetadataPath() string {
	return fmt.Sprintf("%s/%s/maven-metadata.xml", c.GroupPath(), c.ArtifactID)
}

// CachePath returns the path, relative to a cache root, at which this coordinate's
// artifact should be stored: <group-as-path>/<artifact>/<version>/<artifact>-<version>[-<classifier>].<type>
// This mirrors the standard Maven repository layout exactly.
func (c Coordinate) CachePath() string {
	return c.ArtifactPath()
}

// Exclusion names a (groupId, artifactId) pair to prune from a dependency's transitive
// closure; either field may be "*" to match any value.
type Exclusion struct {
	GroupID    string
	ArtifactID string
}

// Matches returns true if the given coordinate is covered by this exclusion, honouring wildcards.
func (e Exclusion) Matches(c Coordinate) bool {
	return (e.GroupID == "*" || e.GroupID == c.GroupID) && (e.ArtifactID == "*" || e.ArtifactID == c.ArtifactID)
}

// Scope is the Maven dependency scope.
type Scope string

// The scopes the resolver understands; an empty scope is treated like Compile,
// and any other unlisted scope is not transitive.
const (
	ScopeCompile  Scope = "compile"
	ScopeRuntime  Scope = "runtime"
	ScopeProvided Scope = "provided"
	ScopeTest     Scope = "test"
	ScopeSystem   Scope = "system"
	ScopeImport   Scope = "import"
)

// transitive reports whether this scope propagates past the root dependency.
func (s Scope) transitive() bool {
	return s == "" || s == ScopeCompile || s == ScopeRuntime
}

// IsTransitive returns true if a dependency of this scope should be walked when it
// appears below the root of a resolve (roots may be any scope).
func (s Scope) IsTransitive() bool {
	return s.transitive()
}

// Dependency augments a Coordinate with the information needed to decide whether and
// how it should be included in a transitive resolve.
type Dependency struct {
	Coordinate
	Scope      Scope
	Optional   bool
	Exclusions []Exclusion
}

// IsExcluded returns true if c is excluded by any of this dependency's exclusions.
func (d Dependency) IsExcluded(c Coordinate, inherited []Exclusion) bool {
	for _, ex := range d.Exclusions {
		if ex.Matches(c) {
			return true
		}
	}
	for _, ex := range inherited {
		if ex.Matches(c) {
			return true
		}
	}
	return false
}
