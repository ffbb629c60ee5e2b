package pom

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
)

// MetadataError reports a failure to fetch or parse a group/artifact's
// maven-metadata.xml, carrying the source URL for diagnostics.
type MetadataError struct {
	GroupID    string
	ArtifactID string
	Source     string
	Err        error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("metadata %s:%s (%s): %s", e.GroupID, e.ArtifactID, e.Source, e.Err)
}

func (e *MetadataError) Unwrap() error {
	return e.Err
}

// Metadata is the parsed form of a group/artifact's maven-metadata.xml.
type Metadata struct {
	GroupID    string
	ArtifactID string
	Release    string
	Latest     string
	Versions   []string
}

type xmlMetadata struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
	Versioning struct {
		Latest   string `xml:"latest"`
		Release  string `xml:"release"`
		Versions struct {
			Version []string `xml:"version"`
		} `xml:"versions"`
	} `xml:"versioning"`
}

// ParseMetadata decodes a maven-metadata.xml document.
func ParseMetadata(raw []byte, sourceURL string) (*Metadata, error) {
	var x xmlMetadata
	decoder := xml.NewDecoder(bytes.NewReader(raw))
	decoder.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }
	if err := decoder.Decode(&x); err != nil {
		return nil, &MetadataError{Source: sourceURL, Err: fmt.Errorf("decoding XML: %w", err)}
	}
	m := &Metadata{
		GroupID:    x.GroupID,
		ArtifactID: x.ArtifactID,
		Release:    x.Versioning.Release,
		Latest:     x.Versioning.Latest,
		Versions:   x.Versioning.Versions.Version,
	}
	if m.Release == "" && m.Latest == "" && len(m.Versions) == 0 && x.Version != "" {
		// Some very old metadata documents carry only a bare <version>.
		m.Versions = []string{x.Version}
	}
	return m, nil
}

// BestVersion picks the best available version: release, else latest, else
// the last entry of versions[], else none.
func (m *Metadata) BestVersion() (string, bool) {
	if m.Release != "" {
		return m.Release, true
	}
	if m.Latest != "" {
		return m.Latest, true
	}
	if n := len(m.Versions); n > 0 {
		return m.Versions[n-1], true
	}
	return "", false
}

// HasVersion returns true if version appears in this metadata's versions list.
func (m *Metadata) HasVersion(version string) bool {
	for _, v := range m.Versions {
		if v == version {
			return true
		}
	}
	return false
}
