// Package pom parses Maven project object models and group metadata into
// the model used by the resolver: property interpolation, parent-chain
// inheritance, dependencyManagement merging (including BOM imports),
// declared-repository discovery, and the metadata "best version" selection.
package pom

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"github.com/pluginforge/libresolve/src/coordinate"
)

var log = logging.MustGetLogger("pom")

// maxInterpolationDepth bounds the recursive property-expansion chase so a
// pair of properties that reference each other can't spin forever.
const maxInterpolationDepth = 15

// PomError reports a failure to parse or assemble a POM for a coordinate,
// carrying the coordinate for diagnostics.
type PomError struct {
	Coordinate coordinate.Coordinate
	Err        error
}

func (e *PomError) Error() string {
	return fmt.Sprintf("pom %s: %s", e.Coordinate, e.Err)
}

func (e *PomError) Unwrap() error {
	return e.Err
}

// xmlDependency mirrors the <dependency> element as it appears on the wire.
type xmlDependency struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
	Classifier string `xml:"classifier"`
	Type       string `xml:"type"`
	Scope      string `xml:"scope"`
	Optional   bool   `xml:"optional"`
	Exclusions struct {
		Exclusion []struct {
			GroupID    string `xml:"groupId"`
			ArtifactID string `xml:"artifactId"`
		} `xml:"exclusion"`
	} `xml:"exclusions"`
}

func (d xmlDependency) key() coordinate.Key {
	return coordinate.Key{GroupID: d.GroupID, ArtifactID: d.ArtifactID, Classifier: d.Classifier}
}

// xmlProperty captures a single arbitrary child of <properties>; the element
// name is the property name, its text content the value.
type xmlProperty struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// xmlProject is the raw decode target for a pom.xml document.
type xmlProject struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
	Packaging  string `xml:"packaging"`
	Parent     struct {
		GroupID      string `xml:"groupId"`
		ArtifactID   string `xml:"artifactId"`
		Version      string `xml:"version"`
		RelativePath string `xml:"relativePath"`
	} `xml:"parent"`
	Properties struct {
		Property []xmlProperty `xml:",any"`
	} `xml:"properties"`
	Dependencies struct {
		Dependency []xmlDependency `xml:"dependency"`
	} `xml:"dependencies"`
	DependencyManagement struct {
		Dependencies struct {
			Dependency []xmlDependency `xml:"dependency"`
		} `xml:"dependencies"`
	} `xml:"dependencyManagement"`
	Repositories struct {
		Repository []struct {
			URL string `xml:"url"`
		} `xml:"repository"`
	} `xml:"repositories"`
}

// Project is the fully assembled, interpolated project model for a single
// artifact, with parent inheritance and BOM imports already merged in.
type Project struct {
	Coordinate coordinate.Coordinate
	Packaging  string

	Properties map[string]string

	// Dependencies are this project's own declared dependencies, with
	// inherited and local dependencyManagement defaults applied.
	Dependencies []coordinate.Dependency

	// Management is the fully merged dependencyManagement map (parent plus
	// local plus resolved BOM imports), keyed by group:artifact[:classifier].
	// Later mergers never override an existing key.
	Management map[coordinate.Key]coordinate.Dependency

	// Repositories is the ordered list of repository URLs this POM declares,
	// in document order, with any inherited from a parent appended after its own.
	Repositories []string

	mu sync.Mutex
}

// ManagedVersion looks up a version for the given key in this project's
// dependencyManagement map.
func (p *Project) ManagedVersion(key coordinate.Key) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	dep, ok := p.Management[key]
	if !ok {
		return "", false
	}
	return dep.Version, ok
}

// PomFetcher fetches and parses the POM for a coordinate; Parse calls back
// into it to walk a parent chain or resolve a BOM import, so it's supplied
// by the caller (normally the resolver, already holding a Repository list
// and cache) rather than owned by this package.
type PomFetcher interface {
	FetchProject(c coordinate.Coordinate) (*Project, error)
}

// Parse decodes a pom.xml document into a fully interpolated, inherited
// Project. fetch is used to resolve <parent> and BOM <dependencyManagement>
// imports; it may be nil only for documents known to have neither.
func Parse(raw []byte, source coordinate.Coordinate, fetch PomFetcher) (*Project, error) {
	var x xmlProject
	decoder := xml.NewDecoder(bytes.NewReader(raw))
	// Maven POMs are occasionally published as ISO-8859-1; treat any
	// declared charset as already-decoded bytes rather than failing outright.
	decoder.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }
	if err := decoder.Decode(&x); err != nil {
		return nil, &PomError{Coordinate: source, Err: fmt.Errorf("decoding XML: %w", err)}
	}

	props := map[string]string{}
	var inheritedRepos []string
	var inheritedManagement map[coordinate.Key]coordinate.Dependency

	if x.Parent.ArtifactID != "" {
		if x.Parent.GroupID == x.GroupID && x.Parent.ArtifactID == x.ArtifactID {
			return nil, &PomError{Coordinate: source, Err: fmt.Errorf("%s:%s:%s names itself as its own parent", x.GroupID, x.ArtifactID, x.Version)}
		}
		if fetch == nil {
			return nil, &PomError{Coordinate: source, Err: errors.New("has a parent but no fetcher was supplied")}
		}
		parentCoord := coordinate.Coordinate{GroupID: x.Parent.GroupID, ArtifactID: x.Parent.ArtifactID, Version: x.Parent.Version, Type: "pom"}
		parent, err := fetch.FetchProject(parentCoord)
		if err != nil {
			return nil, &PomError{Coordinate: source, Err: fmt.Errorf("fetching parent %s: %w", parentCoord, err)}
		}
		for k, v := range parent.Properties {
			props[k] = v
		}
		if x.GroupID == "" {
			x.GroupID = parent.Coordinate.GroupID
		}
		if x.Version == "" {
			x.Version = parent.Coordinate.Version
		}
		inheritedRepos = parent.Repositories
		inheritedManagement = parent.Management
	}

	// Local properties take precedence over whatever was inherited.
	for _, prop := range x.Properties.Property {
		props[prop.XMLName.Local] = prop.Value
	}
	props["groupId"] = x.GroupID
	props["artifactId"] = x.ArtifactID
	props["version"] = x.Version
	props["project.groupId"] = x.GroupID
	props["project.artifactId"] = x.ArtifactID
	props["project.version"] = x.Version

	var repos []string
	for _, r := range x.Repositories.Repository {
		if url := interpolate(r.URL, props); url != "" {
			repos = append(repos, url)
		}
	}
	repos = append(repos, inheritedRepos...)

	p := &Project{
		Coordinate: coordinate.Coordinate{
			GroupID:    interpolate(x.GroupID, props),
			ArtifactID: interpolate(x.ArtifactID, props),
			Version:    interpolate(x.Version, props),
			Type:       "pom",
		},
		Packaging:    x.Packaging,
		Properties:   props,
		Management:   map[coordinate.Key]coordinate.Dependency{},
		Repositories: repos,
	}
	if p.Packaging == "" {
		p.Packaging = "jar"
	}

	// Merge in the local dependencyManagement entries first (highest
	// precedence among everything this project itself declares).
	var boms []xmlDependency
	for _, d := range x.DependencyManagement.Dependencies.Dependency {
		d = interpolateDependency(d, props)
		if d.Scope == "import" && (d.Type == "pom" || d.Type == "") {
			boms = append(boms, d)
			continue
		}
		addManaged(p.Management, d)
	}

	// BOM imports merge next; existing (local) entries are never overridden.
	for _, bom := range boms {
		if fetch == nil {
			log.Warning("skipping BOM import %s:%s, no fetcher available", bom.GroupID, bom.ArtifactID)
			continue
		}
		bomCoord := coordinate.Coordinate{GroupID: bom.GroupID, ArtifactID: bom.ArtifactID, Version: bom.Version, Type: "pom"}
		bomProject, err := fetch.FetchProject(bomCoord)
		if err != nil {
			return nil, &PomError{Coordinate: source, Err: fmt.Errorf("importing BOM %s: %w", bomCoord, err)}
		}
		for k, v := range bomProject.Management {
			if _, present := p.Management[k]; !present {
				p.Management[k] = v
			}
		}
	}

	// Inherited parent entries merge last, again never overriding a key
	// already present.
	for k, v := range inheritedManagement {
		if _, present := p.Management[k]; !present {
			p.Management[k] = v
		}
	}

	for _, d := range x.Dependencies.Dependency {
		d = interpolateDependency(d, props)
		dep := toDependency(d)
		if dep.Version == "" {
			if managed, ok := p.Management[dep.Key()]; ok {
				dep.Version = managed.Version
				if dep.Scope == "" {
					dep.Scope = managed.Scope
				}
			}
		}
		if dep.Scope == "" {
			dep.Scope = coordinate.ScopeCompile
		}
		p.Dependencies = append(p.Dependencies, dep)
	}

	return p, nil
}

// addManaged records d in management, a no-op if the key is already present
// since the first writer (innermost/local scope) always wins.
func addManaged(management map[coordinate.Key]coordinate.Dependency, d xmlDependency) {
	dep := toDependency(d)
	if _, present := management[dep.Key()]; !present {
		management[dep.Key()] = dep
	}
}

func toDependency(d xmlDependency) coordinate.Dependency {
	dep := coordinate.Dependency{
		Coordinate: coordinate.Coordinate{
			GroupID:    d.GroupID,
			ArtifactID: d.ArtifactID,
			Version:    d.Version,
			Classifier: d.Classifier,
			Type:       d.Type,
		},
		Scope:    coordinate.Scope(d.Scope),
		Optional: d.Optional,
	}
	for _, ex := range d.Exclusions.Exclusion {
		dep.Exclusions = append(dep.Exclusions, coordinate.Exclusion{GroupID: ex.GroupID, ArtifactID: ex.ArtifactID})
	}
	return dep
}

func interpolateDependency(d xmlDependency, props map[string]string) xmlDependency {
	d.GroupID = interpolate(d.GroupID, props)
	d.ArtifactID = interpolate(d.ArtifactID, props)
	d.Version = interpolate(d.Version, props)
	d.Classifier = interpolate(d.Classifier, props)
	d.Type = interpolate(d.Type, props)
	return d
}

// interpolate expands every ${...} placeholder in s against props, following
// chained references up to maxInterpolationDepth deep. A placeholder with no
// matching property is left untouched.
func interpolate(s string, props map[string]string) string {
	for depth := 0; depth < maxInterpolationDepth; depth++ {
		expanded, changed := interpolateOnce(s, props)
		if !changed {
			return expanded
		}
		s = expanded
	}
	log.Debug("property interpolation did not converge after %d passes for %q", maxInterpolationDepth, s)
	return s
}

func interpolateOnce(s string, props map[string]string) (string, bool) {
	var out strings.Builder
	changed := false
	for {
		start := strings.Index(s, "${")
		if start == -1 {
			out.WriteString(s)
			break
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			out.WriteString(s)
			break
		}
		end += start
		name := s[start+2 : end]
		out.WriteString(s[:start])
		if val, ok := props[name]; ok {
			out.WriteString(val)
			changed = true
		} else {
			out.WriteString(s[start : end+1])
		}
		s = s[end+1:]
	}
	return out.String(), changed
}
