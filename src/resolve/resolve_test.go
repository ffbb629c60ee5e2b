package resolve

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pluginforge/libresolve/src/coordinate"
	"github.com/pluginforge/libresolve/src/pom"
)

// fakeProjects is a fixed in-memory POM source keyed by "group:artifact:version".
type fakeProjects struct {
	projects map[string]*pom.Project
}

func (f *fakeProjects) FetchProject(c coordinate.Coordinate) (*pom.Project, error) {
	key := fmt.Sprintf("%s:%s:%s", c.GroupID, c.ArtifactID, c.Version)
	p, ok := f.projects[key]
	if !ok {
		return nil, fmt.Errorf("no test project for %s", key)
	}
	return p, nil
}

func project(c coordinate.Coordinate, deps ...coordinate.Dependency) *pom.Project {
	return &pom.Project{
		Coordinate:   c,
		Management:   map[coordinate.Key]coordinate.Dependency{},
		Dependencies: deps,
	}
}

func dep(groupID, artifactID, version string, scope coordinate.Scope) coordinate.Dependency {
	return coordinate.Dependency{
		Coordinate: coordinate.Coordinate{GroupID: groupID, ArtifactID: artifactID, Version: version},
		Scope:      scope,
	}
}

func TestResolveSimpleChain(t *testing.T) {
	// root -> a -> b (leaf)
	root := coordinate.Coordinate{GroupID: "g", ArtifactID: "root", Version: "1.0"}
	a := coordinate.Coordinate{GroupID: "g", ArtifactID: "a", Version: "1.0"}
	b := coordinate.Coordinate{GroupID: "g", ArtifactID: "b", Version: "1.0"}

	fetcher := &fakeProjects{projects: map[string]*pom.Project{
		"g:root:1.0": project(root, dep("g", "a", "1.0", coordinate.ScopeCompile)),
		"g:a:1.0":    project(a, dep("g", "b", "1.0", coordinate.ScopeCompile)),
		"g:b:1.0":    project(b),
	}}

	r := New(fetcher, nil, 2)
	results, err := r.Resolve(context.Background(), []coordinate.Dependency{dep("g", "root", "1.0", coordinate.ScopeCompile)})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Leaves must appear before the roots that depend on them.
	order := map[string]int{}
	for i, res := range results {
		order[res.Coordinate.ArtifactID] = i
	}
	assert.Less(t, order["b"], order["a"])
	assert.Less(t, order["a"], order["root"])
}

func TestResolveNearestWins(t *testing.T) {
	// root depends directly on dep@2.0 (depth 1) and on mid -> dep@1.0 (depth 2).
	// The shallower, direct dependency should win.
	root := coordinate.Coordinate{GroupID: "g", ArtifactID: "root", Version: "1.0"}
	mid := coordinate.Coordinate{GroupID: "g", ArtifactID: "mid", Version: "1.0"}
	depV1 := coordinate.Coordinate{GroupID: "g", ArtifactID: "dep", Version: "1.0"}
	depV2 := coordinate.Coordinate{GroupID: "g", ArtifactID: "dep", Version: "2.0"}

	fetcher := &fakeProjects{projects: map[string]*pom.Project{
		"g:root:1.0": project(root,
			dep("g", "dep", "2.0", coordinate.ScopeCompile),
			dep("g", "mid", "1.0", coordinate.ScopeCompile),
		),
		"g:mid:1.0":  project(mid, dep("g", "dep", "1.0", coordinate.ScopeCompile)),
		"g:dep:1.0":  project(depV1),
		"g:dep:2.0":  project(depV2),
	}}

	r := New(fetcher, nil, 1)
	results, err := r.Resolve(context.Background(), []coordinate.Dependency{dep("g", "root", "1.0", coordinate.ScopeCompile)})
	require.NoError(t, err)

	var depVersions []string
	for _, res := range results {
		if res.Coordinate.ArtifactID == "dep" {
			depVersions = append(depVersions, res.Coordinate.Version)
		}
	}
	require.Len(t, depVersions, 1, "nearest-wins must leave only one resolved version of dep")
	assert.Equal(t, "2.0", depVersions[0])
}

func TestResolveSkipsTestScopeTransitively(t *testing.T) {
	root := coordinate.Coordinate{GroupID: "g", ArtifactID: "root", Version: "1.0"}
	testDep := coordinate.Coordinate{GroupID: "g", ArtifactID: "junit-helper", Version: "1.0"}

	fetcher := &fakeProjects{projects: map[string]*pom.Project{
		"g:root:1.0": project(root, dep("g", "junit-helper", "1.0", coordinate.ScopeTest)),
		"g:junit-helper:1.0": project(testDep),
	}}

	r := New(fetcher, nil, 1)
	results, err := r.Resolve(context.Background(), []coordinate.Dependency{dep("g", "root", "1.0", coordinate.ScopeCompile)})
	require.NoError(t, err)
	for _, res := range results {
		assert.NotEqual(t, "junit-helper", res.Coordinate.ArtifactID)
	}
}

func TestResolveSkipsOptionalTransitively(t *testing.T) {
	root := coordinate.Coordinate{GroupID: "g", ArtifactID: "root", Version: "1.0"}
	optDep := coordinate.Dependency{
		Coordinate: coordinate.Coordinate{GroupID: "g", ArtifactID: "opt", Version: "1.0"},
		Scope:      coordinate.ScopeCompile,
		Optional:   true,
	}
	fetcher := &fakeProjects{projects: map[string]*pom.Project{
		"g:root:1.0": project(root, optDep),
		"g:opt:1.0":  project(coordinate.Coordinate{GroupID: "g", ArtifactID: "opt", Version: "1.0"}),
	}}
	r := New(fetcher, nil, 1)
	results, err := r.Resolve(context.Background(), []coordinate.Dependency{dep("g", "root", "1.0", coordinate.ScopeCompile)})
	require.NoError(t, err)
	for _, res := range results {
		assert.NotEqual(t, "opt", res.Coordinate.ArtifactID)
	}
}

func TestResolveHonorsExclusions(t *testing.T) {
	root := coordinate.Coordinate{GroupID: "g", ArtifactID: "root", Version: "1.0"}
	mid := coordinate.Coordinate{GroupID: "g", ArtifactID: "mid", Version: "1.0"}
	excludedDep := coordinate.Dependency{
		Coordinate: coordinate.Coordinate{GroupID: "g", ArtifactID: "unwanted", Version: "1.0"},
		Scope:      coordinate.ScopeCompile,
	}
	rootDep := coordinate.Dependency{
		Coordinate: coordinate.Coordinate{GroupID: "g", ArtifactID: "mid", Version: "1.0"},
		Scope:      coordinate.ScopeCompile,
		Exclusions: []coordinate.Exclusion{{GroupID: "g", ArtifactID: "unwanted"}},
	}
	fetcher := &fakeProjects{projects: map[string]*pom.Project{
		"g:root:1.0":     project(root, rootDep),
		"g:mid:1.0":      project(mid, excludedDep),
		"g:unwanted:1.0": project(coordinate.Coordinate{GroupID: "g", ArtifactID: "unwanted", Version: "1.0"}),
	}}
	r := New(fetcher, nil, 1)
	results, err := r.Resolve(context.Background(), []coordinate.Dependency{dep("g", "root", "1.0", coordinate.ScopeCompile)})
	require.NoError(t, err)
	for _, res := range results {
		assert.NotEqual(t, "unwanted", res.Coordinate.ArtifactID)
	}
}

func TestResolveUnknownDependencyProducesError(t *testing.T) {
	root := coordinate.Coordinate{GroupID: "g", ArtifactID: "root", Version: "1.0"}
	fetcher := &fakeProjects{projects: map[string]*pom.Project{
		"g:root:1.0": project(root, dep("g", "missing", "1.0", coordinate.ScopeCompile)),
	}}
	r := New(fetcher, nil, 1)
	_, err := r.Resolve(context.Background(), []coordinate.Dependency{dep("g", "root", "1.0", coordinate.ScopeCompile)})
	assert.Error(t, err)
}
