package depman

import (
	"context"
	"errors"
	"strings"

	"github.com/pluginforge/libresolve/src/coordinate"
	"github.com/pluginforge/libresolve/src/pom"
	"github.com/pluginforge/libresolve/src/repository"
)

// projectFetcher adapts a Manager's repository list and cache into a
// pom.PomFetcher, so pom.Parse can recurse into <parent> and BOM imports
// without knowing anything about caching or transport.
type projectFetcher struct {
	m   *Manager
	ctx context.Context
}

func (f *projectFetcher) FetchProject(c coordinate.Coordinate) (*pom.Project, error) {
	raw, err := f.m.fetchCached(f.ctx, c.PomPath())
	if err != nil {
		return nil, err
	}
	project, err := pom.Parse(raw, c, f)
	if err != nil {
		return nil, err
	}
	f.m.addDiscoveredRepositories(project.Repositories)
	return project, nil
}

// metadataFetcher adapts a Manager into a resolve.MetadataFetcher.
type metadataFetcher struct {
	m   *Manager
	ctx context.Context
}

func (f *metadataFetcher) FetchMetadata(groupID, artifactID string) (*pom.Metadata, error) {
	c := coordinate.Coordinate{GroupID: groupID, ArtifactID: artifactID}
	path := c.MetadataPath()
	raw, err := f.m.fetchCached(f.ctx, path)
	if err != nil {
		return nil, err
	}
	return pom.ParseMetadata(raw, path)
}

// checksumSource adapts a Manager's repository list into a
// verify.ChecksumSource for a single artifact path; a missing sidecar is
// reported as ok=false, not an error.
type checksumSource struct {
	m    *Manager
	ctx  context.Context
	path string
}

func (s *checksumSource) FetchChecksum(algorithm string) (string, bool, error) {
	b, _, err := s.m.repos.Get(s.ctx, coordinate.ChecksumPath(s.path, algorithm))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return strings.TrimSpace(string(b)), true, nil
}
