// Package depman is the orchestrator facade: it composes coordinate
// parsing, POM assembly, transitive resolution, download+verify, optional
// relocation and classpath injection into one fixed resolve -> fetch ->
// relocate -> inject pipeline, exposed as a small public surface a host
// embeds directly.
package depman

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pluginforge/libresolve/src/cache"
	"github.com/pluginforge/libresolve/src/classpath"
	"github.com/pluginforge/libresolve/src/coordinate"
	"github.com/pluginforge/libresolve/src/relocate"
	"github.com/pluginforge/libresolve/src/repository"
	"github.com/pluginforge/libresolve/src/resolve"
	"github.com/pluginforge/libresolve/src/verify"
)

// Manager is the stateful handle a host keeps for the lifetime of a
// session: its repository list, local cache, and any live isolated
// classpath sinks.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	repos    *repository.List
	repoURLs map[string]bool // dedupes AddRepository/addDiscoveredRepositories
	cache    *cache.Cache

	sinks  *classpath.Registry
	shared classpath.ClassPathSink

	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a Manager from cfg. If cfg.Host is set, a shared
// ClassPathSink backed by it is wired up automatically; otherwise
// LoadDependency/LoadDependencies download, verify and relocate but skip
// injection, returning only local paths.
func New(cfg Config) (*Manager, error) {
	if cfg.LibsDir == "" {
		return nil, &ConfigurationError{Field: "LibsDir", Err: errors.New("must be set")}
	}
	cfg = cfg.withDefaults()

	c, err := cache.New(cfg.LibsDir)
	if err != nil {
		return nil, &ConfigurationError{Field: "LibsDir", Err: err}
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:      cfg,
		repos:    repository.NewList(),
		repoURLs: map[string]bool{},
		cache:    c,
		sinks:    classpath.NewRegistry(),
		ctx:      ctx,
		cancel:   cancel,
	}
	if cfg.Host != nil {
		m.shared = classpath.NewShared(cfg.Host)
	}
	if cfg.CacheHighWaterMark > 0 {
		c.StartBackgroundCleaning(ctx, cfg.CleanInterval, cfg.CacheHighWaterMark, cfg.CacheLowWaterMark)
	}
	if cfg.Offline {
		log.Info("offline mode: only the local cache at %s will be consulted", cfg.LibsDir)
	}
	return m, nil
}

// AddRepository adds a remote Maven repository to the end of this
// Manager's fallback list (addRepository).
func (m *Manager) AddRepository(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addRepositoryLocked(url)
}

func (m *Manager) addRepositoryLocked(url string) {
	if m.cfg.Offline {
		log.Debug("offline mode: not adding repository %s", url)
		return
	}
	if m.repoURLs[url] {
		return
	}
	m.repoURLs[url] = true
	m.repos = m.repos.With(repository.NewRemote(url, m.cfg.RequestTimeout))
}

// addDiscoveredRepositories merges repository URLs declared by a fetched
// POM's <repositories> section into this Manager's fallback list, in the
// order given, skipping any URL already present.
func (m *Manager) addDiscoveredRepositories(urls []string) {
	if len(urls) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, url := range urls {
		m.addRepositoryLocked(url)
	}
}

// AddDefaultRepositoryMirror adds Maven Central as a fallback repository.
func (m *Manager) AddDefaultRepositoryMirror() {
	m.AddRepository("https://repo1.maven.org/maven2")
}

// LoadDependency resolves and injects a single artifact and its transitive
// dependencies, returning the local path of the requested artifact itself.
// Resolved output is emitted depth-descending , so the
// depth-0 root requested here is always the last path returned.
func (m *Manager) LoadDependency(c coordinate.Coordinate) (string, error) {
	paths, err := m.LoadDependencies([]coordinate.Dependency{{Coordinate: c, Scope: coordinate.ScopeCompile}}, nil)
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("depman: %s resolved to no artifacts", c)
	}
	return paths[len(paths)-1], nil
}

// LoadDependencies resolves deps transitively, downloads and verifies every
// resolved artifact, applies relocations (if any), injects each into this
// Manager's shared classpath sink (if configured), and returns the local
// path of every artifact in resolution order.
func (m *Manager) LoadDependencies(deps []coordinate.Dependency, relocations []relocate.Relocation) ([]string, error) {
	m.mu.Lock()
	sink := m.shared
	m.mu.Unlock()
	return m.loadInto(deps, relocations, sink)
}

// LoadDependenciesIsolated is LoadDependencies, but injection goes to a
// fresh (or previously created, if name was used before) isolated
// classpath sink with no delegation to the host's application classes.
func (m *Manager) LoadDependenciesIsolated(name string, host classpath.HostAdder, deps []coordinate.Dependency, relocations []relocate.Relocation) ([]string, error) {
	sink := m.sinks.GetOrCreateIsolated(name, host)
	return m.loadInto(deps, relocations, sink)
}

func (m *Manager) loadInto(deps []coordinate.Dependency, relocations []relocate.Relocation, sink classpath.ClassPathSink) ([]string, error) {
	correlationID := uuid.New().String()
	log.Info("[%s] resolving %d root dependencies", correlationID, len(deps))

	pf := &projectFetcher{m: m, ctx: m.ctx}
	mf := &metadataFetcher{m: m, ctx: m.ctx}
	resolver := resolve.New(pf, mf, m.cfg.WorkerCount)

	resolved, err := resolver.Resolve(m.ctx, deps)
	if err != nil {
		return nil, fmt.Errorf("[%s] resolving dependencies: %w", correlationID, err)
	}
	log.Info("[%s] resolved %d artifacts", correlationID, len(resolved))

	paths := make([]string, len(resolved))
	sem := make(chan struct{}, m.cfg.WorkerCount)
	var g errgroup.Group
	for i, r := range resolved {
		i, r := i, r
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			p, err := m.fetchVerifyRelocate(m.ctx, r.Coordinate, relocations)
			if err != nil {
				return fmt.Errorf("loading %s: %w", r.Coordinate, err)
			}
			paths[i] = p
			if sink != nil {
				if err := sink.Add(p); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

// fetchVerifyRelocate downloads (or serves from cache) a single artifact,
// verifies its checksum, and applies relocations if any were requested,
// returning the local path of the artifact a host should add to its
// classpath.
func (m *Manager) fetchVerifyRelocate(ctx context.Context, c coordinate.Coordinate, relocations []relocate.Relocation) (string, error) {
	artifactPath := c.ArtifactPath()
	raw, err := m.fetchCached(ctx, artifactPath)
	if err != nil {
		return "", err
	}

	result, err := verify.Verify(c, raw, &checksumSource{m: m, ctx: ctx, path: artifactPath})
	if err != nil {
		if evictErr := m.cache.Evict(artifactPath); evictErr != nil {
			log.Warning("failed to evict %s after checksum failure: %s", artifactPath, evictErr)
		}
		return "", err
	}
	if !result.Unchecked {
		digest := verify.SHA1(raw)
		if result.Algorithm == "md5" {
			digest = verify.MD5(raw)
		}
		if err := m.cache.StoreChecksum(artifactPath, result.Algorithm, digest); err != nil {
			log.Warning("failed to record %s checksum for %s: %s", result.Algorithm, artifactPath, err)
		}
	}

	if len(relocations) == 0 {
		return m.cache.Path(artifactPath), nil
	}

	relocatedPath := withRelocatedSuffix(artifactPath)
	if _, ok := m.cache.Lookup(relocatedPath); ok {
		return m.cache.Path(relocatedPath), nil
	}
	var out bytes.Buffer
	if err := relocate.Relocate(bytes.NewReader(raw), int64(len(raw)), &out, relocations); err != nil {
		return "", fmt.Errorf("relocating %s: %w", c, err)
	}
	if err := m.cache.Store(relocatedPath, out.Bytes()); err != nil {
		return "", err
	}
	return m.cache.Path(relocatedPath), nil
}

// fetchCached returns the cached bytes for a repository-relative path,
// downloading and caching them on first access, with concurrent callers
// for the same path collapsed onto a single fetch.
func (m *Manager) fetchCached(ctx context.Context, relative string) ([]byte, error) {
	if b, ok := m.cache.Lookup(relative); ok {
		return b, nil
	}
	var raw []byte
	var fetchErr error
	err := m.cache.WithSingleFlight(relative, func() error {
		b, _, err := m.repos.Get(ctx, relative)
		if err != nil {
			fetchErr = err
			return err
		}
		raw = b
		return m.cache.Store(relative, b)
	})
	if err != nil {
		return nil, err
	}
	if raw != nil {
		return raw, nil
	}
	if b, ok := m.cache.Lookup(relative); ok {
		return b, nil
	}
	return nil, fetchErr
}

func withRelocatedSuffix(relative string) string {
	ext := path.Ext(relative)
	return strings.TrimSuffix(relative, ext) + "-relocated" + ext
}

// Close stops background cache cleaning and releases any resources held by
// this Manager. It does not remove downloaded artifacts from LibsDir.
func (m *Manager) Close() error {
	m.cancel()
	return nil
}
