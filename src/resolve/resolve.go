// Package resolve implements transitive dependency resolution over the
// Maven dependency graph: version resolution, nearest-wins conflict
// handling, scope/optional/exclusion filtering, and a deterministic
// post-order emission of the resolved graph.
package resolve

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/op/go-logging.v1"

	"github.com/pluginforge/libresolve/src/coordinate"
	"github.com/pluginforge/libresolve/src/pom"
)

var log = logging.MustGetLogger("resolve")

// UnresolvedVersionError reports a dependency whose version could not be
// determined from its own declaration, a managed version, or repository
// metadata.
type UnresolvedVersionError struct {
	Key   coordinate.Key
	Chain []coordinate.Coordinate
}

func (e *UnresolvedVersionError) Error() string {
	return fmt.Sprintf("unable to resolve version for %s:%s (required by %s)", e.Key.GroupID, e.Key.ArtifactID, ancestorChain(e.Chain))
}

func ancestorChain(chain []coordinate.Coordinate) string {
	if len(chain) == 0 {
		return "<root>"
	}
	s := chain[0].String()
	for _, c := range chain[1:] {
		s += " -> " + c.String()
	}
	return s
}

// PomFetcher fetches and assembles the Project for a coordinate; satisfied
// by src/pom's own PomFetcher plus whatever download/cache/verify plumbing
// the facade wires in front of it.
type PomFetcher = pom.PomFetcher

// MetadataFetcher fetches group/artifact metadata, used to pick a version
// when none is specified.
type MetadataFetcher interface {
	FetchMetadata(groupID, artifactID string) (*pom.Metadata, error)
}

// Resolved is one entry of the resolver's output: a fully versioned
// coordinate together with its scope and the depth it was found at (used
// to derive the final post-order).
type Resolved struct {
	Coordinate coordinate.Coordinate
	Scope      coordinate.Scope
	Depth      int
	seq        int64
}

// Resolver walks the transitive dependency graph rooted at a set of
// top-level dependencies.
type Resolver struct {
	Poms        PomFetcher
	Metadata    MetadataFetcher
	Concurrency int

	mu             sync.Mutex
	management     map[coordinate.Key]string // global dependencyManagement, group:artifact -> version
	resolvedDepth  map[coordinate.Key]int
	resolvedVer    map[coordinate.Key]string
	processed      map[string]bool // exact coordinate.String() already expanded
	results        []Resolved
	seqCounter     int64
	errs           *multierror.Error
	tasks          *queue.PriorityQueue
	liveTasks      int64
	closeOnce      sync.Once
}

// closeQueue disposes of the task queue exactly once, unblocking every
// worker still parked in a Get call with queue.ErrDisposed.
func (r *Resolver) closeQueue() {
	r.closeOnce.Do(r.tasks.Dispose)
}

// task is one unit of work in the resolver's priority queue.
type task struct {
	dep        coordinate.Dependency
	depth      int
	exclusions []coordinate.Exclusion
	chain      []coordinate.Coordinate
	isRoot     bool
	seq        int64
}

// Compare implements queue.Item: shallower depth first, then versioned
// dependencies before unversioned ones (so version-bearing nodes settle
// nearest-wins decisions before their soft-versioned siblings are looked
// at), then insertion order.
func (t *task) Compare(other queue.Item) int {
	o := other.(*task)
	if t.depth != o.depth {
		if t.depth < o.depth {
			return -1
		}
		return 1
	}
	tv, ov := t.dep.Version != "", o.dep.Version != ""
	if tv != ov {
		if tv {
			return -1
		}
		return 1
	}
	switch {
	case t.seq < o.seq:
		return -1
	case t.seq > o.seq:
		return 1
	default:
		return 0
	}
}

// New constructs a Resolver. concurrency <= 0 defaults to 1 (serial).
func New(poms PomFetcher, metadata MetadataFetcher, concurrency int) *Resolver {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Resolver{
		Poms:          poms,
		Metadata:      metadata,
		Concurrency:   concurrency,
		management:    map[coordinate.Key]string{},
		resolvedDepth: map[coordinate.Key]int{},
		resolvedVer:   map[coordinate.Key]string{},
		processed:     map[string]bool{},
		tasks:         queue.NewPriorityQueue(100, false),
	}
}

// Resolve runs resolution to completion and returns the
// resolved coordinates in reverse depth-first post-order (leaves first).
func (r *Resolver) Resolve(ctx context.Context, roots []coordinate.Dependency) ([]Resolved, error) {
	for _, root := range roots {
		r.submit(&task{dep: root, depth: 0, isRoot: true})
	}

	var wg sync.WaitGroup
	wg.Add(r.Concurrency)
	for i := 0; i < r.Concurrency; i++ {
		go func() {
			defer wg.Done()
			r.worker(ctx)
		}()
	}
	wg.Wait()

	var err error
	if r.errs != nil {
		err = r.errs.ErrorOrNil()
	}
	return r.emit(), err
}

func (r *Resolver) submit(t *task) {
	r.mu.Lock()
	t.seq = r.seqCounter
	r.seqCounter++
	r.mu.Unlock()
	atomic.AddInt64(&r.liveTasks, 1)
	if err := r.tasks.Put(t); err != nil {
		log.Error("failed to enqueue %s: %s", t.dep.Coordinate, err)
	}
}

func (r *Resolver) worker(ctx context.Context) {
	for {
		if err := ctx.Err(); err != nil {
			r.recordError(err)
			r.closeQueue()
			return
		}
		items, err := r.tasks.Get(1)
		if err != nil {
			// Disposed by whichever worker drained the last task, or by a
			// sibling that hit ctx.Err() first; either way, time to stop.
			return
		}
		t := items[0].(*task)
		r.process(ctx, t)
		if atomic.AddInt64(&r.liveTasks, -1) <= 0 {
			r.closeQueue()
			return
		}
	}
}

// process implements the mediation and enqueue steps for a single dependency.
func (r *Resolver) process(ctx context.Context, t *task) {
	dep := t.dep
	key := dep.Key()

	if dep.Version == "" {
		version, err := r.resolveVersion(dep, t.chain)
		if err != nil {
			r.recordError(err)
			return
		}
		dep.Version = version
	}

	if !t.isRoot {
		if !dep.Scope.IsTransitive() {
			log.Debug("skipping %s: scope %s is not transitive", dep.Coordinate, dep.Scope)
			return
		}
		if dep.Optional {
			log.Debug("skipping optional dependency %s", dep.Coordinate)
			return
		}
		for _, ex := range t.exclusions {
			if ex.Matches(dep.Coordinate) {
				log.Debug("skipping %s: excluded by ancestor", dep.Coordinate)
				return
			}
		}
	}

	r.mu.Lock()
	if existingDepth, ok := r.resolvedDepth[key]; ok {
		existingVer := r.resolvedVer[key]
		if existingDepth <= t.depth && existingVer != dep.Version {
			r.mu.Unlock()
			log.Debug("nearest-wins: keeping %s:%s@%s over %s found at depth %d", key.GroupID, key.ArtifactID, existingVer, dep.Version, t.depth)
			return
		}
		if existingDepth <= t.depth && existingVer == dep.Version {
			r.mu.Unlock()
			return
		}
		// t.depth < existingDepth: this occurrence is nearer, supersede it.
	}
	r.resolvedDepth[key] = t.depth
	r.resolvedVer[key] = dep.Version
	exact := dep.Coordinate.String()
	alreadyProcessed := r.processed[exact]
	r.mu.Unlock()

	if alreadyProcessed {
		return
	}

	project, err := r.Poms.FetchProject(dep.Coordinate)
	if err != nil {
		r.recordError(fmt.Errorf("fetching POM for %s (required by %s): %w", dep.Coordinate, ancestorChain(t.chain), err))
		return
	}

	r.mu.Lock()
	for k, v := range project.Management {
		if _, present := r.management[k]; !present {
			r.management[k] = v.Version
		}
	}
	r.processed[exact] = true
	seq := r.seqCounter
	r.seqCounter++
	r.results = append(r.results, Resolved{Coordinate: dep.Coordinate, Scope: dep.Scope, Depth: t.depth, seq: seq})
	r.mu.Unlock()

	childExclusions := append(append([]coordinate.Exclusion(nil), t.exclusions...), dep.Exclusions...)
	childChain := append(append([]coordinate.Coordinate(nil), t.chain...), dep.Coordinate)
	for _, childDep := range project.Dependencies {
		r.submit(&task{dep: childDep, depth: t.depth + 1, exclusions: childExclusions, chain: childChain})
	}
}

// resolveVersion resolves a dependency's version in order: local
// dependency-management (carried on the dependency itself, already applied
// by src/pom when it assembled the project), the accumulated global
// management map, the resolved-version cache, then group metadata.
func (r *Resolver) resolveVersion(dep coordinate.Dependency, chain []coordinate.Coordinate) (string, error) {
	key := dep.Key()
	r.mu.Lock()
	if v, ok := r.management[key]; ok {
		r.mu.Unlock()
		return v, nil
	}
	if v, ok := r.resolvedVer[key]; ok {
		r.mu.Unlock()
		return v, nil
	}
	r.mu.Unlock()

	if r.Metadata == nil {
		return "", &UnresolvedVersionError{Key: key, Chain: chain}
	}
	metadata, err := r.Metadata.FetchMetadata(dep.GroupID, dep.ArtifactID)
	if err != nil {
		return "", &UnresolvedVersionError{Key: key, Chain: chain}
	}
	best, ok := metadata.BestVersion()
	if !ok {
		return "", &UnresolvedVersionError{Key: key, Chain: chain}
	}
	return best, nil
}

func (r *Resolver) recordError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = multierror.Append(r.errs, err)
}

// emit produces the final ordering: stable, deeper-first, ties broken by
// insertion order.
func (r *Resolver) emit() []Resolved {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]Resolved(nil), r.results...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth > out[j].Depth
		}
		return out[i].seq < out[j].seq
	})
	return out
}
