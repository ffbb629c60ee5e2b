// Package cache implements a content-addressed on-disk store for
// downloaded artifacts, keyed by their Maven repository-layout path:
// atomic writes, sidecar checksum files, per-coordinate single-flight
// locking, and background LRU eviction.
package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/djherbis/atime"
	"github.com/dustin/go-humanize"
	"gopkg.in/op/go-logging.v1"

	"github.com/pluginforge/libresolve/src/coordinate"
	libfs "github.com/pluginforge/libresolve/src/fs"
)

var log = logging.MustGetLogger("cache")

// Fetcher downloads the raw bytes for a repository-relative path, trying
// repositories in order; it's normally backed by a repository.List.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// Cache is a local, content-addressed store of artifacts and POM/metadata
// documents, laid out on disk exactly as a Maven repository would be.
type Cache struct {
	root string

	mu     sync.Mutex
	flight map[string]*sync.Mutex // per (coordinate, fileType) single-flight lock
}

// New constructs a Cache rooted at dir, creating it if necessary.
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, libfs.DirPermissions); err != nil {
		return nil, fmt.Errorf("creating cache root %s: %w", dir, err)
	}
	return &Cache{root: dir, flight: map[string]*sync.Mutex{}}, nil
}

// Path returns the absolute on-disk path a repository-relative path would
// occupy in this cache, without touching the filesystem.
func (c *Cache) Path(relative string) string {
	return filepath.Join(c.root, filepath.FromSlash(relative))
}

// lockFor returns the mutex guarding concurrent fetches of relative within
// this process, creating one on first use.
func (c *Cache) lockFor(relative string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.flight[relative]
	if !ok {
		m = &sync.Mutex{}
		c.flight[relative] = m
	}
	return m
}

// Lookup returns the cached bytes for relative, and true, if the file
// already exists on disk. It does not check a checksum sidecar itself;
// callers that need checksum verification use Checksum alongside this.
func (c *Cache) Lookup(relative string) ([]byte, bool) {
	b, err := os.ReadFile(c.Path(relative))
	if err != nil {
		return nil, false
	}
	return b, true
}

// Checksum returns the contents of the sidecar checksum file for relative
// (".sha1" or ".md5"), if present.
func (c *Cache) Checksum(relative, algorithm string) (string, bool) {
	b, err := os.ReadFile(c.Path(coordinate.ChecksumPath(relative, algorithm)))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(b)), true
}

// Store writes content to relative's cache location atomically: a ".part"
// temp file is written first, then renamed into place, so a concurrent
// reader never observes a partial file.
func (c *Cache) Store(relative string, content []byte) error {
	lock := c.lockFor(relative)
	lock.Lock()
	defer lock.Unlock()

	dest := c.Path(relative)
	if libfs.FileExists(dest) {
		// Another process (or an earlier single-flight winner) already won
		// this race; the atomic rename guarantees dest is complete.
		return nil
	}
	return libfs.WriteFile(strings.NewReader(string(content)), dest, 0644)
}

// StoreChecksum writes the sidecar checksum file for relative after a
// successful verification.
func (c *Cache) StoreChecksum(relative, algorithm, checksum string) error {
	return libfs.WriteFile(strings.NewReader(checksum), c.Path(coordinate.ChecksumPath(relative, algorithm)), 0644)
}

// Evict removes relative and any sidecar checksum files for it, used when
// verification fails and a clean re-download is required.
func (c *Cache) Evict(relative string) error {
	if err := libfs.RemoveAll(c.Path(relative)); err != nil {
		return err
	}
	for _, algorithm := range []string{"sha1", "md5"} {
		if err := libfs.RemoveAll(c.Path(coordinate.ChecksumPath(relative, algorithm))); err != nil {
			return err
		}
	}
	return nil
}

// WithSingleFlight runs fn only once per relative across concurrent callers
// within this process; concurrent callers for the same relative block until
// the first completes, then all observe whatever Lookup subsequently returns.
func (c *Cache) WithSingleFlight(relative string, fn func() error) error {
	// Keyed apart from Store's own lock, since fn commonly calls Store for
	// the same relative path.
	lock := c.lockFor("flight:" + relative)
	lock.Lock()
	defer lock.Unlock()
	if libfs.FileExists(c.Path(relative)) {
		return nil
	}
	return fn()
}

// entry is one artifact tracked during a cleaning pass.
type entry struct {
	path  string
	size  int64
	atime int64
}

// accessTimeGracePeriod: two artifacts within this many seconds of each
// other are treated as equally recent, breaking ties by size so cleaning
// prefers evicting the larger one.
const accessTimeGracePeriod = 600

// Clean runs a single LRU eviction pass: if the cache exceeds highWaterMark
// bytes, the least-recently-accessed entries are removed (oldest first,
// ties broken toward evicting the larger entry) until it's back under
// lowWaterMark.
func (c *Cache) Clean(highWaterMark, lowWaterMark uint64) (uint64, error) {
	var entries []entry
	var total int64
	err := libfs.Walk(c.root, func(path string, isDir bool) error {
		if isDir || strings.HasSuffix(path, ".sha1") || strings.HasSuffix(path, ".md5") || strings.HasSuffix(path, ".part") {
			return nil
		}
		info, err := os.Lstat(path)
		if err != nil {
			return err
		}
		entries = append(entries, entry{path: path, size: info.Size(), atime: atime.Get(info).Unix()})
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walking cache root %s: %w", c.root, err)
	}
	log.Info("total cache size: %s", humanize.Bytes(uint64(total)))
	if uint64(total) < highWaterMark {
		return uint64(total), nil
	}

	sort.Slice(entries, func(i, j int) bool {
		diff := entries[i].atime - entries[j].atime
		if diff > -accessTimeGracePeriod && diff < accessTimeGracePeriod {
			return entries[i].size > entries[j].size
		}
		return entries[i].atime < entries[j].atime
	})

	for _, e := range entries {
		if uint64(total) < lowWaterMark {
			break
		}
		log.Debug("evicting %s, last accessed %s, frees %s", e.path, humanize.Time(time.Unix(e.atime, 0)), humanize.Bytes(uint64(e.size)))
		if err := libfs.RemoveAll(e.path); err != nil {
			log.Error("failed to evict %s: %s", e.path, err)
			continue
		}
		total -= e.size
	}
	return uint64(total), nil
}

// StartBackgroundCleaning launches a goroutine that runs Clean on the given
// interval until ctx is cancelled.
func (c *Cache) StartBackgroundCleaning(ctx context.Context, interval time.Duration, highWaterMark, lowWaterMark uint64) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := c.Clean(highWaterMark, lowWaterMark); err != nil {
					log.Error("cache cleaning pass failed: %s", err)
				}
			}
		}
	}()
}
