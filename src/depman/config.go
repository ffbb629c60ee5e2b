package depman

import (
	"time"

	"github.com/pluginforge/libresolve/src/classpath"
)

// Config configures a Manager, either constructed directly when embedding
// this module in a host, or populated from flags by cmd/depfetch.
type Config struct {
	// LibsDir is where downloaded, verified and (optionally) relocated
	// artifacts are written and cached across runs.
	LibsDir string
	// Offline, if true, only ever consults LibsDir: repositories passed to
	// AddRepository or declared by fetched POMs are not added, so anything
	// not already cached fails to load.
	Offline bool
	// WorkerCount bounds how many POM fetches / downloads run concurrently.
	// 0 selects the default (4x CPU cores).
	WorkerCount int
	// RequestTimeout bounds a single HTTP request to a remote repository.
	RequestTimeout time.Duration
	// CacheHighWaterMark and CacheLowWaterMark drive background cache
	// eviction; zero disables background cleaning.
	CacheHighWaterMark uint64
	CacheLowWaterMark  uint64
	// CleanInterval is how often a background cleaning pass runs, if
	// water marks are configured.
	CleanInterval time.Duration
	// Host is the host-supplied hook for the shared classpath sink. If
	// nil, LoadDependency/LoadDependencies still download, verify and
	// relocate but skip injection, returning only local paths.
	Host classpath.HostAdder
}

// ConfigurationError reports a Config that can't be used to construct a
// Manager (a missing required field, or values that contradict each other).
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Field + ": " + e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (c Config) withDefaults() Config {
	if c.WorkerCount <= 0 {
		c.WorkerCount = defaultWorkerCount()
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.CleanInterval <= 0 {
		c.CleanInterval = time.Hour
	}
	return c
}
