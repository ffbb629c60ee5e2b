// Package classpath exposes resolved artifacts to a host's class-loading
// machinery. The actual mechanism for injecting a JAR into a running JVM
// is host-specific and privileged (reflection into a URLClassLoader,
// a platform API, or a process-level allow-list); this package models
// that mechanism as an opaque adapter boundary behind the ClassPathSink
// interface so the rest of the module never needs to know which one it's
// talking to.
package classpath

import (
	"fmt"
	"sync"

	"gopkg.in/op/go-logging.v1"
)

var log = logging.MustGetLogger("classpath")

// InjectionError reports that a host classloader refused a classpath
// addition.
type InjectionError struct {
	Path string
	Sink string
	Err  error
}

func (e *InjectionError) Error() string {
	return fmt.Sprintf("injecting %s into %s classpath: %s", e.Path, e.Sink, e.Err)
}

func (e *InjectionError) Unwrap() error { return e.Err }

// ClassPathSink accepts JAR paths into some class-loading scope. Both
// Shared and Isolated sinks must be safe for concurrent Add calls.
type ClassPathSink interface {
	Add(path string) error
	Name() string
}

// HostAdder is the narrow, host-supplied hook a ClassPathSink delegates
// to: whatever privileged step actually makes path visible to the JVM
// (reflectively invoking an "add URL" method, a platform API, or similar).
// It is intentionally opaque to this package.
type HostAdder interface {
	AddURL(path string) error
}

// sharedSink inserts JARs into the host's existing class loader via a
// host-supplied reflective hook. Its own bookkeeping (the set of paths
// already added) is guarded by a mutex so concurrent Add calls from
// multiple resolver workers are safe even though the underlying host hook
// might not be.
type sharedSink struct {
	mu    sync.Mutex
	host  HostAdder
	added map[string]bool
}

// NewShared returns a ClassPathSink that injects into the host's existing
// class loader through host. The mechanism host uses is opaque to this
// package; it only needs to implement AddURL.
func NewShared(host HostAdder) ClassPathSink {
	return &sharedSink{host: host, added: map[string]bool{}}
}

func (s *sharedSink) Name() string { return "shared" }

func (s *sharedSink) Add(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.added[path] {
		return nil
	}
	if err := s.host.AddURL(path); err != nil {
		return &InjectionError{Path: path, Sink: s.Name(), Err: err}
	}
	s.added[path] = true
	log.Debug("added %s to shared classpath", path)
	return nil
}

// isolatedSink represents a fresh class loader with no parent delegation
// to the host's application classes; classes loaded through it are
// invisible to the host and to other isolated sinks unless the host
// explicitly reaches into this loader. The host hook is responsible for
// actually constructing and populating that loader; this type just tracks
// which paths have been handed to it and under which name, for log
// correlation and idempotent re-adds.
type isolatedSink struct {
	mu    sync.Mutex
	name  string
	host  HostAdder
	added map[string]bool
}

// NewIsolated returns a ClassPathSink backed by a fresh, non-delegating
// class loader identified by name (used only for log correlation).
func NewIsolated(name string, host HostAdder) ClassPathSink {
	return &isolatedSink{name: name, host: host, added: map[string]bool{}}
}

func (s *isolatedSink) Name() string { return "isolated:" + s.name }

func (s *isolatedSink) Add(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.added[path] {
		return nil
	}
	if err := s.host.AddURL(path); err != nil {
		return &InjectionError{Path: path, Sink: s.Name(), Err: err}
	}
	s.added[path] = true
	log.Debug("added %s to isolated classpath %s", path, s.name)
	return nil
}

// Registry is a typed, mutex-guarded table of live sinks keyed by name,
// so a host can look up and reuse an isolated loader across multiple
// loadDependenciesIsolated calls instead of leaking a fresh one each time.
type Registry struct {
	mu    sync.Mutex
	sinks map[string]ClassPathSink
}

// NewRegistry returns an empty sink registry.
func NewRegistry() *Registry {
	return &Registry{sinks: map[string]ClassPathSink{}}
}

// GetOrCreateIsolated returns the isolated sink registered under name,
// creating and registering one backed by host if none exists yet.
func (r *Registry) GetOrCreateIsolated(name string, host HostAdder) ClassPathSink {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sink, present := r.sinks[name]; present {
		return sink
	}
	sink := NewIsolated(name, host)
	r.sinks[name] = sink
	return sink
}

// Remove drops a registered sink, allowing its resources to be reclaimed
// by the host. It does not itself close or unload anything; that is the
// host's responsibility.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sinks, name)
}
