// Package repository provides read access to one or more Maven-layout
// repositories, over HTTP or from the local filesystem, with bounded retry
// and multi-repository fallback.
package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"gopkg.in/op/go-logging.v1"
)

var log = logging.MustGetLogger("repository")

// ErrNotFound is returned when a path does not exist in a repository; it is
// terminal and never retried.
var ErrNotFound = errors.New("repository: not found")

// NotFoundError wraps ErrNotFound with the path and repository that
// reported it, so callers further up the stack can report precisely which
// artifact was missing from where.
type NotFoundError struct {
	Path       string
	Repository string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: not found in %s", e.Path, e.Repository)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// TransportError wraps a non-terminal failure (connection refused, timeout,
// unexpected status code after retries exhausted) reaching a repository.
type TransportError struct {
	Path       string
	Repository string
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: fetching from %s: %s", e.Path, e.Repository, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Repository is a single source of Maven artifacts, addressed by
// repository-relative path (as produced by coordinate.Coordinate.ArtifactPath
// et al).
type Repository interface {
	// Get fetches the contents at path. Returns ErrNotFound if the
	// repository positively doesn't have it (HTTP 404/410, or the file is
	// absent on disk); any other error is presumed transient.
	Get(ctx context.Context, path string) ([]byte, error)
	// Head reports whether path exists, without necessarily fetching its
	// contents.
	Head(ctx context.Context, path string) (bool, error)
	// String names this repository for diagnostics and log messages.
	String() string
}

// List is a copy-on-write ordered set of repositories, tried in order until
// one succeeds or all have failed.
type List struct {
	repos []Repository
}

// NewList builds a List from the given repositories, tried in the order given.
func NewList(repos ...Repository) *List {
	return &List{repos: append([]Repository(nil), repos...)}
}

// With returns a new List with repo appended, leaving the receiver untouched.
func (l *List) With(repo Repository) *List {
	next := make([]Repository, len(l.repos), len(l.repos)+1)
	copy(next, l.repos)
	return &List{repos: append(next, repo)}
}

// Repositories returns the ordered repositories backing this list.
func (l *List) Repositories() []Repository {
	return append([]Repository(nil), l.repos...)
}

// Get tries each repository in order, returning the first successful
// response. If every repository fails, the last-tried repository's error
// decides the result: ErrNotFound is reported as a *NotFoundError (which
// matches ErrNotFound), and any other error is wrapped in a *TransportError.
func (l *List) Get(ctx context.Context, path string) ([]byte, Repository, error) {
	if len(l.repos) == 0 {
		return nil, nil, fmt.Errorf("repository: no repositories configured")
	}
	var lastRepo Repository
	var lastErr error
	for _, repo := range l.repos {
		b, err := repo.Get(ctx, path)
		if err == nil {
			return b, repo, nil
		}
		lastRepo, lastErr = repo, err
		if !errors.Is(err, ErrNotFound) {
			log.Warning("fetching %s from %s: %s", path, repo, err)
			continue
		}
	}
	if errors.Is(lastErr, ErrNotFound) {
		return nil, nil, &NotFoundError{Path: path, Repository: lastRepo.String()}
	}
	return nil, nil, &TransportError{Path: path, Repository: lastRepo.String(), Err: lastErr}
}

// remoteRepository fetches over HTTP(S) using a bounded-retry client: 3
// attempts, exponential backoff starting at 250ms, terminal (no retry) on
// 404/410.
type remoteRepository struct {
	baseURL string
	client  *retryablehttp.Client
}

// NewRemote constructs a Repository backed by an HTTP(S) Maven repository at
// baseURL.
func NewRemote(baseURL string, timeout time.Duration) Repository {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if strings.HasPrefix(baseURL, "http://") {
		log.Warning("repository %s is not secure, prefer https", baseURL)
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 2 // the first try plus two retries: 3 attempts in all
	client.RetryWaitMin = 250 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil
	client.HTTPClient.Timeout = timeout
	client.CheckRetry = retryablehttp.DefaultRetryPolicy
	return &remoteRepository{baseURL: baseURL, client: client}
}

func (r *remoteRepository) String() string {
	return r.baseURL
}

func (r *remoteRepository) Get(ctx context.Context, path string) ([]byte, error) {
	resp, err := r.do(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (r *remoteRepository) Head(ctx context.Context, path string) (bool, error) {
	resp, err := r.do(ctx, http.MethodHead, path)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	return true, nil
}

func (r *remoteRepository) do(ctx context.Context, method, path string) (*http.Response, error) {
	url := r.baseURL + path
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		resp.Body.Close()
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("fetching %s: unexpected status %s: %s", url, resp.Status, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

// localRepository reads artifacts from a directory laid out in standard
// Maven repository form, for offline or file:// style use.
type localRepository struct {
	root string
}

// NewLocal constructs a Repository backed by a local directory tree.
func NewLocal(root string) Repository {
	return &localRepository{root: root}
}

func (r *localRepository) String() string {
	return "file://" + r.root
}

func (r *localRepository) Get(_ context.Context, path string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(r.root, filepath.FromSlash(path)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (r *localRepository) Head(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(filepath.Join(r.root, filepath.FromSlash(path)))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
