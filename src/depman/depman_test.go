package depman

import (
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pluginforge/libresolve/src/classpath"
	"github.com/pluginforge/libresolve/src/coordinate"
)

// fakeRepo serves a tiny two-artifact Maven tree: widget depends on gadget.
func fakeRepo(t *testing.T) *httptest.Server {
	t.Helper()
	widgetJar := []byte("widget-jar-bytes")
	gadgetJar := []byte("gadget-jar-bytes")
	widgetPom := []byte(`<project>
  <groupId>com.example</groupId>
  <artifactId>widget</artifactId>
  <version>1.0</version>
  <dependencies>
    <dependency>
      <groupId>com.example</groupId>
      <artifactId>gadget</artifactId>
      <version>2.0</version>
    </dependency>
  </dependencies>
</project>`)
	gadgetPom := []byte(`<project>
  <groupId>com.example</groupId>
  <artifactId>gadget</artifactId>
  <version>2.0</version>
</project>`)

	sum := func(b []byte) string {
		s := sha1.Sum(b)
		return hex.EncodeToString(s[:])
	}

	files := map[string][]byte{
		"/com/example/widget/1.0/widget-1.0.pom":      widgetPom,
		"/com/example/widget/1.0/widget-1.0.jar":      widgetJar,
		"/com/example/widget/1.0/widget-1.0.jar.sha1":  []byte(sum(widgetJar)),
		"/com/example/gadget/2.0/gadget-2.0.pom":       gadgetPom,
		"/com/example/gadget/2.0/gadget-2.0.jar":       gadgetJar,
		"/com/example/gadget/2.0/gadget-2.0.jar.sha1":  []byte(sum(gadgetJar)),
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, ok := files[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(b)
	}))
}

func newManager(t *testing.T, server *httptest.Server) *Manager {
	t.Helper()
	m, err := New(Config{LibsDir: t.TempDir()})
	require.NoError(t, err)
	m.AddRepository(server.URL)
	return m
}

func TestLoadDependencyDownloadsAndVerifiesTransitively(t *testing.T) {
	server := fakeRepo(t)
	defer server.Close()
	m := newManager(t, server)
	defer m.Close()

	c := coordinate.Coordinate{GroupID: "com.example", ArtifactID: "widget", Version: "1.0"}
	path, err := m.LoadDependency(c)
	require.NoError(t, err)
	assert.Contains(t, path, "widget-1.0.jar")

	gadgetPath := m.cache.Path("com/example/gadget/2.0/gadget-2.0.jar")
	_, ok := m.cache.Lookup("com/example/gadget/2.0/gadget-2.0.jar")
	assert.True(t, ok, "transitive dependency gadget should have been downloaded to %s", gadgetPath)
}

func TestLoadDependenciesInjectsIntoSharedSink(t *testing.T) {
	server := fakeRepo(t)
	defer server.Close()

	host := &recordingHost{}
	m, err := New(Config{LibsDir: t.TempDir(), Host: host})
	require.NoError(t, err)
	defer m.Close()
	m.AddRepository(server.URL)

	c := coordinate.Coordinate{GroupID: "com.example", ArtifactID: "widget", Version: "1.0"}
	_, err = m.LoadDependencies([]coordinate.Dependency{{Coordinate: c, Scope: coordinate.ScopeCompile}}, nil)
	require.NoError(t, err)
	assert.Len(t, host.added, 2)
}

func TestLoadDependenciesIsolatedUsesSeparateSink(t *testing.T) {
	server := fakeRepo(t)
	defer server.Close()
	m := newManager(t, server)
	defer m.Close()

	host := &recordingHost{}
	c := coordinate.Coordinate{GroupID: "com.example", ArtifactID: "widget", Version: "1.0"}
	_, err := m.LoadDependenciesIsolated("plugin-a", host, []coordinate.Dependency{{Coordinate: c, Scope: coordinate.ScopeCompile}}, nil)
	require.NoError(t, err)
	assert.Len(t, host.added, 2)
}

func TestLoadDependencyFailsOnChecksumMismatch(t *testing.T) {
	badJar := []byte("widget-jar-bytes")
	files := map[string][]byte{
		"/com/example/widget/1.0/widget-1.0.pom": []byte(`<project>
  <groupId>com.example</groupId>
  <artifactId>widget</artifactId>
  <version>1.0</version>
</project>`),
		"/com/example/widget/1.0/widget-1.0.jar":     badJar,
		"/com/example/widget/1.0/widget-1.0.jar.sha1": []byte("0000000000000000000000000000000000000000"),
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, ok := files[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(b)
	}))
	defer server.Close()

	m := newManager(t, server)
	defer m.Close()

	c := coordinate.Coordinate{GroupID: "com.example", ArtifactID: "widget", Version: "1.0"}
	_, err := m.LoadDependency(c)
	require.Error(t, err)
}

type recordingHost struct {
	added []string
}

func (h *recordingHost) AddURL(path string) error {
	h.added = append(h.added, path)
	return nil
}

var _ classpath.HostAdder = (*recordingHost)(nil)
