package pom

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pluginforge/libresolve/src/coordinate"
)

// fakeFetcher serves canned Project values for parent/BOM lookups in tests,
// keyed by group:artifact:version.
type fakeFetcher struct {
	projects map[string]*Project
}

func (f *fakeFetcher) FetchProject(c coordinate.Coordinate) (*Project, error) {
	key := fmt.Sprintf("%s:%s:%s", c.GroupID, c.ArtifactID, c.Version)
	p, ok := f.projects[key]
	if !ok {
		return nil, fmt.Errorf("no such test project %s", key)
	}
	return p, nil
}

const simplePom = `<?xml version="1.0"?>
<project>
  <groupId>com.example</groupId>
  <artifactId>widget</artifactId>
  <version>1.2.3</version>
  <properties>
    <guava.version>30.1-jre</guava.version>
  </properties>
  <dependencies>
    <dependency>
      <groupId>com.google.guava</groupId>
      <artifactId>guava</artifactId>
      <version>${guava.version}</version>
    </dependency>
  </dependencies>
</project>`

func TestParseSimplePom(t *testing.T) {
	p, err := Parse([]byte(simplePom), coordinate.Coordinate{GroupID: "com.example", ArtifactID: "widget"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "com.example", p.Coordinate.GroupID)
	assert.Equal(t, "widget", p.Coordinate.ArtifactID)
	assert.Equal(t, "1.2.3", p.Coordinate.Version)
	require.Len(t, p.Dependencies, 1)
	assert.Equal(t, "30.1-jre", p.Dependencies[0].Version)
	assert.Equal(t, coordinate.ScopeCompile, p.Dependencies[0].Scope)
}

func TestUnresolvedPlaceholderLeftLiteral(t *testing.T) {
	doc := `<project>
  <groupId>g</groupId><artifactId>a</artifactId><version>1.0</version>
  <dependencies>
    <dependency><groupId>g2</groupId><artifactId>a2</artifactId><version>${nonexistent.prop}</version></dependency>
  </dependencies>
</project>`
	p, err := Parse([]byte(doc), coordinate.Coordinate{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "${nonexistent.prop}", p.Dependencies[0].Version)
}

func TestParentChainInheritsProperties(t *testing.T) {
	parentDoc := `<project>
  <groupId>com.example</groupId>
  <artifactId>parent</artifactId>
  <version>1.0</version>
  <properties>
    <shared.version>2.5</shared.version>
  </properties>
</project>`
	parent, err := Parse([]byte(parentDoc), coordinate.Coordinate{}, nil)
	require.NoError(t, err)

	childDoc := `<project>
  <groupId>com.example</groupId>
  <artifactId>child</artifactId>
  <version>1.0</version>
  <parent>
    <groupId>com.example</groupId>
    <artifactId>parent</artifactId>
    <version>1.0</version>
  </parent>
  <dependencies>
    <dependency><groupId>g</groupId><artifactId>a</artifactId><version>${shared.version}</version></dependency>
  </dependencies>
</project>`
	fetch := &fakeFetcher{projects: map[string]*Project{"com.example:parent:1.0": parent}}
	child, err := Parse([]byte(childDoc), coordinate.Coordinate{}, fetch)
	require.NoError(t, err)
	require.Len(t, child.Dependencies, 1)
	assert.Equal(t, "2.5", child.Dependencies[0].Version)
}

func TestCircularParentRejected(t *testing.T) {
	doc := `<project>
  <groupId>g</groupId><artifactId>a</artifactId><version>1.0</version>
  <parent><groupId>g</groupId><artifactId>a</artifactId><version>1.0</version></parent>
</project>`
	_, err := Parse([]byte(doc), coordinate.Coordinate{}, &fakeFetcher{})
	assert.Error(t, err)
}

func TestDependencyManagementAppliesDefaultVersion(t *testing.T) {
	doc := `<project>
  <groupId>g</groupId><artifactId>a</artifactId><version>1.0</version>
  <dependencyManagement>
    <dependencies>
      <dependency><groupId>dep</groupId><artifactId>x</artifactId><version>4.5.6</version></dependency>
    </dependencies>
  </dependencyManagement>
  <dependencies>
    <dependency><groupId>dep</groupId><artifactId>x</artifactId></dependency>
  </dependencies>
</project>`
	p, err := Parse([]byte(doc), coordinate.Coordinate{}, nil)
	require.NoError(t, err)
	require.Len(t, p.Dependencies, 1)
	assert.Equal(t, "4.5.6", p.Dependencies[0].Version)
}

func TestBomImportMergesWithoutOverridingLocal(t *testing.T) {
	bomDoc := `<project>
  <groupId>com.example</groupId><artifactId>bom</artifactId><version>1.0</version>
  <dependencyManagement>
    <dependencies>
      <dependency><groupId>dep</groupId><artifactId>shared</artifactId><version>9.9.9</version></dependency>
      <dependency><groupId>dep</groupId><artifactId>local-wins</artifactId><version>9.9.9</version></dependency>
    </dependencies>
  </dependencyManagement>
</project>`
	bom, err := Parse([]byte(bomDoc), coordinate.Coordinate{}, nil)
	require.NoError(t, err)

	doc := `<project>
  <groupId>g</groupId><artifactId>a</artifactId><version>1.0</version>
  <dependencyManagement>
    <dependencies>
      <dependency><groupId>dep</groupId><artifactId>local-wins</artifactId><version>1.0.0</version></dependency>
      <dependency><groupId>com.example</groupId><artifactId>bom</artifactId><version>1.0</version><type>pom</type><scope>import</scope></dependency>
    </dependencies>
  </dependencyManagement>
</project>`
	fetch := &fakeFetcher{projects: map[string]*Project{"com.example:bom:1.0": bom}}
	p, err := Parse([]byte(doc), coordinate.Coordinate{}, fetch)
	require.NoError(t, err)

	v, ok := p.ManagedVersion(coordinate.Key{GroupID: "dep", ArtifactID: "shared"})
	require.True(t, ok)
	assert.Equal(t, "9.9.9", v)

	v, ok = p.ManagedVersion(coordinate.Key{GroupID: "dep", ArtifactID: "local-wins"})
	require.True(t, ok)
	assert.Equal(t, "1.0.0", v, "local dependencyManagement entry must win over the BOM import")
}

func TestParseRepositoriesDeclaredAndInherited(t *testing.T) {
	parentDoc := `<project>
  <groupId>com.example</groupId><artifactId>parent</artifactId><version>1.0</version>
  <repositories>
    <repository><id>parent-mirror</id><url>https://parent.example.test/maven2</url></repository>
  </repositories>
</project>`
	parent, err := Parse([]byte(parentDoc), coordinate.Coordinate{}, nil)
	require.NoError(t, err)

	childDoc := `<project>
  <groupId>com.example</groupId><artifactId>child</artifactId><version>1.0</version>
  <parent>
    <groupId>com.example</groupId><artifactId>parent</artifactId><version>1.0</version>
  </parent>
  <repositories>
    <repository><id>child-mirror</id><url>https://child.example.test/maven2</url></repository>
  </repositories>
</project>`
	fetch := &fakeFetcher{projects: map[string]*Project{"com.example:parent:1.0": parent}}
	child, err := Parse([]byte(childDoc), coordinate.Coordinate{}, fetch)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://child.example.test/maven2",
		"https://parent.example.test/maven2",
	}, child.Repositories, "own repositories first, then inherited")
}

func TestParseMetadataBestVersion(t *testing.T) {
	doc := `<metadata>
  <groupId>com.example</groupId>
  <artifactId>widget</artifactId>
  <versioning>
    <latest>2.0-SNAPSHOT</latest>
    <release>1.9.0</release>
    <versions>
      <version>1.0</version>
      <version>1.9.0</version>
      <version>2.0-SNAPSHOT</version>
    </versions>
  </versioning>
</metadata>`
	m, err := ParseMetadata([]byte(doc), "https://example.test/maven-metadata.xml")
	require.NoError(t, err)
	best, ok := m.BestVersion()
	require.True(t, ok)
	assert.Equal(t, "1.9.0", best)
	assert.True(t, m.HasVersion("1.0"))
	assert.False(t, m.HasVersion("3.0"))
}

func TestParseMetadataFallsBackToLatestThenLastVersion(t *testing.T) {
	latestOnly := `<metadata><versioning><latest>1.1-SNAPSHOT</latest></versioning></metadata>`
	m, err := ParseMetadata([]byte(latestOnly), "x")
	require.NoError(t, err)
	best, ok := m.BestVersion()
	require.True(t, ok)
	assert.Equal(t, "1.1-SNAPSHOT", best)

	listOnly := `<metadata><versioning><versions><version>1.0</version><version>1.1</version></versions></versioning></metadata>`
	m, err = ParseMetadata([]byte(listOnly), "x")
	require.NoError(t, err)
	best, ok = m.BestVersion()
	require.True(t, ok)
	assert.Equal(t, "1.1", best)
}

func TestParseMetadataNoVersionAvailable(t *testing.T) {
	m, err := ParseMetadata([]byte(`<metadata></metadata>`), "x")
	require.NoError(t, err)
	_, ok := m.BestVersion()
	assert.False(t, ok)
}
