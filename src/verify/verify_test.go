package verify

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pluginforge/libresolve/src/coordinate"
)

type fakeSource struct {
	values map[string]string
}

func (f *fakeSource) FetchChecksum(algorithm string) (string, bool, error) {
	v, ok := f.values[algorithm]
	return v, ok, nil
}

func coord() coordinate.Coordinate {
	return coordinate.Coordinate{GroupID: "g", ArtifactID: "a", Version: "1.0"}
}

func TestVerifySha1Match(t *testing.T) {
	content := []byte("hello world")
	source := &fakeSource{values: map[string]string{"sha1": SHA1(content)}}
	result, err := Verify(coord(), content, source)
	require.NoError(t, err)
	assert.Equal(t, "sha1", result.Algorithm)
	assert.False(t, result.Unchecked)
}

func TestVerifySha1CaseAndWhitespaceTolerant(t *testing.T) {
	content := []byte("hello world")
	published := fmt.Sprintf("  %s  \n", SHA1(content))
	source := &fakeSource{values: map[string]string{"sha1": published}}
	_, err := Verify(coord(), content, source)
	require.NoError(t, err)
}

func TestVerifyFallsBackToMd5(t *testing.T) {
	content := []byte("payload")
	source := &fakeSource{values: map[string]string{"md5": MD5(content)}}
	result, err := Verify(coord(), content, source)
	require.NoError(t, err)
	assert.Equal(t, "md5", result.Algorithm)
}

func TestVerifyAcceptsUncheckedWhenNeitherPublished(t *testing.T) {
	source := &fakeSource{values: map[string]string{}}
	result, err := Verify(coord(), []byte("payload"), source)
	require.NoError(t, err)
	assert.True(t, result.Unchecked)
}

func TestVerifyMismatchReturnsChecksumError(t *testing.T) {
	source := &fakeSource{values: map[string]string{"sha1": "0000000000000000000000000000000000000000"}}
	_, err := Verify(coord(), []byte("payload"), source)
	var checksumErr *ChecksumError
	require.ErrorAs(t, err, &checksumErr)
	assert.Equal(t, "sha1", checksumErr.Algorithm)
}
