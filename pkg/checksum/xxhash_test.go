package checksum

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytes(t *testing.T) {
	digest := Bytes([]byte("hello"))
	assert.Len(t, digest, 16) // hex encoded uint64

	assert.Equal(t, digest, Bytes([]byte("hello")))
	assert.NotEqual(t, digest, Bytes([]byte("hello!")))
}

func TestReaderMatchesBytes(t *testing.T) {
	data := []byte("some photo bytes")

	digest, err := Reader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, Bytes(data), digest)
}

func TestFileMatchesBytes(t *testing.T) {
	data := []byte("file contents")
	path := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(path, data, 0644))

	digest, err := File(path)
	require.NoError(t, err)
	assert.Equal(t, Bytes(data), digest)

	_, err = File(filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Error(t, err)
}
