package digest

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dedupe/internal/fault"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestFileMatchesKnownVector(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "abc.txt", []byte("abc"))

	eng, err := New(DefaultChunkSize)
	require.NoError(t, err)

	sum, n, err := eng.File(path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t,
		"ddaf35a193617abacc417349ae20413112e6fa4e89a97ea20a9eeee64b55d39a"+
			"2192992a274fc1a836ba3c23a3feebbd454d4423643ce80e2a9ac94fa54ca49f",
		sum)
	assert.Len(t, sum, HexLen)
	assert.Equal(t, strings.ToLower(sum), sum)
}

func TestEqualContentEqualDigest(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", []byte("hello"))
	b := writeFile(t, dir, "b.txt", []byte("hello"))
	c := writeFile(t, dir, "c.txt", []byte("hellp"))

	eng, err := New(DefaultChunkSize)
	require.NoError(t, err)

	sumA, _, err := eng.File(a)
	require.NoError(t, err)
	sumB, _, err := eng.File(b)
	require.NoError(t, err)
	sumC, _, err := eng.File(c)
	require.NoError(t, err)

	assert.Equal(t, sumA, sumB)
	assert.NotEqual(t, sumA, sumC)
	assert.Equal(t, Bytes([]byte("hello")), sumA)
}

func TestChunkSizeDoesNotChangeDigest(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789abcdef"), 5000)
	data = append(data, 'x')
	path := writeFile(t, t.TempDir(), "big.bin", data)
	want := Bytes(data)

	for _, size := range []int{1, 7, 4096, DefaultChunkSize, len(data) * 2} {
		eng, err := New(size)
		require.NoError(t, err)
		sum, n, err := eng.File(path)
		require.NoError(t, err, "chunk size %d", size)
		assert.Equal(t, want, sum, "chunk size %d", size)
		assert.Equal(t, int64(len(data)), n)
	}
}

func TestEmptyFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "empty", nil)
	eng, err := New(16)
	require.NoError(t, err)

	sum, n, err := eng.File(path)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, Bytes(nil), sum)
}

func TestEngineReuse(t *testing.T) {
	eng, err := New(8)
	require.NoError(t, err)

	first, _, err := eng.Reader(strings.NewReader("first"))
	require.NoError(t, err)
	second, _, err := eng.Reader(strings.NewReader("second"))
	require.NoError(t, err)
	again, _, err := eng.Reader(strings.NewReader("first"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, first, again)
}

func TestMissingFileIsIOError(t *testing.T) {
	eng, err := New(DefaultChunkSize)
	require.NoError(t, err)

	_, _, err = eng.File(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindIO))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewRejectsNonPositiveChunk(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)
	_, err = New(-1)
	assert.Error(t, err)
}
