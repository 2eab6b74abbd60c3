// Package digest fingerprints file content with SHA-512.
package digest

import (
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"hash"
	"io"
	"os"

	"dedupe/internal/fault"
)

// DefaultChunkSize is the read size used when none is configured.
const DefaultChunkSize = 64 * 1024

// HexLen is the length of a rendered digest.
const HexLen = sha512.Size * 2

// Engine streams files through SHA-512 using a fixed-size buffer. An Engine
// reuses its buffer and hash state and must not be shared across goroutines.
type Engine struct {
	buf    []byte
	hasher hash.Hash
}

// New constructs an Engine reading chunkSize bytes at a time.
func New(chunkSize int) (*Engine, error) {
	if chunkSize <= 0 {
		return nil, errors.New("chunk size must be positive")
	}
	return &Engine{
		buf:    make([]byte, chunkSize),
		hasher: sha512.New(),
	}, nil
}

// File returns the lowercase hex digest of the file at path along with the
// number of bytes read.
func (e *Engine) File(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fault.IO("open", path, err)
	}
	defer f.Close()

	sum, n, err := e.Reader(f)
	if err != nil {
		return "", n, fault.IO("read", path, err)
	}
	return sum, n, nil
}

// Reader digests everything r yields.
func (e *Engine) Reader(r io.Reader) (string, int64, error) {
	e.hasher.Reset()
	n, err := io.CopyBuffer(e.hasher, onlyReader{r}, e.buf)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(e.hasher.Sum(nil)), n, nil
}

// Bytes digests an in-memory value. Mostly useful for tests and reports.
func Bytes(data []byte) string {
	sum := sha512.Sum512(data)
	return hex.EncodeToString(sum[:])
}

// onlyReader hides WriterTo so io.CopyBuffer honours the chunk buffer.
type onlyReader struct {
	io.Reader
}
