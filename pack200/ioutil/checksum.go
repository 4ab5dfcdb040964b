package ioutil

import (
	"hash"
	"io"

	"golang.org/x/crypto/blake2b"
)

type HashWriter struct {
	writer io.Writer
	hasher hash.Hash
}

func NewHashWriter(dest io.Writer, hasher hash.Hash) *HashWriter {
	return &HashWriter{
		writer: dest,
		hasher: hasher,
	}
}

func (w *HashWriter) Write(b []byte) (int, error) {
	w.hasher.Write(b)
	k, err := w.writer.Write(b)
	if err != nil {
		return 0, err
	}
	return k, nil
}

func (w *HashWriter) Sum() []byte {
	return w.hasher.Sum(nil)
}

// NewChecksumWriter hashes everything written to dest with BLAKE2b-512.
func NewChecksumWriter(dest io.Writer) *HashWriter {
	h, _ := blake2b.New512(nil)
	return NewHashWriter(dest, h)
}

// Checksum is the BLAKE2b-512 digest of the concatenation of parts.
func Checksum(parts ...[]byte) [blake2b.Size]byte {
	h, _ := blake2b.New512(nil)
	for _, p := range parts {
		h.Write(p)
	}
	var sum [blake2b.Size]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
