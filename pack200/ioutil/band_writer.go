package ioutil

import (
	"encoding/binary"
)

// BandWriter accumulates the values of one band. Integers are written as
// varints; byte strings carry a length prefix unless written raw.
type BandWriter struct {
	buf   []byte
	count uint64
}

func NewBandWriter() *BandWriter {
	return &BandWriter{}
}

func (k *BandWriter) PutUvarint(v uint64) {
	k.buf = binary.AppendUvarint(k.buf, v)
	k.count++
}

func (k *BandWriter) PutVarint(v int64) {
	k.buf = binary.AppendVarint(k.buf, v)
	k.count++
}

func (k *BandWriter) PutByte(b byte) {
	k.buf = append(k.buf, b)
	k.count++
}

// PutBytes writes a length-prefixed byte string.
func (k *BandWriter) PutBytes(p []byte) {
	k.buf = binary.AppendUvarint(k.buf, uint64(len(p)))
	k.buf = append(k.buf, p...)
	k.count++
}

// Write appends p without a length prefix.
func (k *BandWriter) Write(p []byte) (n int, err error) {
	k.buf = append(k.buf, p...)
	k.count++
	return len(p), nil
}

func (k *BandWriter) Bytes() []byte {
	return k.buf
}

// Len is the encoded size of the band in bytes.
func (k *BandWriter) Len() int {
	return len(k.buf)
}

// Count is the number of values written.
func (k *BandWriter) Count() uint64 {
	return k.count
}
