package ioutil

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

var ErrBandUnderflow = errors.New("band underflow")

// BandReader walks the values of a band written by a BandWriter.
type BandReader struct {
	data []byte
	pos  int
}

func NewBandReader(data []byte) *BandReader {
	return &BandReader{data: data}
}

func (br *BandReader) Uvarint() (uint64, error) {
	v, n := binary.Uvarint(br.data[br.pos:])
	if n <= 0 {
		return 0, errors.Wrap(ErrBandUnderflow, "bad unsigned value")
	}
	br.pos += n
	return v, nil
}

func (br *BandReader) Varint() (int64, error) {
	v, n := binary.Varint(br.data[br.pos:])
	if n <= 0 {
		return 0, errors.Wrap(ErrBandUnderflow, "bad signed value")
	}
	br.pos += n
	return v, nil
}

func (br *BandReader) Byte() (byte, error) {
	if br.pos >= len(br.data) {
		return 0, ErrBandUnderflow
	}
	b := br.data[br.pos]
	br.pos++
	return b, nil
}

// Bytes reads a length-prefixed byte string. The result aliases the band.
func (br *BandReader) Bytes() ([]byte, error) {
	n, err := br.Uvarint()
	if err != nil {
		return nil, err
	}
	return br.Raw(int(n))
}

// Raw reads exactly n bytes. The result aliases the band.
func (br *BandReader) Raw(n int) ([]byte, error) {
	if n < 0 || n > br.Remaining() {
		return nil, errors.Wrapf(ErrBandUnderflow, "want %d bytes, have %d", n, br.Remaining())
	}
	b := br.data[br.pos : br.pos+n]
	br.pos += n
	return b, nil
}

func (br *BandReader) Remaining() int {
	return len(br.data) - br.pos
}
