// Package band holds the band set that makes up a segment body.
//
// A marshalled set is the number of bands followed by, for every band in
// frozen order, its byte length and its contents. Readers reject a set with a
// different band count.
package band

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/indrora/pack200/pack200/format"
	"github.com/indrora/pack200/pack200/ioutil"
)

var ErrBadBandSet = errors.New("bad band set")

type Set struct {
	bands [format.BAND_COUNT]*ioutil.BandWriter
}

func NewSet() *Set {
	s := &Set{}
	for i := range s.bands {
		s.bands[i] = ioutil.NewBandWriter()
	}
	return s
}

func (s *Set) Band(id format.BandID) *ioutil.BandWriter {
	return s.bands[id]
}

// Append copies every band of o onto the end of the same band in s.
func (s *Set) Append(o *Set) {
	for i, b := range o.bands {
		if b.Len() > 0 {
			s.bands[i].Write(b.Bytes())
		}
	}
}

// Size is the marshalled size of the set.
func (s *Set) Size() int {
	n := uvarintLen(uint64(format.BAND_COUNT))
	for _, b := range s.bands {
		n += uvarintLen(uint64(b.Len())) + b.Len()
	}
	return n
}

func (s *Set) Marshal() []byte {
	out := make([]byte, 0, s.Size())
	out = binary.AppendUvarint(out, uint64(format.BAND_COUNT))
	for _, b := range s.bands {
		out = binary.AppendUvarint(out, uint64(b.Len()))
		out = append(out, b.Bytes()...)
	}
	return out
}

// Source returns a reader over the current contents of the set.
func (s *Set) Source() *Source {
	src := &Source{}
	for i, b := range s.bands {
		src.bands[i] = ioutil.NewBandReader(b.Bytes())
	}
	return src
}

type Source struct {
	bands [format.BAND_COUNT]*ioutil.BandReader
}

func Unmarshal(data []byte) (*Source, error) {
	r := ioutil.NewBandReader(data)
	count, err := r.Uvarint()
	if err != nil {
		return nil, errors.Wrap(ErrBadBandSet, "missing band count")
	}
	if count != uint64(format.BAND_COUNT) {
		return nil, errors.Wrapf(ErrBadBandSet, "%d bands, expected %d", count, format.BAND_COUNT)
	}
	src := &Source{}
	for i := range src.bands {
		b, err := r.Bytes()
		if err != nil {
			return nil, errors.Wrapf(ErrBadBandSet, "truncated band %s", format.BandID(i))
		}
		src.bands[i] = ioutil.NewBandReader(b)
	}
	if r.Remaining() != 0 {
		return nil, errors.Wrapf(ErrBadBandSet, "%d trailing bytes", r.Remaining())
	}
	return src, nil
}

func (s *Source) Band(id format.BandID) *ioutil.BandReader {
	return s.bands[id]
}

// Drained reports whether every band was consumed. If not, it names the
// first band with unread values.
func (s *Source) Drained() (format.BandID, bool) {
	for i, b := range s.bands {
		if b.Remaining() != 0 {
			return format.BandID(i), false
		}
	}
	return 0, true
}

func uvarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}
