package reader

import (
	"github.com/indrora/pack200/pack200/format"
	"github.com/indrora/pack200/pack200/ioutil"
)

// body returns the decompressed segment body.
func (s *Segment) body() ([]byte, error) {
	data, err := ioutil.Decompress(s.Header.Compression, s.stored, s.Header.BodySize)
	if err != nil {
		return nil, &format.StreamFormatError{Segment: s.Index, Reason: "bad body", Err: err}
	}
	return data, nil
}
