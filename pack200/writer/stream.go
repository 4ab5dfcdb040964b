package writer

import (
	"io"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"

	"github.com/indrora/pack200/pack200/format"
	"github.com/indrora/pack200/pack200/ioutil"
)

var (
	ErrMisalignedWrite = errors.New("unexpected number of bytes written")
)

// segmentChecksum covers the sub-header and the stored body.
func segmentChecksum(header, body []byte) [format.CHECKSUM_SIZE]byte {
	return ioutil.Checksum(header, body)
}

// writeStream writes the stream header and every segment, and returns the
// number of bytes written and their digest.
func writeStream(w io.Writer, header *format.StreamHeader, segments []*packedSegment) (int64, digest.Digest, error) {
	digester := digest.Canonical.Digester()
	counter := &countingWriter{w: w}
	hw := ioutil.NewHashWriter(counter, digester.Hash())

	if err := header.WriteHeader(hw); err != nil {
		return counter.n, "", err
	}
	for i, s := range segments {
		if err := s.preamble.WritePreamble(hw); err != nil {
			return counter.n, "", errors.Wrapf(err, "segment %d", i)
		}
		for _, part := range [][]byte{s.header, s.body} {
			n, err := hw.Write(part)
			if err != nil {
				return counter.n, "", errors.Wrap(err, "failed to write to underlying stream")
			}
			if n != len(part) {
				return counter.n, "", ErrMisalignedWrite
			}
		}
	}
	return counter.n, digester.Digest(), nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
