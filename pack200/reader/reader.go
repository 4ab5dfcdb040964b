// Package reader decodes packed streams, one segment at a time or all
// segments in parallel.
package reader

import (
	"bytes"
	"fmt"
	"io"

	"github.com/indrora/pack200/pack200/format"
	"github.com/indrora/pack200/pack200/ioutil"
)

// The reader is much simpler than the writer.

type ReaderState int

const (
	STATE_EMPTY  ReaderState = 0
	STATE_HEADER ReaderState = 1
	STATE_DONE   ReaderState = 2
)

// Reader walks the segments of a packed stream in order.
type Reader struct {
	stream io.Reader
	header *format.StreamHeader
	state  ReaderState
	next   int
}

func NewReader(r io.Reader) *Reader {
	return &Reader{stream: r}
}

// Header reads the stream header on first use.
func (r *Reader) Header() (*format.StreamHeader, error) {
	if r.state == STATE_EMPTY {
		h, err := format.ReadStreamHeader(r.stream)
		if err != nil {
			return nil, err
		}
		r.header = h
		r.state = STATE_HEADER
	}
	return r.header, nil
}

// Next reads and verifies the next segment. After the last segment it
// returns io.EOF, or an error if the stream has trailing bytes.
func (r *Reader) Next() (*Segment, error) {
	h, err := r.Header()
	if err != nil {
		return nil, err
	}
	if r.state == STATE_DONE {
		return nil, io.EOF
	}
	if r.next >= int(h.Segments) {
		r.state = STATE_DONE
		var one [1]byte
		if n, _ := io.ReadFull(r.stream, one[:]); n > 0 {
			return nil, &format.StreamFormatError{Segment: r.next, Reason: "trailing data after last segment"}
		}
		return nil, io.EOF
	}

	idx := r.next
	p, err := format.ReadSegmentPreamble(r.stream, idx)
	if err != nil {
		return nil, err
	}
	if p.Flags != h.Flags {
		return nil, &format.StreamFormatError{Segment: idx, Reason: "segment flags differ from stream flags"}
	}

	buf := new(bytes.Buffer)
	hw := ioutil.NewChecksumWriter(buf)
	want := int64(p.HeaderLen) + int64(p.BodyLen)
	if n, err := io.CopyN(hw, r.stream, want); err != nil {
		return nil, &format.StreamFormatError{Segment: idx, Reason: fmt.Sprintf("truncated segment, %d of %d bytes", n, want), Err: err}
	}
	if !bytes.Equal(hw.Sum(), p.Checksum[:]) {
		return nil, &format.StreamFormatError{Segment: idx, Reason: "checksum mismatch"}
	}
	data := buf.Bytes()
	sh, err := readSegmentHeader(data[:p.HeaderLen], idx, h)
	if err != nil {
		return nil, err
	}
	r.next++
	return &Segment{
		Index:    idx,
		Preamble: p,
		Header:   sh,
		stored:   data[p.HeaderLen:],
	}, nil
}

// Segments reads every remaining segment.
func (r *Reader) Segments() ([]*Segment, error) {
	var out []*Segment
	for {
		s, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
}
