package reader

import (
	"github.com/indrora/pack200/pack200/format"
)

// readSegmentHeader decodes a segment sub-header and checks it against the
// stream header.
func readSegmentHeader(data []byte, idx int, stream *format.StreamHeader) (*format.SegmentHeader, error) {
	h, err := format.UnmarshalSegmentHeader(data, idx)
	if err != nil {
		return nil, err
	}
	switch {
	case h.Version() != stream.Version():
		return nil, &format.StreamFormatError{Segment: idx, Reason: "segment version " + h.Version().String() + " in a " + stream.Version().String() + " stream"}
	case h.Flags != stream.Flags:
		return nil, &format.StreamFormatError{Segment: idx, Reason: "segment header flags differ from stream flags"}
	case h.Index != uint32(idx):
		return nil, &format.StreamFormatError{Segment: idx, Reason: "segment out of order"}
	case h.Classes > 0 && !h.Version().HasClasses():
		return nil, &format.StreamFormatError{Segment: idx, Reason: "classes in a resource-only stream"}
	case idx > 0 && h.Archive != nil:
		return nil, &format.StreamFormatError{Segment: idx, Reason: "archive metadata outside the first segment"}
	}
	return h, nil
}
