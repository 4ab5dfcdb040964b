package format

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

/*

The stream header is the first 14 bytes of every packed stream.

struct STREAM_HEADER {
    uint8_t  magic[4];        // CA FE D0 0D
    uint8_t  minor;           // format minor version
    uint8_t  major;           // format major version
    uint16_t flags;           // STREAM_FLAG_*
    uint8_t  compression;     // body compression of every segment
    uint8_t  effort;          // effort the stream was packed with
    uint32_t segments;        // number of segments that follow
}

Each segment then starts with a preamble:

struct SEGMENT_PREAMBLE {
    uint8_t  magic[4];        // "PKSG"
    uint16_t flags;           // STREAM_FLAG_* in effect for this segment
    uint32_t header_len;      // CBOR sub-header length
    uint64_t body_len;        // stored (possibly compressed) body length
    uint8_t  checksum[64];    // BLAKE2b-512 of sub-header + body
}

*/

const (
	MAGIC_STRING         = "\xCA\xFE\xD0\x0D"
	SEGMENT_MAGIC_STRING = "PKSG"

	HEADER_SIZE   = 14
	PREAMBLE_SIZE = 82

	CHECKSUM_SIZE = 64
)

var (
	MAGIC_BYTES         = [4]byte{0xCA, 0xFE, 0xD0, 0x0D}
	SEGMENT_MAGIC_BYTES = [4]byte{'P', 'K', 'S', 'G'}
)

// Version is a packed stream format version. The minor byte precedes the
// major byte on the wire.
type Version struct {
	Major uint8
	Minor uint8
}

var (
	// Streams without any class files.
	VERSION_RESOURCES = Version{Major: 150, Minor: 7}
	// Classes that need no dynamic-linkage constants.
	VERSION_NO_INDY = Version{Major: 160, Minor: 1}
	// Classes with MethodHandle/MethodType/InvokeDynamic constants, or class
	// files newer than 51.
	VERSION_INDY = Version{Major: 170, Minor: 1}
	// Classes carrying type annotations.
	VERSION_TYPE_ANNOTATIONS = Version{Major: 171, Minor: 0}

	// Newest version this package writes.
	VERSION_CURRENT = VERSION_TYPE_ANNOTATIONS
)

var knownVersions = []Version{
	VERSION_RESOURCES,
	VERSION_NO_INDY,
	VERSION_INDY,
	VERSION_TYPE_ANNOTATIONS,
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

// Known reports whether a reader can decode streams of this version.
func (v Version) Known() bool {
	for _, k := range knownVersions {
		if k == v {
			return true
		}
	}
	return false
}

// HasClasses reports whether streams of this version may carry class bands.
func (v Version) HasClasses() bool {
	return VERSION_RESOURCES.Less(v)
}

type StreamFlags uint16

const (
	STREAM_FLAG_NONE StreamFlags = 0
	// The deflate hint applies to every entry; see STREAM_FLAG_DEFLATE_ALL.
	STREAM_FLAG_DEFLATE_HINT StreamFlags = 0b00001
	// With DEFLATE_HINT set: every entry is deflated, otherwise every entry is stored.
	STREAM_FLAG_DEFLATE_ALL StreamFlags = 0b00010
	// Entries are in original archive order.
	STREAM_FLAG_KEEP_FILE_ORDER StreamFlags = 0b00100
	// One modification time for every entry, taken from the segment header.
	STREAM_FLAG_FIXED_MODTIME StreamFlags = 0b01000
	// Every class carries its own symbol pool.
	STREAM_FLAG_POOL_PER_CLASS StreamFlags = 0b10000

	streamFlagsMask StreamFlags = 0b11111
)

func (f StreamFlags) Has(flag StreamFlags) bool {
	return f&flag == flag
}

// DeflateHint is the policy applied to entry compression on unpack.
type DeflateHint uint8

const (
	DEFLATE_KEEP DeflateHint = iota
	DEFLATE_TRUE
	DEFLATE_FALSE
)

func (h DeflateHint) String() string {
	switch h {
	case DEFLATE_TRUE:
		return "TRUE"
	case DEFLATE_FALSE:
		return "FALSE"
	default:
		return "KEEP"
	}
}

// DeflateHint decodes the deflate bits of the flag set.
func (f StreamFlags) DeflateHint() DeflateHint {
	if !f.Has(STREAM_FLAG_DEFLATE_HINT) {
		return DEFLATE_KEEP
	}
	if f.Has(STREAM_FLAG_DEFLATE_ALL) {
		return DEFLATE_TRUE
	}
	return DEFLATE_FALSE
}

// Flags encodes the hint as stream flag bits.
func (h DeflateHint) Flags() StreamFlags {
	switch h {
	case DEFLATE_TRUE:
		return STREAM_FLAG_DEFLATE_HINT | STREAM_FLAG_DEFLATE_ALL
	case DEFLATE_FALSE:
		return STREAM_FLAG_DEFLATE_HINT
	default:
		return STREAM_FLAG_NONE
	}
}

type CompressionType uint8

const (
	COMPRESSION_NONE   CompressionType = 0
	COMPRESSION_ZSTD   CompressionType = 1
	COMPRESSION_GZIP   CompressionType = 2
	COMPRESSION_BROTLI CompressionType = 3
)

func (c CompressionType) String() string {
	switch c {
	case COMPRESSION_NONE:
		return "none"
	case COMPRESSION_ZSTD:
		return "zstd"
	case COMPRESSION_GZIP:
		return "gzip"
	case COMPRESSION_BROTLI:
		return "brotli"
	default:
		return "unknown"
	}
}

func (c CompressionType) Valid() bool {
	return c <= COMPRESSION_BROTLI
}

// StreamHeader is the fixed header at offset 0 of a packed stream.
type StreamHeader struct {
	// Magic value, must be MAGIC_BYTES
	Magic [4]byte
	// Version bytes, minor first
	Minor uint8
	Major uint8
	// Stream flags (deflate hint, file order, ...)
	Flags StreamFlags
	// Body compression used by every segment
	Compression CompressionType
	// Effort level the stream was packed with
	Effort uint8
	// Number of segments that follow
	Segments uint32
}

func NewStreamHeader(version Version, flags StreamFlags, compression CompressionType, effort uint8, segments uint32) StreamHeader {
	return StreamHeader{
		Magic:       MAGIC_BYTES,
		Minor:       version.Minor,
		Major:       version.Major,
		Flags:       flags,
		Compression: compression,
		Effort:      effort,
		Segments:    segments,
	}
}

func (h *StreamHeader) Version() Version {
	return Version{Major: h.Major, Minor: h.Minor}
}

func (h *StreamHeader) ToBytes() []byte {
	b := new(bytes.Buffer)
	h.WriteHeader(b)
	return b.Bytes()
}

func (h *StreamHeader) WriteHeader(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, h.Magic); err != nil {
		return errors.Wrap(err, "failed to write stream header")
	}
	if err := binary.Write(w, binary.BigEndian, h.Minor); err != nil {
		return errors.Wrap(err, "failed to write stream header")
	}
	if err := binary.Write(w, binary.BigEndian, h.Major); err != nil {
		return errors.Wrap(err, "failed to write stream header")
	}
	if err := binary.Write(w, binary.BigEndian, h.Flags); err != nil {
		return errors.Wrap(err, "failed to write stream header")
	}
	if err := binary.Write(w, binary.BigEndian, h.Compression); err != nil {
		return errors.Wrap(err, "failed to write stream header")
	}
	if err := binary.Write(w, binary.BigEndian, h.Effort); err != nil {
		return errors.Wrap(err, "failed to write stream header")
	}
	if err := binary.Write(w, binary.BigEndian, h.Segments); err != nil {
		return errors.Wrap(err, "failed to write stream header")
	}
	return nil
}

// ReadStreamHeader reads and validates the fixed stream header.
func ReadStreamHeader(r io.Reader) (*StreamHeader, error) {
	h := &StreamHeader{}
	if err := binary.Read(r, binary.BigEndian, h); err != nil {
		return nil, &StreamFormatError{Segment: -1, Reason: "truncated stream header", Err: err}
	}
	if h.Magic != MAGIC_BYTES {
		return nil, &StreamFormatError{Segment: -1, Reason: fmt.Sprintf("bad magic %x", h.Magic)}
	}
	if !h.Version().Known() {
		return nil, &StreamFormatError{Segment: -1, Reason: "unrecognized format version " + h.Version().String()}
	}
	if h.Flags&^streamFlagsMask != 0 {
		return nil, &StreamFormatError{Segment: -1, Reason: fmt.Sprintf("unknown stream flags %#x", uint16(h.Flags))}
	}
	if !h.Compression.Valid() {
		return nil, &StreamFormatError{Segment: -1, Reason: fmt.Sprintf("unknown compression %d", h.Compression)}
	}
	return h, nil
}

// SegmentPreamble is the fixed prefix of every segment.
type SegmentPreamble struct {
	// Magic value, must be SEGMENT_MAGIC_BYTES
	Magic [4]byte
	// Flags in effect for this segment
	Flags StreamFlags
	// Length of the CBOR sub-header that follows
	HeaderLen uint32
	// Length of the stored body that follows the sub-header
	BodyLen uint64
	// Checksum of sub-header and body
	Checksum [CHECKSUM_SIZE]byte
}

func NewSegmentPreamble(flags StreamFlags, headerLen uint32, bodyLen uint64) SegmentPreamble {
	return SegmentPreamble{
		Magic:     SEGMENT_MAGIC_BYTES,
		Flags:     flags,
		HeaderLen: headerLen,
		BodyLen:   bodyLen,
		Checksum:  [CHECKSUM_SIZE]byte{0},
	}
}

func (p *SegmentPreamble) ToBytes() []byte {
	b := new(bytes.Buffer)
	p.WritePreamble(b)
	return b.Bytes()
}

func (p *SegmentPreamble) WritePreamble(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, p.Magic); err != nil {
		return errors.Wrap(err, "failed to write preamble")
	}
	if err := binary.Write(w, binary.BigEndian, p.Flags); err != nil {
		return errors.Wrap(err, "failed to write preamble")
	}
	if err := binary.Write(w, binary.BigEndian, p.HeaderLen); err != nil {
		return errors.Wrap(err, "failed to write preamble")
	}
	if err := binary.Write(w, binary.BigEndian, p.BodyLen); err != nil {
		return errors.Wrap(err, "failed to write preamble")
	}
	if err := binary.Write(w, binary.BigEndian, p.Checksum); err != nil {
		return errors.Wrap(err, "failed to write preamble")
	}
	return nil
}

// ReadSegmentPreamble reads the preamble of segment number idx.
func ReadSegmentPreamble(r io.Reader, idx int) (*SegmentPreamble, error) {
	p := &SegmentPreamble{}
	if err := binary.Read(r, binary.BigEndian, p); err != nil {
		return nil, &StreamFormatError{Segment: idx, Reason: "truncated segment preamble", Err: err}
	}
	if p.Magic != SEGMENT_MAGIC_BYTES {
		return nil, &StreamFormatError{Segment: idx, Reason: fmt.Sprintf("bad segment magic %x", p.Magic)}
	}
	if p.Flags&^streamFlagsMask != 0 {
		return nil, &StreamFormatError{Segment: idx, Reason: fmt.Sprintf("unknown segment flags %#x", uint16(p.Flags))}
	}
	return p, nil
}
