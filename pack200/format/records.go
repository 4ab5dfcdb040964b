package format

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/indrora/pack200/pack200/format/metadata"
)

// The segment sub-header follows the preamble. It is CBOR with integer keys
// so that both directions agree on a frozen field numbering.

// SegmentHeader describes one self-contained segment.
type SegmentHeader struct {
	// Format version of the stream this segment belongs to
	Major uint8 `cbor:"0,keyasint"`
	Minor uint8 `cbor:"1,keyasint"`
	// Stream flags in effect for this segment
	Flags StreamFlags `cbor:"2,keyasint"`
	// Number of files, and of transcoded classes among them
	Entries uint32 `cbor:"3,keyasint"`
	Classes uint32 `cbor:"4,keyasint"`
	// Fixed modification time (FIXED_MODTIME) or base for per-file deltas, unix seconds
	ModTime int64 `cbor:"5,keyasint"`
	// Compression of the stored body
	Compression CompressionType `cbor:"6,keyasint"`
	// Size of the body once decompressed
	BodySize uint64 `cbor:"7,keyasint"`
	// Position of the segment in the stream
	Index uint32 `cbor:"8,keyasint"`
	// Attribute layouts referenced by the class bands
	Layouts []LayoutDef `cbor:"9,keyasint,omitempty"`
	// Archive-wide metadata, carried by the first segment only
	Archive *metadata.ArchiveMetadata `cbor:"10,keyasint,omitempty"`
}

func (h *SegmentHeader) Version() Version {
	return Version{Major: h.Major, Minor: h.Minor}
}

// LayoutDef binds an attribute name in a context to a layout definition.
type LayoutDef struct {
	Context uint8  `cbor:"0,keyasint"`
	Name    string `cbor:"1,keyasint"`
	Layout  string `cbor:"2,keyasint"`
}

var (
	headerEncMode cbor.EncMode
	headerDecMode cbor.DecMode
)

func init() {
	var err error
	if headerEncMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	headerDecMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// MarshalSegmentHeader encodes h with deterministic core CBOR so that equal
// headers always give equal bytes.
func MarshalSegmentHeader(h *SegmentHeader) ([]byte, error) {
	b, err := headerEncMode.Marshal(h)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal segment header")
	}
	return b, nil
}

func UnmarshalSegmentHeader(data []byte, idx int) (*SegmentHeader, error) {
	h := new(SegmentHeader)
	if err := headerDecMode.Unmarshal(data, h); err != nil {
		return nil, &StreamFormatError{Segment: idx, Reason: "bad segment header", Err: err}
	}
	if !h.Version().Known() {
		return nil, &StreamFormatError{Segment: idx, Reason: "unrecognized format version " + h.Version().String()}
	}
	if h.Flags&^streamFlagsMask != 0 || !h.Compression.Valid() {
		return nil, &StreamFormatError{Segment: idx, Reason: "bad segment header fields"}
	}
	if h.Classes > h.Entries {
		return nil, &StreamFormatError{Segment: idx, Reason: "more classes than entries"}
	}
	return h, nil
}
