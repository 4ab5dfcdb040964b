package format

import (
	"bytes"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamHeaderLayout(t *testing.T) {
	h := NewStreamHeader(VERSION_NO_INDY, STREAM_FLAG_KEEP_FILE_ORDER, COMPRESSION_ZSTD, 5, 3)
	b := h.ToBytes()

	require.Len(t, b, HEADER_SIZE, spew.Sdump(b))
	assert.Equal(t, []byte{0xCA, 0xFE, 0xD0, 0x0D}, b[:4])
	assert.Equal(t, byte(1), b[4], "minor version")
	assert.Equal(t, byte(160), b[5], "major version")
	assert.Equal(t, []byte{0, byte(STREAM_FLAG_KEEP_FILE_ORDER)}, b[6:8])
	assert.Equal(t, byte(COMPRESSION_ZSTD), b[8])
	assert.Equal(t, byte(5), b[9])
	assert.Equal(t, []byte{0, 0, 0, 3}, b[10:14])

	got, err := ReadStreamHeader(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, h, *got)
	assert.Equal(t, VERSION_NO_INDY, got.Version())
}

func TestReadStreamHeaderRejects(t *testing.T) {
	good := NewStreamHeader(VERSION_INDY, STREAM_FLAG_NONE, COMPRESSION_NONE, 1, 1)

	testCases := []struct {
		name   string
		mutate func([]byte)
	}{
		{"bad magic", func(b []byte) { b[0] = 'X' }},
		{"unknown major", func(b []byte) { b[5] = 99 }},
		{"unknown minor", func(b []byte) { b[4] = 9 }},
		{"unknown flags", func(b []byte) { b[6] = 0x80 }},
		{"unknown compression", func(b []byte) { b[8] = 42 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := good.ToBytes()
			tc.mutate(b)
			_, err := ReadStreamHeader(bytes.NewReader(b))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrStreamFormat), "got %v", err)
		})
	}

	t.Run("truncated", func(t *testing.T) {
		_, err := ReadStreamHeader(bytes.NewReader(good.ToBytes()[:7]))
		assert.True(t, errors.Is(err, ErrStreamFormat))
	})
}

func TestSegmentPreamble(t *testing.T) {
	p := NewSegmentPreamble(STREAM_FLAG_FIXED_MODTIME, 17, 4096)
	p.Checksum[0] = 0xAB
	b := p.ToBytes()
	require.Len(t, b, PREAMBLE_SIZE)
	assert.Equal(t, []byte("PKSG"), b[:4])

	got, err := ReadSegmentPreamble(bytes.NewReader(b), 0)
	require.NoError(t, err)
	assert.Equal(t, p, *got)

	b[1] = 'X'
	_, err = ReadSegmentPreamble(bytes.NewReader(b), 2)
	var sfe *StreamFormatError
	require.True(t, errors.As(err, &sfe))
	assert.Equal(t, 2, sfe.Segment)
}

func TestDeflateHintFlags(t *testing.T) {
	for _, h := range []DeflateHint{DEFLATE_KEEP, DEFLATE_TRUE, DEFLATE_FALSE} {
		flags := h.Flags() | STREAM_FLAG_KEEP_FILE_ORDER
		assert.Equal(t, h, flags.DeflateHint(), h.String())
	}
}

func TestVersionOrdering(t *testing.T) {
	assert.True(t, VERSION_RESOURCES.Less(VERSION_NO_INDY))
	assert.True(t, VERSION_NO_INDY.Less(VERSION_INDY))
	assert.True(t, VERSION_INDY.Less(VERSION_TYPE_ANNOTATIONS))
	assert.False(t, VERSION_RESOURCES.HasClasses())
	assert.True(t, VERSION_NO_INDY.HasClasses())
	assert.Equal(t, "160.1", VERSION_NO_INDY.String())
	assert.False(t, Version{Major: 160, Minor: 2}.Known())
}

func TestSegmentHeaderDeterministic(t *testing.T) {
	h := &SegmentHeader{
		Major: 170, Minor: 1,
		Flags:   STREAM_FLAG_KEEP_FILE_ORDER,
		Entries: 3, Classes: 2,
		ModTime: 1600000000,
		Layouts: []LayoutDef{{Context: 3, Name: "LineNumberTable", Layout: "NH[PHH]"}},
	}
	a, err := MarshalSegmentHeader(h)
	require.NoError(t, err)
	b, err := MarshalSegmentHeader(h)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	got, err := UnmarshalSegmentHeader(a, 0)
	require.NoError(t, err)
	assert.Equal(t, h, got)

	h.Classes = 4
	bad, err := MarshalSegmentHeader(h)
	require.NoError(t, err)
	_, err = UnmarshalSegmentHeader(bad, 0)
	assert.True(t, errors.Is(err, ErrStreamFormat))
}

func TestExitCode(t *testing.T) {
	testCases := []struct {
		err  error
		want int
	}{
		{nil, EXIT_OK},
		{errors.New("boom"), EXIT_FAILURE},
		{errors.Wrap(ErrInvalidConfig, "effort"), EXIT_USAGE},
		{&MalformedArchiveError{Entry: "A.class"}, EXIT_MALFORMED},
		{&UnsupportedVersionError{Entry: "A.class", Major: 99}, EXIT_UNSUPPORTED},
		{errors.Wrap(&PolicyViolationError{Attribute: "Foo", Class: "A"}, "pack"), EXIT_POLICY},
		{&SegmentOverflowError{}, EXIT_OVERFLOW},
		{&StreamFormatError{Segment: 1, Reason: "x"}, EXIT_STREAM},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, ExitCode(tc.err), "%v", tc.err)
	}
}
