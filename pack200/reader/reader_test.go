package reader_test

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indrora/pack200/pack200/archive"
	"github.com/indrora/pack200/pack200/config"
	"github.com/indrora/pack200/pack200/format"
	"github.com/indrora/pack200/internal/testclass"
	"github.com/indrora/pack200/pack200/reader"
	"github.com/indrora/pack200/pack200/writer"
)

func packed(t *testing.T, opts ...config.Option) []byte {
	t.Helper()
	cfg, err := config.New(opts...)
	require.NoError(t, err)
	a := archive.New("comment",
		archive.NewEntry("a/A.class", testclass.Hello("a/A"), time.Unix(1700000000, 0)),
		archive.NewEntry("a/readme.txt", []byte("hello, world"), time.Unix(1700000100, 0)),
	)
	a.Entries[0].Deflated = true
	buf := new(bytes.Buffer)
	_, err = writer.NewPacker(cfg).Pack(context.Background(), a, buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestReaderWalk(t *testing.T) {
	stream := packed(t, config.WithSegmentLimit(0))
	r := reader.NewReader(bytes.NewReader(stream))

	h, err := r.Header()
	require.NoError(t, err)
	assert.Equal(t, format.VERSION_NO_INDY, h.Version())
	assert.Equal(t, uint32(2), h.Segments)
	again, err := r.Header()
	require.NoError(t, err)
	assert.Same(t, h, again)

	s, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, 0, s.Index)
	assert.Equal(t, "comment", s.Header.Archive.GetComment())
	entries, err := s.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a/A.class", entries[0].Name)
	assert.True(t, entries[0].Deflated)

	s, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, 1, s.Index)
	assert.Nil(t, s.Header.Archive)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestCorruptStreams(t *testing.T) {
	good := packed(t)
	tests := []struct {
		name   string
		mangle func(b []byte) []byte
	}{
		{"empty", func(b []byte) []byte { return nil }},
		{"short header", func(b []byte) []byte { return b[:10] }},
		{"bad magic", func(b []byte) []byte { b[0] = 0xCB; return b }},
		{"unknown version", func(b []byte) []byte { b[5] = 200; return b }},
		{"unknown flags", func(b []byte) []byte { b[6] = 0x80; return b }},
		{"unknown compression", func(b []byte) []byte { b[8] = 0x7F; return b }},
		{"missing segment", func(b []byte) []byte { return b[:format.HEADER_SIZE] }},
		{"bad segment magic", func(b []byte) []byte { b[format.HEADER_SIZE] = 'X'; return b }},
		{"corrupt body", func(b []byte) []byte { b[len(b)-1] ^= 0xFF; return b }},
		{"truncated body", func(b []byte) []byte { return b[:len(b)-3] }},
		{"trailing data", func(b []byte) []byte { return append(b, 0) }},
		{"extra segment count", func(b []byte) []byte { b[13]++; return b }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.mangle(append([]byte(nil), good...))
			_, err := reader.NewUnpacker().Unpack(context.Background(), bytes.NewReader(b))
			require.Error(t, err)
			assert.True(t, errors.Is(err, format.ErrStreamFormat), "got %v", err)
			assert.Equal(t, format.EXIT_STREAM, format.ExitCode(err))

			_, err = reader.ReadAll(bytes.NewReader(b))
			assert.True(t, errors.Is(err, format.ErrStreamFormat), "got %v", err)
		})
	}
}

func TestDeflateHintOverride(t *testing.T) {
	stream := packed(t)
	tests := []struct {
		hint format.DeflateHint
		want []bool
	}{
		{format.DEFLATE_KEEP, []bool{true, false}},
		{format.DEFLATE_TRUE, []bool{true, true}},
		{format.DEFLATE_FALSE, []bool{false, false}},
	}
	for _, tt := range tests {
		t.Run(tt.hint.String(), func(t *testing.T) {
			a, err := reader.NewUnpacker(reader.WithDeflateHint(tt.hint)).Unpack(context.Background(), bytes.NewReader(stream))
			require.NoError(t, err)
			var got []bool
			for _, e := range a.Entries {
				got = append(got, e.Deflated)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStreamDeflateHint(t *testing.T) {
	a, err := reader.ReadAll(bytes.NewReader(packed(t, config.WithDeflateHint(format.DEFLATE_TRUE))))
	require.NoError(t, err)
	for _, e := range a.Entries {
		assert.True(t, e.Deflated, e.Name)
	}
}

func TestUnpackCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := reader.NewUnpacker().Unpack(ctx, bytes.NewReader(packed(t)))
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}
