package band

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indrora/pack200/pack200/format"
)

func TestSetMarshal(t *testing.T) {
	s := NewSet()
	s.Band(format.BAND_CP_UTF8).PutBytes([]byte("java/lang/Object"))
	s.Band(format.BAND_BC_CODES).PutByte(0xb1)
	s.Band(format.BAND_FILE_SIZE).PutUvarint(1 << 20)

	data := s.Marshal()
	require.Len(t, data, s.Size(), spew.Sdump(data))

	src, err := Unmarshal(data)
	require.NoError(t, err)

	name, err := src.Band(format.BAND_CP_UTF8).Bytes()
	require.NoError(t, err)
	assert.Equal(t, "java/lang/Object", string(name))

	_, ok := src.Drained()
	assert.False(t, ok)

	op, err := src.Band(format.BAND_BC_CODES).Byte()
	require.NoError(t, err)
	assert.Equal(t, byte(0xb1), op)

	size, err := src.Band(format.BAND_FILE_SIZE).Uvarint()
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<20), size)

	_, ok = src.Drained()
	assert.True(t, ok)
}

func TestSetAppend(t *testing.T) {
	a := NewSet()
	a.Band(format.BAND_CLASS_HEADER).PutUvarint(1)
	b := NewSet()
	b.Band(format.BAND_CLASS_HEADER).PutUvarint(2)
	b.Band(format.BAND_BC_REFS).PutUvarint(3)

	a.Append(b)
	src := a.Source()
	for _, want := range []uint64{1, 2} {
		v, err := src.Band(format.BAND_CLASS_HEADER).Uvarint()
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
	v, err := src.Band(format.BAND_BC_REFS).Uvarint()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), v)
}

func TestUnmarshalRejects(t *testing.T) {
	good := NewSet()
	good.Band(format.BAND_FILE_NAME).PutBytes([]byte("a.txt"))
	data := good.Marshal()

	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"wrong band count", append([]byte{3}, data[1:]...)},
		{"truncated", data[:len(data)-2]},
		{"trailing", append(append([]byte{}, data...), 0)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Unmarshal(tc.data)
			assert.True(t, errors.Is(err, ErrBadBandSet), "got %v", err)
		})
	}
}
