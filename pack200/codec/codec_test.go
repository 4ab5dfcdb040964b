package codec

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indrora/pack200/pack200/attr"
	"github.com/indrora/pack200/pack200/band"
	"github.com/indrora/pack200/pack200/classfile"
	"github.com/indrora/pack200/pack200/format"
	"github.com/indrora/pack200/internal/testclass"
	"github.com/indrora/pack200/pack200/pool"
)

func parse(t *testing.T, data []byte) *classfile.Class {
	t.Helper()
	c, err := classfile.Parse(data)
	require.NoError(t, err)
	return c
}

// roundTrip packs classes into one segment body with a shared pool and
// unpacks them again.
func roundTrip(t *testing.T, e *attr.Engine, classes ...*classfile.Class) []*classfile.Class {
	t.Helper()
	table := attr.NewTable()
	p := pool.New()
	body := band.NewSet()
	var refs [][]pool.Ref
	for _, c := range classes {
		require.NoError(t, e.Collect(table, c))
		r, err := p.AddClass(c)
		require.NoError(t, err)
		refs = append(refs, r)
	}
	p.Write(body)
	for i, c := range classes {
		set := band.NewSet()
		require.NoError(t, EncodeClass(c, refs[i], table, set))
		body.Append(set)
	}

	src, err := band.Unmarshal(body.Marshal())
	require.NoError(t, err)
	readPool, err := pool.Read(src)
	require.NoError(t, err)
	readTable, err := attr.TableFromDefs(table.Defs())
	require.NoError(t, err)

	var out []*classfile.Class
	for range classes {
		c, err := DecodeClass(src, readPool, readTable)
		require.NoError(t, err)
		out = append(out, c)
	}
	id, drained := src.Drained()
	assert.True(t, drained, "%s not drained", id)
	return out
}

func TestClassRoundTrip(t *testing.T) {
	e, err := attr.NewEngine(nil, attr.ACTION_PASS)
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"hello", testclass.Hello("com/example/Hello")},
		{"rich", testclass.Rich("com/example/Rich")},
		{"type annotations", testclass.TypeAnnotated("com/example/Typed")},
		{"indy", testclass.Indy("com/example/Indy")},
		{"interface", testclass.New("com/example/I", "java/lang/Object").Access(testclass.ACC_INTERFACE | testclass.ACC_ABSTRACT).Bytes()},
		{"no super", testclass.New("java/lang/Object", "").Bytes()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := roundTrip(t, e, parse(t, tt.data))
			assert.Equal(t, tt.data, out[0].Bytes())
		})
	}
}

func TestSharedPoolRoundTrip(t *testing.T) {
	e, err := attr.NewEngine(nil, attr.ACTION_PASS)
	require.NoError(t, err)
	inputs := [][]byte{
		testclass.Hello("com/example/A"),
		testclass.Rich("com/example/Rich"),
		testclass.Hello("com/example/B"),
		testclass.TypeAnnotated("com/example/Typed"),
	}
	var classes []*classfile.Class
	for _, in := range inputs {
		classes = append(classes, parse(t, in))
	}
	out := roundTrip(t, e, classes...)
	for i := range inputs {
		assert.Equal(t, inputs[i], out[i].Bytes(), "class %d", i)
	}
}

func TestLayoutMismatchFallsBackToRaw(t *testing.T) {
	// SourceFile names a Utf8, so a class reference layout cannot match.
	e, err := attr.NewEngine(map[attr.Key]attr.Rule{
		{Context: attr.CONTEXT_CLASS, Name: "SourceFile"}: {Action: attr.ACTION_ENCODE, Layout: "RCH"},
	}, attr.ACTION_PASS)
	require.NoError(t, err)
	data := testclass.Rich("com/example/Rich")
	c := parse(t, data)

	table := attr.NewTable()
	require.NoError(t, e.Collect(table, c))
	p := pool.New()
	refs, err := p.AddClass(c)
	require.NoError(t, err)
	set := band.NewSet()
	require.NoError(t, EncodeClass(c, refs, table, set))
	assert.NotZero(t, set.Band(format.BAND_ATTR_BYTES).Len())

	out := roundTrip(t, e, c)
	assert.Equal(t, data, out[0].Bytes())
}

func TestWithoutLayoutsEverythingIsRaw(t *testing.T) {
	data := testclass.Rich("com/example/Rich")
	c := parse(t, data)
	p := pool.New()
	refs, err := p.AddClass(c)
	require.NoError(t, err)

	set := band.NewSet()
	require.NoError(t, EncodeClass(c, refs, nil, set))
	assert.Zero(t, set.Band(format.BAND_ATTR_INTS).Len())
	assert.Zero(t, set.Band(format.BAND_ATTR_REFS).Len())

	out, err := DecodeClass(set.Source(), p, nil)
	require.NoError(t, err)
	assert.Equal(t, data, out.Bytes())
}

func TestDuplicateConstantsDoNotRoundTrip(t *testing.T) {
	b := testclass.New("com/example/Dup", "java/lang/Object")
	first := b.Str("twice")
	second := b.Raw(classfile.Constant{Tag: classfile.TAG_STRING, A: b.Utf8("twice")})
	b.Method(testclass.ACC_STATIC, "m", "()Ljava/lang/Object;",
		b.Code(1, 0, []byte{0x12, byte(second), 0xb0}, nil))
	data := b.Bytes()
	require.NotEqual(t, first, second)

	e, err := attr.NewEngine(nil, attr.ACTION_PASS)
	require.NoError(t, err)
	out := roundTrip(t, e, parse(t, data))
	// Operands come back pointing at the first copy.
	assert.NotEqual(t, data, out[0].Bytes())
}

func TestEncodeUnencodableBytecode(t *testing.T) {
	b := testclass.New("com/example/Odd", "java/lang/Object")
	b.Method(testclass.ACC_STATIC, "m", "()V", b.Code(0, 0, []byte{0xca}, nil))
	c := parse(t, b.Bytes())
	p := pool.New()
	refs, err := p.AddClass(c)
	require.NoError(t, err)
	err = EncodeClass(c, refs, nil, band.NewSet())
	assert.True(t, errors.Is(err, ErrUnencodable), "got %v", err)
}

func TestDecodeRejectsCorruptBands(t *testing.T) {
	c := parse(t, testclass.Hello("com/example/Hello"))
	p := pool.New()
	refs, err := p.AddClass(c)
	require.NoError(t, err)
	set := band.NewSet()
	require.NoError(t, EncodeClass(c, refs, nil, set))
	good := set.Marshal()

	t.Run("truncated", func(t *testing.T) {
		src, err := band.Unmarshal(good)
		require.NoError(t, err)
		// Drain the attribute header so member attributes are missing.
		h := src.Band(format.BAND_ATTR_HEADER)
		_, err = h.Raw(h.Remaining())
		require.NoError(t, err)
		_, err = DecodeClass(src, p, nil)
		assert.Error(t, err)
	})
	t.Run("unknown symbol", func(t *testing.T) {
		bad := band.NewSet()
		w := bad.Band(format.BAND_CLASS_CP)
		w.PutUvarint(2)
		w.PutByte(classfile.TAG_UTF8)
		w.PutUvarint(9999)
		_, err := DecodeClass(bad.Source(), p, nil)
		assert.True(t, errors.Is(err, pool.ErrBadPool), "got %v", err)
	})
	t.Run("bad tag", func(t *testing.T) {
		bad := band.NewSet()
		w := bad.Band(format.BAND_CLASS_CP)
		w.PutUvarint(2)
		w.PutByte(classfile.TAG_MODULE)
		w.PutUvarint(0)
		_, err := DecodeClass(bad.Source(), p, nil)
		assert.True(t, errors.Is(err, ErrBadClassBands), "got %v", err)
	})
	t.Run("layout without table", func(t *testing.T) {
		e, err := attr.NewEngine(nil, attr.ACTION_PASS)
		require.NoError(t, err)
		rich := parse(t, testclass.Rich("com/example/Rich"))
		table := attr.NewTable()
		require.NoError(t, e.Collect(table, rich))
		rp := pool.New()
		rrefs, err := rp.AddClass(rich)
		require.NoError(t, err)
		set := band.NewSet()
		require.NoError(t, EncodeClass(rich, rrefs, table, set))
		_, err = DecodeClass(set.Source(), rp, attr.NewTable())
		assert.True(t, errors.Is(err, ErrBadClassBands), spew.Sdump(err))
	})
}
