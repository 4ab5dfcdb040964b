package attr

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indrora/pack200/pack200/classfile"
	"github.com/indrora/pack200/pack200/format"
	"github.com/indrora/pack200/internal/testclass"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		in   string
		want Key
		ok   bool
	}{
		{"class-attribute:SourceFile", Key{CONTEXT_CLASS, "SourceFile"}, true},
		{"field-attribute:ConstantValue", Key{CONTEXT_FIELD, "ConstantValue"}, true},
		{"method-attribute:Exceptions", Key{CONTEXT_METHOD, "Exceptions"}, true},
		{"code-attribute:StackMapTable", Key{CONTEXT_CODE, "StackMapTable"}, true},
		{"code-attribute:", Key{}, false},
		{"effort", Key{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			k, err := ParseKey(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				assert.False(t, IsKey(tt.in))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, k)
			assert.Equal(t, tt.in, k.String())
		})
	}
}

func TestParseRule(t *testing.T) {
	tests := []struct {
		in   string
		want Rule
		ok   bool
	}{
		{"STRIP", Rule{Action: ACTION_STRIP}, true},
		{"pass", Rule{Action: ACTION_PASS}, true},
		{" Error ", Rule{Action: ACTION_ERROR}, true},
		{"RUH", Rule{Action: ACTION_ENCODE, Layout: "RUH"}, true},
		{"", Rule{Action: ACTION_ENCODE}, true},
		{"NH[", Rule{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			r, err := ParseRule(tt.in)
			if !tt.ok {
				assert.True(t, errors.Is(err, ErrBadLayout), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, r)
		})
	}
}

func TestResolveOrder(t *testing.T) {
	e, err := NewEngine(map[Key]Rule{
		{CONTEXT_CODE, "StackMapTable"}:  {Action: ACTION_STRIP},
		{CONTEXT_CLASS, "Custom"}:        {Action: ACTION_ENCODE, Layout: "NH[RCH]"},
		{CONTEXT_CLASS, "SourceFile"}:    {Action: ACTION_ERROR},
		{CONTEXT_METHOD, "SourceFile"}:   {Action: ACTION_PASS},
		{CONTEXT_FIELD, "ConstantValue"}: {Action: ACTION_ENCODE, Layout: "H"},
	}, ACTION_STRIP)
	require.NoError(t, err)

	tests := []struct {
		ctx  Context
		name string
		want Rule
	}{
		{CONTEXT_CODE, "StackMapTable", Rule{Action: ACTION_STRIP}},
		{CONTEXT_CODE, "LineNumberTable", Rule{Action: ACTION_ENCODE, Layout: "NH[PHH]"}},
		{CONTEXT_CLASS, "Custom", Rule{Action: ACTION_ENCODE, Layout: "NH[RCH]"}},
		{CONTEXT_FIELD, "Custom", Rule{Action: ACTION_STRIP}},
		{CONTEXT_CLASS, "SourceFile", Rule{Action: ACTION_ERROR}},
		{CONTEXT_METHOD, "SourceFile", Rule{Action: ACTION_PASS}},
		{CONTEXT_FIELD, "ConstantValue", Rule{Action: ACTION_ENCODE, Layout: "H"}},
		{CONTEXT_FIELD, "Deprecated", Rule{Action: ACTION_ENCODE, Layout: ""}},
		{CONTEXT_METHOD, "Unheard", Rule{Action: ACTION_STRIP}},
	}
	for _, tt := range tests {
		t.Run(Key{tt.ctx, tt.name}.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, e.Resolve(tt.ctx, tt.name))
		})
	}
}

func TestNewEngineRejects(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[Key]Rule
		unknown   Action
	}{
		{"code override", map[Key]Rule{{CONTEXT_METHOD, CODE}: {Action: ACTION_STRIP}}, ACTION_PASS},
		{"bad layout", map[Key]Rule{{CONTEXT_CLASS, "X"}: {Action: ACTION_ENCODE, Layout: "NH["}}, ACTION_PASS},
		{"bad context", map[Key]Rule{{Context(9), "X"}: {Action: ACTION_PASS}}, ACTION_PASS},
		{"unknown with layout", nil, ACTION_ENCODE},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(tt.overrides, tt.unknown)
			assert.Error(t, err)
		})
	}
}

func attrNames(c *classfile.Class, attrs []*classfile.Attribute) []string {
	var out []string
	for _, a := range attrs {
		out = append(out, c.AttrName(a))
	}
	return out
}

func TestFilterStripsStackMapTable(t *testing.T) {
	c, err := classfile.Parse(testclass.Rich("com/example/Rich"))
	require.NoError(t, err)
	original := c.Bytes()

	e, err := NewEngine(map[Key]Rule{
		{CONTEXT_CODE, "StackMapTable"}: {Action: ACTION_STRIP},
	}, ACTION_PASS)
	require.NoError(t, err)
	out, report, err := e.Filter(c)
	require.NoError(t, err)

	assert.Equal(t, original, c.Bytes(), "input class must not change")
	code, err := classfile.ParseCode(out.Methods[0].Attributes[0].Info)
	require.NoError(t, err)
	assert.Equal(t, []string{"LineNumberTable", "LocalVariableTable"}, attrNames(out, code.Attributes))
	assert.Equal(t, 1, report.Count(STATE_STRIPPED))
	// com.example.Custom is unknown and passed.
	assert.Equal(t, 1, report.Count(STATE_PASSED))
	assert.Zero(t, report.Count(STATE_ERRORED))

	// Everything but the stripped table is unchanged.
	reparsed, err := classfile.Parse(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, out.Bytes(), reparsed.Bytes())
	assert.Equal(t, len(c.Methods[1].Attributes), len(out.Methods[1].Attributes))
}

func TestFilterUnknownPolicy(t *testing.T) {
	c, err := classfile.Parse(testclass.Rich("com/example/Rich"))
	require.NoError(t, err)

	e, err := NewEngine(nil, ACTION_STRIP)
	require.NoError(t, err)
	out, report, err := e.Filter(c)
	require.NoError(t, err)
	assert.NotContains(t, attrNames(out, out.Attributes), "com.example.Custom")
	assert.Equal(t, 1, report.Count(STATE_STRIPPED))
	assert.Zero(t, report.Count(STATE_PASSED))
}

func TestFilterError(t *testing.T) {
	c, err := classfile.Parse(testclass.Rich("com/example/Rich"))
	require.NoError(t, err)

	tests := []struct {
		name      string
		overrides map[Key]Rule
		unknown   Action
		want      format.PolicyViolationError
	}{
		{
			"unknown class attribute",
			nil, ACTION_ERROR,
			format.PolicyViolationError{Attribute: "com.example.Custom", Class: "com/example/Rich"},
		},
		{
			"method attribute",
			map[Key]Rule{{CONTEXT_METHOD, "Exceptions"}: {Action: ACTION_ERROR}}, ACTION_PASS,
			format.PolicyViolationError{Attribute: "Exceptions", Class: "com/example/Rich", Member: "work:(I)I"},
		},
		{
			"code attribute",
			map[Key]Rule{{CONTEXT_CODE, "LineNumberTable"}: {Action: ACTION_ERROR}}, ACTION_PASS,
			format.PolicyViolationError{Attribute: "LineNumberTable", Class: "com/example/Rich", Member: "work:(I)I"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEngine(tt.overrides, tt.unknown)
			require.NoError(t, err)
			_, report, err := e.Filter(c)
			require.Error(t, err)
			assert.True(t, errors.Is(err, format.ErrPolicyViolation))

			var pv *format.PolicyViolationError
			require.True(t, errors.As(err, &pv))
			assert.Equal(t, tt.want, *pv)
			assert.Equal(t, 1, report.Count(STATE_ERRORED))
		})
	}
}

func TestCollectAndTable(t *testing.T) {
	c, err := classfile.Parse(testclass.Rich("com/example/Rich"))
	require.NoError(t, err)
	e, err := NewEngine(map[Key]Rule{
		{CONTEXT_CLASS, "com.example.Custom"}: {Action: ACTION_ENCODE, Layout: "BBB"},
	}, ACTION_PASS)
	require.NoError(t, err)

	table := NewTable()
	require.NoError(t, e.Collect(table, c))
	require.NoError(t, e.Collect(table, c))

	defs := table.Defs()
	seen := map[Key]bool{}
	for _, d := range defs {
		k := Key{Context(d.Context), d.Name}
		assert.False(t, seen[k], "%s listed twice", k)
		seen[k] = true
	}
	assert.True(t, seen[Key{CONTEXT_CODE, "StackMapTable"}])
	assert.True(t, seen[Key{CONTEXT_CLASS, "com.example.Custom"}])
	assert.False(t, seen[Key{CONTEXT_METHOD, CODE}])
	assert.Equal(t, "BBB", table.Lookup(Key{CONTEXT_CLASS, "com.example.Custom"}).String())

	rebuilt, err := TableFromDefs(defs)
	require.NoError(t, err)
	assert.Equal(t, defs, rebuilt.Defs())
	assert.Nil(t, rebuilt.Lookup(Key{CONTEXT_FIELD, "Unheard"}))

	_, err = TableFromDefs(append(defs, defs[0]))
	assert.Error(t, err)
	_, err = TableFromDefs([]format.LayoutDef{{Context: 7, Name: "X"}})
	assert.Error(t, err)
	_, err = TableFromDefs([]format.LayoutDef{{Name: "X", Layout: "NH["}})
	assert.True(t, errors.Is(err, ErrBadLayout))
}
