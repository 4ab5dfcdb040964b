package config

import (
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indrora/pack200/pack200/attr"
	"github.com/indrora/pack200/pack200/format"
	"github.com/indrora/pack200/pack200/segment"
)

func TestDefaults(t *testing.T) {
	c := Default()
	assert.Equal(t, 5, c.Effort)
	assert.Equal(t, segment.Unbounded, c.SegmentLimit)
	assert.Equal(t, format.DEFLATE_KEEP, c.DeflateHint)
	assert.True(t, c.KeepFileOrder)
	assert.Equal(t, MODTIME_KEEP, c.ModTime.Mode)
	assert.Equal(t, attr.ACTION_PASS, c.UnknownAttribute)
	assert.Equal(t, attr.ACTION_PASS, c.ClassFormatError)
	assert.Equal(t, format.COMPRESSION_ZSTD, c.Compression)
	assert.NotNil(t, c.Logger)
	assert.NotNil(t, c.Engine())
	assert.Positive(t, c.WorkerCount())

	assert.Equal(t, map[string]string{
		"effort":                             "5",
		"segment-limit":                      "-1",
		"deflate-hint":                       "KEEP",
		"keep-file-order":                    "true",
		"modification-time":                  "KEEP",
		"unknown-attribute":                  "PASS",
		"class-format-error":                 "PASS",
		"compression":                        "zstd",
		"class-attribute:CompilationID":      "RUH",
		"class-attribute:SourceID":           "RUH",
		"code-attribute:CharacterRangeTable": "NH[PHPOHIIH]",
		"code-attribute:CoverageTable":       "NH[PHHII]",
	}, c.Properties())

	rule := c.Engine().Resolve(attr.CONTEXT_CODE, "CoverageTable")
	assert.Equal(t, attr.Rule{Action: attr.ACTION_ENCODE, Layout: "NH[PHHII]"}, rule)
}

func TestFromProperties(t *testing.T) {
	c, err := FromProperties(map[string]string{
		"effort":                       "9",
		"segment-limit":                "1000000",
		"deflate-hint":                 "true",
		"keep-file-order":              "false",
		"modification-time":            "2021-03-04T05:06:07Z",
		"unknown-attribute":            "STRIP",
		"class-format-error":           "ERROR",
		"compression":                  "brotli",
		"code-attribute:StackMapTable": "STRIP",
		"class-attribute:Custom":       "NH[RCH]",
	})
	require.NoError(t, err)
	assert.Equal(t, 9, c.Effort)
	assert.Equal(t, int64(1000000), c.SegmentLimit)
	assert.Equal(t, format.DEFLATE_TRUE, c.DeflateHint)
	assert.False(t, c.KeepFileOrder)
	assert.Equal(t, ModTime{Mode: MODTIME_FIXED, Time: time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)}, c.ModTime)
	assert.Equal(t, attr.ACTION_STRIP, c.UnknownAttribute)
	assert.Equal(t, attr.ACTION_ERROR, c.ClassFormatError)
	assert.Equal(t, format.COMPRESSION_BROTLI, c.Compression)
	assert.Equal(t, attr.Rule{Action: attr.ACTION_STRIP}, c.Engine().Resolve(attr.CONTEXT_CODE, "StackMapTable"))
	assert.Equal(t, "NH[RCH]", c.Properties()["class-attribute:Custom"])

	// Rendered properties build the same configuration.
	again, err := FromProperties(c.Properties())
	require.NoError(t, err)
	assert.Equal(t, c.Properties(), again.Properties())
}

func TestInvalid(t *testing.T) {
	tests := []struct {
		name  string
		props map[string]string
	}{
		{"effort high", map[string]string{"effort": "10"}},
		{"effort word", map[string]string{"effort": "lots"}},
		{"segment limit", map[string]string{"segment-limit": "-2"}},
		{"deflate hint", map[string]string{"deflate-hint": "MAYBE"}},
		{"order", map[string]string{"keep-file-order": "sometimes"}},
		{"modtime", map[string]string{"modification-time": "yesterday"}},
		{"unknown attribute", map[string]string{"unknown-attribute": "IGNORE"}},
		{"class format strip", map[string]string{"class-format-error": "STRIP"}},
		{"compression", map[string]string{"compression": "lzma"}},
		{"unknown key", map[string]string{"pack.effort": "1"}},
		{"bad layout", map[string]string{"class-attribute:X": "NH["}},
		{"code override", map[string]string{"method-attribute:Code": "STRIP"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromProperties(tt.props)
			require.Error(t, err)
			assert.True(t, errors.Is(err, format.ErrInvalidConfig), "got %v", err)
			assert.Equal(t, format.EXIT_USAGE, format.ExitCode(err))
		})
	}
}

func TestParseModTime(t *testing.T) {
	tests := []struct {
		in   string
		want ModTime
	}{
		{"keep", ModTime{Mode: MODTIME_KEEP}},
		{"LATEST", ModTime{Mode: MODTIME_LATEST}},
		{"0", ModTime{Mode: MODTIME_FIXED, Time: time.Unix(0, 0).UTC()}},
		{"1600000000", ModTime{Mode: MODTIME_FIXED, Time: time.Unix(1600000000, 0).UTC()}},
		{"2020-09-13T14:26:40+02:00", ModTime{Mode: MODTIME_FIXED, Time: time.Unix(1600000000, 0).UTC()}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m, err := ParseModTime(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m)
		})
	}
	assert.Equal(t, "2020-09-13T12:26:40Z", ModTime{Mode: MODTIME_FIXED, Time: time.Unix(1600000000, 0)}.String())
}

func TestLoad(t *testing.T) {
	doc := `
effort: 2
keep-file-order: false
segment-limit: 4096
code-attribute:LineNumberTable: STRIP
attributes:
  code-attribute:StackMapTable: STRIP
  class-attribute:Custom: RUH
`
	c, err := Load(strings.NewReader(doc), WithWorkers(3))
	require.NoError(t, err)
	assert.Equal(t, 2, c.Effort)
	assert.False(t, c.KeepFileOrder)
	assert.Equal(t, int64(4096), c.SegmentLimit)
	assert.Equal(t, 3, c.WorkerCount())
	e := c.Engine()
	assert.Equal(t, attr.ACTION_STRIP, e.Resolve(attr.CONTEXT_CODE, "LineNumberTable").Action)
	assert.Equal(t, attr.ACTION_STRIP, e.Resolve(attr.CONTEXT_CODE, "StackMapTable").Action)
	assert.Equal(t, "RUH", e.Resolve(attr.CONTEXT_CLASS, "Custom").Layout)

	_, err = Load(strings.NewReader("effort: [1, 2]"))
	assert.True(t, errors.Is(err, format.ErrInvalidConfig), "got %v", err)
	_, err = Load(strings.NewReader("effort: [1, 2"))
	assert.True(t, errors.Is(err, format.ErrInvalidConfig), "got %v", err)
}

func TestOptionsOverrideProperties(t *testing.T) {
	c, err := FromProperties(map[string]string{"effort": "1"}, WithEffort(7), WithCompression(format.COMPRESSION_NONE))
	require.NoError(t, err)
	assert.Equal(t, 7, c.Effort)
	assert.Equal(t, "none", c.Properties()["compression"])

	_, err = New(WithWorkers(-1))
	assert.True(t, errors.Is(err, format.ErrInvalidConfig))
}

func TestRulesIsACopy(t *testing.T) {
	c, err := New(WithAttribute("code-attribute:StackMapTable", "STRIP"))
	require.NoError(t, err)
	key := attr.Key{Context: attr.CONTEXT_CODE, Name: "StackMapTable"}

	rules := c.Rules()
	require.Equal(t, attr.ACTION_STRIP, rules[key].Action)
	rules[key] = attr.Rule{Action: attr.ACTION_ERROR}
	delete(rules, attr.Key{Context: attr.CONTEXT_CLASS, Name: "SourceID"})

	assert.Equal(t, attr.ACTION_STRIP, c.Rules()[key].Action)
	assert.Equal(t, "STRIP", c.Properties()["code-attribute:StackMapTable"])
	assert.Equal(t, "RUH", c.Properties()["class-attribute:SourceID"])
	assert.Equal(t, attr.ACTION_STRIP, c.Engine().Resolve(attr.CONTEXT_CODE, "StackMapTable").Action)
}
