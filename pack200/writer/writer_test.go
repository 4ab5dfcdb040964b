package writer_test

import (
	"bytes"
	"context"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indrora/pack200/pack200/archive"
	"github.com/indrora/pack200/pack200/attr"
	"github.com/indrora/pack200/pack200/classfile"
	"github.com/indrora/pack200/pack200/config"
	"github.com/indrora/pack200/pack200/format"
	"github.com/indrora/pack200/internal/testclass"
	"github.com/indrora/pack200/pack200/reader"
	"github.com/indrora/pack200/pack200/writer"
)

func entry(name string, data []byte, secs int64, deflated bool) *archive.Entry {
	e := archive.NewEntry(name, data, time.Unix(secs, 0))
	e.Deflated = deflated
	return e
}

// sample is a small jar: resources, classes sharing most of their
// constants, a class with every feature the class bands carry and a class
// that does not parse.
func sample() *archive.Archive {
	return archive.New("sample jar",
		entry("META-INF/", nil, 1600000000, false),
		entry("META-INF/MANIFEST.MF", []byte("Manifest-Version: 1.0\r\nMain-Class: com.example.Hello\r\n"), 1600000100, true),
		entry("com/example/Hello.class", testclass.Hello("com/example/Hello"), 1600000200, true),
		entry("com/example/Other.class", testclass.Hello("com/example/Other"), 1600000150, true),
		entry("com/example/Rich.class", testclass.Rich("com/example/Rich"), 1600000300, false),
		entry("com/example/Renamed.class", testclass.Hello("com/example/NotRenamed"), 1600000050, true),
		entry("com/example/Broken.class", testclass.Malformed(), 1600000010, false),
		entry("com/example/data.bin", bytes.Repeat([]byte{1, 2, 3, 4}, 300), 1600000400, true),
	)
}

func pack(t *testing.T, cfg *config.Config, a *archive.Archive) ([]byte, *writer.Stats) {
	t.Helper()
	buf := new(bytes.Buffer)
	stats, err := writer.NewPacker(cfg).Pack(context.Background(), a, buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), stats.OutputBytes)
	return buf.Bytes(), stats
}

func unpack(t *testing.T, stream []byte) *archive.Archive {
	t.Helper()
	a, err := reader.NewUnpacker(reader.WithWorkers(2)).Unpack(context.Background(), bytes.NewReader(stream))
	require.NoError(t, err)
	return a
}

func byName(a *archive.Archive) map[string]*archive.Entry {
	m := map[string]*archive.Entry{}
	for _, e := range a.Entries {
		m[e.Name] = e
	}
	return m
}

func names(a *archive.Archive) []string {
	var out []string
	for _, e := range a.Entries {
		out = append(out, e.Name)
	}
	return out
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		props map[string]string
	}{
		{"defaults", nil},
		{"effort 0", map[string]string{"effort": "0"}},
		{"effort 1", map[string]string{"effort": "1"}},
		{"effort 9 brotli", map[string]string{"effort": "9", "compression": "brotli"}},
		{"gzip", map[string]string{"compression": "gzip"}},
		{"uncompressed", map[string]string{"compression": "none"}},
		{"segment per entry", map[string]string{"segment-limit": "0"}},
		{"small segments", map[string]string{"segment-limit": "1200"}},
		{"sorted", map[string]string{"keep-file-order": "false"}},
		{"latest time", map[string]string{"modification-time": "LATEST"}},
		{"fixed time", map[string]string{"modification-time": "1500000000"}},
		{"deflate all", map[string]string{"deflate-hint": "TRUE"}},
		{"store all", map[string]string{"deflate-hint": "FALSE"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.FromProperties(tt.props)
			require.NoError(t, err)
			in := sample()
			stream, stats := pack(t, cfg, in)
			out := unpack(t, stream)

			assert.Equal(t, in.Comment, out.Comment)
			assert.Equal(t, len(in.Entries), stats.Entries)
			require.Len(t, out.Entries, len(in.Entries))
			got := byName(out)
			for _, want := range in.Entries {
				e := got[want.Name]
				require.NotNil(t, e, want.Name)
				assert.Equal(t, want.Data, e.Data, want.Name)
				assert.Equal(t, want.Kind, e.Kind, want.Name)

				switch cfg.ModTime.Mode {
				case config.MODTIME_KEEP:
					assert.Equal(t, want.ModTime, e.ModTime, want.Name)
				case config.MODTIME_LATEST:
					assert.Equal(t, in.LatestModTime(), e.ModTime, want.Name)
				case config.MODTIME_FIXED:
					assert.Equal(t, cfg.ModTime.Time, e.ModTime, want.Name)
				}
				switch cfg.DeflateHint {
				case format.DEFLATE_KEEP:
					assert.Equal(t, want.Deflated, e.Deflated, want.Name)
				default:
					assert.Equal(t, cfg.DeflateHint == format.DEFLATE_TRUE, e.Deflated, want.Name)
				}
			}

			if cfg.KeepFileOrder {
				assert.Equal(t, names(in), names(out))
			} else {
				assert.Equal(t, []string{
					"com/example/Broken.class",
					"com/example/Hello.class",
					"com/example/Other.class",
					"com/example/Renamed.class",
					"com/example/Rich.class",
					"META-INF/",
					"META-INF/MANIFEST.MF",
					"com/example/data.bin",
				}, names(out))
			}

			if cfg.Effort == 0 {
				assert.Zero(t, stats.Classes)
				assert.Equal(t, 5, stats.RawClasses)
			} else {
				assert.Equal(t, 4, stats.Classes, spew.Sdump(stats))
				assert.Equal(t, 1, stats.RawClasses)
			}
		})
	}
}

func TestDeterminism(t *testing.T) {
	for _, props := range []map[string]string{
		nil,
		{"effort": "1", "segment-limit": "900"},
		{"keep-file-order": "false", "deflate-hint": "TRUE", "modification-time": "LATEST"},
		{"code-attribute:StackMapTable": "STRIP", "compression": "gzip"},
	} {
		t.Run(spew.Sprint(props), func(t *testing.T) {
			cfg, err := config.FromProperties(props, config.WithWorkers(4))
			require.NoError(t, err)
			first, stats := pack(t, cfg, sample())
			second, again := pack(t, cfg, sample())
			assert.Equal(t, first, second)
			assert.Equal(t, stats.Digest, again.Digest)
			assert.NoError(t, stats.Digest.Validate())

			repacked, _ := pack(t, cfg, unpack(t, first))
			assert.Equal(t, first, repacked)
		})
	}
}

func TestSingleSegmentByDefault(t *testing.T) {
	logs := new(bytes.Buffer)
	cfg, err := config.New(config.WithLogger(slog.New(slog.NewTextHandler(logs, nil))))
	require.NoError(t, err)

	stream, stats := pack(t, cfg, sample())
	assert.Equal(t, 1, stats.Segments)
	assert.Equal(t, 1, strings.Count(logs.String(), "Transmitted"), logs.String())
	assert.Contains(t, logs.String(), "Transmitted 8 files of ")

	h, err := reader.NewReader(bytes.NewReader(stream)).Header()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), h.Segments)

	logs.Reset()
	cfg, err = config.New(config.WithSegmentLimit(0), config.WithLogger(slog.New(slog.NewTextHandler(logs, nil))))
	require.NoError(t, err)
	_, stats = pack(t, cfg, sample())
	assert.Equal(t, 8, stats.Segments)
	assert.Equal(t, 8, strings.Count(logs.String(), "Transmitted 1 files"))
}

func TestVersionStamping(t *testing.T) {
	tests := []struct {
		name    string
		entries []*archive.Entry
		want    format.Version
	}{
		{"resources only", []*archive.Entry{entry("a.txt", []byte("a"), 0, false)}, format.VERSION_RESOURCES},
		{"empty", nil, format.VERSION_RESOURCES},
		{"malformed class only", []*archive.Entry{entry("A.class", testclass.Malformed(), 0, false)}, format.VERSION_RESOURCES},
		{"plain classes", []*archive.Entry{entry("A.class", testclass.Hello("A"), 0, false)}, format.VERSION_NO_INDY},
		{"method type constant", []*archive.Entry{
			entry("A.class", testclass.Hello("A"), 0, false),
			entry("I.class", testclass.Indy("I"), 0, false),
		}, format.VERSION_INDY},
		{"class file 52", []*archive.Entry{entry("R.class", testclass.Rich("R"), 0, false)}, format.VERSION_INDY},
		{"type annotations", []*archive.Entry{
			entry("R.class", testclass.Rich("R"), 0, false),
			entry("T.class", testclass.TypeAnnotated("T"), 0, false),
		}, format.VERSION_TYPE_ANNOTATIONS},
		{"future class passed", []*archive.Entry{
			entry("A.class", testclass.Hello("A"), 0, false),
			entry("F.class", testclass.Future("F"), 0, false),
		}, format.VERSION_NO_INDY},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream, stats := pack(t, config.Default(), archive.New("", tt.entries...))
			assert.Equal(t, tt.want, stats.Version)
			assert.Equal(t, []byte{0xCA, 0xFE, 0xD0, 0x0D, tt.want.Minor, tt.want.Major}, stream[:6])
			assert.Len(t, unpack(t, stream).Entries, len(tt.entries))
		})
	}
}

func TestStrippedTypeAnnotationsLowerVersion(t *testing.T) {
	cfg, err := config.FromProperties(map[string]string{
		"field-attribute:RuntimeVisibleTypeAnnotations": "STRIP",
		"code-attribute:RuntimeVisibleTypeAnnotations":  "STRIP",
	})
	require.NoError(t, err)
	_, stats := pack(t, cfg, archive.New("", entry("T.class", testclass.TypeAnnotated("T"), 0, false)))
	assert.Equal(t, format.VERSION_INDY, stats.Version)
	assert.Equal(t, 2, stats.Stripped)
}

func TestStripStackMapTable(t *testing.T) {
	cfg, err := config.New(config.WithAttribute("code-attribute:StackMapTable", "STRIP"))
	require.NoError(t, err)
	in := sample()
	stream, stats := pack(t, cfg, in)
	assert.Equal(t, 1, stats.Stripped)

	rich := byName(unpack(t, stream))["com/example/Rich.class"]
	require.NotNil(t, rich)
	c, err := classfile.Parse(rich.Data)
	require.NoError(t, err)
	original, err := classfile.Parse(byName(in)["com/example/Rich.class"].Data)
	require.NoError(t, err)

	for i, m := range c.Methods {
		for j, a := range m.Attributes {
			if c.AttrName(a) != attr.CODE {
				assert.Equal(t, original.Methods[i].Attributes[j].Info, a.Info)
				continue
			}
			code, err := classfile.ParseCode(a.Info)
			require.NoError(t, err)
			for _, ca := range code.Attributes {
				assert.NotEqual(t, "StackMapTable", c.AttrName(ca))
			}
			want, err := classfile.ParseCode(original.Methods[i].Attributes[j].Info)
			require.NoError(t, err)
			assert.Equal(t, want.Code, code.Code)
		}
	}
	assert.Equal(t, len(original.Attributes), len(c.Attributes))
}

func TestClassFormatError(t *testing.T) {
	tests := []struct {
		name  string
		data  []byte
		is    error
		code  int
		check func(t *testing.T, err error)
	}{
		{"malformed", testclass.Malformed(), format.ErrMalformedArchive, format.EXIT_MALFORMED, func(t *testing.T, err error) {
			var m *format.MalformedArchiveError
			require.True(t, errors.As(err, &m))
			assert.Equal(t, "X.class", m.Entry)
		}},
		{"too new", testclass.Future("X"), format.ErrUnsupportedVersion, format.EXIT_UNSUPPORTED, func(t *testing.T, err error) {
			var u *format.UnsupportedVersionError
			require.True(t, errors.As(err, &u))
			assert.Equal(t, uint16(61), u.Major)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := archive.New("", entry("X.class", tt.data, 0, false))

			// PASS stores the class as it is.
			stream, stats := pack(t, config.Default(), in)
			assert.Equal(t, 1, stats.RawClasses)
			assert.Equal(t, tt.data, unpack(t, stream).Entries[0].Data)

			cfg, err := config.New(config.WithClassFormatError(attr.ACTION_ERROR))
			require.NoError(t, err)
			buf := new(bytes.Buffer)
			_, err = writer.NewPacker(cfg).Pack(context.Background(), in, buf)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.is), "got %v", err)
			assert.Equal(t, tt.code, format.ExitCode(err))
			assert.Zero(t, buf.Len())
			tt.check(t, err)
		})
	}
}

// badCode is a class whose only method has a Code attribute with a stray
// trailing byte. The class itself parses.
func badCode(name string) []byte {
	b := testclass.New(name, "java/lang/Object")
	code := b.Code(0, 1, []byte{0xB1}, nil)
	code.Info = append(code.Info, 0)
	b.Method(testclass.ACC_STATIC, "run", "()V", code)
	return b.Bytes()
}

func TestMalformedCode(t *testing.T) {
	data := badCode("p/Bad")
	_, err := classfile.Parse(data)
	require.NoError(t, err)
	in := archive.New("", entry("p/Bad.class", data, 0, false), entry("p/Ok.class", testclass.Hello("p/Ok"), 0, false))

	stream, stats := pack(t, config.Default(), in)
	assert.Equal(t, 1, stats.RawClasses)
	assert.Equal(t, 1, stats.Classes)
	assert.Equal(t, data, byName(unpack(t, stream))["p/Bad.class"].Data)

	cfg, err := config.New(config.WithClassFormatError(attr.ACTION_ERROR))
	require.NoError(t, err)
	buf := new(bytes.Buffer)
	_, err = writer.NewPacker(cfg).Pack(context.Background(), in, buf)
	var m *format.MalformedArchiveError
	require.True(t, errors.As(err, &m), "got %v", err)
	assert.Equal(t, "p/Bad.class", m.Entry)
	assert.True(t, errors.Is(err, classfile.ErrMalformed))
	assert.Equal(t, format.EXIT_MALFORMED, format.ExitCode(err))
	assert.Zero(t, buf.Len())
}

func TestRepackAfterStrip(t *testing.T) {
	cfg, err := config.New(config.WithAttribute("code-attribute:StackMapTable", "STRIP"))
	require.NoError(t, err)
	in := archive.New("", entry("p/Rich.class", testclass.Rich("p/Rich"), 1600000000, false))
	first, _ := pack(t, cfg, in)
	out := unpack(t, first)
	assert.Less(t, out.Size(), in.Size())

	h, err := reader.NewReader(bytes.NewReader(first)).Next()
	require.NoError(t, err)
	require.NotNil(t, h.Header.Archive.InputSize)
	assert.Equal(t, uint64(out.Size()), *h.Header.Archive.InputSize)

	second, _ := pack(t, cfg, out)
	assert.Equal(t, first, second)
}

func TestPolicyViolationWritesNothing(t *testing.T) {
	cfg, err := config.New(config.WithUnknownAttribute(attr.ACTION_ERROR))
	require.NoError(t, err)
	buf := new(bytes.Buffer)
	_, err = writer.NewPacker(cfg).Pack(context.Background(), sample(), buf)
	require.Error(t, err)
	var pv *format.PolicyViolationError
	require.True(t, errors.As(err, &pv))
	assert.Equal(t, "com.example.Custom", pv.Attribute)
	assert.Equal(t, format.EXIT_POLICY, format.ExitCode(err))
	assert.Zero(t, buf.Len())
}

func TestInvalidArchive(t *testing.T) {
	a := archive.New("", entry("a", nil, 0, false), entry("a", nil, 0, false))
	_, err := writer.NewPacker(nil).Pack(context.Background(), a, new(bytes.Buffer))
	assert.True(t, errors.Is(err, format.ErrInvalidArchive), "got %v", err)
}

func TestCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	buf := new(bytes.Buffer)
	_, err := writer.NewPacker(config.Default()).Pack(ctx, sample(), buf)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.Zero(t, buf.Len())
}

func TestSharedPoolIsSmaller(t *testing.T) {
	var entries []*archive.Entry
	for _, n := range []string{"A", "B", "C", "D", "E", "F"} {
		entries = append(entries, entry("p/"+n+".class", testclass.Rich("p/"+n), 0, false))
	}
	none := config.WithCompression(format.COMPRESSION_NONE)

	shared, err := config.New(none)
	require.NoError(t, err)
	perClass, err := config.New(none, config.WithEffort(1))
	require.NoError(t, err)
	raw, err := config.New(none, config.WithEffort(0))
	require.NoError(t, err)

	s1, _ := pack(t, shared, archive.New("", entries...))
	s2, _ := pack(t, perClass, archive.New("", entries...))
	s3, _ := pack(t, raw, archive.New("", entries...))
	assert.Less(t, len(s1), len(s2))
	assert.Less(t, len(s1), len(s3))
}

func TestReaderAndUnpackerAgree(t *testing.T) {
	cfg, err := config.New(config.WithSegmentLimit(1500), config.WithEffort(7))
	require.NoError(t, err)
	stream, stats := pack(t, cfg, sample())
	require.Greater(t, stats.Segments, 1)

	sequential, err := reader.ReadAll(bytes.NewReader(stream))
	require.NoError(t, err)
	parallel := unpack(t, stream)

	var a, b bytes.Buffer
	require.NoError(t, archive.WriteZip(&a, sequential))
	require.NoError(t, archive.WriteZip(&b, parallel))
	assert.Equal(t, a.Bytes(), b.Bytes())

	want := names(sample())
	got := names(parallel)
	sort.Strings(want)
	sort.Strings(got)
	assert.Equal(t, want, got)
}
