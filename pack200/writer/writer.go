// Package writer packs an archive into a packed stream.
package writer

import (
	"context"
	"io"
	"log/slog"
	"slices"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/indrora/pack200/pack200/archive"
	"github.com/indrora/pack200/pack200/attr"
	"github.com/indrora/pack200/pack200/classfile"
	"github.com/indrora/pack200/pack200/config"
	"github.com/indrora/pack200/pack200/format"
	"github.com/indrora/pack200/pack200/segment"
)

// Stats describes one packed stream.
type Stats struct {
	Version  format.Version
	Segments int
	Entries  int
	// Classes carried through the class bands, and classes stored verbatim.
	Classes    int
	RawClasses int
	// Attribute instances by what the policy did with them.
	Stripped, Passed, Encoded int

	InputBytes  int64
	OutputBytes int64
	Digest      digest.Digest
}

type Packer struct {
	cfg    *config.Config
	engine *attr.Engine
	logger *slog.Logger
}

func NewPacker(cfg *config.Config) *Packer {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Packer{
		cfg:    cfg,
		engine: cfg.Engine(),
		logger: cfg.Logger,
	}
}

// item is an entry on its way into a segment.
type item struct {
	entry *archive.Entry
	// Filtered class, nil for resources and classes stored verbatim.
	class *classfile.Class
	// Bytes the unpacker reproduces: the filtered class or the entry data.
	data   []byte
	report *attr.Report
}

// Pack writes a as a packed stream to w. Nothing is written unless packing
// succeeds.
func (p *Packer) Pack(ctx context.Context, a *archive.Archive, w io.Writer) (*Stats, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	entries := orderEntries(a.Entries, p.cfg.KeepFileOrder)

	items, err := p.prepare(ctx, entries)
	if err != nil {
		return nil, err
	}
	stats := &Stats{Entries: len(items), InputBytes: a.Size()}
	stats.Version = format.VERSION_RESOURCES
	for _, it := range items {
		if it.report != nil {
			stats.Stripped += it.report.Count(attr.STATE_STRIPPED)
			stats.Passed += it.report.Count(attr.STATE_PASSED)
			stats.Encoded += it.report.Count(attr.STATE_ENCODED)
		}
		if it.class != nil {
			if v := classVersion(it.class); stats.Version.Less(v) {
				stats.Version = v
			}
		}
	}

	groups, err := segment.Split(entries, p.cfg.SegmentLimit, segment.Estimate)
	if err != nil {
		return nil, err
	}
	var size uint64
	for _, it := range items {
		size += uint64(len(it.data))
	}
	plan := &plan{
		version: stats.Version,
		size:    size,
		flags:   p.flags(),
		latest:  a.LatestModTime().Unix(),
		archive: a,
	}

	out := make([]*packedSegment, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.WorkerCount())
	offset := 0
	for i, group := range groups {
		segItems := items[offset : offset+len(group)]
		offset += len(group)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := p.packSegment(i, segItems, plan)
			if err != nil {
				return errors.Wrapf(err, "segment %d", i)
			}
			out[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, s := range out {
		stats.Classes += s.classes
		stats.RawClasses += s.rawClasses
	}
	stats.Segments = len(out)
	header := format.NewStreamHeader(stats.Version, plan.flags, p.cfg.Compression, uint8(p.cfg.Effort), uint32(len(out)))
	n, d, err := writeStream(w, &header, out)
	if err != nil {
		return nil, err
	}
	stats.OutputBytes, stats.Digest = n, d
	return stats, nil
}

// prepare parses and filters every class in parallel.
func (p *Packer) prepare(ctx context.Context, entries []*archive.Entry) ([]*item, error) {
	items := make([]*item, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.WorkerCount())
	for i, e := range entries {
		it := &item{entry: e, data: e.Data}
		items[i] = it
		if !e.IsClass() {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return p.prepareClass(it)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

func (p *Packer) prepareClass(it *item) error {
	c, err := classfile.Parse(it.entry.Data)
	if err != nil {
		return p.classFormatError(it, err)
	}
	filtered, report, err := p.engine.Filter(c)
	if errors.Is(err, classfile.ErrMalformed) || errors.Is(err, classfile.ErrUnsupported) {
		// Code attributes are only parsed by the filter.
		return p.classFormatError(it, err)
	}
	it.report = report
	if err != nil {
		return err
	}
	it.class = filtered
	it.data = filtered.Bytes()
	return nil
}

// classFormatError applies the class-format-error policy to a class that
// cannot be read. Under PASS the class is stored as it is.
func (p *Packer) classFormatError(it *item, err error) error {
	if p.cfg.ClassFormatError == attr.ACTION_ERROR {
		if errors.Is(err, classfile.ErrUnsupported) {
			major, minor := classfileVersion(it.entry.Data)
			return &format.UnsupportedVersionError{Entry: it.entry.Name, Major: major, Minor: minor, Err: err}
		}
		return &format.MalformedArchiveError{Entry: it.entry.Name, Err: err}
	}
	p.logger.Warn("passing class through unchanged", "entry", it.entry.Name, "error", err)
	return nil
}

// flags are the stream flags the configuration asks for.
func (p *Packer) flags() format.StreamFlags {
	f := p.cfg.DeflateHint.Flags()
	if p.cfg.KeepFileOrder {
		f |= format.STREAM_FLAG_KEEP_FILE_ORDER
	}
	if p.cfg.ModTime.Mode != config.MODTIME_KEEP {
		f |= format.STREAM_FLAG_FIXED_MODTIME
	}
	if p.cfg.Effort == 1 {
		f |= format.STREAM_FLAG_POOL_PER_CLASS
	}
	return f
}

// orderEntries returns the entries in stream order. Without keep-file-order,
// classes come first, then resources, each sorted by name.
func orderEntries(entries []*archive.Entry, keep bool) []*archive.Entry {
	out := slices.Clone(entries)
	if keep {
		return out
	}
	slices.SortStableFunc(out, func(a, b *archive.Entry) int {
		if a.IsClass() != b.IsClass() {
			if a.IsClass() {
				return -1
			}
			return 1
		}
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out
}
