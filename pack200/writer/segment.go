package writer

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"

	"github.com/indrora/pack200/pack200/archive"
	"github.com/indrora/pack200/pack200/attr"
	"github.com/indrora/pack200/pack200/band"
	"github.com/indrora/pack200/pack200/classfile"
	"github.com/indrora/pack200/pack200/codec"
	"github.com/indrora/pack200/pack200/config"
	"github.com/indrora/pack200/pack200/format"
	"github.com/indrora/pack200/pack200/format/metadata"
	"github.com/indrora/pack200/pack200/pool"
)

// plan holds what every segment of one stream shares.
type plan struct {
	version format.Version
	flags   format.StreamFlags
	// Latest modification time in the archive, unix seconds
	latest  int64
	// Bytes the unpacker will produce, after the attribute policy
	size    uint64
	archive *archive.Archive
}

type packedSegment struct {
	preamble format.SegmentPreamble
	header   []byte
	body     []byte

	classes    int
	rawClasses int
}

func (s *packedSegment) Size() int {
	return format.PREAMBLE_SIZE + len(s.header) + len(s.body)
}

// packSegment transcodes one segment. Classes that do not come back
// bit-for-bit from the class bands are stored verbatim instead.
func (p *Packer) packSegment(idx int, items []*item, pl *plan) (*packedSegment, error) {
	table := attr.NewTable()
	transcode := make([]bool, len(items))
	if p.cfg.Effort > 0 {
		for i, it := range items {
			if it.class == nil {
				continue
			}
			if err := p.engine.Collect(table, it.class); err != nil {
				p.logger.Debug("storing class verbatim", "entry", it.entry.Name, "error", err)
				continue
			}
			transcode[i] = true
		}
		for i, it := range items {
			if transcode[i] && !p.verify(it, table) {
				transcode[i] = false
			}
		}
	}

	out := &packedSegment{}
	body := band.NewSet()
	base := p.writeFiles(body, items, transcode, pl)
	if err := p.writeClasses(body, items, transcode, table); err != nil {
		return nil, err
	}

	var input int64
	for i, it := range items {
		input += int64(len(it.entry.Data))
		switch {
		case transcode[i]:
			out.classes++
		case it.entry.IsClass():
			out.rawClasses++
		}
	}

	h := &format.SegmentHeader{
		Major:   pl.version.Major,
		Minor:   pl.version.Minor,
		Flags:   pl.flags,
		Entries: uint32(len(items)),
		Classes: uint32(out.classes),
		ModTime: base,
		Index:   uint32(idx),
		Layouts: table.Defs(),
	}
	if idx == 0 {
		h.Archive = archiveMetadata(pl)
	}
	raw := body.Marshal()
	h.BodySize = uint64(len(raw))
	stored, ctype, err := compressBody(raw, p.cfg.Compression, p.cfg.Effort)
	if err != nil {
		return nil, err
	}
	h.Compression = ctype
	if out.header, err = format.MarshalSegmentHeader(h); err != nil {
		return nil, err
	}
	out.body = stored
	out.preamble = format.NewSegmentPreamble(pl.flags, uint32(len(out.header)), uint64(len(stored)))
	out.preamble.Checksum = segmentChecksum(out.header, out.body)

	p.logger.Info(fmt.Sprintf("Transmitted %d files of %d input bytes in a segment of %d bytes",
		len(items), input, out.Size()), "segment", idx, "classes", out.classes)
	return out, nil
}

// verify carries one class through the class bands on its own and checks
// that it decodes to the same bytes.
func (p *Packer) verify(it *item, table *attr.Table) bool {
	scratch := pool.New()
	refs, err := scratch.AddClass(it.class)
	if err == nil {
		set := band.NewSet()
		if err = codec.EncodeClass(it.class, refs, table, set); err == nil {
			var got *classfile.Class
			if got, err = codec.DecodeClass(set.Source(), scratch, table); err == nil {
				if bytes.Equal(got.Bytes(), it.data) {
					return true
				}
				err = errors.New("class does not survive transcoding")
			}
		}
	}
	p.logger.Debug("storing class verbatim", "entry", it.entry.Name, "error", err)
	return false
}

// writeClasses writes the symbol pool and the class bands. With one pool
// per class, each pool directly precedes its class in the cp bands.
func (p *Packer) writeClasses(body *band.Set, items []*item, transcode []bool, table *attr.Table) error {
	perClass := p.cfg.Effort == 1
	var (
		shared  = pool.New()
		classes []*classfile.Class
		refs    [][]pool.Ref
	)
	for i, it := range items {
		if !transcode[i] {
			continue
		}
		target := shared
		if perClass {
			target = pool.New()
		}
		r, err := target.AddClass(it.class)
		if err != nil {
			return errors.Wrap(err, it.entry.Name)
		}
		if perClass {
			target.Write(body)
		}
		classes = append(classes, it.class)
		refs = append(refs, r)
		if perClass {
			if err := appendClass(body, it.class, r, table); err != nil {
				return errors.Wrap(err, it.entry.Name)
			}
		}
	}
	if perClass || len(classes) == 0 {
		return nil
	}
	shared.Write(body)
	for i, c := range classes {
		if err := appendClass(body, c, refs[i], table); err != nil {
			return errors.Wrap(err, c.Name())
		}
	}
	return nil
}

func appendClass(body *band.Set, c *classfile.Class, refs []pool.Ref, table *attr.Table) error {
	set := band.NewSet()
	if err := codec.EncodeClass(c, refs, table, set); err != nil {
		return err
	}
	body.Append(set)
	return nil
}

func archiveMetadata(pl *plan) *metadata.ArchiveMetadata {
	m := &metadata.ArchiveMetadata{
		Entries:       metadata.MakePointer(uint64(len(pl.archive.Entries))),
		InputSize:     metadata.MakePointer(pl.size),
		LatestModTime: metadata.MakePointer(pl.latest),
	}
	if pl.archive.Comment != "" {
		m.Comment = metadata.MakePointer(pl.archive.Comment)
	}
	return m
}

// modTimeBase is the time file_modtime deltas count from, or the time of
// every entry when the stream has FIXED_MODTIME.
func (p *Packer) modTimeBase(items []*item, pl *plan) int64 {
	switch p.cfg.ModTime.Mode {
	case config.MODTIME_LATEST:
		return pl.latest
	case config.MODTIME_FIXED:
		return p.cfg.ModTime.Time.Unix()
	}
	var latest int64
	for i, it := range items {
		if t := it.entry.ModTime.Unix(); i == 0 || t > latest {
			latest = t
		}
	}
	return latest
}
