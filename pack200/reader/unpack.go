package reader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/indrora/pack200/pack200/archive"
	"github.com/indrora/pack200/pack200/format"
	"github.com/indrora/pack200/pack200/format/metadata"
)

// Unpacker turns a packed stream back into an archive, decoding segments
// in parallel.
type Unpacker struct {
	logger  *slog.Logger
	workers int
	hint    format.DeflateHint
}

// UnpackOption configures an Unpacker.
type UnpackOption func(*Unpacker)

// WithLogger sets the logger. If not set, logging is disabled.
func WithLogger(logger *slog.Logger) UnpackOption {
	return func(u *Unpacker) {
		u.logger = logger
	}
}

// WithWorkers caps the number of segments decoded at once. Zero means one
// per CPU.
func WithWorkers(n int) UnpackOption {
	return func(u *Unpacker) {
		u.workers = n
	}
}

// WithDeflateHint overrides the compression hint of every entry. KEEP uses
// what the stream recorded.
func WithDeflateHint(h format.DeflateHint) UnpackOption {
	return func(u *Unpacker) {
		u.hint = h
	}
}

func NewUnpacker(opts ...UnpackOption) *Unpacker {
	u := &Unpacker{hint: format.DEFLATE_KEEP}
	for _, opt := range opts {
		opt(u)
	}
	if u.logger == nil {
		u.logger = slog.New(slog.DiscardHandler)
	}
	if u.workers <= 0 {
		u.workers = runtime.GOMAXPROCS(0)
	}
	return u
}

// Unpack reads a whole packed stream. Segments are read in order and
// decoded concurrently; entries keep stream order.
func (u *Unpacker) Unpack(ctx context.Context, r io.Reader) (*archive.Archive, error) {
	segments, err := NewReader(r).Segments()
	if err != nil {
		return nil, err
	}
	parts := make([][]*archive.Entry, len(segments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.workers)
	for i, s := range segments {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entries, err := s.Entries()
			if err != nil {
				return err
			}
			u.logger.Debug("unpacked segment", "segment", s.Index, "files", len(entries))
			parts[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return u.assemble(segments, parts)
}

// ReadAll decodes a packed stream one segment at a time.
func ReadAll(r io.Reader) (*archive.Archive, error) {
	rd := NewReader(r)
	var (
		segments []*Segment
		parts    [][]*archive.Entry
	)
	for {
		s, err := rd.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entries, err := s.Entries()
		if err != nil {
			return nil, err
		}
		segments = append(segments, s)
		parts = append(parts, entries)
	}
	return NewUnpacker().assemble(segments, parts)
}

func (u *Unpacker) assemble(segments []*Segment, parts [][]*archive.Entry) (*archive.Archive, error) {
	a := &archive.Archive{}
	var meta *metadata.ArchiveMetadata
	if len(segments) > 0 {
		meta = segments[0].Header.Archive
		a.Comment = meta.GetComment()
	}
	for _, p := range parts {
		for _, e := range p {
			switch u.hint {
			case format.DEFLATE_TRUE:
				e.Deflated = true
			case format.DEFLATE_FALSE:
				e.Deflated = false
			}
			a.Entries = append(a.Entries, e)
		}
	}
	if meta != nil {
		if meta.Entries != nil && *meta.Entries != uint64(len(a.Entries)) {
			return nil, &format.StreamFormatError{Segment: -1, Reason: fmt.Sprintf("%d entries, archive says %d", len(a.Entries), *meta.Entries)}
		}
		if meta.InputSize != nil && *meta.InputSize != uint64(a.Size()) {
			return nil, &format.StreamFormatError{Segment: -1, Reason: fmt.Sprintf("%d bytes of entries, archive says %d", a.Size(), *meta.InputSize)}
		}
	}
	if err := a.Validate(); err != nil {
		return nil, &format.StreamFormatError{Segment: -1, Reason: "bad entry list: " + err.Error()}
	}
	return a, nil
}
