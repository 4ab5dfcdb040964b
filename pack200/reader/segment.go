package reader

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/indrora/pack200/pack200/archive"
	"github.com/indrora/pack200/pack200/attr"
	"github.com/indrora/pack200/pack200/band"
	"github.com/indrora/pack200/pack200/codec"
	"github.com/indrora/pack200/pack200/format"
	"github.com/indrora/pack200/pack200/ioutil"
	"github.com/indrora/pack200/pack200/pool"
)

// Largest decompressed body a reader accepts.
const MAX_BODY_SIZE = 1 << 31

// Segment is one verified segment of a stream.
type Segment struct {
	Index    int
	Preamble *format.SegmentPreamble
	Header   *format.SegmentHeader
	stored   []byte
}

// file is one entry as described by the file bands.
type file struct {
	options uint64
	name    string
	size    uint64
	modTime int64
	data    []byte
}

func (s *Segment) errorf(err error, reason string, args ...any) error {
	return &format.StreamFormatError{Segment: s.Index, Reason: fmt.Sprintf(reason, args...), Err: err}
}

// Entries decodes the files of the segment, in stream order. Deflated
// follows the stream's deflate hint, or the per-entry option under KEEP.
func (s *Segment) Entries() ([]*archive.Entry, error) {
	if s.Header.BodySize > MAX_BODY_SIZE {
		return nil, s.errorf(nil, "body of %d bytes", s.Header.BodySize)
	}
	data, err := s.body()
	if err != nil {
		return nil, err
	}
	src, err := band.Unmarshal(data)
	if err != nil {
		return nil, s.errorf(err, "bad band set")
	}
	files, err := s.readFiles(src)
	if err != nil {
		return nil, err
	}
	if err := s.readClasses(src, files); err != nil {
		return nil, err
	}
	if id, ok := src.Drained(); !ok {
		return nil, s.errorf(nil, "unread values in band %s", id)
	}

	hint := s.Header.Flags.DeflateHint()
	entries := make([]*archive.Entry, len(files))
	for i, f := range files {
		modTime := s.Header.ModTime
		if !s.Header.Flags.Has(format.STREAM_FLAG_FIXED_MODTIME) {
			modTime += f.modTime
		}
		e := archive.NewEntry(f.name, f.data, time.Unix(modTime, 0))
		switch hint {
		case format.DEFLATE_TRUE:
			e.Deflated = true
		case format.DEFLATE_KEEP:
			e.Deflated = f.options&format.FILE_OPTION_DEFLATE != 0
		}
		entries[i] = e
	}
	return entries, nil
}

func (s *Segment) readFiles(src *band.Source) ([]*file, error) {
	var (
		options = src.Band(format.BAND_FILE_OPTIONS)
		names   = src.Band(format.BAND_FILE_NAME)
		sizes   = src.Band(format.BAND_FILE_SIZE)
		times   = src.Band(format.BAND_FILE_MODTIME)
		bits    = src.Band(format.BAND_FILE_BITS)

		fixedTime = s.Header.Flags.Has(format.STREAM_FLAG_FIXED_MODTIME)
		prev      string
		classes   uint32
	)
	if uint64(s.Header.Entries) > uint64(options.Remaining()) {
		return nil, s.errorf(nil, "%d entries in %d option bytes", s.Header.Entries, options.Remaining())
	}
	files := make([]*file, s.Header.Entries)
	for i := range files {
		f := &file{}
		var err error
		if f.options, err = options.Uvarint(); err != nil {
			return nil, s.errorf(err, "file %d options", i)
		}
		if !format.ValidFileOptions(f.options) {
			return nil, s.errorf(nil, "file %d has options %#x", i, f.options)
		}
		if f.options&format.FILE_OPTION_CLASS != 0 {
			classes++
		}
		if f.options&format.FILE_OPTION_NAME_IMPLIED == 0 {
			if f.name, err = prefixCoded(names, prev); err != nil {
				return nil, s.errorf(err, "file %d name", i)
			}
			prev = f.name
		}
		if f.size, err = sizes.Uvarint(); err != nil {
			return nil, s.errorf(err, "file %d size", i)
		}
		if !fixedTime {
			if f.modTime, err = times.Varint(); err != nil {
				return nil, s.errorf(err, "file %d modification time", i)
			}
		}
		if f.options&format.FILE_OPTION_CLASS == 0 {
			if f.size > uint64(bits.Remaining()) {
				return nil, s.errorf(nil, "file %d is %d bytes, %d left", i, f.size, bits.Remaining())
			}
			if f.size > 0 {
				raw, _ := bits.Raw(int(f.size))
				f.data = append([]byte(nil), raw...)
			}
		}
		files[i] = f
	}
	if classes != s.Header.Classes {
		return nil, s.errorf(nil, "%d class files, header says %d", classes, s.Header.Classes)
	}
	return files, nil
}

func prefixCoded(r *ioutil.BandReader, prev string) (string, error) {
	n, err := r.Uvarint()
	if err != nil {
		return "", err
	}
	suffix, err := r.Bytes()
	if err != nil {
		return "", err
	}
	if n > uint64(len(prev)) {
		return "", errors.Errorf("prefix %d longer than %q", n, prev)
	}
	return prev[:n] + string(suffix), nil
}

// readClasses decodes the class bands into the files marked as classes.
func (s *Segment) readClasses(src *band.Source, files []*file) error {
	if s.Header.Classes == 0 {
		return nil
	}
	table, err := attr.TableFromDefs(s.Header.Layouts)
	if err != nil {
		return s.errorf(err, "bad layout table")
	}
	perClass := s.Header.Flags.Has(format.STREAM_FLAG_POOL_PER_CLASS)
	var p *pool.Pool
	if !perClass {
		if p, err = pool.Read(src); err != nil {
			return s.errorf(err, "bad symbol pool")
		}
	}
	for i, f := range files {
		if f.options&format.FILE_OPTION_CLASS == 0 {
			continue
		}
		if perClass {
			if p, err = pool.Read(src); err != nil {
				return s.errorf(err, "bad symbol pool of file %d", i)
			}
		}
		c, err := codec.DecodeClass(src, p, table)
		if err != nil {
			return s.errorf(err, "file %d", i)
		}
		f.data = c.Bytes()
		if uint64(len(f.data)) != f.size {
			return s.errorf(nil, "file %d decoded to %d bytes, expected %d", i, len(f.data), f.size)
		}
		if f.options&format.FILE_OPTION_NAME_IMPLIED != 0 {
			f.name = c.Name() + archive.CLASS_SUFFIX
		}
	}
	return nil
}
