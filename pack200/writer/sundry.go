package writer

import (
	"github.com/indrora/pack200/pack200/archive"
	"github.com/indrora/pack200/pack200/band"
	"github.com/indrora/pack200/pack200/format"
)

// writeFiles fills the file bands and returns the modification time base
// recorded in the segment header.
func (p *Packer) writeFiles(body *band.Set, items []*item, transcode []bool, pl *plan) int64 {
	var (
		options = body.Band(format.BAND_FILE_OPTIONS)
		names   = body.Band(format.BAND_FILE_NAME)
		sizes   = body.Band(format.BAND_FILE_SIZE)
		times   = body.Band(format.BAND_FILE_MODTIME)
		bits    = body.Band(format.BAND_FILE_BITS)

		base      = p.modTimeBase(items, pl)
		fixedTime = pl.flags.Has(format.STREAM_FLAG_FIXED_MODTIME)
		keepHint  = pl.flags.DeflateHint() == format.DEFLATE_KEEP
		prev      string
	)
	for i, it := range items {
		opts := format.FILE_OPTION_NONE
		if keepHint && it.entry.Deflated {
			opts |= format.FILE_OPTION_DEFLATE
		}
		switch {
		case transcode[i]:
			opts |= format.FILE_OPTION_CLASS
			if it.entry.Name == it.class.Name()+archive.CLASS_SUFFIX {
				opts |= format.FILE_OPTION_NAME_IMPLIED
			}
		case it.entry.IsClass():
			opts |= format.FILE_OPTION_RAW_CLASS
		}
		options.PutUvarint(opts)

		if opts&format.FILE_OPTION_NAME_IMPLIED == 0 {
			n := commonPrefix(prev, it.entry.Name)
			names.PutUvarint(uint64(n))
			names.PutBytes([]byte(it.entry.Name[n:]))
			prev = it.entry.Name
		}
		sizes.PutUvarint(uint64(len(it.data)))
		if !fixedTime {
			times.PutVarint(it.entry.ModTime.Unix() - base)
		}
		if !transcode[i] {
			bits.Write(it.data)
		}
	}
	return base
}

func commonPrefix(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
