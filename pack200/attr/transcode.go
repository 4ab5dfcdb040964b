package attr

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/indrora/pack200/pack200/band"
	"github.com/indrora/pack200/pack200/classfile"
	"github.com/indrora/pack200/pack200/format"
	"github.com/indrora/pack200/pack200/ioutil"
	"github.com/indrora/pack200/pack200/pool"
)

// ErrLayoutMismatch means the attribute contents do not follow the layout.
var ErrLayoutMismatch = errors.New("attribute does not match layout")

const maxCallDepth = 64

type layoutEncoder struct {
	l    *Layout
	info []byte
	pos  int
	refs []pool.Ref

	ints *ioutil.BandWriter
	out  *ioutil.BandWriter
}

// Encode transcodes info into the attribute bands of set. Nothing is written
// unless the whole attribute matches the layout.
func (l *Layout) Encode(info []byte, refs []pool.Ref, set *band.Set) error {
	e := &layoutEncoder{
		l:    l,
		info: info,
		refs: refs,
		ints: ioutil.NewBandWriter(),
		out:  ioutil.NewBandWriter(),
	}
	if err := e.body(l.callables[0], 0); err != nil {
		return err
	}
	if e.pos != len(info) {
		return errors.Wrapf(ErrLayoutMismatch, "%d trailing bytes", len(info)-e.pos)
	}
	set.Band(format.BAND_ATTR_INTS).Write(e.ints.Bytes())
	set.Band(format.BAND_ATTR_REFS).Write(e.out.Bytes())
	return nil
}

func (e *layoutEncoder) read(w integral) (uint32, error) {
	if len(e.info)-e.pos < w.size {
		return 0, errors.Wrap(ErrLayoutMismatch, "attribute too short")
	}
	b := e.info[e.pos : e.pos+w.size]
	e.pos += w.size
	switch w.size {
	case 1:
		return uint32(b[0]), nil
	case 2:
		return uint32(binary.BigEndian.Uint16(b)), nil
	case 4:
		return binary.BigEndian.Uint32(b), nil
	}
	return 0, nil
}

// signedValue interprets v according to the width of w.
func signedValue(w integral, v uint32) int64 {
	if !w.signed {
		return int64(v)
	}
	switch w.size {
	case 1:
		return int64(int8(v))
	case 2:
		return int64(int16(v))
	}
	return int64(int32(v))
}

func (e *layoutEncoder) integral(w integral) (int64, error) {
	if w.size == 0 {
		return 0, nil
	}
	v, err := e.read(w)
	if err != nil {
		return 0, err
	}
	sv := signedValue(w, v)
	if w.signed {
		e.ints.PutVarint(sv)
	} else {
		e.ints.PutUvarint(uint64(v))
	}
	return sv, nil
}

func (e *layoutEncoder) body(body []element, depth int) error {
	if depth > maxCallDepth {
		return errors.Wrap(ErrLayoutMismatch, "calls nested too deep")
	}
	for i := range body {
		el := &body[i]
		switch el.kind {
		case elemInt:
			if _, err := e.integral(el.width); err != nil {
				return err
			}
		case elemRepl:
			n, err := e.integral(el.width)
			if err != nil {
				return err
			}
			if len(el.body) > 0 && n > int64(len(e.info)-e.pos) {
				return errors.Wrapf(ErrLayoutMismatch, "count %d exceeds remaining bytes", n)
			}
			for j := int64(0); j < n; j++ {
				if err := e.body(el.body, depth); err != nil {
					return err
				}
			}
		case elemUnion:
			tag, err := e.integral(el.width)
			if err != nil {
				return err
			}
			if err := e.body(el.match(tag), depth); err != nil {
				return err
			}
		case elemCall:
			if err := e.body(e.l.callables[el.call], depth+1); err != nil {
				return err
			}
		case elemRef:
			if err := e.ref(el); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *layoutEncoder) ref(el *element) error {
	idx, err := e.read(el.width)
	if err != nil {
		return err
	}
	multi := len(el.tags) > 1
	if idx == 0 && el.nullable {
		if multi {
			e.out.PutByte(classfile.TAG_NONE)
		} else {
			e.out.PutUvarint(0)
		}
		return nil
	}
	if int(idx) >= len(e.refs) || e.refs[idx].Tag == classfile.TAG_NONE {
		return errors.Wrapf(ErrLayoutMismatch, "reference to empty slot %d", idx)
	}
	r := e.refs[idx]
	if !hasTag(el.tags, r.Tag) {
		return errors.Wrapf(ErrLayoutMismatch, "slot %d is a %s", idx, classfile.TagName(r.Tag))
	}
	v := uint64(r.Index)
	if multi {
		e.out.PutByte(r.Tag)
	} else if el.nullable {
		v++
	}
	e.out.PutUvarint(v)
	return nil
}

func hasTag(tags []uint8, tag uint8) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

type layoutDecoder struct {
	l     *Layout
	out   []byte
	local *pool.Local

	ints *ioutil.BandReader
	refs *ioutil.BandReader
}

// Decode rebuilds the contents of an attribute from the attribute bands.
func (l *Layout) Decode(src *band.Source, local *pool.Local) ([]byte, error) {
	d := &layoutDecoder{
		l:     l,
		local: local,
		ints:  src.Band(format.BAND_ATTR_INTS),
		refs:  src.Band(format.BAND_ATTR_REFS),
	}
	if err := d.body(l.callables[0], 0); err != nil {
		return nil, err
	}
	return d.out, nil
}

func (d *layoutDecoder) write(w integral, v uint32) {
	switch w.size {
	case 1:
		d.out = append(d.out, byte(v))
	case 2:
		d.out = binary.BigEndian.AppendUint16(d.out, uint16(v))
	case 4:
		d.out = binary.BigEndian.AppendUint32(d.out, v)
	}
}

func fits(w integral, v int64) bool {
	bits := uint(8 * w.size)
	if w.size == 0 {
		return v == 0
	}
	if w.signed {
		return v >= -(1<<(bits-1)) && v < 1<<(bits-1)
	}
	return v >= 0 && v < 1<<bits
}

func (d *layoutDecoder) integral(w integral) (int64, error) {
	if w.size == 0 {
		return 0, nil
	}
	var v int64
	if w.signed {
		sv, err := d.ints.Varint()
		if err != nil {
			return 0, err
		}
		v = sv
	} else {
		uv, err := d.ints.Uvarint()
		if err != nil {
			return 0, err
		}
		if uv >= 1<<32 {
			return 0, errors.Wrapf(ErrLayoutMismatch, "value %d out of range", uv)
		}
		v = int64(uv)
	}
	if !fits(w, v) {
		return 0, errors.Wrapf(ErrLayoutMismatch, "value %d does not fit %d bytes", v, w.size)
	}
	d.write(w, uint32(v))
	return v, nil
}

func (d *layoutDecoder) body(body []element, depth int) error {
	if depth > maxCallDepth {
		return errors.Wrap(ErrLayoutMismatch, "calls nested too deep")
	}
	for i := range body {
		el := &body[i]
		switch el.kind {
		case elemInt:
			if _, err := d.integral(el.width); err != nil {
				return err
			}
		case elemRepl:
			n, err := d.integral(el.width)
			if err != nil {
				return err
			}
			if len(el.body) > 0 && n > int64(d.ints.Remaining()+d.refs.Remaining()) {
				return errors.Wrapf(ErrLayoutMismatch, "count %d exceeds remaining bands", n)
			}
			for j := int64(0); j < n; j++ {
				if err := d.body(el.body, depth); err != nil {
					return err
				}
			}
		case elemUnion:
			tag, err := d.integral(el.width)
			if err != nil {
				return err
			}
			if err := d.body(el.match(tag), depth); err != nil {
				return err
			}
		case elemCall:
			if err := d.body(d.l.callables[el.call], depth+1); err != nil {
				return err
			}
		case elemRef:
			if err := d.ref(el); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *layoutDecoder) ref(el *element) error {
	tag := el.tags[0]
	if len(el.tags) > 1 {
		t, err := d.refs.Byte()
		if err != nil {
			return err
		}
		if t == classfile.TAG_NONE {
			if !el.nullable {
				return errors.Wrap(ErrLayoutMismatch, "null reference")
			}
			d.write(el.width, 0)
			return nil
		}
		if !hasTag(el.tags, t) {
			return errors.Wrapf(ErrLayoutMismatch, "unexpected %s reference", classfile.TagName(t))
		}
		tag = t
	}
	v, err := d.refs.Uvarint()
	if err != nil {
		return err
	}
	if el.nullable && len(el.tags) == 1 {
		if v == 0 {
			d.write(el.width, 0)
			return nil
		}
		v--
	}
	if v > 1<<32-1 {
		return errors.Wrapf(ErrLayoutMismatch, "reference %d out of range", v)
	}
	idx, err := d.local.Index(pool.Ref{Tag: tag, Index: uint32(v)})
	if err != nil {
		return err
	}
	if !fits(el.width, int64(idx)) {
		return errors.Wrapf(ErrLayoutMismatch, "slot %d does not fit %d bytes", idx, el.width.size)
	}
	d.write(el.width, uint32(idx))
	return nil
}
