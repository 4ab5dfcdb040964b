package codec

import (
	"math"

	"github.com/pkg/errors"

	"github.com/indrora/pack200/pack200/attr"
	"github.com/indrora/pack200/pack200/band"
	"github.com/indrora/pack200/pack200/bytecode"
	"github.com/indrora/pack200/pack200/classfile"
	"github.com/indrora/pack200/pack200/format"
	"github.com/indrora/pack200/pack200/ioutil"
	"github.com/indrora/pack200/pack200/pool"
)

var ErrBadClassBands = errors.New("bad class bands")

func badf(msg string, args ...any) error {
	return errors.Wrapf(ErrBadClassBands, msg, args...)
}

type classDecoder struct {
	src   *band.Source
	local *pool.Local
	table *attr.Table
}

// DecodeClass reads the next class from src. Symbols are looked up in p and
// attribute layouts in table.
func DecodeClass(src *band.Source, p *pool.Pool, table *attr.Table) (*classfile.Class, error) {
	d := &classDecoder{src: src, table: table}
	refs, err := d.slots()
	if err != nil {
		return nil, err
	}
	if d.local, err = p.Resolve(refs); err != nil {
		return nil, err
	}

	c := &classfile.Class{Pool: d.local.Pool}
	h := src.Band(format.BAND_CLASS_HEADER)
	if c.Minor, err = u16(h); err != nil {
		return nil, err
	}
	if c.Major, err = u16(h); err != nil {
		return nil, err
	}
	if c.Access, err = u16(h); err != nil {
		return nil, err
	}

	r := src.Band(format.BAND_CLASS_REFS)
	if c.This, err = d.ref(r, classfile.TAG_CLASS); err != nil {
		return nil, errors.Wrap(err, "this_class")
	}
	if c.Super, err = d.nullableRef(r, classfile.TAG_CLASS); err != nil {
		return nil, errors.Wrap(err, "super_class")
	}
	n, err := d.count(r)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		v, err := d.ref(r, classfile.TAG_CLASS)
		if err != nil {
			return nil, errors.Wrap(err, "interface")
		}
		c.Interfaces = append(c.Interfaces, v)
	}

	if c.Fields, err = d.members(attr.CONTEXT_FIELD); err != nil {
		return nil, err
	}
	if c.Methods, err = d.members(attr.CONTEXT_METHOD); err != nil {
		return nil, err
	}
	if c.Attributes, err = d.attributes(attr.CONTEXT_CLASS); err != nil {
		return nil, err
	}
	return c, nil
}

func u16(r *ioutil.BandReader) (uint16, error) {
	v, err := r.Uvarint()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint16 {
		return 0, badf("value %d out of range", v)
	}
	return uint16(v), nil
}

// count reads a list length and checks it against what is left of r.
func (d *classDecoder) count(r *ioutil.BandReader) (int, error) {
	v, err := r.Uvarint()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint16 || v > uint64(r.Remaining()) {
		return 0, badf("count %d out of range", v)
	}
	return int(v), nil
}

func (d *classDecoder) slots() ([]pool.Ref, error) {
	r := d.src.Band(format.BAND_CLASS_CP)
	n, err := r.Uvarint()
	if err != nil {
		return nil, err
	}
	if n == 0 || n > math.MaxUint16 || n-1 > uint64(r.Remaining()) {
		return nil, badf("bad class pool size %d", n)
	}
	refs := make([]pool.Ref, n)
	for i := 1; i < len(refs); i++ {
		tag, err := r.Byte()
		if err != nil {
			return nil, err
		}
		if tag == classfile.TAG_NONE {
			continue
		}
		if !pool.Supported(tag) {
			return nil, badf("slot %d has tag %d", i, tag)
		}
		idx, err := r.Uvarint()
		if err != nil {
			return nil, err
		}
		if idx > math.MaxUint32 {
			return nil, badf("slot %d index %d out of range", i, idx)
		}
		refs[i] = pool.Ref{Tag: tag, Index: uint32(idx)}
		if tag == classfile.TAG_LONG || tag == classfile.TAG_DOUBLE {
			i++
		}
	}
	return refs, nil
}

func (d *classDecoder) slot(tag uint8, v uint64) (uint16, error) {
	if v > math.MaxUint32 {
		return 0, badf("%s index %d out of range", classfile.TagName(tag), v)
	}
	return d.local.Index(pool.Ref{Tag: tag, Index: uint32(v)})
}

func (d *classDecoder) ref(r *ioutil.BandReader, tag uint8) (uint16, error) {
	v, err := r.Uvarint()
	if err != nil {
		return 0, err
	}
	return d.slot(tag, v)
}

func (d *classDecoder) nullableRef(r *ioutil.BandReader, tag uint8) (uint16, error) {
	v, err := r.Uvarint()
	if err != nil || v == 0 {
		return 0, err
	}
	return d.slot(tag, v-1)
}

func (d *classDecoder) members(ctx attr.Context) ([]*classfile.Member, error) {
	r := d.src.Band(format.BAND_CLASS_MEMBERS)
	n, err := d.count(r)
	if err != nil {
		return nil, err
	}
	ms := make([]*classfile.Member, 0, n)
	for i := 0; i < n; i++ {
		m := &classfile.Member{}
		if m.Access, err = u16(r); err != nil {
			return nil, err
		}
		if m.Name, err = d.ref(r, classfile.TAG_UTF8); err != nil {
			return nil, err
		}
		if m.Desc, err = d.ref(r, classfile.TAG_UTF8); err != nil {
			return nil, err
		}
		if m.Attributes, err = d.attributes(ctx); err != nil {
			return nil, errors.Wrapf(err, "%s %d", ctx, i)
		}
		ms = append(ms, m)
	}
	return ms, nil
}

func (d *classDecoder) attributes(ctx attr.Context) ([]*classfile.Attribute, error) {
	h := d.src.Band(format.BAND_ATTR_HEADER)
	n, err := d.count(h)
	if err != nil {
		return nil, err
	}
	attrs := make([]*classfile.Attribute, 0, n)
	for i := 0; i < n; i++ {
		a := &classfile.Attribute{}
		if a.Name, err = d.ref(h, classfile.TAG_UTF8); err != nil {
			return nil, err
		}
		name, _ := d.local.Pool.Utf8(a.Name)
		enc, err := h.Uvarint()
		if err != nil {
			return nil, err
		}

		switch enc {
		case format.ATTR_ENCODING_RAW:
			a.Info, err = d.src.Band(format.BAND_ATTR_BYTES).Bytes()
		case format.ATTR_ENCODING_LAYOUT:
			l := d.table.Lookup(attr.Key{Context: ctx, Name: name})
			if l == nil {
				return nil, badf("no layout for %s-attribute %s", ctx, name)
			}
			a.Info, err = l.Decode(d.src, d.local)
		case format.ATTR_ENCODING_CODE:
			if ctx != attr.CONTEXT_METHOD || name != attr.CODE {
				return nil, badf("%s-attribute %s coded as Code", ctx, name)
			}
			a.Info, err = d.code()
		default:
			return nil, badf("unknown attribute encoding %d", enc)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "attribute %s", name)
		}
		attrs = append(attrs, a)
	}
	return attrs, nil
}

func (d *classDecoder) code() ([]byte, error) {
	h := d.src.Band(format.BAND_CODE_HEADER)
	code := &classfile.Code{}
	var err error
	if code.MaxStack, err = u16(h); err != nil {
		return nil, err
	}
	if code.MaxLocals, err = u16(h); err != nil {
		return nil, err
	}
	length, err := u16(h)
	if err != nil {
		return nil, err
	}

	hr := d.src.Band(format.BAND_CODE_HANDLERS)
	n, err := d.count(hr)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		var x classfile.Handler
		if x.StartPC, err = u16(hr); err != nil {
			return nil, err
		}
		if x.EndPC, err = u16(hr); err != nil {
			return nil, err
		}
		if x.HandlerPC, err = u16(hr); err != nil {
			return nil, err
		}
		if x.CatchType, err = d.nullableRef(hr, classfile.TAG_CLASS); err != nil {
			return nil, err
		}
		code.Handlers = append(code.Handlers, x)
	}

	resolve := func(tag uint8, ref uint32) (uint16, error) {
		return d.local.Index(pool.Ref{Tag: tag, Index: ref})
	}
	if code.Code, err = bytecode.Decode(d.src, int(length), resolve); err != nil {
		return nil, err
	}
	if code.Attributes, err = d.attributes(attr.CONTEXT_CODE); err != nil {
		return nil, err
	}
	return code.Bytes(), nil
}
