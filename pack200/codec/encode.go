// Package codec carries whole classes through the class, attribute and code
// bands of a segment.
//
// A class is written as its pool slot list (tag and symbol of every slot),
// a header, its own references and members, then its attributes. Every
// attribute is stored raw, through a layout, or, for Code, structurally with
// its bytecode in the bc_* bands.
package codec

import (
	"math"

	"github.com/pkg/errors"

	"github.com/indrora/pack200/pack200/attr"
	"github.com/indrora/pack200/pack200/band"
	"github.com/indrora/pack200/pack200/bytecode"
	"github.com/indrora/pack200/pack200/classfile"
	"github.com/indrora/pack200/pack200/format"
	"github.com/indrora/pack200/pack200/pool"
)

// ErrUnencodable means a class cannot go through the class bands and has
// to be stored verbatim.
var ErrUnencodable = bytecode.ErrUnencodable

type classEncoder struct {
	class *classfile.Class
	refs  []pool.Ref
	table *attr.Table
	set   *band.Set
}

// EncodeClass writes c into set. refs holds the symbol of every pool slot of
// c, as returned by pool.AddClass, and table the layouts of the segment.
// On error set may hold a partial class and must be discarded.
func EncodeClass(c *classfile.Class, refs []pool.Ref, table *attr.Table, set *band.Set) error {
	if len(refs) != len(c.Pool) {
		return errors.Errorf("%d refs for a pool of %d slots", len(refs), len(c.Pool))
	}
	e := &classEncoder{class: c, refs: refs, table: table, set: set}
	e.slots()

	h := set.Band(format.BAND_CLASS_HEADER)
	h.PutUvarint(uint64(c.Minor))
	h.PutUvarint(uint64(c.Major))
	h.PutUvarint(uint64(c.Access))

	r := set.Band(format.BAND_CLASS_REFS)
	this, err := e.ref(c.This, classfile.TAG_CLASS)
	if err != nil {
		return errors.Wrap(err, "this_class")
	}
	r.PutUvarint(this)
	if c.Super == 0 {
		r.PutUvarint(0)
	} else {
		super, err := e.ref(c.Super, classfile.TAG_CLASS)
		if err != nil {
			return errors.Wrap(err, "super_class")
		}
		r.PutUvarint(super + 1)
	}
	r.PutUvarint(uint64(len(c.Interfaces)))
	for _, i := range c.Interfaces {
		v, err := e.ref(i, classfile.TAG_CLASS)
		if err != nil {
			return errors.Wrap(err, "interface")
		}
		r.PutUvarint(v)
	}

	if err := e.members(attr.CONTEXT_FIELD, c.Fields); err != nil {
		return err
	}
	if err := e.members(attr.CONTEXT_METHOD, c.Methods); err != nil {
		return err
	}
	return e.attributes(attr.CONTEXT_CLASS, c.Attributes)
}

// slots writes the pool slot list. The slot after a Long or Double is implied.
func (e *classEncoder) slots() {
	w := e.set.Band(format.BAND_CLASS_CP)
	w.PutUvarint(uint64(len(e.refs)))
	for i := 1; i < len(e.refs); i++ {
		r := e.refs[i]
		w.PutByte(r.Tag)
		if r.Tag == classfile.TAG_NONE {
			continue
		}
		w.PutUvarint(uint64(r.Index))
		if e.class.Pool[i].Wide() {
			i++
		}
	}
}

func (e *classEncoder) ref(index uint16, tag uint8) (uint64, error) {
	if int(index) >= len(e.refs) || e.refs[index].Tag != tag {
		return 0, errors.Wrapf(ErrUnencodable, "slot %d is not a %s", index, classfile.TagName(tag))
	}
	return uint64(e.refs[index].Index), nil
}

func (e *classEncoder) members(ctx attr.Context, ms []*classfile.Member) error {
	w := e.set.Band(format.BAND_CLASS_MEMBERS)
	w.PutUvarint(uint64(len(ms)))
	for _, m := range ms {
		name, err := e.ref(m.Name, classfile.TAG_UTF8)
		if err != nil {
			return err
		}
		desc, err := e.ref(m.Desc, classfile.TAG_UTF8)
		if err != nil {
			return err
		}
		w.PutUvarint(uint64(m.Access))
		w.PutUvarint(name)
		w.PutUvarint(desc)
		if err := e.attributes(ctx, m.Attributes); err != nil {
			return errors.Wrapf(err, "%s %s", ctx, e.class.MemberName(m))
		}
	}
	return nil
}

func (e *classEncoder) attributes(ctx attr.Context, attrs []*classfile.Attribute) error {
	h := e.set.Band(format.BAND_ATTR_HEADER)
	h.PutUvarint(uint64(len(attrs)))
	for _, a := range attrs {
		name, err := e.ref(a.Name, classfile.TAG_UTF8)
		if err != nil {
			return err
		}
		h.PutUvarint(name)
		key := attr.Key{Context: ctx, Name: e.class.AttrName(a)}

		if ctx == attr.CONTEXT_METHOD && key.Name == attr.CODE {
			h.PutUvarint(format.ATTR_ENCODING_CODE)
			if err := e.code(a.Info); err != nil {
				return errors.Wrap(err, attr.CODE)
			}
			continue
		}
		if l := e.table.Lookup(key); l != nil {
			// A layout that does not fit leaves the bands untouched and
			// the attribute goes raw.
			if err := l.Encode(a.Info, e.refs, e.set); err == nil {
				h.PutUvarint(format.ATTR_ENCODING_LAYOUT)
				continue
			}
		}
		h.PutUvarint(format.ATTR_ENCODING_RAW)
		e.set.Band(format.BAND_ATTR_BYTES).PutBytes(a.Info)
	}
	return nil
}

func (e *classEncoder) code(info []byte) error {
	code, err := classfile.ParseCode(info)
	if err != nil {
		return err
	}
	if len(code.Code) > math.MaxUint16 {
		return errors.Wrapf(ErrUnencodable, "code length %d", len(code.Code))
	}
	h := e.set.Band(format.BAND_CODE_HEADER)
	h.PutUvarint(uint64(code.MaxStack))
	h.PutUvarint(uint64(code.MaxLocals))
	h.PutUvarint(uint64(len(code.Code)))

	hw := e.set.Band(format.BAND_CODE_HANDLERS)
	hw.PutUvarint(uint64(len(code.Handlers)))
	for _, x := range code.Handlers {
		hw.PutUvarint(uint64(x.StartPC))
		hw.PutUvarint(uint64(x.EndPC))
		hw.PutUvarint(uint64(x.HandlerPC))
		if x.CatchType == 0 {
			hw.PutUvarint(0)
			continue
		}
		v, err := e.ref(x.CatchType, classfile.TAG_CLASS)
		if err != nil {
			return errors.Wrap(err, "catch type")
		}
		hw.PutUvarint(v + 1)
	}

	mapRef := func(index uint16) (uint8, uint32, error) {
		if int(index) >= len(e.refs) || e.refs[index].Tag == classfile.TAG_NONE {
			return 0, 0, errors.Errorf("slot %d is empty", index)
		}
		r := e.refs[index]
		return r.Tag, r.Index, nil
	}
	if err := bytecode.Encode(code.Code, mapRef, e.set); err != nil {
		return err
	}
	return e.attributes(attr.CONTEXT_CODE, code.Attributes)
}
