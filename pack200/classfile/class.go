// Package classfile reads and writes JVM class files without losing a byte.
//
// Parse keeps the constant pool in its original slot order and attribute
// contents as opaque bytes, so Bytes reproduces the input exactly.
package classfile

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

const (
	MAGIC uint32 = 0xCAFEBABE

	// Class file major versions this package understands.
	MIN_MAJOR uint16 = 45
	MAX_MAJOR uint16 = 55
)

var (
	ErrMalformed   = errors.New("malformed class file")
	ErrUnsupported = errors.New("unsupported class file")
)

func malformedf(format string, args ...any) error {
	return errors.Wrapf(ErrMalformed, format, args...)
}

type Attribute struct {
	// Pool index of the attribute name
	Name uint16
	Info []byte
}

type Member struct {
	Access     uint16
	Name       uint16
	Desc       uint16
	Attributes []*Attribute
}

type Class struct {
	Minor, Major uint16
	Pool         Pool
	Access       uint16
	This         uint16
	Super        uint16
	Interfaces   []uint16
	Fields       []*Member
	Methods      []*Member
	Attributes   []*Attribute
}

// Name returns the internal name of the class.
func (c *Class) Name() string {
	n, _ := c.Pool.ClassName(c.This)
	return n
}

// AttrName returns the name of an attribute of this class or its members.
func (c *Class) AttrName(a *Attribute) string {
	n, _ := c.Pool.Utf8(a.Name)
	return n
}

// MemberName returns "name:descriptor" for diagnostics.
func (c *Class) MemberName(m *Member) string {
	n, _ := c.Pool.Utf8(m.Name)
	d, _ := c.Pool.Utf8(m.Desc)
	return n + ":" + d
}

type cursor struct {
	b   []byte
	pos int
	err error
}

func (r *cursor) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.b)-r.pos < n {
		r.err = malformedf("truncated at offset %d", r.pos)
		return nil
	}
	out := r.b[r.pos : r.pos+n]
	r.pos += n
	return out
}

func (r *cursor) u1() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *cursor) u2() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *cursor) u4() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *cursor) u8() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *cursor) attributes() []*Attribute {
	n := r.u2()
	attrs := make([]*Attribute, 0, n)
	for i := 0; i < int(n) && r.err == nil; i++ {
		name := r.u2()
		size := r.u4()
		if uint64(size) > uint64(len(r.b)) {
			r.err = malformedf("attribute length %d exceeds class size", size)
			return nil
		}
		info := r.take(int(size))
		attrs = append(attrs, &Attribute{Name: name, Info: append([]byte(nil), info...)})
	}
	return attrs
}

func (r *cursor) members() []*Member {
	n := r.u2()
	members := make([]*Member, 0, n)
	for i := 0; i < int(n) && r.err == nil; i++ {
		m := &Member{Access: r.u2(), Name: r.u2(), Desc: r.u2()}
		m.Attributes = r.attributes()
		members = append(members, m)
	}
	return members
}

// Parse reads a class file. Malformed input yields ErrMalformed; a class
// file that is well formed but outside the supported feature set yields
// ErrUnsupported.
func Parse(b []byte) (*Class, error) {
	r := &cursor{b: b}
	if r.u4() != MAGIC {
		if r.err != nil {
			return nil, r.err
		}
		return nil, malformedf("bad magic")
	}
	c := &Class{Minor: r.u2(), Major: r.u2()}
	if r.err != nil {
		return nil, r.err
	}
	if c.Major < MIN_MAJOR || c.Major > MAX_MAJOR {
		return nil, errors.Wrapf(ErrUnsupported, "class file version %d.%d", c.Major, c.Minor)
	}

	count := r.u2()
	if r.err == nil && count == 0 {
		return nil, malformedf("empty constant pool count")
	}
	c.Pool = make(Pool, count)
	for i := 1; i < int(count) && r.err == nil; i++ {
		k := Constant{Tag: r.u1()}
		switch k.Tag {
		case TAG_UTF8:
			n := r.u2()
			k.Text = string(r.take(int(n)))
		case TAG_INTEGER, TAG_FLOAT:
			k.Value = uint64(r.u4())
		case TAG_LONG, TAG_DOUBLE:
			k.Value = r.u8()
		case TAG_CLASS, TAG_STRING, TAG_METHODTYPE:
			k.A = r.u2()
		case TAG_FIELDREF, TAG_METHODREF, TAG_INTERFACEMETHODREF, TAG_NAMEANDTYPE, TAG_INVOKEDYNAMIC:
			k.A = r.u2()
			k.B = r.u2()
		case TAG_METHODHANDLE:
			k.RefKind = r.u1()
			k.A = r.u2()
		case TAG_DYNAMIC, TAG_MODULE, TAG_PACKAGE:
			return nil, errors.Wrapf(ErrUnsupported, "constant %d has tag %s", i, TagName(k.Tag))
		default:
			if r.err != nil {
				return nil, r.err
			}
			return nil, malformedf("constant %d has unknown tag %d", i, k.Tag)
		}
		c.Pool[i] = k
		if k.Wide() {
			i++
			if i >= int(count) {
				return nil, malformedf("wide constant %d overruns the pool", i-1)
			}
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	if err := c.Pool.validate(); err != nil {
		return nil, err
	}

	c.Access = r.u2()
	c.This = r.u2()
	c.Super = r.u2()
	n := r.u2()
	for i := 0; i < int(n) && r.err == nil; i++ {
		c.Interfaces = append(c.Interfaces, r.u2())
	}
	c.Fields = r.members()
	c.Methods = r.members()
	c.Attributes = r.attributes()
	if r.err != nil {
		return nil, r.err
	}
	if r.pos != len(b) {
		return nil, malformedf("%d trailing bytes", len(b)-r.pos)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Class) validate() error {
	if _, ok := c.Pool.ClassName(c.This); !ok {
		return malformedf("this_class %d is not a class", c.This)
	}
	if c.Super != 0 && !c.Pool.check(c.Super, []uint8{TAG_CLASS}) {
		return malformedf("super_class %d is not a class", c.Super)
	}
	for _, i := range c.Interfaces {
		if !c.Pool.check(i, []uint8{TAG_CLASS}) {
			return malformedf("interface %d is not a class", i)
		}
	}
	utf8 := []uint8{TAG_UTF8}
	checkAttrs := func(attrs []*Attribute) error {
		for _, a := range attrs {
			if !c.Pool.check(a.Name, utf8) {
				return malformedf("attribute name %d is not Utf8", a.Name)
			}
		}
		return nil
	}
	for _, ms := range [][]*Member{c.Fields, c.Methods} {
		for _, m := range ms {
			if !c.Pool.check(m.Name, utf8) || !c.Pool.check(m.Desc, utf8) {
				return malformedf("member has bad name or descriptor")
			}
			if err := checkAttrs(m.Attributes); err != nil {
				return err
			}
		}
	}
	return checkAttrs(c.Attributes)
}

type buffer struct {
	b []byte
}

func (w *buffer) u1(v uint8) { w.b = append(w.b, v) }
func (w *buffer) u2(v uint16) { w.b = binary.BigEndian.AppendUint16(w.b, v) }
func (w *buffer) u4(v uint32) { w.b = binary.BigEndian.AppendUint32(w.b, v) }
func (w *buffer) u8(v uint64) { w.b = binary.BigEndian.AppendUint64(w.b, v) }
func (w *buffer) raw(p []byte) { w.b = append(w.b, p...) }
func (w *buffer) str(s string) { w.b = append(w.b, s...) }

func (w *buffer) attributes(attrs []*Attribute) {
	w.u2(uint16(len(attrs)))
	for _, a := range attrs {
		w.u2(a.Name)
		w.u4(uint32(len(a.Info)))
		w.raw(a.Info)
	}
}

func (w *buffer) members(ms []*Member) {
	w.u2(uint16(len(ms)))
	for _, m := range ms {
		w.u2(m.Access)
		w.u2(m.Name)
		w.u2(m.Desc)
		w.attributes(m.Attributes)
	}
}

// Bytes serializes the class file.
func (c *Class) Bytes() []byte {
	w := &buffer{}
	w.u4(MAGIC)
	w.u2(c.Minor)
	w.u2(c.Major)
	w.u2(uint16(len(c.Pool)))
	for i := 1; i < len(c.Pool); i++ {
		k := c.Pool[i]
		if k.Tag == TAG_NONE {
			continue
		}
		w.u1(k.Tag)
		switch k.Tag {
		case TAG_UTF8:
			w.u2(uint16(len(k.Text)))
			w.str(k.Text)
		case TAG_INTEGER, TAG_FLOAT:
			w.u4(uint32(k.Value & math.MaxUint32))
		case TAG_LONG, TAG_DOUBLE:
			w.u8(k.Value)
		case TAG_CLASS, TAG_STRING, TAG_METHODTYPE:
			w.u2(k.A)
		case TAG_METHODHANDLE:
			w.u1(k.RefKind)
			w.u2(k.A)
		default:
			w.u2(k.A)
			w.u2(k.B)
		}
	}
	w.u2(c.Access)
	w.u2(c.This)
	w.u2(c.Super)
	w.u2(uint16(len(c.Interfaces)))
	for _, i := range c.Interfaces {
		w.u2(i)
	}
	w.members(c.Fields)
	w.members(c.Methods)
	w.attributes(c.Attributes)
	return w.b
}

// Clone returns a copy that shares attribute contents but not the slices
// holding them, so attributes can be filtered without touching c.
func (c *Class) Clone() *Class {
	out := *c
	out.Pool = append(Pool(nil), c.Pool...)
	out.Interfaces = append([]uint16(nil), c.Interfaces...)
	out.Attributes = append([]*Attribute(nil), c.Attributes...)
	cloneMembers := func(ms []*Member) []*Member {
		res := make([]*Member, len(ms))
		for i, m := range ms {
			mm := *m
			mm.Attributes = append([]*Attribute(nil), m.Attributes...)
			res[i] = &mm
		}
		return res
	}
	out.Fields = cloneMembers(c.Fields)
	out.Methods = cloneMembers(c.Methods)
	return &out
}
