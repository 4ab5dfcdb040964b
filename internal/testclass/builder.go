// Package testclass assembles class files for tests.
package testclass

import (
	"encoding/binary"
	"math"

	"github.com/indrora/pack200/pack200/classfile"
)

const (
	ACC_PUBLIC    uint16 = 0x0001
	ACC_PRIVATE   uint16 = 0x0002
	ACC_STATIC    uint16 = 0x0008
	ACC_FINAL     uint16 = 0x0010
	ACC_SUPER     uint16 = 0x0020
	ACC_INTERFACE uint16 = 0x0200
	ACC_ABSTRACT  uint16 = 0x0400
)

// Builder interns constants on first use, like a compiler would.
type Builder struct {
	class *classfile.Class
	index map[classfile.Constant]uint16
}

func New(name, super string) *Builder {
	b := &Builder{
		class: &classfile.Class{
			Major:  50,
			Pool:   classfile.Pool{{}},
			Access: ACC_PUBLIC | ACC_SUPER,
		},
		index: make(map[classfile.Constant]uint16),
	}
	b.class.This = b.Class(name)
	if super != "" {
		b.class.Super = b.Class(super)
	}
	return b
}

func (b *Builder) Version(major, minor uint16) *Builder {
	b.class.Major, b.class.Minor = major, minor
	return b
}

func (b *Builder) Access(access uint16) *Builder {
	b.class.Access = access
	return b
}

func (b *Builder) add(k classfile.Constant) uint16 {
	if i, ok := b.index[k]; ok {
		return i
	}
	i := uint16(len(b.class.Pool))
	b.class.Pool = append(b.class.Pool, k)
	if k.Wide() {
		b.class.Pool = append(b.class.Pool, classfile.Constant{})
	}
	b.index[k] = i
	return i
}

// Raw appends a constant without deduplication.
func (b *Builder) Raw(k classfile.Constant) uint16 {
	i := uint16(len(b.class.Pool))
	b.class.Pool = append(b.class.Pool, k)
	if k.Wide() {
		b.class.Pool = append(b.class.Pool, classfile.Constant{})
	}
	return i
}

func (b *Builder) Utf8(s string) uint16 {
	return b.add(classfile.Constant{Tag: classfile.TAG_UTF8, Text: s})
}

func (b *Builder) Int(v int32) uint16 {
	return b.add(classfile.Constant{Tag: classfile.TAG_INTEGER, Value: uint64(uint32(v))})
}

func (b *Builder) Float(v float32) uint16 {
	return b.add(classfile.Constant{Tag: classfile.TAG_FLOAT, Value: uint64(math.Float32bits(v))})
}

func (b *Builder) Long(v int64) uint16 {
	return b.add(classfile.Constant{Tag: classfile.TAG_LONG, Value: uint64(v)})
}

func (b *Builder) Double(v float64) uint16 {
	return b.add(classfile.Constant{Tag: classfile.TAG_DOUBLE, Value: math.Float64bits(v)})
}

func (b *Builder) Class(name string) uint16 {
	return b.add(classfile.Constant{Tag: classfile.TAG_CLASS, A: b.Utf8(name)})
}

func (b *Builder) Str(s string) uint16 {
	return b.add(classfile.Constant{Tag: classfile.TAG_STRING, A: b.Utf8(s)})
}

func (b *Builder) MethodType(desc string) uint16 {
	return b.add(classfile.Constant{Tag: classfile.TAG_METHODTYPE, A: b.Utf8(desc)})
}

func (b *Builder) NameAndType(name, desc string) uint16 {
	return b.add(classfile.Constant{Tag: classfile.TAG_NAMEANDTYPE, A: b.Utf8(name), B: b.Utf8(desc)})
}

func (b *Builder) member(tag uint8, class, name, desc string) uint16 {
	return b.add(classfile.Constant{Tag: tag, A: b.Class(class), B: b.NameAndType(name, desc)})
}

func (b *Builder) Fieldref(class, name, desc string) uint16 {
	return b.member(classfile.TAG_FIELDREF, class, name, desc)
}

func (b *Builder) Methodref(class, name, desc string) uint16 {
	return b.member(classfile.TAG_METHODREF, class, name, desc)
}

func (b *Builder) InterfaceMethodref(class, name, desc string) uint16 {
	return b.member(classfile.TAG_INTERFACEMETHODREF, class, name, desc)
}

func (b *Builder) MethodHandle(kind uint8, ref uint16) uint16 {
	return b.add(classfile.Constant{Tag: classfile.TAG_METHODHANDLE, RefKind: kind, A: ref})
}

func (b *Builder) InvokeDynamic(bootstrap uint16, name, desc string) uint16 {
	return b.add(classfile.Constant{Tag: classfile.TAG_INVOKEDYNAMIC, A: bootstrap, B: b.NameAndType(name, desc)})
}

func (b *Builder) Interface(name string) *Builder {
	b.class.Interfaces = append(b.class.Interfaces, b.Class(name))
	return b
}

// Attr makes an attribute with the given contents.
func (b *Builder) Attr(name string, info []byte) *classfile.Attribute {
	return &classfile.Attribute{Name: b.Utf8(name), Info: info}
}

// Code makes a Code attribute.
func (b *Builder) Code(maxStack, maxLocals uint16, code []byte, handlers []classfile.Handler, attrs ...*classfile.Attribute) *classfile.Attribute {
	c := &classfile.Code{
		MaxStack:   maxStack,
		MaxLocals:  maxLocals,
		Code:       code,
		Handlers:   handlers,
		Attributes: attrs,
	}
	return b.Attr("Code", c.Bytes())
}

func (b *Builder) Field(access uint16, name, desc string, attrs ...*classfile.Attribute) *Builder {
	b.class.Fields = append(b.class.Fields, &classfile.Member{
		Access: access, Name: b.Utf8(name), Desc: b.Utf8(desc), Attributes: attrs,
	})
	return b
}

func (b *Builder) Method(access uint16, name, desc string, attrs ...*classfile.Attribute) *Builder {
	b.class.Methods = append(b.class.Methods, &classfile.Member{
		Access: access, Name: b.Utf8(name), Desc: b.Utf8(desc), Attributes: attrs,
	})
	return b
}

func (b *Builder) ClassAttr(attrs ...*classfile.Attribute) *Builder {
	b.class.Attributes = append(b.class.Attributes, attrs...)
	return b
}

func (b *Builder) Build() *classfile.Class {
	return b.class
}

func (b *Builder) Bytes() []byte {
	return b.class.Bytes()
}

// Asm appends big-endian operands to a byte slice.
type Asm struct {
	b []byte
}

func (a *Asm) Op(ops ...byte) *Asm {
	a.b = append(a.b, ops...)
	return a
}

func (a *Asm) U2(v uint16) *Asm {
	a.b = binary.BigEndian.AppendUint16(a.b, v)
	return a
}

func (a *Asm) S2(v int16) *Asm {
	return a.U2(uint16(v))
}

func (a *Asm) U4(v uint32) *Asm {
	a.b = binary.BigEndian.AppendUint32(a.b, v)
	return a
}

func (a *Asm) S4(v int32) *Asm {
	a.b = binary.BigEndian.AppendUint32(a.b, uint32(v))
	return a
}

// Pad fills with zeros up to the next multiple of four.
func (a *Asm) Pad() *Asm {
	for len(a.b)%4 != 0 {
		a.b = append(a.b, 0)
	}
	return a
}

func (a *Asm) Len() int {
	return len(a.b)
}

func (a *Asm) Bytes() []byte {
	return a.b
}
