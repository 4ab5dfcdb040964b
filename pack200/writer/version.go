package writer

import (
	"encoding/binary"
	"slices"

	"github.com/indrora/pack200/pack200/attr"
	"github.com/indrora/pack200/pack200/classfile"
	"github.com/indrora/pack200/pack200/format"
)

// Class file major version that introduced invokedynamic and lambdas.
const INDY_MAJOR = 52

// classVersion is the oldest format version that can carry c.
func classVersion(c *classfile.Class) format.Version {
	switch {
	case hasTypeAnnotations(c):
		return format.VERSION_TYPE_ANNOTATIONS
	case c.Major >= INDY_MAJOR,
		c.Pool.Has(classfile.TAG_METHODHANDLE, classfile.TAG_METHODTYPE, classfile.TAG_INVOKEDYNAMIC):
		return format.VERSION_INDY
	default:
		return format.VERSION_NO_INDY
	}
}

func hasTypeAnnotations(c *classfile.Class) bool {
	found := func(attrs []*classfile.Attribute) bool {
		for _, a := range attrs {
			if slices.Contains(attr.TypeAnnotationAttributes, c.AttrName(a)) {
				return true
			}
		}
		return false
	}
	if found(c.Attributes) {
		return true
	}
	for _, m := range c.Fields {
		if found(m.Attributes) {
			return true
		}
	}
	for _, m := range c.Methods {
		if found(m.Attributes) {
			return true
		}
		for _, a := range m.Attributes {
			if c.AttrName(a) != attr.CODE {
				continue
			}
			if code, err := classfile.ParseCode(a.Info); err == nil && found(code.Attributes) {
				return true
			}
		}
	}
	return false
}

// classfileVersion reads the version of a class file that failed to parse.
func classfileVersion(b []byte) (major, minor uint16) {
	if len(b) < 8 {
		return 0, 0
	}
	return binary.BigEndian.Uint16(b[6:]), binary.BigEndian.Uint16(b[4:])
}
