package classfile

import "fmt"

// Constant pool tags.
const (
	TAG_NONE               uint8 = 0
	TAG_UTF8               uint8 = 1
	TAG_INTEGER            uint8 = 3
	TAG_FLOAT              uint8 = 4
	TAG_LONG               uint8 = 5
	TAG_DOUBLE             uint8 = 6
	TAG_CLASS              uint8 = 7
	TAG_STRING             uint8 = 8
	TAG_FIELDREF           uint8 = 9
	TAG_METHODREF          uint8 = 10
	TAG_INTERFACEMETHODREF uint8 = 11
	TAG_NAMEANDTYPE        uint8 = 12
	TAG_METHODHANDLE       uint8 = 15
	TAG_METHODTYPE         uint8 = 16
	TAG_DYNAMIC            uint8 = 17
	TAG_INVOKEDYNAMIC      uint8 = 18
	TAG_MODULE             uint8 = 19
	TAG_PACKAGE            uint8 = 20
)

func TagName(tag uint8) string {
	switch tag {
	case TAG_NONE:
		return "None"
	case TAG_UTF8:
		return "Utf8"
	case TAG_INTEGER:
		return "Integer"
	case TAG_FLOAT:
		return "Float"
	case TAG_LONG:
		return "Long"
	case TAG_DOUBLE:
		return "Double"
	case TAG_CLASS:
		return "Class"
	case TAG_STRING:
		return "String"
	case TAG_FIELDREF:
		return "Fieldref"
	case TAG_METHODREF:
		return "Methodref"
	case TAG_INTERFACEMETHODREF:
		return "InterfaceMethodref"
	case TAG_NAMEANDTYPE:
		return "NameAndType"
	case TAG_METHODHANDLE:
		return "MethodHandle"
	case TAG_METHODTYPE:
		return "MethodType"
	case TAG_DYNAMIC:
		return "Dynamic"
	case TAG_INVOKEDYNAMIC:
		return "InvokeDynamic"
	case TAG_MODULE:
		return "Module"
	case TAG_PACKAGE:
		return "Package"
	default:
		return fmt.Sprintf("Tag(%d)", tag)
	}
}

// Constant is one constant pool slot. Which fields are meaningful depends
// on Tag:
//
//	Utf8                 Text (raw modified UTF-8)
//	Integer, Float       Value (low 32 bits)
//	Long, Double         Value
//	Class                A = name
//	String               A = utf8
//	MethodType           A = descriptor
//	NameAndType          A = name, B = descriptor
//	*ref                 A = class, B = name and type
//	MethodHandle         RefKind, A = reference
//	InvokeDynamic        A = bootstrap method index, B = name and type
type Constant struct {
	Tag     uint8
	Text    string
	Value   uint64
	A, B    uint16
	RefKind uint8
}

// Wide reports whether the constant takes two pool slots.
func (c Constant) Wide() bool {
	return c.Tag == TAG_LONG || c.Tag == TAG_DOUBLE
}

// Pool is a class-local constant pool. Pool[0] is always empty, as is the
// slot after each Long and Double.
type Pool []Constant

func (p Pool) Get(i uint16) (Constant, bool) {
	if i == 0 || int(i) >= len(p) || p[i].Tag == TAG_NONE {
		return Constant{}, false
	}
	return p[i], true
}

// Utf8 returns the text of a Utf8 slot.
func (p Pool) Utf8(i uint16) (string, bool) {
	c, ok := p.Get(i)
	if !ok || c.Tag != TAG_UTF8 {
		return "", false
	}
	return c.Text, true
}

// ClassName returns the internal name of a Class slot.
func (p Pool) ClassName(i uint16) (string, bool) {
	c, ok := p.Get(i)
	if !ok || c.Tag != TAG_CLASS {
		return "", false
	}
	return p.Utf8(c.A)
}

// Has reports whether any slot carries one of tags.
func (p Pool) Has(tags ...uint8) bool {
	for _, c := range p {
		for _, t := range tags {
			if c.Tag == t {
				return true
			}
		}
	}
	return false
}

// operandTags lists, per tag, which slot kinds A and B must refer to.
// A nil list means the field is not a pool reference.
var operandTags = map[uint8][2][]uint8{
	TAG_CLASS:              {{TAG_UTF8}, nil},
	TAG_STRING:             {{TAG_UTF8}, nil},
	TAG_METHODTYPE:         {{TAG_UTF8}, nil},
	TAG_NAMEANDTYPE:        {{TAG_UTF8}, {TAG_UTF8}},
	TAG_FIELDREF:           {{TAG_CLASS}, {TAG_NAMEANDTYPE}},
	TAG_METHODREF:          {{TAG_CLASS}, {TAG_NAMEANDTYPE}},
	TAG_INTERFACEMETHODREF: {{TAG_CLASS}, {TAG_NAMEANDTYPE}},
	TAG_METHODHANDLE:       {{TAG_FIELDREF, TAG_METHODREF, TAG_INTERFACEMETHODREF}, nil},
	TAG_INVOKEDYNAMIC:      {nil, {TAG_NAMEANDTYPE}},
}

func (p Pool) check(i uint16, tags []uint8) bool {
	c, ok := p.Get(i)
	if !ok {
		return false
	}
	for _, t := range tags {
		if c.Tag == t {
			return true
		}
	}
	return false
}

// validate checks every cross reference inside the pool.
func (p Pool) validate() error {
	for i, c := range p {
		ops, ok := operandTags[c.Tag]
		if !ok {
			continue
		}
		if ops[0] != nil && !p.check(c.A, ops[0]) {
			return malformedf("constant %d (%s) has bad first operand %d", i, TagName(c.Tag), c.A)
		}
		if ops[1] != nil && !p.check(c.B, ops[1]) {
			return malformedf("constant %d (%s) has bad second operand %d", i, TagName(c.Tag), c.B)
		}
		if c.Tag == TAG_METHODHANDLE && (c.RefKind < 1 || c.RefKind > 9) {
			return malformedf("constant %d has bad reference kind %d", i, c.RefKind)
		}
	}
	return nil
}
