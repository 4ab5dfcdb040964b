// Package bytecode moves method bytecode into and out of the bc_* bands.
//
// Opcodes go to bc_codes, with ldc and interface invokes rewritten to packed
// opcodes that name the constant kind. Operands are split by kind: locals,
// branch offsets, switch keys, immediates and pool references each get their
// own band. Offsets are kept as written, so tables that refer to bytecode
// positions never need rewriting.
package bytecode

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/indrora/pack200/pack200/band"
	"github.com/indrora/pack200/pack200/classfile"
	"github.com/indrora/pack200/pack200/format"
	"github.com/indrora/pack200/pack200/ioutil"
)

var ErrUnencodable = errors.New("bytecode cannot be transcoded")

// RefMapper translates a class-local pool index into the tag of the constant
// and the band index of its symbol.
type RefMapper func(index uint16) (tag uint8, ref uint32, err error)

// Resolver translates a tag and band index back into a class-local pool index.
type Resolver func(tag uint8, ref uint32) (uint16, error)

func unencodable(pc int, msg string, args ...any) error {
	return errors.Wrapf(ErrUnencodable, "at %d: "+msg, append([]any{pc}, args...)...)
}

type encoder struct {
	code   []byte
	mapRef RefMapper

	codes  *ioutil.BandWriter
	locals *ioutil.BandWriter
	labels *ioutil.BandWriter
	cases  *ioutil.BandWriter
	bytes  *ioutil.BandWriter
	refs   *ioutil.BandWriter
}

func (e *encoder) u1(pc int) (byte, error) {
	if pc >= len(e.code) {
		return 0, unencodable(pc, "truncated instruction")
	}
	return e.code[pc], nil
}

func (e *encoder) u2(pc int) (uint16, error) {
	if pc+2 > len(e.code) {
		return 0, unencodable(pc, "truncated instruction")
	}
	return binary.BigEndian.Uint16(e.code[pc:]), nil
}

func (e *encoder) s4(pc int) (int32, error) {
	if pc+4 > len(e.code) {
		return 0, unencodable(pc, "truncated instruction")
	}
	return int32(binary.BigEndian.Uint32(e.code[pc:])), nil
}

// ref maps a pool index and checks its tag against the accepted ones.
func (e *encoder) ref(pc int, index uint16, accept ...uint8) (uint8, error) {
	tag, ref, err := e.mapRef(index)
	if err != nil {
		return 0, unencodable(pc, "constant %d: %v", index, err)
	}
	for _, t := range accept {
		if t == tag {
			e.refs.PutUvarint(uint64(ref))
			return tag, nil
		}
	}
	return 0, unencodable(pc, "unexpected %s constant %d", classfile.TagName(tag), index)
}

// Encode writes the instructions of code into the bc_* bands of set.
func Encode(code []byte, mapRef RefMapper, set *band.Set) error {
	e := &encoder{
		code:   code,
		mapRef: mapRef,
		codes:  set.Band(format.BAND_BC_CODES),
		locals: set.Band(format.BAND_BC_LOCALS),
		labels: set.Band(format.BAND_BC_LABELS),
		cases:  set.Band(format.BAND_BC_CASES),
		bytes:  set.Band(format.BAND_BC_BYTES),
		refs:   set.Band(format.BAND_BC_REFS),
	}
	pc := 0
	for pc < len(code) {
		next, err := e.instruction(pc)
		if err != nil {
			return err
		}
		pc = next
	}
	return nil
}

// instruction encodes the instruction at pc and returns the next pc.
func (e *encoder) instruction(pc int) (int, error) {
	op := e.code[pc]
	switch operands[op] {
	case opNone:
		e.codes.PutByte(op)
		return pc + 1, nil

	case opByte:
		b, err := e.u1(pc + 1)
		if err != nil {
			return 0, err
		}
		e.codes.PutByte(op)
		e.bytes.PutByte(b)
		return pc + 2, nil

	case opShort:
		v, err := e.u2(pc + 1)
		if err != nil {
			return 0, err
		}
		e.codes.PutByte(op)
		e.bytes.PutVarint(int64(int16(v)))
		return pc + 3, nil

	case opLocal:
		l, err := e.u1(pc + 1)
		if err != nil {
			return 0, err
		}
		e.codes.PutByte(op)
		e.locals.PutUvarint(uint64(l))
		return pc + 2, nil

	case opIinc:
		l, err := e.u1(pc + 1)
		if err != nil {
			return 0, err
		}
		c, err := e.u1(pc + 2)
		if err != nil {
			return 0, err
		}
		e.codes.PutByte(op)
		e.locals.PutUvarint(uint64(l))
		e.bytes.PutVarint(int64(int8(c)))
		return pc + 3, nil

	case opBranch:
		off, err := e.u2(pc + 1)
		if err != nil {
			return 0, err
		}
		e.codes.PutByte(op)
		e.labels.PutVarint(int64(int16(off)))
		return pc + 3, nil

	case opBranchW:
		off, err := e.s4(pc + 1)
		if err != nil {
			return 0, err
		}
		e.codes.PutByte(op)
		e.labels.PutVarint(int64(off))
		return pc + 5, nil

	case opTable, opLookup:
		return e.switchInstruction(pc, op)

	case opLdc, opLdcW, opLdc2:
		var index uint16
		var err error
		next := pc + 3
		if op == LDC {
			var b byte
			b, err = e.u1(pc + 1)
			index = uint16(b)
			next = pc + 2
		} else {
			index, err = e.u2(pc + 1)
		}
		if err != nil {
			return 0, err
		}
		var accept []uint8
		if op == LDC2_W {
			accept = []uint8{classfile.TAG_LONG, classfile.TAG_DOUBLE}
		} else {
			accept = []uint8{
				classfile.TAG_INTEGER, classfile.TAG_FLOAT, classfile.TAG_STRING,
				classfile.TAG_CLASS, classfile.TAG_METHODTYPE, classfile.TAG_METHODHANDLE,
			}
		}
		tag, err := e.ref(pc, index, accept...)
		if err != nil {
			return 0, err
		}
		e.codes.PutByte(ldcPacked[ldcForm{op, tag}])
		return next, nil

	case opField:
		index, err := e.u2(pc + 1)
		if err != nil {
			return 0, err
		}
		if _, err := e.ref(pc, index, classfile.TAG_FIELDREF); err != nil {
			return 0, err
		}
		e.codes.PutByte(op)
		return pc + 3, nil

	case opInvoke:
		index, err := e.u2(pc + 1)
		if err != nil {
			return 0, err
		}
		tag, err := e.ref(pc, index, classfile.TAG_METHODREF, classfile.TAG_INTERFACEMETHODREF)
		if err != nil {
			return 0, err
		}
		if tag == classfile.TAG_INTERFACEMETHODREF {
			e.codes.PutByte(invokeItf[op])
		} else {
			e.codes.PutByte(op)
		}
		return pc + 3, nil

	case opInterface:
		index, err := e.u2(pc + 1)
		if err != nil {
			return 0, err
		}
		count, err := e.u1(pc + 3)
		if err != nil {
			return 0, err
		}
		if zero, err := e.u1(pc + 4); err != nil || zero != 0 {
			return 0, unencodable(pc, "invokeinterface reserved byte")
		}
		if _, err := e.ref(pc, index, classfile.TAG_INTERFACEMETHODREF); err != nil {
			return 0, err
		}
		e.codes.PutByte(op)
		e.bytes.PutByte(count)
		return pc + 5, nil

	case opIndy:
		index, err := e.u2(pc + 1)
		if err != nil {
			return 0, err
		}
		if zero, err := e.u2(pc + 3); err != nil || zero != 0 {
			return 0, unencodable(pc, "invokedynamic reserved bytes")
		}
		if _, err := e.ref(pc, index, classfile.TAG_INVOKEDYNAMIC); err != nil {
			return 0, err
		}
		e.codes.PutByte(op)
		return pc + 5, nil

	case opClass:
		index, err := e.u2(pc + 1)
		if err != nil {
			return 0, err
		}
		if _, err := e.ref(pc, index, classfile.TAG_CLASS); err != nil {
			return 0, err
		}
		e.codes.PutByte(op)
		return pc + 3, nil

	case opMultiArray:
		index, err := e.u2(pc + 1)
		if err != nil {
			return 0, err
		}
		dims, err := e.u1(pc + 3)
		if err != nil {
			return 0, err
		}
		if _, err := e.ref(pc, index, classfile.TAG_CLASS); err != nil {
			return 0, err
		}
		e.codes.PutByte(op)
		e.bytes.PutByte(dims)
		return pc + 4, nil

	case opWide:
		inner, err := e.u1(pc + 1)
		if err != nil {
			return 0, err
		}
		if !wideable(inner) {
			return 0, unencodable(pc, "wide %#x", inner)
		}
		l, err := e.u2(pc + 2)
		if err != nil {
			return 0, err
		}
		e.codes.PutByte(op)
		e.codes.PutByte(inner)
		e.locals.PutUvarint(uint64(l))
		if inner != IINC {
			return pc + 4, nil
		}
		c, err := e.u2(pc + 4)
		if err != nil {
			return 0, err
		}
		e.bytes.PutVarint(int64(int16(c)))
		return pc + 6, nil
	}
	return 0, unencodable(pc, "unknown opcode %#x", op)
}

func (e *encoder) switchInstruction(pc int, op byte) (int, error) {
	p := pc + 1
	for ; p%4 != 0; p++ {
		b, err := e.u1(p)
		if err != nil {
			return 0, err
		}
		if b != 0 {
			return 0, unencodable(pc, "non-zero switch padding")
		}
	}
	def, err := e.s4(p)
	if err != nil {
		return 0, err
	}
	p += 4

	if op == TABLESWITCH {
		low, err := e.s4(p)
		if err != nil {
			return 0, err
		}
		high, err := e.s4(p + 4)
		if err != nil {
			return 0, err
		}
		p += 8
		n := int64(high) - int64(low) + 1
		if n < 0 || n*4 > int64(len(e.code)-p) {
			return 0, unencodable(pc, "bad tableswitch range %d..%d", low, high)
		}
		e.codes.PutByte(op)
		e.cases.PutVarint(int64(low))
		e.cases.PutVarint(int64(high))
		e.labels.PutVarint(int64(def))
		for i := int64(0); i < n; i++ {
			off, _ := e.s4(p)
			e.labels.PutVarint(int64(off))
			p += 4
		}
		return p, nil
	}

	npairs, err := e.s4(p)
	if err != nil {
		return 0, err
	}
	p += 4
	if npairs < 0 || int64(npairs)*8 > int64(len(e.code)-p) {
		return 0, unencodable(pc, "bad lookupswitch size %d", npairs)
	}
	e.codes.PutByte(op)
	e.cases.PutUvarint(uint64(npairs))
	e.labels.PutVarint(int64(def))
	for i := int32(0); i < npairs; i++ {
		match, _ := e.s4(p)
		off, _ := e.s4(p + 4)
		e.cases.PutVarint(int64(match))
		e.labels.PutVarint(int64(off))
		p += 8
	}
	return p, nil
}
