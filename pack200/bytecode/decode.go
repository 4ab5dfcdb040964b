package bytecode

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/indrora/pack200/pack200/band"
	"github.com/indrora/pack200/pack200/classfile"
	"github.com/indrora/pack200/pack200/format"
	"github.com/indrora/pack200/pack200/ioutil"
)

var ErrBadBytecode = errors.New("bad bytecode bands")

type decoder struct {
	out     []byte
	resolve Resolver

	codes  *ioutil.BandReader
	locals *ioutil.BandReader
	labels *ioutil.BandReader
	cases  *ioutil.BandReader
	bytes  *ioutil.BandReader
	refs   *ioutil.BandReader
}

func (d *decoder) u1(v byte) { d.out = append(d.out, v) }
func (d *decoder) u2(v uint16) { d.out = binary.BigEndian.AppendUint16(d.out, v) }
func (d *decoder) s4(v int32) { d.out = binary.BigEndian.AppendUint32(d.out, uint32(v)) }

// ref reads a band index and resolves it to a pool index.
func (d *decoder) ref(tag uint8) (uint16, error) {
	r, err := d.refs.Uvarint()
	if err != nil {
		return 0, err
	}
	if r > math.MaxUint32 {
		return 0, errors.Wrapf(ErrBadBytecode, "ref %d out of range", r)
	}
	return d.resolve(tag, uint32(r))
}

func (d *decoder) local(wide bool) error {
	l, err := d.locals.Uvarint()
	if err != nil {
		return err
	}
	if wide {
		if l > math.MaxUint16 {
			return errors.Wrapf(ErrBadBytecode, "local %d out of range", l)
		}
		d.u2(uint16(l))
		return nil
	}
	if l > math.MaxUint8 {
		return errors.Wrapf(ErrBadBytecode, "local %d out of range", l)
	}
	d.u1(byte(l))
	return nil
}

func (d *decoder) signed(r *ioutil.BandReader, lo, hi int64) (int64, error) {
	v, err := r.Varint()
	if err != nil {
		return 0, err
	}
	if v < lo || v > hi {
		return 0, errors.Wrapf(ErrBadBytecode, "operand %d out of range", v)
	}
	return v, nil
}

// Decode rebuilds length bytes of bytecode from the bc_* bands of src.
func Decode(src *band.Source, length int, resolve Resolver) ([]byte, error) {
	d := &decoder{
		out:     make([]byte, 0, length),
		resolve: resolve,
		codes:   src.Band(format.BAND_BC_CODES),
		locals:  src.Band(format.BAND_BC_LOCALS),
		labels:  src.Band(format.BAND_BC_LABELS),
		cases:   src.Band(format.BAND_BC_CASES),
		bytes:   src.Band(format.BAND_BC_BYTES),
		refs:    src.Band(format.BAND_BC_REFS),
	}
	for len(d.out) < length {
		if err := d.instruction(); err != nil {
			return nil, errors.Wrapf(err, "at %d", len(d.out))
		}
	}
	if len(d.out) != length {
		return nil, errors.Wrapf(ErrBadBytecode, "decoded %d bytes of code, expected %d", len(d.out), length)
	}
	return d.out, nil
}

func (d *decoder) instruction() error {
	op, err := d.codes.Byte()
	if err != nil {
		return err
	}

	if form, ok := ldcUnpacked[op]; ok {
		index, err := d.ref(form.tag)
		if err != nil {
			return err
		}
		d.u1(form.op)
		if form.op == LDC {
			if index > math.MaxUint8 {
				return errors.Wrapf(ErrBadBytecode, "ldc index %d does not fit", index)
			}
			d.u1(byte(index))
		} else {
			d.u2(index)
		}
		return nil
	}
	if plain, ok := invokeItfInverse[op]; ok {
		index, err := d.ref(classfile.TAG_INTERFACEMETHODREF)
		if err != nil {
			return err
		}
		d.u1(plain)
		d.u2(index)
		return nil
	}

	switch operands[op] {
	case opNone:
		d.u1(op)

	case opByte:
		b, err := d.bytes.Byte()
		if err != nil {
			return err
		}
		d.u1(op)
		d.u1(b)

	case opShort:
		v, err := d.signed(d.bytes, math.MinInt16, math.MaxInt16)
		if err != nil {
			return err
		}
		d.u1(op)
		d.u2(uint16(int16(v)))

	case opLocal:
		d.u1(op)
		return d.local(false)

	case opIinc:
		d.u1(op)
		if err := d.local(false); err != nil {
			return err
		}
		c, err := d.signed(d.bytes, math.MinInt8, math.MaxInt8)
		if err != nil {
			return err
		}
		d.u1(byte(int8(c)))

	case opBranch:
		off, err := d.signed(d.labels, math.MinInt16, math.MaxInt16)
		if err != nil {
			return err
		}
		d.u1(op)
		d.u2(uint16(int16(off)))

	case opBranchW:
		off, err := d.signed(d.labels, math.MinInt32, math.MaxInt32)
		if err != nil {
			return err
		}
		d.u1(op)
		d.s4(int32(off))

	case opTable, opLookup:
		return d.switchInstruction(op)

	case opField, opInvoke, opClass:
		tag := classfile.TAG_CLASS
		switch operands[op] {
		case opField:
			tag = classfile.TAG_FIELDREF
		case opInvoke:
			tag = classfile.TAG_METHODREF
		}
		index, err := d.ref(tag)
		if err != nil {
			return err
		}
		d.u1(op)
		d.u2(index)

	case opInterface:
		index, err := d.ref(classfile.TAG_INTERFACEMETHODREF)
		if err != nil {
			return err
		}
		count, err := d.bytes.Byte()
		if err != nil {
			return err
		}
		d.u1(op)
		d.u2(index)
		d.u1(count)
		d.u1(0)

	case opIndy:
		index, err := d.ref(classfile.TAG_INVOKEDYNAMIC)
		if err != nil {
			return err
		}
		d.u1(op)
		d.u2(index)
		d.u2(0)

	case opMultiArray:
		index, err := d.ref(classfile.TAG_CLASS)
		if err != nil {
			return err
		}
		dims, err := d.bytes.Byte()
		if err != nil {
			return err
		}
		d.u1(op)
		d.u2(index)
		d.u1(dims)

	case opWide:
		inner, err := d.codes.Byte()
		if err != nil {
			return err
		}
		if !wideable(inner) {
			return errors.Wrapf(ErrBadBytecode, "wide %#x", inner)
		}
		d.u1(op)
		d.u1(inner)
		if err := d.local(true); err != nil {
			return err
		}
		if inner == IINC {
			c, err := d.signed(d.bytes, math.MinInt16, math.MaxInt16)
			if err != nil {
				return err
			}
			d.u2(uint16(int16(c)))
		}

	default:
		return errors.Wrapf(ErrBadBytecode, "unknown opcode %#x", op)
	}
	return nil
}

func (d *decoder) switchInstruction(op byte) error {
	d.u1(op)
	for len(d.out)%4 != 0 {
		d.u1(0)
	}
	def, err := d.signed(d.labels, math.MinInt32, math.MaxInt32)
	if err != nil {
		return err
	}
	d.s4(int32(def))

	if op == TABLESWITCH {
		low, err := d.signed(d.cases, math.MinInt32, math.MaxInt32)
		if err != nil {
			return err
		}
		high, err := d.signed(d.cases, math.MinInt32, math.MaxInt32)
		if err != nil {
			return err
		}
		n := high - low + 1
		if n < 0 || n > int64(d.labels.Remaining()) {
			return errors.Wrapf(ErrBadBytecode, "bad tableswitch range %d..%d", low, high)
		}
		d.s4(int32(low))
		d.s4(int32(high))
		for i := int64(0); i < n; i++ {
			off, err := d.signed(d.labels, math.MinInt32, math.MaxInt32)
			if err != nil {
				return err
			}
			d.s4(int32(off))
		}
		return nil
	}

	npairs, err := d.cases.Uvarint()
	if err != nil {
		return err
	}
	if npairs > uint64(d.labels.Remaining()) {
		return errors.Wrapf(ErrBadBytecode, "bad lookupswitch size %d", npairs)
	}
	d.s4(int32(npairs))
	for i := uint64(0); i < npairs; i++ {
		match, err := d.signed(d.cases, math.MinInt32, math.MaxInt32)
		if err != nil {
			return err
		}
		off, err := d.signed(d.labels, math.MinInt32, math.MaxInt32)
		if err != nil {
			return err
		}
		d.s4(int32(match))
		d.s4(int32(off))
	}
	return nil
}
