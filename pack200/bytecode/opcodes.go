package bytecode

import "github.com/indrora/pack200/pack200/classfile"

// JVM opcodes that carry operands the transcoder cares about.
const (
	BIPUSH          byte = 0x10
	SIPUSH          byte = 0x11
	LDC             byte = 0x12
	LDC_W           byte = 0x13
	LDC2_W          byte = 0x14
	IINC            byte = 0x84
	RET             byte = 0xa9
	TABLESWITCH     byte = 0xaa
	LOOKUPSWITCH    byte = 0xab
	GETSTATIC       byte = 0xb2
	PUTFIELD        byte = 0xb5
	INVOKEVIRTUAL   byte = 0xb6
	INVOKESPECIAL   byte = 0xb7
	INVOKESTATIC    byte = 0xb8
	INVOKEINTERFACE byte = 0xb9
	INVOKEDYNAMIC   byte = 0xba
	NEW             byte = 0xbb
	NEWARRAY        byte = 0xbc
	ANEWARRAY       byte = 0xbd
	CHECKCAST       byte = 0xc0
	INSTANCEOF      byte = 0xc1
	WIDE            byte = 0xc4
	MULTIANEWARRAY  byte = 0xc5
	IFNULL          byte = 0xc6
	IFNONNULL       byte = 0xc7
	GOTO_W          byte = 0xc8
	JSR_W           byte = 0xc9
)

// Packed opcodes. They only appear in bc_codes and name the constant kind
// an instruction refers to, so the ref band can be split by kind.
const (
	ILDC  byte = 0xd0
	FLDC  byte = 0xd1
	SLDC  byte = 0xd2
	CLDC  byte = 0xd3
	MTLDC byte = 0xd4
	MHLDC byte = 0xd5

	ILDC_W  byte = 0xd6
	FLDC_W  byte = 0xd7
	SLDC_W  byte = 0xd8
	CLDC_W  byte = 0xd9
	MTLDC_W byte = 0xda
	MHLDC_W byte = 0xdb

	LLDC2_W byte = 0xdc
	DLDC2_W byte = 0xdd

	// invokevirtual, invokespecial and invokestatic on an InterfaceMethodref
	INVOKEVIRTUAL_ITF byte = 0xe0
	INVOKESPECIAL_ITF byte = 0xe1
	INVOKESTATIC_ITF  byte = 0xe2
)

type operand uint8

const (
	opInvalid operand = iota
	opNone
	opByte
	opShort
	opLocal
	opIinc
	opBranch
	opBranchW
	opTable
	opLookup
	opLdc
	opLdcW
	opLdc2
	opField
	opInvoke
	opInterface
	opIndy
	opClass
	opMultiArray
	opWide
)

var operands [256]operand

func init() {
	for op := 0x00; op <= 0xc9; op++ {
		operands[op] = opNone
	}
	operands[BIPUSH] = opByte
	operands[SIPUSH] = opShort
	operands[LDC] = opLdc
	operands[LDC_W] = opLdcW
	operands[LDC2_W] = opLdc2
	for op := 0x15; op <= 0x19; op++ {
		operands[op] = opLocal
	}
	for op := 0x36; op <= 0x3a; op++ {
		operands[op] = opLocal
	}
	operands[IINC] = opIinc
	for op := 0x99; op <= 0xa8; op++ {
		operands[op] = opBranch
	}
	operands[RET] = opLocal
	operands[TABLESWITCH] = opTable
	operands[LOOKUPSWITCH] = opLookup
	for op := GETSTATIC; op <= PUTFIELD; op++ {
		operands[op] = opField
	}
	operands[INVOKEVIRTUAL] = opInvoke
	operands[INVOKESPECIAL] = opInvoke
	operands[INVOKESTATIC] = opInvoke
	operands[INVOKEINTERFACE] = opInterface
	operands[INVOKEDYNAMIC] = opIndy
	operands[NEW] = opClass
	operands[NEWARRAY] = opByte
	operands[ANEWARRAY] = opClass
	operands[CHECKCAST] = opClass
	operands[INSTANCEOF] = opClass
	operands[WIDE] = opWide
	operands[MULTIANEWARRAY] = opMultiArray
	operands[IFNULL] = opBranch
	operands[IFNONNULL] = opBranch
	operands[GOTO_W] = opBranchW
	operands[JSR_W] = opBranchW
}

// wideable reports whether op may follow a wide prefix.
func wideable(op byte) bool {
	return (op >= 0x15 && op <= 0x19) || (op >= 0x36 && op <= 0x3a) || op == RET || op == IINC
}

type ldcForm struct {
	op  byte
	tag uint8
}

// ldcPacked maps an ldc-family opcode and constant tag to its packed opcode.
var ldcPacked = map[ldcForm]byte{
	{LDC, classfile.TAG_INTEGER}:      ILDC,
	{LDC, classfile.TAG_FLOAT}:        FLDC,
	{LDC, classfile.TAG_STRING}:       SLDC,
	{LDC, classfile.TAG_CLASS}:        CLDC,
	{LDC, classfile.TAG_METHODTYPE}:   MTLDC,
	{LDC, classfile.TAG_METHODHANDLE}: MHLDC,

	{LDC_W, classfile.TAG_INTEGER}:      ILDC_W,
	{LDC_W, classfile.TAG_FLOAT}:        FLDC_W,
	{LDC_W, classfile.TAG_STRING}:       SLDC_W,
	{LDC_W, classfile.TAG_CLASS}:        CLDC_W,
	{LDC_W, classfile.TAG_METHODTYPE}:   MTLDC_W,
	{LDC_W, classfile.TAG_METHODHANDLE}: MHLDC_W,

	{LDC2_W, classfile.TAG_LONG}:   LLDC2_W,
	{LDC2_W, classfile.TAG_DOUBLE}: DLDC2_W,
}

// ldcUnpacked is the inverse of ldcPacked.
var ldcUnpacked = map[byte]ldcForm{}

func init() {
	for form, packed := range ldcPacked {
		ldcUnpacked[packed] = form
	}
}

var invokeItf = map[byte]byte{
	INVOKEVIRTUAL: INVOKEVIRTUAL_ITF,
	INVOKESPECIAL: INVOKESPECIAL_ITF,
	INVOKESTATIC:  INVOKESTATIC_ITF,
}

var invokeItfInverse = map[byte]byte{
	INVOKEVIRTUAL_ITF: INVOKEVIRTUAL,
	INVOKESPECIAL_ITF: INVOKESPECIAL,
	INVOKESTATIC_ITF:  INVOKESTATIC,
}
