package format

// BandID names one band of a segment body. The order of this list is the
// order bands appear on the wire and is frozen per format version.
type BandID uint8

const (
	// Symbol pool, one band per constant kind, in dependency order.
	BAND_CP_UTF8 BandID = iota
	BAND_CP_INT
	BAND_CP_FLOAT
	BAND_CP_LONG
	BAND_CP_DOUBLE
	BAND_CP_CLASS
	BAND_CP_STRING
	BAND_CP_METHODTYPE
	BAND_CP_DESCR
	BAND_CP_FIELD
	BAND_CP_METHOD
	BAND_CP_IMETHOD
	BAND_CP_METHODHANDLE
	BAND_CP_INDY

	// Files, in stream order.
	BAND_FILE_OPTIONS
	BAND_FILE_NAME
	BAND_FILE_SIZE
	BAND_FILE_MODTIME
	BAND_FILE_BITS

	// Class structure.
	BAND_CLASS_HEADER
	BAND_CLASS_CP
	BAND_CLASS_REFS
	BAND_CLASS_MEMBERS

	// Attributes.
	BAND_ATTR_HEADER
	BAND_ATTR_INTS
	BAND_ATTR_REFS
	BAND_ATTR_BYTES

	// Code attributes and bytecode.
	BAND_CODE_HEADER
	BAND_CODE_HANDLERS
	BAND_BC_CODES
	BAND_BC_LOCALS
	BAND_BC_LABELS
	BAND_BC_CASES
	BAND_BC_BYTES
	BAND_BC_REFS

	BAND_COUNT
)

var bandNames = [BAND_COUNT]string{
	BAND_CP_UTF8:         "cp_Utf8",
	BAND_CP_INT:          "cp_Int",
	BAND_CP_FLOAT:        "cp_Float",
	BAND_CP_LONG:         "cp_Long",
	BAND_CP_DOUBLE:       "cp_Double",
	BAND_CP_CLASS:        "cp_Class",
	BAND_CP_STRING:       "cp_String",
	BAND_CP_METHODTYPE:   "cp_MethodType",
	BAND_CP_DESCR:        "cp_Descr",
	BAND_CP_FIELD:        "cp_Field",
	BAND_CP_METHOD:       "cp_Method",
	BAND_CP_IMETHOD:      "cp_Imethod",
	BAND_CP_METHODHANDLE: "cp_MethodHandle",
	BAND_CP_INDY:         "cp_InvokeDynamic",
	BAND_FILE_OPTIONS:    "file_options",
	BAND_FILE_NAME:       "file_name",
	BAND_FILE_SIZE:       "file_size",
	BAND_FILE_MODTIME:    "file_modtime",
	BAND_FILE_BITS:       "file_bits",
	BAND_CLASS_HEADER:    "class_header",
	BAND_CLASS_CP:        "class_cp",
	BAND_CLASS_REFS:      "class_refs",
	BAND_CLASS_MEMBERS:   "class_members",
	BAND_ATTR_HEADER:     "attr_header",
	BAND_ATTR_INTS:       "attr_ints",
	BAND_ATTR_REFS:       "attr_refs",
	BAND_ATTR_BYTES:      "attr_bytes",
	BAND_CODE_HEADER:     "code_header",
	BAND_CODE_HANDLERS:   "code_handlers",
	BAND_BC_CODES:        "bc_codes",
	BAND_BC_LOCALS:       "bc_locals",
	BAND_BC_LABELS:       "bc_labels",
	BAND_BC_CASES:        "bc_cases",
	BAND_BC_BYTES:        "bc_bytes",
	BAND_BC_REFS:         "bc_refs",
}

func (b BandID) String() string {
	if b < BAND_COUNT {
		return bandNames[b]
	}
	return "band?"
}

// File option bits, stored per entry in BAND_FILE_OPTIONS.
const (
	FILE_OPTION_NONE uint64 = 0
	// Entry was deflated in the original archive (only with DEFLATE_KEEP).
	FILE_OPTION_DEFLATE uint64 = 0b0001
	// Entry is a class transcoded into the class bands.
	FILE_OPTION_CLASS uint64 = 0b0010
	// Entry is a class stored verbatim in file_bits.
	FILE_OPTION_RAW_CLASS uint64 = 0b0100
	// Entry name is derived from the class name and omitted from file_name.
	FILE_OPTION_NAME_IMPLIED uint64 = 0b1000

	fileOptionsMask uint64 = 0b1111
)

// ValidFileOptions reports whether opts only uses known bits and is
// internally consistent.
func ValidFileOptions(opts uint64) bool {
	if opts&^fileOptionsMask != 0 {
		return false
	}
	if opts&FILE_OPTION_CLASS != 0 && opts&FILE_OPTION_RAW_CLASS != 0 {
		return false
	}
	if opts&FILE_OPTION_NAME_IMPLIED != 0 && opts&FILE_OPTION_CLASS == 0 {
		return false
	}
	return true
}

// Attribute encodings, stored per attribute in BAND_ATTR_HEADER.
const (
	ATTR_ENCODING_RAW    uint64 = 0
	ATTR_ENCODING_LAYOUT uint64 = 1
	ATTR_ENCODING_CODE   uint64 = 2
)
