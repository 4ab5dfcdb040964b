// Package pool builds the shared symbol pool of a segment.
//
// Every distinct constant of every class in a segment becomes one symbol in
// the band of its kind. Symbols get their index on first occurrence, and
// composite symbols refer to other symbols by band index, never by a
// class-local slot number.
package pool

import (
	"math"

	"github.com/pkg/errors"

	"github.com/indrora/pack200/pack200/band"
	"github.com/indrora/pack200/pack200/classfile"
	"github.com/indrora/pack200/pack200/format"
)

var ErrBadPool = errors.New("bad symbol pool")

// Symbol is one pool entry. A and B are band indices except for the
// bootstrap method index of an InvokeDynamic, which is kept as is.
type Symbol struct {
	Tag     uint8
	Text    string
	Value   uint64
	A, B    uint32
	RefKind uint8
	// Tag of the member a MethodHandle refers to
	RefTag uint8
}

// Ref names a symbol by its kind and band index.
type Ref struct {
	Tag   uint8
	Index uint32
}

// The order bands are written and read in. Every symbol only refers to
// symbols in earlier bands.
var bandOrder = []struct {
	tag  uint8
	band format.BandID
}{
	{classfile.TAG_UTF8, format.BAND_CP_UTF8},
	{classfile.TAG_INTEGER, format.BAND_CP_INT},
	{classfile.TAG_FLOAT, format.BAND_CP_FLOAT},
	{classfile.TAG_LONG, format.BAND_CP_LONG},
	{classfile.TAG_DOUBLE, format.BAND_CP_DOUBLE},
	{classfile.TAG_CLASS, format.BAND_CP_CLASS},
	{classfile.TAG_STRING, format.BAND_CP_STRING},
	{classfile.TAG_METHODTYPE, format.BAND_CP_METHODTYPE},
	{classfile.TAG_NAMEANDTYPE, format.BAND_CP_DESCR},
	{classfile.TAG_FIELDREF, format.BAND_CP_FIELD},
	{classfile.TAG_METHODREF, format.BAND_CP_METHOD},
	{classfile.TAG_INTERFACEMETHODREF, format.BAND_CP_IMETHOD},
	{classfile.TAG_METHODHANDLE, format.BAND_CP_METHODHANDLE},
	{classfile.TAG_INVOKEDYNAMIC, format.BAND_CP_INDY},
}

// Supported reports whether constants with tag can be pooled.
func Supported(tag uint8) bool {
	for _, b := range bandOrder {
		if b.tag == tag {
			return true
		}
	}
	return false
}

type Pool struct {
	bands map[uint8][]Symbol
	index map[Symbol]uint32
}

func New() *Pool {
	return &Pool{
		bands: make(map[uint8][]Symbol),
		index: make(map[Symbol]uint32),
	}
}

// Intern adds s if it is new and returns its reference.
func (p *Pool) Intern(s Symbol) Ref {
	if i, ok := p.index[s]; ok {
		return Ref{Tag: s.Tag, Index: i}
	}
	i := uint32(len(p.bands[s.Tag]))
	p.bands[s.Tag] = append(p.bands[s.Tag], s)
	p.index[s] = i
	return Ref{Tag: s.Tag, Index: i}
}

// Lookup returns the symbol r refers to.
func (p *Pool) Lookup(r Ref) (Symbol, bool) {
	b := p.bands[r.Tag]
	if uint64(r.Index) >= uint64(len(b)) {
		return Symbol{}, false
	}
	return b[r.Index], true
}

// Len is the number of symbols across every band.
func (p *Pool) Len() int {
	return len(p.index)
}

// BandLen is the number of symbols of one kind.
func (p *Pool) BandLen(tag uint8) int {
	return len(p.bands[tag])
}

// AddClass interns every constant of c, dependencies first, and returns the
// reference of each pool slot. Empty slots map to the zero Ref.
func (p *Pool) AddClass(c *classfile.Class) ([]Ref, error) {
	refs := make([]Ref, len(c.Pool))
	done := make([]bool, len(c.Pool))

	var intern func(i uint16, depth int) (Ref, error)
	intern = func(i uint16, depth int) (Ref, error) {
		if int(i) >= len(c.Pool) || c.Pool[i].Tag == classfile.TAG_NONE {
			return Ref{}, errors.Wrapf(ErrBadPool, "slot %d is empty", i)
		}
		if done[i] {
			return refs[i], nil
		}
		// Pool references are at most three levels deep (MethodHandle ->
		// Methodref -> NameAndType -> Utf8); anything deeper is a cycle.
		if depth > 4 {
			return Ref{}, errors.Wrapf(ErrBadPool, "reference cycle at slot %d", i)
		}
		k := c.Pool[i]
		if !Supported(k.Tag) {
			return Ref{}, errors.Wrapf(ErrBadPool, "slot %d has unsupported tag %s", i, classfile.TagName(k.Tag))
		}
		s := Symbol{Tag: k.Tag, Text: k.Text, Value: k.Value, RefKind: k.RefKind}
		switch k.Tag {
		case classfile.TAG_CLASS, classfile.TAG_STRING, classfile.TAG_METHODTYPE:
			a, err := intern(k.A, depth+1)
			if err != nil {
				return Ref{}, err
			}
			s.A = a.Index
		case classfile.TAG_NAMEANDTYPE, classfile.TAG_FIELDREF,
			classfile.TAG_METHODREF, classfile.TAG_INTERFACEMETHODREF:
			a, err := intern(k.A, depth+1)
			if err != nil {
				return Ref{}, err
			}
			b, err := intern(k.B, depth+1)
			if err != nil {
				return Ref{}, err
			}
			s.A, s.B = a.Index, b.Index
		case classfile.TAG_METHODHANDLE:
			a, err := intern(k.A, depth+1)
			if err != nil {
				return Ref{}, err
			}
			s.A, s.RefTag = a.Index, a.Tag
		case classfile.TAG_INVOKEDYNAMIC:
			b, err := intern(k.B, depth+1)
			if err != nil {
				return Ref{}, err
			}
			s.A, s.B = uint32(k.A), b.Index
		}
		refs[i] = p.Intern(s)
		done[i] = true
		return refs[i], nil
	}

	for i := 1; i < len(c.Pool); i++ {
		if c.Pool[i].Tag == classfile.TAG_NONE {
			continue
		}
		if _, err := intern(uint16(i), 0); err != nil {
			return nil, err
		}
	}
	return refs, nil
}

// Write serializes every band. Utf8 strings are coded as the length of the
// prefix shared with the previous string plus the remaining suffix.
func (p *Pool) Write(set *band.Set) {
	for _, b := range bandOrder {
		w := set.Band(b.band)
		syms := p.bands[b.tag]
		w.PutUvarint(uint64(len(syms)))
		prev := ""
		for _, s := range syms {
			switch s.Tag {
			case classfile.TAG_UTF8:
				n := commonPrefix(prev, s.Text)
				w.PutUvarint(uint64(n))
				w.PutBytes([]byte(s.Text[n:]))
				prev = s.Text
			case classfile.TAG_INTEGER, classfile.TAG_FLOAT, classfile.TAG_LONG, classfile.TAG_DOUBLE:
				w.PutUvarint(s.Value)
			case classfile.TAG_CLASS, classfile.TAG_STRING, classfile.TAG_METHODTYPE:
				w.PutUvarint(uint64(s.A))
			case classfile.TAG_METHODHANDLE:
				w.PutByte(s.RefKind)
				w.PutByte(s.RefTag)
				w.PutUvarint(uint64(s.A))
			default:
				w.PutUvarint(uint64(s.A))
				w.PutUvarint(uint64(s.B))
			}
		}
	}
}

func commonPrefix(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

// Read decodes the bands written by Write.
func Read(src *band.Source) (*Pool, error) {
	p := New()
	for _, b := range bandOrder {
		r := src.Band(b.band)
		count, err := r.Uvarint()
		if err != nil {
			return nil, errors.Wrapf(ErrBadPool, "%s: %v", b.band, err)
		}
		if count > uint64(r.Remaining()) {
			return nil, errors.Wrapf(ErrBadPool, "%s: %d symbols in %d bytes", b.band, count, r.Remaining())
		}
		prev := ""
		for i := uint64(0); i < count; i++ {
			s := Symbol{Tag: b.tag}
			switch b.tag {
			case classfile.TAG_UTF8:
				n, err := r.Uvarint()
				if err != nil {
					return nil, errors.Wrapf(ErrBadPool, "%s: %v", b.band, err)
				}
				suffix, err := r.Bytes()
				if err != nil {
					return nil, errors.Wrapf(ErrBadPool, "%s: %v", b.band, err)
				}
				if n > uint64(len(prev)) {
					return nil, errors.Wrapf(ErrBadPool, "%s: prefix %d longer than %q", b.band, n, prev)
				}
				s.Text = prev[:n] + string(suffix)
				prev = s.Text
			case classfile.TAG_INTEGER, classfile.TAG_FLOAT, classfile.TAG_LONG, classfile.TAG_DOUBLE:
				s.Value, err = r.Uvarint()
				if err == nil && (b.tag == classfile.TAG_INTEGER || b.tag == classfile.TAG_FLOAT) && s.Value > math.MaxUint32 {
					err = errors.Errorf("value %d out of range", s.Value)
				}
			case classfile.TAG_CLASS, classfile.TAG_STRING, classfile.TAG_METHODTYPE:
				s.A, err = p.readRef(r, classfile.TAG_UTF8)
			case classfile.TAG_NAMEANDTYPE:
				if s.A, err = p.readRef(r, classfile.TAG_UTF8); err == nil {
					s.B, err = p.readRef(r, classfile.TAG_UTF8)
				}
			case classfile.TAG_FIELDREF, classfile.TAG_METHODREF, classfile.TAG_INTERFACEMETHODREF:
				if s.A, err = p.readRef(r, classfile.TAG_CLASS); err == nil {
					s.B, err = p.readRef(r, classfile.TAG_NAMEANDTYPE)
				}
			case classfile.TAG_METHODHANDLE:
				if s.RefKind, err = r.Byte(); err == nil {
					if s.RefTag, err = r.Byte(); err == nil {
						switch s.RefTag {
						case classfile.TAG_FIELDREF, classfile.TAG_METHODREF, classfile.TAG_INTERFACEMETHODREF:
							s.A, err = p.readRef(r, s.RefTag)
						default:
							err = errors.Errorf("method handle refers to %s", classfile.TagName(s.RefTag))
						}
					}
				}
			case classfile.TAG_INVOKEDYNAMIC:
				var bsm uint64
				if bsm, err = r.Uvarint(); err == nil {
					if bsm > math.MaxUint16 {
						err = errors.Errorf("bootstrap index %d out of range", bsm)
					}
					s.A = uint32(bsm)
					if err == nil {
						s.B, err = p.readRef(r, classfile.TAG_NAMEANDTYPE)
					}
				}
			}
			if err != nil {
				return nil, errors.Wrapf(ErrBadPool, "%s[%d]: %v", b.band, i, err)
			}
			if _, dup := p.index[s]; dup {
				return nil, errors.Wrapf(ErrBadPool, "%s[%d] is a duplicate", b.band, i)
			}
			p.Intern(s)
		}
	}
	return p, nil
}

// readRef reads a band index and checks it against the symbols read so far.
func (p *Pool) readRef(r interface{ Uvarint() (uint64, error) }, tag uint8) (uint32, error) {
	v, err := r.Uvarint()
	if err != nil {
		return 0, err
	}
	if v >= uint64(len(p.bands[tag])) {
		return 0, errors.Errorf("%s index %d out of range", classfile.TagName(tag), v)
	}
	return uint32(v), nil
}
