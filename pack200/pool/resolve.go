package pool

import (
	"math"

	"github.com/pkg/errors"

	"github.com/indrora/pack200/pack200/classfile"
)

// Local is the constant pool of one class rebuilt from symbol references.
type Local struct {
	Pool  classfile.Pool
	slots map[Ref]uint16
}

// Index returns the first slot holding the symbol r.
func (l *Local) Index(r Ref) (uint16, error) {
	i, ok := l.slots[r]
	if !ok {
		return 0, errors.Wrapf(ErrBadPool, "%s %d is not in the class pool", classfile.TagName(r.Tag), r.Index)
	}
	return i, nil
}

// Resolve rebuilds a class-local pool from per-slot references. Operands
// point at the first slot that holds the referenced symbol.
func (p *Pool) Resolve(refs []Ref) (*Local, error) {
	if len(refs) == 0 || len(refs) > math.MaxUint16 {
		return nil, errors.Wrapf(ErrBadPool, "bad class pool size %d", len(refs))
	}
	l := &Local{
		Pool:  make(classfile.Pool, len(refs)),
		slots: make(map[Ref]uint16, len(refs)),
	}
	for i, r := range refs {
		if i == 0 || r.Tag == classfile.TAG_NONE {
			continue
		}
		if _, ok := p.Lookup(r); !ok {
			return nil, errors.Wrapf(ErrBadPool, "slot %d: %s %d out of range", i, classfile.TagName(r.Tag), r.Index)
		}
		if _, seen := l.slots[r]; !seen {
			l.slots[r] = uint16(i)
		}
	}

	for i, r := range refs {
		if i == 0 || r.Tag == classfile.TAG_NONE {
			continue
		}
		s, _ := p.Lookup(r)
		k := classfile.Constant{Tag: s.Tag, Text: s.Text, Value: s.Value, RefKind: s.RefKind}
		var err error
		switch s.Tag {
		case classfile.TAG_CLASS, classfile.TAG_STRING, classfile.TAG_METHODTYPE:
			k.A, err = l.Index(Ref{classfile.TAG_UTF8, s.A})
		case classfile.TAG_NAMEANDTYPE:
			if k.A, err = l.Index(Ref{classfile.TAG_UTF8, s.A}); err == nil {
				k.B, err = l.Index(Ref{classfile.TAG_UTF8, s.B})
			}
		case classfile.TAG_FIELDREF, classfile.TAG_METHODREF, classfile.TAG_INTERFACEMETHODREF:
			if k.A, err = l.Index(Ref{classfile.TAG_CLASS, s.A}); err == nil {
				k.B, err = l.Index(Ref{classfile.TAG_NAMEANDTYPE, s.B})
			}
		case classfile.TAG_METHODHANDLE:
			k.A, err = l.Index(Ref{s.RefTag, s.A})
		case classfile.TAG_INVOKEDYNAMIC:
			k.A = uint16(s.A)
			k.B, err = l.Index(Ref{classfile.TAG_NAMEANDTYPE, s.B})
		}
		if err != nil {
			return nil, errors.Wrapf(err, "slot %d", i)
		}
		l.Pool[i] = k
		if k.Wide() && (i+1 >= len(refs) || refs[i+1].Tag != classfile.TAG_NONE) {
			return nil, errors.Wrapf(ErrBadPool, "slot %d: wide constant without a free second slot", i)
		}
	}
	return l, nil
}
