package attr

import (
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/indrora/pack200/pack200/classfile"
)

/*

Layout definitions describe the structure of an attribute's contents.

    B H I V        unsigned integral of 1, 2, 4 or 0 bytes
    S<int>         signed integral
    F<int>         flag word
    P<int>         bytecode position
    PO<int> O<int> bytecode offset
    N<int>[...]    count, then that many repetitions of the body
    T<int>(v,a-b)[...]()[...]
                   tag, then the body of the first case holding the tag,
                   or of the final () case
    R<k>[N]<int>   pool reference of kind k, N allows 0 for none
    K<k>[N]<int>   loadable constant of kind k
    [...][...]     callables; the first one is the attribute body
    (n)            call callable n, counting from zero

Reference kinds: U (Utf8) S (signature) C (class) D (name and type)
F (field) M (method) I (interface method) Y (method type) H (method
handle) Q (any).
Constant kinds: I J F D (numbers) S (string) C (class) M (method type)
H (method handle) Q (any loadable).

*/

var ErrBadLayout = errors.New("bad attribute layout")

type elemKind uint8

const (
	elemInt elemKind = iota
	elemRepl
	elemUnion
	elemCall
	elemRef
)

type integral struct {
	size   int
	signed bool
}

type unionCase struct {
	// Inclusive ranges; none for the default case
	ranges [][2]int64
	body   []element
}

type element struct {
	kind  elemKind
	width integral

	body  []element
	cases []unionCase
	call  int

	tags     []uint8
	nullable bool
}

// Layout is a compiled layout definition.
type Layout struct {
	text      string
	callables [][]element
}

func (l *Layout) String() string {
	return l.text
}

var refKinds = map[byte][]uint8{
	'U': {classfile.TAG_UTF8},
	'S': {classfile.TAG_UTF8},
	'C': {classfile.TAG_CLASS},
	'D': {classfile.TAG_NAMEANDTYPE},
	'F': {classfile.TAG_FIELDREF},
	'M': {classfile.TAG_METHODREF},
	'I': {classfile.TAG_INTERFACEMETHODREF},
	'Y': {classfile.TAG_METHODTYPE},
	'H': {classfile.TAG_METHODHANDLE},
	'Q': {
		classfile.TAG_UTF8, classfile.TAG_INTEGER, classfile.TAG_FLOAT, classfile.TAG_LONG,
		classfile.TAG_DOUBLE, classfile.TAG_CLASS, classfile.TAG_STRING, classfile.TAG_METHODTYPE,
		classfile.TAG_NAMEANDTYPE, classfile.TAG_FIELDREF, classfile.TAG_METHODREF,
		classfile.TAG_INTERFACEMETHODREF, classfile.TAG_METHODHANDLE, classfile.TAG_INVOKEDYNAMIC,
	},
}

var constKinds = map[byte][]uint8{
	'I': {classfile.TAG_INTEGER},
	'J': {classfile.TAG_LONG},
	'F': {classfile.TAG_FLOAT},
	'D': {classfile.TAG_DOUBLE},
	'S': {classfile.TAG_STRING},
	'C': {classfile.TAG_CLASS},
	'M': {classfile.TAG_METHODTYPE},
	'H': {classfile.TAG_METHODHANDLE},
	'Q': {
		classfile.TAG_INTEGER, classfile.TAG_FLOAT, classfile.TAG_LONG, classfile.TAG_DOUBLE,
		classfile.TAG_STRING, classfile.TAG_CLASS, classfile.TAG_METHODTYPE, classfile.TAG_METHODHANDLE,
	},
}

var layoutCache *lru.Cache[string, *Layout]

func init() {
	var err error
	layoutCache, err = lru.New[string, *Layout](256)
	if err != nil {
		panic(err)
	}
}

// ParseLayout compiles a layout definition. Compiled layouts are cached.
func ParseLayout(text string) (*Layout, error) {
	if l, ok := layoutCache.Get(text); ok {
		return l, nil
	}
	p := &layoutParser{s: text}
	l, err := p.layout()
	if err != nil {
		return nil, errors.Wrapf(ErrBadLayout, "%q at %d: %v", text, p.pos, err)
	}
	layoutCache.Add(text, l)
	return l, nil
}

type layoutParser struct {
	s   string
	pos int
}

func (p *layoutParser) peek() byte {
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *layoutParser) next() byte {
	c := p.peek()
	if c != 0 {
		p.pos++
	}
	return c
}

func (p *layoutParser) expect(c byte) error {
	if p.next() != c {
		return errors.Errorf("expected %q", c)
	}
	return nil
}

func (p *layoutParser) layout() (*Layout, error) {
	l := &Layout{text: p.s}
	if p.peek() != '[' {
		body, err := p.body()
		if err != nil {
			return nil, err
		}
		if p.pos != len(p.s) {
			return nil, errors.New("unexpected character")
		}
		l.callables = [][]element{body}
	} else {
		for p.peek() == '[' {
			p.pos++
			body, err := p.body()
			if err != nil {
				return nil, err
			}
			if err := p.expect(']'); err != nil {
				return nil, err
			}
			l.callables = append(l.callables, body)
		}
		if p.pos != len(p.s) {
			return nil, errors.New("unexpected character after callables")
		}
	}
	if err := l.checkCalls(l.callables...); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Layout) checkCalls(bodies ...[]element) error {
	for _, body := range bodies {
		for _, e := range body {
			switch e.kind {
			case elemCall:
				if e.call >= len(l.callables) {
					return errors.Errorf("call to missing callable %d", e.call)
				}
			case elemRepl:
				if err := l.checkCalls(e.body); err != nil {
					return err
				}
			case elemUnion:
				for _, c := range e.cases {
					if err := l.checkCalls(c.body); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// body parses elements up to a closing bracket or the end of input.
func (p *layoutParser) body() ([]element, error) {
	var out []element
	for p.peek() != 0 && p.peek() != ']' {
		e, err := p.element()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (p *layoutParser) integral(signed bool) (integral, error) {
	switch p.next() {
	case 'B':
		return integral{size: 1, signed: signed}, nil
	case 'H':
		return integral{size: 2, signed: signed}, nil
	case 'I':
		return integral{size: 4, signed: signed}, nil
	case 'V':
		return integral{size: 0, signed: signed}, nil
	}
	return integral{}, errors.New("expected B, H, I or V")
}

func (p *layoutParser) bracketed() ([]element, error) {
	if err := p.expect('['); err != nil {
		return nil, err
	}
	body, err := p.body()
	if err != nil {
		return nil, err
	}
	return body, p.expect(']')
}

func (p *layoutParser) element() (element, error) {
	c := p.next()
	switch c {
	case 'B', 'H', 'I', 'V':
		p.pos--
		w, err := p.integral(false)
		return element{kind: elemInt, width: w}, err

	case 'S':
		w, err := p.integral(true)
		return element{kind: elemInt, width: w}, err

	case 'F', 'O':
		w, err := p.integral(false)
		return element{kind: elemInt, width: w}, err

	case 'P':
		if p.peek() == 'O' {
			p.pos++
		}
		w, err := p.integral(false)
		return element{kind: elemInt, width: w}, err

	case 'N':
		w, err := p.integral(false)
		if err != nil {
			return element{}, err
		}
		if w.size == 0 {
			return element{}, errors.New("replication count cannot be V")
		}
		body, err := p.bracketed()
		return element{kind: elemRepl, width: w, body: body}, err

	case 'T':
		signed := false
		if p.peek() == 'S' {
			p.pos++
			signed = true
		}
		w, err := p.integral(signed)
		if err != nil {
			return element{}, err
		}
		if w.size == 0 {
			return element{}, errors.New("union tag cannot be V")
		}
		e := element{kind: elemUnion, width: w}
		for {
			if err := p.expect('('); err != nil {
				return element{}, err
			}
			var uc unionCase
			if p.peek() == ')' {
				p.pos++
			} else {
				if uc.ranges, err = p.caseValues(); err != nil {
					return element{}, err
				}
			}
			if uc.body, err = p.bracketed(); err != nil {
				return element{}, err
			}
			e.cases = append(e.cases, uc)
			if uc.ranges == nil {
				return e, nil
			}
		}

	case '(':
		end := strings.IndexByte(p.s[p.pos:], ')')
		if end < 0 {
			return element{}, errors.New("unterminated call")
		}
		n, err := strconv.Atoi(p.s[p.pos : p.pos+end])
		if err != nil || n < 0 {
			return element{}, errors.New("bad callable number")
		}
		p.pos += end + 1
		return element{kind: elemCall, call: n}, nil

	case 'R', 'K':
		kinds := refKinds
		if c == 'K' {
			kinds = constKinds
		}
		tags, ok := kinds[p.next()]
		if !ok {
			return element{}, errors.New("unknown reference kind")
		}
		e := element{kind: elemRef, tags: tags}
		if p.peek() == 'N' {
			p.pos++
			e.nullable = true
		}
		w, err := p.integral(false)
		if err != nil {
			return element{}, err
		}
		if w.size == 0 || w.size == 4 {
			return element{}, errors.New("reference must be B or H")
		}
		e.width = w
		return e, nil
	}
	return element{}, errors.Errorf("unexpected %q", c)
}

// caseValues parses "v,a-b,..." up to and including the closing paren.
func (p *layoutParser) caseValues() ([][2]int64, error) {
	end := strings.IndexByte(p.s[p.pos:], ')')
	if end < 0 {
		return nil, errors.New("unterminated union case")
	}
	list := p.s[p.pos : p.pos+end]
	p.pos += end + 1

	var out [][2]int64
	for _, item := range strings.Split(list, ",") {
		// A range separator is a '-' that does not start a number.
		split := strings.IndexByte(item[min(1, len(item)):], '-')
		if split >= 0 {
			split += min(1, len(item))
			lo, err1 := strconv.ParseInt(item[:split], 10, 64)
			hi, err2 := strconv.ParseInt(item[split+1:], 10, 64)
			if err1 != nil || err2 != nil || hi < lo {
				return nil, errors.Errorf("bad union range %q", item)
			}
			out = append(out, [2]int64{lo, hi})
			continue
		}
		v, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			return nil, errors.Errorf("bad union value %q", item)
		}
		out = append(out, [2]int64{v, v})
	}
	return out, nil
}

// match picks the body for tag value v.
func (e *element) match(v int64) []element {
	for _, c := range e.cases {
		if c.ranges == nil {
			return c.body
		}
		for _, r := range c.ranges {
			if v >= r[0] && v <= r[1] {
				return c.body
			}
		}
	}
	return nil
}
