package attr

import (
	"github.com/pkg/errors"

	"github.com/indrora/pack200/pack200/classfile"
	"github.com/indrora/pack200/pack200/format"
)

// Engine resolves attribute rules: an exact override first, then a built-in
// layout, then the policy for unknown attributes.
type Engine struct {
	overrides map[Key]Rule
	unknown   Action
}

func NewEngine(overrides map[Key]Rule, unknown Action) (*Engine, error) {
	if unknown == ACTION_ENCODE {
		return nil, errors.New("unknown attributes cannot have a layout")
	}
	e := &Engine{overrides: make(map[Key]Rule, len(overrides)), unknown: unknown}
	for k, r := range overrides {
		if !k.Context.Valid() {
			return nil, errors.Errorf("bad attribute context %d", k.Context)
		}
		if k.Name == CODE && k.Context == CONTEXT_METHOD {
			return nil, errors.Errorf("%s cannot be overridden", k)
		}
		if r.Action == ACTION_ENCODE {
			if _, err := ParseLayout(r.Layout); err != nil {
				return nil, errors.Wrapf(err, "%s", k)
			}
		}
		e.overrides[k] = r
	}
	return e, nil
}

// Resolve returns the rule for an attribute named name in ctx.
func (e *Engine) Resolve(ctx Context, name string) Rule {
	if r, ok := e.overrides[Key{Context: ctx, Name: name}]; ok {
		return r
	}
	if l, ok := Builtin(ctx, name); ok {
		return Rule{Action: ACTION_ENCODE, Layout: l}
	}
	return Rule{Action: e.unknown}
}

// Instance is one attribute occurrence the engine looked at.
type Instance struct {
	Key    Key
	Member string
	State  State
}

type Report struct {
	Instances []Instance
}

func (r *Report) Count(s State) int {
	n := 0
	for _, i := range r.Instances {
		if i.State == s {
			n++
		}
	}
	return n
}

type filter struct {
	e      *Engine
	class  *classfile.Class
	report *Report
}

func (f *filter) attributes(ctx Context, member string, attrs []*classfile.Attribute) ([]*classfile.Attribute, error) {
	out := attrs[:0:0]
	for _, a := range attrs {
		name := f.class.AttrName(a)
		inst := Instance{Key: Key{Context: ctx, Name: name}, Member: member, State: STATE_SEEN}

		if ctx == CONTEXT_METHOD && name == CODE {
			info, err := f.code(member, a.Info)
			if err != nil {
				return nil, err
			}
			inst.State = STATE_ENCODED
			f.report.Instances = append(f.report.Instances, inst)
			out = append(out, &classfile.Attribute{Name: a.Name, Info: info})
			continue
		}

		rule := f.e.Resolve(ctx, name)
		inst.State = stateFor(rule.Action)
		f.report.Instances = append(f.report.Instances, inst)
		switch rule.Action {
		case ACTION_STRIP:
			continue
		case ACTION_ERROR:
			return nil, &format.PolicyViolationError{Attribute: name, Class: f.class.Name(), Member: member}
		}
		out = append(out, a)
	}
	return out, nil
}

// code filters the attributes nested in a Code attribute.
func (f *filter) code(member string, info []byte) ([]byte, error) {
	code, err := classfile.ParseCode(info)
	if err != nil {
		return nil, err
	}
	kept, err := f.attributes(CONTEXT_CODE, member, code.Attributes)
	if err != nil {
		return nil, err
	}
	if len(kept) == len(code.Attributes) {
		return info, nil
	}
	code.Attributes = kept
	return code.Bytes(), nil
}

// Filter applies STRIP and ERROR rules to every attribute of c. c itself is
// not modified.
func (e *Engine) Filter(c *classfile.Class) (*classfile.Class, *Report, error) {
	out := c.Clone()
	f := &filter{e: e, class: c, report: &Report{}}
	var err error
	if out.Attributes, err = f.attributes(CONTEXT_CLASS, "", c.Attributes); err != nil {
		return nil, f.report, err
	}
	for _, m := range out.Fields {
		if m.Attributes, err = f.attributes(CONTEXT_FIELD, c.MemberName(m), m.Attributes); err != nil {
			return nil, f.report, err
		}
	}
	for _, m := range out.Methods {
		if m.Attributes, err = f.attributes(CONTEXT_METHOD, c.MemberName(m), m.Attributes); err != nil {
			return nil, f.report, err
		}
	}
	return out, f.report, nil
}

// Table holds the layouts one segment uses. It is built while the segment
// is planned and only read while classes are transcoded.
type Table struct {
	defs    []format.LayoutDef
	layouts map[Key]*Layout
}

func NewTable() *Table {
	return &Table{layouts: make(map[Key]*Layout)}
}

// TableFromDefs compiles the layout table recorded in a segment header.
func TableFromDefs(defs []format.LayoutDef) (*Table, error) {
	t := NewTable()
	for _, d := range defs {
		k := Key{Context: Context(d.Context), Name: d.Name}
		if !k.Context.Valid() {
			return nil, errors.Errorf("layout for %q has bad context %d", d.Name, d.Context)
		}
		if _, dup := t.layouts[k]; dup {
			return nil, errors.Errorf("duplicate layout for %s", k)
		}
		if err := t.add(k, d.Layout); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Table) add(k Key, text string) error {
	if _, ok := t.layouts[k]; ok {
		return nil
	}
	l, err := ParseLayout(text)
	if err != nil {
		return err
	}
	t.layouts[k] = l
	t.defs = append(t.defs, format.LayoutDef{Context: uint8(k.Context), Name: k.Name, Layout: text})
	return nil
}

// Lookup returns the layout for k, or nil when k is passed through.
func (t *Table) Lookup(k Key) *Layout {
	if t == nil {
		return nil
	}
	return t.layouts[k]
}

// Defs lists the layouts in the order they were first used.
func (t *Table) Defs() []format.LayoutDef {
	return t.defs
}

// Collect records the layout of every attribute of a filtered class that
// the engine transcodes.
func (e *Engine) Collect(t *Table, c *classfile.Class) error {
	visit := func(ctx Context, attrs []*classfile.Attribute) error {
		for _, a := range attrs {
			name := c.AttrName(a)
			if ctx == CONTEXT_METHOD && name == CODE {
				continue
			}
			if r := e.Resolve(ctx, name); r.Action == ACTION_ENCODE {
				if err := t.add(Key{Context: ctx, Name: name}, r.Layout); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := visit(CONTEXT_CLASS, c.Attributes); err != nil {
		return err
	}
	for _, m := range c.Fields {
		if err := visit(CONTEXT_FIELD, m.Attributes); err != nil {
			return err
		}
	}
	for _, m := range c.Methods {
		if err := visit(CONTEXT_METHOD, m.Attributes); err != nil {
			return err
		}
		for _, a := range m.Attributes {
			if c.AttrName(a) != CODE {
				continue
			}
			code, err := classfile.ParseCode(a.Info)
			if err != nil {
				return err
			}
			if err := visit(CONTEXT_CODE, code.Attributes); err != nil {
				return err
			}
		}
	}
	return nil
}
