package classfile

// Handler is one exception table entry of a Code attribute.
type Handler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16
}

// Code is the decoded body of a Code attribute.
type Code struct {
	MaxStack   uint16
	MaxLocals  uint16
	Code       []byte
	Handlers   []Handler
	Attributes []*Attribute
}

// ParseCode decodes the contents of a Code attribute.
func ParseCode(info []byte) (*Code, error) {
	r := &cursor{b: info}
	c := &Code{MaxStack: r.u2(), MaxLocals: r.u2()}
	size := r.u4()
	if r.err == nil && uint64(size) > uint64(len(info)) {
		return nil, malformedf("code length %d exceeds attribute size", size)
	}
	c.Code = append([]byte(nil), r.take(int(size))...)
	n := r.u2()
	for i := 0; i < int(n) && r.err == nil; i++ {
		c.Handlers = append(c.Handlers, Handler{
			StartPC:   r.u2(),
			EndPC:     r.u2(),
			HandlerPC: r.u2(),
			CatchType: r.u2(),
		})
	}
	c.Attributes = r.attributes()
	if r.err != nil {
		return nil, r.err
	}
	if r.pos != len(info) {
		return nil, malformedf("%d trailing bytes in Code", len(info)-r.pos)
	}
	return c, nil
}

// Bytes serializes the Code attribute contents.
func (c *Code) Bytes() []byte {
	w := &buffer{}
	w.u2(c.MaxStack)
	w.u2(c.MaxLocals)
	w.u4(uint32(len(c.Code)))
	w.raw(c.Code)
	w.u2(uint16(len(c.Handlers)))
	for _, h := range c.Handlers {
		w.u2(h.StartPC)
		w.u2(h.EndPC)
		w.u2(h.HandlerPC)
		w.u2(h.CatchType)
	}
	w.attributes(c.Attributes)
	return w.b
}
