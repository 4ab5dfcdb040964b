// Package attr decides what happens to every class file attribute and
// carries layout-coded attributes through the attribute bands.
package attr

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Context is where an attribute may appear.
type Context uint8

const (
	CONTEXT_CLASS Context = iota
	CONTEXT_FIELD
	CONTEXT_METHOD
	CONTEXT_CODE

	contextCount
)

var contextPrefixes = [contextCount]string{
	CONTEXT_CLASS:  "class-attribute:",
	CONTEXT_FIELD:  "field-attribute:",
	CONTEXT_METHOD: "method-attribute:",
	CONTEXT_CODE:   "code-attribute:",
}

func (c Context) String() string {
	switch c {
	case CONTEXT_CLASS:
		return "class"
	case CONTEXT_FIELD:
		return "field"
	case CONTEXT_METHOD:
		return "method"
	case CONTEXT_CODE:
		return "code"
	default:
		return fmt.Sprintf("context(%d)", uint8(c))
	}
}

func (c Context) Valid() bool {
	return c < contextCount
}

// Action is what the engine does with one attribute.
type Action uint8

const (
	// Keep the attribute bytes as they are.
	ACTION_PASS Action = iota
	// Drop the attribute.
	ACTION_STRIP
	// Refuse to pack the archive.
	ACTION_ERROR
	// Transcode the attribute with a layout.
	ACTION_ENCODE
)

func (a Action) String() string {
	switch a {
	case ACTION_PASS:
		return "PASS"
	case ACTION_STRIP:
		return "STRIP"
	case ACTION_ERROR:
		return "ERROR"
	case ACTION_ENCODE:
		return "ENCODE"
	default:
		return fmt.Sprintf("Action(%d)", uint8(a))
	}
}

// ParseAction accepts the three policy words, case-insensitively.
func ParseAction(s string) (Action, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PASS":
		return ACTION_PASS, nil
	case "STRIP":
		return ACTION_STRIP, nil
	case "ERROR":
		return ACTION_ERROR, nil
	}
	return 0, errors.Errorf("unknown attribute action %q", s)
}

// Key names an attribute in a context, as in "code-attribute:LineNumberTable".
type Key struct {
	Context Context
	Name    string
}

func (k Key) String() string {
	return contextPrefixes[k.Context] + k.Name
}

// IsKey reports whether s looks like an attribute key.
func IsKey(s string) bool {
	_, err := ParseKey(s)
	return err == nil
}

func ParseKey(s string) (Key, error) {
	for ctx, prefix := range contextPrefixes {
		if name, ok := strings.CutPrefix(s, prefix); ok {
			if name == "" {
				return Key{}, errors.Errorf("attribute key %q has no name", s)
			}
			return Key{Context: Context(ctx), Name: name}, nil
		}
	}
	return Key{}, errors.Errorf("%q is not an attribute key", s)
}

// Rule is the resolved treatment of one attribute key.
type Rule struct {
	Action Action
	// Layout definition, for ACTION_ENCODE only
	Layout string
}

func (r Rule) String() string {
	if r.Action == ACTION_ENCODE {
		return r.Layout
	}
	return r.Action.String()
}

// ParseRule reads a property value: a policy word or a layout definition.
func ParseRule(s string) (Rule, error) {
	if a, err := ParseAction(s); err == nil {
		return Rule{Action: a}, nil
	}
	if _, err := ParseLayout(s); err != nil {
		return Rule{}, err
	}
	return Rule{Action: ACTION_ENCODE, Layout: s}, nil
}

// State tracks one attribute instance through the engine.
type State uint8

const (
	STATE_SEEN State = iota
	STATE_ENCODED
	STATE_STRIPPED
	STATE_PASSED
	STATE_ERRORED
)

func (s State) String() string {
	switch s {
	case STATE_SEEN:
		return "SEEN"
	case STATE_ENCODED:
		return "ENCODED"
	case STATE_STRIPPED:
		return "STRIPPED"
	case STATE_PASSED:
		return "PASSED"
	case STATE_ERRORED:
		return "ERRORED"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// stateFor is the terminal state an action leads to.
func stateFor(a Action) State {
	switch a {
	case ACTION_STRIP:
		return STATE_STRIPPED
	case ACTION_ERROR:
		return STATE_ERRORED
	case ACTION_ENCODE:
		return STATE_ENCODED
	default:
		return STATE_PASSED
	}
}
