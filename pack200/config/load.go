package config

import (
	"io"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/indrora/pack200/pack200/format"
)

// ATTRIBUTES is the document key that may group attribute rules:
//
//	effort: 7
//	attributes:
//	  code-attribute:StackMapTable: STRIP
const ATTRIBUTES = "attributes"

// FromMap builds a Config from loosely typed values, as decoded from YAML or
// JSON. Numbers and booleans are accepted where the property takes them.
func FromMap(m map[string]any, opts ...Option) (*Config, error) {
	props := map[string]string{}
	for k, v := range m {
		if k == ATTRIBUTES {
			var attrs map[string]string
			if err := mapstructure.WeakDecode(v, &attrs); err != nil {
				return nil, errors.Wrapf(format.ErrInvalidConfig, "%s: %v", k, err)
			}
			for ak, av := range attrs {
				props[ak] = av
			}
			continue
		}
		var s string
		if err := mapstructure.WeakDecode(v, &s); err != nil {
			return nil, errors.Wrapf(format.ErrInvalidConfig, "%s: %v", k, err)
		}
		props[k] = s
	}
	return FromProperties(props, opts...)
}

// Load reads a YAML configuration document.
func Load(r io.Reader, opts ...Option) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read configuration")
	}
	m := map[string]any{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(format.ErrInvalidConfig, "bad YAML: %v", err)
	}
	return FromMap(m, opts...)
}
