package component

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"

	dcerrors "github.com/wehubfusion/datacleaner/pkg/errors"
)

// PropertyType is the declared type of a configuration property
type PropertyType string

const (
	PropertyString     PropertyType = "string"
	PropertyInt        PropertyType = "int"
	PropertyFloat      PropertyType = "float"
	PropertyBool       PropertyType = "bool"
	PropertyStringList PropertyType = "string-list"
	PropertyDuration   PropertyType = "duration"
)

// PropertySpec describes one configurable property of a descriptor
type PropertySpec struct {
	Name        string
	Type        PropertyType
	Required    bool
	Default     interface{}
	Description string
	// Choices restricts string values
	Choices []string
}

// Properties is an ordered bag of property values. It has value
// semantics: Set returns a new bag and never changes the receiver.
type Properties struct {
	keys   []string
	values map[string]interface{}
}

// NewProperties builds a bag from alternating name, value pairs
func NewProperties(pairs ...interface{}) Properties {
	var p Properties
	for i := 0; i+1 < len(pairs); i += 2 {
		p = p.Set(cast.ToString(pairs[i]), pairs[i+1])
	}
	return p
}

// PropertiesFromMap builds a bag from a map, ordered by name
func PropertiesFromMap(m map[string]interface{}) Properties {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	var p Properties
	for _, k := range names {
		p = p.Set(k, m[k])
	}
	return p
}

// Set returns a copy of the bag with name set to value
func (p Properties) Set(name string, value interface{}) Properties {
	out := Properties{keys: append([]string(nil), p.keys...), values: make(map[string]interface{}, len(p.values)+1)}
	for k, v := range p.values {
		out.values[k] = v
	}
	if _, exists := out.values[name]; !exists {
		out.keys = append(out.keys, name)
	}
	out.values[name] = value
	return out
}

// Get returns the raw value
func (p Properties) Get(name string) (interface{}, bool) {
	v, ok := p.values[name]
	return v, ok
}

// Has reports whether name is set
func (p Properties) Has(name string) bool {
	_, ok := p.values[name]
	return ok
}

// Names returns the property names in insertion order
func (p Properties) Names() []string {
	return append([]string(nil), p.keys...)
}

// Len returns the number of properties
func (p Properties) Len() int { return len(p.keys) }

// Map returns a copy of the values
func (p Properties) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

func (p Properties) String(name string) string {
	return cast.ToString(p.values[name])
}

func (p Properties) Int(name string) int {
	return cast.ToInt(p.values[name])
}

func (p Properties) Int64(name string) int64 {
	return cast.ToInt64(p.values[name])
}

func (p Properties) Float(name string) float64 {
	return cast.ToFloat64(p.values[name])
}

func (p Properties) Bool(name string) bool {
	return cast.ToBool(p.values[name])
}

func (p Properties) StringList(name string) []string {
	return cast.ToStringSlice(p.values[name])
}

func (p Properties) Duration(name string) time.Duration {
	return cast.ToDuration(p.values[name])
}

// Validate checks the bag against a schema and returns a normalized copy:
// defaults applied and values coerced to their declared type. Unknown,
// missing required and mistyped properties are configuration errors.
func (p Properties) Validate(component string, schema []PropertySpec) (Properties, error) {
	specs := make(map[string]PropertySpec, len(schema))
	for _, s := range schema {
		specs[s.Name] = s
	}
	for _, k := range p.keys {
		if _, ok := specs[k]; !ok {
			return Properties{}, dcerrors.Configuration("%s has no property %q", component, k)
		}
	}

	var out Properties
	for _, s := range schema {
		raw, ok := p.values[s.Name]
		if !ok || raw == nil {
			if s.Required && s.Default == nil {
				return Properties{}, dcerrors.Configuration("property %q of %s is required", s.Name, component)
			}
			if s.Default == nil {
				continue
			}
			raw = s.Default
		}
		v, err := coerce(s, raw)
		if err != nil {
			return Properties{}, dcerrors.NewError(dcerrors.CodeConfiguration,
				fmt.Sprintf("property %q of %s", s.Name, component), err)
		}
		if s.Required && isEmpty(v) {
			return Properties{}, dcerrors.Configuration("property %q of %s is required", s.Name, component)
		}
		out = out.Set(s.Name, v)
	}
	return out, nil
}

func coerce(s PropertySpec, raw interface{}) (interface{}, error) {
	switch s.Type {
	case PropertyInt:
		return cast.ToInt64E(raw)
	case PropertyFloat:
		return cast.ToFloat64E(raw)
	case PropertyBool:
		return cast.ToBoolE(raw)
	case PropertyStringList:
		return cast.ToStringSliceE(raw)
	case PropertyDuration:
		return cast.ToDurationE(raw)
	default:
		v, err := cast.ToStringE(raw)
		if err != nil {
			return nil, err
		}
		if len(s.Choices) == 0 {
			return v, nil
		}
		choice, ok := choose(s.Choices, v)
		if !ok {
			return nil, fmt.Errorf("value %q is not one of %v", v, s.Choices)
		}
		return choice, nil
	}
}

func isEmpty(v interface{}) bool {
	switch t := v.(type) {
	case string:
		return t == ""
	case []string:
		return len(t) == 0
	}
	return false
}

// choose matches v against the choices ignoring case and returns the
// declared spelling
func choose(choices []string, v string) (string, bool) {
	for _, c := range choices {
		if strings.EqualFold(c, v) {
			return c, true
		}
	}
	return "", false
}
