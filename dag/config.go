package dag

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/validation"
)

// ConfigType is the declared type of a config field.
type ConfigType string

const (
	ConfigString     ConfigType = "string"
	ConfigInt        ConfigType = "int"
	ConfigFloat      ConfigType = "float"
	ConfigBool       ConfigType = "bool"
	ConfigDuration   ConfigType = "duration"
	ConfigStringList ConfigType = "list"
	ConfigMap        ConfigType = "map"
	ConfigAny        ConfigType = "any"
)

func (t ConfigType) valid() bool {
	switch t {
	case ConfigString, ConfigInt, ConfigFloat, ConfigBool, ConfigDuration,
		ConfigStringList, ConfigMap, ConfigAny:
		return true
	}
	return false
}

// ConfigField declares one configuration value of a task.
// Validate holds a go-playground/validator tag applied after coercion.
type ConfigField struct {
	Name        string
	Type        ConfigType
	Default     any
	Required    bool
	Validate    string
	Description string
}

// Field declares an optional config field with a default value.
func Field(name string, typ ConfigType, def any) ConfigField {
	return ConfigField{Name: name, Type: typ, Default: def}
}

// RequiredField declares a config field that must be supplied by run config.
func RequiredField(name string, typ ConfigType) ConfigField {
	return ConfigField{Name: name, Type: typ, Required: true}
}

func (f ConfigField) coerce(v any) (any, error) {
	switch f.Type {
	case ConfigString:
		return cast.ToStringE(v)
	case ConfigInt:
		return cast.ToIntE(v)
	case ConfigFloat:
		return cast.ToFloat64E(v)
	case ConfigBool:
		return cast.ToBoolE(v)
	case ConfigDuration:
		return cast.ToDurationE(v)
	case ConfigStringList:
		return cast.ToStringSliceE(v)
	case ConfigMap:
		return cast.ToStringMapE(v)
	default:
		return v, nil
	}
}

// value coerces v and applies the field's validator tag.
func (f ConfigField) value(v any) (any, error) {
	out, err := f.coerce(v)
	if err != nil {
		return nil, fmt.Errorf("expected %s: %w", f.Type, err)
	}
	if err := validation.Var(out, f.Validate); err != nil {
		return nil, err
	}
	return out, nil
}

// ConfigSchema is the ordered set of config fields of a definition.
type ConfigSchema struct {
	fields []ConfigField
	index  map[string]int
}

// NewConfigSchema validates fields and their defaults.
func NewConfigSchema(fields ...ConfigField) (ConfigSchema, error) {
	s := ConfigSchema{
		fields: append([]ConfigField(nil), fields...),
		index:  make(map[string]int, len(fields)),
	}
	v := validation.New()
	for i, f := range s.fields {
		field := "config." + f.Name
		if f.Name == "" {
			v.AddError(fmt.Sprintf("config[%d]", i), "name is required")
			continue
		}
		if _, dup := s.index[f.Name]; dup {
			v.AddError(field, "is declared more than once")
			continue
		}
		s.index[f.Name] = i
		if !f.Type.valid() {
			v.AddError(field, fmt.Sprintf("unknown type %q", f.Type))
			continue
		}
		if err := validation.CheckTag(f.Validate); err != nil {
			v.AddError(field, err.Error())
			continue
		}
		if f.Default != nil {
			def, err := f.value(f.Default)
			if err != nil {
				v.AddError(field, fmt.Sprintf("invalid default: %v", err))
				continue
			}
			s.fields[i].Default = def
		}
	}
	if err := v.Schema("config schema"); err != nil {
		return ConfigSchema{}, err
	}
	return s, nil
}

// Fields returns the declared fields in declaration order.
func (s ConfigSchema) Fields() []ConfigField {
	return append([]ConfigField(nil), s.fields...)
}

// Len returns the number of fields.
func (s ConfigSchema) Len() int { return len(s.fields) }

// Field returns the named field.
func (s ConfigSchema) Field(name string) (ConfigField, bool) {
	i, ok := s.index[name]
	if !ok {
		return ConfigField{}, false
	}
	return s.fields[i], true
}

// Resolve coerces values against the schema. Unknown keys and missing
// required fields are rejected; defaults fill the rest.
func (s ConfigSchema) Resolve(values map[string]any) (Config, error) {
	v := validation.New()
	for _, key := range slices.Sorted(maps.Keys(values)) {
		if _, ok := s.index[key]; !ok {
			v.AddError(key, "unknown config key")
		}
	}
	out := make(map[string]any, len(s.fields))
	for _, f := range s.fields {
		raw, ok := values[f.Name]
		if !ok || raw == nil {
			if f.Default != nil {
				out[f.Name] = f.Default
			} else if f.Required {
				v.AddError(f.Name, "is required")
			}
			continue
		}
		val, err := f.value(raw)
		if err != nil {
			v.AddError(f.Name, err.Error())
			continue
		}
		out[f.Name] = val
	}
	if err := v.Schema("config"); err != nil {
		return Config{}, err
	}
	return Config{values: out}, nil
}

// Config is a resolved, typed configuration. It is read-only.
type Config struct {
	values map[string]any
}

// Get returns the raw resolved value.
func (c Config) Get(name string) (any, bool) {
	v, ok := c.values[name]
	return v, ok
}

// Has reports whether name has a value.
func (c Config) Has(name string) bool {
	_, ok := c.values[name]
	return ok
}

// String returns the value of a string field.
func (c Config) String(name string) string { return cast.ToString(c.values[name]) }

// Int returns the value of an int field.
func (c Config) Int(name string) int { return cast.ToInt(c.values[name]) }

// Float returns the value of a float field.
func (c Config) Float(name string) float64 { return cast.ToFloat64(c.values[name]) }

// Bool returns the value of a bool field.
func (c Config) Bool(name string) bool { return cast.ToBool(c.values[name]) }

// Duration returns the value of a duration field.
func (c Config) Duration(name string) time.Duration { return cast.ToDuration(c.values[name]) }

// StringSlice returns the value of a list field.
func (c Config) StringSlice(name string) []string {
	return slices.Clone(cast.ToStringSlice(c.values[name]))
}

// Map returns a copy of a map field.
func (c Config) Map(name string) map[string]any {
	return maps.Clone(cast.ToStringMap(c.values[name]))
}

// Values returns a copy of all resolved values.
func (c Config) Values() map[string]any {
	return maps.Clone(c.values)
}

// Decode decodes the resolved values into out, a pointer to a struct
// tagged with `mapstructure`.
func (c Config) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return errors.Internal(err)
	}
	if err := dec.Decode(c.values); err != nil {
		return errors.Schema("decode config: %v", err).WithCause(err)
	}
	return nil
}
