package dag

import (
	"reflect"
)

// Type describes the value carried by a port. The zero Type is unset and
// is rejected by NewTask; use Any for ports that take every value.
type Type struct {
	rt  reflect.Type
	set bool
}

// Any is the type accepting every value.
var Any = Type{set: true}

// TypeOf returns the Type for T.
func TypeOf[T any]() Type {
	return Type{rt: reflect.TypeFor[T](), set: true}
}

// IsSet reports whether the type was declared.
func (t Type) IsSet() bool { return t.set }

// IsAny reports whether the type accepts every value.
func (t Type) IsAny() bool {
	return t.rt == nil || (t.rt.Kind() == reflect.Interface && t.rt.NumMethod() == 0)
}

// String returns the Go name of the type.
func (t Type) String() string {
	if !t.set {
		return "unset"
	}
	if t.IsAny() {
		return "any"
	}
	return t.rt.String()
}

// CompatibleWith reports whether values produced as t can feed a port of type consumer.
// Untyped ports are compatible in both directions and checked at run time.
func (t Type) CompatibleWith(consumer Type) bool {
	if t.IsAny() || consumer.IsAny() {
		return true
	}
	return t.rt.AssignableTo(consumer.rt)
}

// Accepts reports whether v may be delivered to a port of this type.
func (t Type) Accepts(v any) bool {
	if t.IsAny() {
		return true
	}
	if v == nil {
		switch t.rt.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return true
		}
		return false
	}
	return reflect.TypeOf(v).AssignableTo(t.rt)
}

// convert returns v as a value of t. Numeric values convert between
// numeric kinds so that decoded YAML or JSON numbers fit typed ports.
func (t Type) convert(v any) (any, bool) {
	if t.Accepts(v) {
		return v, true
	}
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if isNumeric(rv.Kind()) && isNumeric(t.rt.Kind()) && rv.CanConvert(t.rt) {
		return rv.Convert(t.rt).Interface(), true
	}
	return nil, false
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
