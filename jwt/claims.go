package jwt

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

// Kind is the kind of JSON value held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a JSON value: null, bool, number, string, array or object.  The zero
// Value is null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	a    []Value
	o    map[string]Value
}

func NullValue() Value                           { return Value{} }                       // NullValue returns a null Value
func BoolValue(b bool) Value                     { return Value{kind: KindBool, b: b} }   // BoolValue returns a bool Value
func NumberValue(n float64) Value                { return Value{kind: KindNumber, n: n} } // NumberValue returns a number Value
func StringValue(s string) Value                 { return Value{kind: KindString, s: s} } // StringValue returns a string Value
func ArrayValue(vs ...Value) Value               { return Value{kind: KindArray, a: vs} } // ArrayValue returns an array Value
func ObjectValue(m map[string]Value) Value       { return Value{kind: KindObject, o: m} } // ObjectValue returns an object Value
func (v Value) Kind() Kind                       { return v.kind }                        // Kind returns the value's kind
func (v Value) IsNull() bool                     { return v.kind == KindNull }            // IsNull returns true for a null value
func (v Value) Bool() (bool, bool)               { return v.b, v.kind == KindBool }       // Bool returns the value and true if it's a bool
func (v Value) Number() (float64, bool)          { return v.n, v.kind == KindNumber }     // Number returns the value and true if it's a number
func (v Value) Str() (string, bool)              { return v.s, v.kind == KindString }     // Str returns the value and true if it's a string
func (v Value) Array() ([]Value, bool)           { return v.a, v.kind == KindArray }      // Array returns the value and true if it's an array
func (v Value) Object() (map[string]Value, bool) { return v.o, v.kind == KindObject }     // Object returns the value and true if it's an object

// FromAny converts a value produced by encoding/json (into an interface{}) to
// a Value.
func FromAny(in interface{}) (Value, error) {
	const op = "jwt.FromAny"
	switch t := in.(type) {
	case nil:
		return NullValue(), nil
	case bool:
		return BoolValue(t), nil
	case float64:
		return NumberValue(t), nil
	case float32:
		return NumberValue(float64(t)), nil
	case int:
		return NumberValue(float64(t)), nil
	case int64:
		return NumberValue(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%s: invalid number %q: %w", op, t, ErrInvalidClaims)
		}
		return NumberValue(f), nil
	case string:
		return StringValue(t), nil
	case []interface{}:
		vs := make([]Value, 0, len(t))
		for _, e := range t {
			v, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			vs = append(vs, v)
		}
		return ArrayValue(vs...), nil
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			v, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			m[k] = v
		}
		return ObjectValue(m), nil
	default:
		return Value{}, fmt.Errorf("%s: unsupported type %T: %w", op, in, ErrInvalidClaims)
	}
}

// Any converts the Value back to the types used by encoding/json.
func (v Value) Any() interface{} {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]interface{}, 0, len(v.a))
		for _, e := range v.a {
			out = append(out, e.Any())
		}
		return out
	case KindObject:
		out := make(map[string]interface{}, len(v.o))
		for k, e := range v.o {
			out[k] = e.Any()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON encodes the value as JSON
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindNumber && (math.IsNaN(v.n) || math.IsInf(v.n, 0)) {
		return nil, fmt.Errorf("jwt.(Value).MarshalJSON: number %v is not valid JSON: %w", v.n, ErrInvalidClaims)
	}
	return json.Marshal(v.Any())
}

// UnmarshalJSON decodes a JSON value
func (v *Value) UnmarshalJSON(b []byte) error {
	var raw interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	nv, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = nv
	return nil
}

// Claims is a set of JWT claims.
type Claims map[string]Value

// Well known claim names
const (
	ClaimSubject           = "sub"
	ClaimIssuer            = "iss"
	ClaimAudience          = "aud"
	ClaimExpiry            = "exp"
	ClaimIssuedAt          = "iat"
	ClaimNotBefore         = "nbf"
	ClaimPreferredUsername = "preferred_username"
	ClaimEmail             = "email"
	ClaimSessionState      = "session_state"
)

// Str returns the named claim if it's a string.
func (c Claims) Str(name string) (string, bool) {
	v, ok := c[name]
	if !ok {
		return "", false
	}
	return v.Str()
}

// Number returns the named claim if it's a number.
func (c Claims) Number(name string) (float64, bool) {
	v, ok := c[name]
	if !ok {
		return 0, false
	}
	return v.Number()
}

// Bool returns the named claim if it's a bool.
func (c Claims) Bool(name string) (bool, bool) {
	v, ok := c[name]
	if !ok {
		return false, false
	}
	return v.Bool()
}

// Time returns the named NumericDate claim.
func (c Claims) Time(name string) (time.Time, bool) {
	n, ok := c.Number(name)
	if !ok {
		return time.Time{}, false
	}
	sec, frac := math.Modf(n)
	return time.Unix(int64(sec), int64(frac*1e9)), true
}

func (c Claims) Subject() string {
	s, _ := c.Str(ClaimSubject)
	return s
}

func (c Claims) Issuer() string {
	s, _ := c.Str(ClaimIssuer)
	return s
}

// Username returns the preferred_username claim.
func (c Claims) Username() string {
	s, _ := c.Str(ClaimPreferredUsername)
	return s
}

// ExpiresAt returns the exp claim, or the zero time
func (c Claims) ExpiresAt() time.Time {
	t, _ := c.Time(ClaimExpiry)
	return t
}

// IssuedAt returns the iat claim, or the zero time
func (c Claims) IssuedAt() time.Time {
	t, _ := c.Time(ClaimIssuedAt)
	return t
}

// Audience returns the aud claim which can either be a single string or an
// array of strings.
func (c Claims) Audience() []string {
	v, ok := c[ClaimAudience]
	if !ok {
		return nil
	}
	if s, ok := v.Str(); ok {
		return []string{s}
	}
	vs, ok := v.Array()
	if !ok {
		return nil
	}
	auds := make([]string, 0, len(vs))
	for _, e := range vs {
		if s, ok := e.Str(); ok {
			auds = append(auds, s)
		}
	}
	return auds
}

// Names returns the claim names in sorted order.
func (c Claims) Names() []string {
	names := make([]string, 0, len(c))
	for k := range c {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
