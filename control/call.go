// SPDX-License-Identifier: MIT
//
// Copyright © 2024 The go-roadtest authors.

package control

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind identifies the type of a Value.
type Kind int

const (
	// KindInt indicates the value holds an integer.
	KindInt Kind = iota

	// KindBool indicates the value holds a boolean.
	KindBool

	// KindString indicates the value holds a string.
	KindString

	// KindBytes indicates the value holds a byte slice.
	KindBytes

	// KindList indicates the value holds a list of values.
	KindList
)

// Value is a single argument travelling over a log channel.
//
// Only the types that bus models actually exchange are representable:
// integers, booleans, strings, byte strings and lists of those.
type Value struct {
	kind Kind
	i    int64
	b    bool
	s    string
	data []byte
	list []Value
}

// Int returns an integer Value.
func Int(v int64) Value {
	return Value{kind: KindInt, i: v}
}

// Bool returns a boolean Value.
func Bool(v bool) Value {
	return Value{kind: KindBool, b: v}
}

// Str returns a string Value.
func Str(v string) Value {
	return Value{kind: KindString, s: v}
}

// Bytes returns a byte string Value.
//
// The data is copied so later mutation of the slice does not alter the Value.
func Bytes(v []byte) Value {
	if len(v) == 0 {
		return Value{kind: KindBytes}
	}
	return Value{kind: KindBytes, data: append([]byte(nil), v...)}
}

// List returns a list Value.
func List(vv ...Value) Value {
	if len(vv) == 0 {
		return Value{kind: KindList}
	}
	return Value{kind: KindList, list: vv}
}

// Kind returns the kind of the value.
func (v Value) Kind() Kind {
	return v.kind
}

// AsInt returns the integer held by the value.
func (v Value) AsInt() (int64, error) {
	if v.kind != KindInt {
		return 0, ValueTypeError{Want: KindInt, Got: v.kind}
	}
	return v.i, nil
}

// AsBool returns the boolean held by the value.
func (v Value) AsBool() (bool, error) {
	if v.kind != KindBool {
		return false, ValueTypeError{Want: KindBool, Got: v.kind}
	}
	return v.b, nil
}

// AsStr returns the string held by the value.
func (v Value) AsStr() (string, error) {
	if v.kind != KindString {
		return "", ValueTypeError{Want: KindString, Got: v.kind}
	}
	return v.s, nil
}

// AsBytes returns the byte string held by the value.
func (v Value) AsBytes() ([]byte, error) {
	if v.kind != KindBytes {
		return nil, ValueTypeError{Want: KindBytes, Got: v.kind}
	}
	return v.data, nil
}

// AsList returns the list held by the value.
func (v Value) AsList() ([]Value, error) {
	if v.kind != KindList {
		return nil, ValueTypeError{Want: KindList, Got: v.kind}
	}
	return v.list, nil
}

// MarshalJSON encodes the value into its wire form.
//
// Integers, booleans and strings map onto the corresponding JSON types.
// Byte strings become {"bytes":"<hex>"} so they cannot be confused with
// plain strings. Lists become JSON arrays.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInt:
		return json.Marshal(v.i)
	case KindBool:
		return json.Marshal(v.b)
	case KindString:
		return json.Marshal(v.s)
	case KindBytes:
		return json.Marshal(map[string]string{"bytes": hex.EncodeToString(v.data)})
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	}
	return nil, fmt.Errorf("unknown value kind %d", v.kind)
}

// UnmarshalJSON decodes the wire form produced by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Str(s)
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
		return nil
	case '{':
		var m map[string]string
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		h, ok := m["bytes"]
		if !ok || len(m) != 1 {
			return fmt.Errorf("unknown value object %s", data)
		}
		d, err := hex.DecodeString(h)
		if err != nil {
			return fmt.Errorf("bad bytes value: %w", err)
		}
		if len(d) == 0 {
			d = nil
		}
		*v = Value{kind: KindBytes, data: d}
		return nil
	case '[':
		var vv []Value
		if err := json.Unmarshal(data, &vv); err != nil {
			return err
		}
		*v = List(vv...)
		return nil
	}
	i, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("bad integer value %s", data)
	}
	*v = Int(i)
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindString:
		return strconv.Quote(v.s)
	case KindBytes:
		return "0x" + hex.EncodeToString(v.data)
	case KindList:
		var b bytes.Buffer
		b.WriteByte('[')
		for i, e := range v.list {
			if i != 0 {
				b.WriteString(", ")
			}
			b.WriteString(e.String())
		}
		b.WriteByte(']')
		return b.String()
	}
	return "?"
}

// Args is the ordered positional argument list of a call.
type Args []Value

// Int returns the integer at position i.
func (a Args) Int(i int) (int64, error) {
	v, err := a.at(i)
	if err != nil {
		return 0, err
	}
	return v.AsInt()
}

// Bool returns the boolean at position i.
func (a Args) Bool(i int) (bool, error) {
	v, err := a.at(i)
	if err != nil {
		return false, err
	}
	return v.AsBool()
}

// Str returns the string at position i.
func (a Args) Str(i int) (string, error) {
	v, err := a.at(i)
	if err != nil {
		return "", err
	}
	return v.AsStr()
}

// Bytes returns the byte string at position i.
func (a Args) Bytes(i int) ([]byte, error) {
	v, err := a.at(i)
	if err != nil {
		return nil, err
	}
	return v.AsBytes()
}

func (a Args) at(i int) (Value, error) {
	if i < 0 || i >= len(a) {
		return Value{}, fmt.Errorf("missing argument %d", i)
	}
	return a[i], nil
}

// Kwargs is the keyword argument map of a call.
type Kwargs map[string]Value

// Int returns the named integer, or def if the keyword is absent.
func (k Kwargs) Int(name string, def int64) (int64, error) {
	v, ok := k[name]
	if !ok {
		return def, nil
	}
	i, err := v.AsInt()
	if err != nil {
		return 0, fmt.Errorf("keyword %q: %w", name, err)
	}
	return i, nil
}

// Str returns the named string, or def if the keyword is absent.
func (k Kwargs) Str(name, def string) (string, error) {
	v, ok := k[name]
	if !ok {
		return def, nil
	}
	s, err := v.AsStr()
	if err != nil {
		return "", fmt.Errorf("keyword %q: %w", name, err)
	}
	return s, nil
}

// Get returns the named value and whether it was present.
func (k Kwargs) Get(name string) (Value, bool) {
	v, ok := k[name]
	return v, ok
}

// Call is one record on a log channel: a method invocation on a dotted
// target, with positional and keyword arguments.
//
// On the control channel the target names a bus ("gpio", "i2c", "platform");
// on the operations log it is always "mock".
type Call struct {
	Target string `json:"target"`
	Method string `json:"method"`
	Args   Args   `json:"args,omitempty"`
	Kwargs Kwargs `json:"kwargs,omitempty"`
}

// NewCall constructs a call with positional arguments only.
func NewCall(target, method string, args ...Value) Call {
	return Call{Target: target, Method: method, Args: args}
}

// Encode returns the single-line wire form of the call.
//
// The returned slice does not include the line terminator.
func (c Call) Encode() ([]byte, error) {
	if c.Target == "" || c.Method == "" {
		return nil, fmt.Errorf("call requires target and method: %s", c)
	}
	return json.Marshal(c)
}

// ParseCall decodes a single line into a Call.
func ParseCall(line []byte) (Call, error) {
	var c Call
	if err := json.Unmarshal(line, &c); err != nil {
		return Call{}, fmt.Errorf("malformed call %q: %w", line, err)
	}
	if c.Target == "" || c.Method == "" {
		return Call{}, fmt.Errorf("call missing target or method: %q", line)
	}
	return c, nil
}

// String renders the call in a readable form, e.g.
//
//	i2c.load_model("simple-smbus", regbytes=2)
func (c Call) String() string {
	var b bytes.Buffer
	b.WriteString(c.Target)
	b.WriteByte('.')
	b.WriteString(c.Method)
	b.WriteByte('(')
	for i, a := range c.Args {
		if i != 0 {
			b.WriteString(", ")
		}
		b.WriteString(a.String())
	}
	names := make([]string, 0, len(c.Kwargs))
	for name := range c.Kwargs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if b.Bytes()[b.Len()-1] != '(' {
			b.WriteString(", ")
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(c.Kwargs[name].String())
	}
	b.WriteByte(')')
	return b.String()
}

// ValueTypeError indicates a value was accessed as the wrong kind.
type ValueTypeError struct {
	Want Kind
	Got  Kind
}

func (e ValueTypeError) Error() string {
	return fmt.Sprintf("value is %s, not %s", kindName(e.Got), kindName(e.Want))
}

func kindName(k Kind) string {
	switch k {
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	}
	return "unknown"
}
