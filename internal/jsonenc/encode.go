// Package jsonenc writes deterministic, ASCII-only JSON with spaced separators.
//
// The output uses ", " between elements and ": " after keys, escapes every character outside
// printable ASCII as \uXXXX, never escapes HTML characters, writes maps with their keys sorted
// and writes floats in shortest round-trip form with a trailing ".0" when integral. Object keeps
// insertion order for documents whose field order matters.
package jsonenc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// ErrInvalidUTF8 is returned for strings that are not valid UTF-8. Such strings have no faithful
// JSON form.
var ErrInvalidUTF8 = errors.New("string is not valid UTF-8")

// Field is one member of an ordered Object.
type Field struct {
	Key   string
	Value any
}

// Object is a JSON object that is written in insertion order.
type Object []Field

// Set replaces the value of key in place, or appends it when absent.
func (o Object) Set(key string, value any) Object {
	for i := range o {
		if o[i].Key == key {
			o[i].Value = value
			return o
		}
	}
	return append(o, Field{Key: key, Value: value})
}

// Get returns the value stored under key.
func (o Object) Get(key string) (any, bool) {
	f, ok := lo.Find(o, func(f Field) bool { return f.Key == key })
	return f.Value, ok
}

// MarshalJSON implements json.Marshaler.
func (o Object) MarshalJSON() ([]byte, error) {
	return Marshal(o)
}

// Marshal encodes v.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes v to buf.
func Encode(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(x))
	case string:
		return writeString(buf, x)
	case json.Number:
		return writeNumber(buf, x)
	case float64:
		return writeFloat(buf, x)
	case float32:
		return writeFloat(buf, float64(x))
	case int:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int8:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int16:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(x, 10))
	case uint:
		buf.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint8:
		buf.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint16:
		buf.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint32:
		buf.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(x, 10))
	case map[string]any:
		return encodeMap(buf, x)
	case Object:
		return encodeObject(buf, x)
	case []any:
		return encodeArray(buf, x)
	default:
		return encodeGeneric(buf, v)
	}
	return nil
}

func encodeMap(buf *bytes.Buffer, m map[string]any) error {
	if m == nil {
		buf.WriteString("null")
		return nil
	}

	keys := lo.Keys(m)
	sort.Strings(keys)

	obj := make(Object, 0, len(keys))
	for _, k := range keys {
		obj = append(obj, Field{Key: k, Value: m[k]})
	}
	return encodeObject(buf, obj)
}

func encodeObject(buf *bytes.Buffer, obj Object) error {
	buf.WriteByte('{')
	for i, f := range obj {
		if i > 0 {
			buf.WriteString(", ")
		}
		if err := writeString(buf, f.Key); err != nil {
			return err
		}
		buf.WriteString(": ")
		if err := Encode(buf, f.Value); err != nil {
			return errors.Wrapf(err, "key %q", f.Key)
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeArray(buf *bytes.Buffer, arr []any) error {
	buf.WriteByte('[')
	for i, v := range arr {
		if i > 0 {
			buf.WriteString(", ")
		}
		if err := Encode(buf, v); err != nil {
			return errors.Wrapf(err, "index %d", i)
		}
	}
	buf.WriteByte(']')
	return nil
}

var anyMapType = reflect.TypeOf(map[string]any(nil))

// encodeGeneric handles other Go values (named or typed maps, slices, structs) through their JSON form.
func encodeGeneric(buf *bytes.Buffer, v any) error {
	rv := reflect.ValueOf(v)
	if (rv.Kind() == reflect.Map || rv.Kind() == reflect.Slice) && rv.IsNil() {
		buf.WriteString("null")
		return nil
	}
	if rv.Kind() == reflect.Map && rv.Type().ConvertibleTo(anyMapType) {
		return encodeMap(buf, rv.Convert(anyMapType).Interface().(map[string]any))
	}
	// encoding/json replaces invalid UTF-8 with U+FFFD, which would make distinct values equal
	if !validUTF8(rv) {
		return errors.Wrapf(ErrInvalidUTF8, "value of type %T", v)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "unsupported value of type %T", v)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return errors.Wrapf(err, "unsupported value of type %T", v)
	}
	return Encode(buf, generic)
}

func writeNumber(buf *bytes.Buffer, n json.Number) error {
	lit := n.String()
	if !strings.ContainsAny(lit, ".eE") {
		if _, err := strconv.ParseInt(lit, 10, 64); err == nil {
			buf.WriteString(lit)
			return nil
		}
		// Integers wider than 64 bits keep their digits.
		if isDigits(strings.TrimPrefix(lit, "-")) {
			buf.WriteString(lit)
			return nil
		}
	}

	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return errors.Errorf("invalid number %q", lit)
	}
	return writeFloat(buf, f)
}

func writeFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return errors.Errorf("non-finite number %v", f)
	}
	if f == 0 {
		if math.Signbit(f) {
			buf.WriteString("-0.0")
		} else {
			buf.WriteString("0.0")
		}
		return nil
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, err := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if err != nil {
		return errors.Wrapf(err, "format %v", f)
	}

	if exp < -4 || exp >= 16 {
		buf.WriteString(sci)
		return nil
	}

	fixed := strconv.FormatFloat(f, 'f', -1, 64)
	buf.WriteString(fixed)
	if !strings.Contains(fixed, ".") {
		buf.WriteString(".0")
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if !utf8.ValidString(s) {
		return errors.Wrapf(ErrInvalidUTF8, "%q", s)
	}

	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			switch {
			case r >= 0x20 && r <= 0x7e:
				buf.WriteRune(r)
			case r < 0x10000:
				fmt.Fprintf(buf, `\u%04x`, r)
			default:
				r -= 0x10000
				fmt.Fprintf(buf, `\u%04x\u%04x`, 0xd800+(r>>10), 0xdc00+(r&0x3ff))
			}
		}
	}
	buf.WriteByte('"')
	return nil
}

// validUTF8 reports whether every string reachable from v is valid UTF-8.
func validUTF8(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.String:
		return utf8.ValidString(v.String())
	case reflect.Pointer, reflect.Interface:
		return v.IsNil() || validUTF8(v.Elem())
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return true
		}
		for i := 0; i < v.Len(); i++ {
			if !validUTF8(v.Index(i)) {
				return false
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if !validUTF8(iter.Key()) || !validUTF8(iter.Value()) {
				return false
			}
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if v.Type().Field(i).IsExported() && !validUTF8(v.Field(i)) {
				return false
			}
		}
	}
	return true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
