package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	ValueAbsent ValueKind = iota
	ValueInteger
	ValueReal
	ValueText
	ValueBoolean
	ValueTimestamp
	ValueOpaque // nested JSON carried through untouched, e.g. ExtensionData
)

func (k ValueKind) String() string {
	switch k {
	case ValueAbsent:
		return "absent"
	case ValueInteger:
		return "integer"
	case ValueReal:
		return "real"
	case ValueText:
		return "text"
	case ValueBoolean:
		return "boolean"
	case ValueTimestamp:
		return "timestamp"
	case ValueOpaque:
		return "opaque"
	default:
		return fmt.Sprintf("ValueKind(%d)", uint8(k))
	}
}

// Value is a normalized field value. The zero Value is Absent.
type Value struct {
	kind ValueKind
	i    int64
	f    float64
	s    string
	b    bool
	t    time.Time
	raw  json.RawMessage
}

func Absent() Value { return Value{} }
func Integer(i int64) Value { return Value{kind: ValueInteger, i: i} }
func Real(f float64) Value { return Value{kind: ValueReal, f: f} }
func Text(s string) Value { return Value{kind: ValueText, s: s} }
func Boolean(b bool) Value { return Value{kind: ValueBoolean, b: b} }
func Timestamp(t time.Time) Value { return Value{kind: ValueTimestamp, t: t.UTC()} }
func Opaque(raw []byte) Value { return Value{kind: ValueOpaque, raw: append(json.RawMessage(nil), raw...)} }
func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsAbsent() bool { return v.kind == ValueAbsent }
func (v Value) Raw() json.RawMessage { return v.raw }

// Int returns the value as an integer. Reals are accepted when integral.
func (v Value) Int() (int64, bool) {
	switch v.kind {
	case ValueInteger:
		return v.i, true
	case ValueReal:
		if v.f == math.Trunc(v.f) && v.f >= math.MinInt64 && v.f < math.MaxInt64 {
			return int64(v.f), true
		}
	}
	return 0, false
}

// Float returns the value as a float for either numeric kind.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case ValueInteger:
		return float64(v.i), true
	case ValueReal:
		return v.f, true
	}
	return 0, false
}

func (v Value) Str() (string, bool) {
	return v.s, v.kind == ValueText
}

func (v Value) Bool() (bool, bool) {
	return v.b, v.kind == ValueBoolean
}

func (v Value) Time() (time.Time, bool) {
	return v.t, v.kind == ValueTimestamp
}

// Native returns the Go representation used by generic encoders.
func (v Value) Native() any {
	switch v.kind {
	case ValueInteger:
		return v.i
	case ValueReal:
		return v.f
	case ValueText:
		return v.s
	case ValueBoolean:
		return v.b
	case ValueTimestamp:
		return v.t
	case ValueOpaque:
		return v.raw
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ValueAbsent:
		return []byte("null"), nil
	case ValueInteger:
		return strconv.AppendInt(nil, v.i, 10), nil
	case ValueReal:
		return json.Marshal(v.f)
	case ValueText:
		return marshalNoEscape(v.s)
	case ValueBoolean:
		return strconv.AppendBool(nil, v.b), nil
	case ValueTimestamp:
		return json.Marshal(v.t.Format(time.RFC3339Nano))
	case ValueOpaque:
		return v.raw, nil
	default:
		return nil, fmt.Errorf("marshal value: unknown kind %s", v.kind)
	}
}

func (v Value) String() string {
	switch v.kind {
	case ValueAbsent:
		return "<absent>"
	case ValueTimestamp:
		return v.t.Format(time.RFC3339Nano)
	case ValueOpaque:
		return string(v.raw)
	default:
		return fmt.Sprint(v.Native())
	}
}

// decodeNative maps a raw JSON scalar to a Value without any coercion.
func decodeNative(raw json.RawMessage) (Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Absent(), nil
	}
	switch raw[0] {
	case 'n':
		return Absent(), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Value{}, fmt.Errorf("decode boolean: %w", err)
		}
		return Boolean(b), nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, fmt.Errorf("decode string: %w", err)
		}
		return Text(s), nil
	case '{', '[':
		return Opaque(raw), nil
	}
	lit := string(raw)
	if !bytes.ContainsAny(raw, ".eE") {
		if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
			return Integer(i), nil
		}
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return Value{}, fmt.Errorf("decode number %q: %w", lit, err)
	}
	return Real(f), nil
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
