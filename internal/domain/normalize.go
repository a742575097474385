package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// missingNumber is the service's numeric "no data" placeholder.
const missingNumber = -999

// missingTextTokens are the service's textual "no data" placeholders.
var missingTextTokens = map[string]struct{}{
	"--":   {},
	"-":    {},
	"S/D":  {},
	"-999": {},
}

// epochDigitsRe finds the millisecond epoch inside values such as
// "/Date(1703185987000)/".
var epochDigitsRe = regexp.MustCompile(`\d+`)

// SkippedRecord is a record dropped by NormalizeLenient.
type SkippedRecord struct {
	Index int
	Err   error
}

// Normalize applies the schema to every record and aborts on the first
// record that cannot be normalized.
func Normalize(raws []RawRecord, schema FieldSchema) ([]Record, error) {
	out := make([]Record, 0, len(raws))
	for i, raw := range raws {
		rec, err := NormalizeRecord(raw, schema)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// NormalizeLenient is Normalize with a skip policy: records that fail are
// left out of the result and reported instead.
func NormalizeLenient(raws []RawRecord, schema FieldSchema) ([]Record, []SkippedRecord) {
	out := make([]Record, 0, len(raws))
	var skipped []SkippedRecord
	for i, raw := range raws {
		rec, err := NormalizeRecord(raw, schema)
		if err != nil {
			skipped = append(skipped, SkippedRecord{Index: i, Err: err})
			continue
		}
		out = append(out, rec)
	}
	return out, skipped
}

// NormalizeRecord produces a new record with the same fields in the same
// order. Fields declared by the schema are coerced; the rest are decoded
// as-is.
func NormalizeRecord(raw RawRecord, schema FieldSchema) (Record, error) {
	fields := make([]Field, 0, raw.Len())
	for _, f := range raw.fields {
		var (
			v   Value
			err error
		)
		if typ, declared := schema.TypeOf(f.Name); declared {
			v, err = normalizeField(f.Name, f.Value, typ)
		} else {
			v, err = decodeNative(f.Value)
		}
		if err != nil {
			return Record{}, fmt.Errorf("field %q: %w", f.Name, err)
		}
		fields = append(fields, Field{Name: f.Name, Value: v})
	}
	return Record{fields: fields}, nil
}

func normalizeField(name string, raw json.RawMessage, typ FieldType) (Value, error) {
	v, err := decodeNative(raw)
	if err != nil {
		return Value{}, err
	}
	if v.IsAbsent() {
		return v, nil
	}
	if s, ok := v.Str(); ok && s == "" {
		return Absent(), nil
	}

	switch typ {
	case FieldInteger, FieldReal:
		return normalizeNumber(v), nil
	case FieldText:
		return normalizeText(v), nil
	case FieldTimestamp:
		return normalizeTimestamp(name, v, raw)
	case FieldBoolean:
		return v, nil
	default:
		return Value{}, fmt.Errorf("unsupported field type %s", typ)
	}
}

func normalizeNumber(v Value) Value {
	if f, ok := v.Float(); ok && f == missingNumber {
		return Absent()
	}
	return v
}

func normalizeText(v Value) Value {
	s, ok := v.Str()
	if !ok {
		return v
	}
	if _, missing := missingTextTokens[strings.TrimSpace(s)]; missing {
		return Absent()
	}
	return v
}

func normalizeTimestamp(name string, v Value, raw json.RawMessage) (Value, error) {
	s, ok := v.Str()
	if !ok {
		return Value{}, &MalformedTimestampError{
			Field: name,
			Raw:   string(raw),
			Err:   fmt.Errorf("%w: expected a string, got %s", ErrInvalidTimestampFormat, v.Kind()),
		}
	}
	t, err := DecodeEpochTimestamp(s)
	if err != nil {
		return Value{}, &MalformedTimestampError{Field: name, Raw: string(raw), Err: err}
	}
	return Timestamp(t), nil
}

// DecodeEpochTimestamp reads the first run of digits in s as milliseconds
// since the Unix epoch and returns that instant in UTC.
func DecodeEpochTimestamp(s string) (time.Time, error) {
	digits := epochDigitsRe.FindString(s)
	if digits == "" {
		return time.Time{}, fmt.Errorf("%w: no epoch digits in %q", ErrInvalidTimestampFormat, s)
	}
	ms, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: epoch %s out of range", ErrInvalidTimestampFormat, digits)
	}
	return time.UnixMilli(ms).UTC(), nil
}
