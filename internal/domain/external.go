package domain

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// OutputFormat selects the file encoding written by the export sink.
type OutputFormat string

const (
	FormatCSV  OutputFormat = "csv"
	FormatJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "csv" or "json" in any case.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("invalid format %q, valid values: 'csv', 'json'", s)
	}
}

// ExternalField is one field of an ExternalRecord.
type ExternalField struct {
	Name  string
	Value any
}

// ExternalRecord is a record whose values are all plain JSON-encodable Go
// values. Field order is kept.
type ExternalRecord struct {
	fields []ExternalField
}

func (r ExternalRecord) Get(name string) (any, bool) {
	for _, f := range r.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

func (r ExternalRecord) Fields() []ExternalField {
	out := make([]ExternalField, len(r.fields))
	copy(out, r.fields)
	return out
}

func (r ExternalRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalNoEscape(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := marshalNoEscape(f.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ToExternalForm re-encodes schema Timestamp fields as RFC 3339 text with
// full sub-second precision. Other fields keep their values. This is the
// document (JSON) path only; the tabular sink renders timestamps itself.
func ToExternalForm(records []Record, schema FieldSchema) []ExternalRecord {
	out := make([]ExternalRecord, 0, len(records))
	for _, rec := range records {
		fields := make([]ExternalField, 0, len(rec.fields))
		for _, f := range rec.fields {
			fields = append(fields, ExternalField{Name: f.Name, Value: externalValue(f, schema)})
		}
		out = append(out, ExternalRecord{fields: fields})
	}
	return out
}

func externalValue(f Field, schema FieldSchema) any {
	if typ, ok := schema.TypeOf(f.Name); ok && typ == FieldTimestamp {
		if t, ok := f.Value.Time(); ok {
			return t.Format(time.RFC3339Nano)
		}
	}
	return f.Value.Native()
}
