package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RawField is one field of a raw record as received from the service.
type RawField struct {
	Name  string
	Value json.RawMessage
}

// RawRecord is a JSON object from the remote service with its key order
// preserved. It is never modified after decoding.
type RawRecord struct {
	fields []RawField
}

// NewRawRecord builds a raw record from ordered fields. A repeated name keeps
// its first position and takes the later value.
func NewRawRecord(fields ...RawField) RawRecord {
	var r RawRecord
	for _, f := range fields {
		r.set(f.Name, f.Value)
	}
	return r
}

func (r *RawRecord) set(name string, value json.RawMessage) {
	for i := range r.fields {
		if r.fields[i].Name == name {
			r.fields[i].Value = value
			return
		}
	}
	r.fields = append(r.fields, RawField{Name: name, Value: value})
}

func (r RawRecord) Len() int { return len(r.fields) }

// Get returns the raw JSON of a field.
func (r RawRecord) Get(name string) (json.RawMessage, bool) {
	for _, f := range r.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Names returns field names in document order.
func (r RawRecord) Names() []string {
	names := make([]string, len(r.fields))
	for i, f := range r.fields {
		names[i] = f.Name
	}
	return names
}

// UnmarshalJSON decodes a JSON object keeping key order.
func (r *RawRecord) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return ErrNonObjectItem
	}
	out := RawRecord{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected object key %v", tok)
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		out.set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = out
	return nil
}

func (r RawRecord) MarshalJSON() ([]byte, error) {
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
		buf.Write(key)
		buf.WriteByte(':')
		if len(f.Value) == 0 {
			buf.WriteString("null")
		} else {
			buf.Write(f.Value)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Field is one normalized field.
type Field struct {
	Name  string
	Value Value
}

// Record is a normalized record: the raw record's fields, in the same order,
// with schema-declared fields coerced.
type Record struct {
	fields []Field
}

// NewRecord builds a record from ordered fields.
func NewRecord(fields ...Field) Record {
	out := make([]Field, len(fields))
	copy(out, fields)
	return Record{fields: out}
}

func (r Record) Len() int { return len(r.fields) }

func (r Record) Get(name string) (Value, bool) {
	for _, f := range r.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Fields returns a copy of the record's fields in order.
func (r Record) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

func (r Record) Names() []string {
	names := make([]string, len(r.fields))
	for i, f := range r.fields {
		names[i] = f.Name
	}
	return names
}

func (r Record) MarshalJSON() ([]byte, error) {
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
		val, err := f.Value.MarshalJSON()
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
