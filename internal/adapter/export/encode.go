// Package export writes normalized datasets to files.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/couchcryptid/snih-data-etl/internal/domain"
)

// csvTimeLayout matches the date rendering of common dataframe CSV writers.
const csvTimeLayout = "2006-01-02 15:04:05.999999999-07:00"

// EncodeCSV writes one header row and one row per record. Columns are the
// union of record field names in first-appearance order; a record without a
// column gets an empty cell, as does an absent value.
func EncodeCSV(w io.Writer, records []domain.Record) error {
	cols := columns(records)
	cw := csv.NewWriter(w)
	if len(cols) > 0 {
		if err := cw.Write(cols); err != nil {
			return err
		}
	}
	row := make([]string, len(cols))
	for _, rec := range records {
		for i, name := range cols {
			v, _ := rec.Get(name)
			cell, err := csvCell(v)
			if err != nil {
				return err
			}
			row[i] = cell
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func columns(records []domain.Record) []string {
	seen := make(map[string]struct{})
	var cols []string
	for _, rec := range records {
		for _, name := range rec.Names() {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			cols = append(cols, name)
		}
	}
	return cols
}

func csvCell(v domain.Value) (string, error) {
	switch v.Kind() {
	case domain.ValueAbsent:
		return "", nil
	case domain.ValueInteger:
		i, _ := v.Int()
		return strconv.FormatInt(i, 10), nil
	case domain.ValueReal:
		f, _ := v.Float()
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	case domain.ValueText:
		s, _ := v.Str()
		return s, nil
	case domain.ValueBoolean:
		b, _ := v.Bool()
		return strconv.FormatBool(b), nil
	case domain.ValueTimestamp:
		t, _ := v.Time()
		return t.Format(csvTimeLayout), nil
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, v.Raw()); err != nil {
			return "", err
		}
		return buf.String(), nil
	}
}

// EncodeJSON writes v as an indented JSON document. Non-ASCII text and
// HTML-sensitive characters are written as-is.
func EncodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// EncodeRecords writes records in the given format. The JSON form carries
// timestamps as RFC 3339 text via domain.ToExternalForm.
func EncodeRecords(w io.Writer, format domain.OutputFormat, records []domain.Record, schema domain.FieldSchema) error {
	switch format {
	case domain.FormatCSV:
		return EncodeCSV(w, records)
	case domain.FormatJSON:
		return EncodeJSON(w, domain.ToExternalForm(records, schema))
	default:
		_, err := domain.ParseOutputFormat(string(format))
		return err
	}
}
