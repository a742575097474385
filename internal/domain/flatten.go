package domain

import (
	"encoding/json"
	"fmt"
)

// NestedRecord is one entry of the last-records feed: a timestamp header with
// every variable measured at that instant.
type NestedRecord struct {
	ExtensionData json.RawMessage  `json:"ExtensionData"`
	FechaHora     json.RawMessage  `json:"FechaHora"`
	Mediciones    []SubMeasurement `json:"Mediciones"`
}

// SubMeasurement is one (variable, value) pair of a NestedRecord.
type SubMeasurement struct {
	ExtensionData json.RawMessage `json:"ExtensionData"`
	Codigo        json.RawMessage `json:"Codigo"`
	Valor         json.RawMessage `json:"Valor"`
}

// Flatten expands a nested record into one flat row per sub-measurement, in
// input order. The header timestamp and extension payload are copied into
// every row unchanged; decoding happens later under the FlatRecord schema.
func Flatten(rec NestedRecord) []RawRecord {
	rows := make([]RawRecord, 0, len(rec.Mediciones))
	for _, m := range rec.Mediciones {
		rows = append(rows, NewRawRecord(
			RawField{Name: "ExtensionData", Value: orNull(rec.ExtensionData)},
			RawField{Name: "FechaHora", Value: orNull(rec.FechaHora)},
			RawField{Name: "Codigo", Value: orNull(m.Codigo)},
			RawField{Name: "Valor", Value: orNull(m.Valor)},
		))
	}
	return rows
}

// FlattenAll flattens a sequence of nested records, keeping order.
func FlattenAll(recs []NestedRecord) []RawRecord {
	var rows []RawRecord
	for _, r := range recs {
		rows = append(rows, Flatten(r)...)
	}
	return rows
}

// DecodeNestedRecords decodes the items of a last-records list.
func DecodeNestedRecords(items []json.RawMessage) ([]NestedRecord, error) {
	out := make([]NestedRecord, 0, len(items))
	for i, item := range items {
		if !isObject(item) {
			return nil, fmt.Errorf("item %d: %w", i, ErrNonObjectItem)
		}
		var rec NestedRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			return nil, fmt.Errorf("item %d: decode nested record: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func orNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
