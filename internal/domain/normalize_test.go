package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEpochString = "/Date(1703185987000)/"

// 1703185987000 ms is 16:13:07 in Argentina (UTC-3), 19:13:07 UTC.
var testEpochInstant = time.Date(2023, 12, 21, 19, 13, 7, 0, time.UTC)

func rawRecord(t *testing.T, data string) RawRecord {
	t.Helper()
	var r RawRecord
	require.NoError(t, json.Unmarshal([]byte(data), &r))
	return r
}

func stationSchema(t *testing.T) FieldSchema {
	t.Helper()
	s, err := SchemaFor(KindStation)
	require.NoError(t, err)
	return s
}

func normalizeOne(t *testing.T, schema FieldSchema, data string) Record {
	t.Helper()
	rec, err := NormalizeRecord(rawRecord(t, data), schema)
	require.NoError(t, err)
	return rec
}

func TestNormalizeRecord_NumericSentinel(t *testing.T) {
	schema := stationSchema(t)

	tests := []struct {
		name   string
		field  string
		raw    string
		absent bool
		want   any
	}{
		{"integer sentinel", "Cota", `-999`, true, nil},
		{"real sentinel", "Latitud", `-999.0`, true, nil},
		{"integer zero kept", "Cota", `0`, false, int64(0)},
		{"real zero kept", "Longitud", `0.0`, false, 0.0},
		{"legit negative kept", "Longitud", `-64.25`, false, -64.25},
		{"near sentinel kept", "Cota", `-998`, false, int64(-998)},
		{"sentinel as string is not numeric", "Cota", `"-999"`, false, "-999"},
		{"empty string", "Cota", `""`, true, nil},
		{"null", "Latitud", `null`, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := normalizeOne(t, schema, `{"`+tt.field+`":`+tt.raw+`}`)
			v, ok := rec.Get(tt.field)
			require.True(t, ok)
			assert.Equal(t, tt.absent, v.IsAbsent())
			if !tt.absent {
				assert.Equal(t, tt.want, v.Native())
			}
		})
	}
}

func TestNormalizeRecord_TextSentinel(t *testing.T) {
	schema := stationSchema(t)

	for _, token := range []string{"--", "-", "S/D", "-999", " S/D ", "\t--"} {
		t.Run("absent "+token, func(t *testing.T) {
			raw, err := json.Marshal(map[string]string{"Rio": token})
			require.NoError(t, err)
			rec := normalizeOne(t, schema, string(raw))
			v, _ := rec.Get("Rio")
			assert.True(t, v.IsAbsent())
		})
	}

	for _, keep := range []string{"Paraná", "s/d", "---", " Bermejo ", "0"} {
		t.Run("kept "+keep, func(t *testing.T) {
			raw, err := json.Marshal(map[string]string{"Rio": keep})
			require.NoError(t, err)
			rec := normalizeOne(t, schema, string(raw))
			v, _ := rec.Get("Rio")
			s, ok := v.Str()
			require.True(t, ok)
			assert.Equal(t, keep, s, "non-sentinel text must pass through untrimmed")
		})
	}
}

func TestNormalizeRecord_Timestamp(t *testing.T) {
	schema := stationSchema(t)

	t.Run("epoch in string", func(t *testing.T) {
		rec := normalizeOne(t, schema, `{"Alta":"`+testEpochString+`"}`)
		v, _ := rec.Get("Alta")
		ts, ok := v.Time()
		require.True(t, ok)
		assert.True(t, testEpochInstant.Equal(ts))
		assert.Equal(t, time.UTC, ts.Location())
	})

	t.Run("epoch with offset suffix", func(t *testing.T) {
		rec := normalizeOne(t, schema, `{"Alta":"/Date(1703185987000-0300)/"}`)
		v, _ := rec.Get("Alta")
		ts, _ := v.Time()
		assert.True(t, testEpochInstant.Equal(ts))
	})

	t.Run("empty string is absent", func(t *testing.T) {
		rec := normalizeOne(t, schema, `{"Baja":""}`)
		v, _ := rec.Get("Baja")
		assert.True(t, v.IsAbsent())
	})

	t.Run("no digits", func(t *testing.T) {
		_, err := NormalizeRecord(rawRecord(t, `{"Baja":"/Date()/"}`), schema)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedTimestamp)
		assert.ErrorIs(t, err, ErrInvalidTimestampFormat)

		var mte *MalformedTimestampError
		require.True(t, errors.As(err, &mte))
		assert.Equal(t, "Baja", mte.Field)
		assert.Equal(t, `"/Date()/"`, mte.Raw)
	})

	t.Run("non-string", func(t *testing.T) {
		_, err := NormalizeRecord(rawRecord(t, `{"Registro":1703185987000}`), schema)
		assert.ErrorIs(t, err, ErrMalformedTimestamp)
	})
}

func TestNormalizeRecord_UndeclaredFieldsUntouched(t *testing.T) {
	schema := stationSchema(t)
	rec := normalizeOne(t, schema, `{"Extra":-999,"Note":"S/D","ExtensionData":{"a":[1,2]},"Codigo":1001}`)

	assert.Equal(t, []string{"Extra", "Note", "ExtensionData", "Codigo"}, rec.Names())

	extra, _ := rec.Get("Extra")
	assert.Equal(t, int64(-999), extra.Native())

	note, _ := rec.Get("Note")
	assert.Equal(t, "S/D", note.Native())

	ext, _ := rec.Get("ExtensionData")
	assert.Equal(t, ValueOpaque, ext.Kind())
	assert.JSONEq(t, `{"a":[1,2]}`, string(ext.Raw()))
}

func TestNormalizeRecord_BooleanPassesThrough(t *testing.T) {
	rec := normalizeOne(t, stationSchema(t), `{"Habilitada":false,"Ventilador":true}`)
	h, _ := rec.Get("Habilitada")
	b, ok := h.Bool()
	require.True(t, ok)
	assert.False(t, b)
}

func TestNormalizeRecord_DoesNotMutateInput(t *testing.T) {
	raw := rawRecord(t, `{"Cota":-999,"Alta":"`+testEpochString+`"}`)
	_, err := NormalizeRecord(raw, stationSchema(t))
	require.NoError(t, err)

	cota, _ := raw.Get("Cota")
	assert.Equal(t, "-999", string(cota))
	alta, _ := raw.Get("Alta")
	assert.Equal(t, `"`+testEpochString+`"`, string(alta))
}

func TestNormalize_Batch(t *testing.T) {
	schema := stationSchema(t)
	raws := []RawRecord{
		rawRecord(t, `{"Codigo":1,"Alta":"`+testEpochString+`"}`),
		rawRecord(t, `{"Codigo":2,"Alta":"garbage"}`),
		rawRecord(t, `{"Codigo":3,"Alta":""}`),
	}

	t.Run("strict aborts", func(t *testing.T) {
		recs, err := Normalize(raws, schema)
		require.Error(t, err)
		assert.Nil(t, recs)
		assert.Contains(t, err.Error(), "record 1")
		assert.ErrorIs(t, err, ErrMalformedTimestamp)
	})

	t.Run("lenient skips", func(t *testing.T) {
		recs, skipped := NormalizeLenient(raws, schema)
		require.Len(t, recs, 2)
		require.Len(t, skipped, 1)
		assert.Equal(t, 1, skipped[0].Index)
		assert.ErrorIs(t, skipped[0].Err, ErrInvalidTimestampFormat)

		first, _ := recs[0].Get("Codigo")
		last, _ := recs[1].Get("Codigo")
		assert.Equal(t, int64(1), first.Native())
		assert.Equal(t, int64(3), last.Native())
	})

	t.Run("empty input", func(t *testing.T) {
		recs, err := Normalize(nil, schema)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})
}

func TestDecodeEpochTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{"wrapped", testEpochString, testEpochInstant, false},
		{"bare digits", "1703185987000", testEpochInstant, false},
		{"milliseconds kept", "/Date(1703185987123)/", testEpochInstant.Add(123 * time.Millisecond), false},
		{"epoch zero", "/Date(0)/", time.Unix(0, 0).UTC(), false},
		{"no digits", "/Date()/", time.Time{}, true},
		{"empty", "", time.Time{}, true},
		{"overflow", "/Date(99999999999999999999999)/", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeEpochTimestamp(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTimestampFormat)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
		})
	}
}
