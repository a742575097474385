package domain

import (
	"fmt"
	"time"
)

// Station is the typed view of a normalized Station record. Optional fields
// are nil when the service reported no data.
type Station struct {
	Code             int64
	Description      *string
	Place            *string
	Town             *string
	River            *string
	Latitude         *float64
	Longitude        *float64
	Elevation        *float64
	Enabled          bool
	Type             *string
	Transmission     *string
	HowToReach       *string
	DistanceToOutlet *string
}

// VariableCode is the typed view of a normalized VariableCode record.
type VariableCode struct {
	Code         int64
	Description  *string
	Abbreviation *string
	Unit         *string
	Decimals     *int64
}

// Association links a station to a variable measured there during
// [From, To]. Pairs may repeat.
type Association struct {
	Station int64
	Code    int64
	From    *time.Time
	To      *time.Time
	Min     *float64
	Max     *float64
}

// Catalog holds the three metadata datasets in typed form.
type Catalog struct {
	Stations     []Station
	Variables    []VariableCode
	Associations []Association
}

// NewCatalog converts normalized metadata records into typed views.
func NewCatalog(stations, variables, associations []Record) (Catalog, error) {
	var (
		c   Catalog
		err error
	)
	if c.Stations, err = convertAll(stations, StationFromRecord); err != nil {
		return Catalog{}, fmt.Errorf("stations: %w", err)
	}
	if c.Variables, err = convertAll(variables, VariableCodeFromRecord); err != nil {
		return Catalog{}, fmt.Errorf("variable codes: %w", err)
	}
	if c.Associations, err = convertAll(associations, AssociationFromRecord); err != nil {
		return Catalog{}, fmt.Errorf("associations: %w", err)
	}
	return c, nil
}

func StationFromRecord(r Record) (Station, error) {
	code, err := requireInt(r, "Codigo")
	if err != nil {
		return Station{}, err
	}
	enabled, _ := optBool(r, "Habilitada")
	return Station{
		Code:             code,
		Description:      optText(r, "Descripcion"),
		Place:            optText(r, "Lugar"),
		Town:             optText(r, "Poblado"),
		River:            optText(r, "Rio"),
		Latitude:         optFloat(r, "Latitud"),
		Longitude:        optFloat(r, "Longitud"),
		Elevation:        optFloat(r, "Cota"),
		Enabled:          enabled,
		Type:             optText(r, "Tipo"),
		Transmission:     optText(r, "Transmision"),
		HowToReach:       optText(r, "ModoDeLlegar"),
		DistanceToOutlet: optText(r, "DistanciaDesembocadura"),
	}, nil
}

func VariableCodeFromRecord(r Record) (VariableCode, error) {
	code, err := requireInt(r, "Codigo")
	if err != nil {
		return VariableCode{}, err
	}
	return VariableCode{
		Code:         code,
		Description:  optText(r, "Descripcion"),
		Abbreviation: optText(r, "Abreviatura"),
		Unit:         optText(r, "Unidad"),
		Decimals:     optInt(r, "Decimales"),
	}, nil
}

func AssociationFromRecord(r Record) (Association, error) {
	station, err := requireInt(r, "Estacion")
	if err != nil {
		return Association{}, err
	}
	code, err := requireInt(r, "Codigo")
	if err != nil {
		return Association{}, err
	}
	return Association{
		Station: station,
		Code:    code,
		From:    optTime(r, "Desde"),
		To:      optTime(r, "Hasta"),
		Min:     optFloat(r, "Minimo"),
		Max:     optFloat(r, "Maximo"),
	}, nil
}

func convertAll[T any](recs []Record, conv func(Record) (T, error)) ([]T, error) {
	out := make([]T, 0, len(recs))
	for i, r := range recs {
		v, err := conv(r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func requireInt(r Record, name string) (int64, error) {
	v, ok := r.Get(name)
	if !ok || v.IsAbsent() {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	i, ok := v.Int()
	if !ok {
		return 0, fmt.Errorf("field %s: expected an integer, got %s", name, v.Kind())
	}
	return i, nil
}

func optText(r Record, name string) *string {
	v, _ := r.Get(name)
	if s, ok := v.Str(); ok {
		return &s
	}
	return nil
}

func optFloat(r Record, name string) *float64 {
	v, _ := r.Get(name)
	if f, ok := v.Float(); ok {
		return &f
	}
	return nil
}

func optInt(r Record, name string) *int64 {
	v, _ := r.Get(name)
	if i, ok := v.Int(); ok {
		return &i
	}
	return nil
}

func optBool(r Record, name string) (bool, bool) {
	v, _ := r.Get(name)
	return v.Bool()
}

func optTime(r Record, name string) *time.Time {
	v, _ := r.Get(name)
	if t, ok := v.Time(); ok {
		return &t
	}
	return nil
}
