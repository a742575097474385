package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	StatusOperational  = "operational"
	StatusNonReporting = "non-reporting"

	unknownPlaceholder = "unknown"
)

// FacilityConfig carries the constants stamped on every facility record.
type FacilityConfig struct {
	Region      string
	Territory   string
	FacilitySet string

	// ClimateZones is optional; without it ClimateZone stays empty.
	ClimateZones ClimateZoneResolver
}

// ClimateZoneResolver derives a climate zone from a station position.
type ClimateZoneResolver interface {
	ClimateZone(lat, lon float64) (string, bool)
}

// FacilityRecord is the standardized description of one monitoring station.
type FacilityRecord struct {
	Identifier      string             `json:"identifier"`
	Name            string             `json:"name"`
	Position        string             `json:"position"`
	OperatingStatus string             `json:"operatingStatus"`
	Region          string             `json:"region"`
	Territory       string             `json:"territory"`
	Description     string             `json:"description"`
	FacilitySet     string             `json:"facilitySet"`
	ClimateZone     string             `json:"climateZone,omitempty"`
	Observations    []ObservedVariable `json:"observations"`
}

// ObservedVariable is one joined association as it appears on a facility.
type ObservedVariable struct {
	Code         int64      `json:"code"`
	Name         string     `json:"name,omitempty"`
	Abbreviation string     `json:"abbreviation,omitempty"`
	Unit         string     `json:"unit,omitempty"`
	From         *time.Time `json:"from,omitempty"`
	To           *time.Time `json:"to,omitempty"`
}

// JoinedAssociation is an association enriched with its catalog variable.
type JoinedAssociation struct {
	Association
	Variable VariableCode
}

type DiagnosticKind string

const (
	DiagnosticDuplicateStation DiagnosticKind = "duplicate_station"
	DiagnosticNoAssociations   DiagnosticKind = "no_associations"
	DiagnosticJoinShrinkage    DiagnosticKind = "join_shrinkage"
	DiagnosticMissingPosition  DiagnosticKind = "missing_position"
)

// Diagnostic is a non-fatal finding raised while synthesizing a facility.
type Diagnostic struct {
	Kind    DiagnosticKind
	Station int64
	Before  int
	After   int
	Message string
}

// Synthesis is the outcome of SynthesizeFacility.
type Synthesis struct {
	Facility    FacilityRecord
	Joined      []JoinedAssociation
	Diagnostics []Diagnostic
}

// SynthesizeFacility joins one station with its associations and the
// variable catalog and maps the result onto a FacilityRecord. It is pure:
// the same inputs always yield the same output.
//
// When several stations share the code the first one wins and a
// DiagnosticDuplicateStation is reported. Associations whose variable is not
// in the catalog are dropped (inner join) and reported as shrinkage.
func SynthesizeFacility(code int64, cat Catalog, cfg FacilityConfig) (Synthesis, error) {
	var syn Synthesis

	station, matches := findStation(cat.Stations, code)
	if matches == 0 {
		return Synthesis{}, fmt.Errorf("%w: %d", ErrStationNotFound, code)
	}
	if matches > 1 {
		syn.Diagnostics = append(syn.Diagnostics, Diagnostic{
			Kind:    DiagnosticDuplicateStation,
			Station: code,
			Before:  matches,
			After:   1,
			Message: fmt.Sprintf("%d stations share code %d, using the first", matches, code),
		})
	}

	selected := associationsFor(cat.Associations, code)
	if len(selected) == 0 {
		syn.Diagnostics = append(syn.Diagnostics, Diagnostic{
			Kind:    DiagnosticNoAssociations,
			Station: code,
			Message: fmt.Sprintf("no associations found for station %d", code),
		})
	}

	syn.Joined = joinVariables(selected, cat.Variables)
	if len(syn.Joined) < len(selected) {
		syn.Diagnostics = append(syn.Diagnostics, Diagnostic{
			Kind:    DiagnosticJoinShrinkage,
			Station: code,
			Before:  len(selected),
			After:   len(syn.Joined),
			Message: fmt.Sprintf("variable catalog join kept %d of %d associations", len(syn.Joined), len(selected)),
		})
	}

	position, ok := formatPosition(station)
	if !ok {
		syn.Diagnostics = append(syn.Diagnostics, Diagnostic{
			Kind:    DiagnosticMissingPosition,
			Station: code,
			Message: fmt.Sprintf("station %d has no longitude/latitude", code),
		})
	}

	syn.Facility = FacilityRecord{
		Identifier:      strconv.FormatInt(station.Code, 10),
		Name:            deref(station.Description, ""),
		Position:        position,
		OperatingStatus: operatingStatus(station.Enabled),
		Region:          cfg.Region,
		Territory:       cfg.Territory,
		Description:     describe(station),
		FacilitySet:     cfg.FacilitySet,
		ClimateZone:     climateZone(cfg.ClimateZones, station),
		Observations:    observations(syn.Joined),
	}
	return syn, nil
}

func findStation(stations []Station, code int64) (Station, int) {
	var (
		first   Station
		matches int
	)
	for _, s := range stations {
		if s.Code != code {
			continue
		}
		if matches == 0 {
			first = s
		}
		matches++
	}
	return first, matches
}

func associationsFor(assocs []Association, station int64) []Association {
	var out []Association
	for _, a := range assocs {
		if a.Station == station {
			out = append(out, a)
		}
	}
	return out
}

// joinVariables keeps association order. A code repeated in the catalog
// resolves to its first entry.
func joinVariables(assocs []Association, variables []VariableCode) []JoinedAssociation {
	byCode := make(map[int64]VariableCode, len(variables))
	for _, v := range variables {
		if _, seen := byCode[v.Code]; !seen {
			byCode[v.Code] = v
		}
	}
	out := make([]JoinedAssociation, 0, len(assocs))
	for _, a := range assocs {
		v, ok := byCode[a.Code]
		if !ok {
			continue
		}
		out = append(out, JoinedAssociation{Association: a, Variable: v})
	}
	return out
}

// formatPosition renders "LON LAT [ELEV]". Elevation is left out entirely
// when absent.
func formatPosition(s Station) (string, bool) {
	if s.Longitude == nil || s.Latitude == nil {
		return "", false
	}
	pos := fmt.Sprintf("%f %f", *s.Longitude, *s.Latitude)
	if s.Elevation != nil {
		pos += fmt.Sprintf(" %f", *s.Elevation)
	}
	return pos, true
}

func operatingStatus(enabled bool) string {
	if enabled {
		return StatusOperational
	}
	return StatusNonReporting
}

func describe(s Station) string {
	var b strings.Builder
	b.WriteString("How to reach: ")
	b.WriteString(deref(s.HowToReach, unknownPlaceholder))
	b.WriteString(". Distance to outlet: ")
	b.WriteString(deref(s.DistanceToOutlet, unknownPlaceholder))
	b.WriteString(".")
	return b.String()
}

func climateZone(r ClimateZoneResolver, s Station) string {
	if r == nil || s.Latitude == nil || s.Longitude == nil {
		return ""
	}
	zone, ok := r.ClimateZone(*s.Latitude, *s.Longitude)
	if !ok {
		return ""
	}
	return zone
}

func observations(joined []JoinedAssociation) []ObservedVariable {
	out := make([]ObservedVariable, 0, len(joined))
	for _, j := range joined {
		out = append(out, ObservedVariable{
			Code:         j.Code,
			Name:         deref(j.Variable.Description, ""),
			Abbreviation: deref(j.Variable.Abbreviation, ""),
			Unit:         deref(j.Variable.Unit, ""),
			From:         j.From,
			To:           j.To,
		})
	}
	return out
}

func deref(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
