// Package domain models the data served by Argentina's national hydrological
// information system (SNIH, Sistema Nacional de Información Hídrica).
//
// # Data Source
//
// SNIH exposes ASP.NET page methods under
// https://snih.hidricosargentina.gob.ar/. Every method is a POST returning a
// JSON envelope {"d": ...}. Metadata lists (stations, variable codes,
// station/variable associations) sit directly under "d"; time-series
// payloads sit under "d.Mediciones". See [ExtractList].
//
// # SNIH Data Conventions
//
// Missing data:
//
//	Numeric fields use -999. Text fields use "--", "-", "S/D" ("sin datos")
//	or "-999". Any field may also be an empty string. All of these become
//	Absent after [Normalize]; a numeric 0 is a real reading and is kept.
//
// Timestamps:
//
//	Encoded the Microsoft JSON way, "/Date(1703185987000)/": milliseconds
//	since the Unix epoch inside wrapper text, sometimes followed by an
//	offset suffix. The first run of digits is the epoch; it is decoded as a
//	UTC instant with no time zone inference. See [DecodeEpochTimestamp].
//
// Last records:
//
//	The last-records method returns one header per instant with a nested
//	"Mediciones" list of (Codigo, Valor) pairs. [Flatten] turns each header
//	into one row per pair before normalization.
//
// # Schemas
//
// Each dataset kind has a [FieldSchema] listing its fields and semantic types
// ([SchemaFor]). Only declared fields are coerced; anything else the service
// adds is decoded as-is and carried through.
//
// # Facilities
//
// [SynthesizeFacility] joins a station, its associations and the variable
// catalog into a [FacilityRecord], a station description independent of the
// SNIH schema. Non-fatal findings (no associations, associations pointing at
// unknown variables, duplicated station codes) come back as [Diagnostic]
// values for the caller to log.
package domain
