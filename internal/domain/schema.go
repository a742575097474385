package domain

import (
	"fmt"
)

// FieldType is the semantic type a schema declares for a field. The set is
// closed; normalization switches over it exhaustively.
type FieldType uint8

const (
	FieldInteger FieldType = iota + 1
	FieldReal
	FieldText
	FieldBoolean
	FieldTimestamp
)

func (t FieldType) String() string {
	switch t {
	case FieldInteger:
		return "integer"
	case FieldReal:
		return "real"
	case FieldText:
		return "text"
	case FieldBoolean:
		return "boolean"
	case FieldTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("FieldType(%d)", uint8(t))
	}
}

func (t FieldType) valid() bool {
	return t >= FieldInteger && t <= FieldTimestamp
}

// DatasetKind identifies one record shape served by SNIH.
type DatasetKind string

const (
	KindStation          DatasetKind = "station"
	KindVariableCode     DatasetKind = "variable_code"
	KindAssociation      DatasetKind = "association"
	KindMeasurement      DatasetKind = "measurement"
	KindFlatRecord       DatasetKind = "flat_record"
	KindHistoricalRecord DatasetKind = "historical_record"
)

// FieldDef declares a single field of a schema.
type FieldDef struct {
	Name string
	Type FieldType
}

// FieldSchema is an ordered set of uniquely named, typed fields.
type FieldSchema struct {
	kind   DatasetKind
	fields []FieldDef
	index  map[string]int
}

// NewFieldSchema builds a schema, rejecting duplicate names and unknown types.
func NewFieldSchema(kind DatasetKind, defs ...FieldDef) (FieldSchema, error) {
	s := FieldSchema{
		kind:   kind,
		fields: make([]FieldDef, 0, len(defs)),
		index:  make(map[string]int, len(defs)),
	}
	for _, d := range defs {
		if _, dup := s.index[d.Name]; dup {
			return FieldSchema{}, fmt.Errorf("schema %s: duplicate field %q", kind, d.Name)
		}
		if !d.Type.valid() {
			return FieldSchema{}, fmt.Errorf("schema %s: field %q has invalid type %s", kind, d.Name, d.Type)
		}
		s.index[d.Name] = len(s.fields)
		s.fields = append(s.fields, d)
	}
	return s, nil
}

func (s FieldSchema) Kind() DatasetKind { return s.kind }

// Fields returns the declared fields in order.
func (s FieldSchema) Fields() []FieldDef {
	out := make([]FieldDef, len(s.fields))
	copy(out, s.fields)
	return out
}

// TypeOf reports the declared type of a field.
func (s FieldSchema) TypeOf(name string) (FieldType, bool) {
	i, ok := s.index[name]
	if !ok {
		return 0, false
	}
	return s.fields[i].Type, true
}

// SchemaFor returns the registered schema for a dataset kind.
func SchemaFor(kind DatasetKind) (FieldSchema, error) {
	s, ok := registry[kind]
	if !ok {
		return FieldSchema{}, fmt.Errorf("%w: %q", ErrUnknownDatasetKind, kind)
	}
	return s, nil
}

// Field lists mirror the SNIH web service payloads.
var registry = map[DatasetKind]FieldSchema{
	KindStation: mustSchema(KindStation,
		FieldDef{"__type", FieldText},
		FieldDef{"Codigo", FieldInteger},
		FieldDef{"Descripcion", FieldText},
		FieldDef{"Regional", FieldInteger},
		FieldDef{"Sistema", FieldInteger},
		FieldDef{"Cuenca", FieldInteger},
		FieldDef{"Red", FieldInteger},
		FieldDef{"Subcuenca", FieldText},
		FieldDef{"Provincia", FieldInteger},
		FieldDef{"Rio", FieldText},
		FieldDef{"Lugar", FieldText},
		FieldDef{"Poblado", FieldText},
		FieldDef{"Area", FieldInteger},
		FieldDef{"Cota", FieldInteger},
		FieldDef{"Latitud", FieldReal},
		FieldDef{"Longitud", FieldReal},
		FieldDef{"MesHidrologico", FieldInteger},
		FieldDef{"NivelPsicrometrico", FieldReal},
		FieldDef{"Ventilador", FieldBoolean},
		FieldDef{"Alta", FieldTimestamp},
		FieldDef{"Baja", FieldTimestamp},
		FieldDef{"CeroEscala", FieldReal},
		FieldDef{"SistemaCota", FieldInteger},
		FieldDef{"AfluenteDe", FieldText},
		FieldDef{"EsNavegable", FieldText},
		FieldDef{"Departamento", FieldText},
		FieldDef{"DistanciaDesembocadura", FieldText},
		FieldDef{"Habilitada", FieldBoolean},
		FieldDef{"Tipo", FieldText},
		FieldDef{"Transmision", FieldText},
		FieldDef{"ModoDeLlegar", FieldText},
		FieldDef{"Actual", FieldText},
		FieldDef{"RegistroValidoHasta", FieldTimestamp},
		FieldDef{"Autor", FieldInteger},
		FieldDef{"Registro", FieldTimestamp},
	),
	KindVariableCode: mustSchema(KindVariableCode,
		FieldDef{"__type", FieldText},
		FieldDef{"Tipo", FieldInteger},
		FieldDef{"Codigo", FieldInteger},
		FieldDef{"Descripcion", FieldText},
		FieldDef{"Abreviatura", FieldText},
		FieldDef{"Unidad", FieldText},
		FieldDef{"Magnitud", FieldInteger},
		FieldDef{"Dato", FieldInteger},
		FieldDef{"Decimales", FieldInteger},
		FieldDef{"CodigoReferencia", FieldInteger},
		FieldDef{"DerechoMinimoRegistro", FieldInteger},
		FieldDef{"AgrupacionesPosibles", FieldInteger},
		FieldDef{"Actual", FieldText},
		FieldDef{"RegistroValidoHasta", FieldTimestamp},
		FieldDef{"Autor", FieldText},
		FieldDef{"Registro", FieldTimestamp},
	),
	KindAssociation: mustSchema(KindAssociation,
		FieldDef{"__type", FieldText},
		FieldDef{"Estacion", FieldInteger},
		FieldDef{"Codigo", FieldInteger},
		FieldDef{"Desde", FieldTimestamp},
		FieldDef{"Hasta", FieldTimestamp},
		FieldDef{"Minimo", FieldInteger},
		FieldDef{"Maximo", FieldInteger},
		FieldDef{"TipoValidacion", FieldInteger},
		FieldDef{"Actual", FieldText},
		FieldDef{"RegistroValidoHasta", FieldTimestamp},
		FieldDef{"Autor", FieldInteger},
		FieldDef{"Registro", FieldTimestamp},
	),
	KindMeasurement: mustSchema(KindMeasurement,
		FieldDef{"Codigo", FieldInteger},
		FieldDef{"FechaHora", FieldTimestamp},
		FieldDef{"NombreCodigo", FieldText},
		FieldDef{"Valor", FieldReal},
	),
	KindFlatRecord: mustSchema(KindFlatRecord,
		FieldDef{"FechaHora", FieldTimestamp},
		FieldDef{"Codigo", FieldInteger},
		FieldDef{"Valor", FieldReal},
	),
	KindHistoricalRecord: mustSchema(KindHistoricalRecord,
		FieldDef{"FechaHora", FieldTimestamp},
		FieldDef{"Medicion", FieldReal},
		FieldDef{"Calificador", FieldText},
		FieldDef{"Validado", FieldBoolean},
	),
}

func mustSchema(kind DatasetKind, defs ...FieldDef) FieldSchema {
	s, err := NewFieldSchema(kind, defs...)
	if err != nil {
		panic(err)
	}
	return s
}
