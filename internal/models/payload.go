package models

// CementKind classifies a cementing item.
type CementKind string

const (
	CementKindCementacion   CementKind = "cementacion"
	CementKindSqueeze       CementKind = "squeeze"
	CementKindTamponCemento CementKind = "tampon_cemento"
	CementKindBpp           CementKind = "bpp"
)

// ClosesPerforations reports whether this kind of item closes the
// perforations it overlaps.
func (k CementKind) ClosesPerforations() bool {
	return k != CementKindBpp
}

// StimulationKind classifies a stimulation treatment.
type StimulationKind string

const (
	StimulationAcidizacion  StimulationKind = "acidizacion"
	StimulationFractura     StimulationKind = "fractura"
	StimulationMinifractura StimulationKind = "minifractura"
)

// RawInterval is a depth range as extracted from text. Either bound may be
// missing.
type RawInterval struct {
	Desde  *float64 `json:"desde"`
	Hasta  *float64 `json:"hasta"`
	Unidad *string  `json:"unidad,omitempty"`
}

// Complete reports whether both bounds are present.
func (r *RawInterval) Complete() bool {
	return r != nil && r.Desde != nil && r.Hasta != nil
}

// Punzado is a perforation item.
type Punzado struct {
	RawInterval
}

// Cementacion is a cementing item. Bpp items carry a depth, the others an
// interval.
type Cementacion struct {
	Tipo              CementKind   `json:"tipo"`
	Intervalo         *RawInterval `json:"intervalo,omitempty"`
	Profundidad       *float64     `json:"profundidad,omitempty"`
	UnidadProfundidad *string      `json:"unidadProfundidad,omitempty"`
	Zona              *string      `json:"zona,omitempty"`
	Observacion       *string      `json:"observacion,omitempty"`
}

// Ensayo is a well test item.
type Ensayo struct {
	Nombre           *string         `json:"nombre,omitempty"`
	Numero           *string         `json:"numero,omitempty"`
	Fecha            *string         `json:"fecha,omitempty"`
	Intervalo        *RawInterval    `json:"intervalo,omitempty"`
	FluidoRecuperado *string         `json:"fluidoRecuperado,omitempty"`
	TotalRecuperado  *RecoveredTotal `json:"totalRecuperado,omitempty"`
	RecuperadoTexto  *string         `json:"recuperadoTexto,omitempty"`
	Vazao            *string         `json:"vazao,omitempty"`
	Swab             *string         `json:"swab,omitempty"`
	NivelFluido      *string         `json:"nivelFluido,omitempty"`
	Salinidad        *string         `json:"salinidad,omitempty"`
	BSW              *string         `json:"bsw,omitempty"`
	GradosAPI        *string         `json:"gradosAPI,omitempty"`
	Sopro            *string         `json:"sopro,omitempty"`
	Presion          *string         `json:"presion,omitempty"`
	Observacion      *string         `json:"observacion,omitempty"`
}

// Volume is a treated volume.
type Volume struct {
	Valor  *float64 `json:"valor,omitempty"`
	Unidad *string  `json:"unidad,omitempty"`
}

// Estimulacion is a stimulation item.
type Estimulacion struct {
	Tipo           StimulationKind `json:"tipo"`
	Fecha          *string         `json:"fecha,omitempty"`
	Intervalo      *RawInterval    `json:"intervalo,omitempty"`
	Fluido         *string         `json:"fluido,omitempty"`
	PresionInicial *string         `json:"presionInicial,omitempty"`
	PresionMedia   *string         `json:"presionMedia,omitempty"`
	PresionFinal   *string         `json:"presionFinal,omitempty"`
	Vazao          *string         `json:"vazao,omitempty"`
	Volumen        *Volume         `json:"volumen,omitempty"`
	Observacion    *string         `json:"observacion,omitempty"`
}

// InterventionPayload is the normalized set of facts extracted from one
// intervention.
type InterventionPayload struct {
	Fecha          *string        `json:"fecha,omitempty"`
	Punzados       []Punzado      `json:"punzados"`
	Cementaciones  []Cementacion  `json:"cementaciones"`
	Tests          []Ensayo       `json:"tests"`
	Estimulaciones []Estimulacion `json:"estimulaciones"`
}

// Empty reports whether the payload carries no items at all.
func (p InterventionPayload) Empty() bool {
	return len(p.Punzados) == 0 && len(p.Cementaciones) == 0 &&
		len(p.Tests) == 0 && len(p.Estimulaciones) == 0
}

// ExtractionResult is what the extraction step returns for one intervention.
type ExtractionResult struct {
	Resumen  string              `json:"resumen"`
	Mode     string              `json:"mode,omitempty"`
	Payload  InterventionPayload `json:"payload"`
	Attempts int                 `json:"attempts,omitempty"`
}

// RejectedItem records an extracted item that the fold could not use.
type RejectedItem struct {
	Kind   string `json:"kind"`
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// FoldReport describes what a single fold did to the state.
type FoldReport struct {
	Date               *string        `json:"date,omitempty"`
	Created            []string       `json:"created"`
	ClosedPerforations []string       `json:"closedPerforations"`
	Rejected           []RejectedItem `json:"rejected"`
}
