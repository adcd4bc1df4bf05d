package models

// WellStateVersion is the schema version stamped on every snapshot.
const WellStateVersion = 1

// DefaultUnit is the only depth unit the well state stores.
const DefaultUnit = "m"

// PerforationStatus is the open/closed state of a perforated segment.
type PerforationStatus string

const (
	PerforationOpen   PerforationStatus = "open"
	PerforationClosed PerforationStatus = "closed"
)

// ClosureReason records which cementing operation closed a perforation.
type ClosureReason string

const (
	ClosedBySqueeze    ClosureReason = "squeeze"
	ClosedByCementPlug ClosureReason = "cement_plug"
)

// Interval is a closed depth range along the wellbore, in metres.
type Interval struct {
	Desde float64 `json:"desde"`
	Hasta float64 `json:"hasta"`
	Unit  string  `json:"unit"`
}

// Zone is a named reservoir/formation with the depth ranges it spans.
type Zone struct {
	Name      string     `json:"name"`
	Intervals []Interval `json:"intervals"`
}

// Perforation is a perforated interval. It is never deleted; closure is a
// status change.
type Perforation struct {
	ID       string            `json:"id"`
	Zone     *string           `json:"zone,omitempty"`
	Interval Interval          `json:"interval"`
	Status   PerforationStatus `json:"status"`
	ClosedBy ClosureReason     `json:"closedBy,omitempty"`
	Metadata map[string]any    `json:"metadata,omitempty"`
}

// IsOpen reports whether the perforation is still producing.
func (p Perforation) IsOpen() bool {
	return p.Status == PerforationOpen
}

// CementPlug is a cement plug placed over an interval.
type CementPlug struct {
	ID        string   `json:"id"`
	Interval  Interval `json:"interval"`
	Active    bool     `json:"active"`
	PlacedAt  string   `json:"placedAt,omitempty"`
	RemovedAt *string  `json:"removedAt,omitempty"`
}

// Squeeze is a squeeze cementing operation.
type Squeeze struct {
	ID       string   `json:"id"`
	Interval Interval `json:"interval"`
	Date     *string  `json:"date,omitempty"`
}

// Bpp is a mechanical bridge plug set at a single depth.
type Bpp struct {
	ID       string  `json:"id"`
	Depth    float64 `json:"depth"`
	Active   bool    `json:"active"`
	Zone     *string `json:"zone,omitempty"`
	PlacedAt string  `json:"placedAt"`
}

// RecoveredTotal is the volume recovered during a test.
type RecoveredTotal struct {
	Valor  *float64 `json:"valor,omitempty"`
	Unidad *string  `json:"unidad,omitempty"`
}

// TestLog is a well test (swab, injectivity, flow...) over an interval.
type TestLog struct {
	ID               string          `json:"id"`
	Nombre           *string         `json:"nombre,omitempty"`
	Numero           *string         `json:"numero,omitempty"`
	Fecha            *string         `json:"fecha,omitempty"`
	Intervalo        *Interval       `json:"intervalo,omitempty"`
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

// Stimulation is an acid job or fracture treatment.
type Stimulation struct {
	ID       string    `json:"id"`
	Date     *string   `json:"date,omitempty"`
	Interval *Interval `json:"interval,omitempty"`
	Detail   *string   `json:"detail,omitempty"`
}

// WellInfo holds well-level attributes.
type WellInfo struct {
	TotalDepth *float64 `json:"totalDepth,omitempty"`
}

// WellState is the cumulative physical configuration of a well after a
// sequence of interventions. Values are plain data; use Clone before
// modifying a snapshot that may be shared.
type WellState struct {
	Well         WellInfo        `json:"well"`
	Zones        map[string]Zone `json:"zones"`
	Perforations []Perforation   `json:"perforations"`
	CementPlugs  []CementPlug    `json:"cementPlugs"`
	Squeezes     []Squeeze       `json:"squeezes"`
	Bpps         []Bpp           `json:"bpps"`
	Tests        []TestLog       `json:"tests"`
	Stimulations []Stimulation   `json:"stimulations"`
	Notes        []string        `json:"notes"`
	LastUpdated  *string         `json:"lastUpdated,omitempty"`
	Version      int             `json:"version"`
}

// NewWellState returns an empty well state.
func NewWellState() *WellState {
	return &WellState{
		Zones:        make(map[string]Zone),
		Perforations: make([]Perforation, 0),
		CementPlugs:  make([]CementPlug, 0),
		Squeezes:     make([]Squeeze, 0),
		Bpps:         make([]Bpp, 0),
		Tests:        make([]TestLog, 0),
		Stimulations: make([]Stimulation, 0),
		Notes:        make([]string, 0),
		Version:      WellStateVersion,
	}
}

// OpenPerforations returns the perforations that are still open.
func (s *WellState) OpenPerforations() []Perforation {
	open := make([]Perforation, 0, len(s.Perforations))
	for _, p := range s.Perforations {
		if p.IsOpen() {
			open = append(open, p)
		}
	}
	return open
}

// Clone returns a deep copy that shares no memory with s.
func (s *WellState) Clone() *WellState {
	if s == nil {
		return NewWellState()
	}
	out := &WellState{
		Well:         WellInfo{TotalDepth: CloneFloat(s.Well.TotalDepth)},
		Zones:        make(map[string]Zone, len(s.Zones)),
		Perforations: make([]Perforation, len(s.Perforations)),
		CementPlugs:  make([]CementPlug, len(s.CementPlugs)),
		Squeezes:     make([]Squeeze, len(s.Squeezes)),
		Bpps:         make([]Bpp, len(s.Bpps)),
		Tests:        make([]TestLog, len(s.Tests)),
		Stimulations: make([]Stimulation, len(s.Stimulations)),
		Notes:        append(make([]string, 0, len(s.Notes)), s.Notes...),
		LastUpdated:  CloneString(s.LastUpdated),
		Version:      s.Version,
	}
	for name, z := range s.Zones {
		out.Zones[name] = Zone{Name: z.Name, Intervals: append([]Interval(nil), z.Intervals...)}
	}
	for i, p := range s.Perforations {
		p.Zone = CloneString(p.Zone)
		p.Metadata = cloneMap(p.Metadata)
		out.Perforations[i] = p
	}
	for i, c := range s.CementPlugs {
		c.RemovedAt = CloneString(c.RemovedAt)
		out.CementPlugs[i] = c
	}
	for i, q := range s.Squeezes {
		q.Date = CloneString(q.Date)
		out.Squeezes[i] = q
	}
	for i, b := range s.Bpps {
		b.Zone = CloneString(b.Zone)
		out.Bpps[i] = b
	}
	for i, t := range s.Tests {
		out.Tests[i] = t.clone()
	}
	for i, st := range s.Stimulations {
		st.Date = CloneString(st.Date)
		st.Interval = cloneInterval(st.Interval)
		st.Detail = CloneString(st.Detail)
		out.Stimulations[i] = st
	}
	return out
}

func (t TestLog) clone() TestLog {
	out := TestLog{
		ID:               t.ID,
		Nombre:           CloneString(t.Nombre),
		Numero:           CloneString(t.Numero),
		Fecha:            CloneString(t.Fecha),
		Intervalo:        cloneInterval(t.Intervalo),
		FluidoRecuperado: CloneString(t.FluidoRecuperado),
		RecuperadoTexto:  CloneString(t.RecuperadoTexto),
		Vazao:            CloneString(t.Vazao),
		Swab:             CloneString(t.Swab),
		NivelFluido:      CloneString(t.NivelFluido),
		Salinidad:        CloneString(t.Salinidad),
		BSW:              CloneString(t.BSW),
		GradosAPI:        CloneString(t.GradosAPI),
		Sopro:            CloneString(t.Sopro),
		Presion:          CloneString(t.Presion),
		Observacion:      CloneString(t.Observacion),
	}
	if t.TotalRecuperado != nil {
		out.TotalRecuperado = &RecoveredTotal{
			Valor:  CloneFloat(t.TotalRecuperado.Valor),
			Unidad: CloneString(t.TotalRecuperado.Unidad),
		}
	}
	return out
}

// CloneString returns a copy of *s, or nil.
func CloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// CloneFloat returns a copy of *f, or nil.
func CloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneInterval(iv *Interval) *Interval {
	if iv == nil {
		return nil
	}
	v := *iv
	return &v
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
