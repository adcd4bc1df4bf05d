package wellstate

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/well-timeline/backend/internal/models"
)

// Rejection reasons reported by the fold.
const (
	ReasonMissingInterval = "missing_interval"
	ReasonMissingDepth    = "missing_depth"
)

// Item kinds used in rejection records.
const (
	KindPunzado      = "punzado"
	KindCementacion  = "cementacion"
	KindTest         = "test"
	KindEstimulacion = "estimulacion"
)

// Applier folds intervention payloads into well states.
type Applier struct {
	// NewID generates entity ids.
	NewID func() string
	// Now supplies the timestamp used when an intervention has no date.
	Now func() time.Time
	// Tolerance widens intervals when testing overlap.
	Tolerance float64
	// Units controls how non-metre intervals are handled.
	Units UnitPolicy
}

// NewApplier returns an Applier with uuid ids, the wall clock, zero
// tolerance and the metres unit policy.
func NewApplier() *Applier {
	return &Applier{
		NewID:     uuid.NewString,
		Now:       time.Now,
		Tolerance: DefaultTolerance,
		Units:     UnitPolicyMeters,
	}
}

var defaultApplier = NewApplier()

// Apply folds payload into prev with the default Applier.
func Apply(prev *models.WellState, payload models.InterventionPayload) *models.WellState {
	next, _ := defaultApplier.Apply(prev, payload)
	return next
}

// Apply returns the state that results from applying payload to prev. prev
// is never modified. Items that cannot be placed in the state are listed in
// the report.
func (a *Applier) Apply(prev *models.WellState, payload models.InterventionPayload) (*models.WellState, models.FoldReport) {
	next := prev.Clone()
	report := models.FoldReport{
		Created:            make([]string, 0),
		ClosedPerforations: make([]string, 0),
		Rejected:           make([]models.RejectedItem, 0),
	}

	date := resolveDate(payload.Fecha, prev)
	report.Date = models.CloneString(date)
	stamp := a.stamp(date)

	for i, p := range payload.Punzados {
		iv, ok := ToInterval(&p.RawInterval, a.Units)
		if !ok {
			report.Rejected = append(report.Rejected, reject(KindPunzado, i, ReasonMissingInterval))
			continue
		}
		id := a.NewID()
		next.Perforations = append(next.Perforations, models.Perforation{
			ID:       id,
			Interval: iv,
			Status:   models.PerforationOpen,
			Metadata: map[string]any{},
		})
		report.Created = append(report.Created, id)
	}

	for i, c := range payload.Cementaciones {
		if !c.Tipo.ClosesPerforations() {
			if c.Profundidad == nil {
				report.Rejected = append(report.Rejected, reject(KindCementacion, i, ReasonMissingDepth))
				continue
			}
			id := a.NewID()
			next.Bpps = append(next.Bpps, models.Bpp{
				ID:       id,
				Depth:    *c.Profundidad,
				Active:   true,
				Zone:     models.CloneString(c.Zona),
				PlacedAt: stamp,
			})
			report.Created = append(report.Created, id)
			continue
		}

		iv, ok := ToInterval(c.Intervalo, a.Units)
		if !ok {
			report.Rejected = append(report.Rejected, reject(KindCementacion, i, ReasonMissingInterval))
			continue
		}
		registerZone(next, c.Zona, iv)

		id := a.NewID()
		reason := models.ClosedByCementPlug
		if c.Tipo == models.CementKindSqueeze {
			reason = models.ClosedBySqueeze
			next.Squeezes = append(next.Squeezes, models.Squeeze{
				ID:       id,
				Interval: iv,
				Date:     models.CloneString(&stamp),
			})
		} else {
			next.CementPlugs = append(next.CementPlugs, models.CementPlug{
				ID:       id,
				Interval: iv,
				Active:   true,
				PlacedAt: stamp,
			})
		}
		report.Created = append(report.Created, id)
		report.ClosedPerforations = append(report.ClosedPerforations, a.closeOverlapping(next, iv, reason)...)
	}

	for i, t := range payload.Tests {
		iv, ok := ToInterval(t.Intervalo, a.Units)
		if !ok {
			report.Rejected = append(report.Rejected, reject(KindTest, i, ReasonMissingInterval))
			continue
		}
		id := a.NewID()
		next.Tests = append(next.Tests, testLog(id, t, iv))
		report.Created = append(report.Created, id)
	}

	for _, e := range payload.Estimulaciones {
		st := models.Stimulation{
			ID:     a.NewID(),
			Date:   itemDate(e.Fecha, date),
			Detail: kindDetail(e.Tipo),
		}
		if iv, ok := ToInterval(e.Intervalo, a.Units); ok {
			st.Interval = &iv
		}
		next.Stimulations = append(next.Stimulations, st)
		report.Created = append(report.Created, st.ID)
	}

	next.LastUpdated = &stamp
	return next, report
}

// closeOverlapping closes every perforation that intersects iv, recording
// reason as the closure cause. Perforations that were already closed take
// the new reason but stay closed. It returns the ids that were open before.
func (a *Applier) closeOverlapping(state *models.WellState, iv models.Interval, reason models.ClosureReason) []string {
	closed := make([]string, 0)
	for i := range state.Perforations {
		p := &state.Perforations[i]
		if !Intersects(p.Interval, iv, a.Tolerance) {
			continue
		}
		if p.IsOpen() {
			closed = append(closed, p.ID)
		}
		p.Status = models.PerforationClosed
		p.ClosedBy = reason
	}
	return closed
}

func (a *Applier) stamp(date *string) string {
	if date != nil {
		return *date
	}
	return a.Now().UTC().Format(time.RFC3339)
}

// resolveDate picks the payload date, falling back to the previous
// snapshot's last update.
func resolveDate(fecha *string, prev *models.WellState) *string {
	if fecha != nil && *fecha != "" {
		return fecha
	}
	if prev != nil && prev.LastUpdated != nil {
		return prev.LastUpdated
	}
	return nil
}

// registerZone records iv under the zone name when the item names one.
func registerZone(state *models.WellState, zona *string, iv models.Interval) {
	if zona == nil || *zona == "" {
		return
	}
	z := state.Zones[*zona]
	z.Name = *zona
	for _, existing := range z.Intervals {
		if existing == iv {
			return
		}
	}
	z.Intervals = append(z.Intervals, iv)
	state.Zones[*zona] = z
}

func testLog(id string, t models.Ensayo, iv models.Interval) models.TestLog {
	out := models.TestLog{
		ID:               id,
		Nombre:           models.CloneString(t.Nombre),
		Numero:           models.CloneString(t.Numero),
		Fecha:            models.CloneString(t.Fecha),
		Intervalo:        &iv,
		FluidoRecuperado: models.CloneString(t.FluidoRecuperado),
		RecuperadoTexto:  models.CloneString(t.RecuperadoTexto),
		Vazao:            models.CloneString(t.Vazao),
		Swab:             models.CloneString(t.Swab),
		NivelFluido:      models.CloneString(t.NivelFluido),
		Salinidad:        models.CloneString(t.Salinidad),
		BSW:              models.CloneString(t.BSW),
		GradosAPI:        models.CloneString(t.GradosAPI),
		Sopro:            models.CloneString(t.Sopro),
		Presion:          models.CloneString(t.Presion),
		Observacion:      models.CloneString(t.Observacion),
	}
	if t.TotalRecuperado != nil {
		out.TotalRecuperado = &models.RecoveredTotal{
			Valor:  models.CloneFloat(t.TotalRecuperado.Valor),
			Unidad: models.CloneString(t.TotalRecuperado.Unidad),
		}
	}
	return out
}

// itemDate prefers the item's own date over the intervention date.
func itemDate(fecha, date *string) *string {
	if fecha != nil && strings.TrimSpace(*fecha) != "" {
		return models.CloneString(fecha)
	}
	return models.CloneString(date)
}

func kindDetail(k models.StimulationKind) *string {
	if k == "" {
		return nil
	}
	s := string(k)
	return &s
}

func reject(kind string, index int, reason string) models.RejectedItem {
	return models.RejectedItem{Kind: kind, Index: index, Reason: reason}
}
