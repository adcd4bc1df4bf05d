package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/well-timeline/backend/internal/models"
)

// Normalizer converts decoded extraction output into typed payload items.
type Normalizer struct {
	vocab *Vocabulary
}

// New returns a Normalizer using vocab, or the built-in vocabulary when
// vocab is nil.
func New(vocab *Vocabulary) *Normalizer {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	return &Normalizer{vocab: vocab}
}

// Vocabulary returns the vocabulary in use.
func (n *Normalizer) Vocabulary() *Vocabulary {
	return n.vocab
}

// Decode parses a raw extraction response. If the text is not valid JSON
// the outermost {...} slice is tried before giving up. A response that is
// valid JSON but not an object yields an empty result.
func (n *Normalizer) Decode(raw []byte) (models.ExtractionResult, error) {
	v, err := decodeJSON(raw)
	if err != nil {
		start := bytes.IndexByte(raw, '{')
		end := bytes.LastIndexByte(raw, '}')
		if start < 0 || end <= start {
			return emptyResult(), fmt.Errorf("failed to decode extraction response: %w", err)
		}
		if v, err = decodeJSON(raw[start : end+1]); err != nil {
			return emptyResult(), fmt.Errorf("failed to decode extraction response: %w", err)
		}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return emptyResult(), nil
	}
	return n.Result(obj), nil
}

func decodeJSON(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func emptyResult() models.ExtractionResult {
	return models.ExtractionResult{Payload: emptyPayload()}
}

func emptyPayload() models.InterventionPayload {
	return models.InterventionPayload{
		Punzados:       make([]models.Punzado, 0),
		Cementaciones:  make([]models.Cementacion, 0),
		Tests:          make([]models.Ensayo, 0),
		Estimulaciones: make([]models.Estimulacion, 0),
	}
}

// Result normalizes a decoded extraction object.
func (n *Normalizer) Result(obj map[string]any) models.ExtractionResult {
	res := models.ExtractionResult{
		Payload: models.InterventionPayload{
			Fecha:          PickString(obj["fecha"], obj["date"]),
			Punzados:       n.Punzados(obj["punzados"]),
			Cementaciones:  n.Cementaciones(obj["cementaciones"]),
			Tests:          n.Ensayos(firstPresent(obj["tests"], obj["ensayos"])),
			Estimulaciones: n.Estimulaciones(obj["estimulaciones"]),
		},
	}
	if s := PickString(obj["resumen"], obj["summary"]); s != nil {
		res.Resumen = strings.TrimSpace(*s)
	}
	return res
}

// Punzados keeps items that carry at least one bound.
func (n *Normalizer) Punzados(v any) []models.Punzado {
	out := make([]models.Punzado, 0)
	arr, ok := v.([]any)
	if !ok {
		return out
	}
	for _, it := range arr {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		iv := rawInterval(m)
		if iv.Desde == nil && iv.Hasta == nil {
			continue
		}
		out = append(out, models.Punzado{RawInterval: *iv})
	}
	return out
}

// Cementaciones normalizes cementing items. Unknown kinds become plain
// cementing.
func (n *Normalizer) Cementaciones(v any) []models.Cementacion {
	out := make([]models.Cementacion, 0)
	arr, ok := v.([]any)
	if !ok {
		return out
	}
	for _, it := range arr {
		m := asObject(it)
		c := models.Cementacion{
			Tipo:        n.vocab.CementKind(stringValue(m["tipo"])),
			Profundidad: Number(m["profundidad"]),
			Zona:        PickString(m["zona"]),
			Observacion: PickString(m["observacion"]),
		}
		if obj := PickObject(m["intervalo"]); obj != nil {
			c.Intervalo = rawInterval(obj)
		}
		c.UnidadProfundidad = PickString(m["unidadProfundidad"], m["profUnit"])
		if c.UnidadProfundidad == nil && c.Profundidad != nil {
			c.UnidadProfundidad = ptr(models.DefaultUnit)
		}
		out = append(out, c)
	}
	return out
}

// Ensayos normalizes test items. Text fields are carried through; the flow
// rate is sanitized.
func (n *Normalizer) Ensayos(v any) []models.Ensayo {
	out := make([]models.Ensayo, 0)
	arr, ok := v.([]any)
	if !ok {
		return out
	}
	for _, it := range arr {
		m := asObject(it)
		e := models.Ensayo{
			Nombre:           PickString(m["nombre"]),
			Numero:           PickString(m["numero"]),
			Fecha:            PickString(m["fecha"]),
			FluidoRecuperado: PickString(m["fluidoRecuperado"]),
			RecuperadoTexto:  PickString(m["recuperadoTexto"]),
			Vazao:            n.vocab.FlowRate(PickString(m["vazao"])),
			Swab:             PickString(m["swab"]),
			NivelFluido:      PickString(m["nivelFluido"]),
			Salinidad:        PickString(m["salinidad"]),
			BSW:              PickString(m["bsw"]),
			GradosAPI:        PickString(m["gradosAPI"]),
			Sopro:            PickString(m["sopro"]),
			Presion:          PickString(m["presion"]),
			Observacion:      PickString(m["observacion"]),
		}
		if e.Numero == nil {
			if num := Number(m["numero"]); num != nil {
				e.Numero = ptr(formatNumber(*num))
			}
		}
		if obj := PickObject(m["intervalo"]); obj != nil {
			e.Intervalo = rawInterval(obj)
		}
		if obj := PickObject(m["totalRecuperado"]); obj != nil {
			e.TotalRecuperado = &models.RecoveredTotal{
				Valor:  Number(firstPresent(obj["valor"], obj["value"])),
				Unidad: PickString(obj["unidad"], obj["unit"]),
			}
		}
		out = append(out, e)
	}
	return out
}

// Estimulaciones normalizes stimulation items. Every item is kept.
func (n *Normalizer) Estimulaciones(v any) []models.Estimulacion {
	out := make([]models.Estimulacion, 0)
	arr, ok := v.([]any)
	if !ok {
		return out
	}
	for _, it := range arr {
		m := asObject(it)
		label := ""
		if s := PickString(m["tipo"], m["nombre"]); s != nil {
			label = *s
		}
		e := models.Estimulacion{
			Tipo:           n.vocab.StimulationKind(label),
			Fecha:          PickString(m["fecha"], m["date"]),
			Fluido:         PickString(m["fluido"], m["acido"], m["acid"]),
			PresionInicial: PickString(m["presionInicial"], m["pressaoInicial"]),
			PresionMedia:   PickString(m["presionMedia"], m["pressaoMedia"]),
			PresionFinal:   PickString(m["presionFinal"], m["pressaoFinal"]),
			Vazao:          n.vocab.FlowRate(PickString(m["vazao"], m["caudal"], m["flow"])),
			Observacion:    PickString(m["observacion"], m["obs"]),
		}
		if obj := PickObject(m["intervalo"], m["interval"]); obj != nil {
			e.Intervalo = rawInterval(obj)
		}
		if obj := PickObject(m["volumen"], m["volume"]); obj != nil {
			e.Volumen = &models.Volume{
				Valor:  Number(firstPresent(obj["valor"], obj["value"])),
				Unidad: PickString(obj["unidad"], obj["unit"]),
			}
		}
		out = append(out, e)
	}
	return out
}

// rawInterval reads desde/hasta with their English aliases. The unit
// defaults to metres.
func rawInterval(m map[string]any) *models.RawInterval {
	return &models.RawInterval{
		Desde:  Number(firstPresent(m["desde"], m["from"], m["start"])),
		Hasta:  Number(firstPresent(m["hasta"], m["to"], m["end"])),
		Unidad: stringOr(PickString(m["unidad"], m["unit"]), models.DefaultUnit),
	}
}

func asObject(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func formatNumber(f float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.6f", f), "0"), ".")
}
