package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/well-timeline/backend/internal/models"
)

const sampleBlock = `Teste TF-1 na CPS-01 (561,0 – 568,0 m). Int. 589,77/605,0 m.
PACKER assentado a 637,50 m.
Sopro fraco no início, passando a forte em 5 min.
Recuperado 307 m de óleo (0,903 m3) e 9,0 m de água (0,014 m3).`

func TestFindContextRanges(t *testing.T) {
	ranges := findContextRanges(sampleBlock)

	zone, ok := ranges.zones["CPS-01"]
	require.True(t, ok)
	assert.Equal(t, 561.0, *zone.Desde)
	assert.Equal(t, 568.0, *zone.Hasta)

	require.NotNil(t, ranges.mainInterval)
	assert.Equal(t, 589.77, *ranges.mainInterval.Desde)
	assert.Equal(t, 605.0, *ranges.mainInterval.Hasta)

	assert.Equal(t, []float64{637.5}, ranges.packerDepths)
}

func TestFillTestIntervals(t *testing.T) {
	ranges := findContextRanges(sampleBlock)
	existing := meters(100, 110)

	tests := []models.Ensayo{
		{Nombre: ptrTo("TF-1"), Observacion: ptrTo("zona CPS-01")},
		{Nombre: ptrTo("Teste de injetividade")},
		{Nombre: ptrTo("TFR-2")},
		{Nombre: ptrTo("TF-3"), Intervalo: &existing},
	}
	fillTestIntervals(tests, ranges)

	assert.Equal(t, 561.0, *tests[0].Intervalo.Desde)
	assert.Equal(t, 637.5, *tests[1].Intervalo.Desde)
	assert.Equal(t, 637.5, *tests[1].Intervalo.Hasta)
	assert.Equal(t, 589.77, *tests[2].Intervalo.Desde)
	assert.Equal(t, 100.0, *tests[3].Intervalo.Desde)
}

func TestFillCementIntervals(t *testing.T) {
	ranges := findContextRanges(sampleBlock)
	items := []models.Cementacion{
		{Tipo: models.CementKindSqueeze, Zona: ptrTo("CPS 01")},
		{Tipo: models.CementKindTamponCemento},
		{Tipo: models.CementKindBpp, Profundidad: floatPtr(639)},
	}
	fillCementIntervals(items, ranges)

	require.NotNil(t, items[0].Intervalo)
	assert.Equal(t, 561.0, *items[0].Intervalo.Desde)
	require.NotNil(t, items[1].Intervalo)
	assert.Equal(t, 589.77, *items[1].Intervalo.Desde)
	assert.Nil(t, items[2].Intervalo)
}

func TestFilterCementaciones(t *testing.T) {
	full := meters(561, 568)
	half := models.RawInterval{Desde: floatPtr(561)}
	items := []models.Cementacion{
		{Tipo: models.CementKindSqueeze, Intervalo: &full},
		{Tipo: models.CementKindCementacion, Intervalo: &half},
		{Tipo: models.CementKindCementacion},
		{Tipo: models.CementKindBpp},
	}

	out := filterCementaciones(items)
	require.Len(t, out, 2)
	assert.Equal(t, models.CementKindSqueeze, out[0].Tipo)
	assert.Equal(t, models.CementKindBpp, out[1].Tipo)
}

func TestFilterPunzados(t *testing.T) {
	p := []models.Punzado{{RawInterval: meters(500, 510)}}

	assert.Len(t, filterPunzados("Canhoneado o intervalo 500/510 m", p), 1)
	assert.Len(t, filterPunzados("Foram efetuados 20 tiros", p), 1)
	assert.Empty(t, filterPunzados("Teste de formação TF-1", p))
}

func TestRecoveredTextAndFluid(t *testing.T) {
	got := recoveredText(sampleBlock)
	require.NotNil(t, got)
	assert.Contains(t, *got, "Recuperado 307 m de óleo")

	fluid := guessFluid(got)
	require.NotNil(t, fluid)
	assert.Equal(t, "óleo y agua", *fluid)

	assert.Nil(t, recoveredText("Sem recuperação relevante"))
	assert.Nil(t, guessFluid(ptrTo("apresentou-se seco")))
	assert.Equal(t, "gas", *guessFluid(ptrTo("Recuperou gás")))
}

func TestFluidTerms(t *testing.T) {
	assert.Equal(t, "óleo y agua", *fluidTerms(ptrTo("aceite y agua")))
	assert.Nil(t, fluidTerms(nil))
}

func TestSoproBlock(t *testing.T) {
	got := soproBlock(sampleBlock)
	require.NotNil(t, got)
	assert.Equal(t, "Sopro fraco no início, passando a forte em 5 min.", *got)

	assert.Equal(t, "Sopro: fraco", *soproLabelled(ptrTo("sopro: fraco")))
	assert.Equal(t, "Sopro: forte", *soproLabelled(ptrTo("forte")))
	assert.Nil(t, soproLabelled(ptrTo("Sopro:")))
	assert.Nil(t, soproBlock("Sem indicação"))
}

func TestInjectivityPressure(t *testing.T) {
	text := "Teste de injetividade com coluna 200 psi e anular 150 psi, vazão 1 bpm. " +
		"Cimentação com pressão 600 psi.\nPressão final 300 psi com 1 bpm."

	got := injectivityPressure(NormalizeDomainTypos(text))
	require.NotNil(t, got)
	assert.Equal(t, "Coluna 200 psi; Anular 150 psi; Pressão 300 psi", *got)

	assert.Nil(t, injectivityPressure("Squeeze com 1500 psi"))
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("Uno. Dos; tres\ncuatro 1.5 m")
	assert.Equal(t, []string{"Uno.", "Dos", "tres", "cuatro 1.5 m"}, got)
}

func TestEnsureBppMention(t *testing.T) {
	tests := []struct {
		name    string
		resumen string
		text    string
		want    string
	}{
		{
			name:    "adds depth and zone",
			resumen: "Squeeze en CPS-01",
			text:    "Descido BPP na CPS-02 a 700,0 m.",
			want:    "Squeeze en CPS-01. Se aisló con BPP (en CPS-02, a 700 m).",
		},
		{
			name:    "depth only",
			resumen: "Squeeze en CPS-01.",
			text:    "Isolado a zona SERRARIA com BPP fixado a 639,0 m.",
			want:    "Squeeze en CPS-01. Se aisló con BPP (a 639 m).",
		},
		{
			name:    "already mentioned",
			resumen: "Se fijó BPP.",
			text:    "BPP a 639 m",
			want:    "Se fijó BPP.",
		},
		{
			name:    "no plug",
			resumen: "Sin novedades",
			text:    "Teste TF-1",
			want:    "Sin novedades",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ensureBppMention(tt.resumen, tt.text))
		})
	}
}

func ptrTo(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }
