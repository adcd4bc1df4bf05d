package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/well-timeline/backend/internal/models"
	"github.com/well-timeline/backend/internal/textutil"
)

// DetailMode is the requested summary length.
type DetailMode string

const (
	DetailAuto      DetailMode = "auto"
	DetailBreve     DetailMode = "breve"
	DetailExtendido DetailMode = "extendido"
)

// ParseDetailMode parses a mode name; anything unknown is auto.
func ParseDetailMode(s string) DetailMode {
	switch DetailMode(strings.ToLower(strings.TrimSpace(s))) {
	case DetailBreve:
		return DetailBreve
	case DetailExtendido:
		return DetailExtendido
	default:
		return DetailAuto
	}
}

// maxPromptChars bounds the intervention text sent to the model.
const maxPromptChars = 6000

type typoRule struct {
	re  *regexp.Regexp
	rep string
}

var typoRules = []typoRule{
	{regexp.MustCompile(`(?i)\bBBP\b`), "BPP"},
	{regexp.MustCompile(`(?i)\bDUO\s*LINE\b`), "DUOLINE"},
	{regexp.MustCompile(`(?i)\bPCK\b`), "PACKER"},
	{regexp.MustCompile(`(?i)\bCPS\s*-?\s*(\d+)\b`), "CPS-$1"},
	{regexp.MustCompile(`(?i)\bVAZ(?:Ã|ã|A|a)O\b`), "VAZAO"},
}

// NormalizeDomainTypos fixes common spellings of well equipment and zones
// (BBP for BPP, "CPS 01" for CPS-01...).
func NormalizeDomainTypos(s string) string {
	for _, r := range typoRules {
		s = r.re.ReplaceAllString(s, r.rep)
	}
	return s
}

var (
	bulletLines     = regexp.MustCompile(`(?m)^\s*[-•]`)
	depthRanges     = regexp.MustCompile(`(?i)\b\d{3,4}[.,]?\d*\s*[-–/]\s*\d{3,4}[.,]?\d*\s*m\b`)
	complexKeywords = regexp.MustCompile(`(?i)\b(PACKER|B[- ]?TANDEM|BBP|BPP|BPR|RPS|MINI?FRATUR|INJETIV|TCZ|DUOLINE|CPS-\d|TF-?\d|TFR-?\d)\b`)

	perforationWords = regexp.MustCompile(`(?i)(canhone|punzad|perforad)`)
	testWords        = regexp.MustCompile(`(?i)\b(TF-?\d|TFR-?\d|DST|Teste\s+de\s+Avalia|inyectivid|injetiv|swab)\b`)
	pressureOnly     = regexp.MustCompile(`(?i)(sonolog|press[aã]o\s+est[aá]tica|registro\s+de\s+press[aã]o|buildup|fall[- ]?off|Pcab)`)
	cementWords      = regexp.MustCompile(`(?i)(cimenta|squeeze|BBP\b|BPP\b|tap[oã]n)`)
	stimulationWords = regexp.MustCompile(`(?i)(mini?fratur|fratur|acidiza|estimul)`)
)

// complexity scores how much is going on in an intervention text.
func complexity(text string) int {
	s := NormalizeDomainTypos(text)
	score := len(bulletLines.FindAllString(s, -1)) +
		len(depthRanges.FindAllString(s, -1)) +
		len(complexKeywords.FindAllString(s, -1))
	if hasMandatoryEvents(s) {
		score += 3
	}
	switch n := len([]rune(s)); {
	case n > 1500:
		score += 2
	case n > 800:
		score++
	}
	return score
}

// hasMandatoryEvents reports whether the text mentions an event the summary
// must include: perforations, a real test, cementing or stimulation.
func hasMandatoryEvents(text string) bool {
	s := NormalizeDomainTypos(text)
	validTest := testWords.MatchString(s) && !pressureOnly.MatchString(s)
	return perforationWords.MatchString(s) || validTest ||
		cementWords.MatchString(s) || stimulationWords.MatchString(s)
}

// PickDetail resolves the auto mode for an intervention text.
func PickDetail(mode DetailMode, text string) DetailMode {
	if mode == DetailBreve || mode == DetailExtendido {
		return mode
	}
	if hasMandatoryEvents(text) || complexity(text) >= 6 {
		return DetailExtendido
	}
	return DetailBreve
}

const systemPrompt = "Sos un asistente técnico que resume intervenciones de pozos en español con precisión."

const instructions = `[Objetivo]
Devolvé SOLO JSON con:
{
  "resumen": string,
  "fecha": string|null,
  "punzados": [ { "desde": number|null, "hasta": number|null, "unidad": "m"|string|null } ],
  "tests": [
    {
      "nombre": string|null, "numero": string|null, "fecha": string|null,
      "intervalo": { "desde": number|null, "hasta": number|null, "unidad": string|null }|null,
      "fluidoRecuperado": string|null,
      "totalRecuperado": { "valor": number|null, "unidad": string|null }|null,
      "recuperadoTexto": string|null, "vazao": string|null, "swab": string|null,
      "nivelFluido": string|null, "salinidad": string|null, "bsw": string|null,
      "gradosAPI": string|null, "sopro": string|null, "presion": string|null,
      "observacion": string|null
    }
  ],
  "cementaciones": [
    {
      "tipo": "cementacion" | "squeeze" | "tampon_cemento" | "bpp",
      "intervalo": { "desde": number|null, "hasta": number|null, "unidad": string|null }|null,
      "profundidad": number|null, "unidadProfundidad": string|null,
      "zona": string|null, "observacion": string|null
    }
  ],
  "estimulaciones": [
    {
      "tipo": "acidizacion" | "fractura" | "minifractura",
      "fecha": string|null,
      "intervalo": { "desde": number|null, "hasta": number|null, "unidad": string|null }|null,
      "fluido": string|null, "presionInicial": string|null, "presionMedia": string|null,
      "presionFinal": string|null, "vazao": string|null,
      "volumen": { "valor": number|null, "unidad": string|null }|null,
      "observacion": string|null
    }
  ]
}

[Intervalos en tests]
- Usá el rango explícito ("Int. 589,77/605,0 m", "CPS-01 (561,0–568,0 m)").
- Si sólo hay una profundidad puntual ("PACKER a 637,50 m"), usala como punto único.
- Si el test refiere una zona con rango conocido en el texto, usá ese rango.

[Otras reglas]
- Diferenciá RECUPERADO vs. VAZÃO (sólo V/T: m3/d, bbl/d, BPD, MPCD, BPM, L/s, Qt=...).
- "IP = 0,126 m3/d/kg/cm2" NO es vazão.
- Usar "óleo" (no "aceite").
- Punzados: si no hay canhoneo/punzado/perforado/tiros, devolver [].

[Cementaciones]
- Cementación/squeeze/tampón sólo sobre intervalos punzados, con intervalo.
- BPP siempre, con "profundidad" y "intervalo": null.
- No listar "furo do revestimento" ni pasta de cemento para assentar PACKERS.`

// BuildMessages renders the chat prompt for one intervention.
func BuildMessages(item models.RawIntervention, mode DetailMode) []Message {
	style := "Resumen breve (1–2 frases)."
	if mode == DetailExtendido {
		style = "Resumen extendido (3–6 frases)."
	}
	fecha := strings.TrimSpace(item.FechaTexto)
	if fecha == "" {
		fecha = strings.TrimSpace(item.FechaISO)
	}
	if fecha == "" {
		fecha = "N/A"
	}
	text := NormalizeDomainTypos(textutil.Clamp(item.Text, maxPromptChars))

	return []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf("%s\n\n%s\n\nFechaTexto: %s\n\nTEXTO:\n%s", style, instructions, fecha, text)},
	}
}
