package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/well-timeline/backend/internal/models"
	"github.com/well-timeline/backend/internal/normalize"
)

// contextRanges are depths mentioned in an intervention text that can
// anchor items the model returned without an interval.
type contextRanges struct {
	zones        map[string]models.RawInterval
	mainInterval *models.RawInterval
	packerDepths []float64
}

var (
	zoneRange     = regexp.MustCompile(`(?i)(CPS[-\s]?\d+(?:\s*[+/]\s*CPS[-\s]?\d+)*)[^.\n\r]*?\(\s*([0-9]{3,4}[.,]?\d*)\s*[–\-/]\s*([0-9]{3,4}[.,]?\d*)\s*m\s*\)`)
	mainRange     = regexp.MustCompile(`(?i)Int\.\s*([0-9]{3,4}[.,]?\d*)\s*[/–-]\s*([0-9]{3,4}[.,]?\d*)\s*m`)
	packerDepth   = regexp.MustCompile(`(?i)(PACKER|PCK)[^.\n\r]{0,40}?a\s*([0-9]{3,4}[.,]?\d*)\s*m`)
	zoneMention   = regexp.MustCompile(`CPS[-\s]?\d+(?:\s*[+/]\s*CPS[-\s]?\d+)*`)
	injectivityRe = regexp.MustCompile(`(?i)INYE|INJETIV|INJECTIV|PACKER|PCK`)
	whitespace    = regexp.MustCompile(`\s+`)
)

func meters(desde, hasta float64) models.RawInterval {
	unit := models.DefaultUnit
	return models.RawInterval{Desde: &desde, Hasta: &hasta, Unidad: &unit}
}

var cpsNumber = regexp.MustCompile(`CPS-?(\d+)`)

// zoneKey canonicalizes a zone name so "cps 01" and "CPS-01" collide.
func zoneKey(s string) string {
	key := strings.ToUpper(whitespace.ReplaceAllString(s, ""))
	return cpsNumber.ReplaceAllString(key, "CPS-${1}")
}

func findContextRanges(text string) contextRanges {
	ctx := contextRanges{zones: make(map[string]models.RawInterval)}

	for _, m := range zoneRange.FindAllStringSubmatch(text, -1) {
		d, okD := normalize.ToNumber(m[2])
		h, okH := normalize.ToNumber(m[3])
		if okD && okH {
			ctx.zones[zoneKey(m[1])] = meters(d, h)
		}
	}
	if m := mainRange.FindStringSubmatch(text); m != nil {
		d, okD := normalize.ToNumber(m[1])
		h, okH := normalize.ToNumber(m[2])
		if okD && okH {
			iv := meters(d, h)
			ctx.mainInterval = &iv
		}
	}
	for _, m := range packerDepth.FindAllStringSubmatch(text, -1) {
		if d, ok := normalize.ToNumber(m[2]); ok {
			ctx.packerDepths = append(ctx.packerDepths, d)
		}
	}
	return ctx
}

func hasAnyBound(iv *models.RawInterval) bool {
	return iv != nil && (iv.Desde != nil || iv.Hasta != nil)
}

// fillTestIntervals anchors tests without an interval to a zone they name,
// a packer depth for injectivity tests, or the block's main interval.
func fillTestIntervals(tests []models.Ensayo, ctx contextRanges) {
	for i := range tests {
		t := &tests[i]
		if hasAnyBound(t.Intervalo) {
			continue
		}
		nameObs := strings.ToUpper(deref(t.Nombre) + " " + deref(t.Observacion))

		if iv, ok := ctx.zoneFor(zoneMention.FindAllString(nameObs, -1)); ok {
			t.Intervalo = &iv
			continue
		}
		if injectivityRe.MatchString(nameObs) && len(ctx.packerDepths) > 0 {
			iv := meters(ctx.packerDepths[0], ctx.packerDepths[0])
			t.Intervalo = &iv
			continue
		}
		if ctx.mainInterval != nil {
			iv := *ctx.mainInterval
			t.Intervalo = &iv
		}
	}
}

func (c contextRanges) zoneFor(mentions []string) (models.RawInterval, bool) {
	for _, z := range mentions {
		if iv, ok := c.zones[zoneKey(z)]; ok {
			return iv, true
		}
	}
	return models.RawInterval{}, false
}

// fillCementIntervals anchors cementing items without an interval to their
// zone or the main interval. Bpp items are left alone.
func fillCementIntervals(items []models.Cementacion, ctx contextRanges) {
	for i := range items {
		c := &items[i]
		if c.Tipo == models.CementKindBpp || hasAnyBound(c.Intervalo) {
			continue
		}
		if c.Zona != nil {
			if iv, ok := ctx.zones[zoneKey(*c.Zona)]; ok {
				c.Intervalo = &iv
				continue
			}
		}
		if ctx.mainInterval != nil {
			iv := *ctx.mainInterval
			c.Intervalo = &iv
		}
	}
}

// filterCementaciones keeps bpp items and cementing items with a complete
// interval. Items that could not be anchored to a perforated range, such as
// repairs of a hole in the casing, fall out here.
func filterCementaciones(items []models.Cementacion) []models.Cementacion {
	out := make([]models.Cementacion, 0, len(items))
	for _, c := range items {
		if c.Tipo == models.CementKindBpp || c.Intervalo.Complete() {
			out = append(out, c)
		}
	}
	return out
}

var perforationKeywords = regexp.MustCompile(`(?i)(canhone|punzad|perforad|tiros?)`)

// filterPunzados drops perforations the model returned for a text that
// never talks about perforating.
func filterPunzados(text string, punzados []models.Punzado) []models.Punzado {
	if !perforationKeywords.MatchString(text) {
		return []models.Punzado{}
	}
	return punzados
}

var (
	recoveredSentences = regexp.MustCompile(`(?i)\b(Recuperad[oa]s?|Recuperou)\b[^.\n\r]*(?:\.[^\n\r]*)?`)
	oilWord            = regexp.MustCompile(`(?i)(?:^|[^\p{L}])(óleo|oleo|petr[oó]leo|petro)(?:[^\p{L}]|$)`)
	waterWord          = regexp.MustCompile(`(?i)(?:^|[^\p{L}])(água|agua)(?:[^\p{L}]|$)`)
	gasWord            = regexp.MustCompile(`(?i)(?:^|[^\p{L}])(gás|gas)(?:[^\p{L}]|$)`)
	aceite             = regexp.MustCompile(`(?i)\baceites?\b`)
	spaceTabRuns       = regexp.MustCompile(`[ \t]+`)
)

// recoveredText collects the "Recuperado ..." sentences of a block.
func recoveredText(text string) *string {
	m := recoveredSentences.FindAllString(text, -1)
	if len(m) == 0 {
		return nil
	}
	s := strings.TrimSpace(spaceTabRuns.ReplaceAllString(strings.Join(m, " "), " "))
	return &s
}

// guessFluid lists the fluids named in a recovery sentence.
func guessFluid(s *string) *string {
	if s == nil {
		return nil
	}
	var parts []string
	if oilWord.MatchString(*s) {
		parts = append(parts, "óleo")
	}
	if waterWord.MatchString(*s) {
		parts = append(parts, "agua")
	}
	if gasWord.MatchString(*s) {
		parts = append(parts, "gas")
	}
	if len(parts) == 0 {
		return nil
	}
	out := strings.Join(parts, " y ")
	return &out
}

// fluidTerms rewrites "aceite" as "óleo".
func fluidTerms(s *string) *string {
	if s == nil {
		return nil
	}
	out := aceite.ReplaceAllString(*s, "óleo")
	return &out
}

var (
	soproStart = regexp.MustCompile(`(?i)\b(sopro|fluxo|flujo|surgiu|surgi[oó]|surg[êe]ncia)`)
	soproStop  = regexp.MustCompile(`(?im)(Recuperad[oa]s?|Recuperou)\b|^[ \t]*(Q|Qt)\s*=|Vaz[ãa]o|^[ \t]*IP\s*=|^[ \t]*Ke\s*=|^[ \t]*Dano\s*=|^[ \t]*Pe\s*=|Salin|^Óleo\s*:|^Oleo\s*:|^Visc\.|^[ \t]*BSW\b|^[ \t]*Grau?s?\s*API\b`)
	paraBreak  = regexp.MustCompile(`\n\s*\n`)
	punctSpace = regexp.MustCompile(`\s*([.;])\s*`)
	soproLabel = regexp.MustCompile(`(?i)^sopro\b[:\s-]*`)
)

// soproBlock returns the passage describing the flow/blow observed during a
// test, from its first mention up to a blank line or the next metric.
func soproBlock(text string) *string {
	norm := strings.ReplaceAll(text, "\r", "")
	loc := soproStart.FindStringIndex(norm)
	if loc == nil {
		return nil
	}
	after := norm[loc[0]:]
	end := len(after)
	if m := paraBreak.FindStringIndex(after); m != nil && m[0] < end {
		end = m[0]
	}
	// The first keyword itself may match a stop word ("Vazão" inside a
	// sopro sentence is fine), so only stops after the start count.
	for _, m := range soproStop.FindAllStringIndex(after, -1) {
		if m[0] > 0 {
			if m[0] < end {
				end = m[0]
			}
			break
		}
	}
	s := spaceTabRuns.ReplaceAllString(after[:end], " ")
	s = strings.TrimSpace(punctSpace.ReplaceAllString(s, "$1 "))
	if s == "" {
		return nil
	}
	return &s
}

// soproLabelled prefixes the text with "Sopro: " exactly once.
func soproLabelled(s *string) *string {
	if s == nil {
		return nil
	}
	body := strings.TrimSpace(soproLabel.ReplaceAllString(strings.TrimSpace(*s), ""))
	if body == "" {
		return nil
	}
	out := "Sopro: " + body
	return &out
}

var (
	injectivityName = regexp.MustCompile(`injetiv|inyectiv|injectiv|packer`)
	psiWord         = regexp.MustCompile(`(?i)psi\b`)
	psiRelevant     = regexp.MustCompile(`(?i)(injetiv|inyectiv|injectiv|teste\s+de\s+injetiv|vaz[ãa]o|bpm)`)
	psiNoise        = regexp.MustCompile(`(?i)(ciment|pasta\s+de\s+cimento|squeeze|tap(?:[ãa]o|on)|\bBPP\b|assentad|injetad[oa]|isolament)`)
	columnPsi       = regexp.MustCompile(`(?i)(coluna|column)[^.\n\r]{0,20}?(\d+[.,]?\d*)\s*psi`)
	annulusPsi      = regexp.MustCompile(`(?i)(anular)[^.\n\r]{0,20}?(\d+[.,]?\d*)\s*psi`)
	pressurePsi     = regexp.MustCompile(`(?i)press[aã]o[^.\n\r]{0,20}?(\d+[.,]?\d*)\s*psi`)
)

func isInjectivityTest(t models.Ensayo) bool {
	return injectivityName.MatchString(strings.ToLower(deref(t.Nombre) + " " + deref(t.Observacion)))
}

// splitSentences splits at sentence punctuation followed by whitespace,
// newlines and semicolons.
func splitSentences(text string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	runes := []rune(text)
	for i, r := range runes {
		switch {
		case r == '\n' || r == ';':
			flush()
		case (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && (runes[i+1] == ' ' || runes[i+1] == '\t'):
			cur.WriteRune(r)
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

// injectivityPressure extracts column, annulus and pressure readings in
// psi from injectivity sentences.
func injectivityPressure(text string) *string {
	norm := spaceTabRuns.ReplaceAllString(strings.ReplaceAll(text, "\r", " "), " ")
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	for _, s := range splitSentences(norm) {
		if !psiWord.MatchString(s) || !psiRelevant.MatchString(s) || psiNoise.MatchString(s) {
			continue
		}
		for _, m := range columnPsi.FindAllStringSubmatch(s, -1) {
			add(fmt.Sprintf("Coluna %s psi", m[2]))
		}
		for _, m := range annulusPsi.FindAllStringSubmatch(s, -1) {
			add(fmt.Sprintf("Anular %s psi", m[2]))
		}
		for _, m := range pressurePsi.FindAllStringSubmatch(s, -1) {
			add(fmt.Sprintf("Pressão %s psi", m[1]))
		}
	}
	if len(out) == 0 {
		return nil
	}
	joined := strings.Join(out, "; ")
	return &joined
}

var (
	bppDepth    = regexp.MustCompile(`(?i)\bBPP\b([^.\n\r]{0,80}?)(?:a\s*)?([0-9]{3,4}[.,]?\d*)\s*m`)
	bppWord     = regexp.MustCompile(`(?i)\bBPP\b`)
	bppZone     = regexp.MustCompile(`(?i)\b(CPS[-\s]?\d+|SERRARIA)\b`)
	sentenceEnd = regexp.MustCompile(`[.!?]$`)
	doubleSpace = regexp.MustCompile(`\s{2,}`)
)

// ensureBppMention appends a sentence about the mechanical plug when the
// text mentions one and the summary does not.
func ensureBppMention(resumen, text string) string {
	if !bppWord.MatchString(text) || bppWord.MatchString(resumen) || strings.Contains(strings.ToUpper(resumen), "BBP") {
		return resumen
	}
	var parts []string
	if m := bppDepth.FindStringSubmatch(text); m != nil {
		if z := bppZone.FindStringSubmatch(m[1]); z != nil {
			parts = append(parts, "en "+zoneKey(z[1]))
		}
		if d, ok := normalize.ToNumber(m[2]); ok {
			parts = append(parts, "a "+strconv.FormatFloat(d, 'f', -1, 64)+" m")
		}
	}
	clause := " Se aisló con BPP"
	if len(parts) > 0 {
		clause += " (" + strings.Join(parts, ", ") + ")"
	}
	clause += "."

	trimmed := strings.TrimSpace(resumen)
	if trimmed != "" && !sentenceEnd.MatchString(trimmed) {
		trimmed += "."
	}
	return trimmed + clause
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
