package parser

import (
	"regexp"
	"strings"

	"github.com/well-timeline/backend/internal/chrono"
	"github.com/well-timeline/backend/internal/models"
	"github.com/well-timeline/backend/internal/textutil"
)

var (
	historicHeading = regexp.MustCompile(`(?i)HIST[OÓ]RICO\s+(?:DE|DO)\s+PO[ZCÇ]O|HISTORIAL\s+DEL\s+POZO`)
	dateLine        = buildDateLine()
)

// buildDateLine matches a date at the start of a line: a day range
// ("03 a 09/02/2014"), dd/mm/yy(yy), yyyy-mm-dd or month/yy with a known
// month token.
func buildDateLine() *regexp.Regexp {
	const (
		dmy      = `\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}`
		ymd      = `\d{4}-\d{2}-\d{2}`
		dmyRange = `\d{1,2}\s*(?:a|al|–|-|—)\s*\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}`
	)
	mony := `(?:` + strings.Join(chrono.MonthTokens, "|") + `)[/-]\d{2,4}`
	return regexp.MustCompile(`(?im)^([ \t]*(?:` + dmyRange + `|` + dmy + `|` + ymd + `|` + mony + `))\b`)
}

// SliceFromHistorico drops everything before the well history heading. The
// text is returned unchanged when there is no heading.
func SliceFromHistorico(full string) string {
	loc := historicHeading.FindStringIndex(full)
	if loc == nil {
		return full
	}
	return full[loc[0]:]
}

// SplitByDate splits text into interventions at every line that starts
// with a date. Text before the first date line is dropped. Without any
// date line the whole text is one undated intervention.
func SplitByDate(text string) []models.RawIntervention {
	text = textutil.Clean(text)
	matches := dateLine.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		if text == "" {
			return []models.RawIntervention{}
		}
		return []models.RawIntervention{{Index: 1, Text: text}}
	}

	parts := make([]models.RawIntervention, 0, len(matches))
	for k, m := range matches {
		start := m[0]
		end := len(text)
		if k < len(matches)-1 {
			end = matches[k+1][0]
		}
		chunk := strings.TrimRight(text[start:end], " \t\n")
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		label := strings.TrimSpace(text[m[2]:m[3]])
		parts = append(parts, models.RawIntervention{
			Index:      len(parts) + 1,
			FechaTexto: label,
			FechaISO:   chrono.ToISO(label),
			Text:       strings.TrimSpace(chunk),
		})
	}
	return parts
}

// Segment slices the well history out of a document's text and splits it
// into interventions.
func Segment(full string) []models.RawIntervention {
	return SplitByDate(SliceFromHistorico(textutil.Clean(full)))
}
