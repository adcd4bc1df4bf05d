// Package normalize turns untyped extraction output into validated
// intervention payloads.
package normalize

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/well-timeline/backend/internal/models"
	"github.com/well-timeline/backend/internal/textutil"
)

var floatPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// ToNumber coerces v to a finite float. Strings have their whitespace
// removed and the first comma read as a decimal point; the longest numeric
// prefix is parsed, so "561,0m" yields 561.
func ToNumber(v any) (float64, bool) {
	var n float64
	switch x := v.(type) {
	case float64:
		n = x
	case float32:
		n = float64(x)
	case int:
		n = float64(x)
	case int64:
		n = float64(x)
	case json.Number:
		return ToNumber(x.String())
	case string:
		s := strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return -1
			}
			return r
		}, x)
		s = strings.Replace(s, ",", ".", 1)
		m := floatPrefix.FindString(s)
		if m == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// Number is ToNumber returning a pointer, nil when v is not numeric.
func Number(v any) *float64 {
	n, ok := ToNumber(v)
	if !ok {
		return nil
	}
	return &n
}

// PickString returns the first candidate that is a non-blank string.
func PickString(cands ...any) *string {
	for _, c := range cands {
		if s, ok := c.(string); ok && strings.TrimSpace(s) != "" {
			return &s
		}
	}
	return nil
}

// PickObject returns the first candidate that is a JSON object.
func PickObject(cands ...any) map[string]any {
	for _, c := range cands {
		if m, ok := c.(map[string]any); ok {
			return m
		}
	}
	return nil
}

// firstPresent returns the first candidate that is not nil.
func firstPresent(cands ...any) any {
	for _, c := range cands {
		if c != nil {
			return c
		}
	}
	return nil
}

func stringOr(s *string, def string) *string {
	if s != nil {
		return s
	}
	return &def
}

// FlowRate keeps a flow-rate text only if it names a volumetric rate and is
// not a pressure-normalized rate or productivity index.
func (v *Vocabulary) FlowRate(s *string) *string {
	if s == nil {
		return nil
	}
	txt := strings.TrimSpace(*s)
	if txt == "" {
		return nil
	}
	folded := textutil.Fold(txt)
	for _, re := range v.flowReject {
		if re.MatchString(folded) {
			return nil
		}
	}
	for _, re := range v.flowAccept {
		if re.MatchString(folded) {
			return &txt
		}
	}
	return nil
}

// SanitizeFlowRate applies the default vocabulary's flow-rate filter.
func SanitizeFlowRate(s *string) *string {
	return defaultVocabulary.FlowRate(s)
}

// StimulationKind maps a free-text treatment label to a stimulation kind.
// Unrecognized labels fall back to the vocabulary default.
func (v *Vocabulary) StimulationKind(label string) models.StimulationKind {
	folded := textutil.Fold(label)
	for _, fam := range v.stimulation {
		for _, re := range fam.patterns {
			if re.MatchString(folded) {
				return fam.kind
			}
		}
	}
	return v.defaultStimulation
}

// StimulationKindOf classifies label with the default vocabulary.
func StimulationKindOf(label string) models.StimulationKind {
	return defaultVocabulary.StimulationKind(label)
}

// CementKind maps a cementing label to its kind. Unknown labels fall back to
// the vocabulary default.
func (v *Vocabulary) CementKind(label string) models.CementKind {
	if kind, ok := v.cementKinds[strings.ToLower(strings.TrimSpace(label))]; ok {
		return kind
	}
	return v.defaultCement
}

func ptr(s string) *string {
	return &s
}
