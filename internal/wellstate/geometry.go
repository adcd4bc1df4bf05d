// Package wellstate folds extracted intervention facts into a cumulative
// well state.
package wellstate

import (
	"fmt"
	"strings"

	"github.com/well-timeline/backend/internal/models"
)

// DefaultTolerance is the depth tolerance, in metres, used when testing
// interval overlap.
const DefaultTolerance = 0.0

// feetToMetres converts depth in feet to metres.
const feetToMetres = 0.3048

// UnitPolicy decides what happens to intervals declared in a unit other
// than metres.
type UnitPolicy string

const (
	// UnitPolicyMeters ignores the declared unit and stores values as metres.
	UnitPolicyMeters UnitPolicy = "meters"
	// UnitPolicyStrict rejects intervals declared in a non-metre unit.
	UnitPolicyStrict UnitPolicy = "strict"
	// UnitPolicyConvert converts feet to metres and rejects other units.
	UnitPolicyConvert UnitPolicy = "convert"
)

// ParseUnitPolicy parses a policy name, defaulting to UnitPolicyMeters.
func ParseUnitPolicy(s string) (UnitPolicy, error) {
	switch UnitPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", UnitPolicyMeters:
		return UnitPolicyMeters, nil
	case UnitPolicyStrict:
		return UnitPolicyStrict, nil
	case UnitPolicyConvert:
		return UnitPolicyConvert, nil
	default:
		return "", fmt.Errorf("unknown unit policy %q", s)
	}
}

type unitKind int

const (
	unitMetres unitKind = iota
	unitFeet
	unitOther
)

func classifyUnit(u *string) unitKind {
	if u == nil {
		return unitMetres
	}
	switch strings.Trim(strings.ToLower(strings.TrimSpace(*u)), ".") {
	case "", "m", "mts", "mt", "metro", "metros", "meters", "metres":
		return unitMetres
	case "ft", "feet", "pes", "pés", "pies", "'":
		return unitFeet
	default:
		return unitOther
	}
}

// ToInterval builds an Interval from a raw extracted range. It returns
// false when the range is missing a bound or, depending on policy, when its
// unit cannot be stored. Reversed bounds are swapped.
func ToInterval(raw *models.RawInterval, policy UnitPolicy) (models.Interval, bool) {
	if !raw.Complete() {
		return models.Interval{}, false
	}
	desde, hasta := *raw.Desde, *raw.Hasta

	switch policy {
	case UnitPolicyStrict:
		if classifyUnit(raw.Unidad) != unitMetres {
			return models.Interval{}, false
		}
	case UnitPolicyConvert:
		switch classifyUnit(raw.Unidad) {
		case unitFeet:
			desde *= feetToMetres
			hasta *= feetToMetres
		case unitOther:
			return models.Interval{}, false
		}
	}

	if desde > hasta {
		desde, hasta = hasta, desde
	}
	return models.Interval{Desde: desde, Hasta: hasta, Unit: models.DefaultUnit}, true
}

// Intersects reports whether two closed intervals overlap. Touching
// endpoints count as an overlap.
func Intersects(a, b models.Interval, tol float64) bool {
	return !(a.Hasta < b.Desde-tol || b.Hasta < a.Desde-tol)
}
