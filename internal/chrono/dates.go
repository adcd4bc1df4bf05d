package chrono

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/well-timeline/backend/internal/textutil"
)

// MonthTokens lists the Spanish and Portuguese month spellings accepted in
// dates such as "OUT/70" or "12 de mayo de 1982".
var MonthTokens = []string{
	"jan", "janeiro", "ene", "enero",
	"fev", "feb", "fevereiro", "febrero",
	"mar", "marco", "março", "marzo",
	"abr", "abril",
	"mai", "may", "mayo",
	"jun", "junho", "junio",
	"jul", "julho", "julio",
	"ago", "agosto",
	"set", "sep", "sept", "setembro", "septiembre",
	"out", "oct", "outubro", "octubre",
	"nov", "novembro", "noviembre",
	"dez", "dic", "dezembro", "diciembre",
}

var months = map[string]time.Month{
	"jan": 1, "janeiro": 1, "ene": 1, "enero": 1,
	"fev": 2, "feb": 2, "fevereiro": 2, "febrero": 2,
	"mar": 3, "marco": 3, "marzo": 3,
	"abr": 4, "abril": 4,
	"mai": 5, "may": 5, "mayo": 5,
	"jun": 6, "junho": 6, "junio": 6,
	"jul": 7, "julho": 7, "julio": 7,
	"ago": 8, "agosto": 8,
	"set": 9, "sep": 9, "sept": 9, "setembro": 9, "septiembre": 9,
	"out": 10, "oct": 10, "outubro": 10, "octubre": 10,
	"nov": 11, "novembro": 11, "noviembre": 11,
	"dez": 12, "dic": 12, "dezembro": 12, "diciembre": 12,
}

var (
	isoDate    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dmyDate    = regexp.MustCompile(`(\d{1,2})[/\-.](\d{1,2})[/\-.](\d{2,4})`)
	longDate   = regexp.MustCompile(`(\d{1,2})\s+de\s+([a-z]{3,12})\s+(?:de\s+)?(\d{2,4})`)
	monthYear  = regexp.MustCompile(`([a-z]{3,12})[/-](\d{2,4})`)
	rangeDates = regexp.MustCompile(`(\d{1,2})\s*(?:a|al|–|-|—)\s*(\d{1,2})[/\-.](\d{1,2})[/\-.](\d{2,4})`)
)

// ToISO converts a date label found in a report to YYYY-MM-DD. It accepts
// dd/mm/yy(yy), "12 de mayo de 1982", month/year labels (resolved to the
// last day of the month) and day ranges (resolved to the end date). Two
// digit years of 50 and above are read as 19xx. It returns "" when the
// label cannot be resolved.
func ToISO(label string) string {
	t := strings.TrimSpace(label)
	if t == "" {
		return ""
	}
	if isoDate.MatchString(t) {
		return t
	}
	if m := dmyDate.FindStringSubmatch(t); m != nil {
		return formatDate(m[3], atoi(m[2]), m[1])
	}

	folded := textutil.Fold(t)
	if m := longDate.FindStringSubmatch(folded); m != nil {
		if mon, ok := months[m[2]]; ok {
			return formatDate(m[3], int(mon), m[1])
		}
	}
	if m := monthYear.FindStringSubmatch(folded); m != nil {
		if mon, ok := months[m[1]]; ok {
			y := expandYear(atoi(m[2]))
			last := time.Date(y, mon+1, 0, 0, 0, 0, 0, time.UTC).Day()
			return fmt.Sprintf("%04d-%02d-%02d", y, int(mon), last)
		}
	}
	if m := rangeDates.FindStringSubmatch(folded); m != nil {
		return formatDate(m[4], atoi(m[3]), m[2])
	}
	return ""
}

func formatDate(year string, month int, day string) string {
	return fmt.Sprintf("%04d-%02d-%02d", expandYear(atoi(year)), month, atoi(day))
}

func expandYear(y int) int {
	if y < 100 {
		if y >= 50 {
			return 1900 + y
		}
		return 2000 + y
	}
	return y
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
