package core

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	zipPattern       = regexp.MustCompile(`\b(\d{5})(?:-\d{4})?\b`)
	cityStatePattern = regexp.MustCompile(`([A-Za-z][A-Za-z .'-]*?),\s*([A-Za-z]{2})\b`)
	fiveDigitZip     = regexp.MustCompile(`^\d{5}$`)
	clockPattern     = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
	titleCaser       = cases.Title(language.English)
)

// ParseLocation keeps the raw text as the address and pulls out a zip code
// and a "City, ST" pair when present
func ParseLocation(s string) Location {
	s = strings.TrimSpace(s)
	if isBlank(s) {
		return Location{}
	}
	loc := Location{Address: s}
	if m := zipPattern.FindAllStringSubmatch(s, -1); len(m) > 0 {
		loc.Zip = m[len(m)-1][1]
	}
	if m := cityStatePattern.FindAllStringSubmatch(s, -1); len(m) > 0 {
		last := m[len(m)-1]
		if _, ok := usStates[strings.ToUpper(last[2])]; ok {
			loc.City = titleCase(strings.TrimSpace(last[1]))
			loc.State = strings.ToUpper(last[2])
		}
	}
	return loc
}

func titleCase(s string) string {
	if s == "" {
		return ""
	}
	return titleCaser.String(strings.ToLower(s))
}

// IsValidZip reports whether zip is a 5-digit US zip code
func IsValidZip(zip string) bool {
	return fiveDigitZip.MatchString(zip)
}

// equipmentAliases maps free-text trailer descriptions to the equipment codes
// used on loads, longest phrases first
var equipmentAliases = []struct {
	phrase    string
	equipment string
}{
	{"refrigerated", "Reefer"},
	{"reefer", "Reefer"},
	{"step deck", "Stepdeck"},
	{"stepdeck", "Stepdeck"},
	{"conestoga", "Conestoga"},
	{"flat bed", "Flatbed"},
	{"flatbed", "Flatbed"},
	{"lowboy", "RGN"},
	{"rgn", "RGN"},
	{"dry van", "Van"},
	{"dryvan", "Van"},
	{"van", "Van"},
	{"flat", "Flatbed"},
}

var defaultEquipment = map[FreightType]string{
	FreightDryVan:  "Van",
	FreightReefer:  "Reefer",
	FreightFlatbed: "Flatbed",
	FreightHazmat:  "Van",
	FreightLTL:     "LTL",
	FreightPartial: "Van",
	FreightUnknown: "Van",
}

// EquipmentFor maps the stated equipment to a load equipment code, falling
// back to the usual equipment for the freight type
func EquipmentFor(equipmentType string, ft FreightType) string {
	e := strings.ToLower(equipmentType)
	for _, alias := range equipmentAliases {
		if containsWord(e, alias.phrase) {
			return alias.equipment
		}
	}
	if eq, ok := defaultEquipment[ft]; ok {
		return eq
	}
	return "Van"
}

// IsVagueDate reports whether a pickup date names no concrete day, as with
// "ASAP", "TBD" or "next week"
func IsVagueDate(s string) bool {
	_, ok := parseDay(strings.ToLower(strings.TrimSpace(s)), vagueDateReference)
	return !ok
}

// vagueDateReference anchors relative dates when only their presence matters
var vagueDateReference = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"Jan 2 2006",
	"Monday, January 2, 2006",
	"Mon, Jan 2, 2006",
}

var yearlessLayouts = []string{
	"January 2",
	"Jan 2",
	"1/2",
	"01/02",
}

// NormalizePickupDate turns free-text pickup dates into a timestamp. A date
// without a time gets 08:00. When nothing parses the next business morning
// is used and estimated is true.
func NormalizePickupDate(s string, now time.Time) (t time.Time, estimated bool) {
	s = strings.TrimSpace(s)
	if day, ok := parseDay(strings.ToLower(s), now); ok {
		hour, minute := 8, 0
		if day.Hour() != 0 || day.Minute() != 0 {
			hour, minute = day.Hour(), day.Minute()
		} else if h, m, ok := parseClock(s); ok {
			hour, minute = h, m
		}
		return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location()), false
	}
	next := now.AddDate(0, 0, 1)
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return time.Date(next.Year(), next.Month(), next.Day(), 8, 0, 0, 0, now.Location()), true
}

func parseDay(s string, now time.Time) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	cleaned := strings.TrimSpace(clockPattern.ReplaceAllString(s, ""))
	cleaned = strings.TrimSuffix(strings.TrimSpace(strings.TrimSuffix(cleaned, "at")), ",")
	for _, layout := range dateLayouts {
		for _, candidate := range []string{s, cleaned} {
			if t, err := time.ParseInLocation(layout, titleCase(candidate), now.Location()); err == nil {
				return t, true
			}
			if t, err := time.ParseInLocation(layout, strings.ToUpper(candidate), now.Location()); err == nil {
				return t, true
			}
		}
	}
	for _, layout := range yearlessLayouts {
		if t, err := time.ParseInLocation(layout, titleCase(cleaned), now.Location()); err == nil {
			t = t.AddDate(now.Year(), 0, 0)
			if t.Before(truncateDay(now)) {
				t = t.AddDate(1, 0, 0)
			}
			return t, true
		}
	}
	switch {
	case strings.Contains(s, "today"):
		return truncateDay(now), true
	case strings.Contains(s, "tomorrow"):
		return truncateDay(now).AddDate(0, 0, 1), true
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if containsWord(s, strings.ToLower(wd.String())) || containsWord(s, strings.ToLower(wd.String()[:3])) {
			delta := (int(wd) - int(now.Weekday()) + 7) % 7
			if delta == 0 {
				delta = 7
			}
			return truncateDay(now).AddDate(0, 0, delta), true
		}
	}
	return time.Time{}, false
}

func parseClock(s string) (int, int, bool) {
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	hour := atoiSafe(m[1])
	minute := 0
	if m[2] != "" {
		minute = atoiSafe(m[2])
	}
	if hour < 1 || hour > 12 || minute > 59 {
		return 0, 0, false
	}
	pm := strings.EqualFold(m[3], "pm")
	if pm && hour != 12 {
		hour += 12
	}
	if !pm && hour == 12 {
		hour = 0
	}
	return hour, minute, true
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func containsWord(s, word string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		if (start == 0 || !isLetter(s[start-1])) && (end == len(s) || !isLetter(s[end])) {
			return true
		}
		idx = start + 1
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// ComplexityFlags lists handling traits that call for a human look before quoting
func ComplexityFlags(d LoadData, ft FreightType) []string {
	var flags []string
	if ft == FreightHazmat || (d.Hazmat != nil && d.Hazmat.Declared) {
		flags = append(flags, "hazmat")
	}
	if d.Temperature != nil || ft == FreightReefer {
		flags = append(flags, "temperature_controlled")
	}
	if d.Flatbed != nil {
		if d.Flatbed.OversizePermits {
			flags = append(flags, "oversize")
		}
		if d.Flatbed.EscortRequired {
			flags = append(flags, "escort")
		}
		if d.Flatbed.TarpingRequired != nil && *d.Flatbed.TarpingRequired {
			flags = append(flags, "tarping")
		}
	}
	if d.Weight != nil && *d.Weight > maxLegalWeight {
		flags = append(flags, "overweight")
	}
	if appointmentCritical(d) {
		flags = append(flags, "appointment")
	}
	return flags
}

var usStates = map[string]struct{}{
	"AL": {}, "AK": {}, "AZ": {}, "AR": {}, "CA": {}, "CO": {}, "CT": {}, "DE": {}, "DC": {},
	"FL": {}, "GA": {}, "HI": {}, "ID": {}, "IL": {}, "IN": {}, "IA": {}, "KS": {}, "KY": {},
	"LA": {}, "ME": {}, "MD": {}, "MA": {}, "MI": {}, "MN": {}, "MS": {}, "MO": {}, "MT": {},
	"NE": {}, "NV": {}, "NH": {}, "NJ": {}, "NM": {}, "NY": {}, "NC": {}, "ND": {}, "OH": {},
	"OK": {}, "OR": {}, "PA": {}, "RI": {}, "SC": {}, "SD": {}, "TN": {}, "TX": {}, "UT": {},
	"VT": {}, "VA": {}, "WA": {}, "WV": {}, "WI": {}, "WY": {},
	"AB": {}, "BC": {}, "MB": {}, "NB": {}, "NL": {}, "NS": {}, "ON": {}, "PE": {}, "QC": {}, "SK": {},
}
