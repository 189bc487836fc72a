package core

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	numberPattern      = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	dimensionPattern   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:'|"|ft|in|cm)?\s*[x×*]\s*(\d+(?:\.\d+)?)\s*(?:'|"|ft|in|cm)?\s*[x×*]\s*(\d+(?:\.\d+)?)\s*('|"|ft\b|feet\b|in\b|inch(?:es)?\b|cm\b)?`)
	signedNumberRegexp = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	thousandsSuffix    = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*k\b`)
	celsiusPattern     = regexp.MustCompile(`(?i)(°\s*c\b|\bcelsius\b|\d\s*c\b)`)
)

// placeholder values an oracle uses for "not present"
var blankValues = map[string]bool{
	"":              true,
	"n/a":           true,
	"na":            true,
	"none":          true,
	"null":          true,
	"nil":           true,
	"unknown":       true,
	"not specified": true,
	"not provided":  true,
	"not mentioned": true,
	"-":             true,
}

// parseOrder fixes the order in which found fields are reported
var parseOrder = []string{
	FieldPickupLocation,
	FieldDeliveryLocation,
	FieldCommodity,
	FieldWeight,
	FieldPickupDate,
	FieldEquipmentType,
	FieldTemperature,
	FieldDimensions,
	FieldPieceCount,
	FieldFreightClass,
	FieldHazmatClass,
	FieldUNNumber,
	FieldProperShippingName,
	FieldPackingGroup,
	FieldEmergencyContact,
	FieldTarpingRequired,
	FieldOversizePermits,
	FieldEscortRequired,
	FieldSpecialRequirements,
	FieldAppointmentRequired,
}

// aliases lets the oracle use a few common alternative keys
var aliases = map[string][]string{
	FieldPickupLocation:   {"origin", "pickup", "pickup_address"},
	FieldDeliveryLocation: {"destination", "delivery", "delivery_address", "dropoff_location"},
	FieldWeight:           {"weight_lbs", "total_weight"},
	FieldEquipmentType:    {"equipment", "trailer_type"},
	FieldTemperature:      {"temperature_range", "temp"},
	FieldPieceCount:       {"pieces", "pallet_count", "pallets"},
	FieldUNNumber:         {"un"},
}

// ParseFields turns untrusted oracle output into LoadData. The returned slice
// names every canonical field that carried a usable value, in a fixed order.
func ParseFields(raw map[string]any) (LoadData, []string) {
	var data LoadData
	flat := flatten(raw)
	found := make([]string, 0, len(parseOrder))

	for _, field := range parseOrder {
		v, ok := lookup(flat, field)
		if !ok {
			continue
		}
		if setField(&data, field, v) {
			found = append(found, field)
		}
	}

	for _, prefix := range []string{"pickup", "delivery"} {
		field := FieldPickupLocation
		loc := &data.PickupLocation
		if prefix == "delivery" {
			field = FieldDeliveryLocation
			loc = &data.DeliveryLocation
		}
		changed := false
		if v, ok := lookup(flat, prefix+"_city"); ok && loc.City == "" {
			loc.City = titleCase(asString(v))
			changed = true
		}
		if v, ok := lookup(flat, prefix+"_state"); ok && loc.State == "" {
			loc.State = strings.ToUpper(asString(v))
			changed = true
		}
		if v, ok := lookup(flat, prefix+"_zip"); ok && loc.Zip == "" {
			loc.Zip = asZip(v)
			changed = true
		}
		if changed && !containsString(found, field) {
			found = insertOrdered(found, field)
		}
	}

	if declared, ok := flat["hazmat"].(bool); ok && declared {
		ensureHazmat(&data).Declared = true
	}
	if declared, ok := flat["is_hazmat"].(bool); ok && declared {
		ensureHazmat(&data).Declared = true
	}

	return data, found
}

// MergeFields copies every field named in found from update over base.
// Fields not named keep their old value.
func MergeFields(base, update LoadData, found []string) LoadData {
	out := base.Clone()
	upd := update.Clone()
	for _, field := range found {
		if copyField, ok := fieldCopiers[field]; ok {
			copyField(&out, upd)
		}
	}
	if upd.Hazmat != nil && upd.Hazmat.Declared {
		ensureHazmat(&out).Declared = true
	}
	return out
}

var fieldCopiers = map[string]func(dst *LoadData, src LoadData){
	FieldPickupLocation:      func(d *LoadData, s LoadData) { d.PickupLocation = s.PickupLocation },
	FieldDeliveryLocation:    func(d *LoadData, s LoadData) { d.DeliveryLocation = s.DeliveryLocation },
	FieldCommodity:           func(d *LoadData, s LoadData) { d.Commodity = s.Commodity },
	FieldWeight:              func(d *LoadData, s LoadData) { d.Weight = s.Weight },
	FieldPickupDate:          func(d *LoadData, s LoadData) { d.PickupDate = s.PickupDate },
	FieldEquipmentType:       func(d *LoadData, s LoadData) { d.EquipmentType = s.EquipmentType },
	FieldTemperature:         func(d *LoadData, s LoadData) { d.Temperature = s.Temperature },
	FieldDimensions:          func(d *LoadData, s LoadData) { d.Dimensions = s.Dimensions },
	FieldPieceCount:          func(d *LoadData, s LoadData) { d.PieceCount = s.PieceCount },
	FieldFreightClass:        func(d *LoadData, s LoadData) { d.FreightClass = s.FreightClass },
	FieldSpecialRequirements: func(d *LoadData, s LoadData) { d.SpecialRequirements = s.SpecialRequirements },
	FieldAppointmentRequired: func(d *LoadData, s LoadData) { d.AppointmentRequired = s.AppointmentRequired },
	FieldHazmatClass: func(d *LoadData, s LoadData) {
		if s.Hazmat != nil {
			ensureHazmat(d).Class = s.Hazmat.Class
		}
	},
	FieldUNNumber: func(d *LoadData, s LoadData) {
		if s.Hazmat != nil {
			ensureHazmat(d).UNNumber = s.Hazmat.UNNumber
		}
	},
	FieldProperShippingName: func(d *LoadData, s LoadData) {
		if s.Hazmat != nil {
			ensureHazmat(d).ProperShippingName = s.Hazmat.ProperShippingName
		}
	},
	FieldPackingGroup: func(d *LoadData, s LoadData) {
		if s.Hazmat != nil {
			ensureHazmat(d).PackingGroup = s.Hazmat.PackingGroup
		}
	},
	FieldEmergencyContact: func(d *LoadData, s LoadData) {
		if s.Hazmat != nil {
			ensureHazmat(d).EmergencyContact = s.Hazmat.EmergencyContact
		}
	},
	FieldTarpingRequired: func(d *LoadData, s LoadData) {
		if s.Flatbed != nil {
			ensureFlatbed(d).TarpingRequired = s.Flatbed.TarpingRequired
		}
	},
	FieldOversizePermits: func(d *LoadData, s LoadData) {
		if s.Flatbed != nil {
			ensureFlatbed(d).OversizePermits = s.Flatbed.OversizePermits
		}
	},
	FieldEscortRequired: func(d *LoadData, s LoadData) {
		if s.Flatbed != nil {
			ensureFlatbed(d).EscortRequired = s.Flatbed.EscortRequired
		}
	},
}

func setField(d *LoadData, field string, v any) bool {
	switch field {
	case FieldPickupLocation:
		loc, ok := parseLocationValue(v)
		d.PickupLocation = loc
		return ok
	case FieldDeliveryLocation:
		loc, ok := parseLocationValue(v)
		d.DeliveryLocation = loc
		return ok
	case FieldCommodity:
		d.Commodity = asString(v)
		return d.Commodity != ""
	case FieldWeight:
		w, ok := ParseWeight(v)
		d.Weight = w
		return ok
	case FieldPickupDate:
		d.PickupDate = asString(v)
		return d.PickupDate != ""
	case FieldEquipmentType:
		d.EquipmentType = asString(v)
		return d.EquipmentType != ""
	case FieldTemperature:
		t, ok := ParseTemperature(v)
		d.Temperature = t
		return ok
	case FieldDimensions:
		dim, ok := ParseDimensions(v)
		d.Dimensions = dim
		return ok
	case FieldPieceCount:
		n, ok := parseCount(v)
		d.PieceCount = n
		return ok
	case FieldFreightClass:
		d.FreightClass = normalizeClass(v)
		return d.FreightClass != ""
	case FieldHazmatClass:
		c := normalizeClass(v)
		if c == "" {
			return false
		}
		ensureHazmat(d).Class = c
	case FieldUNNumber:
		un := NormalizeUNNumber(asString(v))
		if un == "" {
			return false
		}
		ensureHazmat(d).UNNumber = un
	case FieldProperShippingName:
		s := asString(v)
		if s == "" {
			return false
		}
		ensureHazmat(d).ProperShippingName = s
	case FieldPackingGroup:
		s := strings.ToUpper(strings.TrimPrefix(strings.ToLower(asString(v)), "pg"))
		s = strings.TrimSpace(s)
		if s == "" {
			return false
		}
		ensureHazmat(d).PackingGroup = s
	case FieldEmergencyContact:
		s := asString(v)
		if s == "" {
			return false
		}
		ensureHazmat(d).EmergencyContact = s
	case FieldTarpingRequired:
		b, ok := parseBool(v)
		if !ok {
			return false
		}
		ensureFlatbed(d).TarpingRequired = &b
	case FieldOversizePermits:
		b, ok := parseBool(v)
		if !ok {
			return false
		}
		ensureFlatbed(d).OversizePermits = b
	case FieldEscortRequired:
		b, ok := parseBool(v)
		if !ok {
			return false
		}
		ensureFlatbed(d).EscortRequired = b
	case FieldSpecialRequirements:
		d.SpecialRequirements = asString(v)
		return d.SpecialRequirements != ""
	case FieldAppointmentRequired:
		b, ok := parseBool(v)
		d.AppointmentRequired = b
		return ok
	default:
		return false
	}
	return true
}

// flatten lifts the keys of nested hazmat and flatbed objects to the top level
func flatten(raw map[string]any) map[string]any {
	flat := make(map[string]any, len(raw))
	for k, v := range raw {
		flat[strings.ToLower(strings.TrimSpace(k))] = v
	}
	if h, ok := flat["hazmat"].(map[string]any); ok {
		for k, v := range h {
			key := strings.ToLower(k)
			switch key {
			case "class", "hazard_class":
				key = FieldHazmatClass
			case "un", "un_number":
				key = FieldUNNumber
			}
			if _, exists := flat[key]; !exists {
				flat[key] = v
			}
		}
		flat["hazmat"] = true
	}
	if f, ok := flat["flatbed"].(map[string]any); ok {
		for k, v := range f {
			key := strings.ToLower(k)
			if _, exists := flat[key]; !exists {
				flat[key] = v
			}
		}
		delete(flat, "flatbed")
	}
	return flat
}

func lookup(flat map[string]any, field string) (any, bool) {
	keys := append([]string{field}, aliases[field]...)
	for _, k := range keys {
		v, ok := flat[k]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && isBlank(s) {
			continue
		}
		return v, true
	}
	return nil, false
}

func isBlank(s string) bool {
	return blankValues[strings.ToLower(strings.TrimSpace(s))]
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		if isBlank(t) {
			return ""
		}
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// ParseWeight coerces a JSON number or a string such as "32,000 lbs",
// "40k" or "20 tons" to whole pounds.
func ParseWeight(v any) (*int, bool) {
	switch t := v.(type) {
	case float64:
		w := int(math.Round(t))
		return &w, true
	case int:
		w := t
		return &w, true
	case string:
		s := strings.ToLower(t)
		var value float64
		if m := thousandsSuffix.FindStringSubmatch(s); m != nil {
			f, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				return nil, false
			}
			value = f * 1000
		} else {
			m := numberPattern.FindString(s)
			if m == "" {
				return nil, false
			}
			f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
			if err != nil {
				return nil, false
			}
			value = f
		}
		switch {
		case strings.Contains(s, "ton"):
			value *= 2000
		case strings.Contains(s, "kg") || strings.Contains(s, "kilo"):
			value *= 2.20462
		}
		w := int(math.Round(value))
		return &w, true
	}
	return nil, false
}

func parseCount(v any) (*int, bool) {
	switch t := v.(type) {
	case float64:
		n := int(math.Round(t))
		return &n, true
	case int:
		n := t
		return &n, true
	case string:
		m := numberPattern.FindString(t)
		if m == "" {
			return nil, false
		}
		n, err := strconv.Atoi(strings.ReplaceAll(strings.SplitN(m, ".", 2)[0], ",", ""))
		if err != nil {
			return nil, false
		}
		return &n, true
	}
	return nil, false
}

// ParseTemperature coerces "32-38F", "-10 to 0 F", a single value or an
// object with min/max/unit into a band. A single value becomes value±2.
func ParseTemperature(v any) (*Temperature, bool) {
	switch t := v.(type) {
	case float64:
		return band(t, "F"), true
	case map[string]any:
		temp := &Temperature{Unit: "F"}
		if u := strings.ToUpper(asString(t["unit"])); u != "" {
			temp.Unit = strings.TrimPrefix(u, "°")
		}
		if f, ok := asFloat(t["min"]); ok {
			temp.Min = &f
		}
		if f, ok := asFloat(t["max"]); ok {
			temp.Max = &f
		}
		switch {
		case temp.Min == nil && temp.Max == nil:
			return nil, false
		case temp.Min == nil:
			return band(*temp.Max, temp.Unit), true
		case temp.Max == nil:
			return band(*temp.Min, temp.Unit), true
		}
		return temp, true
	case string:
		values := temperatureValues(t)
		unit := "F"
		if celsiusPattern.MatchString(t) {
			unit = "C"
		}
		switch len(values) {
		case 0:
			return nil, false
		case 1:
			return band(values[0], unit), true
		default:
			lo, hi := values[0], values[1]
			return &Temperature{Min: &lo, Max: &hi, Unit: unit}, true
		}
	}
	return nil, false
}

// temperatureValues reads signed numbers, treating a dash that follows a
// digit, with only blanks between, as a range separator rather than a sign.
func temperatureValues(s string) []float64 {
	var out []float64
	for _, loc := range signedNumberRegexp.FindAllStringIndex(s, -1) {
		tok := s[loc[0]:loc[1]]
		if strings.HasPrefix(tok, "-") {
			prev := strings.TrimRight(s[:loc[0]], " \t")
			if prev != "" && prev[len(prev)-1] >= '0' && prev[len(prev)-1] <= '9' {
				tok = tok[1:]
			}
		}
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			continue
		}
		out = append(out, f)
	}
	return out
}

func band(center float64, unit string) *Temperature {
	lo, hi := center-2, center+2
	return &Temperature{Min: &lo, Max: &hi, Unit: unit}
}

// ParseDimensions coerces "48x40x48", "53' x 8.5' x 10'" or an object with
// length/width/height into structured dimensions.
func ParseDimensions(v any) (*Dimensions, bool) {
	switch t := v.(type) {
	case map[string]any:
		l, okL := asFloat(t["length"])
		w, okW := asFloat(t["width"])
		h, okH := asFloat(t["height"])
		if !okL && !okW && !okH {
			return nil, false
		}
		unit := strings.ToLower(asString(t["unit"]))
		if unit == "" {
			unit = "in"
		}
		return &Dimensions{Length: l, Width: w, Height: h, Unit: unit}, true
	case []any:
		if len(t) < 3 {
			return nil, false
		}
		l, _ := asFloat(t[0])
		w, _ := asFloat(t[1])
		h, _ := asFloat(t[2])
		return &Dimensions{Length: l, Width: w, Height: h, Unit: "in"}, true
	case string:
		m := dimensionPattern.FindStringSubmatch(t)
		if m == nil {
			return nil, false
		}
		vals := make([]float64, 3)
		for i := range vals {
			vals[i], _ = strconv.ParseFloat(m[i+1], 64)
		}
		matched := strings.ToLower(m[0])
		unit := "in"
		switch {
		case strings.Contains(matched, "ft") || strings.Contains(matched, "feet") || strings.Contains(matched, "'"):
			unit = "ft"
		case strings.Contains(matched, "cm"):
			unit = "cm"
		}
		return &Dimensions{Length: vals[0], Width: vals[1], Height: vals[2], Unit: unit}, true
	}
	return nil, false
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		vals := temperatureValues(t)
		if len(vals) == 0 {
			return 0, false
		}
		return vals[0], true
	}
	return 0, false
}

func parseBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "yes", "y", "true", "required", "needed", "1":
			return true, true
		case "no", "n", "false", "not required", "not needed", "0":
			return false, true
		}
	}
	return false, false
}

func normalizeClass(v any) string {
	s := strings.ToLower(asString(v))
	s = strings.TrimPrefix(s, "class")
	return strings.TrimSpace(s)
}

// NormalizeUNNumber upper-cases and compacts a UN number, adding the UN
// prefix to a bare four-digit code
func NormalizeUNNumber(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "", "-", "").Replace(s)
	if len(s) == 4 && isDigits(s) {
		return "UN" + s
	}
	return s
}

func parseLocationValue(v any) (Location, bool) {
	switch t := v.(type) {
	case string:
		loc := ParseLocation(t)
		return loc, !loc.IsEmpty()
	case map[string]any:
		loc := Location{
			Address: asString(t["address"]),
			City:    titleCase(asString(t["city"])),
			State:   strings.ToUpper(asString(t["state"])),
			Zip:     asZip(t["zip"]),
		}
		if loc.Zip == "" {
			loc.Zip = asZip(t["zip_code"])
		}
		if loc.Address == "" {
			loc.Address = asString(t["full"])
		}
		if loc.Address != "" && (loc.City == "" || loc.Zip == "") {
			parsed := ParseLocation(loc.Address)
			if loc.City == "" {
				loc.City, loc.State = parsed.City, parsed.State
			}
			if loc.Zip == "" {
				loc.Zip = parsed.Zip
			}
		}
		return loc, !loc.IsEmpty()
	}
	return Location{}, false
}

// asZip keeps string zips as given and left-pads numeric ones that lost a
// leading zero
func asZip(v any) string {
	switch t := v.(type) {
	case float64:
		if t >= 0 && t < 100000 && t == math.Trunc(t) {
			return strconv.FormatInt(int64(t)+100000, 10)[1:]
		}
		return asString(t)
	default:
		return asString(v)
	}
}

func ensureHazmat(d *LoadData) *HazmatInfo {
	if d.Hazmat == nil {
		d.Hazmat = &HazmatInfo{}
	}
	return d.Hazmat
}

func ensureFlatbed(d *LoadData) *FlatbedInfo {
	if d.Flatbed == nil {
		d.Flatbed = &FlatbedInfo{}
	}
	return d.Flatbed
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func insertOrdered(found []string, field string) []string {
	set := map[string]bool{field: true}
	for _, f := range found {
		set[f] = true
	}
	out := make([]string, 0, len(set))
	for _, f := range parseOrder {
		if set[f] {
			out = append(out, f)
		}
	}
	return out
}
