package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	maxLegalWeight      = 80000
	minCommodityLength  = 3
	minReeferFahrenheit = -30.0
	maxReeferFahrenheit = 80.0
)

var (
	unNumberPattern    = regexp.MustCompile(`^(UN|NA)\d{4}$`)
	hazmatClassPattern = regexp.MustCompile(`^[1-9](\.[1-6])?[A-Z]?$`)
)

var genericCommodities = map[string]bool{
	"freight":         true,
	"general freight": true,
	"general":         true,
	"goods":           true,
	"stuff":           true,
	"misc":            true,
	"miscellaneous":   true,
	"various":         true,
	"items":           true,
	"products":        true,
	"product":         true,
	"materials":       true,
	"cargo":           true,
	"load":            true,
	"tbd":             true,
}

var nmfcClasses = map[string]bool{
	"50": true, "55": true, "60": true, "65": true, "70": true, "77.5": true, "85": true,
	"92.5": true, "100": true, "110": true, "125": true, "150": true, "175": true,
	"200": true, "250": true, "300": true, "400": true, "500": true,
}

// RequiredFieldsResult lists absent required fields and non-blocking warnings
type RequiredFieldsResult struct {
	MissingFields []string
	Warnings      []string
}

// FreightValidator checks load data against the per-type field policy.
// It has no state and never fails.
type FreightValidator struct{}

// NewFreightValidator creates a validator
func NewFreightValidator() *FreightValidator {
	return &FreightValidator{}
}

type requirement struct {
	field   string
	present func(LoadData) bool
}

var (
	baseRequirements = []requirement{
		{FieldPickupLocation, func(d LoadData) bool { return !d.PickupLocation.IsEmpty() }},
		{FieldDeliveryLocation, func(d LoadData) bool { return !d.DeliveryLocation.IsEmpty() }},
		{FieldCommodity, func(d LoadData) bool { return strings.TrimSpace(d.Commodity) != "" }},
	}
	weightRequirement = requirement{FieldWeight, func(d LoadData) bool { return d.Weight != nil }}

	typeRequirements = map[FreightType][]requirement{
		FreightReefer: {
			{FieldTemperature, func(d LoadData) bool {
				return d.Temperature != nil && d.Temperature.Min != nil && d.Temperature.Max != nil
			}},
		},
		FreightFlatbed: {
			{FieldDimensions, func(d LoadData) bool { return d.Dimensions != nil }},
		},
		FreightHazmat: {
			{FieldHazmatClass, func(d LoadData) bool { return d.Hazmat != nil && d.Hazmat.Class != "" }},
			{FieldUNNumber, func(d LoadData) bool { return d.Hazmat != nil && d.Hazmat.UNNumber != "" }},
			{FieldProperShippingName, func(d LoadData) bool { return d.Hazmat != nil && d.Hazmat.ProperShippingName != "" }},
			{FieldEmergencyContact, func(d LoadData) bool { return d.Hazmat != nil && d.Hazmat.EmergencyContact != "" }},
		},
		FreightLTL: {
			{FieldFreightClassOrPieceCount, func(d LoadData) bool { return d.FreightClass != "" || d.PieceCount != nil }},
		},
	}
)

func requirementsFor(ft FreightType) []requirement {
	reqs := append([]requirement{}, baseRequirements...)
	if ft != FreightUnknown {
		reqs = append(reqs, weightRequirement)
	}
	return append(reqs, typeRequirements[ft]...)
}

// RequiredFields returns the required field names for a freight type in policy order
func RequiredFields(ft FreightType) []string {
	reqs := requirementsFor(ft)
	out := make([]string, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, r.field)
	}
	return out
}

// ValidateRequiredFields reports which required fields are absent
func (v *FreightValidator) ValidateRequiredFields(data LoadData, ft FreightType) RequiredFieldsResult {
	res := RequiredFieldsResult{MissingFields: []string{}, Warnings: []string{}}
	for _, r := range requirementsFor(ft) {
		if !r.present(data) {
			res.MissingFields = append(res.MissingFields, r.field)
		}
	}

	if strings.TrimSpace(data.PickupDate) == "" {
		res.Warnings = append(res.Warnings, "No pickup date provided")
	}
	if strings.TrimSpace(data.EquipmentType) == "" {
		res.Warnings = append(res.Warnings, "No equipment type specified")
	}
	if ft == FreightHazmat && (data.Hazmat == nil || data.Hazmat.PackingGroup == "") {
		res.Warnings = append(res.Warnings, "Hazmat packing group not specified")
	}
	if ft == FreightFlatbed && (data.Flatbed == nil || data.Flatbed.TarpingRequired == nil) {
		res.Warnings = append(res.Warnings, "Tarping requirements not specified")
	}
	return res
}

// ValidateSemantics flags values that are present but unusable
func (v *FreightValidator) ValidateSemantics(data LoadData, ft FreightType) []ValidationIssue {
	issues := []ValidationIssue{}
	add := func(field string, kind IssueKind, format string, args ...any) {
		issues = append(issues, ValidationIssue{Field: field, Kind: kind, Message: fmt.Sprintf(format, args...)})
	}

	if c := strings.TrimSpace(data.Commodity); c != "" {
		if len(c) < minCommodityLength || genericCommodities[strings.ToLower(c)] {
			add(FieldCommodity, IssueInsufficient, "Commodity %q is too vague to quote", c)
		}
	}

	for _, loc := range []struct {
		field string
		value Location
	}{
		{FieldPickupLocation, data.PickupLocation},
		{FieldDeliveryLocation, data.DeliveryLocation},
	} {
		if loc.value.IsEmpty() {
			continue
		}
		if loc.value.Zip != "" && !IsValidZip(loc.value.Zip) {
			add(loc.field, IssueInvalid, "%s zip code %q is not a 5-digit zip", DisplayName(loc.field), loc.value.Zip)
			continue
		}
		if !locationSpecific(loc.value) {
			add(loc.field, IssueInsufficient, "%s needs a city and state or a zip code", DisplayName(loc.field))
		}
	}

	if data.Weight != nil {
		w := *data.Weight
		switch {
		case w <= 0:
			add(FieldWeight, IssueInvalid, "Weight must be greater than zero")
		case w > maxLegalWeight && !(data.Flatbed != nil && data.Flatbed.OversizePermits):
			add(FieldWeight, IssueInvalid, "Weight %d lbs exceeds the %d lbs legal limit without permits", w, maxLegalWeight)
		}
	}

	if t := data.Temperature; t != nil && t.Min != nil && t.Max != nil {
		if *t.Min > *t.Max {
			add(FieldTemperature, IssueInvalid, "Temperature minimum %.1f is above maximum %.1f", *t.Min, *t.Max)
		} else if ft == FreightReefer {
			lo, hi := toFahrenheit(*t.Min, t.Unit), toFahrenheit(*t.Max, t.Unit)
			if lo < minReeferFahrenheit || hi > maxReeferFahrenheit {
				add(FieldTemperature, IssueInvalid, "Temperature range is outside what a reefer can hold")
			}
		}
	}

	if d := data.Dimensions; d != nil && (d.Length <= 0 || d.Width <= 0 || d.Height <= 0) {
		add(FieldDimensions, IssueInvalid, "Dimensions must all be greater than zero")
	}

	if data.FreightClass != "" && !nmfcClasses[canonicalClass(data.FreightClass)] {
		add(FieldFreightClass, IssueInvalid, "Freight class %q is not a valid NMFC class", data.FreightClass)
	}
	if data.PieceCount != nil && *data.PieceCount <= 0 {
		add(FieldPieceCount, IssueInvalid, "Piece count must be greater than zero")
	}

	if h := data.Hazmat; h != nil {
		if h.Class != "" && !hazmatClassPattern.MatchString(strings.ToUpper(h.Class)) {
			add(FieldHazmatClass, IssueInvalid, "Hazmat class %q is not a DOT hazard class", h.Class)
		}
		if h.UNNumber != "" && !unNumberPattern.MatchString(h.UNNumber) {
			add(FieldUNNumber, IssueInvalid, "UN number %q must look like UN1234", h.UNNumber)
		}
	}

	if appointmentCritical(data) && data.PickupDate != "" && IsVagueDate(data.PickupDate) {
		add(FieldPickupDate, IssueInsufficient, "Pickup date %q has no concrete day for an appointment load", data.PickupDate)
	}

	return issues
}

// Validate runs both checks and returns missing-field issues first
func (v *FreightValidator) Validate(data LoadData, ft FreightType) ([]ValidationIssue, []string) {
	required := v.ValidateRequiredFields(data, ft)
	issues := make([]ValidationIssue, 0, len(required.MissingFields))
	for _, f := range required.MissingFields {
		issues = append(issues, ValidationIssue{
			Field:   f,
			Kind:    IssueMissing,
			Message: DisplayName(f) + " is required",
		})
	}
	issues = append(issues, v.ValidateSemantics(data, ft)...)
	return issues, required.Warnings
}

// DefaultCriticalFields are the fields whose insufficiency blocks quoting
var DefaultCriticalFields = []string{FieldPickupLocation, FieldDeliveryLocation, FieldCommodity}

// CriticalIssues returns the issues that block quoting: every missing field,
// and insufficient values of the critical fields
func CriticalIssues(issues []ValidationIssue, criticalFields []string) []ValidationIssue {
	critical := make(map[string]bool, len(criticalFields))
	for _, f := range criticalFields {
		critical[f] = true
	}
	var out []ValidationIssue
	for _, is := range issues {
		if is.Kind == IssueMissing || (is.Kind == IssueInsufficient && critical[is.Field]) {
			out = append(out, is)
		}
	}
	return out
}

func locationSpecific(l Location) bool {
	if IsValidZip(l.Zip) {
		return true
	}
	if l.City != "" && l.State != "" {
		return true
	}
	parsed := ParseLocation(l.Address)
	return parsed.City != "" && parsed.State != ""
}

func appointmentCritical(d LoadData) bool {
	if d.AppointmentRequired {
		return true
	}
	s := strings.ToLower(d.SpecialRequirements)
	return strings.Contains(s, "appointment") || containsWord(s, "appt")
}

func canonicalClass(s string) string {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return s
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func toFahrenheit(v float64, unit string) float64 {
	if strings.EqualFold(unit, "C") {
		return v*9/5 + 32
	}
	return v
}
