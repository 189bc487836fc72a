package core

import (
	"strings"
)

// FreightTypeResult is the classifier's decision and the fixed score of the
// rule that produced it
type FreightTypeResult struct {
	FreightType FreightType
	Confidence  int
	Rule        string
}

// freightRule is one rung of the classification ladder. match returns
// ok=false to let the next rule decide.
type freightRule struct {
	name  string
	match func(d LoadData) (FreightType, int, bool)
}

var hazmatKeywords = []string{
	"hazmat", "haz mat", "hazardous", "dangerous goods", "flammable", "corrosive",
	"explosive", "toxic", "radioactive", "placard",
}

// equipmentKeywords is checked in order, so multi-word phrases come first
var equipmentKeywords = []struct {
	phrase string
	ft     FreightType
}{
	{"refrigerated", FreightReefer},
	{"reefer", FreightReefer},
	{"temp controlled", FreightReefer},
	{"step deck", FreightFlatbed},
	{"stepdeck", FreightFlatbed},
	{"flat bed", FreightFlatbed},
	{"flatbed", FreightFlatbed},
	{"conestoga", FreightFlatbed},
	{"lowboy", FreightFlatbed},
	{"rgn", FreightFlatbed},
	{"dry van", FreightDryVan},
	{"dryvan", FreightDryVan},
	{"van", FreightDryVan},
}

// freightRules is the classification ladder. Order is policy: the first
// matching rule wins.
var freightRules = []freightRule{
	{"hazmat_indicators", func(d LoadData) (FreightType, int, bool) {
		if hasHazmatIndicator(d) {
			return FreightHazmat, 95, true
		}
		return "", 0, false
	}},
	{"equipment_keyword", func(d LoadData) (FreightType, int, bool) {
		if ft, ok := equipmentType(d.EquipmentType); ok {
			return ft, 95, true
		}
		return "", 0, false
	}},
	{"ltl_markers", func(d LoadData) (FreightType, int, bool) {
		switch {
		case d.FreightClass != "":
			return FreightLTL, 90, true
		case d.PieceCount != nil:
			return FreightLTL, 85, true
		}
		return "", 0, false
	}},
	{"weight_band", func(d LoadData) (FreightType, int, bool) {
		if d.Weight == nil || *d.Weight <= 0 {
			return "", 0, false
		}
		w := *d.Weight
		switch {
		case w < 5000:
			return FreightLTL, 85, true
		case w <= 15000:
			return FreightPartial, 85, true
		case strings.TrimSpace(d.EquipmentType) == "":
			return FreightPartial, 80, true
		}
		return "", 0, false
	}},
	{"temperature_range", func(d LoadData) (FreightType, int, bool) {
		if d.Temperature != nil {
			return FreightReefer, 80, true
		}
		return "", 0, false
	}},
	{"dimensions", func(d LoadData) (FreightType, int, bool) {
		if d.Dimensions != nil {
			return FreightFlatbed, 75, true
		}
		return "", 0, false
	}},
	{"default", func(d LoadData) (FreightType, int, bool) {
		return FreightDryVan, 70, true
	}},
}

// FreightClassifier assigns a freight type from load data alone
type FreightClassifier struct {
	rules []freightRule
}

// NewFreightClassifier creates a classifier over the standard ladder
func NewFreightClassifier() *FreightClassifier {
	return &FreightClassifier{rules: freightRules}
}

// Identify evaluates the ladder top-down and returns the first match
func (c *FreightClassifier) Identify(data LoadData) FreightTypeResult {
	for _, r := range c.rules {
		if ft, conf, ok := r.match(data); ok {
			return FreightTypeResult{FreightType: ft, Confidence: conf, Rule: r.name}
		}
	}
	return FreightTypeResult{FreightType: FreightUnknown, Confidence: 0, Rule: "none"}
}

func hasHazmatIndicator(d LoadData) bool {
	if h := d.Hazmat; h != nil && (h.Declared || h.Class != "" || h.UNNumber != "") {
		return true
	}
	text := strings.ToLower(d.Commodity + " " + d.SpecialRequirements + " " + d.EquipmentType)
	for _, kw := range hazmatKeywords {
		if containsWord(text, kw) {
			return true
		}
	}
	return false
}

func equipmentType(s string) (FreightType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}
	for _, k := range equipmentKeywords {
		if containsWord(s, k.phrase) {
			return k.ft, true
		}
	}
	return "", false
}
