package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFreightClassifier_Identify(t *testing.T) {
	c := NewFreightClassifier()

	tests := []struct {
		name       string
		data       LoadData
		want       FreightType
		confidence int
		rule       string
	}{
		{
			name:       "declared un number",
			data:       LoadData{Hazmat: &HazmatInfo{UNNumber: "UN1203"}, EquipmentType: "reefer"},
			want:       FreightHazmat,
			confidence: 95,
			rule:       "hazmat_indicators",
		},
		{
			name:       "hazmat keyword in commodity",
			data:       LoadData{Commodity: "Flammable paint thinner", Weight: intPtr(3000)},
			want:       FreightHazmat,
			confidence: 95,
			rule:       "hazmat_indicators",
		},
		{
			name:       "reefer equipment",
			data:       LoadData{EquipmentType: "53' Reefer", Weight: intPtr(3000)},
			want:       FreightReefer,
			confidence: 95,
			rule:       "equipment_keyword",
		},
		{
			name:       "step deck equipment",
			data:       LoadData{EquipmentType: "Step Deck"},
			want:       FreightFlatbed,
			confidence: 95,
			rule:       "equipment_keyword",
		},
		{
			name:       "freight class",
			data:       LoadData{FreightClass: "70", Weight: intPtr(30000)},
			want:       FreightLTL,
			confidence: 90,
			rule:       "ltl_markers",
		},
		{
			name:       "piece count",
			data:       LoadData{PieceCount: intPtr(4)},
			want:       FreightLTL,
			confidence: 85,
			rule:       "ltl_markers",
		},
		{
			name:       "light weight",
			data:       LoadData{Weight: intPtr(3000)},
			want:       FreightLTL,
			confidence: 85,
			rule:       "weight_band",
		},
		{
			name:       "mid weight",
			data:       LoadData{Weight: intPtr(12000)},
			want:       FreightPartial,
			confidence: 85,
			rule:       "weight_band",
		},
		{
			name:       "heavy with nothing else",
			data:       LoadData{Weight: intPtr(20000)},
			want:       FreightPartial,
			confidence: 80,
			rule:       "weight_band",
		},
		{
			name:       "heavy with temperature",
			data:       LoadData{Weight: intPtr(20000), Temperature: &Temperature{Min: floatPtr(34), Max: floatPtr(38)}},
			want:       FreightPartial,
			confidence: 80,
			rule:       "weight_band",
		},
		{
			name:       "mid weight with temperature",
			data:       LoadData{Weight: intPtr(10000), Temperature: &Temperature{Min: floatPtr(34), Max: floatPtr(38)}},
			want:       FreightPartial,
			confidence: 85,
			rule:       "weight_band",
		},
		{
			name:       "heavy with dimensions",
			data:       LoadData{Weight: intPtr(42000), Dimensions: &Dimensions{Length: 40, Width: 8, Height: 8}},
			want:       FreightPartial,
			confidence: 80,
			rule:       "weight_band",
		},
		{
			name:       "temperature without weight",
			data:       LoadData{Temperature: &Temperature{Min: floatPtr(34), Max: floatPtr(38)}},
			want:       FreightReefer,
			confidence: 80,
			rule:       "temperature_range",
		},
		{
			name:       "heavy with unrecognised equipment and temperature",
			data:       LoadData{Weight: intPtr(42000), EquipmentType: "box truck", Temperature: &Temperature{Min: floatPtr(34), Max: floatPtr(38)}},
			want:       FreightReefer,
			confidence: 80,
			rule:       "temperature_range",
		},
		{
			name:       "dimensions without weight",
			data:       LoadData{Dimensions: &Dimensions{Length: 40, Width: 8, Height: 8}},
			want:       FreightFlatbed,
			confidence: 75,
			rule:       "dimensions",
		},
		{
			name:       "unrecognised equipment",
			data:       LoadData{Weight: intPtr(42000), EquipmentType: "box truck"},
			want:       FreightDryVan,
			confidence: 70,
			rule:       "default",
		},
		{
			name:       "nothing known",
			data:       LoadData{},
			want:       FreightDryVan,
			confidence: 70,
			rule:       "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Identify(tt.data)
			assert.Equal(t, tt.want, res.FreightType)
			assert.Equal(t, tt.confidence, res.Confidence)
			assert.Equal(t, tt.rule, res.Rule)
		})
	}
}

func TestFreightClassifier_Deterministic(t *testing.T) {
	c := NewFreightClassifier()
	d := LoadData{Commodity: "frozen chicken", Weight: intPtr(38000), Temperature: &Temperature{Min: floatPtr(0), Max: floatPtr(4)}}

	first := c.Identify(d)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, c.Identify(d))
	}
}

func TestFreightClassifier_WordBoundaries(t *testing.T) {
	c := NewFreightClassifier()

	// "vanilla" must not read as a van, "nontoxic" must not read as toxic
	res := c.Identify(LoadData{Commodity: "nontoxic vanilla extract", EquipmentType: "vanilla", Weight: intPtr(42000)})
	assert.Equal(t, FreightDryVan, res.FreightType)
	assert.Equal(t, "default", res.Rule)
}
