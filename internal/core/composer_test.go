package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeClarification(t *testing.T) {
	req := &ClarificationRequest{
		ID:           "req-1",
		BrokerID:     "broker-1",
		ShipperEmail: "ops@shipper.test",
		FreightType:  FreightReefer,
		Subject:      "Need a reefer",
		MessageID:    "m2@shipper.test",
		ThreadRootID: "m1@shipper.test",
		MissingFields: []string{
			FieldTemperature,
			FieldWeight,
		},
		ExtractedData: LoadData{
			PickupLocation:   Location{City: "Dallas", State: "TX", Zip: "75201"},
			DeliveryLocation: Location{Address: "100 Peachtree St, Atlanta, GA"},
			Commodity:        "frozen chicken",
		},
		Round: 2,
	}

	p := ComposeClarification(req)
	assert.Equal(t, "req-1", p.RequestID)
	assert.Equal(t, "broker-1", p.BrokerID)
	assert.Equal(t, "ops@shipper.test", p.To)
	assert.Equal(t, "Re: Need a reefer", p.Subject)
	assert.Equal(t, "m2@shipper.test", p.InReplyTo)
	assert.Equal(t, []string{"m1@shipper.test", "m2@shipper.test"}, p.References)
	assert.Equal(t, []string{"Temperature Range", "Weight"}, p.MissingFields)
	require.Len(t, p.Questions, 2)
	assert.Equal(t, FieldQuestion(FieldTemperature), p.Questions[0])
	assert.Equal(t, 2, p.Round)
	assert.Equal(t, map[string]string{
		"Pickup Location":   "Dallas, TX 75201",
		"Delivery Location": "100 Peachtree St, Atlanta, GA",
		"Commodity":         "frozen chicken",
	}, p.Known)
}

func TestComposeClarification_SubjectAndRefs(t *testing.T) {
	p := ComposeClarification(&ClarificationRequest{
		Subject:      "RE: quote",
		MessageID:    "m1",
		ThreadRootID: "m1",
	})
	assert.Equal(t, "RE: quote", p.Subject)
	assert.Equal(t, []string{"m1"}, p.References)

	p = ComposeClarification(&ClarificationRequest{})
	assert.Equal(t, "Re: Your freight quote request", p.Subject)
	assert.Empty(t, p.References)
	assert.Empty(t, p.Known)
}

func TestKnownValues(t *testing.T) {
	d := LoadData{
		Weight:      intPtr(42000),
		Temperature: &Temperature{Min: floatPtr(34), Max: floatPtr(38), Unit: "F"},
		Dimensions:  &Dimensions{Length: 48, Width: 40, Height: 50.5, Unit: "in"},
		PieceCount:  intPtr(22),
		Hazmat:      &HazmatInfo{UNNumber: "UN1263"},
	}
	known := KnownValues(d)
	assert.Equal(t, "42000 lbs", known["Weight"])
	assert.Equal(t, "34-38F", known["Temperature Range"])
	assert.Equal(t, "48 x 40 x 50.5 in", known["Dimensions"])
	assert.Equal(t, "22", known["Piece Count"])
	assert.Equal(t, "UN1263", known["UN Number"])
	assert.NotContains(t, known, "Hazmat Class")
}

func TestStripQuotedReply(t *testing.T) {
	body := "Delivery is Atlanta, GA 30303\r\nThanks\r\n\r\nOn Tue, Mar 12, 2024 at 9:00 AM Broker <q@broker.test> wrote:\r\n> What is the delivery location?\r\n"
	assert.Equal(t, "Delivery is Atlanta, GA 30303\nThanks", StripQuotedReply(body))

	outlook := "It weighs 40k\n\n-----Original Message-----\nFrom: Broker\nSubject: quote"
	assert.Equal(t, "It weighs 40k", StripQuotedReply(outlook))

	inline := "> quoted line\nanswer inline\n> another"
	assert.Equal(t, "answer inline", StripQuotedReply(inline))

	onlyQuoted := "> everything quoted"
	assert.Equal(t, onlyQuoted, StripQuotedReply(onlyQuoted))
}

func TestDisplayNamesAndQuestions(t *testing.T) {
	assert.Equal(t, []string{"Pickup Location", "Freight Class or Piece Count"},
		DisplayNames([]string{FieldPickupLocation, FieldFreightClassOrPieceCount}))
	assert.Equal(t, "custom_field", DisplayName("custom_field"))
	assert.Equal(t, "Please provide the custom_field.", FieldQuestion("custom_field"))
	assert.NotEmpty(t, FieldDescription(FieldUNNumber))
}
