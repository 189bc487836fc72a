package core

import (
	"fmt"
	"strconv"
	"strings"
)

// ComposeClarification builds the "what is missing and what we already have"
// payload for a request. Rendering and delivery belong to the notifier.
func ComposeClarification(req *ClarificationRequest) *ClarificationPayload {
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		subject = "Your freight quote request"
	}
	if !IsReplySubject(subject) {
		subject = "Re: " + subject
	}

	var refs []string
	for _, id := range []string{req.ThreadRootID, req.MessageID} {
		if id != "" && !containsString(refs, id) {
			refs = append(refs, id)
		}
	}

	questions := make([]string, 0, len(req.MissingFields))
	for _, f := range req.MissingFields {
		questions = append(questions, FieldQuestion(f))
	}

	return &ClarificationPayload{
		RequestID:     req.ID,
		BrokerID:      req.BrokerID,
		To:            req.ShipperEmail,
		Subject:       subject,
		InReplyTo:     req.MessageID,
		References:    refs,
		FreightType:   req.FreightType,
		MissingFields: DisplayNames(req.MissingFields),
		Questions:     questions,
		Known:         KnownValues(req.ExtractedData),
		Round:         req.Round,
	}
}

// KnownValues renders the fields already on file as display name to text
func KnownValues(d LoadData) map[string]string {
	known := make(map[string]string)
	put := func(field, value string) {
		if value != "" {
			known[DisplayName(field)] = value
		}
	}
	put(FieldPickupLocation, formatLocation(d.PickupLocation))
	put(FieldDeliveryLocation, formatLocation(d.DeliveryLocation))
	put(FieldCommodity, d.Commodity)
	if d.Weight != nil {
		put(FieldWeight, strconv.Itoa(*d.Weight)+" lbs")
	}
	put(FieldPickupDate, d.PickupDate)
	put(FieldEquipmentType, d.EquipmentType)
	if t := d.Temperature; t != nil && t.Min != nil && t.Max != nil {
		put(FieldTemperature, fmt.Sprintf("%g-%g%s", *t.Min, *t.Max, t.Unit))
	}
	if dim := d.Dimensions; dim != nil {
		put(FieldDimensions, fmt.Sprintf("%g x %g x %g %s", dim.Length, dim.Width, dim.Height, dim.Unit))
	}
	if d.PieceCount != nil {
		put(FieldPieceCount, strconv.Itoa(*d.PieceCount))
	}
	put(FieldFreightClass, d.FreightClass)
	if h := d.Hazmat; h != nil {
		put(FieldHazmatClass, h.Class)
		put(FieldUNNumber, h.UNNumber)
		put(FieldProperShippingName, h.ProperShippingName)
		put(FieldPackingGroup, h.PackingGroup)
		put(FieldEmergencyContact, h.EmergencyContact)
	}
	put(FieldSpecialRequirements, d.SpecialRequirements)
	return known
}

func formatLocation(l Location) string {
	if l.Address != "" {
		return l.Address
	}
	parts := make([]string, 0, 2)
	if l.City != "" {
		parts = append(parts, l.City)
	}
	if l.State != "" {
		parts = append(parts, l.State)
	}
	s := strings.Join(parts, ", ")
	if l.Zip != "" {
		s = strings.TrimSpace(s + " " + l.Zip)
	}
	return s
}
