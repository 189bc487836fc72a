package core

// Canonical field names shared by the validator, the merger and the oracle prompts.
const (
	FieldPickupLocation           = "pickup_location"
	FieldDeliveryLocation         = "delivery_location"
	FieldCommodity                = "commodity"
	FieldWeight                   = "weight"
	FieldPickupDate               = "pickup_date"
	FieldEquipmentType            = "equipment_type"
	FieldTemperature              = "temperature"
	FieldDimensions               = "dimensions"
	FieldPieceCount               = "piece_count"
	FieldFreightClass             = "freight_class"
	FieldFreightClassOrPieceCount = "freight_class_or_piece_count"
	FieldHazmatClass              = "hazmat_class"
	FieldUNNumber                 = "un_number"
	FieldProperShippingName       = "proper_shipping_name"
	FieldPackingGroup             = "packing_group"
	FieldEmergencyContact         = "emergency_contact"
	FieldTarpingRequired          = "tarping_required"
	FieldOversizePermits          = "oversize_permits"
	FieldEscortRequired           = "escort_required"
	FieldSpecialRequirements      = "special_requirements"
	FieldAppointmentRequired      = "appointment_required"
)

type fieldInfo struct {
	display     string
	question    string
	description string
}

var fieldCatalog = map[string]fieldInfo{
	FieldPickupLocation: {
		display:     "Pickup Location",
		question:    "What is the full pickup address, or at least the city, state and zip code?",
		description: "pickup address, city, state and 5-digit zip code",
	},
	FieldDeliveryLocation: {
		display:     "Delivery Location",
		question:    "What is the full delivery address, or at least the city, state and zip code?",
		description: "delivery address, city, state and 5-digit zip code",
	},
	FieldCommodity: {
		display:     "Commodity",
		question:    "What commodity is being shipped?",
		description: "specific description of the goods being shipped",
	},
	FieldWeight: {
		display:     "Weight",
		question:    "What is the total weight in pounds?",
		description: "total shipment weight in pounds as a number",
	},
	FieldPickupDate: {
		display:     "Pickup Date",
		question:    "What date and time should the freight be picked up?",
		description: "requested pickup date and time",
	},
	FieldEquipmentType: {
		display:     "Equipment Type",
		question:    "What type of trailer do you need (dry van, reefer, flatbed)?",
		description: "trailer type such as dry van, reefer, flatbed, step deck",
	},
	FieldTemperature: {
		display:     "Temperature Range",
		question:    "What temperature range must the load be kept at?",
		description: "required temperature range, e.g. 34-38F",
	},
	FieldDimensions: {
		display:     "Dimensions",
		question:    "What are the dimensions (length x width x height) of the freight?",
		description: "length x width x height of the freight",
	},
	FieldPieceCount: {
		display:     "Piece Count",
		question:    "How many pieces or pallets are there?",
		description: "number of pieces, pallets or handling units",
	},
	FieldFreightClass: {
		display:     "Freight Class",
		question:    "What is the NMFC freight class?",
		description: "NMFC freight class between 50 and 500",
	},
	FieldFreightClassOrPieceCount: {
		display:     "Freight Class or Piece Count",
		question:    "What is the freight class, or how many pieces or pallets are there?",
		description: "NMFC freight class or number of pieces/pallets",
	},
	FieldHazmatClass: {
		display:     "Hazmat Class",
		question:    "What is the hazard class of the material?",
		description: "DOT hazard class 1-9",
	},
	FieldUNNumber: {
		display:     "UN Number",
		question:    "What is the UN number of the material?",
		description: "four-digit UN identification number, e.g. UN1203",
	},
	FieldProperShippingName: {
		display:     "Proper Shipping Name",
		question:    "What is the proper shipping name of the material?",
		description: "DOT proper shipping name",
	},
	FieldPackingGroup: {
		display:     "Packing Group",
		question:    "What is the packing group (I, II or III)?",
		description: "packing group I, II or III",
	},
	FieldEmergencyContact: {
		display:     "Emergency Contact",
		question:    "Who is the 24-hour emergency contact, with phone number?",
		description: "24-hour emergency response contact and phone number",
	},
	FieldTarpingRequired: {
		display:     "Tarping Required",
		question:    "Does the load need to be tarped?",
		description: "whether the load must be tarped",
	},
	FieldOversizePermits: {
		display:     "Oversize Permits",
		question:    "Will oversize permits be required?",
		description: "whether oversize or overweight permits are needed",
	},
	FieldEscortRequired: {
		display:     "Escort Required",
		question:    "Is a pilot car or escort required?",
		description: "whether a pilot car or escort is needed",
	},
	FieldSpecialRequirements: {
		display:     "Special Requirements",
		question:    "Are there any special handling requirements?",
		description: "special handling, accessorials or notes",
	},
	FieldAppointmentRequired: {
		display:     "Appointment Required",
		question:    "Does pickup or delivery require an appointment?",
		description: "whether pickup or delivery is by appointment only",
	},
}

// DisplayName returns the human-readable label for a field
func DisplayName(field string) string {
	if info, ok := fieldCatalog[field]; ok {
		return info.display
	}
	return field
}

// FieldQuestion returns the question asked of a shipper for a missing field
func FieldQuestion(field string) string {
	if info, ok := fieldCatalog[field]; ok {
		return info.question
	}
	return "Please provide the " + field + "."
}

// FieldDescription describes a field for extraction prompts
func FieldDescription(field string) string {
	if info, ok := fieldCatalog[field]; ok {
		return info.description
	}
	return field
}

// DisplayNames maps field names to their labels, preserving order
func DisplayNames(fields []string) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, DisplayName(f))
	}
	return out
}

// satisfies lists the composite required fields a found field can fill
var satisfies = map[string][]string{
	FieldFreightClass: {FieldFreightClassOrPieceCount},
	FieldPieceCount:   {FieldFreightClassOrPieceCount},
}

// SatisfiedFields expands found field names with the composite requirements they meet
func SatisfiedFields(found []string) map[string]bool {
	out := make(map[string]bool, len(found))
	for _, f := range found {
		out[f] = true
		for _, composite := range satisfies[f] {
			out[composite] = true
		}
	}
	return out
}
