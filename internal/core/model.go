package core

import (
	"time"
)

// Email represents a normalized inbound email message
type Email struct {
	From       string
	To         []string
	Subject    string
	Body       string
	MessageID  string
	InReplyTo  string
	References []string
	BrokerID   string
	Headers    map[string][]string
	ReceivedAt time.Time
}

// FreightType is the shipment mode that decides which fields a load needs
type FreightType string

const (
	FreightDryVan  FreightType = "FTL_DRY_VAN"
	FreightReefer  FreightType = "FTL_REEFER"
	FreightFlatbed FreightType = "FTL_FLATBED"
	FreightHazmat  FreightType = "FTL_HAZMAT"
	FreightLTL     FreightType = "LTL"
	FreightPartial FreightType = "PARTIAL"
	FreightUnknown FreightType = "UNKNOWN"
)

// ParseFreightType maps a label to a known freight type, or FreightUnknown
// with ok=false.
func ParseFreightType(s string) (FreightType, bool) {
	switch FreightType(s) {
	case FreightDryVan, FreightReefer, FreightFlatbed, FreightHazmat, FreightLTL, FreightPartial, FreightUnknown:
		return FreightType(s), true
	}
	return FreightUnknown, false
}

// Location is a pickup or delivery point
type Location struct {
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`
}

// IsEmpty reports whether nothing is known about the location
func (l Location) IsEmpty() bool {
	return l.Address == "" && l.City == "" && l.State == "" && l.Zip == ""
}

// Temperature is a required temperature band for refrigerated freight
type Temperature struct {
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
	Unit string   `json:"unit,omitempty"`
}

// Dimensions of the largest piece
type Dimensions struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Unit   string  `json:"unit,omitempty"`
}

// HazmatInfo carries the shipping-paper data for dangerous goods
type HazmatInfo struct {
	Declared           bool   `json:"declared,omitempty"`
	Class              string `json:"class,omitempty"`
	UNNumber           string `json:"un_number,omitempty"`
	ProperShippingName string `json:"proper_shipping_name,omitempty"`
	PackingGroup       string `json:"packing_group,omitempty"`
	EmergencyContact   string `json:"emergency_contact,omitempty"`
}

// FlatbedInfo carries open-deck handling requirements
type FlatbedInfo struct {
	TarpingRequired *bool `json:"tarping_required,omitempty"`
	OversizePermits bool  `json:"oversize_permits,omitempty"`
	EscortRequired  bool  `json:"escort_required,omitempty"`
}

// LoadData is the partial shipment record extracted from one or more emails.
// Unknown values stay unset.
type LoadData struct {
	PickupLocation      Location     `json:"pickup_location"`
	DeliveryLocation    Location     `json:"delivery_location"`
	Weight              *int         `json:"weight,omitempty"`
	Commodity           string       `json:"commodity,omitempty"`
	PickupDate          string       `json:"pickup_date,omitempty"`
	EquipmentType       string       `json:"equipment_type,omitempty"`
	Temperature         *Temperature `json:"temperature,omitempty"`
	Dimensions          *Dimensions  `json:"dimensions,omitempty"`
	PieceCount          *int         `json:"piece_count,omitempty"`
	FreightClass        string       `json:"freight_class,omitempty"`
	Hazmat              *HazmatInfo  `json:"hazmat,omitempty"`
	Flatbed             *FlatbedInfo `json:"flatbed,omitempty"`
	SpecialRequirements string       `json:"special_requirements,omitempty"`
	AppointmentRequired bool         `json:"appointment_required,omitempty"`
}

// Clone returns a deep copy so snapshots never share pointers
func (d LoadData) Clone() LoadData {
	out := d
	if d.Weight != nil {
		w := *d.Weight
		out.Weight = &w
	}
	if d.PieceCount != nil {
		p := *d.PieceCount
		out.PieceCount = &p
	}
	if d.Temperature != nil {
		t := *d.Temperature
		if d.Temperature.Min != nil {
			v := *d.Temperature.Min
			t.Min = &v
		}
		if d.Temperature.Max != nil {
			v := *d.Temperature.Max
			t.Max = &v
		}
		out.Temperature = &t
	}
	if d.Dimensions != nil {
		dim := *d.Dimensions
		out.Dimensions = &dim
	}
	if d.Hazmat != nil {
		h := *d.Hazmat
		out.Hazmat = &h
	}
	if d.Flatbed != nil {
		f := *d.Flatbed
		if d.Flatbed.TarpingRequired != nil {
			v := *d.Flatbed.TarpingRequired
			f.TarpingRequired = &v
		}
		out.Flatbed = &f
	}
	return out
}

// IssueKind classifies a validation issue
type IssueKind string

const (
	IssueMissing      IssueKind = "missing"
	IssueInsufficient IssueKind = "insufficient"
	IssueInvalid      IssueKind = "invalid"
)

// ValidationIssue is one problem found with a field
type ValidationIssue struct {
	Field   string    `json:"field"`
	Kind    IssueKind `json:"kind"`
	Message string    `json:"message"`
}

// ClarificationRequest tracks an outstanding information gap with a shipper
type ClarificationRequest struct {
	ID                     string      `json:"id"`
	BrokerID               string      `json:"broker_id"`
	ShipperEmail           string      `json:"shipper_email"`
	FreightType            FreightType `json:"freight_type"`
	TypeConfidence         int         `json:"type_confidence"`
	ExtractedData          LoadData    `json:"extracted_data"`
	MissingFields          []string    `json:"missing_fields"`
	MessageID              string      `json:"message_id"`
	ThreadRootID           string      `json:"thread_root_id"`
	Subject                string      `json:"subject"`
	ClarificationMessageID string      `json:"clarification_message_id,omitempty"`
	Round                  int         `json:"round"`
	ResponseReceived       bool        `json:"response_received"`
	MergedData             *LoadData   `json:"merged_data,omitempty"`
	LoadCreated            bool        `json:"load_created"`
	LoadID                 string      `json:"load_id,omitempty"`
	Abandoned              bool        `json:"abandoned"`
	CreatedAt              time.Time   `json:"created_at"`
	UpdatedAt              time.Time   `json:"updated_at"`
}

// IsOpen reports whether the request still awaits a reply
func (r *ClarificationRequest) IsOpen() bool {
	return !r.ResponseReceived && !r.LoadCreated && !r.Abandoned
}

// Load is the terminal shipment record handed to quoting
type Load struct {
	ID                  string      `json:"id"`
	BrokerID            string      `json:"broker_id"`
	ShipperEmail        string      `json:"shipper_email"`
	FreightType         FreightType `json:"freight_type"`
	Equipment           string      `json:"equipment"`
	OriginZip           string      `json:"origin_zip,omitempty"`
	DestinationZip      string      `json:"destination_zip,omitempty"`
	PickupAt            time.Time   `json:"pickup_at"`
	PickupDateEstimated bool        `json:"pickup_date_estimated"`
	Data                LoadData    `json:"data"`
	RawText             string      `json:"raw_text"`
	Confidence          int         `json:"confidence"`
	ComplexityFlags     []string    `json:"complexity_flags,omitempty"`
	RequiresReview      bool        `json:"requires_review"`
	ClarificationID     string      `json:"clarification_id,omitempty"`
	SourceMessageID     string      `json:"source_message_id,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
}

// ExtractionRequest is the input to the extraction oracle
type ExtractionRequest struct {
	Subject     string
	From        string
	Body        string
	FocusFields []string
}

// ExtractionResult is the oracle's classification and raw field set.
// Fields holds untrusted JSON values keyed by field name.
type ExtractionResult struct {
	IsLoadRequest           bool
	Confidence              int
	ExtractionConfidence    int
	Intent                  string
	SuggestedFreightType    string
	SuggestedTypeConfidence int
	Fields                  map[string]any
	Reasoning               string
	Model                   string
}

// Action is the pipeline's decision for one email
type Action string

const (
	ActionIgnore               Action = "ignore"
	ActionRequestClarification Action = "request_clarification"
	ActionProceedToQuote       Action = "proceed_to_quote"
)

// ClarificationPayload is the structured "what is missing" message for a shipper
type ClarificationPayload struct {
	RequestID     string            `json:"request_id"`
	BrokerID      string            `json:"broker_id"`
	To            string            `json:"to"`
	Subject       string            `json:"subject"`
	InReplyTo     string            `json:"in_reply_to,omitempty"`
	References    []string          `json:"references,omitempty"`
	FreightType   FreightType       `json:"freight_type"`
	MissingFields []string          `json:"missing_fields"`
	Questions     []string          `json:"questions"`
	Known         map[string]string `json:"known"`
	Round         int               `json:"round"`
}

// IntakeResult is returned to the caller for every processed email
type IntakeResult struct {
	Action                 Action                `json:"action"`
	Reason                 string                `json:"reason"`
	FreightType            FreightType           `json:"freight_type,omitempty"`
	TypeConfidence         int                   `json:"type_confidence,omitempty"`
	Confidence             int                   `json:"confidence"`
	Intent                 string                `json:"intent,omitempty"`
	LoadData               *LoadData             `json:"load_data,omitempty"`
	Issues                 []ValidationIssue     `json:"issues,omitempty"`
	Warnings               []string              `json:"warnings,omitempty"`
	ClarificationNeeded    []string              `json:"clarification_needed,omitempty"`
	ClarificationRequestID string                `json:"clarification_request_id,omitempty"`
	Clarification          *ClarificationPayload `json:"clarification,omitempty"`
	LoadID                 string                `json:"load_id,omitempty"`
	LoadCreated            bool                  `json:"load_created"`
	Duplicate              bool                  `json:"duplicate,omitempty"`
	IsReply                bool                  `json:"is_reply"`
	RequiresReview         bool                  `json:"requires_review"`
}
