// Package lead turns a finished call into the fields an owner needs to
// follow up: what the caller wanted, who they are and how to reach them.
//
// Extraction is best effort. Nothing here returns an error; short or
// missing input yields fixed sentinel values.
package lead

// Category groups a call by the line of work it concerns.
type Category string

const (
	CategoryLawn   Category = "LAWN"
	CategoryWindow Category = "WINDOW"
	CategorySnow   Category = "SNOW"
	CategoryGarden Category = "GARDEN"
	CategoryMisc   Category = "MISC"
)

// Intents.
const (
	IntentNone        = "No conversation"
	IntentQuote       = "Quote request"
	IntentBooking     = "Booking request"
	IntentCancel      = "Cancellation/reschedule"
	IntentInformation = "Information request"
	IntentGeneral     = "General inquiry"
)

// UnknownName is returned when no caller name can be found.
const UnknownName = "Unknown"

// Turn roles.
const (
	RoleAgent = "agent"
	RoleUser  = "user"
)

// Turn is one utterance of the call, in order.
type Turn struct {
	Role               string  `json:"role"`
	Content            string  `json:"content"`
	StartOffsetSeconds float64 `json:"startOffsetSeconds,omitempty"`
}

// Captured is the payload of the capture_lead tool the assistant calls
// once it has the caller's details.
type Captured struct {
	Name         string `json:"name,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Address      string `json:"address,omitempty"`
	Service      string `json:"service,omitempty"`
	PropertyType string `json:"property_type,omitempty"`
	Timing       string `json:"timing,omitempty"`
	Urgency      string `json:"urgency,omitempty"`
	Details      string `json:"details,omitempty"`
}

// IsEmpty reports whether the assistant captured nothing usable.
func (c *Captured) IsEmpty() bool {
	return c == nil || *c == Captured{}
}

// Analysis carries the post-call scoring a voice platform may attach.
type Analysis struct {
	LeadQuality      string `json:"lead_quality,omitempty"`
	Sentiment        string `json:"sentiment,omitempty"`
	Urgency          string `json:"urgency,omitempty"`
	CompletionStatus string `json:"completion_status,omitempty"`
	FollowUpPriority string `json:"follow_up_priority,omitempty"`
}

// Lead is the annotated result of one call.
type Lead struct {
	Intent            string    `json:"intent"`
	Category          Category  `json:"category"`
	CallerName        string    `json:"callerName"`
	FormattedPhone    string    `json:"formattedPhone"`
	FormattedDuration string    `json:"formattedDuration"`
	Captured          *Captured `json:"captured,omitempty"`
	Analysis          *Analysis `json:"analysis,omitempty"`
	Priority          bool      `json:"priority"`
}

// HasCapture reports whether the lead came with a structured capture.
func (l Lead) HasCapture() bool {
	return !l.Captured.IsEmpty()
}
