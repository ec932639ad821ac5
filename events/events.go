package events

import (
	"time"

	"github.com/room4-2/receptionist/lead"
)

// Subjects.
const (
	SubjectLeadCaptured  = "receptionist.lead.captured"
	SubjectCallCompleted = "receptionist.call.completed"
)

// Publisher sends one payload on a subject. *Client implements it.
type Publisher interface {
	Publish(subject string, data any) error
}

// CallCompleted is emitted once per processed call.
type CallCompleted struct {
	CallID          string        `json:"call_id"`
	TenantID        string        `json:"tenant_id"`
	From            string        `json:"from,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	DurationSeconds int           `json:"duration_seconds"`
	Intent          string        `json:"intent"`
	Category        lead.Category `json:"category"`
	CallerName      string        `json:"caller_name"`
	Priority        bool          `json:"priority"`
	Voicemail       bool          `json:"voicemail"`
	Summary         string        `json:"summary,omitempty"`
	RecordingURL    string        `json:"recording_url,omitempty"`
}

// LeadCaptured is emitted when the assistant collected the caller's details.
type LeadCaptured struct {
	CallID   string         `json:"call_id"`
	TenantID string         `json:"tenant_id"`
	Category lead.Category  `json:"category"`
	Priority bool           `json:"priority"`
	Lead     *lead.Captured `json:"lead"`
	Analysis *lead.Analysis `json:"analysis,omitempty"`
}

// Emit publishes the completion event and, when a lead was captured, the
// lead event. The first error is returned after both attempts.
func Emit(p Publisher, done CallCompleted, l lead.Lead) error {
	var first error
	if l.HasCapture() {
		first = p.Publish(SubjectLeadCaptured, LeadCaptured{
			CallID:   done.CallID,
			TenantID: done.TenantID,
			Category: l.Category,
			Priority: l.Priority,
			Lead:     l.Captured,
			Analysis: l.Analysis,
		})
	}
	if err := p.Publish(SubjectCallCompleted, done); err != nil && first == nil {
		first = err
	}
	return first
}
