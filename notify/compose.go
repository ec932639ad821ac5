package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/room4-2/receptionist/lead"
)

const (
	unknownNumber   = "Unknown Number"
	serviceFallback = "Service Request"
	subjectDate     = "Jan 2, 3:04 PM"
	bodyTime        = "Mon, Jan 2, 2006 3:04 PM MST"
)

// Summary is what the owner is told about one call.
type Summary struct {
	CallID        string
	BusinessName  string
	AssistantName string
	From          string
	To            string
	StartedAt     time.Time
	Location      *time.Location

	Summary string
	// Turns is preferred. TranscriptText is used for calls transcribed
	// from the recording.
	Turns          []lead.Turn
	TranscriptText string

	Lead         lead.Lead
	RecordingURL string
	Voicemail    bool
}

// IsVoicemail reports whether no live conversation took place.
func (s *Summary) IsVoicemail() bool {
	if s.Voicemail {
		return true
	}
	return s.Lead.Analysis != nil && s.Lead.Analysis.CompletionStatus == "voicemail"
}

// IsPriority reports whether the owner should call back today.
func (s *Summary) IsPriority() bool {
	if s.Lead.Priority {
		return true
	}
	a := s.Lead.Analysis
	return a != nil && (a.LeadQuality == "hot" || a.FollowUpPriority == "call_today")
}

func (s *Summary) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// Subject picks the subject line: a captured lead first, then voicemail,
// then the extracted intent.
func Subject(s *Summary) string {
	l := s.Lead
	switch {
	case l.HasCapture():
		name := strings.TrimSpace(l.Captured.Name)
		if name == "" {
			name = l.CallerName
		}
		return fmt.Sprintf("New Lead: %s - %s", name, serviceDisplay(l.Captured.Service))
	case s.IsVoicemail():
		from := s.From
		if from == "" {
			from = unknownNumber
		}
		return "Voicemail Received - " + from
	default:
		return fmt.Sprintf("%s: %s - %s", l.Category, l.Intent, s.StartedAt.In(s.location()).Format(subjectDate))
	}
}

func serviceDisplay(service string) string {
	service = strings.TrimSpace(service)
	if service == "" {
		return serviceFallback
	}
	return strings.ToUpper(strings.ReplaceAll(service, "_", " "))
}

func humanize(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}

// Compose renders both bodies of the summary email.
func Compose(s *Summary, routing Routing) (*Message, error) {
	view := newView(s)

	var text bytes.Buffer
	if err := textBody.Execute(&text, view); err != nil {
		return nil, fmt.Errorf("render text body: %w", err)
	}
	var html bytes.Buffer
	if err := htmlBody.Execute(&html, view); err != nil {
		return nil, fmt.Errorf("render html body: %w", err)
	}

	return &Message{
		From:    routing.From,
		To:      splitAddresses(routing.To),
		BCC:     splitAddresses(routing.BCC),
		Subject: Subject(s),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

type field struct {
	Label string
	Value string
}

type transcriptLine struct {
	Time    string
	Speaker string
	Text    string
	Agent   bool
}

type view struct {
	*Summary
	Time         string
	CallerName   string
	Phone        string
	Duration     string
	Intent       string
	Category     string
	ServiceName  string
	LeadFields   []field
	Analysis     []field
	Priority     bool
	VoicemailHit bool
	Transcript   string
	Lines        []transcriptLine
	SummaryLines []string
}

func newView(s *Summary) *view {
	l := s.Lead
	v := &view{
		Summary:      s,
		Time:         s.StartedAt.In(s.location()).Format(bodyTime),
		CallerName:   l.CallerName,
		Phone:        l.FormattedPhone,
		Duration:     l.FormattedDuration,
		Intent:       l.Intent,
		Category:     string(l.Category),
		Priority:     s.IsPriority(),
		VoicemailHit: s.IsVoicemail(),
	}

	if c := l.Captured; !c.IsEmpty() {
		v.ServiceName = serviceDisplay(c.Service)
		add := func(label, value string) {
			if value = strings.TrimSpace(value); value != "" {
				v.LeadFields = append(v.LeadFields, field{label, value})
			}
		}
		add("Name", c.Name)
		add("Phone", c.Phone)
		add("Address", c.Address)
		add("Service", v.ServiceName)
		add("Property", c.PropertyType)
		add("Timing", c.Timing)
		add("Urgency", humanize(c.Urgency))
		add("Details", c.Details)
	}

	if a := l.Analysis; a != nil {
		add := func(label, value string) {
			if value != "" {
				v.Analysis = append(v.Analysis, field{label, humanize(value)})
			}
		}
		add("Lead Quality", strings.ToUpper(a.LeadQuality))
		add("Sentiment", a.Sentiment)
		add("Urgency", a.Urgency)
		add("Completion", a.CompletionStatus)
		add("Follow-up", a.FollowUpPriority)
	}

	if len(s.Turns) > 0 {
		v.Transcript = lead.Labeled(s.Turns, s.AssistantName)
		for _, t := range s.Turns {
			content := strings.TrimSpace(t.Content)
			if content == "" {
				continue
			}
			speaker, agent := "Caller", t.Role == lead.RoleAgent
			if agent {
				speaker = s.AssistantName
				if speaker == "" {
					speaker = "Assistant"
				}
			}
			v.Lines = append(v.Lines, transcriptLine{
				Time:    lead.FormatTimestamp(t.StartOffsetSeconds),
				Speaker: speaker,
				Text:    content,
				Agent:   agent,
			})
		}
	} else {
		v.Transcript = strings.TrimSpace(s.TranscriptText)
	}
	if v.Transcript == "" {
		v.Transcript = "No transcript available."
	}

	for _, line := range strings.Split(strings.TrimSpace(s.Summary), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			v.SummaryLines = append(v.SummaryLines, line)
		}
	}
	return v
}

var textBody = texttemplate.Must(texttemplate.New("text").Parse(`New Call Summary - {{.BusinessName}}
================================
{{if .Priority}}
*** PRIORITY: call this lead back today ***
{{end}}
CALLER: {{.CallerName}}
PHONE: {{.Phone}}
DURATION: {{.Duration}}
INTENT: {{.Intent}} ({{.Category}})
TIME: {{.Time}}
{{- if .VoicemailHit}}
VOICEMAIL: no live conversation took place
{{- end}}
{{if .LeadFields}}
LEAD INFORMATION
----------------
{{range .LeadFields}}{{.Label}}: {{.Value}}
{{end}}{{else}}
Lead information was not fully captured.
{{end}}{{if .Analysis}}
ANALYSIS
--------
{{range .Analysis}}{{.Label}}: {{.Value}}
{{end}}{{end}}
SUMMARY
-------
{{.Summary.Summary}}

RECORDING: {{if .RecordingURL}}{{.RecordingURL}}{{else}}Not available{{end}}

TRANSCRIPT
----------
{{.Transcript}}

---
Automated notification from {{.AssistantName}}, your AI receptionist
`))

var htmlBody = htmltemplate.Must(htmltemplate.New("html").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; line-height: 1.6; color: #333; background: #f9f9f9; margin: 0; padding: 20px; }
    .container { max-width: 700px; margin: 0 auto; background: white; border-radius: 8px; overflow: hidden; }
    .header { background: #2e7d32; color: white; padding: 25px; }
    .header h1 { margin: 0; font-size: 24px; }
    .content { padding: 25px; }
    .section { margin: 20px 0; padding: 20px; background: #f8f9fa; border-radius: 6px; }
    .section-title { font-size: 16px; font-weight: bold; color: #2e7d32; margin-bottom: 15px; }
    .label { font-weight: 600; color: #555; min-width: 120px; }
    .priority { background: #ffebee; border-left: 4px solid #c62828; padding: 12px; margin: 15px 0; }
    .agent { color: #2e7d32; }
    .footer { background: #f5f5f5; padding: 20px; text-align: center; font-size: 12px; color: #777; }
    td { padding: 6px 0; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h1>{{.BusinessName}}</h1>
      <p>New Call Summary from {{.AssistantName}}</p>
    </div>
    <div class="content">
      {{if .Priority}}<div class="priority"><strong>PRIORITY ACTION REQUIRED</strong><br>This lead requires immediate follow-up. Please call back as soon as possible.</div>{{end}}
      <div class="section">
        <div class="section-title">Call Details</div>
        <table>
          <tr><td class="label">Caller:</td><td>{{.CallerName}}</td></tr>
          <tr><td class="label">Phone:</td><td>{{.Phone}}</td></tr>
          <tr><td class="label">Duration:</td><td>{{.Duration}}</td></tr>
          <tr><td class="label">Intent:</td><td>{{.Intent}} ({{.Category}})</td></tr>
          <tr><td class="label">Time:</td><td>{{.Time}}</td></tr>
        </table>
      </div>
      {{if .LeadFields}}
      <div class="section" style="background: #e8f5e9;">
        <div class="section-title">Lead Information</div>
        <table>{{range .LeadFields}}
          <tr><td class="label">{{.Label}}:</td><td>{{.Value}}</td></tr>{{end}}
        </table>
      </div>
      {{else}}
      <div class="section" style="background: #fff3e0;">
        <div class="section-title">Lead Information</div>
        <p>Lead information was not fully captured during this call.</p>
        {{if .VoicemailHit}}<p>This was a voicemail - no live conversation occurred.</p>{{end}}
      </div>
      {{end}}
      {{if .Analysis}}
      <div class="section">
        <div class="section-title">Call Analysis</div>
        <table>{{range .Analysis}}
          <tr><td class="label">{{.Label}}:</td><td>{{.Value}}</td></tr>{{end}}
        </table>
      </div>
      {{end}}
      <div class="section">
        <div class="section-title">Summary</div>
        {{range .SummaryLines}}<p>{{.}}</p>{{end}}
      </div>
      {{if .RecordingURL}}
      <div class="section">
        <div class="section-title">Call Recording</div>
        <a href="{{.RecordingURL}}" target="_blank">Listen to Recording</a>
      </div>
      {{end}}
      <div class="section">
        <div class="section-title">Conversation Transcript</div>
        {{if .Lines}}{{range .Lines}}
        <p><span style="color: #999;">[{{.Time}}]</span> <strong class="{{if .Agent}}agent{{else}}caller{{end}}">{{.Speaker}}:</strong> {{.Text}}</p>{{end}}
        {{else}}<pre>{{.Transcript}}</pre>{{end}}
      </div>
    </div>
    <div class="footer">
      <p><strong>{{.BusinessName}}</strong></p>
      <p>Call ID: {{.CallID}}</p>
    </div>
  </div>
</body>
</html>
`))
