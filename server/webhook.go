package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/room4-2/receptionist/callstore"
	"github.com/room4-2/receptionist/functions"
	"github.com/room4-2/receptionist/lead"
	"github.com/room4-2/receptionist/session"
)

const maxWebhookBody = 1 << 20

// Voice-platform event types.
const (
	eventCallStarted       = "call_started"
	eventTranscriptUpdated = "transcript_updated"
	eventCallEnded         = "call_ended"
	eventCallAnalyzed      = "call_analyzed"
)

type retellEvent struct {
	Event            string            `json:"event"`
	Call             retellCall        `json:"call"`
	TranscriptObject []retellUtterance `json:"transcript_object"`
}

type retellCall struct {
	CallID              string            `json:"call_id"`
	AgentID             string            `json:"agent_id"`
	FromNumber          string            `json:"from_number"`
	ToNumber            string            `json:"to_number"`
	StartTimestamp      int64             `json:"start_timestamp"`
	EndTimestamp        int64             `json:"end_timestamp"`
	DurationMS          int64             `json:"duration_ms"`
	RecordingURL        string            `json:"recording_url"`
	DisconnectionReason string            `json:"disconnection_reason"`
	TranscriptObject    []retellUtterance `json:"transcript_object"`
	ToolCalls           []retellToolCall  `json:"tool_calls"`
	Analysis            *retellAnalysis   `json:"call_analysis"`
}

type retellUtterance struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Words   []struct {
		Start float64 `json:"start"`
	} `json:"words"`
}

type retellToolCall struct {
	Name       string `json:"name"`
	Parameters any    `json:"parameters"`
	Arguments  any    `json:"arguments"`
	Function   *struct {
		Name      string `json:"name"`
		Arguments any    `json:"arguments"`
	} `json:"function"`
}

type retellAnalysis struct {
	lead.Analysis
	CallSummary  string         `json:"call_summary"`
	InVoicemail  bool           `json:"in_voicemail"`
	CustomFields *lead.Analysis `json:"custom_analysis_data"`
}

// fields prefers the custom analysis block, where platform agents put
// their own scoring, over top-level fields.
func (a *retellAnalysis) fields() *lead.Analysis {
	if a == nil {
		return nil
	}
	if c := a.CustomFields; c != nil && *c != (lead.Analysis{}) {
		return c
	}
	if a.Analysis == (lead.Analysis{}) {
		return nil
	}
	out := a.Analysis
	return &out
}

func (a *retellAnalysis) voicemail() bool {
	if a == nil {
		return false
	}
	f := a.fields()
	return a.InVoicemail || (f != nil && f.CompletionStatus == "voicemail")
}

// turns converts platform utterances. The first word's start time is the
// turn's offset from call start.
func turns(utterances []retellUtterance) []lead.Turn {
	out := make([]lead.Turn, 0, len(utterances))
	for _, u := range utterances {
		if strings.TrimSpace(u.Content) == "" {
			continue
		}
		role := lead.RoleUser
		if u.Role == lead.RoleAgent {
			role = lead.RoleAgent
		}
		t := lead.Turn{Role: role, Content: u.Content}
		if len(u.Words) > 0 {
			t.StartOffsetSeconds = u.Words[0].Start
		}
		out = append(out, t)
	}
	return out
}

// captured returns the payload of the last capture_lead tool call.
// Arguments arrive either as an object or as a JSON string.
func captured(calls []retellToolCall) (*lead.Captured, error) {
	var found *lead.Captured
	for _, c := range calls {
		name, args := c.Name, c.Parameters
		if args == nil {
			args = c.Arguments
		}
		if c.Function != nil {
			if name == "" {
				name = c.Function.Name
			}
			if args == nil {
				args = c.Function.Arguments
			}
		}
		if name != functions.CaptureLead || args == nil {
			continue
		}

		var raw string
		switch v := args.(type) {
		case string:
			raw = v
		default:
			b, err := sonic.MarshalString(v)
			if err != nil {
				return nil, fmt.Errorf("encode %s arguments: %w", name, err)
			}
			raw = b
		}
		var cl lead.Captured
		if err := sonic.UnmarshalString(raw, &cl); err != nil {
			return nil, fmt.Errorf("decode %s arguments: %w", name, err)
		}
		found = &cl
	}
	return found, nil
}

func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// handleRetellWebhook keeps call records in step with a hosted voice
// platform. The analyzed call goes through the same pipeline as a Twilio
// call. Unknown events are acknowledged.
func (s *WebsocketTwilio) handleRetellWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	var ev retellEvent
	if err := sonic.Unmarshal(body, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	tenant := r.URL.Query().Get(session.ParamTenant)
	if tenant == "" {
		tenant = s.config.Profiles.DefaultClientID
	}
	log := s.logger.With(zap.String("event", ev.Event), zap.String("call_id", ev.Call.CallID))
	log.Info("📥 Webhook received")

	known := ev.Event == eventCallStarted || ev.Event == eventTranscriptUpdated ||
		ev.Event == eventCallEnded || ev.Event == eventCallAnalyzed
	if !known {
		log.Info("ℹ️ Unhandled event type")
		s.ack(w)
		return
	}
	if ev.Call.CallID == "" {
		writeError(w, http.StatusBadRequest, "missing call.call_id")
		return
	}

	if err := s.applyEvent(r.Context(), tenant, &ev); err != nil {
		log.Error("❌ Error processing webhook", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if ev.Event == eventCallAnalyzed {
		s.processor.Enqueue(ev.Call.CallID)
	}
	s.ack(w)
}

func (s *WebsocketTwilio) applyEvent(ctx context.Context, tenant string, ev *retellEvent) error {
	c := ev.Call

	var capture *lead.Captured
	if ev.Event == eventCallAnalyzed {
		var err error
		if capture, err = captured(c.ToolCalls); err != nil {
			s.logger.Warn("⚠️ Ignoring malformed capture_lead call", zap.Error(err))
		}
	}

	_, err := s.calls.Update(ctx, c.CallID, func(rec *callstore.Record) {
		if rec.TenantID == "" {
			rec.TenantID = tenant
		}
		if c.FromNumber != "" {
			rec.From = c.FromNumber
		}
		if c.ToNumber != "" {
			rec.To = c.ToNumber
		}
		if start := fromMillis(c.StartTimestamp); !start.IsZero() {
			rec.StartedAt = start
		}

		utterances := c.TranscriptObject
		if len(ev.TranscriptObject) > 0 {
			utterances = ev.TranscriptObject
		}
		if t := turns(utterances); len(t) > 0 {
			rec.Transcript = t
		}

		switch ev.Event {
		case eventCallStarted:
			rec.Status = callstore.StatusInProgress
		case eventCallEnded, eventCallAnalyzed:
			if rec.Status != callstore.StatusProcessed {
				rec.Status = callstore.StatusEnded
			}
			if end := fromMillis(c.EndTimestamp); !end.IsZero() {
				rec.EndedAt = end
			}
			if c.DurationMS > 0 {
				rec.DurationSeconds = int((c.DurationMS + 500) / 1000)
			}
			if c.RecordingURL != "" {
				rec.RecordingURL = c.RecordingURL
			}
		}

		if ev.Event == eventCallAnalyzed {
			rec.Analysis = c.Analysis.fields()
			rec.Voicemail = c.Analysis.voicemail()
			if capture != nil {
				rec.Captured = capture
			}
		}
	})
	return err
}

func (s *WebsocketTwilio) ack(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{
		"received":  true,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
