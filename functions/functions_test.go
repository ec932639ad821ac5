package functions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/room4-2/receptionist/lead"
	"github.com/room4-2/receptionist/profile"
)

type recordingSink struct {
	captured []*lead.Captured
	ended    []string
}

func (s *recordingSink) CaptureLead(c *lead.Captured) { s.captured = append(s.captured, c) }
func (s *recordingSink) EndCall(reason string)        { s.ended = append(s.ended, reason) }

func testConfig() *profile.Config {
	return &profile.Config{
		Business:    profile.Business{Name: "Rake and Clover", Owner: "Jonathan", Location: "Hamilton"},
		Assistant:   profile.Assistant{Name: "Sarah"},
		Hours:       map[string]string{"monday": "8:00 AM - 6:00 PM"},
		Services:    []profile.Service{{Name: "Lawn Mowing", Pricing: "$45"}, {Name: " "}},
		Pricing:     profile.Pricing{Minimum: "$150"},
		ServiceArea: []string{"Hamilton", "Dundas"},
	}
}

func TestForCallDeclaresTools(t *testing.T) {
	r := ForCall(testConfig(), &recordingSink{})

	assert.Equal(t, []string{CaptureLead, GetBusinessInfo, EndCall}, r.Names())
	tools := r.Tools()
	require.Len(t, tools, 1)
	require.Len(t, tools[0].FunctionDeclarations, 3)

	capture := tools[0].FunctionDeclarations[0]
	assert.Equal(t, genai.TypeObject, capture.Parameters.Type)
	assert.Contains(t, capture.Parameters.Properties, "property_type")
	assert.Equal(t, []string{"name", "phone", "service"}, capture.Parameters.Required)
}

func TestDispatchCaptureLead(t *testing.T) {
	sink := &recordingSink{}
	r := ForCall(testConfig(), sink)

	resp := r.Dispatch(context.Background(), &genai.FunctionCall{
		ID:   "call-1",
		Name: CaptureLead,
		Args: map[string]any{"name": " Marcus ", "phone": "905 555 0134", "service": "mowing", "urgency": "high"},
	})

	assert.Equal(t, "call-1", resp.ID)
	assert.Equal(t, CaptureLead, resp.Name)
	assert.Equal(t, "saved", resp.Response["result"])
	require.Len(t, sink.captured, 1)
	assert.Equal(t, &lead.Captured{Name: "Marcus", Phone: "905 555 0134", Service: "mowing", Urgency: "high"}, sink.captured[0])
}

func TestDispatchCaptureLeadRejectsEmpty(t *testing.T) {
	sink := &recordingSink{}
	resp := ForCall(testConfig(), sink).Dispatch(context.Background(), &genai.FunctionCall{Name: CaptureLead, Args: map[string]any{}})

	assert.Contains(t, resp.Response, "error")
	assert.Empty(t, sink.captured)
}

func TestDispatchEndCall(t *testing.T) {
	sink := &recordingSink{}
	resp := ForCall(testConfig(), sink).Dispatch(context.Background(), &genai.FunctionCall{Name: EndCall, Args: map[string]any{"reason": "caller said bye"}})

	assert.Equal(t, "ending call", resp.Response["result"])
	assert.Equal(t, []string{"caller said bye"}, sink.ended)
}

func TestDispatchUnknownFunction(t *testing.T) {
	resp := ForCall(testConfig(), &recordingSink{}).Dispatch(context.Background(), &genai.FunctionCall{ID: "x", Name: "book_table"})
	assert.Equal(t, "unknown function: book_table", resp.Response["error"])
}

func TestDispatchHandlerError(t *testing.T) {
	r := NewRegistry()
	r.Register(&genai.FunctionDeclaration{Name: "fail"}, func(context.Context, map[string]any) (map[string]any, error) {
		return nil, errors.New("boom")
	})
	r.Register(&genai.FunctionDeclaration{Name: "noop"}, func(context.Context, map[string]any) (map[string]any, error) {
		return nil, nil
	})

	assert.Equal(t, "boom", r.Dispatch(context.Background(), &genai.FunctionCall{Name: "fail"}).Response["error"])
	assert.Equal(t, "ok", r.Dispatch(context.Background(), &genai.FunctionCall{Name: "noop"}).Response["result"])
}

func TestRegisterReplaces(t *testing.T) {
	r := NewRegistry()
	r.Register(&genai.FunctionDeclaration{Name: "a", Description: "first"}, nil)
	r.Register(&genai.FunctionDeclaration{Name: "b"}, nil)
	r.Register(&genai.FunctionDeclaration{Name: "a", Description: "second"}, nil)

	assert.Equal(t, []string{"a", "b"}, r.Names())
	assert.Equal(t, "second", r.Tools()[0].FunctionDeclarations[0].Description)
}

func TestBusinessInfo(t *testing.T) {
	info := BusinessInfo(testConfig())

	assert.Equal(t, "Rake and Clover", info["name"])
	assert.Equal(t, "Jonathan", info["owner"])
	assert.NotContains(t, info, "website")
	assert.Equal(t, map[string]any{"monday": "8:00 AM - 6:00 PM"}, info["hours"])
	assert.Equal(t, []any{map[string]any{"name": "Lawn Mowing", "pricing": "$45"}}, info["services"])
	assert.Equal(t, map[string]any{"minimum": "$150"}, info["pricing"])
	assert.Equal(t, []any{"Hamilton", "Dundas"}, info["serviceArea"])

	bare := BusinessInfo(&profile.Config{Business: profile.Business{Name: "Shine"}, Assistant: profile.Assistant{Name: "Alex"}})
	assert.NotContains(t, bare, "services")
	assert.NotContains(t, bare, "pricing")
	assert.NotContains(t, bare, "hours")
}
