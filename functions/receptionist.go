package functions

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/room4-2/receptionist/lead"
	"github.com/room4-2/receptionist/profile"
)

// Tool names.
const (
	CaptureLead     = "capture_lead"
	GetBusinessInfo = "get_business_info"
	EndCall         = "end_call"
)

// CallSink receives the side effects of tool calls for one call.
type CallSink interface {
	CaptureLead(c *lead.Captured)
	EndCall(reason string)
}

// ForCall builds the tool set of a call to the given tenant.
func ForCall(cfg *profile.Config, sink CallSink) *Registry {
	r := NewRegistry()
	r.Register(CaptureLeadDeclaration(), captureLeadHandler(sink))
	r.Register(BusinessInfoDeclaration(), businessInfoHandler(cfg))
	r.Register(EndCallDeclaration(), endCallHandler(sink))
	return r
}

var captureLeadFields = []struct {
	name, description string
}{
	{"name", "Caller's full name"},
	{"phone", "Best callback number"},
	{"address", "Property address"},
	{"service", "Service the caller needs"},
	{"property_type", "Residential or commercial, and property size if given"},
	{"timing", "When they want the work done"},
	{"urgency", "normal, high or urgent"},
	{"details", "Anything else the owner should know"},
}

func CaptureLeadDeclaration() *genai.FunctionDeclaration {
	props := make(map[string]*genai.Schema, len(captureLeadFields))
	for _, f := range captureLeadFields {
		props[f.name] = &genai.Schema{Type: genai.TypeString, Description: f.description}
	}
	return &genai.FunctionDeclaration{
		Name:        CaptureLead,
		Description: "Save the caller's details once collected so the owner can follow up.",
		Parameters: &genai.Schema{
			Type:       genai.TypeObject,
			Properties: props,
			Required:   []string{"name", "phone", "service"},
		},
	}
}

func BusinessInfoDeclaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        GetBusinessInfo,
		Description: "Get the business facts: hours, services, pricing, service area and contact details.",
	}
}

func EndCallDeclaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        EndCall,
		Description: "Hang up after you have said goodbye.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"reason": {Type: genai.TypeString, Description: "Why the call is ending"},
			},
		},
	}
}

func captureLeadHandler(sink CallSink) Handler {
	return func(_ context.Context, args map[string]any) (map[string]any, error) {
		c := &lead.Captured{
			Name:         str(args, "name"),
			Phone:        str(args, "phone"),
			Address:      str(args, "address"),
			Service:      str(args, "service"),
			PropertyType: str(args, "property_type"),
			Timing:       str(args, "timing"),
			Urgency:      str(args, "urgency"),
			Details:      str(args, "details"),
		}
		if c.IsEmpty() {
			return nil, fmt.Errorf("no lead details provided")
		}
		sink.CaptureLead(c)
		return map[string]any{"result": "saved"}, nil
	}
}

func businessInfoHandler(cfg *profile.Config) Handler {
	return func(context.Context, map[string]any) (map[string]any, error) {
		return BusinessInfo(cfg), nil
	}
}

func endCallHandler(sink CallSink) Handler {
	return func(_ context.Context, args map[string]any) (map[string]any, error) {
		sink.EndCall(str(args, "reason"))
		return map[string]any{"result": "ending call"}, nil
	}
}

// BusinessInfo flattens the resolved profile into the facts the assistant
// may quote. Unset fields are left out.
func BusinessInfo(cfg *profile.Config) map[string]any {
	info := map[string]any{
		"name":      cfg.Business.Name,
		"assistant": cfg.Assistant.Name,
	}
	set := func(key, value string) {
		if value != "" {
			info[key] = value
		}
	}
	set("owner", cfg.Business.Owner)
	set("location", cfg.Business.Location)
	set("email", cfg.Business.Email)
	set("website", cfg.Business.Website)

	if len(cfg.Hours) > 0 {
		hours := make(map[string]any, len(cfg.Hours))
		for day, h := range cfg.Hours {
			hours[day] = h
		}
		info["hours"] = hours
	}

	var services []any
	for _, s := range cfg.Services {
		if strings.TrimSpace(s.Name) == "" {
			continue
		}
		svc := map[string]any{"name": s.Name}
		if s.Description != "" {
			svc["description"] = s.Description
		}
		if s.Pricing != "" {
			svc["pricing"] = s.Pricing
		}
		services = append(services, svc)
	}
	if len(services) > 0 {
		info["services"] = services
	}

	pricing := map[string]any{}
	for key, value := range map[string]string{
		"minimum": cfg.Pricing.Minimum,
		"mowing":  cfg.Pricing.Mowing,
		"gutter":  cfg.Pricing.Gutter,
		"cleanup": cfg.Pricing.Cleanup,
		"snow":    cfg.Pricing.Snow,
		"quote":   cfg.Pricing.Quote,
	} {
		if value != "" {
			pricing[key] = value
		}
	}
	if len(pricing) > 0 {
		info["pricing"] = pricing
	}

	if areas := cfg.Areas(); len(areas) > 0 {
		list := make([]any, len(areas))
		for i, a := range areas {
			list[i] = a
		}
		info["serviceArea"] = list
	}
	return info
}

func str(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
