// Package profile loads tenant business profiles, merges them over the
// system defaults and validates the result into an immutable Config.
package profile

import (
	"strings"
	"time"
)

// Calendar modes select the booking policy the assistant describes.
const (
	CalendarGoogle      = "google"
	CalendarJobber      = "jobber"
	CalendarLeadCapture = "lead_capture"
)

// Weekdays in display order, keyed the way profiles spell them.
var Weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// Config is a resolved tenant configuration. It is shared between calls
// and must be treated as read-only.
type Config struct {
	ID           string            `json:"-"`
	Business     Business          `json:"business"`
	Assistant    Assistant         `json:"assistant"`
	Hours        map[string]string `json:"hours,omitempty"`
	Services     []Service         `json:"services,omitempty"`
	Pricing      Pricing           `json:"pricing"`
	ServiceArea  []string          `json:"serviceArea,omitempty"`
	Greetings    Greetings         `json:"greetings"`
	Calendar     Calendar          `json:"calendar"`
	Rules        []string          `json:"rules,omitempty"`
	Email        EmailRouting      `json:"email"`
	CallHandling CallHandling      `json:"callHandling"`

	location *time.Location
}

type Business struct {
	Name     string `json:"name"`
	Owner    string `json:"owner,omitempty"`
	Location string `json:"location,omitempty"`
	Email    string `json:"email,omitempty"`
	Website  string `json:"website,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

type Assistant struct {
	Name        string `json:"name"`
	Personality string `json:"personality,omitempty"`
	Voice       string `json:"voice,omitempty"`
}

type Service struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Pricing     string `json:"pricing,omitempty"`
}

// Pricing holds named price points. Empty fields are not mentioned to callers.
type Pricing struct {
	Minimum string `json:"minimum,omitempty"`
	Mowing  string `json:"mowing,omitempty"`
	Gutter  string `json:"gutter,omitempty"`
	Cleanup string `json:"cleanup,omitempty"`
	Snow    string `json:"snow,omitempty"`
	Quote   string `json:"quote,omitempty"`
}

// IsEmpty reports whether no price point is configured.
func (p Pricing) IsEmpty() bool {
	return p == Pricing{}
}

type Greetings struct {
	Variations []string `json:"variations,omitempty"`
}

type Calendar struct {
	Mode string `json:"mode,omitempty"`
}

// EmailRouting overrides the process-wide notification recipients per tenant.
type EmailRouting struct {
	To   string `json:"to,omitempty"`
	BCC  string `json:"bcc,omitempty"`
	From string `json:"from,omitempty"`
}

type CallHandling struct {
	MaxDurationSeconds    int `json:"maxDurationSeconds,omitempty"`
	VoicemailAfterSeconds int `json:"voicemailAfterSeconds,omitempty"`
}

// Location returns the tenant's time zone, UTC when none is configured.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// OwnerOr returns the owner name or fallback when it is not configured.
func (c *Config) OwnerOr(fallback string) string {
	if strings.TrimSpace(c.Business.Owner) == "" {
		return fallback
	}
	return c.Business.Owner
}

// Areas returns the configured service area, falling back to the business location.
func (c *Config) Areas() []string {
	if len(c.ServiceArea) > 0 {
		return c.ServiceArea
	}
	if c.Business.Location != "" {
		return []string{c.Business.Location}
	}
	return nil
}

// MaxCallDuration is zero when calls are not capped.
func (c *Config) MaxCallDuration() time.Duration {
	return time.Duration(c.CallHandling.MaxDurationSeconds) * time.Second
}
