// Package notify composes the owner's call summary and delivers it by
// email, with an optional SMS alert for priority leads.
package notify

import (
	"context"
	"errors"
	"strings"
)

// Message is one composed email.
type Message struct {
	From    string
	To      []string
	BCC     []string
	Subject string
	Text    string
	HTML    string
}

// Recipients returns To and BCC together.
func (m *Message) Recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.BCC))
	out = append(out, m.To...)
	return append(out, m.BCC...)
}

var errNoRecipients = errors.New("notify: message has no recipients")

// Sender delivers a composed message.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
	Name() string
}

// Routing says who receives a tenant's summaries.
type Routing struct {
	From string
	To   string
	BCC  string
}

// Or fills empty fields from fallback.
func (r Routing) Or(fallback Routing) Routing {
	if r.From == "" {
		r.From = fallback.From
	}
	if r.To == "" {
		r.To = fallback.To
	}
	if r.BCC == "" {
		r.BCC = fallback.BCC
	}
	return r
}

// splitAddresses accepts a comma separated list.
func splitAddresses(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
