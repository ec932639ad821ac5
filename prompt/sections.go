package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/room4-2/receptionist/profile"
)

type input struct {
	cfg      *profile.Config
	call     CallContext
	now      time.Time
	open     bool
	greeting string
}

// sectionBuilder returns one block of the prompt, or "" to omit it.
type sectionBuilder func(in *input) string

// sections are rendered in this order and joined by blank lines.
var sections = []sectionBuilder{
	identitySection,
	closedNoticeSection,
	greetingSection,
	intakeSection,
	bookingSection,
	speakingStyleSection,
	hoursSection,
	servicesSection,
	pricingSection,
	serviceAreaSection,
	rulesSection,
	urgencySection,
	closingSection,
}

// Name pairs callers commonly spell differently.
var nameAmbiguities = [][2]string{
	{"Shawn", "Sean"},
	{"Jon", "John"},
	{"Katie", "Caty"},
	{"Chris", "Kris"},
}

var baselineRules = []string{
	"Always mention minimum pricing if they ask about costs",
	"Be honest about what we do and don't offer",
	"Take detailed messages when the owner is unavailable",
	"Confirm phone numbers by repeating them back",
	"Ask about property size for landscaping quotes",
	"End calls politely - thank them for calling",
}

// Caller phrases that end the conversation.
var closingCues = []string{"bye", "that's all", "thank you", "goodbye", "that's it"}

// Every reply is under six words.
var closingReplies = []string{"Thanks for calling!", "Have a great day!", "Bye now."}

var bannedClosingPhrases = []string{"we'll be in touch soon"}

func identitySection(in *input) string {
	cfg := in.cfg
	location := cfg.Business.Location
	if location == "" {
		location = "our service area"
	}
	personality := cfg.Assistant.Personality
	if personality == "" {
		personality = "Friendly, professional, and helpful"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, the AI phone assistant for %s in %s.", cfg.Assistant.Name, cfg.Business.Name, location)
	if cfg.Business.Owner != "" {
		fmt.Fprintf(&b, " %s is the owner.", cfg.Business.Owner)
	}
	if cfg.Business.Website != "" {
		fmt.Fprintf(&b, "\nOur website is %s.", cfg.Business.Website)
	}
	if cfg.Business.Email != "" {
		fmt.Fprintf(&b, "\nCustomers can email us at %s.", cfg.Business.Email)
	}
	if in.call.CallType == CallCallback {
		fmt.Fprintf(&b, "\n\nTHIS IS A RETURN CALL:\nYou are calling back a customer who contacted %s earlier. Introduce yourself, mention their earlier request, and ask if now is a good time to talk.", cfg.Business.Name)
	}
	fmt.Fprintf(&b, "\n\nYOUR PERSONALITY:\n%s", personality)
	b.WriteString("\n\nYOUR VOICE:\nSpeak naturally and conversationally, like a real receptionist. Be warm but efficient.")
	return b.String()
}

func closedNoticeSection(in *input) string {
	if in.open {
		return ""
	}
	return "WE ARE CLOSED RIGHT NOW:\nMention: we're currently closed, but I can still help you."
}

func greetingSection(in *input) string {
	return "START WITH: \"" + in.greeting + "\"\n\nThen listen to what they need."
}

func intakeSection(in *input) string {
	var pairs []string
	for _, p := range nameAmbiguities {
		pairs = append(pairs, p[0]+"/"+p[1])
	}

	return `INTAKE SCRIPT:
Ask ONE question at a time and wait for the answer. Collect these in order:
1. Service: make sure you understand what they need done.
2. Name: "Perfect! And who's calling?"
3. Phone: "What's the best number to reach you?"
4. Address: "What's the property address?"
5. Timing: "When were you hoping to have this done?"
Once you have their details, save them with the capture_lead tool before wrapping up.

CONFIRMING DETAILS:
- Some names sound the same but are spelled differently: ` + strings.Join(pairs, ", ") + `. Only for these, ask which spelling they use, for example "Is that Shawn with a W, or Sean?"
- Ask at most one clarifying question per detail. If it's still unclear, note it and move on.
- Never spell out a full name, phone number or address back to the caller. Confirm briefly: "Got it, thanks."`
}

func bookingSection(in *input) string {
	owner := in.cfg.OwnerOr("the owner")

	switch in.call.CalendarMode {
	case profile.CalendarGoogle:
		return `BOOKING APPOINTMENTS (Google Calendar):
We book appointments directly on our Google Calendar.
- Ask for: preferred date and time, service needed, name, phone, and address
- Offer a specific appointment slot and tell them a calendar invite will confirm it
- If they need to reschedule, they can call back or reply to the invite`

	case profile.CalendarJobber:
		website := in.cfg.Business.Website
		if website == "" {
			website = "our website"
		}
		return fmt.Sprintf(`BOOKING APPOINTMENTS (Jobber):
We use Jobber for scheduling.
- Collect: name, phone, email, service needed, preferred date/time, address
- Don't offer a specific slot. Tell them %s will confirm the appointment within 24 hours
- Mention they can also book online at %s`, owner, website)

	default:
		return fmt.Sprintf(`BOOKING APPOINTMENTS (Lead Capture Mode):
We take detailed messages for the owner to follow up.
- Collect: name, phone number, address, service needed, preferred timing
- Ask about: property size, specific issues, urgency
- Never promise an appointment time. Tell them %s will call back within 24 hours to confirm
- For urgent issues, offer to have them call back ASAP`, owner)
	}
}

func speakingStyleSection(*input) string {
	return `SPEAKING STYLE:
- Keep sentences short, under 15 words each
- Use contractions (it's, we're, that's, I'll)
- Pause naturally between thoughts and vary your phrasing
- Use their name naturally once you have it
- Acknowledge with short phrases: "Perfect!", "Got it.", "Great.", "Okay!", "Sounds good."

INTERRUPTIONS AND NOISE:
- Wait for clear speech. Don't respond to coughs, background chatter or unclear noises
- If the line is noisy or they're on speakerphone, speak slowly and confirm understanding
- If you accidentally interrupt, apologize: "Sorry, go ahead" or "My mistake, you were saying?"
- If the caller goes quiet, say: "I'm still here. Take your time."`
}

func hoursSection(in *input) string {
	var lines []string
	for _, day := range profile.Weekdays {
		if h, ok := in.cfg.Hours[day]; ok {
			lines = append(lines, fmt.Sprintf("- %s: %s", strings.ToUpper(day[:1])+day[1:], h))
		}
	}
	if len(lines) == 0 {
		return ""
	}

	status := "OPEN"
	if !in.open {
		status = "CLOSED"
	}
	s := "BUSINESS HOURS:\n" + strings.Join(lines, "\n") + "\n\nCURRENT STATUS: " + status
	if today, ok := in.cfg.Hours[weekday(in.now)]; !in.open && ok && !isClosedDay(today) {
		s += "\nToday's hours were: " + today
	}
	return s
}

func servicesSection(in *input) string {
	var lines []string
	for _, svc := range in.cfg.Services {
		if strings.TrimSpace(svc.Name) == "" {
			continue
		}
		line := "- " + svc.Name
		if svc.Description != "" {
			line += ": " + svc.Description
		}
		if svc.Pricing != "" {
			line += " (" + svc.Pricing + ")"
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return ""
	}
	return "SERVICES WE OFFER:\n" + strings.Join(lines, "\n")
}

func pricingSection(in *input) string {
	p := in.cfg.Pricing
	if p.IsEmpty() {
		return ""
	}

	var lines []string
	add := func(label, value string) {
		if value != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", label, value))
		}
	}
	add("Minimum job size", p.Minimum)
	add("Lawn mowing", p.Mowing)
	add("Gutter cleaning", p.Gutter)
	add("Spring/fall cleanups", p.Cleanup)
	add("Snow removal", p.Snow)
	if p.Quote != "" {
		lines = append(lines, "- "+p.Quote)
	}
	lines = append(lines, fmt.Sprintf(`- If you're unsure about a price, say: "I'll have %s review this and get back to you with an exact quote."`, in.cfg.OwnerOr("the owner")))
	return "PRICING:\n" + strings.Join(lines, "\n")
}

func serviceAreaSection(in *input) string {
	areas := in.cfg.Areas()
	if len(areas) == 0 {
		return ""
	}
	return "SERVICE AREA: " + strings.Join(areas, ", ") +
		"\nIf they're outside this area, let them know politely and offer to pass the message along."
}

func rulesSection(in *input) string {
	rules := append([]string{}, baselineRules...)
	for _, r := range in.cfg.Rules {
		if strings.TrimSpace(r) != "" {
			rules = append(rules, r)
		}
	}
	return "IMPORTANT RULES:\n- " + strings.Join(rules, "\n- ")
}

func urgencySection(in *input) string {
	return fmt.Sprintf("URGENCY: If the caller sounds frustrated or pressed for time, acknowledge it, keep your answers brief and tell them you'll flag it as urgent for %s.", in.cfg.OwnerOr("the owner"))
}

func closingSection(*input) string {
	cues := make([]string, len(closingCues))
	for i, c := range closingCues {
		cues[i] = fmt.Sprintf("%q", c)
	}
	replies := make([]string, len(closingReplies))
	for i, r := range closingReplies {
		replies[i] = fmt.Sprintf("%q", r)
	}
	banned := make([]string, len(bannedClosingPhrases))
	for i, p := range bannedClosingPhrases {
		banned[i] = fmt.Sprintf("%q", p)
	}

	return "CLOSING THE CALL:\n" +
		"When the caller says " + strings.Join(cues, ", ") + " or similar:\n" +
		"1. Reply in under 6 words, for example " + strings.Join(replies, " or ") + "\n" +
		"2. Then end the call with the end_call tool. Don't ask anything else.\n" +
		"Never say " + strings.Join(banned, " or ") + "."
}
