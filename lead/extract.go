package lead

import (
	"regexp"
	"strings"
)

type keywordRule[T any] struct {
	keywords []string
	value    T
}

// Checked in order, first match wins. Categories overlap ("snow removal",
// "gutter cleanup") so the order is part of the contract.
var intentRules = []keywordRule[string]{
	{[]string{"quote", "estimate", "price", "cost"}, IntentQuote},
	{[]string{"book", "schedule", "appointment"}, IntentBooking},
	{[]string{"cancel", "reschedule"}, IntentCancel},
	{[]string{"question", "information"}, IntentInformation},
}

var categoryRules = []keywordRule[Category]{
	{[]string{"lawn", "mowing", "grass"}, CategoryLawn},
	{[]string{"window", "gutter"}, CategoryWindow},
	{[]string{"snow", "removal"}, CategorySnow},
	{[]string{"garden", "mulch", "cleanup"}, CategoryGarden},
}

// minTranscriptLength is the shortest transcript that counts as a conversation.
const minTranscriptLength = 10

// ExtractIntentAndCategory classifies a transcript by keyword.
func ExtractIntentAndCategory(transcript string) (string, Category) {
	if len(transcript) < minTranscriptLength {
		return IntentNone, CategoryMisc
	}
	lower := strings.ToLower(transcript)
	return match(lower, intentRules, IntentGeneral), match(lower, categoryRules, CategoryMisc)
}

func match[T any](lower string, rules []keywordRule[T], fallback T) T {
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.value
			}
		}
	}
	return fallback
}

var (
	selfIdentification = []*regexp.Regexp{
		regexp.MustCompile(`(?i)my name is (\w+)`),
		regexp.MustCompile(`(?i)call me (\w+)`),
	}
	identityAnswer = []*regexp.Regexp{
		regexp.MustCompile(`(?i)who['’]?s calling\??\s*(?:\[.*?\]\s*)?(\w+)`),
		regexp.MustCompile(`(?i)who do i have.*?\s*(?:\[.*?\]\s*)?(\w+)`),
		regexp.MustCompile(`(?i)and who['’]?s (?:this|calling)\??\s*(?:\[.*?\]\s*)?(\w+)`),
	}
	thisIs = regexp.MustCompile(`(?i)this is (\w+)`)
)

var fillerWords = []string{
	"the", "a", "an", "calling", "from", "this", "that", "there", "here",
	"yes", "yeah", "sure", "okay", "ok", "hi", "hello", "hey", "thanks",
}

// ExtractName finds the caller's name. Explicit self-identification is
// tried first, then an answer to the assistant asking who is calling, then
// any "this is X". Candidates equal to the assistant name or a filler word
// are skipped.
func ExtractName(transcript, assistantName string) string {
	if transcript == "" {
		return UnknownName
	}

	excluded := make(map[string]bool, len(fillerWords)+1)
	for _, w := range fillerWords {
		excluded[w] = true
	}
	if assistantName != "" {
		excluded[strings.ToLower(assistantName)] = true
	}
	accept := func(name string) bool {
		return len(name) > 1 && !excluded[strings.ToLower(name)]
	}

	for _, group := range [][]*regexp.Regexp{selfIdentification, identityAnswer} {
		for _, re := range group {
			if m := re.FindStringSubmatch(transcript); m != nil && accept(m[1]) {
				return capitalize(m[1])
			}
		}
	}

	for _, m := range thisIs.FindAllStringSubmatch(transcript, -1) {
		if accept(m[1]) {
			return capitalize(m[1])
		}
	}
	return UnknownName
}

func capitalize(s string) string {
	return strings.ToUpper(s[:1]) + s[1:]
}

// Input is everything known about a finished call.
type Input struct {
	Transcript      string
	AssistantName   string
	From            string
	DurationSeconds int
	Captured        *Captured
	Analysis        *Analysis
}

// Extract annotates a call. A name from the capture_lead payload takes
// precedence over one guessed from the transcript.
func Extract(in Input) Lead {
	intent, category := ExtractIntentAndCategory(in.Transcript)

	l := Lead{
		Intent:            intent,
		Category:          category,
		CallerName:        ExtractName(in.Transcript, in.AssistantName),
		FormattedDuration: FormatDuration(in.DurationSeconds),
		Analysis:          in.Analysis,
	}
	if !in.Captured.IsEmpty() {
		l.Captured = in.Captured
		if name := strings.TrimSpace(in.Captured.Name); name != "" {
			l.CallerName = name
		}
	}

	phone := in.From
	if phone == "" && l.Captured != nil {
		phone = l.Captured.Phone
	}
	l.FormattedPhone = FormatPhoneNumber(phone)
	l.Priority = isPriority(l)
	return l
}

var urgentValues = map[string]bool{"urgent": true, "high": true, "asap": true, "emergency": true}

func isPriority(l Lead) bool {
	if l.Captured != nil && urgentValues[strings.ToLower(strings.TrimSpace(l.Captured.Urgency))] {
		return true
	}
	if a := l.Analysis; a != nil {
		return strings.EqualFold(a.FollowUpPriority, "high") || urgentValues[strings.ToLower(a.Urgency)]
	}
	return false
}
