package prompt

import (
	"fmt"
	"strings"

	"github.com/room4-2/receptionist/profile"
)

var timeModifiers = map[string]string{
	Morning:   "Good morning! ",
	Afternoon: "Good afternoon! ",
	Evening:   "Good evening! ",
}

// Greeting draws one opening line. Configured variations are spoken
// verbatim; the synthesized defaults get a time-of-day modifier.
func (e *Engine) Greeting(cfg *profile.Config, timeOfDay string) string {
	if variations := configuredGreetings(cfg); len(variations) > 0 {
		return variations[e.draw(len(variations))]
	}

	defaults := DefaultGreetings(cfg)
	g := defaults[e.draw(len(defaults))]
	return strings.TrimSpace(timeModifiers[timeOfDay] + g)
}

// DefaultGreetings are used when a profile configures none.
func DefaultGreetings(cfg *profile.Config) []string {
	b, a := cfg.Business.Name, cfg.Assistant.Name
	return []string{
		fmt.Sprintf("Thanks for calling %s. This is %s. How can I help you today?", b, a),
		fmt.Sprintf("Hello! You've reached %s. I'm %s. What can I do for you?", b, a),
		fmt.Sprintf("%s, this is %s speaking. How may I assist you?", b, a),
		fmt.Sprintf("Hi there! %s. %s here. How can I help?", b, a),
	}
}

func configuredGreetings(cfg *profile.Config) []string {
	var out []string
	for _, g := range cfg.Greetings.Variations {
		if strings.TrimSpace(g) != "" {
			out = append(out, g)
		}
	}
	return out
}
