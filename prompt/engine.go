// Package prompt renders the system instructions and opening greeting the
// voice agent receives at the start of every call.
package prompt

import (
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/room4-2/receptionist/profile"
)

// Call types.
const (
	CallInbound  = "inbound"
	CallCallback = "callback"
)

// Times of day.
const (
	Morning   = "morning"
	Afternoon = "afternoon"
	Evening   = "evening"
)

// RandSource yields floats in [0, 1). *rand.Rand satisfies it.
type RandSource interface {
	Float64() float64
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// CallContext describes the call a prompt is generated for. Empty fields
// are derived from the configuration and the engine clock.
type CallContext struct {
	CalendarMode string
	CallType     string
	TimeOfDay    string
}

// Bundle is produced fresh for every call and never cached.
type Bundle struct {
	SystemPrompt string
	Greeting     string
	IsOpen       bool
}

type Engine struct {
	clock func() time.Time

	mu   sync.Mutex
	rand RandSource
}

type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithRand replaces the greeting random source.
func WithRand(r RandSource) Option {
	return func(e *Engine) { e.rand = r }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		clock: time.Now,
		rand:  globalRand{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Generate builds the prompt, greeting and open status for one call. The
// greeting returned is the one embedded in the prompt.
func (e *Engine) Generate(cfg *profile.Config, cc CallContext) Bundle {
	now := e.now(cfg)
	cc = e.complete(cfg, cc, now)
	greeting := e.Greeting(cfg, cc.TimeOfDay)
	open := IsBusinessOpen(cfg, now)

	return Bundle{
		SystemPrompt: render(&input{cfg: cfg, call: cc, now: now, open: open, greeting: greeting}),
		Greeting:     greeting,
		IsOpen:       open,
	}
}

// SystemPrompt renders the instructions with a freshly drawn greeting.
func (e *Engine) SystemPrompt(cfg *profile.Config, cc CallContext) string {
	return e.Generate(cfg, cc).SystemPrompt
}

// IsOpen reports whether the business is open at the engine's current time.
func (e *Engine) IsOpen(cfg *profile.Config) bool {
	return IsBusinessOpen(cfg, e.now(cfg))
}

// now is the engine time in the tenant zone.
func (e *Engine) now(cfg *profile.Config) time.Time {
	return e.clock().In(cfg.Location())
}

func (e *Engine) complete(cfg *profile.Config, cc CallContext, now time.Time) CallContext {
	if cc.CalendarMode == "" {
		cc.CalendarMode = cfg.Calendar.Mode
	}
	if cc.CallType == "" {
		cc.CallType = CallInbound
	}
	if cc.TimeOfDay == "" {
		cc.TimeOfDay = TimeOfDay(now)
	}
	return cc
}

// TimeOfDay classifies t by its hour.
func TimeOfDay(t time.Time) string {
	switch h := t.Hour(); {
	case h < 12:
		return Morning
	case h < 17:
		return Afternoon
	default:
		return Evening
	}
}

func (e *Engine) draw(n int) int {
	e.mu.Lock()
	f := e.rand.Float64()
	e.mu.Unlock()

	i := int(f * float64(n))
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func render(in *input) string {
	parts := make([]string, 0, len(sections))
	for _, build := range sections {
		if s := strings.TrimSpace(build(in)); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}
