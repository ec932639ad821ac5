package session

import (
	"strings"
	"sync"
	"time"

	"github.com/room4-2/receptionist/lead"
)

// Transcript accumulates live transcription. The model streams it in
// fragments, so consecutive fragments from one speaker form one turn.
type Transcript struct {
	mu      sync.Mutex
	started time.Time
	now     func() time.Time
	turns   []lead.Turn
}

func NewTranscript(started time.Time, now func() time.Time) *Transcript {
	if now == nil {
		now = time.Now
	}
	return &Transcript{started: started, now: now}
}

// Add appends a fragment spoken by role.
func (t *Transcript) Add(role, fragment string) {
	if strings.TrimSpace(fragment) == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.turns); n > 0 && t.turns[n-1].Role == role {
		t.turns[n-1].Content += fragment
		return
	}
	offset := t.now().Sub(t.started).Seconds()
	if offset < 0 {
		offset = 0
	}
	t.turns = append(t.turns, lead.Turn{Role: role, Content: fragment, StartOffsetSeconds: offset})
}

// Turns returns a trimmed copy of the turns so far.
func (t *Transcript) Turns() []lead.Turn {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]lead.Turn, 0, len(t.turns))
	for _, turn := range t.turns {
		turn.Content = strings.Join(strings.Fields(turn.Content), " ")
		out = append(out, turn)
	}
	return out
}

func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.turns)
}
