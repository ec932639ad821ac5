// Package callstore keeps per-call state between the live call and the
// post-call pipeline. Records are time-boxed: they expire after the
// retention window and nothing here is meant as durable history.
package callstore

import (
	"context"
	"errors"
	"time"

	"github.com/room4-2/receptionist/lead"
)

var ErrNotFound = errors.New("call not found")

// Call statuses.
const (
	StatusInProgress = "in_progress"
	StatusEnded      = "ended"
	StatusProcessed  = "processed"
)

// Record is everything known about one call.
type Record struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Status   string `json:"status"`

	StartedAt       time.Time `json:"startedAt"`
	EndedAt         time.Time `json:"endedAt,omitempty"`
	DurationSeconds int       `json:"durationSeconds"`

	Transcript       []lead.Turn    `json:"transcript,omitempty"`
	Captured         *lead.Captured `json:"captured,omitempty"`
	Analysis         *lead.Analysis `json:"analysis,omitempty"`
	RecordingURL     string         `json:"recordingUrl,omitempty"`
	RecordingPending bool           `json:"recordingPending,omitempty"`
	Voicemail        bool           `json:"voicemail,omitempty"`

	Summary    string     `json:"summary,omitempty"`
	Lead       *lead.Lead `json:"lead,omitempty"`
	NotifiedAt time.Time  `json:"notifiedAt,omitempty"`
}

// Store persists call records with a retention window.
type Store interface {
	Put(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	// Update applies fn to the stored record and writes it back atomically.
	// A missing record is created with the given id. fn may run more than
	// once when a concurrent writer wins, so it must only assign fields.
	Update(ctx context.Context, id string, fn func(*Record)) (*Record, error)
	// List returns up to limit records, newest first.
	List(ctx context.Context, limit int) ([]*Record, error)
	Delete(ctx context.Context, id string) error
}

// ErrConflict is returned when an update keeps losing to concurrent writers.
var ErrConflict = errors.New("call record changed concurrently")

func newRecord(id string) *Record {
	return &Record{ID: id, Status: StatusInProgress, StartedAt: time.Now()}
}
