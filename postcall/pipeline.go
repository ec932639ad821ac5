// Package postcall turns a finished call into the owner's notification:
// recording, transcript, summary, lead extraction, email, SMS and events.
//
// Every stage is best effort. A failing stage is logged and replaced by a
// fallback so the owner always gets an email.
package postcall

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/room4-2/receptionist/callstore"
	"github.com/room4-2/receptionist/events"
	"github.com/room4-2/receptionist/gemini"
	"github.com/room4-2/receptionist/lead"
	"github.com/room4-2/receptionist/logging"
	"github.com/room4-2/receptionist/metrics"
	"github.com/room4-2/receptionist/notify"
	"github.com/room4-2/receptionist/profile"
)

// SilentCallSummary replaces the model summary for calls where nobody spoke.
const SilentCallSummary = "No conversation - caller hung up immediately or line was silent."

const (
	silentTranscriptChars = 50
	silentCallSeconds     = 15
	recordingMIME         = "audio/wav"
	processTimeout        = 3 * time.Minute
)

// Stage names, as reported in metrics.
const (
	StageRecording  = "recording"
	StageTranscribe = "transcribe"
	StageSummarize  = "summarize"
	StageExtract    = "extract"
	StageEmail      = "email"
	StageSMS        = "sms"
	StageEvents     = "events"
	StageStore      = "store"
)

type RecordingFetcher interface {
	DownloadRecording(ctx context.Context, url string) ([]byte, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

type Alerter interface {
	Alert(ctx context.Context, s *notify.Summary) error
}

// Deps wire a Pipeline. Recordings, Transcriber, SMS and Events are optional.
type Deps struct {
	Calls       callstore.Store
	Resolver    *profile.Resolver
	Summarizer  Summarizer
	Sender      notify.Sender
	Routing     notify.Routing
	Recordings  RecordingFetcher
	Transcriber Transcriber
	SMS         Alerter
	Events      events.Publisher
	Logger      *zap.Logger
}

type Pipeline struct {
	Deps
	logger *zap.Logger

	mu       sync.Mutex
	inflight map[string]bool
	wg       sync.WaitGroup
}

func NewPipeline(d Deps) *Pipeline {
	return &Pipeline{
		Deps:     d,
		logger:   d.Logger.Named("postcall"),
		inflight: make(map[string]bool),
	}
}

// CallEnded starts processing once the live call is over. Calls still
// waiting for their recording are picked up by RecordingComplete.
func (p *Pipeline) CallEnded(ctx context.Context, callID string) {
	rec, err := p.Calls.Get(ctx, callID)
	if err != nil {
		p.logger.Error("❌ Ended call not found", zap.String("call_id", callID), zap.Error(err))
		return
	}
	if rec.RecordingPending {
		p.logger.Info("⏳ Waiting for recording", zap.String("call_id", callID))
		return
	}
	p.Enqueue(callID)
}

// RecordingComplete attaches a finished recording. The call is processed
// right away if the live session has already ended.
func (p *Pipeline) RecordingComplete(ctx context.Context, callID, recordingURL string, durationSeconds int) error {
	rec, err := p.Calls.Update(ctx, callID, func(r *callstore.Record) {
		r.RecordingURL = recordingURL
		r.RecordingPending = false
		if r.DurationSeconds == 0 {
			r.DurationSeconds = durationSeconds
		}
	})
	if err != nil {
		return fmt.Errorf("attach recording: %w", err)
	}
	if rec.Status == callstore.StatusEnded {
		p.Enqueue(callID)
	}
	return nil
}

// Enqueue processes a call in the background. A call already being
// processed is not started twice.
func (p *Pipeline) Enqueue(callID string) {
	p.mu.Lock()
	if p.inflight[callID] {
		p.mu.Unlock()
		return
	}
	p.inflight[callID] = true
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer func() {
			p.mu.Lock()
			delete(p.inflight, callID)
			p.mu.Unlock()
			p.wg.Done()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		if err := p.Process(ctx, callID); err != nil {
			p.logger.Error("❌ Processing failed", zap.String("call_id", callID), zap.Error(err))
		}
	}()
}

// Wait blocks until background processing has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Process runs every stage for one call. Already processed calls are skipped.
func (p *Pipeline) Process(ctx context.Context, callID string) error {
	rec, err := p.Calls.Get(ctx, callID)
	if err != nil {
		return fmt.Errorf("load call: %w", err)
	}
	if rec.Status == callstore.StatusProcessed {
		return nil
	}

	log := p.logger.With(zap.String("call_id", logging.ShortID(callID)), zap.String("tenant", rec.TenantID))
	log.Info("🔄 Processing call", zap.Int("duration", rec.DurationSeconds), zap.Int("turns", len(rec.Transcript)))

	cfg := p.tenant(rec.TenantID, log)
	transcript := lead.Flatten(rec.Transcript)
	spoken := spokenText(rec.Transcript)

	var audio []byte
	if transcript == "" && rec.RecordingURL != "" && p.Recordings != nil {
		p.stage(log, StageRecording, func() (err error) {
			audio, err = p.Recordings.DownloadRecording(ctx, rec.RecordingURL)
			return err
		})
	}
	if transcript == "" && len(audio) > 0 && p.Transcriber != nil {
		p.stage(log, StageTranscribe, func() (err error) {
			transcript, err = p.Transcriber.Transcribe(ctx, audio, recordingMIME)
			spoken = transcript
			return err
		})
	}

	summary := gemini.UnavailableSummary
	if len(spoken) <= silentTranscriptChars && rec.DurationSeconds < silentCallSeconds {
		summary = SilentCallSummary
		log.Info("⚠️ Short or silent call, skipping summary")
	} else {
		p.stage(log, StageSummarize, func() error {
			s, err := p.Summarizer.Summarize(ctx, transcript)
			if err == nil {
				summary = s
			}
			return err
		})
	}

	var l lead.Lead
	p.stage(log, StageExtract, func() error {
		l = lead.Extract(lead.Input{
			Transcript:      transcript,
			AssistantName:   cfg.Assistant.Name,
			From:            rec.From,
			DurationSeconds: rec.DurationSeconds,
			Captured:        rec.Captured,
			Analysis:        rec.Analysis,
		})
		metrics.CallsByCategory.WithLabelValues(rec.TenantID, string(l.Category)).Inc()
		if l.HasCapture() {
			metrics.LeadsCaptured.WithLabelValues(rec.TenantID, string(l.Category)).Inc()
		}
		return nil
	})

	note := &notify.Summary{
		CallID:        rec.ID,
		BusinessName:  cfg.Business.Name,
		AssistantName: cfg.Assistant.Name,
		From:          rec.From,
		To:            rec.To,
		StartedAt:     rec.StartedAt,
		Location:      cfg.Location(),
		Summary:       summary,
		Turns:         rec.Transcript,
		Lead:          l,
		RecordingURL:  rec.RecordingURL,
		Voicemail:     rec.Voicemail,
	}
	if len(rec.Transcript) == 0 {
		note.TranscriptText = transcript
	}

	var notifiedAt time.Time
	p.stage(log, StageEmail, func() error {
		routing := notify.Routing{From: cfg.Email.From, To: cfg.Email.To, BCC: cfg.Email.BCC}.Or(p.Routing)
		msg, err := notify.Compose(note, routing)
		if err != nil {
			return err
		}
		if err := p.Sender.Send(ctx, msg); err != nil {
			metrics.NotificationsFailed.WithLabelValues(p.Sender.Name()).Inc()
			return err
		}
		metrics.NotificationsSent.WithLabelValues(p.Sender.Name()).Inc()
		notifiedAt = time.Now()
		log.Info("📧 Owner notified", zap.String("subject", msg.Subject))
		return nil
	})

	if p.SMS != nil && note.IsPriority() {
		p.stage(log, StageSMS, func() error {
			if err := p.SMS.Alert(ctx, note); err != nil {
				metrics.NotificationsFailed.WithLabelValues("sms").Inc()
				return err
			}
			metrics.NotificationsSent.WithLabelValues("sms").Inc()
			return nil
		})
	}

	if p.Events != nil {
		p.stage(log, StageEvents, func() error {
			return events.Emit(p.Events, events.CallCompleted{
				CallID:          rec.ID,
				TenantID:        rec.TenantID,
				From:            rec.From,
				StartedAt:       rec.StartedAt,
				DurationSeconds: rec.DurationSeconds,
				Intent:          l.Intent,
				Category:        l.Category,
				CallerName:      l.CallerName,
				Priority:        note.IsPriority(),
				Voicemail:       note.IsVoicemail(),
				Summary:         summary,
				RecordingURL:    rec.RecordingURL,
			}, l)
		})
	}

	var storeErr error
	p.stage(log, StageStore, func() error {
		_, storeErr = p.Calls.Update(ctx, rec.ID, func(r *callstore.Record) {
			r.Status = callstore.StatusProcessed
			r.Summary = summary
			r.Lead = &l
			r.NotifiedAt = notifiedAt
		})
		return storeErr
	})

	metrics.CallsCompleted.WithLabelValues(rec.TenantID).Inc()
	log.Info("✅ Call processed", zap.String("intent", l.Intent), zap.String("category", string(l.Category)))
	return storeErr
}

// tenant resolves the call's configuration. A tenant that no longer
// resolves still gets its email, addressed with what is known.
func (p *Pipeline) tenant(id string, log *zap.Logger) *profile.Config {
	if p.Resolver != nil {
		cfg, err := p.Resolver.Resolve(id)
		if err == nil {
			return cfg
		}
		log.Warn("⚠️ Tenant not resolvable, using fallback", zap.Error(err))
	}
	name := id
	if name == "" {
		name = "Unknown business"
	}
	return &profile.Config{ID: id, Business: profile.Business{Name: name}}
}

func (p *Pipeline) stage(log *zap.Logger, name string, fn func() error) {
	start := time.Now()
	err := fn()
	metrics.PipelineStageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PipelineStageFailed.WithLabelValues(name).Inc()
		level := log.Warn
		if errors.Is(err, context.DeadlineExceeded) {
			level = log.Error
		}
		level("❌ Stage failed, continuing", zap.String("stage", name), zap.Error(err))
	}
}

func spokenText(turns []lead.Turn) string {
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		if c := strings.TrimSpace(t.Content); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, " ")
}
