package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/room4-2/receptionist/callstore"
	"github.com/room4-2/receptionist/functions"
	"github.com/room4-2/receptionist/gemini"
	"github.com/room4-2/receptionist/lead"
	"github.com/room4-2/receptionist/logging"
	"github.com/room4-2/receptionist/messages"
	"github.com/room4-2/receptionist/metrics"
	"github.com/room4-2/receptionist/profile"
	"github.com/room4-2/receptionist/prompt"
)

const (
	writeBufferSize = 256
	writeTimeout    = 10 * time.Second
	finishTimeout   = 10 * time.Second

	// callConnectedCue makes the model speak its greeting.
	callConnectedCue = "[Call connected]"

	// goodbyeMark is echoed by Twilio once the goodbye has played.
	goodbyeMark = "goodbye"
)

// Grace periods before the line is dropped after end_call.
var (
	hangupGrace  = 10 * time.Second
	browserGrace = 2 * time.Second
)

// Custom <Parameter> names passed from the voice webhook.
const (
	ParamTenant   = "tenant"
	ParamFrom     = "from"
	ParamTo       = "to"
	ParamCallType = "callType"
)

// CallParams identify the call a session answers.
type CallParams struct {
	TenantID string
	CallType string
	From     string
	To       string
}

// ClientSession is one live call, from the phone network or a browser.
type ClientSession struct {
	ID           string
	IsTwilio     bool
	StreamSid    string
	CallSid      string
	TenantID     string
	ClientConn   *websocket.Conn
	AudioBuffer  *AudioBuffer // browser audio waiting for end_turn
	Transcript   *Transcript
	CreatedAt    time.Time
	LastActivity time.Time

	deps   *Deps
	logger *zap.Logger

	agent         Agent
	tools         *functions.Registry
	cfg           *profile.Config
	captured      *lead.Captured
	hangupPending bool
	timers        []*time.Timer

	writeChan chan any

	mu         sync.RWMutex
	closed     bool
	CloseChan  chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	hangupOnce sync.Once
	finishOnce sync.Once
}

func newClientSession(id string, clientConn *websocket.Conn, deps *Deps, maxBufferSize int) *ClientSession {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()

	return &ClientSession{
		ID:           id,
		ClientConn:   clientConn,
		AudioBuffer:  NewAudioBuffer(maxBufferSize),
		CreatedAt:    now,
		LastActivity: now,
		deps:         deps,
		logger:       deps.Logger.Named("session").With(zap.String("session", logging.ShortID(id))),
		writeChan:    make(chan any, writeBufferSize),
		CloseChan:    make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// NewClientSession creates a browser session. The model is connected by
// Connect before Start.
func NewClientSession(id string, clientConn *websocket.Conn, deps *Deps, maxBufferSize int) *ClientSession {
	clientConn.SetReadLimit(512 * 1024)
	clientConn.EnableWriteCompression(true)
	_ = clientConn.SetCompressionLevel(6)
	return newClientSession(id, clientConn, deps, maxBufferSize)
}

// NewTwilioClientSession creates a phone session. The tenant is only known
// once the stream's start frame arrives.
func NewTwilioClientSession(id string, clientConn *websocket.Conn, deps *Deps) *ClientSession {
	// Twilio doesn't support WebSocket compression
	clientConn.EnableWriteCompression(false)
	cs := newClientSession(id, clientConn, deps, 0)
	cs.IsTwilio = true
	return cs
}

// Start runs a browser session.
func (cs *ClientSession) Start() {
	go cs.writePump()
	cs.queueMessage(messages.NewStatusMessage(cs.ID, messages.StatusConnected, "Session established"))
	go cs.handleClientMessages()
}

// StartTwilio runs a phone session.
func (cs *ClientSession) StartTwilio() {
	go cs.writePump()
	go cs.handleClientMessagesFromTwilio()
}

// Connect resolves the tenant, renders its prompt and opens the model
// session. A tenant that cannot be resolved aborts the call.
func (cs *ClientSession) Connect(p CallParams) error {
	if p.TenantID == "" {
		p.TenantID = cs.deps.DefaultTenant
	}

	cfg, err := cs.deps.Resolver.Resolve(p.TenantID)
	if err != nil {
		metrics.CallSetupFailed.WithLabelValues(setupFailureReason(err)).Inc()
		return err
	}

	bundle := cs.deps.Engine.Generate(cfg, prompt.CallContext{CallType: p.CallType})
	tools := functions.ForCall(cfg, cs)

	agent, err := cs.deps.NewAgent(cs.ctx)
	if err != nil {
		metrics.CallSetupFailed.WithLabelValues("agent").Inc()
		return fmt.Errorf("failed to create agent: %w", err)
	}
	agent.SetHandlers(cs.handlers())

	err = agent.Setup(cs.ctx, gemini.LiveOptions{
		Model:        cs.deps.Model,
		Voice:        cfg.Assistant.Voice,
		SystemPrompt: bundle.SystemPrompt,
		Tools:        tools.Tools(),
		Transcribe:   true,
	})
	if err != nil {
		_ = agent.Close()
		metrics.CallSetupFailed.WithLabelValues("agent").Inc()
		return fmt.Errorf("failed to setup Gemini session: %w", err)
	}

	now := time.Now()
	cs.mu.Lock()
	cs.agent = agent
	cs.tools = tools
	cs.cfg = cfg
	cs.TenantID = cfg.ID
	cs.Transcript = NewTranscript(now, nil)
	cs.mu.Unlock()

	agent.StartReceiving(cs.ctx)
	cs.recordStart(p, now)

	if d := cfg.MaxCallDuration(); d > 0 {
		cs.after(d, func() {
			cs.logger.Info("⏱️ Max call duration reached", zap.Duration("limit", d))
			cs.endCall()
		})
	}

	channel := "browser"
	if cs.IsTwilio {
		channel = "twilio"
	}
	metrics.CallsStarted.WithLabelValues(cfg.ID, channel).Inc()
	cs.logger.Info("📞 Call answered",
		zap.String("tenant", cfg.ID),
		zap.String("call_type", p.CallType),
		zap.Bool("open", bundle.IsOpen),
		zap.String("greeting", bundle.Greeting),
	)

	if err := agent.SendText(callConnectedCue); err != nil {
		cs.logger.Error("❌ Failed to trigger greeting", zap.Error(err))
	}
	return nil
}

func setupFailureReason(err error) string {
	var nf *profile.NotFoundError
	var inv *profile.ValidationError
	switch {
	case errors.As(err, &nf):
		return "tenant_not_found"
	case errors.As(err, &inv):
		return "tenant_invalid"
	default:
		return "tenant_error"
	}
}

func (cs *ClientSession) recordStart(p CallParams, now time.Time) {
	ctx, cancel := context.WithTimeout(cs.ctx, finishTimeout)
	defer cancel()

	_, err := cs.deps.Calls.Update(ctx, cs.callID(), func(r *callstore.Record) {
		r.TenantID = cs.TenantID
		r.Status = callstore.StatusInProgress
		if r.From == "" {
			r.From = p.From
		}
		if r.To == "" {
			r.To = p.To
		}
		if r.StartedAt.IsZero() {
			r.StartedAt = now
		}
	})
	if err != nil {
		cs.logger.Warn("⚠️ Failed to record call start", zap.Error(err))
	}
}

// callID keys the call record: the Twilio call sid, or the session id for
// browser calls.
func (cs *ClientSession) callID() string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if cs.CallSid != "" {
		return cs.CallSid
	}
	return cs.ID
}

func (cs *ClientSession) currentAgent() Agent {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.agent
}

func (cs *ClientSession) handlers() gemini.Handlers {
	h := gemini.Handlers{
		OnInputTranscript: func(text string) {
			cs.Transcript.Add(lead.RoleUser, text)
			if !cs.IsTwilio {
				cs.queueMessage(messages.NewTranscriptMessage(cs.ID, lead.RoleUser, text))
			}
		},
		OnOutputTranscript: func(text string) {
			cs.Transcript.Add(lead.RoleAgent, text)
			if !cs.IsTwilio {
				cs.queueMessage(messages.NewTranscriptMessage(cs.ID, lead.RoleAgent, text))
			}
		},
		OnToolCall: cs.handleToolCalls,
		OnError:    cs.handleAgentError,
	}

	if cs.IsTwilio {
		h.OnAudio = cs.sendTwilioAudio
		h.OnInterrupted = func() {
			if sid := cs.streamSid(); sid != "" {
				cs.queueMessage(messages.NewTwilioClear(sid))
			}
		}
		h.OnComplete = func() {
			cs.mu.RLock()
			pending := cs.hangupPending
			cs.mu.RUnlock()
			if pending {
				if sid := cs.streamSid(); sid != "" {
					cs.queueMessage(messages.NewTwilioMark(sid, goodbyeMark))
				}
			}
		}
		return h
	}

	h.OnAudio = func(pcm []byte) {
		cs.queueMessage(messages.NewAudioMessage(cs.ID, base64.StdEncoding.EncodeToString(pcm)))
	}
	h.OnText = func(text string) {
		cs.queueMessage(messages.NewTextMessage(cs.ID, text))
	}
	h.OnInterrupted = func() {
		cs.queueMessage(messages.NewStatusMessage(cs.ID, messages.StatusInterrupted, ""))
	}
	h.OnComplete = func() {
		cs.queueMessage(messages.NewStatusMessage(cs.ID, messages.StatusTurnComplete, ""))
	}
	return h
}

func (cs *ClientSession) sendTwilioAudio(pcm []byte) {
	streamSid := cs.streamSid()
	if streamSid == "" {
		cs.logger.Warn("⚠️ Received audio from Gemini but no StreamSid set yet")
		return
	}
	encoded := base64.StdEncoding.EncodeToString(PCM24kToMuLaw(pcm))
	cs.queueMessage(messages.NewTwilioMedia(streamSid, encoded))
}

func (cs *ClientSession) streamSid() string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.StreamSid
}

func (cs *ClientSession) handleAgentError(err error) {
	if cs.IsClosed() {
		return
	}
	cs.logger.Error("❌ Gemini error", zap.Error(err))
	if !cs.IsTwilio {
		cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeGeminiError, err.Error()))
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) ||
		websocket.IsUnexpectedCloseError(err) {
		cs.logger.Info("🔌 Closing session due to Gemini connection error")
		cs.Close()
	}
}

// handleToolCalls runs the model's function calls and answers them all at once.
func (cs *ClientSession) handleToolCalls(calls []*genai.FunctionCall) {
	cs.mu.RLock()
	tools := cs.tools
	cs.mu.RUnlock()
	agent := cs.currentAgent()
	if tools == nil || agent == nil {
		return
	}

	responses := make([]*genai.FunctionResponse, 0, len(calls))
	for _, fc := range calls {
		cs.logger.Info("🔧 Function call", zap.String("name", fc.Name), zap.String("id", fc.ID))
		responses = append(responses, tools.Dispatch(cs.ctx, fc))
	}

	if err := agent.SendToolResponse(responses); err != nil {
		cs.logger.Error("❌ Failed to send tool response", zap.Error(err))
		if !cs.IsTwilio {
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeGeminiError, err.Error()))
		}
	}
}

// CaptureLead stores the structured lead the assistant collected. A later
// capture replaces an earlier one field by field.
func (cs *ClientSession) CaptureLead(c *lead.Captured) {
	cs.mu.Lock()
	cs.captured = mergeCaptured(cs.captured, c)
	cs.mu.Unlock()
	cs.logger.Info("📝 Lead captured", zap.String("name", c.Name), zap.String("service", c.Service))
}

func mergeCaptured(prev, next *lead.Captured) *lead.Captured {
	if prev == nil {
		cp := *next
		return &cp
	}
	out := *prev
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&out.Name, next.Name)
	set(&out.Phone, next.Phone)
	set(&out.Address, next.Address)
	set(&out.Service, next.Service)
	set(&out.PropertyType, next.PropertyType)
	set(&out.Timing, next.Timing)
	set(&out.Urgency, next.Urgency)
	set(&out.Details, next.Details)
	return &out
}

// Captured returns the lead captured so far, or nil.
func (cs *ClientSession) Captured() *lead.Captured {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if cs.captured == nil {
		return nil
	}
	cp := *cs.captured
	return &cp
}

// EndCall is invoked by the end_call tool. The goodbye is allowed to play
// before the line drops.
func (cs *ClientSession) EndCall(reason string) {
	cs.logger.Info("👋 Assistant ended the call", zap.String("reason", reason))

	if !cs.IsTwilio {
		cs.queueMessage(messages.NewStatusMessage(cs.ID, messages.StatusCallEnded, reason))
		cs.after(browserGrace, func() { cs.Close() })
		return
	}

	cs.mu.Lock()
	cs.hangupPending = true
	cs.mu.Unlock()
	cs.after(hangupGrace, cs.endCall)
}

// endCall drops the line. Twilio then stops the stream, which closes the session.
func (cs *ClientSession) endCall() {
	cs.hangupOnce.Do(func() {
		cs.mu.RLock()
		callSid := cs.CallSid
		cs.mu.RUnlock()
		if !cs.IsTwilio || cs.deps.Hanger == nil || callSid == "" {
			cs.Close()
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
		defer cancel()
		if err := cs.deps.Hanger.Hangup(ctx, callSid); err != nil {
			cs.logger.Error("❌ Hangup failed, closing stream", zap.Error(err))
			cs.Close()
		}
	})
}

func (cs *ClientSession) after(d time.Duration, fn func()) {
	t := time.AfterFunc(d, func() {
		if !cs.IsClosed() {
			fn()
		}
	})
	cs.mu.Lock()
	cs.timers = append(cs.timers, t)
	cs.mu.Unlock()
}

// writePump handles all outgoing messages in a single goroutine
func (cs *ClientSession) writePump() {
	defer func() {
		_ = cs.ClientConn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = cs.ClientConn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
	}()

	for {
		select {
		case <-cs.CloseChan:
			return
		case msg := <-cs.writeChan:
			_ = cs.ClientConn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cs.ClientConn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

// queueMessage adds a message to the write queue without blocking. Messages
// are dropped once the session is closed or the queue is full.
func (cs *ClientSession) queueMessage(msg any) {
	select {
	case <-cs.CloseChan:
		return
	default:
	}

	select {
	case cs.writeChan <- msg:
		cs.touch()
	default:
		cs.logger.Warn("⚠️ Write queue full, dropping message")
	}
}

func (cs *ClientSession) touch() {
	cs.mu.Lock()
	cs.LastActivity = time.Now()
	cs.mu.Unlock()
}

// LastActive returns the time of the last frame in either direction.
func (cs *ClientSession) LastActive() time.Time {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.LastActivity
}

// Close terminates the session, finalizes the call record and hands the
// call to post-call processing.
func (cs *ClientSession) Close() error {
	cs.mu.Lock()
	if cs.closed {
		cs.mu.Unlock()
		return nil
	}
	cs.closed = true
	timers := cs.timers
	cs.timers = nil
	agent := cs.agent
	cs.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
	cs.cancel()
	close(cs.CloseChan)

	if cs.AudioBuffer != nil {
		cs.AudioBuffer.Clear()
	}
	if agent != nil {
		_ = agent.Close()
	}
	if cs.ClientConn != nil {
		_ = cs.ClientConn.Close()
	}

	cs.finish()
	return nil
}

func (cs *ClientSession) finish() {
	cs.finishOnce.Do(func() {
		cs.mu.RLock()
		connected := cs.cfg != nil
		captured := cs.captured
		cs.mu.RUnlock()
		if !connected {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
		defer cancel()

		ended := time.Now()
		turns := cs.Transcript.Turns()
		id := cs.callID()
		_, err := cs.deps.Calls.Update(ctx, id, func(r *callstore.Record) {
			r.Status = callstore.StatusEnded
			r.EndedAt = ended
			r.DurationSeconds = int(ended.Sub(r.StartedAt).Seconds())
			r.Transcript = turns
			if captured != nil {
				r.Captured = captured
			}
		})
		if err != nil {
			cs.logger.Error("❌ Failed to record call end", zap.Error(err))
			return
		}
		cs.logger.Info("📴 Call ended", zap.Int("turns", len(turns)), zap.Bool("lead_captured", captured != nil))

		if cs.deps.Finisher != nil {
			cs.deps.Finisher.CallEnded(ctx, id)
		}
	})
}

// IsClosed returns whether the session is closed
func (cs *ClientSession) IsClosed() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.closed
}

// handleClientMessagesFromTwilio reads media stream frames. Audio is
// streamed straight to the model, which does its own turn detection.
func (cs *ClientSession) handleClientMessagesFromTwilio() {
	defer cs.Close()
	for {
		_, data, err := cs.ClientConn.ReadMessage()
		if err != nil {
			if !cs.IsClosed() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				cs.logger.Warn("❌ Twilio WebSocket read error", zap.Error(err))
			}
			return
		}
		cs.touch()

		ev, err := messages.DecodeTwilioEvent(data)
		if err != nil {
			cs.logger.Warn("⚠️ Failed to parse Twilio message", zap.Error(err))
			continue
		}

		switch ev.Event {
		case messages.EventConnected:
			cs.logger.Debug("📞 Twilio stream connected")

		case messages.EventStart:
			if ev.Start == nil || ev.Start.StreamSid == "" {
				cs.logger.Warn("⚠️ Twilio start frame missing streamSid")
				continue
			}
			if err := cs.handleStart(ev.Start); err != nil {
				cs.logger.Error("❌ Call setup failed", zap.Error(err))
				return
			}

		case messages.EventMedia:
			if ev.Media == nil {
				continue
			}
			cs.forwardTwilioAudio(ev.Media.Payload)

		case messages.EventMark:
			if ev.Mark != nil && ev.Mark.Name == goodbyeMark {
				cs.endCall()
			}

		case messages.EventStop:
			cs.logger.Info("📞 Twilio stream stopped")
			return

		default:
			cs.logger.Debug("⚠️ Unknown Twilio event", zap.String("event", ev.Event))
		}
	}
}

func (cs *ClientSession) handleStart(start *messages.StartInfo) error {
	cs.mu.Lock()
	cs.StreamSid = start.StreamSid
	cs.CallSid = start.CallSid
	cs.mu.Unlock()

	params := start.CustomParameters
	cs.logger.Info("📞 Twilio stream started",
		zap.String("stream_sid", start.StreamSid),
		zap.String("call_sid", start.CallSid),
		zap.String("tenant", params[ParamTenant]),
	)

	return cs.Connect(CallParams{
		TenantID: params[ParamTenant],
		CallType: params[ParamCallType],
		From:     params[ParamFrom],
		To:       params[ParamTo],
	})
}

func (cs *ClientSession) forwardTwilioAudio(payload string) {
	agent := cs.currentAgent()
	if agent == nil {
		return
	}
	mulaw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		cs.logger.Warn("⚠️ Failed to decode Twilio audio", zap.Error(err))
		return
	}
	if err := agent.SendAudio(MuLawToPCM16k(mulaw)); err != nil {
		cs.logger.Debug("❌ Failed to send audio to Gemini", zap.Error(err))
	}
}

// handleClientMessages reads the browser channel. Audio is buffered until
// the client sends end_turn.
func (cs *ClientSession) handleClientMessages() {
	defer cs.Close()

	for {
		messageType, data, err := cs.ClientConn.ReadMessage()
		if err != nil {
			return
		}
		cs.touch()

		if messageType == websocket.BinaryMessage {
			cs.bufferAudio(data)
			continue
		}

		var msg messages.ClientMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Invalid message format"))
			continue
		}
		cs.processClientMessage(&msg)
	}
}

func (cs *ClientSession) bufferAudio(pcm []byte) {
	if err := cs.AudioBuffer.Append(pcm); err != nil {
		cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeBufferFull,
			fmt.Sprintf("Audio buffer full (max %d bytes)", cs.AudioBuffer.MaxSize())))
	}
}

func (cs *ClientSession) processClientMessage(msg *messages.ClientMessage) {
	switch msg.Type {
	case messages.ClientAudio, messages.ClientAudioBinary:
		var payload messages.AudioPayload
		if err := sonic.Unmarshal(msg.Payload, &payload); err != nil {
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Invalid audio payload"))
			return
		}
		pcm, err := base64.StdEncoding.DecodeString(payload.Data)
		if err != nil {
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Invalid base64 audio data"))
			return
		}
		cs.bufferAudio(pcm)

	case messages.ClientControl:
		var payload messages.ControlPayload
		if err := sonic.Unmarshal(msg.Payload, &payload); err != nil {
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Invalid control payload"))
			return
		}
		cs.handleControlMessage(&payload)

	default:
		cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Unknown message type: "+msg.Type))
	}
}

func (cs *ClientSession) handleControlMessage(payload *messages.ControlPayload) {
	switch payload.Action {
	case messages.ActionPing:
		cs.queueMessage(messages.NewStatusMessage(cs.ID, messages.StatusPong, ""))
	case messages.ActionEndTurn:
		cs.handleEndTurn()
	case messages.ActionHangup:
		cs.Close()
	default:
		cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Unknown control action: "+payload.Action))
	}
}

// handleEndTurn sends the buffered utterance to the model.
func (cs *ClientSession) handleEndTurn() {
	pcm, chunks := cs.AudioBuffer.Flush()
	if chunks == 0 {
		cs.logger.Debug("⚠️ end_turn received but buffer is empty, ignoring")
		return
	}
	agent := cs.currentAgent()
	if agent == nil {
		return
	}

	cs.logger.Debug("📤 Sending batch audio to Gemini", zap.Int("bytes", len(pcm)), zap.Int("chunks", chunks))
	if err := agent.SendAudioBatch(pcm); err != nil {
		cs.logger.Error("❌ Failed to send audio to Gemini", zap.Error(err))
		cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeGeminiError, err.Error()))
	}
}
