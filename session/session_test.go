package session

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/genai"

	"github.com/room4-2/receptionist/callstore"
	"github.com/room4-2/receptionist/config"
	"github.com/room4-2/receptionist/functions"
	"github.com/room4-2/receptionist/gemini"
	"github.com/room4-2/receptionist/lead"
	"github.com/room4-2/receptionist/messages"
	"github.com/room4-2/receptionist/profile"
	"github.com/room4-2/receptionist/prompt"
)

// fakeAgent stands in for the Live session.
type fakeAgent struct {
	mu        sync.Mutex
	handlers  gemini.Handlers
	opts      gemini.LiveOptions
	setup     bool
	audio     [][]byte
	batches   [][]byte
	texts     []string
	responses []*genai.FunctionResponse
	closed    bool
}

func (a *fakeAgent) SetHandlers(h gemini.Handlers) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers = h
}

func (a *fakeAgent) Setup(_ context.Context, opts gemini.LiveOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.opts = opts
	a.setup = true
	return nil
}

func (a *fakeAgent) StartReceiving(context.Context) {}

func (a *fakeAgent) SendAudio(pcm []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.audio = append(a.audio, pcm)
	return nil
}

func (a *fakeAgent) SendAudioBatch(pcm []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.batches = append(a.batches, pcm)
	return nil
}

func (a *fakeAgent) SendText(text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.texts = append(a.texts, text)
	return nil
}

func (a *fakeAgent) SendToolResponse(responses []*genai.FunctionResponse) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.responses = append(a.responses, responses...)
	return nil
}

func (a *fakeAgent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *fakeAgent) isSetup() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.setup
}

// greeted reports whether call setup finished.
func (a *fakeAgent) greeted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.texts) > 0
}

func (a *fakeAgent) h() gemini.Handlers {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handlers
}

type recordingFinisher struct {
	mu    sync.Mutex
	ended []string
}

func (f *recordingFinisher) CallEnded(_ context.Context, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, id)
}

func (f *recordingFinisher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ended...)
}

type recordingHanger struct {
	mu   sync.Mutex
	sids []string
}

func (h *recordingHanger) Hangup(_ context.Context, sid string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sids = append(h.sids, sid)
	return nil
}

func (h *recordingHanger) hungUp() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.sids...)
}

type harness struct {
	deps     *Deps
	agent    *fakeAgent
	calls    *callstore.Memory
	finisher *recordingFinisher
	hanger   *recordingHanger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	source := profile.StaticSource{
		"rake": {
			"business":  map[string]any{"name": "Rake and Clover", "owner": "Jonathan", "timezone": "America/Toronto"},
			"assistant": map[string]any{"name": "Sarah", "voice": "Kore"},
		},
	}

	h := &harness{
		agent:    &fakeAgent{},
		calls:    callstore.NewMemory(time.Hour),
		finisher: &recordingFinisher{},
		hanger:   &recordingHanger{},
	}
	h.deps = &Deps{
		Resolver:      profile.NewResolver(source, logger),
		Engine:        prompt.NewEngine(),
		NewAgent:      func(context.Context) (Agent, error) { return h.agent, nil },
		Calls:         h.calls,
		Model:         "test-model",
		DefaultTenant: "rake",
		Hanger:        h.hanger,
		Finisher:      h.finisher,
		Logger:        logger,
	}
	return h
}

// serve upgrades every request and hands the server side to start.
func serve(t *testing.T, start func(conn *websocket.Conn)) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		start(conn)
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func startFrame(tenant string) map[string]any {
	return map[string]any{
		"event": messages.EventStart,
		"start": map[string]any{
			"streamSid": "MZ123",
			"callSid":   "CA456",
			"customParameters": map[string]any{
				ParamTenant: tenant,
				ParamFrom:   "+19055550134",
			},
		},
	}
}

func readOutbound(t *testing.T, conn *websocket.Conn) messages.TwilioOutbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var out messages.TwilioOutbound
	require.NoError(t, conn.ReadJSON(&out))
	return out
}

// =============================================================================
// Phone calls
// =============================================================================

func TestTwilioCallLifecycle(t *testing.T) {
	h := newHarness(t)
	client := serve(t, func(conn *websocket.Conn) {
		NewTwilioClientSession("sess-1", conn, h.deps).StartTwilio()
	})

	require.NoError(t, client.WriteJSON(map[string]any{"event": messages.EventConnected}))
	require.NoError(t, client.WriteJSON(startFrame("rake")))
	require.Eventually(t, h.agent.greeted, 2*time.Second, 10*time.Millisecond)

	h.agent.mu.Lock()
	opts := h.agent.opts
	texts := append([]string(nil), h.agent.texts...)
	h.agent.mu.Unlock()

	assert.Equal(t, "test-model", opts.Model)
	assert.Equal(t, "Kore", opts.Voice)
	assert.True(t, opts.Transcribe)
	assert.Contains(t, opts.SystemPrompt, "Rake and Clover")
	require.Len(t, opts.Tools, 1)
	assert.Len(t, opts.Tools[0].FunctionDeclarations, 3)
	assert.Equal(t, []string{callConnectedCue}, texts)

	rec, err := h.calls.Get(context.Background(), "CA456")
	require.NoError(t, err)
	assert.Equal(t, callstore.StatusInProgress, rec.Status)
	assert.Equal(t, "rake", rec.TenantID)
	assert.Equal(t, "+19055550134", rec.From)

	// caller audio reaches the model as 16 kHz PCM
	mulaw := []byte{0xFF, 0x7F, 0x00, 0x80}
	require.NoError(t, client.WriteJSON(map[string]any{
		"event": messages.EventMedia,
		"media": map[string]any{"payload": base64.StdEncoding.EncodeToString(mulaw)},
	}))
	require.Eventually(t, func() bool {
		h.agent.mu.Lock()
		defer h.agent.mu.Unlock()
		return len(h.agent.audio) == 1
	}, 2*time.Second, 10*time.Millisecond)
	h.agent.mu.Lock()
	assert.Len(t, h.agent.audio[0], len(mulaw)*4)
	h.agent.mu.Unlock()

	// model audio is played back as mu-law on the same stream
	handlers := h.agent.h()
	handlers.OnAudio(make([]byte, 12))
	out := readOutbound(t, client)
	assert.Equal(t, messages.EventMedia, out.Event)
	assert.Equal(t, "MZ123", out.StreamSid)
	played, err := base64.StdEncoding.DecodeString(out.Media.Payload)
	require.NoError(t, err)
	assert.Len(t, played, 2)

	handlers.OnInterrupted()
	assert.Equal(t, messages.EventClear, readOutbound(t, client).Event)

	handlers.OnOutputTranscript("Good morning! Thanks for calling ")
	handlers.OnOutputTranscript("Rake and Clover.")
	handlers.OnInputTranscript("I need my lawn mowed.")
	handlers.OnToolCall([]*genai.FunctionCall{{
		ID:   "fc-1",
		Name: functions.CaptureLead,
		Args: map[string]any{"name": "Marcus", "phone": "9055550134", "service": "lawn mowing"},
	}})

	h.agent.mu.Lock()
	require.Len(t, h.agent.responses, 1)
	assert.Equal(t, "fc-1", h.agent.responses[0].ID)
	h.agent.mu.Unlock()

	require.NoError(t, client.WriteJSON(map[string]any{"event": messages.EventStop}))
	require.Eventually(t, func() bool { return len(h.finisher.calls()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"CA456"}, h.finisher.calls())

	rec, err = h.calls.Get(context.Background(), "CA456")
	require.NoError(t, err)
	assert.Equal(t, callstore.StatusEnded, rec.Status)
	assert.False(t, rec.EndedAt.IsZero())
	require.Len(t, rec.Transcript, 2)
	assert.Equal(t, lead.RoleAgent, rec.Transcript[0].Role)
	assert.Equal(t, "Good morning! Thanks for calling Rake and Clover.", rec.Transcript[0].Content)
	assert.Equal(t, lead.RoleUser, rec.Transcript[1].Role)
	require.NotNil(t, rec.Captured)
	assert.Equal(t, "Marcus", rec.Captured.Name)

	h.agent.mu.Lock()
	assert.True(t, h.agent.closed)
	h.agent.mu.Unlock()
}

func TestTwilioEndCallHangsUpAfterGoodbye(t *testing.T) {
	h := newHarness(t)
	client := serve(t, func(conn *websocket.Conn) {
		NewTwilioClientSession("sess-2", conn, h.deps).StartTwilio()
	})

	require.NoError(t, client.WriteJSON(startFrame("")))
	require.Eventually(t, h.agent.greeted, 2*time.Second, 10*time.Millisecond)

	handlers := h.agent.h()
	handlers.OnToolCall([]*genai.FunctionCall{{ID: "fc-2", Name: functions.EndCall, Args: map[string]any{"reason": "caller said bye"}}})
	assert.Empty(t, h.hanger.hungUp())

	handlers.OnComplete()
	mark := readOutbound(t, client)
	require.Equal(t, messages.EventMark, mark.Event)
	assert.Equal(t, goodbyeMark, mark.Mark.Name)

	require.NoError(t, client.WriteJSON(map[string]any{"event": messages.EventMark, "mark": map[string]any{"name": goodbyeMark}}))
	require.Eventually(t, func() bool { return len(h.hanger.hungUp()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"CA456"}, h.hanger.hungUp())
}

func TestTwilioUnknownTenantAbortsCall(t *testing.T) {
	h := newHarness(t)
	closed := make(chan struct{})
	client := serve(t, func(conn *websocket.Conn) {
		cs := NewTwilioClientSession("sess-3", conn, h.deps)
		cs.StartTwilio()
		go func() {
			<-cs.CloseChan
			close(closed)
		}()
	})

	require.NoError(t, client.WriteJSON(startFrame("ghost")))

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close")
	}
	assert.False(t, h.agent.isSetup())
	assert.Empty(t, h.finisher.calls())
	_, err := h.calls.Get(context.Background(), "CA456")
	assert.ErrorIs(t, err, callstore.ErrNotFound)
}

// =============================================================================
// Browser calls
// =============================================================================

func TestBrowserEndTurnSendsBufferedAudio(t *testing.T) {
	h := newHarness(t)
	ready := make(chan *ClientSession, 1)
	client := serve(t, func(conn *websocket.Conn) {
		cs := NewClientSession("sess-4", conn, h.deps, 1024)
		if err := cs.Connect(CallParams{TenantID: "rake"}); err != nil {
			t.Error(err)
			return
		}
		cs.Start()
		ready <- cs
	})
	cs := <-ready

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	var status messages.ServerMessage
	require.NoError(t, client.ReadJSON(&status))
	assert.Equal(t, messages.TypeStatus, status.Type)

	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3, 4}))
	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte{5, 6}))
	require.NoError(t, client.WriteJSON(map[string]any{
		"type":    messages.ClientControl,
		"payload": map[string]any{"action": messages.ActionEndTurn},
	}))

	require.Eventually(t, func() bool {
		h.agent.mu.Lock()
		defer h.agent.mu.Unlock()
		return len(h.agent.batches) == 1
	}, 2*time.Second, 10*time.Millisecond)
	h.agent.mu.Lock()
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, h.agent.batches[0])
	h.agent.mu.Unlock()
	assert.True(t, cs.AudioBuffer.IsEmpty())

	require.NoError(t, client.WriteJSON(map[string]any{
		"type":    messages.ClientControl,
		"payload": map[string]any{"action": messages.ActionHangup},
	}))
	require.Eventually(t, func() bool { return len(h.finisher.calls()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"sess-4"}, h.finisher.calls())
}

func TestMergeCapturedKeepsEarlierFields(t *testing.T) {
	first := mergeCaptured(nil, &lead.Captured{Name: "Marcus", Phone: "9055550134"})
	merged := mergeCaptured(first, &lead.Captured{Service: "mowing", Phone: "9055550000"})

	assert.Equal(t, "Marcus", merged.Name)
	assert.Equal(t, "9055550000", merged.Phone)
	assert.Equal(t, "mowing", merged.Service)
	assert.Empty(t, first.Service)
}

// =============================================================================
// Manager
// =============================================================================

func TestManagerLimitsAndMirrorsSessions(t *testing.T) {
	h := newHarness(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{MaxSessions: 1, SessionTimeout: time.Minute, MaxBufferSize: 1024}
	m := NewManager(cfg, h.deps, rdb)

	created := make(chan *ClientSession, 2)
	errs := make(chan error, 2)
	handler := func(conn *websocket.Conn) {
		cs, err := m.CreateTwilioSession(context.Background(), conn)
		if err != nil {
			errs <- err
			_ = conn.Close()
			return
		}
		created <- cs
	}
	serve(t, handler)
	cs := <-created
	serve(t, handler)
	assert.ErrorIs(t, <-errs, ErrMaxSessions)

	assert.Equal(t, 1, m.GetActiveSessionCount())
	members, err := mr.SMembers(activeSessionsKey)
	require.NoError(t, err)
	assert.Equal(t, []string{cs.ID}, members)
	assert.True(t, mr.Exists("session:"+cs.ID))
	assert.Equal(t, time.Minute, mr.TTL("session:"+cs.ID))

	got, ok := m.GetSession(cs.ID)
	require.True(t, ok)
	assert.Same(t, cs, got)

	require.NoError(t, m.RemoveSession(context.Background(), cs.ID))
	assert.True(t, cs.IsClosed())
	assert.Equal(t, 0, m.GetActiveSessionCount())
	assert.False(t, mr.Exists("session:"+cs.ID))
}

func TestManagerCleanupForgetsClosedSessions(t *testing.T) {
	h := newHarness(t)
	m := NewManager(&config.Config{MaxSessions: 5, SessionTimeout: time.Hour}, h.deps, nil)

	created := make(chan *ClientSession, 1)
	serve(t, func(conn *websocket.Conn) {
		cs, err := m.CreateTwilioSession(context.Background(), conn)
		if err != nil {
			t.Error(err)
			return
		}
		created <- cs
	})
	cs := <-created
	cs.Close()

	m.CleanupInactiveSessions(context.Background())
	assert.Equal(t, 0, m.GetActiveSessionCount())
}
