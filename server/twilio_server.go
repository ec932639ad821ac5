package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/room4-2/receptionist/callstore"
	"github.com/room4-2/receptionist/config"
	"github.com/room4-2/receptionist/logging"
	"github.com/room4-2/receptionist/session"
	"github.com/room4-2/receptionist/twilio"
)

// recordingDelay gives Twilio time to bridge the call before a recording
// is requested on it.
var recordingDelay = time.Second

const recordingTimeout = 15 * time.Second

// Recorder starts a call recording. *twilio.Client implements it.
type Recorder interface {
	StartRecording(ctx context.Context, callSid, callbackURL string) (string, error)
}

// CallProcessor runs post-call work. *postcall.Pipeline implements it.
type CallProcessor interface {
	RecordingComplete(ctx context.Context, callID, recordingURL string, durationSeconds int) error
	Enqueue(callID string)
}

// Options are the collaborators of the telephony server.
type Options struct {
	Calls     callstore.Store
	Processor CallProcessor
	Recorder  Recorder // optional
	Version   string
	Logger    *zap.Logger
}

// WebsocketTwilio serves the phone side: TwiML, the media stream, the
// recording callback, the voice-platform webhook and the call API.
type WebsocketTwilio struct {
	httpServer     *http.Server
	router         *chi.Mux
	upgrader       websocket.Upgrader
	sessionManager *session.Manager
	config         *config.Config
	calls          callstore.Store
	processor      CallProcessor
	recorder       Recorder
	limiter        *ipLimiter
	version        string
	logger         *zap.Logger
	stop           context.CancelFunc
}

func NewWebsocketTwilio(cfg *config.Config, sessionManager *session.Manager, opts Options) *WebsocketTwilio {
	s := &WebsocketTwilio{
		sessionManager: sessionManager,
		config:         cfg,
		calls:          opts.Calls,
		processor:      opts.Processor,
		recorder:       opts.Recorder,
		limiter:        newIPLimiter(cfg.Webhook.RateLimit, cfg.Webhook.RateBurst),
		version:        opts.Version,
		logger:         opts.Logger.Named("twilio-server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			// Twilio doesn't support WebSocket compression
			EnableCompression: false,
			// Twilio connections don't send browser Origin headers.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.router = s.routes()

	// The standalone Twilio server takes the main port.
	port := cfg.TwilioPort
	if cfg.ServerType == config.ServerTypeTwilio {
		port = cfg.Port
	}

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
		// No ReadTimeout/WriteTimeout: they would cut long-lived media streams.
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *WebsocketTwilio) routes() *chi.Mux {
	router := newRouter()
	router.Get("/stream", s.handleWebsocketTwilio)

	router.Group(func(r chi.Router) {
		r.Use(requestLogger(s.logger))
		mountObservability(r, "twilio", s.config.Profiles.DefaultClientID, s.version, s.sessionManager)

		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware)
			r.Post("/voice", s.handleVoiceCall)
			r.Post("/recording-complete", s.handleRecordingComplete)
			r.Post("/webhooks/retell", s.handleRetellWebhook)
		})

		r.Route("/api/calls", func(r chi.Router) {
			r.Get("/", s.handleListCalls)
			r.Get("/{id}", s.handleGetCall)
		})
	})
	return router
}

// Start begins listening for connections
func (s *WebsocketTwilio) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	go s.limiter.run(ctx)

	s.logger.Info("📞 Twilio server starting",
		zap.String("addr", s.httpServer.Addr),
		zap.String("stream", "ws://localhost"+s.httpServer.Addr+"/stream"),
		zap.String("voice", "http://localhost"+s.httpServer.Addr+"/voice"),
	)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server
func (s *WebsocketTwilio) Shutdown(ctx context.Context) error {
	s.logger.Info("🛑 Shutting down Twilio server")
	if s.stop != nil {
		s.stop()
	}
	return s.httpServer.Shutdown(ctx)
}

// GetAddr returns the server's listen address
func (s *WebsocketTwilio) GetAddr() string {
	return s.httpServer.Addr
}

func (s *WebsocketTwilio) handleWebsocketTwilio(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Twilio WebSocket upgrade failed", zap.Error(err))
		return
	}

	clientSession, err := s.sessionManager.CreateTwilioSession(r.Context(), conn)
	if err != nil {
		s.logger.Error("❌ Failed to create Twilio session", zap.Error(err))
		conn.Close()
		return
	}

	log := s.logger.With(zap.String("session", logging.ShortID(clientSession.ID)))
	log.Info("📞 New Twilio session created")

	// Connects to the model once the start frame names the tenant.
	clientSession.StartTwilio()

	<-clientSession.CloseChan

	_ = s.sessionManager.RemoveSession(context.Background(), clientSession.ID)
	log.Info("📞 Twilio session closed")
}

// handleVoiceCall answers Twilio's incoming-call webhook. The tenant comes
// from the ?tenant= query of the number's webhook URL.
func (s *WebsocketTwilio) handleVoiceCall(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	callSid := r.PostForm.Get("CallSid")
	from := r.PostForm.Get("From")
	to := r.PostForm.Get("To")

	tenant := r.URL.Query().Get(session.ParamTenant)
	if tenant == "" {
		tenant = s.config.Profiles.DefaultClientID
	}
	host := s.publicHost(r)
	record := s.config.Twilio.RecordCalls && s.recorder != nil && callSid != ""

	log := s.logger.With(zap.String("call_sid", callSid), zap.String("tenant", tenant))
	log.Info("📞 Incoming call", zap.String("from", from), zap.String("to", to), zap.Bool("record", record))

	if callSid != "" {
		_, err := s.calls.Update(r.Context(), callSid, func(rec *callstore.Record) {
			rec.TenantID = tenant
			rec.From = from
			rec.To = to
			rec.Status = callstore.StatusInProgress
			rec.RecordingPending = record
		})
		if err != nil {
			log.Warn("⚠️ Failed to record incoming call", zap.Error(err))
		}
	}

	notice := ""
	if record {
		notice = twilio.RecordingNotice
	}
	body, err := twilio.StreamTwiML("wss://"+host+"/stream", notice, map[string]string{
		session.ParamTenant:   tenant,
		session.ParamFrom:     from,
		session.ParamTo:       to,
		session.ParamCallType: r.URL.Query().Get(session.ParamCallType),
	})
	if err != nil {
		log.Error("❌ Failed to render TwiML", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write(body)

	if record {
		go s.startRecording(callSid, "https://"+host+"/recording-complete", log)
	}
}

// startRecording asks Twilio to record the call. A failed request releases
// the call so the pipeline does not wait for a recording that never comes.
func (s *WebsocketTwilio) startRecording(callSid, callbackURL string, log *zap.Logger) {
	time.Sleep(recordingDelay)

	ctx, cancel := context.WithTimeout(context.Background(), recordingTimeout)
	defer cancel()

	if _, err := s.recorder.StartRecording(ctx, callSid, callbackURL); err != nil {
		log.Error("❌ Failed to start recording", zap.Error(err))
		if err := s.processor.RecordingComplete(ctx, callSid, "", 0); err != nil {
			log.Error("❌ Failed to release call", zap.Error(err))
		}
	}
}

// handleRecordingComplete is Twilio's recording status callback.
func (s *WebsocketTwilio) handleRecordingComplete(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	callSid := r.PostForm.Get("CallSid")
	recordingURL := r.PostForm.Get("RecordingUrl")
	duration, _ := strconv.Atoi(r.PostForm.Get("RecordingDuration"))

	if callSid == "" {
		writeError(w, http.StatusBadRequest, "missing CallSid")
		return
	}
	// Twilio serves the bare recording URL as WAV only with an extension.
	if recordingURL != "" && path.Ext(recordingURL) == "" {
		recordingURL += ".wav"
	}

	s.logger.Info("🎙️ Recording complete",
		zap.String("call_sid", callSid),
		zap.String("recording_sid", r.PostForm.Get("RecordingSid")),
		zap.Int("duration", duration),
	)
	if err := s.processor.RecordingComplete(r.Context(), callSid, recordingURL, duration); err != nil {
		s.logger.Error("❌ Failed to attach recording", zap.String("call_sid", callSid), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *WebsocketTwilio) publicHost(r *http.Request) string {
	if s.config.PublicHost != "" {
		return s.config.PublicHost
	}
	return r.Host
}
