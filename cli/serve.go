package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/room4-2/receptionist/callstore"
	"github.com/room4-2/receptionist/config"
	"github.com/room4-2/receptionist/events"
	"github.com/room4-2/receptionist/gemini"
	"github.com/room4-2/receptionist/logging"
	"github.com/room4-2/receptionist/notify"
	"github.com/room4-2/receptionist/postcall"
	"github.com/room4-2/receptionist/profile"
	"github.com/room4-2/receptionist/prompt"
	"github.com/room4-2/receptionist/server"
	"github.com/room4-2/receptionist/session"
	"github.com/room4-2/receptionist/twilio"
)

const (
	shutdownTimeout = 10 * time.Second
	drainTimeout    = 30 * time.Second
	pingTimeout     = 5 * time.Second
)

type listener interface {
	Start() error
	Shutdown(ctx context.Context) error
}

func newServeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Answer calls on the configured listeners",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, app.Version)
		},
	}
}

func serve(ctx context.Context, version string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	defer func() { _ = logger.Sync() }()

	rt, err := wire(ctx, cfg, version, logger)
	if err != nil {
		return err
	}
	defer rt.close()

	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	defer cancelCleanup()
	go rt.manager.StartCleanupRoutine(cleanupCtx)

	errCh := make(chan error, len(rt.listeners))
	for _, l := range rt.listeners {
		go func(l listener) { errCh <- l.Start() }(l)
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error("❌ Server error", zap.Error(runErr))
		}
	}

	// Closing sessions finalizes their call records and queues them for
	// the pipeline, so listeners stop first and notifications drain last.
	cancelCleanup()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, l := range rt.listeners {
		if err := l.Shutdown(shutdownCtx); err != nil {
			logger.Warn("⚠️ Server shutdown error", zap.Error(err))
		}
	}
	rt.manager.Shutdown()

	drained := make(chan struct{})
	go func() {
		rt.pipeline.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainTimeout):
		logger.Warn("⚠️ Gave up waiting for post-call processing")
	}

	logger.Info("Server stopped")
	return runErr
}

type runtime struct {
	manager   *session.Manager
	pipeline  *postcall.Pipeline
	listeners []listener
	closers   []func()
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// wire builds every long-lived component from cfg. Optional backends that
// are unreachable are logged and replaced by their in-process fallback.
func wire(ctx context.Context, cfg *config.Config, version string, logger *zap.Logger) (*runtime, error) {
	rt := &runtime{}

	redisClient := connectRedis(ctx, cfg, logger)
	var calls callstore.Store = callstore.NewMemory(cfg.CallRetention)
	if redisClient != nil {
		calls = callstore.NewRedis(redisClient, cfg.CallRetention)
		rt.closers = append(rt.closers, func() { _ = redisClient.Close() })
	}

	resolver := profile.NewResolver(profile.NewFileStore(cfg.Profiles.Dir), logger)
	if _, err := resolver.Resolve(cfg.Profiles.DefaultClientID); err != nil {
		logger.Warn("⚠️ Default tenant does not resolve", zap.String("tenant", cfg.Profiles.DefaultClientID), zap.Error(err))
	}

	genaiClient, err := gemini.NewClient(ctx, cfg.Gemini.APIKey)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	deps := postcall.Deps{
		Calls:       calls,
		Resolver:    resolver,
		Summarizer:  gemini.NewSummarizer(genaiClient.Models, cfg.Gemini.SummaryModel),
		Transcriber: gemini.NewTranscriber(genaiClient.Models, cfg.Gemini.SummaryModel),
		Routing:     notify.Routing{From: cfg.Email.From, To: cfg.Email.NotifyTo, BCC: cfg.Email.BCC},
		Logger:      logger,
	}

	var hanger session.Hanger
	var recorder server.Recorder
	if cfg.Twilio.AccountSID != "" && cfg.Twilio.AuthToken != "" {
		tw := twilio.NewClient(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, logger)
		hanger, recorder, deps.Recordings = tw, tw, tw
	} else {
		logger.Warn("⚠️ Twilio credentials not set, end_call will close the stream instead of hanging up")
	}

	var snsClient *sns.Client
	if cfg.Email.Provider == "ses" || cfg.Email.SMSAlertNumber != "" {
		sesClient, snsC, err := notify.LoadAWS(ctx, cfg.Email.AWSRegion)
		if err != nil {
			rt.close()
			return nil, err
		}
		snsClient = snsC
		if cfg.Email.Provider == "ses" {
			deps.Sender = notify.NewSESSender(sesClient)
		}
	}
	switch cfg.Email.Provider {
	case "smtp":
		smtpSender, err := notify.NewSMTPSender(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPUser, cfg.Email.SMTPPass)
		if err != nil {
			rt.close()
			return nil, err
		}
		deps.Sender = smtpSender
	case "log":
		deps.Sender = notify.NewLogSender(logger)
	}
	if snsClient != nil && cfg.Email.SMSAlertNumber != "" {
		deps.SMS = notify.NewSMSAlerter(snsClient, cfg.Email.SMSAlertNumber, logger)
	}

	if cfg.NATS.URL != "" {
		nc, err := events.NewClient(ctx, cfg.NATS.URL, cfg.NATS.Token, logger)
		if err != nil {
			logger.Warn("⚠️ NATS unavailable, lead events disabled", zap.Error(err))
		} else {
			deps.Events = nc
			rt.closers = append(rt.closers, nc.Close)
		}
	}

	rt.pipeline = postcall.NewPipeline(deps)

	sessionDeps := &session.Deps{
		Resolver:      resolver,
		Engine:        prompt.NewEngine(),
		NewAgent:      session.GeminiAgents(genaiClient, logger),
		Calls:         calls,
		Model:         cfg.Gemini.Model,
		DefaultTenant: cfg.Profiles.DefaultClientID,
		Hanger:        hanger,
		Finisher:      rt.pipeline,
		Logger:        logger,
	}
	rt.manager = session.NewManager(cfg, sessionDeps, redisClient)

	opts := server.Options{
		Calls:     calls,
		Processor: rt.pipeline,
		Recorder:  recorder,
		Version:   version,
		Logger:    logger,
	}
	switch cfg.ServerType {
	case config.ServerTypeWebsocket:
		rt.listeners = append(rt.listeners, server.NewServerWebsocket(cfg, rt.manager, version, logger))
	case config.ServerTypeTwilio:
		rt.listeners = append(rt.listeners, server.NewWebsocketTwilio(cfg, rt.manager, opts))
	case config.ServerTypeBoth:
		rt.listeners = append(rt.listeners,
			server.NewServerWebsocket(cfg, rt.manager, version, logger),
			server.NewWebsocketTwilio(cfg, rt.manager, opts),
		)
	}

	logger.Info("🚀 Receptionist ready",
		zap.String("server_type", cfg.ServerType),
		zap.String("tenant", cfg.Profiles.DefaultClientID),
		zap.String("email", deps.Sender.Name()),
		zap.Bool("redis", redisClient != nil),
		zap.Bool("sms", deps.SMS != nil),
		zap.Bool("events", deps.Events != nil),
		zap.Bool("record_calls", cfg.Twilio.RecordCalls),
	)
	return rt, nil
}

// connectRedis returns nil when Redis cannot be reached; calls are then
// kept in memory.
func connectRedis(ctx context.Context, cfg *config.Config, logger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       0,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("⚠️ Redis unavailable, keeping calls in memory", zap.String("addr", cfg.RedisURL), zap.Error(err))
		_ = client.Close()
		return nil
	}
	return client
}
