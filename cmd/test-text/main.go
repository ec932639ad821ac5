// Command test-text sends typed caller turns to a Live session configured
// exactly like a real call to the tenant, and prints what comes back.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/room4-2/receptionist/config"
	"github.com/room4-2/receptionist/functions"
	"github.com/room4-2/receptionist/gemini"
	"github.com/room4-2/receptionist/lead"
	"github.com/room4-2/receptionist/logging"
	"github.com/room4-2/receptionist/profile"
	"github.com/room4-2/receptionist/prompt"
)

const turnTimeout = 20 * time.Second

// printSink reports tool side effects instead of storing them.
type printSink struct {
	logger *zap.Logger
	once   sync.Once
	done   chan struct{}
}

func (s *printSink) CaptureLead(c *lead.Captured) {
	s.logger.Info("📋 Lead captured",
		zap.String("name", c.Name),
		zap.String("phone", c.Phone),
		zap.String("service", c.Service),
		zap.String("urgency", c.Urgency),
	)
}

func (s *printSink) EndCall(reason string) {
	s.logger.Info("📞 Agent ended the call", zap.String("reason", reason))
	s.once.Do(func() { close(s.done) })
}

func main() {
	tenant := flag.String("tenant", "", "Tenant to call (CLIENT_ID when empty)")
	first := flag.String("say", "", "First caller line; further lines are read from stdin")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New("debug", "console")
	defer func() { _ = logger.Sync() }()

	if *tenant == "" {
		*tenant = cfg.Profiles.DefaultClientID
	}
	resolver := profile.NewResolver(profile.NewFileStore(cfg.Profiles.Dir), logger)
	tenantCfg, err := resolver.Resolve(*tenant)
	if err != nil {
		logger.Fatal("Failed to resolve tenant", zap.String("tenant", *tenant), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client, err := gemini.NewClient(ctx, cfg.Gemini.APIKey)
	if err != nil {
		logger.Fatal("Failed to create Gemini client", zap.Error(err))
	}

	sink := &printSink{logger: logger, done: make(chan struct{})}
	tools := functions.ForCall(tenantCfg, sink)
	bundle := prompt.NewEngine().Generate(tenantCfg, prompt.CallContext{})

	proxy := gemini.NewProxy(client, logger)
	defer proxy.Close()

	turnDone := make(chan struct{}, 1)
	proxy.SetHandlers(gemini.Handlers{
		OnOutputTranscript: func(text string) { fmt.Print(text) },
		OnInputTranscript:  func(text string) { logger.Debug("heard", zap.String("text", text)) },
		OnText:             func(text string) { fmt.Print(text) },
		OnComplete: func() {
			fmt.Println()
			select {
			case turnDone <- struct{}{}:
			default:
			}
		},
		OnToolCall: func(calls []*genai.FunctionCall) {
			responses := make([]*genai.FunctionResponse, 0, len(calls))
			for _, call := range calls {
				logger.Info("🔧 Tool call", zap.String("name", call.Name), zap.Any("args", call.Args))
				responses = append(responses, tools.Dispatch(ctx, call))
			}
			if err := proxy.SendToolResponse(responses); err != nil {
				logger.Error("Failed to send tool response", zap.Error(err))
			}
		},
		OnError: func(err error) { logger.Error("❌ Agent error", zap.Error(err)) },
	})

	// Audio-only models still return their words through the output transcript.
	err = proxy.Setup(ctx, gemini.LiveOptions{
		Model:        cfg.Gemini.Model,
		Voice:        tenantCfg.Assistant.Voice,
		SystemPrompt: bundle.SystemPrompt,
		Tools:        tools.Tools(),
		Transcribe:   true,
	})
	if err != nil {
		logger.Fatal("Failed to set up Live session", zap.Error(err))
	}
	proxy.StartReceiving(ctx)

	logger.Info("☎️ Connected", zap.String("tenant", tenantCfg.ID), zap.Bool("open", bundle.IsOpen))

	turn := func(text string) bool {
		if err := proxy.SendText(text); err != nil {
			logger.Error("Failed to send text", zap.Error(err))
			return false
		}
		select {
		case <-turnDone:
			return true
		case <-sink.done:
			return false
		case <-ctx.Done():
			return false
		case <-time.After(turnTimeout):
			logger.Warn("⏰ No reply")
			return true
		}
	}

	if !turn("[Call connected]") {
		return
	}
	if *first != "" && !turn(*first) {
		return
	}

	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !in.Scan() {
			return
		}
		if line := in.Text(); line != "" && !turn(line) {
			return
		}
	}
}
