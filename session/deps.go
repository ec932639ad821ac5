package session

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/room4-2/receptionist/callstore"
	"github.com/room4-2/receptionist/gemini"
	"github.com/room4-2/receptionist/profile"
	"github.com/room4-2/receptionist/prompt"
)

// Agent is the live model connection of one call. *gemini.Proxy implements it.
type Agent interface {
	SetHandlers(h gemini.Handlers)
	Setup(ctx context.Context, opts gemini.LiveOptions) error
	StartReceiving(ctx context.Context)
	SendAudio(pcm []byte) error
	SendAudioBatch(pcm []byte) error
	SendText(text string) error
	SendToolResponse(responses []*genai.FunctionResponse) error
	Close() error
}

// AgentFactory opens an agent for a new call.
type AgentFactory func(ctx context.Context) (Agent, error)

// GeminiAgents opens every agent on a shared client.
func GeminiAgents(client *genai.Client, logger *zap.Logger) AgentFactory {
	return func(context.Context) (Agent, error) {
		return gemini.NewProxy(client, logger), nil
	}
}

// Hanger ends a phone call from our side.
type Hanger interface {
	Hangup(ctx context.Context, callSid string) error
}

// CallFinisher is told once a call's record is final.
type CallFinisher interface {
	CallEnded(ctx context.Context, callID string)
}

// Deps are shared by every session.
type Deps struct {
	Resolver      *profile.Resolver
	Engine        *prompt.Engine
	NewAgent      AgentFactory
	Calls         callstore.Store
	Model         string
	DefaultTenant string

	// Optional.
	Hanger   Hanger
	Finisher CallFinisher

	Logger *zap.Logger
}
