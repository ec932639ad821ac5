package gemini

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// DefaultVoice is used when a tenant does not choose one. Available voices:
// Puck, Charon, Kore, Fenrir, Aoede, Leda, Orus, Zephyr.
const DefaultVoice = "Zephyr"

// InputSampleRate is the PCM rate the Live API expects from us.
const InputSampleRate = 16000

var errNotConnected = errors.New("proxy is closed or not connected")

// LiveOptions configure one Live session.
type LiveOptions struct {
	Model        string
	Voice        string
	SystemPrompt string
	Tools        []*genai.Tool
	// Transcribe enables input and output transcription.
	Transcribe bool
}

// Handlers receive what the model sends. Nil handlers are skipped.
type Handlers struct {
	OnAudio            func(pcm []byte) // 24 kHz PCM
	OnText             func(text string)
	OnInputTranscript  func(text string)
	OnOutputTranscript func(text string)
	OnInterrupted      func()
	OnComplete         func()
	OnToolCall         func(calls []*genai.FunctionCall)
	OnError            func(err error)
}

// Proxy manages one Live API session.
type Proxy struct {
	Handlers

	client  *genai.Client
	session *genai.Session
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
}

func NewProxy(client *genai.Client, logger *zap.Logger) *Proxy {
	return &Proxy{client: client, logger: logger.Named("gemini")}
}

// SetHandlers must be called before StartReceiving.
func (gp *Proxy) SetHandlers(h Handlers) {
	gp.Handlers = h
}

// Setup establishes the Live session.
func (gp *Proxy) Setup(ctx context.Context, opts LiveOptions) error {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	if gp.closed {
		return fmt.Errorf("proxy is closed")
	}

	session, err := gp.client.Live.Connect(ctx, opts.Model, LiveConfig(opts))
	if err != nil {
		return fmt.Errorf("failed to connect to Live API: %w", err)
	}

	gp.session = session
	gp.logger.Info("✅ Connected to Gemini Live", zap.String("model", opts.Model), zap.String("voice", voiceOrDefault(opts.Voice)))
	return nil
}

// LiveConfig translates opts into the SDK connect config.
func LiveConfig(opts LiveOptions) *genai.LiveConnectConfig {
	config := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: opts.SystemPrompt}},
		},
		Tools: opts.Tools,
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voiceOrDefault(opts.Voice)},
			},
		},
	}
	if opts.Transcribe {
		config.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
		config.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return config
}

func voiceOrDefault(voice string) string {
	if voice == "" {
		return DefaultVoice
	}
	return voice
}

// StartReceiving begins listening for Gemini responses.
func (gp *Proxy) StartReceiving(ctx context.Context) {
	go func() {
		defer func() {
			if gp.OnError != nil && !gp.isClosed() {
				gp.OnError(fmt.Errorf("gemini receiver closed"))
			}
		}()

		for {
			if ctx.Err() != nil {
				return
			}
			gp.mu.RLock()
			if gp.closed || gp.session == nil {
				gp.mu.RUnlock()
				return
			}
			session := gp.session
			gp.mu.RUnlock()

			// Receive blocks until a message arrives or error occurs
			resp, err := session.Receive()
			if err != nil {
				if !gp.isClosed() {
					gp.logger.Error("❌ Gemini receive error", zap.Error(err))
					if gp.OnError != nil {
						gp.OnError(err)
					}
				}
				return
			}

			gp.handleResponse(resp)
		}
	}()
}

func (gp *Proxy) handleResponse(resp *genai.LiveServerMessage) {
	if resp.ToolCall != nil && len(resp.ToolCall.FunctionCalls) > 0 {
		gp.logger.Debug("📥 Received function calls", zap.Int("count", len(resp.ToolCall.FunctionCalls)))
		if gp.OnToolCall != nil {
			gp.OnToolCall(resp.ToolCall.FunctionCalls)
		}
	}

	sc := resp.ServerContent
	if sc == nil {
		return
	}

	if sc.Interrupted && gp.OnInterrupted != nil {
		gp.OnInterrupted()
	}
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" && gp.OnInputTranscript != nil {
		gp.OnInputTranscript(sc.InputTranscription.Text)
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" && gp.OnOutputTranscript != nil {
		gp.OnOutputTranscript(sc.OutputTranscription.Text)
	}

	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part.Text != "" && gp.OnText != nil {
				gp.OnText(part.Text)
			}
			if part.InlineData != nil && gp.OnAudio != nil {
				gp.OnAudio(part.InlineData.Data)
			}
		}
	}

	if sc.TurnComplete && gp.OnComplete != nil {
		gp.logger.Debug("📥 Turn complete")
		gp.OnComplete()
	}
}

// SendAudio forwards a 16 kHz PCM chunk.
func (gp *Proxy) SendAudio(pcm []byte) error {
	session, err := gp.active()
	if err != nil {
		return err
	}

	err = session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{
			MIMEType: fmt.Sprintf("audio/pcm;rate=%d", InputSampleRate),
			Data:     pcm,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send audio: %w", err)
	}
	return nil
}

// SendAudioBatch sends a whole utterance and marks the end of the stream,
// which makes the model respond.
func (gp *Proxy) SendAudioBatch(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	if err := gp.SendAudio(pcm); err != nil {
		return fmt.Errorf("failed to send audio batch: %w", err)
	}

	session, err := gp.active()
	if err != nil {
		return err
	}
	if err := session.SendRealtimeInput(genai.LiveRealtimeInput{AudioStreamEnd: true}); err != nil {
		return fmt.Errorf("failed to send audio stream end: %w", err)
	}
	gp.logger.Debug("📤 Sent audio stream end", zap.Int("bytes", len(pcm)))
	return nil
}

// SendText sends a complete user turn.
func (gp *Proxy) SendText(text string) error {
	session, err := gp.active()
	if err != nil {
		return err
	}

	turnComplete := true
	err = session.SendClientContent(genai.LiveSendClientContentParameters{
		Turns:        []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		TurnComplete: &turnComplete,
	})
	if err != nil {
		return fmt.Errorf("failed to send text: %w", err)
	}

	gp.logger.Debug("📤 Sent text", zap.String("text", text))
	return nil
}

// SendToolResponse sends function call responses back to Gemini.
func (gp *Proxy) SendToolResponse(responses []*genai.FunctionResponse) error {
	session, err := gp.active()
	if err != nil {
		return err
	}

	err = session.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: responses})
	if err != nil {
		return fmt.Errorf("failed to send tool response: %w", err)
	}

	gp.logger.Debug("📤 Sent tool responses", zap.Int("count", len(responses)))
	return nil
}

func (gp *Proxy) active() (*genai.Session, error) {
	gp.mu.RLock()
	defer gp.mu.RUnlock()
	if gp.closed || gp.session == nil {
		return nil, errNotConnected
	}
	return gp.session, nil
}

func (gp *Proxy) isClosed() bool {
	gp.mu.RLock()
	defer gp.mu.RUnlock()
	return gp.closed
}

// Close terminates the Gemini connection.
func (gp *Proxy) Close() error {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	if gp.closed {
		return nil
	}
	gp.closed = true

	if gp.session != nil {
		return gp.session.Close()
	}
	return nil
}
