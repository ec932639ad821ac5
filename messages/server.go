// Package messages defines the frames exchanged on the media stream and
// browser websockets.
package messages

// Error codes
const (
	ErrCodeInvalidMessage   = "INVALID_MESSAGE"
	ErrCodeGeminiError      = "GEMINI_ERROR"
	ErrCodeSessionFailed    = "SESSION_FAILED"
	ErrCodeConnectionClosed = "CONNECTION_CLOSED"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeBufferFull       = "BUFFER_FULL"
	ErrCodeTenantNotFound   = "TENANT_NOT_FOUND"
	ErrCodeTenantInvalid    = "TENANT_INVALID"
)

// Message types
const (
	TypeAudio      = "audio"
	TypeText       = "text"
	TypeStatus     = "status"
	TypeError      = "error"
	TypeTranscript = "transcript"
)

// Statuses.
const (
	StatusConnected    = "connected"
	StatusTurnComplete = "turn_complete"
	StatusInterrupted  = "interrupted"
	StatusPong         = "pong"
	StatusCallEnded    = "call_ended"
)

// ServerMessage is a message sent to the browser test client.
type ServerMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Payload   any    `json:"payload"`
}

// AudioResponsePayload contains audio data for client
type AudioResponsePayload struct {
	Data     string `json:"data"`     // Base64-encoded PCM audio
	MimeType string `json:"mimeType"` // "audio/pcm;rate=24000"
}

// TextResponsePayload contains text response
type TextResponsePayload struct {
	Text string `json:"text"`
}

// TranscriptPayload carries one live transcription fragment.
type TranscriptPayload struct {
	Role string `json:"role"` // "agent" or "user"
	Text string `json:"text"`
}

// StatusPayload contains status updates
type StatusPayload struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ErrorPayload contains error information
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewAudioMessage creates an audio response message
func NewAudioMessage(sessionID, data string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeAudio,
		SessionID: sessionID,
		Payload: AudioResponsePayload{
			Data:     data,
			MimeType: "audio/pcm;rate=24000",
		},
	}
}

// NewTextMessage creates a text response message
func NewTextMessage(sessionID, text string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeText,
		SessionID: sessionID,
		Payload: TextResponsePayload{
			Text: text,
		},
	}
}

// NewTranscriptMessage forwards a transcription fragment.
func NewTranscriptMessage(sessionID, role, text string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeTranscript,
		SessionID: sessionID,
		Payload:   TranscriptPayload{Role: role, Text: text},
	}
}

// NewStatusMessage creates a status message
func NewStatusMessage(sessionID, status, message string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeStatus,
		SessionID: sessionID,
		Payload: StatusPayload{
			Status:  status,
			Message: message,
		},
	}
}

// NewErrorMessage creates an error message
func NewErrorMessage(sessionID, code, message string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeError,
		SessionID: sessionID,
		Payload: ErrorPayload{
			Code:    code,
			Message: message,
		},
	}
}
