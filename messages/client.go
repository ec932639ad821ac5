package messages

import "encoding/json"

// Browser client message types.
const (
	ClientAudio       = "audio"
	ClientAudioBinary = "audio_binary"
	ClientControl     = "control"
)

// Control actions.
const (
	ActionPing    = "ping"
	ActionEndTurn = "end_turn"
	ActionHangup  = "hangup"
)

// ClientMessage is a message from the browser test client.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AudioPayload contains audio data from client
type AudioPayload struct {
	Data string `json:"data"` // Base64-encoded 16 kHz PCM
}

// ControlPayload contains control commands
type ControlPayload struct {
	Action string `json:"action"`
}
