package messages

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Twilio media stream events.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
	EventMark      = "mark"
	EventClear     = "clear"
)

// TwilioEvent is one frame received on a media stream.
type TwilioEvent struct {
	Event          string      `json:"event"`
	SequenceNumber string      `json:"sequenceNumber,omitempty"`
	StreamSid      string      `json:"streamSid,omitempty"`
	Start          *StartInfo  `json:"start,omitempty"`
	Media          *MediaChunk `json:"media,omitempty"`
	Stop           *StopInfo   `json:"stop,omitempty"`
	Mark           *Mark       `json:"mark,omitempty"`
}

type StartInfo struct {
	StreamSid        string            `json:"streamSid"`
	CallSid          string            `json:"callSid"`
	AccountSid       string            `json:"accountSid"`
	Tracks           []string          `json:"tracks,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
	MediaFormat      MediaFormat       `json:"mediaFormat"`
}

type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

type MediaChunk struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"` // Base64-encoded mu-law audio data
}

type StopInfo struct {
	CallSid    string `json:"callSid"`
	AccountSid string `json:"accountSid"`
}

type Mark struct {
	Name string `json:"name"`
}

// DecodeTwilioEvent parses one media stream frame.
func DecodeTwilioEvent(data []byte) (*TwilioEvent, error) {
	var ev TwilioEvent
	if err := sonic.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("parse twilio frame: %w", err)
	}
	if ev.Event == "" {
		return nil, fmt.Errorf("twilio frame missing event")
	}
	return &ev, nil
}

// TwilioOutbound is a frame sent back on a media stream.
type TwilioOutbound struct {
	Event     string      `json:"event"`
	StreamSid string      `json:"streamSid"`
	Media     *MediaChunk `json:"media,omitempty"`
	Mark      *Mark       `json:"mark,omitempty"`
}

// NewTwilioMedia plays base64 mu-law audio to the caller.
func NewTwilioMedia(streamSid, payload string) *TwilioOutbound {
	return &TwilioOutbound{Event: EventMedia, StreamSid: streamSid, Media: &MediaChunk{Payload: payload}}
}

// NewTwilioMark asks Twilio to echo name back once the audio queued
// before it has played.
func NewTwilioMark(streamSid, name string) *TwilioOutbound {
	return &TwilioOutbound{Event: EventMark, StreamSid: streamSid, Mark: &Mark{Name: name}}
}

// NewTwilioClear drops audio Twilio has buffered but not yet played.
func NewTwilioClear(streamSid string) *TwilioOutbound {
	return &TwilioOutbound{Event: EventClear, StreamSid: streamSid}
}
