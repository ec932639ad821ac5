package messages

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTwilioStart(t *testing.T) {
	frame := []byte(`{
		"event": "start",
		"sequenceNumber": "1",
		"start": {
			"accountSid": "AC123",
			"streamSid": "MZ456",
			"callSid": "CA789",
			"tracks": ["inbound"],
			"mediaFormat": {"encoding": "audio/x-mulaw", "sampleRate": 8000, "channels": 1},
			"customParameters": {"tenant": "rake-and-clover", "from": "+19055550134"}
		},
		"streamSid": "MZ456"
	}`)

	ev, err := DecodeTwilioEvent(frame)
	require.NoError(t, err)
	assert.Equal(t, EventStart, ev.Event)
	require.NotNil(t, ev.Start)
	assert.Equal(t, "CA789", ev.Start.CallSid)
	assert.Equal(t, 8000, ev.Start.MediaFormat.SampleRate)
	assert.Equal(t, "rake-and-clover", ev.Start.CustomParameters["tenant"])
}

func TestDecodeTwilioMediaAndMark(t *testing.T) {
	ev, err := DecodeTwilioEvent([]byte(`{"event":"media","streamSid":"MZ1","media":{"track":"inbound","chunk":"2","timestamp":"5","payload":"//8="}}`))
	require.NoError(t, err)
	assert.Equal(t, "//8=", ev.Media.Payload)

	ev, err = DecodeTwilioEvent([]byte(`{"event":"mark","streamSid":"MZ1","mark":{"name":"goodbye"}}`))
	require.NoError(t, err)
	assert.Equal(t, "goodbye", ev.Mark.Name)
}

func TestDecodeTwilioErrors(t *testing.T) {
	_, err := DecodeTwilioEvent([]byte(`{not json`))
	assert.Error(t, err)

	_, err = DecodeTwilioEvent([]byte(`{"streamSid":"MZ1"}`))
	assert.ErrorContains(t, err, "missing event")
}

func TestTwilioOutboundFrames(t *testing.T) {
	data, err := json.Marshal(NewTwilioMedia("MZ1", "AAE="))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"media","streamSid":"MZ1","media":{"payload":"AAE="}}`, string(data))

	data, err = json.Marshal(NewTwilioMark("MZ1", "goodbye"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"mark","streamSid":"MZ1","mark":{"name":"goodbye"}}`, string(data))

	data, err = json.Marshal(NewTwilioClear("MZ1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"clear","streamSid":"MZ1"}`, string(data))
}

func TestServerMessages(t *testing.T) {
	data, err := json.Marshal(NewTranscriptMessage("s1", "user", "hello"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"transcript","sessionId":"s1","payload":{"role":"user","text":"hello"}}`, string(data))

	data, err = json.Marshal(NewErrorMessage("", ErrCodeTenantNotFound, "unknown tenant"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","payload":{"code":"TENANT_NOT_FOUND","message":"unknown tenant"}}`, string(data))
}
