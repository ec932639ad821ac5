package twilio

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

type captured struct {
	method string
	path   string
	user   string
	pass   string
}

func newTestClient(t *testing.T, status int, body string, opts ...Option) (*Client, *captured, *httptest.Server) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.user, got.pass, _ = r.BasicAuth()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	opts = append([]Option{WithBaseURL(srv.URL)}, opts...)
	return NewClient("AC123", "secret", zap.NewNop(), opts...), got, srv
}

type fakeCalls struct {
	recordingSid string
	callSid      string
	recording    *openapi.CreateCallRecordingParams
	update       *openapi.UpdateCallParams
	err          error
}

func (f *fakeCalls) CreateCallRecording(callSid string, params *openapi.CreateCallRecordingParams) (*openapi.ApiV2010CallRecording, error) {
	f.callSid, f.recording = callSid, params
	if f.err != nil {
		return nil, f.err
	}
	return &openapi.ApiV2010CallRecording{Sid: &f.recordingSid}, nil
}

func (f *fakeCalls) UpdateCall(sid string, params *openapi.UpdateCallParams) (*openapi.ApiV2010Call, error) {
	f.callSid, f.update = sid, params
	if f.err != nil {
		return nil, f.err
	}
	return &openapi.ApiV2010Call{Sid: &sid}, nil
}

func sdkTestClient(calls *fakeCalls) *Client {
	c := NewClient("AC123", "secret", zap.NewNop())
	c.calls = calls
	return c
}

func TestStartRecording(t *testing.T) {
	calls := &fakeCalls{recordingSid: "RE789"}

	sid, err := sdkTestClient(calls).StartRecording(context.Background(), "CA456", "https://example.com/recording-complete")
	require.NoError(t, err)
	assert.Equal(t, "RE789", sid)

	assert.Equal(t, "CA456", calls.callSid)
	require.NotNil(t, calls.recording)
	assert.Equal(t, "dual", *calls.recording.RecordingChannels)
	assert.Equal(t, "https://example.com/recording-complete", *calls.recording.RecordingStatusCallback)
	assert.Equal(t, []string{"completed"}, *calls.recording.RecordingStatusCallbackEvent)
	assert.Equal(t, http.MethodPost, *calls.recording.RecordingStatusCallbackMethod)
}

func TestHangup(t *testing.T) {
	calls := &fakeCalls{}

	require.NoError(t, sdkTestClient(calls).Hangup(context.Background(), "CA456"))
	assert.Equal(t, "CA456", calls.callSid)
	require.NotNil(t, calls.update)
	assert.Equal(t, "completed", *calls.update.Status)
}

func TestSDKErrorsBecomeAPIErrors(t *testing.T) {
	calls := &fakeCalls{err: &twclient.TwilioRestError{
		Status:  http.StatusNotFound,
		Code:    20404,
		Message: "The requested resource was not found",
	}}

	err := sdkTestClient(calls).Hangup(context.Background(), "CA404")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, 20404, apiErr.Code)
	assert.Contains(t, err.Error(), "not found")
}

func TestCallControlHonoursCancelledContext(t *testing.T) {
	calls := &fakeCalls{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sdkTestClient(calls).StartRecording(ctx, "CA456", "https://example.com/recording-complete")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, calls.recording)
}

func TestDownloadRecordingAPIError(t *testing.T) {
	c, _, srv := newTestClient(t, http.StatusNotFound, `{"code":20404,"message":"The requested resource was not found"}`)

	_, err := c.DownloadRecording(context.Background(), srv.URL+"/2010-04-01/Accounts/AC123/Recordings/RE404")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 20404, apiErr.Code)
}

func TestDownloadRecordingRejectsOversizedAudio(t *testing.T) {
	c, _, srv := newTestClient(t, http.StatusOK, "RIFF0123456789", WithMaxRecordingSize(8))

	_, err := c.DownloadRecording(context.Background(), srv.URL+"/2010-04-01/Accounts/AC123/Recordings/RE789")
	assert.ErrorIs(t, err, ErrRecordingTooLarge)

	c, _, srv = newTestClient(t, http.StatusOK, "RIFFdata", WithMaxRecordingSize(8))
	data, err := c.DownloadRecording(context.Background(), srv.URL+"/2010-04-01/Accounts/AC123/Recordings/RE789")
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFFdata"), data, "exactly at the limit is accepted")
}

func TestDownloadRecording(t *testing.T) {
	c, got, srv := newTestClient(t, http.StatusOK, "RIFFdata")

	data, err := c.DownloadRecording(context.Background(), srv.URL+"/2010-04-01/Accounts/AC123/Recordings/RE789")
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFFdata"), data)
	assert.Equal(t, http.MethodGet, got.method)
	assert.Equal(t, "AC123", got.user)
}

func TestDownloadRecordingRefusesForeignHost(t *testing.T) {
	c, got, _ := newTestClient(t, http.StatusOK, "")

	_, err := c.DownloadRecording(context.Background(), "https://attacker.example/steal")
	require.Error(t, err)
	assert.Empty(t, got.method)
}

func TestStreamTwiML(t *testing.T) {
	body, err := StreamTwiML("wss://rc.example.com/stream", RecordingNotice, map[string]string{
		"tenant": "rake",
		"from":   "+19055550134",
		"empty":  "",
	})
	require.NoError(t, err)

	want := `<?xml version="1.0" encoding="UTF-8"?>
<Response>
  <Say voice="woman">This call is being recorded for quality purposes.</Say>
  <Connect>
    <Stream url="wss://rc.example.com/stream">
      <Parameter name="from" value="+19055550134"></Parameter>
      <Parameter name="tenant" value="rake"></Parameter>
    </Stream>
  </Connect>
</Response>`
	assert.Equal(t, want, string(body))
}

func TestStreamTwiMLWithoutNotice(t *testing.T) {
	body, err := StreamTwiML("wss://rc.example.com/stream", "", nil)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "<Say")
	assert.Contains(t, string(body), `<Stream url="wss://rc.example.com/stream"></Stream>`)
}
