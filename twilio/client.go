// Package twilio talks to the Twilio voice REST API and renders the TwiML
// that connects an inbound call to the media stream.
package twilio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	twiliosdk "github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

// DefaultBaseURL is the Twilio REST API root.
const DefaultBaseURL = "https://api.twilio.com"

const defaultMaxRecording = 50 << 20

var ErrRecordingTooLarge = errors.New("recording exceeds size limit")

// APIError is a non-2xx answer from Twilio.
type APIError struct {
	Status  int
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("twilio: status %d", e.Status)
	}
	return fmt.Sprintf("twilio: status %d: %s (code %d)", e.Status, e.Message, e.Code)
}

// callService is the part of the SDK's v2010 API used for live calls.
// *openapi.ApiService satisfies it.
type callService interface {
	CreateCallRecording(callSid string, params *openapi.CreateCallRecordingParams) (*openapi.ApiV2010CallRecording, error)
	UpdateCall(sid string, params *openapi.UpdateCallParams) (*openapi.ApiV2010Call, error)
}

// Client controls live calls through the Twilio SDK and downloads
// recordings, which the SDK does not cover, with a plain authenticated GET.
type Client struct {
	accountSID   string
	authToken    string
	baseURL      string
	calls        callService
	http         *http.Client
	maxRecording int64
	logger       *zap.Logger
}

type Option func(*Client)

// WithBaseURL points recording downloads at another API root.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithMaxRecordingSize caps downloaded recordings at n bytes.
func WithMaxRecordingSize(n int64) Option {
	return func(c *Client) { c.maxRecording = n }
}

func NewClient(accountSID, authToken string, logger *zap.Logger, opts ...Option) *Client {
	rest := twiliosdk.NewRestClientWithParams(twiliosdk.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	c := &Client{
		accountSID:   accountSID,
		authToken:    authToken,
		baseURL:      DefaultBaseURL,
		calls:        rest.Api,
		http:         &http.Client{Timeout: 30 * time.Second},
		maxRecording: defaultMaxRecording,
		logger:       logger.Named("twilio"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartRecording starts a dual-channel recording of a live call. Twilio
// posts to callbackURL once the recording is available.
func (c *Client) StartRecording(ctx context.Context, callSid, callbackURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("start recording: %w", err)
	}

	params := &openapi.CreateCallRecordingParams{}
	params.SetRecordingChannels("dual")
	params.SetRecordingStatusCallback(callbackURL)
	params.SetRecordingStatusCallbackEvent([]string{"completed"})
	params.SetRecordingStatusCallbackMethod(http.MethodPost)

	rec, err := c.calls.CreateCallRecording(callSid, params)
	if err != nil {
		return "", fmt.Errorf("start recording: %w", sdkError(err))
	}
	var sid string
	if rec != nil && rec.Sid != nil {
		sid = *rec.Sid
	}
	c.logger.Info("🎙️ Recording started", zap.String("call_sid", callSid), zap.String("recording_sid", sid))
	return sid, nil
}

// Hangup completes a live call.
func (c *Client) Hangup(ctx context.Context, callSid string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("hangup: %w", err)
	}

	params := &openapi.UpdateCallParams{}
	params.SetStatus("completed")
	if _, err := c.calls.UpdateCall(callSid, params); err != nil {
		return fmt.Errorf("hangup: %w", sdkError(err))
	}
	c.logger.Info("✅ Call hung up", zap.String("call_sid", callSid))
	return nil
}

// DownloadRecording fetches a recording as WAV. Only URLs on the API root
// are fetched, since the request carries the account credentials.
func (c *Client) DownloadRecording(ctx context.Context, recordingURL string) ([]byte, error) {
	if !strings.HasPrefix(recordingURL, c.baseURL+"/") {
		return nil, fmt.Errorf("download recording: refusing foreign url %q", recordingURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, recordingURL, nil)
	if err != nil {
		return nil, fmt.Errorf("download recording: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download recording: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("download recording: %w", decodeError(resp))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxRecording+1))
	if err != nil {
		return nil, fmt.Errorf("download recording: %w", err)
	}
	if int64(len(data)) > c.maxRecording {
		return nil, fmt.Errorf("download recording: %w (%d bytes)", ErrRecordingTooLarge, c.maxRecording)
	}
	return data, nil
}

// sdkError maps SDK REST errors onto APIError.
func sdkError(err error) error {
	var restErr *twclient.TwilioRestError
	if errors.As(err, &restErr) {
		return &APIError{Status: restErr.Status, Code: restErr.Code, Message: restErr.Message}
	}
	return err
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = sonic.Unmarshal(body, apiErr)
	return apiErr
}
