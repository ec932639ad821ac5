package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/room4-2/receptionist/lead"
)

func toronto(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Toronto")
	require.NoError(t, err)
	return loc
}

func baseSummary(t *testing.T) *Summary {
	return &Summary{
		CallID:        "CA456",
		BusinessName:  "Rake and Clover",
		AssistantName: "Sarah",
		From:          "+19055550134",
		StartedAt:     time.Date(2026, 3, 16, 14, 5, 0, 0, time.UTC),
		Location:      toronto(t),
		Summary:       "What They Wanted:\n- Weekly mowing\n\nAction Items:\n- Call back with quote",
		Turns: []lead.Turn{
			{Role: lead.RoleAgent, Content: "Thanks for calling Rake and Clover!", StartOffsetSeconds: 0},
			{Role: lead.RoleUser, Content: "I need a quote for <mowing>", StartOffsetSeconds: 4},
		},
		Lead: lead.Lead{
			Intent:            lead.IntentQuote,
			Category:          lead.CategoryLawn,
			CallerName:        "Marcus",
			FormattedPhone:    "(905) 555-0134",
			FormattedDuration: "2m 5s",
		},
	}
}

// =============================================================================
// Subjects
// =============================================================================

func TestSubjectCapturedLead(t *testing.T) {
	s := baseSummary(t)
	s.Lead.Captured = &lead.Captured{Name: "Marcus Lee", Service: "lawn_mowing"}
	assert.Equal(t, "New Lead: Marcus Lee - LAWN MOWING", Subject(s))

	s.Lead.Captured = &lead.Captured{Name: "Marcus Lee"}
	assert.Equal(t, "New Lead: Marcus Lee - Service Request", Subject(s))
}

func TestSubjectVoicemail(t *testing.T) {
	s := baseSummary(t)
	s.Voicemail = true
	assert.Equal(t, "Voicemail Received - +19055550134", Subject(s))

	s.From = ""
	assert.Equal(t, "Voicemail Received - Unknown Number", Subject(s))

	s = baseSummary(t)
	s.Lead.Analysis = &lead.Analysis{CompletionStatus: "voicemail"}
	assert.True(t, strings.HasPrefix(Subject(s), "Voicemail Received"))
}

func TestSubjectIntent(t *testing.T) {
	assert.Equal(t, "LAWN: Quote request - Mar 16, 10:05 AM", Subject(baseSummary(t)))
}

// =============================================================================
// Bodies
// =============================================================================

func TestComposeBodies(t *testing.T) {
	s := baseSummary(t)
	s.RecordingURL = "https://api.twilio.com/recordings/RE1"
	s.Lead.Captured = &lead.Captured{Name: "Marcus", Phone: "9055550134", Service: "lawn_mowing", Urgency: "this_week"}

	msg, err := Compose(s, Routing{From: "sarah@example.com", To: "owner@example.com, second@example.com", BCC: "audit@example.com"})
	require.NoError(t, err)

	assert.Equal(t, []string{"owner@example.com", "second@example.com"}, msg.To)
	assert.Equal(t, []string{"audit@example.com"}, msg.BCC)
	assert.Len(t, msg.Recipients(), 3)

	assert.Contains(t, msg.Text, "CALLER: Marcus")
	assert.Contains(t, msg.Text, "PHONE: (905) 555-0134")
	assert.Contains(t, msg.Text, "Service: LAWN MOWING")
	assert.Contains(t, msg.Text, "Urgency: this week")
	assert.Contains(t, msg.Text, "TIME: Mon, Mar 16, 2026 10:05 AM EDT")
	assert.Contains(t, msg.Text, "[00:00] Sarah: Thanks for calling Rake and Clover!")
	assert.Contains(t, msg.Text, "[00:04] Caller: I need a quote for <mowing>")
	assert.Contains(t, msg.Text, "RECORDING: https://api.twilio.com/recordings/RE1")
	assert.NotContains(t, msg.Text, "PRIORITY")

	assert.Contains(t, msg.HTML, "Listen to Recording")
	assert.Contains(t, msg.HTML, "I need a quote for &lt;mowing&gt;")
	assert.NotContains(t, msg.HTML, "<mowing>")
	assert.NotContains(t, msg.HTML, "PRIORITY ACTION REQUIRED")
}

func TestComposePriorityAndMissingCapture(t *testing.T) {
	s := baseSummary(t)
	s.Lead.Analysis = &lead.Analysis{LeadQuality: "hot", FollowUpPriority: "call_today"}
	s.Turns = nil
	s.TranscriptText = ""

	msg, err := Compose(s, Routing{To: "owner@example.com"})
	require.NoError(t, err)

	assert.Contains(t, msg.Text, "PRIORITY")
	assert.Contains(t, msg.Text, "Lead information was not fully captured.")
	assert.Contains(t, msg.Text, "Lead Quality: HOT")
	assert.Contains(t, msg.Text, "Follow-up: call today")
	assert.Contains(t, msg.Text, "No transcript available.")
	assert.Contains(t, msg.Text, "RECORDING: Not available")
	assert.Contains(t, msg.HTML, "PRIORITY ACTION REQUIRED")
}

func TestRoutingOr(t *testing.T) {
	r := Routing{To: "tenant@example.com"}.Or(Routing{From: "noreply@example.com", To: "default@example.com", BCC: "audit@example.com"})
	assert.Equal(t, Routing{From: "noreply@example.com", To: "tenant@example.com", BCC: "audit@example.com"}, r)
}

// =============================================================================
// Senders
// =============================================================================

type fakeMailClient struct {
	sent []*mail.Msg
	err  error
}

func (f *fakeMailClient) DialAndSendWithContext(_ context.Context, msgs ...*mail.Msg) error {
	f.sent = append(f.sent, msgs...)
	return f.err
}

func testSMTPSender(t *testing.T) (*SMTPSender, *fakeMailClient) {
	t.Helper()
	s, err := NewSMTPSender("smtp.example.com", 587, "user", "pass")
	require.NoError(t, err)
	client := &fakeMailClient{}
	s.client = client
	s.now = func() time.Time { return time.Date(2026, 3, 16, 14, 5, 0, 0, time.UTC) }
	return s, client
}

func rendered(t *testing.T, m *mail.Msg) string {
	t.Helper()
	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)
	return buf.String()
}

func TestSMTPSenderBuildsMultipart(t *testing.T) {
	s, client := testSMTPSender(t)

	err := s.Send(context.Background(), &Message{
		From:    "sarah@example.com",
		To:      []string{"owner@example.com"},
		BCC:     []string{"audit@example.com"},
		Subject: "New Lead: Marcus - MOWING",
		Text:    "plain body",
		HTML:    "<p>html body</p>",
	})
	require.NoError(t, err)
	require.Len(t, client.sent, 1)

	rcpt, err := client.sent[0].GetRecipients()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"owner@example.com", "audit@example.com"}, rcpt)

	raw := rendered(t, client.sent[0])
	assert.Regexp(t, `(?m)^To: <?owner@example\.com>?\r$`, raw)
	assert.NotContains(t, raw, "audit@example.com")
	assert.Contains(t, raw, "multipart/alternative")
	assert.Contains(t, raw, "Content-Transfer-Encoding: quoted-printable")
	assert.Contains(t, raw, "plain body")
	assert.Contains(t, raw, "<p>html body</p>")
}

func TestSMTPSenderFoldsLongTranscriptLines(t *testing.T) {
	sum := baseSummary(t)
	sum.Turns = append(sum.Turns, lead.Turn{
		Role:    lead.RoleUser,
		Content: strings.Repeat("we also have a big backyard with a steep slope and lots of trees ", 25),
	})
	msg, err := Compose(sum, Routing{From: "sarah@example.com", To: "owner@example.com"})
	require.NoError(t, err)

	m, err := buildMail(msg, time.Now())
	require.NoError(t, err)
	raw := rendered(t, m)

	for _, line := range strings.Split(raw, "\r\n") {
		assert.LessOrEqual(t, len(line), 998)
	}
	assert.Contains(t, raw, "=\r\n", "soft line breaks fold the long turn")
}

func TestSMTPSenderRejectsBadAddresses(t *testing.T) {
	s, client := testSMTPSender(t)

	err := s.Send(context.Background(), &Message{From: "not an address", To: []string{"owner@example.com"}})
	assert.ErrorContains(t, err, "invalid from address")
	assert.Empty(t, client.sent)
}

func TestSMTPSenderRequiresRecipients(t *testing.T) {
	s, _ := testSMTPSender(t)
	assert.ErrorIs(t, s.Send(context.Background(), &Message{}), errNoRecipients)
}

func TestSMTPSenderWrapsDeliveryErrors(t *testing.T) {
	s, client := testSMTPSender(t)
	client.err = errors.New("connection refused")

	err := s.Send(context.Background(), &Message{From: "sarah@example.com", To: []string{"owner@example.com"}, Text: "hi"})
	assert.ErrorContains(t, err, "smtp send: connection refused")
}

type mockSES struct {
	input *ses.SendEmailInput
	err   error
}

func (m *mockSES) SendEmail(_ context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.input = params
	return &ses.SendEmailOutput{}, m.err
}

func TestSESSender(t *testing.T) {
	m := &mockSES{}
	err := NewSESSender(m).Send(context.Background(), &Message{
		From: "sarah@example.com", To: []string{"owner@example.com"}, Subject: "Hi", Text: "t", HTML: "h",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"owner@example.com"}, m.input.Destination.ToAddresses)
	assert.Equal(t, "Hi", *m.input.Message.Subject.Data)
	assert.Equal(t, "h", *m.input.Message.Body.Html.Data)
	assert.Equal(t, "sarah@example.com", *m.input.Source)

	m.err = errors.New("throttled")
	err = NewSESSender(m).Send(context.Background(), &Message{To: []string{"owner@example.com"}})
	assert.ErrorContains(t, err, "throttled")
}

type mockSNS struct {
	inputs []*sns.PublishInput
}

func (m *mockSNS) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.inputs = append(m.inputs, params)
	return &sns.PublishOutput{}, nil
}

func TestSMSAlerter(t *testing.T) {
	s := baseSummary(t)
	s.Lead.Captured = &lead.Captured{Name: "Marcus", Phone: "905-555-0134", Service: "snow_removal"}

	m := &mockSNS{}
	require.NoError(t, NewSMSAlerter(m, "+19055550000", zap.NewNop()).Alert(context.Background(), s))
	require.Len(t, m.inputs, 1)
	assert.Equal(t, "+19055550000", *m.inputs[0].PhoneNumber)
	assert.Equal(t, "PRIORITY lead Rake and Clover: Marcus 905-555-0134 - SNOW REMOVAL", *m.inputs[0].Message)

	require.NoError(t, NewSMSAlerter(m, "", zap.NewNop()).Alert(context.Background(), s))
	assert.Len(t, m.inputs, 1)
}

func TestAlertTextTruncates(t *testing.T) {
	s := baseSummary(t)
	s.Lead.Captured = &lead.Captured{Name: strings.Repeat("x", 200)}
	assert.Len(t, AlertText(s), maxSMSLength)
}
