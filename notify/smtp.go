package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

const smtpTimeout = 30 * time.Second

// mailClient is satisfied by *mail.Client.
type mailClient interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPSender delivers mail through an authenticated SMTP relay. Port 465
// uses implicit TLS; any other port requires STARTTLS.
type SMTPSender struct {
	client mailClient
	now    func() time.Time
}

func NewSMTPSender(host string, port int, user, pass string) (*SMTPSender, error) {
	opts := []mail.Option{
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithPort(port),
		mail.WithTimeout(smtpTimeout),
	}
	if port == 465 {
		opts = append(opts, mail.WithSSL())
	}
	if user != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(user),
			mail.WithPassword(pass),
		)
	}

	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPSender{client: client, now: time.Now}, nil
}

func (s *SMTPSender) Name() string { return "smtp" }

func (s *SMTPSender) Send(ctx context.Context, msg *Message) error {
	if len(msg.Recipients()) == 0 {
		return errNoRecipients
	}
	m, err := buildMail(msg, s.now())
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// buildMail renders a multipart/alternative message. Bodies are
// quoted-printable so long transcript lines are folded. BCC recipients
// reach the envelope only.
func buildMail(msg *Message, now time.Time) (*mail.Msg, error) {
	m := mail.NewMsg(mail.WithEncoding(mail.EncodingQP))
	if err := m.From(msg.From); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if len(msg.To) > 0 {
		if err := m.To(msg.To...); err != nil {
			return nil, fmt.Errorf("invalid to address: %w", err)
		}
	}
	if len(msg.BCC) > 0 {
		if err := m.Bcc(msg.BCC...); err != nil {
			return nil, fmt.Errorf("invalid bcc address: %w", err)
		}
	}
	m.Subject(msg.Subject)
	m.SetDateWithValue(now)
	m.SetMessageID()

	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}
	return m, nil
}
