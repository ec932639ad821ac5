package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"
)

// maxSMSLength keeps alerts to a single segment.
const maxSMSLength = 160

// SMSAlerter texts the owner about priority leads.
type SMSAlerter struct {
	client SNSAPI
	number string
	logger *zap.Logger
}

func NewSMSAlerter(client SNSAPI, number string, logger *zap.Logger) *SMSAlerter {
	return &SMSAlerter{client: client, number: number, logger: logger.Named("sms")}
}

// AlertText is the body of a priority alert.
func AlertText(s *Summary) string {
	l := s.Lead
	name, service := l.CallerName, ""
	phone := l.FormattedPhone
	if c := l.Captured; !c.IsEmpty() {
		if c.Name != "" {
			name = c.Name
		}
		service = serviceDisplay(c.Service)
		if c.Phone != "" {
			phone = c.Phone
		}
	}

	parts := []string{"PRIORITY lead", s.BusinessName + ":", name}
	if phone != "" {
		parts = append(parts, phone)
	}
	if service != "" {
		parts = append(parts, "- "+service)
	}
	text := strings.Join(parts, " ")
	if len(text) > maxSMSLength {
		text = text[:maxSMSLength-3] + "..."
	}
	return text
}

// Alert sends the alert. It is a no-op without a number.
func (a *SMSAlerter) Alert(ctx context.Context, s *Summary) error {
	if a.number == "" {
		return nil
	}
	_, err := a.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(a.number),
		Message:     aws.String(AlertText(s)),
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	a.logger.Info("📱 Priority alert sent", zap.String("call_id", s.CallID))
	return nil
}
