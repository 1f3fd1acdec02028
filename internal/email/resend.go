package email

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v3"
)

// ResendEmailService delivers mail through the Resend API.
type ResendEmailService struct {
	client      *resend.Client
	fromAddress string
}

// NewResendEmailService needs a fromAddress on a domain verified in Resend.
func NewResendEmailService(apiKey, fromAddress string) *ResendEmailService {
	return &ResendEmailService{
		client:      resend.NewClient(apiKey),
		fromAddress: fromAddress,
	}
}

func (r *ResendEmailService) Send(ctx context.Context, to, templateName string, data any) error {
	msg, err := Render(templateName, data)
	if err != nil {
		return err
	}
	_, err = r.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    r.fromAddress,
		To:      []string{to},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return fmt.Errorf("resend: send %s: %w", templateName, err)
	}
	return nil
}
