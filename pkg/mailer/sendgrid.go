package mailer

import (
	"context"
	"errors"
	"fmt"
	"html"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridMailer 通过 SendGrid 发送邮件
type SendGridMailer struct {
	apiKey string
	from   string
}

func NewSendGridMailer(apiKey, from string) (*SendGridMailer, error) {
	if apiKey == "" {
		return nil, errors.New("SENDGRID_API_KEY 不能为空")
	}
	return &SendGridMailer{apiKey: apiKey, from: from}, nil
}

func (m *SendGridMailer) Send(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return errors.New("收件人不能为空")
	}

	message := mail.NewSingleEmail(
		mail.NewEmail("Alumni Network", m.from),
		subject,
		mail.NewEmail("", to),
		body,
		fmt.Sprintf("<pre>%s</pre>", html.EscapeString(body)),
	)

	client := sendgrid.NewSendClient(m.apiKey)
	resp, err := client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("SendGrid发送失败: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("SendGrid发送失败: status=%d", resp.StatusCode)
	}
	return nil
}
