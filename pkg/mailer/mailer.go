package mailer

import (
	"context"
	"fmt"

	"alumnigate/pkg/config"

	"github.com/sirupsen/logrus"
)

// Mailer 邮件发送接口
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// New 按配置创建邮件发送器
func New(ctx context.Context, cfg config.MailConfig, log *logrus.Logger) (Mailer, error) {
	switch cfg.Provider {
	case "ses":
		return NewSESMailer(ctx, cfg)
	case "sendgrid":
		return NewSendGridMailer(cfg.SendGridAPIKey, cfg.From)
	case "log", "":
		return NewLogMailer(log), nil
	}
	return nil, fmt.Errorf("不支持的邮件服务: %s", cfg.Provider)
}

// LogMailer 只记录日志，开发环境使用
type LogMailer struct {
	log *logrus.Logger
}

func NewLogMailer(log *logrus.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.log.WithFields(logrus.Fields{
		"to":      to,
		"subject": subject,
		"length":  len(body),
	}).Info("邮件（仅日志）")
	return nil
}
