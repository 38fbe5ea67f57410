package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"alumnigate/internal/models"
	"alumnigate/pkg/mailer"
	"alumnigate/pkg/metrics"
	"alumnigate/pkg/queue"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// 邮件种类
const (
	MailKindInvitation       = "invitation"
	MailKindInvitationResend = "invitation_resend"
)

// 发送单封邮件的上限
const mailSendTimeout = 30 * time.Second

// MailEnqueuer 邮件队列
type MailEnqueuer interface {
	Enqueue(ctx context.Context, msg *queue.MailMessage) error
}

// NotificationService 邀请邮件通知。事务提交后异步投递，失败只记日志。
type NotificationService struct {
	queue     MailEnqueuer // 为 nil 时直接发送
	mailer    mailer.Mailer
	acceptURL string
	log       *logrus.Logger
	wg        sync.WaitGroup
}

// NewNotificationService 创建通知服务
func NewNotificationService(q MailEnqueuer, m mailer.Mailer, acceptURL string, log *logrus.Logger) *NotificationService {
	return &NotificationService{
		queue:     q,
		mailer:    m,
		acceptURL: acceptURL,
		log:       log,
	}
}

// InvitationCreated 发送邀请邮件
func (s *NotificationService) InvitationCreated(inv *models.Invitation) {
	s.dispatch(s.buildMessage(MailKindInvitation, inv))
}

// InvitationResent 重发邀请邮件
func (s *NotificationService) InvitationResent(inv *models.Invitation) {
	s.dispatch(s.buildMessage(MailKindInvitationResend, inv))
}

// Wait 等待已发起的投递结束，用于关闭和测试
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

func (s *NotificationService) buildMessage(kind string, inv *models.Invitation) *queue.MailMessage {
	subject := "您收到一份校友网络注册邀请"
	if kind == MailKindInvitationResend {
		subject = "您的校友网络注册邀请（重新发送）"
	}
	body := fmt.Sprintf("您好，\n\n请点击以下链接完成注册：\n%s%s\n\n链接有效期至 %s。\n",
		s.acceptURL, inv.Token, inv.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"))

	return &queue.MailMessage{
		ID:      uuid.New().String(),
		Kind:    kind,
		To:      inv.Email,
		Subject: subject,
		Body:    body,
		Created: time.Now().Unix(),
	}
}

// dispatch 脱离请求上下文投递，调用方不等待结果
func (s *NotificationService) dispatch(msg *queue.MailMessage) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), mailSendTimeout)
		defer cancel()

		if s.queue != nil {
			err := s.queue.Enqueue(ctx, msg)
			if err == nil {
				return
			}
			s.log.WithError(err).WithField("mail_id", msg.ID).Warn("邮件入队失败，改为直接发送")
		}
		if err := s.mailer.Send(ctx, msg.To, msg.Subject, msg.Body); err != nil {
			metrics.MailSentTotal.WithLabelValues(msg.Kind, "failed").Inc()
			s.log.WithError(err).WithFields(logrus.Fields{
				"mail_id": msg.ID,
				"kind":    msg.Kind,
				"to":      msg.To,
			}).Error("发送邮件失败")
			return
		}
		metrics.MailSentTotal.WithLabelValues(msg.Kind, "sent").Inc()
	}()
}
