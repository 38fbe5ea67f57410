package services

import (
	"context"
	"fmt"
	"time"

	"alumnigate/pkg/mailer"
	"alumnigate/pkg/metrics"
	"alumnigate/pkg/queue"

	"github.com/sirupsen/logrus"
)

// 单封邮件最多尝试次数
const maxMailAttempts = 3

// MailQueue 邮件队列的消费端
type MailQueue interface {
	MailEnqueuer
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.MailMessage, error)
}

// MailWorker 从Redis队列取出邮件并发送
type MailWorker struct {
	queue        MailQueue
	mailer       mailer.Mailer
	log          *logrus.Logger
	pollTimeout  time.Duration
	errorBackoff time.Duration
}

// NewMailWorker 创建邮件消费者
func NewMailWorker(q MailQueue, m mailer.Mailer, log *logrus.Logger) *MailWorker {
	return &MailWorker{
		queue:        q,
		mailer:       m,
		log:          log,
		pollTimeout:  time.Second,
		errorBackoff: time.Second,
	}
}

// Run 持续消费直到 ctx 取消
func (w *MailWorker) Run(ctx context.Context) {
	w.log.Info("邮件消费者启动")

	for {
		select {
		case <-ctx.Done():
			w.log.Info("邮件消费者收到退出信号")
			return
		default:
			if _, err := w.ProcessOne(ctx); err != nil {
				if ctx.Err() != nil {
					continue
				}
				w.log.WithError(err).Error("处理邮件失败")
				// 避免错误循环
				select {
				case <-ctx.Done():
				case <-time.After(w.errorBackoff):
				}
			}
		}
	}
}

// ProcessOne 处理一条消息，队列为空时返回 false
func (w *MailWorker) ProcessOne(ctx context.Context) (bool, error) {
	msg, err := w.queue.Dequeue(ctx, w.pollTimeout)
	if err != nil {
		return false, fmt.Errorf("获取邮件失败: %v", err)
	}
	if msg == nil {
		return false, nil
	}

	log := w.log.WithFields(logrus.Fields{
		"mail_id":  msg.ID,
		"kind":     msg.Kind,
		"to":       msg.To,
		"attempts": msg.Attempts,
	})

	sendCtx, cancel := context.WithTimeout(ctx, mailSendTimeout)
	defer cancel()

	msg.Attempts++
	if err := w.mailer.Send(sendCtx, msg.To, msg.Subject, msg.Body); err != nil {
		if msg.Attempts >= maxMailAttempts {
			metrics.MailSentTotal.WithLabelValues(msg.Kind, "failed").Inc()
			log.WithError(err).Error("邮件发送失败，已达到最大重试次数")
			return true, nil
		}
		metrics.MailSentTotal.WithLabelValues(msg.Kind, "retry").Inc()
		log.WithError(err).Warn("邮件发送失败，重新入队")
		if err := w.queue.Enqueue(ctx, msg); err != nil {
			return true, fmt.Errorf("邮件重新入队失败: %v", err)
		}
		return true, nil
	}

	metrics.MailSentTotal.WithLabelValues(msg.Kind, "sent").Inc()
	log.Info("邮件发送成功")
	return true, nil
}
