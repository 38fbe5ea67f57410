package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// MailMessage 队列中的邮件消息
type MailMessage struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"` // invitation / invitation_resend ...
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Attempts int    `json:"attempts"`
	Created  int64  `json:"created"`
}

// RedisQueue 基于Redis列表的邮件队列，左进右出
type RedisQueue struct {
	client *redis.Client
	prefix string
}

// NewRedisQueue 创建Redis队列实例
func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "alumnigate"
	}
	return &RedisQueue{
		client: client,
		prefix: prefix,
	}
}

// Ping 测试Redis连接
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Enqueue 将邮件加入队列
func (q *RedisQueue) Enqueue(ctx context.Context, msg *MailMessage) error {
	if msg.Created == 0 {
		msg.Created = time.Now().Unix()
	}

	// 序列化消息
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("序列化邮件消息失败: %v", err)
	}

	if err := q.client.LPush(ctx, q.getQueueKey(), data).Err(); err != nil {
		return fmt.Errorf("邮件入队失败: %v", err)
	}
	return nil
}

// Dequeue 阻塞取出一条消息，超时返回 nil, nil
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*MailMessage, error) {
	result, err := q.client.BRPop(ctx, timeout, q.getQueueKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("邮件出队失败: %v", err)
	}

	// BRPop 返回 [key, value]
	if len(result) != 2 {
		return nil, fmt.Errorf("邮件出队结果格式错误")
	}

	var msg MailMessage
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("解析邮件消息失败: %v", err)
	}
	return &msg, nil
}

// Len 队列长度
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.getQueueKey()).Result()
}

// getQueueKey 获取队列键名
func (q *RedisQueue) getQueueKey() string {
	return fmt.Sprintf("%s:queue:mail", q.prefix)
}
