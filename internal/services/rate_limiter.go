package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"alumnigate/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RateCounter 统计某个邮箱在时间窗口内的签发次数
type RateCounter interface {
	CountSince(ctx context.Context, email string, since time.Time) (int64, error)
	Record(ctx context.Context, email string, at time.Time) error
}

// TableRateCounter 直接统计验证码表，签发记录即计数来源
type TableRateCounter struct {
	db *gorm.DB
}

// NewTableRateCounter 创建基于验证码表的计数器
func NewTableRateCounter(db *gorm.DB) *TableRateCounter {
	return &TableRateCounter{db: db}
}

// CountSince 统计 since 之后创建的验证码数（含已使用的）
func (c *TableRateCounter) CountSince(ctx context.Context, email string, since time.Time) (int64, error) {
	var count int64
	err := c.db.WithContext(ctx).Model(&models.OTPToken{}).
		Where("email = ? AND created_at >= ?", email, since.UTC()).
		Count(&count).Error
	return count, err
}

// Record 验证码写入即已计数
func (c *TableRateCounter) Record(context.Context, string, time.Time) error {
	return nil
}

// RedisRateCounter 基于有序集合的滑动窗口计数，多实例共享
type RedisRateCounter struct {
	client *redis.Client
	prefix string
	window time.Duration
}

// NewRedisRateCounter 创建Redis计数器
func NewRedisRateCounter(client *redis.Client, prefix string, window time.Duration) *RedisRateCounter {
	if prefix == "" {
		prefix = "alumnigate"
	}
	return &RedisRateCounter{client: client, prefix: prefix, window: window}
}

func (c *RedisRateCounter) key(email string) string {
	return fmt.Sprintf("%s:ratelimit:otp:%s", c.prefix, email)
}

// CountSince 统计窗口内的签发次数
func (c *RedisRateCounter) CountSince(ctx context.Context, email string, since time.Time) (int64, error) {
	key := c.key(email)
	min := strconv.FormatInt(since.UnixMilli(), 10)
	if err := c.client.ZRemRangeByScore(ctx, key, "-inf", "("+min).Err(); err != nil {
		return 0, err
	}
	return c.client.ZCount(ctx, key, min, "+inf").Result()
}

// Record 记录一次签发
func (c *RedisRateCounter) Record(ctx context.Context, email string, at time.Time) error {
	key := c.key(email)
	pipe := c.client.TxPipeline()
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: uuid.New().String(),
	})
	pipe.Expire(ctx, key, c.window+time.Minute)
	_, err := pipe.Exec(ctx)
	return err
}

// RateLimitStatus 限流状态
type RateLimitStatus struct {
	Allowed   bool      `json:"allowed"`
	Count     int64     `json:"count"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// RateLimiter 每个邮箱在滑动窗口内的签发上限
type RateLimiter struct {
	counter RateCounter
	limit   int
	window  time.Duration
	now     func() time.Time
}

// NewRateLimiter 创建限流器
func NewRateLimiter(counter RateCounter, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{counter: counter, limit: limit, window: window, now: time.Now}
}

// Check 查询当前状态，不计数
func (l *RateLimiter) Check(ctx context.Context, email string) (*RateLimitStatus, error) {
	now := l.now().UTC()
	count, err := l.counter.CountSince(ctx, email, now.Add(-l.window))
	if err != nil {
		return nil, err
	}
	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return &RateLimitStatus{
		Allowed:   count < int64(l.limit),
		Count:     count,
		Limit:     l.limit,
		Remaining: remaining,
		ResetAt:   now.Add(l.window),
	}, nil
}

// Allowed 是否还能再签发一次
func (l *RateLimiter) Allowed(ctx context.Context, email string) (bool, error) {
	status, err := l.Check(ctx, email)
	if err != nil {
		return false, err
	}
	return status.Allowed, nil
}

// Record 记录一次签发
func (l *RateLimiter) Record(ctx context.Context, email string) error {
	return l.counter.Record(ctx, email, l.now().UTC())
}
