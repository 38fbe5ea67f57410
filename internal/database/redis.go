package database

import (
	"alumnigate/pkg/config"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// NewRedisClient 创建Redis客户端，限流计数与邮件队列共用
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
