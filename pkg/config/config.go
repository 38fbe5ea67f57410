package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig `mapstructure:"jwt"`
	Log        LogConfig
	Redis      RedisConfig
	CORS       CORSConfig
	Invitation InvitationConfig
	OTP        OTPConfig
	Mail       MailConfig
}

type ServerConfig struct {
	Port         string
	Mode         string
	SeedDemoData bool // 启动时写入演示用校友档案
}

type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MaxOpenConns   int
	MaxIdleConns   int
	AcquireTimeout time.Duration // 获取连接/执行单次存储操作的超时
}

type JWTConfig struct {
	SecretKey     string `mapstructure:"secret_key"`     // JWT密钥
	TokenDuration string `mapstructure:"token_duration"` // 令牌有效期，如 "24h"
}

type LogConfig struct {
	Level      string
	FilePath   string
	MaxSize    int    // MB
	MaxBackups int    // 保留的备份文件数
	MaxAge     int    // 保留天数
	Compress   bool   // 是否压缩
	Format     string // json 或 text
}

type RedisConfig struct {
	Host     string // Redis主机地址
	Port     int    // Redis端口
	Password string // Redis密码
	DB       int    // Redis数据库编号
	Prefix   string // 键前缀
}

type CORSConfig struct {
	AllowOrigins     []string // 允许的源
	AllowMethods     []string // 允许的HTTP方法
	AllowHeaders     []string // 允许的请求头
	ExposeHeaders    []string // 暴露的响应头
	AllowCredentials bool     // 是否允许携带凭证
	MaxAge           int      // 预检请求缓存时间（小时）
}

// InvitationConfig 邀请令牌配置
type InvitationConfig struct {
	TokenSecret    string // 邀请令牌签名密钥
	DefaultTTLDays int    // 默认有效天数
	AcceptURL      string // 邮件中的注册链接前缀，令牌拼接在后
	ExpireSweep    bool   // 是否定时把过期的 pending 邀请标记为 expired
	SweepCron      string
}

// OTPConfig 一次性验证码配置
type OTPConfig struct {
	MaxAttempts       int
	DefaultTTLSeconds int
	HourlyLimit       int    // 每小时最多签发次数
	RateLimitBackend  string // table 或 redis
	CleanupCron       string
	DayLocation       string // 计算"当天"使用的时区
}

// MailConfig 邮件发送配置
type MailConfig struct {
	Provider           string // log / ses / sendgrid
	From               string
	QueueEnabled       bool // 是否经由Redis队列异步发送
	SESRegion          string
	SESEndpoint        string
	SESAccessKeyID     string
	SESSecretAccessKey string
	SendGridAPIKey     string
}

const defaultTokenSecret = "change-me-invitation-secret"

// 获取环境变量，如果不存在则使用默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// 获取环境变量转换为int
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// 获取环境变量转换为bool
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true"
	}
	return defaultValue
}

// 获取环境变量转换为时长，如 "10s"
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// 获取环境变量转换为字符串数组（逗号分隔）
func getEnvAsStringArray(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		// 处理逗号分隔的字符串，去除空格
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return defaultValue
}

func LoadConfig() (*Config, error) {
	// .env 不存在时直接使用环境变量
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Mode:         getEnv("SERVER_MODE", "debug"),
			SeedDemoData: getEnvAsBool("SEED_DEMO_DATA", false),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", ""),
			DBName:         getEnv("DB_NAME", "alumnigate"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:   getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:   getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			AcquireTimeout: getEnvAsDuration("DB_ACQUIRE_TIMEOUT", 10*time.Second),
		},
		JWT: JWTConfig{
			SecretKey:     getEnv("JWT_SECRET_KEY", "default-secret-change-me"),
			TokenDuration: getEnv("JWT_TOKEN_DURATION", "24h"),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			FilePath:   getEnv("LOG_FILE_PATH", "logs/app.log"),
			MaxSize:    getEnvAsInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 7),
			MaxAge:     getEnvAsInt("LOG_MAX_AGE", 30),
			Compress:   getEnvAsBool("LOG_COMPRESS", true),
			Format:     getEnv("LOG_FORMAT", "json"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "alumnigate"),
		},
		CORS: CORSConfig{
			AllowOrigins:     getEnvAsStringArray("CORS_ALLOW_ORIGINS", []string{"*"}),
			AllowMethods:     getEnvAsStringArray("CORS_ALLOW_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"}),
			AllowHeaders:     getEnvAsStringArray("CORS_ALLOW_HEADERS", []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"}),
			ExposeHeaders:    getEnvAsStringArray("CORS_EXPOSE_HEADERS", []string{"Content-Length", "Content-Type"}),
			AllowCredentials: getEnvAsBool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           getEnvAsInt("CORS_MAX_AGE", 12),
		},
		Invitation: InvitationConfig{
			TokenSecret:    getEnv("INVITATION_TOKEN_SECRET", defaultTokenSecret),
			DefaultTTLDays: getEnvAsInt("INVITATION_DEFAULT_TTL_DAYS", 7),
			AcceptURL:      getEnv("INVITATION_ACCEPT_URL", "http://localhost:3000/register?token="),
			ExpireSweep:    getEnvAsBool("INVITATION_EXPIRE_SWEEP", false),
			SweepCron:      getEnv("INVITATION_SWEEP_CRON", "@every 1h"),
		},
		OTP: OTPConfig{
			MaxAttempts:       getEnvAsInt("OTP_MAX_ATTEMPTS", 3),
			DefaultTTLSeconds: getEnvAsInt("OTP_DEFAULT_TTL_SECONDS", 300),
			HourlyLimit:       getEnvAsInt("OTP_HOURLY_LIMIT", 3),
			RateLimitBackend:  getEnv("OTP_RATE_LIMIT_BACKEND", "table"),
			CleanupCron:       getEnv("OTP_CLEANUP_CRON", "@every 10m"),
			DayLocation:       getEnv("OTP_DAY_LOCATION", "UTC"),
		},
		Mail: MailConfig{
			Provider:           getEnv("MAIL_PROVIDER", "log"),
			From:               getEnv("MAIL_FROM", "no-reply@alumni.local"),
			QueueEnabled:       getEnvAsBool("MAIL_QUEUE_ENABLED", true),
			SESRegion:          getEnv("SES_REGION", "us-east-1"),
			SESEndpoint:        getEnv("SES_ENDPOINT", ""),
			SESAccessKeyID:     getEnv("SES_ACCESS_KEY_ID", ""),
			SESSecretAccessKey: getEnv("SES_SECRET_ACCESS_KEY", ""),
			SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate 校验配置的基本合法性
func (c *Config) Validate() error {
	if c.Invitation.TokenSecret == "" {
		return fmt.Errorf("INVITATION_TOKEN_SECRET 不能为空")
	}
	if c.Server.Mode == "release" && c.Invitation.TokenSecret == defaultTokenSecret {
		return fmt.Errorf("release 模式下必须设置 INVITATION_TOKEN_SECRET")
	}
	if c.OTP.MaxAttempts < 1 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS 必须大于0")
	}
	if c.OTP.HourlyLimit < 1 {
		return fmt.Errorf("OTP_HOURLY_LIMIT 必须大于0")
	}
	switch c.OTP.RateLimitBackend {
	case "table", "redis":
	default:
		return fmt.Errorf("不支持的 OTP_RATE_LIMIT_BACKEND: %s", c.OTP.RateLimitBackend)
	}
	switch c.Mail.Provider {
	case "log", "ses", "sendgrid":
	default:
		return fmt.Errorf("不支持的 MAIL_PROVIDER: %s", c.Mail.Provider)
	}
	if _, err := time.LoadLocation(c.OTP.DayLocation); err != nil {
		return fmt.Errorf("无效的 OTP_DAY_LOCATION: %v", err)
	}
	return nil
}

// JWTDuration 解析JWT有效期，解析失败时回退到24小时
func (c *Config) JWTDuration() time.Duration {
	d, err := time.ParseDuration(c.JWT.TokenDuration)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}
