package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"alumnigate/pkg/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var Logger *logrus.Logger

// 不允许写入日志的字段
var secretFields = map[string]bool{
	"token":         true,
	"otp_code":      true,
	"code_hash":     true,
	"authorization": true,
	"password":      true,
}

// 需要脱敏的邮箱字段
var emailFields = map[string]bool{
	"email": true,
	"to":    true,
}

// Initialize 初始化日志
func Initialize(cfg *config.Config) error {
	Logger = logrus.New()

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	Logger.SetLevel(level)

	if cfg.Log.Format == "json" {
		Logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		Logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
	Logger.AddHook(RedactHook{})

	if cfg.Log.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.FilePath), 0755); err != nil {
			return err
		}

		// 配置日志轮转，同时输出到控制台
		Logger.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.Log.FilePath,
			MaxSize:    cfg.Log.MaxSize,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAge,
			Compress:   cfg.Log.Compress,
		}))
	}

	return nil
}

// GetLogger 获取日志实例，未初始化时返回标准logrus实例
func GetLogger() *logrus.Logger {
	if Logger == nil {
		return logrus.StandardLogger()
	}
	return Logger
}

// Discard 返回丢弃所有输出的日志实例，测试使用
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// RedactHook 删除令牌类字段，邮箱只保留首字母和域名
type RedactHook struct{}

func (RedactHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (RedactHook) Fire(entry *logrus.Entry) error {
	for key, value := range entry.Data {
		switch {
		case secretFields[key]:
			entry.Data[key] = "[REDACTED]"
		case emailFields[key]:
			if s, ok := value.(string); ok {
				entry.Data[key] = MaskEmail(s)
			}
		}
	}
	return nil
}

// MaskEmail a***@example.com
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
