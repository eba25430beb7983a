package logging

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/qs3c/journal_server/config"
)

// Logger 统一的日志实例类型
type Logger = *logrus.Logger

// Fields 结构化日志字段
type Fields = logrus.Fields

// NewLogger 按配置创建日志实例
func NewLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// NewLoggerWithService 创建带 service 字段的日志实例
func NewLoggerWithService(cfg config.LogConfig, serviceName string) *logrus.Entry {
	return NewLogger(cfg).WithField("service", serviceName)
}

// Discard 测试用的静默日志
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
