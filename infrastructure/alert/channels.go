package alert

import (
	"go.uber.org/zap"

	"market-sim-go/infrastructure/logger"
)

// LogChannel 把告警写入结构化日志
type LogChannel struct {
	logger *logger.Logger
	name   string
}

// NewLogChannel 创建日志告警通道
func NewLogChannel(name string, log *logger.Logger) *LogChannel {
	if log == nil {
		log = logger.Nop()
	}
	return &LogChannel{logger: log, name: name}
}

// Send 按级别写日志：CRITICAL/ERROR 走 Error，其余走 Warn/Info。
func (c *LogChannel) Send(a Alert) error {
	fields := append([]zap.Field{
		zap.String("alert_level", string(a.Level)),
		zap.Time("alert_ts", a.Timestamp),
	}, a.Fields...)
	switch a.Level {
	case LevelCritical, LevelError:
		c.logger.Error(a.Message, fields...)
	case LevelWarning:
		c.logger.Warn(a.Message, fields...)
	default:
		c.logger.Info(a.Message, fields...)
	}
	return nil
}

// Name 返回通道名称
func (c *LogChannel) Name() string {
	return c.name
}
