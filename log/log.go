package log

import (
	"sync/atomic"

	"github.com/hatlonely/rdbx/log/logger"
)

var defaultLogger atomic.Value

func init() {
	l, err := logger.NewSLogWithOptions(&logger.SLogOptions{Level: "info", Format: "text"})
	if err != nil {
		panic("init default logger failed: " + err.Error())
	}
	defaultLogger.Store(holder{l})
}

type holder struct {
	logger.Logger
}

// Default 未显式传入 Logger 的组件使用的日志
func Default() logger.Logger {
	return defaultLogger.Load().(holder).Logger
}

// SetDefault 替换默认日志，nil 忽略
func SetDefault(l logger.Logger) {
	if l != nil {
		defaultLogger.Store(holder{l})
	}
}
