package logger

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hatlonely/rdbx/ref"
)

func init() {
	ref.MustRegisterT[SLog](NewSLogWithOptions)
}

// Logger 结构化日志，args 为交替出现的 key/value
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)

	With(args ...any) Logger
	WithGroup(name string) Logger
}

// NewLoggerWithOptions 按 TypeOptions 创建日志，Namespace 为空时使用本包
func NewLoggerWithOptions(options *ref.TypeOptions) (Logger, error) {
	if options == nil {
		return nil, errors.New("logger options is nil")
	}
	o := *options
	if o.Namespace == "" {
		o.Namespace = "github.com/hatlonely/rdbx/log/logger"
	}
	l, err := ref.NewT[Logger](&o)
	if err != nil {
		return nil, errors.WithMessage(err, "create logger failed")
	}
	return l, nil
}
