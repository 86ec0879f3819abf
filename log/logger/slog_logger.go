package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/hatlonely/rdbx/log/writer"
	"github.com/hatlonely/rdbx/ref"
)

// SLogOptions 日志初始化选项
type SLogOptions struct {
	Level string `cfg:"level" def:"info" validate:"omitempty,oneof=debug info warn error"`
	// Format text 或 json
	Format string `cfg:"format" def:"text" validate:"omitempty,oneof=text json"`
	// Output 输出目标，为空时输出到 stderr
	Output     *ref.TypeOptions `cfg:"output"`
	TimeFormat string           `cfg:"timeFormat"`
	AddSource  bool             `cfg:"addSource"`
	// Fields 每条日志都带上的字段
	Fields map[string]any `cfg:"fields"`
}

// SLog 基于 log/slog 的 Logger
type SLog struct {
	slogger *slog.Logger
	closer  io.Closer
}

func NewSLogWithOptions(options *SLogOptions) (*SLog, error) {
	if options == nil {
		options = &SLogOptions{}
	}
	level, err := parseLevel(options.Level)
	if err != nil {
		return nil, err
	}

	var w io.Writer = os.Stderr
	var closer io.Closer
	if options.Output != nil && options.Output.Type != "" {
		o := *options.Output
		if o.Namespace == "" {
			o.Namespace = "github.com/hatlonely/rdbx/log/writer"
		}
		ww, err := ref.NewT[writer.Writer](&o)
		if err != nil {
			return nil, errors.WithMessage(err, "create log writer failed")
		}
		w, closer = ww, ww
	}
	return newSLog(w, closer, level, options)
}

// NewSLogWithWriter 输出到指定的 io.Writer，测试和命令行使用
func NewSLogWithWriter(w io.Writer, options *SLogOptions) (*SLog, error) {
	if options == nil {
		options = &SLogOptions{}
	}
	level, err := parseLevel(options.Level)
	if err != nil {
		return nil, err
	}
	return newSLog(w, nil, level, options)
}

func newSLog(w io.Writer, closer io.Closer, level slog.Level, options *SLogOptions) (*SLog, error) {
	handlerOptions := &slog.HandlerOptions{Level: level, AddSource: options.AddSource}
	if options.TimeFormat != "" {
		format := options.TimeFormat
		handlerOptions.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(a.Key, a.Value.Time().Format(format))
			}
			return a
		}
	}

	var handler slog.Handler
	switch strings.ToLower(options.Format) {
	case "", "text":
		handler = slog.NewTextHandler(w, handlerOptions)
	case "json":
		handler = slog.NewJSONHandler(w, handlerOptions)
	default:
		return nil, errors.Errorf("unsupported log format %s", options.Format)
	}

	slogger := slog.New(handler)
	for k, v := range options.Fields {
		slogger = slogger.With(k, v)
	}
	return &SLog{slogger: slogger, closer: closer}, nil
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, errors.Errorf("unknown log level %s", level)
}

func (l *SLog) Debug(msg string, args ...any) { l.slogger.Debug(msg, args...) }
func (l *SLog) Info(msg string, args ...any)  { l.slogger.Info(msg, args...) }
func (l *SLog) Warn(msg string, args ...any)  { l.slogger.Warn(msg, args...) }
func (l *SLog) Error(msg string, args ...any) { l.slogger.Error(msg, args...) }

func (l *SLog) DebugContext(ctx context.Context, msg string, args ...any) {
	l.slogger.DebugContext(ctx, msg, args...)
}

func (l *SLog) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slogger.InfoContext(ctx, msg, args...)
}

func (l *SLog) WarnContext(ctx context.Context, msg string, args ...any) {
	l.slogger.WarnContext(ctx, msg, args...)
}

func (l *SLog) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.slogger.ErrorContext(ctx, msg, args...)
}

func (l *SLog) With(args ...any) Logger {
	return &SLog{slogger: l.slogger.With(args...)}
}

func (l *SLog) WithGroup(name string) Logger {
	return &SLog{slogger: l.slogger.WithGroup(name)}
}

// Close 关闭输出，With 派生的日志共享输出，不负责关闭
func (l *SLog) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

