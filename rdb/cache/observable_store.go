package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hatlonely/rdbx/log"
	"github.com/hatlonely/rdbx/log/logger"
	"github.com/hatlonely/rdbx/ref"
)

type ObservableStoreOptions struct {
	// Store 被包装的存储
	Store *ref.TypeOptions `cfg:"store" validate:"required"`

	EnableLogging bool `cfg:"enableLogging" def:"true"`
	EnableTracing bool `cfg:"enableTracing"`

	// Name 组件名，作为日志的 component 字段和 span 的 component 属性
	Name string `cfg:"name" def:"store"`

	Logger  logger.Logger `cfg:"-"`
	Metrics *StoreMetrics `cfg:"-"`
}

// StoreMetrics 存储操作的 prometheus 指标
type StoreMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewStoreMetrics name 为指标名前缀，为空时使用 rdbx
func NewStoreMetrics(name string) *StoreMetrics {
	if name == "" {
		name = "rdbx"
	}
	return &StoreMetrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_store_operations_total",
				Help: "Total number of cache store operations",
			},
			[]string{"operation", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_store_operation_duration_seconds",
				Help:    "Duration of cache store operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation"},
		),
	}
}

func (m *StoreMetrics) Register(registerer prometheus.Registerer) error {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{m.operations, m.duration} {
		if err := registerer.Register(c); err != nil {
			return errors.Wrap(err, "register store metrics failed")
		}
	}
	return nil
}

// ObservableStore 为任意 Store 加上日志、指标和追踪
// 键不存在不算失败
type ObservableStore struct {
	store   Store
	name    string
	logger  logger.Logger
	metrics *StoreMetrics
	tracer  trace.Tracer
}

func NewObservableStoreWithOptions(options *ObservableStoreOptions) (*ObservableStore, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	store, err := NewStoreWithOptions(options.Store)
	if err != nil {
		return nil, errors.WithMessage(err, "create underlying store failed")
	}
	return NewObservableStore(store, options), nil
}

// NewObservableStore 包装已有的存储，options 中的 Store 被忽略
func NewObservableStore(store Store, options *ObservableStoreOptions) *ObservableStore {
	if options == nil {
		options = &ObservableStoreOptions{}
	}
	s := &ObservableStore{
		store:   store,
		name:    options.Name,
		metrics: options.Metrics,
	}
	if s.name == "" {
		s.name = "store"
	}
	if options.EnableLogging {
		s.logger = options.Logger
		if s.logger == nil {
			s.logger = log.Default()
		}
		s.logger = s.logger.WithGroup("observableStore")
	}
	if options.EnableTracing {
		s.tracer = otel.Tracer("rdbx.cache." + s.name)
	}
	return s
}

func (s *ObservableStore) observe(ctx context.Context, operation, key string, fn func(context.Context) error) error {
	start := time.Now()

	var span trace.Span
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, "store."+operation,
			trace.WithAttributes(
				attribute.String("component", s.name),
				attribute.String("operation", operation),
			),
		)
		defer span.End()
	}

	err := fn(ctx)
	duration := time.Since(start)
	failed := err != nil && !errors.Is(err, ErrKeyNotFound)

	if span != nil {
		if failed {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}

	if s.metrics != nil {
		status := "success"
		if failed {
			status = "error"
		} else if err != nil {
			status = "miss"
		}
		s.metrics.operations.WithLabelValues(operation, status).Inc()
		s.metrics.duration.WithLabelValues(operation).Observe(duration.Seconds())
	}

	if s.logger != nil {
		if failed {
			s.logger.ErrorContext(ctx, "store operation failed",
				"component", s.name, "operation", operation, "key", key,
				"duration_ms", duration.Milliseconds(), "error", err.Error())
		} else {
			s.logger.DebugContext(ctx, "store operation completed",
				"component", s.name, "operation", operation, "key", key,
				"duration_ms", duration.Milliseconds())
		}
	}
	return err
}

func (s *ObservableStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.observe(ctx, "get", key, func(ctx context.Context) error {
		var err error
		value, err = s.store.Get(ctx, key)
		return err
	})
	return value, err
}

func (s *ObservableStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.observe(ctx, "set", key, func(ctx context.Context) error {
		return s.store.Set(ctx, key, value, ttl)
	})
}

func (s *ObservableStore) Del(ctx context.Context, key string) error {
	return s.observe(ctx, "del", key, func(ctx context.Context) error {
		return s.store.Del(ctx, key)
	})
}

func (s *ObservableStore) Incr(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.observe(ctx, "incr", key, func(ctx context.Context) error {
		var err error
		n, err = s.store.Incr(ctx, key)
		return err
	})
	return n, err
}

func (s *ObservableStore) Close() error {
	return s.observe(context.Background(), "close", "", func(ctx context.Context) error {
		return s.store.Close()
	})
}
