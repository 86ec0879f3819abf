package cache

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hatlonely/rdbx/log"
	"github.com/hatlonely/rdbx/log/logger"
	"github.com/hatlonely/rdbx/ref"
)

type TableCacheOptions struct {
	// Store 底层存储，为空时使用进程内的 MapStore
	Store *ref.TypeOptions `cfg:"store"`
	// Prefix 键前缀，多个应用共用一个 redis 时区分
	Prefix string        `cfg:"prefix" def:"rdbx"`
	TTL    time.Duration `cfg:"ttl" def:"10m"`

	Logger  logger.Logger `cfg:"-"`
	Metrics *Metrics      `cfg:"-"`
}

// TableCache 按表缓存整行
// 每张表有一个代数，行的键包含代数；失效时代数加一，旧代数的行不再被读到，由 TTL 回收
type TableCache struct {
	store   Store
	prefix  string
	ttl     time.Duration
	logger  logger.Logger
	metrics *Metrics
}

func NewTableCacheWithOptions(options *TableCacheOptions) (*TableCache, error) {
	if options == nil {
		options = &TableCacheOptions{Prefix: "rdbx", TTL: 10 * time.Minute}
	}
	store, err := NewStoreWithOptions(options.Store)
	if err != nil {
		return nil, err
	}
	return NewTableCache(store, options), nil
}

// NewTableCache 使用已有的存储，options 中的 Store 被忽略
func NewTableCache(store Store, options *TableCacheOptions) *TableCache {
	if options == nil {
		options = &TableCacheOptions{}
	}
	c := &TableCache{
		store:   store,
		prefix:  options.Prefix,
		ttl:     options.TTL,
		logger:  options.Logger,
		metrics: options.Metrics,
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	c.logger = c.logger.WithGroup("cache")
	return c
}

func (c *TableCache) generationKey(table string) string {
	return c.join(strings.ToUpper(table), "gen")
}

func (c *TableCache) join(parts ...string) string {
	if c.prefix != "" {
		parts = append([]string{c.prefix}, parts...)
	}
	return strings.Join(parts, ":")
}

// generation 表的当前代数，从未失效过的表为 0
func (c *TableCache) generation(ctx context.Context, table string) (int64, error) {
	data, err := c.store.Get(ctx, c.generationKey(table))
	if errors.Is(err, ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid generation of table %s", table)
	}
	return n, nil
}

func (c *TableCache) rowKey(ctx context.Context, table, key string) (string, error) {
	gen, err := c.generation(ctx, table)
	if err != nil {
		return "", err
	}
	return c.join(strings.ToUpper(table), strconv.FormatInt(gen, 10), key), nil
}

func (c *TableCache) Get(ctx context.Context, table, key string) ([]any, bool, error) {
	rowKey, err := c.rowKey(ctx, table, key)
	if err != nil {
		c.metrics.observe(table, "error")
		return nil, false, err
	}
	data, err := c.store.Get(ctx, rowKey)
	if errors.Is(err, ErrKeyNotFound) {
		c.metrics.observe(table, "miss")
		return nil, false, nil
	}
	if err != nil {
		c.metrics.observe(table, "error")
		return nil, false, err
	}
	values, err := DecodeRow(data)
	if err != nil {
		// 无法解码的旧数据当作未命中
		c.logger.WarnContext(ctx, "drop undecodable row", "key", rowKey, "error", err)
		_ = c.store.Del(ctx, rowKey)
		c.metrics.observe(table, "miss")
		return nil, false, nil
	}
	c.metrics.observe(table, "hit")
	return values, true, nil
}

func (c *TableCache) Set(ctx context.Context, table, key string, values []any) error {
	data, err := EncodeRow(values)
	if err != nil {
		return err
	}
	rowKey, err := c.rowKey(ctx, table, key)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, rowKey, data, c.ttl)
}

// Invalidate 按给定顺序逐表递增代数，遇到错误立即返回，之前的表已经失效
func (c *TableCache) Invalidate(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		gen, err := c.store.Incr(ctx, c.generationKey(table))
		if err != nil {
			return errors.WithMessagef(err, "invalidate table %s failed", table)
		}
		c.logger.DebugContext(ctx, "table invalidated", "table", strings.ToUpper(table), "generation", gen)
	}
	return nil
}

func (c *TableCache) Close() error {
	return c.store.Close()
}

// Metrics 缓存命中指标
type Metrics struct {
	requests *prometheus.CounterVec
}

// NewMetrics name 为指标名前缀，为空时使用 rdbx
func NewMetrics(name string) *Metrics {
	if name == "" {
		name = "rdbx"
	}
	return &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_cache_requests_total",
				Help: "Total number of row cache lookups",
			},
			[]string{"table", "result"},
		),
	}
}

// Register registerer 为 nil 时使用默认 registry
func (m *Metrics) Register(registerer prometheus.Registerer) error {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return errors.Wrap(registerer.Register(m.requests), "register cache metrics failed")
}

func (m *Metrics) observe(table, result string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(strings.ToUpper(table), result).Inc()
}
