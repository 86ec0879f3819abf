package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/hatlonely/rdbx/log"
	"github.com/hatlonely/rdbx/log/logger"
	"github.com/hatlonely/rdbx/ref"
)

type TieredStoreOptions struct {
	// Tiers 按优先级从高到低排列，第一层通常是进程内缓存，最后一层是共享存储
	Tiers []*ref.TypeOptions `cfg:"tiers" validate:"required,min=1,dive,required"`

	// WritePolicy
	// - writeThrough: 同步写入所有层
	// - writeBack: 只同步写第一层，其余层异步写入
	WritePolicy string `cfg:"writePolicy" def:"writeThrough" validate:"oneof=writeThrough writeBack"`

	// Promote 从下层读到的数据写回上层
	Promote bool `cfg:"promote" def:"true"`
	// PromoteTTL 写回上层的数据的过期时间，同时限制了其他进程递增计数后上层读到旧值的时间
	PromoteTTL time.Duration `cfg:"promoteTTL" def:"5s"`

	Logger logger.Logger `cfg:"-"`
}

// TieredStore 多级存储
// 计数只保存在最后一层，Incr 之后删除上层的副本
type TieredStore struct {
	tiers       []Store
	writePolicy string
	promote     bool
	promoteTTL  time.Duration
	logger      logger.Logger
}

func NewTieredStoreWithOptions(options *TieredStoreOptions) (*TieredStore, error) {
	if options == nil || len(options.Tiers) == 0 {
		return nil, errors.New("at least one tier is required")
	}

	tiers := make([]Store, 0, len(options.Tiers))
	for i, tierOptions := range options.Tiers {
		tier, err := NewStoreWithOptions(tierOptions)
		if err != nil {
			for _, created := range tiers {
				_ = created.Close()
			}
			return nil, errors.WithMessagef(err, "create tier %d failed", i)
		}
		tiers = append(tiers, tier)
	}
	return NewTieredStore(tiers, options)
}

// NewTieredStore 使用已创建的存储，options 中的 Tiers 被忽略
func NewTieredStore(tiers []Store, options *TieredStoreOptions) (*TieredStore, error) {
	if len(tiers) == 0 {
		return nil, errors.New("at least one tier is required")
	}
	if options == nil {
		options = &TieredStoreOptions{WritePolicy: "writeThrough"}
	}
	s := &TieredStore{
		tiers:       tiers,
		writePolicy: options.WritePolicy,
		promote:     options.Promote,
		promoteTTL:  options.PromoteTTL,
		logger:      options.Logger,
	}
	if s.promoteTTL <= 0 {
		s.promoteTTL = 5 * time.Second
	}
	if s.writePolicy == "" {
		s.writePolicy = "writeThrough"
	}
	if s.writePolicy != "writeThrough" && s.writePolicy != "writeBack" {
		return nil, errors.Errorf("invalid write policy: %s", s.writePolicy)
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	s.logger = s.logger.WithGroup("tieredStore")
	return s, nil
}

func (s *TieredStore) Get(ctx context.Context, key string) ([]byte, error) {
	var lastErr error
	for i, tier := range s.tiers {
		value, err := tier.Get(ctx, key)
		if err == nil {
			if s.promote && i > 0 {
				s.promoteTo(ctx, key, value, i)
			}
			return value, nil
		}
		if !errors.Is(err, ErrKeyNotFound) {
			// 继续尝试下一层
			s.logger.WarnContext(ctx, "read tier failed", "tier", i, "key", key, "error", err)
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrKeyNotFound
}

func (s *TieredStore) promoteTo(ctx context.Context, key string, value []byte, from int) {
	for i := from - 1; i >= 0; i-- {
		if err := s.tiers[i].Set(ctx, key, value, s.promoteTTL); err != nil {
			s.logger.WarnContext(ctx, "promote failed", "tier", i, "key", key, "error", err)
		}
	}
}

func (s *TieredStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.writePolicy == "writeBack" {
		if err := s.tiers[0].Set(ctx, key, value, ttl); err != nil {
			return err
		}
		if len(s.tiers) > 1 {
			go s.writeLower(context.Background(), key, value, ttl)
		}
		return nil
	}

	var lastErr error
	success := false
	for _, tier := range s.tiers {
		if err := tier.Set(ctx, key, value, ttl); err != nil {
			lastErr = err
			continue
		}
		success = true
	}
	if !success {
		return lastErr
	}
	return nil
}

func (s *TieredStore) writeLower(ctx context.Context, key string, value []byte, ttl time.Duration) {
	for i := 1; i < len(s.tiers); i++ {
		if err := s.tiers[i].Set(ctx, key, value, ttl); err != nil {
			s.logger.WarnContext(ctx, "write back failed", "tier", i, "key", key, "error", err)
		}
	}
}

func (s *TieredStore) Del(ctx context.Context, key string) error {
	var lastErr error
	for _, tier := range s.tiers {
		if err := tier.Del(ctx, key); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (s *TieredStore) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.tiers[len(s.tiers)-1].Incr(ctx, key)
	if err != nil {
		return 0, err
	}
	for i := 0; i < len(s.tiers)-1; i++ {
		if err := s.tiers[i].Del(ctx, key); err != nil {
			return 0, errors.WithMessagef(err, "drop stale counter from tier %d failed", i)
		}
	}
	return n, nil
}

func (s *TieredStore) Close() error {
	var errs []error
	for i, tier := range s.tiers {
		if err := tier.Close(); err != nil {
			errs = append(errs, errors.WithMessagef(err, "close tier %d failed", i))
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("close errors: %v", errs)
	}
	return nil
}

// Tier 第 i 层存储
func (s *TieredStore) Tier(i int) Store {
	return s.tiers[i]
}
