package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/coocood/freecache"
	"github.com/pkg/errors"
)

type FreeCacheStoreOptions struct {
	// Size 缓存容量（字节），freecache 最小 512KB
	Size int `cfg:"size" def:"33554432"`
}

// FreeCacheStore 进程内的定长内存缓存，写满后按近似 LRU 淘汰
// ttl 精度为秒，不足一秒按一秒处理
type FreeCacheStore struct {
	cache *freecache.Cache
	// incr 需要读改写
	mu sync.Mutex
}

func NewFreeCacheStoreWithOptions(options *FreeCacheStoreOptions) *FreeCacheStore {
	size := 0
	if options != nil {
		size = options.Size
	}
	return &FreeCacheStore{cache: freecache.NewCache(size)}
}

func (s *FreeCacheStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.cache.Get([]byte(key))
	if errors.Is(err, freecache.ErrNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "freecache get %s failed", key)
	}
	return value, nil
}

func (s *FreeCacheStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.cache.Set([]byte(key), value, expireSeconds(ttl)); err != nil {
		return errors.Wrapf(err, "freecache set %s failed", key)
	}
	return nil
}

func expireSeconds(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	seconds := int(ttl / time.Second)
	if ttl%time.Second != 0 {
		seconds++
	}
	return seconds
}

func (s *FreeCacheStore) Del(ctx context.Context, key string) error {
	s.cache.Del([]byte(key))
	return nil
}

func (s *FreeCacheStore) Incr(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	value, err := s.cache.Get([]byte(key))
	if err == nil {
		if n, err = strconv.ParseInt(string(value), 10, 64); err != nil {
			return 0, errors.Wrapf(err, "value of key %s is not an integer", key)
		}
	} else if !errors.Is(err, freecache.ErrNotFound) {
		return 0, errors.Wrapf(err, "freecache get %s failed", key)
	}
	n++
	if err := s.cache.Set([]byte(key), []byte(strconv.FormatInt(n, 10)), 0); err != nil {
		return 0, errors.Wrapf(err, "freecache set %s failed", key)
	}
	return n, nil
}

func (s *FreeCacheStore) Close() error {
	s.cache.Clear()
	return nil
}
