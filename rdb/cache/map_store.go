package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type MapStoreOptions struct{}

type mapEntry struct {
	value    []byte
	expireAt time.Time
}

// MapStore 进程内存储，过期的键在读取时删除
type MapStore struct {
	mu   sync.Mutex
	data map[string]mapEntry
	now  func() time.Time
}

func NewMapStoreWithOptions(options *MapStoreOptions) *MapStore {
	return &MapStore{data: map[string]mapEntry{}, now: time.Now}
}

func (s *MapStore) get(key string) ([]byte, bool) {
	e, ok := s.data[key]
	if !ok {
		return nil, false
	}
	if !e.expireAt.IsZero() && !s.now().Before(e.expireAt) {
		delete(s.data, key)
		return nil, false
	}
	return e.value, true
}

func (s *MapStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.get(key)
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), value...), nil
}

func (s *MapStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := mapEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expireAt = s.now().Add(ttl)
	}
	s.data[key] = e
	return nil
}

func (s *MapStore) Del(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MapStore) Incr(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	if value, ok := s.get(key); ok {
		v, err := strconv.ParseInt(string(value), 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "value of key %s is not an integer", key)
		}
		n = v
	}
	n++
	s.data[key] = mapEntry{value: []byte(strconv.FormatInt(n, 10))}
	return n, nil
}

func (s *MapStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = map[string]mapEntry{}
	return nil
}
