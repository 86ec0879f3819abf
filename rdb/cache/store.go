package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/hatlonely/rdbx/ref"
)

var ErrKeyNotFound = errors.New("key not found")

const namespace = "github.com/hatlonely/rdbx/rdb/cache"

func init() {
	ref.MustRegisterT[*MapStore](NewMapStoreWithOptions)
	ref.MustRegisterT[*FreeCacheStore](NewFreeCacheStoreWithOptions)
	ref.MustRegisterT[*RedisStore](NewRedisStoreWithOptions)
	ref.MustRegisterT[*TieredStore](NewTieredStoreWithOptions)
	ref.MustRegisterT[*ObservableStore](NewObservableStoreWithOptions)
}

// Store 缓存的字节存储，多个进程共享缓存时使用 RedisStore
type Store interface {
	// Get 键不存在或已过期时返回 ErrKeyNotFound
	Get(ctx context.Context, key string) ([]byte, error)
	// Set ttl 为 0 时不过期
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Del 键不存在时也返回成功
	Del(ctx context.Context, key string) error
	// Incr 原子加一并返回新值，键不存在时从 0 开始
	Incr(ctx context.Context, key string) (int64, error)
	Close() error
}

// NewStoreWithOptions 按 TypeOptions 创建存储，为 nil 时使用 MapStore
func NewStoreWithOptions(options *ref.TypeOptions) (Store, error) {
	o := ref.TypeOptions{Type: "MapStore"}
	if options != nil {
		o = *options
	}
	if o.Namespace == "" {
		o.Namespace = namespace
	}
	store, err := ref.NewT[Store](&o)
	if err != nil {
		return nil, errors.WithMessage(err, "create cache store failed")
	}
	return store, nil
}
