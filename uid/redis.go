package uid

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RedisOptions struct {
	Addr     string `cfg:"addr" def:"localhost:6379"`
	Password string `cfg:"password"`
	DB       int    `cfg:"db"`
	// Key 计数器的键
	Key     string        `cfg:"key" def:"rdbx:uid"`
	Timeout time.Duration `cfg:"timeout" def:"3s"`
	// Start 计数器不存在时的初始值，生成的第一个 id 为 Start+1
	Start int64 `cfg:"start"`
}

// RedisGenerator 基于 redis INCR 的全局自增 id，多个进程共享一个计数器
type RedisGenerator struct {
	client  redis.UniversalClient
	key     string
	timeout time.Duration
	start   int64
}

func NewRedisGeneratorWithOptions(options *RedisOptions) (*RedisGenerator, error) {
	if options == nil {
		options = &RedisOptions{}
	}
	addr := options.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: options.Password,
		DB:       options.DB,
	})
	return NewRedisGenerator(client, options), nil
}

// NewRedisGenerator 使用已有的 redis 客户端
func NewRedisGenerator(client redis.UniversalClient, options *RedisOptions) *RedisGenerator {
	if options == nil {
		options = &RedisOptions{}
	}
	g := &RedisGenerator{
		client:  client,
		key:     options.Key,
		timeout: options.Timeout,
		start:   options.Start,
	}
	if g.key == "" {
		g.key = "rdbx:uid"
	}
	if g.timeout == 0 {
		g.timeout = 3 * time.Second
	}
	return g
}

func (g *RedisGenerator) Generate(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if g.start > 0 {
		if err := g.client.SetNX(ctx, g.key, g.start, 0).Err(); err != nil {
			return 0, errors.Wrapf(err, "init counter %s failed", g.key)
		}
	}
	id, err := g.client.Incr(ctx, g.key).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "incr %s failed", g.key)
	}
	return id, nil
}

func (g *RedisGenerator) Close() error {
	return g.client.Close()
}
