package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/hatlonely/rdbx/rdb/datatable"
	"github.com/hatlonely/rdbx/ref"
)

var ctx = context.Background()

var _ datatable.Cache = (*TableCache)(nil)

func testStore(store Store) {
	_, err := store.Get(ctx, "missing")
	So(err, ShouldEqual, ErrKeyNotFound)

	So(store.Set(ctx, "k", []byte("v"), 0), ShouldBeNil)
	value, err := store.Get(ctx, "k")
	So(err, ShouldBeNil)
	So(string(value), ShouldEqual, "v")

	So(store.Del(ctx, "k"), ShouldBeNil)
	So(store.Del(ctx, "k"), ShouldBeNil)
	_, err = store.Get(ctx, "k")
	So(err, ShouldEqual, ErrKeyNotFound)

	n, err := store.Incr(ctx, "counter")
	So(err, ShouldBeNil)
	So(n, ShouldEqual, 1)
	n, err = store.Incr(ctx, "counter")
	So(err, ShouldBeNil)
	So(n, ShouldEqual, 2)

	So(store.Set(ctx, "text", []byte("abc"), 0), ShouldBeNil)
	_, err = store.Incr(ctx, "text")
	So(err, ShouldNotBeNil)
}

func TestMapStore(t *testing.T) {
	Convey("测试 MapStore", t, func() {
		store := NewMapStoreWithOptions(nil)
		testStore(store)

		Convey("过期", func() {
			current := time.Now()
			store.now = func() time.Time { return current }
			So(store.Set(ctx, "ttl", []byte("v"), time.Second), ShouldBeNil)
			_, err := store.Get(ctx, "ttl")
			So(err, ShouldBeNil)
			current = current.Add(time.Second)
			_, err = store.Get(ctx, "ttl")
			So(err, ShouldEqual, ErrKeyNotFound)
		})
	})
}

func TestFreeCacheStore(t *testing.T) {
	Convey("测试 FreeCacheStore", t, func() {
		store := NewFreeCacheStoreWithOptions(&FreeCacheStoreOptions{Size: 1024 * 1024})
		defer store.Close()
		testStore(store)
		So(expireSeconds(1500*time.Millisecond), ShouldEqual, 2)
		So(expireSeconds(0), ShouldEqual, 0)
	})
}

func TestRedisStore(t *testing.T) {
	Convey("测试 RedisStore", t, func() {
		mr := miniredis.RunT(t)
		store, err := NewRedisStoreWithOptions(&RedisStoreOptions{Endpoint: mr.Addr(), DialTimeout: time.Second})
		So(err, ShouldBeNil)
		defer store.Close()
		testStore(store)

		So(store.Set(ctx, "ttl", []byte("v"), time.Minute), ShouldBeNil)
		So(mr.TTL("ttl"), ShouldEqual, time.Minute)

		_, err = NewRedisStoreWithOptions(&RedisStoreOptions{})
		So(err, ShouldNotBeNil)
	})
}

func TestNewStoreWithOptions(t *testing.T) {
	Convey("测试按 TypeOptions 创建存储", t, func() {
		store, err := NewStoreWithOptions(nil)
		So(err, ShouldBeNil)
		So(store, ShouldHaveSameTypeAs, &MapStore{})

		store, err = NewStoreWithOptions(&ref.TypeOptions{Type: "FreeCacheStore", Options: &FreeCacheStoreOptions{Size: 1024 * 1024}})
		So(err, ShouldBeNil)
		So(store, ShouldHaveSameTypeAs, &FreeCacheStore{})

		_, err = NewStoreWithOptions(&ref.TypeOptions{Type: "PebbleStore"})
		So(err, ShouldNotBeNil)
	})
}

func TestRowCodec(t *testing.T) {
	Convey("测试行编码", t, func() {
		now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
		data, err := EncodeRow([]any{int64(7), "bob", 12.5, now, true, nil, []byte{1, 2}})
		So(err, ShouldBeNil)

		values, err := DecodeRow(data)
		So(err, ShouldBeNil)
		So(values, ShouldHaveLength, 7)
		So(values[0], ShouldEqual, int64(7))
		So(values[1], ShouldEqual, "bob")
		So(values[2], ShouldEqual, 12.5)
		So(values[3].(time.Time).Equal(now), ShouldBeTrue)
		So(values[4], ShouldEqual, true)
		So(values[5], ShouldBeNil)
		So(values[6], ShouldResemble, []byte{1, 2})

		_, err = DecodeRow([]byte{0xc1})
		So(err, ShouldNotBeNil)
	})
}

func TestTableCache(t *testing.T) {
	Convey("测试按代数失效", t, func() {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		c := NewTableCache(NewRedisStore(client), &TableCacheOptions{Prefix: "app", TTL: time.Minute, Metrics: NewMetrics("test")})
		defer c.Close()

		_, ok, err := c.Get(ctx, "customer", "7")
		So(err, ShouldBeNil)
		So(ok, ShouldBeFalse)

		So(c.Set(ctx, "customer", "7", []any{int64(7), "bob"}), ShouldBeNil)
		So(mr.Exists("app:CUSTOMER:0:7"), ShouldBeTrue)
		So(mr.TTL("app:CUSTOMER:0:7"), ShouldEqual, time.Minute)

		values, ok, err := c.Get(ctx, "CUSTOMER", "7")
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)
		So(values, ShouldResemble, []any{int64(7), "bob"})

		So(c.Invalidate(ctx, "CUSTOMER", "ORDERS"), ShouldBeNil)
		_, ok, err = c.Get(ctx, "CUSTOMER", "7")
		So(err, ShouldBeNil)
		So(ok, ShouldBeFalse)
		gen, _ := mr.Get("app:CUSTOMER:gen")
		So(gen, ShouldEqual, "1")
		gen, _ = mr.Get("app:ORDERS:gen")
		So(gen, ShouldEqual, "1")

		So(c.Set(ctx, "CUSTOMER", "7", []any{int64(7), "bobby"}), ShouldBeNil)
		So(mr.Exists("app:CUSTOMER:1:7"), ShouldBeTrue)

		Convey("无法解码的数据当作未命中", func() {
			So(mr.Set("app:CUSTOMER:1:8", "\xc1"), ShouldBeNil)
			_, ok, err := c.Get(ctx, "CUSTOMER", "8")
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
			So(mr.Exists("app:CUSTOMER:1:8"), ShouldBeFalse)
		})

		Convey("存储不可用", func() {
			bad := NewTableCache(NewRedisStore(redis.NewClient(&redis.Options{
				Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1,
			})), nil)
			defer bad.Close()
			_, _, err := bad.Get(ctx, "CUSTOMER", "7")
			So(err, ShouldNotBeNil)
			So(bad.Invalidate(ctx, "CUSTOMER"), ShouldNotBeNil)
		})
	})

	Convey("测试按 TypeOptions 创建", t, func() {
		c, err := NewTableCacheWithOptions(&TableCacheOptions{
			Store: &ref.TypeOptions{Type: "FreeCacheStore", Options: &FreeCacheStoreOptions{Size: 1024 * 1024}},
			TTL:   time.Minute,
		})
		So(err, ShouldBeNil)
		So(c.Set(ctx, "T", "1", []any{"x"}), ShouldBeNil)
		values, ok, err := c.Get(ctx, "T", "1")
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)
		So(values, ShouldResemble, []any{"x"})
	})
}
