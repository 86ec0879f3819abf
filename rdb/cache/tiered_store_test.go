package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/hatlonely/rdbx/ref"
)

func TestTieredStore(t *testing.T) {
	Convey("测试 TieredStore", t, func() {
		mr := miniredis.RunT(t)
		l1 := NewFreeCacheStoreWithOptions(&FreeCacheStoreOptions{Size: 1024 * 1024})
		l2 := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
		store, err := NewTieredStore([]Store{l1, l2}, &TieredStoreOptions{Promote: true, PromoteTTL: time.Minute})
		So(err, ShouldBeNil)
		defer store.Close()

		testStore(store)

		Convey("写穿", func() {
			So(store.Set(ctx, "k", []byte("v"), time.Minute), ShouldBeNil)
			value, err := l1.Get(ctx, "k")
			So(err, ShouldBeNil)
			So(string(value), ShouldEqual, "v")
			So(mr.Exists("k"), ShouldBeTrue)
		})

		Convey("下层命中时写回上层", func() {
			So(mr.Set("shared", "x"), ShouldBeNil)
			_, err := l1.Get(ctx, "shared")
			So(err, ShouldEqual, ErrKeyNotFound)

			value, err := store.Get(ctx, "shared")
			So(err, ShouldBeNil)
			So(string(value), ShouldEqual, "x")
			value, err = l1.Get(ctx, "shared")
			So(err, ShouldBeNil)
			So(string(value), ShouldEqual, "x")
		})

		Convey("计数只在最后一层，上层副本被删除", func() {
			_, err := store.Incr(ctx, "gen")
			So(err, ShouldBeNil)
			value, err := store.Get(ctx, "gen")
			So(err, ShouldBeNil)
			So(string(value), ShouldEqual, "1")
			_, err = l1.Get(ctx, "gen")
			So(err, ShouldBeNil)

			n, err := store.Incr(ctx, "gen")
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)
			_, err = l1.Get(ctx, "gen")
			So(err, ShouldEqual, ErrKeyNotFound)
			value, err = store.Get(ctx, "gen")
			So(err, ShouldBeNil)
			So(string(value), ShouldEqual, "2")
		})

		Convey("下层不可用时仍然读上层", func() {
			So(store.Set(ctx, "k", []byte("v"), time.Minute), ShouldBeNil)
			mr.Close()
			value, err := store.Get(ctx, "k")
			So(err, ShouldBeNil)
			So(string(value), ShouldEqual, "v")

			_, err = store.Get(ctx, "absent")
			So(err, ShouldNotBeNil)
			So(err, ShouldNotEqual, ErrKeyNotFound)
		})
	})

	Convey("测试按 TypeOptions 创建 TieredStore", t, func() {
		_, err := NewTieredStoreWithOptions(nil)
		So(err, ShouldNotBeNil)

		_, err = NewTieredStore([]Store{NewMapStoreWithOptions(nil)}, &TieredStoreOptions{WritePolicy: "unknown"})
		So(err, ShouldNotBeNil)

		store, err := NewStoreWithOptions(&ref.TypeOptions{Type: "TieredStore", Options: &TieredStoreOptions{
			Tiers: []*ref.TypeOptions{
				{Type: "MapStore"},
				{Type: "FreeCacheStore", Options: &FreeCacheStoreOptions{Size: 1024 * 1024}},
			},
			WritePolicy: "writeThrough",
		}})
		So(err, ShouldBeNil)
		So(store, ShouldHaveSameTypeAs, &TieredStore{})
		tiered := store.(*TieredStore)
		So(tiered.Tier(0), ShouldHaveSameTypeAs, &MapStore{})
		So(tiered.Tier(1), ShouldHaveSameTypeAs, &FreeCacheStore{})
		So(store.Close(), ShouldBeNil)

		_, err = NewTieredStoreWithOptions(&TieredStoreOptions{Tiers: []*ref.TypeOptions{{Type: "MapStore"}, {Type: "PebbleStore"}}})
		So(err, ShouldNotBeNil)
	})
}

func TestObservableStore(t *testing.T) {
	Convey("测试 ObservableStore", t, func() {
		metrics := NewStoreMetrics("observable_test")
		So(metrics.Register(prometheus.NewRegistry()), ShouldBeNil)
		store := NewObservableStore(NewMapStoreWithOptions(nil), &ObservableStoreOptions{
			Name:          "rows",
			EnableLogging: true,
			EnableTracing: true,
			Metrics:       metrics,
		})
		defer store.Close()

		testStore(store)

		So(testutil.ToFloat64(metrics.operations.WithLabelValues("get", "miss")), ShouldEqual, 2)
		So(testutil.ToFloat64(metrics.operations.WithLabelValues("get", "success")), ShouldEqual, 1)
		So(testutil.ToFloat64(metrics.operations.WithLabelValues("incr", "error")), ShouldEqual, 1)
		So(testutil.ToFloat64(metrics.operations.WithLabelValues("set", "success")), ShouldEqual, 2)

		Convey("按 TypeOptions 创建", func() {
			s, err := NewObservableStoreWithOptions(&ObservableStoreOptions{Store: &ref.TypeOptions{Type: "MapStore"}})
			So(err, ShouldBeNil)
			So(s.Set(ctx, "k", []byte("v"), 0), ShouldBeNil)
			So(s.Close(), ShouldBeNil)

			_, err = NewObservableStoreWithOptions(nil)
			So(err, ShouldNotBeNil)
			_, err = NewObservableStoreWithOptions(&ObservableStoreOptions{Store: &ref.TypeOptions{Type: "PebbleStore"}})
			So(err, ShouldNotBeNil)
		})
	})
}
