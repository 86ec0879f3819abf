package uid

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/hatlonely/rdbx/ref"
)

var ctx = context.Background()

func TestSnowflakeGenerator(t *testing.T) {
	Convey("测试 snowflake 生成器", t, func() {
		machineID := int64(7)
		g, err := NewSnowflakeGeneratorWithOptions(&SnowflakeOptions{MachineID: &machineID})
		So(err, ShouldBeNil)

		Convey("同一毫秒内序列号递增", func() {
			g.now = func() int64 { return epoch + 1000 }
			id1, err := g.Generate(ctx)
			So(err, ShouldBeNil)
			id2, _ := g.Generate(ctx)
			So(id2, ShouldEqual, id1+1)
			So(id1>>22, ShouldEqual, 1000)
			So(id1>>12&maxMachineID, ShouldEqual, 7)
		})

		Convey("时钟回拨超过阈值返回错误", func() {
			g.now = func() int64 { return epoch + 1000 }
			_, err := g.Generate(ctx)
			So(err, ShouldBeNil)
			g.now = func() int64 { return epoch + 900 }
			_, err = g.Generate(ctx)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "clock moved backwards")
		})

		Convey("并发生成不重复", func() {
			var mu sync.Mutex
			seen := map[int64]bool{}
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < 1000; j++ {
						id, err := g.Generate(ctx)
						if err != nil {
							continue
						}
						mu.Lock()
						seen[id] = true
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			So(len(seen), ShouldEqual, 8000)
		})

		Convey("机器号越界", func() {
			bad := int64(maxMachineID + 1)
			_, err := NewSnowflakeGeneratorWithOptions(&SnowflakeOptions{MachineID: &bad})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestUUIDGenerator(t *testing.T) {
	Convey("测试 uuid 生成器", t, func() {
		g, err := NewUUIDGeneratorWithOptions(nil)
		So(err, ShouldBeNil)
		id, err := g.Generate(ctx)
		So(err, ShouldBeNil)
		So(id, ShouldHaveLength, 32)
		So(regexp.MustCompile(`^[0-9a-f]{32}$`).MatchString(id), ShouldBeTrue)

		g, err = NewUUIDGeneratorWithOptions(&UUIDOptions{Version: "v7", WithHyphens: true})
		So(err, ShouldBeNil)
		id, _ = g.Generate(ctx)
		So(id, ShouldHaveLength, 36)
		So(string(id[14]), ShouldEqual, "7")

		_, err = NewUUIDGeneratorWithOptions(&UUIDOptions{Version: "v3"})
		So(err, ShouldNotBeNil)
	})
}

func TestRedisGenerator(t *testing.T) {
	Convey("测试 redis 生成器", t, func() {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		g := NewRedisGenerator(client, &RedisOptions{Key: "test:uid", Start: 100})
		defer g.Close()

		id1, err := g.Generate(ctx)
		So(err, ShouldBeNil)
		So(id1, ShouldEqual, 101)
		id2, _ := g.Generate(ctx)
		So(id2, ShouldEqual, 102)

		v, err := mr.Get("test:uid")
		So(err, ShouldBeNil)
		So(v, ShouldEqual, "102")

		Convey("redis 不可用时返回错误", func() {
			bad := NewRedisGenerator(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), &RedisOptions{Timeout: 100 * time.Millisecond})
			defer bad.Close()
			_, err := bad.Generate(ctx)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestNewGeneratorWithOptions(t *testing.T) {
	Convey("测试按配置创建生成器", t, func() {
		ig, err := NewIntGeneratorWithOptions(nil)
		So(err, ShouldBeNil)
		So(ig, ShouldHaveSameTypeAs, &SnowflakeGenerator{})

		machineID := int64(1)
		ig, err = NewIntGeneratorWithOptions(&ref.TypeOptions{Type: "SnowflakeGenerator", Options: &SnowflakeOptions{MachineID: &machineID}})
		So(err, ShouldBeNil)
		id, err := ig.Generate(ctx)
		So(err, ShouldBeNil)
		So(id, ShouldBeGreaterThan, 0)

		sg, err := NewStrGeneratorWithOptions(&ref.TypeOptions{Type: "UUIDGenerator", Options: &UUIDOptions{WithHyphens: true}})
		So(err, ShouldBeNil)
		s, _ := sg.Generate(ctx)
		So(s, ShouldHaveLength, 36)

		_, err = NewIntGeneratorWithOptions(&ref.TypeOptions{Type: "UUIDGenerator"})
		So(err, ShouldNotBeNil)
	})
}
