package datasource

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/hatlonely/rdbx/rdb"
)

var ctx = context.Background()

func TestConnectionString(t *testing.T) {
	Convey("测试连接串", t, func() {
		Convey("mysql 由字段拼出", func() {
			cfg, err := MySQLConfig(&Options{Host: "db", Database: "app", Username: "root", Password: "p@ss", Charset: "utf8mb4"})
			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, "db:3306")
			So(cfg.DBName, ShouldEqual, "app")
			So(cfg.ParseTime, ShouldBeTrue)
			So(cfg.Params["charset"], ShouldEqual, "utf8mb4")
		})

		Convey("mysql 使用 DSN", func() {
			cfg, err := MySQLConfig(&Options{DSN: "u:p@tcp(10.0.0.1:3307)/shop"})
			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, "10.0.0.1:3307")
			So(cfg.DBName, ShouldEqual, "shop")

			_, err = MySQLConfig(&Options{DSN: "not a dsn"})
			So(err, ShouldNotBeNil)
		})

		Convey("postgres", func() {
			So(PostgresDSN(&Options{Host: "pg", Database: "app", Username: "u", Password: "p", SSLMode: "disable"}),
				ShouldEqual, "postgres://u:p@pg:5432/app?sslmode=disable")
			So(PostgresDSN(&Options{DSN: "postgres://x"}), ShouldEqual, "postgres://x")
		})
	})
}

func TestOpen(t *testing.T) {
	Convey("测试打开连接", t, func() {
		Convey("纯 go 的 sqlite", func() {
			ds, err := Open(ctx, &Options{Driver: DriverSQLite, Database: filepath.Join(t.TempDir(), "app.db")})
			So(err, ShouldBeNil)
			defer ds.Close()
			So(ds.Driver(), ShouldEqual, "sqlite")

			_, err = ds.ExecContext(ctx, "CREATE TABLE T (ID INTEGER)")
			So(err, ShouldBeNil)
			var count int
			So(ds.QueryRowContext(ctx, "SELECT COUNT(*) FROM T").Scan(&count), ShouldBeNil)
			So(count, ShouldEqual, 0)
		})

		Convey("不支持的驱动", func() {
			_, err := Open(ctx, &Options{Driver: "db2"})
			var cfgErr *rdb.ConfigurationError
			So(errors.As(err, &cfgErr), ShouldBeTrue)
		})

		Convey("sqlite 没有文件", func() {
			_, err := Open(ctx, &Options{Driver: DriverSQLite})
			So(err, ShouldNotBeNil)
		})

		Convey("New 包装的连接不由 DataSource 关闭", func() {
			ds, err := Open(ctx, &Options{Driver: DriverSQLite, DSN: ":memory:"})
			So(err, ShouldBeNil)
			defer ds.Close()

			wrapped := New(ds.DB(), "SQLite")
			So(wrapped.Driver(), ShouldEqual, "sqlite")
			So(wrapped.Close(), ShouldBeNil)
			So(ds.DB().PingContext(ctx), ShouldBeNil)
		})
	})
}

func TestGorm(t *testing.T) {
	Convey("测试 gorm 互通", t, func() {
		db, err := OpenGorm(&Options{Driver: DriverSQLite3, Database: filepath.Join(t.TempDir(), "gorm.db")})
		So(err, ShouldBeNil)

		ds, err := FromGorm(db)
		So(err, ShouldBeNil)
		So(ds.Driver(), ShouldEqual, DriverSQLite3)

		var version string
		So(ds.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&version), ShouldBeNil)
		So(version, ShouldNotBeEmpty)

		_, err = OpenGorm(&Options{Driver: DriverPgx})
		So(err, ShouldNotBeNil)
	})
}
