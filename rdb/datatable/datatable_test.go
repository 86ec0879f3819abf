package datatable

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/hatlonely/rdbx/rdb"
	"github.com/hatlonely/rdbx/rdb/dialect"
	"github.com/hatlonely/rdbx/rdb/meta"
)

var ctx = context.Background()

var now = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

var customerColumns = []string{"ID", "NAME", "AMOUNT", "CREATE_TIME", "UPDATE_TIME", "VERSION", "DELETED"}

func customerTable(cache bool) *meta.TableMeta {
	return meta.NewTableMeta(meta.TableSpec{
		Name:       "CUSTOMER",
		Cache:      cache,
		PrimaryKey: meta.PrimaryKeyPolicy{Generator: meta.GeneratorSnowflake},
		Fields: []meta.Field{
			&meta.SystemField{Kind: meta.PrimaryKey, Column: "ID"},
			&meta.FixedField{Column: "NAME", Type: meta.ShortText, Length: 50, Nullable: true},
			&meta.FixedField{Column: "AMOUNT", Type: meta.Number, Length: 12, Scale: 2, Nullable: true},
			&meta.SystemField{Kind: meta.CreateTime, Column: "CREATE_TIME"},
			&meta.SystemField{Kind: meta.UpdateTime, Column: "UPDATE_TIME"},
			&meta.SystemField{Kind: meta.Version, Column: "VERSION"},
			&meta.SystemField{Kind: meta.Deleted, Column: "DELETED"},
		},
	})
}

func mustDialect(name string) dialect.Dialect {
	d, err := dialect.ByName(name)
	if err != nil {
		panic(err)
	}
	return d
}

type sequenceIDs struct {
	next int64
}

func (g *sequenceIDs) Generate(ctx context.Context) (int64, error) {
	g.next++
	return g.next, nil
}

type memoryCache struct {
	rows        map[string][]any
	invalidated [][]string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{rows: map[string][]any{}}
}

func (c *memoryCache) Get(ctx context.Context, table, key string) ([]any, bool, error) {
	values, ok := c.rows[table+":"+key]
	return values, ok, nil
}

func (c *memoryCache) Set(ctx context.Context, table, key string, values []any) error {
	c.rows[table+":"+key] = values
	return nil
}

func (c *memoryCache) Invalidate(ctx context.Context, tables ...string) error {
	c.invalidated = append(c.invalidated, tables)
	for _, table := range tables {
		for key := range c.rows {
			if len(key) > len(table) && key[:len(table)+1] == table+":" {
				delete(c.rows, key)
			}
		}
	}
	return nil
}

func newTable(table *meta.TableMeta, options *DataTableOptions) *DataTable {
	if options == nil {
		options = &DataTableOptions{}
	}
	if options.IntGenerator == nil {
		options.IntGenerator = &sequenceIDs{next: 1000}
	}
	options.Now = func() time.Time { return now }
	t, err := NewDataTable(table, options)
	So(err, ShouldBeNil)
	return t
}

func TestRowLineSetStatus(t *testing.T) {
	Convey("测试行状态", t, func() {
		table := newTable(customerTable(false), nil)
		row, err := table.Materialize([]any{int64(7), "bob", int64(10), now, now, int64(3), false})
		So(err, ShouldBeNil)
		So(row.Status(), ShouldEqual, StatusInit)

		Convey("设置相同的值仍然是 Init", func() {
			So(row.Set("name", "bob"), ShouldBeNil)
			So(row.Set("AMOUNT", 10.0), ShouldBeNil)
			So(row.Status(), ShouldEqual, StatusInit)
			So(row.Dirty(), ShouldBeFalse)
		})

		Convey("改了又改回原值是 Init", func() {
			So(row.Set("NAME", "alice"), ShouldBeNil)
			So(row.Status(), ShouldEqual, StatusModify)
			So(row.Changed(), ShouldResemble, []int{1})
			So(row.Set("NAME", "bob"), ShouldBeNil)
			So(row.Dirty(), ShouldBeTrue)
			So(row.Status(), ShouldEqual, StatusInit)
			So(row.Changed(), ShouldBeEmpty)
		})

		Convey("设置 nil 的 NullString 指针", func() {
			empty, err := table.Materialize([]any{int64(8), nil, nil, now, now, int64(1), false})
			So(err, ShouldBeNil)
			So(empty.Set("NAME", (*sql.NullString)(nil)), ShouldBeNil)
			So(empty.Status(), ShouldEqual, StatusInit)
			So(row.Set("NAME", (*sql.NullString)(nil)), ShouldBeNil)
			So(row.Status(), ShouldEqual, StatusModify)
		})

		Convey("未知列", func() {
			So(row.Set("MISSING", 1), ShouldNotBeNil)
			_, ok := row.Get("MISSING")
			So(ok, ShouldBeFalse)
		})

		Convey("新行始终是 Add", func() {
			added := table.NewRow()
			So(added.Status(), ShouldEqual, StatusAdd)
			So(added.Set("NAME", nil), ShouldBeNil)
			So(added.Status(), ShouldEqual, StatusAdd)
			So(table.Len(), ShouldEqual, 2)
		})

		Convey("值的个数不对", func() {
			_, err := table.Materialize([]any{int64(1)})
			So(err, ShouldNotBeNil)
		})

		So(StatusModify.String(), ShouldEqual, "modify")
	})
}

func TestEqual(t *testing.T) {
	Convey("测试按逻辑类型比较", t, func() {
		number := meta.Column{Type: meta.Number}
		So(Equal(number, 5, 5.0), ShouldBeTrue)
		So(Equal(number, "5", int64(5)), ShouldBeTrue)
		So(Equal(number, []byte("12.50"), 12.5), ShouldBeTrue)
		So(Equal(number, 0.1, "0.1"), ShouldBeTrue)
		So(Equal(number, 5, 6), ShouldBeFalse)

		boolean := meta.Column{Type: meta.Boolean}
		So(Equal(boolean, true, 1), ShouldBeTrue)
		So(Equal(boolean, false, int64(0)), ShouldBeTrue)
		So(Equal(boolean, true, 0), ShouldBeFalse)

		text := meta.Column{Type: meta.ShortText}
		So(Equal(text, "abc", []byte("abc")), ShouldBeTrue)
		So(Equal(text, "abc", "ABC"), ShouldBeFalse)

		stamp := meta.Column{Type: meta.Timestamp}
		So(Equal(stamp, now, now.Add(300*time.Millisecond)), ShouldBeTrue)
		So(Equal(stamp, now, now.Add(time.Second)), ShouldBeFalse)
		So(Equal(meta.Column{Type: meta.Timestamp, Scale: 3}, now, now.Add(300*time.Millisecond)), ShouldBeFalse)
		So(Equal(meta.Column{Type: meta.Date}, now, now.Add(time.Hour)), ShouldBeTrue)

		So(Equal(text, nil, nil), ShouldBeTrue)
		So(Equal(text, nil, ""), ShouldBeFalse)
		var name *string
		So(Equal(text, name, nil), ShouldBeTrue)

		Convey("值接收者的 Valuer 为 nil 指针时当作 NULL", func() {
			So(Equal(text, (*sql.NullString)(nil), nil), ShouldBeTrue)
			So(Equal(text, (*sql.NullString)(nil), "abc"), ShouldBeFalse)
			So(Equal(text, &sql.NullString{String: "abc", Valid: true}, "abc"), ShouldBeTrue)
			So(Equal(text, sql.NullString{}, (*sql.NullString)(nil)), ShouldBeTrue)
			So(Equal(number, (*sql.NullInt64)(nil), nil), ShouldBeTrue)
		})
	})
}

func TestDataTableSave(t *testing.T) {
	Convey("测试保存", t, func() {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		So(err, ShouldBeNil)
		defer db.Close()
		d := mustDialect("mysql57")

		Convey("新增行生成主键和系统字段", func() {
			table := newTable(customerTable(false), nil)
			row := table.NewRow()
			So(row.Set("NAME", "alice"), ShouldBeNil)
			So(row.Set("AMOUNT", 5), ShouldBeNil)

			mock.ExpectExec("INSERT INTO CUSTOMER (ID, NAME, AMOUNT, CREATE_TIME, UPDATE_TIME, VERSION, DELETED) VALUES (?, ?, ?, ?, ?, ?, ?)").
				WithArgs(int64(1001), "alice", 5, now, now, int64(1), false).
				WillReturnResult(sqlmock.NewResult(0, 1))

			result, err := table.Save(ctx, db, d)
			So(err, ShouldBeNil)
			So(result, ShouldResemble, &SaveResult{Inserted: 1})
			So(row.Status(), ShouldEqual, StatusInit)
			id, _ := row.Get("ID")
			So(id, ShouldEqual, int64(1001))
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})

		Convey("修改行只更新变化的列并检查版本", func() {
			table := newTable(customerTable(false), nil)
			created := now.Add(-time.Hour)
			row, _ := table.Materialize([]any{int64(7), "bob", int64(10), created, created, int64(3), false})
			unchanged, _ := table.Materialize([]any{int64(8), "carol", int64(20), created, created, int64(1), false})
			So(row.Set("AMOUNT", 12), ShouldBeNil)

			mock.ExpectExec("UPDATE CUSTOMER SET AMOUNT = ?, UPDATE_TIME = ?, VERSION = ? WHERE ID = ? AND VERSION = ?").
				WithArgs(12, now, int64(4), int64(7), int64(3)).
				WillReturnResult(sqlmock.NewResult(0, 1))

			result, err := table.Save(ctx, db, d)
			So(err, ShouldBeNil)
			So(result, ShouldResemble, &SaveResult{Updated: 1, Skipped: 1})
			So(row.Status(), ShouldEqual, StatusInit)
			So(unchanged.Status(), ShouldEqual, StatusInit)
			version, _ := row.Get("VERSION")
			So(version, ShouldEqual, int64(4))
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})

		Convey("版本不匹配时返回 OptimisticLockError 并恢复行", func() {
			table := newTable(customerTable(false), nil)
			row, _ := table.Materialize([]any{int64(7), "bob", int64(10), now, now, int64(3), false})
			So(row.Set("NAME", "bobby"), ShouldBeNil)

			mock.ExpectExec("UPDATE CUSTOMER SET NAME = ?, UPDATE_TIME = ?, VERSION = ? WHERE ID = ? AND VERSION = ?").
				WithArgs("bobby", now, int64(4), int64(7), int64(3)).
				WillReturnResult(sqlmock.NewResult(0, 0))

			_, err := table.Save(ctx, db, d)
			var lockErr *rdb.OptimisticLockError
			So(errors.As(err, &lockErr), ShouldBeTrue)
			So(lockErr.Table, ShouldEqual, "CUSTOMER")
			So(lockErr.Key, ShouldEqual, int64(7))
			So(row.Status(), ShouldEqual, StatusModify)
			version, _ := row.Get("VERSION")
			So(version, ShouldEqual, int64(3))
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})

		Convey("没有变化时不执行语句", func() {
			table := newTable(customerTable(false), nil)
			row, _ := table.Materialize([]any{int64(7), "bob", int64(10), now, now, int64(3), false})
			So(row.Set("AMOUNT", "10"), ShouldBeNil)
			result, err := table.Save(ctx, db, d)
			So(err, ShouldBeNil)
			So(result, ShouldResemble, &SaveResult{Skipped: 1})
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})

		Convey("写入失败", func() {
			table := newTable(customerTable(false), nil)
			table.NewRow()
			mock.ExpectExec("INSERT INTO CUSTOMER (ID, CREATE_TIME, UPDATE_TIME, VERSION, DELETED) VALUES (?, ?, ?, ?, ?)").
				WillReturnError(errors.New("duplicate key"))
			result, err := table.Save(ctx, db, d)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "duplicate key")
			So(result.Inserted, ShouldEqual, 0)
			So(table.Rows()[0].Status(), ShouldEqual, StatusAdd)
		})
	})
}

func TestDataTableSequence(t *testing.T) {
	Convey("测试序列主键", t, func() {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		So(err, ShouldBeNil)
		defer db.Close()
		d := mustDialect("postgresql10")

		orders := meta.NewTableMeta(meta.TableSpec{
			Name:       "ORDERS",
			PrimaryKey: meta.PrimaryKeyPolicy{Generator: meta.GeneratorSequence},
			Fields: []meta.Field{
				&meta.SystemField{Kind: meta.PrimaryKey, Column: "ID"},
				&meta.FixedField{Column: "CODE", Type: meta.ShortText, Length: 32, Nullable: true},
			},
		})
		table := newTable(orders, nil)
		row := table.NewRow()
		So(row.Set("CODE", "A-1"), ShouldBeNil)

		mock.ExpectQuery("SELECT nextval('SEQ_ORDERS')").
			WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(42))
		mock.ExpectExec("INSERT INTO ORDERS (ID, CODE) VALUES ($1, $2)").
			WithArgs(int64(42), "A-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		_, err = table.Save(ctx, db, d)
		So(err, ShouldBeNil)
		id, _ := row.Get("ID")
		So(id, ShouldEqual, int64(42))
		So(mock.ExpectationsWereMet(), ShouldBeNil)
	})
}

func TestDataTableLoad(t *testing.T) {
	Convey("测试分页读取", t, func() {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		So(err, ShouldBeNil)
		defer db.Close()
		d := mustDialect("mysql57")
		table := newTable(customerTable(false), nil)

		mock.ExpectQuery("SELECT ID, NAME, AMOUNT, CREATE_TIME, UPDATE_TIME, VERSION, DELETED FROM CUSTOMER "+
			"WHERE (DELETED = 0 OR DELETED IS NULL) AND (NAME = ?) ORDER BY ID LIMIT ?, ?").
			WithArgs("bob", int64(10), int64(5)).
			WillReturnRows(sqlmock.NewRows(customerColumns).
				AddRow(int64(7), []byte("bob"), int64(10), now, now, int64(3), false).
				AddRow(int64(9), []byte("bob"), nil, now, now, int64(1), nil))

		n, err := table.Load(ctx, db, d, "NAME = ?", []any{"bob"}, 10, 5)
		So(err, ShouldBeNil)
		So(n, ShouldEqual, 2)
		So(table.Len(), ShouldEqual, 2)
		name, _ := table.Rows()[0].Get("NAME")
		So(name, ShouldEqual, "bob")
		So(table.Rows()[1].Status(), ShouldEqual, StatusInit)
		So(mock.ExpectationsWereMet(), ShouldBeNil)
	})
}

func TestDataTableCache(t *testing.T) {
	Convey("测试按主键读取和缓存失效", t, func() {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		So(err, ShouldBeNil)
		defer db.Close()
		d := mustDialect("postgresql10")

		registry := meta.NewRegistry()
		customer := customerTable(true)
		So(registry.Register(customer), ShouldBeNil)
		So(registry.Register(meta.NewTableMeta(meta.TableSpec{
			Name:  "ORDERS",
			Cache: true,
			Fields: []meta.Field{
				&meta.SystemField{Kind: meta.PrimaryKey, Column: "ID"},
				&meta.ReferenceField{Column: "CUSTOMER_ID", Table: "CUSTOMER"},
			},
		})), ShouldBeNil)

		cache := newMemoryCache()
		table := newTable(customer, &DataTableOptions{Registry: registry, Cache: cache})
		query := "SELECT ID, NAME, AMOUNT, CREATE_TIME, UPDATE_TIME, VERSION, DELETED FROM CUSTOMER " +
			"WHERE (DELETED = FALSE OR DELETED IS NULL) AND (ID = $1)"

		mock.ExpectQuery(query).WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(customerColumns).
				AddRow(int64(7), "bob", int64(10), now, now, int64(3), false))
		row, err := table.Get(ctx, db, d, int64(7))
		So(err, ShouldBeNil)
		So(row, ShouldNotBeNil)
		So(cache.rows, ShouldContainKey, "CUSTOMER:7")

		cached, err := table.Get(ctx, db, d, int64(7))
		So(err, ShouldBeNil)
		So(cached.Values(), ShouldResemble, row.Values())

		mock.ExpectQuery(query).WithArgs(int64(8)).WillReturnRows(sqlmock.NewRows(customerColumns))
		missing, err := table.Get(ctx, db, d, int64(8))
		So(err, ShouldBeNil)
		So(missing, ShouldBeNil)

		So(row.Set("NAME", "bobby"), ShouldBeNil)
		mock.ExpectExec("UPDATE CUSTOMER SET NAME = $1, UPDATE_TIME = $2, VERSION = $3 WHERE ID = $4 AND VERSION = $5").
			WithArgs("bobby", now, int64(4), int64(7), int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		result, err := table.Save(ctx, db, d)
		So(err, ShouldBeNil)
		So(result.Updated, ShouldEqual, 1)
		So(cache.invalidated, ShouldResemble, [][]string{{"CUSTOMER", "ORDERS"}})
		So(cache.rows, ShouldBeEmpty)
		So(mock.ExpectationsWereMet(), ShouldBeNil)
	})
}
