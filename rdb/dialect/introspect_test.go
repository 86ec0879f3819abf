package dialect

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/hatlonely/rdbx/rdb/meta"
)

var ctx = context.Background()

var (
	fieldColumns = []string{"NAME", "TYPE_NAME", "LENGTH", "SCALE", "NULLABLE", "DEFAULT", "COMMENT"}
	indexColumns = []string{"INDEX_NAME", "IS_UNIQUE", "COLUMN_NAME", "IS_DESC", "IS_PRIMARY"}
)

func TestMySQLIntrospection(t *testing.T) {
	Convey("测试 MySQL 元数据查询", t, func() {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		So(err, ShouldBeNil)
		defer db.Close()
		d := mustDialect("mysql57")

		Convey("表是否存在", func() {
			mock.ExpectQuery(mysqlIntrospection.existTable).WithArgs("", "CUSTOMER").
				WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(1))
			ok, err := d.ExistTable(ctx, db, "CUSTOMER")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)

			mock.ExpectQuery(mysqlIntrospection.existView).WithArgs("", "CUSTOMER").
				WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(0))
			ok, err = d.ExistView(ctx, db, "CUSTOMER")
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})

		Convey("查询失败时带上表名，不重试", func() {
			mock.ExpectQuery(mysqlIntrospection.existTable).WithArgs("", "CUSTOMER").
				WillReturnError(errors.New("bad connection"))
			_, err := d.ExistTable(ctx, db, "CUSTOMER")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "check table CUSTOMER failed")
			So(err.Error(), ShouldContainSubstring, "bad connection")
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})

		Convey("读取表结构", func() {
			d.SetSchema("app")
			mock.ExpectQuery(mysqlIntrospection.fields).WithArgs("app", "CUSTOMER").
				WillReturnRows(sqlmock.NewRows(fieldColumns).
					AddRow("ID", "bigint", 19, 0, "NO", nil, "").
					AddRow("name", "varchar", 50, 0, "YES", "x", "名称").
					AddRow("AMOUNT", "decimal", 12, 2, "YES", nil, ""))
			mock.ExpectQuery(mysqlIntrospection.indexes).WithArgs("app", "CUSTOMER").
				WillReturnRows(sqlmock.NewRows(indexColumns).
					AddRow("PRIMARY", 1, "ID", 0, 1).
					AddRow("IX_NAME", 0, "NAME", 0, 0).
					AddRow("UX_NAME_AMOUNT", 1, "NAME", 0, 0).
					AddRow("UX_NAME_AMOUNT", 1, "AMOUNT", 1, 0))

			table, err := d.TableStruct(ctx, db, "CUSTOMER")
			So(err, ShouldBeNil)
			So(table.Name, ShouldEqual, "CUSTOMER")
			So(len(table.Fields), ShouldEqual, 3)

			name, ok := table.Field("Name")
			So(ok, ShouldBeTrue)
			So(name.Name, ShouldEqual, "NAME")
			So(name.TypeName, ShouldEqual, "VARCHAR")
			So(name.TypeCode, ShouldEqual, TypeVarchar)
			So(name.Length, ShouldEqual, 50)
			So(name.Nullable, ShouldBeTrue)
			So(*name.Default, ShouldEqual, "x")
			So(name.Comment, ShouldEqual, "名称")

			id, _ := table.Field("ID")
			So(id.Nullable, ShouldBeFalse)
			So(id.Default, ShouldBeNil)

			amount, _ := table.Field("AMOUNT")
			So(amount.Scale, ShouldEqual, 2)

			So(table.PrimaryKey, ShouldResemble, &PrimaryKeyStruct{Name: "PRIMARY", Columns: []string{"ID"}})
			So(table.IndexNames(), ShouldResemble, []string{"IX_NAME", "UX_NAME_AMOUNT"})
			So(table.Indexes["UX_NAME_AMOUNT"].Columns, ShouldResemble, []meta.IndexColumn{{Name: "NAME"}, {Name: "AMOUNT", Desc: true}})

			keys := table.IndexKeys()
			So(keys["U:ID:A"], ShouldBeTrue)
			So(keys["N:NAME:A"], ShouldBeTrue)
			So(keys["U:NAME:A,AMOUNT:D"], ShouldBeTrue)
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})

		Convey("表不存在时返回 nil", func() {
			mock.ExpectQuery(mysqlIntrospection.fields).WithArgs("", "MISSING").
				WillReturnRows(sqlmock.NewRows(fieldColumns))
			table, err := d.TableStruct(ctx, db, "MISSING")
			So(err, ShouldBeNil)
			So(table, ShouldBeNil)
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})
	})
}

func TestPostgreSQLIntrospection(t *testing.T) {
	Convey("测试 PostgreSQL 元数据查询使用 $n 占位符", t, func() {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		So(err, ShouldBeNil)
		defer db.Close()
		d := mustDialect("postgresql10")

		mock.ExpectQuery(d.Rebind(postgresIntrospection.existTable)).WithArgs("", "CUSTOMER").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		ok, err := d.ExistTable(ctx, db, "CUSTOMER")
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)

		mock.ExpectQuery(d.Rebind(postgresIntrospection.fields)).WithArgs("", "V_CUSTOMER").
			WillReturnRows(sqlmock.NewRows(fieldColumns).
				AddRow("id", "bigint", 64, 0, "NO", nil, "").
				AddRow("name", "character varying", 50, nil, "YES", nil, nil))
		view, err := d.ViewStruct(ctx, db, "V_CUSTOMER")
		So(err, ShouldBeNil)
		So(view.Name, ShouldEqual, "V_CUSTOMER")
		So(view.Fields[1].TypeCode, ShouldEqual, TypeVarchar)
		So(view.Fields[1].Comment, ShouldEqual, "")
		So(mock.ExpectationsWereMet(), ShouldBeNil)
	})
}

func TestSQLiteIntrospection(t *testing.T) {
	Convey("测试 SQLite 元数据查询只有表名参数", t, func() {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		So(err, ShouldBeNil)
		defer db.Close()
		d := mustDialect("sqlite")

		mock.ExpectQuery(sqliteIntrospection.fields).WithArgs("ORDERS").
			WillReturnRows(sqlmock.NewRows(fieldColumns).
				AddRow("ID", "NUMERIC(19,0)", 0, 0, "NO", nil, "").
				AddRow("CODE", "VARCHAR(32)", 0, 0, "YES", nil, ""))
		mock.ExpectQuery(sqliteIntrospection.indexes).WithArgs("ORDERS").
			WillReturnRows(sqlmock.NewRows(indexColumns).
				AddRow("PRIMARY", 1, "ID", 0, 1).
				AddRow("ux_orders_code", 1, "CODE", 0, 0))

		table, err := d.TableStruct(ctx, db, "ORDERS")
		So(err, ShouldBeNil)
		So(table.Fields[0].Length, ShouldEqual, 19)
		So(table.Fields[0].TypeCode, ShouldEqual, TypeDecimal)
		So(table.Fields[1].Length, ShouldEqual, 32)
		So(table.PrimaryKey.Columns, ShouldResemble, []string{"ID"})
		So(table.Indexes, ShouldContainKey, "UX_ORDERS_CODE")
		So(mock.ExpectationsWereMet(), ShouldBeNil)
	})
}
