package meta

import (
	"context"
	"testing"
	"time"

	"github.com/hatlonely/rdbx/rdb"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

type testCustomer struct {
	Table        `table:"CUSTOMER,alias=CUS,cache,pk=snowflake,comment=客户"`
	ID           int64     `rdb:",primaryKey"`
	CustomerName string    `rdb:",length=64,required"`
	Level        int       `rdb:"level,default=1"`
	CreateTime   time.Time `rdb:",createTime"`
	Version      int64     `rdb:",version"`
	Ignored      string    `rdb:"-"`
}

type testOrders struct {
	Table      `table:"ORDERS,alias=ORD" index:"CUSTOMER_ID,AMOUNT DESC;unique:CODE"`
	ID         int64   `rdb:",primaryKey"`
	Code       string  `rdb:"code,length=32,required"`
	CustomerID int64   `rdb:"customer_id,reference=CUSTOMER"`
	Amount     float64 `rdb:"amount,type=Number,length=12,scale=2"`
	Remark     *string `rdb:"remark,type=UnicodeLongText"`
}

type OrderLine struct {
	Table
	ID      int64  `rdb:",primaryKey"`
	OrderID int64  `rdb:",reference=ORDERS,index=IX_LINE_ORDER"`
	LineNo  int    `rdb:",index=IX_LINE_ORDER"`
	Sku     string `rdb:",unique"`
}

type testNamed struct {
	Table
	Name string `rdb:"name"`
}

func (testNamed) TableName() string { return "named_by_method" }

type testConditional struct {
	Table `table:"AUDIT_LOG" conditional:"keys=rdbx.audit.enabled,value=true"`
	Text  string `rdb:"text"`
}

type testNoMarker struct {
	Name string
}

type testEmpty struct {
	Table `table:"EMPTY"`
}

type testReserved struct {
	Table   `table:"RESERVED"`
	Version int `rdb:"version"`
}

type testBadIndex struct {
	Table `table:"BAD_INDEX" index:"MISSING"`
	Name  string `rdb:"name"`
}

type testMixedMarkers struct {
	Table      `table:"MIXED"`
	CustomerID int64 `rdb:"customer_id,reference=CUSTOMER,length=10"`
}

type testTwoPrimaryKeys struct {
	Table `table:"TWO_PK"`
	A     int64 `rdb:"a,primaryKey"`
	B     int64 `rdb:"b,primary"`
}

type testOrdersAlias struct {
	Table `table:"ORDER_ARCHIVE,alias=ORD"`
	Code  string `rdb:"code"`
}

type testOrd struct {
	Table `table:"ORD"`
	Code  string `rdb:"code"`
}

func TestTagParser(t *testing.T) {
	Convey("测试结构体标签解析", t, func() {
		parser := NewTagParser(nil, nil)

		Convey("解析表级和字段级标签", func() {
			table, err := parser.FromStruct(&testCustomer{})
			So(err, ShouldBeNil)
			So(table.Name(), ShouldEqual, "CUSTOMER")
			So(table.Alias(), ShouldEqual, "CUS")
			So(table.Cache(), ShouldBeTrue)
			So(table.Comment(), ShouldEqual, "客户")
			So(table.PrimaryKeyPolicy().Generator, ShouldEqual, GeneratorSnowflake)
			So(table.Source().Kind, ShouldEqual, SourceAttribute)
			So(table.Source().Origin, ShouldEndWith, "testCustomer")
			So(table.ColumnNames(), ShouldResemble, []string{"ID", "CUSTOMER_NAME", "LEVEL", "CREATE_TIME", "VERSION"})

			f, ok := table.Field("customer_name")
			So(ok, ShouldBeTrue)
			fixed := f.(*FixedField)
			So(fixed.Type, ShouldEqual, ShortText)
			So(fixed.Length, ShouldEqual, 64)
			So(fixed.Nullable, ShouldBeFalse)
			So(fixed.Property(), ShouldEqual, "CustomerName")

			f, _ = table.Field("LEVEL")
			So(f.(*FixedField).Default, ShouldEqual, int64(1))
			So(f.(*FixedField).Type, ShouldEqual, Number)

			pk, ok := table.SystemField(PrimaryKey)
			So(ok, ShouldBeTrue)
			So(pk.Column, ShouldEqual, "ID")
			So(pk.Property(), ShouldEqual, "ID")

			ct, ok := table.SystemField(CreateTime)
			So(ok, ShouldBeTrue)
			So(ct.Property(), ShouldEqual, "CreateTime")
		})

		Convey("系统字段列名来自全局配置", func() {
			settings := DefaultSystemFields()
			settings.PrimaryKey = "pk_id"
			settings.CreateTime = "created_at"
			table, err := NewTagParser(settings, nil).FromStruct(testCustomer{})
			So(err, ShouldBeNil)
			So(table.PrimaryKeyColumn(), ShouldEqual, "PK_ID")
			_, ok := table.Field("CREATED_AT")
			So(ok, ShouldBeTrue)
		})

		Convey("引用字段和索引", func() {
			table, err := parser.FromStruct(&testOrders{})
			So(err, ShouldBeNil)
			refs := table.References()
			So(len(refs), ShouldEqual, 1)
			So(refs[0].Table, ShouldEqual, "CUSTOMER")

			indexes := table.Indexes()
			So(len(indexes), ShouldEqual, 2)
			So(indexes[0].CanonicalKey(), ShouldEqual, "N:CUSTOMER_ID:A,AMOUNT:D")
			So(indexes[1].CanonicalKey(), ShouldEqual, "U:CODE:A")

			f, _ := table.Field("AMOUNT")
			So(f.(*FixedField).Scale, ShouldEqual, 2)
			f, _ = table.Field("REMARK")
			So(f.(*FixedField).Type, ShouldEqual, UnicodeLongText)
			So(f.(*FixedField).Nullable, ShouldBeTrue)
		})

		Convey("访问器返回副本，修改不影响表定义", func() {
			table, err := parser.FromStruct(&testOrders{})
			So(err, ShouldBeNil)

			for _, f := range table.Fields() {
				switch v := f.(type) {
				case *FixedField:
					v.Length = 1
					v.Nullable = true
				case *ReferenceField:
					v.Table = "OTHER"
				case *SystemField:
					v.Column = "HACKED"
				}
			}
			f, _ := table.Field("CODE")
			f.(*FixedField).Type = Number
			pk, _ := table.SystemField(PrimaryKey)
			pk.Column = "HACKED"
			table.References()[0].Table = "OTHER"
			indexes := table.Indexes()
			indexes[1].Unique = false
			indexes[1].Columns[0].Name = "HACKED"

			f, _ = table.Field("CODE")
			So(f.(*FixedField).Type, ShouldEqual, ShortText)
			So(f.(*FixedField).Length, ShouldEqual, 32)
			So(f.(*FixedField).Nullable, ShouldBeFalse)
			So(table.PrimaryKeyColumn(), ShouldEqual, "ID")
			So(table.ColumnNames()[0], ShouldEqual, "ID")
			So(table.References()[0].Table, ShouldEqual, "CUSTOMER")
			So(table.Indexes()[1].CanonicalKey(), ShouldEqual, "U:CODE:A")

			columns := table.Columns(nil)
			So(columns[0].Name, ShouldEqual, "ID")
			columns[1].Field.(*FixedField).Length = 1
			f, _ = table.Field("CODE")
			So(f.(*FixedField).Length, ShouldEqual, 32)
		})

		Convey("默认表名和字段级联合索引", func() {
			table, err := parser.FromStruct(OrderLine{})
			So(err, ShouldBeNil)
			So(table.Name(), ShouldEqual, "ORDER_LINE")
			indexes := table.Indexes()
			So(len(indexes), ShouldEqual, 2)
			So(indexes[0].CanonicalKey(), ShouldEqual, "U:SKU:A")
			So(indexes[1].Name, ShouldEqual, "IX_LINE_ORDER")
			So(indexes[1].CanonicalKey(), ShouldEqual, "N:ORDER_ID:A,LINE_NO:A")
		})

		Convey("TableName 方法指定表名", func() {
			table, err := parser.FromStruct(testNamed{})
			So(err, ShouldBeNil)
			So(table.Name(), ShouldEqual, "NAMED_BY_METHOD")
		})

		Convey("没有嵌入标记的结构体", func() {
			_, err := parser.FromStruct(testNoMarker{})
			var ce *rdb.ConfigurationError
			So(errors.As(err, &ce), ShouldBeTrue)
			So(ce.Source, ShouldEndWith, "testNoMarker")
		})

		Convey("引用与固定类型标记互斥", func() {
			_, err := parser.FromStruct(testMixedMarkers{})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "mutually exclusive")
			So(err.Error(), ShouldContainSubstring, "testMixedMarkers")
		})

		Convey("条件不满足时跳过", func() {
			table, err := parser.FromStruct(testConditional{})
			So(err, ShouldBeNil)
			So(table, ShouldBeNil)

			table, err = NewTagParser(nil, MapProperties{"rdbx.audit.enabled": "true"}).FromStruct(testConditional{})
			So(err, ShouldBeNil)
			So(table.Name(), ShouldEqual, "AUDIT_LOG")
		})
	})
}

func TestTagParserParse(t *testing.T) {
	Convey("测试解析并注册", t, func() {
		ctx := context.Background()

		Convey("正常注册并冻结", func() {
			registry := NewRegistry()
			tables, err := ParseAll(ctx, registry, NewTagParser(nil, nil, testCustomer{}, testOrders{}, OrderLine{}))
			So(err, ShouldBeNil)
			So(len(tables), ShouldEqual, 3)
			So(registry.Frozen(), ShouldBeTrue)

			table, ok := registry.Lookup("ord")
			So(ok, ShouldBeTrue)
			So(table.Name(), ShouldEqual, "ORDERS")

			err = registry.Register(NewTableMeta(TableSpec{Name: "LATE"}))
			So(err, ShouldNotBeNil)
		})

		Convey("别名冲突报告双方来源", func() {
			registry := NewRegistry()
			_, err := NewTagParser(nil, nil, testOrders{}, testOrdersAlias{}).Parse(ctx, registry)
			var ce *rdb.ConfigurationError
			So(errors.As(err, &ce), ShouldBeTrue)
			So(ce.Source, ShouldEndWith, "testOrdersAlias")
			So(ce.Message, ShouldContainSubstring, "ORD")
			So(ce.Message, ShouldContainSubstring, "testOrders")
			So(registry.Len(), ShouldEqual, 1)
		})

		Convey("表名与已注册的别名冲突", func() {
			registry := NewRegistry()
			_, err := NewTagParser(nil, nil, testOrders{}, testOrd{}).Parse(ctx, registry)
			var ce *rdb.ConfigurationError
			So(errors.As(err, &ce), ShouldBeTrue)
			So(ce.Source, ShouldEndWith, "testOrd")
			So(ce.Message, ShouldContainSubstring, "name ORD collides with table ORDERS")
			So(ce.Message, ShouldContainSubstring, "testOrders")
			So(registry.Len(), ShouldEqual, 1)
			_, ok := registry.Lookup("ORD")
			So(ok, ShouldBeTrue)
		})

		Convey("没有字段的表", func() {
			_, err := NewTagParser(nil, nil, testEmpty{}).Parse(ctx, NewRegistry())
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "no fields")
		})

		Convey("普通字段使用保留名", func() {
			_, err := NewTagParser(nil, nil, testReserved{}).Parse(ctx, NewRegistry())
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "reserved for version")
		})

		Convey("索引引用未声明字段", func() {
			_, err := NewTagParser(nil, nil, testBadIndex{}).Parse(ctx, NewRegistry())
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "undeclared field MISSING")
		})

		Convey("同一角色声明两次", func() {
			_, err := NewTagParser(nil, nil, testTwoPrimaryKeys{}).Parse(ctx, NewRegistry())
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "primaryKey role declared twice")
		})
	})
}

func TestBinding(t *testing.T) {
	Convey("测试静态结构体绑定", t, func() {
		table, err := NewTagParser(nil, nil).FromStruct(testOrders{})
		So(err, ShouldBeNil)
		binding := table.Binding()
		So(binding, ShouldNotBeNil)

		remark := "加急"
		values, err := binding.Values(&testOrders{ID: 7, Code: "A-1", CustomerID: 3, Amount: 12.5, Remark: &remark})
		So(err, ShouldBeNil)
		So(values, ShouldResemble, []any{int64(7), "A-1", int64(3), 12.5, "加急"})

		var order testOrders
		err = binding.Assign([]any{int64(9), []byte("B-2"), "4", "3.25", nil}, &order)
		So(err, ShouldBeNil)
		So(order.ID, ShouldEqual, 9)
		So(order.Code, ShouldEqual, "B-2")
		So(order.CustomerID, ShouldEqual, 4)
		So(order.Amount, ShouldEqual, 3.25)
		So(order.Remark, ShouldBeNil)

		So(binding.Assign(nil, order), ShouldNotBeNil)
	})
}
