package meta

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hatlonely/rdbx/rdb"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

const testCustomerYAML = `
name: customer
alias: cus
cache: true
primaryKey:
  generator: uuid
fields:
  - role: primaryKey
  - name: name
    type: UnicodeShortText
    length: 64
    nullable: false
  - name: level
    type: Number
    length: 4
    default: 1
  - role: updateTime
indexes:
  - columns: name
    unique: true
`

const testOrdersJSON = `{
  "name": "orders",
  "alias": "ord",
  "fields": [
    {"role": "primaryKey"},
    {"name": "code", "type": "ShortText", "length": 32},
    {"name": "customer_id", "reference": "customer"},
    {"name": "amount", "type": "Number", "length": 12, "scale": 2}
  ],
  "indexes": [
    {"columns": "customer_id, amount desc"}
  ]
}`

const testLineTOML = `
name = "order_line"

[conditional]
keys = ["rdbx.order.lines"]
havingValue = "on"

[[fields]]
role = "primaryKey"

[[fields]]
name = "order_id"
reference = "orders"

[[fields]]
name = "qty"
type = "Number"
length = 10
`

const testAuditXML = `<?xml version="1.0" encoding="UTF-8"?>
<table name="audit_log" comment="审计日志">
  <conditional keys="rdbx.audit.enabled" matchIfMissing="true"/>
  <primaryKey generator="sequence" sequence="seq_audit"/>
  <field role="primaryKey"/>
  <field name="actor" type="ShortText" length="64" nullable="false"/>
  <field name="action" type="ShortText" length="32" default="'login'"/>
  <field role="createTime"/>
  <index name="ix_audit_actor" columns="actor, create_time desc"/>
</table>`

func TestDocumentParser(t *testing.T) {
	Convey("测试文档解析", t, func() {
		parser := NewDocumentParser(nil, nil)

		Convey("YAML 文档", func() {
			table, err := parser.FromDocument(Document{Origin: "tables/customer.yaml", Format: "yaml", Data: []byte(testCustomerYAML)})
			So(err, ShouldBeNil)
			So(table.Name(), ShouldEqual, "CUSTOMER")
			So(table.Alias(), ShouldEqual, "CUS")
			So(table.Cache(), ShouldBeTrue)
			So(table.Source(), ShouldResemble, Source{Kind: SourceDocument, Origin: "tables/customer.yaml"})
			So(table.ColumnNames(), ShouldResemble, []string{"ID", "NAME", "LEVEL", "UPDATE_TIME"})

			f, _ := table.Field("NAME")
			So(f.(*FixedField).Nullable, ShouldBeFalse)
			So(f.(*FixedField).Type, ShouldEqual, UnicodeShortText)
			f, _ = table.Field("LEVEL")
			So(f.(*FixedField).Default, ShouldEqual, int64(1))

			columns := table.Columns(nil)
			So(columns[0].Type, ShouldEqual, ShortText)
			So(columns[0].Length, ShouldEqual, 32)
			So(columns[0].Nullable, ShouldBeFalse)
		})

		Convey("JSON 文档", func() {
			table, err := parser.FromDocument(Document{Origin: "orders.json", Format: "json", Data: []byte(testOrdersJSON)})
			So(err, ShouldBeNil)
			So(table.References()[0].Table, ShouldEqual, "CUSTOMER")
			So(table.Indexes()[0].CanonicalKey(), ShouldEqual, "N:CUSTOMER_ID:A,AMOUNT:D")
		})

		Convey("TOML 文档根节点条件", func() {
			doc := Document{Origin: "line.toml", Format: "toml", Data: []byte(testLineTOML)}
			table, err := parser.FromDocument(doc)
			So(err, ShouldBeNil)
			So(table, ShouldBeNil)

			table, err = NewDocumentParser(nil, MapProperties{"rdbx.order.lines": "on"}).FromDocument(doc)
			So(err, ShouldBeNil)
			So(table.Name(), ShouldEqual, "ORDER_LINE")
		})

		Convey("XML 文档", func() {
			table, err := parser.FromDocument(Document{Origin: "audit.xml", Format: "xml", Data: []byte(testAuditXML)})
			So(err, ShouldBeNil)
			So(table.Name(), ShouldEqual, "AUDIT_LOG")
			So(table.Comment(), ShouldEqual, "审计日志")
			So(table.PrimaryKeyPolicy().Generator, ShouldEqual, GeneratorSequence)
			So(table.SequenceName(), ShouldEqual, "SEQ_AUDIT")

			f, _ := table.Field("ACTION")
			So(f.(*FixedField).Default, ShouldEqual, "login")
			f, _ = table.Field("ACTOR")
			So(f.(*FixedField).Nullable, ShouldBeFalse)

			indexes := table.Indexes()
			So(indexes[0].Name, ShouldEqual, "IX_AUDIT_ACTOR")
			So(indexes[0].CanonicalKey(), ShouldEqual, "N:ACTOR:A,CREATE_TIME:D")
		})

		Convey("文档结构校验失败", func() {
			_, err := parser.FromDocument(Document{Origin: "broken.yaml", Format: "yaml", Data: []byte("alias: x\nfields: []\n")})
			var ce *rdb.ConfigurationError
			So(errors.As(err, &ce), ShouldBeTrue)
			So(ce.Source, ShouldEqual, "broken.yaml")
		})

		Convey("未知的系统角色", func() {
			_, err := parser.FromDocument(Document{Origin: "role.yaml", Format: "yaml", Data: []byte("name: t\nfields:\n  - role: owner\n")})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "role.yaml")
		})

		Convey("不支持的格式", func() {
			_, err := parser.FromDocument(Document{Origin: "t.csv", Format: "csv"})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestDocumentParserParse(t *testing.T) {
	Convey("测试目录加载并与标签解析器共用注册表", t, func() {
		dir := t.TempDir()
		So(os.WriteFile(filepath.Join(dir, "customer.yaml"), []byte(testCustomerYAML), 0644), ShouldBeNil)
		So(os.WriteFile(filepath.Join(dir, "orders.json"), []byte(testOrdersJSON), 0644), ShouldBeNil)
		So(os.WriteFile(filepath.Join(dir, "README.md"), []byte("# tables"), 0644), ShouldBeNil)

		documents, err := LoadDocuments(dir)
		So(err, ShouldBeNil)
		So(len(documents), ShouldEqual, 2)
		So(documents[0].Format, ShouldEqual, "yaml")
		So(documents[1].Format, ShouldEqual, "json")

		Convey("文档之间正常注册", func() {
			registry := NewRegistry()
			tables, err := ParseAll(context.Background(), registry, NewDocumentParser(nil, nil, documents...))
			So(err, ShouldBeNil)
			So(len(tables), ShouldEqual, 2)

			dependents := registry.Dependents("cus")
			So(len(dependents), ShouldEqual, 2)
			So(dependents[0].Name(), ShouldEqual, "CUSTOMER")
			So(dependents[1].Name(), ShouldEqual, "ORDERS")
		})

		Convey("文档与结构体声明的别名冲突", func() {
			registry := NewRegistry()
			_, err := ParseAll(context.Background(), registry,
				NewTagParser(nil, nil, testOrders{}),
				NewDocumentParser(nil, nil, documents...),
			)
			var ce *rdb.ConfigurationError
			So(errors.As(err, &ce), ShouldBeTrue)
			So(ce.Source, ShouldEndWith, "orders.json")
			So(registry.Frozen(), ShouldBeFalse)
		})
	})
}
