package meta

import (
	"fmt"
	"strings"
)

// Field 字段元数据，三种变体之一：*FixedField、*ReferenceField、*SystemField
type Field interface {
	// Name 列名（大写）
	Name() string
	// Property 应用侧字段名（结构体字段名），文档声明时为空
	Property() string

	field()
	clone() Field
}

// FixedField 固定类型字段
type FixedField struct {
	Column   string
	Prop     string
	Type     DataType
	Length   int
	Scale    int
	Nullable bool
	Default  any
	Comment  string
}

func (f *FixedField) Name() string     { return f.Column }
func (f *FixedField) Property() string { return f.Prop }
func (f *FixedField) field()           {}
func (f *FixedField) clone() Field     { c := *f; return &c }

// ReferenceField 引用其他表主键的字段（软外键，不生成约束，只用于缓存失效顺序）
type ReferenceField struct {
	Column  string
	Prop    string
	Table   string
	Comment string
}

func (f *ReferenceField) Name() string     { return f.Column }
func (f *ReferenceField) Property() string { return f.Prop }
func (f *ReferenceField) field()           {}
func (f *ReferenceField) clone() Field     { c := *f; return &c }

// SystemKind 系统字段角色
type SystemKind int

const (
	PrimaryKey SystemKind = iota + 1
	CreateTime
	UpdateTime
	Version
	Deleted
)

var systemKindNames = map[SystemKind]string{
	PrimaryKey: "primaryKey",
	CreateTime: "createTime",
	UpdateTime: "updateTime",
	Version:    "version",
	Deleted:    "deleted",
}

// SystemKinds 全部系统字段角色
func SystemKinds() []SystemKind {
	return []SystemKind{PrimaryKey, CreateTime, UpdateTime, Version, Deleted}
}

func (k SystemKind) String() string {
	if name, ok := systemKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("SystemKind(%d)", int(k))
}

// ParseSystemKind 解析系统字段角色名，大小写不敏感
func ParseSystemKind(name string) (SystemKind, bool) {
	for k, n := range systemKindNames {
		if strings.EqualFold(n, name) {
			return k, true
		}
	}
	return 0, false
}

// SystemField 系统字段，列名由全局配置决定
// Type/Length 为零值时使用角色的默认类型
type SystemField struct {
	Kind   SystemKind
	Column string
	Prop   string
	Type   DataType
	Length int
}

func (f *SystemField) Name() string     { return f.Column }
func (f *SystemField) Property() string { return f.Prop }
func (f *SystemField) field()           {}
func (f *SystemField) clone() Field     { c := *f; return &c }

// Column 字段解析后的列定义，供 DDL 生成和结构比对使用
type Column struct {
	Name     string
	Type     DataType
	Length   int
	Scale    int
	Nullable bool
	Default  any
	Comment  string
	Field    Field
}

// primaryKeyColumnType 主键列的类型，uuid 策略使用定长文本
func primaryKeyColumnType(policy PrimaryKeyPolicy) (DataType, int) {
	if policy.Generator == GeneratorUUID {
		return ShortText, 32
	}
	return Number, 19
}

// columnOf 将字段解析为列定义，引用字段的类型取被引用表的主键类型
func columnOf(f Field, table *TableMeta, lookup func(string) (*TableMeta, bool)) Column {
	switch v := f.(type) {
	case *FixedField:
		return Column{Name: v.Column, Type: v.Type, Length: v.Length, Scale: v.Scale,
			Nullable: v.Nullable, Default: v.Default, Comment: v.Comment, Field: f}
	case *ReferenceField:
		dataType, length := Number, 19
		if lookup != nil {
			if ref, ok := lookup(v.Table); ok {
				dataType, length = primaryKeyColumnType(ref.PrimaryKeyPolicy())
			}
		}
		return Column{Name: v.Column, Type: dataType, Length: length, Nullable: true, Comment: v.Comment, Field: f}
	case *SystemField:
		col := Column{Name: v.Column, Nullable: true, Field: f}
		switch v.Kind {
		case PrimaryKey:
			col.Type, col.Length = primaryKeyColumnType(table.PrimaryKeyPolicy())
			col.Nullable = false
		case CreateTime, UpdateTime:
			col.Type = Timestamp
		case Version:
			col.Type, col.Length = Number, 10
		case Deleted:
			col.Type = Boolean
		}
		if v.Type != 0 {
			col.Type = v.Type
			col.Length = v.Length
		}
		return col
	}
	return Column{Name: f.Name(), Field: f}
}
