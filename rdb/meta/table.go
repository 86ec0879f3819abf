package meta

import (
	"strings"
)

// SourceKind 表声明来源
type SourceKind int

const (
	SourceAttribute SourceKind = iota + 1
	SourceDocument
)

func (k SourceKind) String() string {
	switch k {
	case SourceAttribute:
		return "attribute"
	case SourceDocument:
		return "document"
	}
	return "unknown"
}

// Source 声明来源，Origin 为结构体类型名或文档路径
type Source struct {
	Kind   SourceKind
	Origin string
}

func (s Source) String() string {
	return s.Kind.String() + ":" + s.Origin
}

// Generator 主键生成策略
type Generator string

const (
	GeneratorNone      Generator = ""
	GeneratorSnowflake Generator = "snowflake"
	GeneratorUUID      Generator = "uuid"
	GeneratorSequence  Generator = "sequence"
)

// PrimaryKeyPolicy 主键命名与取号策略
type PrimaryKeyPolicy struct {
	// ConstraintName 主键约束名，为空时为 PK_<表名>
	ConstraintName string
	Generator      Generator
	// Sequence 序列名，为空时为 SEQ_<表名>
	Sequence string
}

// TableSpec 解析器构建表元数据的输入
type TableSpec struct {
	Name       string
	Alias      string
	Comment    string
	Cache      bool
	PrimaryKey PrimaryKeyPolicy
	Fields     []Field
	Indexes    []*IndexMeta
	Source     Source
	Binding    *Binding
}

// TableMeta 表的声明式元数据，注册后不可变，可以并发读
type TableMeta struct {
	name       string
	alias      string
	comment    string
	cache      bool
	primaryKey PrimaryKeyPolicy
	fields     []Field
	fieldIndex map[string]int
	indexes    []*IndexMeta
	references []*ReferenceField
	source     Source
	binding    *Binding
}

// NewTableMeta 规范化表名、别名和列名（大写），不做校验
func NewTableMeta(spec TableSpec) *TableMeta {
	t := &TableMeta{
		name:       strings.ToUpper(strings.TrimSpace(spec.Name)),
		alias:      strings.ToUpper(strings.TrimSpace(spec.Alias)),
		comment:    spec.Comment,
		cache:      spec.Cache,
		primaryKey: spec.PrimaryKey,
		fieldIndex: make(map[string]int, len(spec.Fields)),
		source:     spec.Source,
		binding:    spec.Binding,
	}
	for _, f := range spec.Fields {
		f = normalizeField(f)
		if _, ok := t.fieldIndex[f.Name()]; !ok {
			t.fieldIndex[f.Name()] = len(t.fields)
		}
		t.fields = append(t.fields, f)
		if ref, ok := f.(*ReferenceField); ok {
			t.references = append(t.references, ref)
		}
	}
	for _, idx := range spec.Indexes {
		columns := make([]IndexColumn, len(idx.Columns))
		for i, col := range idx.Columns {
			columns[i] = IndexColumn{Name: strings.ToUpper(strings.TrimSpace(col.Name)), Desc: col.Desc}
		}
		t.indexes = append(t.indexes, &IndexMeta{Name: strings.ToUpper(idx.Name), Unique: idx.Unique, Columns: columns})
	}
	if t.binding != nil {
		t.binding.table = t
	}
	return t
}

func normalizeField(f Field) Field {
	switch v := f.(type) {
	case *FixedField:
		c := *v
		c.Column = strings.ToUpper(strings.TrimSpace(c.Column))
		return &c
	case *ReferenceField:
		c := *v
		c.Column = strings.ToUpper(strings.TrimSpace(c.Column))
		c.Table = strings.ToUpper(strings.TrimSpace(c.Table))
		return &c
	case *SystemField:
		c := *v
		c.Column = strings.ToUpper(strings.TrimSpace(c.Column))
		return &c
	}
	return f
}

func (t *TableMeta) Name() string                       { return t.name }
func (t *TableMeta) Alias() string                      { return t.alias }
func (t *TableMeta) Comment() string                    { return t.comment }
func (t *TableMeta) Cache() bool                        { return t.cache }
func (t *TableMeta) Source() Source                     { return t.source }
func (t *TableMeta) Binding() *Binding                  { return t.binding }
func (t *TableMeta) PrimaryKeyPolicy() PrimaryKeyPolicy { return t.primaryKey }

// Fields 有序字段列表，字段为副本，修改不影响已注册的表
func (t *TableMeta) Fields() []Field {
	fields := make([]Field, len(t.fields))
	for i, f := range t.fields {
		fields[i] = f.clone()
	}
	return fields
}

// Indexes 索引列表的副本
func (t *TableMeta) Indexes() []*IndexMeta {
	indexes := make([]*IndexMeta, len(t.indexes))
	for i, idx := range t.indexes {
		indexes[i] = idx.clone()
	}
	return indexes
}

// References 引用字段列表的副本
func (t *TableMeta) References() []*ReferenceField {
	references := make([]*ReferenceField, len(t.references))
	for i, f := range t.references {
		references[i] = f.clone().(*ReferenceField)
	}
	return references
}

// Field 按列名查找字段，大小写不敏感
func (t *TableMeta) Field(name string) (Field, bool) {
	i := t.FieldIndex(name)
	if i < 0 {
		return nil, false
	}
	return t.fields[i].clone(), true
}

// FieldIndex 列在字段列表中的位置，不存在返回 -1
func (t *TableMeta) FieldIndex(name string) int {
	if i, ok := t.fieldIndex[strings.ToUpper(name)]; ok {
		return i
	}
	return -1
}

// SystemField 按角色查找系统字段，返回副本
func (t *TableMeta) SystemField(kind SystemKind) (*SystemField, bool) {
	for _, f := range t.fields {
		if sf, ok := f.(*SystemField); ok && sf.Kind == kind {
			return sf.clone().(*SystemField), true
		}
	}
	return nil, false
}

// PrimaryKeyColumn 主键列名，没有主键时为空
func (t *TableMeta) PrimaryKeyColumn() string {
	if pk, ok := t.SystemField(PrimaryKey); ok {
		return pk.Column
	}
	return ""
}

// PrimaryKeyConstraint 主键约束名
func (t *TableMeta) PrimaryKeyConstraint() string {
	if t.primaryKey.ConstraintName != "" {
		return strings.ToUpper(t.primaryKey.ConstraintName)
	}
	return truncateIdentifier("PK_" + t.name)
}

// SequenceName 主键序列名
func (t *TableMeta) SequenceName() string {
	if t.primaryKey.Sequence != "" {
		return strings.ToUpper(t.primaryKey.Sequence)
	}
	return truncateIdentifier("SEQ_" + t.name)
}

// Columns 解析全部字段为列定义，lookup 用于确定引用字段的类型，可以为 nil
func (t *TableMeta) Columns(lookup func(string) (*TableMeta, bool)) []Column {
	columns := make([]Column, 0, len(t.fields))
	for _, f := range t.fields {
		columns = append(columns, columnOf(f.clone(), t, lookup))
	}
	return columns
}

// ColumnNames 有序列名
func (t *TableMeta) ColumnNames() []string {
	names := make([]string, len(t.fields))
	for i, f := range t.fields {
		names[i] = f.Name()
	}
	return names
}

func truncateIdentifier(name string) string {
	if len(name) > 30 {
		return name[:30]
	}
	return name
}
