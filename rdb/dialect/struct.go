package dialect

import (
	"sort"
	"strings"

	"github.com/hatlonely/rdbx/rdb/meta"
)

// TypeCode 与驱动无关的通用列类型码
type TypeCode int

const (
	TypeOther TypeCode = iota
	TypeChar
	TypeVarchar
	TypeNChar
	TypeNVarchar
	TypeClob
	TypeNClob
	TypeBinary
	TypeVarbinary
	TypeBlob
	TypeTinyInt
	TypeSmallInt
	TypeInteger
	TypeBigInt
	TypeDecimal
	TypeFloat
	TypeDouble
	TypeDate
	TypeTime
	TypeTimestamp
	TypeBoolean
)

var typeCodeNames = map[string]TypeCode{
	"CHAR": TypeChar, "CHARACTER": TypeChar, "BPCHAR": TypeChar,
	"VARCHAR": TypeVarchar, "VARCHAR2": TypeVarchar, "CHARACTER VARYING": TypeVarchar,
	"NCHAR":    TypeNChar,
	"NVARCHAR": TypeNVarchar, "NVARCHAR2": TypeNVarchar,
	"TEXT": TypeClob, "TINYTEXT": TypeClob, "MEDIUMTEXT": TypeClob, "LONGTEXT": TypeClob, "CLOB": TypeClob, "LONG": TypeClob,
	"NTEXT": TypeNClob, "NCLOB": TypeNClob,
	"BINARY":    TypeBinary,
	"VARBINARY": TypeVarbinary, "RAW": TypeVarbinary,
	"BLOB": TypeBlob, "TINYBLOB": TypeBlob, "MEDIUMBLOB": TypeBlob, "LONGBLOB": TypeBlob, "BYTEA": TypeBlob, "IMAGE": TypeBlob, "LONG RAW": TypeBlob,
	"TINYINT":  TypeTinyInt,
	"SMALLINT": TypeSmallInt, "INT2": TypeSmallInt,
	"INT": TypeInteger, "INTEGER": TypeInteger, "INT4": TypeInteger, "MEDIUMINT": TypeInteger,
	"BIGINT": TypeBigInt, "INT8": TypeBigInt,
	"DECIMAL": TypeDecimal, "NUMERIC": TypeDecimal, "NUMBER": TypeDecimal, "MONEY": TypeDecimal,
	"FLOAT": TypeFloat, "REAL": TypeFloat, "FLOAT4": TypeFloat, "BINARY_FLOAT": TypeFloat,
	"DOUBLE": TypeDouble, "DOUBLE PRECISION": TypeDouble, "FLOAT8": TypeDouble, "BINARY_DOUBLE": TypeDouble,
	"DATE": TypeDate,
	"TIME": TypeTime, "TIME WITHOUT TIME ZONE": TypeTime,
	"TIMESTAMP": TypeTimestamp, "DATETIME": TypeTimestamp, "DATETIME2": TypeTimestamp, "SMALLDATETIME": TypeTimestamp,
	"TIMESTAMP WITHOUT TIME ZONE": TypeTimestamp, "TIMESTAMP WITH TIME ZONE": TypeTimestamp, "TIMESTAMPTZ": TypeTimestamp,
	"BOOLEAN": TypeBoolean, "BOOL": TypeBoolean, "BIT": TypeBoolean,
}

// TypeCodeOf 由数据库类型名推导通用类型码，忽略括号内的长度
func TypeCodeOf(typeName string) TypeCode {
	name := strings.ToUpper(strings.TrimSpace(typeName))
	if i := strings.IndexByte(name, '('); i >= 0 {
		rest := ""
		if j := strings.IndexByte(name[i:], ')'); j >= 0 {
			rest = strings.TrimSpace(name[i+j+1:])
		}
		name = strings.TrimSpace(strings.TrimSpace(name[:i]) + " " + rest)
	}
	name = strings.TrimSuffix(name, " UNSIGNED")
	if code, ok := typeCodeNames[name]; ok {
		return code
	}
	return TypeOther
}

// FieldStruct 线上列结构
type FieldStruct struct {
	Name     string
	TypeName string
	TypeCode TypeCode
	Length   int
	Scale    int
	Nullable bool
	Default  *string
	Comment  string
}

// IndexStruct 线上索引结构
type IndexStruct struct {
	Name    string
	Unique  bool
	Columns []meta.IndexColumn
}

// CanonicalKey 与 IndexMeta 相同的规范序列化
func (s *IndexStruct) CanonicalKey() string {
	return meta.CanonicalIndexKey(s.Unique, s.Columns)
}

// PrimaryKeyStruct 线上主键约束
type PrimaryKeyStruct struct {
	Name    string
	Columns []string
}

// TableObjectStruct 线上表结构
type TableObjectStruct struct {
	Name       string
	Fields     []*FieldStruct
	PrimaryKey *PrimaryKeyStruct
	Indexes    map[string]*IndexStruct
}

// Field 按列名查找，大小写不敏感
func (t *TableObjectStruct) Field(name string) (*FieldStruct, bool) {
	for _, f := range t.Fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return nil, false
}

// IndexKeys 全部索引的规范序列化集合，主键索引也包含在内
func (t *TableObjectStruct) IndexKeys() map[string]bool {
	keys := make(map[string]bool, len(t.Indexes)+1)
	for _, idx := range t.Indexes {
		keys[idx.CanonicalKey()] = true
	}
	if t.PrimaryKey != nil && len(t.PrimaryKey.Columns) > 0 {
		columns := make([]meta.IndexColumn, len(t.PrimaryKey.Columns))
		for i, c := range t.PrimaryKey.Columns {
			columns[i] = meta.IndexColumn{Name: c}
		}
		keys[meta.CanonicalIndexKey(true, columns)] = true
	}
	return keys
}

// IndexNames 排序后的索引名
func (t *TableObjectStruct) IndexNames() []string {
	names := make([]string, 0, len(t.Indexes))
	for name := range t.Indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ViewObjectStruct 线上视图结构
type ViewObjectStruct struct {
	Name   string
	Fields []*FieldStruct
}

// indexBuilder 按 (索引名, 列序号) 逐行累积索引
type indexBuilder struct {
	indexes map[string]*IndexStruct
}

func newIndexBuilder() *indexBuilder {
	return &indexBuilder{indexes: map[string]*IndexStruct{}}
}

func (b *indexBuilder) add(name string, unique bool, column string, desc bool) {
	name = strings.ToUpper(name)
	idx, ok := b.indexes[name]
	if !ok {
		idx = &IndexStruct{Name: name, Unique: unique}
		b.indexes[name] = idx
	}
	idx.Columns = append(idx.Columns, meta.IndexColumn{Name: strings.ToUpper(column), Desc: desc})
}
