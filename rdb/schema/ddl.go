package schema

import (
	"fmt"
	"strings"

	"github.com/hatlonely/rdbx/rdb/dialect"
	"github.com/hatlonely/rdbx/rdb/meta"
)

// StatementKind DDL 语句类别，同时作为指标的 kind 标签
type StatementKind string

const (
	KindCreateTable    StatementKind = "create_table"
	KindCreateIndex    StatementKind = "create_index"
	KindCreateSequence StatementKind = "create_sequence"
	KindComment        StatementKind = "comment"
	KindAddColumn      StatementKind = "add_column"
	KindModifyColumn   StatementKind = "modify_column"
)

// Statement 一条待执行的 DDL
type Statement struct {
	Kind StatementKind
	SQL  string
}

func (s Statement) String() string {
	return s.SQL
}

func lookupFunc(registry *meta.Registry) func(string) (*meta.TableMeta, bool) {
	if registry == nil {
		return nil
	}
	return registry.Lookup
}

// CreateTableStatements 建表需要的全部语句：CREATE TABLE（含主键约束）、序列、每个索引一条 CREATE INDEX、单独的注释语句
// registry 用于确定引用字段的列类型，可以为 nil
func CreateTableStatements(d dialect.Dialect, registry *meta.Registry, table *meta.TableMeta) ([]Statement, error) {
	columns := table.Columns(lookupFunc(registry))

	definitions := make([]string, 0, len(columns)+1)
	for _, col := range columns {
		def, err := d.ColumnDefinition(col)
		if err != nil {
			return nil, err
		}
		definitions = append(definitions, def)
	}
	if pk := table.PrimaryKeyColumn(); pk != "" {
		definitions = append(definitions, d.PrimaryKeyClause(table.PrimaryKeyConstraint(), []string{pk}))
	}

	statements := []Statement{{
		Kind: KindCreateTable,
		SQL: fmt.Sprintf("CREATE TABLE %s (\n  %s\n)%s",
			d.Qualify(table.Name()), strings.Join(definitions, ",\n  "), d.TableOptions(table.Comment())),
	}}

	if table.PrimaryKeyPolicy().Generator == meta.GeneratorSequence {
		sql, err := d.CreateSequenceSQL(table.SequenceName())
		if err != nil {
			return nil, err
		}
		statements = append(statements, Statement{Kind: KindCreateSequence, SQL: sql})
	}

	for _, idx := range table.Indexes() {
		statements = append(statements, Statement{Kind: KindCreateIndex, SQL: d.CreateIndexSQL(table.Name(), idx)})
	}

	for _, sql := range d.CommentSQL(table.Name(), table.Comment(), columns) {
		statements = append(statements, Statement{Kind: KindComment, SQL: sql})
	}
	return statements, nil
}

// columnDiff 声明的列与线上列的差异描述，一致时返回空
func columnDiff(d dialect.Dialect, col meta.Column, live *dialect.FieldStruct) (string, error) {
	declared, err := d.ColumnType(col)
	if err != nil {
		return "", err
	}

	var diffs []string
	if !d.SameType(declared, live.TypeName) {
		diffs = append(diffs, fmt.Sprintf("type %s -> %s", live.TypeName, declared))
	} else if length, scale, ok := dialect.ParseTypeSize(declared); ok && sizedCodes[dialect.TypeCodeOf(declared)] {
		if length != live.Length {
			diffs = append(diffs, fmt.Sprintf("length %d -> %d", live.Length, length))
		}
		if dialect.TypeCodeOf(declared) == dialect.TypeDecimal && scale != live.Scale {
			diffs = append(diffs, fmt.Sprintf("scale %d -> %d", live.Scale, scale))
		}
	}
	if col.Nullable != live.Nullable {
		diffs = append(diffs, fmt.Sprintf("nullable %t -> %t", live.Nullable, col.Nullable))
	}
	return strings.Join(diffs, ", "), nil
}

// sizedCodes 长度参与比较的类型
var sizedCodes = map[dialect.TypeCode]bool{
	dialect.TypeChar:      true,
	dialect.TypeVarchar:   true,
	dialect.TypeNChar:     true,
	dialect.TypeNVarchar:  true,
	dialect.TypeBinary:    true,
	dialect.TypeVarbinary: true,
	dialect.TypeDecimal:   true,
}
