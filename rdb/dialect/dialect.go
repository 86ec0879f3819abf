package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hatlonely/rdbx/rdb"
	"github.com/hatlonely/rdbx/rdb/meta"
)

// Queryer 数据库连接，*sql.DB、*sql.Conn、*sql.Tx 都满足
// 连接由调用方获取和释放，方言只在调用期间使用
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect 数据库方言，启动时由 Resolver 选定一次
type Dialect interface {
	// Name 方言变体名，例如 mysql57、oracle10g
	Name() string

	TypeName(t meta.DataType) (string, error)
	SizedTypeName(t meta.DataType, length, scale int) (string, error)
	// ColumnType 列的完整类型
	ColumnType(col meta.Column) (string, error)
	// SameType 声明的类型与线上类型名是否属于同一类型（忽略长度和别名差异）
	SameType(declared, live string) bool

	IsKeyword(word string) bool
	// Quote 关键字或非常规标识符加引号，其他原样返回
	Quote(name string) string

	CurrentTimestamp() string
	// CurrentTimestampIsFunction 为 true 时 CurrentTimestamp 需要作为查询执行，而不是直接嵌入 SQL
	CurrentTimestampIsFunction() bool

	SupportsSequences() bool
	CreateSequenceSQL(name string) (string, error)
	DropSequenceSQL(name string) (string, error)
	NextValSQL(name string) (string, error)

	// ForUpdate 行锁子句，不支持时为空
	ForUpdate() string
	// BooleanLiteral 布尔常量在 SQL 中的写法
	BooleanLiteral(v bool) string

	Schema() string
	SetSchema(schema string)
	// CurrentSchemaQuery 查询当前 schema 的语句，为空表示不需要
	CurrentSchemaQuery() string
	// Qualify 加上 schema 前缀
	Qualify(name string) string

	Pagination() PaginationStrategy
	IsFilterPageFields() bool
	FilterPageFields() []string

	// Rebind 将 ? 占位符改写为方言的占位符，字符串字面量内的 ? 不变
	Rebind(query string) string

	ColumnDefinition(col meta.Column) (string, error)
	PrimaryKeyClause(name string, columns []string) string
	// TableOptions CREATE TABLE 语句的表级后缀
	TableOptions(comment string) string
	AddColumnSQL(table string, col meta.Column) (string, error)
	ModifyColumnSQL(table string, col meta.Column) (string, error)
	CreateIndexSQL(table string, idx *meta.IndexMeta) string
	// CommentSQL 需要单独执行的表/列注释语句
	CommentSQL(table, comment string, columns []meta.Column) []string

	ExistTable(ctx context.Context, q Queryer, name string) (bool, error)
	TableStruct(ctx context.Context, q Queryer, name string) (*TableObjectStruct, error)
	ExistView(ctx context.Context, q Queryer, name string) (bool, error)
	ViewStruct(ctx context.Context, q Queryer, name string) (*ViewObjectStruct, error)
}

type bindStyle int

const (
	bindQuestion bindStyle = iota
	bindDollar
	bindColon
	bindAt
)

type commentStyle int

const (
	commentNone commentStyle = iota
	commentInline
	commentOn
)

// base 各方言共用的数据驱动实现，差异通过字段配置
type base struct {
	name              string
	types             *TypeNames
	keywords          map[string]bool
	quoteOpen         string
	quoteClose        string
	bind              bindStyle
	pagination        PaginationStrategy
	currentTimestamp  string
	timestampFunction bool
	timestampDefault  string
	createSequence    string
	dropSequence      string
	nextVal           string
	forUpdate         string
	schema            string
	schemaQuery       string
	comments          commentStyle
	tableOptions      string
	addColumn         string
	modifyColumn      func(b *base, table string, col meta.Column) (string, error)
	booleanTrue       string
	booleanFalse      string
	introspection     *introspection
}

func (b *base) Name() string { return b.name }

func (b *base) TypeName(t meta.DataType) (string, error) {
	return b.types.Get(t)
}

func (b *base) SizedTypeName(t meta.DataType, length, scale int) (string, error) {
	return b.types.GetSized(t, length, scale)
}

func (b *base) ColumnType(col meta.Column) (string, error) {
	return b.types.GetSized(col.Type, col.Length, col.Scale)
}

func (b *base) SameType(declared, live string) bool {
	dc, lc := TypeCodeOf(declared), TypeCodeOf(live)
	if dc != TypeOther && lc != TypeOther {
		return dc == lc || (compatibleCodes[dc] != 0 && compatibleCodes[dc] == compatibleCodes[lc])
	}
	return strings.EqualFold(baseTypeName(declared), baseTypeName(live))
}

// compatibleCodes 可以互相替代的类型族，例如 TEXT 与 CLOB
var compatibleCodes = map[TypeCode]int{
	TypeDecimal: 1,
	TypeClob:    2,
	TypeNClob:   2,
}

func (b *base) IsKeyword(word string) bool {
	return b.keywords[strings.ToUpper(word)]
}

func (b *base) Quote(name string) string {
	if name == "" || (!b.IsKeyword(name) && isPlainIdentifier(name)) {
		return name
	}
	return b.quoteOpen + name + b.quoteClose
}

func isPlainIdentifier(name string) bool {
	for i, c := range name {
		switch {
		case c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z'):
		case c >= '0' && c <= '9' && i > 0:
		case c == '$' && i > 0:
		default:
			return false
		}
	}
	return true
}

func (b *base) CurrentTimestamp() string         { return b.currentTimestamp }
func (b *base) CurrentTimestampIsFunction() bool { return b.timestampFunction }
func (b *base) SupportsSequences() bool          { return b.createSequence != "" }
func (b *base) ForUpdate() string                { return b.forUpdate }

func (b *base) BooleanLiteral(v bool) string {
	if v {
		return b.booleanTrue
	}
	return b.booleanFalse
}

func (b *base) CreateSequenceSQL(name string) (string, error) {
	if !b.SupportsSequences() {
		return "", &rdb.UnsupportedFeatureError{Dialect: b.name, Feature: "sequences"}
	}
	return fmt.Sprintf(b.createSequence, b.Qualify(name)), nil
}

func (b *base) DropSequenceSQL(name string) (string, error) {
	if !b.SupportsSequences() {
		return "", &rdb.UnsupportedFeatureError{Dialect: b.name, Feature: "sequences"}
	}
	return fmt.Sprintf(b.dropSequence, b.Qualify(name)), nil
}

func (b *base) NextValSQL(name string) (string, error) {
	if !b.SupportsSequences() {
		return "", &rdb.UnsupportedFeatureError{Dialect: b.name, Feature: "sequences"}
	}
	return fmt.Sprintf(b.nextVal, b.Qualify(name)), nil
}

func (b *base) Schema() string             { return b.schema }
func (b *base) SetSchema(schema string)    { b.schema = strings.TrimSpace(schema) }
func (b *base) CurrentSchemaQuery() string { return b.schemaQuery }

func (b *base) Qualify(name string) string {
	if b.schema == "" {
		return b.Quote(name)
	}
	return b.Quote(b.schema) + "." + b.Quote(name)
}

func (b *base) Pagination() PaginationStrategy { return b.pagination }

func (b *base) IsFilterPageFields() bool { return len(b.pagination.FilterPageFields()) > 0 }

func (b *base) FilterPageFields() []string { return b.pagination.FilterPageFields() }

func (b *base) Rebind(query string) string {
	if b.bind == bindQuestion {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 16)
	n := 0
	var quote byte
	for i := 0; i < len(query); i++ {
		c := query[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			sb.WriteByte(c)
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
			sb.WriteByte(c)
		case '?':
			n++
			switch b.bind {
			case bindDollar:
				sb.WriteString("$" + strconv.Itoa(n))
			case bindColon:
				sb.WriteString(":" + strconv.Itoa(n))
			case bindAt:
				sb.WriteString("@p" + strconv.Itoa(n))
			}
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func (b *base) ColumnDefinition(col meta.Column) (string, error) {
	columnType, err := b.ColumnType(col)
	if err != nil {
		return "", err
	}
	parts := []string{b.Quote(col.Name), columnType}
	if col.Default != nil {
		parts = append(parts, "DEFAULT "+b.formatDefault(col.Default, col.Type))
	}
	if !col.Nullable {
		parts = append(parts, "NOT NULL")
	}
	if b.comments == commentInline && col.Comment != "" {
		parts = append(parts, "COMMENT "+quoteLiteral(col.Comment))
	}
	return strings.Join(parts, " "), nil
}

// formatDefault 格式化默认值，字符串加引号，布尔值按方言字面量
func (b *base) formatDefault(value any, t meta.DataType) string {
	switch v := value.(type) {
	case string:
		if t.IsTemporal() && strings.EqualFold(v, "CURRENT_TIMESTAMP") {
			if b.timestampDefault != "" {
				return b.timestampDefault
			}
			return b.currentTimestamp
		}
		return quoteLiteral(v)
	case bool:
		if v {
			return b.booleanTrue
		}
		return b.booleanFalse
	case time.Time:
		return quoteLiteral(v.Format("2006-01-02 15:04:05"))
	default:
		return fmt.Sprintf("%v", v)
	}
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (b *base) PrimaryKeyClause(name string, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = b.Quote(c)
	}
	return fmt.Sprintf("CONSTRAINT %s PRIMARY KEY (%s)", b.Quote(name), strings.Join(quoted, ", "))
}

func (b *base) TableOptions(comment string) string {
	if b.comments == commentInline && comment != "" {
		return b.tableOptions + " COMMENT=" + quoteLiteral(comment)
	}
	return b.tableOptions
}

func (b *base) AddColumnSQL(table string, col meta.Column) (string, error) {
	def, err := b.ColumnDefinition(col)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(b.addColumn, b.Qualify(table), def), nil
}

func (b *base) ModifyColumnSQL(table string, col meta.Column) (string, error) {
	if b.modifyColumn == nil {
		return "", &rdb.UnsupportedFeatureError{Dialect: b.name, Feature: "modify column"}
	}
	return b.modifyColumn(b, table, col)
}

func (b *base) CreateIndexSQL(table string, idx *meta.IndexMeta) string {
	kind := "INDEX"
	if idx.Unique {
		kind = "UNIQUE INDEX"
	}
	columns := make([]string, len(idx.Columns))
	for i, col := range idx.Columns {
		columns[i] = b.Quote(col.Name)
		if col.Desc {
			columns[i] += " DESC"
		}
	}
	return fmt.Sprintf("CREATE %s %s ON %s (%s)", kind, b.Quote(idx.IndexName(table)), b.Qualify(table), strings.Join(columns, ", "))
}

func (b *base) CommentSQL(table, comment string, columns []meta.Column) []string {
	if b.comments != commentOn {
		return nil
	}
	var statements []string
	if comment != "" {
		statements = append(statements, fmt.Sprintf("COMMENT ON TABLE %s IS %s", b.Qualify(table), quoteLiteral(comment)))
	}
	for _, col := range columns {
		if col.Comment == "" {
			continue
		}
		statements = append(statements, fmt.Sprintf("COMMENT ON COLUMN %s.%s IS %s",
			b.Qualify(table), b.Quote(col.Name), quoteLiteral(col.Comment)))
	}
	return statements
}

// modifyColumnKeyword ALTER TABLE t <keyword> <definition>，MySQL 和 Oracle 使用
func modifyColumnKeyword(format string) func(b *base, table string, col meta.Column) (string, error) {
	return func(b *base, table string, col meta.Column) (string, error) {
		def, err := b.ColumnDefinition(col)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(format, b.Qualify(table), def), nil
	}
}

// baseTypeName 去掉括号部分的类型名
func baseTypeName(typeName string) string {
	if i := strings.IndexByte(typeName, '('); i >= 0 {
		return strings.TrimSpace(typeName[:i])
	}
	return strings.TrimSpace(typeName)
}

// ParseTypeSize 解析类型名括号中的长度和精度，例如 DECIMAL(12,2) → 12, 2, true
// 括号内不是数字（例如 VARCHAR(MAX)）时 ok 为 false
func ParseTypeSize(typeName string) (length, scale int, ok bool) {
	open := strings.IndexByte(typeName, '(')
	if open < 0 {
		return 0, 0, false
	}
	end := strings.IndexByte(typeName[open:], ')')
	if end < 0 {
		return 0, 0, false
	}
	parts := strings.Split(typeName[open+1:open+end], ",")
	fields := strings.Fields(parts[0])
	if len(fields) == 0 {
		return 0, 0, false
	}
	length, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, false
	}
	if len(parts) > 1 {
		if scale, err = strconv.Atoi(strings.TrimSpace(parts[1])); err != nil {
			return 0, 0, false
		}
	}
	return length, scale, true
}

func keywordSet(groups ...[]string) map[string]bool {
	set := map[string]bool{}
	for _, words := range groups {
		for _, w := range words {
			set[strings.ToUpper(w)] = true
		}
	}
	return set
}

// sql92Keywords 各方言共有的保留字
var sql92Keywords = []string{
	"ADD", "ALL", "ALTER", "AND", "ANY", "AS", "ASC", "BETWEEN", "BY", "CASE", "CHECK", "COLUMN",
	"CONSTRAINT", "CREATE", "CROSS", "CURRENT", "CURRENT_DATE", "CURRENT_TIME", "CURRENT_TIMESTAMP",
	"DEFAULT", "DELETE", "DESC", "DISTINCT", "DROP", "ELSE", "END", "EXISTS", "FOR", "FOREIGN", "FROM",
	"FULL", "GRANT", "GROUP", "HAVING", "IN", "INNER", "INSERT", "INTERSECT", "INTO", "IS", "JOIN",
	"KEY", "LEFT", "LIKE", "NOT", "NULL", "ON", "OR", "ORDER", "OUTER", "PRIMARY", "REFERENCES",
	"RIGHT", "SELECT", "SET", "TABLE", "THEN", "TO", "UNION", "UNIQUE", "UPDATE", "USER", "VALUES",
	"VIEW", "WHEN", "WHERE", "WITH",
}

// nullString 可空字符串转指针
func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
