package query

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/hatlonely/rdbx/rdb/dialect"
	"github.com/hatlonely/rdbx/rdb/meta"
)

// QueryType 查询类型
type QueryType string

const (
	QueryTypeBool     QueryType = "bool"
	QueryTypeTerm     QueryType = "term"
	QueryTypeRange    QueryType = "range"
	QueryTypeExists   QueryType = "exists"
	QueryTypeWildcard QueryType = "wildcard"
	QueryTypePrefix   QueryType = "prefix"
)

// Query 查询条件节点
// ToSQL 生成 WHERE 子句片段，使用 ? 占位符，由执行方按方言改写
type Query interface {
	Type() QueryType
	ToSQL(r *Resolver) (string, []any, error)
}

// Resolver 把查询中的字段名解析为表中的列
// 字段名可以是列名，也可以是属性名，大小写不敏感
type Resolver struct {
	table   *meta.TableMeta
	dialect dialect.Dialect
}

func NewResolver(table *meta.TableMeta, d dialect.Dialect) *Resolver {
	return &Resolver{table: table, dialect: d}
}

// Column 解析后加好引号的列名
func (r *Resolver) Column(field string) (string, error) {
	if f, ok := r.table.Field(field); ok {
		return r.dialect.Quote(f.Name()), nil
	}
	for _, f := range r.table.Fields() {
		if f.Property() != "" && strings.EqualFold(f.Property(), field) {
			return r.dialect.Quote(f.Name()), nil
		}
	}
	return "", errors.Errorf("unknown field %s in table %s", field, r.table.Name())
}

// likeEscape LIKE 的转义字符，各方言都需要显式的 ESCAPE 子句
const likeEscape = "!"

var likeReplacer = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(s string) string {
	return likeReplacer.Replace(s)
}

// Build 生成完整的条件，q 为 nil 时返回空串
func Build(r *Resolver, q Query) (string, []any, error) {
	if q == nil {
		return "", nil, nil
	}
	return q.ToSQL(r)
}
