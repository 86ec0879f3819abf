package dialect

import (
	"math"
	"regexp"
	"strings"
)

// Binding 分页参数的绑定方式
type Binding struct {
	// HasOffset 是否绑定起始行参数
	HasOffset bool
	// Prepend 分页参数绑定在语句自身参数之前
	Prepend bool
	// UpperBound 行数参数使用上界 start+count 而不是 count
	UpperBound bool
	// Reverse 行数参数绑定在起始行参数之前
	Reverse bool
}

// PageQuery 分页改写结果
type PageQuery struct {
	SQL     string
	Start   int64
	Count   int64
	Binding Binding
}

// Params 分页参数，按绑定顺序排列
func (q *PageQuery) Params() []any {
	limit := q.Count
	if q.Binding.UpperBound {
		limit = upperBound(q.Start, q.Count)
	}
	if !q.Binding.HasOffset {
		return []any{limit}
	}
	if q.Binding.Reverse {
		return []any{limit, q.Start}
	}
	return []any{q.Start, limit}
}

// Bind 合并语句参数与分页参数
func (q *PageQuery) Bind(args []any) []any {
	params := q.Params()
	bound := make([]any, 0, len(args)+len(params))
	if q.Binding.Prepend {
		return append(append(bound, params...), args...)
	}
	return append(append(bound, args...), params...)
}

// upperBound start+count，溢出时取最大行数
func upperBound(start, count int64) int64 {
	if count > math.MaxInt64-start {
		return math.MaxInt64
	}
	return start + count
}

// PaginationStrategy 方言的分页改写策略
type PaginationStrategy interface {
	Paginate(sql string, start, count int64) *PageQuery
	// FilterPageFields 改写引入的伪列，读取结果时需要过滤
	FilterPageFields() []string
}

// LimitOffset LIMIT 语法
// MySQL: LIMIT ?, ? 起始行在前；PostgreSQL/SQLite: LIMIT ? OFFSET ? 行数在前
type LimitOffset struct {
	OffsetKeyword bool
}

func (p *LimitOffset) Paginate(sql string, start, count int64) *PageQuery {
	sql = strings.TrimSpace(sql)
	if start <= 0 {
		return &PageQuery{SQL: sql + " LIMIT ?", Start: 0, Count: count}
	}
	if p.OffsetKeyword {
		return &PageQuery{SQL: sql + " LIMIT ? OFFSET ?", Start: start, Count: count,
			Binding: Binding{HasOffset: true, Reverse: true}}
	}
	return &PageQuery{SQL: sql + " LIMIT ?, ?", Start: start, Count: count, Binding: Binding{HasOffset: true}}
}

func (p *LimitOffset) FilterPageFields() []string { return nil }

var forUpdatePattern = regexp.MustCompile(`(?is)\s+for\s+update(\s+of\s+[\w.,\s"]+?)?(\s+(nowait|wait\s+\d+|skip\s+locked))?\s*$`)

// RowNum Oracle 11g 及以前的 ROWNUM 分页
// 行锁子句不能作用在带 ROWNUM 的子查询上，先摘除再追加到外层
type RowNum struct{}

func (p *RowNum) Paginate(sql string, start, count int64) *PageQuery {
	sql = strings.TrimSpace(sql)
	lock := ""
	if loc := forUpdatePattern.FindStringIndex(sql); loc != nil {
		lock = sql[loc[0]:]
		sql = sql[:loc[0]]
	}

	var sb strings.Builder
	q := &PageQuery{Start: start, Count: count}
	if start <= 0 {
		sb.WriteString("SELECT * FROM ( ")
		sb.WriteString(sql)
		sb.WriteString(" ) WHERE ROWNUM <= ?")
		q.Start = 0
	} else {
		sb.WriteString("SELECT * FROM ( SELECT ROW_.*, ROWNUM ROWNUM_ FROM ( ")
		sb.WriteString(sql)
		sb.WriteString(" ) ROW_ WHERE ROWNUM <= ? ) WHERE ROWNUM_ > ?")
		q.Binding = Binding{HasOffset: true, UpperBound: true, Reverse: true}
	}
	sb.WriteString(lock)
	q.SQL = sb.String()
	return q
}

func (p *RowNum) FilterPageFields() []string { return []string{"ROWNUM_"} }

var orderByPattern = regexp.MustCompile(`(?i)\border\s+by\b`)

// OffsetFetch SQL:2008 OFFSET ... FETCH，Oracle 12c 和 SQL Server 2012 使用
type OffsetFetch struct {
	// RequireOrderBy SQL Server 要求 OFFSET 之前有 ORDER BY
	RequireOrderBy bool
}

func (p *OffsetFetch) Paginate(sql string, start, count int64) *PageQuery {
	sql = strings.TrimSpace(sql)
	if p.RequireOrderBy && !hasTopLevelOrderBy(sql) {
		sql += " ORDER BY (SELECT NULL)"
	}
	if start < 0 {
		start = 0
	}
	return &PageQuery{
		SQL:     sql + " OFFSET ? ROWS FETCH NEXT ? ROWS ONLY",
		Start:   start,
		Count:   count,
		Binding: Binding{HasOffset: true},
	}
}

func (p *OffsetFetch) FilterPageFields() []string { return nil }

// TopRowNumber SQL Server 2005/2008：首页使用 TOP，其余使用 ROW_NUMBER 窗口过滤
type TopRowNumber struct{}

var selectPattern = regexp.MustCompile(`(?is)^\s*select(\s+distinct)?\s`)

func (p *TopRowNumber) Paginate(sql string, start, count int64) *PageQuery {
	sql = strings.TrimSpace(sql)
	loc := selectPattern.FindStringIndex(sql)
	if start <= 0 && loc != nil {
		return &PageQuery{
			SQL:     sql[:loc[1]] + "TOP (?) " + sql[loc[1]:],
			Count:   count,
			Binding: Binding{Prepend: true},
		}
	}

	order := "ORDER BY (SELECT NULL)"
	inner := sql
	if idx := lastTopLevelOrderBy(sql); idx >= 0 {
		order = sql[idx:]
		inner = strings.TrimSpace(sql[:idx])
	}
	binding := Binding{HasOffset: true, UpperBound: true}

	// 窗口函数放在原语句的选择列表里，排序键仍在原来的作用域内
	if loc := selectPattern.FindStringSubmatchIndex(inner); loc != nil && loc[2] < 0 {
		return &PageQuery{
			SQL: "SELECT * FROM ( " + inner[:loc[1]] + "ROW_NUMBER() OVER (" + order + ") ROWNUM_, " + inner[loc[1]:] +
				" ) OUTER_ WHERE ROWNUM_ > ? AND ROWNUM_ <= ?",
			Start:   start,
			Count:   count,
			Binding: binding,
		}
	}

	// DISTINCT 时行号会破坏去重，只能在外层编号，排序键去掉表限定名后按投影列解析
	return &PageQuery{
		SQL: "SELECT * FROM ( SELECT INNER_.*, ROW_NUMBER() OVER (" + qualifierPattern.ReplaceAllString(order, "") +
			") ROWNUM_ FROM ( " + inner + " ) INNER_ ) OUTER_ WHERE ROWNUM_ > ? AND ROWNUM_ <= ?",
		Start:   start,
		Count:   count,
		Binding: binding,
	}
}

var qualifierPattern = regexp.MustCompile(`(?:\[[^\]]*\]|"[^"]*"|\b[A-Za-z_][\w$#@]*)\.`)

func (p *TopRowNumber) FilterPageFields() []string { return []string{"ROWNUM_"} }

// hasTopLevelOrderBy 括号外是否有 ORDER BY
func hasTopLevelOrderBy(sql string) bool {
	return lastTopLevelOrderBy(sql) >= 0
}

// lastTopLevelOrderBy 最后一个括号外 ORDER BY 的位置，没有返回 -1
// 字符串字面量内的括号不计入深度
func lastTopLevelOrderBy(sql string) int {
	matches := orderByPattern.FindAllStringIndex(sql, -1)
	if len(matches) == 0 {
		return -1
	}
	depth := make([]int, len(sql)+1)
	d := 0
	var quote byte
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		if quote != 0 {
			depth[i] = -1
			if c == quote {
				quote = 0
			}
			continue
		}
		depth[i] = d
		switch {
		case c == '\'' || c == '"':
			quote = c
		case c == '(':
			d++
		case c == ')':
			d--
		}
	}
	for i := len(matches) - 1; i >= 0; i-- {
		if depth[matches[i][0]] == 0 {
			return matches[i][0]
		}
	}
	return -1
}
