package sqlcheck

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/hatlonely/rdbx/log"
	"github.com/hatlonely/rdbx/log/logger"
	"github.com/hatlonely/rdbx/rdb"
	"github.com/hatlonely/rdbx/rdb/dialect"
	"github.com/hatlonely/rdbx/rdb/meta"
)

type ValidatorOptions struct {
	// PassThrough 不做检查的伪表，例如 Oracle 的 DUAL
	PassThrough []string `cfg:"passThrough" def:"DUAL,SQLITE_MASTER"`

	Logger logger.Logger `cfg:"-"`
}

// Validator 检查查询引用的表和视图都存在，并把声明的表名或别名改写为规范表名
// 不持有连接，可以并发使用
type Validator struct {
	registry    *meta.Registry
	dialect     dialect.Dialect
	passThrough map[string]bool
	logger      logger.Logger
}

func NewValidator(registry *meta.Registry, d dialect.Dialect) *Validator {
	return NewValidatorWithOptions(registry, d, &ValidatorOptions{PassThrough: []string{"DUAL", "SQLITE_MASTER"}})
}

func NewValidatorWithOptions(registry *meta.Registry, d dialect.Dialect, options *ValidatorOptions) *Validator {
	if options == nil {
		options = &ValidatorOptions{}
	}
	v := &Validator{
		registry:    registry,
		dialect:     d,
		passThrough: map[string]bool{},
		logger:      options.Logger,
	}
	for _, name := range options.PassThrough {
		v.passThrough[strings.ToUpper(strings.TrimSpace(name))] = true
	}
	if v.logger == nil {
		v.logger = log.Default()
	}
	v.logger = v.logger.WithGroup("sqlcheck")
	return v
}

// Result 检查结果
type Result struct {
	// SQL 改写后的语句，没有改写时与输入相同
	SQL string
	// Tables 引用的表和视图，规范名，按首次出现的顺序
	Tables []string
}

// Validate 检查并返回改写后的语句
func (v *Validator) Validate(ctx context.Context, q dialect.Queryer, sql string) (string, error) {
	result, err := v.Check(ctx, q, sql)
	if err != nil {
		return "", err
	}
	return result.SQL, nil
}

// Check 解析语句，按出现顺序检查每个表引用
// 声明过的表改写为规范名后还要确认数据库中存在，否则返回 Declared 为 true 的 UnknownRelationError
// 未声明的名字依次按表、视图检查；CTE、表函数和 VALUES 不检查
func (v *Validator) Check(ctx context.Context, q dialect.Queryer, sql string) (*Result, error) {
	script, err := sqlParser.ParseString("", sql)
	if err != nil {
		return nil, errors.Wrap(err, "parse sql failed")
	}

	w := &walker{
		Validator: v,
		ctx:       ctx,
		q:         q,
		live:      map[string]bool{},
		seen:      map[string]bool{},
	}
	if err := w.statement(script.Statement); err != nil {
		return nil, err
	}

	result := &Result{SQL: w.apply(sql), Tables: w.tables}
	if len(w.edits) > 0 {
		v.logger.DebugContext(ctx, "sql rewritten", "sql", result.SQL)
	}
	return result, nil
}

type edit struct {
	start, end int
	text       string
}

type scope struct {
	parent *scope
	names  map[string]bool
}

func (s *scope) child() *scope {
	return &scope{parent: s, names: map[string]bool{}}
}

func (s *scope) has(name string) bool {
	for ; s != nil; s = s.parent {
		if s.names[strings.ToUpper(name)] {
			return true
		}
	}
	return false
}

// walker 一次检查的状态，同一个名字只查询一次数据库
type walker struct {
	*Validator
	ctx    context.Context
	q      dialect.Queryer
	live   map[string]bool
	seen   map[string]bool
	tables []string
	edits  []edit
	// bare UPDATE/DELETE 的目标表改写时不追加别名，部分数据库不支持
	bare bool
}

func (w *walker) apply(sql string) string {
	if len(w.edits) == 0 {
		return sql
	}
	sort.Slice(w.edits, func(i, j int) bool { return w.edits[i].start > w.edits[j].start })
	for _, e := range w.edits {
		sql = sql[:e.start] + e.text + sql[e.end:]
	}
	return sql
}

func (w *walker) statement(s *Statement) error {
	switch {
	case s.Insert != nil:
		return w.insert(s.Insert)
	case s.Update != nil:
		return w.update(s.Update)
	case s.Delete != nil:
		return w.delete(s.Delete)
	}
	return w.query(s.Query, nil)
}

func (w *walker) insert(s *Insert) error {
	if err := w.table(s.Table, nil, true, false); err != nil {
		return err
	}
	if s.Columns != nil {
		if err := w.paren(s.Columns, nil); err != nil {
			return err
		}
	}
	if s.Source != nil {
		if err := w.query(s.Source, nil); err != nil {
			return err
		}
	}
	return w.items(s.Tail, nil)
}

func (w *walker) update(s *Update) error {
	w.bare = true
	err := w.tableExpr(s.Table, nil)
	w.bare = false
	if err != nil {
		return err
	}
	if err := w.chunks(s.Set, nil); err != nil {
		return err
	}
	for _, expr := range s.From {
		if err := w.tableExpr(expr, nil); err != nil {
			return err
		}
	}
	return w.clauses(s.Clauses, nil)
}

func (w *walker) delete(s *Delete) error {
	// DELETE o FROM ORDERS o 中的 o 是别名
	aliases := &scope{names: map[string]bool{}}
	for _, expr := range append(append([]*TableExpr(nil), s.From...), s.Using...) {
		collectAliases(expr, aliases)
	}
	w.bare = true
	for _, target := range s.Targets {
		if len(target.Parts) == 1 && aliases.has(unquote(target.Parts[0].Value)) {
			continue
		}
		if err := w.table(target, nil, false, false); err != nil {
			return err
		}
	}
	for _, expr := range append(append([]*TableExpr(nil), s.From...), s.Using...) {
		if err := w.tableExpr(expr, nil); err != nil {
			return err
		}
	}
	w.bare = false
	return w.clauses(s.Clauses, nil)
}

func collectAliases(expr *TableExpr, s *scope) {
	factors := []*TableFactor{expr.Factor}
	for _, join := range expr.Joins {
		factors = append(factors, join.Table)
	}
	for _, f := range factors {
		if f.Alias != nil {
			s.names[strings.ToUpper(unquote(f.Alias.Name))] = true
		}
		if f.Nested != nil {
			collectAliases(f.Nested, s)
		}
	}
}

// query WITH 定义的名字对主体和之后的 CTE 可见，对自身也可见（递归 CTE）
func (w *walker) query(q *Query, sc *scope) error {
	if q.With != nil {
		sc = sc.child()
		for _, cte := range q.With.CTEs {
			sc.names[strings.ToUpper(unquote(cte.Name))] = true
			if err := w.query(cte.Query, sc); err != nil {
				return err
			}
		}
	}
	if err := w.operand(q.Body.Left, sc); err != nil {
		return err
	}
	for _, op := range q.Body.Right {
		if err := w.operand(op.Operand, sc); err != nil {
			return err
		}
	}
	return w.clauses(q.Tail, sc)
}

func (w *walker) operand(o *Operand, sc *scope) error {
	switch {
	case o.Select != nil:
		if err := w.chunks(o.Select.Items, sc); err != nil {
			return err
		}
		for _, expr := range o.Select.From {
			if err := w.tableExpr(expr, sc); err != nil {
				return err
			}
		}
		return w.clauses(o.Select.Clauses, sc)
	case o.Sub != nil:
		return w.query(o.Sub, sc)
	}
	return nil
}

func (w *walker) tableExpr(expr *TableExpr, sc *scope) error {
	if err := w.factor(expr.Factor, sc); err != nil {
		return err
	}
	for _, join := range expr.Joins {
		if err := w.factor(join.Table, sc); err != nil {
			return err
		}
		for _, cond := range join.On {
			if cond.Paren != nil {
				if err := w.paren(cond.Paren, sc); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (w *walker) factor(f *TableFactor, sc *scope) error {
	switch {
	case f.Sub != nil:
		return w.query(f.Sub, sc)
	case f.Nested != nil:
		return w.tableExpr(f.Nested, sc)
	case f.Args != nil:
		// 表函数本身不检查，参数中的子查询照常检查
		return w.paren(f.Args, sc)
	}
	return w.table(f.Name, sc, f.Alias == nil, !w.bare)
}

func (w *walker) clauses(clauses []*Clause, sc *scope) error {
	for _, c := range clauses {
		if err := w.chunks(c.Body, sc); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) chunks(chunks []*Chunk, sc *scope) error {
	for _, c := range chunks {
		if c.Paren != nil {
			if err := w.paren(c.Paren, sc); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *walker) items(items []*Item, sc *scope) error {
	for _, item := range items {
		if item.Paren != nil {
			if err := w.paren(item.Paren, sc); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *walker) paren(p *Paren, sc *scope) error {
	if p.Query != nil {
		return w.query(p.Query, sc)
	}
	return w.items(p.Items, sc)
}

// table 检查一个表引用
// 改写别名时如果引用没有别名，保留原来的名字作为别名，列上的限定名仍然有效
func (w *walker) table(name *TableName, sc *scope, keepAlias bool, addAlias bool) error {
	last := name.Parts[len(name.Parts)-1]
	id := unquote(last.Value)

	if len(name.Parts) == 1 && (sc.has(id) || w.passThrough[strings.ToUpper(id)]) {
		return nil
	}
	if len(name.Parts) > 1 {
		qualifier := unquote(name.Parts[len(name.Parts)-2].Value)
		if schema := w.dialect.Schema(); schema == "" || !strings.EqualFold(qualifier, schema) {
			w.logger.DebugContext(w.ctx, "skip table outside current schema", "table", qualifier+"."+id)
			return nil
		}
	}

	if w.registry != nil {
		if t, ok := w.registry.Lookup(id); ok {
			exists, err := w.exists(t.Name(), false)
			if err != nil {
				return err
			}
			if !exists {
				return &rdb.UnknownRelationError{Name: t.Name(), Declared: true}
			}
			replacement := w.dialect.Quote(t.Name())
			if last.Value != replacement {
				text := replacement
				if keepAlias && addAlias && !strings.EqualFold(id, t.Name()) {
					text += " " + last.Value
				}
				w.edits = append(w.edits, edit{start: last.Pos.Offset, end: last.Pos.Offset + len(last.Value), text: text})
			}
			w.reference(t.Name())
			return nil
		}
	}

	exists, err := w.exists(id, false)
	if err != nil {
		return err
	}
	if !exists {
		if exists, err = w.exists(id, true); err != nil {
			return err
		}
	}
	if !exists {
		return &rdb.UnknownRelationError{Name: id}
	}
	w.reference(strings.ToUpper(id))
	return nil
}

func (w *walker) exists(name string, view bool) (bool, error) {
	key := strings.ToUpper(name)
	if view {
		key = "VIEW:" + key
	}
	if ok, cached := w.live[key]; cached {
		return ok, nil
	}
	var ok bool
	var err error
	if view {
		ok, err = w.dialect.ExistView(w.ctx, w.q, name)
	} else {
		ok, err = w.dialect.ExistTable(w.ctx, w.q, name)
	}
	if err != nil {
		return false, err
	}
	w.live[key] = ok
	return ok, nil
}

func (w *walker) reference(name string) {
	if !w.seen[name] {
		w.seen[name] = true
		w.tables = append(w.tables, name)
	}
}

// unquote 去掉标识符的引号，"" 转义为 "
func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	switch {
	case s[0] == '"' && s[len(s)-1] == '"':
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	case s[0] == '`' && s[len(s)-1] == '`', s[0] == '[' && s[len(s)-1] == ']':
		return s[1 : len(s)-1]
	}
	return s
}
