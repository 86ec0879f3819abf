package datatable

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hatlonely/rdbx/log"
	"github.com/hatlonely/rdbx/log/logger"
	"github.com/hatlonely/rdbx/rdb"
	"github.com/hatlonely/rdbx/rdb/dialect"
	"github.com/hatlonely/rdbx/rdb/meta"
	"github.com/hatlonely/rdbx/uid"
)

// Cache 按主键缓存整行，key 为主键值的字符串形式
type Cache interface {
	Get(ctx context.Context, table, key string) ([]any, bool, error)
	Set(ctx context.Context, table, key string, values []any) error
	// Invalidate 按给定顺序使表的缓存失效
	Invalidate(ctx context.Context, tables ...string) error
}

type DataTableOptions struct {
	// Registry 用于确定引用字段的类型和缓存失效顺序，可以为 nil
	Registry *meta.Registry
	Cache    Cache
	// IntGenerator snowflake 主键使用，为 nil 时创建默认的 snowflake 生成器
	IntGenerator uid.IntGenerator
	// StrGenerator uuid 主键使用，为 nil 时创建默认的 uuid 生成器
	StrGenerator uid.StrGenerator
	Logger       logger.Logger
	// Now 创建时间、更新时间使用的时钟
	Now func() time.Time
}

// SaveResult 一次保存的统计
type SaveResult struct {
	Inserted int
	Updated  int
	Skipped  int
}

// DataTable 绑定一张表的内存行集合，保存时只写新增和修改过的行
// 不能在多个 goroutine 中同时使用
type DataTable struct {
	table    *meta.TableMeta
	columns  []meta.Column
	registry *meta.Registry
	cache    Cache
	ints     uid.IntGenerator
	strs     uid.StrGenerator
	logger   logger.Logger
	now      func() time.Time
	rows     []*RowLineSet
}

func NewDataTable(table *meta.TableMeta, options *DataTableOptions) (*DataTable, error) {
	if table == nil {
		return nil, errors.New("table meta is nil")
	}
	if options == nil {
		options = &DataTableOptions{}
	}

	t := &DataTable{
		table:    table,
		registry: options.Registry,
		cache:    options.Cache,
		ints:     options.IntGenerator,
		strs:     options.StrGenerator,
		logger:   options.Logger,
		now:      options.Now,
	}
	var lookup func(string) (*meta.TableMeta, bool)
	if t.registry != nil {
		lookup = t.registry.Lookup
	}
	t.columns = table.Columns(lookup)

	if t.logger == nil {
		t.logger = log.Default()
	}
	t.logger = t.logger.With("table", table.Name())
	if t.now == nil {
		t.now = time.Now
	}

	var err error
	switch table.PrimaryKeyPolicy().Generator {
	case meta.GeneratorSnowflake:
		if t.ints == nil {
			t.ints, err = uid.NewSnowflakeGeneratorWithOptions(nil)
		}
	case meta.GeneratorUUID:
		if t.strs == nil {
			t.strs, err = uid.NewUUIDGeneratorWithOptions(nil)
		}
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "create key generator for table %s failed", table.Name())
	}
	return t, nil
}

func (t *DataTable) Table() *meta.TableMeta { return t.table }

// Columns 列定义，按表字段顺序
func (t *DataTable) Columns() []meta.Column {
	return append([]meta.Column(nil), t.columns...)
}

func (t *DataTable) Rows() []*RowLineSet {
	return append([]*RowLineSet(nil), t.rows...)
}

func (t *DataTable) Len() int { return len(t.rows) }

// Materialize 以数据库中已有的值创建行，状态为 Init
func (t *DataTable) Materialize(values []any) (*RowLineSet, error) {
	if len(values) != len(t.columns) {
		return nil, errors.Errorf("table %s has %d columns, got %d values", t.table.Name(), len(t.columns), len(values))
	}
	row := newRowLineSet(t.table, t.columns, values, false)
	t.rows = append(t.rows, row)
	return row, nil
}

// NewRow 创建新行，状态始终为 Add 直到保存
func (t *DataTable) NewRow() *RowLineSet {
	row := newRowLineSet(t.table, t.columns, make([]any, len(t.columns)), true)
	t.rows = append(t.rows, row)
	return row
}

// FromStruct 用静态绑定把结构体转成新行，系统字段为零值时视为未赋值，保存时生成
func (t *DataTable) FromStruct(v any) (*RowLineSet, error) {
	binding := t.table.Binding()
	if binding == nil {
		return nil, errors.Errorf("table %s has no struct binding", t.table.Name())
	}
	values, err := binding.Values(v)
	if err != nil {
		return nil, errors.WithMessagef(err, "bind struct to table %s failed", t.table.Name())
	}
	for i, col := range t.columns {
		if _, ok := col.Field.(*meta.SystemField); ok && values[i] != nil && reflect.ValueOf(values[i]).IsZero() {
			values[i] = nil
		}
	}
	row := t.NewRow()
	copy(row.current, values)
	return row, nil
}

// ScanStruct 用静态绑定把行的当前值写入结构体指针
func (t *DataTable) ScanStruct(row *RowLineSet, dest any) error {
	binding := t.table.Binding()
	if binding == nil {
		return errors.Errorf("table %s has no struct binding", t.table.Name())
	}
	return binding.Assign(row.current, dest)
}

func (t *DataTable) selectSQL(d dialect.Dialect, where string) string {
	columns := make([]string, len(t.columns))
	for i, col := range t.columns {
		columns[i] = d.Quote(col.Name)
	}
	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(columns, ", "), d.Qualify(t.table.Name()))

	var conditions []string
	if deleted, ok := t.table.SystemField(meta.Deleted); ok {
		column := d.Quote(deleted.Column)
		conditions = append(conditions, fmt.Sprintf("(%s = %s OR %s IS NULL)", column, d.BooleanLiteral(false), column))
	}
	if where = strings.TrimSpace(where); where != "" {
		conditions = append(conditions, "("+where+")")
	}
	if len(conditions) > 0 {
		sql += " WHERE " + strings.Join(conditions, " AND ")
	}
	return sql
}

// Load 按条件读取一页数据追加到表中，count <= 0 时不分页
// where 使用 ? 占位符，逻辑删除的行不读取
func (t *DataTable) Load(ctx context.Context, q dialect.Queryer, d dialect.Dialect, where string, args []any, start, count int64) (int, error) {
	query := t.selectSQL(d, where)
	if count > 0 {
		if pk := t.table.PrimaryKeyColumn(); pk != "" {
			query += " ORDER BY " + d.Quote(pk)
		}
		page := d.Pagination().Paginate(query, start, count)
		query, args = page.SQL, page.Bind(args)
	}

	rows, err := t.query(ctx, q, d, query, args)
	if err != nil {
		return 0, err
	}
	t.rows = append(t.rows, rows...)
	return len(rows), nil
}

// Get 按主键读取一行，缓存开启时先读缓存，不存在时返回 nil
func (t *DataTable) Get(ctx context.Context, q dialect.Queryer, d dialect.Dialect, key any) (*RowLineSet, error) {
	pk := t.table.PrimaryKeyColumn()
	if pk == "" {
		return nil, errors.Errorf("table %s has no primary key", t.table.Name())
	}
	cacheKey := fmt.Sprint(unwrap(key))
	cacheable := t.cache != nil && t.table.Cache()

	if cacheable {
		values, ok, err := t.cache.Get(ctx, t.table.Name(), cacheKey)
		if err != nil {
			t.logger.WarnContext(ctx, "read row cache failed", "key", cacheKey, "error", err)
		} else if ok {
			return t.Materialize(values)
		}
	}

	rows, err := t.query(ctx, q, d, t.selectSQL(d, d.Quote(pk)+" = ?"), []any{key})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	row := rows[0]
	t.rows = append(t.rows, row)

	if cacheable {
		if err := t.cache.Set(ctx, t.table.Name(), cacheKey, row.Values()); err != nil {
			t.logger.WarnContext(ctx, "write row cache failed", "key", cacheKey, "error", err)
		}
	}
	return row, nil
}

func (t *DataTable) query(ctx context.Context, q dialect.Queryer, d dialect.Dialect, query string, args []any) ([]*RowLineSet, error) {
	query = d.Rebind(query)
	t.logger.DebugContext(ctx, "query", "sql", query)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "query table %s failed", t.table.Name())
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrapf(err, "read columns of table %s failed", t.table.Name())
	}
	filtered := map[string]bool{}
	for _, name := range d.FilterPageFields() {
		filtered[strings.ToUpper(name)] = true
	}
	positions := make([]int, len(names))
	for i, name := range names {
		positions[i] = -1
		if !filtered[strings.ToUpper(name)] {
			positions[i] = t.table.FieldIndex(name)
		}
	}

	var result []*RowLineSet
	for rows.Next() {
		scanned := make([]any, len(names))
		dest := make([]any, len(names))
		for i := range scanned {
			dest[i] = &scanned[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrapf(err, "scan table %s failed", t.table.Name())
		}
		values := make([]any, len(t.columns))
		for i, p := range positions {
			if p >= 0 {
				values[p] = scannedValue(t.columns[p], scanned[i])
			}
		}
		result = append(result, newRowLineSet(t.table, t.columns, values, false))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "iterate table %s failed", t.table.Name())
	}
	return result, nil
}

// scannedValue 驱动返回的 []byte 会被复用，非二进制列转成字符串
func scannedValue(col meta.Column, v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	if col.Type == meta.Binary || col.Type == meta.LongBinary {
		return append([]byte(nil), b...)
	}
	return string(b)
}

// Save 新增行执行 INSERT，修改过的行只更新变化的列，其他行跳过
// 每行写入成功后以当前值为新快照；有写入时按引用顺序使缓存失效
func (t *DataTable) Save(ctx context.Context, q dialect.Queryer, d dialect.Dialect) (*SaveResult, error) {
	result := &SaveResult{}
	var err error
	for _, row := range t.rows {
		switch row.Status() {
		case StatusAdd:
			if err = t.insert(ctx, q, d, row); err == nil {
				result.Inserted++
			}
		case StatusModify:
			if err = t.update(ctx, q, d, row); err == nil {
				result.Updated++
			}
		default:
			row.rebase()
			result.Skipped++
		}
		if err != nil {
			break
		}
	}
	if result.Inserted+result.Updated > 0 {
		t.invalidate(ctx)
	}
	if err != nil {
		return result, err
	}
	t.logger.DebugContext(ctx, "table saved", "inserted", result.Inserted, "updated", result.Updated, "skipped", result.Skipped)
	return result, nil
}

func (t *DataTable) insert(ctx context.Context, q dialect.Queryer, d dialect.Dialect, row *RowLineSet) error {
	now := t.now()
	for i, col := range t.columns {
		field, ok := col.Field.(*meta.SystemField)
		if !ok || row.current[i] != nil {
			continue
		}
		switch field.Kind {
		case meta.PrimaryKey:
			key, err := t.generateKey(ctx, q, d)
			if err != nil {
				return err
			}
			row.current[i] = key
		case meta.CreateTime, meta.UpdateTime:
			row.current[i] = now
		case meta.Version:
			row.current[i] = int64(1)
		case meta.Deleted:
			row.current[i] = false
		}
	}

	var columns, placeholders []string
	var args []any
	for i, col := range t.columns {
		if row.current[i] == nil {
			continue
		}
		columns = append(columns, d.Quote(col.Name))
		placeholders = append(placeholders, "?")
		args = append(args, row.current[i])
	}
	query := d.Rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.Qualify(t.table.Name()), strings.Join(columns, ", "), strings.Join(placeholders, ", ")))
	t.logger.DebugContext(ctx, "insert", "sql", query)
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(err, "insert into table %s failed", t.table.Name())
	}
	row.rebase()
	return nil
}

// generateKey 按主键策略取号，GeneratorNone 返回 nil 由数据库或调用方决定
func (t *DataTable) generateKey(ctx context.Context, q dialect.Queryer, d dialect.Dialect) (any, error) {
	switch t.table.PrimaryKeyPolicy().Generator {
	case meta.GeneratorSnowflake:
		id, err := t.ints.Generate(ctx)
		if err != nil {
			return nil, errors.WithMessagef(err, "generate key for table %s failed", t.table.Name())
		}
		return id, nil
	case meta.GeneratorUUID:
		id, err := t.strs.Generate(ctx)
		if err != nil {
			return nil, errors.WithMessagef(err, "generate key for table %s failed", t.table.Name())
		}
		return id, nil
	case meta.GeneratorSequence:
		query, err := d.NextValSQL(t.table.SequenceName())
		if err != nil {
			return nil, err
		}
		var id int64
		if err := q.QueryRowContext(ctx, query).Scan(&id); err != nil {
			return nil, errors.Wrapf(err, "next value of sequence %s failed", t.table.SequenceName())
		}
		return id, nil
	}
	return nil, nil
}

func (t *DataTable) update(ctx context.Context, q dialect.Queryer, d dialect.Dialect, row *RowLineSet) error {
	pkIndex := t.table.FieldIndex(t.table.PrimaryKeyColumn())
	if pkIndex < 0 {
		return errors.Errorf("table %s has no primary key, cannot update", t.table.Name())
	}
	key := row.snapshot.values[pkIndex]

	updateTime, hasUpdateTime := t.systemIndex(meta.UpdateTime)
	version, hasVersion := t.systemIndex(meta.Version)

	var sets []string
	var args []any
	for _, i := range row.Changed() {
		if (hasUpdateTime && i == updateTime) || (hasVersion && i == version) {
			continue
		}
		sets = append(sets, d.Quote(t.columns[i].Name)+" = ?")
		args = append(args, row.current[i])
	}

	restore := row.Values()
	if hasUpdateTime {
		row.current[updateTime] = t.now()
		sets = append(sets, d.Quote(t.columns[updateTime].Name)+" = ?")
		args = append(args, row.current[updateTime])
	}
	var oldVersion any
	if hasVersion {
		oldVersion = row.snapshot.values[version]
		next, err := nextVersion(oldVersion)
		if err != nil {
			return errors.WithMessagef(err, "table %s", t.table.Name())
		}
		row.current[version] = next
		sets = append(sets, d.Quote(t.columns[version].Name)+" = ?")
		args = append(args, next)
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		d.Qualify(t.table.Name()), strings.Join(sets, ", "), d.Quote(t.columns[pkIndex].Name))
	args = append(args, key)
	if hasVersion && oldVersion != nil {
		query += " AND " + d.Quote(t.columns[version].Name) + " = ?"
		args = append(args, oldVersion)
	}
	query = d.Rebind(query)
	t.logger.DebugContext(ctx, "update", "sql", query)

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		copy(row.current, restore)
		return errors.Wrapf(err, "update table %s failed", t.table.Name())
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		copy(row.current, restore)
		return &rdb.OptimisticLockError{Table: t.table.Name(), Key: key, Version: oldVersion}
	}
	row.rebase()
	return nil
}

func (t *DataTable) systemIndex(kind meta.SystemKind) (int, bool) {
	field, ok := t.table.SystemField(kind)
	if !ok {
		return -1, false
	}
	return t.table.FieldIndex(field.Column), true
}

func nextVersion(v any) (int64, error) {
	if unwrap(v) == nil {
		return 1, nil
	}
	r, ok := toRat(unwrap(v))
	if !ok || !r.IsInt() || !r.Num().IsInt64() {
		return 0, errors.Errorf("invalid version value %v", v)
	}
	return r.Num().Int64() + 1, nil
}

// invalidate 被修改的表以及直接或间接引用它的表
func (t *DataTable) invalidate(ctx context.Context) {
	if t.cache == nil {
		return
	}
	tables := []*meta.TableMeta{t.table}
	if t.registry != nil {
		if dependents := t.registry.Dependents(t.table.Name()); len(dependents) > 0 {
			tables = dependents
		}
	}
	var names []string
	for _, table := range tables {
		if table.Cache() {
			names = append(names, table.Name())
		}
	}
	if len(names) == 0 {
		return
	}
	if err := t.cache.Invalidate(ctx, names...); err != nil {
		t.logger.ErrorContext(ctx, "invalidate row cache failed", "tables", names, "error", err)
	}
}
